package domain

import "time"

type SavedMovie struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	MovieID    int64     `json:"movie_id"`
	Title      string    `json:"title"`
	PosterPath string    `json:"poster_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
