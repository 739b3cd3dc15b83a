package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"moviebox/internal/domain"
	"moviebox/internal/repository"
)

// SavedMoviesService mantiene la lista local de peliculas guardadas y la sincroniza de forma optimista.
type SavedMoviesService struct {
	logger  *zap.Logger
	auth    Authenticator
	movies  repository.SavedMovieRepository
	timeout time.Duration
	now     func() time.Time

	mu     sync.Mutex
	userID string
	saved  map[int64]domain.SavedMovie
}

func NewSavedMoviesService(logger *zap.Logger, auth Authenticator, movies repository.SavedMovieRepository, timeout time.Duration) *SavedMoviesService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &SavedMoviesService{
		logger:  logger,
		auth:    auth,
		movies:  movies,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
		saved:   make(map[int64]domain.SavedMovie),
	}
}

// Refresh reemplaza la lista local con la remota.
func (s *SavedMoviesService) Refresh(ctx context.Context) error {
	user, err := s.currentUser(ctx)
	if err != nil {
		s.reset("")
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	movies, err := s.movies.ListByUser(ctx, user.ID)
	if err != nil {
		return classify(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = user.ID
	s.saved = make(map[int64]domain.SavedMovie, len(movies))
	for _, m := range movies {
		s.saved[m.MovieID] = m
	}
	return nil
}

func (s *SavedMoviesService) Save(ctx context.Context, movieID int64, title, posterPath string) error {
	if movieID <= 0 || strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: movie id and title are required", ErrInvalidInput)
	}
	user, err := s.currentUser(ctx)
	if err != nil {
		return err
	}
	s.switchUser(user.ID)
	if s.IsSaved(movieID) {
		return nil
	}

	movie := domain.SavedMovie{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		MovieID:    movieID,
		Title:      strings.TrimSpace(title),
		PosterPath: posterPath,
		CreatedAt:  s.now(),
	}
	return RunOptimistic(ctx, s.logger, Command{
		Name: "save_movie",
		Apply: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.saved[movieID] = movie
		},
		Remote: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			if err := s.movies.Save(ctx, movie); err != nil {
				return classify(err)
			}
			return nil
		},
		Rollback: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if cur, ok := s.saved[movieID]; ok && cur.ID == movie.ID {
				delete(s.saved, movieID)
			}
		},
	})
}

func (s *SavedMoviesService) Unsave(ctx context.Context, movieID int64) error {
	user, err := s.currentUser(ctx)
	if err != nil {
		return err
	}
	s.switchUser(user.ID)

	s.mu.Lock()
	prev, ok := s.saved[movieID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	return RunOptimistic(ctx, s.logger, Command{
		Name: "unsave_movie",
		Apply: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.saved, movieID)
		},
		Remote: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			if err := s.movies.Remove(ctx, user.ID, movieID); err != nil {
				return classify(err)
			}
			return nil
		},
		Rollback: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, exists := s.saved[movieID]; !exists {
				s.saved[movieID] = prev
			}
		},
	})
}

// Toggle guarda o quita la pelicula y devuelve el estado final.
func (s *SavedMoviesService) Toggle(ctx context.Context, movieID int64, title, posterPath string) (bool, error) {
	if s.IsSaved(movieID) {
		if err := s.Unsave(ctx, movieID); err != nil {
			return true, err
		}
		return false, nil
	}
	if err := s.Save(ctx, movieID, title, posterPath); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SavedMoviesService) IsSaved(movieID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.saved[movieID]
	return ok
}

func (s *SavedMoviesService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

// List devuelve las peliculas guardadas, mas recientes primero.
func (s *SavedMoviesService) List() []domain.SavedMovie {
	s.mu.Lock()
	out := make([]domain.SavedMovie, 0, len(s.saved))
	for _, m := range s.saved {
		out = append(out, m)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].MovieID < out[j].MovieID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *SavedMoviesService) switchUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != userID {
		s.userID = userID
		s.saved = make(map[int64]domain.SavedMovie)
	}
}

func (s *SavedMoviesService) reset(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.saved = make(map[int64]domain.SavedMovie)
}

func (s *SavedMoviesService) currentUser(ctx context.Context) (*domain.User, error) {
	if !s.auth.IsAuthenticated(ctx) {
		return nil, ErrUnauthenticated
	}
	user := s.auth.GetCurrentUser(ctx)
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}
