package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRunOptimistic(t *testing.T) {
	t.Run("commit", func(t *testing.T) {
		state := 0
		err := RunOptimistic(context.Background(), zap.NewNop(), Command{
			Name:     "inc",
			Apply:    func() { state++ },
			Remote:   func(context.Context) error { return nil },
			Rollback: func() { state-- },
		})
		if err != nil || state != 1 {
			t.Fatalf("expected committed state 1, got %d (%v)", state, err)
		}
	})

	t.Run("rollback", func(t *testing.T) {
		state := 0
		seenDuringRemote := -1
		remoteErr := errors.New("offline")
		err := RunOptimistic(context.Background(), zap.NewNop(), Command{
			Name:  "inc",
			Apply: func() { state++ },
			Remote: func(context.Context) error {
				seenDuringRemote = state
				return remoteErr
			},
			Rollback: func() { state-- },
		})
		if !errors.Is(err, remoteErr) {
			t.Fatalf("expected remote error, got %v", err)
		}
		if seenDuringRemote != 1 {
			t.Fatalf("local change must be visible before the remote call")
		}
		if state != 0 {
			t.Fatalf("expected rollback to 0, got %d", state)
		}
	})

	t.Run("incomplete", func(t *testing.T) {
		if err := RunOptimistic(context.Background(), nil, Command{}); err == nil {
			t.Fatalf("expected error for empty command")
		}
	})
}

func newSavedMoviesTest(t *testing.T) (*accountTestEnv, *SavedMoviesService) {
	t.Helper()
	env := newAccountServiceTest(t)
	svc := NewSavedMoviesService(zap.NewNop(), env.manager, env.movies, time.Second)
	return env, svc
}

func TestSavedMovies_SaveAndUnsave(t *testing.T) {
	env, svc := newSavedMoviesTest(t)
	ctx := context.Background()
	in := env.signUpAndIn(t, "Jane", "jane@x.com", "secret1")

	if err := svc.Save(ctx, 550, "Fight Club", "/fc.jpg"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := svc.Save(ctx, 550, "Fight Club", "/fc.jpg"); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if !svc.IsSaved(550) || svc.Count() != 1 {
		t.Fatalf("expected one saved movie")
	}
	remote, _ := env.movies.ListByUser(ctx, in.User.ID)
	if len(remote) != 1 {
		t.Fatalf("expected remote write, got %d", len(remote))
	}

	if err := svc.Unsave(ctx, 550); err != nil {
		t.Fatalf("unsave: %v", err)
	}
	if svc.IsSaved(550) {
		t.Fatalf("expected movie removed locally")
	}
	remote, _ = env.movies.ListByUser(ctx, in.User.ID)
	if len(remote) != 0 {
		t.Fatalf("expected remote removal")
	}
}

func TestSavedMovies_RollbackOnRemoteFailure(t *testing.T) {
	env, svc := newSavedMoviesTest(t)
	ctx := context.Background()
	env.signUpAndIn(t, "Jane", "jane@x.com", "secret1")

	env.movies.saveErr = errors.New("offline")
	if err := svc.Save(ctx, 550, "Fight Club", ""); !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	if svc.IsSaved(550) {
		t.Fatalf("expected save rolled back")
	}

	env.movies.saveErr = nil
	if err := svc.Save(ctx, 550, "Fight Club", ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	env.movies.rmErr = errors.New("offline")
	if err := svc.Unsave(ctx, 550); err == nil {
		t.Fatalf("expected unsave error")
	}
	if !svc.IsSaved(550) {
		t.Fatalf("expected unsave rolled back")
	}
}

func TestSavedMovies_ToggleAndRefresh(t *testing.T) {
	env, svc := newSavedMoviesTest(t)
	ctx := context.Background()
	env.signUpAndIn(t, "Jane", "jane@x.com", "secret1")

	saved, err := svc.Toggle(ctx, 13, "Forrest Gump", "")
	if err != nil || !saved {
		t.Fatalf("expected toggle to save, got %v (%v)", saved, err)
	}
	saved, err = svc.Toggle(ctx, 13, "Forrest Gump", "")
	if err != nil || saved {
		t.Fatalf("expected toggle to unsave, got %v (%v)", saved, err)
	}

	_ = svc.Save(ctx, 550, "Fight Club", "")
	_ = svc.Save(ctx, 603, "The Matrix", "")

	fresh := NewSavedMoviesService(zap.NewNop(), env.manager, env.movies, time.Second)
	if err := fresh.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if fresh.Count() != 2 || !fresh.IsSaved(603) {
		t.Fatalf("expected remote list loaded, got %d", fresh.Count())
	}
	if got := len(fresh.List()); got != 2 {
		t.Fatalf("expected 2 movies listed, got %d", got)
	}
}

func TestSavedMovies_RequiresUser(t *testing.T) {
	_, svc := newSavedMoviesTest(t)
	if err := svc.Save(context.Background(), 550, "Fight Club", ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if err := svc.Refresh(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if err := svc.Save(context.Background(), 0, "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSavedMovies_RevokedSessionCannotWrite(t *testing.T) {
	env, svc := newSavedMoviesTest(t)
	ctx := context.Background()
	in := env.signUpAndIn(t, "Jane", "jane@x.com", "secret1")

	if err := env.sessions.Delete(ctx, in.Session.ID); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	if err := svc.Save(ctx, 550, "Fight Club", ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if movies, _ := env.movies.ListByUser(ctx, in.User.ID); len(movies) != 0 {
		t.Fatalf("expected nothing saved, got %d", len(movies))
	}
	if svc.IsSaved(550) {
		t.Fatalf("expected no local change")
	}
}
