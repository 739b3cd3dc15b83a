package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"moviebox/internal/domain"
)

type memPreferencesRepo struct {
	mu    sync.Mutex
	prefs map[string]domain.Preferences
}

func newMemPreferencesRepo() *memPreferencesRepo {
	return &memPreferencesRepo{prefs: make(map[string]domain.Preferences)}
}

func (r *memPreferencesRepo) GetByUserID(_ context.Context, userID string) (domain.Preferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prefs[userID]
	if !ok {
		return domain.Preferences{}, pgx.ErrNoRows
	}
	return p, nil
}

func (r *memPreferencesRepo) Upsert(_ context.Context, p domain.Preferences) (domain.Preferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.prefs[p.UserID]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	}
	r.prefs[p.UserID] = p
	return p, nil
}

func (r *memPreferencesRepo) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.prefs, userID)
	return nil
}

type memSavedMovieRepo struct {
	mu      sync.Mutex
	movies  map[string]map[int64]domain.SavedMovie
	saveErr error
	rmErr   error
}

func newMemSavedMovieRepo() *memSavedMovieRepo {
	return &memSavedMovieRepo{movies: make(map[string]map[int64]domain.SavedMovie)}
}

func (r *memSavedMovieRepo) Save(_ context.Context, m domain.SavedMovie) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if r.movies[m.UserID] == nil {
		r.movies[m.UserID] = make(map[int64]domain.SavedMovie)
	}
	if _, ok := r.movies[m.UserID][m.MovieID]; !ok {
		r.movies[m.UserID][m.MovieID] = m
	}
	return nil
}

func (r *memSavedMovieRepo) Remove(_ context.Context, userID string, movieID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rmErr != nil {
		return r.rmErr
	}
	delete(r.movies[userID], movieID)
	return nil
}

func (r *memSavedMovieRepo) ListByUser(_ context.Context, userID string) ([]domain.SavedMovie, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SavedMovie, 0)
	for _, m := range r.movies[userID] {
		out = append(out, m)
	}
	return out, nil
}

func (r *memSavedMovieRepo) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.movies, userID)
	return nil
}

type memProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: make(map[string]domain.Profile)}
}

func (r *memProfileRepo) GetByUserID(_ context.Context, userID string) (domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return domain.Profile{}, pgx.ErrNoRows
	}
	return p, nil
}

func (r *memProfileRepo) Upsert(_ context.Context, p domain.Profile) (domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.profiles[p.UserID]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	}
	r.profiles[p.UserID] = p
	return p, nil
}

func (r *memProfileRepo) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.profiles, userID)
	return nil
}

type accountTestEnv struct {
	*sessionTestEnv
	account  *AccountService
	prefs    *memPreferencesRepo
	profiles *memProfileRepo
	movies   *memSavedMovieRepo
}

func newAccountServiceTest(t *testing.T) *accountTestEnv {
	t.Helper()
	base := newSessionManagerTest(t)
	env := &accountTestEnv{
		sessionTestEnv: base,
		prefs:          newMemPreferencesRepo(),
		profiles:       newMemProfileRepo(),
		movies:         newMemSavedMovieRepo(),
	}
	env.account = NewAccountService(zap.NewNop(), base.manager, base.creds, base.users, base.sessions, env.prefs, env.profiles, env.movies, time.Second)
	env.account.now = base.clock.Now
	return env
}

func TestAccountService_RequiresUser(t *testing.T) {
	env := newAccountServiceTest(t)
	ctx := context.Background()

	if _, err := env.account.GetPreferences(ctx); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if err := env.account.ChangePassword(ctx, "secret1", "secret2"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if err := env.account.DeleteAccount(ctx); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestAccountService_ChangePassword(t *testing.T) {
	env := newAccountServiceTest(t)
	ctx := context.Background()
	env.signUpAndIn(t, "Jane", "jane@x.com", "secret1")

	if err := env.account.ChangePassword(ctx, "wrong", "newsecret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := env.account.ChangePassword(ctx, "secret1", "short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := env.account.ChangePassword(ctx, "", "newsecret"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := env.account.ChangePassword(ctx, "secret1", "newsecret"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	env.manager.SignOut(ctx)
	if res := env.manager.SignIn(ctx, "jane@x.com", "secret1"); res.Success {
		t.Fatalf("old password must stop working")
	}
	if res := env.manager.SignIn(ctx, "jane@x.com", "newsecret"); !res.Success {
		t.Fatalf("new password must work on both provider and directory: %s", res.Error)
	}
}

func TestAccountService_PreferencesDefaultsAndUpdate(t *testing.T) {
	env := newAccountServiceTest(t)
	ctx := context.Background()
	in := env.signUpAndIn(t, "Jane", "jane@x.com", "secret1")

	prefs, err := env.account.GetPreferences(ctx)
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if prefs.UserID != in.User.ID || prefs.ID == "" {
		t.Fatalf("unexpected preferences record %+v", prefs)
	}
	if !prefs.PushNotifications || prefs.Recommendations || prefs.DataSharing {
		t.Fatalf("unexpected defaults %+v", prefs)
	}
	if prefs.QuietHoursStart != "22:00" || prefs.QuietHoursEnd != "08:00" || prefs.NotificationSound != "default" {
		t.Fatalf("unexpected quiet hours defaults %+v", prefs)
	}

	off := false
	start := "23:30"
	updated, err := env.account.UpdatePreferences(ctx, PreferencesUpdate{PushNotifications: &off, QuietHoursStart: &start})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.PushNotifications || updated.QuietHoursStart != "23:30" || updated.ID != prefs.ID {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if !updated.EmailNotifications {
		t.Fatalf("untouched fields must keep their values")
	}

	bad := "25:99"
	if _, err := env.account.UpdatePreferences(ctx, PreferencesUpdate{QuietHoursEnd: &bad}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	reset, err := env.account.ResetPreferences(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !reset.PushNotifications || reset.QuietHoursStart != "22:00" || reset.ID != prefs.ID {
		t.Fatalf("unexpected reset result %+v", reset)
	}
}

func TestAccountService_ExportUserData(t *testing.T) {
	env := newAccountServiceTest(t)
	ctx := context.Background()
	in := env.signUpAndIn(t, "Jane", "jane@x.com", "secret1")
	_ = env.movies.Save(ctx, domain.SavedMovie{ID: "m1", UserID: in.User.ID, MovieID: 550, Title: "Fight Club"})

	export, err := env.account.ExportUserData(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if export.ExportVersion != "1.0" {
		t.Fatalf("unexpected version %q", export.ExportVersion)
	}
	if export.UserAccount.ID != in.User.ID || export.UserAccount.PasswordHash != "" {
		t.Fatalf("unexpected account %+v", export.UserAccount)
	}
	if export.Profile == nil || export.Profile.DisplayName != in.User.FullName {
		t.Fatalf("expected default profile in export, got %+v", export.Profile)
	}
	if export.Preferences == nil || len(export.SavedMovies) != 1 {
		t.Fatalf("expected preferences and one saved movie, got %+v", export)
	}
	if !export.ExportDate.Equal(env.clock.Now()) {
		t.Fatalf("unexpected export date %v", export.ExportDate)
	}
}

func TestAccountService_DeleteAccount(t *testing.T) {
	env := newAccountServiceTest(t)
	ctx := context.Background()
	in := env.signUpAndIn(t, "Jane", "jane@x.com", "secret1")
	if _, err := env.account.GetPreferences(ctx); err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if _, err := env.account.GetProfile(ctx); err != nil {
		t.Fatalf("get profile: %v", err)
	}
	_ = env.movies.Save(ctx, domain.SavedMovie{ID: "m1", UserID: in.User.ID, MovieID: 550, Title: "Fight Club"})

	if err := env.account.DeleteAccount(ctx); err != nil {
		t.Fatalf("delete account: %v", err)
	}
	if _, err := env.users.GetByID(ctx, in.User.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected directory record deleted")
	}
	if _, err := env.prefs.GetByUserID(ctx, in.User.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected preferences deleted")
	}
	if _, err := env.profiles.GetByUserID(ctx, in.User.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected profile deleted")
	}
	if movies, _ := env.movies.ListByUser(ctx, in.User.ID); len(movies) != 0 {
		t.Fatalf("expected saved movies deleted")
	}
	if env.sessions.count() != 0 {
		t.Fatalf("expected session records deleted")
	}
	if !env.cacheEmpty(t) {
		t.Fatalf("expected local sign out")
	}
	if res := env.manager.SignIn(ctx, "jane@x.com", "secret1"); res.Success || !errors.Is(res.Err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound after deletion, got %+v", res)
	}
}

func TestAccountService_ExpiredSessionCannotDeleteAccount(t *testing.T) {
	env := newAccountServiceTest(t)
	ctx := context.Background()
	in := env.signUpAndIn(t, "Jane", "jane@x.com", "secret1")

	env.clock.Set(in.Session.ExpiresAt.Add(time.Hour))
	if err := env.account.DeleteAccount(ctx); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := env.users.GetByID(ctx, in.User.ID); err != nil {
		t.Fatalf("directory record must survive, got %v", err)
	}
	if !env.cacheEmpty(t) {
		t.Fatalf("expected expired session signed out")
	}
}

func TestAccountService_RevokedSessionCannotExport(t *testing.T) {
	env := newAccountServiceTest(t)
	ctx := context.Background()
	in := env.signUpAndIn(t, "Jane", "jane@x.com", "secret1")

	if err := env.sessions.Delete(ctx, in.Session.ID); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	if _, err := env.account.ExportUserData(ctx); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := env.account.UpdateProfile(ctx, ProfileUpdate{}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestAccountService_Profile(t *testing.T) {
	env := newAccountServiceTest(t)
	ctx := context.Background()
	in := env.signUpAndIn(t, "Jane Doe", "jane@x.com", "secret1")

	profile, err := env.account.GetProfile(ctx)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.ID == "" || profile.UserID != in.User.ID || profile.DisplayName != in.User.FullName {
		t.Fatalf("unexpected default profile %+v", profile)
	}
	if profile.FavoriteGenres == nil || len(profile.FavoriteGenres) != 0 {
		t.Fatalf("expected empty genres, got %#v", profile.FavoriteGenres)
	}

	bio := "  film nerd "
	genres := []string{"Drama", " noir", "drama", ""}
	updated, err := env.account.UpdateProfile(ctx, ProfileUpdate{Bio: &bio, FavoriteGenres: &genres})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Bio != "film nerd" || updated.DisplayName != in.User.FullName || updated.ID != profile.ID {
		t.Fatalf("unexpected updated profile %+v", updated)
	}
	if len(updated.FavoriteGenres) != 2 || updated.FavoriteGenres[0] != "Drama" || updated.FavoriteGenres[1] != "noir" {
		t.Fatalf("expected deduplicated genres, got %v", updated.FavoriteGenres)
	}

	blank := "  "
	if _, err := env.account.UpdateProfile(ctx, ProfileUpdate{DisplayName: &blank}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAccountService_ClearUserData(t *testing.T) {
	env := newAccountServiceTest(t)
	ctx := context.Background()
	in := env.signUpAndIn(t, "Jane", "jane@x.com", "secret1")

	off := false
	if _, err := env.account.UpdatePreferences(ctx, PreferencesUpdate{PushNotifications: &off}); err != nil {
		t.Fatalf("update preferences: %v", err)
	}
	location := "Lisbon"
	before, err := env.account.UpdateProfile(ctx, ProfileUpdate{Location: &location})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	_ = env.movies.Save(ctx, domain.SavedMovie{ID: "m1", UserID: in.User.ID, MovieID: 550, Title: "Fight Club"})

	if err := env.account.ClearUserData(ctx); err != nil {
		t.Fatalf("clear user data: %v", err)
	}
	prefs, _ := env.prefs.GetByUserID(ctx, in.User.ID)
	if !prefs.PushNotifications {
		t.Fatalf("expected preferences reset")
	}
	profile, _ := env.profiles.GetByUserID(ctx, in.User.ID)
	if profile.Location != "" || profile.ID != before.ID || profile.DisplayName != in.User.FullName {
		t.Fatalf("expected profile reset keeping its id, got %+v", profile)
	}
	if movies, _ := env.movies.ListByUser(ctx, in.User.ID); len(movies) != 1 {
		t.Fatalf("saved movies must survive a data reset")
	}
	if env.cacheEmpty(t) {
		t.Fatalf("clearing data must not sign out")
	}
}
