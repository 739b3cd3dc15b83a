package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"moviebox/internal/domain"
	"moviebox/internal/service"
)

type app struct {
	logger   *zap.Logger
	in       *prompter
	out      io.Writer
	manager  *service.SessionManager
	accounts *service.AccountService
	saved    *service.SavedMoviesService
	interval time.Duration
}

var errUsage = errors.New("invalid arguments, run moviebox without arguments for help")

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "signup":
		return a.signUp(ctx, args)
	case "login":
		return a.login(ctx, args)
	case "logout":
		a.manager.SignOut(ctx)
		fmt.Fprintln(a.out, "Signed out.")
		return nil
	case "status":
		if a.manager.IsAuthenticated(ctx) {
			fmt.Fprintln(a.out, "authenticated")
			return nil
		}
		fmt.Fprintln(a.out, "not authenticated")
		return nil
	case "whoami":
		return a.whoami(ctx)
	case "refresh":
		return a.refresh(ctx)
	case "sessions":
		return a.sessions(ctx)
	case "revoke":
		return a.revoke(ctx, args)
	case "cleanup":
		a.manager.CleanupExpiredSessions(ctx)
		fmt.Fprintln(a.out, "Expired sessions purged.")
		return nil
	case "passwd":
		return a.changePassword(ctx)
	case "prefs":
		return a.preferences(ctx, args)
	case "profile":
		return a.profile(ctx, args)
	case "clear-data":
		return a.clearData(ctx)
	case "save":
		return a.save(ctx, args)
	case "unsave":
		return a.unsave(ctx, args)
	case "saved":
		return a.listSaved(ctx)
	case "export":
		return a.export(ctx)
	case "delete-account":
		return a.deleteAccount(ctx)
	case "watch":
		return a.watch(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) signUp(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	fullName := strings.Join(args[:len(args)-1], " ")
	email := args[len(args)-1]
	password, err := a.in.ask("Password: ")
	if err != nil {
		return err
	}
	res := a.manager.SignUp(ctx, fullName, email, password)
	if !res.Success {
		return errors.New(res.Error)
	}
	fmt.Fprintf(a.out, "Account created for %s. Run `moviebox login %s` to sign in.\n", res.User.Email, res.User.Email)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	password, err := a.in.ask("Password: ")
	if err != nil {
		return err
	}
	res := a.manager.SignIn(ctx, args[0], password)
	if !res.Success {
		return errors.New(res.Error)
	}
	fmt.Fprintf(a.out, "Welcome back, %s. Session expires %s.\n", res.User.FullName, res.Session.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	user := a.manager.GetCurrentUser(ctx)
	if user == nil {
		return service.ErrUnauthenticated
	}
	fmt.Fprintf(a.out, "%s <%s>\nid: %s\nmember since: %s\n", user.FullName, user.Email, user.ID, user.CreatedAt.Local().Format("2006-01-02"))
	return nil
}

func (a *app) refresh(ctx context.Context) error {
	res := a.manager.RefreshAuth(ctx)
	if !res.Success {
		return errors.New(res.Error)
	}
	fmt.Fprintf(a.out, "Session refreshed for %s.\n", res.User.Email)
	return nil
}

func (a *app) sessions(ctx context.Context) error {
	list := a.manager.GetUserSessions(ctx)
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No active sessions.")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tEXPIRES")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.CreatedAt.Local().Format(time.DateTime), s.ExpiresAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func (a *app) revoke(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if !a.manager.RevokeSession(ctx, args[0]) {
		return fmt.Errorf("could not revoke session %s", args[0])
	}
	fmt.Fprintln(a.out, "Session revoked.")
	return nil
}

func (a *app) changePassword(ctx context.Context) error {
	current, err := a.in.ask("Current password: ")
	if err != nil {
		return err
	}
	next, err := a.in.ask("New password: ")
	if err != nil {
		return err
	}
	confirm, err := a.in.ask("Confirm new password: ")
	if err != nil {
		return err
	}
	if next != confirm {
		return errors.New("passwords do not match")
	}
	if err := a.accounts.ChangePassword(ctx, current, next); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password updated.")
	return nil
}

func (a *app) preferences(ctx context.Context, args []string) error {
	var (
		prefs domain.Preferences
		err   error
	)
	switch {
	case len(args) == 1 && args[0] == "reset":
		prefs, err = a.accounts.ResetPreferences(ctx)
	case len(args) > 0:
		update, perr := parsePreferences(args)
		if perr != nil {
			return perr
		}
		prefs, err = a.accounts.UpdatePreferences(ctx, update)
	default:
		prefs, err = a.accounts.GetPreferences(ctx)
	}
	if err != nil {
		return err
	}
	return printJSON(a.out, prefs)
}

func (a *app) profile(ctx context.Context, args []string) error {
	var (
		profile domain.Profile
		err     error
	)
	if len(args) > 0 {
		update, perr := parseProfile(args)
		if perr != nil {
			return perr
		}
		profile, err = a.accounts.UpdateProfile(ctx, update)
	} else {
		profile, err = a.accounts.GetProfile(ctx)
	}
	if err != nil {
		return err
	}
	return printJSON(a.out, profile)
}

func (a *app) clearData(ctx context.Context) error {
	if !a.in.confirm("This resets your preferences and profile. Saved movies are kept. Continue?") {
		fmt.Fprintln(a.out, "Aborted.")
		return nil
	}
	if err := a.accounts.ClearUserData(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "preferences and profile reset")
	return nil
}

func (a *app) save(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errUsage
	}
	movieID, err := parseMovieID(args[0])
	if err != nil {
		return err
	}
	poster := ""
	if len(args) == 3 {
		poster = args[2]
	}
	if err := a.saved.Refresh(ctx); err != nil {
		return err
	}
	if err := a.saved.Save(ctx, movieID, args[1], poster); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved %q (%d saved).\n", args[1], a.saved.Count())
	return nil
}

func (a *app) unsave(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	movieID, err := parseMovieID(args[0])
	if err != nil {
		return err
	}
	if err := a.saved.Refresh(ctx); err != nil {
		return err
	}
	if !a.saved.IsSaved(movieID) {
		fmt.Fprintln(a.out, "Movie was not saved.")
		return nil
	}
	if err := a.saved.Unsave(ctx, movieID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Removed (%d saved).\n", a.saved.Count())
	return nil
}

func (a *app) listSaved(ctx context.Context) error {
	if err := a.saved.Refresh(ctx); err != nil {
		return err
	}
	list := a.saved.List()
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No saved movies.")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MOVIE\tTITLE\tSAVED")
	for _, m := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\n", m.MovieID, m.Title, m.CreatedAt.Local().Format("2006-01-02"))
	}
	return w.Flush()
}

func (a *app) export(ctx context.Context) error {
	data, err := a.accounts.ExportUserData(ctx)
	if err != nil {
		return err
	}
	return printJSON(a.out, data)
}

func (a *app) deleteAccount(ctx context.Context) error {
	if !a.in.confirm("This deletes your profile, preferences, saved movies and sessions. Continue?") {
		fmt.Fprintln(a.out, "Aborted.")
		return nil
	}
	if err := a.accounts.DeleteAccount(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Account data deleted.")
	return nil
}

// watch mantiene un SessionContext vivo e imprime cada cambio de fase hasta la senal de salida.
func (a *app) watch(ctx context.Context) error {
	sc := service.NewSessionContext(a.logger, a.manager, service.SessionContextConfig{ValidateInterval: a.interval})
	defer sc.Close()

	updates, unsubscribe := sc.Subscribe()
	defer unsubscribe()
	if err := sc.Start(ctx); err != nil {
		return err
	}
	printState(a.out, sc.State())

	last := sc.State().Phase
	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-updates:
			if !ok {
				return nil
			}
			if st.Phase == last {
				continue
			}
			last = st.Phase
			printState(a.out, st)
			if st.Phase == service.PhaseUnauthenticated {
				return service.ErrUnauthenticated
			}
		}
	}
}

func printState(w io.Writer, st service.SessionState) {
	if st.User != nil {
		fmt.Fprintf(w, "[%s] %s %s (%d sessions)\n", time.Now().Format(time.TimeOnly), st.Phase, st.User.Email, len(st.Sessions))
		return
	}
	fmt.Fprintf(w, "[%s] %s\n", time.Now().Format(time.TimeOnly), st.Phase)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseMovieID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid movie id %q", raw)
	}
	return id, nil
}

// parsePreferences traduce pares key=value a un update parcial.
func parsePreferences(args []string) (service.PreferencesUpdate, error) {
	var update service.PreferencesUpdate
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return service.PreferencesUpdate{}, fmt.Errorf("expected key=value, got %q", arg)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if target := boolField(&update, key); target != nil {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return service.PreferencesUpdate{}, fmt.Errorf("%s: expected true or false", key)
			}
			*target = &b
			continue
		}
		switch key {
		case "quiet_hours_start":
			update.QuietHoursStart = &value
		case "quiet_hours_end":
			update.QuietHoursEnd = &value
		case "notification_sound":
			update.NotificationSound = &value
		default:
			return service.PreferencesUpdate{}, fmt.Errorf("unknown preference %q", key)
		}
	}
	return update, nil
}

// parseProfile acepta display_name, bio, avatar_url, location y favorite_genres (separados por coma).
func parseProfile(args []string) (service.ProfileUpdate, error) {
	var update service.ProfileUpdate
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return service.ProfileUpdate{}, fmt.Errorf("expected key=value, got %q", arg)
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "display_name":
			update.DisplayName = &value
		case "bio":
			update.Bio = &value
		case "avatar_url":
			update.AvatarURL = &value
		case "location":
			update.Location = &value
		case "favorite_genres":
			genres := []string{}
			if value != "" {
				genres = strings.Split(value, ",")
			}
			update.FavoriteGenres = &genres
		default:
			return service.ProfileUpdate{}, fmt.Errorf("unknown profile field %q", key)
		}
	}
	return update, nil
}

func boolField(u *service.PreferencesUpdate, key string) **bool {
	switch key {
	case "push_notifications":
		return &u.PushNotifications
	case "email_notifications":
		return &u.EmailNotifications
	case "movie_updates":
		return &u.MovieUpdates
	case "recommendations":
		return &u.Recommendations
	case "social_activity":
		return &u.SocialActivity
	case "profile_visible":
		return &u.ProfileVisible
	case "analytics_enabled":
		return &u.AnalyticsEnabled
	case "location_tracking":
		return &u.LocationTracking
	case "data_sharing":
		return &u.DataSharing
	default:
		return nil
	}
}
