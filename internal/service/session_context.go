package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"moviebox/internal/domain"
)

const defaultValidateInterval = 5 * time.Minute

var (
	ErrContextStarted = errors.New("session context already started")
	ErrContextClosed  = errors.New("session context closed")
)

type SessionPhase int

const (
	PhaseUninitialized SessionPhase = iota
	PhaseLoading
	PhaseAuthenticated
	PhaseUnauthenticated
)

func (p SessionPhase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseUnauthenticated:
		return "unauthenticated"
	default:
		return "uninitialized"
	}
}

// SessionState es una copia inmutable del estado; la UI no debe mostrar contenido protegido con IsLoading.
type SessionState struct {
	Phase      SessionPhase
	User       *domain.User
	Sessions   []domain.Session
	IsLoggedIn bool
	IsLoading  bool
}

// Authenticator es la parte del SessionManager que usa el contexto.
type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
	RefreshAuth(ctx context.Context) AuthResult
	SignOut(ctx context.Context)
	GetCurrentUser(ctx context.Context) *domain.User
	GetUserSessions(ctx context.Context) []domain.Session
}

type SessionContextConfig struct {
	ValidateInterval time.Duration
}

// SessionContext mantiene el estado de sesion del proceso y revalida periodicamente.
type SessionContext struct {
	logger   *zap.Logger
	auth     Authenticator
	interval time.Duration

	mu      sync.RWMutex
	state   SessionState
	subs    map[int]chan SessionState
	nextSub int
	closed  bool

	runCtx    context.Context
	cancel    context.CancelFunc
	started   bool
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewSessionContext(logger *zap.Logger, auth Authenticator, cfg SessionContextConfig) *SessionContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ValidateInterval <= 0 {
		cfg.ValidateInterval = defaultValidateInterval
	}
	return &SessionContext{
		logger:   logger,
		auth:     auth,
		interval: cfg.ValidateInterval,
		subs:     make(map[int]chan SessionState),
	}
}

// Start inicializa el estado y arranca el ticker de validacion hasta Close o la cancelacion de ctx.
func (s *SessionContext) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrContextClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrContextStarted
	}
	s.started = true
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.initialize(s.runCtx)

	s.wg.Add(1)
	go s.watch(s.runCtx)
	return nil
}

func (s *SessionContext) initialize(ctx context.Context) {
	s.setState(SessionState{Phase: PhaseLoading, IsLoading: true})

	if !s.auth.IsAuthenticated(ctx) {
		s.setState(SessionState{Phase: PhaseUnauthenticated})
		return
	}
	user := s.auth.GetCurrentUser(ctx)
	if user == nil {
		s.logger.Warn("authenticated without cached user, signing out")
		s.Logout(ctx)
		return
	}
	sessions := s.auth.GetUserSessions(ctx)
	s.setState(authenticatedState(user, sessions))
}

func (s *SessionContext) watch(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.validate(ctx)
		}
	}
}

// validate solo actua mientras hay sesion; el sign-out ya lo hizo el manager.
func (s *SessionContext) validate(ctx context.Context) {
	if s.State().Phase != PhaseAuthenticated {
		return
	}
	if s.auth.IsAuthenticated(ctx) {
		return
	}
	if ctx.Err() != nil {
		return
	}
	s.logger.Info("session no longer valid")
	s.setState(SessionState{Phase: PhaseUnauthenticated})
}

// Login pasa a Authenticated con un usuario ya obtenido y recarga las sesiones en segundo plano.
func (s *SessionContext) Login(user domain.User) {
	u := user
	s.setState(authenticatedState(&u, nil))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.LoadSessions(ctx)
	}()
}

// Logout siempre termina en Unauthenticated.
func (s *SessionContext) Logout(ctx context.Context) {
	s.auth.SignOut(ctx)
	s.setState(SessionState{Phase: PhaseUnauthenticated})
}

func (s *SessionContext) RefreshSession(ctx context.Context) AuthResult {
	res := s.auth.RefreshAuth(ctx)
	if errors.Is(res.Err, errCallerCanceled) {
		return res
	}
	if !res.Success {
		s.setState(SessionState{Phase: PhaseUnauthenticated})
		return res
	}
	sessions := s.auth.GetUserSessions(ctx)
	s.setState(authenticatedState(res.User, sessions))
	return res
}

// LoadSessions recarga la lista de sesiones si sigue habiendo usuario.
func (s *SessionContext) LoadSessions(ctx context.Context) []domain.Session {
	if s.State().User == nil {
		return []domain.Session{}
	}
	sessions := s.auth.GetUserSessions(ctx)

	s.mu.Lock()
	if s.state.Phase != PhaseAuthenticated {
		s.mu.Unlock()
		return sessions
	}
	s.state.Sessions = sessions
	s.publishLocked()
	s.mu.Unlock()
	return sessions
}

func (s *SessionContext) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe entrega el ultimo estado tras cada cambio; los estados intermedios pueden perderse.
func (s *SessionContext) Subscribe() (<-chan SessionState, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan SessionState, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Close detiene el ticker, espera a las goroutines y cierra los suscriptores.
func (s *SessionContext) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		s.wg.Wait()

		s.mu.Lock()
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
		s.mu.Unlock()
	})
}

func (s *SessionContext) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.publishLocked()
}

// publishLocked reemplaza el valor pendiente de cada suscriptor por el estado actual.
func (s *SessionContext) publishLocked() {
	snapshot := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

func (s *SessionContext) snapshotLocked() SessionState {
	out := s.state
	if s.state.User != nil {
		u := *s.state.User
		out.User = &u
	}
	if s.state.Sessions != nil {
		out.Sessions = append([]domain.Session(nil), s.state.Sessions...)
	}
	out.IsLoggedIn = out.Phase == PhaseAuthenticated && out.User != nil
	out.IsLoading = out.Phase == PhaseLoading
	return out
}

func authenticatedState(user *domain.User, sessions []domain.Session) SessionState {
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return SessionState{Phase: PhaseAuthenticated, User: user, Sessions: sessions}
}
