// Package session keeps the backend tokens and profile of signed-in users,
// keyed by a cookie, and refreshes access tokens once per session at a time.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/model"
)

var sessionLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	sessionLogger = l
}

var ErrNoRefreshToken = errors.New("session: no refresh token")

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refresh string) (string, error)
}

type Manager struct {
	store      Storage
	refresher  Refresher
	client     *api.Client
	cookieName string
	maxAge     time.Duration
	secure     bool

	refreshes singleflight.Group
}

type Options struct {
	CookieName string
	MaxAge     time.Duration
	// Marks the cookie Secure.
	Secure bool
}

// NewManager wires the storage to the backend client. client also serves as
// the Refresher.
func NewManager(store Storage, client *api.Client, opts Options) *Manager {
	return &Manager{
		store:      store,
		refresher:  client,
		client:     client,
		cookieName: opts.CookieName,
		maxAge:     opts.MaxAge,
		secure:     opts.Secure,
	}
}

// Session is a handle on one visitor's stored values. Anonymous visitors get
// a handle with an empty ID.
type Session struct {
	ID string
	m  *Manager

	mu sync.Mutex
	// Access token this handle last read, used to tell whether a 401 is stale.
	lastToken string
	user      *model.User
	userRead  bool
}

// Get returns the session named by the request cookie.
func (m *Manager) Get(r *http.Request) *Session {
	s := &Session{m: m}
	if c, err := r.Cookie(m.cookieName); err == nil && c.Value != "" {
		if _, err := uuid.Parse(c.Value); err == nil {
			s.ID = c.Value
		}
	}
	return s
}

func (s *Session) Anonymous() bool {
	return s.ID == ""
}

// API returns a backend client that authenticates as this session.
func (s *Session) API() *api.Client {
	return s.m.client.WithTokens(s)
}

func (s *Session) get(ctx context.Context, key string) (string, error) {
	if s.ID == "" {
		return "", ErrNoValue
	}
	return s.m.store.Get(ctx, s.ID, key)
}

// Token returns the stored access token, or "" when signed out.
func (s *Session) Token(ctx context.Context) (string, error) {
	t, err := s.get(ctx, KeyToken)
	if errors.Is(err, ErrNoValue) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.lastToken = t
	s.mu.Unlock()
	return t, nil
}

// Refresh obtains a new access token. Concurrent refreshes of one session share
// a single backend call, and a caller whose token was already replaced gets the
// replacement without another call. A rejected refresh token clears the session.
func (s *Session) Refresh(ctx context.Context) (string, error) {
	if s.ID == "" {
		return "", ErrNoRefreshToken
	}
	s.mu.Lock()
	stale := s.lastToken
	s.mu.Unlock()

	v, err, shared := s.m.refreshes.Do(s.ID, func() (any, error) {
		// One caller's cancellation must not fail the others
		ctx := context.WithoutCancel(ctx)

		if cur, err := s.m.store.Get(ctx, s.ID, KeyToken); err == nil && cur != stale {
			return cur, nil
		}

		rt, err := s.m.store.Get(ctx, s.ID, KeyRefreshToken)
		if err != nil {
			return nil, ErrNoRefreshToken
		}

		access, err := s.m.refresher.Refresh(ctx, rt)
		if err != nil {
			sessionLogger.Info().Err(err).Str("session", s.ID).Msg("Refresh token rejected, clearing session")
			if cerr := s.m.store.Clear(ctx, s.ID); cerr != nil {
				sessionLogger.Error().Err(cerr).Str("session", s.ID).Msg("Failed to clear session")
			}
			return nil, err
		}
		if err := s.m.store.Set(ctx, s.ID, KeyToken, access); err != nil {
			return nil, err
		}
		sessionLogger.Debug().Str("session", s.ID).Msg("Access token refreshed")
		return access, nil
	})
	if err != nil {
		return "", err
	}

	token := v.(string)
	s.mu.Lock()
	s.lastToken = token
	s.mu.Unlock()
	if shared {
		sessionLogger.Trace().Str("session", s.ID).Msg("Joined an in-flight refresh")
	}
	return token, nil
}

// User returns the cached profile, or nil when signed out.
func (s *Session) User(ctx context.Context) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userRead {
		return s.user
	}
	s.userRead = true

	raw, err := s.get(ctx, KeyUser)
	if err != nil {
		return nil
	}
	var u model.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		sessionLogger.Warn().Err(err).Str("session", s.ID).Msg("Discarding unreadable profile")
		return nil
	}
	s.user = &u
	return s.user
}

// SetUser replaces the cached profile, e.g. after a profile update.
func (s *Session) SetUser(ctx context.Context, u *model.User) error {
	if s.ID == "" {
		return ErrNoValue
	}
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := s.m.store.Set(ctx, s.ID, KeyUser, string(b)); err != nil {
		return err
	}
	s.mu.Lock()
	s.user, s.userRead = u, true
	s.mu.Unlock()
	return nil
}

// SignIn stores a login response under a fresh session id and sets the cookie.
func (s *Session) SignIn(ctx context.Context, w http.ResponseWriter, lr *model.LoginResponse) error {
	if s.ID != "" {
		if err := s.m.store.Clear(ctx, s.ID); err != nil {
			return err
		}
	}
	s.ID = uuid.NewString()

	for k, v := range map[string]string{KeyToken: lr.Access, KeyRefreshToken: lr.Refresh} {
		if err := s.m.store.Set(ctx, s.ID, k, v); err != nil {
			return fmt.Errorf("failed to store session: %w", err)
		}
	}
	u := lr.User()
	if err := s.SetUser(ctx, &u); err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}
	s.mu.Lock()
	s.lastToken = lr.Access
	s.mu.Unlock()

	http.SetCookie(w, s.m.cookie(s.ID, int(s.m.maxAge.Seconds())))
	return nil
}

// SignOut forgets the session locally and expires the cookie.
func (s *Session) SignOut(ctx context.Context, w http.ResponseWriter) error {
	var err error
	if s.ID != "" {
		err = s.m.store.Clear(ctx, s.ID)
	}
	s.ID = ""
	s.mu.Lock()
	s.user, s.userRead, s.lastToken = nil, true, ""
	s.mu.Unlock()

	http.SetCookie(w, s.m.cookie("", -1))
	return err
}

// RefreshToken returns the stored refresh token, or "".
func (s *Session) RefreshToken(ctx context.Context) string {
	rt, _ := s.get(ctx, KeyRefreshToken)
	return rt
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// RunJanitor purges idle sessions every interval until ctx is done. It is a
// no-op for storages that cannot purge.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	p, ok := m.store.(Purger)
	if !ok || m.maxAge <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Purge(ctx, time.Now().Add(-m.maxAge))
			if err != nil {
				sessionLogger.Error().Err(err).Msg("Failed to purge sessions")
				continue
			}
			if n > 0 {
				sessionLogger.Info().Int64("rows", n).Msg("Purged idle sessions")
			}
		}
	}
}
