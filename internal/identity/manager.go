package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/calculator/internal/metrics"
	"github.com/Skotchmaster/calculator/internal/models"
	"github.com/Skotchmaster/calculator/internal/mykafka"
	"github.com/Skotchmaster/calculator/internal/repo"
	"github.com/Skotchmaster/calculator/pkg/hash"
	"github.com/Skotchmaster/calculator/pkg/logging"
	"github.com/Skotchmaster/calculator/pkg/tokens"
)

type Repository interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	IdentityTaken(ctx context.Context, username, email string) (usernameTaken, emailTaken bool, err error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Manager ties the password hasher, token service and user repository
// together.
type Manager struct {
	repo    Repository
	hasher  *hash.Hasher
	tokens  *tokens.Service
	events  mykafka.Publisher
	metrics *metrics.Metrics
	now     func() time.Time

	// compared against when the username is unknown so both paths cost one bcrypt run
	dummyDigest string
}

type Option func(*Manager)

func WithEvents(p mykafka.Publisher) Option {
	return func(m *Manager) { m.events = p }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(r Repository, h *hash.Hasher, ts *tokens.Service, opts ...Option) (*Manager, error) {
	if r == nil || h == nil || ts == nil {
		return nil, errors.New("identity: repository, hasher and token service are required")
	}

	dummy, err := h.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("identity: dummy digest: %w", err)
	}

	m := &Manager{
		repo:        r,
		hasher:      h,
		tokens:      ts,
		events:      mykafka.Noop{},
		now:         func() time.Time { return time.Now().UTC() },
		dummyDigest: dummy,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "identity.register")

	req.normalize()
	if err := req.Validate(); err != nil {
		l.Warn("register_error", "status", 400, "reason", "validation", "error", err)
		return nil, err
	}

	usernameTaken, emailTaken, err := m.repo.IdentityTaken(ctx, req.Username, req.Email)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "uniqueness check failed", "error", err)
		return nil, fmt.Errorf("identity: uniqueness check: %w", err)
	}
	if usernameTaken || emailTaken {
		l.Warn("register_error", "status", 409, "reason", "duplicate", "username_taken", usernameTaken, "email_taken", emailTaken)
		return nil, ErrDuplicateIdentity
	}

	digest, err := m.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, hash.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	now := m.now()
	user := &models.User{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: digest,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		IsActive:     true,
		IsVerified:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			l.Warn("register_error", "status", 409, "reason", "duplicate on insert")
			return nil, ErrDuplicateIdentity
		}
		l.Error("register_error", "status", 500, "reason", "insert failed", "error", err)
		return nil, err
	}

	m.publish(ctx, mykafka.UserEvent{Type: mykafka.EventUserRegistered, UserID: user.ID.String(), Username: user.Username, At: now})
	l.Info("user_registered", "user_id", user.ID)
	return user, nil
}

func (m *Manager) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "identity.login")

	user, err := m.repo.UserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			l.Error("login_error", "status", 500, "error", err)
			return nil, fmt.Errorf("identity: lookup user: %w", err)
		}
		_, _ = m.hasher.Verify(password, m.dummyDigest)
		return nil, m.loginFailed(l, "unknown_user", nil)
	}

	ok, err := m.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, m.loginFailed(l, "corrupt_credential", err)
	}
	if !ok {
		return nil, m.loginFailed(l, "wrong_password", nil)
	}
	if !user.IsActive {
		return nil, m.loginFailed(l, "inactive_user", nil)
	}

	principal := tokens.Principal{ID: user.ID.String(), Username: user.Username}
	access, accessClaims, err := m.tokens.IssueAccessToken(principal)
	if err != nil {
		l.Error("login_error", "status", 500, "reason", "issue access token", "error", err)
		return nil, err
	}
	refresh, refreshClaims, err := m.tokens.IssueRefreshToken(principal)
	if err != nil {
		l.Error("login_error", "status", 500, "reason", "issue refresh token", "error", err)
		return nil, err
	}
	m.metrics.TokenIssued(string(tokens.KindAccess))
	m.metrics.TokenIssued(string(tokens.KindRefresh))

	now := m.now()
	if err := m.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		l.Error("login_error", "status", 500, "reason", "update last_login", "error", err)
		return nil, fmt.Errorf("identity: update last login: %w", err)
	}
	user.LastLogin = &now

	m.publish(ctx, mykafka.UserEvent{Type: mykafka.EventUserLoggedIn, UserID: user.ID.String(), Username: user.Username, At: now})
	l.Info("user_logged_in", "user_id", user.ID)

	return newTokenPair(user, access, refresh, accessClaims.ExpiresAt.Time, refreshClaims.ExpiresAt.Time), nil
}

// loginFailed records the specific reason internally and hands back the one
// error callers see.
func (m *Manager) loginFailed(l *slog.Logger, reason string, cause error) error {
	m.metrics.AuthFailure(reason)
	if cause != nil {
		l.Warn("login_failed", "status", 401, "reason", reason, "error", cause)
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, cause)
	}
	l.Warn("login_failed", "status", 401, "reason", reason)
	return ErrInvalidCredentials
}

// Logout revokes the session's tokens until their natural expiry. Either
// token may be empty; nothing is revoked unless every given token parses.
func (m *Manager) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := m.tokens.RevokeSession(ctx, accessToken, refreshToken); err != nil {
		l := logging.FromContext(ctx).With("svc", "identity.logout")
		l.Warn("logout_error", "reason", tokens.Reason(err), "error", err)
		return err
	}
	return nil
}

// Refresh mints a new access token from a valid refresh token.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*AccessToken, error) {
	access, claims, err := m.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		m.rejected(ctx, "identity.refresh", err)
		return nil, err
	}
	m.metrics.TokenIssued(string(tokens.KindAccess))
	return &AccessToken{AccessToken: access, TokenType: "bearer", ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Authenticate validates an access token for a request.
func (m *Manager) Authenticate(ctx context.Context, accessToken string) (*tokens.Claims, error) {
	claims, err := m.tokens.Validate(ctx, accessToken, tokens.KindAccess)
	if err != nil {
		m.rejected(ctx, "identity.authenticate", err)
		return nil, err
	}
	return claims, nil
}

func (m *Manager) Me(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := m.repo.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, tokens.ErrUnauthenticated
		}
		return nil, err
	}
	return user, nil
}

func (m *Manager) rejected(ctx context.Context, svc string, err error) {
	reason := tokens.Reason(err)
	m.metrics.AuthFailure(reason)
	logging.FromContext(ctx).With("svc", svc).Warn("token_rejected", "status", 401, "reason", reason)
}

func (m *Manager) publish(ctx context.Context, ev mykafka.UserEvent) {
	if err := m.events.PublishEvent(ctx, mykafka.TopicUserEvents, ev.UserID, ev); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "topic", mykafka.TopicUserEvents, "type", ev.Type, "error", err)
	}
}
