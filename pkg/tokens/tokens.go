package tokens

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultSkew bounds how far in the future an iat may be. It never extends exp.
const DefaultSkew = 5 * time.Second

type RevocationStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Skew          time.Duration
}

func (c Config) validate() error {
	switch {
	case len(c.AccessSecret) == 0 || len(c.RefreshSecret) == 0:
		return fmt.Errorf("%w: signing secrets are required", ErrInvalidConfig)
	case bytes.Equal(c.AccessSecret, c.RefreshSecret):
		return fmt.Errorf("%w: access and refresh secrets must differ", ErrInvalidConfig)
	case c.AccessTTL < time.Second:
		return fmt.Errorf("%w: access ttl must be at least 1s", ErrInvalidConfig)
	case c.RefreshTTL <= c.AccessTTL:
		return fmt.Errorf("%w: refresh ttl must exceed access ttl", ErrInvalidConfig)
	case c.Skew < 0:
		return fmt.Errorf("%w: negative skew", ErrInvalidConfig)
	}
	return nil
}

type Service struct {
	cfg   Config
	store RevocationStore
	now   func() time.Time
	newID func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(cfg Config, store RevocationStore, opts ...Option) (*Service, error) {
	if cfg.Skew == 0 {
		cfg.Skew = DefaultSkew
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: revocation store is required", ErrInvalidConfig)
	}

	s := &Service{
		cfg:   cfg,
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) AccessTTL() time.Duration  { return s.cfg.AccessTTL }
func (s *Service) RefreshTTL() time.Duration { return s.cfg.RefreshTTL }

func (s *Service) IssueAccessToken(p Principal) (string, *Claims, error) {
	return s.issue(p, KindAccess)
}

func (s *Service) IssueRefreshToken(p Principal) (string, *Claims, error) {
	return s.issue(p, KindRefresh)
}

func (s *Service) issue(p Principal, kind Kind) (string, *Claims, error) {
	if p.ID == "" {
		return "", nil, errors.New("tokens: principal id is required")
	}

	now := s.now()
	claims := &Claims{
		Username: p.Username,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttlFor(kind))),
			ID:        s.newID(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretFor(kind))
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, claims, nil
}

// Validate checks signature, expiry, iat skew, kind and revocation, in that
// order. Any store error rejects the token.
func (s *Service) Validate(ctx context.Context, raw string, expected Kind) (*Claims, error) {
	claims, err := s.parse(raw, expected, true)
	if err != nil {
		return nil, err
	}
	if claims.Kind != expected {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrTokenKindMismatch, claims.Kind, expected)
	}

	revoked, err := s.store.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRevocationUnavailable, err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Refresh mints a new access token for the refresh token's subject. The
// refresh token itself stays valid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, *Claims, error) {
	claims, err := s.Validate(ctx, refreshToken, KindRefresh)
	if err != nil {
		return "", nil, err
	}
	return s.IssueAccessToken(Principal{ID: claims.Subject, Username: claims.Username})
}

// Revoke blacklists the token's jti until its natural expiry. Expired tokens
// are a no-op.
func (s *Service) Revoke(ctx context.Context, raw string, kind Kind) error {
	claims, err := s.revocable(raw, kind)
	if err != nil {
		return err
	}
	return s.revoke(ctx, claims)
}

// RevokeSession revokes the access and refresh token of one session. Both
// are parsed before anything is revoked, so a bad token leaves the store
// untouched. Empty tokens are skipped; two tokens must share a subject.
func (s *Service) RevokeSession(ctx context.Context, access, refresh string) error {
	var pending []*Claims
	for _, t := range []struct {
		raw  string
		kind Kind
	}{
		{access, KindAccess},
		{refresh, KindRefresh},
	} {
		if t.raw == "" {
			continue
		}
		claims, err := s.revocable(t.raw, t.kind)
		if err != nil {
			return err
		}
		pending = append(pending, claims)
	}
	if len(pending) == 2 && pending[0].Subject != pending[1].Subject {
		return fmt.Errorf("%w: tokens belong to different subjects", ErrTokenMalformed)
	}

	for _, c := range pending {
		if err := s.revoke(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) revocable(raw string, kind Kind) (*Claims, error) {
	claims, err := s.parse(raw, kind, false)
	if err != nil {
		return nil, err
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrTokenMalformed)
	}
	return claims, nil
}

func (s *Service) revoke(ctx context.Context, claims *Claims) error {
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.store.Revoke(ctx, claims.ID, ttl)
}

func (s *Service) parse(raw string, kind Kind, checkTime bool) (*Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenMalformed)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if checkTime {
		opts = append(opts, jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	var claims Claims
	secret := s.secretFor(kind)
	if _, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...); err != nil {
		return nil, classify(err)
	}

	if claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", ErrTokenMalformed)
	}
	if checkTime {
		if claims.IssuedAt == nil {
			return nil, fmt.Errorf("%w: missing iat", ErrTokenMalformed)
		}
		if claims.IssuedAt.Time.After(s.now().Add(s.cfg.Skew)) {
			return nil, fmt.Errorf("%w: issued in the future", ErrTokenMalformed)
		}
	}
	return &claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrTokenSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}

func (s *Service) secretFor(kind Kind) []byte {
	if kind == KindRefresh {
		return s.cfg.RefreshSecret
	}
	return s.cfg.AccessSecret
}

func (s *Service) ttlFor(kind Kind) time.Duration {
	if kind == KindRefresh {
		return s.cfg.RefreshTTL
	}
	return s.cfg.AccessTTL
}
