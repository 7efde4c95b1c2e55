// Package jwt implements the token issuer: HS256 access/refresh token
// minting over a rotating signing secret, verification with a bounded
// previous-secret grace window, and jti-based revocation.
//
// The secret never leaves the manager. External code interacts only with
// Issue, Verify, and Revoke; rotation runs on an internal timer.
package jwt

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuzo151/dreamer-auth/kv"
)

var (
	// ErrExpired is returned for structurally valid tokens past their exp.
	ErrExpired = errors.New("jwt: token expired")
	// ErrInvalid is returned for malformed tokens, bad signatures, wrong
	// issuer/audience, or unknown key ids.
	ErrInvalid = errors.New("jwt: token invalid")
	// ErrRevoked is returned when the token's jti is blacklisted.
	ErrRevoked = errors.New("jwt: token revoked")
	// ErrNoActiveSecret indicates the manager has no signing secret; a
	// configuration fault, not a request fault.
	ErrNoActiveSecret = errors.New("jwt: no active signing secret")
)

// Token type claim values.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Config controls token lifetimes and secret rotation.
//
// RotationInterval must exceed AccessTTL: if a secret could be retired and
// its grace window closed while tokens signed under it were still live,
// valid tokens would be rejected prematurely. Validate enforces this.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	RotationInterval time.Duration
	// GraceWindow bounds how long the previous secret is still accepted
	// after a rotation. Defaults to AccessTTL, the smallest window that
	// cannot strand a live access token.
	GraceWindow time.Duration

	Issuer   string
	Audience string
	Leeway   time.Duration

	// ReplayGrace is how long after a rotation spend the old refresh
	// token is treated as a concurrent loser rather than a replay.
	// Defaults to 10 seconds.
	ReplayGrace time.Duration

	// InitialSecret seeds the first signing secret; random when empty.
	// Tests and multi-instance deployments that share secrets out of
	// band use this.
	InitialSecret []byte
}

// Validate checks the lifetime and rotation invariants.
func (c *Config) Validate() error {
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("jwt: access and refresh TTLs must be positive")
	}
	if c.RefreshTTL < c.AccessTTL {
		return errors.New("jwt: refresh TTL must not be shorter than access TTL")
	}
	if c.RotationInterval <= 0 {
		return errors.New("jwt: rotation interval must be positive")
	}
	if c.RotationInterval <= c.AccessTTL {
		return errors.New("jwt: rotation interval must exceed access TTL")
	}
	if c.GraceWindow < 0 {
		return errors.New("jwt: grace window must not be negative")
	}
	if c.Leeway < 0 || c.Leeway > 2*time.Minute {
		return errors.New("jwt: invalid leeway")
	}
	if c.ReplayGrace < 0 {
		return errors.New("jwt: replay grace must not be negative")
	}
	return nil
}

// Claims is the claim set carried by both token types. Subject is the
// principal id; ID is the jti used for revocation.
type Claims struct {
	Role      string `json:"role,omitempty"`
	DeviceID  string `json:"did,omitempty"`
	SessionID string `json:"sid,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is one access/refresh issuance.
type TokenPair struct {
	Access           string
	Refresh          string
	AccessJTI        string
	RefreshJTI       string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type signingKey struct {
	id     string
	secret []byte
}

const secretBytes = 32

// keyID is derived from the secret so instances seeded with the same
// secret agree on the kid header without coordination.
func keyID(secret []byte) string {
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:6])
}

func newSigningKey() (*signingKey, error) {
	secret := make([]byte, secretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return &signingKey{id: keyID(secret), secret: secret}, nil
}

// Manager mints and verifies tokens. Exactly one of {current, previous}
// secret verifies any given token, and previous only inside the grace
// window after the rotation that retired it.
type Manager struct {
	config Config
	store  kv.Store
	log    zerolog.Logger

	mu        sync.RWMutex
	current   *signingKey
	previous  *signingKey
	rotatedAt time.Time

	stop     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

// NewManager validates cfg and creates a manager with a fresh (or seeded)
// current secret. Rotation does not start until StartRotation.
func NewManager(cfg Config, store kv.Store, log zerolog.Logger) (*Manager, error) {
	if cfg.GraceWindow == 0 {
		cfg.GraceWindow = cfg.AccessTTL
	}
	if cfg.ReplayGrace == 0 {
		cfg.ReplayGrace = defaultReplayGrace
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var current *signingKey
	if len(cfg.InitialSecret) > 0 {
		current = &signingKey{id: keyID(cfg.InitialSecret), secret: cfg.InitialSecret}
	} else {
		key, err := newSigningKey()
		if err != nil {
			return nil, err
		}
		current = key
	}

	return &Manager{
		config:  cfg,
		store:   store,
		log:     log,
		current: current,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// StartRotation launches the background rotation timer. It never blocks
// request handling; Close stops it. Repeated calls are no-ops.
func (m *Manager) StartRotation() {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.config.RotationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := m.Rotate(); err != nil {
					m.log.Error().Err(err).Msg("signing secret rotation failed")
				}
			case <-m.stop:
				return
			}
		}
	}()
}

// Close stops the rotation timer. Safe to call on a manager whose
// rotation never started, such as a half-built engine being torn down.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	if m.started.Load() {
		<-m.done
	}
}

// Rotate retires the current secret to previous and installs a fresh
// current. Tokens signed under the retired secret keep verifying until the
// grace window closes; a second rotation drops them immediately.
func (m *Manager) Rotate() error {
	next, err := newSigningKey()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.previous = m.current
	m.current = next
	m.rotatedAt = time.Now()
	m.mu.Unlock()

	m.log.Info().Str("kid", next.id).Msg("signing secret rotated")
	return nil
}

// Issue mints an access/refresh pair for the principal. Each token carries
// its own fresh jti.
func (m *Manager) Issue(principalID, role, deviceID, sessionID string) (TokenPair, error) {
	m.mu.RLock()
	key := m.current
	m.mu.RUnlock()
	if key == nil {
		return TokenPair{}, ErrNoActiveSecret
	}

	now := time.Now()
	pair := TokenPair{
		AccessJTI:        uuid.NewString(),
		RefreshJTI:       uuid.NewString(),
		AccessExpiresAt:  now.Add(m.config.AccessTTL),
		RefreshExpiresAt: now.Add(m.config.RefreshTTL),
	}

	access, err := m.sign(key, Claims{
		Role:      role,
		DeviceID:  deviceID,
		SessionID: sessionID,
		TokenType: TypeAccess,
		RegisteredClaims: m.registered(principalID, pair.AccessJTI, now, pair.AccessExpiresAt),
	})
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := m.sign(key, Claims{
		Role:      role,
		DeviceID:  deviceID,
		SessionID: sessionID,
		TokenType: TypeRefresh,
		RegisteredClaims: m.registered(principalID, pair.RefreshJTI, now, pair.RefreshExpiresAt),
	})
	if err != nil {
		return TokenPair{}, err
	}

	pair.Access = access
	pair.Refresh = refresh
	return pair, nil
}

func (m *Manager) registered(sub, jti string, iat, exp time.Time) jwt.RegisteredClaims {
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(exp),
		Issuer:    m.config.Issuer,
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	return claims
}

func (m *Manager) sign(key *signingKey, claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = key.id
	return token.SignedString(key.secret)
}

// Verify parses and validates token: signature under the current secret or
// the previous secret inside the grace window, registered-claim checks,
// then the revocation blacklist. Blacklist lookups fail closed.
func (m *Manager) Verify(ctx context.Context, tokenStr string) (*Claims, error) {
	claims, err := m.parse(tokenStr)
	if err != nil {
		return nil, err
	}

	revoked, err := m.isRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevoked
	}
	return claims, nil
}

// VerifyRefresh is Verify for the rotation path. A blacklisted jti still
// returns the parsed claims alongside ErrRevoked so the caller can tell
// replay of a rotated token from other failures.
func (m *Manager) VerifyRefresh(ctx context.Context, tokenStr string) (*Claims, error) {
	claims, err := m.parse(tokenStr)
	if err != nil {
		return nil, err
	}

	revoked, err := m.isRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return claims, ErrRevoked
	}
	return claims, nil
}

func (m *Manager) parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		secret, ok := m.secretFor(kid)
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalid
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalid
	}
	if claims.TokenType != TypeAccess && claims.TokenType != TypeRefresh {
		return nil, ErrInvalid
	}
	return claims, nil
}

// secretFor resolves a key id to its secret. The previous secret resolves
// only while the grace window is open.
func (m *Manager) secretFor(kid string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current != nil && kid == m.current.id {
		return m.current.secret, true
	}
	if m.previous != nil && kid == m.previous.id {
		if time.Since(m.rotatedAt) <= m.config.GraceWindow {
			return m.previous.secret, true
		}
	}
	return nil, false
}
