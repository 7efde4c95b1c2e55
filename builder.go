package dreamerauth

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cuzo151/dreamer-auth/internal/guard"
	"github.com/cuzo151/dreamer-auth/internal/rate"
	"github.com/cuzo151/dreamer-auth/jwt"
	"github.com/cuzo151/dreamer-auth/kv"
	"github.com/cuzo151/dreamer-auth/mfa"
	"github.com/cuzo151/dreamer-auth/password"
	"github.com/cuzo151/dreamer-auth/permission"
	"github.com/cuzo151/dreamer-auth/session"
)

// Builder assembles an Engine. Every With method returns the builder for
// chaining; Build may be called once.
type Builder struct {
	config Config
	store  kv.Store
	log    zerolog.Logger
	logSet bool

	permissions []string
	roles       map[string][]string

	userProvider UserProvider
	auditSink    AuditSink

	built bool
}

// New starts a builder with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		roles:  map[string][]string{},
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the shared state store. Single-instance deployments can
// pass kv.NewMemory(); clustered ones use WithRedis.
func (b *Builder) WithStore(store kv.Store) *Builder {
	b.store = store
	return b
}

// WithRedis wires a Redis-backed store with the given key prefix.
func (b *Builder) WithRedis(client redis.UniversalClient, prefix string) *Builder {
	b.store = kv.NewRedis(client, prefix, 0)
	return b
}

// WithLogger sets the structured logger. Defaults to a disabled logger.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	b.logSet = true
	return b
}

// WithUserProvider wires the host's user database.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets the audit event destination.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithPermissions declares the permission catalog.
func (b *Builder) WithPermissions(perms []string) *Builder {
	b.permissions = perms
	return b
}

// WithRole grants permissions to a role. permission.Wildcard grants the
// whole catalog.
func (b *Builder) WithRole(role string, perms ...string) *Builder {
	b.roles[role] = perms
	return b
}

// Build validates the configuration, assembles the engine, and starts the
// signing secret rotation ticker. The caller owns the engine and must
// Close it.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("state store required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	log := b.log
	if !b.logSet {
		log = zerolog.Nop()
	}

	var registry *permission.Registry
	if len(b.permissions) > 0 || len(b.roles) > 0 {
		registry = permission.NewRegistry()
		for _, p := range b.permissions {
			if err := registry.Register(p); err != nil {
				return nil, err
			}
		}
		for role, perms := range b.roles {
			if err := registry.GrantRole(role, perms...); err != nil {
				return nil, err
			}
		}
		registry.Freeze()
	}

	vault, err := password.NewVault(b.config.Password, b.config.Policy)
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(b.config.JWT, b.store, log)
	if err != nil {
		return nil, err
	}

	coordinator, err := mfa.New(b.config.MFA, b.store)
	if err != nil {
		tokens.Close()
		return nil, err
	}

	policies := make(map[string]rate.Policy, len(b.config.RateLimit.Policies))
	for name, p := range b.config.RateLimit.Policies {
		policies[name] = rate.Policy{
			Algorithm:      p.Algorithm,
			Capacity:       p.Capacity,
			RefillAmount:   p.RefillAmount,
			RefillInterval: p.RefillInterval,
			Window:         p.Window,
			FailClosed:     p.FailClosed,
		}
	}

	engine := &Engine{
		config:   b.config,
		log:      log,
		store:    b.store,
		users:    b.userProvider,
		vault:    vault,
		tokens:   tokens,
		sessions: session.NewRegistry(b.config.Session, b.store, log),
		guard: guard.New(guard.Config{
			Threshold:     b.config.Lockout.Threshold,
			CounterWindow: b.config.Lockout.CounterWindow,
			LockDuration:  b.config.Lockout.LockDuration,
		}, b.store),
		limiter:     rate.New(b.store, b.config.RateLimit.TierMultipliers, log),
		mfa:         coordinator,
		permissions: registry,
		audit:       newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics:     NewMetrics(b.config.Metrics),
	}
	engine.ratePolicies = policies

	tokens.StartRotation()
	b.built = true

	return engine, nil
}
