// Package core provides the query builder, sessions and the connection registry
// of fesdql.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coregx/fesdql/internal/logger"
	"github.com/coregx/fesdql/internal/security"
	"github.com/coregx/fesdql/internal/tracer"
	"github.com/coregx/fesdql/internal/util"
)

// Registry owns the clients, database handles and sessions of every bind.
// The default bind has the empty name. Entries are created lazily and released
// only by Close.
type Registry struct {
	cfg    Config
	dialer Dialer
	env    *env

	healthInterval time.Duration
	health         *healthChecker

	mu       sync.Mutex
	engines  map[string]Client
	binds    map[string]Backend
	sessions map[string]*Session
	closed   bool
}

// Option is a functional option for configuring a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for operations, health checks and the registry.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.env.logger = l
		}
	}
}

// WithSanitizer replaces the sanitizer that masks sensitive values in logs and spans.
func WithSanitizer(s *logger.Sanitizer) Option {
	return func(r *Registry) {
		if s != nil {
			r.env.sanitizer = s
		}
	}
}

// WithTracer enables tracing of every backend round-trip.
func WithTracer(t tracer.Tracer) Option {
	return func(r *Registry) {
		if t != nil {
			r.env.tracer = t
		}
	}
}

// WithOperationHook sets a callback invoked after every backend round-trip.
// Use ChainHooks to install several.
func WithOperationHook(hook OperationHook) Option {
	return func(r *Registry) {
		r.env.hook = hook
	}
}

// WithDialer replaces DialMongo.
func WithDialer(d Dialer) Option {
	return func(r *Registry) {
		if d != nil {
			r.dialer = d
		}
	}
}

// WithHealthCheck pings every open client at the given interval once Open succeeds.
func WithHealthCheck(interval time.Duration) Option {
	return func(r *Registry) {
		r.healthInterval = interval
	}
}

// WithOperatorValidator rejects filters, updates, documents and pipelines that use
// operators blocked by v.
func WithOperatorValidator(v *security.Validator) Option {
	return func(r *Registry) {
		r.env.validator = v
	}
}

// WithAuditor records operations and rejected operators.
func WithAuditor(a *security.Auditor) Option {
	return func(r *Registry) {
		r.env.auditor = a
	}
}

// NewRegistry verifies cfg and creates a registry. No connection is made until
// Open or GetSession.
func NewRegistry(cfg Config, opts ...Option) (*Registry, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}

	e := defaultEnv()
	e.messages = MergeMessages(DefaultMessages(), cfg.Message)
	e.useZh = cfg.UseZh
	e.maxPerPage = cfg.MaxPerPage

	r := &Registry{
		cfg:      cfg,
		dialer:   DialMongo,
		env:      e,
		engines:  make(map[string]Client),
		binds:    make(map[string]Backend),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Open connects the default bind and starts the health checker when configured.
// Calling it again is a no-op.
func (r *Registry) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.sessions[""]; ok {
		return nil
	}

	if _, err := r.openLocked(ctx, "", r.cfg.connConfig(), r.cfg.DBName); err != nil {
		return err
	}

	if r.healthInterval > 0 && r.health == nil {
		r.health = newHealthChecker(r.Ping, r.env.logger, r.healthInterval)
		r.health.start()
	}
	return nil
}

// Session returns the session of the default bind.
func (r *Registry) Session() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	s, ok := r.sessions[""]
	if !ok {
		return nil, ErrNoDefaultBind
	}
	return s, nil
}

// GetSession returns the session of the named bind, connecting it on first use.
// The empty name is the default bind, which must have been opened by Open.
func (r *Registry) GetSession(ctx context.Context, bind string) (*Session, error) {
	if bind == "" {
		return r.Session()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if s, ok := r.sessions[bind]; ok {
		return s, nil
	}

	bc, ok := r.cfg.Binds[bind]
	if !ok {
		return nil, fmt.Errorf("%w: %q, please configure it in binds", ErrUnknownBind, bind)
	}

	return r.openLocked(ctx, bind, bc.connConfig(r.cfg.PoolSize), bc.DBName)
}

// openLocked dials or reuses the client for cc and caches the bind's session.
func (r *Registry) openLocked(ctx context.Context, bind string, cc ConnConfig, dbname string) (*Session, error) {
	key := cc.engineKey()

	client, ok := r.engines[key]
	if !ok {
		if util.IsCanceled(ctx) {
			return nil, ctx.Err()
		}

		var err error
		client, err = r.dialer(ctx, cc)
		if err != nil {
			r.env.logger.Error("mongo connection failed",
				"bind", bind,
				"host", cc.Host,
				"port", cc.Port,
				"error", err,
			)
			return nil, WrapError(err, "dial bind "+bindName(bind))
		}
		r.engines[key] = client
		r.env.logger.Info("mongo client connected",
			"bind", bind,
			"host", cc.Host,
			"port", cc.Port,
			"pool_size", cc.PoolSize,
		)
	}

	backend := client.Database(dbname)
	s := newSession(backend, r.env)
	r.binds[bind] = backend
	r.sessions[bind] = s
	return s, nil
}

func bindName(bind string) string {
	if bind == "" {
		return "default"
	}
	return bind
}

// Ping pings every open client.
func (r *Registry) Ping(ctx context.Context) error {
	r.mu.Lock()
	clients := make(map[string]Client, len(r.engines))
	for k, c := range r.engines {
		clients[k] = c
	}
	r.mu.Unlock()

	var errs []error
	for key, c := range clients {
		if err := c.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ping %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Healthy reports the result of the last health check. It is always true when
// health checking is disabled.
func (r *Registry) Healthy() bool {
	r.mu.Lock()
	h := r.health
	r.mu.Unlock()

	if h == nil {
		return true
	}
	return h.isHealthy()
}

// LastHealthCheck returns the time of the last health check, zero when none ran.
func (r *Registry) LastHealthCheck() time.Time {
	r.mu.Lock()
	h := r.health
	r.mu.Unlock()

	if h == nil {
		return time.Time{}
	}
	return h.lastCheck()
}

// Binds returns the names of the binds opened so far, the default bind as "".
func (r *Registry) Binds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.binds))
	for name := range r.binds {
		names = append(names, name)
	}
	return names
}

// Close stops the health checker and disconnects every client once.
// Later calls return ErrRegistryClosed.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRegistryClosed
	}
	r.closed = true
	h := r.health
	engines := r.engines
	r.engines = make(map[string]Client)
	r.binds = make(map[string]Backend)
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	if h != nil {
		h.shutdown()
	}

	var errs []error
	for key, c := range engines {
		if err := c.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
