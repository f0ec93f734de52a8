package playback

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/llehouerou/wavesbot/internal/errmsg"
	"github.com/llehouerou/wavesbot/internal/player"
)

const (
	defaultJoinTimeout = 10 * time.Second
	defaultVolume      = 50
)

// VolumeStore persists the volume of each tenant across restarts.
type VolumeStore interface {
	LoadVolume(tenant string) (volume int, ok bool, err error)
	SaveVolume(tenant string, volume int) error
}

// Registry owns every session of the process, at most one per tenant.
type Registry struct {
	connector     player.Connector
	resolver      player.Resolver
	logger        *zap.Logger
	volumes       VolumeStore
	joinTimeout   time.Duration
	idleTimeout   time.Duration
	defaultVolume int
	seed          *uint64
	onCreate      []func(*Session)

	mu       sync.Mutex
	sessions map[string]*Session
	pending  map[string]struct{}
	closed   bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used by the registry and its sessions.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithJoinTimeout bounds how long Create waits for a connection.
func WithJoinTimeout(d time.Duration) Option {
	return func(r *Registry) { r.joinTimeout = d }
}

// WithIdleTimeout makes sessions stop themselves after staying Idle for d.
// Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) { r.idleTimeout = d }
}

// WithDefaultVolume sets the volume of tenants with no saved volume.
func WithDefaultVolume(v int) Option {
	return func(r *Registry) { r.defaultVolume = player.ClampVolume(v) }
}

// WithVolumeStore persists volume changes.
func WithVolumeStore(store VolumeStore) Option {
	return func(r *Registry) { r.volumes = store }
}

// WithShuffleSeed makes shuffles deterministic. Each tenant gets its own
// source derived from seed.
func WithShuffleSeed(seed uint64) Option {
	return func(r *Registry) { r.seed = &seed }
}

// WithSessionHook registers fn to run on every newly created session, before
// Create returns it.
func WithSessionHook(fn func(*Session)) Option {
	return func(r *Registry) { r.onCreate = append(r.onCreate, fn) }
}

// NewRegistry creates an empty registry.
func NewRegistry(connector player.Connector, resolver player.Resolver, opts ...Option) *Registry {
	r := &Registry{
		connector:     connector,
		resolver:      resolver,
		joinTimeout:   defaultJoinTimeout,
		defaultVolume: defaultVolume,
		sessions:      make(map[string]*Session),
		pending:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Get returns the connected session of tenant.
func (r *Registry) Get(tenant string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[tenant]
	return s, ok
}

// Create joins channelRef and registers a new session for tenant. A tenant
// with a session, or with a Create in progress, gets ErrAlreadyExists.
func (r *Registry) Create(ctx context.Context, tenant, channelRef string) (*Session, error) {
	if tenant == "" {
		return nil, &Error{Kind: KindInvalidArgument, Op: errmsg.OpSessionCreate, Err: errors.New("empty tenant")}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, newError(KindConnection, errmsg.OpSessionCreate, errors.New("registry is shut down"))
	}
	if _, ok := r.sessions[tenant]; ok {
		r.mu.Unlock()
		return nil, newError(KindAlreadyExists, errmsg.OpSessionCreate, nil)
	}
	if _, ok := r.pending[tenant]; ok {
		r.mu.Unlock()
		return nil, newError(KindAlreadyExists, errmsg.OpSessionCreate, nil)
	}
	r.pending[tenant] = struct{}{}
	r.mu.Unlock()

	s, err := r.connect(ctx, tenant, channelRef)

	r.mu.Lock()
	delete(r.pending, tenant)
	if err == nil && r.closed {
		err = newError(KindConnection, errmsg.OpSessionCreate, errors.New("registry is shut down"))
	} else if err == nil && s.isStopped() {
		// Lost between attach and registration; Stop found nothing to remove.
		err = &Error{Kind: KindConnection, Op: errmsg.OpSessionCreate, Context: channelRef, Err: errConnectionLost}
	} else if err == nil {
		r.sessions[tenant] = s
	}
	r.mu.Unlock()

	if err != nil {
		if s != nil {
			s.Stop()
		}
		r.logger.Warn("failed to create session",
			zap.String("tenant", tenant),
			zap.String("channel", channelRef),
			zap.Error(err),
		)
		return nil, err
	}
	r.logger.Info("session created", zap.String("tenant", tenant), zap.String("channel", channelRef))
	for _, fn := range r.onCreate {
		fn(s)
	}
	return s, nil
}

// GetOrCreate returns the tenant's session, creating it if needed.
func (r *Registry) GetOrCreate(ctx context.Context, tenant, channelRef string) (*Session, error) {
	if s, ok := r.Get(tenant); ok {
		return s, nil
	}
	s, err := r.Create(ctx, tenant, channelRef)
	if errors.Is(err, ErrAlreadyExists) {
		if existing, ok := r.Get(tenant); ok {
			return existing, nil
		}
	}
	return s, err
}

func (r *Registry) connect(ctx context.Context, tenant, channelRef string) (*Session, error) {
	s := newSession(sessionConfig{
		tenant:      tenant,
		channel:     channelRef,
		resolver:    r.resolver,
		volumes:     r.volumes,
		logger:      r.logger,
		idleTimeout: r.idleTimeout,
		volume:      r.loadVolume(tenant),
		rng:         r.newRand(tenant),
		onStop:      r.remove,
	})

	joinCtx, cancel := context.WithTimeout(ctx, r.joinTimeout)
	defer cancel()
	conn, err := r.connector.Join(joinCtx, channelRef)
	if err != nil {
		s.Stop()
		if errors.Is(err, player.ErrNotJoinable) {
			return nil, &Error{Kind: KindNotJoinable, Op: errmsg.OpSessionCreate, Context: channelRef, Err: err}
		}
		return nil, &Error{Kind: KindConnection, Op: errmsg.OpSessionCreate, Context: channelRef, Err: err}
	}
	if !s.attach(conn) {
		s.Stop()
		return nil, &Error{Kind: KindConnection, Op: errmsg.OpSessionCreate, Context: channelRef, Err: errConnectionLost}
	}
	return s, nil
}

func (r *Registry) loadVolume(tenant string) int {
	if r.volumes == nil {
		return r.defaultVolume
	}
	v, ok, err := r.volumes.LoadVolume(tenant)
	if err != nil {
		r.logger.Warn("failed to load volume",
			zap.String("tenant", tenant),
			zap.String("op", string(errmsg.OpVolumeLoad)),
			zap.Error(err),
		)
		return r.defaultVolume
	}
	if !ok {
		return r.defaultVolume
	}
	return player.ClampVolume(v)
}

func (r *Registry) newRand(tenant string) *rand.Rand {
	if r.seed == nil {
		return nil
	}
	h := fnv.New64a()
	h.Write([]byte(tenant))
	return rand.New(rand.NewPCG(*r.seed, h.Sum64()))
}

// remove is called by Session.Stop.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.tenant]; ok && cur == s {
		delete(r.sessions, s.tenant)
	}
}

// Tenants returns the sorted IDs of tenants with a session.
func (r *Registry) Tenants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	tenants := make([]string, 0, len(r.sessions))
	for t := range r.sessions {
		tenants = append(tenants, t)
	}
	slices.Sort(tenants)
	return tenants
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown stops every session and refuses new ones. It waits for pending
// events to be delivered until ctx is done.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.logger.Info("registry shut down", zap.Int("sessions", len(sessions)))
	return nil
}
