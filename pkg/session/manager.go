package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/consult/internal/logging"
	"github.com/aretw0/consult/pkg/domain"
	"github.com/aretw0/consult/pkg/ports"
	"github.com/google/uuid"
)

const (
	defaultLockTTL  = 30 * time.Second
	defaultLockWait = 2 * time.Second
)

// entry holds a live controller and the number of calls using it.
type entry struct {
	ctrl *Controller
	refs int

	// claim is set by the mutating call that owns the session on this
	// replica, from before the distributed lock until after persistence.
	// Guarded by Manager.mu.
	claim *claim

	saveMu  sync.Mutex // serializes persistence of this session
	deleted bool       // guarded by saveMu
}

type claim struct {
	op domain.Operation
}

// Manager serves many consultations keyed by id. Controllers live in memory
// only while calls are using them; between calls the SessionStore is the
// source of truth, so any replica sharing the store can continue a session.
type Manager struct {
	svc   ports.InferenceService
	store ports.SessionStore

	mu      sync.Mutex        // guards entries
	entries map[string]*entry // live controllers, reference counted

	locker   ports.DistributedLocker
	lockTTL  time.Duration
	lockWait time.Duration

	logger   *slog.Logger
	ctrlOpts []ControllerOption
	newID    func() string
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking of mutating calls.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTimeouts sets the lock TTL and how long a call waits for the lock
// before failing with domain.ErrSessionBusy.
func WithLockTimeouts(ttl, wait time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
		if wait > 0 {
			m.lockWait = wait
		}
	}
}

// WithManagerLogger configures a logger for the Manager and its controllers.
func WithManagerLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithControllerOptions applies opts to every controller the Manager creates.
func WithControllerOptions(opts ...ControllerOption) Option {
	return func(m *Manager) {
		m.ctrlOpts = append(m.ctrlOpts, opts...)
	}
}

// WithIDGenerator overrides the session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// NewManager creates a new Session Manager.
func NewManager(svc ports.InferenceService, store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		svc:      svc,
		store:    store,
		entries:  make(map[string]*entry),
		lockTTL:  defaultLockTTL,
		lockWait: defaultLockWait,
		logger:   logging.NewNop(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire returns the live entry for sessionID, rehydrating it from the
// store when no call is using it. The caller MUST call release.
func (m *Manager) acquire(ctx context.Context, sessionID string) (*entry, error) {
	m.mu.Lock()
	if e, exists := m.entries[sessionID]; exists {
		e.refs++
		m.mu.Unlock()
		return e, nil
	}
	m.mu.Unlock()

	sess, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ctrl := m.controller(sessionID)
	if err := ctrl.Restore(sess); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, exists := m.entries[sessionID]
	if !exists {
		e = &entry{ctrl: ctrl}
		m.entries[sessionID] = e
	}
	e.refs++
	return e, nil
}

// release decrements the reference count and drops the entry once unused.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.entries[sessionID]
	if !exists {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(m.entries, sessionID)
	}
}

func (m *Manager) controller(sessionID string) *Controller {
	opts := make([]ControllerOption, 0, len(m.ctrlOpts)+2)
	opts = append(opts, WithLogger(m.logger))
	opts = append(opts, m.ctrlOpts...)
	opts = append(opts, WithSessionID(sessionID))
	return NewController(m.svc, opts...)
}

// Create reserves a new session id and starts a consultation for targets.
// When the start call fails the idle session is kept, so the caller can
// retry with Start.
func (m *Manager) Create(ctx context.Context, targets []domain.Target) (string, *domain.Session, error) {
	id := m.newID()
	if err := m.store.Save(ctx, id, domain.NewSession(id)); err != nil {
		return "", nil, fmt.Errorf("failed to initialize session: %w", err)
	}
	m.logger.Debug("Session created", "session_id", id)

	sess, err := m.Start(ctx, id, targets)
	if err != nil {
		return id, nil, err
	}
	return id, sess, nil
}

// Start (re)starts the consultation of an existing session.
func (m *Manager) Start(ctx context.Context, sessionID string, targets []domain.Target) (*domain.Session, error) {
	return m.mutate(ctx, sessionID, domain.OpStart, func(ctx context.Context, c *Controller) (*domain.Session, error) {
		return c.Start(ctx, targets)
	})
}

// Answer submits an answer for the current question of the session.
func (m *Manager) Answer(ctx context.Context, sessionID, question string, value domain.Answer) (*domain.Session, error) {
	return m.mutate(ctx, sessionID, domain.OpAnswer, func(ctx context.Context, c *Controller) (*domain.Session, error) {
		return c.Answer(ctx, question, value)
	})
}

// Back returns the session to its previous question.
func (m *Manager) Back(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.mutate(ctx, sessionID, domain.OpBack, func(ctx context.Context, c *Controller) (*domain.Session, error) {
		return c.Back(ctx)
	})
}

// Restart resets the session. It never waits for the distributed lock:
// an in-flight call is superseded immediately, and its result is refused
// by the store once the restart is persisted.
func (m *Manager) Restart(ctx context.Context, sessionID string) (*domain.Session, error) {
	e, err := m.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer m.release(sessionID)

	m.mu.Lock()
	e.claim = nil
	m.mu.Unlock()

	e.ctrl.Restart()
	return m.persist(ctx, sessionID, e)
}

// Get returns the current snapshot of the session.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	m.mu.Lock()
	e, live := m.entries[sessionID]
	m.mu.Unlock()
	if live {
		return e.ctrl.Snapshot(), nil
	}
	return m.store.Load(ctx, sessionID)
}

// Busy reports whether a call on this replica is mutating the session.
func (m *Manager) Busy(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, live := m.entries[sessionID]
	return live && e.ctrl.Busy()
}

// Trace fetches and classifies the rule trace of the session.
func (m *Manager) Trace(ctx context.Context, sessionID string) (*Trace, error) {
	e, err := m.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer m.release(sessionID)
	return e.ctrl.RefreshTrace(ctx)
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	e, live := m.entries[sessionID]
	m.mu.Unlock()
	if live {
		e.saveMu.Lock()
		e.deleted = true
		e.saveMu.Unlock()
	}

	if err := m.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	m.logger.Debug("Session deleted", "session_id", sessionID)
	return nil
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}

func (m *Manager) mutate(ctx context.Context, sessionID string, op domain.Operation, fn func(context.Context, *Controller) (*domain.Session, error)) (*domain.Session, error) {
	e, err := m.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer m.release(sessionID)

	cl, err := m.reserve(e, op)
	if err != nil {
		return nil, err
	}
	defer m.unreserve(e, cl)

	if m.locker != nil {
		before := e.ctrl.Snapshot()
		unlock, err := m.lock(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
		if err := m.checkUnchanged(ctx, sessionID, e, before, op); err != nil {
			return nil, err
		}
	}

	if _, err := fn(ctx, e.ctrl); err != nil {
		return nil, err
	}
	return m.persist(ctx, sessionID, e)
}

// reserve claims the session for one mutating call on this replica, so an
// overlapping call fails at once instead of queueing on the distributed lock.
func (m *Manager) reserve(e *entry, op domain.Operation) (*claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.claim != nil || e.ctrl.Busy() {
		return nil, fmt.Errorf("%w: %s rejected while another call is in flight", domain.ErrSessionBusy, op)
	}
	cl := &claim{op: op}
	e.claim = cl
	return cl, nil
}

// unreserve drops cl unless a restart already released it.
func (m *Manager) unreserve(e *entry, cl *claim) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.claim == cl {
		e.claim = nil
	}
}

// checkUnchanged runs once the distributed lock is held. If another replica
// mutated the session while this call waited for the lock, the call
// overlapped it: the controller catches up with the store and the call
// fails with domain.ErrSessionBusy.
func (m *Manager) checkUnchanged(ctx context.Context, sessionID string, e *entry, before *domain.Session, op domain.Operation) error {
	stored, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if sameRevision(before, stored) {
		return nil
	}
	if err := e.ctrl.Restore(stored); err != nil {
		return err
	}
	m.logger.Debug("Session changed while waiting for the lock",
		"session_id", sessionID, "op", op, "generation", stored.Generation)
	return fmt.Errorf("%w: %s overlapped a call on another replica", domain.ErrSessionBusy, op)
}

func sameRevision(a, b *domain.Session) bool {
	return a.Generation == b.Generation &&
		a.UpdatedAt.Equal(b.UpdatedAt) &&
		a.CurrentQuestion == b.CurrentQuestion &&
		len(a.History) == len(b.History) &&
		a.Finished == b.Finished
}

func (m *Manager) lock(ctx context.Context, sessionID string) (ports.UnlockFunc, error) {
	lockCtx, cancel := context.WithTimeout(ctx, m.lockWait)
	defer cancel()

	unlock, err := m.locker.Lock(lockCtx, sessionID, m.lockTTL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: distributed lock: %w", domain.ErrSessionBusy, err)
	}
	return unlock, nil
}

// persist saves the latest snapshot of the entry, which may be newer than
// the result of the call that triggered it. When the store holds a newer
// generation, written by a restart on another replica, the snapshot is
// discarded and the controller reloads the stored one.
func (m *Manager) persist(ctx context.Context, sessionID string, e *entry) (*domain.Session, error) {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	snap := e.ctrl.Snapshot()
	if e.deleted {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	err := m.store.Save(ctx, sessionID, snap)
	switch {
	case err == nil:
		return snap, nil
	case errors.Is(err, domain.ErrSuperseded):
		m.logger.Debug("Discarding snapshot superseded in the store",
			"session_id", sessionID, "generation", snap.Generation)
		if stored, loadErr := m.store.Load(ctx, sessionID); loadErr == nil {
			_ = e.ctrl.Restore(stored)
		}
		return nil, err
	default:
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
}
