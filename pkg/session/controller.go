package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/consult/internal/logging"
	"github.com/aretw0/consult/pkg/domain"
	"github.com/aretw0/consult/pkg/ports"
	"github.com/aretw0/consult/pkg/trace"
)

// Trace is a classified rule trace together with the snapshot it came from.
// A Trace is never modified after it is published.
type Trace struct {
	Generation uint64               `json:"generation"`
	Snapshot   domain.TraceSnapshot `json:"snapshot"`
	Result     trace.Result         `json:"result"`
	FetchedAt  time.Time            `json:"fetched_at"`
}

// Controller owns one consultation session and folds inference service
// responses into it.
//
// At most one of Start, Answer and Back may be in flight at a time; an
// overlapping call fails with domain.ErrSessionBusy instead of queuing.
// Restart is local and always succeeds. Responses that arrive for a
// generation replaced by Restart are discarded with domain.ErrSuperseded.
type Controller struct {
	svc       ports.InferenceService
	catalog   *domain.Catalog
	logger    *slog.Logger
	hooks     domain.LifecycleHooks
	token     string
	autoTrace bool
	now       func() time.Time

	mu        sync.Mutex
	state     *domain.Session
	busy      bool
	lastTrace *Trace
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithSessionID sets the identity sent to the inference service.
func WithSessionID(id string) ControllerOption {
	return func(c *Controller) {
		c.state.ID = id
	}
}

// WithToken sets the credential sent to the inference service.
func WithToken(token string) ControllerOption {
	return func(c *Controller) {
		c.token = token
	}
}

// WithCatalog sets the recognized targets.
func WithCatalog(catalog *domain.Catalog) ControllerOption {
	return func(c *Controller) {
		if catalog != nil {
			c.catalog = catalog
		}
	}
}

// WithLogger configures a logger for the Controller.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) ControllerOption {
	return func(c *Controller) {
		c.hooks = hooks
	}
}

// WithAutoTrace refreshes the rule trace after every successful Start, Answer and Back.
func WithAutoTrace(enabled bool) ControllerOption {
	return func(c *Controller) {
		c.autoTrace = enabled
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController creates an idle Controller backed by svc.
func NewController(svc ports.InferenceService, opts ...ControllerOption) *Controller {
	c := &Controller{
		svc:     svc,
		catalog: domain.NewCatalog(),
		logger:  logging.NewNop(),
		now:     time.Now,
		state:   domain.NewSession(""),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Catalog returns the recognized targets.
func (c *Controller) Catalog() *domain.Catalog {
	return c.catalog
}

// Snapshot returns a deep copy of the current session.
func (c *Controller) Snapshot() *domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Busy reports whether a session-mutating call is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Trace returns the last classified trace, or nil if none was fetched
// for the current generation.
func (c *Controller) Trace() *Trace {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTrace
}

// Restore replaces the session with a persisted snapshot.
func (c *Controller) Restore(sess *domain.Session) error {
	if sess == nil {
		return errors.New("restore: nil session")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return domain.ErrSessionBusy
	}
	c.state = sess.Clone()
	c.lastTrace = nil
	return nil
}

// call describes one in-flight roundtrip.
type call struct {
	op      domain.Operation
	gen     uint64
	from    domain.Phase
	id      domain.ServiceSession
	started time.Time
}

// begin marks the session busy. The caller must hold c.mu.
func (c *Controller) begin(op domain.Operation) (*call, error) {
	if c.busy {
		return nil, fmt.Errorf("%w: %s rejected while another call is in flight", domain.ErrSessionBusy, op)
	}
	c.busy = true
	return &call{
		op:      op,
		gen:     c.state.Generation,
		from:    c.state.Phase(),
		id:      domain.ServiceSession{ID: c.state.ID, Token: c.token},
		started: c.now(),
	}, nil
}

// settle reacquires c.mu after the roundtrip and checks the call is still
// current. On success the caller holds c.mu and must unlock it, then report
// the call with emitCall.
func (c *Controller) settle(ctx context.Context, cl *call, callErr error) error {
	c.mu.Lock()
	current := c.state.Generation == cl.gen
	if current {
		c.busy = false
	}

	if !current {
		c.mu.Unlock()
		c.emitCall(ctx, cl, callErr != nil, true)
		c.logger.Debug("Discarding response for superseded session",
			"session_id", cl.id.ID, "op", cl.op, "generation", cl.gen)
		return fmt.Errorf("%w: %s", domain.ErrSuperseded, cl.op)
	}
	if callErr != nil {
		c.mu.Unlock()
		c.emitCall(ctx, cl, true, false)
		c.logger.Warn("Inference call failed", "session_id", cl.id.ID, "op", cl.op, "err", callErr)
		return unavailable(cl.op, callErr)
	}
	return nil
}

func unavailable(op domain.Operation, err error) error {
	if errors.Is(err, domain.ErrServiceUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrServiceUnavailable, op, err)
}

// Start begins a new consultation for the given targets, replacing any
// previous session content.
func (c *Controller) Start(ctx context.Context, targets []domain.Target) (*domain.Session, error) {
	resolved, multi, err := c.catalog.Resolve(targets)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	cl, err := c.begin(domain.OpStart)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	resp, callErr := c.svc.Start(ctx, cl.id, domain.WireValue(resolved, multi))
	if err := c.settle(ctx, cl, callErr); err != nil {
		return nil, err
	}

	next := domain.NewSession(c.state.ID)
	next.Generation = cl.gen + 1
	next.Targets = resolved
	next.MultiTarget = multi || resp.AllTargetMode
	next.CurrentTarget = currentTarget(resp.CurrentTarget, resolved, next.MultiTarget)
	next.IsDerivable = resp.IsDerivable
	next.UnknownFacts = slices.Clone(resp.UnknownFacts)
	next.MissingCriticalInfo = slices.Clone(resp.MissingCriticalInfo)
	next.TargetConclusions = targetConclusions(resp.AllConclusions)
	if resp.NextQuestion != "" {
		next.CurrentQuestion = resp.NextQuestion
		next.History = []string{resp.NextQuestion}
	} else {
		next.Finished = true
	}
	next.UpdatedAt = c.now()

	snap := c.apply(next)
	c.mu.Unlock()

	c.emitCall(ctx, cl, false, false)
	c.emitTransition(ctx, cl, snap)
	c.logger.Info("Consultation started",
		"session_id", snap.ID, "targets", resolved, "multi", snap.MultiTarget, "question", snap.CurrentQuestion)
	c.afterMutation(ctx)
	return snap, nil
}

// Answer submits the answer to the current question.
func (c *Controller) Answer(ctx context.Context, question string, value domain.Answer) (*domain.Session, error) {
	if !value.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAnswer, value)
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: answer rejected while another call is in flight", domain.ErrSessionBusy)
	}
	if c.state.CurrentQuestion == "" || question != c.state.CurrentQuestion {
		current := c.state.CurrentQuestion
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: got %q, current question is %q", domain.ErrStaleAnswer, question, current)
	}
	cl, err := c.begin(domain.OpAnswer)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	resp, callErr := c.svc.Answer(ctx, cl.id, question, value)
	if err := c.settle(ctx, cl, callErr); err != nil {
		return nil, err
	}

	next := c.state.Clone()
	next.Answers[question] = value

	finished := resp.IsFinished || resp.NextQuestion == ""
	next.Finished = finished
	if finished {
		next.CurrentQuestion = ""
	} else {
		next.CurrentQuestion = resp.NextQuestion
		if !slices.Contains(next.History, resp.NextQuestion) {
			next.History = append(next.History, resp.NextQuestion)
		}
	}
	// The service is authoritative: conclusions are replaced, never merged.
	next.Conclusions = nonNil(resp.Conclusions)
	next.UnknownFacts = slices.Clone(resp.UnknownFacts)
	next.MissingCriticalInfo = slices.Clone(resp.MissingCriticalInfo)
	next.Caveats = caveats(resp.UncertainFactsLogic)
	next.InsufficientInfo = resp.InsufficientInfo
	next.IsDerivable = false
	if resp.AllTargetMode {
		next.MultiTarget = true
	}
	next.CurrentTarget = currentTarget(resp.CurrentTarget, next.Targets, next.MultiTarget)
	if next.MultiTarget {
		next.TargetConclusions = targetConclusions(resp.AllConclusions)
	}
	next.UpdatedAt = c.now()

	snap := c.apply(next)
	c.mu.Unlock()

	c.emitCall(ctx, cl, false, false)
	c.emitTransition(ctx, cl, snap)
	c.logger.Debug("Answer applied",
		"session_id", snap.ID, "question", question, "answer", value.String(),
		"next", snap.CurrentQuestion, "finished", snap.Finished)
	c.afterMutation(ctx)
	return snap, nil
}

// Back returns to the previous question. It is a no-op while the history
// holds at most one question, or when the service cannot go back further.
// A call in flight makes it fail with domain.ErrSessionBusy even then.
func (c *Controller) Back(ctx context.Context) (*domain.Session, error) {
	c.mu.Lock()
	if !c.busy && !c.state.CanGoBack() {
		snap := c.state.Clone()
		c.mu.Unlock()
		return snap, nil
	}
	cl, err := c.begin(domain.OpBack)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	resp, callErr := c.svc.Back(ctx, cl.id)
	if err := c.settle(ctx, cl, callErr); err != nil {
		return nil, err
	}

	if resp.CurrentQuestion == "" || !c.state.CanGoBack() {
		snap := c.state.Clone()
		c.mu.Unlock()
		c.emitCall(ctx, cl, false, false)
		c.logger.Debug("Back ignored, service cannot go further", "session_id", snap.ID)
		return snap, nil
	}

	next := c.state.Clone()
	popped := next.History[len(next.History)-1]
	next.History = next.History[:len(next.History)-1]
	delete(next.Answers, popped)
	delete(next.Answers, resp.CurrentQuestion)
	next.CurrentQuestion = resp.CurrentQuestion
	next.Finished = false
	next.InsufficientInfo = false
	next.Conclusions = []string{}
	next.TargetConclusions = nil
	next.Caveats = nil
	next.MissingCriticalInfo = nil
	next.UpdatedAt = c.now()

	snap := c.apply(next)
	c.mu.Unlock()

	c.emitCall(ctx, cl, false, false)
	c.emitTransition(ctx, cl, snap)
	c.logger.Debug("Went back", "session_id", snap.ID, "popped", popped, "question", snap.CurrentQuestion)
	c.afterMutation(ctx)
	return snap, nil
}

// Restart resets the session to its initial idle state without contacting
// the inference service. Any in-flight response is discarded when it arrives.
func (c *Controller) Restart() *domain.Session {
	c.mu.Lock()
	from := c.state.Phase()
	gen := c.state.Generation + 1
	next := domain.NewSession(c.state.ID)
	next.Generation = gen
	next.UpdatedAt = c.now()
	c.busy = false
	snap := c.apply(next)
	c.mu.Unlock()

	c.emitTransition(context.Background(), &call{op: domain.OpRestart, gen: gen, from: from, id: domain.ServiceSession{ID: snap.ID}}, snap)
	c.logger.Info("Consultation restarted", "session_id", snap.ID, "generation", gen)
	return snap
}

// RefreshTrace fetches and classifies the current rule snapshot. Failure
// keeps the last known trace and returns an error wrapping
// domain.ErrTraceFetchFailed; the session itself is never affected.
func (c *Controller) RefreshTrace(ctx context.Context) (*Trace, error) {
	c.mu.Lock()
	gen := c.state.Generation
	id := domain.ServiceSession{ID: c.state.ID, Token: c.token}
	fallback := c.state.CurrentQuestion
	c.mu.Unlock()

	snap, err := c.svc.Trace(ctx, id)
	if err != nil {
		c.emitTrace(ctx, id.ID, gen, nil, true)
		c.logger.Warn("Trace refresh failed", "session_id", id.ID, "err", err)
		return c.Trace(), fmt.Errorf("%w: %w", domain.ErrTraceFetchFailed, err)
	}
	if snap == nil {
		snap = &domain.TraceSnapshot{}
	}

	t := &Trace{
		Generation: gen,
		Snapshot:   *snap,
		Result:     trace.ClassifySnapshot(snap, fallback),
		FetchedAt:  c.now(),
	}

	c.mu.Lock()
	if c.state.Generation != gen {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrSuperseded, domain.OpTrace)
	}
	c.lastTrace = t
	c.mu.Unlock()

	c.emitTrace(ctx, id.ID, gen, t, false)
	return t, nil
}

// apply installs next as the session state. The caller must hold c.mu.
func (c *Controller) apply(next *domain.Session) *domain.Session {
	if next.Generation != c.state.Generation {
		c.lastTrace = nil
	}
	c.state = next
	return next.Clone()
}

func (c *Controller) afterMutation(ctx context.Context) {
	if !c.autoTrace {
		return
	}
	if _, err := c.RefreshTrace(ctx); err != nil && !errors.Is(err, domain.ErrSuperseded) {
		c.logger.Warn("Trace left stale after successful operation", "err", err)
	}
}

func (c *Controller) emitCall(ctx context.Context, cl *call, isErr, discarded bool) {
	if c.hooks.OnServiceCall == nil {
		return
	}
	now := c.now()
	c.hooks.OnServiceCall(ctx, &domain.CallEvent{
		EventBase: domain.EventBase{
			Timestamp:  now,
			SessionID:  cl.id.ID,
			Operation:  cl.op,
			Generation: cl.gen,
		},
		Duration:  now.Sub(cl.started),
		IsError:   isErr,
		Discarded: discarded,
	})
}

func (c *Controller) emitTransition(ctx context.Context, cl *call, snap *domain.Session) {
	if c.hooks.OnTransition == nil {
		return
	}
	c.hooks.OnTransition(ctx, &domain.TransitionEvent{
		EventBase: domain.EventBase{
			Timestamp:  c.now(),
			SessionID:  snap.ID,
			Operation:  cl.op,
			Generation: snap.Generation,
		},
		From: cl.from,
		To:   snap.Phase(),
	})
}

func (c *Controller) emitTrace(ctx context.Context, sessionID string, gen uint64, t *Trace, isErr bool) {
	if c.hooks.OnTraceFetch == nil {
		return
	}
	ev := &domain.TraceEvent{
		EventBase: domain.EventBase{
			Timestamp:  c.now(),
			SessionID:  sessionID,
			Operation:  domain.OpTrace,
			Generation: gen,
		},
		IsError: isErr,
	}
	if t != nil {
		ev.Relevant = len(t.Result.Relevant)
		ev.Fired = t.Result.FiredCount
	}
	c.hooks.OnTraceFetch(ctx, ev)
}

func currentTarget(wire string, targets []domain.Target, multi bool) domain.Target {
	if wire != "" && domain.Target(wire) != domain.TargetAll {
		return domain.Target(wire)
	}
	if !multi && len(targets) == 1 {
		return targets[0]
	}
	return ""
}

func targetConclusions(all map[string][]string) map[domain.Target][]string {
	if len(all) == 0 {
		return nil
	}
	out := make(map[domain.Target][]string, len(all))
	for target, conclusions := range all {
		out[domain.Target(target)] = nonNil(conclusions)
	}
	return out
}

func caveats(logic *domain.UncertainLogic) []domain.CaveatGroup {
	if logic == nil || len(logic.Groups) == 0 {
		return nil
	}
	out := make([]domain.CaveatGroup, 0, len(logic.Groups))
	for _, g := range logic.Groups {
		if len(g.Conditions) == 0 {
			continue
		}
		g.Conditions = slices.Clone(g.Conditions)
		out = append(out, g)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
