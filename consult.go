package consult

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/consult/internal/logging"
	consulthttp "github.com/aretw0/consult/pkg/adapters/http"
	"github.com/aretw0/consult/pkg/adapters/mcp"
	"github.com/aretw0/consult/pkg/adapters/memory"
	"github.com/aretw0/consult/pkg/domain"
	"github.com/aretw0/consult/pkg/ports"
	"github.com/aretw0/consult/pkg/session"
)

// Client is the high-level entry point of the consult library.
// It binds an inference service, a session store and a target catalog
// and hands out controllers and servers built on them.
type Client struct {
	service   ports.InferenceService
	store     ports.SessionStore
	locker    ports.DistributedLocker
	catalog   *domain.Catalog
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	token     string
	timeout   time.Duration
	autoTrace bool
	lockTTL   time.Duration
	lockWait  time.Duration

	sessions *session.Manager
}

// Option defines a functional option for configuring the Client.
type Option func(*Client)

// WithService injects an inference service, bypassing the HTTP client.
func WithService(svc ports.InferenceService) Option {
	return func(c *Client) {
		c.service = svc
	}
}

// WithStore sets the session store (default: in-memory).
func WithStore(store ports.SessionStore) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithLocker guards sessions shared by several replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(c *Client) {
		c.locker = locker
	}
}

// WithLockTimeouts tunes the distributed lock.
func WithLockTimeouts(ttl, wait time.Duration) Option {
	return func(c *Client) {
		c.lockTTL = ttl
		c.lockWait = wait
	}
}

// WithCatalog sets the recognized targets.
func WithCatalog(catalog *domain.Catalog) Option {
	return func(c *Client) {
		c.catalog = catalog
	}
}

// WithLifecycleHooks registers observability hooks on every controller.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Client) {
		c.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithToken sets the credential forwarded to the inference service.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout bounds every inference service request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithAutoTrace refreshes the rule trace after every successful mutation.
func WithAutoTrace(enabled bool) Option {
	return func(c *Client) {
		c.autoTrace = enabled
	}
}

// New creates a Client talking to the inference service at serviceURL.
// serviceURL may be empty when WithService is given.
func New(serviceURL string, opts ...Option) (*Client, error) {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	if c.catalog == nil {
		c.catalog = domain.NewCatalog()
	}
	if c.store == nil {
		c.store = memory.NewStore()
	}

	if c.service == nil {
		if serviceURL == "" {
			return nil, fmt.Errorf("serviceURL is required when no custom service is provided")
		}
		clientOpts := []consulthttp.ClientOption{consulthttp.WithClientLogger(c.logger)}
		if c.timeout > 0 {
			clientOpts = append(clientOpts, consulthttp.WithTimeout(c.timeout))
		}
		svc, err := consulthttp.NewClient(serviceURL, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create inference client: %w", err)
		}
		c.service = svc
	}

	mgrOpts := []session.Option{
		session.WithManagerLogger(c.logger),
		session.WithControllerOptions(c.controllerOptions()...),
	}
	if c.locker != nil {
		mgrOpts = append(mgrOpts, session.WithLocker(c.locker))
	}
	if c.lockTTL > 0 || c.lockWait > 0 {
		mgrOpts = append(mgrOpts, session.WithLockTimeouts(c.lockTTL, c.lockWait))
	}
	c.sessions = session.NewManager(c.service, c.store, mgrOpts...)

	return c, nil
}

func (c *Client) controllerOptions() []session.ControllerOption {
	return []session.ControllerOption{
		session.WithCatalog(c.catalog),
		session.WithLogger(c.logger),
		session.WithLifecycleHooks(c.hooks),
		session.WithToken(c.token),
		session.WithAutoTrace(c.autoTrace),
	}
}

// Service returns the inference service in use.
func (c *Client) Service() ports.InferenceService {
	return c.service
}

// Catalog returns the recognized targets.
func (c *Client) Catalog() *domain.Catalog {
	return c.catalog
}

// NewConsultation returns a standalone controller for a single local
// consultation. It is not tracked by Sessions.
func (c *Client) NewConsultation(sessionID string) *session.Controller {
	opts := append(c.controllerOptions(), session.WithSessionID(sessionID))
	return session.NewController(c.service, opts...)
}

// Sessions returns the manager of stored sessions.
func (c *Client) Sessions() *session.Manager {
	return c.sessions
}

// Handler returns the REST API serving Sessions.
func (c *Client) Handler(opts ...consulthttp.ServerOption) http.Handler {
	base := []consulthttp.ServerOption{
		consulthttp.WithCatalog(c.catalog),
		consulthttp.WithVersion(Version),
		consulthttp.WithServerLogger(c.logger),
	}
	return consulthttp.NewHandler(c.sessions, append(base, opts...)...)
}

// MCPServer returns an MCP server exposing Sessions as tools.
func (c *Client) MCPServer() *mcp.Server {
	return mcp.NewServer(c.sessions, Version, mcp.WithCatalog(c.catalog), mcp.WithLogger(c.logger))
}
