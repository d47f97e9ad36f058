// Package server implements the HTTPS test server used by Office add-in test
// runs: a liveness route reporting the host platform and a results route
// that hands a run's JSON output to whoever is waiting for it.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"addintestserver/internal/certs"
	"addintestserver/internal/client"
	"addintestserver/internal/platform"
	"addintestserver/internal/results"
	"addintestserver/internal/telemetry"
	"addintestserver/pkg/logger"
)

// State is the lifecycle state of a TestServer.
type State int

const (
	StateNotStarted State = iota
	StateListening
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	default:
		return "not started"
	}
}

// Option customises a TestServer.
type Option func(*TestServer)

// WithHost sets the bind host. Empty listens on all interfaces.
func WithHost(host string) Option {
	return func(s *TestServer) { s.host = host }
}

// WithCertProvider sets the source of the TLS server options.
func WithCertProvider(p certs.Provider) Option {
	return func(s *TestServer) { s.certs = p }
}

// WithTelemetry sets the usage-event sink. The sink is always wrapped by telemetry.Guard.
func WithTelemetry(sink telemetry.Sink) Option {
	return func(s *TestServer) { s.telemetry = sink }
}

// WithPlatformName overrides the name reported by GET /ping.
func WithPlatformName(name string) Option {
	return func(s *TestServer) { s.platformName = name }
}

// TestServer is a single-use HTTPS server: NotStarted → Listening → Stopped.
type TestServer struct {
	port         int
	host         string
	platformName string
	certs        certs.Provider
	telemetry    telemetry.Sink

	// mu serializes lifecycle calls and guards the fields below it.
	mu         sync.Mutex
	state      State
	relaxTLS   bool
	tlsConfig  *tls.Config
	httpServer *http.Server
	listener   net.Listener
	serveDone  chan struct{}

	// resultsMu makes "count post, resolve future" one critical section.
	resultsMu sync.Mutex
	posts     int
	future    *results.Future
}

// New creates a server for port. No I/O is performed until Start.
func New(port int, opts ...Option) *TestServer {
	s := &TestServer{
		port:         port,
		platformName: platform.Current(),
		certs:        &certs.SelfSignedProvider{},
		telemetry:    telemetry.LogSink{},
		state:        StateNotStarted,
		future:       results.NewFuture(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.telemetry = telemetry.Guard(s.telemetry)
	return s
}

// Start provisions TLS, registers the routes and binds the listener. It
// returns true once the server is accepting connections.
//
// relaxTLSValidation only affects clients obtained from HTTPClient and
// Client; it never changes process-wide TLS settings.
func (s *TestServer) Start(ctx context.Context, relaxTLSValidation bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.start(ctx, relaxTLSValidation); err != nil {
		s.telemetry.RecordException(telemetry.EventStartTestServer, err.Error())
		logger.Error("[Server] start failed", "port", s.port, "error", err)
		return false, err
	}
	return true, nil
}

func (s *TestServer) start(ctx context.Context, relaxTLSValidation bool) error {
	switch s.state {
	case StateListening:
		return &StartError{Kind: Generic, Err: ErrAlreadyStarted}
	case StateStopped:
		return &StartError{Kind: Generic, Err: ErrStopped}
	}

	if relaxTLSValidation {
		logger.Warn("[Server] TLS peer verification disabled for test clients; never use outside local test runs")
	}

	tlsConfig, err := s.certs.HTTPSServerOptions(ctx)
	if err != nil {
		return &StartError{Kind: CertificateUnavailable, Err: err}
	}

	httpServer := &http.Server{
		Handler:           s.routes(),
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.telemetry.RecordSuccess(telemetry.EventStartTestServer)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		return &StartError{Kind: BindFailed, Err: err}
	}

	s.relaxTLS = relaxTLSValidation
	s.tlsConfig = tlsConfig
	s.httpServer = httpServer
	s.listener = ln
	s.serveDone = make(chan struct{})
	s.state = StateListening
	s.telemetry.RecordSuccess(telemetry.EventStartListening)

	go s.serve(httpServer, ln, s.serveDone)

	logger.Info("[Server] Test server listening", "addr", ln.Addr().String(), "platform", s.platformName)
	return nil
}

func (s *TestServer) serve(srv *http.Server, ln net.Listener, done chan<- struct{}) {
	defer close(done)
	// Certificates come from srv.TLSConfig.
	if err := srv.ServeTLS(ln, "", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("[Server] serve stopped unexpectedly", "error", err)
	}
}

// routes builds the handler tree: permissive CORS, request logging, then the two routes.
func (s *TestServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("POST /results", s.handleResults)
	return Chain(mux, RequestLog(), AllowAllOrigins())
}

// Stop shuts the server down gracefully. It returns false without side
// effects when the server is not listening. A failed shutdown leaves the
// server in the listening state.
func (s *TestServer) Stop(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateListening {
		return false, nil
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		stopErr := &StopError{Err: err}
		s.telemetry.RecordException(telemetry.EventStopTestServer, stopErr.Error())
		logger.Error("[Server] stop failed", "error", err)
		return false, stopErr
	}
	<-s.serveDone

	s.state = StateStopped
	s.telemetry.RecordSuccess(telemetry.EventStopTestServer)
	logger.Info("[Server] Test server stopped", "port", s.port)
	return true, nil
}

// AwaitResults blocks until the first valid results post or until ctx ends.
// It may be called before Start.
func (s *TestServer) AwaitResults(ctx context.Context) (results.Payload, error) {
	return s.future.Wait(ctx)
}

// Results returns the resolved payload without blocking.
func (s *TestServer) Results() (results.Payload, bool) {
	return s.future.Value()
}

// ResultsPosts counts accepted results posts, including ignored repeats.
func (s *TestServer) ResultsPosts() int {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	return s.posts
}

// State returns the current lifecycle state.
func (s *TestServer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsListening reports whether the server is accepting connections.
func (s *TestServer) IsListening() bool {
	return s.State() == StateListening
}

// Port returns the configured port. See Addr for the bound port when 0 was configured.
func (s *TestServer) Port() int {
	return s.port
}

// PlatformName returns the name reported by GET /ping.
func (s *TestServer) PlatformName() string {
	return s.platformName
}

// Addr returns the bound listener address, or "" when not listening.
func (s *TestServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateListening {
		return ""
	}
	return s.listener.Addr().String()
}

// URL returns the https base URL clients should use, or "" when not listening.
func (s *TestServer) URL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	host := s.host
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "https://" + net.JoinHostPort(host, port)
}

// HTTPClient returns a client for this server. It trusts the served
// certificate, or skips verification entirely when Start was called with
// relaxTLSValidation.
func (s *TestServer) HTTPClient() *http.Client {
	s.mu.Lock()
	relax, tlsConfig := s.relaxTLS, s.tlsConfig
	s.mu.Unlock()

	pool, err := certs.CertPool(tlsConfig)
	if err != nil {
		logger.Warn("[Server] could not build client trust pool", "error", err)
		pool = nil
	}
	return &http.Client{
		Timeout:   10 * time.Second,
		Transport: client.NewTransport(relax, pool),
	}
}

// Client returns a results-protocol client bound to URL().
func (s *TestServer) Client() *client.Client {
	return client.NewWithHTTPClient(s.URL(), s.HTTPClient())
}
