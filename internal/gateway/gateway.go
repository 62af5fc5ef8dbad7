// ABOUTME: Gateway orchestrator that coordinates the HTTP, gRPC and MQTT front doors
// ABOUTME: Owns the store and services and manages their startup and shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"tailscale.com/tsnet"

	"github.com/2389/weather-gateway/internal/api"
	"github.com/2389/weather-gateway/internal/auth"
	"github.com/2389/weather-gateway/internal/config"
	"github.com/2389/weather-gateway/internal/dedupe"
	"github.com/2389/weather-gateway/internal/ingest"
	"github.com/2389/weather-gateway/internal/mqtt"
	"github.com/2389/weather-gateway/internal/session"
	"github.com/2389/weather-gateway/internal/store"
	"github.com/2389/weather-gateway/internal/telemetry"
)

// EnvDBPath overrides database.path when set.
const EnvDBPath = "WEATHER_GATEWAY_DB_PATH"

const (
	// healthCheckInterval is how often the store is pinged for gRPC health.
	healthCheckInterval = 15 * time.Second

	// MQTT payloads repeated within this window are not stored again.
	mqttDedupeWindow = 10 * time.Minute
	mqttDedupeSize   = 10000
)

// Gateway orchestrates the weather-gateway server components.
type Gateway struct {
	config      *config.Config
	store       *store.SQLiteStore
	telemetry   *telemetry.Service
	sessions    *session.Service
	gate        *auth.Gate
	grpcServer  *grpc.Server
	health      *health.Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	subscriber  *mqtt.Subscriber
	seen        *dedupe.Window
	logger      *slog.Logger
}

// openStore opens the SQLite store described by cfg.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv(EnvDBPath); envPath != "" {
		dbPath = envPath
	}

	opts := []store.Option{store.WithLogger(logger)}
	if cfg.Database.Driver != "" {
		opts = append(opts, store.WithDriver(cfg.Database.Driver))
	}
	if cfg.Database.MaxOpenConns > 0 {
		opts = append(opts, store.WithMaxOpenConns(cfg.Database.MaxOpenConns))
	}

	s, err := store.Open(ctx, dbPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// newIngestGate builds the quality gate from the configured bounds.
func newIngestGate(cfg config.IngestConfig) *ingest.Gate {
	if cfg.MinTemperature == nil || cfg.MaxTemperature == nil {
		return ingest.NewGate()
	}
	return ingest.NewGate(ingest.TemperatureRange(*cfg.MinTemperature, *cfg.MaxTemperature))
}

// newTokenAuth returns the session token issuer and, for JWTs, the verifier
// the gate checks before the store lookup.
func newTokenAuth(cfg config.AuthConfig, logger *slog.Logger) (auth.TokenIssuer, auth.TokenVerifier, error) {
	if cfg.JWTSecret == "" {
		logger.Info("session tokens: random")
		return auth.RandomIssuer{}, nil, nil
	}
	issuer, err := auth.NewJWTIssuer([]byte(cfg.JWTSecret), cfg.SessionTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("creating JWT issuer: %w", err)
	}
	logger.Info("session tokens: JWT", "ttl", cfg.SessionTTL)
	return issuer, issuer, nil
}

// New creates a gateway from cfg. It opens the store but starts no listeners.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := openStore(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}

	issuer, verifier, err := newTokenAuth(cfg.Auth, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	gw := &Gateway{
		config:    cfg,
		store:     s,
		telemetry: telemetry.New(s, newIngestGate(cfg.Ingest), logger),
		sessions:  session.New(s, issuer, logger),
		gate:      auth.NewGate(s, verifier, logger),
		logger:    logger.With("component", "gateway"),
	}

	gw.grpcServer, gw.health = createGRPCServer(logger)

	router := mux.NewRouter()
	router.HandleFunc("/health", gw.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", gw.handleReady).Methods(http.MethodGet)
	api.New(gw.telemetry, gw.sessions, gw.gate, logger).Register(router)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.MQTT.Enabled {
		gw.seen = dedupe.NewWindow(mqttDedupeWindow, mqttDedupeSize)
		handler := mqtt.NewHandler(gw.gate, gw.telemetry, logger, mqtt.WithDedupe(gw.seen))
		gw.subscriber, err = mqtt.NewSubscriber(mqtt.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
		}, handler.HandleMessage, logger)
		if err != nil {
			gw.seen.Close()
			_ = s.Close()
			return nil, fmt.Errorf("creating mqtt subscriber: %w", err)
		}
	}

	return gw, nil
}

// Handler returns the HTTP handler serving health checks and the API.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Sessions returns the session service.
func (g *Gateway) Sessions() *session.Service {
	return g.sessions
}

func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)

	grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	return grpcLn, httpLn, nil
}

func (g *Gateway) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.GRPCAddr != "" || g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.grpc_addr and server.http_addr are ignored when tailscale is enabled",
				"grpc_addr", g.config.Server.GRPCAddr,
				"http_addr", g.config.Server.HTTPAddr,
			)
		}
		return g.listenTailnet(ctx)
	}
	return g.setupTCPListeners()
}

func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		g.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
		if err := g.grpcServer.Serve(grpcLn); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// connectMQTT keeps trying to reach the broker until ctx ends. The HTTP and
// gRPC servers do not wait for it.
func (g *Gateway) connectMQTT(ctx context.Context) {
	timer := time.AfterFunc(g.config.MQTT.ConnectTimeout, func() {
		if !g.subscriber.IsConnected() {
			g.logger.Warn("mqtt broker not reachable yet, still retrying",
				"broker", g.config.MQTT.Broker,
				"after", g.config.MQTT.ConnectTimeout)
		}
	})
	defer timer.Stop()

	if err := g.subscriber.Connect(ctx); err != nil && ctx.Err() == nil && !errors.Is(err, mqtt.ErrStopped) {
		g.logger.Error("mqtt connect failed", "broker", g.config.MQTT.Broker, "error", err)
	}
}

// Run starts all servers and blocks until ctx is canceled or a server fails,
// then shuts down with a 5 second grace period.
func (g *Gateway) Run(ctx context.Context) error {
	grpcListener, httpListener, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServers(grpcListener, httpListener)

	if g.subscriber != nil {
		go g.connectMQTT(ctx)
	}
	go g.watchHealth(ctx)

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
		select {
		case additionalErr := <-errCh:
			g.logger.Error("additional server error", "error", additionalErr)
		default:
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	g.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops every server and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	if g.subscriber != nil {
		g.subscriber.Disconnect()
		g.seen.Close()
	}

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.shutdownGRPCServer(ctx)

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}

// handleHealth returns 200 OK while the process is up.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK when the store answers a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
