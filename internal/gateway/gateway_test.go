// ABOUTME: Tests for the Gateway orchestrator
// ABOUTME: Starts real listeners for health checks and gRPC health, drives the API through the router

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/weather-gateway/internal/config"
	"github.com/2389/weather-gateway/internal/session"
	"github.com/2389/weather-gateway/internal/store"
)

// freeAddr returns a loopback address with a port that was free a moment ago.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// testConfig creates a minimal config for testing with available ports.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			GRPCAddr: freeAddr(t),
			HTTPAddr: freeAddr(t),
		},
		Database: config.DatabaseConfig{
			Path: ":memory:",
		},
		Auth: config.AuthConfig{
			SessionTTL: time.Hour,
		},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, cfg *config.Config) *Gateway {
	t.Helper()
	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	return gw
}

// runGateway runs gw until the test ends and waits for HTTP to answer.
func runGateway(t *testing.T, gw *Gateway, httpAddr string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = gw.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + httpAddr + "/health")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("gateway did not start listening on %s", httpAddr)
}

func TestGatewayNew(t *testing.T) {
	cfg := testConfig(t)
	gw := newTestGateway(t, cfg)

	if gw.config != cfg {
		t.Error("gateway config mismatch")
	}
	if gw.store == nil {
		t.Error("store should not be nil")
	}
	if gw.subscriber != nil {
		t.Error("subscriber should be nil when mqtt is disabled")
	}
}

func TestGatewayNew_WeakJWTSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = "too-short"

	if _, err := New(cfg, testLogger()); err == nil {
		t.Fatal("New() expected error for weak jwt secret, got nil")
	}
}

func TestGatewayNew_MQTTEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.MQTT = config.MQTTConfig{
		Enabled:        true,
		Broker:         "tcp://127.0.0.1:1",
		ClientID:       "test",
		Topic:          "stations/+/readings",
		ConnectTimeout: 50 * time.Millisecond,
	}

	gw := newTestGateway(t, cfg)
	if gw.subscriber == nil {
		t.Fatal("subscriber should be created when mqtt is enabled")
	}
	if gw.seen == nil {
		t.Error("dedupe window should be created when mqtt is enabled")
	}
}

func TestGatewayRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("gateway did not shutdown in time")
	}
}

func TestGatewayRun_MQTTBrokerDownDoesNotBlockHTTP(t *testing.T) {
	cfg := testConfig(t)
	cfg.MQTT = config.MQTTConfig{
		Enabled:        true,
		Broker:         "tcp://127.0.0.1:1",
		ClientID:       "test",
		Topic:          "stations/+/readings",
		ConnectTimeout: 50 * time.Millisecond,
	}

	gw := newTestGateway(t, cfg)
	runGateway(t, gw, cfg.Server.HTTPAddr)
}

func TestHealthEndpoints(t *testing.T) {
	cfg := testConfig(t)
	gw := newTestGateway(t, cfg)
	runGateway(t, gw, cfg.Server.HTTPAddr)

	for _, path := range []string{"/health", "/health/ready"} {
		resp, err := http.Get("http://" + cfg.Server.HTTPAddr + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}

func TestReadyEndpoint_StoreClosed(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))
	if err := gw.store.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestGRPCHealth(t *testing.T) {
	cfg := testConfig(t)
	gw := newTestGateway(t, cfg)
	runGateway(t, gw, cfg.Server.HTTPAddr)

	conn, err := grpc.NewClient(cfg.Server.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient() failed: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health Check() failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("health status = %v, want SERVING", resp.GetStatus())
	}
}

// postJSON sends body through the gateway router and decodes the reply.
func postJSON(t *testing.T, h http.Handler, path string, body any) (int, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s response %q: %v", path, rec.Body.String(), err)
	}
	return rec.Code, out
}

func seedStation(t *testing.T, sessions *session.Service) {
	t.Helper()
	_, err := sessions.CreateUser(context.Background(), session.NewUser{
		Email:    "station@example.com",
		Password: store.PlaintextPassword("secret"),
		Role:     store.RoleStation,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
}

func login(t *testing.T, h http.Handler) string {
	t.Helper()
	code, body := postJSON(t, h, "/users/login", map[string]any{
		"email":    "station@example.com",
		"password": "secret",
	})
	if code != http.StatusOK {
		t.Fatalf("login status = %d, body = %v", code, body)
	}
	return body["authenticationKey"].(string)
}

func reading(token string, temperature float64) map[string]any {
	return map[string]any{
		"authenticationKey":   token,
		"deviceName":          "Noosa_Sensor",
		"time":                "2021-05-07T02:54:10Z",
		"precipitation":       0.1,
		"atmosphericPressure": 128.0,
		"maxWindSpeed":        4.9,
		"solarRadiation":      113.2,
		"vaporPressure":       1.7,
		"humidity":            73.8,
		"temperature":         temperature,
		"windDirection":       155.6,
		"latitude":            152.7,
		"longitude":           -26.9,
	}
}

func TestAPIThroughGateway(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))
	seedStation(t, gw.Sessions())
	h := gw.Handler()

	token := login(t, h)
	code, body := postJSON(t, h, "/readings", reading(token, 22))
	if code != http.StatusOK {
		t.Fatalf("create reading status = %d, body = %v", code, body)
	}

	n, err := gw.store.CountReadings(context.Background())
	if err != nil {
		t.Fatalf("CountReadings() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("CountReadings() = %d, want 1", n)
	}
}

func TestJWTSessions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = strings.Repeat("k", 32)

	gw := newTestGateway(t, cfg)
	seedStation(t, gw.Sessions())
	h := gw.Handler()

	token := login(t, h)
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Fatalf("token %q is not a JWT", token)
	}

	code, _ := postJSON(t, h, "/readings", reading(token, 22))
	if code != http.StatusOK {
		t.Errorf("create reading with JWT session status = %d, want 200", code)
	}

	// Correctly shaped but unsigned by us.
	forged := strings.Join([]string{"eyJhbGciOiJIUzI1NiJ9", "eyJzdWIiOiJ4In0", "c2ln"}, ".")
	code, _ = postJSON(t, h, "/readings", reading(forged, 22))
	if code != http.StatusUnauthorized {
		t.Errorf("forged token status = %d, want 401", code)
	}
}

func TestIngestBoundsFromConfig(t *testing.T) {
	cfg := testConfig(t)
	minT, maxT := 0.0, 10.0
	cfg.Ingest = config.IngestConfig{MinTemperature: &minT, MaxTemperature: &maxT}

	gw := newTestGateway(t, cfg)
	seedStation(t, gw.Sessions())
	h := gw.Handler()
	token := login(t, h)

	code, _ := postJSON(t, h, "/readings", reading(token, 20))
	if code != http.StatusUnprocessableEntity {
		t.Errorf("out of configured range status = %d, want 422", code)
	}
	code, _ = postJSON(t, h, "/readings", reading(token, 5))
	if code != http.StatusOK {
		t.Errorf("inside configured range status = %d, want 200", code)
	}
}

func TestGatewayUsesDefaultHashCost(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))
	seedStation(t, gw.Sessions())

	u, err := gw.store.GetUserByEmail(context.Background(), "station@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() failed: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(u.Password.Value()))
	if err != nil {
		t.Fatalf("bcrypt.Cost() failed: %v", err)
	}
	if cost != bcrypt.DefaultCost {
		t.Errorf("hash cost = %d, want %d", cost, bcrypt.DefaultCost)
	}
}
