// ABOUTME: Decodes station batch messages, authorizes them and stores the readings
// ABOUTME: Uses the same auth gate and telemetry service as the HTTP API

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/weather-gateway/internal/auth"
	"github.com/2389/weather-gateway/internal/dedupe"
	"github.com/2389/weather-gateway/internal/store"
	"github.com/2389/weather-gateway/internal/telemetry"
)

var (
	// ErrMalformed is returned for payloads that are not a valid batch message.
	ErrMalformed = errors.New("malformed message")
	// ErrDuplicate is returned for a payload already stored within the dedupe window.
	ErrDuplicate = errors.New("duplicate message")
)

// IngestRoles may publish readings.
var IngestRoles = store.Roles{store.RoleAdmin, store.RoleStudent, store.RoleStation}

// handleTimeout bounds the authorization and store work for one message.
const handleTimeout = 10 * time.Second

// Message is the JSON payload a station publishes.
type Message struct {
	DeviceName        string         `json:"deviceName"`
	AuthenticationKey string         `json:"authenticationKey"`
	Readings          []ReadingEntry `json:"readings"`
}

// ReadingEntry is one measurement in a Message. Absent values are zero.
type ReadingEntry struct {
	Time                time.Time `json:"time"`
	Precipitation       float64   `json:"precipitation"`
	AtmosphericPressure float64   `json:"atmosphericPressure"`
	MaxWindSpeed        float64   `json:"maxWindSpeed"`
	SolarRadiation      float64   `json:"solarRadiation"`
	VaporPressure       float64   `json:"vaporPressure"`
	Humidity            float64   `json:"humidity"`
	Temperature         float64   `json:"temperature"`
	WindDirection       float64   `json:"windDirection"`
	Latitude            float64   `json:"latitude"`
	Longitude           float64   `json:"longitude"`
}

func (e ReadingEntry) reading() *store.Reading {
	return &store.Reading{
		Time:                e.Time,
		Precipitation:       e.Precipitation,
		AtmosphericPressure: e.AtmosphericPressure,
		MaxWindSpeed:        e.MaxWindSpeed,
		SolarRadiation:      e.SolarRadiation,
		VaporPressure:       e.VaporPressure,
		Humidity:            e.Humidity,
		Temperature:         e.Temperature,
		WindDirection:       e.WindDirection,
		Latitude:            e.Latitude,
		Longitude:           e.Longitude,
	}
}

// Handler turns station messages into stored readings.
type Handler struct {
	gate      *auth.Gate
	telemetry *telemetry.Service
	seen      *dedupe.Window
	logger    *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithDedupe skips payloads identical to one stored within w's window.
func WithDedupe(w *dedupe.Window) HandlerOption {
	return func(h *Handler) { h.seen = w }
}

// NewHandler creates a message handler.
func NewHandler(gate *auth.Gate, telemetry *telemetry.Service, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		gate:      gate,
		telemetry: telemetry,
		logger:    logger.With("component", "mqtt"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle authorizes one payload and stores its readings. It returns how many
// readings were stored.
func (h *Handler) Handle(ctx context.Context, payload []byte) (int, error) {
	if h.seen == nil {
		return h.handle(ctx, payload)
	}

	key := dedupe.Key(payload)
	if !h.seen.Claim(key) {
		return 0, ErrDuplicate
	}
	n, err := h.handle(ctx, payload)
	if err != nil {
		h.seen.Release(key)
	}
	return n, err
}

func (h *Handler) handle(ctx context.Context, payload []byte) (int, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(msg.DeviceName) == "" {
		return 0, fmt.Errorf("%w: deviceName is required", ErrMalformed)
	}
	for i, e := range msg.Readings {
		if e.Time.IsZero() {
			return 0, fmt.Errorf("%w: readings[%d]: time is required", ErrMalformed, i)
		}
	}

	id, err := h.gate.Authorize(ctx, msg.AuthenticationKey, IngestRoles)
	if err != nil {
		return 0, err
	}

	readings := make([]*store.Reading, len(msg.Readings))
	for i, e := range msg.Readings {
		readings[i] = e.reading()
	}

	n, err := h.telemetry.CreateBatch(ctx, msg.DeviceName, readings)
	if err != nil {
		return 0, err
	}

	h.logger.Debug("stored station batch",
		"device", msg.DeviceName,
		"user_id", id.UserID,
		"received", len(readings),
		"stored", n)
	return n, nil
}

// HandleMessage is a MessageHandler. Duplicates are logged at debug,
// malformed and unauthorized messages at warn, store failures at error.
func (h *Handler) HandleMessage(topic string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	_, err := h.Handle(ctx, payload)
	switch {
	case err == nil:
	case errors.Is(err, ErrDuplicate):
		h.logger.Debug("skipping duplicate message", "topic", topic)
	case errors.Is(err, ErrMalformed):
		h.logger.Warn("dropping malformed message", "topic", topic, "error", err)
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrForbidden):
		h.logger.Warn("dropping unauthorized message", "topic", topic, "error", err)
	default:
		h.logger.Error("failed to store station batch", "topic", topic, "error", err)
	}
}
