// ABOUTME: Quality gate applied to readings before they are persisted
// ABOUTME: Evaluates an ordered list of rejection rules and stops at the first failure

package ingest

import (
	"errors"
	"fmt"

	"github.com/2389/weather-gateway/internal/store"
)

// Default plausible air temperature range in degrees Celsius.
const (
	DefaultMinTemperature = -50.0
	DefaultMaxTemperature = 60.0
)

// ErrRejected is matched by every RejectionError.
var ErrRejected = errors.New("reading rejected")

// RejectionError reports which rule rejected a reading.
type RejectionError struct {
	Rule string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("reading rejected by %s", e.Rule)
}

// Unwrap lets errors.Is match ErrRejected.
func (e *RejectionError) Unwrap() error {
	return ErrRejected
}

// Rule rejects readings that look like sensor faults.
type Rule struct {
	Name   string
	Reject func(r *store.Reading) bool
}

// TemperatureRange rejects readings with a temperature above max or below
// min. Both bounds are inclusive for acceptance.
func TemperatureRange(min, max float64) Rule {
	return Rule{
		Name: "temperature_range",
		Reject: func(r *store.Reading) bool {
			return r.Temperature > max || r.Temperature < min
		},
	}
}

// DefaultRules returns the rules used when none are configured.
func DefaultRules() []Rule {
	return []Rule{TemperatureRange(DefaultMinTemperature, DefaultMaxTemperature)}
}

// Gate evaluates rules in order. It is stateless and safe for concurrent use.
type Gate struct {
	rules []Rule
}

// NewGate creates a gate over the given rules, or DefaultRules when none
// are given.
func NewGate(rules ...Rule) *Gate {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Gate{rules: rules}
}

// Check returns a *RejectionError for the first rule that rejects r, or nil.
func (g *Gate) Check(r *store.Reading) error {
	for _, rule := range g.rules {
		if rule.Reject(r) {
			return &RejectionError{Rule: rule.Name}
		}
	}
	return nil
}

// Accepts reports whether r passes every rule.
func (g *Gate) Accepts(r *store.Reading) bool {
	return g.Check(r) == nil
}

// Rules returns the names of the configured rules in evaluation order.
func (g *Gate) Rules() []string {
	names := make([]string, len(g.rules))
	for i, r := range g.rules {
		names[i] = r.Name
	}
	return names
}
