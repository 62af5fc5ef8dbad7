// ABOUTME: Tests for tailnet node configuration
// ABOUTME: Covers state dir and auth key resolution without joining a tailnet

package gateway

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/2389/weather-gateway/internal/config"
)

func TestTailscaleStateDir(t *testing.T) {
	got, err := tailscaleStateDir(config.TailscaleConfig{StateDir: "/srv/ts"})
	if err != nil {
		t.Fatalf("tailscaleStateDir() error: %v", err)
	}
	if got != "/srv/ts" {
		t.Errorf("tailscaleStateDir() = %q, want /srv/ts", got)
	}

	t.Setenv("HOME", "/home/station")
	got, err = tailscaleStateDir(config.TailscaleConfig{})
	if err != nil {
		t.Fatalf("tailscaleStateDir() error: %v", err)
	}
	want := filepath.Join("/home/station", ".local", "share", "weather-gateway", "tailscale")
	if got != want {
		t.Errorf("tailscaleStateDir() = %q, want %q", got, want)
	}
}

func TestTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "tskey-env")

	got, err := tailscaleAuthKey(config.TailscaleConfig{AuthKey: "tskey-config"})
	if err != nil || got != "tskey-config" {
		t.Errorf("configured key: got %q, %v", got, err)
	}

	got, err = tailscaleAuthKey(config.TailscaleConfig{})
	if err != nil || got != "tskey-env" {
		t.Errorf("env key: got %q, %v", got, err)
	}

	t.Setenv("TS_AUTHKEY", "")
	if _, err := tailscaleAuthKey(config.TailscaleConfig{}); !errors.Is(err, errNoTailscaleAuthKey) {
		t.Errorf("missing key: err = %v, want errNoTailscaleAuthKey", err)
	}
}

func TestNewTailnetNode(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	node, err := newTailnetNode(config.TailscaleConfig{
		Hostname:  "weather-gateway",
		StateDir:  dir,
		AuthKey:   "tskey-test",
		Ephemeral: true,
	})
	if err != nil {
		t.Fatalf("newTailnetNode() error: %v", err)
	}
	if node.Dir != dir || node.Hostname != "weather-gateway" || !node.Ephemeral {
		t.Errorf("newTailnetNode() = %+v", node)
	}

	t.Setenv("TS_AUTHKEY", "")
	_, err = newTailnetNode(config.TailscaleConfig{StateDir: dir})
	if err == nil || !strings.Contains(err.Error(), "auth key required") {
		t.Errorf("newTailnetNode() without key error = %v", err)
	}
}
