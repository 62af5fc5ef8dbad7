// ABOUTME: Tailnet listeners used instead of TCP when tailscale.enabled is set
// ABOUTME: gRPC on :50051; HTTP on :80, or TLS on :443 with tailscale certs or funnel

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/tsnet"

	"github.com/2389/weather-gateway/internal/config"
)

const (
	tailnetGRPCPort = ":50051"
	tailnetHTTPPort = ":80"
	tailnetTLSPort  = ":443"
)

var errNoTailscaleAuthKey = errors.New("tailscale auth key required: set tailscale.auth_key or TS_AUTHKEY")

// tailscaleStateDir returns where the node keeps its state, defaulting to
// ~/.local/share/weather-gateway/tailscale.
func tailscaleStateDir(cfg config.TailscaleConfig) (string, error) {
	if cfg.StateDir != "" {
		return cfg.StateDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving tailscale state dir (set tailscale.state_dir): %w", err)
	}
	return filepath.Join(home, ".local", "share", "weather-gateway", "tailscale"), nil
}

// tailscaleAuthKey prefers the configured key over TS_AUTHKEY.
func tailscaleAuthKey(cfg config.TailscaleConfig) (string, error) {
	if cfg.AuthKey != "" {
		return cfg.AuthKey, nil
	}
	if key := os.Getenv("TS_AUTHKEY"); key != "" {
		return key, nil
	}
	return "", errNoTailscaleAuthKey
}

// newTailnetNode prepares a tsnet server without bringing it up.
func newTailnetNode(cfg config.TailscaleConfig) (*tsnet.Server, error) {
	dir, err := tailscaleStateDir(cfg)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}
	key, err := tailscaleAuthKey(cfg)
	if err != nil {
		return nil, err
	}
	return &tsnet.Server{
		Hostname:  cfg.Hostname,
		Dir:       dir,
		Ephemeral: cfg.Ephemeral,
		AuthKey:   key,
	}, nil
}

// listenTailnet joins the tailnet and opens the gRPC and HTTP listeners on it.
// On error every resource opened so far is closed.
func (g *Gateway) listenTailnet(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	cfg := g.config.Tailscale

	node, err := newTailnetNode(cfg)
	if err != nil {
		return nil, nil, err
	}
	g.tsnetServer = node
	defer func() {
		if err != nil {
			if grpcLn != nil {
				_ = grpcLn.Close()
			}
			_ = node.Close()
			g.tsnetServer = nil
		}
	}()

	g.logger.Info("joining tailnet", "hostname", cfg.Hostname, "state_dir", node.Dir, "ephemeral", cfg.Ephemeral)
	status, err := node.Up(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}

	attrs := []any{"hostname", cfg.Hostname}
	if len(status.TailscaleIPs) > 0 {
		attrs = append(attrs, "tailscale_ip", status.TailscaleIPs[0].String())
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		attrs = append(attrs, "dns_name", status.Self.DNSName)
	}
	g.logger.Info("tailscale node ready", attrs...)

	grpcLn, err = node.Listen("tcp", tailnetGRPCPort)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on tailnet %s: %w", tailnetGRPCPort, err)
	}
	httpLn, err = g.listenTailnetHTTP(node, cfg)
	if err != nil {
		return nil, nil, err
	}
	return grpcLn, httpLn, nil
}

func (g *Gateway) listenTailnetHTTP(node *tsnet.Server, cfg config.TailscaleConfig) (net.Listener, error) {
	if cfg.Funnel {
		g.logger.Info("serving HTTP through tailscale funnel", "port", tailnetTLSPort)
		ln, err := node.ListenFunnel("tcp", tailnetTLSPort)
		if err != nil {
			return nil, fmt.Errorf("listening on funnel %s: %w", tailnetTLSPort, err)
		}
		return ln, nil
	}

	if !cfg.HTTPS {
		ln, err := node.Listen("tcp", tailnetHTTPPort)
		if err != nil {
			return nil, fmt.Errorf("listening on tailnet %s: %w", tailnetHTTPPort, err)
		}
		return ln, nil
	}

	g.logger.Info("serving HTTPS with tailscale certificates", "port", tailnetTLSPort)
	lc, err := node.LocalClient()
	if err != nil {
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	ln, err := node.Listen("tcp", tailnetTLSPort)
	if err != nil {
		return nil, fmt.Errorf("listening on tailnet %s: %w", tailnetTLSPort, err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}
