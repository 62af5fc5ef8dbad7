// Package gateway orchestrates the weather-gateway server components.
//
// # Overview
//
// Gateway owns the SQLite store and the services built on it and exposes
// them through three front doors:
//
//   - HTTP: the JSON API from package api on a gorilla/mux router, plus
//     GET /health (liveness) and GET /health/ready (store ping)
//   - gRPC: the standard grpc.health.v1 service and server reflection;
//     health reports NOT_SERVING while the store does not answer a ping
//   - MQTT (optional): station batches received by mqtt.Subscriber
//
// # Wiring
//
//	store.SQLiteStore
//	  ├── telemetry.Service (ingest.Gate from ingest.* bounds)
//	  ├── session.Service   (auth.RandomIssuer, or auth.JWTIssuer with auth.jwt_secret)
//	  └── auth.Gate         (JWT pre-verification when configured)
//
// # Tailscale
//
// With tailscale.enabled the listeners come from a tsnet node instead of
// server.http_addr and server.grpc_addr: gRPC on :50051 and HTTP on :80,
// or :443 with tailscale.https or tailscale.funnel.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled
//
// Run returns after a graceful shutdown bounded by 5 seconds. A broker that is
// down at startup does not delay the HTTP and gRPC servers; the subscriber
// keeps retrying in the background.
package gateway
