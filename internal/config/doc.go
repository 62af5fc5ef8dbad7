// Package config handles configuration loading for weather-gateway.
//
// # Configuration File
//
// The path comes from the WEATHER_GATEWAY_CONFIG environment variable, else
// $XDG_CONFIG_HOME/weather-gateway/gateway.yaml (~/.config when unset).
// Files ending in .toml are parsed as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${WEATHER_GATEWAY_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  grpc_addr: "0.0.0.0:50051"   # gRPC health and reflection
//	  http_addr: "0.0.0.0:8080"    # HTTP API
//
//	database:
//	  driver: "sqlite"             # sqlite (pure Go) or sqlite3 (cgo)
//	  path: "/var/lib/weather-gateway/gateway.db"
//	  max_open_conns: 0            # 0 keeps the driver default
//
//	auth:
//	  jwt_secret: ""               # empty: opaque random session tokens
//	  session_ttl: "24h"           # JWT expiry
//
//	ingest:
//	  min_temperature: -50
//	  max_temperature: 60
//
//	mqtt:
//	  enabled: false
//	  broker: "tcp://localhost:1883"
//	  client_id: "weather-gateway"
//	  topic: "stations/+/readings"
//	  connect_timeout: "5s"
//
//	tailscale:
//	  enabled: false
//	  hostname: "weather-gateway"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: false
//	  funnel: false
//
//	logging:
//	  level: "info"                # debug, info, warn, error
//	  format: "text"               # text, json
//
// Durations use time.ParseDuration syntax.
package config
