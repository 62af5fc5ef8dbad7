// ABOUTME: Entry point for the weather-gateway server
// ABOUTME: Serves station telemetry and user sessions; also bootstraps the first admin

package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/weather-gateway/internal/config"
	"github.com/2389/weather-gateway/internal/gateway"
	"github.com/2389/weather-gateway/internal/session"
	"github.com/2389/weather-gateway/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                     _   _                                 _
 __      _____  __ _| |_| |__   ___ _ __       __ _  __ _| |_ _____      ____ _ _   _
 \ \ /\ / / _ \/ _' | __| '_ \ / _ \ '__|____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
  \ V  V /  __/ (_| | |_| | | |  __/ | |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
   \_/\_/ \___|\__,_|\__|_| |_|\___|_|        \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                              |___/                             |___/
`

// getDataPath returns the path to the weather-gateway data directory.
// Priority: XDG_DATA_HOME/weather-gateway > ~/.local/share/weather-gateway
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "weather-gateway")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: weather-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                        Start the gateway server")
		fmt.Println("  init                         Create a new config file interactively")
		fmt.Println("  bootstrap --email E --password P [--first-name F] [--last-name L]")
		fmt.Println("                               Create the first admin user")
		fmt.Println("  health                       Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s (%s)\n", cfg.Database.Path, cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)

	if cfg.MQTT.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("MQTT:      %s ", cfg.MQTT.Broker)
		gray.Printf("(%s)\n", cfg.MQTT.Topic)
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting weather-gateway",
		"version", version,
		"config", configPath,
		"grpc_addr", cfg.Server.GRPCAddr,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// runBootstrap performs first-time setup of the gateway:
// 1. Creates a config file (if not exists)
// 2. Creates the database and the first admin user
//
// weather-gateway bootstrap --email admin@example.com --password secret
func runBootstrap(ctx context.Context, args []string) error {
	in, err := parseBootstrapArgs(args)
	if err != nil {
		return err
	}

	configPath := config.DefaultPath()
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		dbPath := filepath.Join(getDataPath(), "gateway.db")
		if err := writeConfigFile(configPath, "bootstrap", defaultConfigFile(dbPath, secret)); err != nil {
			return err
		}
		green.Printf("  ✓ Created config: %s\n", configPath)
	} else {
		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stderr)
	s, err := store.Open(ctx, cfg.Database.Path, store.WithDriver(cfg.Database.Driver), store.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	u, err := session.New(s, nil, logger).Bootstrap(ctx, in)
	if err != nil {
		return fmt.Errorf("creating admin: %w", err)
	}

	green.Printf("  ✓ Created admin user: %s\n", u.Email)

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Admin User")
	cyan.Println("  ----------")
	fmt.Printf("  ID:      %s\n", u.ID)
	fmt.Printf("  Email:   %s\n", u.Email)
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		fmt.Printf("  Name:    %s\n", name)
	}
	fmt.Printf("  Role:    %s\n", u.Role)
	fmt.Printf("  Created: %s\n", u.CreatedDate.Format("Jan 02, 2006"))
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    weather-gateway serve                       # start the gateway")
	fmt.Println("    curl -d '{\"email\":...}' localhost:8080/users/login   # get an authentication key")
	fmt.Println()

	return nil
}

// parseBootstrapArgs accepts both "--flag value" and "--flag=value".
func parseBootstrapArgs(args []string) (session.NewUser, error) {
	values := map[string]*string{}
	var email, password, firstName, lastName string
	values["--email"] = &email
	values["--password"] = &password
	values["--first-name"] = &firstName
	values["--last-name"] = &lastName

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		dst, ok := values[name]
		switch {
		case ok && hasValue:
			*dst = value
		case ok:
			if i+1 >= len(args) {
				return session.NewUser{}, fmt.Errorf("%s requires a value", name)
			}
			*dst = args[i+1]
			i++
		case strings.HasPrefix(arg, "-"):
			return session.NewUser{}, fmt.Errorf("unknown flag: %s", arg)
		default:
			return session.NewUser{}, fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	email = strings.TrimSpace(email)
	if email == "" {
		return session.NewUser{}, fmt.Errorf("--email flag is required")
	}
	if password == "" {
		return session.NewUser{}, fmt.Errorf("--password flag is required")
	}

	return session.NewUser{
		Email:     email,
		Password:  store.PlaintextPassword(password),
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
	}, nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("weather-gateway configuration setup")
	fmt.Println("===================================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", config.DefaultPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg, err := askConfig(reader)
	if err != nil {
		return err
	}
	if err := writeConfigFile(outputFile, "init", cfg); err != nil {
		return err
	}

	dataDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nNext steps:")
	fmt.Println("  export WEATHER_GATEWAY_JWT_SECRET=...   # 32+ characters, or leave unset for random tokens")
	fmt.Println("  weather-gateway bootstrap --email you@example.com --password ...")
	fmt.Println("  weather-gateway serve")

	return nil
}

// askConfig walks through each config section on reader.
func askConfig(reader *bufio.Reader) (configFile, error) {
	cfg := defaultConfigFile(filepath.Join(getDataPath(), "gateway.db"), "${WEATHER_GATEWAY_JWT_SECRET}")

	fmt.Println("\n--- Server ---")
	cfg.Server.GRPCAddr = prompt(reader, "gRPC address", cfg.Server.GRPCAddr)
	cfg.Server.HTTPAddr = prompt(reader, "HTTP address", cfg.Server.HTTPAddr)

	fmt.Println("\n--- Database ---")
	cfg.Database.Driver = prompt(reader, "SQLite driver (sqlite/sqlite3)", cfg.Database.Driver)
	cfg.Database.Path = prompt(reader, "SQLite database path", cfg.Database.Path)

	fmt.Println("\n--- Ingest ---")
	minTemp, err := strconv.ParseFloat(prompt(reader, "Minimum accepted temperature", "-50"), 64)
	if err != nil {
		return configFile{}, fmt.Errorf("minimum temperature: %w", err)
	}
	maxTemp, err := strconv.ParseFloat(prompt(reader, "Maximum accepted temperature", "60"), 64)
	if err != nil {
		return configFile{}, fmt.Errorf("maximum temperature: %w", err)
	}
	if minTemp > maxTemp {
		return configFile{}, fmt.Errorf("minimum temperature %g is above maximum %g", minTemp, maxTemp)
	}
	cfg.Ingest = &ingestSection{MinTemperature: minTemp, MaxTemperature: maxTemp}

	fmt.Println("\n--- MQTT ---")
	if yes(prompt(reader, "Subscribe to station batches over MQTT?", "no")) {
		cfg.MQTT = &mqttSection{
			Enabled: true,
			Broker:  prompt(reader, "Broker URL", "tcp://localhost:1883"),
			Topic:   prompt(reader, "Topic", config.DefaultMQTTTopic),
		}
	}

	fmt.Println("\n--- Tailscale ---")
	if yes(prompt(reader, "Enable Tailscale?", "no")) {
		cfg.Tailscale = &tailscaleSection{
			Enabled:   true,
			Hostname:  prompt(reader, "Tailscale hostname", "weather-gateway"),
			AuthKey:   prompt(reader, "Tailscale auth key (leave empty for interactive)", ""),
			Ephemeral: yes(prompt(reader, "Ephemeral node?", "no")),
			Funnel:    yes(prompt(reader, "Enable Funnel (public HTTPS)?", "no")),
		}
	}

	fmt.Println("\n--- Logging ---")
	cfg.Logging.Level = prompt(reader, "Log level (debug/info/warn/error)", cfg.Logging.Level)
	cfg.Logging.Format = prompt(reader, "Log format (text/json)", cfg.Logging.Format)

	return cfg, nil
}

func yes(answer string) bool {
	a := strings.ToLower(answer)
	return a == "yes" || a == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
