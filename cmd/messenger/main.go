// ABOUTME: Entry point for the messenger backend service
// ABOUTME: Runs the store, retention jobs, and the latency probe

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/messenger/internal/auth"
	"github.com/2389/messenger/internal/config"
	"github.com/2389/messenger/internal/snowflake"
	"github.com/2389/messenger/internal/store"
	"github.com/2389/messenger/internal/task"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _ __ ___   ___  ___ ___  ___ _ __   __ _  ___ _ __
 | '_ ' _ \ / _ \/ __/ __|/ _ \ '_ \ / _' |/ _ \ '__|
 | | | | | |  __/\__ \__ \  __/ | | | (_| |  __/ |
 |_| |_| |_|\___||___/___/\___|_| |_|\__, |\___|_|
                                     |___/
`

// getConfigPath returns the path to the messenger config file.
// Priority: MESSENGER_CONFIG env var > XDG_CONFIG_HOME/messenger/messenger.yaml > ~/.config/messenger/messenger.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MESSENGER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "messenger.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "messenger", "messenger.yaml")
}

// getDataPath returns the path to the messenger data directory.
// Priority: XDG_DATA_HOME/messenger > ~/.local/share/messenger
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "messenger")
}

func main() {
	// Local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: messenger <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                  Start the messenger service")
		fmt.Println("  init                   Create a new config file interactively")
		fmt.Println("  bootstrap --name NAME  Create the initial admin account and token")
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
		err = runBootstrap(ctx)
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
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)

	if cfg.Statuspage.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Probe:     ")
		cyan.Print(cfg.Statuspage.Target)
		yellow.Printf(" [every %s]", cfg.Statuspage.Interval)
		fmt.Println()
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Addr)
	}

	fmt.Println()

	logger.Info("starting messenger",
		"config", configPath,
		"database", cfg.Database.Path,
		"log_threshold", cfg.Database.LogLevel,
	)

	db, err := store.Open(cfg.Database.Path, store.WithLogThreshold(cfg.Database.LogLevel))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	sched := task.NewScheduler(db.Logs, logger, cfg.Retention.RetryDelay)

	sched.Start(ctx, task.SweepJob("messages-retention",
		cfg.Retention.Messages.InitialDelay, cfg.Retention.Messages.Interval,
		func(ctx context.Context) (int64, error) {
			return db.Messages.DeleteOlderThan(ctx, time.Now().Add(-cfg.Retention.Messages.MaxAge))
		}))
	sched.Start(ctx, task.SweepJob("logs-retention",
		cfg.Retention.Logs.InitialDelay, cfg.Retention.Logs.Interval,
		func(ctx context.Context) (int64, error) {
			return db.Logs.DeleteOlderThan(ctx, time.Now().Add(-cfg.Retention.Logs.MaxAge))
		}))

	if cfg.Statuspage.Enabled {
		probe := task.NewLatencyProbe(task.ProbeSettings{
			Target:     cfg.Statuspage.Target,
			APIBase:    cfg.Statuspage.APIBase,
			APIVersion: cfg.Statuspage.APIVersion,
			PageID:     cfg.Statuspage.PageID,
			MetricID:   cfg.Statuspage.MetricID,
			APIKey:     cfg.Statuspage.APIKey,
		}, db.Logs, nil)
		sched.Start(ctx, task.Job{
			Name:         "latency-probe",
			InitialDelay: cfg.Statuspage.InitialDelay,
			Interval:     cfg.Statuspage.Interval,
			Run:          probe.Run,
		})
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
			metrics.WritePrometheus(w, true)
		})
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
		logger.Info("metrics listener started", "addr", cfg.Metrics.Addr)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	sched.Wait()
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// runBootstrap performs first-time setup of the service:
// 1. Creates a config file with a random JWT secret (if not exists)
// 2. Creates the database and the initial admin account
// 3. Prints the admin's access token
//
// This is a one-command setup: messenger bootstrap --name "admin" --password "..."
func runBootstrap(ctx context.Context) error {
	// Parse args with explicit error handling
	// Supports both "--name value" and "--name=value" formats
	var name, password string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--name" || arg == "-n":
			if i+1 >= len(args) {
				return fmt.Errorf("--name requires a value")
			}
			name = args[i+1]
			i++
		case strings.HasPrefix(arg, "--name="):
			name = strings.TrimPrefix(arg, "--name=")
		case arg == "--password" || arg == "-p":
			if i+1 >= len(args) {
				return fmt.Errorf("--password requires a value")
			}
			password = args[i+1]
			i++
		case strings.HasPrefix(arg, "--password="):
			password = strings.TrimPrefix(arg, "--password=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	if name == "" {
		return fmt.Errorf("--name flag is required")
	}
	if password == "" {
		return fmt.Errorf("--password flag is required")
	}

	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "messenger.db")

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	// Check if config exists, create if not
	var cfg *config.Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Generate random JWT secret
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

		// Create config directory
		configDir := filepath.Dir(configPath)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		// Create data directory
		if err := os.MkdirAll(dataPath, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		// Write config file
		configContent := fmt.Sprintf(`# messenger configuration
# Generated by messenger bootstrap

database:
  path: "%s"
  log_level: 2

auth:
  jwt_secret: "%s"

logging:
  level: "info"
  format: "text"
`, dbPath, jwtSecret)

		if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}

		green.Printf("  ✓ Created config: %s\n", configPath)

		// Load the config we just created
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		// Config exists, load it
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	db, err := store.Open(cfg.Database.Path, store.WithLogThreshold(cfg.Database.LogLevel))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	token, err := db.Accounts.Register(ctx, name, password)
	if err != nil {
		return fmt.Errorf("creating account: %w", err)
	}

	id, err := auth.ParseToken(token)
	if err != nil {
		return fmt.Errorf("parsing minted token: %w", err)
	}

	adminID, err := db.Accounts.Promote(ctx, id, snowflake.TagAdmin)
	if err != nil {
		return fmt.Errorf("promoting account: %w", err)
	}

	green.Printf("  ✓ Created admin account: %s\n", name)

	// Print results. Promotion changes the id but not the stored token.
	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Admin Account")
	cyan.Println("  -------------")
	fmt.Printf("  ID:    %s\n", adminID)
	fmt.Printf("  Name:  %s\n", name)
	fmt.Printf("  Token: %s\n", token)
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    messenger serve    # start the service")
	fmt.Println()

	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("messenger configuration setup")
	fmt.Println("=============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "messenger.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)
	logThreshold := prompt(reader, "Log persistence threshold (0-5)", "2")

	// Retention
	fmt.Println("\n--- Retention Configuration ---")
	messageMaxAge := prompt(reader, "Message retention", "720h")
	logMaxAge := prompt(reader, "Log retention", "2160h")

	// Status page
	fmt.Println("\n--- Status Page Configuration ---")
	enableStatuspage := prompt(reader, "Enable latency probe?", "no")
	statuspageEnabled := strings.ToLower(enableStatuspage) == "yes" || strings.ToLower(enableStatuspage) == "y"

	var spTarget, spPage, spMetric string
	if statuspageEnabled {
		spTarget = prompt(reader, "Probe target URL", "")
		spPage = prompt(reader, "Status page ID", "")
		spMetric = prompt(reader, "Metric ID", "")
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# messenger configuration\n")
	cfg.WriteString("# Generated by messenger init\n\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString(fmt.Sprintf("  log_level: %s\n", logThreshold))
	cfg.WriteString("\n")

	cfg.WriteString("retention:\n")
	cfg.WriteString("  messages:\n")
	cfg.WriteString(fmt.Sprintf("    max_age: \"%s\"\n", messageMaxAge))
	cfg.WriteString("  logs:\n")
	cfg.WriteString(fmt.Sprintf("    max_age: \"%s\"\n", logMaxAge))
	cfg.WriteString("\n")

	cfg.WriteString("statuspage:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", statuspageEnabled))
	if statuspageEnabled {
		cfg.WriteString(fmt.Sprintf("  target: \"%s\"\n", spTarget))
		cfg.WriteString(fmt.Sprintf("  page_id: \"%s\"\n", spPage))
		cfg.WriteString(fmt.Sprintf("  metric_id: \"%s\"\n", spMetric))
		cfg.WriteString("  api_key: \"${STATUSPAGE_API_KEY}\"\n")
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  addr: \"localhost:9100\"\n")

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the service:")
	fmt.Printf("  messenger serve\n")

	return nil
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
