package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/dataset-attach/agent/internal/api"
	"github.com/dataset-attach/agent/internal/backend"
	"github.com/dataset-attach/agent/internal/classify"
	"github.com/dataset-attach/agent/internal/config"
	"github.com/dataset-attach/agent/internal/dataset"
	"github.com/dataset-attach/agent/internal/notify"
	"github.com/dataset-attach/agent/internal/record"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, "DatasetAttachAgent.exe.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	// Initialize record storage
	records, err := record.NewStore(cfg.GetDataDir())
	if err != nil {
		fmt.Printf("Failed to initialize record store: %v\n", err)
		os.Exit(1)
	}

	// Initialize backend client
	client, err := backend.New(backend.Options{
		BaseURL:       cfg.Backend.BaseURL,
		SessionHeader: cfg.Backend.SessionHeader,
		Timeout:       cfg.RequestTimeout(),
	})
	if err != nil {
		fmt.Printf("Failed to initialize backend client: %v\n", err)
		os.Exit(1)
	}

	// Load file classification rules if a custom file is configured
	var rules *classify.Rules
	if cfg.Storage.RulesFile != "" {
		rules, err = classify.LoadRules(cfg.Storage.RulesFile)
		if err != nil {
			fmt.Printf("Warning: failed to load rules file, using defaults: %v\n", err)
			rules = nil
		} else {
			fmt.Printf("Loaded classification rules from %s\n", cfg.Storage.RulesFile)
		}
	}

	// Initialize the error notifier
	notifier := notify.NewNotifier()
	notifier.SetDismissAfter(cfg.NoticeDismissAfter())

	// Initialize the dataset state machine
	manager := dataset.NewManager(client, records, notifier, rules)
	manager.AutoDescribeDelay = cfg.AutoDescribeDelay()
	manager.BannerDelay = cfg.BannerDelay()
	defer manager.Close()

	// Wait for the analytics backend before accepting work
	fmt.Printf("Probing backend at %s...\n", cfg.Backend.BaseURL)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.StartupProbeTimeout())
	if err := client.WaitReachable(ctx, cfg.StartupProbeTimeout()); err != nil {
		fmt.Printf("Warning: backend not reachable yet: %v\n", err)
	} else {
		fmt.Println("Backend is reachable")
	}
	cancel()

	// Initialize API handlers
	handlers := api.NewHandlers(&api.Dependencies{
		Manager:  manager,
		Notifier: notifier,
		Version:  Version,
	})

	e := echo.New()
	e.HideBanner = true

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/health" ||
				strings.HasSuffix(path, "/state") ||
				strings.HasSuffix(path, "/state/msgpack")
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          0,
	}))

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{
				"http://localhost:5173", "http://127.0.0.1:5173",
				"http://localhost:3000", "http://127.0.0.1:3000",
			}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, "X-Session-ID"},
		}))
	}

	// Routes and error handling
	api.SetupMiddleware(e)
	api.RegisterRoutes(e, handlers)
	api.RegisterWebSocketRoutes(e, handlers)

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:        cfg.GetServerAddr(),
		ReadTimeout: 5 * time.Minute,
		IdleTimeout: 2 * time.Minute,
	}

	// Print startup banner
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Dataset Attach Agent                            ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Backend:   %-46s║\n", cfg.Backend.BaseURL)
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	e.Logger.Fatal(e.StartServer(s))
}
