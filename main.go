// Command parkplanner starts the park planner server.
//
// It supports two modes:
//  1. "server" (default) – runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//
// Settings come from defaults, an optional parkplanner.{json,yaml} file,
// PARKPLANNER_* environment variables and finally command line flags.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/mcp-training/parkplanner/api"
	"github.com/wricardo/mcp-training/parkplanner/logging"
	"github.com/wricardo/mcp-training/parkplanner/planner/config"
	"github.com/wricardo/mcp-training/parkplanner/planner/dataset"
	"github.com/wricardo/mcp-training/parkplanner/planner/service"
	"github.com/wricardo/mcp-training/parkplanner/planner/session"
	"github.com/wricardo/mcp-training/parkplanner/planner/storage"
	"github.com/wricardo/mcp-training/parkplanner/settings"
	"github.com/wricardo/mcp-training/parkplanner/transport/mcp"
	"github.com/wricardo/mcp-training/parkplanner/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Park Planner Server"
)

// flagKeys maps command line flags onto settings keys
var flagKeys = map[string]string{
	"host":         settings.KeyHost,
	"port":         settings.KeyPort,
	"config-dir":   settings.KeyConfigDir,
	"sessions-dir": settings.KeySessionsDir,
	"data-dir":     settings.KeyDataDir,
	"datasets-url": settings.KeyDatasetsURL,
	"store":        settings.KeyStoreDriver,
	"store-dsn":    settings.KeyStoreDSN,
	"log-level":    settings.KeyLogLevel,
	"session-ttl":  settings.KeySessionTTL,
	"graylog":      settings.KeyGraylogAddress,
	"ngrok":        settings.KeyNgrokEnabled,
	"ngrok-auth":   settings.KeyNgrokAuthToken,
	"ngrok-domain": settings.KeyNgrokDomain,
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "settings", Usage: "Settings file (default: ./parkplanner.{json,yaml})"},
		&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP server port"},
		&cli.StringFlag{Name: "host", Value: "localhost", Usage: "HTTP server host"},
		&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "Directory containing park configurations"},
		&cli.StringFlag{Name: "sessions-dir", Value: "sessions", Usage: "Directory for persisted sessions"},
		&cli.StringFlag{Name: "data-dir", Value: "data", Usage: "Directory with default marker and plan files"},
		&cli.StringFlag{Name: "datasets-url", Usage: "Base URL to fetch default datasets from"},
		&cli.StringFlag{Name: "store", Value: storage.DriverMemory, Usage: "Saved plan store: memory, sqlite or postgres"},
		&cli.StringFlag{Name: "store-dsn", Usage: "SQLite file or Postgres connection string"},
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "trace, debug, info, warn or error"},
		&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"},
		&cli.DurationFlag{Name: "session-ttl", Value: 24 * time.Hour, Usage: "Unload sessions idle for longer than this"},
		&cli.StringFlag{Name: "graylog", Usage: "Send logs to a Graylog GELF UDP address"},
		&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel"},
		&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token (or use NGROK_AUTHTOKEN env var)"},
		&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (optional)"},
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "parkplanner",
		Usage:   "Plan a theme park day: markers, a trip plan and live views",
		Version: Version,
		Flags:   globalFlags(),
		Action:  runServerCommand,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint (default)",
				Action:  runServerCommand,
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "Run MCP stdio server with internal HTTP server",
				Action:  runMCPCommand,
			},
		},
	}
}

// main loads .env, then runs the selected mode
func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadSettings resolves settings with flags that were set explicitly on top
func loadSettings(cmd *cli.Command) (*settings.Settings, error) {
	loader := settings.NewLoader()
	if path := cmd.String("settings"); path != "" {
		if err := loader.ReadPath(path); err != nil {
			return nil, err
		}
	} else if err := loader.ReadFile("."); err != nil {
		return nil, err
	}

	for name, key := range flagKeys {
		if cmd.IsSet(name) {
			loader.Set(key, cmd.Value(name))
		}
	}
	if cmd.IsSet("graylog") {
		loader.Set(settings.KeyGraylogEnabled, true)
	}
	if cmd.Bool("debug") {
		loader.Set(settings.KeyLogLevel, "debug")
	}
	return loader.Load()
}

// setup loads settings and builds the logger. The closer flushes the log sink.
func setup(cmd *cli.Command, out io.Writer) (*settings.Settings, zerolog.Logger, io.Closer, error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}

	opts := logging.Options{Level: s.LogLevel, Out: out}
	if s.Graylog.Enabled {
		opts.GraylogAddress = s.Graylog.Address
	}
	logger, closer, err := logging.New(opts)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	return s, logger, closer, nil
}

func runServerCommand(ctx context.Context, cmd *cli.Command) error {
	s, logger, closer, err := setup(cmd, os.Stdout)
	if err != nil {
		return err
	}
	defer closer.Close()

	logger.Info().Str("version", Version).Str("mode", "server").Msgf("Starting %s", AppName)

	a, err := initializeServices(ctx, s, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer a.Close()

	return runHTTPServer(ctx, a)
}

func runMCPCommand(ctx context.Context, cmd *cli.Command) error {
	// stdout carries the MCP protocol
	s, logger, closer, err := setup(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	logger.Info().Str("version", Version).Str("mode", "mcp").Msgf("Starting %s", AppName)

	a, err := initializeServices(ctx, s, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer a.Close()

	return runStdioMCPWithInternalServer(a)
}

// app holds the wired services of one process
type app struct {
	settings    *settings.Settings
	logger      zerolog.Logger
	service     service.PlannerService
	sessions    *session.Manager
	persistence *session.FilePersistence
	store       storage.KVStore
	hub         *websocket.Hub
	cancel      context.CancelFunc
}

// Close stops background routines, flushes sessions and closes the store
func (a *app) Close() error {
	a.cancel()
	a.hub.Stop()
	if err := a.sessions.SaveAllSessions(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to save sessions on shutdown")
	}
	return a.store.Close()
}

// initializeServices wires config, sessions, storage, datasets, the hub and
// the planner service. It also starts the background session routines.
func initializeServices(ctx context.Context, s *settings.Settings, logger zerolog.Logger) (*app, error) {
	// Create config manager first (needed for persistence)
	configManager, err := config.NewManager(s.ConfigDir, config.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	persistence, err := session.NewFilePersistence(s.SessionsDir, configManager)
	if err != nil {
		return nil, fmt.Errorf("failed to create session persistence: %w", err)
	}
	sessionManager := session.NewManagerWithPersistence(persistence, session.WithLogger(logger))

	// Load persisted sessions on startup
	if err := sessionManager.LoadPersistedSessions(); err != nil {
		logger.Warn().Err(err).Msg("failed to load persisted sessions")
	}

	// saved plans are best-effort; an unreachable store keeps them in memory
	var store storage.KVStore
	store, err = storage.Open(s.Store.Driver, s.Store.DSN, logger)
	if err != nil {
		logger.Warn().Err(err).Str("driver", s.Store.Driver).Msg("plan store unavailable, keeping saved plans in memory")
		store = storage.NewMemoryStore()
	}

	sources := []dataset.Source{dataset.DirSource{Dir: s.DataDir}}
	if s.DatasetsURL != "" {
		sources = append(sources, dataset.HTTPSource{BaseURL: s.DatasetsURL})
	}

	hub := websocket.NewHub(websocket.WithLogger(logger))
	go hub.Run()

	plannerService := service.NewPlannerService(sessionManager, configManager,
		service.WithPlanStore(store),
		service.WithDatasets(dataset.NewLoader(logger, sources...)),
		service.WithBroadcaster(hub),
		service.WithLogger(logger),
		service.WithMeter(otel.Meter("github.com/wricardo/mcp-training/parkplanner")),
	)

	ctx, cancel := context.WithCancel(ctx)
	go sessionCleanupRoutine(ctx, sessionManager, s.SessionTTL, logger)
	go filesystemSyncRoutine(ctx, sessionManager, persistence, logger)

	return &app{
		settings:    s,
		logger:      logger,
		service:     plannerService,
		sessions:    sessionManager,
		persistence: persistence,
		store:       store,
		hub:         hub,
		cancel:      cancel,
	}, nil
}

// sessionCleanupRoutine periodically unloads sessions that have not been
// accessed within ttl. Their files stay on disk.
func sessionCleanupRoutine(ctx context.Context, manager *session.Manager, ttl time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := manager.CleanupExpiredSessions(ttl); removed > 0 {
				logger.Info().Int("removed", removed).Msg("cleaned up expired sessions")
			}
		}
	}
}

// filesystemSyncRoutine removes sessions from memory when their files are deleted
func filesystemSyncRoutine(ctx context.Context, manager *session.Manager, persistence session.SessionPersistence, logger zerolog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pruned := 0
		for _, sess := range manager.List() {
			if !persistence.Exists(sess.ID) {
				if err := manager.DeleteFromMemory(sess.ID); err == nil {
					pruned++
					logger.Debug().Str("session", sess.ID).Msg("pruned session from memory (file deleted)")
				}
			}
		}

		if pruned > 0 {
			logger.Info().Int("pruned", pruned).Msg("filesystem sync pruned orphaned sessions")
		}
	}
}

// mcpHandler serves MCP JSON-RPC messages over plain HTTP POST
func mcpHandler(client *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := client.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}
}

// newRouter mounts the API at the root and MCP at /mcp
func newRouter(a *app, baseURL string) *http.ServeMux {
	apiServer := api.NewServer(a.service, a.hub, api.WithLogger(a.logger))

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", mcpHandler(mcp.NewClient(baseURL)))
	return mainRouter
}

// runHTTPServer starts the HTTP server with REST API, WebSocket hub, and an /mcp proxy endpoint.
// If ngrok is enabled, it also provisions a public tunnel.
func runHTTPServer(ctx context.Context, a *app) error {
	addr := a.settings.Addr()
	mainRouter := newRouter(a, fmt.Sprintf("http://%s", addr))
	logger := a.logger

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		logger.Info().Msgf("REST API: http://%s/api", addr)
		logger.Info().Msgf("WebSocket: ws://%s/ws?session=<session_id>", addr)
		logger.Info().Msgf("MCP endpoint: http://%s/mcp", addr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	if a.settings.Ngrok.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrokTunnel(ctx, a.settings.Ngrok, mainRouter, logger)
		}()
	}

	var err error
	select {
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err = <-serveErr:
	case <-ctx.Done():
	}
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error().Err(shutdownErr).Msg("HTTP server shutdown error")
	}

	wg.Wait()
	logger.Info().Msg("Server stopped")
	return err
}

// runNgrokTunnel serves handler through an ngrok tunnel until ctx ends
func runNgrokTunnel(ctx context.Context, cfg settings.Ngrok, handler http.Handler, logger zerolog.Logger) {
	if cfg.AuthToken == "" {
		logger.Warn().Msg("ngrok enabled but no auth token provided (use --ngrok-auth or NGROK_AUTHTOKEN)")
		return
	}

	logger.Info().Msg("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
		logger.Info().Str("domain", cfg.Domain).Msg("using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		logger.Error().Err(err).Msg("failed to start ngrok tunnel")
		return
	}

	ngrokURL := tun.URL()
	logger.Info().Str("url", ngrokURL).Msg("ngrok tunnel established")
	logger.Info().Msgf("  REST API (ngrok): %s/api", ngrokURL)
	logger.Info().Msgf("  WebSocket (ngrok): %s/ws?session=<session_id>", ngrokURL)
	logger.Info().Msgf("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close ngrok tunnel")
		}
	}()

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		logger.Error().Err(err).Msg("ngrok server error")
	}
	logger.Info().Msg("ngrok tunnel closed")
}

// runStdioMCPWithInternalServer runs an MCP stdio server.
// It reuses an API already listening on the configured address; otherwise it
// starts an internal HTTP API bound to a random loopback port and targets that.
func runStdioMCPWithInternalServer(a *app) error {
	logger := a.logger
	externalURL := fmt.Sprintf("http://%s", a.settings.Addr())
	baseURL := externalURL

	logger.Info().Str("url", externalURL).Msg("checking for external API server")

	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(externalURL + "/health")
	if err == nil && resp.StatusCode < 500 {
		resp.Body.Close()
		logger.Info().Str("url", externalURL).Msg("external API server found, using it for MCP")
	} else {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		internalAddr := listener.Addr().String()
		baseURL = fmt.Sprintf("http://%s", internalAddr)

		logger.Info().Str("addr", internalAddr).Msg("starting internal HTTP server for MCP stdio")

		httpServer := &http.Server{Handler: api.NewServer(a.service, a.hub, api.WithLogger(logger))}
		defer httpServer.Close()

		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("internal HTTP server error")
			}
		}()
	}

	mcpClient := mcp.NewClient(baseURL)
	logger.Info().Str("api", baseURL).Msg("MCP stdio server ready")

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
