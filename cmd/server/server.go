package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/paularlott/cli"

	"github.com/martinsuchenak/ipamd/internal/api"
	"github.com/martinsuchenak/ipamd/internal/config"
	"github.com/martinsuchenak/ipamd/internal/log"
	"github.com/martinsuchenak/ipamd/internal/mcp"
	"github.com/martinsuchenak/ipamd/internal/registry"
	"github.com/martinsuchenak/ipamd/internal/source"
	"github.com/martinsuchenak/ipamd/internal/storage"
	"github.com/martinsuchenak/ipamd/internal/worker"
)

// buildSources assembles the configured external sources
func buildSources(cfg *config.Config) []source.Source {
	var sources []source.Source
	if cfg.StaticFile != "" {
		sources = append(sources, source.NewStaticFile(cfg.StaticFile))
		log.Info("Static file source configured", "path", cfg.StaticFile)
	}
	if cfg.ProviderFile != "" {
		sources = append(sources, source.NewFileProvider("cloud", cfg.ProviderFile))
		log.Info("Provider export source configured", "path", cfg.ProviderFile)
	}
	if cfg.SNMPTarget != "" {
		sources = append(sources, source.NewSNMPSource(cfg.SNMPTarget, cfg.SNMPCommunity))
		log.Info("SNMP source configured", "target", cfg.SNMPTarget)
	}
	if cfg.ProbeCIDR != "" {
		sources = append(sources, source.NewProbeSource(cfg.ProbeCIDR))
		log.Info("Host probe source configured", "cidr", cfg.ProbeCIDR)
	}
	return sources
}

// ServerConfig holds the assembled server components
type ServerConfig struct {
	Config     *config.Config
	Store      storage.Storage
	Registry   *registry.Registry
	Scheduler  *worker.Scheduler
	MCPServer  *mcp.Server
	APIHandler *api.Handler
}

// RunServer starts the ipamd server with the given configuration
func RunServer(cfg *ServerConfig) error {
	// Setup HTTP routes
	mux := http.NewServeMux()
	cfg.APIHandler.RegisterRoutes(mux)

	// MCP endpoint
	mux.HandleFunc("/mcp", cfg.MCPServer.GetHTTPHandler())

	// Apply middleware
	var handler http.Handler = mux
	if cfg.Config.IsAPIAuthEnabled() {
		handler = api.AuthMiddleware(cfg.Config.APIAuthToken, handler)
	}
	handler = api.RequestIDMiddleware(handler)
	handler = api.SecurityHeadersMiddleware(handler)

	server := &http.Server{
		Addr:    cfg.Config.ListenAddr,
		Handler: handler,
	}

	// Handle shutdown gracefully
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Info("Shutting down server...")
		if cfg.Scheduler != nil {
			cfg.Scheduler.Stop()
		}
		server.Close()
	}()

	// Log startup info
	log.Info("Starting ipamd server", "addr", cfg.Config.ListenAddr, "cidrs", cfg.Registry.Len())
	log.Info("API available", "url", "http://localhost"+cfg.Config.ListenAddr+"/api/")
	log.Info("MCP available", "url", "http://localhost"+cfg.Config.ListenAddr+"/mcp")
	if cfg.Config.IsAPIAuthEnabled() {
		log.Info("API authentication enabled")
	}
	cfg.MCPServer.LogStartup()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("Server error", "error", err)
		return err
	}

	log.Info("Server stopped")
	return nil
}

func Command() *cli.Command {
	return &cli.Command{
		Name:        "server",
		Usage:       "Start the ipamd server",
		Description: "Start the HTTP server with CIDR API, MCP endpoint and background source sync",
		Flags:       config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.Load(config.FromCommand(cmd))

			log.Info("Configuration loaded", "source", cfg, "data_dir", cfg.DataDir, "listen_addr", cfg.ListenAddr)

			store, err := storage.NewStorage(cfg.DataDir)
			if err != nil {
				log.Error("Failed to initialize storage", "error", err)
				return err
			}
			defer store.Close()
			log.Info("Storage initialized", "backend", "SQLite", "path", cfg.DataDir)

			// Rebuild the CIDR tree from persisted records
			reg := registry.New(store)
			if err := reg.Load(); err != nil {
				log.Error("Failed to load registry", "error", err)
				return err
			}
			log.Info("Registry loaded", "cidrs", reg.Len())

			// Background sync over the configured sources
			var scheduler *worker.Scheduler
			sources := buildSources(cfg)
			if len(sources) > 0 {
				syncer := source.NewSyncer(reg, sources...)
				scheduler = worker.NewScheduler(cfg.SyncSchedule, syncer.Sync)
				if err := scheduler.Start(); err != nil {
					log.Error("Failed to start sync scheduler", "error", err)
					return err
				}
				// Initial sync so the tree is warm before serving
				scheduler.TriggerSync()
			} else {
				log.Info("No sources configured, background sync disabled")
			}

			// A typed-nil *worker.Scheduler must not reach the
			// handler's interface nil check
			var syncTrigger api.SyncTrigger
			if scheduler != nil {
				syncTrigger = scheduler
			}
			apiHandler := api.NewHandler(reg, syncTrigger)
			mcpServer := mcp.NewServer(reg, cfg.MCPAuthToken)

			return RunServer(&ServerConfig{
				Config:     cfg,
				Store:      store,
				Registry:   reg,
				Scheduler:  scheduler,
				MCPServer:  mcpServer,
				APIHandler: apiHandler,
			})
		},
	}
}
