package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/easelhq/easel/internal/assets"
	"github.com/easelhq/easel/internal/batch"
	"github.com/easelhq/easel/internal/config"
	"github.com/easelhq/easel/internal/home"
	"github.com/easelhq/easel/internal/outline"
	"github.com/easelhq/easel/internal/providers"
	"github.com/easelhq/easel/internal/server"
	"github.com/easelhq/easel/internal/store"
	"github.com/easelhq/easel/internal/svcctx"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Easel server",
	Long: `Start the Easel HTTP server.

The server drives deck management, outline synthesis and batch slide image
generation. When it shuts down (via Ctrl+C or SIGTERM), in-flight generation
jobs are cancelled and drained.

The server provides:
  - /health - Basic server health check
  - /ready  - Readiness check (includes deck store status)

Examples:
  easel serve                    # Start on the configured port (default 8799)
  easel serve --port 3000        # Start on custom port
  easel serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Pick up API keys from a .env file when present
		_ = godotenv.Load()

		// Set up logger
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		// Get home directory
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		// Load configuration with hot reload
		cfgMgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cfgMgr.Get()

		// Provider registry from config, reloaded on config changes
		registry := providers.NewRegistry()
		registry.SetLogger(logger)
		images, llms := cfg.RegistryConfigs()
		if err := registry.LoadFromConfig(images, llms); err != nil {
			return fmt.Errorf("failed to load providers: %w", err)
		}
		cfgMgr.OnChange(func(c *config.Config) {
			images, llms := c.RegistryConfigs()
			if err := registry.LoadFromConfig(images, llms); err != nil {
				logger.Error("provider reload failed", "error", err)
				return
			}
			logger.Info("provider registry reloaded from config")
		})
		cfgMgr.WatchConfig()

		// Asset storage backend
		var assetStore assets.Store
		switch cfg.Storage.Backend {
		case "minio":
			assetStore, err = assets.NewMinioStore(ctx, assets.MinioConfig{
				Endpoint:  cfg.Storage.Minio.Endpoint,
				AccessKey: config.ResolveEnvVars(cfg.Storage.Minio.AccessKey),
				SecretKey: config.ResolveEnvVars(cfg.Storage.Minio.SecretKey),
				Bucket:    cfg.Storage.Minio.Bucket,
				UseSSL:    cfg.Storage.Minio.UseSSL,
			})
			if err != nil {
				return fmt.Errorf("failed to connect to minio: %w", err)
			}
		default:
			dir := cfg.Storage.Dir
			if dir == "" {
				dir = h.AssetsPath()
			}
			assetStore, err = assets.NewLocalStore(dir)
			if err != nil {
				return fmt.Errorf("failed to open asset store: %w", err)
			}
		}

		// Deck store
		var deckStore store.Store
		switch dbPath := cfg.Storage.Database; dbPath {
		case "memory":
			deckStore = store.NewMemory()
		default:
			if dbPath == "" {
				dbPath = h.DatabasePath()
			}
			sqliteStore, err := store.OpenSQLite(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open deck store: %w", err)
			}
			defer sqliteStore.Close()
			deckStore = sqliteStore
		}

		// Batch generation manager
		manager := batch.NewManager(batch.ManagerConfig{
			Store:           deckStore,
			Assets:          assetStore,
			Registry:        registry,
			Logger:          logger,
			DefaultProvider: cfg.Defaults.ImageProvider,
			MaxConcurrent:   cfg.Defaults.MaxConcurrent,
			PreviewWidth:    cfg.Defaults.PreviewWidth,
		})

		// Outline synthesizer, if an LLM client is configured
		var synthesizer *outline.Synthesizer
		if llm, err := registry.GetLLM(cfg.Defaults.LLMProvider); err == nil {
			model := ""
			if llmCfg, ok := cfg.GetLLMProvider(cfg.Defaults.LLMProvider); ok {
				model = llmCfg.Model
			}
			synthesizer = outline.NewSynthesizer(llm, model, logger)
		} else {
			logger.Warn("outline synthesis disabled, no LLM client configured",
				"provider", cfg.Defaults.LLMProvider)
		}

		host := serveHost
		if host == "" {
			host = cfg.Server.Host
		}
		port := servePort
		if port == "" {
			port = strconv.Itoa(cfg.Server.Port)
		}

		srv, err := server.New(server.Config{
			Host: host,
			Port: port,
			Services: &svcctx.Services{
				Store:       deckStore,
				Manager:     manager,
				Registry:    registry,
				Assets:      assetStore,
				Synthesizer: synthesizer,
				Config:      cfgMgr,
				Logger:      logger,
				Home:        h,
			},
			Logger: logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default from config)")

	rootCmd.AddCommand(serveCmd)
}
