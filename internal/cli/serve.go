package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/calloway/backlot/internal/config"
	"github.com/calloway/backlot/internal/logger"
	"github.com/calloway/backlot/pkg/agents"
	"github.com/calloway/backlot/pkg/crm"
	"github.com/calloway/backlot/pkg/datatools"
	"github.com/calloway/backlot/pkg/gateway"
	"github.com/calloway/backlot/pkg/llm"
	"github.com/calloway/backlot/pkg/orchestrator"
	"github.com/calloway/backlot/pkg/session"
	"github.com/calloway/backlot/pkg/store"
	"github.com/calloway/backlot/pkg/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Backlot gateway",
	Long: `Run the Backlot gateway in the foreground: connect to the graph
store and cache, build the tool inventory and serve the query API until
interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()
	zl := log.GetZerolog()

	zl.Info().Str("version", version).Msg("Backlot starting")

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()

	graph, err := store.AcquireNeo4j(bootCtx, store.Neo4jOptions{
		URI:      cfg.Neo4j.URI,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
	}, zl)
	if err != nil {
		return fmt.Errorf("failed to connect to graph store: %w", err)
	}
	defer graph.Shutdown(context.Background())

	cache, err := store.AcquireRedis(bootCtx, store.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, zl)
	if err != nil {
		return fmt.Errorf("failed to connect to cache: %w", err)
	}
	defer cache.Shutdown()

	agentStore := store.NewAgentStore(graph, zl)

	var crmClient *crm.Client
	if cfg.CRM.BaseURL != "" {
		credentials := make([]crm.Credential, 0, len(cfg.CRM.Credentials))
		for _, cred := range cfg.CRM.Credentials {
			credentials = append(credentials, crm.Credential{Label: cred.Label, APIKey: cred.APIKey})
		}
		crmClient, err = crm.NewClient(crm.Options{
			BaseURL:     cfg.CRM.BaseURL,
			Credentials: credentials,
		}, zl)
		if err != nil {
			return fmt.Errorf("failed to create crm client: %w", err)
		}
	}

	inventory, err := datatools.All(datatools.Options{
		Graph:    graph,
		CRM:      crmClient,
		Cache:    cache,
		CacheTTL: time.Duration(cfg.Redis.TTLSeconds) * time.Second,
		Logger:   zl,
	})
	if err != nil {
		return fmt.Errorf("failed to build tool inventory: %w", err)
	}
	registry, err := tools.NewRegistry(inventory...)
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}
	zl.Info().Strs("tools", registry.ListNames()).Msg("Tool inventory ready")

	fast, err := llm.NewOpenAIProvider(cfg.Providers.OpenAIKey, cfg.Providers.OpenAIModel)
	if err != nil {
		return fmt.Errorf("failed to create fast provider: %w", err)
	}
	secure, err := llm.NewAnthropicProvider(cfg.Providers.AnthropicKey, cfg.Providers.AnthropicModel)
	if err != nil {
		return fmt.Errorf("failed to create high-assurance provider: %w", err)
	}
	router, err := llm.NewRouter(fast, secure, zl)
	if err != nil {
		return fmt.Errorf("failed to create provider router: %w", err)
	}

	sessions := session.NewManager(agentStore, zl)
	resolver, err := agents.NewResolver(agentStore, registry, sessions, zl)
	if err != nil {
		return fmt.Errorf("failed to create resolver: %w", err)
	}

	broadcaster := gateway.NewBroadcaster(zl)

	engine, err := orchestrator.New(orchestrator.Config{
		Router:   router,
		Resolver: resolver,
		Sessions: sessions,
		Notifier: broadcaster,
		Logger:   zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	server, err := gateway.NewServer(gateway.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		SharedSecret: cfg.Server.SharedSecret,
		Engine:       engine,
		AgentStore:   agentStore,
		Registry:     registry,
		Sessions:     sessions,
		Broadcaster:  broadcaster,
		Logger:       zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}

	cleanup := store.NewCleanupService(
		agentStore,
		cfg.Sessions.CleanupSchedule,
		time.Duration(cfg.Sessions.MaxIdleDays)*24*time.Hour,
		zl,
	)
	if err := cleanup.Start(); err != nil {
		return fmt.Errorf("failed to start session cleanup: %w", err)
	}
	defer cleanup.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		zl.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error().Err(err).Msg("Gateway shutdown failed")
	}

	zl.Info().Msg("Backlot stopped")
	return nil
}
