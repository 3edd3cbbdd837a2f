package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/secretsgate/bws-rest-proxy/pkg/cache"
	"github.com/secretsgate/bws-rest-proxy/pkg/config"
	"github.com/secretsgate/bws-rest-proxy/pkg/fetch"
	"github.com/secretsgate/bws-rest-proxy/pkg/logging"
	"github.com/secretsgate/bws-rest-proxy/pkg/prefetch"
	"github.com/secretsgate/bws-rest-proxy/pkg/proxy"
	"github.com/secretsgate/bws-rest-proxy/pkg/server"
	"github.com/secretsgate/bws-rest-proxy/pkg/session"
	"github.com/secretsgate/bws-rest-proxy/pkg/upstream"
)

var serveFlags struct {
	listen       string
	healthListen string
	logLevel     string
	pretty       bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the secrets proxy",
	Long: `Start the proxy listener.

The access token is read from the BWS_ACCESS_TOKEN environment variable;
BWS_API_URL and BWS_IDENTITY_URL override the backend endpoints.

Examples:
  # Defaults (listen on 0.0.0.0:3030)
  bws-proxy serve

  # Separate health listener for probes
  bws-proxy serve --listen 0.0.0.0:3030 --health-listen 127.0.0.1:3031`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listen, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.healthListen, "health-listen", "", "address for the forwarding health listener")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.pretty, "pretty", false, "human-readable console logs")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(rootFlags.cfgFile)
	if err != nil {
		return err
	}

	if serveFlags.listen != "" {
		cfg.Listen.Address = serveFlags.listen
	}
	if serveFlags.healthListen != "" {
		cfg.Listen.HealthAddress = serveFlags.healthListen
	}
	if serveFlags.logLevel != "" {
		cfg.Logging.Level = serveFlags.logLevel
	}
	if serveFlags.pretty {
		cfg.Logging.Pretty = true
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
		Output: os.Stderr,
	})

	connector := &upstream.BitwardenConnector{
		APIURL:      cfg.Upstream.APIURL,
		IdentityURL: cfg.Upstream.IdentityURL,
		AccessToken: cfg.Upstream.AccessToken,
		StateFile:   cfg.Upstream.StateFile,
		Logger:      logging.NewLogger("upstream"),
	}

	sessions := session.NewHolder(connector, logging.NewLogger("session"))
	defer sessions.Close()

	store := cache.NewStore(cache.Config{
		DefaultTTL:  cfg.Cache.TTL,
		NegativeTTL: cfg.Cache.NegativeTTL,
	})

	coordinator := fetch.NewCoordinator(store, sessions, cfg.Upstream.Timeout, logging.NewLogger("fetch"))

	handlers := proxy.New(coordinator, sessions, logging.NewLogger("proxy"))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Prefetch.Enabled {
		warmer := prefetch.NewWarmer(coordinator, prefetch.Config{
			OrganizationID: cfg.Prefetch.OrganizationID,
			Concurrency:    cfg.Prefetch.Concurrency,
		}, logging.NewLogger("prefetch"))

		// Warm in the background so a slow or failing backend never
		// delays serving.
		go func() {
			if _, err := warmer.Warm(ctx); err != nil {
				logger.Warn().Err(err).Msg("Cache warm-up failed")
			}
		}()
	}

	srv := server.New(server.Config{
		Address:         cfg.Listen.Address,
		HealthAddress:   cfg.Listen.HealthAddress,
		ReadTimeout:     cfg.Listen.ReadTimeout,
		WriteTimeout:    cfg.Listen.WriteTimeout,
		IdleTimeout:     cfg.Listen.IdleTimeout,
		ShutdownTimeout: cfg.Listen.ShutdownTimeout,
	}, handlers.Routes(), logging.NewLogger("server"))

	logger.Info().Str("address", cfg.Listen.Address).Str("version", Version).Msg("Starting secrets proxy")

	return srv.Run(ctx)
}
