// Package servecmder provides the serve command that runs the classroom
// service: the streaming chat relay and the question generator on one port.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/classroom/api"
	"github.com/papercomputeco/classroom/cmd/classroom/sqlitepath"
	"github.com/papercomputeco/classroom/pkg/cliui"
	"github.com/papercomputeco/classroom/pkg/config"
	"github.com/papercomputeco/classroom/pkg/eventstream"
	"github.com/papercomputeco/classroom/pkg/eventstream/kafka"
	"github.com/papercomputeco/classroom/pkg/eventstream/nop"
	"github.com/papercomputeco/classroom/pkg/llm/upstream"
	"github.com/papercomputeco/classroom/pkg/logger"
	"github.com/papercomputeco/classroom/pkg/questions"
	"github.com/papercomputeco/classroom/pkg/storage"
	"github.com/papercomputeco/classroom/pkg/storage/inmemory"
	"github.com/papercomputeco/classroom/pkg/storage/postgres"
	"github.com/papercomputeco/classroom/pkg/storage/sqlite"
	"github.com/papercomputeco/classroom/proxy"
)

type serveCommander struct {
	listen        string
	upstream      string
	model         string
	temperature   float64
	storageDriver string
	sqlitePath    string
	postgresDSN   string
	kafkaBrokers  string
	kafkaTopic    string

	configDir  string
	watch      bool
	noMCP      bool
	jsonLogs   bool
	logFile    string
	debug      bool
	viper      *viper.Viper
	logger     *slog.Logger
	logCleanup func()
}

const serveLongDesc string = `Run the classroom service.

The service exposes, on a single address:
  POST /functions/v1/chat-with-ai         Streamed tutor chat relayed to the upstream API
  POST /functions/v1/generate-questions   Study questions for a topic
  GET  /sessions/:id, /turns/:id          Stored chat transcripts
  /mcp                                    MCP tools for agents

Every relayed turn is stored with the configured storage driver
(memory, sqlite, postgres) and announced on Kafka when brokers are set.

The upstream API key is read from MISTRAL_API_KEY, CLASSROOM_UPSTREAM_API_KEY,
or upstream.api_key in config.toml. Without it the question generator answers
with an error and the relay forwards unauthenticated requests.

Use --watch to apply upstream changes in config.toml without a restart.`

const serveShortDesc string = "Run the classroom service"

// flagKeys are the registry flags bound to viper by serve.
var flagKeys = []string{
	config.FlagListen,
	config.FlagUpstream,
	config.FlagModel,
	config.FlagTemperature,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, flagKeys)
			cmder.viper = v

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx, config.FromViper(cmder.viper))
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &cmder.model)
	config.AddFloat64Flag(cmd, config.Flags, config.FlagTemperature, &cmder.temperature)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.kafkaTopic)

	cmd.Flags().BoolVarP(&cmder.watch, "watch", "w", false, "Reload upstream settings when config.toml changes")
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Serve /mcp without any tools")
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Write service logs as JSON")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd
}

func (c *serveCommander) run(ctx context.Context, cfg *config.Config) error {
	if err := c.setupLogger(); err != nil {
		return err
	}
	defer c.logCleanup()

	driver, err := c.newStorageDriver(ctx, cfg)
	if err != nil {
		return err
	}

	publisher, err := c.newPublisher(cfg)
	if err != nil {
		_ = driver.Close()
		return err
	}

	relay, err := proxy.New(proxy.Config{
		Target:    newTarget(cfg, c.logger),
		Publisher: publisher,
	}, driver, c.logger)
	if err != nil {
		_ = publisher.Close()
		_ = driver.Close()
		return fmt.Errorf("creating chat relay: %w", err)
	}

	server, err := api.NewServer(api.Config{
		ListenAddr: cfg.Service.Listen,
		Generator:  newGenerator(cfg, c.logger),
		Storer:     driver,
		Relay:      relay,
		DisableMCP: c.noMCP,
	}, c.logger)
	if err != nil {
		_ = relay.Close()
		_ = publisher.Close()
		_ = driver.Close()
		return fmt.Errorf("creating API server: %w", err)
	}

	if cfg.Upstream.APIKey == "" {
		c.logger.Warn("no upstream API key configured; set MISTRAL_API_KEY")
	}

	if c.watch {
		watching := config.Watch(c.viper, c.logger, func(updated *config.Config) {
			if err := relay.SetTarget(newTarget(updated, c.logger)); err != nil {
				c.logger.Error("could not apply upstream change", "error", err)
			}
			server.SetGenerator(newGenerator(updated, c.logger))
		})
		if !watching {
			c.logger.Warn("no config.toml found, --watch has no effect")
		}
	}

	c.logger.Info("starting classroom service",
		"listen", cfg.Service.Listen,
		"upstream", cfg.Upstream.BaseURL,
		"model", cfg.Upstream.Model,
		"storage", cfg.Storage.Driver,
	)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	var runErr error
	select {
	case runErr = <-errChan:
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
	}

	return errors.Join(runErr, c.shutdown(server, relay, publisher, driver))
}

// shutdown stops accepting requests first, then drains pending storage jobs
// before closing the publisher and driver they use.
func (c *serveCommander) shutdown(server *api.Server, relay *proxy.Proxy, publisher eventstream.Publisher, driver storage.Driver) error {
	var errs []error
	if err := server.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("stopping API server: %w", err))
	}
	if err := relay.Close(); err != nil {
		errs = append(errs, fmt.Errorf("draining chat relay: %w", err))
	}
	if err := publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing event publisher: %w", err))
	}
	if err := driver.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing storage: %w", err))
	}
	return errors.Join(errs...)
}

func (c *serveCommander) setupLogger() error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(!c.jsonLogs && cliui.IsTerminal(os.Stdout)),
		logger.WithJSON(c.jsonLogs),
	)
	c.logCleanup = func() {}

	if c.logFile == "" {
		return nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	c.logger = logger.Multi(c.logger, logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	))
	c.logCleanup = func() { _ = f.Close() }

	return nil
}

func (c *serveCommander) newStorageDriver(ctx context.Context, cfg *config.Config) (storage.Driver, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		path, err := sqlitepath.ResolveSQLitePath(cfg.Storage.SQLitePath, c.configDir)
		if err != nil {
			return nil, err
		}
		driver, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		c.logger.Info("using SQLite storage", "path", path)
		return driver, nil

	case config.DriverPostgres:
		if cfg.Storage.PostgresDSN == "" {
			return nil, errors.New("postgres storage requires --postgres-dsn or storage.postgres_dsn")
		}
		driver, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL storer: %w", err)
		}
		c.logger.Info("using PostgreSQL storage")
		return driver, nil

	case config.DriverMemory, "":
		c.logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q (available: memory, sqlite, postgres)", cfg.Storage.Driver)
	}
}

func (c *serveCommander) newPublisher(cfg *config.Config) (eventstream.Publisher, error) {
	brokers := cfg.Events.Brokers()
	if len(brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	publisher, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   cfg.Events.KafkaTopic,
		Logger:  c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	c.logger.Info("publishing transcript events",
		"brokers", cfg.Events.KafkaBrokers,
		"topic", cfg.Events.KafkaTopic,
	)
	return publisher, nil
}

// newTarget builds the relay upstream from cfg.
func newTarget(cfg *config.Config, log *slog.Logger) proxy.Target {
	return proxy.Target{
		Client:      upstream.New(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, log),
		Model:       cfg.Upstream.Model,
		Temperature: cfg.Upstream.Temperature,
	}
}

// newGenerator builds the question generator from cfg. Without an API key
// the generator has no upstream and reports questions.ErrNotConfigured.
func newGenerator(cfg *config.Config, log *slog.Logger) *questions.Generator {
	var completer questions.Completer
	if cfg.Upstream.APIKey != "" {
		completer = upstream.New(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, log)
	}

	g := questions.NewGenerator(completer, log)
	if cfg.Upstream.Model != "" {
		g.Model = cfg.Upstream.Model
	}
	return g
}
