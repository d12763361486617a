// Command eegserver runs the HTTP ingestion service: it accepts streamed
// EEG samples, fans them out to live subscribers, and batches them into
// TimescaleDB. The batch writer is stopped before the process exits so no
// accepted record is left unflushed.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/linuxmatters/eegmonitor/internal/cli"
	"github.com/linuxmatters/eegmonitor/internal/config"
	"github.com/linuxmatters/eegmonitor/internal/fanout"
	"github.com/linuxmatters/eegmonitor/internal/ingest"
	"github.com/linuxmatters/eegmonitor/internal/storage"
	"github.com/linuxmatters/eegmonitor/internal/transport"
)

var version = "dev"

// CLI defines the eegserver command-line interface.
type CLI struct {
	Version     bool   `short:"v" help:"Show version information"`
	Debug       bool   `short:"d" help:"Enable debug logging"`
	ListenAddr  string `help:"Address to listen on" default:""`
	DatabaseURL string `help:"Postgres/TimescaleDB connection string" default:""`
	NoDB        bool   `help:"Disable database persistence; broadcast only"`
}

func main() {
	cliArgs := &CLI{}
	kong.Parse(cliArgs,
		kong.Name("eegserver"),
		kong.Description("EEG cognitive-state monitoring ingestion service"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	if cliArgs.Version {
		cli.PrintVersion(version)
		os.Exit(0)
	}

	log := logrus.New()
	if cliArgs.Debug {
		log.SetLevel(logrus.DebugLevel)
	}
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.DefaultServerConfig()
	if cliArgs.ListenAddr != "" {
		cfg.ListenAddr = cliArgs.ListenAddr
	}
	if cliArgs.DatabaseURL != "" {
		cfg.DatabaseURL = cliArgs.DatabaseURL
	}

	if err := run(cfg, cliArgs.NoDB, log); err != nil {
		log.WithError(err).Fatal("eegserver exited")
	}
}

func run(cfg config.ServerConfig, noDB bool, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := fanout.New()

	var buffer *ingest.Buffer
	if !noDB {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()

		persister := storage.NewPersister(pool)
		buffer = ingest.NewBuffer(cfg.Buffer, persister.Flush)
		buffer.Start(ctx)
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := buffer.Stop(stopCtx); err != nil {
				log.WithError(err).Warn("buffer stop did not flush cleanly")
			}
		}()
	} else {
		log.Info("database persistence disabled; running broadcast-only")
	}

	endpoint := ingest.NewEndpoint(cfg.Ingest, bus, buffer)
	server := transport.NewServer(endpoint, buffer, log, cfg.Ingest.RequestTimeout)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("eegserver listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
