package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/thrasher-corp/testex/api"
	"github.com/thrasher-corp/testex/config"
	"github.com/thrasher-corp/testex/executor"
	"github.com/thrasher-corp/testex/exchanges/bittrex"
	"github.com/thrasher-corp/testex/exchanges/poloniex"
	"github.com/thrasher-corp/testex/exchanges/request"
	"github.com/thrasher-corp/testex/store"
)

const shutdownGrace = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "testex",
		Usage: "mock Bittrex and Poloniex backend for integration-testing trading bots",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the JSON config file",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "listen address, overrides the config file",
			},
			&cli.StringFlag{
				Name:  "mongo-uri",
				Usage: "mongodb connection string, overrides the config file",
			},
			&cli.BoolFlag{
				Name:  "memory",
				Usage: "use the in-memory store instead of mongodb",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "debug logging",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("listen") {
		cfg.ListenAddress = c.String("listen")
	}
	if c.IsSet("mongo-uri") {
		cfg.Mongo.URI = c.String("mongo-uri")
	}
	if c.IsSet("memory") {
		cfg.Mongo.Memory = c.Bool("memory")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := newStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			log.Error("store close failed", zap.Error(err))
		}
	}()

	exec := executor.New(st, log,
		executor.WithNonExecuteProb(cfg.Executor.NonExecuteProb))

	// Each venue is paced independently so one's traffic cannot starve the
	// other's
	newRequester := func(name string) (*request.Requester, error) {
		opts := []request.Option{
			request.WithTimeout(cfg.Upstream.HTTPTimeout),
			request.WithLimiter(request.NewRateLimit(time.Second, cfg.Upstream.RateLimit)),
		}
		if cfg.Verbose {
			opts = append(opts, request.WithVerbose())
		}
		return request.New(name, log, opts...)
	}

	bittrexRequester, err := newRequester("bittrex")
	if err != nil {
		return err
	}
	poloniexRequester, err := newRequester("poloniex")
	if err != nil {
		return err
	}

	bittrexProxy := bittrex.NewProxy(bittrexRequester, cfg.Upstream.BittrexURL, log)
	poloniexProxy := poloniex.NewProxy(poloniexRequester, cfg.Upstream.PoloniexURL, log)

	bittrexStub := bittrex.NewStub(exec, bittrexProxy, log)
	poloniexStub := poloniex.NewStub(exec, poloniexProxy, log)

	readme, err := os.ReadFile("README.md")
	if err != nil {
		log.Warn("README.md not found, documentation page will be empty", zap.Error(err))
	}

	server := api.NewServer(exec, bittrexStub, bittrexProxy, poloniexStub, poloniexProxy,
		readme, log)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("address", cfg.ListenAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown failed", zap.Error(err))
			return err
		}
		return nil
	case err := <-errCh:
		log.Error("server failed", zap.Error(err))
		return err
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newStore connects to mongodb, or hands out the in-process store when the
// config asks for it
func newStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.Mongo.Memory {
		log.Info("using in-memory store")
		return store.NewMemory(log), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	m, err := store.Connect(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database, log)
	if err != nil {
		return nil, err
	}
	log.Info("connected to mongodb", zap.String("database", cfg.Mongo.Database))
	return m, nil
}
