package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/serebryakov7/telematics-gateway/internal/config"
	"github.com/serebryakov7/telematics-gateway/internal/httpapi"
	"github.com/serebryakov7/telematics-gateway/internal/livefeed"
	"github.com/serebryakov7/telematics-gateway/internal/rawlog"
	"github.com/serebryakov7/telematics-gateway/internal/session"
	"github.com/serebryakov7/telematics-gateway/internal/store"
	"github.com/serebryakov7/telematics-gateway/internal/telemetry"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := telemetry.NewLogger(os.Stdout, "gateway ", telemetry.ParseLevel(cfg.LogLevel))
	metrics := telemetry.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inner store.Store
	mongoStore, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		// Without a reachable MongoDB the gateway runs on an empty
		// in-memory store: the TCP listener still accepts connections,
		// but with no devices on the allow-list every login is answered
		// 0x00 and closed. MongoDB is not retried while the process runs.
		logger.Warnf("mongo unavailable, running store-less: %v", err)
		inner = store.NewMemoryStore()
	} else {
		inner = mongoStore
	}

	queue, err := store.OpenQueue(cfg.QueueDBPath, inner, 2*time.Second, logger.Std())
	if err != nil {
		log.Fatalf("queue: %v", err)
	}
	defer queue.Close()

	raw, err := rawlog.New(filepath.Clean(cfg.LogsDir))
	if err != nil {
		logger.Warnf("raw capture log disabled: %v", err)
	}
	defer raw.Close()

	feed := livefeed.New(livefeed.Config{
		Broker:   cfg.LiveFeedMQTTBroker,
		ClientID: livefeed.DefaultClientID,
		Topic:    cfg.LiveFeedMQTTTopic,
	})
	defer feed.Close()

	handler := &session.Handler{
		Store:    queue,
		Raw:      raw,
		Notifier: feed,
		Log:      logger,
		Metrics:  metrics,
	}

	listener, err := net.Listen("tcp", ":"+cfg.TCPPort)
	if err != nil {
		log.Fatalf("tcp listen: %v", err)
	}
	acceptor := session.NewAcceptor(listener, handler, logger)

	apiServer := &httpapi.Server{Store: queue, Metrics: metrics, Log: logger, APIKey: cfg.APIKey}
	httpServer := &http.Server{Addr: ":" + cfg.APIPort, Handler: apiServer.Handler()}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		logger.Infof("TCP listener on :%s", cfg.TCPPort)
		return acceptor.Run(gctx)
	})

	g.Go(func() error {
		logger.Infof("HTTP read API on :%s", cfg.APIPort)
		errCh := make(chan error, 1)
		go func() { errCh <- httpServer.ListenAndServe() }()
		select {
		case <-gctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		}
	})

	g.Go(func() error {
		queue.RunDrainLoop(gctx, 10*time.Second)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	logger.Infof("stopped")
}
