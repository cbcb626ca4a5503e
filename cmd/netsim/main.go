// netsim runs one simulated network process: a node registry with its
// operator HTTP surface and a chat-hosting server with its subscriber HTTP
// and websocket surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/meshwire/netsim/chat"
	"github.com/meshwire/netsim/middleware/config"
	"github.com/meshwire/netsim/middleware/operator"
	"github.com/meshwire/netsim/middleware/subscriber"
	"github.com/meshwire/netsim/network"
)

func main() {
	if err := run(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Standard()
	if len(os.Args) > 1 {
		loaded, err := config.LoadConfig[config.Config](os.Args[1])
		if err != nil {
			return err
		}
		cfg = *loaded
	}

	clk := clock.New()
	net, err := network.NewWithClock(cfg.BaseAddress, clk,
		time.Duration(cfg.LinkProbeDelayMs)*time.Millisecond)
	if err != nil {
		return fmt.Errorf("could not create network: %v", err)
	}

	counter := chat.NewCounter()
	sub := subscriber.NewService(counter, clk,
		time.Duration(cfg.UsageProbeDelayMs)*time.Millisecond)
	op := operator.NewService(net, sub)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	operatorServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Hostname, cfg.OperatorPort),
		Handler: op.Router(),
	}
	subscriberServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Hostname, cfg.SubscriberPort),
		Handler: sub.Router(),
	}
	websocketServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Hostname, cfg.WebsocketPort),
		Handler: http.HandlerFunc(sub.ServeWS),
	}

	group, ctx := errgroup.WithContext(ctx)
	for _, server := range []*http.Server{operatorServer, subscriberServer, websocketServer} {
		server := server
		group.Go(func() error {
			slog.Info("listening", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, server := range []*http.Server{operatorServer, subscriberServer, websocketServer} {
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Info("could not shut down listener", "addr", server.Addr, "error", err)
			}
		}
		return nil
	})
	return group.Wait()
}
