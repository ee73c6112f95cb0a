// Command fintrack-syncd keeps an installation's ledger in sync in the
// background: it drains queued changes on the engine's schedule, watches
// reachability of the remote project and optionally publishes sync state
// events to AMQP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/remote"
	"fintrack/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	app, err := cli.Bootstrap(context.Background(), log.ComponentDaemon)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fintrack-syncd: %v\n", err)
		os.Exit(1)
	}
	logger := app.Logger

	runCtx, stop := context.WithCancel(log.NewContext(context.Background(), logger))
	var wg sync.WaitGroup

	var (
		publisher   *amqp.Client
		unsubscribe = func() {}
	)
	if app.Config.AMQPURL != "" {
		publisher, err = amqp.NewClient(app.Config.AMQPURL, app.Config.AMQPExchange, app.Config.AMQPRoutingKey)
		if err != nil {
			logger.Error("Failed to initialize AMQP client, sync state events disabled", log.FieldError, err)
			publisher = nil
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				publisher.Run(runCtx)
			}()
			unsubscribe = app.Engine.Subscribe(publisher.Forward(app.Engine.InstallationID()))
			logger.Info("Publishing sync state events",
				"exchange", app.Config.AMQPExchange,
				"routing_key", app.Config.AMQPRoutingKey)
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	hb := &heartbeat{app: app}
	beats := worker.NewScheduler("reachability-heartbeat", app.Config.HeartbeatInterval, hb.beat)
	if err := beats.Start(runCtx); err != nil {
		logger.Error("Failed to start reachability heartbeat", log.FieldError, err)
		stop()
		app.Close()
		os.Exit(1)
	}

	// Follow connects, disconnects and changes made by the fintrack CLI as
	// soon as they land; the heartbeat covers platforms without notifications.
	watcher, err := newStoreWatcher(app.Config.DBPath, watchDebounce, app.Engine.Refresh)
	if err != nil {
		logger.Warn("Store changes will be picked up on the heartbeat interval", log.FieldError, err)
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			watcher.Run(runCtx)
		}()
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func() {
		beats.Stop()
		unsubscribe()
		stop()
		wg.Wait()
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", log.FieldError, err)
			}
		}
		app.Close()
	})

	logger.Info("fintrack-syncd running",
		"heartbeat_interval", app.Config.HeartbeatInterval,
		"sync_interval", app.Config.SyncInterval,
		"connected", app.Engine.Connected())

	cli.WaitForShutdown(ctx, done)
}

// heartbeat feeds the engine's reachability flag from a one-row select against
// the connected project.
type heartbeat struct {
	app *cli.App
}

func (h *heartbeat) beat(ctx context.Context) {
	h.app.Engine.Refresh(ctx)
	if !h.app.Engine.Connected() {
		return
	}
	creds, ok := h.app.Store.Credentials()
	if !ok {
		return
	}
	client, err := h.app.Provider.Client(creds)
	if err != nil {
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.app.Config.RemoteTimeout)
	err = remote.TestConnection(checkCtx, client)
	cancel()
	if ctx.Err() != nil {
		return
	}

	reachable := responded(err)
	if err != nil {
		log.FromContext(ctx).Debug("Remote heartbeat failed",
			log.FieldOperation, log.OpHeartbeat,
			"reachable", reachable,
			log.FieldError, err)
	}
	h.app.Engine.SetNetworkReachable(ctx, reachable)
}

// responded reports whether the remote answered at all. An HTTP error status
// still proves the network path works.
func responded(err error) bool {
	if err == nil {
		return true
	}
	var cerr *core.ConnectivityError
	return errors.As(err, &cerr) && cerr.StatusCode != 0
}
