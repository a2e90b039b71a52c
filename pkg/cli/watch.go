package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platinummonkey/axle/pkg/config"
	"github.com/platinummonkey/axle/pkg/observability"
	"github.com/platinummonkey/axle/pkg/watch"
)

func newWatchCommand() *Command {
	return &Command{
		Name:        "watch",
		Description: "Keep a directory of packages loaded and serve status endpoints",
		Run:         runWatch,
	}
}

func runWatch(args []string) error {
	flags := flag.NewFlagSet("watch", flag.ContinueOnError)
	flags.SetOutput(stderr)
	dir := flags.String("dir", "", "Directory of packages to watch (default $AXLE_WATCH_DIR)")
	listen := flags.String("listen", "", "Status server address (default $AXLE_LISTEN_ADDR)")

	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if *dir != "" {
		cfg.Watch.Dir = *dir
	}
	if *listen != "" {
		cfg.Watch.ListenAddr = *listen
	}
	if cfg.Watch.Dir == "" {
		return errors.New("a directory to watch is required (-dir or AXLE_WATCH_DIR)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serveWatch(ctx, cfg)
}

// serveWatch runs the watcher and the status server until ctx is done, then
// shuts both down along with the host
func serveWatch(ctx context.Context, cfg *config.Config) error {
	h, err := newHost(ctx, cfg)
	if err != nil {
		return err
	}

	w, err := watch.New(watch.Config{
		Dir:      cfg.Watch.Dir,
		Debounce: cfg.Watch.Debounce,
		Target:   h.manager,
		Logger:   h.log,
	})
	if err != nil {
		return errors.Join(err, h.Close(ctx))
	}

	health := observability.NewHealthChecker(Version)
	health.AddCheck("journal", false, h.journal.Ping)
	health.AddCheck("plugins", true, func(context.Context) error {
		if h.manager.Closed() {
			return errors.New("plugin manager is closed")
		}
		return nil
	})

	status := &statusServer{
		manager:  h.manager,
		journal:  h.journal,
		metrics:  h.metrics,
		registry: h.registry,
		health:   health,
	}
	server := &http.Server{
		Addr:              cfg.Watch.ListenAddr,
		Handler:           status.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sm := observability.NewShutdownManager(h.log, server, cfg.Watch.ShutdownTimeout)
	sm.RegisterShutdownFunc(h.Close)

	watchCtx, cancelWatch := context.WithCancel(ctx)
	watchDone := make(chan error, 1)
	go func() {
		defer observability.RecoverPanicWithCallback(h.log, "watch loop", func(r any) {
			watchDone <- fmt.Errorf("watch loop panicked: %v", r)
		})
		err := w.Run(watchCtx)
		if err != nil {
			h.log.WithError(err).Error("Watcher stopped")
		}
		watchDone <- err
	}()
	// Registered last so the watcher stops before the manager closes
	sm.RegisterShutdownFunc(func(context.Context) error {
		cancelWatch()
		return <-watchDone
	})

	serverErr := make(chan error, 1)
	go func() {
		h.log.Infof("Status server listening on %s", cfg.Watch.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		return sm.Shutdown(context.Background())
	case err := <-serverErr:
		h.log.WithError(err).Error("Status server failed")
		return errors.Join(fmt.Errorf("status server failed: %w", err), sm.Shutdown(context.Background()))
	}
}
