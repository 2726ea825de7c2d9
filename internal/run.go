// Package internal assembles the mirror daemon: the state mirror, the update
// stream subscription and the local state API.
package internal

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/windlasshq/windlass-client-go/internal/api"
	"github.com/windlasshq/windlass-client-go/internal/mirror"
	"github.com/windlasshq/windlass-client-go/internal/options"
	"github.com/windlasshq/windlass-client-go/internal/stream"
)

const shutdownTimeout = 5 * time.Second

// Run services the mirror until the context ends or a fatal error occurs.
func Run(ctx context.Context, version string, opts *options.Options) error {
	log := logrus.WithField("component", "mirror-daemon")
	log.Infof("windlass mirror %s (built with %s)", version, runtime.Version())

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := mirror.New(opts.AutoFix)
	client := stream.NewClient(opts.MasterURL, opts.ClientID, m)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Run(ctx)
	})

	if opts.APIEnabled {
		e := echo.New()
		e.HideBanner = true
		e.HidePort = true
		api.New(m, client.LastEvent).Register(e)
		addr := fmt.Sprintf("%s:%d", opts.BindIP, opts.BindPort)

		g.Go(func() error {
			log.WithField("address", addr).Info("serving the state api")
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "state api failed")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return e.Shutdown(sctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("windlass mirror shut down")
	return nil
}
