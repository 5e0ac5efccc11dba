package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrAlreadyShutdown is returned by every Shutdown call after the first.
var ErrAlreadyShutdown = errors.New("app: already shut down")

const (
	warmupTimeout          = 10 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Run loads the tenant directory, serves HTTP and blocks until ctx is cancelled or
// the server fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	a.warmup(ctx)

	serverErrCh := a.serve()

	var serverErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("Shutdown requested")
	case err, ok := <-serverErrCh:
		if ok && err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("Server stopped unexpectedly")
			serverErr = err
		}
	}

	timeout := a.cfg.Server.Timeout.Shutdown
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	shutdownErr := a.Shutdown(shutdownCtx)
	if serverErr != nil {
		return fmt.Errorf("app: server: %w", serverErr)
	}
	return shutdownErr
}

// warmup loads the directory before traffic arrives. A failure is logged: the ready
// probe keeps reporting it until the source recovers.
func (a *App) warmup(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()

	if err := a.directory.Ready(ctx); err != nil {
		a.log.Warn().Err(err).Msg("Tenant directory not loaded at startup")
		return
	}
	if idx, err := a.directory.Snapshot(ctx); err == nil {
		a.log.Info().Int("tenants", idx.Len()).Msg("Tenant directory loaded")
	}
}

func (a *App) serve() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
		close(errCh)
	}()
	return errCh
}

// Shutdown stops the server first so no request sees a closed dependency, then the
// modules, the scheduler and the shared resources. Only the first call does any work.
func (a *App) Shutdown(ctx context.Context) error {
	err := ErrAlreadyShutdown
	a.shutdownOnce.Do(func() { err = a.shutdown(ctx) })
	return err
}

func (a *App) shutdown(ctx context.Context) error {
	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server: %w", err))
		}
	}
	if a.registry != nil {
		if err := a.registry.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, a.release(ctx)...)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	a.log.Info().Msg("Shutdown complete")
	return nil
}

// release closes everything New opened, in reverse order.
func (a *App) release(ctx context.Context) []error {
	var errs []error

	if a.scheduler != nil {
		if err := a.scheduler.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.stop != nil {
		a.stop()
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("invalidation bus: %w", err))
		}
	}
	if a.mongo != nil {
		if err := a.mongo.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongo: %w", err))
		}
	}
	if a.db != nil && a.ownsDB {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if a.provider != nil {
		if err := a.provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("observability: %w", err))
		}
	}
	for _, err := range errs {
		a.log.Error().Err(err).Msg("Failed to release resource")
	}
	return errs
}
