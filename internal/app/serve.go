package app

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully and releases the app.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config.Server
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      a.Router(),
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		IdleTimeout:  cfg.IdleTimeout.Duration,
	}

	errc := make(chan error, 1)
	go func() {
		a.Logger.Info("Starting cypherview server", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			a.Close(context.Background())
			return err
		}
	case <-ctx.Done():
	}

	a.Logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	a.Logger.Info("Server exited")
	return errors.Join(errs...)
}
