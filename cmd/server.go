package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// serve runs the HTTP server until ctx is cancelled, then drains requests and
// notifications still in flight.
func (app *application) serve(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:      app.routes(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelError),
	}

	shutdownError := make(chan error, 1)
	go func() {
		<-ctx.Done()
		app.logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			shutdownError <- err
			return
		}

		app.logger.Info("Completing background notifications")
		if app.dispatcher != nil {
			shutdownError <- app.dispatcher.Shutdown(shutdownCtx)
			return
		}
		shutdownError <- nil
	}()

	app.logger.Info("Starting server", "addr", server.Addr, "env", app.config.Env)

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if err := <-shutdownError; err != nil {
		return err
	}

	app.logger.Info("Stopped server", "addr", server.Addr)
	return nil
}
