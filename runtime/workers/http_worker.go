package workers

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// HTTPServerWorker serves the REST and websocket endpoints until ctx is done.
type HTTPServerWorker struct {
	log             *slog.Logger
	server          *http.Server
	listener        net.Listener
	shutdownTimeout time.Duration
}

func NewHTTPServerWorker(log *slog.Logger, server *http.Server, shutdownTimeout time.Duration) *HTTPServerWorker {
	return &HTTPServerWorker{log: log, server: server, shutdownTimeout: shutdownTimeout}
}

// WithListener serves on an already bound listener instead of server.Addr.
func (w *HTTPServerWorker) WithListener(listener net.Listener) *HTTPServerWorker {
	w.listener = listener
	return w
}

func (w *HTTPServerWorker) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		w.log.Info("Starting HTTP server", "address", w.server.Addr, "at", time.Now().UTC())
		var err error
		if w.listener != nil {
			err = w.server.Serve(w.listener)
		} else {
			err = w.server.ListenAndServe()
		}
		errChan <- err
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()
		w.log.Info("Shutting down HTTP server")
		if err := w.server.Shutdown(shutdownCtx); err != nil {
			w.log.Warn("HTTP server shutdown failed", "error", err)
		}
		<-errChan
		return nil
	}
}
