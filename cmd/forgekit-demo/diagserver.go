package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fiberforge/internal/gbdiag"
)

type diagHTTPServer struct {
	srv    *http.Server
	logger arbor.ILogger
}

func startDiagServer(host string, port int, handler *gbdiag.Handler, logger arbor.ILogger) *diagHTTPServer {
	mux := http.NewServeMux()
	mux.Handle("/diagnostics", handler)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("diagnostics http server failed")
		}
	}()

	return &diagHTTPServer{srv: srv, logger: logger}
}

func (d *diagHTTPServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.srv.Shutdown(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("diagnostics http server shutdown error")
	}
}
