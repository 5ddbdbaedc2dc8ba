// Package http serves the operational endpoints: Prometheus metrics and health checks.
package http

import (
	"context"
	"encoding/json"
	"errors"
	stdhttp "net/http"
	"sort"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/platform/metrics"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/platform/middleware"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

func NewRouter(checks map[string]Check, log waLog.Logger) stdhttp.Handler {
	if log == nil {
		log = waLog.Noop
	}
	mux := stdhttp.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", healthHandler(checks))

	var h stdhttp.Handler = mux
	h = middleware.Logging(log)(h)
	h = middleware.Recover(log)(h)
	return h
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]Check) stdhttp.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if r.Method != stdhttp.MethodGet {
			w.WriteHeader(stdhttp.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
		code := stdhttp.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				code = stdhttp.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// Serve runs the router on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler stdhttp.Handler, log waLog.Logger) error {
	srv := &stdhttp.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("metrics listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
