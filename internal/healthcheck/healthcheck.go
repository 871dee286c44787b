// Package healthcheck runs a minimal liveness listener for the hosting
// platform's probe. It is best-effort: a failure to start never takes the
// relay down.
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const body = "Bot is alive!"

// NormalizeListen turns a configured port or address into a listen address.
// A bare port number binds all interfaces. Empty input disables the
// listener.
func NormalizeListen(listen string) string {
	listen = strings.TrimSpace(listen)
	if listen == "" {
		return ""
	}
	if _, err := strconv.Atoi(listen); err == nil {
		return ":" + listen
	}
	if strings.HasPrefix(listen, ":") {
		return listen
	}
	return listen
}

// StartServer binds the liveness listener and serves it in the background.
// The server shuts down when ctx is canceled; the caller may also shut it
// down directly.
func StartServer(ctx context.Context, logger *slog.Logger, listen, component string) (*http.Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("health listen %s: %w", listen, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(body))
	})

	srv := &http.Server{
		// Report the bound address (relevant when listen uses port 0).
		Addr:              ln.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("health_server_error", "component", component, "addr", listen, "error", err.Error())
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("health_server_start", "component", component, "addr", listen)
	return srv, nil
}
