package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Sternrassler/retrieval-services/pkg/client"
	"github.com/Sternrassler/retrieval-services/pkg/frame"
	"github.com/Sternrassler/retrieval-services/pkg/logging"
	"github.com/Sternrassler/retrieval-services/pkg/metrics"
	"github.com/Sternrassler/retrieval-services/pkg/semanticscholar"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
)

// maxServeResults caps n on /search.
const maxServeResults = 1000

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve /search, /health, /ready and /metrics over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default from configuration)",
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	e := getEnv(c)
	addr := c.String("addr")
	if addr == "" {
		addr = e.cfg.Server.Addr
	}

	rdb, err := connectRedis(c.Context, e.cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		e.logger.Info().Str("redis", e.cfg.Redis.URL).Msg("Connected to Redis")
	}

	s2, err := newScholar(e.cfg, rdb)
	if err != nil {
		return err
	}
	defer s2.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           newMux(e, s2, rdb),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		e.logger.Info().Str("addr", addr).Str("user_agent", e.cfg.UserAgent).Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	e.logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newMux(e *env, s2 *semanticscholar.Service, rdb *redis.Client) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(rdb))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/search", searchHandler(e, s2))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports ready when Redis, if configured, answers a ping.
func readyHandler(rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rdb != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// searchHandler serves GET /search?q=<query>[&n=<results>] as a JSON array
// of result rows.
func searchHandler(e *env, s2 *semanticscholar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		query := r.URL.Query().Get("q")
		if query == "" {
			http.Error(w, "missing q parameter", http.StatusBadRequest)
			return
		}

		n := e.cfg.SemanticScholar.NumResults
		if v := r.URL.Query().Get("n"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 1 || parsed > maxServeResults {
				http.Error(w, fmt.Sprintf("n must be between 1 and %d", maxServeResults), http.StatusBadRequest)
				return
			}
			n = parsed
		}

		logger := logging.NewRunLogger("serve", ksuid.New().String())
		res, err := newRetriever(e.cfg, s2, n).Search(r.Context(), query)
		if err != nil {
			logger.Error().Err(err).Str("query", query).Msg("Search failed")
			status := http.StatusBadGateway
			if httpErr, ok := client.AsHTTPError(err); errors.Is(err, client.ErrCoolingDown) ||
				(ok && httpErr.ErrorClass == client.ErrorClassRateLimit) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, "search failed", status)
			return
		}
		logger.Info().Str("query", query).Int("results", res.Len()).Msg("Search served")

		w.Header().Set("Content-Type", "application/json")
		if err := writeRows(w, res); err != nil {
			logger.Warn().Err(err).Msg("Failed to write response")
		}
	}
}

// writeRows writes the rows as a JSON array of objects keyed in column order.
func writeRows(w io.Writer, res *frame.Frame) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range res.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := marshalRow(res.Columns, row)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	buf.WriteString("]\n")
	_, err := w.Write(buf.Bytes())
	return err
}
