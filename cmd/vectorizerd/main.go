// vectorizerd is the reference process that loads configuration, starts
// a pkg/store.Store, and exposes a minimal operational surface: a gRPC
// health endpoint and an HTTP metrics/readiness mux. It deliberately does
// not expose a vector CRUD/search API — that protocol layer is an
// external collaborator and would import pkg/access and pkg/store the
// same way this binary does.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vectorizer-db/vectorizer/pkg/access"
	"github.com/vectorizer-db/vectorizer/pkg/collection"
	"github.com/vectorizer-db/vectorizer/pkg/config"
	"github.com/vectorizer-db/vectorizer/pkg/observability"
	"github.com/vectorizer-db/vectorizer/pkg/store"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version and exit")
		host        = flag.String("host", "", "gRPC health host (overrides config/env)")
		port        = flag.Int("port", 0, "gRPC health port (overrides config/env)")
		metricsAddr = flag.String("metrics-addr", ":9090", "HTTP address for /metrics and /readyz")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("vectorizerd v%s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg := config.LoadFromEnv()
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := observability.NewDefaultLogger()
	metrics := observability.NewMetrics()

	st := store.New()
	defer st.Close()

	writeLimit := 0.0 // <= 0 disables the collection's limiter
	if cfg.RateLimit.Enabled {
		writeLimit = cfg.RateLimit.WritesPerSecond
	}
	if _, err := st.CreateCollection("default", collection.Config{
		Dimension:           cfg.HNSW.Dimensions,
		M:                   cfg.HNSW.M,
		EfConstruction:      cfg.HNSW.EfConstruction,
		EfSearch:            cfg.HNSW.DefaultEfSearch,
		WriteLimitPerSecond: writeLimit,
		WriteBurst:          cfg.RateLimit.Burst,
	}); err != nil {
		log.Fatalf("failed to create default collection: %v", err)
	}

	healthServer := health.NewServer()
	grpcServer := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	refreshHealthStatus(healthServer, st)

	lis, err := net.Listen("tcp", cfg.Server.Address())
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", cfg.Server.Address(), err)
	}

	errChan := make(chan error, 2)
	go func() {
		logger.Info("starting gRPC health server", map[string]interface{}{"addr": cfg.Server.Address()})
		if err := grpcServer.Serve(lis); err != nil {
			errChan <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	reqLogger := observability.NewRequestLogger(logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		refreshHealthStatus(healthServer, st)
		for name, h := range st.Health() {
			if h.State != "ready" && h.State != "indexing" && h.State != "compacting" {
				http.Error(w, fmt.Sprintf("collection %s not ready: %s", name, h.State), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/admin/collections", adminCollectionsHandler(cfg, st))
	httpServer := &http.Server{Addr: *metricsAddr, Handler: logRequests(reqLogger, mux)}

	go func() {
		logger.Info("starting metrics server", map[string]interface{}{"addr": *metricsAddr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	stopMetricsLoop := make(chan struct{})
	go collectionCountLoop(st, metrics, stopMetricsLoop)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", map[string]interface{}{"signal": sig.String()})
	case err := <-errChan:
		logger.Error("server error", map[string]interface{}{"error": err.Error()})
	}

	close(stopMetricsLoop)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("error stopping metrics server", map[string]interface{}{"error": err.Error()})
	}
	grpcServer.GracefulStop()

	logger.Info("vectorizerd stopped", nil)
}

// collectionCountLoop keeps the collections-total gauge current; nothing
// else in this process mutates collection membership fast enough to
// warrant updating it on every call.
func collectionCountLoop(st *store.Store, metrics *observability.Metrics, stop <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.UpdateCollectionCount(len(st.ListCollections()))
		case <-stop:
			return
		}
	}
}

// adminCollectionsHandler lists registered collections, gated behind
// pkg/access's bearer-token AuthContext when auth is enabled. It exists
// to exercise pkg/access against a real (if narrow) HTTP surface, not as
// a general admin API.
func adminCollectionsHandler(cfg *config.Config, st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Auth.Enabled {
			auth, err := access.AuthContextFromBearer(r.Header.Get("Authorization"), []byte(cfg.Auth.JWTSecret))
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			if !auth.HasRole("admin") {
				http.Error(w, "admin role required", http.StatusForbidden)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Collections []string `json:"collections"`
		}{Collections: st.ListCollections()})
	}
}

// logRequests wraps an http.Handler to log one line per completed request
// via a RequestLogger, recording the status code and latency the handler
// itself has no reason to track.
func logRequests(rl *observability.RequestLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		rl.LogRequest(r.Method, r.URL.Path, fmt.Sprintf("%d", sw.status), time.Since(start), nil)
	})
}

// statusWriter captures the status code a handler wrote, since
// http.ResponseWriter has no getter for it.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// refreshHealthStatus maps the store's per-collection health into the
// gRPC health service's binary SERVING/NOT_SERVING signal — the health
// protocol has no notion of per-collection granularity, so any
// collection outside its normal operating states takes down the whole
// process's reported health.
func refreshHealthStatus(hs *health.Server, st *store.Store) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	for _, h := range st.Health() {
		switch h.State {
		case "ready", "indexing", "compacting":
		default:
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
	}
	hs.SetServingStatus("", status)
}
