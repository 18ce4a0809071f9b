package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/dexgo"
	"github.com/hupe1980/dexgo/artifact"
	"github.com/hupe1980/dexgo/blobstore"
	minioblob "github.com/hupe1980/dexgo/blobstore/minio"
	s3blob "github.com/hupe1980/dexgo/blobstore/s3"
	"github.com/hupe1980/dexgo/cluster"
	"github.com/hupe1980/dexgo/cluster/local"
	"github.com/hupe1980/dexgo/cluster/remote"
	"github.com/hupe1980/dexgo/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	addr := flag.String("addr", getEnv("DEXGOD_ADDR", ":8080"), "listen address")
	indexDir := flag.String("index-dir", getEnv("DEXGOD_INDEX_DIR", "indices"), "directory for index artifacts")
	storeKind := flag.String("store", getEnv("DEXGOD_STORE", "local"), "blob store backend: local, memory, s3 or minio")
	blobDir := flag.String("blob-dir", getEnv("DEXGOD_BLOB_DIR", "blobs"), "root directory for the local blob store")
	bucket := flag.String("bucket", getEnv("DEXGOD_BUCKET", ""), "bucket for the s3 and minio backends")
	storePrefix := flag.String("store-prefix", getEnv("DEXGOD_STORE_PREFIX", ""), "key prefix inside the bucket")
	master := flag.String("master", getEnv("DEXGOD_MASTER", ""), "job master URL; empty runs jobs in-process")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(getEnv("DEXGOD_LOG_LEVEL", "info")),
	}))
	slog.SetDefault(logger)

	logger.Info("starting dexgod",
		"version", Version,
		"addr", *addr,
		"index_dir", *indexDir,
		"store", *storeKind,
		"master", *master,
	)

	ctx := context.Background()

	blobs, err := newBlobStore(ctx, *storeKind, *blobDir, *bucket, *storePrefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "blob store: %v\n", err)
		os.Exit(1)
	}

	var client cluster.Client
	var runner *local.Runner
	if *master == "" {
		runner, err = local.New(blobs, local.WithLogger(logger))
		if err != nil {
			fmt.Fprintf(os.Stderr, "local runner: %v\n", err)
			os.Exit(1)
		}
		client = runner
	} else {
		client, err = remote.NewClient(*master)
		if err != nil {
			fmt.Fprintf(os.Stderr, "master client: %v\n", err)
			os.Exit(1)
		}
	}

	store, err := artifact.NewStore(nil, *indexDir, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "artifact store: %v\n", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	d, err := dexgo.New(store, client,
		dexgo.WithLogger(dexgo.NewLogger(logger.Handler())),
		dexgo.WithMetricsCollector(dexgo.NewPrometheusMetricsCollector(reg)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dexgo: %v\n", err)
		os.Exit(1)
	}

	handler := server.NewHandler(d, nil, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Health check endpoint.
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"version": Version,
		})
	})

	// Root info endpoint.
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"name":    "dexgod",
			"version": Version,
		})
	})

	srv := &http.Server{
		Addr:         *addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	logger.Info("listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	// The in-process runner keeps worker goroutines; stop them before exit.
	if runner != nil {
		if err := runner.Close(); err != nil {
			logger.Error("runner close", "error", err)
		}
	}
}

// newBlobStore builds the blob backends and the locator routing between
// them. Scheme-less locators go to the backend selected by kind; file:// and
// mem:// locators always route to the local and memory stores, and s3:// or
// minio:// to the bucket backend when that is the selected kind. The s3
// backend picks up credentials and region from the usual AWS environment;
// minio reads MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY.
func newBlobStore(ctx context.Context, kind, dir, bucket, prefix string) (blobstore.Store, error) {
	localStore := blobstore.NewLocalStore(nil, dir)
	memStore := blobstore.NewMemoryStore()

	var fallback blobstore.Store
	var bucketScheme string
	switch kind {
	case "local":
		fallback = localStore
	case "memory":
		fallback = memStore
	case "s3":
		if bucket == "" {
			return nil, fmt.Errorf("s3 backend needs -bucket")
		}
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		fallback = s3blob.NewStore(awss3.NewFromConfig(cfg), bucket, prefix)
		bucketScheme = "s3"
	case "minio":
		if bucket == "" {
			return nil, fmt.Errorf("minio backend needs -bucket")
		}
		endpoint := getEnv("MINIO_ENDPOINT", "localhost:9000")
		client, err := minio.New(endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
			Secure: getEnv("MINIO_SECURE", "false") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		fallback = minioblob.NewStore(client, bucket, prefix)
		bucketScheme = "minio"
	default:
		return nil, fmt.Errorf("unknown blob store %q", kind)
	}

	mux := blobstore.NewMux(fallback)
	mux.Register("file", localStore)
	mux.Register("mem", memStore)
	if bucketScheme != "" {
		mux.Register(bucketScheme, fallback)
	}
	return mux, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
