// Package inject assembles the object graph from environment configuration.
package inject

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"
	"github.com/samber/do"

	"ghiblify/internal/caption"
	"ghiblify/internal/feed"
	"ghiblify/internal/handler"
	"ghiblify/internal/history"
	"ghiblify/internal/log"
	"ghiblify/internal/param"
	"ghiblify/internal/payment"
	"ghiblify/internal/pipeline"
	"ghiblify/internal/provider"
	"ghiblify/internal/quota"
	"ghiblify/internal/server"
	"ghiblify/internal/store"
)

func Setup(ctx context.Context) *do.Injector {
	logger := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		},
	})

	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		return config.LoadDefaultConfig(ctx)
	})
	do.Provide[*ssm.Client](injector, func(i *do.Injector) (*ssm.Client, error) {
		return ssm.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*s3.Client](injector, func(i *do.Injector) (*s3.Client, error) {
		return s3.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*cloudfront.Client](injector, func(i *do.Injector) (*cloudfront.Client, error) {
		return cloudfront.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	// The inference call regularly takes tens of seconds; the client timeout
	// must sit well above it.
	do.ProvideValue[*http.Client](injector, &http.Client{Timeout: 5 * time.Minute})

	do.Provide[*sql.DB](injector, func(i *do.Injector) (*sql.DB, error) {
		db, err := sql.Open("sqlite3", env("SQLITE_PATH", "ghiblify.db")+"?_busy_timeout=5000&_journal_mode=WAL")
		if err != nil {
			return nil, fmt.Errorf("opening sqlite database: %w", err)
		}
		return db, nil
	})
	do.Provide[*redis.Client](injector, func(i *do.Injector) (*redis.Client, error) {
		return redis.NewClient(&redis.Options{Addr: env("REDIS_ADDR", "localhost:6379")}), nil
	})

	do.Provide[param.Fetcher](injector, func(i *do.Injector) (param.Fetcher, error) {
		if os.Getenv("REPLICATE_TOKEN_PARAM") != "" || os.Getenv("STRIPE_KEY_PARAM") != "" {
			return param.NewParameterStoreFetcher(i)
		}
		return param.EnvFetcher{}, nil
	})
	do.ProvideNamed[string](injector, "replicate_token", secretProvider(ctx, "REPLICATE_TOKEN_PARAM", "REPLICATE_API_TOKEN"))
	do.ProvideNamed[string](injector, "stripe_key", secretProvider(ctx, "STRIPE_KEY_PARAM", "STRIPE_SECRET_KEY"))

	do.ProvideNamedValue[string](injector, "addr", ":"+env("PORT", "8080"))
	do.ProvideNamedValue[string](injector, "base_url", env("BASE_URL", "http://localhost:8080"))
	do.ProvideNamedValue[string](injector, "generated_dir", env("GENERATED_DIR", "public/generated"))
	do.ProvideNamedValue[string](injector, "bucket", os.Getenv("BUCKET"))
	do.ProvideNamedValue[string](injector, "cdn_base_url", os.Getenv("CDN_BASE_URL"))
	do.ProvideNamedValue[string](injector, "distribution", os.Getenv("DISTRIBUTION"))
	do.ProvideNamedValue[string](injector, "identity_secret", env("IDENTITY_SECRET", "ghiblify-dev-secret"))
	do.ProvideNamedValue[[]string](injector, "cors_origins",
		strings.Split(env("CORS_ORIGINS", "http://localhost:3000"), ","))

	do.Provide[quota.Store](injector, func(i *do.Injector) (quota.Store, error) {
		backend := env("QUOTA_BACKEND", "sqlite")
		switch backend {
		case "sqlite":
			return quota.NewSQLiteStore(i)
		case "redis":
			return quota.NewRedisStore(i)
		case "memory":
			logger.Warn("quota backend is in-memory; counts reset on restart")
			return quota.NewMemoryStore(), nil
		default:
			return nil, fmt.Errorf("unknown quota backend %q", backend)
		}
	})
	do.Provide[store.Store](injector, func(i *do.Injector) (store.Store, error) {
		backend := env("STORAGE_BACKEND", "file")
		switch backend {
		case "file":
			return store.NewFileStore(i)
		case "s3":
			return store.NewS3Store(i)
		default:
			return nil, fmt.Errorf("unknown storage backend %q", backend)
		}
	})
	do.Provide[store.Invalidator](injector, func(i *do.Injector) (store.Invalidator, error) {
		if os.Getenv("DISTRIBUTION") != "" {
			return store.NewCloudFrontInvalidator(i)
		}
		return store.NoopInvalidator{}, nil
	})

	do.Provide[*quota.Ledger](injector, quota.NewLedger)
	do.Provide[provider.Generator](injector, provider.NewReplicateGenerator)
	do.Provide[*history.Log](injector, history.NewLog)
	do.Provide[payment.Verifier](injector, payment.NewStripeVerifier)
	do.Provide[*caption.Randomizer](injector, caption.NewRandomizer)
	do.Provide[*feed.Generator](injector, feed.NewGenerator)
	do.Provide[*pipeline.Orchestrator](injector, pipeline.NewOrchestrator)
	do.Provide[*handler.Handler](injector, handler.NewHandler)
	do.Provide[*server.Server](injector, server.NewServer)

	return injector
}

func secretProvider(ctx context.Context, paramEnv, plainEnv string) func(*do.Injector) (string, error) {
	return func(i *do.Injector) (string, error) {
		fetcher := do.MustInvoke[param.Fetcher](i)
		if path := os.Getenv(paramEnv); path != "" {
			return fetcher.Fetch(ctx, path)
		}
		return param.EnvFetcher{}.Fetch(ctx, plainEnv)
	}
}

func env(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
