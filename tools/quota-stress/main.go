package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/V4T54L/ratatouille-sync/internal/adapter/repository/memory"
	"github.com/V4T54L/ratatouille-sync/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/ratatouille-sync/internal/adapter/repository/redis"
	"github.com/V4T54L/ratatouille-sync/internal/domain"
	"github.com/V4T54L/ratatouille-sync/internal/pkg/logger"
)

// quota-stress hammers one quota key from many goroutines and checks that
// the ledger never admits more calls than the limit.
func main() {
	backend := flag.String("backend", "memory", "Ledger backend: memory, postgres or redis")
	postgresURL := flag.String("postgres", os.Getenv("POSTGRES_URL"), "Postgres DSN for the postgres backend")
	redisAddr := flag.String("redis", "localhost:6379", "Redis address for the redis backend")
	limit := flag.Int("limit", 500, "Quota limit for the test service")
	attempts := flag.Int("n", 5000, "Total reservation attempts")
	concurrency := flag.Int("c", 50, "Number of concurrent workers")
	rps := flag.Int("rps", 0, "Attempts per second limit (0 = unlimited)")
	releaseEvery := flag.Int("release-every", 0, "Release every Nth admitted call instead of committing it (0 = never)")
	flag.Parse()

	// A fresh service label per run keeps runs against shared stores apart.
	service := "stress-" + uuid.NewString()[:8]
	key := domain.QuotaKey{Service: service, Month: domain.MonthOf(time.Now().UTC())}
	limits := domain.QuotaLimits{ByService: map[string]int{service: *limit}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ledger, cleanup, err := openLedger(ctx, *backend, *postgresURL, *redisAddr, limits)
	if err != nil {
		log.Fatalf("failed to open %s ledger: %v", *backend, err)
	}
	defer cleanup()

	log.Printf("Stressing %s ledger, key %s", *backend, key)
	log.Printf("Limit: %d, Attempts: %d, Concurrency: %d, RPS: %d", *limit, *attempts, *concurrency, *rps)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if *rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(*rps), *concurrency)
	}

	var admitted, denied, released, failed atomic.Int64
	var next atomic.Int64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)
	for i := 0; i < *attempts; i++ {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			err := ledger.TryReserve(gctx, key)
			switch {
			case errors.Is(err, domain.ErrQuotaExceeded):
				denied.Add(1)
				return nil
			case err != nil:
				failed.Add(1)
				return nil
			}

			if n := next.Add(1); *releaseEvery > 0 && n%int64(*releaseEvery) == 0 {
				if err := ledger.Release(gctx, key, 1); err != nil {
					failed.Add(1)
					return nil
				}
				released.Add(1)
				return nil
			}
			if err := ledger.Commit(gctx, key, 1); err != nil {
				failed.Add(1)
				return nil
			}
			admitted.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("stress run aborted: %v", err)
	}
	elapsed := time.Since(start)

	usage, err := ledger.Usage(ctx, key)
	if err != nil {
		log.Fatalf("failed to read final usage: %v", err)
	}

	log.Println("Stress run finished.")
	log.Printf("Committed: %d", admitted.Load())
	log.Printf("Released: %d", released.Load())
	log.Printf("Denied: %d", denied.Load())
	log.Printf("Ledger errors: %d", failed.Load())
	log.Printf("Final usage: %d/%d (reserved %d)", usage.Used, usage.Limit, usage.Reserved)
	log.Printf("Attempts/s: %.2f", float64(*attempts)/elapsed.Seconds())

	if admitted.Load() > int64(*limit) || usage.Used > *limit {
		fmt.Fprintf(os.Stderr, "FAIL: ledger admitted %d calls over a limit of %d\n", admitted.Load(), *limit)
		os.Exit(1)
	}
	log.Println("OK: admissions stayed within the limit")
}

func openLedger(ctx context.Context, backend, postgresURL, redisAddr string, limits domain.QuotaLimits) (domain.QuotaLedger, func(), error) {
	slogger := logger.New("warn")
	switch backend {
	case "memory":
		return memory.NewQuotaLedger(limits), func() {}, nil
	case "postgres":
		db, err := sql.Open("postgres", postgresURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		db.SetMaxOpenConns(50)
		return postgres.NewQuotaLedger(db, limits, slogger), func() { db.Close() }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, err
		}
		return redisrepo.NewQuotaLedger(client, limits, slogger), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}
