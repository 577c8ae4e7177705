// simulate hammers the Reserve endpoint with many workers racing on a
// small pool of available slots, then checks the database to verify that
// every claimed slot ended up with exactly one patient.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kineticpt/booking-core/internal/db"
)

type simConfig struct {
	apiBaseURL string
	duration   time.Duration
	workers    int
	dsn        string
}

type opMetrics struct {
	total     int64
	won       int64
	conflict  int64
	errored   int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *opMetrics) record(latency time.Duration, status int) {
	atomic.AddInt64(&om.total, 1)
	switch {
	case status == http.StatusOK:
		atomic.AddInt64(&om.won, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.conflict, 1)
	default:
		atomic.AddInt64(&om.errored, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *opMetrics) percentile(p int) time.Duration {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(om.latencies))
	copy(sorted, om.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := simConfig{}
	flag.StringVar(&cfg.apiBaseURL, "api", "http://127.0.0.1:8080", "API base URL")
	flag.DurationVar(&cfg.duration, "duration", 30*time.Second, "how long to run")
	flag.IntVar(&cfg.workers, "workers", 20, "concurrent workers")
	flag.Parse()

	cfg.dsn = os.Getenv("POSTGRES_DSN")
	if cfg.dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.dsn)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	patients, err := loadIDs(context.Background(), pool, `SELECT id FROM profiles WHERE role = 'patient' LIMIT 500`)
	if err != nil {
		log.Fatalf("load patients: %v", err)
	}
	slots, err := loadIDs(context.Background(), pool, `SELECT id FROM slots WHERE status = 'available' LIMIT 50`)
	if err != nil {
		log.Fatalf("load slots: %v", err)
	}
	if len(patients) == 0 || len(slots) == 0 {
		log.Fatal("need seeded patients and available slots, run cmd/seed first")
	}

	log.Printf("racing %d workers over %d slots for %s", cfg.workers, len(slots), cfg.duration)

	metrics := &opMetrics{}
	deadline := time.Now().Add(cfg.duration)
	client := &http.Client{Timeout: 5 * time.Second}

	var wg sync.WaitGroup
	for w := 0; w < cfg.workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))

			for time.Now().Before(deadline) {
				slotID := slots[rng.Intn(len(slots))]
				patientID := patients[rng.Intn(len(patients))]

				start := time.Now()
				status := reserve(client, cfg.apiBaseURL, slotID, patientID)
				metrics.record(time.Since(start), status)
			}
		}(int64(w) + time.Now().UnixNano())
	}
	wg.Wait()

	fmt.Printf("\nreserve: total=%d won=%d conflict=%d error=%d p50=%s p95=%s\n",
		atomic.LoadInt64(&metrics.total),
		atomic.LoadInt64(&metrics.won),
		atomic.LoadInt64(&metrics.conflict),
		atomic.LoadInt64(&metrics.errored),
		metrics.percentile(50),
		metrics.percentile(95),
	)

	if err := verify(context.Background(), pool); err != nil {
		log.Fatalf("verification FAILED: %v", err)
	}
	log.Println("verification passed: every claimed slot has exactly one patient")
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// verify asserts the mutual-exclusion property on the database itself:
// no claimed slot without a patient, no patient on an available slot.
func verify(ctx context.Context, pool *pgxpool.Pool) error {
	var bad int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM slots
		WHERE (status IN ('pending_payment', 'booked') AND patient_id IS NULL)
		   OR (status = 'available' AND patient_id IS NOT NULL)
	`).Scan(&bad)
	if err != nil {
		return err
	}
	if bad > 0 {
		return fmt.Errorf("%d slots violate the status/patient invariant", bad)
	}
	return nil
}

func reserve(client *http.Client, baseURL string, slotID, patientID uuid.UUID) int {
	body, _ := json.Marshal(map[string]string{"patient_id": patientID.String()})

	resp, err := client.Post(
		fmt.Sprintf("%s/slots/%s/reserve", baseURL, slotID),
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode
}
