package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kineticpt/booking-core/internal/db"
	"github.com/kineticpt/booking-core/internal/slot"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	therapists, err := seedProfiles(context.Background(), pool, "therapist", 5)
	if err != nil {
		log.Fatalf("seed therapists: %v", err)
	}
	if _, err := seedProfiles(context.Background(), pool, "patient", 200); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedSlots(context.Background(), pool, therapists, 14); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

func seedProfiles(ctx context.Context, pool *pgxpool.Pool, role string, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d %s profiles", count, role)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		email := gofakeit.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO profiles (id, full_name, email, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, email, role)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Printf("%s profiles seeded", role)
	return ids, nil
}

var serviceTypes = []slot.ServiceType{
	slot.ServiceInitialAssessment,
	slot.ServiceTelehealthConsult,
	slot.ServiceDryNeedling,
	slot.ServiceFullTelehealth,
}

// seedSlots creates a non-overlapping hourly grid per therapist per day.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, therapists []uuid.UUID, days int) error {
	log.Printf("seeding slots for %d therapists over %d days", len(therapists), days)

	hours := []string{"08:00", "09:00", "10:00", "11:00", "13:00", "14:00", "15:00", "16:00"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	total := 0
	today := time.Now().UTC().Truncate(24 * time.Hour)

	for _, therapist := range therapists {
		for d := 0; d < days; d++ {
			date := today.AddDate(0, 0, d)
			for i := 0; i+1 < len(hours); i++ {
				if gofakeit.Bool() {
					continue
				}

				st := serviceTypes[gofakeit.Number(0, len(serviceTypes)-1)]
				_, err := tx.Exec(ctx, `
					INSERT INTO slots (id, therapist_id, visit_date, start_time, end_time, service_type, status, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, 'available', now(), now())
				`, uuid.New(), therapist, date, hours[i], hours[i+1], st)
				if err != nil {
					return err
				}
				total++
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("slots seeded: %d", total)
	return nil
}
