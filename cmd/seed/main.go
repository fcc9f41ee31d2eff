package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cismedic/clinic-booking/internal/db"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

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

	doctors, err := seedDoctors(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	clients, err := seedClients(context.Background(), pool, 2000)
	if err != nil {
		log.Fatalf("seed clients: %v", err)
	}
	if err := seedDependents(context.Background(), pool, clients); err != nil {
		log.Fatalf("seed dependents: %v", err)
	}
	if err := seedSlots(context.Background(), pool, doctors, 14); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, name, email, role, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, 'doctor', $4, now(), now())
		`, id, gofakeit.Name(), gofakeit.Email(), spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedClients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d clients", count)

	const batchSize = 500
	ids := make([]uuid.UUID, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, name, email, role, created_at, updated_at)
				VALUES ($1, $2, $3, 'client', now(), now())
			`, id, gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("clients seeded: %d/%d", end, count)
	}

	return ids, nil
}

// seedDependents gives roughly a third of clients one or two dependents.
func seedDependents(ctx context.Context, pool *pgxpool.Pool, clients []uuid.UUID) error {
	log.Println("seeding dependents")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	total := 0
	for _, clientID := range clients {
		if gofakeit.Number(0, 2) != 0 {
			continue
		}
		for n := 0; n < gofakeit.Number(1, 2); n++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO dependents (id, client_id, name, relationship, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, uuid.New(), clientID, gofakeit.Name(),
				[]string{"child", "spouse", "parent"}[gofakeit.Number(0, 2)])
			if err != nil {
				return err
			}
			total++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("dependents seeded: %d", total)
	return nil
}

// seedSlots creates a two-week working schedule per doctor: hourly slots,
// 09:00 to 17:00, weekdays only.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, doctors []uuid.UUID, days int) error {
	log.Printf("seeding slots for %d doctors over %d days", len(doctors), days)

	today := time.Now().Truncate(24 * time.Hour)
	total := 0

	for _, doctorID := range doctors {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		price := float64(gofakeit.Number(50, 200))
		for d := 0; d < days; d++ {
			day := today.AddDate(0, 0, d)
			if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			for hour := 9; hour < 17; hour++ {
				startAt := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, time.Local)
				_, err := tx.Exec(ctx, `
					INSERT INTO time_slots (id, doctor_id, start_at, price, state, created_at, updated_at)
					VALUES ($1, $2, $3, $4, 'active', now(), now())
				`, uuid.New(), doctorID, startAt, price)
				if err != nil {
					_ = tx.Rollback(ctx)
					return err
				}
				total++
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	log.Printf("slots seeded: %d", total)
	return nil
}
