package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/app"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/config"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/logging"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduler"
)

var vaccines = []string{"pfizer", "moderna", "janssen", "novavax", "astrazeneca"}

type seedOptions struct {
	caregivers int
	patients   int
	days       int
	start      time.Time
	password   string
}

func main() {
	var (
		opts  seedOptions
		start string
	)
	flag.IntVar(&opts.caregivers, "caregivers", 20, "caregiver accounts to create")
	flag.IntVar(&opts.patients, "patients", 200, "patient accounts to create")
	flag.IntVar(&opts.days, "days", 14, "days of availability to publish")
	flag.StringVar(&start, "start", time.Now().Format(scheduler.DateLayout), "first availability date")
	flag.StringVar(&opts.password, "password", "Seed1234!", "password for every seeded account")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.Env)

	if opts.start, err = scheduler.ParseDate(start); err != nil {
		log.Error("invalid -start", slog.String("value", start))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rt.Close()

	if err := seed(ctx, rt.Service, opts, log); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("seed complete")
}

func seed(ctx context.Context, svc *scheduler.Service, opts seedOptions, log *slog.Logger) error {
	log.Info("seeding caregivers", slog.Int("count", opts.caregivers), slog.Int("days", opts.days))

	slots := 0
	for i := 0; i < opts.caregivers; i++ {
		name, err := createAccount(ctx, svc, scheduler.RoleCaregiver, opts.password)
		if err != nil {
			return err
		}

		sess := scheduler.NewSession()
		if _, err := svc.Login(ctx, sess, scheduler.RoleCaregiver, name, opts.password); err != nil {
			return fmt.Errorf("login caregiver %s: %w", name, err)
		}

		for d := 0; d < opts.days; d++ {
			// roughly two days in three
			if gofakeit.Number(0, 2) == 0 {
				continue
			}
			if err := svc.UploadAvailability(ctx, sess, opts.start.AddDate(0, 0, d)); err != nil {
				return fmt.Errorf("upload availability for %s: %w", name, err)
			}
			slots++
		}

		// the first caregiver stocks the fridge
		if i == 0 {
			for _, v := range vaccines {
				doses := gofakeit.Number(opts.caregivers, opts.caregivers*opts.days)
				if err := svc.AddDoses(ctx, sess, v, doses); err != nil {
					return fmt.Errorf("add doses of %s: %w", v, err)
				}
				log.Info("vaccine stocked", slog.String("vaccine", v), slog.Int("doses", doses))
			}
		}
	}
	log.Info("caregivers seeded", slog.Int("slots", slots))

	log.Info("seeding patients", slog.Int("count", opts.patients))
	for i := 0; i < opts.patients; i++ {
		if _, err := createAccount(ctx, svc, scheduler.RolePatient, opts.password); err != nil {
			return err
		}
		if (i+1)%100 == 0 {
			log.Info("patients seeded", slog.Int("done", i+1), slog.Int("total", opts.patients))
		}
	}
	return nil
}

// createAccount retries with a fresh fake username on collisions.
func createAccount(ctx context.Context, svc *scheduler.Service, role scheduler.Role, password string) (string, error) {
	const attempts = 5
	for range attempts {
		name := gofakeit.Username()
		err := svc.CreateAccount(ctx, role, name, password)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, scheduler.ErrUsernameTaken) {
			return "", fmt.Errorf("create %s %s: %w", role, name, err)
		}
	}
	return "", fmt.Errorf("create %s: no free username after %d attempts", role, attempts)
}
