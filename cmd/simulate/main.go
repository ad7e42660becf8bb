package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/joho/godotenv"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/logging"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduler"
)

const password = "Sim12345!"

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	Patients     int
	Caregivers   int
	Days         int
	DosesPerDay  int
	Vaccine      string
	ReserveRatio float64
	CancelRatio  float64
	ReadRatio    float64
}

// DataPool holds the tokens and reservations workers pick from.
type DataPool struct {
	Patients []string // session tokens
	Dates    []string

	mu           sync.Mutex
	reservations []booking
}

type booking struct {
	id    int64
	token string
}

func (dp *DataPool) AddReservation(id int64, token string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.reservations = append(dp.reservations, booking{id: id, token: token})
}

// TakeReservation removes and returns a random reservation so two workers
// never cancel the same one on purpose.
func (dp *DataPool) TakeReservation(rng *rand.Rand) (booking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.reservations) == 0 {
		return booking{}, false
	}
	i := rng.IntN(len(dp.reservations))
	b := dp.reservations[i]
	dp.reservations = slices.Delete(dp.reservations, i, i+1)
	return b, true
}

func (dp *DataPool) Outstanding() int {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	return len(dp.reservations)
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, ok int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status == ok:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := slices.Clone(om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	slices.Sort(latencies)

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	n := len(latencies)
	return sum / time.Duration(n), latencies[0], latencies[n-1], latencies[n*50/100], latencies[min(n*95/100, n-1)]
}

type Metrics struct {
	Reserve  OperationMetrics
	Cancel   OperationMetrics
	Schedule OperationMetrics
	List     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     *slog.Logger
	metrics Metrics
	doses   int
}

func main() {
	log := logging.New(getEnv("LOG_LEVEL", "info"), getEnv("APP_ENV", "dev"))

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Error("invalid config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("simulator starting",
		slog.Duration("duration", cfg.Duration),
		slog.Int("workers", cfg.Workers),
		slog.Float64("reserve", cfg.ReserveRatio),
		slog.Float64("cancel", cfg.CancelRatio),
		slog.Float64("read", cfg.ReadRatio),
	)

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{},
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	setupCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	err := sim.Setup(setupCtx)
	cancel()
	if err != nil {
		log.Error("setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	_ = godotenv.Load()

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		Patients:     getInt("SIM_PATIENTS", 50),
		Caregivers:   getInt("SIM_CAREGIVERS", 5),
		Days:         getInt("SIM_DAYS", 3),
		DosesPerDay:  getInt("SIM_DOSES_PER_DAY", 3),
		Vaccine:      getEnv("SIM_VACCINE", "sim-"+strings.ToLower(gofakeit.LetterN(6))),
		ReserveRatio: getFloat("SIM_RESERVE_RATIO", 0.5),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
	}

	total := cfg.ReserveRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.ReserveRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Patients <= 0 || cfg.Caregivers <= 0 || cfg.Days <= 0 {
		return fmt.Errorf("SIM_PATIENTS, SIM_CAREGIVERS and SIM_DAYS must be > 0")
	}
	return nil
}

// Setup registers fresh caregivers and patients through the API, publishes
// availability on distant future dates and stocks a vaccine that only this
// run uses.
func (s *Simulator) Setup(ctx context.Context) error {
	base := time.Now().AddDate(0, 0, gofakeit.Number(365, 3650))
	for d := range s.config.Days {
		s.pool.Dates = append(s.pool.Dates, scheduler.FormatDate(base.AddDate(0, 0, d)))
	}

	for i := range s.config.Caregivers {
		token, err := s.signup(ctx, "caregiver")
		if err != nil {
			return err
		}
		for _, date := range s.pool.Dates {
			if _, err := s.call(ctx, http.MethodPost, "/availability", token, map[string]string{"date": date}, nil, http.StatusCreated); err != nil {
				return fmt.Errorf("upload availability: %w", err)
			}
		}
		if i == 0 {
			s.doses = s.config.DosesPerDay * s.config.Days
			if _, err := s.call(ctx, http.MethodPost, "/vaccines/"+s.config.Vaccine+"/doses", token, map[string]int{"count": s.doses}, nil, http.StatusOK); err != nil {
				return fmt.Errorf("add doses: %w", err)
			}
		}
	}

	for range s.config.Patients {
		token, err := s.signup(ctx, "patient")
		if err != nil {
			return err
		}
		s.pool.Patients = append(s.pool.Patients, token)
	}

	s.log.Info("setup complete",
		slog.Int("caregivers", s.config.Caregivers),
		slog.Int("patients", len(s.pool.Patients)),
		slog.Any("dates", s.pool.Dates),
		slog.String("vaccine", s.config.Vaccine),
		slog.Int("doses", s.doses),
	)
	return nil
}

func (s *Simulator) signup(ctx context.Context, role string) (string, error) {
	name := fmt.Sprintf("%s-%s", gofakeit.Username(), gofakeit.LetterN(6))
	creds := map[string]string{"username": name, "password": password}

	if _, err := s.call(ctx, http.MethodPost, "/"+role+"s", "", creds, nil, http.StatusCreated); err != nil {
		return "", fmt.Errorf("create %s: %w", role, err)
	}

	var login struct {
		Token string `json:"token"`
	}
	creds["role"] = role
	if _, err := s.call(ctx, http.MethodPost, "/sessions", "", creds, &login, http.StatusCreated); err != nil {
		return "", fmt.Errorf("login %s: %w", role, err)
	}
	return login.Token, nil
}

// call sends one request. It fails when the status is not want, and decodes
// the body into out when given.
func (s *Simulator) call(ctx context.Context, method, path, token string, body, out any, want int) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return resp.StatusCode, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info("starting simulation", slog.Duration("duration", s.config.Duration), slog.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := range s.config.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, i)
		}()
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.ReserveRatio:
			s.doReserve(ctx, rng)
		case r < s.config.ReserveRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		case rng.IntN(2) == 0:
			s.doSchedule(ctx, rng)
		default:
			s.doList(ctx, rng)
		}
	}
}

// Writes are not cut off by the run deadline so the pool stays in step with
// the server for the final consistency check.
func (s *Simulator) doReserve(ctx context.Context, rng *rand.Rand) {
	token := s.pool.Patients[rng.IntN(len(s.pool.Patients))]
	date := s.pool.Dates[rng.IntN(len(s.pool.Dates))]

	var res struct {
		ID int64 `json:"id"`
	}
	start := time.Now()
	status, err := s.call(context.WithoutCancel(ctx), http.MethodPost, "/reservations", token,
		map[string]string{"date": date, "vaccine": s.config.Vaccine}, &res, http.StatusCreated)
	s.metrics.Reserve.Record(time.Since(start), status, http.StatusCreated)

	if err == nil {
		s.pool.AddReservation(res.ID, token)
	}
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeReservation(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.call(context.WithoutCancel(ctx), http.MethodDelete, "/reservations/"+strconv.FormatInt(b.id, 10), b.token, nil, nil, http.StatusNoContent)
	s.metrics.Cancel.Record(time.Since(start), status, http.StatusNoContent)

	// a busy lock or transport error leaves the reservation in place
	if err != nil && status != http.StatusNotFound {
		s.pool.AddReservation(b.id, b.token)
	}
}

func (s *Simulator) doSchedule(ctx context.Context, rng *rand.Rand) {
	token := s.pool.Patients[rng.IntN(len(s.pool.Patients))]
	date := s.pool.Dates[rng.IntN(len(s.pool.Dates))]

	start := time.Now()
	status, _ := s.call(ctx, http.MethodGet, "/schedule/"+date, token, nil, nil, http.StatusOK)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Schedule.Record(time.Since(start), status, http.StatusOK)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	token := s.pool.Patients[rng.IntN(len(s.pool.Patients))]

	start := time.Now()
	status, _ := s.call(ctx, http.MethodGet, "/reservations", token, nil, nil, http.StatusOK)
	if ctx.Err() != nil {
		return
	}
	s.metrics.List.Record(time.Since(start), status, http.StatusOK)
}

// verify checks that no date was booked past its caregivers and that the
// vaccine stock matches the reservations still outstanding.
func (s *Simulator) verify(ctx context.Context) error {
	var sched struct {
		Vaccines []struct {
			Name  string `json:"name"`
			Doses int    `json:"doses"`
		} `json:"vaccines"`
	}
	token := s.pool.Patients[0]
	if _, err := s.call(ctx, http.MethodGet, "/schedule/"+s.pool.Dates[0], token, nil, &sched, http.StatusOK); err != nil {
		return err
	}

	left := 0
	for _, v := range sched.Vaccines {
		if v.Name == s.config.Vaccine {
			left = v.Doses
		}
	}

	booked := s.pool.Outstanding()
	if capacity := s.config.Caregivers * s.config.Days; booked > capacity {
		return fmt.Errorf("%d reservations outstanding for %d caregiver slots", booked, capacity)
	}
	if left+booked != s.doses {
		return fmt.Errorf("stock drift: %d left + %d booked != %d stocked", left, booked, s.doses)
	}
	return nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Reserve", &s.metrics.Reserve)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Schedule", &s.metrics.Schedule)
	printOperationReport("List reservations", &s.metrics.List)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.verify(ctx); err != nil {
		fmt.Printf("Consistency: FAILED (%v)\n", err)
		return
	}
	fmt.Printf("Consistency: ok (%d reservations outstanding)\n", s.pool.Outstanding())
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
