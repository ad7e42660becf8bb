package scheduler

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemRepository keeps all state in process. Transactions run one at a time
// on a copy of the state that replaces the live state only on success.
type MemRepository struct {
	mu    sync.Mutex
	state *memState
}

func NewMemRepository() *MemRepository {
	return &MemRepository{state: newMemState()}
}

func (r *MemRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := r.state.clone()
	if err := fn(ctx, &memTx{s: work}); err != nil {
		return err
	}

	r.state = work
	return nil
}

// Events returns a copy of the event log.
func (r *MemRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.state.events)
}

type memState struct {
	accounts     map[Role]map[string]Account
	slots        map[string]map[string]struct{} // date -> caregivers
	vaccines     map[string]int
	reservations map[int64]Reservation
	booked       map[string]int64 // date|caregiver -> reservation
	nextID       int64
	events       []EventLog
}

func newMemState() *memState {
	return &memState{
		accounts: map[Role]map[string]Account{
			RolePatient:   {},
			RoleCaregiver: {},
		},
		slots:        map[string]map[string]struct{}{},
		vaccines:     map[string]int{},
		reservations: map[int64]Reservation{},
		booked:       map[string]int64{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		accounts:     make(map[Role]map[string]Account, len(s.accounts)),
		slots:        make(map[string]map[string]struct{}, len(s.slots)),
		vaccines:     maps.Clone(s.vaccines),
		reservations: maps.Clone(s.reservations),
		booked:       maps.Clone(s.booked),
		nextID:       s.nextID,
		events:       slices.Clone(s.events),
	}
	for role, accs := range s.accounts {
		c.accounts[role] = maps.Clone(accs)
	}
	for date, set := range s.slots {
		c.slots[date] = maps.Clone(set)
	}
	return c
}

func bookingKey(date time.Time, caregiver string) string {
	return FormatDate(date) + "|" + caregiver
}

type memTx struct {
	s *memState
}

func (t *memTx) CreateAccount(_ context.Context, role Role, acc Account) error {
	accs, ok := t.s.accounts[role]
	if !ok {
		return ErrUnknownRole
	}
	if _, exists := accs[acc.Username]; exists {
		return ErrUsernameTaken
	}
	accs[acc.Username] = acc
	return nil
}

func (t *memTx) GetAccount(_ context.Context, role Role, username string) (*Account, error) {
	accs, ok := t.s.accounts[role]
	if !ok {
		return nil, ErrUnknownRole
	}
	acc, exists := accs[username]
	if !exists {
		return nil, ErrAccountNotFound
	}
	return &acc, nil
}

func (t *memTx) AddSlot(_ context.Context, caregiver string, date time.Time) error {
	if _, taken := t.s.booked[bookingKey(date, caregiver)]; taken {
		return nil
	}
	key := FormatDate(date)
	set, ok := t.s.slots[key]
	if !ok {
		set = map[string]struct{}{}
		t.s.slots[key] = set
	}
	set[caregiver] = struct{}{}
	return nil
}

func (t *memTx) RemoveSlot(_ context.Context, caregiver string, date time.Time) error {
	key := FormatDate(date)
	set := t.s.slots[key]
	if _, ok := set[caregiver]; !ok {
		return ErrNoCaregiverAvailable
	}
	delete(set, caregiver)
	if len(set) == 0 {
		delete(t.s.slots, key)
	}
	return nil
}

func (t *memTx) FindFreeCaregiver(_ context.Context, date time.Time) (string, error) {
	for _, caregiver := range slices.Sorted(maps.Keys(t.s.slots[FormatDate(date)])) {
		if _, taken := t.s.booked[bookingKey(date, caregiver)]; !taken {
			return caregiver, nil
		}
	}
	return "", ErrNoCaregiverAvailable
}

func (t *memTx) ListOpenCaregivers(_ context.Context, date time.Time) ([]string, error) {
	result := slices.Sorted(maps.Keys(t.s.slots[FormatDate(date)]))
	if result == nil {
		result = []string{}
	}
	return result, nil
}

func (t *memTx) AddDoses(_ context.Context, vaccine string, count int) error {
	t.s.vaccines[vaccine] += count
	return nil
}

func (t *memTx) TakeDose(_ context.Context, vaccine string) (int, error) {
	doses, ok := t.s.vaccines[vaccine]
	if !ok {
		return 0, ErrVaccineUnknown
	}
	if doses <= 0 {
		return 0, ErrOutOfStock
	}
	t.s.vaccines[vaccine] = doses - 1
	return doses - 1, nil
}

func (t *memTx) ReleaseDose(_ context.Context, vaccine string) error {
	if _, ok := t.s.vaccines[vaccine]; !ok {
		return ErrVaccineUnknown
	}
	t.s.vaccines[vaccine]++
	return nil
}

func (t *memTx) ListStockedVaccines(_ context.Context) ([]Vaccine, error) {
	result := []Vaccine{}
	for _, name := range slices.Sorted(maps.Keys(t.s.vaccines)) {
		if doses := t.s.vaccines[name]; doses > 0 {
			result = append(result, Vaccine{Name: name, Doses: doses})
		}
	}
	return result, nil
}

func (t *memTx) InsertReservation(_ context.Context, res Reservation) (*Reservation, error) {
	key := bookingKey(res.Date, res.Caregiver)
	if _, taken := t.s.booked[key]; taken {
		return nil, ErrNoCaregiverAvailable
	}

	t.s.nextID++
	res.ID = t.s.nextID
	t.s.reservations[res.ID] = res
	t.s.booked[key] = res.ID
	return &res, nil
}

func (t *memTx) GetReservation(_ context.Context, id int64) (*Reservation, error) {
	res, ok := t.s.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	return &res, nil
}

func (t *memTx) DeleteReservation(_ context.Context, id int64) error {
	res, ok := t.s.reservations[id]
	if !ok {
		return ErrReservationNotFound
	}
	delete(t.s.reservations, id)
	delete(t.s.booked, bookingKey(res.Date, res.Caregiver))
	return nil
}

func (t *memTx) ListReservations(_ context.Context, owner Identity) ([]Reservation, error) {
	result := []Reservation{}
	for _, id := range slices.Sorted(maps.Keys(t.s.reservations)) {
		res := t.s.reservations[id]
		if res.OwnedBy(owner) {
			result = append(result, res)
		}
	}
	return result, nil
}

func (t *memTx) InsertEvent(_ context.Context, ev EventLog) error {
	ev.ID = int64(len(t.s.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	t.s.events = append(t.s.events, ev)
	return nil
}
