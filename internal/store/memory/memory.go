// Package memory implements the delivery ledger in process memory. It is
// the default backend when no DATABASE_URL is configured and the fixture
// backend for tests.
//
// Locking model: map membership and the token/active-shift indexes are
// guarded by a store-level RWMutex; each order and delivery record carries
// its own mutex so transitions on different records proceed in parallel.
// The store mutex is never acquired while a record mutex is held.
package memory

import (
	"sort"
	"sync"
	"time"

	"fireway-backend/internal/errs"
	"fireway-backend/internal/models"
	"fireway-backend/internal/store"
)

type orderEntry struct {
	mu    sync.Mutex
	order models.Order
}

type deliveryEntry struct {
	mu       sync.Mutex
	delivery models.Delivery
}

// Store is an in-memory store.Ledger.
type Store struct {
	mu                  sync.RWMutex
	users               map[string]models.User
	usersByEmail        map[string]string
	orders              map[string]*orderEntry
	shifts              map[string]models.Shift
	activeShiftByDriver map[string]string
	deliveries          map[string]*deliveryEntry
	deliveriesByToken   map[string]string

	locMu     sync.Mutex
	locations []models.LocationSample
	locSeq    int64

	now func() int64 // unix seconds, swappable in tests
}

var _ store.Ledger = (*Store)(nil)

// New creates an empty in-memory ledger.
func New() *Store {
	return &Store{
		users:               make(map[string]models.User),
		usersByEmail:        make(map[string]string),
		orders:              make(map[string]*orderEntry),
		shifts:              make(map[string]models.Shift),
		activeShiftByDriver: make(map[string]string),
		deliveries:          make(map[string]*deliveryEntry),
		deliveriesByToken:   make(map[string]string),
		now:                 func() int64 { return time.Now().Unix() },
	}
}

// SetClock overrides the timestamp source. Test hook.
func (s *Store) SetClock(now func() int64) { s.now = now }

// --- Users ---

func (s *Store) CreateUser(u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usersByEmail[u.Email]; ok {
		return errs.NewConflictError("user already exists")
	}
	if u.CreatedAt == 0 {
		u.CreatedAt = s.now()
	}
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = *u
	s.usersByEmail[u.Email] = u.ID
	return nil
}

func (s *Store) GetUser(id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errs.NewNotFoundError("user", id)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByEmail[email]
	if !ok {
		return nil, errs.NewNotFoundError("user", email)
	}
	u := s.users[id]
	return &u, nil
}

func (s *Store) ListUsersByRole(role string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.User
	for _, u := range s.users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *Store) SetUserFCMToken(id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return errs.NewNotFoundError("user", id)
	}
	u.FCMToken = &token
	u.UpdatedAt = s.now()
	s.users[id] = u
	return nil
}

// --- Orders ---

func (s *Store) CreateOrder(o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return errs.NewConflictError("order already exists")
	}
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	if o.CreatedAt == 0 {
		o.CreatedAt = s.now()
	}
	o.UpdatedAt = o.CreatedAt
	s.orders[o.ID] = &orderEntry{order: *o}
	return nil
}

func (s *Store) orderEntry(id string) (*orderEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.orders[id]
	if !ok {
		return nil, errs.NewNotFoundError("order", id)
	}
	return e, nil
}

func (s *Store) GetOrder(id string) (*models.Order, error) {
	e, err := s.orderEntry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	o := e.order
	return &o, nil
}

func (s *Store) ListOrders(f store.OrderFilter) ([]models.Order, error) {
	s.mu.RLock()
	entries := make([]*orderEntry, 0, len(s.orders))
	for _, e := range s.orders {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []models.Order
	for _, e := range entries {
		e.mu.Lock()
		o := e.order
		e.mu.Unlock()
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.AssignedDriverID != nil {
			if o.AssignedDriverID == nil || *o.AssignedDriverID != *f.AssignedDriverID {
				continue
			}
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *Store) TransitionOrder(id string, from []models.OrderStatus, apply func(*models.Order)) (*models.Order, error) {
	e, err := s.orderEntry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !statusIn(e.order.Status, from) {
		return nil, errs.NewConflictError("order is " + string(e.order.Status))
	}
	next := e.order
	apply(&next)
	if next.Status != e.order.Status && !e.order.Status.CanTransitionTo(next.Status) {
		return nil, errs.NewConflictError("order cannot move from " + string(e.order.Status) + " to " + string(next.Status))
	}
	next.UpdatedAt = s.now()
	e.order = next
	o := next
	return &o, nil
}

// --- Shifts ---

func (s *Store) CreateShift(sh *models.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh.Status == models.ShiftStatusActive {
		if _, ok := s.activeShiftByDriver[sh.DriverID]; ok {
			return errs.NewConflictError("driver already has an active shift")
		}
	}
	if sh.CreatedAt == 0 {
		sh.CreatedAt = s.now()
	}
	sh.UpdatedAt = sh.CreatedAt
	s.shifts[sh.ID] = *sh
	if sh.Status == models.ShiftStatusActive {
		s.activeShiftByDriver[sh.DriverID] = sh.ID
	}
	return nil
}

func (s *Store) GetShift(id string) (*models.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shifts[id]
	if !ok {
		return nil, errs.NewNotFoundError("shift", id)
	}
	return &sh, nil
}

func (s *Store) ActiveShift(driverID string) (*models.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.activeShiftByDriver[driverID]
	if !ok {
		return nil, errs.NewNotFoundError("active shift", driverID)
	}
	sh := s.shifts[id]
	return &sh, nil
}

func (s *Store) ListShifts(f store.ShiftFilter, limit int) ([]models.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Shift
	for _, sh := range s.shifts {
		if f.DriverID != nil && sh.DriverID != *f.DriverID {
			continue
		}
		if f.Status != nil && sh.Status != *f.Status {
			continue
		}
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TransitionShift(id string, from models.ShiftStatus, apply func(*models.Shift)) (*models.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shifts[id]
	if !ok {
		return nil, errs.NewNotFoundError("shift", id)
	}
	if sh.Status != from {
		return nil, errs.NewConflictError("shift is " + string(sh.Status))
	}
	next := sh
	apply(&next)
	if next.Status != sh.Status && !sh.Status.CanTransitionTo(next.Status) {
		return nil, errs.NewConflictError("shift cannot move from " + string(sh.Status) + " to " + string(next.Status))
	}
	next.UpdatedAt = s.now()
	s.shifts[id] = next
	if sh.Status == models.ShiftStatusActive && next.Status != models.ShiftStatusActive {
		delete(s.activeShiftByDriver, sh.DriverID)
	}
	return &next, nil
}

// --- Deliveries ---

func (s *Store) CreateDelivery(d *models.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[d.ID]; ok {
		return errs.NewConflictError("delivery already exists")
	}
	if d.Status == "" {
		d.Status = models.DeliveryStatusAssigned
	}
	if d.CreatedAt == 0 {
		d.CreatedAt = s.now()
	}
	d.UpdatedAt = d.CreatedAt
	s.deliveries[d.ID] = &deliveryEntry{delivery: *d}
	s.deliveriesByToken[d.TrackingToken] = d.ID
	return nil
}

func (s *Store) deliveryEntry(id string) (*deliveryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.deliveries[id]
	if !ok {
		return nil, errs.NewNotFoundError("delivery", id)
	}
	return e, nil
}

func (s *Store) GetDelivery(id string) (*models.Delivery, error) {
	e, err := s.deliveryEntry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.delivery
	return &d, nil
}

func (s *Store) GetDeliveryByToken(token string) (*models.Delivery, error) {
	s.mu.RLock()
	id, ok := s.deliveriesByToken[token]
	s.mu.RUnlock()
	if !ok {
		return nil, errs.NewNotFoundError("tracking token", token)
	}
	return s.GetDelivery(id)
}

func (s *Store) ListDeliveries(f store.DeliveryFilter) ([]models.Delivery, error) {
	s.mu.RLock()
	entries := make([]*deliveryEntry, 0, len(s.deliveries))
	for _, e := range s.deliveries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []models.Delivery
	for _, e := range entries {
		e.mu.Lock()
		d := e.delivery
		e.mu.Unlock()
		if f.Status != nil && d.Status != *f.Status {
			continue
		}
		if f.DriverID != nil && d.DriverID != *f.DriverID {
			continue
		}
		if f.ShiftID != nil && d.ShiftID != *f.ShiftID {
			continue
		}
		if f.OrderID != nil && d.OrderID != *f.OrderID {
			continue
		}
		if f.CreatedAfter != nil && d.CreatedAt < *f.CreatedAfter {
			continue
		}
		if f.CreatedBefore != nil && d.CreatedAt > *f.CreatedBefore {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *Store) TransitionDelivery(id string, from []models.DeliveryStatus, apply func(*models.Delivery)) (*models.Delivery, error) {
	e, err := s.deliveryEntry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !statusIn(e.delivery.Status, from) {
		return nil, errs.NewConflictError("delivery is " + string(e.delivery.Status))
	}
	next := e.delivery
	apply(&next)
	if next.Status != e.delivery.Status && !e.delivery.Status.CanTransitionTo(next.Status) {
		return nil, errs.NewConflictError("delivery cannot move from " + string(e.delivery.Status) + " to " + string(next.Status))
	}
	next.UpdatedAt = s.now()
	e.delivery = next
	d := next
	return &d, nil
}

func (s *Store) SetDeliverySequence(id, driverID string, sequence int) error {
	e, err := s.deliveryEntry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.delivery.DriverID != driverID {
		return errs.NewNotFoundError("delivery", id)
	}
	e.delivery.Sequence = sequence
	e.delivery.UpdatedAt = s.now()
	return nil
}

// --- Locations ---

func (s *Store) AppendLocation(l *models.LocationSample) error {
	s.locMu.Lock()
	defer s.locMu.Unlock()
	s.locSeq++
	l.ID = s.locSeq
	if l.CreatedAt == 0 {
		l.CreatedAt = s.now()
	}
	s.locations = append(s.locations, *l)
	return nil
}

func (s *Store) ListLocations(f store.LocationFilter) ([]models.LocationSample, error) {
	s.locMu.Lock()
	defer s.locMu.Unlock()
	var out []models.LocationSample
	for _, l := range s.locations {
		if f.DriverID != nil && l.DriverID != *f.DriverID {
			continue
		}
		if f.DeliveryID != nil {
			if l.DeliveryID == nil || *l.DeliveryID != *f.DeliveryID {
				continue
			}
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (s *Store) LatestLocation(f store.LocationFilter) (*models.LocationSample, error) {
	all, err := s.ListLocations(f)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, errs.NewNotFoundError("location", "latest")
	}
	latest := all[len(all)-1]
	return &latest, nil
}

func statusIn[T comparable](status T, allowed []T) bool {
	for _, a := range allowed {
		if a == status {
			return true
		}
	}
	return false
}
