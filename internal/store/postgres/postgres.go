// Package postgres implements the delivery ledger on PostgreSQL via sqlx.
// Compare-and-transition writes run inside a transaction with the row
// locked, so the precondition and the update are atomic per record.
package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"fireway-backend/internal/errs"
	"fireway-backend/internal/models"
	"fireway-backend/internal/store"
)

// Connect opens and pings the database.
func Connect(dbURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate applies the schema.
func Migrate(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL CHECK(role IN ('driver', 'store_staff', 'admin')),
			fcm_token TEXT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			platform TEXT NOT NULL DEFAULT '',
			external_order_id TEXT NOT NULL DEFAULT '',
			customer_name TEXT NOT NULL,
			customer_phone TEXT NOT NULL DEFAULT '',
			customer_address TEXT NOT NULL,
			customer_latitude DOUBLE PRECISION NOT NULL,
			customer_longitude DOUBLE PRECISION NOT NULL,
			items JSONB NOT NULL DEFAULT '[]',
			total_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			status TEXT NOT NULL CHECK(status IN ('pending', 'assigned', 'out_for_delivery', 'delivered', 'cancelled')),
			assigned_driver_id TEXT REFERENCES users(id),
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		`CREATE TABLE IF NOT EXISTS shifts (
			id TEXT PRIMARY KEY,
			driver_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			status TEXT NOT NULL CHECK(status IN ('active', 'completed')),
			clock_in_time BIGINT NOT NULL,
			clock_in_latitude DOUBLE PRECISION NOT NULL,
			clock_in_longitude DOUBLE PRECISION NOT NULL,
			clock_out_time BIGINT,
			clock_out_latitude DOUBLE PRECISION,
			clock_out_longitude DOUBLE PRECISION,
			total_deliveries INT NOT NULL DEFAULT 0,
			total_distance_km DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		// One active shift per driver, enforced by the database itself.
		`CREATE UNIQUE INDEX IF NOT EXISTS shifts_one_active_per_driver
			ON shifts(driver_id) WHERE status = 'active'`,

		`CREATE TABLE IF NOT EXISTS deliveries (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL REFERENCES orders(id),
			driver_id TEXT NOT NULL REFERENCES users(id),
			shift_id TEXT NOT NULL REFERENCES shifts(id),
			tracking_token TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL CHECK(status IN ('assigned', 'started', 'near', 'delivered')),
			delivery_sequence INT NOT NULL DEFAULT 1,
			started_at BIGINT,
			completed_at BIGINT,
			duration_minutes INT,
			distance_km DOUBLE PRECISION,
			notes TEXT,
			delivery_proof_url TEXT,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		`CREATE TABLE IF NOT EXISTS locations (
			id BIGSERIAL PRIMARY KEY,
			driver_id TEXT NOT NULL REFERENCES users(id),
			delivery_id TEXT REFERENCES deliveries(id),
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			accuracy DOUBLE PRECISION,
			speed DOUBLE PRECISION,
			heading DOUBLE PRECISION,
			timestamp BIGINT NOT NULL,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		`CREATE INDEX IF NOT EXISTS locations_delivery_ts ON locations(delivery_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS locations_driver_ts ON locations(driver_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS deliveries_driver ON deliveries(driver_id)`,
		`CREATE INDEX IF NOT EXISTS orders_status ON orders(status)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	log.Println("database migrations completed")
	return nil
}

// Store is the PostgreSQL store.Ledger.
type Store struct {
	db *sqlx.DB
}

var _ store.Ledger = (*Store)(nil)

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func nowUnix() int64 { return time.Now().Unix() }

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// --- Users ---

func (s *Store) CreateUser(u *models.User) error {
	if u.CreatedAt == 0 {
		u.CreatedAt = nowUnix()
	}
	u.UpdatedAt = u.CreatedAt
	_, err := s.db.Exec(`
		INSERT INTO users (id, email, password, name, phone, role, fcm_token, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Email, u.Password, u.Name, u.Phone, u.Role, u.FCMToken, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.NewConflictError("user already exists")
	}
	return err
}

func (s *Store) GetUser(id string) (*models.User, error) {
	var u models.User
	err := s.db.Get(&u, `SELECT * FROM users WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFoundError("user", id)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	var u models.User
	err := s.db.Get(&u, `SELECT * FROM users WHERE email = $1`, email)
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFoundError("user", email)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsersByRole(role string) ([]models.User, error) {
	users := []models.User{}
	if role == "" {
		return users, s.db.Select(&users, `SELECT * FROM users ORDER BY created_at`)
	}
	return users, s.db.Select(&users, `SELECT * FROM users WHERE role = $1 ORDER BY created_at`, role)
}

func (s *Store) SetUserFCMToken(id, token string) error {
	res, err := s.db.Exec(`UPDATE users SET fcm_token = $1, updated_at = $2 WHERE id = $3`,
		token, nowUnix(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NewNotFoundError("user", id)
	}
	return nil
}

// --- Orders ---

func (s *Store) CreateOrder(o *models.Order) error {
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	if o.CreatedAt == 0 {
		o.CreatedAt = nowUnix()
	}
	o.UpdatedAt = o.CreatedAt
	_, err := s.db.Exec(`
		INSERT INTO orders (id, platform, external_order_id, customer_name, customer_phone,
			customer_address, customer_latitude, customer_longitude, items, total_amount,
			status, assigned_driver_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		o.ID, o.Platform, o.ExternalOrderID, o.CustomerName, o.CustomerPhone,
		o.CustomerAddress, o.CustomerLatitude, o.CustomerLongitude, o.Items, o.TotalAmount,
		o.Status, o.AssignedDriverID, o.CreatedAt, o.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.NewConflictError("order already exists")
	}
	return err
}

func (s *Store) GetOrder(id string) (*models.Order, error) {
	var o models.Order
	err := s.db.Get(&o, `SELECT * FROM orders WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFoundError("order", id)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) ListOrders(f store.OrderFilter) ([]models.Order, error) {
	query := `SELECT * FROM orders`
	var conds []string
	var args []interface{}
	if f.Status != nil {
		args = append(args, *f.Status)
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	if f.AssignedDriverID != nil {
		args = append(args, *f.AssignedDriverID)
		conds = append(conds, "assigned_driver_id = $"+strconv.Itoa(len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at"

	orders := []models.Order{}
	return orders, s.db.Select(&orders, query, args...)
}

func (s *Store) TransitionOrder(id string, from []models.OrderStatus, apply func(*models.Order)) (*models.Order, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var o models.Order
	if err := tx.Get(&o, `SELECT * FROM orders WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NewNotFoundError("order", id)
		}
		return nil, err
	}
	if !statusIn(o.Status, from) {
		return nil, errs.NewConflictError("order is " + string(o.Status))
	}
	prev := o.Status
	apply(&o)
	if o.Status != prev && !prev.CanTransitionTo(o.Status) {
		return nil, errs.NewConflictError("order cannot move from " + string(prev) + " to " + string(o.Status))
	}
	o.UpdatedAt = nowUnix()

	if _, err := tx.Exec(`
		UPDATE orders SET status = $1, assigned_driver_id = $2, updated_at = $3 WHERE id = $4`,
		o.Status, o.AssignedDriverID, o.UpdatedAt, o.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &o, nil
}

// --- Shifts ---

func (s *Store) CreateShift(sh *models.Shift) error {
	if sh.CreatedAt == 0 {
		sh.CreatedAt = nowUnix()
	}
	sh.UpdatedAt = sh.CreatedAt
	_, err := s.db.Exec(`
		INSERT INTO shifts (id, driver_id, status, clock_in_time, clock_in_latitude,
			clock_in_longitude, clock_out_time, clock_out_latitude, clock_out_longitude,
			total_deliveries, total_distance_km, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		sh.ID, sh.DriverID, sh.Status, sh.ClockInTime, sh.ClockInLatitude,
		sh.ClockInLongitude, models.ToNullInt64(sh.ClockOutTime), models.ToNullFloat64(sh.ClockOutLatitude),
		models.ToNullFloat64(sh.ClockOutLongitude), sh.TotalDeliveries, sh.TotalDistanceKm,
		sh.CreatedAt, sh.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.NewConflictError("driver already has an active shift")
	}
	return err
}

func (s *Store) GetShift(id string) (*models.Shift, error) {
	var sh models.Shift
	err := s.db.Get(&sh, `SELECT * FROM shifts WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFoundError("shift", id)
	}
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

func (s *Store) ActiveShift(driverID string) (*models.Shift, error) {
	var sh models.Shift
	err := s.db.Get(&sh, `SELECT * FROM shifts WHERE driver_id = $1 AND status = 'active'`, driverID)
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFoundError("active shift", driverID)
	}
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

func (s *Store) ListShifts(f store.ShiftFilter, limit int) ([]models.Shift, error) {
	query := `SELECT * FROM shifts`
	var conds []string
	var args []interface{}
	if f.DriverID != nil {
		args = append(args, *f.DriverID)
		conds = append(conds, "driver_id = $"+strconv.Itoa(len(args)))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}

	shifts := []models.Shift{}
	return shifts, s.db.Select(&shifts, query, args...)
}

func (s *Store) TransitionShift(id string, from models.ShiftStatus, apply func(*models.Shift)) (*models.Shift, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var sh models.Shift
	if err := tx.Get(&sh, `SELECT * FROM shifts WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NewNotFoundError("shift", id)
		}
		return nil, err
	}
	if sh.Status != from {
		return nil, errs.NewConflictError("shift is " + string(sh.Status))
	}
	prev := sh.Status
	apply(&sh)
	if sh.Status != prev && !prev.CanTransitionTo(sh.Status) {
		return nil, errs.NewConflictError("shift cannot move from " + string(prev) + " to " + string(sh.Status))
	}
	sh.UpdatedAt = nowUnix()

	if _, err := tx.Exec(`
		UPDATE shifts SET status = $1, clock_out_time = $2, clock_out_latitude = $3,
			clock_out_longitude = $4, total_deliveries = $5, total_distance_km = $6,
			updated_at = $7
		WHERE id = $8`,
		sh.Status, models.ToNullInt64(sh.ClockOutTime), models.ToNullFloat64(sh.ClockOutLatitude),
		models.ToNullFloat64(sh.ClockOutLongitude), sh.TotalDeliveries, sh.TotalDistanceKm,
		sh.UpdatedAt, sh.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sh, nil
}

// --- Deliveries ---

func (s *Store) CreateDelivery(d *models.Delivery) error {
	if d.Status == "" {
		d.Status = models.DeliveryStatusAssigned
	}
	if d.CreatedAt == 0 {
		d.CreatedAt = nowUnix()
	}
	d.UpdatedAt = d.CreatedAt
	_, err := s.db.Exec(`
		INSERT INTO deliveries (id, order_id, driver_id, shift_id, tracking_token, status,
			delivery_sequence, started_at, completed_at, duration_minutes, distance_km,
			notes, delivery_proof_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		d.ID, d.OrderID, d.DriverID, d.ShiftID, d.TrackingToken, d.Status,
		d.Sequence, models.ToNullInt64(d.StartedAt), models.ToNullInt64(d.CompletedAt),
		d.DurationMinutes, models.ToNullFloat64(d.DistanceKm),
		models.ToNullString(d.Notes), models.ToNullString(d.ProofURL), d.CreatedAt, d.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.NewConflictError("delivery already exists")
	}
	return err
}

func (s *Store) GetDelivery(id string) (*models.Delivery, error) {
	var d models.Delivery
	err := s.db.Get(&d, `SELECT * FROM deliveries WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFoundError("delivery", id)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) GetDeliveryByToken(token string) (*models.Delivery, error) {
	var d models.Delivery
	err := s.db.Get(&d, `SELECT * FROM deliveries WHERE tracking_token = $1`, token)
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFoundError("tracking token", token)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) ListDeliveries(f store.DeliveryFilter) ([]models.Delivery, error) {
	query := `SELECT * FROM deliveries`
	var conds []string
	var args []interface{}
	if f.Status != nil {
		args = append(args, *f.Status)
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	if f.DriverID != nil {
		args = append(args, *f.DriverID)
		conds = append(conds, "driver_id = $"+strconv.Itoa(len(args)))
	}
	if f.ShiftID != nil {
		args = append(args, *f.ShiftID)
		conds = append(conds, "shift_id = $"+strconv.Itoa(len(args)))
	}
	if f.OrderID != nil {
		args = append(args, *f.OrderID)
		conds = append(conds, "order_id = $"+strconv.Itoa(len(args)))
	}
	if f.CreatedAfter != nil {
		args = append(args, *f.CreatedAfter)
		conds = append(conds, "created_at >= $"+strconv.Itoa(len(args)))
	}
	if f.CreatedBefore != nil {
		args = append(args, *f.CreatedBefore)
		conds = append(conds, "created_at <= $"+strconv.Itoa(len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at"

	deliveries := []models.Delivery{}
	return deliveries, s.db.Select(&deliveries, query, args...)
}

func (s *Store) TransitionDelivery(id string, from []models.DeliveryStatus, apply func(*models.Delivery)) (*models.Delivery, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var d models.Delivery
	if err := tx.Get(&d, `SELECT * FROM deliveries WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NewNotFoundError("delivery", id)
		}
		return nil, err
	}
	if !statusIn(d.Status, from) {
		return nil, errs.NewConflictError("delivery is " + string(d.Status))
	}
	prev := d.Status
	apply(&d)
	if d.Status != prev && !prev.CanTransitionTo(d.Status) {
		return nil, errs.NewConflictError("delivery cannot move from " + string(prev) + " to " + string(d.Status))
	}
	d.UpdatedAt = nowUnix()

	if _, err := tx.Exec(`
		UPDATE deliveries SET status = $1, delivery_sequence = $2, started_at = $3,
			completed_at = $4, duration_minutes = $5, distance_km = $6, notes = $7,
			delivery_proof_url = $8, updated_at = $9
		WHERE id = $10`,
		d.Status, d.Sequence, models.ToNullInt64(d.StartedAt),
		models.ToNullInt64(d.CompletedAt), d.DurationMinutes, models.ToNullFloat64(d.DistanceKm),
		models.ToNullString(d.Notes), models.ToNullString(d.ProofURL), d.UpdatedAt, d.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) SetDeliverySequence(id, driverID string, sequence int) error {
	res, err := s.db.Exec(`
		UPDATE deliveries SET delivery_sequence = $1, updated_at = $2
		WHERE id = $3 AND driver_id = $4`,
		sequence, nowUnix(), id, driverID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NewNotFoundError("delivery", id)
	}
	return nil
}

// --- Locations ---

func (s *Store) AppendLocation(l *models.LocationSample) error {
	if l.CreatedAt == 0 {
		l.CreatedAt = nowUnix()
	}
	return s.db.QueryRow(`
		INSERT INTO locations (driver_id, delivery_id, latitude, longitude, accuracy, speed, heading, timestamp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		l.DriverID, models.ToNullString(l.DeliveryID), l.Latitude, l.Longitude,
		models.ToNullFloat64(l.Accuracy), models.ToNullFloat64(l.Speed), models.ToNullFloat64(l.Heading),
		l.Timestamp, l.CreatedAt).Scan(&l.ID)
}

func (s *Store) ListLocations(f store.LocationFilter) ([]models.LocationSample, error) {
	query := `SELECT * FROM locations`
	var conds []string
	var args []interface{}
	if f.DriverID != nil {
		args = append(args, *f.DriverID)
		conds = append(conds, "driver_id = $"+strconv.Itoa(len(args)))
	}
	if f.DeliveryID != nil {
		args = append(args, *f.DeliveryID)
		conds = append(conds, "delivery_id = $"+strconv.Itoa(len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp, id"

	locations := []models.LocationSample{}
	return locations, s.db.Select(&locations, query, args...)
}

func (s *Store) LatestLocation(f store.LocationFilter) (*models.LocationSample, error) {
	query := `SELECT * FROM locations`
	var conds []string
	var args []interface{}
	if f.DriverID != nil {
		args = append(args, *f.DriverID)
		conds = append(conds, "driver_id = $"+strconv.Itoa(len(args)))
	}
	if f.DeliveryID != nil {
		args = append(args, *f.DeliveryID)
		conds = append(conds, "delivery_id = $"+strconv.Itoa(len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT 1"

	var l models.LocationSample
	err := s.db.Get(&l, query, args...)
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFoundError("location", "latest")
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func statusIn[T comparable](status T, allowed []T) bool {
	for _, a := range allowed {
		if a == status {
			return true
		}
	}
	return false
}
