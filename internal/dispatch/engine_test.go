package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fireway-backend/internal/broadcast"
	"fireway-backend/internal/errs"
	"fireway-backend/internal/geo"
	"fireway-backend/internal/models"
	"fireway-backend/internal/store/memory"
)

var (
	storeCenter = geo.Point{Latitude: 51.5074, Longitude: -0.1278}
	// About 1.1 km north of the store.
	awayFromStore = CoordinateInput{Latitude: 51.5174, Longitude: -0.1278}
	// Customer position used by newTestOrder.
	customerAt = geo.Point{Latitude: 51.5226, Longitude: -0.1571}
	// About 170 m east of the customer, inside the 200 m near threshold.
	nearCustomer = CoordinateInput{Latitude: 51.5226, Longitude: -0.1546}
)

func locAt(c CoordinateInput) LocationInput {
	return LocationInput{Latitude: c.Latitude, Longitude: c.Longitude}
}

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	ledger := memory.New()
	fence := geo.Geofence{Center: storeCenter, RadiusMeters: 100}
	engine := New(ledger, broadcast.NewRouter(), fence, 0, nil)
	return engine, ledger
}

func newTestDriver(t *testing.T, ledger *memory.Store) *models.User {
	t.Helper()
	driver := &models.User{
		ID:       uuid.New().String(),
		Email:    uuid.New().String() + "@fireway.com",
		Name:     "John Driver",
		Role:     models.RoleDriver,
		IsActive: true,
	}
	require.NoError(t, ledger.CreateUser(driver))
	return driver
}

func newTestOrder(t *testing.T, engine *Engine) *models.Order {
	t.Helper()
	order, err := engine.CreateOrder(CreateOrderInput{
		Platform:          "fireway",
		CustomerName:      "Alice Morton",
		CustomerAddress:   "12 Baker Street, London",
		CustomerLatitude:  customerAt.Latitude,
		CustomerLongitude: customerAt.Longitude,
		Items:             models.OrderItems{{Name: "Margherita Pizza", Quantity: 1}},
		TotalAmount:       12.50,
	})
	require.NoError(t, err)
	return order
}

func clockIn(t *testing.T, engine *Engine, driverID string) *models.Shift {
	t.Helper()
	shift, err := engine.ClockIn(driverID, CoordinateInput{
		Latitude:  storeCenter.Latitude,
		Longitude: storeCenter.Longitude,
	})
	require.NoError(t, err)
	return shift
}

func TestClockInRequiresStorePresence(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)

	_, err := engine.ClockIn(driver.ID, awayFromStore)
	require.Error(t, err)

	var forbidden *errs.ForbiddenError
	require.True(t, errors.As(err, &forbidden))
	assert.Equal(t, errs.SideInside, forbidden.RequiredSide)

	shift := clockIn(t, engine, driver.ID)
	assert.Equal(t, models.ShiftStatusActive, shift.Status)
}

func TestClockInTwiceConflicts(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)
	clockIn(t, engine, driver.ID)

	_, err := engine.ClockIn(driver.ID, CoordinateInput{
		Latitude:  storeCenter.Latitude,
		Longitude: storeCenter.Longitude,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConflict))
}

func TestClockOutWithoutShiftFails(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)

	_, err := engine.ClockOut(driver.ID, awayFromStore)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestClaimRequiresActiveShift(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)
	order := newTestOrder(t, engine)

	_, _, err := engine.ClaimOrder(driver.ID, order.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrForbidden))
}

func TestClaimedOrderIsNoLongerAvailable(t *testing.T) {
	engine, ledger := newTestEngine(t)
	first := newTestDriver(t, ledger)
	second := newTestDriver(t, ledger)
	clockIn(t, engine, first.ID)
	clockIn(t, engine, second.ID)
	order := newTestOrder(t, engine)

	claimed, delivery, err := engine.ClaimOrder(first.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusAssigned, claimed.Status)
	assert.Equal(t, first.ID, delivery.DriverID)
	assert.Equal(t, 1, delivery.Sequence)
	assert.NotEmpty(t, delivery.TrackingToken)

	_, _, err = engine.ClaimOrder(second.ID, order.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConflict))
}

func TestAssignOrderValidatesDriver(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)
	order := newTestOrder(t, engine)

	_, _, err := engine.AssignOrder(order.ID, "no-such-driver")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	// Exists but not clocked in.
	_, _, err = engine.AssignOrder(order.ID, driver.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrForbidden))

	clockIn(t, engine, driver.ID)
	assigned, delivery, err := engine.AssignOrder(order.ID, driver.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusAssigned, assigned.Status)
	assert.Equal(t, driver.ID, delivery.DriverID)
}

func TestSequenceCountsOpenStops(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)
	clockIn(t, engine, driver.ID)

	_, d1, err := engine.ClaimOrder(driver.ID, newTestOrder(t, engine).ID)
	require.NoError(t, err)
	_, d2, err := engine.ClaimOrder(driver.ID, newTestOrder(t, engine).ID)
	require.NoError(t, err)

	assert.Equal(t, 1, d1.Sequence)
	assert.Equal(t, 2, d2.Sequence)
}

func TestStartDeliveryRequiresLeavingStore(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)
	clockIn(t, engine, driver.ID)
	order := newTestOrder(t, engine)
	_, delivery, err := engine.ClaimOrder(driver.ID, order.ID)
	require.NoError(t, err)

	_, err = engine.StartDelivery(driver.ID, delivery.ID, CoordinateInput{
		Latitude:  storeCenter.Latitude,
		Longitude: storeCenter.Longitude,
	})
	require.Error(t, err)

	var forbidden *errs.ForbiddenError
	require.True(t, errors.As(err, &forbidden))
	assert.Equal(t, errs.SideOutside, forbidden.RequiredSide)

	started, err := engine.StartDelivery(driver.ID, delivery.ID, awayFromStore)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusStarted, started.Status)
	require.NotNil(t, started.StartedAt)

	updatedOrder, err := ledger.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusOutForDelivery, updatedOrder.Status)

	// Starting twice conflicts.
	_, err = engine.StartDelivery(driver.ID, delivery.ID, awayFromStore)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConflict))
}

func TestStartDeliveryHidesForeignDeliveries(t *testing.T) {
	engine, ledger := newTestEngine(t)
	owner := newTestDriver(t, ledger)
	other := newTestDriver(t, ledger)
	clockIn(t, engine, owner.ID)
	clockIn(t, engine, other.ID)
	_, delivery, err := engine.ClaimOrder(owner.ID, newTestOrder(t, engine).ID)
	require.NoError(t, err)

	_, err = engine.StartDelivery(other.ID, delivery.ID, awayFromStore)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestRecordLocationRequiresActiveDelivery(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)
	clockIn(t, engine, driver.ID)
	_, delivery, err := engine.ClaimOrder(driver.ID, newTestOrder(t, engine).ID)
	require.NoError(t, err)

	// Still assigned, never started.
	err = engine.RecordLocation(driver.ID, &delivery.ID, locAt(awayFromStore))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConflict))
}

func TestRecordLocationRequiresShift(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)

	err := engine.RecordLocation(driver.ID, nil, locAt(awayFromStore))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrForbidden))
}

func TestProximityFlipsDeliveryToNearOnce(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)
	clockIn(t, engine, driver.ID)
	_, delivery, err := engine.ClaimOrder(driver.ID, newTestOrder(t, engine).ID)
	require.NoError(t, err)
	_, err = engine.StartDelivery(driver.ID, delivery.ID, awayFromStore)
	require.NoError(t, err)

	// A sample far from the customer leaves the delivery started.
	require.NoError(t, engine.RecordLocation(driver.ID, &delivery.ID, locAt(awayFromStore)))
	current, err := ledger.GetDelivery(delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusStarted, current.Status)

	// Within the threshold the delivery flips to near.
	require.NoError(t, engine.RecordLocation(driver.ID, &delivery.ID, locAt(nearCustomer)))
	current, err = ledger.GetDelivery(delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusNear, current.Status)

	// Further samples keep it near, even ones far away again.
	require.NoError(t, engine.RecordLocation(driver.ID, &delivery.ID, locAt(awayFromStore)))
	current, err = ledger.GetDelivery(delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusNear, current.Status)
}

func TestCompleteDeliveryComputesTripFacts(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)

	now := time.Unix(1700000000, 0)
	engine.SetClock(func() time.Time { return now })

	shift := clockIn(t, engine, driver.ID)
	order := newTestOrder(t, engine)
	_, delivery, err := engine.ClaimOrder(driver.ID, order.ID)
	require.NoError(t, err)

	// Polyline: start plus two samples, each step about 110 m of
	// longitude at latitude 10.
	_, err = engine.StartDelivery(driver.ID, delivery.ID, CoordinateInput{Latitude: 10, Longitude: 10})
	require.NoError(t, err)
	require.NoError(t, engine.RecordLocation(driver.ID, &delivery.ID, locAt(CoordinateInput{Latitude: 10, Longitude: 10.001})))
	require.NoError(t, engine.RecordLocation(driver.ID, &delivery.ID, locAt(CoordinateInput{Latitude: 10, Longitude: 10.002})))

	now = now.Add(10 * time.Minute)
	notes := "left at the door"
	completed, err := engine.CompleteDelivery(driver.ID, delivery.ID, CompleteInput{Notes: &notes})
	require.NoError(t, err)

	assert.Equal(t, models.DeliveryStatusDelivered, completed.Status)
	require.NotNil(t, completed.DurationMinutes)
	assert.Equal(t, 10, *completed.DurationMinutes)
	require.NotNil(t, completed.DistanceKm)
	assert.InDelta(t, 0.22, *completed.DistanceKm, 0.01)
	require.NotNil(t, completed.Notes)
	assert.Equal(t, notes, *completed.Notes)

	updatedOrder, err := ledger.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, updatedOrder.Status)

	updatedShift, err := ledger.GetShift(shift.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updatedShift.TotalDeliveries)
	assert.InDelta(t, *completed.DistanceKm, updatedShift.TotalDistanceKm, 0.001)

	// Completing again conflicts.
	_, err = engine.CompleteDelivery(driver.ID, delivery.ID, CompleteInput{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConflict))
}

func TestCompleteRequiresStartedDelivery(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)
	clockIn(t, engine, driver.ID)
	_, delivery, err := engine.ClaimOrder(driver.ID, newTestOrder(t, engine).ID)
	require.NoError(t, err)

	_, err = engine.CompleteDelivery(driver.ID, delivery.ID, CompleteInput{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConflict))
}

func TestResequenceSkipsForeignDeliveries(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)
	other := newTestDriver(t, ledger)
	clockIn(t, engine, driver.ID)
	clockIn(t, engine, other.ID)

	_, d1, err := engine.ClaimOrder(driver.ID, newTestOrder(t, engine).ID)
	require.NoError(t, err)
	_, d2, err := engine.ClaimOrder(driver.ID, newTestOrder(t, engine).ID)
	require.NoError(t, err)
	_, foreign, err := engine.ClaimOrder(other.ID, newTestOrder(t, engine).ID)
	require.NoError(t, err)

	err = engine.ResequenceDeliveries(driver.ID, ResequenceInput{Items: []SequenceItem{
		{DeliveryID: d1.ID, Sequence: 2},
		{DeliveryID: d2.ID, Sequence: 1},
		{DeliveryID: foreign.ID, Sequence: 3},
	}})
	require.NoError(t, err)

	got1, err := ledger.GetDelivery(d1.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got1.Sequence)
	got2, err := ledger.GetDelivery(d2.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got2.Sequence)

	// The foreign delivery keeps its own sequence.
	gotForeign, err := ledger.GetDelivery(foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotForeign.Sequence)
}

func TestClockOutAfterDeliveries(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)
	clockIn(t, engine, driver.ID)
	_, delivery, err := engine.ClaimOrder(driver.ID, newTestOrder(t, engine).ID)
	require.NoError(t, err)
	_, err = engine.StartDelivery(driver.ID, delivery.ID, awayFromStore)
	require.NoError(t, err)
	_, err = engine.CompleteDelivery(driver.ID, delivery.ID, CompleteInput{})
	require.NoError(t, err)

	shift, err := engine.ClockOut(driver.ID, awayFromStore)
	require.NoError(t, err)
	assert.Equal(t, models.ShiftStatusCompleted, shift.Status)
	assert.Equal(t, 1, shift.TotalDeliveries)
	require.NotNil(t, shift.ClockOutTime)

	_, err = ledger.ActiveShift(driver.ID)
	require.Error(t, err)
}

func TestCoordinateInputValidation(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)

	_, err := engine.ClockIn(driver.ID, CoordinateInput{Latitude: 0, Longitude: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, err = engine.ClockIn(driver.ID, CoordinateInput{Latitude: 91, Longitude: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}
