package memory

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fireway-backend/internal/errs"
	"fireway-backend/internal/models"
	"fireway-backend/internal/store"
)

func newOrder(t *testing.T, s *Store) *models.Order {
	t.Helper()
	o := &models.Order{
		ID:                uuid.New().String(),
		CustomerName:      "Alice Morton",
		CustomerAddress:   "12 Baker Street, London",
		CustomerLatitude:  51.5226,
		CustomerLongitude: -0.1571,
		Status:            models.OrderStatusPending,
	}
	require.NoError(t, s.CreateOrder(o))
	return o
}

func newActiveShift(t *testing.T, s *Store, driverID string) *models.Shift {
	t.Helper()
	sh := &models.Shift{
		ID:          uuid.New().String(),
		DriverID:    driverID,
		Status:      models.ShiftStatusActive,
		ClockInTime: 1700000000,
	}
	require.NoError(t, s.CreateShift(sh))
	return sh
}

func TestTransitionOrderRejectsWrongFromStatus(t *testing.T) {
	s := New()
	o := newOrder(t, s)

	driver := "driver-1"
	_, err := s.TransitionOrder(o.ID, []models.OrderStatus{models.OrderStatusPending}, func(o *models.Order) {
		o.Status = models.OrderStatusAssigned
		o.AssignedDriverID = &driver
	})
	require.NoError(t, err)

	// Second claim finds the order already assigned.
	_, err = s.TransitionOrder(o.ID, []models.OrderStatus{models.OrderStatusPending}, func(o *models.Order) {
		o.Status = models.OrderStatusAssigned
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConflict))
}

func TestTransitionOrderRejectsIllegalTransition(t *testing.T) {
	s := New()
	o := newOrder(t, s)

	_, err := s.TransitionOrder(o.ID, []models.OrderStatus{models.OrderStatusPending}, func(o *models.Order) {
		o.Status = models.OrderStatusDelivered
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConflict))
}

func TestConcurrentClaimExactlyOneWins(t *testing.T) {
	s := New()
	o := newOrder(t, s)

	const claimers = 16
	var wg sync.WaitGroup
	wins := make(chan string, claimers)

	for i := 0; i < claimers; i++ {
		driverID := uuid.New().String()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.TransitionOrder(o.ID, []models.OrderStatus{models.OrderStatusPending}, func(o *models.Order) {
				o.Status = models.OrderStatusAssigned
				o.AssignedDriverID = &driverID
			})
			if err == nil {
				wins <- driverID
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1)

	got, err := s.GetOrder(o.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AssignedDriverID)
	assert.Equal(t, winners[0], *got.AssignedDriverID)
}

func TestCreateShiftRejectsDuplicateActive(t *testing.T) {
	s := New()
	newActiveShift(t, s, "driver-1")

	err := s.CreateShift(&models.Shift{
		ID:       uuid.New().String(),
		DriverID: "driver-1",
		Status:   models.ShiftStatusActive,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConflict))
}

func TestCompletedShiftAllowsNewClockIn(t *testing.T) {
	s := New()
	sh := newActiveShift(t, s, "driver-1")

	_, err := s.TransitionShift(sh.ID, models.ShiftStatusActive, func(sh *models.Shift) {
		sh.Status = models.ShiftStatusCompleted
	})
	require.NoError(t, err)

	_, err = s.ActiveShift("driver-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	require.NoError(t, s.CreateShift(&models.Shift{
		ID:       uuid.New().String(),
		DriverID: "driver-1",
		Status:   models.ShiftStatusActive,
	}))
}

func TestLocationsOrderedByTimestamp(t *testing.T) {
	s := New()
	deliveryID := uuid.New().String()

	for _, ts := range []int64{3000, 1000, 2000} {
		require.NoError(t, s.AppendLocation(&models.LocationSample{
			DriverID:   "driver-1",
			DeliveryID: &deliveryID,
			Latitude:   51.5,
			Longitude:  -0.12,
			Timestamp:  ts,
		}))
	}

	samples, err := s.ListLocations(store.LocationFilter{DeliveryID: &deliveryID})
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, int64(1000), samples[0].Timestamp)
	assert.Equal(t, int64(2000), samples[1].Timestamp)
	assert.Equal(t, int64(3000), samples[2].Timestamp)

	latest, err := s.LatestLocation(store.LocationFilter{DeliveryID: &deliveryID})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), latest.Timestamp)
}

func TestGetDeliveryByToken(t *testing.T) {
	s := New()
	d := &models.Delivery{
		ID:            uuid.New().String(),
		OrderID:       uuid.New().String(),
		DriverID:      "driver-1",
		ShiftID:       uuid.New().String(),
		TrackingToken: uuid.New().String(),
		Status:        models.DeliveryStatusAssigned,
		Sequence:      1,
	}
	require.NoError(t, s.CreateDelivery(d))

	got, err := s.GetDeliveryByToken(d.TrackingToken)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)

	_, err = s.GetDeliveryByToken("no-such-token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}
