package tracking

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fireway-backend/internal/errs"
	"fireway-backend/internal/models"
	"fireway-backend/internal/store/memory"
)

type fixture struct {
	ledger   *memory.Store
	order    *models.Order
	delivery *models.Delivery
}

func newFixture(t *testing.T, status models.DeliveryStatus) *fixture {
	t.Helper()
	ledger := memory.New()

	driver := &models.User{
		ID:       uuid.New().String(),
		Email:    "driver1@fireway.com",
		Name:     "John Driver",
		Role:     models.RoleDriver,
		IsActive: true,
	}
	require.NoError(t, ledger.CreateUser(driver))

	order := &models.Order{
		ID:                uuid.New().String(),
		Platform:          "fireway",
		CustomerName:      "Alice Morton",
		CustomerAddress:   "12 Baker Street, London",
		CustomerLatitude:  51.5226,
		CustomerLongitude: -0.1571,
		Items:             models.OrderItems{{Name: "Margherita Pizza", Quantity: 1}},
		Status:            models.OrderStatusOutForDelivery,
		AssignedDriverID:  &driver.ID,
	}
	require.NoError(t, ledger.CreateOrder(order))

	startedAt := int64(1700000000)
	delivery := &models.Delivery{
		ID:            uuid.New().String(),
		OrderID:       order.ID,
		DriverID:      driver.ID,
		ShiftID:       uuid.New().String(),
		TrackingToken: uuid.New().String(),
		Status:        status,
		Sequence:      1,
		StartedAt:     &startedAt,
	}
	require.NoError(t, ledger.CreateDelivery(delivery))

	return &fixture{ledger: ledger, order: order, delivery: delivery}
}

func TestProjectUnknownTokenNotFound(t *testing.T) {
	p := NewProjector(memory.New())
	_, err := p.Project("no-such-token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestProjectRedactsDriverToFirstName(t *testing.T) {
	f := newFixture(t, models.DeliveryStatusStarted)
	p := NewProjector(f.ledger)

	proj, err := p.Project(f.delivery.TrackingToken)
	require.NoError(t, err)

	require.NotNil(t, proj.Driver)
	assert.Equal(t, "John", proj.Driver.Name)
	assert.Equal(t, "Alice Morton", proj.Order.CustomerName)
}

func TestProjectTimelineAtNear(t *testing.T) {
	f := newFixture(t, models.DeliveryStatusNear)
	p := NewProjector(f.ledger)

	proj, err := p.Project(f.delivery.TrackingToken)
	require.NoError(t, err)

	require.Len(t, proj.Timeline, 5)
	for i, stage := range proj.Timeline[:4] {
		assert.True(t, stage.Completed, "stage %d should be completed", i)
	}
	last := proj.Timeline[4]
	assert.Equal(t, "delivered", last.Status)
	assert.False(t, last.Completed)
	assert.Nil(t, last.Timestamp)
}

func TestProjectETAFromLatestLocation(t *testing.T) {
	f := newFixture(t, models.DeliveryStatusStarted)

	// About 2.7 km from the customer; at 30 km/h that is roughly 5 minutes.
	require.NoError(t, f.ledger.AppendLocation(&models.LocationSample{
		DriverID:   f.delivery.DriverID,
		DeliveryID: &f.delivery.ID,
		Latitude:   51.5074,
		Longitude:  -0.1278,
		Timestamp:  1700000100000,
	}))

	p := NewProjector(f.ledger)
	proj, err := p.Project(f.delivery.TrackingToken)
	require.NoError(t, err)

	require.NotNil(t, proj.Location)
	assert.Equal(t, int64(1700000100000), proj.Location.Timestamp)
	require.NotNil(t, proj.Delivery.ETAMinutes)
	assert.InDelta(t, 5, *proj.Delivery.ETAMinutes, 1)
}

func TestProjectDeliveredHasNoETA(t *testing.T) {
	f := newFixture(t, models.DeliveryStatusDelivered)
	require.NoError(t, f.ledger.AppendLocation(&models.LocationSample{
		DriverID:   f.delivery.DriverID,
		DeliveryID: &f.delivery.ID,
		Latitude:   51.5226,
		Longitude:  -0.1571,
		Timestamp:  1700000200000,
	}))

	p := NewProjector(f.ledger)
	proj, err := p.Project(f.delivery.TrackingToken)
	require.NoError(t, err)

	assert.Nil(t, proj.Delivery.ETAMinutes)
	assert.NotNil(t, proj.Location)
}

func TestURLJoinsBaseAndToken(t *testing.T) {
	assert.Equal(t, "https://track.fireway.com/track/abc", URL("https://track.fireway.com", "abc"))
	assert.Equal(t, "https://track.fireway.com/track/abc", URL("https://track.fireway.com/", "abc"))
}
