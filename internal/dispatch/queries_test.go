package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentShiftOffDuty(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)

	shift, open, err := engine.CurrentShift(driver.ID)
	require.NoError(t, err)
	assert.Nil(t, shift)
	assert.Zero(t, open)
}

func TestCurrentShiftCountsOpenDeliveries(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)
	clockIn(t, engine, driver.ID)

	_, d1, err := engine.ClaimOrder(driver.ID, newTestOrder(t, engine).ID)
	require.NoError(t, err)
	_, _, err = engine.ClaimOrder(driver.ID, newTestOrder(t, engine).ID)
	require.NoError(t, err)

	_, err = engine.StartDelivery(driver.ID, d1.ID, awayFromStore)
	require.NoError(t, err)
	_, err = engine.CompleteDelivery(driver.ID, d1.ID, CompleteInput{})
	require.NoError(t, err)

	shift, open, err := engine.CurrentShift(driver.ID)
	require.NoError(t, err)
	require.NotNil(t, shift)
	assert.Equal(t, 1, open)
}

func TestMyOrdersSortedBySequenceAndSkipsDelivered(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)
	clockIn(t, engine, driver.ID)

	_, d1, err := engine.ClaimOrder(driver.ID, newTestOrder(t, engine).ID)
	require.NoError(t, err)
	_, d2, err := engine.ClaimOrder(driver.ID, newTestOrder(t, engine).ID)
	require.NoError(t, err)

	// Put the second stop first.
	require.NoError(t, engine.ResequenceDeliveries(driver.ID, ResequenceInput{Items: []SequenceItem{
		{DeliveryID: d1.ID, Sequence: 2},
		{DeliveryID: d2.ID, Sequence: 1},
	}}))

	orders, err := engine.MyOrders(driver.ID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.NotNil(t, orders[0].Delivery)
	assert.Equal(t, d2.ID, orders[0].Delivery.ID)
	assert.Equal(t, d1.ID, orders[1].Delivery.ID)

	// Delivered stops drop out of the list.
	_, err = engine.StartDelivery(driver.ID, d2.ID, awayFromStore)
	require.NoError(t, err)
	_, err = engine.CompleteDelivery(driver.ID, d2.ID, CompleteInput{})
	require.NoError(t, err)

	orders, err = engine.MyOrders(driver.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, d1.ID, orders[0].Delivery.ID)
}

func TestOrderFeedOnlyPending(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)
	clockIn(t, engine, driver.ID)

	claimed := newTestOrder(t, engine)
	pending := newTestOrder(t, engine)
	_, _, err := engine.ClaimOrder(driver.ID, claimed.ID)
	require.NoError(t, err)

	feed, err := engine.OrderFeed()
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, pending.ID, feed[0].ID)
}

func TestShiftSummaryEnforcesOwnership(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)
	other := newTestDriver(t, ledger)
	shift := clockIn(t, engine, driver.ID)

	_, err := engine.ShiftSummary(other.ID, shift.ID)
	require.Error(t, err)

	summary, err := engine.ShiftSummary(driver.ID, shift.ID)
	require.NoError(t, err)
	assert.Equal(t, shift.ID, summary.Shift.ID)
}

func TestDashboardStatsCountsToday(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)
	clockIn(t, engine, driver.ID)

	_, d1, err := engine.ClaimOrder(driver.ID, newTestOrder(t, engine).ID)
	require.NoError(t, err)
	newTestOrder(t, engine)

	_, err = engine.StartDelivery(driver.ID, d1.ID, awayFromStore)
	require.NoError(t, err)
	_, err = engine.CompleteDelivery(driver.ID, d1.ID, CompleteInput{})
	require.NoError(t, err)

	stats, err := engine.DashboardStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ActiveDrivers)
	assert.Equal(t, 1, stats.PendingOrders)
	assert.Equal(t, 1, stats.TodayDeliveries)
}

func TestDashboardDriversIncludesDeliveringState(t *testing.T) {
	engine, ledger := newTestEngine(t)
	driver := newTestDriver(t, ledger)
	clockIn(t, engine, driver.ID)
	_, d1, err := engine.ClaimOrder(driver.ID, newTestOrder(t, engine).ID)
	require.NoError(t, err)
	_, err = engine.StartDelivery(driver.ID, d1.ID, awayFromStore)
	require.NoError(t, err)

	drivers, err := engine.DashboardDrivers()
	require.NoError(t, err)
	require.Len(t, drivers, 1)
	assert.Equal(t, driver.ID, drivers[0].ID)
	assert.Equal(t, "delivering", drivers[0].Status)
	assert.Equal(t, 1, drivers[0].ActiveDeliveries)
	require.NotNil(t, drivers[0].Location)
}
