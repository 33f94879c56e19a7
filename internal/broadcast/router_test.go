package broadcast

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	payloads [][]byte
}

func (r *recorder) Deliver(payload []byte) {
	r.payloads = append(r.payloads, payload)
}

func TestPublishReachesOnlyTheRoom(t *testing.T) {
	router := NewRouter()
	driver := &recorder{}
	dashboard := &recorder{}

	router.Join(DriverTopic("d1"), driver)
	router.Join(TopicDashboard, dashboard)

	router.Publish(DriverTopic("d1"), Event{Type: EventOrderAvailable, Data: "payload"})

	require.Len(t, driver.payloads, 1)
	assert.Empty(t, dashboard.payloads)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(driver.payloads[0], &msg))
	assert.Equal(t, EventOrderAvailable, msg["type"])
	assert.Equal(t, "payload", msg["data"])
}

func TestPublishToEmptyRoomIsNoOp(t *testing.T) {
	router := NewRouter()
	router.Publish(TrackingTopic("nobody"), Event{Type: EventDeliveryStatus})
	assert.Zero(t, router.Subscribers(TrackingTopic("nobody")))
}

func TestLeaveStopsDelivery(t *testing.T) {
	router := NewRouter()
	sub := &recorder{}

	router.Join(TopicDashboard, sub)
	router.Publish(TopicDashboard, Event{Type: EventOrderNew})
	router.Leave(TopicDashboard, sub)
	router.Publish(TopicDashboard, Event{Type: EventOrderNew})

	assert.Len(t, sub.payloads, 1)
}

func TestLeaveAllRemovesEveryMembership(t *testing.T) {
	router := NewRouter()
	sub := &recorder{}

	router.Join(TopicDashboard, sub)
	router.Join(DriverTopic("d1"), sub)
	router.Join(TrackingTopic("tok"), sub)

	router.LeaveAll(sub)

	assert.Zero(t, router.Subscribers(TopicDashboard))
	assert.Zero(t, router.Subscribers(DriverTopic("d1")))
	assert.Zero(t, router.Subscribers(TrackingTopic("tok")))
}

func TestJoinIsIdempotent(t *testing.T) {
	router := NewRouter()
	sub := &recorder{}

	router.Join(TopicDashboard, sub)
	router.Join(TopicDashboard, sub)

	router.Publish(TopicDashboard, Event{Type: EventOrderNew})
	assert.Len(t, sub.payloads, 1)
}
