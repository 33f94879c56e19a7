// Package broadcast fans dispatch events out to live subscribers. Rooms
// are named channels: a private room per driver, one global staff
// dashboard room, and one capability-scoped room per tracking token.
package broadcast

import (
	"encoding/json"
	"log"
	"sync"
)

// Topic names a broadcast room.
type Topic string

// TopicDashboard is the global staff-only room.
const TopicDashboard Topic = "dashboard"

// DriverTopic is the private room for one driver.
func DriverTopic(driverID string) Topic {
	return Topic("driver:" + driverID)
}

// TrackingTopic is the public room scoped to one delivery's tracking token.
func TrackingTopic(token string) Topic {
	return Topic("tracking:" + token)
}

// Event names emitted by the dispatch engine.
const (
	EventDriverLocation   = "driver:location"
	EventDeliveryLocation = "delivery:location"
	EventDeliveryStatus   = "delivery:status"
	EventDeliveryComplete = "delivery:complete"
	EventOrderAvailable   = "order:available"
	EventOrderNew         = "order:new"
	EventOrderStatus      = "order:status"
)

// Event is one message published to a room.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Subscriber receives published payloads. Deliver must not block; a slow
// subscriber drops the payload rather than stalling the fan-out.
type Subscriber interface {
	Deliver(payload []byte)
}

// Router maps rooms to live subscribers. Membership is many-to-many: a
// subscriber may sit in several rooms and a room holds many subscribers.
// Publishing to an empty room is a no-op; the router has no other failure
// mode and performs no persistence.
type Router struct {
	mu     sync.RWMutex
	rooms  map[Topic]map[Subscriber]struct{}
	topics map[Subscriber]map[Topic]struct{}
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		rooms:  make(map[Topic]map[Subscriber]struct{}),
		topics: make(map[Subscriber]map[Topic]struct{}),
	}
}

// Join adds sub to the room for topic.
func (r *Router) Join(topic Topic, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[topic] == nil {
		r.rooms[topic] = make(map[Subscriber]struct{})
	}
	r.rooms[topic][sub] = struct{}{}
	if r.topics[sub] == nil {
		r.topics[sub] = make(map[Topic]struct{})
	}
	r.topics[sub][topic] = struct{}{}
}

// Leave removes sub from one room.
func (r *Router) Leave(topic Topic, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(topic, sub)
}

// LeaveAll removes sub from every room it joined. Called when a
// connection drops; has no effect on ledger state.
func (r *Router) LeaveAll(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for topic := range r.topics[sub] {
		r.removeLocked(topic, sub)
	}
}

func (r *Router) removeLocked(topic Topic, sub Subscriber) {
	if room, ok := r.rooms[topic]; ok {
		delete(room, sub)
		if len(room) == 0 {
			delete(r.rooms, topic)
		}
	}
	if set, ok := r.topics[sub]; ok {
		delete(set, topic)
		if len(set) == 0 {
			delete(r.topics, sub)
		}
	}
}

// Publish marshals the event once and hands it to every subscriber in the
// room.
func (r *Router) Publish(topic Topic, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("broadcast: failed to marshal %s event: %v", event.Type, err)
		return
	}

	r.mu.RLock()
	subs := make([]Subscriber, 0, len(r.rooms[topic]))
	for sub := range r.rooms[topic] {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	for _, sub := range subs {
		sub.Deliver(payload)
	}
}

// Subscribers returns the number of subscribers in a room.
func (r *Router) Subscribers(topic Topic) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[topic])
}
