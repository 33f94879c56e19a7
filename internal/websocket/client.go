// Package websocket bridges gorilla connections onto the broadcast router.
// Each connection is a broadcast.Subscriber; room membership is driven by
// join messages from the peer.
package websocket

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"fireway-backend/internal/broadcast"
	"fireway-backend/internal/dispatch"
	"fireway-backend/internal/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 2048
)

// Client is one WebSocket connection. UserID and Role are empty for
// anonymous connections, which may only join tracking rooms.
type Client struct {
	UserID string
	Role   string

	conn   *websocket.Conn
	router *broadcast.Router
	engine *dispatch.Engine
	send   chan []byte
}

// IncomingMessage is a message from the peer.
type IncomingMessage struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

func NewClient(userID, role string, conn *websocket.Conn, router *broadcast.Router, engine *dispatch.Engine) *Client {
	return &Client{
		UserID: userID,
		Role:   role,
		conn:   conn,
		router: router,
		engine: engine,
		send:   make(chan []byte, 256),
	}
}

// Deliver queues a broadcast payload for the peer. It never blocks; a
// slow consumer drops messages rather than stalling the publisher.
func (c *Client) Deliver(payload []byte) {
	select {
	case c.send <- payload:
	default:
		log.Printf("websocket: dropping message for slow client %s", c.UserID)
	}
}

// ReadPump pumps messages from the connection and dispatches join and
// location messages. It owns room membership for this connection.
func (c *Client) ReadPump() {
	defer func() {
		c.router.LeaveAll(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket: read error: %v", err)
			}
			break
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("websocket: invalid message: %v", err)
			continue
		}

		switch msg.Type {
		case "ping":
			c.reply("pong", map[string]interface{}{
				"timestamp": time.Now().Format(time.RFC3339),
			})

		case "driver:join":
			if c.Role != models.RoleDriver {
				c.replyError("only drivers can join the driver channel")
				continue
			}
			c.router.Join(broadcast.DriverTopic(c.UserID), c)
			log.Printf("websocket: driver %s joined", c.UserID)

		case "dashboard:join":
			if c.Role != models.RoleStoreStaff && c.Role != models.RoleAdmin {
				c.replyError("only store staff can join the dashboard channel")
				continue
			}
			c.router.Join(broadcast.TopicDashboard, c)
			log.Printf("websocket: staff %s joined dashboard", c.UserID)

		case "tracking:join":
			token, _ := msg.Data["token"].(string)
			if token == "" {
				c.replyError("tracking token is required")
				continue
			}
			c.router.Join(broadcast.TrackingTopic(token), c)

		case "location:update":
			if c.Role != models.RoleDriver {
				c.replyError("only drivers can send locations")
				continue
			}
			c.handleLocationUpdate(msg.Data)
		}
	}
}

// WritePump pumps queued payloads to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued messages into the same frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleLocationUpdate(data map[string]interface{}) {
	latitude, latOK := data["latitude"].(float64)
	longitude, lngOK := data["longitude"].(float64)
	if !latOK || !lngOK {
		c.replyError("latitude and longitude are required")
		return
	}

	in := dispatch.LocationInput{
		Latitude:  latitude,
		Longitude: longitude,
	}
	if a, ok := data["accuracy"].(float64); ok {
		in.Accuracy = &a
	}
	if s, ok := data["speed"].(float64); ok {
		in.Speed = &s
	}
	if h, ok := data["heading"].(float64); ok {
		in.Heading = &h
	}
	if ts, ok := data["timestamp"].(float64); ok {
		t := int64(ts)
		in.Timestamp = &t
	}

	var deliveryID *string
	if id, ok := data["delivery_id"].(string); ok && id != "" {
		deliveryID = &id
	}

	if err := c.engine.RecordLocation(c.UserID, deliveryID, in); err != nil {
		log.Printf("websocket: location update from %s rejected: %v", c.UserID, err)
		c.replyError(err.Error())
	}
}

func (c *Client) reply(msgType string, data interface{}) {
	payload, err := json.Marshal(map[string]interface{}{
		"type": msgType,
		"data": data,
	})
	if err != nil {
		return
	}
	c.Deliver(payload)
}

func (c *Client) replyError(message string) {
	c.reply("error", map[string]string{"message": message})
}
