package websocket

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"fireway-backend/internal/broadcast"
	"fireway-backend/internal/dispatch"
	"fireway-backend/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handle upgrades the connection and starts the read and write pumps.
// Authentication comes from a token query parameter; connections without
// a token are anonymous and may only join tracking rooms.
func Handle(router *broadcast.Router, engine *dispatch.Engine, jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var userID, role string

		if tokenString := r.URL.Query().Get("token"); tokenString != "" {
			claims, err := middleware.ParseToken(tokenString, jwtSecret)
			if err != nil {
				log.Printf("websocket: rejected connection with invalid token: %v", err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			userID = claims.UserID
			role = claims.Role
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket: upgrade failed: %v", err)
			return
		}

		client := NewClient(userID, role, conn, router, engine)
		go client.WritePump()
		go client.ReadPump()

		if userID != "" {
			log.Printf("websocket: connection established for user %s (%s)", userID, role)
		} else {
			log.Println("websocket: anonymous tracking connection established")
		}
	}
}
