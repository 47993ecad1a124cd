package handlers

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Token auth happens after upgrade; browser clients can't set an
	// Origin we control in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// NotificationsSocket upgrades to a websocket and relays the viewer's
// notification channel over it. The most recent notification is replayed
// on connect; the connection closes when the client goes away.
func NotificationsSocket(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		// Broadcast delivery is synchronous and may come from several
		// goroutines; gorilla/websocket allows one concurrent writer.
		var writeMu sync.Mutex
		send := func(data any) {
			writeMu.Lock()
			defer writeMu.Unlock()
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(map[string]any{
				"type":    "NOTIFICATION_RECEIVED",
				"payload": data,
			}); err != nil {
				log.Printf("WebSocket write to user %d failed: %v", viewerID, err)
			}
		}

		unsubscribe := env.Broadcast.Subscribe(fmt.Sprintf("notifications|%d", viewerID), send)
		defer unsubscribe()

		log.Printf("WebSocket connected for user %d", viewerID)

		// Drain reads so pings and close frames are processed; exit when
		// the client disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				log.Printf("WebSocket closed for user %d: %v", viewerID, err)
				return
			}
		}
	}
}
