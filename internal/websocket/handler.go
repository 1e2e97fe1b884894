package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"
)

// Handler upgrades the request to a WebSocket and attaches it to the
// hub until the device disconnects.
func Handler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			// Devices connect from app webviews and the LAN; origin
			// checking is not meaningful here.
			InsecureSkipVerify: true,
		})
		if err != nil {
			hub.logger.Warn("websocket accept", "error", err)
			return
		}

		newClient(hub, conn).run(r.Context())
	}
}
