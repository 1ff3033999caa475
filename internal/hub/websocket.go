package hub

import (
	"context"

	"github.com/gorilla/websocket"
)

// ServeConn registers an upgraded websocket connection and runs its
// read loop until the client disconnects or the read fails. The
// connection is deregistered on return.
func (h *Hub) ServeConn(ctx context.Context, conn *websocket.Conn) {
	id := h.Connect(conn)
	defer h.Disconnect(id)

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed", "client_id", id, "error", err)
			}
			return
		}
		h.HandleMessage(ctx, id, env)
	}
}
