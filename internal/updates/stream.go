package updates

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// handleStream upgrades the request to a WebSocket and relays the
// target's operation stream: buffered events of the current operation
// first, then live events until the observer disconnects.
func (m *Module) handleStream(w http.ResponseWriter, r *http.Request) {
	targetID := r.PathValue("id")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		m.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	events, cancel := m.broadcast.Subscribe(targetID)
	defer cancel()

	ctx := r.Context()

	// Drain client frames to notice disconnects; observers do not send.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "stream closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			cancelWrite()
			if err != nil {
				m.logger.Debug("stream write error",
					zap.String("target_id", targetID), zap.Error(err))
				return
			}
		}
	}
}
