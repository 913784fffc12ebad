package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// DebugProxy relays CDP frames between a dashboard inspector and the
// session's backend DevTools socket.
type DebugProxy struct {
	log *zap.Logger
}

// NewDebugProxy creates the WebSocket pass-through.
func NewDebugProxy(log *zap.Logger) *DebugProxy {
	return &DebugProxy{log: log}
}

// Handle upgrades the client connection and proxies frames bidirectionally
// to the backend connect URL until either side closes.
func (d *DebugProxy) Handle(w http.ResponseWriter, r *http.Request, connectURL string) {
	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.log.Warn("debug upgrade failed", zap.Error(err))
		return
	}
	defer clientConn.Close()

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	backendConn, _, err := websocket.DefaultDialer.DialContext(ctx, connectURL, nil)
	if err != nil {
		d.log.Warn("debug backend dial failed", zap.String("url", connectURL), zap.Error(err))
		_ = clientConn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("error connecting: %v", err)))
		return
	}
	defer backendConn.Close()

	errChan := make(chan error, 2)
	go func() { errChan <- d.relay(clientConn, backendConn) }()
	go func() { errChan <- d.relay(backendConn, clientConn) }()

	if err := <-errChan; err != nil && err != io.EOF {
		d.log.Debug("debug proxy closed", zap.Error(err))
	}
}

func (d *DebugProxy) relay(src, dst *websocket.Conn) error {
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				d.log.Debug("debug relay error", zap.Error(err))
			}
			return err
		}
		if err := dst.WriteMessage(messageType, message); err != nil {
			return err
		}
	}
}
