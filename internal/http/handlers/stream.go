package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wolfman30/frontdesk-calendar/internal/frontdesk"
	"github.com/wolfman30/frontdesk-calendar/internal/observability/metrics"
	"github.com/wolfman30/frontdesk-calendar/pkg/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StreamHandler pushes console events over a WebSocket so open grids
// re-read after a refresh or mutation.
type StreamHandler struct {
	console  *frontdesk.Console
	metrics  *metrics.ConsoleMetrics
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a stream handler. checkOrigin may be nil, in
// which case only same-host origins are accepted.
func NewStreamHandler(console *frontdesk.Console, m *metrics.ConsoleMetrics, checkOrigin func(origin string) bool, logger *logging.Logger) *StreamHandler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &StreamHandler{
		console: console,
		metrics: m,
		logger:  logger.Component("http.stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if checkOrigin != nil {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || checkOrigin(origin)
		}
	}
	return h
}

// Connect handles GET /api/stream. The first message describes the grid as
// it stands; later messages are console events.
func (h *StreamHandler) Connect(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	clientID := uuid.NewString()
	logger := h.logger.With("client_id", clientID)

	events, unsubscribe := h.console.Subscribe()
	h.metrics.StreamConnected()
	logger.Info("stream client connected")
	defer func() {
		unsubscribe()
		_ = ws.Close()
		h.metrics.StreamDisconnected()
		logger.Info("stream client disconnected")
	}()

	closed := make(chan struct{})
	go h.readPump(ws, closed)

	st := h.console.Status()
	hello := frontdesk.Event{Type: frontdesk.EventSnapshot, Generation: st.Generation, Stale: st.Stale, At: time.Now()}
	if err := h.write(ws, hello); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			if err := h.write(ws, ev); err != nil {
				logger.Debug("stream write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) write(ws *websocket.Conn, ev frontdesk.Event) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(ev)
}

// readPump drains client frames so control messages are processed, and
// closes done when the peer goes away.
func (h *StreamHandler) readPump(ws *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
