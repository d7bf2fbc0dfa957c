package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/loadcell-data/loadcell.report/internal/capture"
	"github.com/loadcell-data/loadcell.report/internal/telemetry"
)

// Hub fans capture events out to connected websocket clients. It implements
// capture.Sink, so the controller pushes log lines, rendered samples and
// state transitions straight onto the wire.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]bool
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients: make(map[*client]bool),
	}
}

type client struct {
	conn *websocket.Conn
	send chan any
}

// writePump pumps messages from the hub to the websocket connection.
func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ServeWS upgrades the request and streams events until the client hangs up.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("websocket upgrade:", err)
		return
	}

	cl := &client{conn: conn, send: make(chan any, 256)}
	h.mu.Lock()
	h.clients[cl] = true
	h.mu.Unlock()

	go cl.writePump()

	defer func() {
		h.mu.Lock()
		delete(h.clients, cl)
		h.mu.Unlock()
		close(cl.send)
	}()

	// Drain the read side to detect disconnects; clients send nothing the
	// hub acts on.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// broadcast delivers msg to every client, dropping it for clients whose send
// queue is full rather than blocking the capture path.
func (h *Hub) broadcast(msg any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.clients {
		select {
		case cl.send <- msg:
		default:
		}
	}
}

type logEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type sampleEvent struct {
	Type        string  `json:"type"`
	Timestamp   float64 `json:"timestamp"`
	Weight      float64 `json:"weight"`
	Temperature float64 `json:"temperature"`
	AccelX      float64 `json:"accel_x"`
	AccelY      float64 `json:"accel_y"`
	AccelZ      float64 `json:"accel_z"`
}

type stateEvent struct {
	Type      string `json:"type"`
	State     string `json:"state"`
	Capturing bool   `json:"capturing"`
}

func (h *Hub) OnLog(message string) {
	h.broadcast(logEvent{Type: "log", Message: message})
}

func (h *Hub) OnSampleRendered(fp telemetry.FilteredPoint, timestamp float64) {
	h.broadcast(sampleEvent{
		Type:        "sample",
		Timestamp:   timestamp,
		Weight:      fp.Weight,
		Temperature: fp.Temperature,
		AccelX:      fp.AccelX,
		AccelY:      fp.AccelY,
		AccelZ:      fp.AccelZ,
	})
}

func (h *Hub) OnStateChanged(state capture.State, capturing bool) {
	h.broadcast(stateEvent{Type: "state", State: state.String(), Capturing: capturing})
}
