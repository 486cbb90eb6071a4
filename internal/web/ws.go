package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/PanTrack/internal/debug"
	"github.com/cjeanneret/PanTrack/internal/logic/tracking"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 4096
)

// wsMessage is what browsers send over /ws.
//
//	{"type":"action","action":"home"}
//	{"type":"center","x":352}
type wsMessage struct {
	Type   string `json:"type"`
	Action string `json:"action,omitempty"`
	X      *int   `json:"x,omitempty"`
}

// wsReply acknowledges a client message.
type wsReply struct {
	Type   string `json:"type"` // "ack" or "error"
	Action string `json:"action,omitempty"`
	Error  string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // operator console on the local network
	},
}

// wsClient is one connected browser. Status events and replies share the
// send channel so only writePump touches the connection for writing.
type wsClient struct {
	h    *Handlers
	conn *websocket.Conn
	send chan []byte

	once sync.Once
	done chan struct{}
}

// HandleWebSocket handles GET /ws: it streams status events and accepts
// operator actions.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Error(err)
		return
	}

	c := &wsClient{
		h:    h,
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
	events, unsub := h.Broadcaster.Subscribe()

	go c.forward(events, unsub)
	go c.writePump()
	c.readPump()
}

// forward copies broadcaster events into the client's send queue.
func (c *wsClient) forward(events <-chan string, unsub func()) {
	defer unsub()
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			c.enqueue([]byte(msg))
		}
	}
}

func (c *wsClient) enqueue(data []byte) {
	select {
	case c.send <- data:
	case <-c.done:
	default:
		debug.Trace("websocket client too slow, dropping message")
	}
}

func (c *wsClient) reply(r wsReply) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *wsClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(wsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				debug.Error(err)
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *wsClient) handleMessage(data []byte) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(wsReply{Type: "error", Error: "invalid message"})
		return
	}
	switch msg.Type {
	case "action":
	case "center":
		if msg.X == nil {
			c.reply(wsReply{Type: "error", Action: "calibrate", Error: "missing x"})
			return
		}
		if status, text := c.h.calibrate(*msg.X); status != http.StatusAccepted {
			c.reply(wsReply{Type: "error", Action: "calibrate", Error: text})
			return
		}
		c.reply(wsReply{Type: "ack", Action: "calibrate"})
		return
	default:
		c.reply(wsReply{Type: "error", Error: "unknown message type " + msg.Type})
		return
	}

	a, err := tracking.ParseAction(msg.Action)
	if err != nil {
		c.reply(wsReply{Type: "error", Action: msg.Action, Error: err.Error()})
		return
	}
	if status, text := c.h.queue(a); status != http.StatusAccepted {
		c.reply(wsReply{Type: "error", Action: a.String(), Error: text})
		return
	}
	c.reply(wsReply{Type: "ack", Action: a.String()})
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}
