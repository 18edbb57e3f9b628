package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"warptrace/core"
	"warptrace/metrics"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a subscriber may go silent before the
	// connection is considered dead.
	pongWait = 60 * time.Second

	// pingPeriod must be under pongWait so a healthy peer always has a
	// ping to answer.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound frames. Subscribers never send payloads;
	// anything larger than a close/pong frame is a misbehaving client.
	maxMessageSize = 512

	subscriberBufferSize = 256
)

// WebSocketMessage is the envelope for every message pushed to subscribers.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// StatusEvent is the payload of a "status" message, pushed whenever an
// upload moves through the analysis pipeline.
type StatusEvent struct {
	UploadID string            `json:"upload_id"`
	Status   core.UploadStatus `json:"status"`
	Progress int               `json:"progress"`
}

// subscriber is one connected status-stream client.
type subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	out  chan []byte
}

// Hub fans analysis status messages out to every connected subscriber.
// Subscriber lifecycle is owned by the Start loop; the pumps and handlers
// only signal it over channels.
type Hub struct {
	subscribers map[*subscriber]struct{}

	broadcast  chan []byte
	register   chan *subscriber
	unregister chan *subscriber

	mu sync.RWMutex

	logger *zap.SugaredLogger

	ctx     context.Context
	cancel  context.CancelFunc
	running chan struct{}
	done    chan struct{}
}

// upgrader configures WebSocket connection upgrades. Origin checks are
// disabled here because corsMiddleware already validated the origin.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a new WebSocket hub. The hub derives its own cancellable
// context from the parent so Stop works even when the parent never cancels.
// Start must be called before use.
func NewHub(logger *zap.SugaredLogger, ctx context.Context) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		broadcast:   make(chan []byte, 256),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		logger:      logger,
		ctx:         hubCtx,
		cancel:      cancel,
		running:     make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start runs the hub's event loop. Call exactly once per Hub, in its own
// goroutine.
func (h *Hub) Start() {
	close(h.running)
	defer close(h.done)

	h.logger.Info("Status stream hub started")

	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			h.logger.Info("Status stream hub stopped")
			return
		case s := <-h.register:
			h.add(s)
		case s := <-h.unregister:
			h.drop(s)
		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()

	metrics.WebsocketClients.Inc()
	h.logger.Debugw("WebSocket subscriber connected", "subscribers", count)
}

// drop removes a subscriber and closes its connection. Dropping a
// subscriber twice is harmless; the pumps and fanOut can race to it.
func (h *Hub) drop(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subscribers, s)
	close(s.out)
	count := len(h.subscribers)
	h.mu.Unlock()

	s.conn.Close()
	metrics.WebsocketClients.Dec()
	h.logger.Debugw("WebSocket subscriber disconnected", "subscribers", count)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for s := range h.subscribers {
		close(s.out)
		s.conn.Close()
	}
	h.subscribers = make(map[*subscriber]struct{})
	h.mu.Unlock()

	metrics.WebsocketClients.Set(0)
}

// fanOut delivers one message to every subscriber. A subscriber whose
// buffer is full is dropped after the delivery pass; one slow reader must
// not stall the stream for the rest.
func (h *Hub) fanOut(message []byte) {
	var stalled []*subscriber

	h.mu.RLock()
	for s := range h.subscribers {
		select {
		case s.out <- message:
		default:
			stalled = append(stalled, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range stalled {
		h.logger.Warn("Dropping status subscriber with full send buffer")
		h.drop(s)
	}
}

// BroadcastStatus pushes an upload status change to all subscribers. It
// satisfies the status broadcaster the analysis service reports through.
func (h *Hub) BroadcastStatus(uploadID string, status core.UploadStatus, progress int) {
	_ = h.BroadcastMessage("status", StatusEvent{
		UploadID: uploadID,
		Status:   status,
		Progress: progress,
	})
}

// BroadcastMessage enqueues a typed message for every subscriber. A stalled
// hub drops the message after one second; the analysis pipeline never waits
// on the status stream.
func (h *Hub) BroadcastMessage(msgType string, data interface{}) error {
	msg := WebSocketMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorw("Failed to encode status broadcast",
			"type", msgType,
			"error", err)
		return err
	}

	select {
	case h.broadcast <- jsonData:
	case <-time.After(1 * time.Second):
		h.logger.Warnw("Status broadcast timed out, message dropped", "type", msgType)
	}
	return nil
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Stop shuts down the hub and waits for the event loop to finish cleanup.
// Stopping a hub whose loop never ran just cancels it.
func (h *Hub) Stop() {
	h.cancel()
	select {
	case <-h.running:
		<-h.done
	default:
	}
}

// readPump watches the connection for disconnects. Subscribers never send
// meaningful payloads; reads exist to service pongs and close frames.
func (s *subscriber) readPump() {
	defer func() {
		// The hub may already be gone at shutdown; don't hang on it.
		select {
		case s.hub.unregister <- s:
		case <-s.hub.ctx.Done():
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.hub.logger.Debugw("Status subscriber closed abnormally", "error", err)
			}
			return
		}
	}
}

// writePump writes queued messages and keepalive pings. Each status event
// goes out as its own text frame so clients can json-decode frame by frame.
func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Dropped by the hub.
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs godoc
//
//	@Summary		Status stream
//	@Description	Upgrades to a WebSocket that pushes upload status events; authenticate with a `token` query parameter
//	@Tags			analysis
//	@Param			token	query	string	false	"JWT, for clients that cannot set headers"
//	@Success		101
//	@Failure		503	{object}	map[string]string
//	@Security		BearerAuth
//	@Router			/api/ws [get]
func (a *API) serveWs(w http.ResponseWriter, r *http.Request) {
	if a.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "status stream disabled", nil, a.logger)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its own error response here.
		a.logger.Errorw("Status stream upgrade failed", "error", err)
		return
	}

	sub := &subscriber{
		hub:  a.hub,
		conn: conn,
		out:  make(chan []byte, subscriberBufferSize),
	}

	select {
	case a.hub.register <- sub:
	case <-a.hub.ctx.Done():
		conn.Close()
		return
	}

	go sub.writePump()
	go sub.readPump()
}
