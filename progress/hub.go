package progress

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Publisher fans events out beyond this process; *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type listener struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub keys websocket listeners by job id. Events for jobs without a listener are dropped.
type Hub struct {
	mu        sync.RWMutex
	listeners map[string]*listener

	publisher Publisher
	prefix    string
	log       *zap.SugaredLogger
}

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithPublisher mirrors every event to <prefix>.<jobID>.
func WithPublisher(p Publisher, prefix string) HubOption {
	return func(h *Hub) {
		h.publisher = p
		h.prefix = prefix
	}
}

// WithHubLogger sets the logger.
func WithHubLogger(l *zap.SugaredLogger) HubOption {
	return func(h *Hub) { h.log = l }
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		listeners: make(map[string]*listener),
		log:       zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach registers conn as the listener for jobID, replacing any previous one.
func (h *Hub) Attach(jobID string, conn *websocket.Conn) {
	h.mu.Lock()
	h.listeners[jobID] = &listener{conn: conn}
	h.mu.Unlock()
	h.log.Infof("progress listener attached job=%s", jobID)
}

// Detach removes the listener for jobID. The connection itself is left to the caller.
func (h *Hub) Detach(jobID string) {
	h.mu.Lock()
	delete(h.listeners, jobID)
	h.mu.Unlock()
	h.log.Infof("progress listener detached job=%s", jobID)
}

// Attached reports whether jobID has a listener.
func (h *Hub) Attached(jobID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.listeners[jobID]
	return ok
}

// Send delivers ev to the listener of jobID. Write failures are logged and swallowed.
func (h *Hub) Send(jobID string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Warnf("marshal progress event: %v", err)
		return
	}
	h.publish(jobID, payload)

	h.mu.RLock()
	l, ok := h.listeners[jobID]
	h.mu.RUnlock()
	if !ok {
		h.log.Debugf("no progress listener for job=%s, dropping event", jobID)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := l.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		h.log.Warnf("send progress job=%s: %v", jobID, err)
	}
}

// SinkFor returns a Sink bound to jobID.
func (h *Hub) SinkFor(jobID string) Sink {
	return func(ev Event) { h.Send(jobID, ev) }
}

func (h *Hub) publish(jobID string, payload []byte) {
	if h.publisher == nil || h.prefix == "" {
		return
	}
	if err := h.publisher.Publish(h.prefix+"."+jobID, payload); err != nil {
		h.log.Debugf("publish progress job=%s: %v", jobID, err)
	}
}

// CloseAll sends a going-away close frame to every listener and forgets them.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	listeners := h.listeners
	h.listeners = make(map[string]*listener)
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for jobID, l := range listeners {
		l.mu.Lock()
		_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = l.conn.Close()
		l.mu.Unlock()
		h.log.Infof("progress listener closed job=%s", jobID)
	}
}
