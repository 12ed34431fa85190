package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"grimm.is/hearth/internal/events"
	"grimm.is/hearth/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 4096
)

// WSMessage is a topic-based message sent to clients. Topic is the event
// type.
type WSMessage struct {
	Topic string       `json:"topic"`
	Data  events.Event `json:"data"`
}

// wsClient represents a connected WebSocket client with subscriptions
type wsClient struct {
	conn  *websocket.Conn
	send  chan []byte
	login string
	admin bool

	mu     sync.Mutex
	topics map[string]bool
	closed bool
}

// wants reports whether the client receives e. Customers only see events
// they caused. No subscription means every topic.
func (c *wsClient) wants(e events.Event) bool {
	if !c.admin && e.Source != c.login {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.topics) == 0 || c.topics["*"] || c.topics[string(e.Type)]
}

func (c *wsClient) setTopics(action string, topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		switch action {
		case "subscribe":
			c.topics[t] = true
		case "unsubscribe":
			delete(c.topics, t)
		}
	}
}

// WSManager streams hub events to websocket clients.
type WSManager struct {
	hub      *events.Hub
	events   <-chan events.Event
	upgrader websocket.Upgrader
	origins  map[string]bool
	logger   *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewWSManager subscribes to every event of hub. origins lists the extra
// Origin values allowed to connect.
func NewWSManager(hub *events.Hub, origins []string, logger *logging.Logger) *WSManager {
	m := &WSManager{
		hub:     hub,
		events:  hub.Subscribe(256),
		origins: make(map[string]bool),
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
		done:    make(chan struct{}),
	}
	for _, o := range origins {
		m.origins[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     m.checkOrigin,
	}
	go m.run()
	return m
}

// checkOrigin enforces the same-origin policy for upgrades.
// Mitigation: OWASP A01:2021-Broken Access Control (Cross-Site WebSocket Hijacking)
func (m *WSManager) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if m.origins[strings.TrimRight(strings.ToLower(origin), "/")] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (m *WSManager) run() {
	for {
		select {
		case <-m.done:
			return
		case e := <-m.events:
			m.broadcast(e)
		}
	}
}

func (m *WSManager) broadcast(e events.Event) {
	msg, err := json.Marshal(WSMessage{Topic: string(e.Type), Data: e})
	if err != nil {
		m.logger.Warn("failed to encode event", "type", e.Type, "error", err)
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for c := range m.clients {
		if !c.wants(e) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// slow client, drop
		}
	}
}

// Clients returns the number of connected clients.
func (m *WSManager) Clients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Close disconnects every client and stops the event subscription.
func (m *WSManager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.hub.Unsubscribe(m.events)
		m.mu.Lock()
		for c := range m.clients {
			c.conn.Close()
		}
		m.mu.Unlock()
	})
}

func (m *WSManager) remove(c *wsClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c]; !ok {
		return
	}
	delete(m.clients, c)
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// ServeHTTP upgrades an authenticated request. Topics may be preselected
// with ?topics=task.queued,domain.changed.
func (m *WSManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	if caller == nil {
		WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	select {
	case <-m.done:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		conn:   conn,
		send:   make(chan []byte, 64),
		login:  caller.LoginName(),
		admin:  caller.IsAdmin(),
		topics: make(map[string]bool),
	}
	if t := r.URL.Query().Get("topics"); t != "" {
		c.setTopics("subscribe", strings.Split(t, ","))
	}

	m.mu.Lock()
	m.clients[c] = struct{}{}
	m.mu.Unlock()

	go c.writePump()
	go c.readPump(m)
}

// readPump handles subscription messages until the connection fails.
func (c *wsClient) readPump(m *WSManager) {
	defer func() {
		m.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Action string   `json:"action"`
			Topics []string `json:"topics"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		c.setTopics(msg.Action, msg.Topics)
	}
}

// writePump sends queued messages and keeps the connection alive.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
