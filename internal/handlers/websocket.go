package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/common"
	"github.com/ternarybob/pricewatch/internal/interfaces"
	"github.com/ternarybob/pricewatch/internal/models"
	"github.com/ternarybob/pricewatch/internal/services/runner"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocket message types
const (
	MessageOutput       = "output"
	MessageEcho         = "echo"
	MessageRunStatus    = "run_status"
	MessageObserverLeft = "observer_left"
)

// WSMessage is the envelope of every message sent to observers
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// OutputPayload carries newly appended run output
type OutputPayload struct {
	RunID string `json:"run_id"`
	Text  string `json:"text"`
}

// RunOutputSource exposes run output buffers to the broadcaster
type RunOutputSource interface {
	ActiveOutput() (string, *runner.OutputBuffer, bool)
	OutputOf(runID string) (*runner.OutputBuffer, bool)
}

// observer is one connected client; writes to a connection are serialized by mu
type observer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// WebSocketHandler keeps the observer registry and fans run output out to it
type WebSocketHandler struct {
	logger       arbor.ILogger
	runs         RunOutputSource
	clients      map[*websocket.Conn]*observer
	mu           sync.RWMutex
	cursors      map[string]int
	drainMu      sync.Mutex // serializes cursor reads/updates and output sends
	finished     string     // last terminal run; its output is never drained again
	pollInterval time.Duration
	writeTimeout time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once
}

// NewWebSocketHandler creates the broadcaster and subscribes it to run lifecycle events
func NewWebSocketHandler(runs RunOutputSource, eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:       logger,
		runs:         runs,
		clients:      make(map[*websocket.Conn]*observer),
		cursors:      make(map[string]int),
		pollInterval: 50 * time.Millisecond,
		writeTimeout: 5 * time.Second,
		stopCh:       make(chan struct{}),
	}

	if config != nil {
		h.pollInterval = common.MustDuration(config.PollInterval, h.pollInterval)
		h.writeTimeout = common.MustDuration(config.WriteTimeout, h.writeTimeout)
	}

	if eventService != nil {
		if err := eventService.Subscribe(interfaces.EventRunStateChanged, h.handleRunStateChanged); err != nil {
			logger.Warn().Err(err).Msg("Failed to subscribe WebSocket handler to run events")
		}
	}

	return h
}

// HandleWebSocket upgrades the request and serves one observer until it disconnects
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	obs := h.register(conn)

	defer func() {
		if h.unregister(conn) {
			h.broadcast(WSMessage{Type: MessageObserverLeft})
		}
	}()

	// Inbound messages are echoed to their sender only
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if err := h.send(obs, WSMessage{Type: MessageEcho, Payload: "You wrote: " + string(data)}); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to echo message to observer")
			return
		}
	}
}

func (h *WebSocketHandler) register(conn *websocket.Conn) *observer {
	obs := &observer{conn: conn}

	h.mu.Lock()
	h.clients[conn] = obs
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket observer connected (total: %d)", count)
	return obs
}

// unregister removes and closes conn; it reports false when conn was already gone
func (h *WebSocketHandler) unregister(conn *websocket.Conn) bool {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	count := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return false
	}

	conn.Close()
	h.logger.Debug().Msgf("WebSocket observer disconnected (remaining: %d)", count)
	return true
}

// ObserverCount returns the number of connected observers
func (h *WebSocketHandler) ObserverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebSocketHandler) send(obs *observer, msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.write(obs, data)
}

func (h *WebSocketHandler) write(obs *observer, data []byte) error {
	obs.mu.Lock()
	defer obs.mu.Unlock()

	if err := obs.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}
	return obs.conn.WriteMessage(websocket.TextMessage, data)
}

// broadcast sends msg to a snapshot of the observers; a failed send drops only that observer
func (h *WebSocketHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	observers := make([]*observer, 0, len(h.clients))
	for _, obs := range h.clients {
		observers = append(observers, obs)
	}
	h.mu.RUnlock()

	var failed []*observer
	for _, obs := range observers {
		if err := h.write(obs, data); err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Observer send failed, removing observer")
			failed = append(failed, obs)
		}
	}

	for _, obs := range failed {
		h.unregister(obs.conn)
	}
}

// Flush synchronously sends any output of runID not yet delivered
func (h *WebSocketHandler) Flush(runID string) {
	out, ok := h.runs.OutputOf(runID)
	if !ok {
		return
	}
	h.drain(runID, out)
}

func (h *WebSocketHandler) drain(runID string, out *runner.OutputBuffer) {
	h.drainMu.Lock()
	defer h.drainMu.Unlock()
	h.drainLocked(runID, out)
}

func (h *WebSocketHandler) drainLocked(runID string, out *runner.OutputBuffer) {
	if runID == h.finished {
		return
	}

	chunks, next := out.ReadSince(h.cursors[runID])
	if len(chunks) == 0 {
		return
	}
	h.cursors[runID] = next

	h.broadcast(WSMessage{
		Type:    MessageOutput,
		Payload: OutputPayload{RunID: runID, Text: strings.Join(chunks, "")},
	})
}

// StartDrainLoop polls the active run's output every poll interval until ctx is done or Stop is called
func (h *WebSocketHandler) StartDrainLoop(ctx context.Context) {
	common.SafeGo(h.logger, "websocket-drain", func() {
		ticker := time.NewTicker(h.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case <-ticker.C:
				if runID, out, ok := h.runs.ActiveOutput(); ok {
					h.drain(runID, out)
				}
			}
		}
	}, nil)
}

// Stop ends the drain loop and closes every observer connection
func (h *WebSocketHandler) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		h.unregister(conn)
	}
}

func (h *WebSocketHandler) handleRunStateChanged(ctx context.Context, event interfaces.Event) error {
	status, ok := event.Payload.(models.RunStatus)
	if !ok {
		return nil
	}

	// A terminal run gets its last output, then its cursor is pruned
	if status.State.IsTerminal() {
		h.drainMu.Lock()
		if out, ok := h.runs.OutputOf(status.RunID); ok {
			h.drainLocked(status.RunID, out)
		}
		delete(h.cursors, status.RunID)
		h.finished = status.RunID
		h.drainMu.Unlock()
	}

	h.broadcast(WSMessage{Type: MessageRunStatus, Payload: status})
	return nil
}
