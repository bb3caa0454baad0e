package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EvaluationEvent describes websocket payloads emitted as evaluations run.
type EvaluationEvent struct {
	Type       string         `json:"type"`
	JobID      string         `json:"job_id,omitempty"`
	BatchID    uint           `json:"batch_id,omitempty"`
	Total      int64          `json:"total,omitempty"`
	Processed  int            `json:"processed,omitempty"`
	Evaluation *EvaluationDTO `json:"evaluation,omitempty"`
	Message    string         `json:"message,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// wsClient wraps a websocket connection with write locking.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// EvaluationNotifier tracks active websocket clients and broadcasts
// evaluation events to all of them.
type EvaluationNotifier struct {
	mu         sync.Mutex
	clients    map[*wsClient]struct{}
	lastStatus *EvaluationEvent
}

// NewEvaluationNotifier constructs a notifier instance.
func NewEvaluationNotifier() *EvaluationNotifier {
	return &EvaluationNotifier{clients: make(map[*wsClient]struct{})}
}

// Register attaches a websocket connection and returns a client handle.
// A newly connected client immediately receives the last job status.
func (n *EvaluationNotifier) Register(conn *websocket.Conn) *wsClient {
	client := &wsClient{conn: conn}
	n.mu.Lock()
	n.clients[client] = struct{}{}
	status := n.lastStatus
	n.mu.Unlock()

	if status != nil {
		_ = client.writeJSON(*status)
	}
	return client
}

// Unregister removes the websocket client and closes the socket.
func (n *EvaluationNotifier) Unregister(client *wsClient) {
	if client == nil {
		return
	}
	n.mu.Lock()
	delete(n.clients, client)
	n.mu.Unlock()
	_ = client.conn.Close()
}

// Broadcast sends the supplied event to all registered clients. Job
// lifecycle events are retained so late subscribers can catch up.
func (n *EvaluationNotifier) Broadcast(event EvaluationEvent) {
	event.Timestamp = time.Now().UTC()

	n.mu.Lock()
	switch event.Type {
	case "started", "progress", "completed", "cancelled":
		snapshot := event
		snapshot.Evaluation = nil
		n.lastStatus = &snapshot
	}

	for client := range n.clients {
		if err := client.writeJSON(event); err != nil {
			delete(n.clients, client)
			_ = client.conn.Close()
		}
	}
	n.mu.Unlock()
}

// LastStatus returns a copy of the most recent retained job event.
func (n *EvaluationNotifier) LastStatus() *EvaluationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lastStatus == nil {
		return nil
	}
	snapshot := *n.lastStatus
	return &snapshot
}

func (c *wsClient) writeJSON(payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(payload)
}
