// ABOUTME: Websocket endpoints for the devserver: a scripted chat channel and
// ABOUTME: a pipeline broadcast hub, both gated on the ?token= query parameter.
package devserver

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local emulator only; the real backend enforces origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hub fans pipeline frames out to every connected pipeline socket.
type hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func newHub() *hub {
	return &hub{conns: make(map[*websocket.Conn]bool)}
}

func (h *hub) add(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = true
}

func (h *hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

func (h *hub) broadcast(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("devserver: marshal pipeline frame: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(h.conns, c)
			c.Close()
		}
	}
}

// checkSocketToken validates the ?token= query parameter used by websocket
// dials, where headers are not available to browser clients.
func (s *Server) checkSocketToken(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	if r.URL.Query().Get("token") == s.cfg.Token {
		return true
	}
	http.Error(w, "missing or invalid token", http.StatusUnauthorized)
	return false
}

func (s *Server) handlePipelineSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkSocketToken(w, r) {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("devserver: pipeline upgrade: %v", err)
		return
	}
	s.hub.add(conn)
	log.Printf("devserver: pipeline socket connected remote=%s", r.RemoteAddr)

	// Drain reads until the client goes away; pipeline clients only send pings.
	go func() {
		defer func() {
			s.hub.remove(conn)
			conn.Close()
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if isPing(data) {
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
			}
		}
	}()
}

func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkSocketToken(w, r) {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("devserver: chat upgrade: %v", err)
		return
	}
	log.Printf("devserver: chat socket connected remote=%s", r.RemoteAddr)

	go s.chatLoop(conn)
}

// chatSession tracks the cancel flag for the single in-flight turn on one
// chat socket.
type chatSession struct {
	mu        sync.Mutex
	cancelled bool
}

func (cs *chatSession) cancel() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.cancelled = true
}

func (cs *chatSession) reset() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.cancelled = false
}

func (cs *chatSession) isCancelled() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.cancelled
}

// chatLoop reads client frames and scripts assistant turns. Each
// chat_message produces chunks, one tool call, and a chat_end.
func (s *Server) chatLoop(conn *websocket.Conn) {
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(frame any) error {
		data, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	session := &chatSession{}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Type           string `json:"type"`
			Content        string `json:"content"`
			ConversationID string `json:"conversation_id"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "ping":
			send(map[string]string{"type": "pong"})
		case "cancel":
			session.cancel()
		case "chat_message":
			session.reset()
			go s.scriptTurn(send, session, msg.Content, msg.ConversationID)
		}
	}
}

// scriptTurn streams a canned assistant reply for one user message.
func (s *Server) scriptTurn(send func(any) error, session *chatSession, content, conversationID string) {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	reply := fmt.Sprintf("You said: %q. The pipeline data is looking healthy.", content)
	words := strings.SplitAfter(reply, " ")

	toolID := uuid.NewString()
	send(map[string]any{"type": "tool_preparing", "tool_id": toolID, "tool": "query_runs"})
	send(map[string]any{"type": "tool_start", "tool_id": toolID, "tool": "query_runs", "display": "Querying run history"})
	send(map[string]any{"type": "tool_end", "tool_id": toolID, "status": "done", "summary": "3 runs found"})

	for _, word := range words {
		if session.isCancelled() {
			send(map[string]any{
				"type":            "chat_end",
				"conversation_id": conversationID,
				"message":         "Cancelled by user",
			})
			return
		}
		send(map[string]any{"type": "chat_chunk", "text": word})
		time.Sleep(s.cfg.StepDelay / 4)
	}

	send(map[string]any{
		"type":            "chat_end",
		"conversation_id": conversationID,
		"tool_calls": []map[string]any{
			{"tool_id": toolID, "tool": "query_runs", "status": "done", "summary": "3 runs found"},
		},
		"usage": map[string]int{"input_tokens": 42, "output_tokens": len(words)},
	})
}

func isPing(data []byte) bool {
	var f struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(data, &f) == nil && f.Type == "ping"
}
