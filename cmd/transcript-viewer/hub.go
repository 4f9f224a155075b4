package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"smartspeech-client/internal/models"
)

// viewerEvent is what the browser receives for both event types.
type viewerEvent struct {
	EventType      string `json:"eventType"`
	CallID         string `json:"callId"`
	UtteranceID    string `json:"utteranceId"`
	Text           string `json:"text"`
	NormalizedText string `json:"normalizedText,omitempty"`
	Final          bool   `json:"final"`
	AudioOffsetMs  int64  `json:"audioOffsetMs,omitempty"`
	AudioEndMs     int64  `json:"audioEndMs,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// decodeEvent reads a partial or final transcript published by the client.
func decodeEvent(value []byte) (viewerEvent, error) {
	var head struct {
		EventType string `json:"eventType"`
	}
	if err := json.Unmarshal(value, &head); err != nil {
		return viewerEvent{}, err
	}

	switch head.EventType {
	case models.EventTypePartial:
		var p models.TranscriptPartial
		if err := json.Unmarshal(value, &p); err != nil {
			return viewerEvent{}, err
		}
		return viewerEvent{
			EventType:      p.EventType,
			CallID:         p.CallID,
			UtteranceID:    p.UtteranceID,
			Text:           p.Text,
			NormalizedText: p.NormalizedText,
			Timestamp:      p.Timestamp,
		}, nil
	case models.EventTypeFinal:
		var f models.TranscriptFinal
		if err := json.Unmarshal(value, &f); err != nil {
			return viewerEvent{}, err
		}
		return viewerEvent{
			EventType:      f.EventType,
			CallID:         f.CallID,
			UtteranceID:    f.UtteranceID,
			Text:           f.Text,
			NormalizedText: f.NormalizedText,
			Final:          true,
			AudioOffsetMs:  f.AudioOffsetMs,
			AudioEndMs:     f.AudioEndMs,
			Timestamp:      f.Timestamp,
		}, nil
	default:
		return viewerEvent{}, fmt.Errorf("unknown event type %q", head.EventType)
	}
}

// Hub fans events out to every connected browser.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan viewerEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stopped    chan struct{}
	mu         sync.RWMutex
	log        zerolog.Logger
}

func newHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan viewerEvent, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stopped:    make(chan struct{}),
		log:        log,
	}
}

// clientCount is safe to call from any goroutine.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// add hands conn to the run loop. It reports false once the hub stopped.
func (h *Hub) add(conn *websocket.Conn) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.stopped:
		return false
	}
}

// remove hands conn back to the run loop, or drops it once the hub stopped.
func (h *Hub) remove(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.stopped:
	}
}

func (h *Hub) run(done <-chan struct{}) {
	defer close(h.stopped)
	for {
		select {
		case <-done:
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info().Int("clients", n).Msg("client connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info().Int("clients", n).Msg("client disconnected")

		case event := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteJSON(event); err != nil {
					h.log.Warn().Err(err).Msg("websocket write failed")
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	// The viewer is a local debugging tool.
	CheckOrigin: func(*http.Request) bool { return true },
}

func wsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		if !hub.add(conn) {
			conn.Close()
			return
		}

		// Reads only detect the disconnect.
		go func() {
			defer hub.remove(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
