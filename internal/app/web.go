// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/automute/internal/engine"
	"github.com/relabs-tech/automute/internal/guard"
	"github.com/relabs-tech/automute/internal/history"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local network only
	},
}

// Status is what the web and display surfaces show.
type Status struct {
	Enabled bool            `json:"enabled"`
	Veto    string          `json:"veto"`
	Guard   guard.State     `json:"guard"`
	Engine  engine.Snapshot `json:"engine"`
	// Recorded counts transitions stored for the current session.
	Recorded int `json:"recorded"`
}

// StatusFunc returns the current Status.
type StatusFunc func() Status

// HistoryReader lists recent ringer transitions.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Transition, error)
}

// WSMessage is pushed to websocket clients.
type WSMessage struct {
	Type       string             `json:"type"` // "status" or "evaluation"
	Status     *Status            `json:"status,omitempty"`
	Evaluation *engine.Evaluation `json:"evaluation,omitempty"`
}

// Web serves the status API and streams evaluations over /ws.
type Web struct {
	status  StatusFunc
	history HistoryReader

	mu      sync.Mutex
	clients map[chan WSMessage]struct{}
}

// NewWeb returns a Web. history may be nil.
func NewWeb(status StatusFunc, history HistoryReader) *Web {
	return &Web{
		status:  status,
		history: history,
		clients: make(map[chan WSMessage]struct{}),
	}
}

// OnEvaluation forwards ev to every connected client. Slow clients miss
// messages rather than blocking the engine.
func (w *Web) OnEvaluation(ev engine.Evaluation) {
	msg := WSMessage{Type: "evaluation", Evaluation: &ev}
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Handler returns the HTTP routes.
func (w *Web) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", w.handleStatus)
	mux.HandleFunc("/api/history", w.handleHistory)
	mux.HandleFunc("/ws", w.handleWS)
	return mux
}

// Run serves on addr until ctx is cancelled.
func (w *Web) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: w.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("web server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(rw http.ResponseWriter, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func (w *Web) handleStatus(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, w.status())
}

func (w *Web) handleHistory(rw http.ResponseWriter, r *http.Request) {
	if w.history == nil {
		http.Error(rw, "history disabled", http.StatusNotFound)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(rw, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	rows, err := w.history.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("web: history query: %v", err)
		http.Error(rw, "history unavailable", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []history.Transition{}
	}
	writeJSON(rw, rows)
}

func (w *Web) handleWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ch := make(chan WSMessage, 16)
	w.mu.Lock()
	w.clients[ch] = struct{}{}
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.clients, ch)
		w.mu.Unlock()
	}()

	// Clients never send anything we act on; reading only detects close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	st := w.status()
	if err := conn.WriteJSON(WSMessage{Type: "status", Status: &st}); err != nil {
		return
	}

	for {
		select {
		case msg := <-ch:
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("web: websocket write error: %v", err)
				return
			}
		case <-closed:
			return
		}
	}
}
