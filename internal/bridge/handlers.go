package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hay-kot/deepguard/internal/core/history"
	"github.com/hay-kot/deepguard/internal/core/prediction"
	"github.com/hay-kot/deepguard/internal/render"
)

// Message actions.
const (
	ActionAnalyzeImage  = "analyzeImage"
	ActionGetLastResult = "getLastResult"
	ActionClearHistory  = "clearHistory"
)

const (
	maxMessageBytes = 64 << 10
	writeWait       = 10 * time.Second
	pingPeriod      = 30 * time.Second
)

// messageRequest is the body of POST /v1/messages.
type messageRequest struct {
	Action   string `json:"action"`
	ImageURL string `json:"imageUrl"`
}

// messageResponse is the reply to a message. Success is always encoded; the other
// fields only when set.
type messageResponse struct {
	Success bool               `json:"success"`
	Result  *prediction.Result `json:"result,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// lastResultResponse replies to getLastResult. Result is null when nothing is stored.
type lastResultResponse struct {
	Result *prediction.Result `json:"result"`
}

type statusResponse struct {
	Online    bool   `json:"online"`
	Loaded    bool   `json:"loaded"`
	Exists    bool   `json:"exists"`
	Reachable bool   `json:"reachable"`
	Text      string `json:"text"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	s.log.Debug().Str("action", req.Action).Msg("message received")

	switch req.Action {
	case ActionAnalyzeImage:
		if req.ImageURL == "" {
			writeJSON(w, http.StatusBadRequest, messageResponse{Error: "imageUrl is required"})
			return
		}

		// the check outlives a disconnected sender; its result still lands in state
		out, err := s.analyzer.AnalyzeURL(context.WithoutCancel(r.Context()), req.ImageURL)
		if err != nil {
			writeJSON(w, http.StatusOK, messageResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Success: true, Result: &out.Result})

	case ActionGetLastResult:
		res, err := s.analyzer.LastResult(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, messageResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, lastResultResponse{Result: res})

	case ActionClearHistory:
		if err := s.analyzer.ClearHistory(r.Context()); err != nil {
			writeJSON(w, http.StatusInternalServerError, messageResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Success: true})

	default:
		writeJSON(w, http.StatusBadRequest, messageResponse{Error: fmt.Sprintf("unknown action %q", req.Action)})
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.displayLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, messageResponse{Error: "limit must be an integer"})
			return
		}
		limit = n
	}

	entries, err := s.analyzer.History(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, messageResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		History []history.Entry `json:"history"`
	}{History: entries})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.analyzer.Status(r.Context())
	writeJSON(w, http.StatusOK, statusResponse{
		Online:    st.Online(),
		Loaded:    st.Loaded,
		Exists:    st.Exists,
		Reachable: st.Reachable,
		Text:      render.StatusText(st),
	})
}

// handleEvents streams analysis events to a websocket client until either side closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// subscribe before the handshake completes so no event published after the client
	// sees the upgrade is missed
	events, cancel := s.analyzer.Subscribe()
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close() //nolint:errcheck

	s.log.Debug().Str("client", clientIP(r)).Msg("event subscriber connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge stopping"),
				time.Now().Add(writeWait))
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				s.log.Debug().Err(err).Msg("event write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
