package main

import (
	"encoding/json"
	"net/http"
	"reflect"
	"time"

	"ksatagent"

	"github.com/gorilla/websocket"
)

const progressPollInterval = 300 * time.Millisecond

// progressSnapshot is what the progress panel renders
type progressSnapshot struct {
	Generating bool               `json:"generating"`
	Progress   ksatagent.Progress `json:"progress"`
	Fraction   float64            `json:"fraction"`
	Tasks      []ksatagent.Task   `json:"tasks"`
	Error      string             `json:"error,omitempty"`
	HasResult  bool               `json:"has_result"`
}

func snapshotOf(sess *ksatagent.Session) progressSnapshot {
	generating, lastErr := sess.State()
	tasks := sess.Tasks()
	p := tasks.Aggregate()
	_, hasResult := sess.Results.Get()
	return progressSnapshot{
		Generating: generating,
		Progress:   p,
		Fraction:   p.Fraction(),
		Tasks:      tasks.Snapshot(),
		Error:      ksatagent.UserMessage(lastErr),
		HasResult:  hasResult,
	}
}

// handleProgress returns the current progress of the caller's job
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshotOf(sess)); err != nil {
		ksatagent.Logger().Warnw("failed to write progress", "error", err)
	}
}

// handleProgressWS pushes progress snapshots whenever they change, until the
// job ends or the client goes away
func (s *Server) handleProgressWS(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ksatagent.Logger().Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Reader loop only detects the close frame
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()

	var last *progressSnapshot
	for {
		snap := snapshotOf(sess)
		if last == nil || !reflect.DeepEqual(*last, snap) {
			if err := conn.WriteJSON(snap); err != nil {
				ksatagent.VerboseLog("progress websocket closed: %v", err)
				return
			}
			last = &snap
		}
		if !snap.Generating {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
			return
		}

		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
