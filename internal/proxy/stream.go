package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

var keepAliveInterval = 15 * time.Second

// handleStream serves the log as Server-Sent Events: the replay buffer first, then live events.
func (p *Proxy) handleStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	replay, events, cancel := p.hub.Subscribe()
	defer cancel()

	for _, ev := range replay {
		if err := writeEvent(w, ev); err != nil {
			return
		}
	}
	if err := rc.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-p.hub.Done():
			return
		case ev := <-events:
			if err := writeEvent(w, ev); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func (p *Proxy) handleClear(w http.ResponseWriter, r *http.Request) {
	p.hub.Clear()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
