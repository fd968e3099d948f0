package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jamesprial/upswatch/internal/ups"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// changeEvent is one message on the events stream.
type changeEvent struct {
	Type             string   `json:"type"`
	ChangedDeviceIDs []string `json:"changed_device_ids"`
	TakenAt          string   `json:"taken_at,omitempty"`
}

// Events upgrades to a websocket and streams a changeEvent for every
// publish that changes the requested fields. fields is a comma separated
// list; when absent the configured default applies.
func (a *API) Events(w http.ResponseWriter, r *http.Request) {
	if a.hub == nil {
		writeError(w, http.StatusNotImplemented, "events_unavailable", "Change stream is not configured")
		return
	}
	watched := a.opts.Watched
	if raw, ok := r.URL.Query()["fields"]; ok {
		watched = parseFields(strings.Join(raw, ","))
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	sub := a.hub.Subscribe(watched)
	defer sub.Cancel()
	defer conn.Close()

	a.logger.Info("events subscriber connected", "remote", r.RemoteAddr, "fields", watched)
	defer a.logger.Info("events subscriber disconnected", "remote", r.RemoteAddr)

	// Reader: handles pongs and notices the peer closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case res, ok := <-sub.C:
			if !ok {
				return
			}
			if err := a.send(conn, res); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (a *API) send(conn *websocket.Conn, res ups.DiffResult) error {
	ev := changeEvent{Type: "changed", ChangedDeviceIDs: res.ChangedDeviceIDs}
	if snap, err := a.resolver.Latest(); err == nil {
		ev.TakenAt = snap.TakenAt().UTC().Format(time.RFC3339Nano)
	}
	if ev.ChangedDeviceIDs == nil {
		ev.ChangedDeviceIDs = []string{}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}

// parseFields splits a comma separated field list, dropping blanks.
func parseFields(raw string) []string {
	fields := []string{}
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}
