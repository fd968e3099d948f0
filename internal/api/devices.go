package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jamesprial/upswatch/internal/ups"
)

// deviceView is the JSON shape of one device.
type deviceView struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Reachable   bool                     `json:"reachable"`
	Status      ups.StatusClassification `json:"status"`
	Vars        map[string]ups.Variable  `json:"vars"`
}

func newDeviceView(d ups.Device) deviceView {
	return deviceView{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Reachable:   d.Reachable(),
		Status:      d.Status(),
		Vars:        d.Vars(),
	}
}

// Health reports liveness plus the age of the current snapshot.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	snap, err := a.resolver.Latest()
	if err != nil {
		body["snapshot"] = false
		writeJSON(w, http.StatusOK, body)
		return
	}
	now := a.now()
	body["snapshot"] = true
	body["taken_at"] = snap.TakenAt()
	body["age_seconds"] = snap.Age(now).Seconds()
	body["devices"] = snap.Len()
	if a.opts.StaleAfter > 0 {
		body["stale"] = snap.IsStale(now, a.opts.StaleAfter)
	}
	writeJSON(w, http.StatusOK, body)
}

// ListDevices returns every device of the latest snapshot. visible=true
// drops devices the grid hides; view=grid returns grid rows instead.
func (a *API) ListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	visibleOnly := false
	if raw := strings.TrimSpace(q.Get("visible")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_visible_filter", "visible must be true or false")
			return
		}
		visibleOnly = v
	}
	view := strings.TrimSpace(q.Get("view"))
	if view != "" && view != "grid" && view != "full" {
		writeError(w, http.StatusBadRequest, "invalid_view", "view must be grid or full")
		return
	}

	snap, err := a.resolver.Latest()
	if err != nil {
		writeLookupError(w, err)
		return
	}

	if view == "grid" {
		writeJSON(w, http.StatusOK, map[string]any{"taken_at": snap.TakenAt(), "items": snap.Grid()})
		return
	}

	devices := snap.Devices()
	if visibleOnly {
		devices = snap.Visible()
	}
	items := make([]deviceView, len(devices))
	for i, d := range devices {
		items[i] = newDeviceView(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"taken_at": snap.TakenAt(), "items": items})
}

// pathParam returns the decoded URL parameter key. chi matches on the raw
// path, so a qualified id such as "nas/ups1" arrives as "nas%2Fups1". On a
// bad escape it writes a 400 and returns false.
func pathParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, key))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_path_param", "Malformed "+key+" in path")
		return "", false
	}
	return v, true
}

// deviceAndParam decodes the {device} and {param} URL parameters.
func deviceAndParam(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	id, ok := pathParam(w, r, "device")
	if !ok {
		return "", "", false
	}
	name, ok := pathParam(w, r, "param")
	return id, name, ok
}

// GetDevice returns one device with all its variables.
func (a *API) GetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "device")
	if !ok {
		return
	}
	d, err := a.resolver.GetDevice(id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDeviceView(d))
}

// GetStatus returns the classified status of one device.
func (a *API) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "device")
	if !ok {
		return
	}
	d, err := a.resolver.GetDevice(id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Status())
}

// GetVariable returns one variable of one device.
func (a *API) GetVariable(w http.ResponseWriter, r *http.Request) {
	id, name, ok := deviceAndParam(w, r)
	if !ok {
		return
	}
	v, err := a.resolver.GetVariable(id, name)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device": id,
		"name":   v.Name(),
		"value":  v.Value(),
		"type":   v.Type(),
	})
}

// GetVariableType returns only the type of one variable.
func (a *API) GetVariableType(w http.ResponseWriter, r *http.Request) {
	id, name, ok := deviceAndParam(w, r)
	if !ok {
		return
	}
	typ, err := a.resolver.GetVariableType(id, name)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device": id, "name": name, "type": typ})
}

// Refresh asks the poller for an immediate poll. A poll already in flight
// absorbs the request.
func (a *API) Refresh(w http.ResponseWriter, _ *http.Request) {
	if a.refresher == nil {
		writeError(w, http.StatusNotImplemented, "refresh_unavailable", "Manual refresh is not configured")
		return
	}
	a.refresher.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "requested_at": a.now().UTC().Format(time.RFC3339)})
}
