package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"inferd/internal/manager"
	"inferd/pkg/types"
)

// sseKeepAlive is the interval between comment frames on idle streams.
var sseKeepAlive = 15 * time.Second

// serveProgress streams manager events as server-sent events until the client
// disconnects or the server shuts down.
func serveProgress(events EventSource, w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	ch, unsubscribe := events.Subscribe()
	defer unsubscribe()
	sseClients.Inc()
	defer sseClients.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	tick := time.NewTicker(sseKeepAlive)
	defer tick.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-serverBaseCtx.Done():
			return
		case <-tick.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			b, err := json.Marshal(progressEvent(ev))
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func progressEvent(ev manager.Event) types.ProgressEvent {
	pe := types.ProgressEvent{Event: ev.Name, Model: ev.ModelID}
	fields := make(map[string]any, len(ev.Fields))
	for k, v := range ev.Fields {
		if k == "percent" {
			if p, ok := v.(int); ok {
				pe.Percent = &p
				continue
			}
		}
		fields[k] = v
	}
	if len(fields) > 0 {
		pe.Fields = fields
	}
	return pe
}
