package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"camguard.dev/internal/monitor"
	"camguard.dev/internal/stream"
)

const streamHeartbeat = 15 * time.Second

func (a *API) partnerAlertStream(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := partnerTenantOrError(w, r)
	if !ok {
		return
	}
	a.serveAlerts(w, r, stream.Filter{TenantID: tenantID})
}

func (a *API) clientAlertStream(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	tenantID, client, err := a.deps.Monitor.ClientScope(r.Context(), c, tenantHint(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.serveAlerts(w, r, stream.Filter{TenantID: tenantID, ClientID: client.ID})
}

// serveAlerts writes matching alert events as Server-Sent Events until the
// client goes away.
func (a *API) serveAlerts(w http.ResponseWriter, r *http.Request, f stream.Filter) {
	if a.deps.Stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.deps.Stream.Subscribe(ctx, f)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(streamHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case event, open := <-ch:
			if !open {
				return
			}
			if err := writeEvent(w, event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event monitor.AlertEvent) error {
	payload, err := json.Marshal(event.Alert)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.Alert.ID, event.Kind, payload)
	return err
}
