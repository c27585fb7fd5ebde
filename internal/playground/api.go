package playground

import (
	"context"
	"io"
	"net/http"

	"github.com/drblury/fixtureflow/internal/protocol"
	"github.com/drblury/fixtureflow/internal/runtime"
	jsoncodec "github.com/drblury/fixtureflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/fixtureflow/internal/runtime/logging"
)

const maxSelectBody = 64 << 10

func (p *Playground) registerAPI() {
	p.svc.RegisterAPIHandler("/api/state", http.HandlerFunc(p.handleGetState))
	p.svc.RegisterAPIHandler("/api/notifications", http.HandlerFunc(p.handleGetNotifications))
	p.svc.RegisterAPIHandler("/api/select", http.HandlerFunc(p.handleSelect))
	p.svc.RegisterAPIHandler("/api/reload", http.HandlerFunc(p.handleReload))
}

func (p *Playground) handleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		runtime.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p.writeJSON(w, p.coordinator.State())
}

func (p *Playground) handleGetNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		runtime.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p.writeJSON(w, p.notifications.Notifications())
}

// handleSelect takes a FixtureID, or null to clear the selection.
func (p *Playground) handleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		runtime.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSelectBody))
	if err != nil {
		runtime.WriteError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var id *protocol.FixtureID
	if err := jsoncodec.Unmarshal(body, &id); err != nil {
		runtime.WriteError(w, http.StatusBadRequest, "invalid fixture id")
		return
	}
	if id != nil && id.Path == "" {
		runtime.WriteError(w, http.StatusBadRequest, "fixture id requires a path")
		return
	}

	_ = p.svc.Do(r.Context(), func(ctx context.Context) error {
		p.router.SelectFixture(ctx, id)
		return nil
	})
	p.writeJSON(w, p.coordinator.State())
}

func (p *Playground) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		runtime.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p.coordinator.ReloadRenderers(r.Context())
	w.WriteHeader(http.StatusAccepted)
}

func (p *Playground) writeJSON(w http.ResponseWriter, v any) {
	if err := runtime.WriteJSON(w, http.StatusOK, v); err != nil {
		p.svc.Logger.Error("Failed to encode API response", err, loggingpkg.LogFields{})
	}
}
