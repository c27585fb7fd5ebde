package playground

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/fixtureflow/internal/notifications"
	"github.com/drblury/fixtureflow/internal/protocol"
	"github.com/drblury/fixtureflow/internal/runtime"
	configpkg "github.com/drblury/fixtureflow/internal/runtime/config"
	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/fixtureflow/internal/runtime/jsoncodec"
	"github.com/drblury/fixtureflow/internal/runtime/runtimetest"
	"github.com/drblury/fixtureflow/transport"
	"github.com/drblury/fixtureflow/transport/memory"
)

type devServer struct {
	hub *memory.Hub

	mu       sync.Mutex
	requests []protocol.Message
}

func newDevServer() *devServer {
	d := &devServer{hub: memory.NewHub()}
	d.hub.OnAccept(func(server transport.Channel) {
		server.On(protocol.SocketRendererRequest, func(data []byte) {
			var msg protocol.Message
			if jsoncodec.Unmarshal(data, &msg) != nil {
				return
			}
			d.mu.Lock()
			d.requests = append(d.requests, msg)
			d.mu.Unlock()
		})
	})
	return d
}

func (d *devServer) received() []protocol.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]protocol.Message(nil), d.requests...)
}

func (d *devServer) send(t *testing.T, event, msgType string, payload any) {
	t.Helper()
	msg, err := protocol.NewMessage(msgType, payload)
	require.NoError(t, err)
	data, err := jsoncodec.Marshal(msg)
	require.NoError(t, err)

	accepted := d.hub.Accepted()
	require.NotEmpty(t, accepted)
	require.NoError(t, accepted[len(accepted)-1].Emit(context.Background(), event, data))
}

func newPlayground(t *testing.T, conf configpkg.Config, server *devServer) *Playground {
	t.Helper()
	registry := transport.NewRegistry()
	if server != nil {
		registry.Register(memory.TransportName, server.hub.Dial)
	}
	metrics := prometheus.NewRegistry()

	p, err := New(Options{
		Config:     &conf,
		Logger:     runtimetest.Logger(),
		Transports: registry,
		Dependencies: runtime.ServiceDependencies{
			Registerer: metrics,
			Gatherer:   metrics,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestSessionEndToEnd(t *testing.T) {
	server := newDevServer()
	p := newPlayground(t, configpkg.Config{Transport: configpkg.TransportMemory}, server)
	require.NoError(t, p.Start(context.Background()))
	require.True(t, p.Transport().Connected())

	initial := protocol.NewFixtureID("ein.js", "")
	server.send(t, protocol.SocketRendererResponse, protocol.RendererReady, protocol.RendererReadyPayload{
		RendererID:       "r1",
		Fixtures:         protocol.FixtureList{"ein.js": {Type: protocol.FixtureTypeSingle}},
		InitialFixtureID: &initial,
	})

	require.Eventually(t, func() bool { return len(server.received()) == 1 }, time.Second, 5*time.Millisecond)
	request := server.received()[0]
	assert.Equal(t, protocol.SelectFixture, request.Type)
	payload, err := protocol.DecodePayload[protocol.SelectFixturePayload](request)
	require.NoError(t, err)
	assert.Equal(t, protocol.RendererID("r1"), payload.RendererID)
	assert.True(t, payload.FixtureID.Equal(initial))

	state := p.Coordinator().State()
	require.NotNil(t, state.PrimaryRendererID)
	assert.Equal(t, protocol.RendererID("r1"), *state.PrimaryRendererID)
	assert.True(t, protocol.SameFixture(&initial, p.Router().SelectedFixtureID()))

	server.send(t, protocol.SocketServerMessage, protocol.BuildStart, nil)
	server.send(t, protocol.SocketServerMessage, protocol.BuildError, nil)
	require.Eventually(t, func() bool {
		for _, n := range p.Notifications().Notifications() {
			if n.ID == "build" && n.Type == notifications.TypeError {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	server.send(t, protocol.SocketServerMessage, protocol.BuildDone, nil)
	require.Eventually(t, func() bool {
		for _, n := range p.Notifications().Notifications() {
			if n.ID == "build" {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)
}

func TestStartWithoutDevServerStaysDisconnected(t *testing.T) {
	p := newPlayground(t, configpkg.Config{}, nil)
	require.NoError(t, p.Start(context.Background()))
	assert.False(t, p.Transport().Connected())

	// Requests are dropped without a channel.
	p.Coordinator().ReloadRenderers(context.Background())
}

func TestCloseIsIdempotentAndFinal(t *testing.T) {
	server := newDevServer()
	p := newPlayground(t, configpkg.Config{Transport: configpkg.TransportMemory}, server)
	require.NoError(t, p.Start(context.Background()))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.False(t, p.Transport().Connected())
	assert.True(t, p.Runtime().Closed())
	assert.ErrorIs(t, p.Start(context.Background()), errspkg.ErrRuntimeClosed)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{Logger: runtimetest.Logger()})
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)

	_, err = New(Options{Config: &configpkg.Config{}})
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)

	_, err = New(Options{
		Config: &configpkg.Config{DevServerURL: "ftp://example.com"},
		Logger: runtimetest.Logger(),
	})
	var validation errspkg.ConfigValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestDefaultsApplied(t *testing.T) {
	p := newPlayground(t, configpkg.Config{}, nil)
	conf := p.Config()
	assert.Equal(t, configpkg.TransportWebSocket, conf.Transport)
	assert.Equal(t, configpkg.DefaultNotificationTimeout, conf.NotificationTimeout)
}

func serve(t *testing.T, p *Playground, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	handler := p.Runtime().APIHandler()
	require.NotNil(t, handler)
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAPI(t *testing.T) {
	p := newPlayground(t, configpkg.Config{APIEnabled: true, APIPort: 18181}, nil)
	ctx := context.Background()
	p.Coordinator().OnRendererReady(ctx, "r1", protocol.FixtureList{"ein.js": {Type: protocol.FixtureTypeSingle}}, nil)

	rec := serve(t, p, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"connectedRendererIds": ["r1"],
		"primaryRendererId": "r1",
		"fixtures": {"ein.js": {"type": "single"}},
		"fixtureState": {},
		"selectedFixtureId": null
	}`, rec.Body.String())

	rec = serve(t, p, http.MethodPost, "/api/select", `{"path":"ein.js"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, protocol.SameFixture(&protocol.FixtureID{Path: "ein.js"}, p.Coordinator().State().SelectedFixtureID))

	rec = serve(t, p, http.MethodPost, "/api/select", `null`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, p.Coordinator().State().SelectedFixtureID)

	rec = serve(t, p, http.MethodPost, "/api/select", `{"name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(t, p, http.MethodPost, "/api/select", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(t, p, http.MethodGet, "/api/select", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(t, p, http.MethodGet, "/api/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []notifications.Notification
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "renderer-connect-r1", list[0].ID)

	rec = serve(t, p, http.MethodPost, "/api/reload", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	rec = serve(t, p, http.MethodDelete, "/api/state", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
