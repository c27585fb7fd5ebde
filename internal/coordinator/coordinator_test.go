package coordinator

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/fixtureflow/internal/notifications"
	"github.com/drblury/fixtureflow/internal/protocol"
	"github.com/drblury/fixtureflow/internal/router"
	"github.com/drblury/fixtureflow/internal/runtime"
	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
	"github.com/drblury/fixtureflow/internal/runtime/runtimetest"
)

type sentRequests struct {
	requests []protocol.RendererRequest
}

func (s *sentRequests) SendRendererRequest(_ context.Context, req protocol.RendererRequest) {
	s.requests = append(s.requests, req)
}

func (s *sentRequests) ofType(msgType string) []protocol.RendererRequest {
	var out []protocol.RendererRequest
	for _, req := range s.requests {
		if req.Type == msgType {
			out = append(out, req)
		}
	}
	return out
}

func (s *sentRequests) reset() {
	s.requests = nil
}

type harness struct {
	svc         *runtime.Service
	coordinator *Coordinator
	router      *router.Router
	notifier    *notifications.Manager
	sent        *sentRequests
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	svc, _ := runtimetest.NewService(t, nil)

	r, err := router.New(svc, router.NewLocation(url.URL{Path: "/"}))
	require.NoError(t, err)
	notifier, err := notifications.New(svc, time.Hour)
	require.NoError(t, err)
	t.Cleanup(notifier.Close)

	sent := &sentRequests{}
	c, err := New(svc, Dependencies{Router: r, Notifier: notifier, Sender: sent})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return &harness{svc: svc, coordinator: c, router: r, notifier: notifier, sent: sent}
}

func fixture(path string) *protocol.FixtureID {
	id := protocol.NewFixtureID(path, "")
	return &id
}

var catalog = protocol.FixtureList{
	"ein.js":  {Type: protocol.FixtureTypeSingle},
	"zwei.js": {Type: protocol.FixtureTypeSingle},
}

func TestFirstAnnouncerIsPrimary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, id := range []protocol.RendererID{"r1", "r2", "r3"} {
		h.coordinator.OnRendererReady(ctx, id, catalog, nil)
	}

	state := h.coordinator.State()
	require.NotNil(t, state.PrimaryRendererID)
	assert.Equal(t, protocol.RendererID("r1"), *state.PrimaryRendererID)
	assert.Equal(t, []protocol.RendererID{"r1", "r2", "r3"}, state.ConnectedRendererIDs.IDs())
}

func TestReannouncingKeepsOneEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coordinator.OnRendererReady(ctx, "r1", catalog, nil)
	h.coordinator.OnRendererReady(ctx, "r2", catalog, nil)
	h.coordinator.OnRendererReady(ctx, "r1", catalog, nil)

	state := h.coordinator.State()
	assert.Equal(t, 2, state.ConnectedRendererIDs.Len())
	assert.Equal(t, []protocol.RendererID{"r1", "r2"}, state.ConnectedRendererIDs.IDs())
	assert.InDelta(t, 2, testutil.ToFloat64(h.coordinator.metrics.connected), 0)
}

func TestFixtureStateResetsOnlyForPrimary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coordinator.OnRendererReady(ctx, "r1", catalog, nil)
	h.router.SelectFixture(ctx, fixture("ein.js"))
	h.coordinator.OnFixtureStateChange(ctx, "r1", *fixture("ein.js"), protocol.FixtureState{"props": "x"})
	require.Equal(t, protocol.FixtureState{"props": "x"}, h.coordinator.State().FixtureState)

	h.coordinator.OnRendererReady(ctx, "r2", catalog, nil)
	assert.Equal(t, protocol.FixtureState{"props": "x"}, h.coordinator.State().FixtureState)

	h.coordinator.OnRendererReady(ctx, "r1", catalog, nil)
	assert.Empty(t, h.coordinator.State().FixtureState)
}

func TestFixturesReplacedOnAnnouncement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coordinator.OnRendererReady(ctx, "r1", catalog, nil)
	h.coordinator.OnRendererReady(ctx, "r1", protocol.FixtureList{"drei.js": {Type: protocol.FixtureTypeSingle}}, nil)

	fixtures := h.coordinator.State().Fixtures
	assert.Len(t, fixtures, 1)
	assert.Contains(t, fixtures, "drei.js")
}

func TestInitialFixtureSelectedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coordinator.OnRendererReady(ctx, "r1", protocol.FixtureList{"ein.js": {Type: protocol.FixtureTypeSingle}}, fixture("ein.js"))

	selects := h.sent.ofType(protocol.SelectFixture)
	require.Len(t, selects, 1)
	payload := selects[0].Payload.(protocol.SelectFixturePayload)
	assert.Equal(t, protocol.RendererID("r1"), payload.RendererID)
	assert.True(t, payload.FixtureID.Equal(*fixture("ein.js")))

	assert.True(t, protocol.SameFixture(fixture("ein.js"), h.router.SelectedFixtureID()))
	assert.True(t, protocol.SameFixture(fixture("ein.js"), h.coordinator.State().SelectedFixtureID))
}

func TestURLSelectionSentToAnnouncingRenderer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.router.SelectFixture(ctx, fixture("zwei.js"))
	assert.Empty(t, h.sent.requests)

	h.coordinator.OnRendererReady(ctx, "r1", catalog, nil)

	selects := h.sent.ofType(protocol.SelectFixture)
	require.Len(t, selects, 1)
	payload := selects[0].Payload.(protocol.SelectFixturePayload)
	assert.Equal(t, protocol.RendererID("r1"), payload.RendererID)
	assert.True(t, payload.FixtureID.Equal(*fixture("zwei.js")))
	assert.Empty(t, payload.FixtureState)
}

func TestNoSelectionSendsNothingOnReady(t *testing.T) {
	h := newHarness(t)

	h.coordinator.OnRendererReady(context.Background(), "r1", catalog, nil)
	assert.Empty(t, h.sent.requests)
}

func TestConnectNotification(t *testing.T) {
	h := newHarness(t)

	h.coordinator.OnRendererReady(context.Background(), "r1", catalog, nil)

	list := h.notifier.Notifications()
	require.Len(t, list, 1)
	assert.Equal(t, "renderer-connect-r1", list[0].ID)
	assert.Equal(t, notifications.TypeInfo, list[0].Type)
	assert.Equal(t, "Renderer connected", list[0].Title)
	assert.Equal(t, "Your fixtures are ready to use.", list[0].Info)
}

func TestSelectFixtureBroadcastsAndResetsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coordinator.OnRendererReady(ctx, "r1", catalog, nil)
	h.coordinator.OnRendererReady(ctx, "r2", catalog, nil)
	h.router.SelectFixture(ctx, fixture("ein.js"))
	h.coordinator.OnFixtureStateChange(ctx, "r1", *fixture("ein.js"), protocol.FixtureState{"props": 1})
	h.sent.reset()

	h.router.SelectFixture(ctx, fixture("zwei.js"))

	selects := h.sent.ofType(protocol.SelectFixture)
	require.Len(t, selects, 2)
	for i, want := range []protocol.RendererID{"r1", "r2"} {
		payload := selects[i].Payload.(protocol.SelectFixturePayload)
		assert.Equal(t, want, payload.RendererID)
		assert.Empty(t, payload.FixtureState)
	}
	assert.Empty(t, h.coordinator.State().FixtureState)

	h.sent.reset()
	h.router.UnselectFixture(ctx)
	assert.Len(t, h.sent.ofType(protocol.UnselectFixture), 2)
	assert.Nil(t, h.coordinator.State().SelectedFixtureID)
}

func TestReselectingSameFixtureKeepsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coordinator.OnRendererReady(ctx, "r1", catalog, nil)
	h.router.SelectFixture(ctx, fixture("ein.js"))
	h.coordinator.OnFixtureStateChange(ctx, "r1", *fixture("ein.js"), protocol.FixtureState{"props": 1})
	h.sent.reset()

	h.coordinator.SelectFixture(ctx, fixture("ein.js"))

	selects := h.sent.ofType(protocol.SelectFixture)
	require.Len(t, selects, 1)
	assert.Equal(t, protocol.FixtureState{"props": 1}, selects[0].Payload.(protocol.SelectFixturePayload).FixtureState)
}

func TestFixtureStateChangePropagatesToOthers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coordinator.OnRendererReady(ctx, "r1", catalog, nil)
	h.coordinator.OnRendererReady(ctx, "r2", catalog, nil)
	h.router.SelectFixture(ctx, fixture("ein.js"))
	h.sent.reset()

	h.coordinator.OnFixtureStateChange(ctx, "r1", *fixture("ein.js"), protocol.FixtureState{"props": "a", "viewport": 320})
	h.coordinator.OnFixtureStateChange(ctx, "r1", *fixture("ein.js"), protocol.FixtureState{"props": "b"})

	assert.Equal(t, protocol.FixtureState{"props": "b", "viewport": 320}, h.coordinator.State().FixtureState)

	updates := h.sent.ofType(protocol.SetFixtureState)
	require.Len(t, updates, 2)
	last := updates[1].Payload.(protocol.SetFixtureStatePayload)
	assert.Equal(t, protocol.RendererID("r2"), last.RendererID)
	assert.Equal(t, protocol.FixtureState{"props": "b", "viewport": 320}, last.FixtureState)
}

func TestFixtureStateChangeIgnoredWhenStale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coordinator.OnRendererReady(ctx, "r1", catalog, nil)
	h.coordinator.OnRendererReady(ctx, "r2", catalog, nil)
	h.router.SelectFixture(ctx, fixture("ein.js"))
	h.sent.reset()

	h.coordinator.OnFixtureStateChange(ctx, "gone", *fixture("ein.js"), protocol.FixtureState{"props": 1})
	h.coordinator.OnFixtureStateChange(ctx, "r2", *fixture("ein.js"), protocol.FixtureState{"props": 2})
	h.coordinator.OnFixtureStateChange(ctx, "r1", *fixture("zwei.js"), protocol.FixtureState{"props": 3})

	assert.Empty(t, h.coordinator.State().FixtureState)
	assert.Empty(t, h.sent.requests)
	assert.InDelta(t, 1, testutil.ToFloat64(h.coordinator.metrics.dropped.WithLabelValues("unknown_renderer")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.coordinator.metrics.dropped.WithLabelValues("secondary_renderer")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.coordinator.metrics.dropped.WithLabelValues("other_fixture")), 0)
}

func TestSetFixtureState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coordinator.OnRendererReady(ctx, "r1", catalog, nil)
	h.coordinator.OnRendererReady(ctx, "r2", catalog, nil)

	h.coordinator.SetFixtureState(ctx, func(prev protocol.FixtureState) protocol.FixtureState {
		prev["controls"] = "ignored"
		return prev
	})
	assert.Empty(t, h.coordinator.State().FixtureState)
	assert.Empty(t, h.sent.requests)

	h.router.SelectFixture(ctx, fixture("ein.js"))
	h.sent.reset()

	h.coordinator.SetFixtureState(ctx, func(prev protocol.FixtureState) protocol.FixtureState {
		prev["controls"] = map[string]any{"label": "hi"}
		return prev
	})

	assert.Equal(t, protocol.FixtureState{"controls": map[string]any{"label": "hi"}}, h.coordinator.State().FixtureState)
	assert.Len(t, h.sent.ofType(protocol.SetFixtureState), 2)
}

func TestPrimaryDisconnectPromotesOldest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coordinator.OnRendererReady(ctx, "r1", catalog, nil)
	h.coordinator.OnRendererReady(ctx, "r2", catalog, nil)
	h.coordinator.OnRendererReady(ctx, "r3", catalog, nil)
	h.router.SelectFixture(ctx, fixture("ein.js"))
	h.coordinator.OnFixtureStateChange(ctx, "r1", *fixture("ein.js"), protocol.FixtureState{"props": 1})

	h.coordinator.OnRendererDisconnect(ctx, "r1")

	state := h.coordinator.State()
	require.NotNil(t, state.PrimaryRendererID)
	assert.Equal(t, protocol.RendererID("r2"), *state.PrimaryRendererID)
	assert.Equal(t, []protocol.RendererID{"r2", "r3"}, state.ConnectedRendererIDs.IDs())
	assert.Equal(t, protocol.FixtureState{"props": 1}, state.FixtureState)

	// The promoted renderer now owns the fixture state.
	h.coordinator.OnFixtureStateChange(ctx, "r2", *fixture("ein.js"), protocol.FixtureState{"props": 2})
	assert.Equal(t, protocol.FixtureState{"props": 2}, h.coordinator.State().FixtureState)

	h.coordinator.OnRendererDisconnect(ctx, "r3")
	h.coordinator.OnRendererDisconnect(ctx, "r2")

	state = h.coordinator.State()
	assert.Nil(t, state.PrimaryRendererID)
	assert.Zero(t, state.ConnectedRendererIDs.Len())
	assert.Len(t, state.Fixtures, 2)

	h.coordinator.OnRendererReady(ctx, "r4", catalog, nil)
	require.NotNil(t, h.coordinator.State().PrimaryRendererID)
	assert.Equal(t, protocol.RendererID("r4"), *h.coordinator.State().PrimaryRendererID)
}

func TestDisconnectNotificationAndUnknownRenderer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coordinator.OnRendererDisconnect(ctx, "nobody")
	assert.Empty(t, h.notifier.Notifications())

	h.coordinator.OnRendererReady(ctx, "r1", catalog, nil)
	h.coordinator.OnRendererDisconnect(ctx, "r1")

	list := h.notifier.Notifications()
	require.Len(t, list, 2)
	assert.Equal(t, "renderer-disconnect-r1", list[1].ID)
	assert.Equal(t, "Renderer disconnected", list[1].Title)
}

func TestReloadRenderers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coordinator.ReloadRenderers(ctx)
	assert.Empty(t, h.sent.requests)

	h.coordinator.OnRendererReady(ctx, "r1", catalog, nil)
	h.coordinator.OnRendererReady(ctx, "r2", catalog, nil)
	h.coordinator.ReloadRenderers(ctx)

	reloads := h.sent.ofType(protocol.ReloadRenderer)
	require.Len(t, reloads, 1)
	assert.Equal(t, []protocol.RendererID{"r1", "r2"}, reloads[0].Payload.(protocol.ReloadRendererPayload).RendererIDs)
}

func TestRendererResponsesFromBus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	emit := func(msgType string, payload any) {
		msg, err := protocol.NewMessage(msgType, payload)
		require.NoError(t, err)
		h.svc.Emit(ctx, protocol.SocketRendererResponse, msg)
	}

	emit(protocol.RendererReady, protocol.RendererReadyPayload{RendererID: "r1", Fixtures: catalog, InitialFixtureID: fixture("ein.js")})
	emit(protocol.RendererReady, protocol.RendererReadyPayload{RendererID: "r2", Fixtures: catalog})
	emit(protocol.FixtureStateChange, protocol.FixtureStateChangePayload{
		RendererID:   "r1",
		FixtureID:    *fixture("ein.js"),
		FixtureState: protocol.FixtureState{"props": "x"},
	})
	emit("somethingElse", nil)
	h.svc.Emit(ctx, protocol.SocketRendererResponse, protocol.Message{Type: protocol.RendererReady, Payload: []byte(`{"rendererId":`)})
	emit(protocol.RendererDisconnect, protocol.RendererDisconnectPayload{RendererID: "r2"})

	state := h.coordinator.State()
	assert.Equal(t, []protocol.RendererID{"r1"}, state.ConnectedRendererIDs.IDs())
	assert.Equal(t, protocol.FixtureState{"props": "x"}, state.FixtureState)
	assert.True(t, protocol.SameFixture(fixture("ein.js"), state.SelectedFixtureID))
}

func TestStateSnapshotIsDetached(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.coordinator.OnRendererReady(ctx, "r1", catalog, nil)
	snapshot := h.coordinator.State()
	snapshot.Fixtures["evil.js"] = protocol.FixtureDescriptor{}
	snapshot.FixtureState["props"] = "mutated"
	*snapshot.PrimaryRendererID = "other"

	state := h.coordinator.State()
	assert.NotContains(t, state.Fixtures, "evil.js")
	assert.Empty(t, state.FixtureState)
	assert.Equal(t, protocol.RendererID("r1"), *state.PrimaryRendererID)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Dependencies{})
	assert.ErrorIs(t, err, errspkg.ErrRuntimeRequired)

	svc, _ := runtimetest.NewService(t, nil)
	_, err = New(svc, Dependencies{Sender: &sentRequests{}})
	assert.ErrorIs(t, err, errspkg.ErrDependencyRequired)
}
