package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/fixtureflow/internal/runtime/config"
	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
	"github.com/drblury/fixtureflow/transport"
)

type recorder struct {
	mu     sync.Mutex
	frames []string
}

func (r *recorder) listener(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, string(data))
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

func TestPipeDeliversInOrder(t *testing.T) {
	a, b := Pipe(nil)
	t.Cleanup(func() { _ = a.Close() })

	rec := &recorder{}
	b.On("serverMessage", rec.listener)

	for _, msg := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		require.NoError(t, a.Emit(context.Background(), "serverMessage", []byte(msg)))
	}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}, rec.snapshot())
}

func TestEmitDoesNotWaitForListeners(t *testing.T) {
	a, b := Pipe(nil)
	t.Cleanup(func() { _ = a.Close() })

	release := make(chan struct{})
	b.On("rendererRequest", func([]byte) { <-release })

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Emit(context.Background(), "rendererRequest", []byte(`{}`))
		_ = a.Emit(context.Background(), "rendererRequest", []byte(`{}`))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a slow listener")
	}
	close(release)
}

func TestCloseStopsBothEnds(t *testing.T) {
	a, b := Pipe(nil)

	rec := &recorder{}
	a.On("serverMessage", rec.listener)

	require.NoError(t, b.Close())
	require.NoError(t, a.Close())

	assert.ErrorIs(t, a.Emit(context.Background(), "x", []byte(`{}`)), errspkg.ErrChannelClosed)
	assert.ErrorIs(t, b.Emit(context.Background(), "serverMessage", []byte(`{}`)), errspkg.ErrChannelClosed)

	for _, ep := range []*Endpoint{a, b} {
		select {
		case <-ep.Done():
		case <-time.After(time.Second):
			t.Fatal("endpoint kept delivering after close")
		}
	}
	assert.Empty(t, rec.snapshot())
}

func TestEmitValidatesFrames(t *testing.T) {
	a, _ := Pipe(nil)
	t.Cleanup(func() { _ = a.Close() })

	assert.Error(t, a.Emit(context.Background(), "", []byte(`{}`)))
	assert.Error(t, a.Emit(context.Background(), "serverMessage", []byte(`{"type":`)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.Emit(ctx, "serverMessage", []byte(`{}`)), context.Canceled)
}

func TestHubDialHandsServerEndToAccept(t *testing.T) {
	hub := NewHub()
	accepted := make(chan transport.Channel, 1)
	hub.OnAccept(func(server transport.Channel) { accepted <- server })

	reg := transport.NewRegistry()
	reg.RegisterWithCapabilities(TransportName, hub.Dial, Capabilities())

	cfg := &configpkg.Config{Transport: configpkg.TransportMemory}
	client, err := reg.Dial(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	server := <-accepted
	rec := &recorder{}
	client.On("serverMessage", rec.listener)
	require.NoError(t, server.Emit(context.Background(), "serverMessage", []byte(`{"type":"buildStart"}`)))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, hub.Accepted(), 1)
}

func TestRegisteredWithDefaultRegistry(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, transport.MemoryCapabilities, transport.GetCapabilities(TransportName))
}
