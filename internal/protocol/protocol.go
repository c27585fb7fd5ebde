// Package protocol defines the messages exchanged between the playground and
// its renderers over the dev server channel.
package protocol

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/fixtureflow/internal/runtime/jsoncodec"
)

// Socket events carried by the duplex channel.
const (
	SocketServerMessage    = "serverMessage"
	SocketRendererResponse = "rendererResponse"
	SocketRendererRequest  = "rendererRequest"
)

// Renderer response types.
const (
	RendererReady      = "rendererReady"
	FixtureStateChange = "fixtureStateChange"
	RendererDisconnect = "rendererDisconnect"
)

// Renderer request types.
const (
	SelectFixture   = "selectFixture"
	UnselectFixture = "unselectFixture"
	SetFixtureState = "setFixtureState"
	ReloadRenderer  = "reloadRenderer"
)

// Server message types the playground reacts to.
const (
	BuildStart = "buildStart"
	BuildError = "buildError"
	BuildDone  = "buildDone"
)

// RendererID identifies one renderer instance. Renderers generate their own.
type RendererID string

// FixtureID addresses a fixture file and, for multi fixtures, one named export.
type FixtureID struct {
	Path string  `json:"path"`
	Name *string `json:"name,omitempty"`
}

// NewFixtureID builds a FixtureID; an empty name means no named variant.
func NewFixtureID(path, name string) FixtureID {
	id := FixtureID{Path: path}
	if name != "" {
		id.Name = &name
	}
	return id
}

// Equal compares by value, including the optional name.
func (f FixtureID) Equal(other FixtureID) bool {
	if f.Path != other.Path {
		return false
	}
	if f.Name == nil || other.Name == nil {
		return f.Name == nil && other.Name == nil
	}
	return *f.Name == *other.Name
}

func (f FixtureID) String() string {
	if f.Name == nil {
		return f.Path
	}
	return f.Path + "#" + *f.Name
}

// Clone returns a deep copy, or nil for nil.
func (f *FixtureID) Clone() *FixtureID {
	if f == nil {
		return nil
	}
	out := FixtureID{Path: f.Path}
	if f.Name != nil {
		name := *f.Name
		out.Name = &name
	}
	return &out
}

// SameFixture compares two optional fixture ids. Two nils are the same.
func SameFixture(a, b *FixtureID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Fixture descriptor kinds.
const (
	FixtureTypeSingle = "single"
	FixtureTypeMulti  = "multi"
)

// FixtureDescriptor describes one fixture file in the catalog.
type FixtureDescriptor struct {
	Type         string   `json:"type"`
	FixtureNames []string `json:"fixtureNames,omitempty"`
}

// FixtureList maps fixture file paths to their descriptors.
type FixtureList map[string]FixtureDescriptor

// Clone returns a copy that shares nothing with f.
func (f FixtureList) Clone() FixtureList {
	if f == nil {
		return FixtureList{}
	}
	out := make(FixtureList, len(f))
	for path, desc := range f {
		out[path] = FixtureDescriptor{Type: desc.Type, FixtureNames: slices.Clone(desc.FixtureNames)}
	}
	return out
}

// Contains reports whether id refers to a fixture of the catalog.
func (f FixtureList) Contains(id FixtureID) bool {
	desc, ok := f[id.Path]
	if !ok {
		return false
	}
	if id.Name == nil {
		return desc.Type != FixtureTypeMulti
	}
	return slices.Contains(desc.FixtureNames, *id.Name)
}

// FixtureState is the per-fixture UI state keyed by top-level concern
// (props, controls, viewport, ...).
type FixtureState map[string]any

// Clone returns a shallow copy; nested values are shared.
func (s FixtureState) Clone() FixtureState {
	if s == nil {
		return FixtureState{}
	}
	return maps.Clone(s)
}

// Merge returns a copy of s with the top-level keys of patch replaced.
func (s FixtureState) Merge(patch FixtureState) FixtureState {
	out := s.Clone()
	for key, value := range patch {
		out[key] = value
	}
	return out
}

// Message is the envelope of every message on the channel.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage encodes payload into a Message of the given type.
func NewMessage(msgType string, payload any) (Message, error) {
	if msgType == "" {
		return Message{}, errspkg.ErrMessageTypeRequired
	}
	msg := Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	raw, err := jsoncodec.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	msg.Payload = raw
	return msg, nil
}

// DecodePayload decodes the payload of msg into T.
func DecodePayload[T any](msg Message) (T, error) {
	var out T
	if len(msg.Payload) == 0 {
		return out, fmt.Errorf("decode %s payload: empty payload", msg.Type)
	}
	if err := jsoncodec.Unmarshal(msg.Payload, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", msg.Type, err)
	}
	return out, nil
}
