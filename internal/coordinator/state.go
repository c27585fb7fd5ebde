package coordinator

import (
	"cmp"
	"slices"

	"github.com/drblury/fixtureflow/internal/protocol"
	jsoncodec "github.com/drblury/fixtureflow/internal/runtime/jsoncodec"
)

// RendererSet is an immutable set of connected renderers. Each member keeps
// the sequence number of its first announcement.
type RendererSet struct {
	members map[protocol.RendererID]uint64
}

// Has reports whether id is a member.
func (s RendererSet) Has(id protocol.RendererID) bool {
	_, ok := s.members[id]
	return ok
}

// Len returns the number of members.
func (s RendererSet) Len() int {
	return len(s.members)
}

// IDs returns the members, longest connected first.
func (s RendererSet) IDs() []protocol.RendererID {
	ids := make([]protocol.RendererID, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b protocol.RendererID) int {
		return cmp.Compare(s.members[a], s.members[b])
	})
	return ids
}

// MarshalJSON encodes the set as an ordered array of ids.
func (s RendererSet) MarshalJSON() ([]byte, error) {
	return jsoncodec.Marshal(s.IDs())
}

// with returns a set that also holds id. Existing members keep their sequence.
func (s RendererSet) with(id protocol.RendererID, seq uint64) RendererSet {
	if s.Has(id) {
		return s
	}
	next := make(map[protocol.RendererID]uint64, len(s.members)+1)
	for member, memberSeq := range s.members {
		next[member] = memberSeq
	}
	next[id] = seq
	return RendererSet{members: next}
}

func (s RendererSet) without(id protocol.RendererID) RendererSet {
	if !s.Has(id) {
		return s
	}
	next := make(map[protocol.RendererID]uint64, len(s.members)-1)
	for member, memberSeq := range s.members {
		if member != id {
			next[member] = memberSeq
		}
	}
	return RendererSet{members: next}
}

// oldest returns the longest connected member.
func (s RendererSet) oldest() (protocol.RendererID, bool) {
	ids := s.IDs()
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

// State is the coordinator's record. It is replaced wholesale on every
// update; the maps it holds are never mutated once committed.
type State struct {
	ConnectedRendererIDs RendererSet           `json:"connectedRendererIds"`
	PrimaryRendererID    *protocol.RendererID  `json:"primaryRendererId"`
	Fixtures             protocol.FixtureList  `json:"fixtures"`
	FixtureState         protocol.FixtureState `json:"fixtureState"`
	SelectedFixtureID    *protocol.FixtureID   `json:"selectedFixtureId"`
}

// IsPrimary reports whether id is the primary renderer.
func (s State) IsPrimary(id protocol.RendererID) bool {
	return s.PrimaryRendererID != nil && *s.PrimaryRendererID == id
}

// Clone returns a copy callers may modify freely.
func (s State) Clone() State {
	out := State{
		ConnectedRendererIDs: s.ConnectedRendererIDs,
		Fixtures:             s.Fixtures.Clone(),
		FixtureState:         s.FixtureState.Clone(),
		SelectedFixtureID:    s.SelectedFixtureID.Clone(),
	}
	if s.PrimaryRendererID != nil {
		primary := *s.PrimaryRendererID
		out.PrimaryRendererID = &primary
	}
	return out
}

func initialState() State {
	return State{
		Fixtures:     protocol.FixtureList{},
		FixtureState: protocol.FixtureState{},
	}
}
