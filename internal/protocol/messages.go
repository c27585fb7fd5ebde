package protocol

// RendererReadyPayload announces a renderer and its fixture catalog.
type RendererReadyPayload struct {
	RendererID       RendererID  `json:"rendererId"`
	Fixtures         FixtureList `json:"fixtures"`
	InitialFixtureID *FixtureID  `json:"initialFixtureId,omitempty"`
}

// FixtureStateChangePayload reports a fixture state edit made inside a renderer.
type FixtureStateChangePayload struct {
	RendererID   RendererID   `json:"rendererId"`
	FixtureID    FixtureID    `json:"fixtureId"`
	FixtureState FixtureState `json:"fixtureState"`
}

// RendererDisconnectPayload reports that a renderer went away.
type RendererDisconnectPayload struct {
	RendererID RendererID `json:"rendererId"`
}

// SelectFixturePayload asks a renderer to render a fixture.
type SelectFixturePayload struct {
	RendererID   RendererID   `json:"rendererId"`
	FixtureID    FixtureID    `json:"fixtureId"`
	FixtureState FixtureState `json:"fixtureState"`
}

// UnselectFixturePayload asks a renderer to clear its selection.
type UnselectFixturePayload struct {
	RendererID RendererID `json:"rendererId"`
}

// SetFixtureStatePayload pushes fixture state to a renderer.
type SetFixtureStatePayload struct {
	RendererID   RendererID   `json:"rendererId"`
	FixtureID    FixtureID    `json:"fixtureId"`
	FixtureState FixtureState `json:"fixtureState"`
}

// ReloadRendererPayload asks renderers to reload themselves.
type ReloadRendererPayload struct {
	RendererIDs []RendererID `json:"rendererIds"`
}

// RendererRequest is an outbound message to renderers.
type RendererRequest struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// NewSelectFixture builds a selectFixture request. state is copied.
func NewSelectFixture(rendererID RendererID, fixtureID FixtureID, state FixtureState) RendererRequest {
	return RendererRequest{
		Type: SelectFixture,
		Payload: SelectFixturePayload{
			RendererID:   rendererID,
			FixtureID:    *fixtureID.Clone(),
			FixtureState: state.Clone(),
		},
	}
}

// NewUnselectFixture builds an unselectFixture request.
func NewUnselectFixture(rendererID RendererID) RendererRequest {
	return RendererRequest{
		Type:    UnselectFixture,
		Payload: UnselectFixturePayload{RendererID: rendererID},
	}
}

// NewSetFixtureState builds a setFixtureState request. state is copied.
func NewSetFixtureState(rendererID RendererID, fixtureID FixtureID, state FixtureState) RendererRequest {
	return RendererRequest{
		Type: SetFixtureState,
		Payload: SetFixtureStatePayload{
			RendererID:   rendererID,
			FixtureID:    *fixtureID.Clone(),
			FixtureState: state.Clone(),
		},
	}
}

// NewReloadRenderer builds a reloadRenderer request.
func NewReloadRenderer(rendererIDs []RendererID) RendererRequest {
	ids := make([]RendererID, len(rendererIDs))
	copy(ids, rendererIDs)
	return RendererRequest{
		Type:    ReloadRenderer,
		Payload: ReloadRendererPayload{RendererIDs: ids},
	}
}
