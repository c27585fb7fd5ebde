package handlers

import (
	loggingpkg "github.com/drblury/fixtureflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/fixtureflow/internal/runtime/metadata"
)

// MessageContextBase carries the headers and logger shared by every frame handler.
type MessageContextBase struct {
	Metadata metadatapkg.Metadata
	Logger   loggingpkg.ServiceLogger
}

// CloneMetadata returns a copy of the current headers.
func (b MessageContextBase) CloneMetadata() metadatapkg.Metadata {
	return b.Metadata.Clone()
}

// Get retrieves a header value by key.
func (b MessageContextBase) Get(key string) string {
	return b.Metadata[key]
}

// CorrelationID returns the correlation id stamped by the router, if any.
func (b MessageContextBase) CorrelationID() string {
	return b.Metadata[metadatapkg.KeyCorrelationID]
}

// ConnectionID returns the id of the channel that delivered the frame.
func (b MessageContextBase) ConnectionID() string {
	return b.Metadata.ConnectionID()
}
