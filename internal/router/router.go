// Package router keeps the fixtureId query parameter of the playground
// location in step with the selected fixture.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/fixtureflow/internal/protocol"
	"github.com/drblury/fixtureflow/internal/runtime"
	errspkg "github.com/drblury/fixtureflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/fixtureflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/fixtureflow/internal/runtime/logging"
)

const (
	// FixtureIDParam is the query parameter holding the selected fixture.
	FixtureIDParam = "fixtureId"
	// EventFixtureChange is emitted with a *protocol.FixtureID (nil for no
	// selection) after every location change.
	EventFixtureChange = "fixtureChange"
)

var errMissingFixturePath = errors.New("fixture id without path")

// Router maps the location to the selected fixture and back.
type Router struct {
	svc      *runtime.Service
	location *Location
	logger   loggingpkg.ServiceLogger
	changes  *prometheus.CounterVec
}

// New binds a router to location. From now on every location change emits
// EventFixtureChange on svc.
func New(svc *runtime.Service, location *Location) (*Router, error) {
	if svc == nil {
		return nil, errspkg.ErrRuntimeRequired
	}
	if location == nil {
		location = NewLocation(url.URL{Path: "/"})
	}

	changes, err := runtime.RegisterCollector(svc.Registerer(), runtime.NewCounterVec(
		"router", "location_changes_total", "Location changes by resulting selection.", []string{"selection"},
	))
	if err != nil {
		return nil, err
	}

	r := &Router{
		svc:      svc,
		location: location,
		logger:   svc.Logger.With(loggingpkg.LogFields{"component": "router"}),
		changes:  changes,
	}
	location.setOnChange(r.locationChanged)
	return r, nil
}

// Location returns the location the router is bound to.
func (r *Router) Location() *Location {
	return r.location
}

// SelectFixture navigates to id, or to no selection for nil.
func (r *Router) SelectFixture(ctx context.Context, id *protocol.FixtureID) {
	next, err := withFixtureID(r.location.Current(), id)
	if err != nil {
		r.logger.Error("Failed to encode fixture id", err, loggingpkg.LogFields{"fixture_id": id.String()})
		return
	}
	r.location.Push(ctx, next)
}

// UnselectFixture navigates to no selection.
func (r *Router) UnselectFixture(ctx context.Context) {
	r.SelectFixture(ctx, nil)
}

// SelectedFixtureID decodes the current location.
func (r *Router) SelectedFixtureID() *protocol.FixtureID {
	return r.decode(r.location.Current())
}

func (r *Router) locationChanged(ctx context.Context, current url.URL) {
	id := r.decode(current)
	if id == nil {
		r.changes.WithLabelValues("none").Inc()
	} else {
		r.changes.WithLabelValues("fixture").Inc()
	}
	r.svc.Emit(ctx, EventFixtureChange, id)
}

func (r *Router) decode(u url.URL) *protocol.FixtureID {
	id, err := fixtureIDFromQuery(u.Query())
	if err != nil {
		r.logger.Debug("Ignoring malformed fixture id", loggingpkg.LogFields{
			"raw":   u.Query().Get(FixtureIDParam),
			"error": err.Error(),
		})
		return nil
	}
	return id
}

// ParseURL returns the fixture selected by a playground URL, or nil.
func ParseURL(raw string) (*protocol.FixtureID, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse playground url: %w", err)
	}
	return fixtureIDFromQuery(u.Query())
}

// FixtureURL returns base with its fixtureId parameter set to id, or removed
// for nil.
func FixtureURL(base string, id *protocol.FixtureID) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse playground url: %w", err)
	}
	next, err := withFixtureID(*u, id)
	if err != nil {
		return "", err
	}
	return next.String(), nil
}

func fixtureIDFromQuery(query url.Values) (*protocol.FixtureID, error) {
	raw := query.Get(FixtureIDParam)
	if raw == "" {
		return nil, nil
	}
	var id *protocol.FixtureID
	if err := jsoncodec.UnmarshalString(raw, &id); err != nil {
		return nil, fmt.Errorf("decode %s: %w", FixtureIDParam, err)
	}
	if id != nil && id.Path == "" {
		return nil, errMissingFixturePath
	}
	return id, nil
}

func withFixtureID(u url.URL, id *protocol.FixtureID) (url.URL, error) {
	query := u.Query()
	if id == nil {
		query.Del(FixtureIDParam)
	} else {
		encoded, err := jsoncodec.MarshalString(id)
		if err != nil {
			return url.URL{}, err
		}
		query.Set(FixtureIDParam, encoded)
	}
	u.RawQuery = query.Encode()
	return u, nil
}
