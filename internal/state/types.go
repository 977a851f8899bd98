// Package state provides observable pane state. Containers publish events on
// every change so any frontend can subscribe and re-render.
package state

import (
	"github.com/rescale/dualpane/internal/events"
	"github.com/rescale/dualpane/internal/models"
)

// Pane event types
const (
	EventPaneListingChanged   events.EventType = "pane_listing_changed"
	EventPaneLoading          events.EventType = "pane_loading"
	EventPaneError            events.EventType = "pane_error"
	EventPaneSelectionChanged events.EventType = "pane_selection_changed"
	EventPanePathChanged      events.EventType = "pane_path_changed"
)

// Status is the load state of a pane.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusError   Status = "error"
)

// ListingChangedEvent is published when a pane receives a new listing.
type ListingChangedEvent struct {
	events.BaseEvent
	Domain  models.Domain
	Path    string
	Entries []models.FileEntry
}

// LoadingEvent is published when a pane starts loading a path.
type LoadingEvent struct {
	events.BaseEvent
	Domain models.Domain
	Path   string
}

// ErrorEvent is published when a listing fails.
type ErrorEvent struct {
	events.BaseEvent
	Domain models.Domain
	Path   string // the path that failed, not the retained current path
	Error  error
}

// SelectionChangedEvent is published when the selection changes.
// Selection is nil when cleared.
type SelectionChangedEvent struct {
	events.BaseEvent
	Domain    models.Domain
	Selection *models.FileEntry
}

// PathChangedEvent is published when the current path changes.
type PathChangedEvent struct {
	events.BaseEvent
	Domain  models.Domain
	OldPath string
	NewPath string
}

func newListingChangedEvent(domain models.Domain, path string, entries []models.FileEntry) *ListingChangedEvent {
	return &ListingChangedEvent{
		BaseEvent: events.NewBase(EventPaneListingChanged),
		Domain:    domain,
		Path:      path,
		Entries:   entries,
	}
}

func newLoadingEvent(domain models.Domain, path string) *LoadingEvent {
	return &LoadingEvent{
		BaseEvent: events.NewBase(EventPaneLoading),
		Domain:    domain,
		Path:      path,
	}
}

func newErrorEvent(domain models.Domain, path string, err error) *ErrorEvent {
	return &ErrorEvent{
		BaseEvent: events.NewBase(EventPaneError),
		Domain:    domain,
		Path:      path,
		Error:     err,
	}
}

func newSelectionChangedEvent(domain models.Domain, sel *models.FileEntry) *SelectionChangedEvent {
	return &SelectionChangedEvent{
		BaseEvent: events.NewBase(EventPaneSelectionChanged),
		Domain:    domain,
		Selection: sel,
	}
}

func newPathChangedEvent(domain models.Domain, oldPath, newPath string) *PathChangedEvent {
	return &PathChangedEvent{
		BaseEvent: events.NewBase(EventPanePathChanged),
		Domain:    domain,
		OldPath:   oldPath,
		NewPath:   newPath,
	}
}
