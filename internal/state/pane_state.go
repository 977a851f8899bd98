package state

import (
	"sync"

	"github.com/rescale/dualpane/internal/events"
	"github.com/rescale/dualpane/internal/models"
)

// PaneState is the observable state of one browser pane: its current path,
// the listing in backend order, and at most one selected entry.
//
// A present selection always refers to an entry of the current listing.
// Thread-safe for concurrent access.
type PaneState struct {
	domain   models.Domain
	eventBus *events.EventBus

	currentPath string
	entries     []models.FileEntry
	selection   *models.FileEntry
	status      Status
	lastError   error

	mu sync.RWMutex
}

// Snapshot is a consistent copy of a pane for rendering.
type Snapshot struct {
	Domain      models.Domain
	CurrentPath string
	Entries     []models.FileEntry
	Selection   *models.FileEntry
	Status      Status
	LastError   error
}

// NewPaneState creates an empty pane positioned at initialPath.
func NewPaneState(domain models.Domain, initialPath string, eventBus *events.EventBus) *PaneState {
	return &PaneState{
		domain:      domain,
		eventBus:    eventBus,
		currentPath: initialPath,
		entries:     make([]models.FileEntry, 0),
		status:      StatusIdle,
	}
}

// Domain returns which side this pane shows.
func (s *PaneState) Domain() models.Domain {
	return s.domain
}

// CurrentPath returns the directory the pane is showing.
func (s *PaneState) CurrentPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentPath
}

// Entries returns a copy of the current listing.
func (s *PaneState) Entries() []models.FileEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.FileEntry, len(s.entries))
	copy(result, s.entries)
	return result
}

// Selection returns the selected entry, if any.
func (s *PaneState) Selection() (models.FileEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selection == nil {
		return models.FileEntry{}, false
	}
	return *s.selection, true
}

// Status returns the load state.
func (s *PaneState) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastError returns the error of the most recent failed load, if the pane is in StatusError.
func (s *PaneState) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Snapshot returns a consistent copy of the whole pane.
func (s *PaneState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Domain:      s.domain,
		CurrentPath: s.currentPath,
		Entries:     make([]models.FileEntry, len(s.entries)),
		Status:      s.status,
		LastError:   s.lastError,
	}
	copy(snap.Entries, s.entries)
	if s.selection != nil {
		sel := *s.selection
		snap.Selection = &sel
	}
	return snap
}

// SetCurrentPath moves the pane to path without a listing. The entries and
// selection are dropped since they belong to the previous path.
func (s *PaneState) SetCurrentPath(path string) {
	s.mu.Lock()
	oldPath := s.currentPath
	s.currentPath = path
	s.entries = make([]models.FileEntry, 0)
	hadSelection := s.selection != nil
	s.selection = nil
	s.mu.Unlock()

	if oldPath != path {
		s.eventBus.Publish(newPathChangedEvent(s.domain, oldPath, path))
	}
	if hadSelection {
		s.eventBus.Publish(newSelectionChangedEvent(s.domain, nil))
	}
}

// SetLoading marks the pane as loading path.
func (s *PaneState) SetLoading(path string) {
	s.mu.Lock()
	s.status = StatusLoading
	s.mu.Unlock()

	s.eventBus.Publish(newLoadingEvent(s.domain, path))
}

// ApplyListing replaces the listing and moves the pane to path.
// The selection survives only if an entry with the same path is in the new
// listing, in which case it is re-pointed at that entry.
func (s *PaneState) ApplyListing(path string, entries []models.FileEntry) {
	s.mu.Lock()
	oldPath := s.currentPath
	s.currentPath = path
	s.entries = make([]models.FileEntry, len(entries))
	copy(s.entries, entries)
	s.status = StatusIdle
	s.lastError = nil

	oldSel := s.selection
	s.selection = nil
	if oldSel != nil {
		if i := indexOf(s.entries, oldSel.Path); i >= 0 {
			sel := s.entries[i]
			s.selection = &sel
		}
	}
	selChanged := !sameSelection(oldSel, s.selection)
	sel := copySelection(s.selection)
	listing := make([]models.FileEntry, len(s.entries))
	copy(listing, s.entries)
	s.mu.Unlock()

	if oldPath != path {
		s.eventBus.Publish(newPathChangedEvent(s.domain, oldPath, path))
	}
	s.eventBus.Publish(newListingChangedEvent(s.domain, path, listing))
	if selChanged {
		s.eventBus.Publish(newSelectionChangedEvent(s.domain, sel))
	}
}

// SetError records a failed load of path. The current path, listing and
// selection are left untouched.
func (s *PaneState) SetError(path string, err error) {
	s.mu.Lock()
	s.status = StatusError
	s.lastError = err
	s.mu.Unlock()

	if err != nil {
		s.eventBus.Publish(newErrorEvent(s.domain, path, err))
	}
}

// Select selects the listing entry whose path matches entry.Path.
// It returns false, leaving the selection unchanged, if no such entry exists.
func (s *PaneState) Select(entry models.FileEntry) bool {
	s.mu.Lock()
	i := indexOf(s.entries, entry.Path)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	oldSel := s.selection
	sel := s.entries[i]
	s.selection = &sel
	changed := !sameSelection(oldSel, s.selection)
	out := copySelection(s.selection)
	s.mu.Unlock()

	if changed {
		s.eventBus.Publish(newSelectionChangedEvent(s.domain, out))
	}
	return true
}

// ClearSelection removes the selection.
func (s *PaneState) ClearSelection() {
	s.mu.Lock()
	had := s.selection != nil
	s.selection = nil
	s.mu.Unlock()

	if had {
		s.eventBus.Publish(newSelectionChangedEvent(s.domain, nil))
	}
}

// FindByName returns the listing entry with the given name.
func (s *PaneState) FindByName(name string) (models.FileEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Name == name {
			return e, true
		}
	}
	return models.FileEntry{}, false
}

// FindByPath returns the listing entry with the given path.
func (s *PaneState) FindByPath(path string) (models.FileEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.entries, path); i >= 0 {
		return s.entries[i], true
	}
	return models.FileEntry{}, false
}

// Count returns the number of entries.
func (s *PaneState) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func indexOf(entries []models.FileEntry, path string) int {
	for i, e := range entries {
		if e.Path == path {
			return i
		}
	}
	return -1
}

func sameSelection(a, b *models.FileEntry) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copySelection(sel *models.FileEntry) *models.FileEntry {
	if sel == nil {
		return nil
	}
	c := *sel
	return &c
}
