package services

import (
	"context"
	"sync"

	"github.com/rescale/dualpane/internal/api"
	"github.com/rescale/dualpane/internal/logging"
	"github.com/rescale/dualpane/internal/models"
	"github.com/rescale/dualpane/internal/pathutil"
	"github.com/rescale/dualpane/internal/state"
)

// PaneController drives one PaneState: it issues listings, applies the ones
// that are still current and keeps the selection consistent.
type PaneController struct {
	pane   *state.PaneState
	lister Lister
	logger *logging.Logger

	mu  sync.Mutex
	seq uint64 // token of the most recent SetPath
}

// NewPaneController creates a controller owning pane.
func NewPaneController(pane *state.PaneState, lister Lister, logger *logging.Logger) *PaneController {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &PaneController{
		pane:   pane,
		lister: lister,
		logger: logger.Component("pane-" + string(pane.Domain())),
	}
}

// Pane returns the state owned by this controller.
func (c *PaneController) Pane() *state.PaneState {
	return c.pane
}

// Domain returns the domain of the pane.
func (c *PaneController) Domain() models.Domain {
	return c.pane.Domain()
}

// SetPath lists path and, on success, makes it the pane's current path.
// On failure the previous path and listing are kept and the error is returned.
// If another SetPath was issued while this one was in flight, the result is
// discarded and ErrSuperseded is returned.
func (c *PaneController) SetPath(ctx context.Context, path string) error {
	domain := c.pane.Domain()
	path = pathutil.Clean(domain, path)
	if path == "" {
		return api.NewError(api.KindInvalid, "list", "path is empty")
	}

	c.mu.Lock()
	c.seq++
	token := c.seq
	c.mu.Unlock()

	c.pane.SetLoading(path)
	c.logger.Debug().Str("path", path).Uint64("seq", token).Msg("listing")

	entries, err := c.lister.List(ctx, domain, path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if token != c.seq {
		c.logger.Debug().Str("path", path).Uint64("seq", token).Msg("discarding stale listing")
		return ErrSuperseded
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("listing failed")
		c.pane.SetError(path, err)
		return err
	}

	c.pane.ApplyListing(path, entries)
	return nil
}

// Seed positions the pane at path without listing it, so a later Reload
// targets path even if the first listing fails. Any in-flight listing is
// superseded.
func (c *PaneController) Seed(path string) error {
	path = pathutil.Clean(c.pane.Domain(), path)
	if path == "" {
		return api.NewError(api.KindInvalid, "list", "path is empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.pane.SetCurrentPath(path)
	return nil
}

// NavigateInto opens entry if it is a directory. Files are ignored.
func (c *PaneController) NavigateInto(ctx context.Context, entry models.FileEntry) error {
	if !entry.IsDir {
		return nil
	}
	return c.SetPath(ctx, entry.Path)
}

// NavigateUp moves to the parent of the current path. At the root the
// root is simply reloaded.
func (c *PaneController) NavigateUp(ctx context.Context) error {
	return c.SetPath(ctx, pathutil.Parent(c.pane.Domain(), c.pane.CurrentPath()))
}

// Reload lists the current path again.
func (c *PaneController) Reload(ctx context.Context) error {
	return c.SetPath(ctx, c.pane.CurrentPath())
}

// Select selects entry, which must be part of the current listing.
func (c *PaneController) Select(entry models.FileEntry) error {
	if !c.pane.Select(entry) {
		return api.NewError(api.KindInvalid, "select", "entry is not in the current listing: "+entry.Path)
	}
	return nil
}

// ClearSelection removes the selection.
func (c *PaneController) ClearSelection() {
	c.pane.ClearSelection()
}
