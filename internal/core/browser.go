// Package core composes the backend client, both panes and the orchestrator
// into the Browser that frontends drive.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rescale/dualpane/internal/api"
	"github.com/rescale/dualpane/internal/config"
	"github.com/rescale/dualpane/internal/constants"
	"github.com/rescale/dualpane/internal/events"
	"github.com/rescale/dualpane/internal/localfs"
	"github.com/rescale/dualpane/internal/logging"
	"github.com/rescale/dualpane/internal/models"
	"github.com/rescale/dualpane/internal/pathutil"
	"github.com/rescale/dualpane/internal/services"
	"github.com/rescale/dualpane/internal/state"
)

// Backend is everything the browser needs from the backend API.
// *api.Client implements it.
type Backend interface {
	services.RemoteFileSystem
	GetStatus(ctx context.Context) (*models.SessionStatus, error)
	Shutdown(ctx context.Context) error
}

// Browser is the dual-pane browser: a local pane, a remote pane, the
// session status and the mutation orchestrator.
type Browser struct {
	backend  Backend
	eventBus *events.EventBus
	logger   *logging.Logger

	local  *services.PaneController
	remote *services.PaneController
	orch   *services.TransferOrchestrator

	mu           sync.RWMutex
	session      *models.SessionStatus
	statusMsg    string
	statusErr    bool
	disconnected bool
}

// New creates a Browser talking to the backend configured in cfg.
func New(cfg *config.Config, logger *logging.Logger) (*Browser, error) {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	client, err := api.NewClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	return NewWithBackend(client, events.NewEventBus(0), logger), nil
}

// NewWithBackend creates a Browser over an arbitrary backend.
func NewWithBackend(backend Backend, eventBus *events.EventBus, logger *logging.Logger) *Browser {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	local := services.NewPaneController(state.NewPaneState(models.DomainLocal, pathutil.Root(models.DomainLocal), eventBus), backend, logger)
	remote := services.NewPaneController(state.NewPaneState(models.DomainRemote, pathutil.RemoteRoot, eventBus), backend, logger)

	return &Browser{
		backend:   backend,
		eventBus:  eventBus,
		logger:    logger.Component("browser"),
		local:     local,
		remote:    remote,
		orch:      services.NewTransferOrchestrator(backend, local, remote, eventBus, logger),
		statusMsg: constants.StatusReady,
	}
}

// Events returns the bus on which pane, mutation and status events are published.
func (b *Browser) Events() *events.EventBus {
	return b.eventBus
}

// Local returns the controller of the local pane.
func (b *Browser) Local() *services.PaneController {
	return b.local
}

// Remote returns the controller of the remote pane.
func (b *Browser) Remote() *services.PaneController {
	return b.remote
}

// Pane returns the controller for domain.
func (b *Browser) Pane(domain models.Domain) *services.PaneController {
	if domain == models.DomainLocal {
		return b.local
	}
	return b.remote
}

// Orchestrator returns the mutation orchestrator.
func (b *Browser) Orchestrator() *services.TransferOrchestrator {
	return b.orch
}

// Start fetches the session status once, seeds the local pane with the
// download directory and loads both panes. If the status cannot be fetched
// both panes stay empty and the error becomes the status message.
func (b *Browser) Start(ctx context.Context) error {
	b.setStatus(constants.StatusLoading, false)

	status, err := b.backend.GetStatus(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to load session status")
		b.setError(err)
		return err
	}

	b.mu.Lock()
	b.session = status
	b.mu.Unlock()

	b.logger.Info().
		Bool("connected", status.Connected).
		Str("connection", status.Connection).
		Str("download_dir", status.DownloadDir).
		Msg("session loaded")

	localStart := status.DownloadDir
	if localStart == "" {
		localStart = localfs.HomeDir()
	}
	// The download dir is the local pane's path even if listing it fails.
	if err := b.local.Seed(localStart); err != nil {
		b.setError(err)
		return err
	}

	var wg sync.WaitGroup
	var localErr, remoteErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		localErr = b.local.SetPath(ctx, localStart)
	}()
	go func() {
		defer wg.Done()
		remoteErr = b.remote.SetPath(ctx, pathutil.RemoteRoot)
	}()
	wg.Wait()

	if err := errors.Join(localErr, remoteErr); err != nil {
		b.setError(err)
		return err
	}
	b.setStatus(constants.StatusReady, false)
	return nil
}

// Session returns the session status loaded by Start.
func (b *Browser) Session() (models.SessionStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil {
		return models.SessionStatus{}, false
	}
	return *b.session, true
}

// Refresh reloads both panes.
func (b *Browser) Refresh(ctx context.Context) error {
	b.setStatus(constants.StatusLoading, false)
	err := errors.Join(ignoreSuperseded(b.local.Reload(ctx)), ignoreSuperseded(b.remote.Reload(ctx)))
	if err != nil {
		b.setError(err)
		return err
	}
	b.setStatus(constants.StatusReady, false)
	return nil
}

// Navigate opens path in the pane of domain.
func (b *Browser) Navigate(ctx context.Context, domain models.Domain, path string) error {
	return b.track(b.Pane(domain).SetPath(ctx, path))
}

// Up moves the pane of domain to its parent directory.
func (b *Browser) Up(ctx context.Context, domain models.Domain) error {
	return b.track(b.Pane(domain).NavigateUp(ctx))
}

// Open navigates into the named directory of the pane of domain.
func (b *Browser) Open(ctx context.Context, domain models.Domain, name string) error {
	pane := b.Pane(domain)
	entry, ok := pane.Pane().FindByName(name)
	if !ok {
		return b.track(api.NewError(api.KindNotFound, "open", "no entry named "+name))
	}
	if !entry.IsDir {
		return b.track(api.NewError(api.KindInvalid, "open", name+" is not a directory"))
	}
	return b.track(pane.NavigateInto(ctx, entry))
}

// SelectByName selects the named entry of the pane of domain.
func (b *Browser) SelectByName(domain models.Domain, name string) error {
	pane := b.Pane(domain)
	entry, ok := pane.Pane().FindByName(name)
	if !ok {
		return b.track(api.NewError(api.KindNotFound, "select", "no entry named "+name))
	}
	return b.track(pane.Select(entry))
}

// Upload uploads the local selection into the remote pane's directory.
func (b *Browser) Upload(ctx context.Context) (*services.MutationResult, error) {
	sel, ok := b.local.Pane().Selection()
	if !ok {
		return nil, b.track(services.ErrNoSelection)
	}
	b.setStatus(constants.StatusUploading, false)

	res, err := b.orch.Upload(ctx, sel, b.remote.Pane().CurrentPath())
	if err != nil {
		b.setStatus("Upload failed: "+displayMessage(err), true)
		return nil, err
	}
	b.settle(res, constants.StatusUploadDone)
	return res, nil
}

// Download downloads the remote selection into the session's download directory.
func (b *Browser) Download(ctx context.Context) (*services.MutationResult, error) {
	sel, ok := b.remote.Pane().Selection()
	if !ok {
		return nil, b.track(services.ErrNoSelection)
	}
	b.setStatus(constants.StatusDownloading, false)

	res, err := b.orch.Download(ctx, sel)
	if err != nil {
		b.setStatus("Download failed: "+displayMessage(err), true)
		return nil, err
	}
	b.settle(res, "Downloaded to: "+res.Target)
	return res, nil
}

// Mkdir creates a folder in the remote pane's directory.
func (b *Browser) Mkdir(ctx context.Context, name string) (*services.MutationResult, error) {
	res, err := b.orch.Mkdir(ctx, b.remote.Pane().CurrentPath(), name)
	if err != nil {
		return nil, b.track(err)
	}
	b.settle(res, "Created "+res.Target)
	return res, nil
}

// Rename renames the remote selection. A nil result means nothing changed.
func (b *Browser) Rename(ctx context.Context, newName string) (*services.MutationResult, error) {
	sel, ok := b.remote.Pane().Selection()
	if !ok {
		return nil, b.track(services.ErrNoSelection)
	}
	res, err := b.orch.Rename(ctx, sel, newName)
	if err != nil {
		return nil, b.track(err)
	}
	if res != nil {
		b.settle(res, "Renamed to "+res.Target)
	}
	return res, nil
}

// Delete deletes the remote selection.
func (b *Browser) Delete(ctx context.Context) (*services.MutationResult, error) {
	sel, ok := b.remote.Pane().Selection()
	if !ok {
		return nil, b.track(services.ErrNoSelection)
	}
	res, err := b.orch.Delete(ctx, sel)
	if err != nil {
		return nil, b.track(err)
	}
	b.settle(res, "Deleted "+sel.Name)
	return res, nil
}

// Shutdown ends the backend session. The browser is considered disconnected
// afterwards even if the request failed.
func (b *Browser) Shutdown(ctx context.Context) error {
	err := b.backend.Shutdown(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("shutdown request failed")
	}

	b.mu.Lock()
	b.disconnected = true
	b.mu.Unlock()
	b.setStatus(constants.StatusDisconnected, false)
	return err
}

// Disconnected reports whether Shutdown has been called.
func (b *Browser) Disconnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.disconnected
}

// StatusMessage returns the status bar text and whether it reports an error.
func (b *Browser) StatusMessage() (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.statusMsg, b.statusErr
}

// settle records a successful mutation, noting a failed follow-up reload.
func (b *Browser) settle(res *services.MutationResult, msg string) {
	if res.ReloadErr != nil {
		b.setStatus(msg+" (refresh failed: "+displayMessage(res.ReloadErr)+")", true)
		return
	}
	b.setStatus(msg, false)
}

// track mirrors err into the status message and returns it unchanged.
func (b *Browser) track(err error) error {
	switch {
	case err == nil:
		b.setStatus(constants.StatusReady, false)
	case errors.Is(err, services.ErrSuperseded):
	default:
		b.setError(err)
	}
	return err
}

func (b *Browser) setError(err error) {
	b.setStatus("Error: "+displayMessage(err), true)
}

// displayMessage strips the operation prefix from backend errors.
func displayMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func (b *Browser) setStatus(msg string, isError bool) {
	b.mu.Lock()
	b.statusMsg = msg
	b.statusErr = isError
	b.mu.Unlock()

	b.eventBus.PublishStatus(msg, isError)
}

func ignoreSuperseded(err error) error {
	if errors.Is(err, services.ErrSuperseded) {
		return nil
	}
	return err
}
