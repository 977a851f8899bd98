package services

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/rescale/dualpane/internal/api"
	"github.com/rescale/dualpane/internal/events"
	"github.com/rescale/dualpane/internal/logging"
	"github.com/rescale/dualpane/internal/models"
	"github.com/rescale/dualpane/internal/pathutil"
)

// TransferOrchestrator runs mutations against the remote side and refreshes
// the affected pane afterwards.
//
// At most one mutation runs at a time. A request made while another is in
// flight fails immediately with api.KindBusy instead of queueing. The
// follow-up reload runs before the lock is released, so reloads of two
// mutations never interleave.
type TransferOrchestrator struct {
	client   RemoteFileSystem
	local    *PaneController
	remote   *PaneController
	eventBus *events.EventBus
	logger   *logging.Logger

	busy sync.Mutex
}

// NewTransferOrchestrator wires the orchestrator to both pane controllers.
func NewTransferOrchestrator(client RemoteFileSystem, local, remote *PaneController, eventBus *events.EventBus, logger *logging.Logger) *TransferOrchestrator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &TransferOrchestrator{
		client:   client,
		local:    local,
		remote:   remote,
		eventBus: eventBus,
		logger:   logger.Component("orchestrator"),
	}
}

// Upload copies localEntry into remoteDir, then reloads the remote pane.
func (o *TransferOrchestrator) Upload(ctx context.Context, localEntry models.FileEntry, remoteDir string) (*MutationResult, error) {
	if localEntry.Path == "" {
		return nil, ErrNoSelection
	}
	if localEntry.IsDir {
		return nil, api.NewError(api.KindInvalid, string(OpUpload), "directories cannot be uploaded")
	}
	if remoteDir == "" {
		return nil, api.NewError(api.KindInvalid, string(OpUpload), "remote directory is empty")
	}

	return o.run(ctx, OpUpload, localEntry.Path, o.remote, func(ctx context.Context) (string, error) {
		return o.client.Upload(ctx, localEntry.Path, remoteDir)
	})
}

// Download copies remoteEntry into the session's download directory, then
// reloads the local pane.
func (o *TransferOrchestrator) Download(ctx context.Context, remoteEntry models.FileEntry) (*MutationResult, error) {
	if remoteEntry.Path == "" {
		return nil, ErrNoSelection
	}
	if remoteEntry.IsDir {
		return nil, api.NewError(api.KindInvalid, string(OpDownload), "directories cannot be downloaded")
	}

	return o.run(ctx, OpDownload, remoteEntry.Path, o.local, func(ctx context.Context) (string, error) {
		return o.client.Download(ctx, remoteEntry.Path)
	})
}

// Mkdir creates name under parentPath on the remote side.
func (o *TransferOrchestrator) Mkdir(ctx context.Context, parentPath, name string) (*MutationResult, error) {
	if !pathutil.ValidName(models.DomainRemote, name) {
		return nil, api.NewError(api.KindInvalid, string(OpMkdir), "invalid folder name: "+name)
	}
	if parentPath == "" {
		return nil, api.NewError(api.KindInvalid, string(OpMkdir), "parent path is empty")
	}

	child := pathutil.Join(models.DomainRemote, parentPath, name)
	return o.run(ctx, OpMkdir, parentPath, o.remote, func(ctx context.Context) (string, error) {
		return child, o.client.Mkdir(ctx, child)
	})
}

// Rename renames entry within its parent directory. An empty name or the
// current name is a no-op and returns a nil result.
func (o *TransferOrchestrator) Rename(ctx context.Context, entry models.FileEntry, newName string) (*MutationResult, error) {
	if entry.Path == "" {
		return nil, ErrNoSelection
	}
	if newName == "" || newName == entry.Name {
		return nil, nil
	}
	if !pathutil.ValidName(models.DomainRemote, newName) {
		return nil, api.NewError(api.KindInvalid, string(OpRename), "invalid name: "+newName)
	}

	parent := pathutil.Parent(models.DomainRemote, entry.Path)
	newPath := pathutil.Join(models.DomainRemote, parent, newName)
	return o.run(ctx, OpRename, entry.Path, o.remote, func(ctx context.Context) (string, error) {
		return newPath, o.client.Rename(ctx, entry.Path, newPath)
	})
}

// Delete removes entry (recursively for directories) from the remote side.
func (o *TransferOrchestrator) Delete(ctx context.Context, entry models.FileEntry) (*MutationResult, error) {
	if entry.Path == "" {
		return nil, ErrNoSelection
	}
	if pathutil.IsRoot(models.DomainRemote, entry.Path) {
		return nil, api.NewError(api.KindInvalid, string(OpDelete), "refusing to delete the root directory")
	}

	return o.run(ctx, OpDelete, entry.Path, o.remote, func(ctx context.Context) (string, error) {
		return "", o.client.Delete(ctx, entry.Path)
	})
}

// Busy reports whether a mutation is currently running.
func (o *TransferOrchestrator) Busy() bool {
	if o.busy.TryLock() {
		o.busy.Unlock()
		return false
	}
	return true
}

// run holds the mutation lock for the backend call and the reload of pane.
func (o *TransferOrchestrator) run(ctx context.Context, op MutationOp, source string, pane *PaneController, call func(context.Context) (string, error)) (*MutationResult, error) {
	id := uuid.NewString()

	if !o.busy.TryLock() {
		o.logger.Info().Str("op", string(op)).Str("source", source).Msg("rejected: another operation is in progress")
		o.publish(events.EventMutationRejected, id, op, source, "", nil)
		return nil, api.NewError(api.KindBusy, string(op), "another operation is in progress")
	}
	defer o.busy.Unlock()

	o.logger.Info().Str("id", id).Str("op", string(op)).Str("source", source).Msg("mutation started")
	o.publish(events.EventMutationStarted, id, op, source, "", nil)

	target, err := call(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Str("id", id).Str("op", string(op)).Str("kind", string(api.KindOf(err))).Msg("mutation failed")
		o.publish(events.EventMutationFailed, id, op, source, target, err)
		return nil, err
	}

	result := &MutationResult{ID: id, Op: op, Source: source, Target: target}
	if err := pane.Reload(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		o.logger.Warn().Err(err).Str("id", id).Str("pane", string(pane.Domain())).Msg("reload after mutation failed")
		result.ReloadErr = err
	}

	o.logger.Info().Str("id", id).Str("op", string(op)).Str("target", target).Msg("mutation completed")
	o.publish(events.EventMutationCompleted, id, op, source, target, nil)
	return result, nil
}

func (o *TransferOrchestrator) publish(t events.EventType, id string, op MutationOp, source, target string, err error) {
	o.eventBus.Publish(&events.MutationEvent{
		BaseEvent: events.NewBase(t),
		ID:        id,
		Op:        string(op),
		Source:    source,
		Target:    target,
		Error:     err,
	})
}
