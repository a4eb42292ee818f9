package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/dl-alexandre/memora/internal/api"
	"github.com/dl-alexandre/memora/internal/logging"
	"github.com/dl-alexandre/memora/internal/sync/scanner"
	"github.com/dl-alexandre/memora/internal/types"
	"github.com/dl-alexandre/memora/internal/utils"
)

// ErrMissingUploadTarget is returned when create succeeds for a file but the
// service hands back no upload_target
var ErrMissingUploadTarget = errors.New("create response has no upload_target")

// Phase names the step of a pipeline run that failed
type Phase string

const (
	PhaseRegister Phase = "register"
	PhaseCreate   Phase = "create"
	PhaseTransfer Phase = "transfer"
	PhaseFinalize Phase = "finalize"
	PhaseIndex    Phase = "index"
)

// PhaseError reports which phase of which path failed
type PhaseError struct {
	Phase Phase
	Path  string
	// RecordID is set once create has succeeded; the record is left OPEN remotely
	RecordID string
	Err      error
}

func (e *PhaseError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("%s %s (record %s): %v", e.Phase, e.Path, e.RecordID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Phase, e.Path, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status of the failed remote call, or 0
func (e *PhaseError) HTTPStatus() int {
	var appErr *utils.AppError
	if errors.As(e.Err, &appErr) {
		return appErr.CLIError.HTTPStatus
	}
	var statusErr *api.StatusError
	if errors.As(e.Err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// Remote is the metadata service and content channel
type Remote interface {
	CreateRecord(ctx context.Context, reqCtx *types.RequestContext, req types.CreateRecordRequest) (*types.SyncRecord, error)
	UpdateRecord(ctx context.Context, reqCtx *types.RequestContext, id string, req types.UpdateRecordRequest) (*types.SyncRecord, error)
	Transfer(ctx context.Context, reqCtx *types.RequestContext, target, path string) error
}

// Index is where fully synced paths are recorded
type Index interface {
	Put(ctx context.Context, path string, record *types.SyncRecord) error
}

// Executor mirrors single entries to the metadata service
type Executor struct {
	remote Remote
	index  Index
	logger logging.Logger
}

func New(remote Remote, idx Index, logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Executor{
		remote: remote,
		index:  idx,
		logger: logger,
	}
}

// RegisterDirectory creates a DIRECTORY record and indexes it
func (e *Executor) RegisterDirectory(ctx context.Context, entry scanner.Entry) (*types.SyncRecord, error) {
	logger := e.logger.WithContext(ctx)

	req := types.CreateRecordRequest{
		Name:      entry.Name,
		Directory: entry.Directory,
		Kind:      types.KindDirectory,
		Status:    types.StatusOpen,
	}
	record, err := e.remote.CreateRecord(ctx, api.NewRequestContext(ctx, entry.Path, types.RequestTypeCreate), req)
	if err != nil {
		return nil, e.fail(logger, &PhaseError{Phase: PhaseRegister, Path: entry.Path, Err: err})
	}
	record.Complete(req)

	if err := e.index.Put(ctx, entry.Path, record); err != nil {
		return nil, e.fail(logger, &PhaseError{Phase: PhaseIndex, Path: entry.Path, RecordID: record.ID, Err: err})
	}

	logger.Info("Directory registered",
		logging.F("path", entry.Path),
		logging.F("recordId", record.ID),
	)
	return record, nil
}

// UploadFile runs create, transfer and finalize in order, then indexes the
// record returned by create
func (e *Executor) UploadFile(ctx context.Context, entry scanner.Entry) (*types.SyncRecord, error) {
	logger := e.logger.WithContext(ctx)

	req := types.CreateRecordRequest{
		Name:      entry.Name,
		Directory: entry.Directory,
		Kind:      types.KindFile,
		Status:    types.StatusOpen,
	}
	record, err := e.remote.CreateRecord(ctx, api.NewRequestContext(ctx, entry.Path, types.RequestTypeCreate), req)
	if err != nil {
		return nil, e.fail(logger, &PhaseError{Phase: PhaseCreate, Path: entry.Path, Err: err})
	}
	// Finalize and the index entry carry the kind this agent asked for
	record.Complete(req)
	if record.UploadTarget == "" {
		return nil, e.fail(logger, &PhaseError{Phase: PhaseCreate, Path: entry.Path, RecordID: record.ID, Err: ErrMissingUploadTarget})
	}

	if err := e.remote.Transfer(ctx, api.NewRequestContext(ctx, entry.Path, types.RequestTypeTransfer), record.UploadTarget, entry.Path); err != nil {
		return nil, e.fail(logger, &PhaseError{Phase: PhaseTransfer, Path: entry.Path, RecordID: record.ID, Err: err})
	}

	if _, err := e.remote.UpdateRecord(ctx, api.NewRequestContext(ctx, entry.Path, types.RequestTypeFinalize), record.ID, record.CloseRequest()); err != nil {
		return nil, e.fail(logger, &PhaseError{Phase: PhaseFinalize, Path: entry.Path, RecordID: record.ID, Err: err})
	}

	if err := e.index.Put(ctx, entry.Path, record); err != nil {
		return nil, e.fail(logger, &PhaseError{Phase: PhaseIndex, Path: entry.Path, RecordID: record.ID, Err: err})
	}

	logger.Info("File uploaded",
		logging.F("path", entry.Path),
		logging.F("recordId", record.ID),
		logging.F("size", entry.Size),
	)
	return record, nil
}

func (e *Executor) fail(logger logging.Logger, perr *PhaseError) error {
	fields := []logging.Field{
		logging.F("phase", string(perr.Phase)),
		logging.F("path", perr.Path),
		logging.F("error", perr.Err),
	}
	if status := perr.HTTPStatus(); status != 0 {
		fields = append(fields, logging.F("httpStatus", status))
	}
	if perr.RecordID != "" && perr.Phase != PhaseIndex {
		fields = append(fields, logging.F("orphanedRecordId", perr.RecordID))
	}
	logger.Error("Sync failed", fields...)
	return perr
}
