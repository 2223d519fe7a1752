package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/keepdeck-io/keepdeck/internal/rpc"
)

// Config holds the simulator's behavior knobs. The zero value gets sane
// demo-mode defaults from New.
type Config struct {
	// TransferRate is the simulated throughput in bytes per second while a
	// task is RUNNING. Zero means DefaultTransferRate.
	TransferRate int64

	// TaskSize is the TotalSize assigned to new backup tasks. Zero means
	// DefaultTaskSize.
	TaskSize int64

	// StartDelay is how long a task stays PENDING before its first observed
	// snapshot flips it to RUNNING. Zero means start immediately.
	StartDelay time.Duration
}

const (
	// DefaultTransferRate is ~48 MiB/s, a plausible disk-to-disk figure.
	DefaultTransferRate int64 = 48 << 20

	// DefaultTaskSize makes a demo backup finish in a dozen or so seconds
	// at the default rate.
	DefaultTaskSize int64 = 512 << 20
)

// Backend implements rpc.Caller over an in-memory database, simulating the
// daemon's full method surface. Progress is time-driven: every observed
// snapshot of a RUNNING task advances completed_size by the configured rate
// times the elapsed wall time, so polls see plausible motion without any
// background goroutine.
//
// The zero value is not usable — create instances with New.
type Backend struct {
	cfg    Config
	db     *gorm.DB
	logger *zap.Logger

	// mu serializes calls. The daemon serializes mutations too, and a single
	// lock keeps the advance-then-read sequence atomic.
	mu sync.Mutex

	// fs is the virtual filesystem served by validate_path and
	// list_directory_children, keyed by absolute directory path.
	fs map[string][]fsNode

	// now is swapped in tests to drive progress deterministically.
	now func() time.Time
}

type fsNode struct {
	name  string
	isDir bool
	size  int64
}

// New creates a simulator backend with a fresh in-memory database.
func New(cfg Config, logger *zap.Logger) (*Backend, error) {
	if cfg.TransferRate <= 0 {
		cfg.TransferRate = DefaultTransferRate
	}
	if cfg.TaskSize <= 0 {
		cfg.TaskSize = DefaultTaskSize
	}

	log := logger.Named("simulator")
	db, err := openStore(log)
	if err != nil {
		return nil, err
	}

	return &Backend{
		cfg:    cfg,
		db:     db,
		logger: log,
		fs:     defaultTree(),
		now:    time.Now,
	}, nil
}

// handler is one method implementation. Params arrive re-marshaled as JSON so
// callers can pass any Go value, exactly as the HTTP gateway would.
type handler func(ctx context.Context, params json.RawMessage) (any, error)

// Call implements rpc.Caller.
func (b *Backend) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, &rpc.CallError{Code: rpc.CodeInvalidParams, Message: err.Error(), Method: method}
	}

	h := b.route(method)
	if h == nil {
		return nil, &rpc.CallError{Code: rpc.CodeMethodNotFound, Message: "unknown method " + method, Method: method}
	}

	b.mu.Lock()
	result, err := h(ctx, raw)
	b.mu.Unlock()

	if err != nil {
		var ce *rpc.CallError
		if !asCallError(err, &ce) {
			b.logger.Error("simulated method failed", zap.String("method", method), zap.Error(err))
			err = &rpc.CallError{Code: rpc.CodeInternal, Message: err.Error()}
			ce = err.(*rpc.CallError)
		}
		ce.Method = method
		return nil, err
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, &rpc.CallError{Code: rpc.CodeInternal, Message: err.Error(), Method: method}
	}
	return out, nil
}

func (b *Backend) route(method string) handler {
	switch method {
	case rpc.MethodCreateBackupPlan:
		return b.createBackupPlan
	case rpc.MethodListBackupPlan:
		return b.listBackupPlan
	case rpc.MethodGetBackupPlan:
		return b.getBackupPlan
	case rpc.MethodUpdateBackupPlan:
		return b.updateBackupPlan
	case rpc.MethodRemoveBackupPlan:
		return b.removeBackupPlan
	case rpc.MethodCreateBackupTask:
		return b.createBackupTask
	case rpc.MethodCreateRestoreTask:
		return b.createRestoreTask
	case rpc.MethodListBackupTask:
		return b.listBackupTask
	case rpc.MethodGetTaskInfo:
		return b.getTaskInfo
	case rpc.MethodResumeBackupTask:
		return b.resumeBackupTask
	case rpc.MethodPauseBackupTask:
		return b.pauseBackupTask
	case rpc.MethodRemoveBackupTask:
		return b.removeBackupTask
	case rpc.MethodValidatePath:
		return b.validatePath
	case rpc.MethodListFilesInTask:
		return b.listFilesInTask
	case rpc.MethodListChunksInFile:
		return b.listChunksInFile
	case rpc.MethodCreateBackupTarget:
		return b.createBackupTarget
	case rpc.MethodListBackupTarget:
		return b.listBackupTarget
	case rpc.MethodGetBackupTarget:
		return b.getBackupTarget
	case rpc.MethodUpdateBackupTarget:
		return b.updateBackupTarget
	case rpc.MethodRemoveBackupTarget:
		return b.removeBackupTarget
	case rpc.MethodConsumeSizeSummary:
		return b.consumeSizeSummary
	case rpc.MethodStatisticsSummary:
		return b.statisticsSummary
	case rpc.MethodListDirectoryChildren:
		return b.listDirectoryChildren
	case rpc.MethodListLogs:
		return b.listLogs
	}
	return nil
}

// asCallError is errors.As specialized to *rpc.CallError without importing
// errors in every handler file.
func asCallError(err error, target **rpc.CallError) bool {
	ce, ok := err.(*rpc.CallError)
	if ok {
		*target = ce
	}
	return ok
}

// notFound builds the daemon's application-level missing-entity error.
func notFound(kind, id string) error {
	return &rpc.CallError{Code: rpc.CodeNotFound, Message: fmt.Sprintf("%s %s not found", kind, id)}
}

// invalidParams builds the standard invalid-params error.
func invalidParams(msg string) error {
	return &rpc.CallError{Code: rpc.CodeInvalidParams, Message: msg}
}

// decode unmarshals a params object, mapping failures to invalid-params.
func decode(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return invalidParams(err.Error())
	}
	return nil
}

// success is the shared mutation verdict payload.
var success = map[string]string{"result": "success"}

// ignored reports a mutation the daemon refused without treating it as an
// error, e.g. pausing a task that is not running.
var ignored = map[string]string{"result": "ignored"}
