// Package rpc implements the gateway to the backup daemon: a single named
// JSON-RPC 2.0 endpoint reached over HTTP POST. Every domain operation in the
// console reduces to one Call with a method name and a JSON params object;
// the daemon owns all response shapes.
//
// The gateway is deliberately dynamic. The daemon's method surface evolves
// independently of the console, and responses are backend-defined JSON, so
// there is no static schema to generate a client from. Decoding into domain
// types happens at the caller, against internal/types.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/keepdeck-io/keepdeck/internal/metrics"
)

// Caller is the one operation every other component consumes. Implemented by
// Gateway (production) and by the simulator (local development and tests).
type Caller interface {
	// Call invokes method on the daemon with params marshaled as the JSON-RPC
	// params object and returns the raw result. A transport or daemon error
	// is returned as a non-nil error; logical success/failure of mutating
	// methods is part of the result payload, not the error.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// Daemon method names. These are the wire-visible identifiers; the console
// never invents methods outside this set.
const (
	MethodCreateBackupPlan     = "create_backup_plan"
	MethodListBackupPlan       = "list_backup_plan"
	MethodGetBackupPlan        = "get_backup_plan"
	MethodUpdateBackupPlan     = "update_backup_plan"
	MethodRemoveBackupPlan     = "remove_backup_plan"
	MethodCreateBackupTask     = "create_backup_task"
	MethodCreateRestoreTask    = "create_restore_task"
	MethodListBackupTask       = "list_backup_task"
	MethodGetTaskInfo          = "get_task_info"
	MethodResumeBackupTask     = "resume_backup_task"
	MethodPauseBackupTask      = "pause_backup_task"
	MethodRemoveBackupTask     = "remove_backup_task"
	MethodValidatePath         = "validate_path"
	MethodListFilesInTask      = "list_files_in_task"
	MethodListChunksInFile     = "list_chunks_in_file"
	MethodCreateBackupTarget   = "create_backup_target"
	MethodListBackupTarget     = "list_backup_target"
	MethodGetBackupTarget      = "get_backup_target"
	MethodUpdateBackupTarget   = "update_backup_target"
	MethodRemoveBackupTarget   = "remove_backup_target"
	MethodConsumeSizeSummary   = "consume_size_summary"
	MethodStatisticsSummary    = "statistics_summary"
	MethodListDirectoryChildren = "list_directory_children"
	MethodListLogs             = "list_logs"
)

// Config holds the parameters needed to reach the daemon endpoint.
type Config struct {
	// Endpoint is the daemon's JSON-RPC HTTP URL (e.g. "http://127.0.0.1:7180/rpc").
	Endpoint string

	// Timeout bounds a single call end to end. Zero disables the bound,
	// matching daemons that stream slow aggregate queries.
	Timeout time.Duration
}

// Gateway is the production Caller. It is safe for concurrent use; request
// IDs are drawn from an atomic counter.
//
// The zero value is not usable — create instances with NewGateway.
type Gateway struct {
	cfg     Config
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
	nextID  atomic.Uint64
}

// NewGateway creates a Gateway. metrics may be nil.
func NewGateway(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Gateway {
	return &Gateway{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.Named("rpc"),
		metrics: m,
	}
}

// request is the JSON-RPC 2.0 request envelope.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// response is the JSON-RPC 2.0 response envelope. Exactly one of Result and
// Error is set on a conforming daemon.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *CallError      `json:"error"`
}

// Call implements Caller.
func (g *Gateway) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	start := time.Now()
	result, err := g.call(ctx, method, params)
	g.metrics.ObserveRPC(method, err, time.Since(start))

	if err != nil {
		g.logger.Warn("rpc call failed",
			zap.String("method", method),
			zap.Error(err),
		)
		return nil, err
	}

	g.logger.Debug("rpc call",
		zap.String("method", method),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (g *Gateway) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if params == nil {
		// The daemon requires a params object on every method, even ones
		// that take no arguments.
		params = struct{}{}
	}

	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      g.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rpc: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused, then fail on status.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("rpc: %s: unexpected HTTP status %d", method, resp.StatusCode)
	}

	var envelope response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("rpc: %s: decode response: %w", method, err)
	}

	if envelope.Error != nil {
		envelope.Error.Method = method
		return nil, envelope.Error
	}

	return envelope.Result, nil
}

// mutationResult is the daemon's convention for mutating methods: logical
// success is reported in-band rather than via the JSON-RPC error object.
type mutationResult struct {
	Result string `json:"result"`
}

// MutationOK decodes a mutating method's result and reports whether the
// daemon accepted the mutation. Any value other than "success" is a logical
// failure, surfaced as false without an error.
func MutationOK(raw json.RawMessage) (bool, error) {
	var r mutationResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return false, fmt.Errorf("rpc: decode mutation result: %w", err)
	}
	return r.Result == "success", nil
}
