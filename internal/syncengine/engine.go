// Package syncengine applies accepted configuration edits: it validates
// against the entry's control, persists the new value, writes it through
// the file format layer and, when the key is hot-applicable, pushes it to
// the live server over RCON.
//
// The file is the source of truth. A failed file write rolls the entry
// back completely; a failed remote dispatch keeps the file change and
// downgrades to a pending restart. Nothing is retried silently.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/craftdeck/craftdeck/internal/configstore"
	"github.com/craftdeck/craftdeck/internal/observability"
	"github.com/craftdeck/craftdeck/internal/rcon"
	"github.com/craftdeck/craftdeck/internal/reader"
	"github.com/craftdeck/craftdeck/internal/serverlock"
	"github.com/craftdeck/craftdeck/pkg/models"
)

var (
	// ErrValidationFailed is returned when an edit violates the entry's
	// bounds or option set. The stored entry and file are unchanged.
	ErrValidationFailed = errors.New("sync: validation failed")

	// ErrWriteFailed is returned when the file write fails. The entry has
	// been rolled back to its pre-edit state.
	ErrWriteFailed = errors.New("sync: file write failed")
)

// Outcome distinguishes the two ways an accepted edit can land. Calling
// code must handle both; an edit that only reached the file is not lost,
// it is waiting on a restart.
type Outcome string

const (
	// OutcomeApplied means the file was updated and, if needed, the live
	// server accepted the change. Nothing further is required.
	OutcomeApplied Outcome = "applied"

	// OutcomePendingRestart means the file was updated but the live
	// server has not picked up the change; a restart will reconcile.
	OutcomePendingRestart Outcome = "pending_restart"
)

// ApplyResult reports one accepted edit.
type ApplyResult struct {
	Entry   *models.ConfigEntry `json:"entry"`
	Outcome Outcome             `json:"outcome"`

	// Clamped is set when a slider value was pulled into bounds.
	Clamped bool `json:"clamped,omitempty"`

	// RemoteErr carries the RCON failure when Outcome is PendingRestart
	// because dispatch failed. It is a warning, not an error.
	RemoteErr string `json:"remote_error,omitempty"`
}

// Engine applies edits. Configuration state lives in the store, so
// concurrent callers cannot diverge; the engine itself only remembers
// which servers it has counted toward the pending-restart gauge.
type Engine struct {
	entries configstore.EntryStore
	reader  reader.Reader
	remote  rcon.Commander
	locks   *serverlock.Manager
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	// remoteCommand renders the RCON command for one entry. Defaults to
	// the vanilla minecraft form.
	remoteCommand func(entry *models.ConfigEntry, value string) string

	mu      sync.Mutex
	pending map[string]bool
}

// Options configures an Engine.
type Options struct {
	Entries configstore.EntryStore
	Reader  reader.Reader
	Remote  rcon.Commander
	Locks   *serverlock.Manager
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// RemoteCommand overrides how an entry edit is rendered as a console
	// command.
	RemoteCommand func(entry *models.ConfigEntry, value string) string
}

// New wires a sync engine.
func New(opts Options) (*Engine, error) {
	if opts.Entries == nil || opts.Reader == nil {
		return nil, fmt.Errorf("sync: entry store and reader are required")
	}
	if opts.Locks == nil {
		opts.Locks = serverlock.NewManager(0)
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.LogConfig{})
	}
	if opts.RemoteCommand == nil {
		opts.RemoteCommand = defaultRemoteCommand
	}
	return &Engine{
		entries:       opts.Entries,
		reader:        opts.Reader,
		remote:        opts.Remote,
		locks:         opts.Locks,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		tracer:        opts.Tracer,
		remoteCommand: opts.RemoteCommand,
		pending:       make(map[string]bool),
	}, nil
}

// defaultRemoteCommand renders a vanilla server command for well-known
// keys and a generic form otherwise.
func defaultRemoteCommand(entry *models.ConfigEntry, value string) string {
	switch entry.Key {
	case "difficulty":
		return "difficulty " + value
	case "pvp":
		return "pvp " + value
	case "gamemode", "force-gamemode":
		return "defaultgamemode " + value
	default:
		return fmt.Sprintf("craftdeck:set %s %s", entry.Key, value)
	}
}

// Apply validates and applies one edit under the server's lock.
func (e *Engine) Apply(ctx context.Context, entryID, newRawValue string) (*ApplyResult, error) {
	entry, err := e.entries.Get(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("sync: load entry %s: %w", entryID, err)
	}

	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "sync.apply",
			attribute.String("server_id", entry.ServerID),
			attribute.String("key", entry.Key),
		)
		defer span.End()
	}

	release, err := e.locks.Acquire(ctx, entry.ServerID, "apply", 0)
	if err != nil {
		return nil, fmt.Errorf("sync: lock %s: %w", entry.ServerID, err)
	}
	defer release()

	// Reload under the lock; a scan or another edit may have moved it.
	entry, err = e.entries.Get(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("sync: load entry %s: %w", entryID, err)
	}

	start := time.Now()
	result, err := e.apply(ctx, entry, newRawValue)
	if e.metrics != nil {
		outcome := "failed"
		switch {
		case errors.Is(err, ErrValidationFailed):
			outcome = "rejected"
		case err == nil:
			outcome = string(result.Outcome)
		}
		e.metrics.ObserveApply(outcome, time.Since(start))
	}
	if span != nil && err != nil {
		observability.RecordError(span, err)
	}
	if err == nil {
		e.trackPending(ctx, entry.ServerID)
	}
	return result, err
}

// trackPending reconciles the pending-restart gauge with the server's
// stored state, counting each server at most once.
func (e *Engine) trackPending(ctx context.Context, serverID string) {
	if e.metrics == nil {
		return
	}
	state, err := e.entries.ServerState(ctx, serverID)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case state.PendingRestart && !e.pending[serverID]:
		e.pending[serverID] = true
		e.metrics.PendingRestart.Inc()
	case !state.PendingRestart && e.pending[serverID]:
		delete(e.pending, serverID)
		e.metrics.PendingRestart.Dec()
	}
}

// Forget drops gauge bookkeeping for a decommissioned server.
func (e *Engine) Forget(serverID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending[serverID] {
		delete(e.pending, serverID)
		if e.metrics != nil {
			e.metrics.PendingRestart.Dec()
		}
	}
}

func (e *Engine) apply(ctx context.Context, entry *models.ConfigEntry, newRawValue string) (*ApplyResult, error) {
	accepted, clamped, err := validate(entry, newRawValue)
	if err != nil {
		return nil, err
	}

	previous := *entry

	entry.RawValue = accepted
	entry.Revision++
	entry.Dirty = true
	if err := e.entries.Update(ctx, entry, previous.Revision); err != nil {
		return nil, fmt.Errorf("sync: persist edit for %s: %w", entry.Key, err)
	}

	if err := e.reader.Write(ctx, entry.ServerID, entry.FileID, entry.Key, accepted); err != nil {
		// Roll back; no partial state survives a failed file write.
		restored := previous
		if rbErr := e.entries.Update(ctx, &restored, entry.Revision); rbErr != nil {
			e.logger.Error(ctx, "rollback after failed write also failed",
				"server_id", entry.ServerID, "key", entry.Key, "error", rbErr)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrWriteFailed, entry.Key, err)
	}

	if !entry.HotApplicable {
		e.logger.Info(ctx, "edit written, restart required",
			"server_id", entry.ServerID, "key", entry.Key)
		return &ApplyResult{Entry: entry, Outcome: OutcomePendingRestart, Clamped: clamped}, nil
	}

	if e.remote == nil {
		return &ApplyResult{Entry: entry, Outcome: OutcomePendingRestart, Clamped: clamped,
			RemoteErr: "no remote channel configured"}, nil
	}

	// One attempt, bounded by the commander's own timeout. Re-sending a
	// command to a game process with side effects is worse than waiting
	// for a restart.
	_, remoteErr := e.remote.Send(ctx, entry.ServerID, e.remoteCommand(entry, accepted))
	if e.metrics != nil {
		e.metrics.ObserveRemoteCommand(remoteErr)
	}
	if remoteErr != nil {
		e.logger.Warn(ctx, "remote apply failed, pending restart",
			"server_id", entry.ServerID, "key", entry.Key, "error", remoteErr)
		return &ApplyResult{Entry: entry, Outcome: OutcomePendingRestart, Clamped: clamped,
			RemoteErr: remoteErr.Error()}, nil
	}

	entry.Dirty = false
	if err := e.entries.Update(ctx, entry, entry.Revision); err != nil {
		return nil, fmt.Errorf("sync: clear dirty for %s: %w", entry.Key, err)
	}
	e.logger.Info(ctx, "edit hot-applied",
		"server_id", entry.ServerID, "key", entry.Key)
	return &ApplyResult{Entry: entry, Outcome: OutcomeApplied, Clamped: clamped}, nil
}

// ConfirmRestart clears the dirty flag across a server after an external
// restart has picked up all pending file changes.
func (e *Engine) ConfirmRestart(ctx context.Context, serverID string) (int, error) {
	release, err := e.locks.Acquire(ctx, serverID, "restart-confirm", 0)
	if err != nil {
		return 0, fmt.Errorf("sync: lock %s: %w", serverID, err)
	}
	defer release()

	cleared, err := e.entries.ClearDirty(ctx, serverID)
	if err != nil {
		return 0, fmt.Errorf("sync: clear dirty for server %s: %w", serverID, err)
	}
	e.trackPending(ctx, serverID)
	e.logger.Info(ctx, "restart confirmed, pending edits cleared",
		"server_id", serverID, "entries", cleared)
	return cleared, nil
}

// State reports the server's aggregate sync status.
func (e *Engine) State(ctx context.Context, serverID string) (*models.ServerConfigState, error) {
	return e.entries.ServerState(ctx, serverID)
}

// validate checks newRawValue against the entry's control and returns
// the accepted value (clamped for sliders) plus whether clamping fired.
func validate(entry *models.ConfigEntry, newRawValue string) (string, bool, error) {
	switch entry.Control {
	case models.ControlToggle:
		switch strings.ToLower(strings.TrimSpace(newRawValue)) {
		case "true":
			return "true", false, nil
		case "false":
			return "false", false, nil
		}
		return "", false, fmt.Errorf("%w: %s expects true or false, got %q", ErrValidationFailed, entry.Key, newRawValue)

	case models.ControlSlider:
		v, err := strconv.ParseFloat(strings.TrimSpace(newRawValue), 64)
		if err != nil {
			return "", false, fmt.Errorf("%w: %s expects a number, got %q", ErrValidationFailed, entry.Key, newRawValue)
		}
		if entry.Kind == models.KindInteger && v != float64(int64(v)) {
			return "", false, fmt.Errorf("%w: %s expects an integer, got %q", ErrValidationFailed, entry.Key, newRawValue)
		}
		if entry.Min != nil && v < *entry.Min {
			return formatBound(*entry.Min, entry.Kind), true, nil
		}
		if entry.Max != nil && v > *entry.Max {
			return formatBound(*entry.Max, entry.Kind), true, nil
		}
		return strings.TrimSpace(newRawValue), false, nil

	case models.ControlDropdown:
		for _, opt := range entry.Options {
			if opt == newRawValue {
				return newRawValue, false, nil
			}
		}
		return "", false, fmt.Errorf("%w: %q is not an option for %s", ErrValidationFailed, newRawValue, entry.Key)

	default:
		return newRawValue, false, nil
	}
}

func formatBound(v float64, kind models.ValueKind) string {
	if kind == models.KindInteger {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
