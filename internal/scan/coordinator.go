// Package scan walks a server's configuration files, classifies what it
// finds and reconciles the result with the configuration store.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/craftdeck/craftdeck/internal/classify"
	"github.com/craftdeck/craftdeck/internal/configstore"
	"github.com/craftdeck/craftdeck/internal/observability"
	"github.com/craftdeck/craftdeck/internal/reader"
	"github.com/craftdeck/craftdeck/internal/serverlock"
	"github.com/craftdeck/craftdeck/pkg/models"
)

// ErrScanInFlight is returned when a scan is requested for a server that
// is already being scanned. Callers should retry later; this is not a
// fatal condition.
var ErrScanInFlight = errors.New("scan: already in flight for server")

// Result summarizes one scan.
type Result struct {
	ServerID string `json:"server_id"`

	// Added lists keys first observed by this scan.
	Added []string `json:"added,omitempty"`

	// Updated lists keys whose file value changed outside our write path
	// and was reclassified.
	Updated []string `json:"updated,omitempty"`

	// Orphaned lists stored keys absent from this scan, pending a second
	// confirming scan before removal.
	Orphaned []string `json:"orphaned,omitempty"`

	// Pruned lists keys removed after a second consecutive absence.
	Pruned []string `json:"pruned,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Coordinator reconciles file scans into the entry store. Scans of one
// server are serialized; scans of different servers proceed in parallel.
type Coordinator struct {
	reader     reader.Reader
	classifier *classify.Classifier
	entries    configstore.EntryStore
	servers    configstore.ServerStore
	locks      *serverlock.Manager
	logger     *observability.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer

	mu       sync.Mutex
	inflight map[string]bool
	// missing tracks entries absent on the previous scan, keyed by server
	// then entry ID. An entry must be absent on two consecutive scans
	// before it is pruned, which debounces transient read failures.
	missing map[string]map[string]bool
}

// Options configures a Coordinator.
type Options struct {
	Reader     reader.Reader
	Classifier *classify.Classifier
	Entries    configstore.EntryStore
	Servers    configstore.ServerStore
	Locks      *serverlock.Manager
	Logger     *observability.Logger
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer
}

// NewCoordinator wires a scan coordinator.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Reader == nil || opts.Classifier == nil || opts.Entries == nil {
		return nil, fmt.Errorf("scan: reader, classifier and entry store are required")
	}
	if opts.Locks == nil {
		opts.Locks = serverlock.NewManager(0)
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Coordinator{
		reader:     opts.Reader,
		classifier: opts.Classifier,
		entries:    opts.Entries,
		servers:    opts.Servers,
		locks:      opts.Locks,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		inflight:   make(map[string]bool),
		missing:    make(map[string]map[string]bool),
	}, nil
}

// Scan reads the server's configuration files and reconciles the store.
//
// Reconciliation rules:
//   - unknown key: classify and create
//   - known key, file value differs, entry clean: reclassify and update;
//     a change made outside our write path wins over stale metadata
//   - known key, entry dirty: leave untouched; a pending local edit wins
//     over a re-scan
//   - stored key absent from the scan: orphaned now, pruned only after a
//     second consecutive absence
func (c *Coordinator) Scan(ctx context.Context, serverID string) (*Result, error) {
	if serverID == "" {
		return nil, fmt.Errorf("scan: server id is required")
	}

	c.mu.Lock()
	if c.inflight[serverID] {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrScanInFlight, serverID)
	}
	c.inflight[serverID] = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, serverID)
		c.mu.Unlock()
	}()

	release, err := c.locks.Acquire(ctx, serverID, "scan", 0)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", serverID, err)
	}
	defer release()

	var span trace.Span
	if c.tracer != nil {
		ctx, span = c.tracer.Start(ctx, "scan.server", attribute.String("server_id", serverID))
		defer span.End()
	}

	start := time.Now()
	result, err := c.reconcile(ctx, serverID)
	if c.metrics != nil {
		c.metrics.ObserveScan(time.Since(start), err)
	}
	if err != nil {
		if span != nil {
			observability.RecordError(span, err)
		}
		return nil, err
	}
	result.Duration = time.Since(start)
	if c.metrics != nil {
		c.metrics.ObserveReconciled(len(result.Added), len(result.Updated), len(result.Orphaned), len(result.Pruned))
	}

	c.logger.Info(ctx, "scan complete",
		"server_id", serverID,
		"added", len(result.Added),
		"updated", len(result.Updated),
		"orphaned", len(result.Orphaned),
		"pruned", len(result.Pruned),
	)
	return result, nil
}

func (c *Coordinator) reconcile(ctx context.Context, serverID string) (*Result, error) {
	tuples, err := c.reader.Read(ctx, serverID)
	if err != nil {
		// A failed read must not feed orphan detection: clear the pending
		// absence marks so a transient failure cannot contribute to
		// pruning on the next successful scan.
		c.mu.Lock()
		delete(c.missing, serverID)
		c.mu.Unlock()
		return nil, fmt.Errorf("scan %s: read: %w", serverID, err)
	}

	modpackID := c.modpackID(ctx, serverID)

	// Values seen per key across the file family feed the enumeration
	// heuristic.
	observed := make(map[string][]string)
	for _, t := range tuples {
		observed[t.Key] = append(observed[t.Key], t.RawValue)
	}

	stored, err := c.entries.ListByServer(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("scan %s: list entries: %w", serverID, err)
	}
	byKey := make(map[string]int, len(stored))
	for i, entry := range stored {
		byKey[entry.FileID+"\x00"+entry.Key] = i
	}

	result := &Result{ServerID: serverID}
	seen := make(map[string]bool, len(tuples))

	for _, t := range tuples {
		k := t.FileID + "\x00" + t.Key
		if seen[k] {
			continue
		}
		seen[k] = true

		idx, exists := byKey[k]
		if !exists {
			entry := c.classifier.Entry(modpackID, serverID, t.FileID, t.Key, t.RawValue, observed[t.Key])
			if err := c.entries.Create(ctx, entry); err != nil {
				return nil, fmt.Errorf("scan %s: create %s: %w", serverID, t.Key, err)
			}
			result.Added = append(result.Added, t.Key)
			continue
		}

		entry := stored[idx]
		if entry.Dirty {
			// Last-local-edit-wins: never clobber an unapplied user edit.
			continue
		}
		if entry.RawValue == t.RawValue {
			continue
		}

		res := c.classifier.Classify(modpackID, t.Key, t.RawValue, observed[t.Key])
		updated := *entry
		updated.RawValue = t.RawValue
		updated.Kind = res.Kind
		updated.Control = res.Control
		updated.Min = res.Min
		updated.Max = res.Max
		updated.Options = res.Options
		updated.HotApplicable = res.HotApplicable
		if err := c.entries.Update(ctx, &updated, entry.Revision); err != nil {
			if errors.Is(err, configstore.ErrRevisionMismatch) {
				// An edit landed between our read and write; the edit wins.
				continue
			}
			return nil, fmt.Errorf("scan %s: update %s: %w", serverID, t.Key, err)
		}
		result.Updated = append(result.Updated, t.Key)
	}

	return c.pruneOrphans(ctx, serverID, stored, seen, result)
}

func (c *Coordinator) pruneOrphans(ctx context.Context, serverID string, stored []*models.ConfigEntry, seen map[string]bool, result *Result) (*Result, error) {
	c.mu.Lock()
	previouslyMissing := c.missing[serverID]
	nowMissing := make(map[string]bool)
	c.missing[serverID] = nowMissing
	c.mu.Unlock()

	for _, entry := range stored {
		if seen[entry.FileID+"\x00"+entry.Key] {
			continue
		}
		if previouslyMissing[entry.ID] {
			if err := c.entries.Delete(ctx, entry.ID); err != nil && !errors.Is(err, configstore.ErrNotFound) {
				return nil, fmt.Errorf("scan %s: prune %s: %w", serverID, entry.Key, err)
			}
			result.Pruned = append(result.Pruned, entry.Key)
			continue
		}
		nowMissing[entry.ID] = true
		result.Orphaned = append(result.Orphaned, entry.Key)
	}
	return result, nil
}

func (c *Coordinator) modpackID(ctx context.Context, serverID string) int {
	if c.servers == nil {
		return 0
	}
	server, err := c.servers.Get(ctx, serverID)
	if err != nil {
		return 0
	}
	return server.ModpackID
}

// Forget drops scan bookkeeping for a decommissioned server.
func (c *Coordinator) Forget(serverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.missing, serverID)
}
