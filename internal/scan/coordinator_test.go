package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/craftdeck/craftdeck/internal/classify"
	"github.com/craftdeck/craftdeck/internal/configstore"
	"github.com/craftdeck/craftdeck/internal/observability"
	"github.com/craftdeck/craftdeck/internal/reader"
	"github.com/craftdeck/craftdeck/internal/rules"
	"github.com/craftdeck/craftdeck/pkg/models"
)

// fakeReader serves scripted tuples per server and can be told to fail.
type fakeReader struct {
	mu     sync.Mutex
	tuples map[string][]reader.Tuple
	err    error

	// block, when set, holds Read until released.
	block chan struct{}
}

func newFakeReader() *fakeReader {
	return &fakeReader{tuples: make(map[string][]reader.Tuple)}
}

func (f *fakeReader) set(serverID string, tuples ...reader.Tuple) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tuples[serverID] = tuples
}

func (f *fakeReader) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeReader) Read(ctx context.Context, serverID string) ([]reader.Tuple, error) {
	f.mu.Lock()
	block := f.block
	err := f.err
	tuples := f.tuples[serverID]
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	out := make([]reader.Tuple, len(tuples))
	copy(out, tuples)
	return out, nil
}

func (f *fakeReader) Write(ctx context.Context, serverID, fileID, key, rawValue string) error {
	return nil
}

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func testClassifier() *classify.Classifier {
	table := rules.NewTable(map[string]rules.Rule{
		"max-players": {Min: floatPtr(1), Max: floatPtr(200), Numeric: rules.NumericInteger},
		"pvp":         {HotApply: boolPtr(true)},
	}, nil)
	return classify.New(table)
}

func newTestCoordinator(t *testing.T, r reader.Reader) (*Coordinator, configstore.EntryStore) {
	t.Helper()
	entries := configstore.NewMemoryEntryStore()
	c, err := NewCoordinator(Options{
		Reader:     r,
		Classifier: testClassifier(),
		Entries:    entries,
	})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	return c, entries
}

func TestScan_AddsNewEntries(t *testing.T) {
	fr := newFakeReader()
	fr.set("srv-1",
		reader.Tuple{FileID: "server.properties", Key: "max-players", RawValue: "20"},
		reader.Tuple{FileID: "server.properties", Key: "pvp", RawValue: "true"},
	)
	c, entries := newTestCoordinator(t, fr)
	ctx := context.Background()

	result, err := c.Scan(ctx, "srv-1")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Added) != 2 {
		t.Fatalf("added = %v, want 2 keys", result.Added)
	}

	entry, err := entries.Find(ctx, "srv-1", "server.properties", "max-players")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if entry.Control != models.ControlSlider {
		t.Errorf("control = %v, want slider", entry.Control)
	}

	entry, err = entries.Find(ctx, "srv-1", "server.properties", "pvp")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if entry.Control != models.ControlToggle || !entry.HotApplicable {
		t.Errorf("pvp entry = %+v", entry)
	}
}

func TestScan_Idempotent(t *testing.T) {
	fr := newFakeReader()
	fr.set("srv-1", reader.Tuple{FileID: "server.properties", Key: "motd", RawValue: "hello"})
	c, _ := newTestCoordinator(t, fr)
	ctx := context.Background()

	if _, err := c.Scan(ctx, "srv-1"); err != nil {
		t.Fatalf("first Scan: %v", err)
	}
	result, err := c.Scan(ctx, "srv-1")
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if len(result.Added)+len(result.Updated)+len(result.Orphaned)+len(result.Pruned) != 0 {
		t.Errorf("second scan not a no-op: %+v", result)
	}
}

func TestScan_ExternalEditWins(t *testing.T) {
	fr := newFakeReader()
	fr.set("srv-1", reader.Tuple{FileID: "server.properties", Key: "max-players", RawValue: "20"})
	c, entries := newTestCoordinator(t, fr)
	ctx := context.Background()

	if _, err := c.Scan(ctx, "srv-1"); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// The file changed outside our write path.
	fr.set("srv-1", reader.Tuple{FileID: "server.properties", Key: "max-players", RawValue: "64"})
	result, err := c.Scan(ctx, "srv-1")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Updated) != 1 || result.Updated[0] != "max-players" {
		t.Fatalf("updated = %v", result.Updated)
	}

	entry, _ := entries.Find(ctx, "srv-1", "server.properties", "max-players")
	if entry.RawValue != "64" {
		t.Errorf("raw = %q, want 64", entry.RawValue)
	}
	if entry.Dirty {
		t.Error("reconciled entry must not be dirty")
	}
}

func TestScan_DirtyEntryUntouched(t *testing.T) {
	fr := newFakeReader()
	fr.set("srv-1", reader.Tuple{FileID: "server.properties", Key: "motd", RawValue: "original"})
	c, entries := newTestCoordinator(t, fr)
	ctx := context.Background()

	if _, err := c.Scan(ctx, "srv-1"); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	entry, _ := entries.Find(ctx, "srv-1", "server.properties", "motd")
	entry.RawValue = "local edit"
	entry.Dirty = true
	rev := entry.Revision
	entry.Revision++
	if err := entries.Update(ctx, entry, rev); err != nil {
		t.Fatalf("Update: %v", err)
	}

	fr.set("srv-1", reader.Tuple{FileID: "server.properties", Key: "motd", RawValue: "file change"})
	result, err := c.Scan(ctx, "srv-1")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Updated) != 0 {
		t.Errorf("updated = %v, dirty entry must be skipped", result.Updated)
	}

	after, _ := entries.Find(ctx, "srv-1", "server.properties", "motd")
	if after.RawValue != "local edit" || !after.Dirty {
		t.Errorf("entry = %+v, local edit lost", after)
	}
}

func TestScan_OrphanDebounce(t *testing.T) {
	fr := newFakeReader()
	fr.set("srv-1",
		reader.Tuple{FileID: "server.properties", Key: "motd", RawValue: "hi"},
		reader.Tuple{FileID: "server.properties", Key: "pvp", RawValue: "true"},
	)
	c, entries := newTestCoordinator(t, fr)
	ctx := context.Background()

	if _, err := c.Scan(ctx, "srv-1"); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// The key disappears; the first absence only marks it.
	fr.set("srv-1", reader.Tuple{FileID: "server.properties", Key: "motd", RawValue: "hi"})
	result, err := c.Scan(ctx, "srv-1")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Orphaned) != 1 || result.Orphaned[0] != "pvp" {
		t.Fatalf("orphaned = %v", result.Orphaned)
	}
	if len(result.Pruned) != 0 {
		t.Fatalf("pruned too early: %v", result.Pruned)
	}
	if _, err := entries.Find(ctx, "srv-1", "server.properties", "pvp"); err != nil {
		t.Fatal("entry must survive the first absence")
	}

	// Second consecutive absence prunes.
	result, err = c.Scan(ctx, "srv-1")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Pruned) != 1 || result.Pruned[0] != "pvp" {
		t.Fatalf("pruned = %v", result.Pruned)
	}
	if _, err := entries.Find(ctx, "srv-1", "server.properties", "pvp"); !errors.Is(err, configstore.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound after prune", err)
	}
}

func TestScan_ReappearanceResetsDebounce(t *testing.T) {
	fr := newFakeReader()
	both := []reader.Tuple{
		{FileID: "server.properties", Key: "motd", RawValue: "hi"},
		{FileID: "server.properties", Key: "pvp", RawValue: "true"},
	}
	fr.set("srv-1", both...)
	c, entries := newTestCoordinator(t, fr)
	ctx := context.Background()

	if _, err := c.Scan(ctx, "srv-1"); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	fr.set("srv-1", both[0])
	if _, err := c.Scan(ctx, "srv-1"); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// The key comes back, then disappears again: debounce restarts.
	fr.set("srv-1", both...)
	if _, err := c.Scan(ctx, "srv-1"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	fr.set("srv-1", both[0])
	result, err := c.Scan(ctx, "srv-1")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Pruned) != 0 {
		t.Errorf("pruned = %v, reappearance must reset the debounce", result.Pruned)
	}
	if _, err := entries.Find(ctx, "srv-1", "server.properties", "pvp"); err != nil {
		t.Error("entry must survive")
	}
}

func TestScan_ReadFailureClearsAbsenceMarks(t *testing.T) {
	fr := newFakeReader()
	both := []reader.Tuple{
		{FileID: "server.properties", Key: "motd", RawValue: "hi"},
		{FileID: "server.properties", Key: "pvp", RawValue: "true"},
	}
	fr.set("srv-1", both...)
	c, entries := newTestCoordinator(t, fr)
	ctx := context.Background()

	if _, err := c.Scan(ctx, "srv-1"); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	fr.set("srv-1", both[0])
	if _, err := c.Scan(ctx, "srv-1"); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// A failed read in between must not count toward pruning.
	fr.fail(errors.New("container unavailable"))
	if _, err := c.Scan(ctx, "srv-1"); err == nil {
		t.Fatal("expected read failure")
	}
	fr.fail(nil)

	result, err := c.Scan(ctx, "srv-1")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Pruned) != 0 {
		t.Errorf("pruned = %v after interleaved failure", result.Pruned)
	}
	if len(result.Orphaned) != 1 {
		t.Errorf("orphaned = %v, debounce should restart", result.Orphaned)
	}
	if _, err := entries.Find(ctx, "srv-1", "server.properties", "pvp"); err != nil {
		t.Error("entry must survive")
	}
}

func TestScan_InFlightRejected(t *testing.T) {
	fr := newFakeReader()
	fr.set("srv-1", reader.Tuple{FileID: "server.properties", Key: "motd", RawValue: "hi"})
	fr.block = make(chan struct{})
	c, _ := newTestCoordinator(t, fr)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.Scan(ctx, "srv-1"); err != nil {
			t.Errorf("blocked Scan: %v", err)
		}
	}()

	// Wait for the first scan to reach the reader.
	for {
		c.mu.Lock()
		inflight := c.inflight["srv-1"]
		c.mu.Unlock()
		if inflight {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := c.Scan(ctx, "srv-1"); !errors.Is(err, ErrScanInFlight) {
		t.Fatalf("err = %v, want ErrScanInFlight", err)
	}

	close(fr.block)
	<-done

	// Once finished, a new scan is accepted again.
	fr.block = nil
	if _, err := c.Scan(ctx, "srv-1"); err != nil {
		t.Fatalf("Scan after completion: %v", err)
	}
}

func TestScan_RecordsMetricsAndSpans(t *testing.T) {
	fr := newFakeReader()
	fr.set("srv-1",
		reader.Tuple{FileID: "server.properties", Key: "motd", RawValue: "hi"},
		reader.Tuple{FileID: "server.properties", Key: "pvp", RawValue: "true"},
	)

	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer provider.Shutdown(context.Background())

	c, _ := newTestCoordinator(t, fr)
	c.metrics = metrics
	c.tracer = observability.NewTracerWith(provider.Tracer("test"))
	ctx := context.Background()

	if _, err := c.Scan(ctx, "srv-1"); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if got := testutil.ToFloat64(metrics.ScanCounter.WithLabelValues("success")); got != 1 {
		t.Errorf("scan success counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.EntriesReconciled.WithLabelValues("added")); got != 2 {
		t.Errorf("added counter = %v, want 2", got)
	}

	// The second scan is a no-op and must not move the action counters.
	if _, err := c.Scan(ctx, "srv-1"); err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if got := testutil.ToFloat64(metrics.EntriesReconciled.WithLabelValues("added")); got != 2 {
		t.Errorf("added counter after no-op scan = %v, want 2", got)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Name != "scan.server" {
		t.Errorf("span name = %q", spans[0].Name)
	}

	// A failed scan records the error on its span.
	exporter.Reset()
	fr.fail(errors.New("container unavailable"))
	if _, err := c.Scan(ctx, "srv-1"); err == nil {
		t.Fatal("expected read failure")
	}
	spans = exporter.GetSpans()
	if len(spans) != 1 || len(spans[0].Events) == 0 {
		t.Errorf("failed scan span = %+v, want recorded error", spans)
	}
	if got := testutil.ToFloat64(metrics.ScanCounter.WithLabelValues("error")); got != 1 {
		t.Errorf("scan error counter = %v, want 1", got)
	}
}

func TestScan_RequiresServerID(t *testing.T) {
	c, _ := newTestCoordinator(t, newFakeReader())
	if _, err := c.Scan(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty server id")
	}
}

func TestPool_ScanAll(t *testing.T) {
	fr := newFakeReader()
	fr.set("srv-1", reader.Tuple{FileID: "server.properties", Key: "motd", RawValue: "a"})
	fr.set("srv-2", reader.Tuple{FileID: "server.properties", Key: "motd", RawValue: "b"})
	c, _ := newTestCoordinator(t, fr)

	pool := NewPool(c, 2)
	results, errs := pool.ScanAll(context.Background(), []string{"srv-1", "srv-2", "srv-3"})

	if len(results) != 3 {
		t.Errorf("results = %v", results)
	}
	if len(errs) != 0 {
		t.Errorf("errs = %v", errs)
	}
	if results["srv-1"] == nil || len(results["srv-1"].Added) != 1 {
		t.Errorf("srv-1 result = %+v", results["srv-1"])
	}
}
