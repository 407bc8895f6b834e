package template

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/craftdeck/craftdeck/internal/classify"
	"github.com/craftdeck/craftdeck/internal/configstore"
	"github.com/craftdeck/craftdeck/internal/reader"
	"github.com/craftdeck/craftdeck/internal/rules"
	"github.com/craftdeck/craftdeck/internal/scan"
	"github.com/craftdeck/craftdeck/internal/syncengine"
	"github.com/craftdeck/craftdeck/pkg/models"
)

// TestApplyThenRescanRoundTrips drives the full pipeline over real
// files: scan, template apply, restart confirmation, rescan. The rescan
// must be a no-op and each key must read back exactly the template's
// value.
func TestApplyThenRescanRoundTrips(t *testing.T) {
	base := t.TempDir()
	seedFile(t, base, "srv-1", "server.properties", "motd=alpha\npvp=true\n")
	seedFile(t, base, "srv-1", "config/newmod.json5", "// mod defaults\n{\n  speed: 2, // ticks\n}\n")

	files := reader.NewDirReader(base)
	entries := configstore.NewMemoryEntryStore()
	templates := configstore.NewMemoryTemplateStore()
	ctx := context.Background()

	coordinator, err := scan.NewCoordinator(scan.Options{
		Reader:     files,
		Classifier: classify.New(rules.NewBuilder().Build()),
		Entries:    entries,
	})
	if err != nil {
		t.Fatalf("scan.NewCoordinator: %v", err)
	}
	engine, err := syncengine.New(syncengine.Options{Entries: entries, Reader: files})
	if err != nil {
		t.Fatalf("syncengine.New: %v", err)
	}
	applier, err := NewApplier(templates, entries, engine, nil, nil)
	if err != nil {
		t.Fatalf("NewApplier: %v", err)
	}

	if _, err := coordinator.Scan(ctx, "srv-1"); err != nil {
		t.Fatalf("initial Scan: %v", err)
	}

	tmpl := &models.ConfigTemplate{
		Name:      "golden",
		ModpackID: 42,
		Items: []models.TemplateItem{
			{FileID: "server.properties", Key: "motd", RawValue: "omega"},
			{FileID: "server.properties", Key: "pvp", RawValue: "false"},
			{FileID: "config/newmod.json5", Key: "speed", RawValue: "4"},
		},
	}
	if err := templates.Create(ctx, tmpl); err != nil {
		t.Fatalf("template Create: %v", err)
	}

	report, err := applier.Apply(ctx, tmpl.ID, "srv-1")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !report.Complete() {
		t.Fatalf("apply incomplete: %+v", report)
	}
	if _, err := engine.ConfirmRestart(ctx, "srv-1"); err != nil {
		t.Fatalf("ConfirmRestart: %v", err)
	}

	result, err := coordinator.Scan(ctx, "srv-1")
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(result.Added)+len(result.Updated)+len(result.Orphaned)+len(result.Pruned) != 0 {
		t.Fatalf("rescan not a no-op: %+v", result)
	}

	for _, item := range tmpl.Items {
		entry, err := entries.Find(ctx, "srv-1", item.FileID, item.Key)
		if err != nil {
			t.Fatalf("Find %s/%s: %v", item.FileID, item.Key, err)
		}
		if entry.RawValue != item.RawValue {
			t.Errorf("%s/%s = %q, want %q", item.FileID, item.Key, entry.RawValue, item.RawValue)
		}
		if entry.Dirty {
			t.Errorf("%s/%s still dirty after restart", item.FileID, item.Key)
		}
	}

	// The edit went through the files, not just the store.
	data, err := os.ReadFile(filepath.Join(base, "srv-1", "config", "newmod.json5"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(data), "speed: 4, // ticks") {
		t.Errorf("json5 file after apply:\n%s", data)
	}
	if !strings.Contains(string(data), "// mod defaults") {
		t.Errorf("json5 comment lost:\n%s", data)
	}
}

func seedFile(t *testing.T, base, serverID, fileID, content string) {
	t.Helper()
	path := filepath.Join(base, serverID, filepath.FromSlash(fileID))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}
