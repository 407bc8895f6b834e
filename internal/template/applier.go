// Package template expands stored configuration templates onto servers
// and snapshots live configurations into new templates.
package template

import (
	"context"
	"errors"
	"fmt"

	"github.com/craftdeck/craftdeck/internal/configstore"
	"github.com/craftdeck/craftdeck/internal/observability"
	"github.com/craftdeck/craftdeck/internal/syncengine"
	"github.com/craftdeck/craftdeck/pkg/models"
)

// ItemResult records the outcome of applying one template item.
type ItemResult struct {
	FileID  string             `json:"file_id"`
	Key     string             `json:"key"`
	Outcome syncengine.Outcome `json:"outcome,omitempty"`

	// Created is set when the server had no entry for the key yet and one
	// was created speculatively as a text input, to be reclassified by
	// the next scan.
	Created bool `json:"created,omitempty"`
}

// ApplyReport summarizes a template application. Application stops at
// the first failure; files are independent resources, so already-applied
// keys stay applied and the caller inspects the partial result.
type ApplyReport struct {
	TemplateID string `json:"template_id"`
	ServerID   string `json:"server_id"`

	// Applied lists items that landed, in template order.
	Applied []ItemResult `json:"applied"`

	// Failed identifies the item that stopped application, if any.
	Failed *ItemResult `json:"failed,omitempty"`

	// Err is the failure that stopped application.
	Err string `json:"error,omitempty"`
}

// Complete reports whether every item applied.
func (r *ApplyReport) Complete() bool {
	return r.Failed == nil
}

// Applier expands templates through the sync engine.
type Applier struct {
	templates configstore.TemplateStore
	entries   configstore.EntryStore
	engine    *syncengine.Engine
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewApplier wires a template applier.
func NewApplier(templates configstore.TemplateStore, entries configstore.EntryStore, engine *syncengine.Engine, logger *observability.Logger, metrics *observability.Metrics) (*Applier, error) {
	if templates == nil || entries == nil || engine == nil {
		return nil, fmt.Errorf("template: stores and engine are required")
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Applier{
		templates: templates,
		entries:   entries,
		engine:    engine,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Apply expands the template onto the server, item by item in template
// order, each item going through the sync engine as if it were a direct
// user edit.
func (a *Applier) Apply(ctx context.Context, templateID, serverID string) (*ApplyReport, error) {
	tmpl, err := a.templates.Get(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("template: load %s: %w", templateID, err)
	}

	report := &ApplyReport{TemplateID: templateID, ServerID: serverID}
	for _, item := range tmpl.Items {
		itemResult := ItemResult{FileID: item.FileID, Key: item.Key}

		entry, err := a.entries.Find(ctx, serverID, item.FileID, item.Key)
		if errors.Is(err, configstore.ErrNotFound) {
			// The server's files do not declare this key yet (newer mod
			// version in the template). Create it speculatively; the next
			// scan reclassifies it.
			entry = &models.ConfigEntry{
				ServerID: serverID,
				FileID:   item.FileID,
				Key:      item.Key,
				RawValue: item.RawValue,
				Kind:     models.KindString,
				Control:  models.ControlTextInput,
			}
			if err := a.entries.Create(ctx, entry); err != nil {
				return a.fail(ctx, report, itemResult, err)
			}
			itemResult.Created = true
		} else if err != nil {
			return a.fail(ctx, report, itemResult, err)
		}

		applied, err := a.engine.Apply(ctx, entry.ID, item.RawValue)
		if err != nil {
			return a.fail(ctx, report, itemResult, err)
		}
		itemResult.Outcome = applied.Outcome
		report.Applied = append(report.Applied, itemResult)
	}

	if a.metrics != nil {
		a.metrics.TemplateApplyCounter.WithLabelValues("complete").Inc()
	}
	a.logger.Info(ctx, "template applied",
		"template_id", templateID, "server_id", serverID, "items", len(report.Applied))
	return report, nil
}

func (a *Applier) fail(ctx context.Context, report *ApplyReport, item ItemResult, err error) (*ApplyReport, error) {
	report.Failed = &item
	report.Err = err.Error()
	if a.metrics != nil {
		a.metrics.TemplateApplyCounter.WithLabelValues("partial").Inc()
	}
	a.logger.Warn(ctx, "template application stopped",
		"template_id", report.TemplateID, "server_id", report.ServerID,
		"applied", len(report.Applied), "failed_key", item.Key, "error", err)
	return report, nil
}

// Snapshot captures a server's current entries into a new immutable
// template, in stable (file, key) order.
func (a *Applier) Snapshot(ctx context.Context, serverID, name, description string, modpackID int, isDefault bool) (*models.ConfigTemplate, error) {
	entries, err := a.entries.ListByServer(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("template: list entries for %s: %w", serverID, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("template: server %s has no entries to snapshot", serverID)
	}

	tmpl := &models.ConfigTemplate{
		Name:        name,
		Description: description,
		ModpackID:   modpackID,
		Default:     isDefault,
		Items:       make([]models.TemplateItem, 0, len(entries)),
	}
	for _, entry := range entries {
		tmpl.Items = append(tmpl.Items, models.TemplateItem{
			FileID:   entry.FileID,
			Key:      entry.Key,
			RawValue: entry.RawValue,
		})
	}
	if err := a.templates.Create(ctx, tmpl); err != nil {
		return nil, fmt.Errorf("template: snapshot %s: %w", name, err)
	}
	a.logger.Info(ctx, "template snapshot created",
		"template_id", tmpl.ID, "server_id", serverID, "items", len(tmpl.Items))
	return tmpl, nil
}
