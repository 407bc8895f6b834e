// handlers.go implements the client-side command handlers. They talk
// to a running daemon over its HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

func runScan(ctx context.Context, addr, serverID string) error {
	client := newAPIClient(addr)
	var result json.RawMessage
	if err := client.postJSON(ctx, "/api/servers/"+url.PathEscape(serverID)+"/scan", nil, &result); err != nil {
		return err
	}
	return printJSON(result)
}

func runEntryGet(ctx context.Context, addr, entryID string) error {
	client := newAPIClient(addr)
	var entry json.RawMessage
	if err := client.getJSON(ctx, "/api/entries/"+url.PathEscape(entryID), &entry); err != nil {
		return err
	}
	return printJSON(entry)
}

func runEntrySet(ctx context.Context, addr, entryID, value string) error {
	client := newAPIClient(addr)
	var result struct {
		Entry   json.RawMessage `json:"entry"`
		Outcome string          `json:"outcome"`
		Clamped bool            `json:"clamped"`
	}
	body := map[string]string{"value": value}
	if err := client.postJSON(ctx, "/api/entries/"+url.PathEscape(entryID)+"/apply", body, &result); err != nil {
		return err
	}
	switch result.Outcome {
	case "pending_restart":
		fmt.Println("value saved; server restart required to take effect")
	default:
		fmt.Println("value applied")
	}
	if result.Clamped {
		fmt.Println("note: value was outside the slider bounds and was clamped")
	}
	return nil
}

func runEntryList(ctx context.Context, addr, serverID string) error {
	client := newAPIClient(addr)
	var state json.RawMessage
	if err := client.getJSON(ctx, "/api/servers/"+url.PathEscape(serverID)+"/entries", &state); err != nil {
		return err
	}
	return printJSON(state)
}

func runTemplateList(ctx context.Context, addr string, modpackID int) error {
	client := newAPIClient(addr)
	var templates json.RawMessage
	path := fmt.Sprintf("/api/templates?modpack_id=%d", modpackID)
	if err := client.getJSON(ctx, path, &templates); err != nil {
		return err
	}
	return printJSON(templates)
}

func runTemplateApply(ctx context.Context, addr, templateID, serverID string) error {
	client := newAPIClient(addr)
	var report struct {
		Applied json.RawMessage `json:"applied"`
		Failed  json.RawMessage `json:"failed"`
		Err     string          `json:"error,omitempty"`
	}
	path := "/api/templates/" + url.PathEscape(templateID) + "/apply/" + url.PathEscape(serverID)
	if err := client.postJSON(ctx, path, nil, &report); err != nil {
		return err
	}
	if len(report.Failed) > 0 && string(report.Failed) != "null" {
		fmt.Println("template partially applied; first failing item:")
		return printJSON(report)
	}
	fmt.Println("template applied")
	return printJSON(report.Applied)
}

func runTemplateSnapshot(ctx context.Context, addr, serverID, name, description string, modpackID int, isDefault bool) error {
	client := newAPIClient(addr)
	body := map[string]any{
		"name":        name,
		"description": description,
		"modpack_id":  modpackID,
		"default":     isDefault,
	}
	var tmpl json.RawMessage
	if err := client.postJSON(ctx, "/api/servers/"+url.PathEscape(serverID)+"/snapshot", body, &tmpl); err != nil {
		return err
	}
	return printJSON(tmpl)
}

func runTemplateDelete(ctx context.Context, addr, templateID string) error {
	client := newAPIClient(addr)
	if err := client.deleteJSON(ctx, "/api/templates/"+url.PathEscape(templateID)); err != nil {
		return err
	}
	fmt.Println("template deleted")
	return nil
}

func runRestartDone(ctx context.Context, addr, serverID string) error {
	client := newAPIClient(addr)
	var result struct {
		Cleared int `json:"cleared"`
	}
	if err := client.postJSON(ctx, "/api/servers/"+url.PathEscape(serverID)+"/restart-done", nil, &result); err != nil {
		return err
	}
	fmt.Printf("restart confirmed, %d pending edits cleared\n", result.Cleared)
	return nil
}
