package panel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/craftdeck/craftdeck/internal/catalog"
	"github.com/craftdeck/craftdeck/internal/configstore"
	"github.com/craftdeck/craftdeck/internal/observability"
	"github.com/craftdeck/craftdeck/internal/scan"
	"github.com/craftdeck/craftdeck/internal/syncengine"
	"github.com/craftdeck/craftdeck/pkg/models"
)

func (p *Panel) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", p.handleHealthz)
	mux.HandleFunc("/api/servers", p.apiServers)
	mux.HandleFunc("/api/servers/", p.apiServerDetail)
	mux.HandleFunc("/api/entries/", p.apiEntryDetail)
	mux.HandleFunc("/api/templates", p.apiTemplates)
	mux.HandleFunc("/api/templates/", p.apiTemplateDetail)
	mux.HandleFunc("/api/modpacks", p.apiModpacks)
	mux.HandleFunc("/api/modpacks/", p.apiModpackDetail)
	return p.withRequestID(mux)
}

// withRequestID stamps each request with a correlation ID for logging.
func (p *Panel) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx := observability.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (p *Panel) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// apiServers handles GET /api/servers (list) and POST /api/servers
// (provision).
func (p *Panel) apiServers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		servers, err := p.stores.Servers.List(r.Context())
		if err != nil {
			p.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		p.jsonResponse(w, map[string]any{"servers": servers})
	case http.MethodPost:
		var server models.Server
		if err := json.NewDecoder(r.Body).Decode(&server); err != nil {
			p.jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		result, err := p.Provision(r.Context(), &server)
		if errors.Is(err, ErrInitialScan) {
			// The server exists; report the scan failure without failing
			// the provision.
			p.jsonResponse(w, map[string]any{"server": server, "scan_error": err.Error()})
			return
		}
		if err != nil {
			p.jsonError(w, err.Error(), statusFor(err))
			return
		}
		p.jsonResponse(w, map[string]any{"server": server, "scan": result})
	default:
		p.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// apiServerDetail routes /api/servers/{id}[/...]: server lookup and
// removal, plus the per-server entries, scan, snapshot and restart-done
// subresources.
func (p *Panel) apiServerDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/servers/")
	serverID, sub, _ := strings.Cut(rest, "/")
	if serverID == "" {
		p.jsonError(w, "server id required", http.StatusBadRequest)
		return
	}
	ctx := observability.WithServerID(r.Context(), serverID)
	r = r.WithContext(ctx)

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			server, err := p.stores.Servers.Get(ctx, serverID)
			if err != nil {
				p.jsonError(w, err.Error(), statusFor(err))
				return
			}
			p.jsonResponse(w, server)
		case http.MethodDelete:
			if err := p.Decommission(ctx, serverID); err != nil {
				p.jsonError(w, err.Error(), statusFor(err))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			p.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case "entries":
		if r.Method != http.MethodGet {
			p.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		state, err := p.engine.State(ctx, serverID)
		if err != nil {
			p.jsonError(w, err.Error(), statusFor(err))
			return
		}
		p.jsonResponse(w, state)
	case "scan":
		if r.Method != http.MethodPost {
			p.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		result, err := p.scanner.Scan(ctx, serverID)
		if err != nil {
			p.jsonError(w, err.Error(), statusFor(err))
			return
		}
		p.jsonResponse(w, result)
	case "restart-done":
		if r.Method != http.MethodPost {
			p.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cleared, err := p.engine.ConfirmRestart(ctx, serverID)
		if err != nil {
			p.jsonError(w, err.Error(), statusFor(err))
			return
		}
		p.jsonResponse(w, map[string]int{"cleared": cleared})
	case "snapshot":
		if r.Method != http.MethodPost {
			p.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			ModpackID   int    `json:"modpack_id"`
			Default     bool   `json:"default"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			p.jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		tmpl, err := p.applier.Snapshot(ctx, serverID, req.Name, req.Description, req.ModpackID, req.Default)
		if err != nil {
			p.jsonError(w, err.Error(), statusFor(err))
			return
		}
		p.jsonResponse(w, tmpl)
	default:
		p.jsonError(w, "not found", http.StatusNotFound)
	}
}

// apiEntryDetail routes /api/entries/{id} (GET) and
// /api/entries/{id}/apply (POST with {"value": ...}).
func (p *Panel) apiEntryDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/entries/")
	entryID, sub, _ := strings.Cut(rest, "/")
	if entryID == "" {
		p.jsonError(w, "entry id required", http.StatusBadRequest)
		return
	}

	switch sub {
	case "":
		if r.Method != http.MethodGet {
			p.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		entry, err := p.stores.Entries.Get(r.Context(), entryID)
		if err != nil {
			p.jsonError(w, err.Error(), statusFor(err))
			return
		}
		p.jsonResponse(w, entry)
	case "apply":
		if r.Method != http.MethodPost {
			p.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			p.jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		result, err := p.engine.Apply(r.Context(), entryID, req.Value)
		if err != nil {
			p.jsonError(w, err.Error(), statusFor(err))
			return
		}
		p.jsonResponse(w, result)
	default:
		p.jsonError(w, "not found", http.StatusNotFound)
	}
}

// apiTemplates handles GET /api/templates?modpack_id=N.
func (p *Panel) apiTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		p.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	modpackID, err := strconv.Atoi(r.URL.Query().Get("modpack_id"))
	if err != nil {
		p.jsonError(w, "modpack_id query parameter required", http.StatusBadRequest)
		return
	}
	templates, err := p.stores.Templates.ListByModpack(r.Context(), modpackID)
	if err != nil {
		p.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	p.jsonResponse(w, map[string]any{"templates": templates})
}

// apiTemplateDetail routes /api/templates/{id} (GET, DELETE) and
// /api/templates/{id}/apply/{serverID} (POST).
func (p *Panel) apiTemplateDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/templates/")
	templateID, sub, _ := strings.Cut(rest, "/")
	if templateID == "" {
		p.jsonError(w, "template id required", http.StatusBadRequest)
		return
	}

	switch {
	case sub == "":
		switch r.Method {
		case http.MethodGet:
			tmpl, err := p.stores.Templates.Get(r.Context(), templateID)
			if err != nil {
				p.jsonError(w, err.Error(), statusFor(err))
				return
			}
			p.jsonResponse(w, tmpl)
		case http.MethodDelete:
			if err := p.stores.Templates.Delete(r.Context(), templateID); err != nil {
				p.jsonError(w, err.Error(), statusFor(err))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			p.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case strings.HasPrefix(sub, "apply/"):
		if r.Method != http.MethodPost {
			p.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		serverID := strings.TrimPrefix(sub, "apply/")
		ctx := observability.WithServerID(r.Context(), serverID)
		report, err := p.applier.Apply(ctx, templateID, serverID)
		if err != nil {
			p.jsonError(w, err.Error(), statusFor(err))
			return
		}
		p.jsonResponse(w, report)
	default:
		p.jsonError(w, "not found", http.StatusNotFound)
	}
}

// apiModpacks handles GET /api/modpacks?query=...
func (p *Panel) apiModpacks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		p.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query()
	pageSize, _ := strconv.Atoi(query.Get("page_size"))
	index, _ := strconv.Atoi(query.Get("index"))
	packs, err := p.catalog.Search(r.Context(), catalog.SearchOptions{
		Query:    query.Get("query"),
		Category: query.Get("category"),
		PageSize: pageSize,
		Index:    index,
	})
	if err != nil {
		p.jsonError(w, err.Error(), statusFor(err))
		return
	}
	p.jsonResponse(w, map[string]any{"modpacks": packs})
}

// apiModpackDetail routes /api/modpacks/{id} and
// /api/modpacks/{id}/versions, plus the sites listing and custom URL
// validation subresources.
func (p *Panel) apiModpackDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/modpacks/")
	idPart, sub, _ := strings.Cut(rest, "/")

	switch idPart {
	case "sites":
		if r.Method != http.MethodGet {
			p.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		p.jsonResponse(w, map[string]any{"sites": p.catalog.PopularSites()})
		return
	case "validate-url":
		if r.Method != http.MethodPost {
			p.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			p.jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		info, err := p.catalog.ValidateCustomURL(r.Context(), req.URL)
		if err != nil {
			p.jsonError(w, err.Error(), statusFor(err))
			return
		}
		p.jsonResponse(w, info)
		return
	}

	if r.Method != http.MethodGet {
		p.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	modpackID, err := strconv.Atoi(idPart)
	if err != nil {
		p.jsonError(w, "invalid modpack id", http.StatusBadRequest)
		return
	}

	switch sub {
	case "":
		details, err := p.catalog.Details(r.Context(), modpackID)
		if err != nil {
			p.jsonError(w, err.Error(), statusFor(err))
			return
		}
		p.jsonResponse(w, details)
	case "versions":
		versions, err := p.catalog.Versions(r.Context(), modpackID, r.URL.Query().Get("game_version"))
		if err != nil {
			p.jsonError(w, err.Error(), statusFor(err))
			return
		}
		p.jsonResponse(w, map[string]any{"versions": versions})
	default:
		p.jsonError(w, "not found", http.StatusNotFound)
	}
}

func (p *Panel) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		p.logger.Error(context.Background(), "json encode error", "error", err)
	}
}

func (p *Panel) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, configstore.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, configstore.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, configstore.ErrRevisionMismatch):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, syncengine.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scan.ErrScanInFlight):
		return http.StatusTooManyRequests
	case errors.Is(err, catalog.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, catalog.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
