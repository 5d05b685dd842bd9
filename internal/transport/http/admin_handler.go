package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/vincent19951222/quiz-website/internal/admin"
	"github.com/vincent19951222/quiz-website/internal/store"
)

// adminSecretHeader carries the shared secret; a UI speed bump, not a
// security boundary.
const adminSecretHeader = "X-Admin-Secret"

// AdminHandler exposes the administration view: record listing, aggregate
// stats, spreadsheet export, batch sync, and the full clear.
type AdminHandler struct {
	service *admin.Service
	secret  string
	logger  *slog.Logger
}

func NewAdminHandler(service *admin.Service, secret string, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{service: service, secret: secret, logger: logger}
}

// Register mounts the admin routes on mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/records", h.guard(h.handleRecords))
	mux.HandleFunc("/admin/stats", h.guard(h.handleStats))
	mux.HandleFunc("/admin/export", h.guard(h.handleExport))
	mux.HandleFunc("/admin/sync", h.guard(h.handleSync))
	mux.HandleFunc("/admin/test-connection", h.guard(h.handleTestConnection))
	mux.HandleFunc("/admin/clear", h.guard(h.handleClear))
}

func (h *AdminHandler) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.secret == "" || r.Header.Get(adminSecretHeader) != h.secret {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (h *AdminHandler) handleRecords(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.service.List(r.Context(), filterFromQuery(r.URL.Query()), sortFromQuery(r.URL.Query()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, attempts)
}

func (h *AdminHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.service.List(r.Context(), filterFromQuery(r.URL.Query()), store.Sort{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.service.ComputeStats(attempts))
}

func (h *AdminHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.service.List(r.Context(), filterFromQuery(r.URL.Query()), sortFromQuery(r.URL.Query()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	filename, data, err := admin.Export(attempts, time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename*=UTF-8''%s`, url.PathEscape(filename)))
	_, _ = w.Write(data)
}

func (h *AdminHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	synced, total, err := h.service.SyncAll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int{"synced": synced, "total": total})
}

func (h *AdminHandler) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]bool{"connected": h.service.TestConnection(r.Context())})
}

func (h *AdminHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.service.Clear(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func filterFromQuery(q url.Values) store.Filter {
	return store.Filter{Query: q.Get("query")}
}

func sortFromQuery(q url.Values) store.Sort {
	field := store.SortField(q.Get("sort"))
	switch field {
	case store.SortByCompletedAt, store.SortByAccuracy, store.SortByName:
	default:
		field = store.SortByCompletedAt
	}
	return store.Sort{Field: field, Desc: q.Get("order") != "asc"}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "err", err)
	}
}
