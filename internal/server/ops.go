package server

import (
	"net/http"
	"strconv"

	"github.com/riverbend/ttsproxy/internal/trace"
)

const defaultTraceSessionLimit = 20

func (d Deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"backends": d.Pool.Stats(),
		"cache":    d.Cache.Stats(),
	})
}

func (d Deps) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Cache.Stats())
}

func (d Deps) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	n := d.Cache.Clear()
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

// registerTraceRoutes wires the optional trace-inspection endpoints. A nil
// store means tracing is disabled; every route then answers 404.
func registerTraceRoutes(mux *http.ServeMux, store *trace.Store) {
	mux.HandleFunc("GET /api/traces/sessions", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, http.StatusNotFound, "tracing disabled")
			return
		}
		limit := queryInt(r, "limit", defaultTraceSessionLimit)
		offset := queryInt(r, "offset", 0)
		sessions, total, err := store.ListSessions(limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "total": total})
	})

	mux.HandleFunc("GET /api/traces/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, http.StatusNotFound, "tracing disabled")
			return
		}
		sess, runs, err := store.GetSession(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": sess, "runs": runs})
	})

	mux.HandleFunc("GET /api/traces/sessions/{id}/runs/{runId}", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, http.StatusNotFound, "tracing disabled")
			return
		}
		run, spans, err := store.GetRun(r.PathValue("id"), r.PathValue("runId"))
		if err != nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"run": run, "spans": spans})
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
