package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/basket/taskqueue/internal/engine"
	"github.com/basket/taskqueue/internal/manager"
)

// Server is a minimal read-only HTTP surface over a Manager, intended for an
// operator to scrape or poll. It carries no auth/CORS layer of its own — see
// the package doc for the task queue's broader non-goals around those
// concerns at this layer.
type Server struct {
	mgr *manager.Manager
	eng *engine.Engine // optional; nil if this process doesn't run an engine
}

// NewServer builds a Server. eng may be nil for a process that only
// publishes and never runs tasks itself.
func NewServer(mgr *manager.Manager, eng *engine.Engine) *Server {
	return &Server{mgr: mgr, eng: eng}
}

// Handler returns the mux to mount under whatever path prefix the caller
// chooses.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeOK := true
	if _, err := s.mgr.Channels(ctx); err != nil {
		storeOK = false
	}

	payload := map[string]any{
		"healthy":  storeOK,
		"store_ok": storeOK,
	}
	if s.eng != nil {
		payload["engine_state"] = s.eng.Status().State
	}

	w.Header().Set("Content-Type", "application/json")
	if !storeOK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if channel := r.URL.Query().Get("channel"); channel != "" {
		cs, err := ChannelStatus(ctx, s.mgr, channel)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, cs)
		return
	}

	st, err := Status(ctx, s.mgr, r.URL.Query().Get("simple") == "true")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := Status(ctx, s.mgr, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	runners, err := ActiveRunners(ctx, s.mgr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	payload := map[string]any{
		"pending":        st.Pending,
		"running":        st.Running,
		"completed":      st.Completed,
		"errors":         st.Errors,
		"active_runners": len(runners),
	}
	if s.eng != nil {
		egs := s.eng.Status()
		payload["local_active_tasks"] = egs.ActiveTasks
		payload["local_state"] = egs.State
	}
	writeJSON(w, payload)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
