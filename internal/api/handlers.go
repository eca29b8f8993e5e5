package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/martinsuchenak/ipamd/internal/log"
	"github.com/martinsuchenak/ipamd/internal/model"
	"github.com/martinsuchenak/ipamd/internal/storage"
	"github.com/martinsuchenak/ipamd/pkg/cidrtree"
)

// SyncTrigger starts an out-of-band source sync. Returns false when a
// pass is already running.
type SyncTrigger interface {
	TriggerSync() bool
}

// Handler handles HTTP requests
type Handler struct {
	registry Registry
	sync     SyncTrigger
}

// Registry is the registry surface consumed by the API. An interface so
// handler tests can run against the real registry or a stub.
type Registry interface {
	Register(cidr string, kind cidrtree.Kind, tags []string, source string) (*model.CIDRRecord, error)
	Deregister(cidr string) error
	List(filter *model.CIDRFilter) ([]*model.CIDRRecord, error)
	Get(cidr string) (*model.CIDRRecord, error)
	TagsOf(cidr string) ([]string, error)
	Children(cidr string) ([]string, error)
	Ancestors(cidr string) ([]string, error)
	FreeBlock(parent string, prefixLen int) (string, error)
	Nested(cidr string) (cidrtree.NestedNode, error)
	LookupIP(ip string) (*model.CIDRRecord, error)
}

// NewHandler creates a new API handler. sync may be nil when no sources
// are configured.
func NewHandler(reg Registry, sync SyncTrigger) *Handler {
	return &Handler{registry: reg, sync: sync}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// CIDR text contains '/', so blocks are addressed with the ?cidr=
	// query parameter instead of a path segment
	mux.HandleFunc("POST /api/cidrs", h.registerCIDR)
	mux.HandleFunc("GET /api/cidrs", h.listCIDRs)
	mux.HandleFunc("DELETE /api/cidrs", h.deregisterCIDR)
	mux.HandleFunc("GET /api/cidrs/lookup", h.lookupCIDR)
	mux.HandleFunc("GET /api/cidrs/tags", h.tagsOfCIDR)
	mux.HandleFunc("GET /api/cidrs/children", h.childrenOfCIDR)
	mux.HandleFunc("GET /api/cidrs/ancestors", h.ancestorsOfCIDR)
	mux.HandleFunc("GET /api/cidrs/tree", h.treeOfCIDR)
	mux.HandleFunc("POST /api/cidrs/free-block", h.findFreeBlock)
	mux.HandleFunc("GET /api/cidrs/ip", h.lookupIP)
	mux.HandleFunc("POST /api/sync", h.triggerSync)
}

// registerCIDR handles POST /api/cidrs
func (h *Handler) registerCIDR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CIDR string   `json:"cidr"`
		Kind string   `json:"kind"`
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CIDR == "" {
		h.writeError(w, http.StatusBadRequest, "cidr is required")
		return
	}

	rec, err := h.registry.Register(req.CIDR, cidrtree.ParseKind(req.Kind), req.Tags, "api")
	if err != nil {
		h.domainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, rec)
}

// listCIDRs handles GET /api/cidrs?tag=&kind=
func (h *Handler) listCIDRs(w http.ResponseWriter, r *http.Request) {
	var filter *model.CIDRFilter
	tag := r.URL.Query().Get("tag")
	kind := r.URL.Query().Get("kind")
	if tag != "" || kind != "" {
		filter = &model.CIDRFilter{Tag: tag}
		if kind != "" {
			filter.Kind = cidrtree.ParseKind(kind)
		}
	}

	records, err := h.registry.List(filter)
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, records)
}

// lookupCIDR handles GET /api/cidrs/lookup?cidr=
func (h *Handler) lookupCIDR(w http.ResponseWriter, r *http.Request) {
	cidr := r.URL.Query().Get("cidr")
	if cidr == "" {
		h.writeError(w, http.StatusBadRequest, "cidr parameter required")
		return
	}

	rec, err := h.registry.Get(cidr)
	if err != nil {
		h.domainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

// deregisterCIDR handles DELETE /api/cidrs?cidr=
func (h *Handler) deregisterCIDR(w http.ResponseWriter, r *http.Request) {
	cidr := r.URL.Query().Get("cidr")
	if cidr == "" {
		h.writeError(w, http.StatusBadRequest, "cidr parameter required")
		return
	}

	if err := h.registry.Deregister(cidr); err != nil {
		h.domainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// tagsOfCIDR handles GET /api/cidrs/tags?cidr=
func (h *Handler) tagsOfCIDR(w http.ResponseWriter, r *http.Request) {
	cidr := r.URL.Query().Get("cidr")
	if cidr == "" {
		h.writeError(w, http.StatusBadRequest, "cidr parameter required")
		return
	}

	tags, err := h.registry.TagsOf(cidr)
	if err != nil {
		h.domainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"cidr": cidr, "tags": tags})
}

// childrenOfCIDR handles GET /api/cidrs/children?cidr=
// Without the parameter it returns the top-level blocks.
func (h *Handler) childrenOfCIDR(w http.ResponseWriter, r *http.Request) {
	cidr := r.URL.Query().Get("cidr")

	children, err := h.registry.Children(cidr)
	if err != nil {
		h.domainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"cidr": cidr, "children": children})
}

// ancestorsOfCIDR handles GET /api/cidrs/ancestors?cidr=
func (h *Handler) ancestorsOfCIDR(w http.ResponseWriter, r *http.Request) {
	cidr := r.URL.Query().Get("cidr")
	if cidr == "" {
		h.writeError(w, http.StatusBadRequest, "cidr parameter required")
		return
	}

	ancestors, err := h.registry.Ancestors(cidr)
	if err != nil {
		h.domainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"cidr": cidr, "ancestors": ancestors})
}

// treeOfCIDR handles GET /api/cidrs/tree?cidr=
// Without the parameter it returns the whole hierarchy.
func (h *Handler) treeOfCIDR(w http.ResponseWriter, r *http.Request) {
	cidr := r.URL.Query().Get("cidr")

	nested, err := h.registry.Nested(cidr)
	if err != nil {
		h.domainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, nested)
}

// findFreeBlock handles POST /api/cidrs/free-block
func (h *Handler) findFreeBlock(w http.ResponseWriter, r *http.Request) {
	var req model.FreeBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Parent == "" {
		h.writeError(w, http.StatusBadRequest, "parent is required")
		return
	}

	free, err := h.registry.FreeBlock(req.Parent, req.PrefixLength)
	if err != nil {
		h.domainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, model.FreeBlockResponse{Parent: req.Parent, CIDR: free})
}

// lookupIP handles GET /api/cidrs/ip?ip=
func (h *Handler) lookupIP(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		h.writeError(w, http.StatusBadRequest, "ip parameter required")
		return
	}

	rec, err := h.registry.LookupIP(ip)
	if err != nil {
		h.domainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

// triggerSync handles POST /api/sync
func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		h.writeError(w, http.StatusNotImplemented, "no sources configured")
		return
	}

	if !h.sync.TriggerSync() {
		h.writeError(w, http.StatusConflict, "sync already running")
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// domainError maps registry errors to HTTP status codes
func (h *Handler) domainError(w http.ResponseWriter, err error) {
	var overlap *cidrtree.OverlapError
	switch {
	case errors.Is(err, cidrtree.ErrInvalidCIDR), errors.Is(err, cidrtree.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, cidrtree.ErrNotFound), errors.Is(err, storage.ErrCIDRNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &overlap):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, cidrtree.ErrNoSpace):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.internalError(w, err)
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// internalError logs the error and writes a generic 500 response
func (h *Handler) internalError(w http.ResponseWriter, err error) {
	log.Error("Internal server error", "error", err)
	h.writeError(w, http.StatusInternalServerError, "Internal Server Error")
}
