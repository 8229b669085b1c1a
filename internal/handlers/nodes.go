package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"auditrag/internal/contextutil"
	"auditrag/internal/hierarchy"
	"auditrag/internal/retrieval"
)

// NodeHandler serves hierarchy context for a single node: its path,
// children, siblings and year-by-year values from the live generation.
type NodeHandler struct {
	holder *retrieval.Holder
}

// NewNodeHandler creates a new NodeHandler.
func NewNodeHandler(holder *retrieval.Holder) *NodeHandler {
	return &NodeHandler{holder: holder}
}

// NodeYearValue is one calendar year's figure in the HTTP response.
type NodeYearValue struct {
	Year      int     `json:"year"`
	Available bool    `json:"available"`
	Value     float64 `json:"value,omitempty"`
	Text      string  `json:"text,omitempty"`
	Unit      string  `json:"unit,omitempty"`
	Derived   bool    `json:"derived,omitempty"`
}

// NodeYearChange is the movement between two reported years.
type NodeYearChange struct {
	FromYear int     `json:"from_year"`
	ToYear   int     `json:"to_year"`
	Abs      float64 `json:"abs"`
	Pct      string  `json:"pct"`
}

// NodeChild is one descendant in the HTTP response.
type NodeChild struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Depth  int             `json:"depth"`
	Values []NodeYearValue `json:"values,omitempty"`
}

// NodeResponse describes one hierarchy node with its neighborhood.
type NodeResponse struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	ParentID   string           `json:"parent_id,omitempty"`
	DocumentID string           `json:"document_id,omitempty"`
	Level      int              `json:"level"`
	IsTotal    bool             `json:"is_total,omitempty"`
	IsSubtotal bool             `json:"is_subtotal,omitempty"`
	Aliases    []string         `json:"aliases,omitempty"`
	Path       []string         `json:"path"`
	Siblings   []string         `json:"siblings,omitempty"`
	Values     []NodeYearValue  `json:"values,omitempty"`
	Changes    []NodeYearChange `json:"changes,omitempty"`
	Children   []NodeChild      `json:"children,omitempty"`
	Generation int64            `json:"generation"`
}

// ServeHTTP serves hierarchy context for the node named in the URL.
// The optional `years` parameter selects calendar years (comma
// separated) and `depth` controls how many child generations to
// include.
func (h *NodeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	rawID := strings.TrimSpace(chi.URLParam(r, "id"))
	nodeID, err := url.PathUnescape(rawID)
	if err != nil || nodeID == "" {
		h.writeError(w, http.StatusBadRequest, "Invalid node id")
		return
	}

	opts := hierarchy.ExpandOptions{IncludeSiblings: true}
	if yearsParam := r.URL.Query().Get("years"); yearsParam != "" {
		for _, field := range strings.Split(yearsParam, ",") {
			year, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				h.writeError(w, http.StatusBadRequest, "Invalid years parameter")
				return
			}
			opts.Years = append(opts.Years, year)
		}
	}
	if depthParam := r.URL.Query().Get("depth"); depthParam != "" {
		depth, err := strconv.Atoi(depthParam)
		if err != nil || depth < 1 {
			h.writeError(w, http.StatusBadRequest, "Invalid depth parameter")
			return
		}
		opts.Depth = depth
	}

	gen, ok := h.holder.Load()
	if !ok {
		h.writeError(w, http.StatusServiceUnavailable, "No corpus generation is ready yet")
		return
	}

	nc, ok := gen.Expander.Context(nodeID, opts)
	if !ok {
		logger.WarnContext(ctx, "unknown node requested", "node_id", nodeID)
		h.writeError(w, http.StatusNotFound, "Node not found")
		return
	}

	resp := NodeResponse{
		ID:         nc.Node.ID,
		Name:       nc.Node.DisplayName,
		ParentID:   nc.Node.ParentID,
		DocumentID: nc.Node.DocumentID,
		Level:      nc.Node.Level,
		IsTotal:    nc.Node.IsTotal,
		IsSubtotal: nc.Node.IsSubtotal,
		Aliases:    nc.Node.Aliases,
		Path:       nc.Path,
		Siblings:   nc.Siblings,
		Values:     toYearValues(nc.Years),
		Generation: gen.Snapshot.Generation(),
	}
	for _, change := range nc.Changes {
		resp.Changes = append(resp.Changes, NodeYearChange{
			FromYear: change.FromYear,
			ToYear:   change.ToYear,
			Abs:      change.Abs,
			Pct:      change.Pct,
		})
	}
	for _, child := range nc.Children {
		resp.Children = append(resp.Children, NodeChild{
			ID:     child.Node.ID,
			Name:   child.Node.DisplayName,
			Depth:  child.Depth,
			Values: toYearValues(child.Years),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func toYearValues(years []hierarchy.YearValue) []NodeYearValue {
	out := make([]NodeYearValue, 0, len(years))
	for _, y := range years {
		out = append(out, NodeYearValue{
			Year:      y.Year,
			Available: y.Available,
			Value:     y.Value,
			Text:      y.Text,
			Unit:      y.Unit,
			Derived:   y.Derived,
		})
	}
	return out
}

// writeError writes an error response.
func (h *NodeHandler) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}
