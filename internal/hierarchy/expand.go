package hierarchy

import "fmt"

// NotAvailable is the rendered form for a requested year with no recorded
// value and for a change ratio whose base year is zero.
const NotAvailable = "N/A"

// ExpandOptions controls how much neighborhood Expand collects per node.
type ExpandOptions struct {
	// Depth limits how many child generations are collected. Zero means
	// the default of one, direct children only.
	Depth int
	// Years selects the calendar years to report. Empty selects every
	// year with data for the node.
	Years []int
	// IncludeSiblings adds the names of the node's siblings.
	IncludeSiblings bool
}

// YearValue is one calendar year's figure for a node. Available is false
// when the year was requested but no value covers it.
type YearValue struct {
	Year      int
	Available bool
	Value     float64
	Text      string
	Unit      string
	Derived   bool
}

// YearChange is the movement between two reported years. Pct is "N/A" when
// the earlier value is zero, since the ratio is undefined.
type YearChange struct {
	FromYear int
	ToYear   int
	Abs      float64
	Pct      string
}

// ChildContext is one descendant collected during expansion.
type ChildContext struct {
	Node  *Node
	Depth int // 1 for direct children
	Years []YearValue
}

// NodeContext is the hierarchy neighborhood of one matched node.
type NodeContext struct {
	Node     *Node
	Path     []string
	Children []ChildContext
	Siblings []string
	Years    []YearValue
	Changes  []YearChange
}

// Expander derives hierarchy context for retrieval matches.
type Expander struct {
	tree   *Tree
	values *ValueSet
}

// NewExpander creates an Expander over a built tree and its fact values.
func NewExpander(tree *Tree, values *ValueSet) *Expander {
	if values == nil {
		values = NewValueSet(nil)
	}
	return &Expander{tree: tree, values: values}
}

// Expand returns a context block per node id. Duplicate ids keep their
// first occurrence and unknown ids are skipped.
func (e *Expander) Expand(nodeIDs []string, opts ExpandOptions) []NodeContext {
	seen := make(map[string]struct{}, len(nodeIDs))
	out := make([]NodeContext, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if nc, ok := e.Context(id, opts); ok {
			out = append(out, nc)
		}
	}
	return out
}

// Context builds the neighborhood of a single node.
func (e *Expander) Context(nodeID string, opts ExpandOptions) (NodeContext, bool) {
	if e.tree == nil {
		return NodeContext{}, false
	}
	node, ok := e.tree.Node(nodeID)
	if !ok {
		return NodeContext{}, false
	}
	depth := opts.Depth
	if depth <= 0 {
		depth = 1
	}

	years := opts.Years
	if len(years) == 0 {
		years = e.values.YearsFor(nodeID)
	}

	nc := NodeContext{
		Node:  node,
		Path:  e.tree.Path(nodeID),
		Years: e.yearValues(nodeID, years),
	}
	nc.Changes = changes(nc.Years)

	// Collect descendants breadth first down to the requested depth.
	type frame struct {
		id    string
		depth int
	}
	queue := make([]frame, 0)
	for _, child := range e.tree.Children(nodeID) {
		queue = append(queue, frame{id: child.ID, depth: 1})
	}
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		child, _ := e.tree.Node(f.id)
		nc.Children = append(nc.Children, ChildContext{
			Node:  child,
			Depth: f.depth,
			Years: e.yearValues(f.id, years),
		})
		if f.depth < depth {
			for _, grand := range e.tree.Children(f.id) {
				queue = append(queue, frame{id: grand.ID, depth: f.depth + 1})
			}
		}
	}

	if opts.IncludeSiblings {
		for _, sib := range e.tree.Siblings(nodeID) {
			nc.Siblings = append(nc.Siblings, sib.DisplayName)
		}
	}
	return nc, true
}

// yearValues resolves the requested years against the value set, keeping
// explicit not-available entries for missing years.
func (e *Expander) yearValues(nodeID string, years []int) []YearValue {
	out := make([]YearValue, 0, len(years))
	for _, year := range years {
		v, ok := e.values.ValueFor(nodeID, year)
		if !ok {
			out = append(out, YearValue{Year: year})
			continue
		}
		out = append(out, YearValue{
			Year:      year,
			Available: true,
			Value:     v.Value,
			Text:      v.Text,
			Unit:      v.Unit,
			Derived:   v.Derived,
		})
	}
	return out
}

// changes computes movements between consecutive available years.
func changes(years []YearValue) []YearChange {
	var out []YearChange
	for i := 1; i < len(years); i++ {
		prev, cur := years[i-1], years[i]
		if !prev.Available || !cur.Available {
			continue
		}
		change := YearChange{
			FromYear: prev.Year,
			ToYear:   cur.Year,
			Abs:      cur.Value - prev.Value,
		}
		if prev.Value == 0 {
			change.Pct = NotAvailable
		} else {
			change.Pct = fmt.Sprintf("%+.1f%%", (cur.Value-prev.Value)/prev.Value*100)
		}
		out = append(out, change)
	}
	return out
}
