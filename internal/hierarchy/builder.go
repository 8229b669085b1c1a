package hierarchy

import (
	"fmt"
	"log/slog"
)

// Tree is an immutable hierarchy produced by Build. Every surviving node is
// reachable from exactly one root and its level is its parent's level plus one.
type Tree struct {
	nodes    map[string]*Node
	children map[string][]string
	roots    []string
	order    []string
}

// BuildReport summarizes the repairs applied while building a tree.
type BuildReport struct {
	Nodes             int
	Roots             int
	MaxDepth          int
	OrphansRepaired   []string
	CyclesExcluded    []string
	DuplicatesDropped []string
}

// CycleError reports a parent-reference cycle found during a build. Builds do
// not fail on cycles; the error is carried in logs and diagnostics only.
type CycleError struct {
	NodeIDs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("hierarchy cycle through %d node(s): %v", len(e.NodeIDs), e.NodeIDs)
}

// Build assembles a tree from parsed nodes. Input order is preserved for
// roots and sibling groups. Malformed references are repaired rather than
// rejected: duplicate ids keep the first occurrence, nodes whose parent does
// not exist are reattached as roots, and subtrees whose parent chain forms a
// cycle are excluded. All repairs are counted in the report.
func Build(input []Node, logger *slog.Logger) (*Tree, *BuildReport) {
	if logger == nil {
		logger = slog.Default()
	}
	report := &BuildReport{}

	// Drop duplicate ids, keeping the first occurrence.
	nodes := make(map[string]*Node, len(input))
	order := make([]string, 0, len(input))
	for i := range input {
		n := input[i]
		if n.ID == "" {
			continue
		}
		if _, seen := nodes[n.ID]; seen {
			report.DuplicatesDropped = append(report.DuplicatesDropped, n.ID)
			continue
		}
		n.Aliases = dedupeStrings(n.Aliases)
		nodes[n.ID] = &n
		order = append(order, n.ID)
	}

	// Reattach nodes whose parent does not exist as roots.
	for _, id := range order {
		n := nodes[id]
		if n.ParentID == "" {
			continue
		}
		if _, ok := nodes[n.ParentID]; !ok {
			logger.Warn("orphan node reattached at root", "node_id", n.ID, "missing_parent", n.ParentID)
			report.OrphansRepaired = append(report.OrphansRepaired, n.ID)
			n.ParentID = ""
		}
	}

	// Walk parent chains to find cycles. A node is excluded when its chain
	// reaches a cycle, which covers both the ring itself and everything
	// hanging below it.
	const (
		stateUnvisited = iota
		stateOK
		stateCyclic
	)
	state := make(map[string]int, len(nodes))
	for _, id := range order {
		if state[id] != stateUnvisited {
			continue
		}
		path := []string{id}
		pos := map[string]int{id: 0}
		verdict := stateOK
		for {
			cur := nodes[path[len(path)-1]]
			next := cur.ParentID
			if next == "" || state[next] == stateOK {
				break
			}
			if state[next] == stateCyclic {
				verdict = stateCyclic
				break
			}
			if at, seen := pos[next]; seen {
				verdict = stateCyclic
				logger.Warn("hierarchy cycle excluded", "error", &CycleError{NodeIDs: path[at:]})
				break
			}
			pos[next] = len(path)
			path = append(path, next)
		}
		for _, pid := range path {
			state[pid] = verdict
		}
	}

	tree := &Tree{
		nodes:    make(map[string]*Node, len(nodes)),
		children: make(map[string][]string),
	}
	for _, id := range order {
		if state[id] == stateCyclic {
			report.CyclesExcluded = append(report.CyclesExcluded, id)
			continue
		}
		n := nodes[id]
		tree.nodes[id] = n
		tree.order = append(tree.order, id)
		if n.ParentID == "" {
			tree.roots = append(tree.roots, id)
		} else {
			tree.children[n.ParentID] = append(tree.children[n.ParentID], id)
		}
	}

	// Assign levels breadth first from the roots.
	queue := make([]string, 0, len(tree.roots))
	for _, id := range tree.roots {
		tree.nodes[id].Level = 1
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		level := tree.nodes[id].Level
		if level > report.MaxDepth {
			report.MaxDepth = level
		}
		for _, childID := range tree.children[id] {
			tree.nodes[childID].Level = level + 1
			queue = append(queue, childID)
		}
	}

	report.Nodes = len(tree.nodes)
	report.Roots = len(tree.roots)
	logger.Info("hierarchy built",
		"nodes", report.Nodes,
		"roots", report.Roots,
		"max_depth", report.MaxDepth,
		"orphans_repaired", len(report.OrphansRepaired),
		"cycles_excluded", len(report.CyclesExcluded),
		"duplicates_dropped", len(report.DuplicatesDropped))
	return tree, report
}

// Node returns the node with the given id.
func (t *Tree) Node(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Parent returns the parent of the given node, if it has one.
func (t *Tree) Parent(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	if !ok || n.ParentID == "" {
		return nil, false
	}
	p, ok := t.nodes[n.ParentID]
	return p, ok
}

// Children returns the direct children of a node in input order.
func (t *Tree) Children(id string) []*Node {
	ids := t.children[id]
	out := make([]*Node, 0, len(ids))
	for _, cid := range ids {
		out = append(out, t.nodes[cid])
	}
	return out
}

// Siblings returns the other children of the node's parent, in input order.
// Roots have no siblings.
func (t *Tree) Siblings(id string) []*Node {
	n, ok := t.nodes[id]
	if !ok || n.ParentID == "" {
		return nil
	}
	var out []*Node
	for _, cid := range t.children[n.ParentID] {
		if cid != id {
			out = append(out, t.nodes[cid])
		}
	}
	return out
}

// Ancestors returns the chain from root down to the node's parent.
func (t *Tree) Ancestors(id string) []*Node {
	var chain []*Node
	n, ok := t.nodes[id]
	for ok && n.ParentID != "" {
		n, ok = t.nodes[n.ParentID]
		if ok {
			chain = append(chain, n)
		}
	}
	// Reverse so the root comes first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Path returns display names from the root down to the node itself.
func (t *Tree) Path(id string) []string {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	ancestors := t.Ancestors(id)
	path := make([]string, 0, len(ancestors)+1)
	for _, a := range ancestors {
		path = append(path, a.DisplayName)
	}
	return append(path, n.DisplayName)
}

// Roots returns the root nodes in input order.
func (t *Tree) Roots() []*Node {
	out := make([]*Node, 0, len(t.roots))
	for _, id := range t.roots {
		out = append(out, t.nodes[id])
	}
	return out
}

// NodeIDs returns all surviving node ids in input order.
func (t *Tree) NodeIDs() []string {
	return t.order
}

// Len reports the number of nodes in the tree.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// dedupeStrings removes duplicates while preserving first-occurrence order.
func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
