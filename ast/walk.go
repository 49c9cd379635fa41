package ast

// Walk traverses the tree rooted at n in pre-order DFS, calling visit for
// every node. Returning false from visit prunes that node's subtree.
func Walk(n Node, visit func(Node) bool) {
	if n == nil || isNilNode(n) {
		return
	}
	if !visit(n) {
		return
	}
	for _, c := range n.Children() {
		Walk(c, visit)
	}
}

// NodeAt returns the innermost node whose span contains the byte offset,
// along with the path of ancestors from the root (inclusive). Returns nil
// when the offset falls outside every node.
func NodeAt(root Node, off int) (Node, []Node) {
	var path []Node
	var found Node
	Walk(root, func(n Node) bool {
		sp := n.Span()
		if !sp.Contains(off) && !(sp.Start == off && sp.End == off) {
			return false
		}
		path = append(path, n)
		found = n
		return true
	})
	return found, path
}

// BuildParentMap computes the node→parent side table for the tree. The
// tree itself never stores parent pointers; the document layer builds this
// lazily per snapshot and rebuilds it on reparse.
func BuildParentMap(root Node) map[Node]Node {
	parents := make(map[Node]Node)
	var rec func(n Node)
	rec = func(n Node) {
		for _, c := range n.Children() {
			if c == nil || isNilNode(c) {
				continue
			}
			parents[c] = n
			rec(c)
		}
	}
	if root != nil {
		rec(root)
	}
	return parents
}

// isNilNode guards against typed-nil interface values from optional
// children.
func isNilNode(n Node) bool {
	switch v := n.(type) {
	case *Block:
		return v == nil
	case *Program:
		return v == nil
	default:
		return false
	}
}
