package globtree

import "sort"

type leaf[T Data] struct {
	val []T
}

type edge[T Data] struct {
	label token
	node  *node[T]
}

type node[T Data] struct {
	// leaf stores a possible leaf.
	leaf *leaf[T]

	// prefix is the common prefix.
	prefix []token

	edges []edge[T]
}

func (n *node[T]) isLeaf() bool {
	return n.leaf != nil
}

func (n *node[T]) addEdge(e edge[T]) {
	idx := sort.Search(len(n.edges), func(i int) bool {
		return n.edges[i].label >= e.label
	})

	n.edges = append(n.edges, edge[T]{})
	copy(n.edges[idx+1:], n.edges[idx:])
	n.edges[idx] = e
}

func (n *node[T]) updateEdge(label token, node *node[T]) {
	idx := sort.Search(len(n.edges), func(i int) bool {
		return n.edges[i].label >= label
	})
	if idx < len(n.edges) && n.edges[idx].label == label {
		n.edges[idx].node = node
	}
}

func (n *node[T]) getEdge(label token) *node[T] {
	idx := sort.Search(len(n.edges), func(i int) bool {
		return n.edges[i].label >= label
	})
	if idx < len(n.edges) && n.edges[idx].label == label {
		return n.edges[idx].node
	}
	return nil
}

// match collects the values of every pattern that consumes url in its
// entirety starting at this node. Wildcards backtrack over every possible
// split point.
func (n *node[T]) match(url string, collect func([]T)) {
	var walk func(prefix []token, rest string)
	walk = func(prefix []token, rest string) {
		if len(prefix) == 0 {
			// Node prefix exhausted; a pattern ends here only if the URL is
			// exhausted too.
			if rest == "" && n.isLeaf() {
				collect(n.leaf.val)
			}
			if w := n.getEdge(tokenWildcard); w != nil {
				// A wildcard child may still match an empty remainder.
				w.match(rest, collect)
			}
			if rest != "" {
				if c := n.getEdge(token(rest[0])); c != nil {
					c.match(rest, collect)
				}
			}
			return
		}

		switch prefix[0] {
		case tokenWildcard:
			for i := 0; i <= len(rest); i++ {
				walk(prefix[1:], rest[i:])
			}
		default:
			if rest != "" && token(rest[0]) == prefix[0] {
				walk(prefix[1:], rest[1:])
			}
		}
	}
	walk(n.prefix, url)
}
