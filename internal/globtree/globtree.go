// Package globtree implements a radix tree over anchored glob patterns.
// Where matching one URL against one pattern is a job for urlmatch.Match, the
// tree answers the per-request question "which of the loaded patterns match
// this URL?" in a single traversal instead of one scan per pattern.
package globtree

import "sync"

type Data comparable

// Tree is a prefix tree for storing and retrieving data associated with
// anchored glob patterns. A pattern matches only if it consumes the entire
// URL.
//
// Insert and Compact must not run concurrently with Match.
type Tree[T Data] struct {
	// insertMu protects the tree during inserts.
	insertMu sync.Mutex

	root *node[T]
}

func New[T Data]() *Tree[T] {
	return &Tree[T]{
		root: &node[T]{},
	}
}

// Insert adds a pattern with associated data to the tree.
func (t *Tree[T]) Insert(pattern string, v T) {
	var parent *node[T]

	tokens := tokenize(pattern)

	t.insertMu.Lock()
	defer t.insertMu.Unlock()

	n := t.root
	for {
		if len(tokens) == 0 {
			if n.isLeaf() {
				n.leaf.val = append(n.leaf.val, v)
			} else {
				n.leaf = &leaf[T]{
					val: []T{v},
				}
			}
			return
		}

		parent = n
		n = n.getEdge(tokens[0])

		if n == nil {
			n := &node[T]{
				prefix: tokens,
				leaf: &leaf[T]{
					val: []T{v},
				},
			}
			parent.addEdge(edge[T]{
				label: tokens[0],
				node:  n,
			})
			return
		}

		commonPrefix := longestPrefix(tokens, n.prefix)
		if commonPrefix == len(n.prefix) {
			tokens = tokens[commonPrefix:]
			continue
		}

		child := &node[T]{
			prefix: tokens[:commonPrefix],
		}
		parent.updateEdge(tokens[0], child)

		child.addEdge(edge[T]{
			label: n.prefix[commonPrefix],
			node:  n,
		})
		n.prefix = n.prefix[commonPrefix:]

		l := &leaf[T]{
			val: []T{v},
		}
		if commonPrefix == len(tokens) {
			child.leaf = l
		} else {
			n := &node[T]{
				leaf:   l,
				prefix: tokens[commonPrefix:],
			}
			child.addEdge(edge[T]{
				label: tokens[commonPrefix],
				node:  n,
			})
		}
		return
	}
}

// Match retrieves the data of every pattern matching the given URL. The
// result is de-duplicated; its order is unspecified.
func (t *Tree[T]) Match(url string) []T {
	seen := make(map[T]struct{})
	var result []T

	t.root.match(url, func(items []T) {
		for _, item := range items {
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			result = append(result, item)
		}
	})

	return result
}

func longestPrefix(a, b []token) int {
	maxLen := len(a)
	if l := len(b); l < maxLen {
		maxLen = l
	}
	for i := 0; i < maxLen; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return maxLen
}
