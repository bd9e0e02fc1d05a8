// Package tree builds the logical account hierarchy shared by every company
// of a consolidation group.
package tree

import (
	"errors"
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
)

// DefaultMaxDepth bounds the hierarchy depth.
const DefaultMaxDepth = 10

// ErrMalformedTree signals a cycle or a hierarchy deeper than the configured bound.
var ErrMalformedTree = errors.New("tree: malformed account hierarchy")

// Node is one logical account in depth-first order.
type Node struct {
	Key         string
	ParentKey   string
	Account     ledger.Account
	Indent      int
	Placeholder bool
}

// IsGroup reports whether the node aggregates children.
func (n *Node) IsGroup() bool {
	return n.Account.IsGroup
}

// Options tunes Build.
type Options struct {
	MaxDepth int
	// Less orders siblings. Defaults to account number then name.
	Less func(a, b ledger.Account) bool
}

// Tree is an ordered account hierarchy with parents always ahead of children.
type Tree struct {
	nodes    []*Node
	index    map[string]int
	children map[string][]string
}

// Build deduplicates accounts by logical key (first occurrence wins) and
// returns them in depth-first order with Indent set to the node depth.
func Build(accounts []ledger.Account, opts Options) (*Tree, error) {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	less := opts.Less
	if less == nil {
		less = defaultLess
	}

	keyByName := make(map[string]string, len(accounts))
	for _, acc := range accounts {
		keyByName[nameKey(acc.Company, acc.Name)] = acc.LogicalKey()
	}

	byKey := make(map[string]*Node, len(accounts))
	order := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		key := acc.LogicalKey()
		if key == "" {
			continue
		}
		if _, seen := byKey[key]; seen {
			continue
		}
		parent := ""
		if acc.ParentAccount != "" {
			parent = keyByName[nameKey(acc.Company, acc.ParentAccount)]
		}
		if parent == key {
			return nil, fmt.Errorf("%w: account %q is its own parent", ErrMalformedTree, key)
		}
		byKey[key] = &Node{Key: key, ParentKey: parent, Account: acc}
		order = append(order, key)
	}

	children := make(map[string][]string, len(byKey))
	var roots []string
	for _, key := range order {
		node := byKey[key]
		if _, ok := byKey[node.ParentKey]; node.ParentKey == "" || !ok {
			node.ParentKey = ""
			roots = append(roots, key)
			continue
		}
		children[node.ParentKey] = append(children[node.ParentKey], key)
	}
	sortKeys := func(keys []string) {
		sort.SliceStable(keys, func(i, j int) bool {
			return less(byKey[keys[i]].Account, byKey[keys[j]].Account)
		})
	}
	sortKeys(roots)
	for parent := range children {
		sortKeys(children[parent])
	}

	t := &Tree{index: make(map[string]int, len(byKey)), children: children}
	var walk func(key string, depth int) error
	walk = func(key string, depth int) error {
		if depth >= maxDepth {
			return fmt.Errorf("%w: depth of %q exceeds %d", ErrMalformedTree, key, maxDepth)
		}
		node := byKey[key]
		node.Indent = depth
		t.index[key] = len(t.nodes)
		t.nodes = append(t.nodes, node)
		for _, child := range children[key] {
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range roots {
		if err := walk(root, 0); err != nil {
			return nil, err
		}
	}
	if len(t.nodes) != len(byKey) {
		return nil, fmt.Errorf("%w: %d accounts unreachable from a root", ErrMalformedTree, len(byKey)-len(t.nodes))
	}
	return t, nil
}

// Clone returns a deep copy safe to mutate from another goroutine.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	out := &Tree{
		nodes:    make([]*Node, len(t.nodes)),
		index:    make(map[string]int, len(t.index)),
		children: make(map[string][]string, len(t.children)),
	}
	for i, n := range t.nodes {
		cp := *n
		out.nodes[i] = &cp
	}
	for k, v := range t.index {
		out.index[k] = v
	}
	for k, v := range t.children {
		out.children[k] = append([]string(nil), v...)
	}
	return out
}

// Nodes returns the depth-first ordered nodes.
func (t *Tree) Nodes() []*Node {
	if t == nil {
		return nil
	}
	return t.nodes
}

// Len returns the node count.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nodes)
}

// Lookup finds a node by logical key.
func (t *Tree) Lookup(key string) (*Node, bool) {
	if t == nil {
		return nil, false
	}
	i, ok := t.index[key]
	if !ok {
		return nil, false
	}
	return t.nodes[i], true
}

// Children returns the ordered child keys of key.
func (t *Tree) Children(key string) []string {
	if t == nil {
		return nil
	}
	return t.children[key]
}

// InsertPlaceholder synthesizes a node for an account that carries entries but
// is missing from the chart. The node lands directly after its parent, or is
// appended as a root when the parent is unknown too.
func (t *Tree) InsertPlaceholder(acc ledger.Account, parentKey string) *Node {
	key := acc.LogicalKey()
	if node, ok := t.Lookup(key); ok {
		return node
	}
	node := &Node{Key: key, Account: acc, Placeholder: true}
	pos := len(t.nodes)
	if parent, ok := t.Lookup(parentKey); ok {
		node.ParentKey = parentKey
		node.Indent = parent.Indent + 1
		pos = t.index[parentKey] + 1
		t.children[parentKey] = append([]string{key}, t.children[parentKey]...)
	}
	t.nodes = append(t.nodes, nil)
	copy(t.nodes[pos+1:], t.nodes[pos:])
	t.nodes[pos] = node
	for i := pos; i < len(t.nodes); i++ {
		t.index[t.nodes[i].Key] = i
	}
	return node
}

func defaultLess(a, b ledger.Account) bool {
	if a.AccountNumber != b.AccountNumber {
		return a.AccountNumber < b.AccountNumber
	}
	return a.AccountName < b.AccountName
}

func nameKey(company, name string) string {
	return company + "\x00" + name
}
