package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// TreeNode is one node of the HEAD tree. Payload is nil while the node is
// unbound.
type TreeNode struct {
	Operation Operation
	Payload   *Payload
}

// ContentID returns the id of the node
func (n *TreeNode) ContentID() string {
	return n.Operation.ContentID
}

// IsBound reports whether a payload was resolved for the node
func (n *TreeNode) IsBound() bool {
	return n.Payload != nil
}

// HeadAsStructure is a read-only snapshot of HEAD rebuilt as a tree. It is
// loaded once by Initialize and then traversed with FilterHead.
type HeadAsStructure struct {
	store Store
	log   componentLog

	mu          sync.Mutex
	attempted   bool
	initialized bool
	root        *TreeNode
	nodes       map[string]*TreeNode
	children    map[string][]*TreeNode
	unbound     int
}

// NewHeadAsStructure creates an uninitialized snapshot over store
func NewHeadAsStructure(store Store) *HeadAsStructure {
	return &HeadAsStructure{
		store:    store,
		log:      newComponentLog("HeadAsStructure"),
		nodes:    make(map[string]*TreeNode),
		children: make(map[string][]*TreeNode),
	}
}

// Initialize loads the HEAD journal and builds the tree. It may be called once.
func (h *HeadAsStructure) Initialize(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.attempted {
		return ErrAlreadyInitialized
	}
	h.attempted = true

	ops, err := h.store.GetStreamStructures(ctx, HeadSessionID)
	if err != nil {
		h.log.errorf("Unable to read HEAD: %v", err)
		return fmt.Errorf("%w: %w", ErrUninitializable, err)
	}

	for _, op := range ops {
		switch op.Kind {
		case OperationAppend:
			h.appendNode(op)
		case OperationRemove:
			h.removeNode(op)
		case OperationClearAll:
			// the mutation pipeline owns ClearAll semantics
		}
	}

	if h.root == nil {
		h.log.errorf("No root found in HEAD (%d operations)", len(ops))
		return fmt.Errorf("%w: no root found", ErrUninitializable)
	}

	if err := h.bindPayloads(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUninitializable, err)
	}

	h.initialized = true
	h.log.debugf("Built HEAD tree: %d nodes, %d unbound", len(h.nodes), h.unbound)
	return nil
}

func (h *HeadAsStructure) appendNode(op Operation) {
	if _, ok := h.nodes[op.ContentID]; ok {
		// a later append for a known id is an update, not a new node
		return
	}
	if !op.HasParent() && h.root != nil {
		err := fmt.Errorf("%w: %s already root, ignoring %s", ErrMultipleRoots, h.root.ContentID(), op.ContentID)
		h.log.errorf("%v", err)
		return
	}

	node := &TreeNode{Operation: op}
	h.nodes[op.ContentID] = node
	if !op.HasParent() {
		h.root = node
		return
	}
	h.children[op.ParentContentID] = append(h.children[op.ParentContentID], node)
}

func (h *HeadAsStructure) removeNode(op Operation) {
	if h.root != nil && op.ContentID == h.root.ContentID() {
		h.log.errorf("Removing the root %s is not supported, clear HEAD instead", op.ContentID)
		return
	}
	node, ok := h.nodes[op.ContentID]
	if !ok {
		h.log.warnf("Remove of unknown content %s", op.ContentID)
		return
	}

	parent := node.Operation.ParentContentID
	siblings := h.children[parent]
	for i, child := range siblings {
		if child == node {
			h.children[parent] = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
	delete(h.nodes, op.ContentID)
}

func (h *HeadAsStructure) bindPayloads(ctx context.Context) error {
	ids := make([]string, 0, len(h.nodes))
	for id := range h.nodes {
		ids = append(ids, id)
	}

	payloads, err := h.store.GetPayloads(ctx, ids)
	if err != nil {
		h.log.errorf("Unable to read payloads: %v", err)
		return err
	}
	for _, p := range payloads {
		if node, ok := h.nodes[p.ContentID]; ok {
			payload := p.Payload
			node.Payload = &payload
		}
	}
	for id, node := range h.nodes {
		if !node.IsBound() {
			h.unbound++
			h.log.warnf("No payload found for %s, node left unbound", id)
		}
	}
	return nil
}

// Root returns the root node, or nil before Initialize
func (h *HeadAsStructure) Root() *TreeNode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.root
}

// Size returns the number of nodes in the tree
func (h *HeadAsStructure) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.nodes)
}

// Unbound returns the number of nodes without a payload
func (h *HeadAsStructure) Unbound() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unbound
}

// depthLocked counts the ancestors of a node. The caller holds mu.
func (h *HeadAsStructure) depthLocked(node *TreeNode) int {
	depth := 0
	for node.Operation.HasParent() {
		parent, ok := h.nodes[node.Operation.ParentContentID]
		if !ok {
			break
		}
		depth++
		node = parent
	}
	return depth
}

// FilterHead walks the tree pre-order from the root and collects every
// non-empty predicate result in traversal order. Unbound nodes are not
// offered to predicate but their children are still visited.
func FilterHead[T any](h *HeadAsStructure, predicate func(*TreeNode) (T, bool)) ([]T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.initialized {
		return nil, ErrNotInitialized
	}

	var results []T
	var visit func(node *TreeNode)
	visit = func(node *TreeNode) {
		if node.IsBound() {
			if v, ok := predicate(node); ok {
				results = append(results, v)
			}
		}
		for _, child := range h.children[node.ContentID()] {
			visit(child)
		}
	}
	visit(h.root)
	return results, nil
}

// IsUninitializable reports whether err came from a malformed or unreadable HEAD
func IsUninitializable(err error) bool {
	return errors.Is(err, ErrUninitializable)
}
