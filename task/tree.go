package task

import (
	"errors"
	"fmt"
)

// DepthLimitExceededError reports that adding a child would place it deeper
// than the child's own configured MaxDepth.
type DepthLimitExceededError struct {
	Depth    int
	MaxDepth int
}

func (e *DepthLimitExceededError) Error() string {
	return fmt.Sprintf("task: depth %d exceeds max depth %d", e.Depth, e.MaxDepth)
}

// CycleInTreeError reports that adding a child would make an existing
// ancestor a descendant of itself.
type CycleInTreeError struct {
	ChildID string
}

func (e *CycleInTreeError) Error() string {
	return "task: adding child " + e.ChildID + " would create a cycle"
}

// ErrChildAlreadyParented is returned by AddSubTask when child already has
// a different parent; detach it first with RemoveParent.
var ErrChildAlreadyParented = errors.New("task: child already has a parent")

// TreeTaskNode is a Task with parent/children links, forming the tree a
// Scheduler drives. parent is a non-owning back-reference: parent owns
// children, not vice versa.
type TreeTaskNode struct {
	*Task

	parent   *TreeTaskNode
	children []*TreeTaskNode
}

// NewNode constructs a root TreeTaskNode (no parent) wrapping a freshly
// built Task.
func NewNode(title, taskType string, cfg Config) *TreeTaskNode {
	return &TreeTaskNode{Task: New(title, taskType, cfg)}
}

// CurrentDepth returns 0 for a root node, or one more than its parent's
// depth otherwise.
func (n *TreeTaskNode) CurrentDepth() int {
	if n.parent == nil {
		return 0
	}
	return n.parent.CurrentDepth() + 1
}

// IsRoot reports whether n has no parent.
func (n *TreeTaskNode) IsRoot() bool { return n.parent == nil }

// IsLeaf reports whether n has no children.
func (n *TreeTaskNode) IsLeaf() bool { return len(n.children) == 0 }

// Parent returns n's parent, or nil if n is a root.
func (n *TreeTaskNode) Parent() *TreeTaskNode { return n.parent }

// GetSubTasks returns n's children in insertion order. The returned slice
// is a copy; mutating it does not affect the tree.
func (n *TreeTaskNode) GetSubTasks() []*TreeTaskNode {
	out := make([]*TreeTaskNode, len(n.children))
	copy(out, n.children)
	return out
}

// AddSubTask appends child to n's children after validating that doing so
// would not exceed child's configured max depth and would not introduce a
// cycle (child must not already be an ancestor of n).
func (n *TreeTaskNode) AddSubTask(child *TreeTaskNode) error {
	if child.parent != nil {
		return ErrChildAlreadyParented
	}
	if isAncestor(child, n) {
		return &CycleInTreeError{ChildID: child.GetID()}
	}

	depth := n.CurrentDepth() + 1
	if maxDepth := child.GetMaxDepth(); maxDepth > 0 && depth > maxDepth {
		return &DepthLimitExceededError{Depth: depth, MaxDepth: maxDepth}
	}

	child.parent = n
	n.children = append(n.children, child)
	return nil
}

// isAncestor reports whether candidate is an ancestor of n (walking up from
// n). Used to reject a cyclic AddSubTask before it corrupts the tree.
func isAncestor(candidate, n *TreeTaskNode) bool {
	for cur := n; cur != nil; cur = cur.parent {
		if cur == candidate {
			return true
		}
	}
	return false
}

// RemoveSubTask detaches child from n's children, clearing child's parent
// back-reference. It returns silently (no error) if child is not present.
func (n *TreeTaskNode) RemoveSubTask(child *TreeTaskNode) {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			child.parent = nil
			return
		}
	}
}

// RemoveParent detaches n from its parent, if any, making n a root. n's own
// state and children are unaffected; the parent's children slice no longer
// contains n afterward.
func (n *TreeTaskNode) RemoveParent() {
	if n.parent == nil {
		return
	}
	n.parent.RemoveSubTask(n)
}
