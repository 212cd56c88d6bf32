package gbdt

import (
	"math"
	"sort"
)

// NodeType represents the type of a tree node
type NodeType int

const (
	// LeafNode represents a terminal node with a value
	LeafNode NodeType = iota
	// NumericalNode sends value <= Threshold to the left child
	NumericalNode
	// CategoricalNode sends level codes listed in Categories to the left child
	CategoricalNode
)

// Node is a single node of a regression tree on raw scores.
type Node struct {
	NodeType   NodeType `msgpack:"type"`
	LeftChild  int      `msgpack:"left"`  // -1 for leaves
	RightChild int      `msgpack:"right"` // -1 for leaves

	// Split information
	SplitFeature int     `msgpack:"feature"`
	Threshold    float64 `msgpack:"threshold,omitempty"`
	Categories   []int   `msgpack:"categories,omitempty"` // sorted
	DefaultLeft  bool    `msgpack:"default_left,omitempty"`
	Gain         float64 `msgpack:"gain,omitempty"`

	// Leaf information, already scaled by the learning rate
	LeafValue float64 `msgpack:"value,omitempty"`
	Count     int     `msgpack:"count"`
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.NodeType == LeafNode
}

// goesLeft reports the direction of v at a split node.
func (n *Node) goesLeft(v float64) bool {
	if math.IsNaN(v) {
		return n.DefaultLeft
	}
	if n.NodeType == CategoricalNode {
		code := int(v)
		k := sort.SearchInts(n.Categories, code)
		return k < len(n.Categories) && n.Categories[k] == code
	}
	return v <= n.Threshold
}

// Tree is one boosting round. Nodes[0] is the root.
type Tree struct {
	Nodes []Node `msgpack:"nodes"`
}

// Predict returns the raw score contribution of the tree for one encoded row.
func (t *Tree) Predict(row []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return n.LeafValue
		}
		if n.goesLeft(row[n.SplitFeature]) {
			i = n.LeftChild
		} else {
			i = n.RightChild
		}
	}
}

// NumLeaves returns the number of leaves.
func (t *Tree) NumLeaves() int {
	leaves := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			leaves++
		}
	}
	return leaves
}
