// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txgraph

import (
	"iter"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// TxGraph tracks the spend relationships between unconfirmed transactions.
// Edges point from parent (the transaction whose output is spent) to child
// (the spender), forming a DAG. The graph answers ancestor/descendant
// queries, detects conflicts against pooled spends, and performs cascading
// removal in dependency order.
type TxGraph struct {
	config *Config

	// nodes stores all transactions currently tracked. Hash map provides
	// O(1) lookups by transaction ID, which is critical for performance
	// as the pool can contain thousands of transactions.
	nodes map[chainhash.Hash]*TxGraphNode

	// spentBy maps an outpoint to the transaction that spends it. This is
	// the sole source of truth for conflict detection: a candidate input
	// collides with the pool exactly when its outpoint is present here.
	spentBy map[wire.OutPoint]*TxGraphNode

	// mu protects the graph structure. RWMutex allows concurrent reads
	// (queries, iteration) while serializing writes.
	mu sync.RWMutex
}

// New creates a new transaction graph.
func New(config *Config) *TxGraph {
	if config == nil {
		config = DefaultConfig()
	}

	return &TxGraph{
		config:  config,
		nodes:   make(map[chainhash.Hash]*TxGraphNode),
		spentBy: make(map[wire.OutPoint]*TxGraphNode),
	}
}

// AddTransaction adds a transaction to the graph and wires edges to any
// parents already present. The new node starts with no children: a
// transaction whose outputs were already spent by a pooled transaction would
// have conflicted on admission, so children can only be attached by later
// additions.
func (g *TxGraph) AddTransaction(tx *btcutil.Tx, txDesc *TxDesc) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	hash := *tx.Hash()
	if _, exists := g.nodes[hash]; exists {
		return ErrTransactionExists
	}
	if len(g.nodes) >= g.config.MaxNodes {
		return ErrGraphFull
	}

	node := &TxGraphNode{
		TxHash:   hash,
		Tx:       tx,
		TxDesc:   txDesc,
		Parents:  make(map[chainhash.Hash]*TxGraphNode),
		Children: make(map[chainhash.Hash]*TxGraphNode),
	}
	g.nodes[hash] = node

	// Connect edges based on inputs. Each spent outpoint is recorded so
	// conflicting spends of the same output are detected in O(1).
	for _, txIn := range tx.MsgTx().TxIn {
		g.spentBy[txIn.PreviousOutPoint] = node

		parentHash := txIn.PreviousOutPoint.Hash
		if parent, exists := g.nodes[parentHash]; exists {
			node.Parents[parentHash] = parent
			parent.Children[hash] = node
		}
	}

	return nil
}

// HasTransaction checks if a transaction exists in the graph.
func (g *TxGraph) HasTransaction(hash chainhash.Hash) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, exists := g.nodes[hash]
	return exists
}

// GetNode retrieves a node from the graph.
func (g *TxGraph) GetNode(hash chainhash.Hash) (*TxGraphNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.nodes[hash]
	return node, exists
}

// NodeCount returns the number of transactions in the graph.
func (g *TxGraph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.nodes)
}

// GetSpendingTx returns the pooled transaction spending the passed outpoint,
// if any.
func (g *TxGraph) GetSpendingTx(op wire.OutPoint) (*TxGraphNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.spentBy[op]
	return node, exists
}

// GetAncestors returns all transactions reachable by following parent edges
// from the given transaction. The result excludes the transaction itself and
// is nil when the transaction is not in the graph.
func (g *TxGraph) GetAncestors(
	hash chainhash.Hash) map[chainhash.Hash]*TxGraphNode {

	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.nodes[hash]
	if !exists {
		return nil
	}

	ancestors := make(map[chainhash.Hash]*TxGraphNode)
	g.collectAncestors(node, ancestors)
	return ancestors
}

// collectAncestors recursively collects ancestors. Must be called with the
// lock held.
func (g *TxGraph) collectAncestors(
	node *TxGraphNode, ancestors map[chainhash.Hash]*TxGraphNode) {

	for hash, parent := range node.Parents {
		if _, seen := ancestors[hash]; seen {
			continue
		}
		ancestors[hash] = parent
		g.collectAncestors(parent, ancestors)
	}
}

// GetDescendants returns all transactions reachable by following child edges
// from the given transaction. The result excludes the transaction itself and
// is nil when the transaction is not in the graph.
func (g *TxGraph) GetDescendants(
	hash chainhash.Hash) map[chainhash.Hash]*TxGraphNode {

	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.nodes[hash]
	if !exists {
		return nil
	}

	descendants := make(map[chainhash.Hash]*TxGraphNode)
	g.collectDescendants(node, descendants)
	return descendants
}

// collectDescendants recursively collects descendants. Must be called with
// the lock held.
func (g *TxGraph) collectDescendants(
	node *TxGraphNode, descendants map[chainhash.Hash]*TxGraphNode) {

	for hash, child := range node.Children {
		if _, seen := descendants[hash]; seen {
			continue
		}
		descendants[hash] = child
		g.collectDescendants(child, descendants)
	}
}

// AncestorStats aggregates the given transaction together with all of its
// in-graph ancestors. Fails with ErrNodeNotFound when the transaction is
// absent.
func (g *TxGraph) AncestorStats(hash chainhash.Hash) (PackageStats, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.nodes[hash]
	if !exists {
		return PackageStats{}, ErrNodeNotFound
	}

	ancestors := make(map[chainhash.Hash]*TxGraphNode)
	g.collectAncestors(node, ancestors)
	ancestors[hash] = node

	return sumPackage(ancestors), nil
}

// ProspectiveAncestors returns the ancestor set a candidate transaction
// would have if it were added to the graph now: every pooled parent it
// spends, plus each parent's ancestors. The candidate itself does not need
// to be in the graph.
func (g *TxGraph) ProspectiveAncestors(
	tx *btcutil.Tx) map[chainhash.Hash]*TxGraphNode {

	g.mu.RLock()
	defer g.mu.RUnlock()

	ancestors := make(map[chainhash.Hash]*TxGraphNode)
	for _, txIn := range tx.MsgTx().TxIn {
		parent, exists := g.nodes[txIn.PreviousOutPoint.Hash]
		if !exists {
			continue
		}
		if _, seen := ancestors[parent.TxHash]; seen {
			continue
		}
		ancestors[parent.TxHash] = parent
		g.collectAncestors(parent, ancestors)
	}

	return ancestors
}

// sumPackage aggregates descriptor stats over a node set.
func sumPackage(nodes map[chainhash.Hash]*TxGraphNode) PackageStats {
	var stats PackageStats
	for _, node := range nodes {
		stats.Count++
		stats.VSize += node.TxDesc.VirtualSize
		stats.ModifiedFee += node.TxDesc.ModifiedFee
		stats.SigOpCost += node.TxDesc.SigOpCost
	}
	return stats
}

// GetConflicts returns all pooled transactions that conflict with the given
// candidate. A conflict occurs when the candidate attempts to spend an
// output that is already spent by a transaction in the graph. For each
// directly conflicting transaction, all descendants are included since they
// would become invalid if their ancestor is replaced.
//
// Returns an empty ConflictSet if there are no conflicts.
func (g *TxGraph) GetConflicts(tx *btcutil.Tx) *ConflictSet {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := &ConflictSet{
		Direct:       make(map[chainhash.Hash]*TxGraphNode),
		Transactions: make(map[chainhash.Hash]*TxGraphNode),
	}

	candidate := *tx.Hash()
	for _, txIn := range tx.MsgTx().TxIn {
		node, exists := g.spentBy[txIn.PreviousOutPoint]
		if !exists || node.TxHash == candidate {
			continue
		}

		result.Direct[node.TxHash] = node
		result.Transactions[node.TxHash] = node
		g.collectDescendants(node, result.Transactions)
	}

	return result
}

// RemoveWithDescendants deletes the given transaction and, transitively,
// every transaction that depends on it, in one logical step. The removed
// hashes are returned in topological order (ancestors before descendants) so
// callers can account for freed resources and notify collaborators. Fails
// with ErrNodeNotFound when the transaction is absent; the graph is
// unchanged in that case.
func (g *TxGraph) RemoveWithDescendants(
	hash chainhash.Hash) ([]chainhash.Hash, error) {

	g.mu.Lock()
	defer g.mu.Unlock()

	node, exists := g.nodes[hash]
	if !exists {
		return nil, ErrNodeNotFound
	}

	set := map[chainhash.Hash]*TxGraphNode{hash: node}
	g.collectDescendants(node, set)

	removed := topoOrder(set)

	// Unlink in reverse order (children before parents) so every
	// parent.Children update refers to a live node.
	for i := len(removed) - 1; i >= 0; i-- {
		g.unlinkNode(removed[i])
	}

	return removed, nil
}

// topoOrder sorts a removal set so every node appears after all of its
// in-set parents. A node reachable through multiple paths, such as the join
// of a diamond, appears exactly once.
func topoOrder(set map[chainhash.Hash]*TxGraphNode) []chainhash.Hash {
	indegree := make(map[chainhash.Hash]int, len(set))
	var ready []chainhash.Hash
	for hash, node := range set {
		n := 0
		for parentHash := range node.Parents {
			if _, inSet := set[parentHash]; inSet {
				n++
			}
		}
		indegree[hash] = n
		if n == 0 {
			ready = append(ready, hash)
		}
	}

	ordered := make([]chainhash.Hash, 0, len(set))
	for len(ready) > 0 {
		hash := ready[0]
		ready = ready[1:]
		ordered = append(ordered, hash)

		for childHash := range set[hash].Children {
			if _, inSet := set[childHash]; !inSet {
				continue
			}
			indegree[childHash]--
			if indegree[childHash] == 0 {
				ready = append(ready, childHash)
			}
		}
	}

	return ordered
}

// RemoveTransactionNoCascade removes only the specified transaction, leaving
// descendants in place. This is used when a transaction is confirmed in a
// block: it leaves the pool but its children remain valid, as they now
// reference a confirmed output.
func (g *TxGraph) RemoveTransactionNoCascade(hash chainhash.Hash) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[hash]; !exists {
		return ErrNodeNotFound
	}

	g.unlinkNode(hash)
	return nil
}

// unlinkNode removes a single node and severs all of its edges. Must be
// called with the lock held.
func (g *TxGraph) unlinkNode(hash chainhash.Hash) {
	node, exists := g.nodes[hash]
	if !exists {
		return
	}

	for _, txIn := range node.Tx.MsgTx().TxIn {
		if g.spentBy[txIn.PreviousOutPoint] == node {
			delete(g.spentBy, txIn.PreviousOutPoint)
		}
	}

	for parentHash, parent := range node.Parents {
		delete(parent.Children, hash)
		delete(node.Parents, parentHash)
	}
	for childHash, child := range node.Children {
		delete(child.Parents, hash)
		delete(node.Children, childHash)
	}

	delete(g.nodes, hash)
}

// Iterate returns an iterator over all graph nodes in unspecified order.
func (g *TxGraph) Iterate() iter.Seq[*TxGraphNode] {
	return func(yield func(*TxGraphNode) bool) {
		g.mu.RLock()
		defer g.mu.RUnlock()

		for _, node := range g.nodes {
			if !yield(node) {
				return
			}
		}
	}
}
