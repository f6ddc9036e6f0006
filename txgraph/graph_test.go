// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txgraph

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

var testCounter uint64

// makeTestTx creates a transaction spending the given outpoints with two
// outputs. A counter-derived output value keeps ids unique.
func makeTestTx(inputs ...wire.OutPoint) *btcutil.Tx {
	testCounter++

	msgTx := wire.NewMsgTx(wire.TxVersion)
	for _, op := range inputs {
		msgTx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	}
	msgTx.AddTxOut(wire.NewTxOut(int64(1000000+testCounter), []byte{0x51}))
	msgTx.AddTxOut(wire.NewTxOut(int64(500000+testCounter), []byte{0x51}))

	return btcutil.NewTx(msgTx)
}

// confirmedOutPoint fabricates an outpoint outside the graph.
func confirmedOutPoint() wire.OutPoint {
	testCounter++

	var hash chainhash.Hash
	binary.LittleEndian.PutUint64(hash[:8], testCounter)
	hash[31] = 0xc0
	return wire.OutPoint{Hash: hash, Index: 0}
}

func addTx(t *testing.T, g *TxGraph, tx *btcutil.Tx, fee int64) {
	t.Helper()

	err := g.AddTransaction(tx, &TxDesc{
		TxHash:      *tx.Hash(),
		VirtualSize: 250,
		Fee:         fee,
		ModifiedFee: fee,
		SigOpCost:   4,
		Added:       time.Unix(1700000000, 0),
	})
	require.NoError(t, err)
}

func spendOf(tx *btcutil.Tx, index uint32) wire.OutPoint {
	return wire.OutPoint{Hash: *tx.Hash(), Index: index}
}

// buildChain adds a linear chain of length n rooted at a confirmed output.
func buildChain(t *testing.T, g *TxGraph, n int) []*btcutil.Tx {
	t.Helper()

	txs := make([]*btcutil.Tx, 0, n)
	prev := confirmedOutPoint()
	for i := 0; i < n; i++ {
		tx := makeTestTx(prev)
		addTx(t, g, tx, 1000)
		txs = append(txs, tx)
		prev = spendOf(tx, 0)
	}
	return txs
}

// requireSymmetry verifies every edge is mirrored on both endpoints.
func requireSymmetry(t *testing.T, g *TxGraph) {
	t.Helper()

	for node := range g.Iterate() {
		for _, parent := range node.Parents {
			_, ok := parent.Children[node.TxHash]
			require.True(t, ok, "parent %v does not know child %v",
				parent.TxHash, node.TxHash)
		}
		for _, child := range node.Children {
			_, ok := child.Parents[node.TxHash]
			require.True(t, ok, "child %v does not know parent %v",
				child.TxHash, node.TxHash)
		}
	}
}

func TestGraphAddWiresEdges(t *testing.T) {
	g := New(nil)

	txs := buildChain(t, g, 3)
	require.Equal(t, 3, g.NodeCount())
	requireSymmetry(t, g)

	mid, ok := g.GetNode(*txs[1].Hash())
	require.True(t, ok)
	require.Len(t, mid.Parents, 1)
	require.Len(t, mid.Children, 1)

	// The spend index covers every input.
	spender, ok := g.GetSpendingTx(spendOf(txs[0], 0))
	require.True(t, ok)
	require.Equal(t, *txs[1].Hash(), spender.TxHash)
}

func TestGraphDuplicateAndCapacity(t *testing.T) {
	g := New(&Config{MaxNodes: 1})

	tx := makeTestTx(confirmedOutPoint())
	addTx(t, g, tx, 1000)

	err := g.AddTransaction(tx, &TxDesc{TxHash: *tx.Hash()})
	require.ErrorIs(t, err, ErrTransactionExists)

	other := makeTestTx(confirmedOutPoint())
	err = g.AddTransaction(other, &TxDesc{TxHash: *other.Hash()})
	require.ErrorIs(t, err, ErrGraphFull)
}

func TestGraphAncestorsDescendants(t *testing.T) {
	g := New(nil)

	txs := buildChain(t, g, 4)

	ancestors := g.GetAncestors(*txs[3].Hash())
	require.Len(t, ancestors, 3)
	for _, tx := range txs[:3] {
		require.Contains(t, ancestors, *tx.Hash())
	}

	descendants := g.GetDescendants(*txs[0].Hash())
	require.Len(t, descendants, 3)
	for _, tx := range txs[1:] {
		require.Contains(t, descendants, *tx.Hash())
	}

	require.Nil(t, g.GetAncestors(chainhash.Hash{}))
	require.Nil(t, g.GetDescendants(chainhash.Hash{}))
}

func TestGraphDiamondClosure(t *testing.T) {
	g := New(nil)

	parent := makeTestTx(confirmedOutPoint())
	addTx(t, g, parent, 1000)

	left := makeTestTx(spendOf(parent, 0))
	addTx(t, g, left, 1000)
	right := makeTestTx(spendOf(parent, 1))
	addTx(t, g, right, 1000)

	join := makeTestTx(spendOf(left, 0), spendOf(right, 0))
	addTx(t, g, join, 1000)

	requireSymmetry(t, g)

	// The diamond must collapse to a set, not count the parent twice.
	ancestors := g.GetAncestors(*join.Hash())
	require.Len(t, ancestors, 3)

	stats, err := g.AncestorStats(*join.Hash())
	require.NoError(t, err)
	require.Equal(t, int64(4), stats.Count)
	require.Equal(t, int64(4*250), stats.VSize)
	require.Equal(t, int64(4*1000), stats.ModifiedFee)
}

func TestGraphProspectiveAncestors(t *testing.T) {
	g := New(nil)

	txs := buildChain(t, g, 2)

	// A candidate spending the chain tip inherits the whole chain.
	candidate := makeTestTx(spendOf(txs[1], 0), confirmedOutPoint())
	ancestors := g.ProspectiveAncestors(candidate)
	require.Len(t, ancestors, 2)
	require.Contains(t, ancestors, *txs[0].Hash())
	require.Contains(t, ancestors, *txs[1].Hash())

	// The candidate is never added by the query.
	require.False(t, g.HasTransaction(*candidate.Hash()))
}

func TestGraphAncestorStatsNotFound(t *testing.T) {
	g := New(nil)

	_, err := g.AncestorStats(chainhash.Hash{})
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestGraphConflicts(t *testing.T) {
	g := New(nil)

	contested := confirmedOutPoint()
	incumbent := makeTestTx(contested)
	addTx(t, g, incumbent, 1000)
	child := makeTestTx(spendOf(incumbent, 0))
	addTx(t, g, child, 1000)

	// A non-conflicting candidate sees an empty set.
	clean := makeTestTx(confirmedOutPoint())
	conflicts := g.GetConflicts(clean)
	require.Empty(t, conflicts.Direct)
	require.Empty(t, conflicts.Transactions)

	// A double spend picks up the incumbent and its descendant.
	rival := makeTestTx(contested)
	conflicts = g.GetConflicts(rival)
	require.Len(t, conflicts.Direct, 1)
	require.Contains(t, conflicts.Direct, *incumbent.Hash())
	require.Len(t, conflicts.Transactions, 2)
	require.Contains(t, conflicts.Transactions, *child.Hash())
}

func TestGraphRemoveWithDescendants(t *testing.T) {
	g := New(nil)

	txs := buildChain(t, g, 4)

	removed, err := g.RemoveWithDescendants(*txs[1].Hash())
	require.NoError(t, err)
	require.Equal(t, []chainhash.Hash{
		*txs[1].Hash(), *txs[2].Hash(), *txs[3].Hash(),
	}, removed)

	require.Equal(t, 1, g.NodeCount())
	require.True(t, g.HasTransaction(*txs[0].Hash()))
	requireSymmetry(t, g)

	// The survivor's child edge to the removed spender is gone.
	root, ok := g.GetNode(*txs[0].Hash())
	require.True(t, ok)
	require.Empty(t, root.Children)

	// The freed outpoints are spendable again.
	_, ok = g.GetSpendingTx(spendOf(txs[0], 0))
	require.False(t, ok)

	_, err = g.RemoveWithDescendants(*txs[1].Hash())
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestGraphRemoveNoCascade(t *testing.T) {
	g := New(nil)

	txs := buildChain(t, g, 3)

	require.NoError(t, g.RemoveTransactionNoCascade(*txs[0].Hash()))
	require.Equal(t, 2, g.NodeCount())
	requireSymmetry(t, g)

	// The orphaned child simply loses its parent edge.
	child, ok := g.GetNode(*txs[1].Hash())
	require.True(t, ok)
	require.Empty(t, child.Parents)
	require.Len(t, child.Children, 1)

	require.ErrorIs(t, g.RemoveTransactionNoCascade(chainhash.Hash{}),
		ErrNodeNotFound)
}

func TestGraphRemoveDiamond(t *testing.T) {
	g := New(nil)

	parent := makeTestTx(confirmedOutPoint())
	addTx(t, g, parent, 1000)
	left := makeTestTx(spendOf(parent, 0))
	addTx(t, g, left, 1000)
	right := makeTestTx(spendOf(parent, 1))
	addTx(t, g, right, 1000)
	join := makeTestTx(spendOf(left, 0), spendOf(right, 0))
	addTx(t, g, join, 1000)

	// The join is reachable through both arms but must be reported
	// once, after its parents.
	removed, err := g.RemoveWithDescendants(*parent.Hash())
	require.NoError(t, err)
	require.Len(t, removed, 4)
	require.Equal(t, *parent.Hash(), removed[0])
	require.Equal(t, *join.Hash(), removed[3])

	require.Zero(t, g.NodeCount())
}

func TestGraphIterate(t *testing.T) {
	g := New(nil)

	txs := buildChain(t, g, 3)

	seen := make(map[chainhash.Hash]bool)
	for node := range g.Iterate() {
		seen[node.TxHash] = true
	}
	require.Len(t, seen, 3)
	for _, tx := range txs {
		require.True(t, seen[*tx.Hash()])
	}

	// Early termination is honored.
	count := 0
	for range g.Iterate() {
		count++
		break
	}
	require.Equal(t, 1, count)
}
