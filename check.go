// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"context"

	"github.com/btcsuite/txmempool/txgraph"
)

// CheckConsistency recomputes the pool's derived state from scratch and
// compares it against the maintained state, returning the number of
// violations found. Violations are logged as diagnostics; the pool is left
// untouched. Intended for tests and for the probabilistic post-mutation
// check enabled by Config.CheckFrequency.
func (mp *TxMempool) CheckConsistency() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.checkConsistencyLocked()
}

// checkConsistencyLocked implements CheckConsistency. Must be called with
// at least the read lock held.
func (mp *TxMempool) checkConsistencyLocked() int {
	ctx := context.Background()
	violations := 0

	// Membership must agree between the container and the graph.
	if mp.pool.count() != mp.graph.NodeCount() {
		violations++
		log.ErrorS(ctx, "Pool/graph size mismatch", nil,
			"pool", mp.pool.count(),
			"graph", mp.graph.NodeCount())
	}
	if len(mp.pool.byTxID) != len(mp.pool.byWTxID) {
		violations++
		log.ErrorS(ctx, "Txid/wtxid index size mismatch", nil,
			"by_txid", len(mp.pool.byTxID),
			"by_wtxid", len(mp.pool.byWTxID))
	}

	var memUsage, vsize int64
	for txHash, entry := range mp.pool.byTxID {
		memUsage += entry.MemUsage()
		vsize += entry.VirtualSize

		if _, exists := mp.pool.byWTxID[*entry.WTxID()]; !exists {
			violations++
			log.ErrorS(ctx, "Entry missing from wtxid index", nil,
				"tx_hash", txHash)
		}

		node, exists := mp.graph.GetNode(txHash)
		if !exists {
			violations++
			log.ErrorS(ctx, "Entry missing from graph", nil,
				"tx_hash", txHash)
			continue
		}

		violations += mp.checkNodeSymmetry(node)
		violations += mp.checkEntryAggregates(entry, node)
	}

	// Incremental totals must match full recomputation.
	if memUsage != mp.pool.totalMemUsage {
		violations++
		log.ErrorS(ctx, "Memory usage total mismatch", nil,
			"maintained", mp.pool.totalMemUsage,
			"recomputed", memUsage)
	}
	if vsize != mp.pool.totalVSize {
		violations++
		log.ErrorS(ctx, "Virtual size total mismatch", nil,
			"maintained", mp.pool.totalVSize,
			"recomputed", vsize)
	}

	// Every ordered view must cover exactly the entry set.
	for _, viewLen := range []int{
		mp.pool.byDescendantScore.Len(),
		mp.pool.byAncestorScore.Len(),
		mp.pool.byEntryTime.Len(),
	} {
		if viewLen != mp.pool.count() {
			violations++
			log.ErrorS(ctx, "Ordered view size mismatch", nil,
				"view", viewLen, "pool", mp.pool.count())
		}
	}

	if violations > 0 {
		log.ErrorS(ctx, "Pool consistency check failed", nil,
			"violations", violations)
	}

	return violations
}

// checkNodeSymmetry verifies the parent/child edges of one node mirror each
// other.
func (mp *TxMempool) checkNodeSymmetry(node *txgraph.TxGraphNode) int {
	ctx := context.Background()
	violations := 0

	for parentHash, parent := range node.Parents {
		if _, ok := parent.Children[node.TxHash]; !ok {
			violations++
			log.ErrorS(ctx, "Parent edge not mirrored", nil,
				"tx_hash", node.TxHash, "parent", parentHash)
		}
	}
	for childHash, child := range node.Children {
		if _, ok := child.Parents[node.TxHash]; !ok {
			violations++
			log.ErrorS(ctx, "Child edge not mirrored", nil,
				"tx_hash", node.TxHash, "child", childHash)
		}
	}

	return violations
}

// checkEntryAggregates recomputes one entry's ancestor and descendant
// package state from graph traversal and compares it to the cached values.
func (mp *TxMempool) checkEntryAggregates(entry *TxEntry,
	node *txgraph.TxGraphNode) int {

	ctx := context.Background()
	violations := 0

	ancCount := int64(1)
	ancSize := entry.VirtualSize
	ancFees := entry.ModifiedFee()
	ancSigOps := entry.SigOpCost
	for ancestorHash := range mp.graph.GetAncestors(node.TxHash) {
		ancestor, exists := mp.pool.get(ancestorHash)
		if !exists {
			violations++
			log.ErrorS(ctx, "Ancestor not in pool", nil,
				"tx_hash", node.TxHash,
				"ancestor", ancestorHash)
			continue
		}
		ancCount++
		ancSize += ancestor.VirtualSize
		ancFees += ancestor.ModifiedFee()
		ancSigOps += ancestor.SigOpCost
	}

	if ancCount != entry.CountWithAncestors ||
		ancSize != entry.SizeWithAncestors ||
		ancFees != entry.ModFeesWithAncestors ||
		ancSigOps != entry.SigOpCostWithAncestors {

		violations++
		log.ErrorS(ctx, "Ancestor aggregates mismatch", nil,
			"tx_hash", node.TxHash,
			"cached_count", entry.CountWithAncestors,
			"recomputed_count", ancCount,
			"cached_fees", entry.ModFeesWithAncestors,
			"recomputed_fees", ancFees)
	}

	descCount := int64(1)
	descSize := entry.VirtualSize
	descFees := entry.ModifiedFee()
	for descendantHash := range mp.graph.GetDescendants(node.TxHash) {
		descendant, exists := mp.pool.get(descendantHash)
		if !exists {
			violations++
			log.ErrorS(ctx, "Descendant not in pool", nil,
				"tx_hash", node.TxHash,
				"descendant", descendantHash)
			continue
		}
		descCount++
		descSize += descendant.VirtualSize
		descFees += descendant.ModifiedFee()
	}

	if descCount != entry.CountWithDescendants ||
		descSize != entry.SizeWithDescendants ||
		descFees != entry.ModFeesWithDescendants {

		violations++
		log.ErrorS(ctx, "Descendant aggregates mismatch", nil,
			"tx_hash", node.TxHash,
			"cached_count", entry.CountWithDescendants,
			"recomputed_count", descCount,
			"cached_fees", entry.ModFeesWithDescendants,
			"recomputed_fees", descFees)
	}

	return violations
}
