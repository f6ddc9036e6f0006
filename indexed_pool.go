// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/btree"
)

// btreeDegree is the branching factor for the ordered index trees.
const btreeDegree = 32

// indexedPool is the entry store backing the mempool: hash maps for O(1)
// lookup by either transaction identifier, plus ordered views that keep
// eviction, expiry and mining scans O(log n) per step.
//
// The ordered views key on mutable aggregate state, so any change to an
// entry's aggregates must go through updateEntry, which re-homes the entry
// in every tree. indexedPool is not safe for concurrent use; the pool's
// lock covers it.
type indexedPool struct {
	byTxID  map[chainhash.Hash]*TxEntry
	byWTxID map[chainhash.Hash]*TxEntry

	// byDescendantScore orders entries worst descendant package fee rate
	// first. Eviction pops from the front.
	byDescendantScore *btree.BTreeG[*TxEntry]

	// byAncestorScore orders entries best ancestor package fee rate
	// first, the order mining candidates are drawn in.
	byAncestorScore *btree.BTreeG[*TxEntry]

	// byEntryTime orders entries oldest first for expiry scans and for
	// deterministic dump ordering.
	byEntryTime *btree.BTreeG[*TxEntry]

	// totalVSize is the sum of all entries' virtual sizes.
	totalVSize int64

	// totalMemUsage is the sum of all entries' estimated footprints,
	// the figure compared against the pool's byte limit.
	totalMemUsage int64
}

func newIndexedPool() *indexedPool {
	return &indexedPool{
		byTxID:  make(map[chainhash.Hash]*TxEntry),
		byWTxID: make(map[chainhash.Hash]*TxEntry),
		byDescendantScore: btree.NewG[*TxEntry](
			btreeDegree, lessByDescendantScore,
		),
		byAncestorScore: btree.NewG[*TxEntry](
			btreeDegree, lessByAncestorScore,
		),
		byEntryTime: btree.NewG[*TxEntry](
			btreeDegree, lessByEntryTime,
		),
	}
}

// insert adds an entry under both of its identifiers. Fails with
// ErrEntryExists when either identifier is already present, leaving the
// pool unchanged.
func (p *indexedPool) insert(entry *TxEntry) error {
	txid := *entry.TxID()
	wtxid := *entry.WTxID()

	if _, exists := p.byTxID[txid]; exists {
		return ErrEntryExists
	}
	if _, exists := p.byWTxID[wtxid]; exists {
		return ErrEntryExists
	}

	p.byTxID[txid] = entry
	p.byWTxID[wtxid] = entry
	p.byDescendantScore.ReplaceOrInsert(entry)
	p.byAncestorScore.ReplaceOrInsert(entry)
	p.byEntryTime.ReplaceOrInsert(entry)
	p.totalVSize += entry.VirtualSize
	p.totalMemUsage += entry.MemUsage()

	return nil
}

// remove deletes the entry with the given transaction ID from every index.
func (p *indexedPool) remove(txid chainhash.Hash) (*TxEntry, error) {
	entry, exists := p.byTxID[txid]
	if !exists {
		return nil, ErrEntryNotFound
	}

	delete(p.byTxID, txid)
	delete(p.byWTxID, *entry.WTxID())
	p.byDescendantScore.Delete(entry)
	p.byAncestorScore.Delete(entry)
	p.byEntryTime.Delete(entry)
	p.totalVSize -= entry.VirtualSize
	p.totalMemUsage -= entry.MemUsage()

	return entry, nil
}

// get returns the entry with the given transaction ID.
func (p *indexedPool) get(txid chainhash.Hash) (*TxEntry, bool) {
	entry, exists := p.byTxID[txid]
	return entry, exists
}

// getByWtxid returns the entry with the given witness transaction ID.
func (p *indexedPool) getByWtxid(wtxid chainhash.Hash) (*TxEntry, bool) {
	entry, exists := p.byWTxID[wtxid]
	return entry, exists
}

func (p *indexedPool) count() int {
	return len(p.byTxID)
}

// updateEntry mutates an entry's ordering-relevant state under index
// supervision. The entry is pulled out of the score trees before mutate
// runs and reinserted after, so tree invariants hold even when the mutation
// changes the sort keys.
func (p *indexedPool) updateEntry(entry *TxEntry, mutate func(*TxEntry)) {
	p.byDescendantScore.Delete(entry)
	p.byAncestorScore.Delete(entry)

	mutate(entry)

	p.byDescendantScore.ReplaceOrInsert(entry)
	p.byAncestorScore.ReplaceOrInsert(entry)
}

// worstDescendantScore returns the entry with the lowest descendant package
// fee rate, the next eviction candidate.
func (p *indexedPool) worstDescendantScore() (*TxEntry, bool) {
	return p.byDescendantScore.Min()
}

// ascendEntryTime visits entries oldest first. The iteration runs over a
// copy-on-write snapshot, so the visitor may remove entries from the pool.
func (p *indexedPool) ascendEntryTime(visit func(*TxEntry) bool) {
	p.byEntryTime.Clone().Ascend(func(entry *TxEntry) bool {
		return visit(entry)
	})
}

// ascendAncestorScore visits entries best ancestor package fee rate first
// over a snapshot of the index.
func (p *indexedPool) ascendAncestorScore(visit func(*TxEntry) bool) {
	p.byAncestorScore.Clone().Ascend(func(entry *TxEntry) bool {
		return visit(entry)
	})
}
