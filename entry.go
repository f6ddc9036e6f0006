// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"bytes"
	"math/bits"
	"reflect"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// LockPoints captures the chain state a transaction's relative time locks
// were evaluated against. They are recomputed when the chain reorganizes
// past the recorded point.
type LockPoints struct {
	// Height is the chain height the lock evaluation was anchored at.
	Height int32

	// Time is the median-time-past value used for time-based locks.
	Time int64
}

// TxEntry is the pool's bookkeeping record for a single unconfirmed
// transaction. Beyond the transaction itself it carries the validated fee
// and size figures, the externally applied fee delta, and cached aggregates
// over the entry's ancestor and descendant packages.
//
// The aggregates are maintained incrementally by the pool on every add and
// remove. An entry's descendant aggregates include the entry itself, as do
// its ancestor aggregates.
type TxEntry struct {
	// Tx is the validated transaction.
	Tx *btcutil.Tx

	// Fee is the raw fee paid, in satoshi, before any delta is applied.
	Fee int64

	// VirtualSize is the size figure all fee rates and package limits
	// are computed against.
	VirtualSize int64

	// SigOpCost is the signature operation cost charged to ancestor
	// package budgets.
	SigOpCost int64

	// Added is when the entry joined the pool. For entries restored from
	// a dump this is the original admission time, not the load time.
	Added time.Time

	// Height is the chain height at admission.
	Height int32

	// SpendsCoinbase indicates whether any input spends a coinbase
	// output. Such entries must be revalidated after a reorg since the
	// coinbase maturity requirement may no longer hold.
	SpendsCoinbase bool

	// LockPoints records the chain state the entry's time locks were
	// checked against.
	LockPoints LockPoints

	// feeDelta is the externally applied fee adjustment. It changes
	// eviction and replacement ordering without touching the raw fee.
	feeDelta int64

	// memUsage is the estimated memory footprint of the entry, fixed at
	// construction time.
	memUsage int64

	// Descendant package state, including this entry.
	CountWithDescendants   int64
	SizeWithDescendants    int64
	ModFeesWithDescendants int64

	// Ancestor package state, including this entry.
	CountWithAncestors     int64
	SizeWithAncestors      int64
	ModFeesWithAncestors   int64
	SigOpCostWithAncestors int64
}

// newTxEntry creates a pool entry whose package aggregates are initialized
// to the entry alone. The caller links it into the dependency graph and
// propagates its stats to relatives afterwards.
func newTxEntry(tx *btcutil.Tx, fee, vsize, sigOpCost int64, added time.Time,
	height int32, spendsCoinbase bool, lp LockPoints) *TxEntry {

	entry := &TxEntry{
		Tx:             tx,
		Fee:            fee,
		VirtualSize:    vsize,
		SigOpCost:      sigOpCost,
		Added:          added,
		Height:         height,
		SpendsCoinbase: spendsCoinbase,
		LockPoints:     lp,

		CountWithDescendants:   1,
		SizeWithDescendants:    vsize,
		ModFeesWithDescendants: fee,

		CountWithAncestors:     1,
		SizeWithAncestors:      vsize,
		ModFeesWithAncestors:   fee,
		SigOpCostWithAncestors: sigOpCost,
	}
	entry.memUsage = entryMemUsage(entry)

	return entry
}

// TxID returns the transaction's primary identifier.
func (e *TxEntry) TxID() *chainhash.Hash {
	return e.Tx.Hash()
}

// WTxID returns the transaction's witness identifier. For transactions
// without witness data this equals the primary identifier.
func (e *TxEntry) WTxID() *chainhash.Hash {
	return e.Tx.WitnessHash()
}

// FeeDelta returns the externally applied fee adjustment.
func (e *TxEntry) FeeDelta() int64 {
	return e.feeDelta
}

// ModifiedFee returns the fee used for all prioritization decisions: the
// raw fee plus the applied delta.
func (e *TxEntry) ModifiedFee() int64 {
	return e.Fee + e.feeDelta
}

// UpdateFeeDelta replaces the entry's fee delta and folds the difference
// into its own package aggregates. The pool propagates the same difference
// to ancestors and descendants separately.
func (e *TxEntry) UpdateFeeDelta(delta int64) {
	diff := delta - e.feeDelta
	e.feeDelta = delta
	e.ModFeesWithDescendants += diff
	e.ModFeesWithAncestors += diff
}

// UpdateDescendantState applies a change in descendant package membership to
// the cached aggregates.
func (e *TxEntry) UpdateDescendantState(dCount, dSize, dFee int64) {
	e.CountWithDescendants += dCount
	e.SizeWithDescendants += dSize
	e.ModFeesWithDescendants += dFee
}

// UpdateAncestorState applies a change in ancestor package membership to the
// cached aggregates.
func (e *TxEntry) UpdateAncestorState(dCount, dSize, dFee, dSigOps int64) {
	e.CountWithAncestors += dCount
	e.SizeWithAncestors += dSize
	e.ModFeesWithAncestors += dFee
	e.SigOpCostWithAncestors += dSigOps
}

// MemUsage returns the entry's estimated memory footprint.
func (e *TxEntry) MemUsage() int64 {
	return e.memUsage
}

// compareRates compares the fee rate aFee/aSize against bFee/bSize by
// cross multiplication, returning -1, 0 or 1. The cross products of package
// fees and sizes can exceed both 64 bits and the float64 integer range, so
// the comparison runs in 128-bit integer space. Sizes must be positive.
func compareRates(aFee, aSize, bFee, bSize int64) int {
	// Fee deltas can push a modified fee negative. The sizes are
	// positive, so each product carries its fee's sign.
	aNeg := aFee < 0
	bNeg := bFee < 0
	if aNeg != bNeg {
		if aNeg {
			return -1
		}
		return 1
	}

	aHi, aLo := bits.Mul64(abs64(aFee), uint64(bSize))
	bHi, bLo := bits.Mul64(abs64(bFee), uint64(aSize))

	var cmp int
	if aHi != bHi {
		cmp = 1
		if aHi < bHi {
			cmp = -1
		}
	} else if aLo != bLo {
		cmp = 1
		if aLo < bLo {
			cmp = -1
		}
	}

	if aNeg {
		return -cmp
	}
	return cmp
}

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

// lessByDescendantScore orders entries by descendant package fee rate,
// worst first. It is the eviction order: the minimum under this ordering is
// the entry whose removal (with descendants) sheds the least valuable
// package. Ties break on admission time (older evicts first) and finally on
// transaction ID bytes so the order is total.
func lessByDescendantScore(a, b *TxEntry) bool {
	cmp := compareRates(
		a.ModFeesWithDescendants, a.SizeWithDescendants,
		b.ModFeesWithDescendants, b.SizeWithDescendants,
	)
	if cmp != 0 {
		return cmp < 0
	}
	if !a.Added.Equal(b.Added) {
		return a.Added.Before(b.Added)
	}
	return bytes.Compare(a.TxID()[:], b.TxID()[:]) < 0
}

// lessByAncestorScore orders entries by ancestor package fee rate, best
// first. This is the order a miner would pull packages from the pool. Ties
// break on admission time and then transaction ID bytes.
func lessByAncestorScore(a, b *TxEntry) bool {
	cmp := compareRates(
		a.ModFeesWithAncestors, a.SizeWithAncestors,
		b.ModFeesWithAncestors, b.SizeWithAncestors,
	)
	if cmp != 0 {
		return cmp > 0
	}
	if !a.Added.Equal(b.Added) {
		return a.Added.Before(b.Added)
	}
	return bytes.Compare(a.TxID()[:], b.TxID()[:]) < 0
}

// lessByEntryTime orders entries oldest first, which is the scan order for
// expiry. Ties break on transaction ID bytes.
func lessByEntryTime(a, b *TxEntry) bool {
	if !a.Added.Equal(b.Added) {
		return a.Added.Before(b.Added)
	}
	return bytes.Compare(a.TxID()[:], b.TxID()[:]) < 0
}

// entryMemUsage estimates the memory held by an entry: the fixed record
// plus the dynamic footprint of the underlying transaction.
func entryMemUsage(e *TxEntry) int64 {
	base := int64(reflect.TypeOf(*e).Size())
	return base + int64(dynamicMemUsage(reflect.ValueOf(e.Tx.MsgTx())))
}
