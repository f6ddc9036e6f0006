// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/txmempool/txgraph"
	"github.com/decred/dcrd/lru"
)

// defaultRejectedCacheSize is the default number of recently rejected
// transaction ids remembered to short-circuit revalidation.
const defaultRejectedCacheSize = 5000

// RemovalReason describes why a transaction left the pool.
type RemovalReason int

// Constants for the removal reasons.
const (
	// ReasonBlock marks a transaction confirmed in a block.
	ReasonBlock RemovalReason = iota

	// ReasonConflict marks a transaction invalidated by a confirmed
	// double spend of one of its inputs.
	ReasonConflict

	// ReasonReplaced marks a transaction evicted by a fee-bumping
	// replacement.
	ReasonReplaced

	// ReasonSizeLimit marks a transaction evicted to bring the pool back
	// under its byte cap.
	ReasonSizeLimit

	// ReasonExpiry marks a transaction removed for exceeding the age
	// cap.
	ReasonExpiry

	// ReasonManual marks a caller-requested removal.
	ReasonManual
)

// removalReasonStrings maps removal reasons back to their constant names
// for pretty printing.
var removalReasonStrings = map[RemovalReason]string{
	ReasonBlock:     "block",
	ReasonConflict:  "conflict",
	ReasonReplaced:  "replaced",
	ReasonSizeLimit: "size-limit",
	ReasonExpiry:    "expiry",
	ReasonManual:    "manual",
}

// String returns the removal reason as a human readable string.
func (r RemovalReason) String() string {
	if s, ok := removalReasonStrings[r]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", int(r))
}

// ValidationResult carries the validator's verdict on a candidate
// transaction: the figures the pool needs to build an entry. The pool
// treats the underlying consensus and standardness checks as a black box.
type ValidationResult struct {
	// Fee is the absolute fee paid, in satoshi.
	Fee int64

	// VirtualSize is the transaction's virtual size in vbytes.
	VirtualSize int64

	// SigOpCost is the transaction's signature operation cost.
	SigOpCost int64

	// SpendsCoinbase indicates an input spends a coinbase output.
	SpendsCoinbase bool

	// LockPoints is the chain state the transaction's time locks were
	// evaluated against.
	LockPoints LockPoints
}

// TxValidator is the external verdict source for candidate transactions.
// Implementations perform consensus and standardness validation against the
// UTXO set and return the fee and size figures on success. Rejections are
// reported as RuleError so the pool can distinguish policy from consensus
// failures.
type TxValidator interface {
	// ValidateTransaction fully validates the passed transaction against
	// the chain state at the given height.
	ValidateTransaction(tx *btcutil.Tx,
		bestHeight int32) (*ValidationResult, error)
}

// TxFeeEstimator observes pool admissions and removals so an external
// estimator can maintain its statistics. The pool feeds it, nothing more.
type TxFeeEstimator interface {
	// ObserveTransaction is invoked for every entry entering the pool.
	ObserveTransaction(entry *TxEntry)

	// ObserveRemoval is invoked for every entry leaving the pool,
	// tagged with why it left.
	ObserveRemoval(txHash *chainhash.Hash, reason RemovalReason)
}

// Config defines the configuration for the transaction mempool. The
// validator must be provided; everything else has a usable default.
type Config struct {
	// Policy holds the resource and replacement limits the pool
	// enforces.
	Policy Policy

	// PolicyEnforcer decides replacement admissibility and ancestor
	// limits. Defaults to a StandardPolicyEnforcer over Policy.
	PolicyEnforcer PolicyEnforcer

	// TxValidator provides the external validity verdict for candidate
	// transactions. Required.
	TxValidator TxValidator

	// FeeEstimator optionally observes admissions and removals. Can be
	// nil if fee estimation is disabled.
	FeeEstimator TxFeeEstimator

	// BestHeight returns the current chain tip height. Required.
	BestHeight func() int32

	// TimeSource returns the current time. Defaults to time.Now; tests
	// inject a fake clock through it.
	TimeSource func() time.Time

	// CheckFrequency is the probability, in [0,1], that a full
	// consistency self-check runs after a mutation. Zero disables the
	// checks.
	CheckFrequency float64

	// GraphConfig configures the underlying dependency graph. If nil,
	// defaults are applied.
	GraphConfig *txgraph.Config

	// RejectedCacheSize bounds the recently-rejected id cache. Zero
	// selects the default.
	RejectedCacheSize uint

	// PersistOnShutdown makes Shutdown write the pool's contents to
	// DumpPath before returning.
	PersistOnShutdown bool

	// DumpPath is the file the pool dumps to on shutdown and loads from
	// via LoadFromFile.
	DumpPath string
}

// AcceptResult describes a successful admission: the entry that entered the
// pool and the collateral damage of getting it in.
type AcceptResult struct {
	// Entry is the pool's record for the accepted transaction.
	Entry *TxEntry

	// Replaced lists the ids evicted by replacement, direct conflicts
	// and their descendants.
	Replaced []chainhash.Hash

	// Evicted lists the ids removed by the synchronous size-cap trim
	// that ran after insertion. It can include the accepted transaction
	// itself.
	Evicted []chainhash.Hash
}

// TxMempool is a pool of unconfirmed transactions indexed for fee-ordered
// eviction, mining candidate selection, and expiry, with full ancestor and
// descendant package accounting.
//
// One mutex covers the pool container, the dependency graph, the fee delta
// map and the unbroadcast set, so every acceptance is atomic with respect
// to every other mutation: no caller observes a half-applied admission.
// Validation runs outside the lock since it touches no pool state.
type TxMempool struct {
	cfg Config

	// graph tracks spend relationships between pooled transactions and
	// answers ancestor, descendant and conflict queries.
	graph *txgraph.TxGraph

	// pool stores the entries with their lookup maps and ordered views.
	pool *indexedPool

	// feeDeltas maps a txid to its externally applied fee adjustment.
	// Deltas outlive pool membership: they survive eviction and apply
	// again if the transaction re-enters.
	feeDeltas map[chainhash.Hash]int64

	// unbroadcast holds ids the local node has not yet seen relayed.
	// Purely advisory; membership in it has no effect on pool behavior.
	unbroadcast map[chainhash.Hash]struct{}

	// rejected remembers recently rejected txids so repeated relay of
	// the same invalid transaction skips revalidation. Reset on block
	// removal since verdicts are chain-state dependent.
	rejected lru.Cache

	// lastUpdated tracks the last time the pool's contents changed.
	// Atomic for lock-free reads.
	lastUpdated atomic.Int64

	notificationsLock sync.RWMutex
	notifications     []NotificationCallback

	// mu protects graph, pool, feeDeltas and unbroadcast.
	mu sync.RWMutex
}

// New creates a transaction mempool with the provided configuration.
func New(cfg *Config) (*TxMempool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mempool config cannot be nil")
	}
	if cfg.TxValidator == nil {
		return nil, fmt.Errorf("TxValidator is required")
	}
	if cfg.BestHeight == nil {
		return nil, fmt.Errorf("BestHeight is required")
	}
	if cfg.CheckFrequency < 0 || cfg.CheckFrequency > 1 {
		return nil, fmt.Errorf("CheckFrequency must be in [0,1]")
	}

	cfgCopy := *cfg
	if cfgCopy.TimeSource == nil {
		cfgCopy.TimeSource = time.Now
	}
	if cfgCopy.PolicyEnforcer == nil {
		cfgCopy.PolicyEnforcer = NewStandardPolicyEnforcer(
			cfgCopy.Policy,
		)
	}
	if cfgCopy.RejectedCacheSize == 0 {
		cfgCopy.RejectedCacheSize = defaultRejectedCacheSize
	}

	graphCfg := cfgCopy.GraphConfig
	if graphCfg == nil {
		graphCfg = txgraph.DefaultConfig()
	}

	mp := &TxMempool{
		cfg:         cfgCopy,
		graph:       txgraph.New(graphCfg),
		pool:        newIndexedPool(),
		feeDeltas:   make(map[chainhash.Hash]int64),
		unbroadcast: make(map[chainhash.Hash]struct{}),
		rejected:    lru.NewCache(cfgCopy.RejectedCacheSize),
	}
	mp.lastUpdated.Store(mp.cfg.TimeSource().Unix())

	log.InfoS(context.Background(), "Initialized mempool",
		"max_mem_usage", cfgCopy.Policy.MaxPoolMemUsage,
		"max_tx_age", cfgCopy.Policy.MaxTxAge,
		"graph_capacity", graphCfg.MaxNodes)

	return mp, nil
}

// ProcessTransaction is the main workhorse for admitting new transactions.
// It validates the candidate against the current chain state, applies
// conflict and replacement rules, enforces ancestor limits, and inserts the
// resulting entry with full package accounting. The synchronous size-cap
// trim runs before returning, so a successful return never leaves the pool
// over budget.
func (mp *TxMempool) ProcessTransaction(tx *btcutil.Tx) (*AcceptResult,
	error) {

	txHash := tx.Hash()

	if mp.rejected.Contains(*txHash) {
		return nil, txRuleError(wire.RejectDuplicate,
			fmt.Sprintf("transaction %v was recently rejected",
				txHash))
	}

	// Cheap duplicate probe before paying for validation. The
	// authoritative check repeats under the write lock.
	mp.mu.RLock()
	_, haveTxid := mp.pool.get(*txHash)
	_, haveWtxid := mp.pool.getByWtxid(*tx.WitnessHash())
	mp.mu.RUnlock()
	if haveTxid || haveWtxid {
		return nil, ErrEntryExists
	}

	// Validation touches only chain state, never pool state, so it runs
	// outside the lock.
	vr, err := mp.cfg.TxValidator.ValidateTransaction(
		tx, mp.cfg.BestHeight(),
	)
	if err != nil {
		if _, ok := ExtractRejectCode(err); ok {
			mp.rejected.Add(*txHash)
		}
		return nil, err
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	result, err := mp.acceptTransactionLocked(
		tx, vr, mp.cfg.TimeSource(),
	)
	if err != nil {
		return nil, err
	}

	mp.maybeCheckLocked()

	return result, nil
}

// acceptTransactionLocked performs the mutating half of admission. Must be
// called with the write lock held. addedTime is the entry timestamp, which
// differs from now only when replaying a persisted dump.
//
// Every rejection path returns before the first mutation, so a failed
// candidate leaves the pool byte-for-byte unchanged.
func (mp *TxMempool) acceptTransactionLocked(tx *btcutil.Tx,
	vr *ValidationResult, addedTime time.Time) (*AcceptResult, error) {

	txHash := tx.Hash()

	if _, exists := mp.pool.get(*txHash); exists {
		return nil, ErrEntryExists
	}
	if _, exists := mp.pool.getByWtxid(*tx.WitnessHash()); exists {
		return nil, ErrEntryExists
	}

	modifiedFee := vr.Fee + mp.feeDeltas[*txHash]

	// Conflicts make this a potential replacement. The rules run before
	// anything is touched.
	conflicts := mp.graph.GetConflicts(tx)
	isReplacement := len(conflicts.Transactions) > 0
	if isReplacement {
		err := mp.cfg.PolicyEnforcer.ValidateReplacement(
			mp.graph, tx, modifiedFee, vr.VirtualSize, conflicts,
		)
		if err != nil {
			return nil, err
		}
	}

	// Ancestor limits bound the cost of any future cascading removal.
	// The replacement rules already guarantee no evictee is an ancestor
	// of the candidate, so the check is unaffected by the pending
	// removal and can run first.
	ancestors := mp.graph.ProspectiveAncestors(tx)
	stats := txgraph.PackageStats{
		Count:       1,
		VSize:       vr.VirtualSize,
		ModifiedFee: modifiedFee,
		SigOpCost:   vr.SigOpCost,
	}
	for _, node := range ancestors {
		stats.Count++
		stats.VSize += node.TxDesc.VirtualSize
		stats.ModifiedFee += node.TxDesc.ModifiedFee
		stats.SigOpCost += node.TxDesc.SigOpCost
	}
	if err := mp.cfg.PolicyEnforcer.ValidateAncestorLimits(stats); err != nil {
		return nil, err
	}

	result := &AcceptResult{}

	// The replaced package leaves first so the candidate's edges never
	// coexist with the conflicting spends.
	if isReplacement {
		for directHash := range conflicts.Direct {
			removed := mp.removeWithDescendantsLocked(
				directHash, ReasonReplaced,
			)
			result.Replaced = append(result.Replaced, removed...)
		}
		log.DebugS(context.Background(), "Replaced transactions",
			"new_tx", txHash,
			"replaced_count", len(result.Replaced))
	}

	entry := newTxEntry(
		tx, vr.Fee, vr.VirtualSize, vr.SigOpCost, addedTime,
		mp.cfg.BestHeight(), vr.SpendsCoinbase, vr.LockPoints,
	)
	entry.UpdateFeeDelta(mp.feeDeltas[*txHash])

	err := mp.graph.AddTransaction(tx, &txgraph.TxDesc{
		TxHash:      *txHash,
		VirtualSize: entry.VirtualSize,
		Fee:         entry.Fee,
		ModifiedFee: entry.ModifiedFee(),
		SigOpCost:   entry.SigOpCost,
		Added:       addedTime,
	})
	if err != nil {
		return nil, err
	}

	if err := mp.pool.insert(entry); err != nil {
		// The duplicate checks above make this unreachable; unwind
		// the graph so the invariant of no partial mutation holds
		// even if it is ever hit.
		_ = mp.graph.RemoveTransactionNoCascade(*txHash)
		return nil, err
	}

	mp.propagateAddLocked(entry)
	mp.lastUpdated.Store(mp.cfg.TimeSource().Unix())
	result.Entry = entry

	if mp.cfg.FeeEstimator != nil {
		mp.cfg.FeeEstimator.ObserveTransaction(entry)
	}
	mp.sendNotification(NTTxAccepted, entry)

	log.DebugS(context.Background(), "Transaction accepted",
		"tx_hash", txHash,
		"fee", entry.Fee,
		"vsize", entry.VirtualSize,
		"pool_size", mp.pool.count())

	// Enforce the byte cap synchronously so callers never observe an
	// accepted transaction alongside an over-budget pool.
	result.Evicted = mp.trimToSizeLocked(mp.cfg.Policy.MaxPoolMemUsage)

	return result, nil
}

// propagateAddLocked folds a freshly inserted entry into the package
// aggregates of its relatives: every ancestor gains one descendant, and the
// entry absorbs the ancestor totals. Must be called with the write lock
// held, entry already in pool and graph.
func (mp *TxMempool) propagateAddLocked(entry *TxEntry) {
	ancestors := mp.graph.GetAncestors(*entry.TxID())

	var count, size, fees, sigOps int64
	for ancestorHash := range ancestors {
		ancestor, exists := mp.pool.get(ancestorHash)
		if !exists {
			continue
		}

		mp.pool.updateEntry(ancestor, func(e *TxEntry) {
			e.UpdateDescendantState(
				1, entry.VirtualSize, entry.ModifiedFee(),
			)
		})

		count++
		size += ancestor.VirtualSize
		fees += ancestor.ModifiedFee()
		sigOps += ancestor.SigOpCost
	}

	if count > 0 {
		mp.pool.updateEntry(entry, func(e *TxEntry) {
			e.UpdateAncestorState(count, size, fees, sigOps)
		})
	}
}

// removeEntryLocked removes a single entry, fixing up the aggregates of
// every remaining relative: ancestors shrink their descendant totals,
// descendants shrink their ancestor totals. Must be called with the write
// lock held.
func (mp *TxMempool) removeEntryLocked(entry *TxEntry,
	reason RemovalReason) {

	txHash := entry.TxID()

	for ancestorHash := range mp.graph.GetAncestors(*txHash) {
		ancestor, exists := mp.pool.get(ancestorHash)
		if !exists {
			continue
		}
		mp.pool.updateEntry(ancestor, func(e *TxEntry) {
			e.UpdateDescendantState(
				-1, -entry.VirtualSize, -entry.ModifiedFee(),
			)
		})
	}

	for descendantHash := range mp.graph.GetDescendants(*txHash) {
		descendant, exists := mp.pool.get(descendantHash)
		if !exists {
			continue
		}
		mp.pool.updateEntry(descendant, func(e *TxEntry) {
			e.UpdateAncestorState(
				-1, -entry.VirtualSize,
				-entry.ModifiedFee(), -entry.SigOpCost,
			)
		})
	}

	mp.purgeEntryLocked(entry, reason)
}

// purgeEntryLocked detaches an entry from the graph and every index and
// emits the removal side effects. Aggregate fixups on remaining relatives
// are the caller's responsibility. Must be called with the write lock held.
func (mp *TxMempool) purgeEntryLocked(entry *TxEntry, reason RemovalReason) {
	txHash := entry.TxID()

	_ = mp.graph.RemoveTransactionNoCascade(*txHash)
	_, _ = mp.pool.remove(*txHash)
	delete(mp.unbroadcast, *txHash)

	mp.lastUpdated.Store(mp.cfg.TimeSource().Unix())

	if mp.cfg.FeeEstimator != nil {
		mp.cfg.FeeEstimator.ObserveRemoval(txHash, reason)
	}
	mp.sendNotification(NTTxRemoved, &RemovedTx{
		TxHash: *txHash,
		Reason: reason,
	})
}

// removeWithDescendantsLocked removes the given transaction and everything
// depending on it, returning the removed ids. Surviving ancestors are
// accounted for the whole removed set while the graph edges are still
// intact: detaching an inner member first would sever the only path from
// the outer members to their ancestors and leave the ancestors' descendant
// aggregates overstated. Must be called with the write lock held.
func (mp *TxMempool) removeWithDescendantsLocked(txHash chainhash.Hash,
	reason RemovalReason) []chainhash.Hash {

	entry, exists := mp.pool.get(txHash)
	if !exists {
		return nil
	}

	stage := []*TxEntry{entry}
	set := map[chainhash.Hash]struct{}{txHash: {}}
	for descendantHash := range mp.graph.GetDescendants(txHash) {
		descendant, ok := mp.pool.get(descendantHash)
		if !ok {
			continue
		}
		stage = append(stage, descendant)
		set[descendantHash] = struct{}{}
	}

	// Descendants of stage members are themselves in the stage, so only
	// out-of-set ancestors need fixups.
	for _, member := range stage {
		for ancestorHash := range mp.graph.GetAncestors(*member.TxID()) {
			if _, inSet := set[ancestorHash]; inSet {
				continue
			}
			ancestor, ok := mp.pool.get(ancestorHash)
			if !ok {
				continue
			}
			mp.pool.updateEntry(ancestor, func(e *TxEntry) {
				e.UpdateDescendantState(
					-1, -member.VirtualSize,
					-member.ModifiedFee(),
				)
			})
		}
	}

	removed := make([]chainhash.Hash, 0, len(stage))
	for _, member := range stage {
		mp.purgeEntryLocked(member, reason)
		removed = append(removed, *member.TxID())
	}

	return removed
}

// RemoveTransaction removes the passed transaction and all of its
// descendants from the pool. Returns the removed ids; fails with
// ErrEntryNotFound when the transaction is not pooled. The fee delta, if
// any, is retained.
func (mp *TxMempool) RemoveTransaction(
	txHash chainhash.Hash) ([]chainhash.Hash, error) {

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool.get(txHash); !exists {
		return nil, ErrEntryNotFound
	}

	removed := mp.removeWithDescendantsLocked(txHash, ReasonManual)
	mp.maybeCheckLocked()

	return removed, nil
}

// RemoveForBlock updates the pool for a newly connected block: confirmed
// transactions leave without cascading (their descendants now build on
// confirmed outputs), and any pooled double spend of a confirmed input is
// conflicted out together with its descendants.
func (mp *TxMempool) RemoveForBlock(txs []*btcutil.Tx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var confirmed, conflicted int
	for _, tx := range txs {
		txHash := tx.Hash()

		// Evict pooled transactions that spend an input consumed by
		// the block before touching the confirmed transaction, so
		// the conflict lookup sees the full picture.
		conflicts := mp.graph.GetConflicts(tx)
		for conflictHash := range conflicts.Direct {
			if conflictHash == *txHash {
				continue
			}
			removed := mp.removeWithDescendantsLocked(
				conflictHash, ReasonConflict,
			)
			conflicted += len(removed)
		}

		if entry, exists := mp.pool.get(*txHash); exists {
			mp.removeEntryLocked(entry, ReasonBlock)
			confirmed++
		}

		// The network has seen it.
		delete(mp.unbroadcast, *txHash)
	}

	// Rejection verdicts are stale once chain state moves.
	mp.rejected = lru.NewCache(mp.cfg.RejectedCacheSize)

	if confirmed > 0 || conflicted > 0 {
		log.DebugS(context.Background(), "Updated pool for block",
			"confirmed", confirmed,
			"conflicted", conflicted,
			"pool_size", mp.pool.count())
	}

	mp.maybeCheckLocked()
}

// TrimToSize evicts lowest descendant-score packages until the pool's
// estimated memory usage is at most maxBytes. Returns the evicted ids.
func (mp *TxMempool) TrimToSize(maxBytes int64) []chainhash.Hash {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	removed := mp.trimToSizeLocked(maxBytes)
	mp.maybeCheckLocked()

	return removed
}

// trimToSizeLocked implements TrimToSize. Must be called with the write
// lock held. A non-positive cap disables trimming.
func (mp *TxMempool) trimToSizeLocked(maxBytes int64) []chainhash.Hash {
	if maxBytes <= 0 {
		return nil
	}

	var removed []chainhash.Hash
	for mp.pool.totalMemUsage > maxBytes {
		worst, ok := mp.pool.worstDescendantScore()
		if !ok {
			break
		}
		removed = append(removed, mp.removeWithDescendantsLocked(
			*worst.TxID(), ReasonSizeLimit,
		)...)
	}

	if len(removed) > 0 {
		log.DebugS(context.Background(), "Trimmed pool to size cap",
			"evicted", len(removed),
			"mem_usage", mp.pool.totalMemUsage,
			"cap", maxBytes)
	}

	return removed
}

// Expire removes every entry older than the policy's age cap, cascading to
// descendants, and returns the removed ids. Fee deltas are retained.
func (mp *TxMempool) Expire() []chainhash.Hash {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	cutoff := mp.cfg.TimeSource().Add(-mp.cfg.Policy.MaxTxAge)

	var expired []*TxEntry
	mp.pool.ascendEntryTime(func(entry *TxEntry) bool {
		// The view is time-ordered, so the first young entry ends
		// the scan.
		if !entry.Added.Before(cutoff) {
			return false
		}
		expired = append(expired, entry)
		return true
	})

	var removed []chainhash.Hash
	for _, entry := range expired {
		// A cascade from an earlier victim may already have taken
		// this one out.
		if _, exists := mp.pool.get(*entry.TxID()); !exists {
			continue
		}
		removed = append(removed, mp.removeWithDescendantsLocked(
			*entry.TxID(), ReasonExpiry,
		)...)
	}

	if len(removed) > 0 {
		log.DebugS(context.Background(), "Expired stale transactions",
			"removed", len(removed),
			"cutoff", cutoff)
	}

	mp.maybeCheckLocked()

	return removed
}

// PrioritiseTransaction adjusts the fee delta applied to the given
// transaction by the passed amount. The delta is remembered whether or not
// the transaction is currently pooled and survives its eviction; a pooled
// transaction has the adjustment folded into its own and its relatives'
// package aggregates immediately.
func (mp *TxMempool) PrioritiseTransaction(txHash chainhash.Hash,
	delta int64) {

	mp.mu.Lock()
	defer mp.mu.Unlock()

	newDelta := mp.feeDeltas[txHash] + delta
	mp.feeDeltas[txHash] = newDelta

	entry, exists := mp.pool.get(txHash)
	if !exists {
		log.DebugS(context.Background(), "Fee delta recorded",
			"tx_hash", txHash, "delta", newDelta)
		return
	}

	mp.pool.updateEntry(entry, func(e *TxEntry) {
		e.UpdateFeeDelta(newDelta)
	})

	// Keep the graph descriptor in sync; replacement checks read the
	// modified fee from there.
	if node, ok := mp.graph.GetNode(txHash); ok {
		node.TxDesc.ModifiedFee = entry.ModifiedFee()
	}

	// The adjustment shifts every package the entry belongs to.
	for ancestorHash := range mp.graph.GetAncestors(txHash) {
		if ancestor, ok := mp.pool.get(ancestorHash); ok {
			mp.pool.updateEntry(ancestor, func(e *TxEntry) {
				e.UpdateDescendantState(0, 0, delta)
			})
		}
	}
	for descendantHash := range mp.graph.GetDescendants(txHash) {
		if descendant, ok := mp.pool.get(descendantHash); ok {
			mp.pool.updateEntry(descendant, func(e *TxEntry) {
				e.UpdateAncestorState(0, 0, delta, 0)
			})
		}
	}

	log.DebugS(context.Background(), "Prioritised transaction",
		"tx_hash", txHash,
		"delta", newDelta,
		"modified_fee", entry.ModifiedFee())

	mp.maybeCheckLocked()
}

// FeeDelta returns the recorded fee delta for the given transaction and
// whether one exists.
func (mp *TxMempool) FeeDelta(txHash chainhash.Hash) (int64, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	delta, exists := mp.feeDeltas[txHash]
	return delta, exists
}

// Count returns the number of transactions in the pool.
func (mp *TxMempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.pool.count()
}

// TotalMemUsage returns the pool's estimated memory usage in bytes.
func (mp *TxMempool) TotalMemUsage() int64 {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.pool.totalMemUsage
}

// LastUpdated returns the last time the pool's contents changed. Lock-free.
func (mp *TxMempool) LastUpdated() time.Time {
	return time.Unix(mp.lastUpdated.Load(), 0)
}

// IsTransactionInPool returns whether the passed transaction is pooled,
// addressed by txid.
func (mp *TxMempool) IsTransactionInPool(txHash *chainhash.Hash) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool.get(*txHash)
	return exists
}

// HaveTransactionByWtxid returns whether the passed transaction is pooled,
// addressed by witness txid.
func (mp *TxMempool) HaveTransactionByWtxid(wtxid *chainhash.Hash) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool.getByWtxid(*wtxid)
	return exists
}

// FetchTransaction returns the pooled transaction with the given txid.
func (mp *TxMempool) FetchTransaction(
	txHash *chainhash.Hash) (*btcutil.Tx, error) {

	mp.mu.RLock()
	defer mp.mu.RUnlock()

	entry, exists := mp.pool.get(*txHash)
	if !exists {
		return nil, ErrEntryNotFound
	}
	return entry.Tx, nil
}

// FetchEntry returns the pool entry with the given txid.
func (mp *TxMempool) FetchEntry(txHash *chainhash.Hash) (*TxEntry, error) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	entry, exists := mp.pool.get(*txHash)
	if !exists {
		return nil, ErrEntryNotFound
	}
	return entry, nil
}

// CheckSpend returns the pooled transaction spending the passed outpoint,
// or nil if the output is unspent within the pool.
func (mp *TxMempool) CheckSpend(op wire.OutPoint) *btcutil.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	node, exists := mp.graph.GetSpendingTx(op)
	if !exists {
		return nil
	}
	return node.Tx
}

// MiningDescs returns the pool's entries in the order a block template
// builder should consider them: best ancestor package fee rate first.
func (mp *TxMempool) MiningDescs() []*TxEntry {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	descs := make([]*TxEntry, 0, mp.pool.count())
	mp.pool.ascendAncestorScore(func(entry *TxEntry) bool {
		descs = append(descs, entry)
		return true
	})

	return descs
}

// AddUnbroadcast marks a pooled transaction as not yet seen relayed by the
// network. Ids of transactions not in the pool are ignored.
func (mp *TxMempool) AddUnbroadcast(txHash chainhash.Hash) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool.get(txHash); !exists {
		return
	}
	mp.unbroadcast[txHash] = struct{}{}
}

// RemoveUnbroadcast clears the unbroadcast mark for a transaction,
// typically once a peer has requested it.
func (mp *TxMempool) RemoveUnbroadcast(txHash chainhash.Hash) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.unbroadcast, txHash)
}

// UnbroadcastIDs returns the ids currently marked unbroadcast.
func (mp *TxMempool) UnbroadcastIDs() []chainhash.Hash {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	ids := make([]chainhash.Hash, 0, len(mp.unbroadcast))
	for hash := range mp.unbroadcast {
		ids = append(ids, hash)
	}
	return ids
}

// maybeCheckLocked runs the consistency self-check with the configured
// probability. Must be called with at least the read lock held.
func (mp *TxMempool) maybeCheckLocked() {
	freq := mp.cfg.CheckFrequency
	if freq <= 0 {
		return
	}
	if freq < 1 && rand.Float64() >= freq {
		return
	}

	mp.checkConsistencyLocked()
}
