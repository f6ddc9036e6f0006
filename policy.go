// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/txmempool/txgraph"
)

const (
	// DefaultMaxPoolMemUsage is the default byte cap on the pool's
	// estimated memory usage.
	DefaultMaxPoolMemUsage = 300 * 1024 * 1024

	// DefaultMaxTxAge is the default duration an entry may sit in the
	// pool before an expiry sweep removes it regardless of fee.
	DefaultMaxTxAge = 336 * time.Hour

	// DefaultMaxAncestorCount is the default cap on a transaction's
	// ancestor package count, itself included.
	DefaultMaxAncestorCount = 25

	// DefaultMaxAncestorSize is the default cap on a transaction's
	// ancestor package virtual size, in vbytes.
	DefaultMaxAncestorSize = 101000

	// DefaultMaxAncestorSigOpCost is the default cap on a transaction's
	// ancestor package signature operation cost.
	DefaultMaxAncestorSigOpCost = 80000

	// DefaultMaxReplacementEvictions is the default cap on how many
	// pooled transactions a single replacement may evict.
	DefaultMaxReplacementEvictions = 100

	// DefaultMaxReplacementNewInputs is the default cap on unconfirmed
	// inputs a replacement may introduce beyond those already spent by
	// the transactions it conflicts with.
	DefaultMaxReplacementNewInputs = 1
)

// Policy houses the tunable limits enforced by the pool: resource caps that
// trigger eviction and expiry, ancestor package limits that bound the cost
// of cascading removal, and replacement limits that bound the blast radius
// of a single fee bump.
type Policy struct {
	// MaxPoolMemUsage caps the pool's total estimated memory usage in
	// bytes. When an acceptance pushes usage past the cap, the lowest
	// descendant-score packages are evicted before the acceptance
	// returns.
	MaxPoolMemUsage int64

	// MaxTxAge is the age beyond which an expiry sweep removes an entry.
	MaxTxAge time.Duration

	// MaxAncestorCount caps the number of transactions in a candidate's
	// ancestor package, the candidate included.
	MaxAncestorCount int64

	// MaxAncestorSize caps the combined virtual size of a candidate's
	// ancestor package, in vbytes.
	MaxAncestorSize int64

	// MaxAncestorSigOpCost caps the combined signature operation cost of
	// a candidate's ancestor package.
	MaxAncestorSigOpCost int64

	// MaxReplacementEvictions caps how many pooled transactions one
	// replacement may evict, direct conflicts and descendants combined.
	MaxReplacementEvictions int

	// MaxReplacementNewInputs caps the unconfirmed inputs a replacement
	// may introduce that were not already spent by its conflicts.
	MaxReplacementNewInputs int
}

// DefaultPolicy returns a Policy populated with the package defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxPoolMemUsage:         DefaultMaxPoolMemUsage,
		MaxTxAge:                DefaultMaxTxAge,
		MaxAncestorCount:        DefaultMaxAncestorCount,
		MaxAncestorSize:         DefaultMaxAncestorSize,
		MaxAncestorSigOpCost:    DefaultMaxAncestorSigOpCost,
		MaxReplacementEvictions: DefaultMaxReplacementEvictions,
		MaxReplacementNewInputs: DefaultMaxReplacementNewInputs,
	}
}

// PolicyGraph is the minimal view of the dependency graph the enforcer
// needs: membership tests for unconfirmed-input counting.
type PolicyGraph interface {
	// HasTransaction reports whether the given transaction is pooled.
	HasTransaction(hash chainhash.Hash) bool
}

// PolicyEnforcer decides whether a conflicting candidate may replace its
// conflicts and whether a candidate's ancestor package fits the configured
// limits. Separating the decisions from the pool container keeps the rules
// testable in isolation and swappable.
type PolicyEnforcer interface {
	// ValidateReplacement determines whether the candidate may replace
	// the given conflict set. txFee and txVSize are the candidate's
	// delta-adjusted fee and virtual size. A nil return means the
	// replacement is permitted.
	ValidateReplacement(graph PolicyGraph, tx *btcutil.Tx,
		txFee, txVSize int64, conflicts *txgraph.ConflictSet) error

	// ValidateAncestorLimits determines whether a package with the given
	// aggregate stats fits the ancestor caps.
	ValidateAncestorLimits(stats txgraph.PackageStats) error
}

// StandardPolicyEnforcer enforces the package replacement rules: a
// replacement must pay strictly more in absolute fees than everything it
// evicts, at a strictly better fee rate than any individual evictee, must
// not build on outputs it is evicting, and may only touch a bounded slice
// of the pool.
type StandardPolicyEnforcer struct {
	policy Policy
}

// NewStandardPolicyEnforcer creates an enforcer applying the given policy.
func NewStandardPolicyEnforcer(policy Policy) *StandardPolicyEnforcer {
	return &StandardPolicyEnforcer{policy: policy}
}

// feeRatePerVByte computes the truncated fee rate in satoshi per vbyte.
// Truncation is deliberate: two transactions whose exact rates differ only
// below one sat/vB are treated as equal, and equality is not enough to
// replace.
func feeRatePerVByte(fee, vsize int64) int64 {
	if vsize <= 0 {
		return 0
	}
	return fee / vsize
}

// ValidateReplacement checks the candidate against the full replaced
// package described by conflicts. The pool has already established that
// conflicts is non-empty.
func (p *StandardPolicyEnforcer) ValidateReplacement(graph PolicyGraph,
	tx *btcutil.Tx, txFee, txVSize int64,
	conflicts *txgraph.ConflictSet) error {

	// The replaced package must stay below the eviction cap. Everything
	// past the direct conflicts is collateral, so the cap covers the
	// whole set.
	if len(conflicts.Transactions) > p.policy.MaxReplacementEvictions {
		return fmt.Errorf("%w: %d conflicts (max %d)",
			ErrTooManyEvictions, len(conflicts.Transactions),
			p.policy.MaxReplacementEvictions)
	}

	// The candidate must not spend an output created by anything it
	// would evict. Such an input can never confirm once the evictee is
	// gone.
	for _, txIn := range tx.MsgTx().TxIn {
		parentHash := txIn.PreviousOutPoint.Hash
		if _, evicted := conflicts.Transactions[parentHash]; evicted {
			return fmt.Errorf("%w: input spends %v",
				ErrReplacementSpendsParent, parentHash)
		}
	}

	// The candidate's fee rate must strictly exceed the rate of every
	// individual transaction it evicts.
	txRate := feeRatePerVByte(txFee, txVSize)
	for conflictHash, node := range conflicts.Transactions {
		conflictRate := feeRatePerVByte(
			node.TxDesc.ModifiedFee, node.TxDesc.VirtualSize,
		)
		if txRate <= conflictRate {
			return fmt.Errorf("%w: %d sat/vB <= conflict %v at "+
				"%d sat/vB", ErrInsufficientFeeRate, txRate,
				conflictHash, conflictRate)
		}
	}

	// The candidate's absolute fee must strictly exceed the sum over the
	// whole replaced package, so a replacement never lowers the pool's
	// total fees.
	var conflictsFee int64
	for _, node := range conflicts.Transactions {
		conflictsFee += node.TxDesc.ModifiedFee
	}
	if txFee <= conflictsFee {
		return fmt.Errorf("%w: fee %d <= replaced package fee %d",
			ErrInsufficientAbsoluteFee, txFee, conflictsFee)
	}

	// Bound the unconfirmed inputs the replacement introduces beyond
	// those its conflicts already spend. Direct conflicts spend the
	// contested outpoints, so their input set is the baseline.
	conflictInputs := make(map[chainhash.Hash]struct{})
	for _, node := range conflicts.Direct {
		for _, txIn := range node.Tx.MsgTx().TxIn {
			conflictInputs[txIn.PreviousOutPoint.Hash] = struct{}{}
		}
	}

	newInputs := 0
	for _, txIn := range tx.MsgTx().TxIn {
		parentHash := txIn.PreviousOutPoint.Hash
		if _, known := conflictInputs[parentHash]; known {
			continue
		}
		if !graph.HasTransaction(parentHash) {
			continue
		}
		newInputs++
	}
	if newInputs > p.policy.MaxReplacementNewInputs {
		return fmt.Errorf("%w: %d new unconfirmed inputs (max %d)",
			ErrNewUnconfirmedInput, newInputs,
			p.policy.MaxReplacementNewInputs)
	}

	return nil
}

// ValidateAncestorLimits checks an ancestor package's aggregate stats
// against the configured caps. The stats include the candidate itself.
func (p *StandardPolicyEnforcer) ValidateAncestorLimits(
	stats txgraph.PackageStats) error {

	if stats.Count > p.policy.MaxAncestorCount {
		return fmt.Errorf("%w: %d ancestors (max %d)",
			ErrExceededAncestorLimit, stats.Count,
			p.policy.MaxAncestorCount)
	}
	if stats.VSize > p.policy.MaxAncestorSize {
		return fmt.Errorf("%w: %d vbytes (max %d)",
			ErrExceededAncestorLimit, stats.VSize,
			p.policy.MaxAncestorSize)
	}
	if stats.SigOpCost > p.policy.MaxAncestorSigOpCost {
		return fmt.Errorf("%w: sigop cost %d (max %d)",
			ErrExceededAncestorLimit, stats.SigOpCost,
			p.policy.MaxAncestorSigOpCost)
	}

	return nil
}
