// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txgraph

import (
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	// ErrTransactionExists is returned when attempting to add a duplicate
	// transaction.
	ErrTransactionExists = errors.New("transaction already exists in graph")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found in graph")

	// ErrGraphFull is returned when the graph has reached its configured
	// node capacity.
	ErrGraphFull = errors.New("graph at capacity")
)

// TxDesc contains transaction metadata for graph nodes. This is a simplified
// descriptor to avoid a circular dependency on the pool package while still
// providing the information needed for ancestor/descendant package
// calculations.
type TxDesc struct {
	// TxHash is the transaction identifier used for graph lookups and
	// relationship tracking.
	TxHash chainhash.Hash

	// VirtualSize is used when aggregating ancestor package sizes for
	// admission limits.
	VirtualSize int64

	// Fee is the absolute fee paid by the transaction in satoshi.
	Fee int64

	// ModifiedFee is the fee adjusted by any externally applied priority
	// delta. Package fee aggregates are computed over modified fees.
	ModifiedFee int64

	// SigOpCost is the signature operation cost of the transaction, used
	// when aggregating ancestor package sigop budgets.
	SigOpCost int64

	// Added tracks insertion time, providing ordering for transactions
	// with identical fee rates.
	Added time.Time
}

// TxGraphNode represents a single transaction in the graph.
//
// Parent and child references are adjacency lookups into the graph's node
// arena. The graph (and the pool layered above it) owns node lifetime; a
// node never keeps a neighbor alive on its own.
type TxGraphNode struct {
	// TxHash enables O(1) lookups in maps without dereferencing Tx.
	TxHash chainhash.Hash

	// Tx provides access to inputs and outputs for edge creation.
	Tx *btcutil.Tx

	// TxDesc stores fee and size information needed for package stats.
	TxDesc *TxDesc

	// Parents maps to transactions this transaction spends outputs from.
	Parents map[chainhash.Hash]*TxGraphNode

	// Children maps to transactions that spend this transaction's
	// outputs.
	Children map[chainhash.Hash]*TxGraphNode
}

// ConflictSet describes the full set of pooled transactions that would have
// to leave the pool for a conflicting candidate to enter.
type ConflictSet struct {
	// Direct holds the transactions that spend one of the candidate's
	// outpoints directly.
	Direct map[chainhash.Hash]*TxGraphNode

	// Transactions holds the direct conflicts plus all of their
	// descendants, since a descendant is invalid without its ancestor.
	Transactions map[chainhash.Hash]*TxGraphNode
}

// PackageStats aggregates a transaction together with its in-graph
// ancestors.
type PackageStats struct {
	// Count is the number of transactions in the package, including the
	// subject transaction itself.
	Count int64

	// VSize is the combined virtual size of the package.
	VSize int64

	// ModifiedFee is the combined delta-adjusted fee of the package.
	ModifiedFee int64

	// SigOpCost is the combined signature operation cost of the package.
	SigOpCost int64
}

// Config defines configuration for the transaction graph.
type Config struct {
	// MaxNodes limits graph capacity to prevent unbounded memory growth.
	// When reached, new transaction additions are rejected, triggering
	// eviction policies in the caller.
	MaxNodes int
}

// DefaultConfig returns the default graph configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxNodes: 100000,
	}
}
