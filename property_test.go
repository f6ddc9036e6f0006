// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestPoolConsistencyUnderRandomOps drives the pool through random
// interleavings of accepts, removals, prioritisations, trims and expiries,
// verifying after every step that the maintained state matches a full
// recomputation: graph symmetry, package aggregates, index and memory
// totals.
func TestPoolConsistencyUnderRandomOps(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := newPoolHarness(t, DefaultPolicy())

		var pooled []*btcutil.Tx

		numOps := rapid.IntRange(10, 60).Draw(rt, "num_ops")
		for i := 0; i < numOps; i++ {
			op := rapid.IntRange(0, 9).Draw(rt, "op")

			switch {
			// Weighted towards accepts so the pool grows enough
			// for the other operations to bite.
			case op <= 4:
				var inputs []wire.OutPoint
				if len(pooled) > 0 &&
					rapid.Bool().Draw(rt, "spend_pooled") {

					parent := pooled[rapid.IntRange(
						0, len(pooled)-1,
					).Draw(rt, "parent")]
					idx := uint32(rapid.IntRange(0, 1).
						Draw(rt, "out_idx"))

					if h.mp.CheckSpend(wire.OutPoint{
						Hash:  *parent.Hash(),
						Index: idx,
					}) != nil {
						// Spent already; fall back to
						// a confirmed input to avoid a
						// needless conflict.
						inputs = append(inputs,
							h.confirmedOutPoint())
					} else {
						inputs = append(inputs,
							wire.OutPoint{
								Hash:  *parent.Hash(),
								Index: idx,
							})
					}
				} else {
					inputs = append(inputs,
						h.confirmedOutPoint())
				}

				tx := h.makeTx(inputs...)
				h.validator.setResult(tx,
					int64(rapid.IntRange(1000, 100000).
						Draw(rt, "fee")),
					int64(rapid.IntRange(100, 1000).
						Draw(rt, "vsize")))

				if _, err := h.mp.ProcessTransaction(tx); err == nil {
					pooled = append(pooled, tx)
				}

			case op <= 6 && len(pooled) > 0:
				victim := pooled[rapid.IntRange(
					0, len(pooled)-1,
				).Draw(rt, "victim")]
				_, _ = h.mp.RemoveTransaction(*victim.Hash())

			case op == 7 && len(pooled) > 0:
				target := pooled[rapid.IntRange(
					0, len(pooled)-1,
				).Draw(rt, "target")]
				delta := int64(rapid.IntRange(-5000, 5000).
					Draw(rt, "delta"))
				h.mp.PrioritiseTransaction(*target.Hash(), delta)

			case op == 8:
				usage := h.mp.TotalMemUsage()
				if usage > 0 {
					h.mp.TrimToSize(usage / 2)
				}

			default:
				h.mp.Expire()
			}

			require.Zero(rt, h.mp.CheckConsistency())
		}
	})
}

// TestAggregateCountsMatchTraversal cross-checks the cached ancestor and
// descendant counts against independent graph traversal on a fixed diamond
// topology: one parent, two spenders of its outputs, one join.
func TestAggregateCountsMatchTraversal(t *testing.T) {
	h := newPoolHarness(t, DefaultPolicy())

	parent := h.makeTx(h.confirmedOutPoint())
	h.acceptTx(parent)

	left := h.makeTx(outPoint(parent, 0))
	h.acceptTx(left)

	right := h.makeTx(outPoint(parent, 1))
	h.acceptTx(right)

	join := h.makeTx(outPoint(left, 0), outPoint(right, 0))
	h.acceptTx(join)

	expect := map[string][2]int64{
		parent.Hash().String(): {1, 4},
		left.Hash().String():   {2, 2},
		right.Hash().String():  {2, 2},
		join.Hash().String():   {4, 1},
	}
	for _, tx := range []*btcutil.Tx{parent, left, right, join} {
		entry, err := h.mp.FetchEntry(tx.Hash())
		require.NoError(t, err)

		want := expect[tx.Hash().String()]
		require.Equal(t, want[0], entry.CountWithAncestors,
			"ancestors of %v", tx.Hash())
		require.Equal(t, want[1], entry.CountWithDescendants,
			"descendants of %v", tx.Hash())
	}

	// Removing the join restores the arms to leaves.
	_, err := h.mp.RemoveTransaction(*join.Hash())
	require.NoError(t, err)

	leftEntry, err := h.mp.FetchEntry(left.Hash())
	require.NoError(t, err)
	require.Equal(t, int64(1), leftEntry.CountWithDescendants)

	parentEntry, err := h.mp.FetchEntry(parent.Hash())
	require.NoError(t, err)
	require.Equal(t, int64(3), parentEntry.CountWithDescendants)

	require.Zero(t, h.mp.CheckConsistency())
}
