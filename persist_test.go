// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func TestDumpLoadRoundTrip(t *testing.T) {
	h := newPoolHarness(t, DefaultPolicy())

	txs := h.chain(3)
	loner := h.makeTx(h.confirmedOutPoint())
	h.advance(time.Minute)
	h.acceptTx(loner)

	h.mp.PrioritiseTransaction(*txs[1].Hash(), 2500)

	// A delta for a transaction that is not pooled.
	var ghost chainhash.Hash
	ghost[0] = 0xee
	h.mp.PrioritiseTransaction(ghost, -400)

	h.mp.AddUnbroadcast(*loner.Hash())

	var buf bytes.Buffer
	require.NoError(t, h.mp.Dump(&buf))

	// Replay into a fresh pool sharing the same clock and validator so
	// verdicts match.
	h2 := &poolHarness{
		t:         t,
		validator: h.validator,
		estimator: newRecordingEstimator(),
		now:       h.mp.cfg.TimeSource(),
	}
	mp2, err := New(&Config{
		Policy:      DefaultPolicy(),
		TxValidator: h2.validator,
		BestHeight:  func() int32 { return 100 },
		TimeSource: func() time.Time {
			h2.mu.Lock()
			defer h2.mu.Unlock()
			return h2.now
		},
		CheckFrequency: 1,
	})
	require.NoError(t, err)
	h2.mp = mp2

	stats, err := mp2.Load(&buf)
	require.NoError(t, err)
	require.Equal(t, 4, stats.Accepted)
	require.Zero(t, stats.AlreadyPresent)
	require.Zero(t, stats.Failed)
	require.Zero(t, stats.Expired)
	require.Zero(t, mp2.CheckConsistency())

	// Same ids, fees, entry times, deltas and unbroadcast marks.
	require.Equal(t, h.mp.Count(), mp2.Count())
	for _, tx := range append(txs, loner) {
		orig, err := h.mp.FetchEntry(tx.Hash())
		require.NoError(t, err)
		loaded, err := mp2.FetchEntry(tx.Hash())
		require.NoError(t, err)

		require.Equal(t, orig.Fee, loaded.Fee)
		require.Equal(t, orig.ModifiedFee(), loaded.ModifiedFee())
		require.Equal(t, orig.Added.Unix(), loaded.Added.Unix())
	}

	delta, ok := mp2.FeeDelta(*txs[1].Hash())
	require.True(t, ok)
	require.Equal(t, int64(2500), delta)

	delta, ok = mp2.FeeDelta(ghost)
	require.True(t, ok)
	require.Equal(t, int64(-400), delta)

	require.Equal(t, []chainhash.Hash{*loner.Hash()},
		mp2.UnbroadcastIDs())
}

func TestLoadAlreadyPresent(t *testing.T) {
	h := newPoolHarness(t, DefaultPolicy())

	tx := h.makeTx(h.confirmedOutPoint())
	h.acceptTx(tx)

	var buf bytes.Buffer
	require.NoError(t, h.mp.Dump(&buf))

	stats, err := h.mp.Load(&buf)
	require.NoError(t, err)
	require.Zero(t, stats.Accepted)
	require.Equal(t, 1, stats.AlreadyPresent)
	require.Equal(t, 1, h.mp.Count())
}

func TestLoadExpiresStaleEntries(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxTxAge = 10 * time.Hour
	h := newPoolHarness(t, policy)

	stale := h.makeTx(h.confirmedOutPoint())
	h.acceptTx(stale)

	h.advance(5 * time.Hour)
	fresh := h.makeTx(h.confirmedOutPoint())
	h.acceptTx(fresh)

	var buf bytes.Buffer
	require.NoError(t, h.mp.Dump(&buf))

	// Only the first entry is past the horizon by load time.
	h.advance(6 * time.Hour)

	_, err := h.mp.RemoveTransaction(*stale.Hash())
	require.NoError(t, err)
	_, err = h.mp.RemoveTransaction(*fresh.Hash())
	require.NoError(t, err)

	stats, err := h.mp.Load(&buf)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Expired)
	require.Equal(t, 1, stats.Accepted)
	require.False(t, h.mp.IsTransactionInPool(stale.Hash()))
	require.True(t, h.mp.IsTransactionInPool(fresh.Hash()))
}

func TestLoadCountsFailures(t *testing.T) {
	h := newPoolHarness(t, DefaultPolicy())

	good := h.makeTx(h.confirmedOutPoint())
	h.acceptTx(good)
	bad := h.makeTx(h.confirmedOutPoint())
	h.acceptTx(bad)

	var buf bytes.Buffer
	require.NoError(t, h.mp.Dump(&buf))

	_, err := h.mp.RemoveTransaction(*good.Hash())
	require.NoError(t, err)
	_, err = h.mp.RemoveTransaction(*bad.Hash())
	require.NoError(t, err)

	// The chain moved; one transaction no longer validates.
	h.validator.setError(bad, txRuleError(18, "missing inputs"))

	stats, err := h.mp.Load(&buf)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Accepted)
	require.Equal(t, 1, stats.Failed)
	require.True(t, h.mp.IsTransactionInPool(good.Hash()))
	require.False(t, h.mp.IsTransactionInPool(bad.Hash()))
}

func TestLoadUnsupportedVersion(t *testing.T) {
	h := newPoolHarness(t, DefaultPolicy())

	var buf bytes.Buffer
	var version [8]byte
	binary.LittleEndian.PutUint64(version[:], 99)
	buf.Write(version[:])

	_, err := h.mp.Load(&buf)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
	require.Zero(t, h.mp.Count())
}

func TestLoadTruncatedStream(t *testing.T) {
	h := newPoolHarness(t, DefaultPolicy())

	for i := 0; i < 3; i++ {
		h.acceptTx(h.makeTx(h.confirmedOutPoint()))
	}

	var buf bytes.Buffer
	require.NoError(t, h.mp.Dump(&buf))

	fresh := newPoolHarness(t, DefaultPolicy())
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-20])

	_, err := fresh.mp.Load(truncated)
	require.ErrorIs(t, err, ErrCorruptDump)

	// Entries replayed before the corruption point stay in the pool.
	require.Equal(t, 2, fresh.mp.Count())
	require.Zero(t, fresh.mp.CheckConsistency())
}

func TestLoadEmptyStream(t *testing.T) {
	h := newPoolHarness(t, DefaultPolicy())

	_, err := h.mp.Load(bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrCorruptDump)
}

func TestDumpToFileAndLoadFromFile(t *testing.T) {
	h := newPoolHarness(t, DefaultPolicy())
	tx := h.makeTx(h.confirmedOutPoint())
	h.acceptTx(tx)

	path := filepath.Join(t.TempDir(), "mempool.dat")
	require.NoError(t, h.mp.DumpToFile(path))

	fresh := newPoolHarness(t, DefaultPolicy())
	stats, err := fresh.mp.LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Accepted)
	require.True(t, fresh.mp.IsTransactionInPool(tx.Hash()))
}

func TestLoadFromMissingFile(t *testing.T) {
	h := newPoolHarness(t, DefaultPolicy())

	stats, err := h.mp.LoadFromFile(
		filepath.Join(t.TempDir(), "nope.dat"),
	)
	require.NoError(t, err)
	require.Zero(t, stats.Accepted)
}

func TestShutdownPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mempool.dat")

	h := newPoolHarness(t, DefaultPolicy())
	h.mp.cfg.PersistOnShutdown = true
	h.mp.cfg.DumpPath = path

	tx := h.makeTx(h.confirmedOutPoint())
	h.acceptTx(tx)

	require.NoError(t, h.mp.Shutdown())

	fresh := newPoolHarness(t, DefaultPolicy())
	stats, err := fresh.mp.LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Accepted)
}
