// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// dumpVersion is the serialization version this codec reads and writes. A
// dump tagged with any other version fails the whole load.
const dumpVersion uint64 = 1

// dumpedEntry is the per-transaction snapshot taken under the lock. I/O
// happens outside the lock against these copies.
type dumpedEntry struct {
	tx       *btcutil.Tx
	added    int64
	feeDelta int64
}

// LoadStats tallies the outcome of replaying a dump.
type LoadStats struct {
	// Accepted counts transactions that entered the pool.
	Accepted int

	// AlreadyPresent counts transactions the pool already contained.
	AlreadyPresent int

	// Failed counts transactions rejected on replay, whether by the
	// validator or by pool policy.
	Failed int

	// Expired counts transactions skipped because their stored entry
	// time exceeds the age cap.
	Expired int
}

// Dump serializes the pool to w: a version tag, the entries with their
// original admission times and applied fee deltas, the fee deltas recorded
// for transactions not currently pooled, and the unbroadcast set.
//
// Entries are ordered by entry time, then ancestor count, then txid. The
// order is total and stable, and it places every parent before its
// children so a replay never sees a transaction ahead of its unconfirmed
// inputs.
//
// The lock is held only while snapshotting; the writes run unlocked so a
// slow writer does not stall acceptance.
func (mp *TxMempool) Dump(w io.Writer) error {
	mp.mu.RLock()

	snapshot := make([]*TxEntry, 0, mp.pool.count())
	mp.pool.ascendEntryTime(func(entry *TxEntry) bool {
		snapshot = append(snapshot, entry)
		return true
	})
	sort.SliceStable(snapshot, func(i, j int) bool {
		a, b := snapshot[i], snapshot[j]
		if !a.Added.Equal(b.Added) {
			return a.Added.Before(b.Added)
		}
		if a.CountWithAncestors != b.CountWithAncestors {
			return a.CountWithAncestors < b.CountWithAncestors
		}
		return bytes.Compare(a.TxID()[:], b.TxID()[:]) < 0
	})

	entries := make([]dumpedEntry, 0, len(snapshot))
	for _, entry := range snapshot {
		entries = append(entries, dumpedEntry{
			tx:       entry.Tx,
			added:    entry.Added.Unix(),
			feeDelta: entry.FeeDelta(),
		})
	}

	extraDeltas := make(map[chainhash.Hash]int64)
	for txHash, delta := range mp.feeDeltas {
		if _, pooled := mp.pool.get(txHash); !pooled {
			extraDeltas[txHash] = delta
		}
	}

	unbroadcast := make([]chainhash.Hash, 0, len(mp.unbroadcast))
	for txHash := range mp.unbroadcast {
		unbroadcast = append(unbroadcast, txHash)
	}

	mp.mu.RUnlock()

	bw := bufio.NewWriter(w)

	if err := writeUint64(bw, dumpVersion); err != nil {
		return err
	}
	if err := writeUint64(bw, uint64(len(entries))); err != nil {
		return err
	}
	for _, de := range entries {
		if err := de.tx.MsgTx().Serialize(bw); err != nil {
			return err
		}
		if err := writeInt64(bw, de.added); err != nil {
			return err
		}
		if err := writeInt64(bw, de.feeDelta); err != nil {
			return err
		}
	}

	if err := writeUint64(bw, uint64(len(extraDeltas))); err != nil {
		return err
	}
	for txHash, delta := range extraDeltas {
		if _, err := bw.Write(txHash[:]); err != nil {
			return err
		}
		if err := writeInt64(bw, delta); err != nil {
			return err
		}
	}

	if err := writeUint64(bw, uint64(len(unbroadcast))); err != nil {
		return err
	}
	for _, txHash := range unbroadcast {
		if _, err := bw.Write(txHash[:]); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// DumpToFile writes the pool's dump to path. The dump goes to a temporary
// file in the same directory which is renamed over path only once fully
// written, so a failed dump leaves any previous snapshot untouched.
func (mp *TxMempool) DumpToFile(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.new")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := mp.Dump(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}

	log.InfoS(context.Background(), "Dumped pool to file",
		"path", path, "count", mp.Count())

	return nil
}

// Load replays a dump produced by Dump. Each transaction is re-run through
// the full acceptance pipeline with its stored entry time; the dump is
// never trusted as pre-validated. Transactions whose stored age exceeds the
// policy's age cap are skipped as expired. After the entries, remaining fee
// deltas and the unbroadcast set are restored.
//
// Load is an initialization path: it must complete before the pool is
// exposed to concurrent submitters. A corrupt or truncated stream aborts
// with ErrCorruptDump, leaving everything accepted up to that point in the
// pool.
func (mp *TxMempool) Load(r io.Reader) (*LoadStats, error) {
	br := bufio.NewReader(r)
	stats := &LoadStats{}

	version, err := readUint64(br)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrCorruptDump, err)
	}
	if version != dumpVersion {
		return stats, fmt.Errorf("%w: got %d, want %d",
			ErrUnsupportedVersion, version, dumpVersion)
	}

	count, err := readUint64(br)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrCorruptDump, err)
	}

	cutoff := mp.cfg.TimeSource().Add(-mp.cfg.Policy.MaxTxAge)

	for i := uint64(0); i < count; i++ {
		var msgTx wire.MsgTx
		if err := msgTx.Deserialize(br); err != nil {
			return stats, fmt.Errorf(
				"%w: entry %d: %v", ErrCorruptDump, i, err)
		}
		added, err := readInt64(br)
		if err != nil {
			return stats, fmt.Errorf(
				"%w: entry %d: %v", ErrCorruptDump, i, err)
		}
		feeDelta, err := readInt64(br)
		if err != nil {
			return stats, fmt.Errorf(
				"%w: entry %d: %v", ErrCorruptDump, i, err)
		}

		tx := btcutil.NewTx(&msgTx)
		addedTime := time.Unix(added, 0)

		// The delta is restored regardless of the replay outcome;
		// deltas outlive membership.
		if feeDelta != 0 {
			mp.mu.Lock()
			mp.feeDeltas[*tx.Hash()] += feeDelta
			mp.mu.Unlock()
		}

		if addedTime.Before(cutoff) {
			stats.Expired++
			continue
		}

		mp.loadTransaction(tx, addedTime, stats)
	}

	deltaCount, err := readUint64(br)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrCorruptDump, err)
	}
	for i := uint64(0); i < deltaCount; i++ {
		var txHash chainhash.Hash
		if _, err := io.ReadFull(br, txHash[:]); err != nil {
			return stats, fmt.Errorf(
				"%w: delta %d: %v", ErrCorruptDump, i, err)
		}
		delta, err := readInt64(br)
		if err != nil {
			return stats, fmt.Errorf(
				"%w: delta %d: %v", ErrCorruptDump, i, err)
		}
		if delta != 0 {
			mp.PrioritiseTransaction(txHash, delta)
		}
	}

	unbroadcastCount, err := readUint64(br)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrCorruptDump, err)
	}
	for i := uint64(0); i < unbroadcastCount; i++ {
		var txHash chainhash.Hash
		if _, err := io.ReadFull(br, txHash[:]); err != nil {
			return stats, fmt.Errorf(
				"%w: unbroadcast %d: %v", ErrCorruptDump, i,
				err)
		}
		mp.AddUnbroadcast(txHash)
	}

	log.InfoS(context.Background(), "Loaded pool dump",
		"accepted", stats.Accepted,
		"already_present", stats.AlreadyPresent,
		"failed", stats.Failed,
		"expired", stats.Expired)

	return stats, nil
}

// loadTransaction replays one dumped transaction through acceptance,
// preserving its stored entry time, and tallies the outcome.
func (mp *TxMempool) loadTransaction(tx *btcutil.Tx, addedTime time.Time,
	stats *LoadStats) {

	mp.mu.RLock()
	_, haveTxid := mp.pool.get(*tx.Hash())
	_, haveWtxid := mp.pool.getByWtxid(*tx.WitnessHash())
	mp.mu.RUnlock()
	if haveTxid || haveWtxid {
		stats.AlreadyPresent++
		return
	}

	vr, err := mp.cfg.TxValidator.ValidateTransaction(
		tx, mp.cfg.BestHeight(),
	)
	if err != nil {
		stats.Failed++
		return
	}

	mp.mu.Lock()
	_, err = mp.acceptTransactionLocked(tx, vr, addedTime)
	mp.mu.Unlock()

	switch {
	case err == nil:
		stats.Accepted++
	case errors.Is(err, ErrEntryExists):
		stats.AlreadyPresent++
	default:
		stats.Failed++
	}
}

// LoadFromFile replays the dump at path. A missing file is not an error;
// the pool simply starts empty.
func (mp *TxMempool) LoadFromFile(path string) (*LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &LoadStats{}, nil
		}
		return nil, err
	}
	defer f.Close()

	return mp.Load(f)
}

// Shutdown persists the pool to the configured dump path when
// PersistOnShutdown is set.
func (mp *TxMempool) Shutdown() error {
	if !mp.cfg.PersistOnShutdown || mp.cfg.DumpPath == "" {
		return nil
	}
	return mp.DumpToFile(mp.cfg.DumpPath)
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeInt64(w io.Writer, v int64) error {
	return writeUint64(w, uint64(v))
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readInt64(r io.Reader) (int64, error) {
	v, err := readUint64(r)
	return int64(v), err
}
