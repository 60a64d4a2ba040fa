// Package disk implements DiskItem, the per-disk bookkeeping store
// described in spec §3/§4.1: which shuffle keys are resident, how many
// bytes of each are not yet uploaded, which partitions remain, and the
// background sweeper that reconciles reads-in-progress with file
// deletion.
package disk

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/firestorm-project/shuffle-uploader/internal/bitmap"
	"github.com/firestorm-project/shuffle-uploader/internal/clock"
	"github.com/firestorm-project/shuffle-uploader/shufflekey"
)

// Config is the immutable configuration of one DiskItem, validated at
// construction (spec §4.4 for the disk-side parameters).
type Config struct {
	// BasePath is the filesystem root for this disk.
	BasePath string
	// Capacity is the configured byte capacity of this disk.
	Capacity int64
	// HighWaterMark and LowWaterMark are fractions of Capacity (0, 1] that
	// trigger and relax forced upload mode.
	HighWaterMark float64
	LowWaterMark  float64
	// ShuffleExpiredTimeoutMs is how long after lastReadTs a reading key
	// is still considered "hot" (readingInProgress stays true).
	ShuffleExpiredTimeoutMs int64
	// SweepInterval is how often the background sweeper wakes up. It is
	// an implementation parameter, not named by spec §3's field table,
	// but start()/stop() need a period to drive the sweeper's ticker.
	SweepInterval time.Duration
}

// Validate checks that cfg is usable, returning an error that wraps a
// descriptive message (spec §4.4's validation discipline, applied here to
// the disk-side half of the configuration).
func (c Config) Validate() error {
	if c.BasePath == "" {
		return errors.New("basePath is required")
	}

	if c.Capacity <= 0 {
		return errors.New("capacity must be positive")
	}

	if c.HighWaterMark <= 0 || c.HighWaterMark > 1 {
		return errors.New("highWaterMark must be in (0, 1]")
	}

	if c.LowWaterMark <= 0 || c.LowWaterMark > 1 {
		return errors.New("lowWaterMark must be in (0, 1]")
	}

	if c.LowWaterMark > c.HighWaterMark {
		return errors.New("lowWaterMark must not exceed highWaterMark")
	}

	if c.ShuffleExpiredTimeoutMs <= 0 {
		return errors.New("shuffleExpiredTimeoutMs must be positive")
	}

	if c.SweepInterval <= 0 {
		return errors.New("sweepInterval must be positive")
	}

	return nil
}

// DiskItem is the per-disk bookkeeping store. The zero value is not
// usable; construct with New.
type DiskItem struct {
	cfg Config

	mu    sync.RWMutex
	state map[shufflekey.Key]*keyState

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs a DiskItem, rejecting an invalid Config outright.
func New(cfg Config) (*DiskItem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid disk configuration")
	}

	return &DiskItem{
		cfg:    cfg,
		state:  make(map[shufflekey.Key]*keyState),
		stopCh: make(chan struct{}),
	}, nil
}

// GetCapacity returns the configured byte capacity of this disk.
func (d *DiskItem) GetCapacity() int64 { return d.cfg.Capacity }

// GetHighWaterMarkOfWrite returns the fraction of capacity that triggers
// forced upload mode.
func (d *DiskItem) GetHighWaterMarkOfWrite() float64 { return d.cfg.HighWaterMark }

// GetLowWaterMarkOfWrite returns the fraction of capacity below which
// forced upload mode relaxes.
func (d *DiskItem) GetLowWaterMarkOfWrite() float64 { return d.cfg.LowWaterMark }

// BasePath returns the filesystem root for this disk.
func (d *DiskItem) BasePath() string { return d.cfg.BasePath }

// TotalNotUploadedSize sums NotUploadedSize across every resident key. It
// stands in for "bytes currently used on this disk" in the forced-upload
// threshold (spec §4.3 step 1): once a partition's bytes are uploaded and
// deleted they stop counting, so this total tracks disk usage closely
// enough to drive the watermark comparison.
func (d *DiskItem) TotalNotUploadedSize() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var total int64

	for _, ks := range d.state {
		ks.mu.Lock()
		total += ks.notUploadedSize
		ks.mu.Unlock()
	}

	return total
}

func (d *DiskItem) lookupOrCreate(key shufflekey.Key) *keyState {
	d.mu.RLock()
	ks, ok := d.state[key]
	d.mu.RUnlock()

	if ok {
		return ks
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if ks, ok := d.state[key]; ok {
		return ks
	}

	ks = newKeyState()
	d.state[key] = ks

	return ks
}

func (d *DiskItem) lookup(key shufflekey.Key) (*keyState, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ks, ok := d.state[key]

	return ks, ok
}

// removeIfDrained removes key from the top-level map if its state is
// fully drained. The caller must not hold ks.mu: this acquires d.mu and
// then checks the drained state under ks.mu, so a concurrent writer
// ingress on the same key cannot slip in between check and removal.
func (d *DiskItem) removeIfDrained(key shufflekey.Key, ks *keyState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.isDrainedLocked() && d.state[key] == ks {
		delete(d.state, key)
	}
}

// CreateMetadataIfNotExist ensures a keyState exists for key. Writer
// ingress calls this before the first UpdateWrite for a new shuffle.
func (d *DiskItem) CreateMetadataIfNotExist(key shufflekey.Key) {
	d.lookupOrCreate(key)
}

// UpdateWrite records that bytes more data, covering partitionIDs, have
// landed on disk for key and are not yet uploaded. This is the writer
// ingress path the uploader only observes through its effect on
// NotUploadedSize/NotUploadedPartitions.
func (d *DiskItem) UpdateWrite(key shufflekey.Key, bytes int64, partitionIDs []uint32) {
	ks := d.lookupOrCreate(key)

	ks.mu.Lock()
	defer ks.mu.Unlock()

	ks.notUploadedSize += bytes
	for _, p := range partitionIDs {
		ks.notUploadedPartitions.Set(p)
	}
}

// NotUploadedSize returns the current not-yet-uploaded byte count for key.
func (d *DiskItem) NotUploadedSize(key shufflekey.Key) int64 {
	ks, ok := d.lookup(key)
	if !ok {
		return 0
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	return ks.notUploadedSize
}

// NotUploadedPartitions returns a snapshot of the resident-partition
// bitmap for key. The caller owns the returned bitmap; mutating it has no
// effect on DiskItem's state.
func (d *DiskItem) NotUploadedPartitions(key shufflekey.Key) *bitmap.Bitmap {
	ks, ok := d.lookup(key)
	if !ok {
		return bitmap.New()
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	return ks.notUploadedPartitions.Clone()
}

// PrepareStartRead marks key as being read: deletion of its local files
// is inhibited until the sweeper observes the read has expired.
func (d *DiskItem) PrepareStartRead(key shufflekey.Key) {
	ks := d.lookupOrCreate(key)

	ks.mu.Lock()
	defer ks.mu.Unlock()

	ks.readingInProgress = true
	ks.lastReadTs = clock.Now()
}

// UpdateShuffleLastReadTs touches key's last-read timestamp, extending
// the window during which it is considered hot.
func (d *DiskItem) UpdateShuffleLastReadTs(key shufflekey.Key) {
	ks, ok := d.lookup(key)
	if !ok {
		return
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	ks.lastReadTs = clock.Now()
}

// IsReadingInProgress reports whether key is currently protected from
// deletion by an in-flight read.
func (d *DiskItem) IsReadingInProgress(key shufflekey.Key) bool {
	ks, ok := d.lookup(key)
	if !ok {
		return false
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	return ks.readingInProgress
}

// SortedShuffleKeys returns at most limit keys. When prioritizeOldest is
// false, keys are ordered by descending NotUploadedSize (biggest first);
// when true, by ascending lastReadTs (coldest first). Ties are broken
// lexicographically by key, per spec §4.1. The returned list may include
// keys with zero bytes or an empty bitmap; callers filter those out (see
// upload.selectShuffleFiles).
func (d *DiskItem) SortedShuffleKeys(prioritizeOldest bool, limit int) []shufflekey.Key {
	type entry struct {
		key        shufflekey.Key
		size       int64
		lastReadTs time.Time
	}

	d.mu.RLock()
	entries := make([]entry, 0, len(d.state))

	for k, ks := range d.state {
		ks.mu.Lock()
		entries = append(entries, entry{key: k, size: ks.notUploadedSize, lastReadTs: ks.lastReadTs})
		ks.mu.Unlock()
	}
	d.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if prioritizeOldest {
			if !entries[i].lastReadTs.Equal(entries[j].lastReadTs) {
				return entries[i].lastReadTs.Before(entries[j].lastReadTs)
			}
		} else {
			if entries[i].size != entries[j].size {
				return entries[i].size > entries[j].size
			}
		}

		return entries[i].key.Less(entries[j].key)
	})

	if limit >= 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	out := make([]shufflekey.Key, len(entries))
	for i, e := range entries {
		out[i] = e.key
	}

	return out
}

// UpdateUploadedState reconciles the result of a successful (or
// partially successful) upload for key: it decrements NotUploadedSize by
// bytes (clamped at zero) and clears the given partition bits, then
// either deletes the now-durable partitions' local files immediately, or
// — if key is currently being read — defers that deletion to the
// sweeper. Clearing an already-clear bit is a no-op, so results observed
// after the uploader's deadline (spec §4.3 step 4) are safe to apply
// twice.
//
// serverID identifies which sibling file pair to delete; it is owned by
// the uploader's configuration, not by DiskItem, since DiskItem has no
// notion of serverID in its data model (spec §3).
func (d *DiskItem) UpdateUploadedState(ctx context.Context, key shufflekey.Key, serverID string, partitionIDs []uint32, bytes int64) []uint32 {
	ks := d.lookupOrCreate(key)

	ks.mu.Lock()

	if bytes > ks.notUploadedSize {
		log(ctx).Warnw("uploaded bytes exceed notUploadedSize, clamping at zero",
			"key", key.String(), "notUploadedSize", ks.notUploadedSize, "uploadedBytes", bytes)
	}

	ks.notUploadedSize -= bytes
	if ks.notUploadedSize < 0 {
		ks.notUploadedSize = 0
	}

	var freshlyCleared []uint32

	for _, p := range partitionIDs {
		if ks.notUploadedPartitions.Contains(p) {
			ks.notUploadedPartitions.Clear(p)
			freshlyCleared = append(freshlyCleared, p)
		}
	}

	reading := ks.readingInProgress
	if reading {
		for _, p := range freshlyCleared {
			ks.pendingDeletion.Set(p)
		}
	}

	ks.mu.Unlock()

	var deleted []uint32

	if !reading {
		deleted = d.deletePartitions(ctx, key, serverID, freshlyCleared)
	}

	d.removeIfDrained(key, ks)

	return deleted
}

// deletePartitions removes the local data+index pairs for ids under key,
// logging (not failing) any LocalIoError per spec §7, and returns the ids
// it actually attempted.
func (d *DiskItem) deletePartitions(ctx context.Context, key shufflekey.Key, serverID string, ids []uint32) []uint32 {
	for _, p := range ids {
		if err := deletePartitionFiles(d.cfg.BasePath, key, serverID, p); err != nil {
			log(ctx).Warnw("failed to delete partition files",
				"key", key.String(), "partition", p, "error", err.Error())
		}
	}

	return ids
}

// Start launches the background sweeper goroutine. Each call launches
// another sweeper; repeated calls are not detected. Stop ends all of them.
// Construction and lifecycle are deliberately separate
// (spec §9 design note): the caller owns when the sweeper runs.
func (d *DiskItem) Start(ctx context.Context, serverID string) {
	d.wg.Add(1)

	go d.sweepLoop(ctx, serverID)
}

// Stop cancels the sweeper and waits for it to drain. In-flight uploads
// started elsewhere are not affected; Stop only owns the sweeper
// goroutine.
func (d *DiskItem) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
}

func (d *DiskItem) sweepLoop(ctx context.Context, serverID string) {
	defer d.wg.Done()

	t := time.NewTicker(d.cfg.SweepInterval)
	defer t.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			d.sweepOnce(ctx, serverID)
		}
	}
}

// sweepOnce clears expired readingInProgress flags and flushes any
// deletions that were deferred while those reads were in flight (spec
// §4.1 start()/stop(), scenario §8.7).
func (d *DiskItem) sweepOnce(ctx context.Context, serverID string) {
	d.mu.RLock()
	keys := make([]shufflekey.Key, 0, len(d.state))

	for k := range d.state {
		keys = append(keys, k)
	}
	d.mu.RUnlock()

	expiry := time.Duration(d.cfg.ShuffleExpiredTimeoutMs) * time.Millisecond

	for _, key := range keys {
		ks, ok := d.lookup(key)
		if !ok {
			continue
		}

		ks.mu.Lock()

		expired := ks.readingInProgress && clock.Now().Sub(ks.lastReadTs) > expiry
		var toDelete []uint32

		if expired {
			ks.readingInProgress = false
			toDelete = ks.pendingDeletion.ToSlice()
			ks.pendingDeletion = bitmap.New()
		}

		ks.mu.Unlock()

		if len(toDelete) > 0 {
			d.deletePartitions(ctx, key, serverID, toDelete)
		}

		if expired {
			d.removeIfDrained(key, ks)
		}
	}
}
