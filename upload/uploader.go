package upload

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/firestorm-project/shuffle-uploader/internal/logging"
	"github.com/firestorm-project/shuffle-uploader/internal/workqueue"
	"github.com/firestorm-project/shuffle-uploader/shufflekey"
)

var log = logging.Module("shuffle-uploader/upload") //nolint:gochecknoglobals

// diskStore is everything ShuffleUploader needs from a DiskItem: the
// read side used by selection, plus the reconciliation call applied to
// upload results.
type diskStore interface {
	diskView
	BasePath() string
	GetCapacity() int64
	GetHighWaterMarkOfWrite() float64
	GetLowWaterMarkOfWrite() float64
	TotalNotUploadedSize() int64
	UpdateUploadedState(ctx context.Context, key shufflekey.Key, serverID string, partitionIDs []uint32, bytes int64) []uint32
}

// ShuffleUploader is the policy engine described in spec §2/§4.3: each
// tick it selects candidate batches, dispatches them to a fixed-size
// worker pool, waits up to a computed deadline, and reconciles DiskItem
// state with whatever results were observed in time.
type ShuffleUploader struct {
	cfg     Config
	disk    diskStore
	handler UploadHandler
	pool    *workqueue.Pool

	inFlightBytes int64 // atomic
}

// New validates cfg and constructs a ShuffleUploader. disk and handler
// must be non-nil; a nil either is reported as a shuffleerr.Configuration
// error, matching the "refuse to run if any parameter is missing" rule
// (spec §2 item 4).
func New(cfg Config, disk diskStore, handler UploadHandler) (*ShuffleUploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if disk == nil {
		return nil, wrapConfigErr(errNilDiskItem)
	}

	if handler == nil {
		return nil, wrapConfigErr(errNilHandler)
	}

	return &ShuffleUploader{
		cfg:     cfg,
		disk:    disk,
		handler: handler,
		pool:    workqueue.NewPool(cfg.UploadThreadNum),
	}, nil
}

// Tick executes one upload cycle (spec §4.3 upload()). It never returns
// an error to its caller: every failure mode from §7 is absorbed into a
// no-op or a partial state delta, observable only through logs and the
// next tick's retry.
func (u *ShuffleUploader) Tick(ctx context.Context) {
	usedBytes := u.disk.TotalNotUploadedSize()
	forced := float64(usedBytes) >= u.disk.GetHighWaterMarkOfWrite()*float64(u.disk.GetCapacity())

	batches := selectShuffleFiles(u.disk, u.disk.BasePath(), u.cfg.HDFSBasePath, u.cfg.ServerID, u.cfg.UploadThreadNum, forced, u.cfg.MaxShuffleSize)

	if len(batches) == 0 {
		log(ctx).Debugw("tick found nothing to upload", "forced", forced)
		return
	}

	var thisTickBytes int64
	for _, b := range batches {
		thisTickBytes += b.TotalBytes
	}

	inFlightBefore := atomic.LoadInt64(&u.inFlightBytes)
	deadline := calculateUploadTime(inFlightBefore, thisTickBytes, u.cfg.ReferenceUploadSpeedMBS, u.cfg.UploadThreadNum, forced, u.cfg.MaxForceUploadExpireTimeS)

	atomic.AddInt64(&u.inFlightBytes, thisTickBytes)

	jobs := make([]workqueue.Job, len(batches))
	for i, b := range batches {
		b := b
		jobs[i] = func(ctx context.Context) (interface{}, error) {
			defer atomic.AddInt64(&u.inFlightBytes, -b.TotalBytes)
			return u.handler.Upload(ctx, b)
		}
	}

	results := u.pool.Run(ctx, jobs)

	var confirmedBytes int64

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	observed := 0

drain:
	for observed < len(jobs) {
		select {
		case r, ok := <-results:
			if !ok {
				break drain
			}

			observed++
			confirmedBytes += u.reconcile(ctx, batches[r.Index], r)
		case <-timer.C:
			log(ctx).Warnw("tick deadline elapsed, abandoning stragglers",
				"observed", observed, "total", len(jobs), "deadlineSeconds", deadline.Seconds())

			break drain
		case <-ctx.Done():
			break drain
		}
	}

	log(ctx).Infow("tick complete",
		"forced", forced,
		"batches", len(batches),
		"bytesDispatched", thisTickBytes,
		"bytesConfirmed", confirmedBytes,
		"deadlineSeconds", deadline.Seconds())
}

// reconcile applies one batch's result to DiskItem and returns the bytes
// it confirmed, per spec §4.3 step 5 / §7 TransientUploadError handling.
func (u *ShuffleUploader) reconcile(ctx context.Context, batch ShuffleFileInfo, r workqueue.Result) int64 {
	if r.Err != nil {
		log(ctx).Warnw("batch upload failed, will retry next tick",
			"key", batch.Key.String(), "error", r.Err.Error())

		return 0
	}

	result, ok := r.Value.(ShuffleUploadResult)
	if !ok {
		log(ctx).Errorw("handler returned unexpected result type", "key", batch.Key.String())
		return 0
	}

	if len(result.UploadedPartitionIds) < len(batch.PartitionIds) {
		log(ctx).Warnw("partial batch upload",
			"key", batch.Key.String(),
			"uploaded", len(result.UploadedPartitionIds),
			"total", len(batch.PartitionIds))
	}

	u.disk.UpdateUploadedState(ctx, batch.Key, u.cfg.ServerID, result.UploadedPartitionIds, result.UploadedBytes)

	return result.UploadedBytes
}

// Run drives Tick every UploadIntervalMS until ctx is canceled. This is
// the scheduler loop the caller starts once per disk (spec §5: "one
// dedicated scheduler thread per DiskItem").
func (u *ShuffleUploader) Run(ctx context.Context) {
	interval := time.Duration(u.cfg.UploadIntervalMS) * time.Millisecond

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			u.Tick(ctx)
		}
	}
}
