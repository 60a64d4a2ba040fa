package disk

import (
	"sync"
	"time"

	"github.com/firestorm-project/shuffle-uploader/internal/bitmap"
)

// keyState is the per-shuffle-key bookkeeping described in spec §3. Each
// keyState owns its own mutex so that mutations to unrelated keys never
// contend with each other; DiskItem.mu only ever guards the top-level map
// (insertion/removal of keys), never the fields inside a keyState.
type keyState struct {
	mu sync.Mutex

	notUploadedSize       int64
	notUploadedPartitions *bitmap.Bitmap

	// pendingDeletion holds partitions whose bit has already been cleared
	// (the bytes are durable remotely) but whose local files could not be
	// deleted yet because the key was in readingInProgress at the time.
	// The sweeper flushes this once the read expires.
	pendingDeletion *bitmap.Bitmap

	lastReadTs        time.Time
	readingInProgress bool
}

func newKeyState() *keyState {
	return &keyState{
		notUploadedPartitions: bitmap.New(),
		pendingDeletion:       bitmap.New(),
	}
}

// isDrainedLocked reports whether this key has nothing left to upload,
// nothing pending deletion, and isn't being read — i.e. it is eligible
// for removal from the DiskItem entirely (spec §3 Lifecycle).
//
// Caller must hold ks.mu.
func (ks *keyState) isDrainedLocked() bool {
	return ks.notUploadedSize == 0 &&
		ks.notUploadedPartitions.IsEmpty() &&
		ks.pendingDeletion.IsEmpty() &&
		!ks.readingInProgress
}
