// Package upload implements the ShuffleUploader policy engine: selection
// of candidate shuffle files per spec §4.2, dispatch to a worker pool and
// deadline-bounded wait per spec §4.3, and the handler abstraction
// consumed by both.
package upload

import (
	"context"

	"github.com/firestorm-project/shuffle-uploader/shufflekey"
)

// PartitionId identifies one partition within a shuffle.
type PartitionId = uint32 //nolint:revive

// ShuffleFileInfo is a batch unit given to a single upload worker (spec
// §3). A batch contains files from exactly one ShuffleKey.
type ShuffleFileInfo struct {
	Key          shufflekey.Key
	DataFiles    []string
	IndexFiles   []string
	PartitionIds []PartitionId
	TotalBytes   int64
	RemotePrefix string
}

// ShuffleUploadResult is the outcome of uploading one ShuffleFileInfo
// batch, reported by an UploadHandler (spec §6).
type ShuffleUploadResult struct {
	UploadedBytes        int64
	UploadedPartitionIds []PartitionId
}

// UploadHandler is the pluggable remote sink consumed by ShuffleUploader.
// Implementations (e.g. handler/hdfs) write a batch to the remote tier
// and report which partitions actually landed. uploadedPartitionIds must
// be a subset of batch.PartitionIds; partial success is permitted.
type UploadHandler interface {
	Upload(ctx context.Context, batch ShuffleFileInfo) (ShuffleUploadResult, error)
}
