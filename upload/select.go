package upload

import (
	"os"
	"sort"
	"strings"

	"github.com/firestorm-project/shuffle-uploader/internal/bitmap"
	"github.com/firestorm-project/shuffle-uploader/internal/layout"
	"github.com/firestorm-project/shuffle-uploader/shufflekey"
)

// diskView is the subset of DiskItem that selectShuffleFiles needs. The
// concrete *disk.DiskItem satisfies it; tests supply a fake.
type diskView interface {
	SortedShuffleKeys(prioritizeOldest bool, limit int) []shufflekey.Key
	NotUploadedSize(key shufflekey.Key) int64
	NotUploadedPartitions(key shufflekey.Key) *bitmap.Bitmap
}

// selectShuffleFiles implements the selection policy: candidate keys,
// partition-pair enumeration, batch accumulation under maxShuffleSize,
// the oversized-single-file rule, and the forced-mode per-key batch cap.
func selectShuffleFiles(d diskView, basePath, hdfsBasePath, serverID string, maxThreadNum int, forced bool, maxShuffleSize int64) []ShuffleFileInfo {
	candidates := d.SortedShuffleKeys(forced, maxThreadNum)

	var batches []ShuffleFileInfo

	for _, key := range candidates {
		if d.NotUploadedSize(key) == 0 {
			continue
		}

		partitions := d.NotUploadedPartitions(key)
		if partitions.IsEmpty() {
			continue
		}

		keyBatches := batchesForKey(basePath, hdfsBasePath, serverID, key, partitions, maxShuffleSize)

		if forced && len(keyBatches) > maxThreadNum {
			keyBatches = keyBatches[:maxThreadNum]
		}

		batches = append(batches, keyBatches...)
	}

	return batches
}

// batchesForKey enumerates partition directories for key in ascending
// partition-id order, keeping only directories with a complete,
// non-empty data+index pair, and packs them into batches. A batch keeps
// accepting files while its running total is still below maxShuffleSize;
// the file that crosses the threshold is included before the next one
// starts a new batch, so a batch's final size can exceed maxShuffleSize
// by at most one file. A single file larger than maxShuffleSize is
// always emitted as its own batch, never combined with others.
func batchesForKey(basePath, hdfsBasePath, serverID string, key shufflekey.Key, partitions *bitmap.Bitmap, maxShuffleSize int64) []ShuffleFileInfo {
	ids := partitions.ToSlice()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	remotePrefix := strings.TrimSuffix(hdfsBasePath, "/") + "/" + layout.RemotePrefix(serverID, key)

	var (
		batches []ShuffleFileInfo
		current *ShuffleFileInfo
	)

	flush := func() {
		if current != nil {
			batches = append(batches, *current)
			current = nil
		}
	}

	for _, p := range ids {
		dir := layout.PartitionDir(basePath, key, p)
		dataPath := layout.DataFilePath(dir, serverID)
		indexPath := layout.IndexFilePath(dir, serverID)

		size, ok := completePairSize(dataPath, indexPath)
		if !ok {
			continue
		}

		if size > maxShuffleSize {
			flush()
			batches = append(batches, ShuffleFileInfo{
				Key:          key,
				DataFiles:    []string{dataPath},
				IndexFiles:   []string{indexPath},
				PartitionIds: []PartitionId{p},
				TotalBytes:   size,
				RemotePrefix: remotePrefix,
			})

			continue
		}

		if current != nil && current.TotalBytes >= maxShuffleSize {
			flush()
		}

		if current == nil {
			current = &ShuffleFileInfo{Key: key, RemotePrefix: remotePrefix}
		}

		current.DataFiles = append(current.DataFiles, dataPath)
		current.IndexFiles = append(current.IndexFiles, indexPath)
		current.PartitionIds = append(current.PartitionIds, p)
		current.TotalBytes += size
	}

	flush()

	return batches
}

// completePairSize reports the data file's size and true only if both
// the data and index files exist and are non-empty.
func completePairSize(dataPath, indexPath string) (int64, bool) {
	dataInfo, err := os.Stat(dataPath)
	if err != nil || dataInfo.Size() == 0 {
		return 0, false
	}

	indexInfo, err := os.Stat(indexPath)
	if err != nil || indexInfo.Size() == 0 {
		return 0, false
	}

	return dataInfo.Size(), true
}
