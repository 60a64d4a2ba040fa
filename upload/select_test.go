package upload

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/firestorm-project/shuffle-uploader/internal/bitmap"
	"github.com/firestorm-project/shuffle-uploader/internal/layout"
	"github.com/firestorm-project/shuffle-uploader/shufflekey"
)

// fakeDisk is a minimal diskView for exercising selectShuffleFiles
// without a real *disk.DiskItem.
type fakeDisk struct {
	order      []shufflekey.Key
	sizes      map[shufflekey.Key]int64
	partitions map[shufflekey.Key]*bitmap.Bitmap
}

func newFakeDisk() *fakeDisk {
	return &fakeDisk{
		sizes:      map[shufflekey.Key]int64{},
		partitions: map[shufflekey.Key]*bitmap.Bitmap{},
	}
}

func (f *fakeDisk) add(key shufflekey.Key, size int64, ids ...uint32) {
	f.order = append(f.order, key)
	f.sizes[key] = size
	f.partitions[key] = bitmap.FromSlice(ids)
}

func (f *fakeDisk) SortedShuffleKeys(_ bool, limit int) []shufflekey.Key {
	keys := append([]shufflekey.Key(nil), f.order...)
	if limit >= 0 && limit < len(keys) {
		keys = keys[:limit]
	}

	return keys
}

func (f *fakeDisk) NotUploadedSize(key shufflekey.Key) int64 { return f.sizes[key] }

func (f *fakeDisk) NotUploadedPartitions(key shufflekey.Key) *bitmap.Bitmap {
	return f.partitions[key]
}

func writeFile(t *testing.T, basePath string, key shufflekey.Key, partitionID uint32, serverID string, size int, hasIndex bool) {
	t.Helper()

	dir := layout.PartitionDir(basePath, key, partitionID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(layout.DataFilePath(dir, serverID), make([]byte, size), 0o644))

	if hasIndex {
		require.NoError(t, os.WriteFile(layout.IndexFilePath(dir, serverID), []byte("i"), 0o644))
	}
}

func setupScenario2(t *testing.T) (*fakeDisk, string, shufflekey.Key) {
	t.Helper()

	base := t.TempDir()
	key := shufflekey.New("app-1", 1)

	writeFile(t, base, key, 1, "server", 10, true)
	writeFile(t, base, key, 2, "server", 10, true)
	writeFile(t, base, key, 3, "server", 10, true)
	writeFile(t, base, key, 4, "server", 10, false) // missing index

	d := newFakeDisk()
	d.add(key, 40, 1, 2, 3, 4)

	return d, base, key
}

func TestSelectShuffleFiles_UnboundedMaxShuffleSize(t *testing.T) {
	d, base, key := setupScenario2(t)

	batches := selectShuffleFiles(d, base, "hdfs://base", "server", 2, false, math.MaxInt64)

	require.Len(t, batches, 1)
	require.Equal(t, key, batches[0].Key)
	require.Equal(t, []PartitionId{1, 2, 3}, batches[0].PartitionIds)
	require.EqualValues(t, 30, batches[0].TotalBytes)
}

func TestSelectShuffleFiles_SmallMaxShuffleSize(t *testing.T) {
	d, base, _ := setupScenario2(t)

	batches := selectShuffleFiles(d, base, "hdfs://base", "server", 2, false, 5)

	require.Len(t, batches, 3)
	for i, b := range batches {
		require.Len(t, b.PartitionIds, 1)
		require.EqualValues(t, 10, b.TotalBytes)
		require.Equal(t, PartitionId(i+1), b.PartitionIds[0])
	}
}

func TestSelectShuffleFiles_MediumMaxShuffleSize(t *testing.T) {
	d, base, _ := setupScenario2(t)

	batches := selectShuffleFiles(d, base, "hdfs://base", "server", 2, false, 15)

	require.Len(t, batches, 2)
	require.Equal(t, []PartitionId{1, 2}, batches[0].PartitionIds)
	require.EqualValues(t, 20, batches[0].TotalBytes)
	require.Equal(t, []PartitionId{3}, batches[1].PartitionIds)
	require.EqualValues(t, 10, batches[1].TotalBytes)
}

func TestSelectShuffleFiles_SkipsZeroAndEmptyCandidates(t *testing.T) {
	base := t.TempDir()
	d := newFakeDisk()

	zeroBytes := shufflekey.New("zero-bytes", 1)
	d.add(zeroBytes, 0, 1)

	emptyBitmap := shufflekey.New("empty-bitmap", 1)
	d.add(emptyBitmap, 100)

	batches := selectShuffleFiles(d, base, "hdfs://base", "server", 4, false, 1000)
	require.Empty(t, batches)
}

func TestSelectShuffleFiles_OversizedFileIsOwnBatch(t *testing.T) {
	base := t.TempDir()
	key := shufflekey.New("app-big", 1)

	writeFile(t, base, key, 1, "server", 3, true)
	writeFile(t, base, key, 2, "server", 100, true)
	writeFile(t, base, key, 3, "server", 3, true)

	d := newFakeDisk()
	d.add(key, 106, 1, 2, 3)

	batches := selectShuffleFiles(d, base, "hdfs://base", "server", 2, false, 10)

	require.Len(t, batches, 3)
	require.Equal(t, []PartitionId{1}, batches[0].PartitionIds)
	require.EqualValues(t, 3, batches[0].TotalBytes)
	require.Equal(t, []PartitionId{2}, batches[1].PartitionIds)
	require.EqualValues(t, 100, batches[1].TotalBytes)
	require.Equal(t, []PartitionId{3}, batches[2].PartitionIds)
	require.EqualValues(t, 3, batches[2].TotalBytes)
}

func TestSelectShuffleFiles_ForcedModeCapsBatchesPerKey(t *testing.T) {
	base := t.TempDir()
	key := shufflekey.New("huge-shuffle", 1)

	var ids []uint32
	for p := uint32(0); p < 10; p++ {
		writeFile(t, base, key, p, "server", 5, true)
		ids = append(ids, p)
	}

	d := newFakeDisk()
	d.add(key, 50, ids...)

	const threadNum = 3

	unforced := selectShuffleFiles(d, base, "hdfs://base", "server", threadNum, false, 10)
	require.Greater(t, len(unforced), threadNum, "precondition: this key naturally produces more batches than the thread budget")

	forced := selectShuffleFiles(d, base, "hdfs://base", "server", threadNum, true, 10)
	require.LessOrEqual(t, len(forced), threadNum)

	for _, b := range forced {
		require.Equal(t, key, b.Key)
	}
}

func TestSelectShuffleFiles_RemotePrefix(t *testing.T) {
	d, base, key := setupScenario2(t)

	batches := selectShuffleFiles(d, base, "hdfs://base/", "server", 2, false, math.MaxInt64)

	require.Len(t, batches, 1)
	require.Equal(t, filepath.Join("server", key.AppID, "1"), mustTrimPrefix(t, batches[0].RemotePrefix, "hdfs://base/"))
}

func mustTrimPrefix(t *testing.T, s, prefix string) string {
	t.Helper()

	require.True(t, len(s) >= len(prefix) && s[:len(prefix)] == prefix, "expected %q to have prefix %q", s, prefix)

	return s[len(prefix):]
}
