package disk

import (
	"os"

	"github.com/firestorm-project/shuffle-uploader/internal/layout"
	"github.com/firestorm-project/shuffle-uploader/internal/logging"
	"github.com/firestorm-project/shuffle-uploader/shufflekey"
)

var log = logging.Module("shuffle-uploader/disk") //nolint:gochecknoglobals

func partitionDir(basePath string, key shufflekey.Key, partitionID uint32) string {
	return layout.PartitionDir(basePath, key, partitionID)
}

func dataFilePath(dir, serverID string) string  { return layout.DataFilePath(dir, serverID) }
func indexFilePath(dir, serverID string) string { return layout.IndexFilePath(dir, serverID) }

// deletePartitionFiles removes the data+index pair for partitionID under
// key's directory, and removes the partition directory if it is left
// empty afterwards. Missing files are not an error: a partition can be
// deleted more than once across a straggling late task and an expired
// sweeper pass, and that must be harmless (spec §5 idempotency).
func deletePartitionFiles(basePath string, key shufflekey.Key, serverID string, partitionID uint32) error {
	dir := partitionDir(basePath, key, partitionID)

	for _, p := range []string{dataFilePath(dir, serverID), indexFilePath(dir, serverID)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	if len(entries) == 0 {
		_ = os.Remove(dir)
	}

	return nil
}
