// Package layout is the single source of truth for the on-disk partition
// layout (spec §3/§6), shared by disk.DiskItem (which deletes files) and
// upload.selectShuffleFiles (which enumerates them).
package layout

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/firestorm-project/shuffle-uploader/shufflekey"
)

// PartitionDir returns <basePath>/<appId>/<shuffleId>/<p>-<p>.
func PartitionDir(basePath string, key shufflekey.Key, partitionID uint32) string {
	return filepath.Join(basePath, key.AppID, strconv.FormatInt(key.ShuffleID, 10), fmt.Sprintf("%d-%d", partitionID, partitionID))
}

// DataFilePath and IndexFilePath return the sibling files for one
// partition directory.
func DataFilePath(dir, serverID string) string  { return filepath.Join(dir, serverID+".data") }
func IndexFilePath(dir, serverID string) string { return filepath.Join(dir, serverID+".index") }

// RemotePrefix returns <serverId>/<appId>/<shuffleId>, the path segment
// appended to hdfsBasePath to form a batch's destination (spec §6).
func RemotePrefix(serverID string, key shufflekey.Key) string {
	return filepath.Join(serverID, key.AppID, strconv.FormatInt(key.ShuffleID, 10))
}
