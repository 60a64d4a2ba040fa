package upload

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/firestorm-project/shuffle-uploader/internal/logging"
	"github.com/firestorm-project/shuffle-uploader/shuffleerr"
)

// RemoteStorageType names the remote tier a Config targets. HDFS is the
// only concrete tier the core ships a handler for (spec §1 scope).
type RemoteStorageType string

// HDFS is the only supported RemoteStorageType.
const HDFS RemoteStorageType = "HDFS"

// Config is the validated configuration of one ShuffleUploader, replacing
// the chained-setter builder the original used (spec §9 design note): an
// explicit record whose Validate rejects a partial configuration outright.
type Config struct {
	UploadThreadNum           int
	UploadIntervalMS          int64
	UploadCombineThresholdMB  int64
	MaxShuffleSize            int64
	ReferenceUploadSpeedMBS   float64
	MaxForceUploadExpireTimeS int64
	RemoteStorageType         RemoteStorageType
	HDFSBasePath              string
	ServerID                  string

	// HadoopConf is opaque configuration handed to the concrete handler
	// (e.g. handler/hdfs); the core only checks it is non-nil.
	HadoopConf interface{}

	// LoggerFactory is carried in the configuration but not read by
	// ShuffleUploader: the uploader always logs through its package module
	// logger, which is a no-op unless WithLogger was used on the context
	// passed to Run or Tick.
	LoggerFactory logging.LoggerFactory
}

// Validate checks that cfg is a complete, usable configuration (spec
// §4.4). Every failure is reported as a shuffleerr.Configuration error.
func (c Config) Validate() error {
	if c.UploadThreadNum <= 0 {
		return shuffleerr.New(shuffleerr.Configuration, "uploadThreadNum must be positive")
	}

	if c.UploadIntervalMS <= 0 {
		return shuffleerr.New(shuffleerr.Configuration, "uploadIntervalMS must be positive")
	}

	if c.UploadCombineThresholdMB <= 0 {
		return shuffleerr.New(shuffleerr.Configuration, "uploadCombineThresholdMB must be positive")
	}

	if c.ReferenceUploadSpeedMBS <= 0 {
		return shuffleerr.New(shuffleerr.Configuration, "referenceUploadSpeedMBS must be positive")
	}

	if c.RemoteStorageType == "" {
		return shuffleerr.New(shuffleerr.Configuration, "remoteStorageType must be set")
	}

	if !strings.HasPrefix(c.HDFSBasePath, "hdfs://") || len(c.HDFSBasePath) <= len("hdfs://") {
		return shuffleerr.New(shuffleerr.Configuration, `hdfsBasePath must match "hdfs://<nonempty>"`)
	}

	if c.ServerID == "" {
		return shuffleerr.New(shuffleerr.Configuration, "serverId must not be empty")
	}

	if c.HadoopConf == nil {
		return shuffleerr.New(shuffleerr.Configuration, "hadoopConf must be set")
	}

	if c.MaxShuffleSize <= 0 {
		return shuffleerr.New(shuffleerr.Configuration, "maxShuffleSize must be positive")
	}

	if c.MaxForceUploadExpireTimeS <= 0 {
		return shuffleerr.New(shuffleerr.Configuration, "maxForceUploadExpireTimeS must be positive")
	}

	return nil
}

// errNilDiskItem and errNilHandler back New's nil-dependency checks; both
// are surfaced as shuffleerr.Configuration errors via wrapConfigErr.
var (
	errNilDiskItem = errors.New("diskItem is required")
	errNilHandler  = errors.New("uploadHandler is required")
)

func wrapConfigErr(err error) error {
	return shuffleerr.Wrap(shuffleerr.Configuration, err, "invalid uploader configuration")
}
