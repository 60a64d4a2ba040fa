// Package hdfs is the concrete UploadHandler (spec §6) that writes
// shuffle batches to an HDFS cluster via github.com/colinmarc/hdfs/v2,
// the remote-storage client the core sees only through upload.UploadHandler.
package hdfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	hdfslib "github.com/colinmarc/hdfs/v2"
	"github.com/pkg/errors"

	"github.com/firestorm-project/shuffle-uploader/internal/logging"
	"github.com/firestorm-project/shuffle-uploader/internal/throttle"
	"github.com/firestorm-project/shuffle-uploader/shuffleerr"
	"github.com/firestorm-project/shuffle-uploader/upload"
)

var log = logging.Module("shuffle-uploader/handler/hdfs") //nolint:gochecknoglobals

// Client is the subset of *hdfs.Client the handler depends on, so tests
// can supply a fake without a real namenode.
type Client interface {
	MkdirAll(name string, perm os.FileMode) error
	CreateFile(name string, replication int, blockSize int64, perm os.FileMode) (io.WriteCloser, error)
}

// Handler uploads ShuffleFileInfo batches to HDFS, shaping outbound
// bandwidth with a shared internal/throttle.TokenBucket.
type Handler struct {
	client      Client
	bucket      *throttle.TokenBucket
	replication int
	blockSize   int64
	perm        os.FileMode
}

// Option configures a Handler.
type Option func(*Handler)

// WithReplication overrides the default HDFS replication factor (3).
func WithReplication(n int) Option {
	return func(h *Handler) { h.replication = n }
}

// WithBlockSize overrides the default HDFS block size (128 MiB).
func WithBlockSize(n int64) Option {
	return func(h *Handler) { h.blockSize = n }
}

// New builds a Handler. bucket may be nil to disable bandwidth shaping.
func New(client Client, bucket *throttle.TokenBucket, opts ...Option) *Handler {
	h := &Handler{
		client:      client,
		bucket:      bucket,
		replication: 3,
		blockSize:   128 << 20,
		perm:        0o644,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// NewClient dials an HDFS namenode using the given addresses and user,
// the way a ShuffleUploader's builder wires hadoopConf into a concrete
// handler (spec §6 "hdfsBasePath, hadoopConf, serverId"), and adapts it
// to the Client interface this package depends on.
func NewClient(addresses []string, user string) (Client, error) {
	client, err := hdfslib.NewClient(hdfslib.ClientOptions{Addresses: addresses, User: user})
	if err != nil {
		return nil, errors.Wrap(err, "dialing hdfs namenode")
	}

	return realClient{client}, nil
}

// realClient adapts *hdfs.Client's concrete *hdfs.FileWriter return type
// to the io.WriteCloser this package's Client interface expects.
type realClient struct {
	*hdfslib.Client
}

func (c realClient) CreateFile(name string, replication int, blockSize int64, perm os.FileMode) (io.WriteCloser, error) {
	return c.Client.CreateFile(name, replication, blockSize, perm)
}

// Upload writes batch's data+index file pairs under batch.RemotePrefix,
// throttled by the handler's token bucket. A pair that fails to copy is
// skipped rather than failing the whole batch, since uploadedPartitionIds
// must be a subset of the input (spec §6): partial success is reported,
// not an error, unless every pair failed.
func (h *Handler) Upload(ctx context.Context, batch upload.ShuffleFileInfo) (upload.ShuffleUploadResult, error) {
	if err := h.client.MkdirAll(batch.RemotePrefix, 0o755); err != nil {
		return upload.ShuffleUploadResult{}, shuffleerr.Wrap(shuffleerr.TransientUpload, err, "creating remote prefix")
	}

	var (
		uploadedBytes int64
		uploadedIDs   []upload.PartitionId
	)

	for i, partitionID := range batch.PartitionIds {
		n, err := h.uploadPair(ctx, batch.DataFiles[i], batch.IndexFiles[i], batch.RemotePrefix)
		if err != nil {
			log(ctx).Warnw("partition upload failed, will retry next tick",
				"key", batch.Key.String(), "partition", partitionID, "error", err.Error())

			continue
		}

		uploadedBytes += n
		uploadedIDs = append(uploadedIDs, partitionID)
	}

	if len(uploadedIDs) == 0 && len(batch.PartitionIds) > 0 {
		return upload.ShuffleUploadResult{}, shuffleerr.New(shuffleerr.TransientUpload, "every partition in batch failed to upload")
	}

	return upload.ShuffleUploadResult{UploadedBytes: uploadedBytes, UploadedPartitionIds: uploadedIDs}, nil
}

func (h *Handler) uploadPair(ctx context.Context, dataPath, indexPath, remotePrefix string) (int64, error) {
	dataBytes, err := h.copyOne(ctx, dataPath, remotePrefix)
	if err != nil {
		return 0, errors.Wrap(err, "copying data file")
	}

	if _, err := h.copyOne(ctx, indexPath, remotePrefix); err != nil {
		return 0, errors.Wrap(err, "copying index file")
	}

	return dataBytes, nil
}

func (h *Handler) copyOne(ctx context.Context, localPath, remotePrefix string) (int64, error) {
	f, err := os.Open(localPath) //nolint:gosec
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	if h.bucket != nil {
		h.bucket.Take(ctx, float64(info.Size()))
	}

	remotePath := strings.TrimSuffix(remotePrefix, "/") + "/" + filepath.Base(localPath)

	w, err := h.client.CreateFile(remotePath, h.replication, h.blockSize, h.perm)
	if err != nil {
		return 0, err
	}
	defer w.Close()

	n, err := io.Copy(w, f)
	if err != nil {
		return 0, err
	}

	return n, nil
}
