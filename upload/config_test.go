package upload

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/firestorm-project/shuffle-uploader/shuffleerr"
)

func fullyPopulatedConfig() Config {
	return Config{
		UploadThreadNum:           2,
		UploadIntervalMS:          3,
		UploadCombineThresholdMB:  300,
		MaxShuffleSize:            1 << 20,
		ReferenceUploadSpeedMBS:   1,
		MaxForceUploadExpireTimeS: 13,
		RemoteStorageType:         HDFS,
		HDFSBasePath:              "hdfs://base",
		ServerID:                  "prefix",
		HadoopConf:                map[string]string{},
	}
}

func TestConfig_Validate_FullyPopulatedSucceeds(t *testing.T) {
	require.NoError(t, fullyPopulatedConfig().Validate())
}

func TestConfig_Validate_MissingReferenceSpeedFails(t *testing.T) {
	cfg := fullyPopulatedConfig()
	cfg.ReferenceUploadSpeedMBS = 0

	err := cfg.Validate()
	require.Error(t, err)
	require.True(t, shuffleerr.IsKind(err, shuffleerr.Configuration))
}

func TestConfig_Validate_NullRemoteStorageTypeFails(t *testing.T) {
	cfg := fullyPopulatedConfig()
	cfg.RemoteStorageType = ""

	err := cfg.Validate()
	require.Error(t, err)
	require.True(t, shuffleerr.IsKind(err, shuffleerr.Configuration))
}

func TestConfig_Validate_EmptyServerIDFails(t *testing.T) {
	cfg := fullyPopulatedConfig()
	cfg.ServerID = ""

	err := cfg.Validate()
	require.Error(t, err)
	require.True(t, shuffleerr.IsKind(err, shuffleerr.Configuration))
}

func TestConfig_Validate_ZeroMaxShuffleSizeFails(t *testing.T) {
	cfg := fullyPopulatedConfig()
	cfg.MaxShuffleSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	require.True(t, shuffleerr.IsKind(err, shuffleerr.Configuration))
}

func TestConfig_Validate_MalformedHDFSBasePathFails(t *testing.T) {
	cfg := fullyPopulatedConfig()
	cfg.HDFSBasePath = "not-hdfs"

	err := cfg.Validate()
	require.Error(t, err)
	require.True(t, shuffleerr.IsKind(err, shuffleerr.Configuration))
}

func TestConfig_Validate_NilHadoopConfFails(t *testing.T) {
	cfg := fullyPopulatedConfig()
	cfg.HadoopConf = nil

	err := cfg.Validate()
	require.Error(t, err)
	require.True(t, shuffleerr.IsKind(err, shuffleerr.Configuration))
}

func TestNew_RejectsNilDependencies(t *testing.T) {
	cfg := fullyPopulatedConfig()

	_, err := New(cfg, nil, stubHandler{})
	require.Error(t, err)
	require.True(t, shuffleerr.IsKind(err, shuffleerr.Configuration))

	_, err = New(cfg, newFakeDiskStore(), nil)
	require.Error(t, err)
	require.True(t, shuffleerr.IsKind(err, shuffleerr.Configuration))
}
