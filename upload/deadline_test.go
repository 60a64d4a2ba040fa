package upload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const mib = 1 << 20

func TestCalculateUploadTime_ReferenceTable(t *testing.T) {
	cases := []struct {
		name           string
		inFlightBytes  int64
		newBytes       int64
		referenceSpeed float64
		threads        int
		forced         bool
		maxExpireS     int64
		wantSeconds    int
	}{
		{"idle tick floors at two", 0, 0, 128, 1, false, 13, 2},
		{"single small batch floors at two", 0, 128 * mib, 128, 1, false, 13, 2},
		{"three batches non-forced", 0, 3 * 128 * mib, 128, 1, false, 13, 6},
		{"in-flight plus new non-forced", 6 * 128 * mib, 3 * 128 * mib, 128, 1, false, 13, 12},
		{"two threads non-forced", 4 * 128 * mib, 6 * 128 * mib, 128, 2, false, 10, 8},
		{"two threads forced clamps down", 4 * 128 * mib, 6 * 128 * mib, 128, 2, true, 7, 7},
		{"idle forced tick floors at one", 0, 0, 128, 2, true, 1, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := calculateUploadTime(tc.inFlightBytes, tc.newBytes, tc.referenceSpeed, tc.threads, tc.forced, tc.maxExpireS)
			require.Equal(t, time.Duration(tc.wantSeconds)*time.Second, got)
		})
	}
}
