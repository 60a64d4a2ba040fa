package shufflekey_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/firestorm-project/shuffle-uploader/shufflekey"
)

func TestKey_String(t *testing.T) {
	k := shufflekey.New("app-1", 1)
	require.Equal(t, "app-1/1", k.String())
}

func TestKey_ParseRoundTrip(t *testing.T) {
	k := shufflekey.New("app-1", 42)

	parsed, err := shufflekey.Parse(k.String())
	require.NoError(t, err)
	require.Equal(t, k, parsed)
}

func TestKey_ParseRejectsMalformed(t *testing.T) {
	_, err := shufflekey.Parse("no-slash-here")
	require.Error(t, err)

	_, err = shufflekey.Parse("/1")
	require.Error(t, err)

	_, err = shufflekey.Parse("app-1/not-a-number")
	require.Error(t, err)
}

func TestKey_LessIsLexicographic(t *testing.T) {
	a := shufflekey.New("app-1", 1)
	b := shufflekey.New("app-1", 2)
	c := shufflekey.New("app-2", 1)

	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
	require.True(t, b.Less(c))
}
