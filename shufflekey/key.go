// Package shufflekey defines the identifier used throughout the uploader
// for one shuffle: the (appId, shuffleId) pair.
package shufflekey

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Key identifies one shuffle: the (appId, shuffleId) pair. It serializes
// to "<appId>/<shuffleId>" in paths and as a sort key, per spec.
type Key struct {
	AppID     string
	ShuffleID int64
}

// New builds a Key from its parts.
func New(appID string, shuffleID int64) Key {
	return Key{AppID: appID, ShuffleID: shuffleID}
}

// String renders the key as "<appId>/<shuffleId>".
func (k Key) String() string {
	return k.AppID + "/" + strconv.FormatInt(k.ShuffleID, 10)
}

// Less reports whether k sorts before other, lexicographically by the
// serialized form. Used to break ties in sortedShuffleKeys.
func (k Key) Less(other Key) bool {
	return k.String() < other.String()
}

// Parse parses "<appId>/<shuffleId>" back into a Key.
func Parse(s string) (Key, error) {
	idx := strings.LastIndex(s, "/")
	if idx < 0 {
		return Key{}, errors.Errorf("malformed shuffle key %q: missing '/'", s)
	}

	appID, shuffleIDStr := s[:idx], s[idx+1:]
	if appID == "" {
		return Key{}, errors.Errorf("malformed shuffle key %q: empty appId", s)
	}

	shuffleID, err := strconv.ParseInt(shuffleIDStr, 10, 64)
	if err != nil {
		return Key{}, errors.Wrapf(err, "malformed shuffle key %q: bad shuffleId", s)
	}

	return Key{AppID: appID, ShuffleID: shuffleID}, nil
}

// GoString supports %#v formatting in test failure messages.
func (k Key) GoString() string {
	return fmt.Sprintf("shufflekey.Key{AppID:%q, ShuffleID:%d}", k.AppID, k.ShuffleID)
}
