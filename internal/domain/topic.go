package domain

import (
	"crypto/md5"
	"encoding/binary"
)

// topicSpace bounds topic ids to a small positive integer range. The provider
// addresses subscriptions by these ids but assigns them no meaning itself.
const topicSpace = 1 << 16

// TopicID deterministically folds a (field, symbol) pair into the provider's
// topic id space. Unrelated pairs can collide in a space this narrow; that is
// an accepted risk, the subscription table keyed by symbol and field remains
// the source of truth for what is actually active.
func TopicID(field FieldKind, symbol string) int {
	sum := md5.Sum([]byte(string(field) + ":" + symbol))
	return int(binary.BigEndian.Uint16(sum[14:])) % topicSpace
}
