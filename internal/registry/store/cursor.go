package store

import (
	"sort"

	"github.com/chirino/cryptochat-server/internal/model"
)

// SortMessages orders messages ascending by timestamp, breaking ties with the
// per-chat sequence so delivery order is stable under a coarse clock.
func SortMessages(msgs []model.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp < msgs[j].Timestamp
		}
		return msgs[i].Seq < msgs[j].Seq
	})
}

// MessagesSince returns the messages strictly newer than the cursor, oldest
// first. The cursor is a previously seen message timestamp: everything after
// the newest message carrying exactly that timestamp is returned. A cursor
// matching no stored message means the client has seen nothing, so the full
// history is returned. The input slice is sorted in place.
func MessagesSince(msgs []model.Message, cursor float64) []model.Message {
	SortMessages(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Timestamp == cursor {
			return msgs[i+1:]
		}
	}
	return msgs
}
