package store_test

import (
	"testing"

	"github.com/chirino/cryptochat-server/internal/model"
	"github.com/chirino/cryptochat-server/internal/registry/store"
	"github.com/stretchr/testify/assert"
)

func msg(text string, ts float64, seq int64) model.Message {
	return model.Message{ChatID: 1, SenderID: 1, Message: text, Timestamp: ts, Seq: seq}
}

func texts(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Message
	}
	return out
}

func TestMessagesSince(t *testing.T) {
	history := []model.Message{
		msg("m3", 3.0, 3),
		msg("m1", 1.0, 1),
		msg("m2", 2.0, 2),
	}

	got := store.MessagesSince(history, 2.0)
	assert.Equal(t, []string{"m3"}, texts(got))
}

func TestMessagesSinceUnknownCursorReturnsAll(t *testing.T) {
	history := []model.Message{
		msg("m2", 2.0, 2),
		msg("m1", 1.0, 1),
	}

	got := store.MessagesSince(history, 99.5)
	assert.Equal(t, []string{"m1", "m2"}, texts(got))
}

func TestMessagesSinceEmptyHistory(t *testing.T) {
	assert.Empty(t, store.MessagesSince(nil, 1.0))
}

func TestMessagesSinceTimestampTiesResolveBySeq(t *testing.T) {
	// Three messages share one coarse timestamp. The cursor names that
	// timestamp, so everything after the newest tied message is returned:
	// nothing skipped, nothing duplicated.
	history := []model.Message{
		msg("b", 5.0, 2),
		msg("c", 5.0, 3),
		msg("a", 5.0, 1),
		msg("d", 6.0, 4),
	}

	got := store.MessagesSince(history, 5.0)
	assert.Equal(t, []string{"d"}, texts(got))
}

func TestSortMessagesStable(t *testing.T) {
	history := []model.Message{
		msg("second", 1.0, 2),
		msg("third", 2.0, 3),
		msg("first", 1.0, 1),
	}

	store.SortMessages(history)
	assert.Equal(t, []string{"first", "second", "third"}, texts(history))
}
