package postbox

import (
	"encoding/json"
	"sort"
)

// UnreadCounter is one counter-tag bucket's contribution to a
// ChatListTotalUnreadState: how many unread messages and how many
// chats carrying at least one of them.
type UnreadCounter struct {
	MessageCount int32
	ChatCount    int32
}

// ChatListTotalUnreadState is the aggregate unread-count summary the
// chat list keeps per counter tag, split into the two views a client
// renders: AbsoluteCounters counts every unread message regardless of
// notification settings, FilteredCounters counts only those that would
// actually surface a notification. It is small and infrequently
// written, so it is stored JSON-encoded as a single value rather than
// broken into per-tag keys.
type ChatListTotalUnreadState struct {
	AbsoluteCounters map[PeerSummaryCounterTags]UnreadCounter
	FilteredCounters map[PeerSummaryCounterTags]UnreadCounter
}

type unreadCounterEntry struct {
	Tag          PeerSummaryCounterTags `json:"k"`
	MessageCount int32                  `json:"m"`
	ChatCount    int32                  `json:"c"`
}

type unreadStateWire struct {
	Absolute []unreadCounterEntry `json:"ad"`
	Filtered []unreadCounterEntry `json:"fd"`
}

func flattenUnreadCounters(counters map[PeerSummaryCounterTags]UnreadCounter) []unreadCounterEntry {
	entries := make([]unreadCounterEntry, 0, len(counters))
	for tag, counter := range counters {
		entries = append(entries, unreadCounterEntry{Tag: tag, MessageCount: counter.MessageCount, ChatCount: counter.ChatCount})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Tag < entries[j].Tag })
	return entries
}

func unflattenUnreadCounters(entries []unreadCounterEntry) map[PeerSummaryCounterTags]UnreadCounter {
	counters := make(map[PeerSummaryCounterTags]UnreadCounter, len(entries))
	for _, entry := range entries {
		counters[entry.Tag] = UnreadCounter{MessageCount: entry.MessageCount, ChatCount: entry.ChatCount}
	}
	return counters
}

func encodeChatListTotalUnreadState(state ChatListTotalUnreadState) ([]byte, error) {
	wire := unreadStateWire{
		Absolute: flattenUnreadCounters(state.AbsoluteCounters),
		Filtered: flattenUnreadCounters(state.FilteredCounters),
	}
	return json.Marshal(wire)
}

func decodeChatListTotalUnreadState(raw []byte) (ChatListTotalUnreadState, error) {
	var wire unreadStateWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return ChatListTotalUnreadState{}, err
	}
	return ChatListTotalUnreadState{
		AbsoluteCounters: unflattenUnreadCounters(wire.Absolute),
		FilteredCounters: unflattenUnreadCounters(wire.Filtered),
	}, nil
}
