package postbox

import (
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/nodye/postbox/pkg/log"
	"github.com/nodye/postbox/pkg/metrics"
	"github.com/nodye/postbox/pkg/valuebox"
)

// MetadataTableName is the underlying bucket backing MetadataTable.
const MetadataTableName valuebox.Table = "metadata"

type counterKey struct {
	peerID    PeerID
	namespace MessageNamespace
}

// MetadataTable stores the singleton scalars and per-peer monotonic
// counters the messaging/history core needs, all inside one underlying
// KV table distinguished by a single prefix byte.
type MetadataTable struct {
	logger zerolog.Logger

	chatListInitialized       bool
	peerHistoryInitialized    map[PeerID]bool
	chatListGroupInitialized  map[int32]bool
	groupFeedIndexInitialized map[int32]bool

	nextMessageID      map[counterKey]uint32
	dirtyNextMessageID map[counterKey]struct{}

	nextStableMessageID      *uint32
	nextStableMessageIDDirty bool

	nextPeerOperationLogIndex      *uint32
	nextPeerOperationLogIndexDirty bool

	unreadState      *ChatListTotalUnreadState
	unreadStateDirty bool
}

// NewMetadataTable constructs an empty metadata table; its caches
// populate lazily as the engine reads through it.
func NewMetadataTable() *MetadataTable {
	return &MetadataTable{
		logger:                    log.WithTable(string(MetadataTableName)),
		peerHistoryInitialized:    make(map[PeerID]bool),
		chatListGroupInitialized:  make(map[int32]bool),
		groupFeedIndexInitialized: make(map[int32]bool),
		nextMessageID:             make(map[counterKey]uint32),
		dirtyNextMessageID:        make(map[counterKey]struct{}),
	}
}

// IsChatListInitialized reports the global chat-list-initialized flag.
func (t *MetadataTable) IsChatListInitialized(tx *valuebox.Transaction) (bool, error) {
	if t.chatListInitialized {
		return true, nil
	}
	exists, err := tx.Exists(MetadataTableName, chatListInitializedKey())
	if err != nil {
		return false, err
	}
	if exists {
		t.chatListInitialized = true
	}
	return exists, nil
}

// SetChatListInitialized idempotently marks the chat list as initialized.
func (t *MetadataTable) SetChatListInitialized(tx *valuebox.Transaction) error {
	if t.chatListInitialized {
		return nil
	}
	if err := tx.Set(MetadataTableName, chatListInitializedKey(), []byte{}); err != nil {
		return err
	}
	t.chatListInitialized = true
	return nil
}

// IsPeerHistoryInitialized reports whether peerID's history has been
// backfilled at least once.
func (t *MetadataTable) IsPeerHistoryInitialized(tx *valuebox.Transaction, peerID PeerID) (bool, error) {
	if t.peerHistoryInitialized[peerID] {
		return true, nil
	}
	exists, err := tx.Exists(MetadataTableName, peerHistoryInitializedKey(peerID))
	if err != nil {
		return false, err
	}
	if exists {
		t.peerHistoryInitialized[peerID] = true
	}
	return exists, nil
}

// SetPeerHistoryInitialized marks peerID's history as initialized.
func (t *MetadataTable) SetPeerHistoryInitialized(tx *valuebox.Transaction, peerID PeerID) error {
	if t.peerHistoryInitialized[peerID] {
		return nil
	}
	if err := tx.Set(MetadataTableName, peerHistoryInitializedKey(peerID), []byte{}); err != nil {
		return err
	}
	t.peerHistoryInitialized[peerID] = true
	return nil
}

// IsChatListGroupInitialized reports whether groupID's chat list has
// been initialized.
func (t *MetadataTable) IsChatListGroupInitialized(tx *valuebox.Transaction, groupID int32) (bool, error) {
	if t.chatListGroupInitialized[groupID] {
		return true, nil
	}
	exists, err := tx.Exists(MetadataTableName, chatListGroupInitializedKey(groupID))
	if err != nil {
		return false, err
	}
	if exists {
		t.chatListGroupInitialized[groupID] = true
	}
	return exists, nil
}

// SetChatListGroupInitialized marks groupID's chat list as initialized.
func (t *MetadataTable) SetChatListGroupInitialized(tx *valuebox.Transaction, groupID int32) error {
	if t.chatListGroupInitialized[groupID] {
		return nil
	}
	if err := tx.Set(MetadataTableName, chatListGroupInitializedKey(groupID), []byte{}); err != nil {
		return err
	}
	t.chatListGroupInitialized[groupID] = true
	return nil
}

// IsGroupFeedIndexInitialized reports whether groupID's feed index has
// been built.
func (t *MetadataTable) IsGroupFeedIndexInitialized(tx *valuebox.Transaction, groupID int32) (bool, error) {
	if t.groupFeedIndexInitialized[groupID] {
		return true, nil
	}
	exists, err := tx.Exists(MetadataTableName, groupFeedIndexInitializedKey(groupID))
	if err != nil {
		return false, err
	}
	if exists {
		t.groupFeedIndexInitialized[groupID] = true
	}
	return exists, nil
}

// SetGroupFeedIndexInitialized marks groupID's feed index as built.
func (t *MetadataTable) SetGroupFeedIndexInitialized(tx *valuebox.Transaction, groupID int32) error {
	if t.groupFeedIndexInitialized[groupID] {
		return nil
	}
	if err := tx.Set(MetadataTableName, groupFeedIndexInitializedKey(groupID), []byte{}); err != nil {
		return err
	}
	t.groupFeedIndexInitialized[groupID] = true
	return nil
}

// GetNextMessageIdAndIncrement returns the next message id for
// (peerID, namespace) and advances the counter by one. IDs are
// strictly monotonic across the process lifetime for committed
// transactions; a rolled-back transaction may leak an
// allocated id.
func (t *MetadataTable) GetNextMessageIdAndIncrement(tx *valuebox.Transaction, peerID PeerID, namespace MessageNamespace) (uint32, error) {
	key := counterKey{peerID: peerID, namespace: namespace}

	next, cached := t.nextMessageID[key]
	if !cached {
		raw, ok, err := tx.Get(MetadataTableName, peerNextMessageIDKey(peerID, namespace))
		if err != nil {
			return 0, err
		}
		if ok {
			next = decodeUint32(raw)
		} else {
			next = 1
		}
	}

	t.nextMessageID[key] = next + 1
	t.dirtyNextMessageID[key] = struct{}{}
	metrics.CounterAllocationsTotal.WithLabelValues("peer_message_id").Inc()
	return next, nil
}

// GetNextStableMessageIndexId returns the next globally stable message
// index id and advances the counter by one.
func (t *MetadataTable) GetNextStableMessageIndexId(tx *valuebox.Transaction) (uint32, error) {
	if t.nextStableMessageID == nil {
		raw, ok, err := tx.Get(MetadataTableName, nextStableMessageIDKey())
		if err != nil {
			return 0, err
		}
		var v uint32 = 1
		if ok {
			v = decodeUint32(raw)
		}
		t.nextStableMessageID = &v
	}
	returned := *t.nextStableMessageID
	next := returned + 1
	t.nextStableMessageID = &next
	t.nextStableMessageIDDirty = true
	metrics.CounterAllocationsTotal.WithLabelValues("stable_message_id").Inc()
	return returned, nil
}

// GetNextPeerOperationLogIndex returns the next peer operation log
// index and advances the counter by one.
func (t *MetadataTable) GetNextPeerOperationLogIndex(tx *valuebox.Transaction) (uint32, error) {
	if t.nextPeerOperationLogIndex == nil {
		raw, ok, err := tx.Get(MetadataTableName, nextPeerOperationLogIndexKey())
		if err != nil {
			return 0, err
		}
		var v uint32 = 1
		if ok {
			v = decodeUint32(raw)
		}
		t.nextPeerOperationLogIndex = &v
	}
	returned := *t.nextPeerOperationLogIndex
	next := returned + 1
	t.nextPeerOperationLogIndex = &next
	t.nextPeerOperationLogIndexDirty = true
	metrics.CounterAllocationsTotal.WithLabelValues("peer_operation_log_index").Inc()
	return returned, nil
}

// GetChatListTotalUnreadState returns the cached unread-state struct,
// lazily decoding it from the store on first access.
func (t *MetadataTable) GetChatListTotalUnreadState(tx *valuebox.Transaction) (ChatListTotalUnreadState, error) {
	if t.unreadState != nil {
		return *t.unreadState, nil
	}
	raw, ok, err := tx.Get(MetadataTableName, chatListTotalUnreadStateKey())
	if err != nil {
		return ChatListTotalUnreadState{}, err
	}
	state := ChatListTotalUnreadState{}
	if ok {
		state, err = decodeChatListTotalUnreadState(raw)
		if err != nil {
			return ChatListTotalUnreadState{}, fmt.Errorf("postbox: decode unread state: %w", err)
		}
	}
	t.unreadState = &state
	return state, nil
}

// SetChatListTotalUnreadState replaces the unread state. A write equal
// to the current value (by deep equality) is silently dropped.
func (t *MetadataTable) SetChatListTotalUnreadState(tx *valuebox.Transaction, state ChatListTotalUnreadState) error {
	current, err := t.GetChatListTotalUnreadState(tx)
	if err != nil {
		return err
	}
	if reflect.DeepEqual(current, state) {
		return nil
	}
	t.unreadState = &state
	t.unreadStateDirty = true
	return nil
}

// BeforeCommit flushes every dirty counter and the unread state.
func (t *MetadataTable) BeforeCommit(tx *valuebox.Transaction) error {
	for key := range t.dirtyNextMessageID {
		if value, ok := t.nextMessageID[key]; ok {
			if err := tx.Set(MetadataTableName, peerNextMessageIDKey(key.peerID, key.namespace), encodeUint32(value)); err != nil {
				return err
			}
		} else {
			if err := tx.Remove(MetadataTableName, peerNextMessageIDKey(key.peerID, key.namespace)); err != nil {
				return err
			}
		}
	}
	t.dirtyNextMessageID = make(map[counterKey]struct{})

	if t.nextStableMessageIDDirty {
		if err := tx.Set(MetadataTableName, nextStableMessageIDKey(), encodeUint32(*t.nextStableMessageID)); err != nil {
			return err
		}
		t.nextStableMessageIDDirty = false
	}

	if t.nextPeerOperationLogIndexDirty {
		if err := tx.Set(MetadataTableName, nextPeerOperationLogIndexKey(), encodeUint32(*t.nextPeerOperationLogIndex)); err != nil {
			return err
		}
		t.nextPeerOperationLogIndexDirty = false
	}

	if t.unreadStateDirty {
		encoded, err := encodeChatListTotalUnreadState(*t.unreadState)
		if err != nil {
			return fmt.Errorf("postbox: encode unread state: %w", err)
		}
		if err := tx.Set(MetadataTableName, chatListTotalUnreadStateKey(), encoded); err != nil {
			return err
		}
		t.unreadStateDirty = false
	}

	t.logger.Debug().Msg("metadata table flushed")
	return nil
}

// ClearMemoryCache discards every cache. It returns ErrDirtyCache and
// changes nothing while any counter or the unread state is dirty.
// Counters stay monotonic across this call because BeforeCommit
// persists each counter's next value to hand out, and the next read
// re-loads that value.
func (t *MetadataTable) ClearMemoryCache() error {
	if t.dirty() {
		return ErrDirtyCache
	}
	t.chatListInitialized = false
	t.peerHistoryInitialized = make(map[PeerID]bool)
	t.chatListGroupInitialized = make(map[int32]bool)
	t.groupFeedIndexInitialized = make(map[int32]bool)
	t.nextMessageID = make(map[counterKey]uint32)
	t.nextStableMessageID = nil
	t.nextPeerOperationLogIndex = nil
	t.unreadState = nil
	return nil
}

func (t *MetadataTable) dirty() bool {
	return len(t.dirtyNextMessageID) > 0 ||
		t.nextStableMessageIDDirty ||
		t.nextPeerOperationLogIndexDirty ||
		t.unreadStateDirty
}
