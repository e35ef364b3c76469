package postbox

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// PeerID is a 64-bit integer identifying a conversation peer.
type PeerID int64

// MessageNamespace groups messages within a peer's history (e.g. regular
// vs. secret-chat messages). It is part of several composite keys below.
type MessageNamespace int32

// MessageID is (peerId, namespace, id); ordered lexicographically by its
// byte encoding, which matches (peerId, namespace, id) tuple order.
type MessageID struct {
	PeerID    PeerID
	Namespace MessageNamespace
	ID        int32
}

func (m MessageID) String() string {
	return fmt.Sprintf("MessageID(%d,%d,%d)", m.PeerID, m.Namespace, m.ID)
}

// ItemCollectionID is (namespace, id); the unit that
// ItemCollectionInfosView tracks one entry per.
type ItemCollectionID struct {
	Namespace int32
	ID        int64
}

func (c ItemCollectionID) String() string {
	return fmt.Sprintf("ItemCollectionID(%d,%d)", c.Namespace, c.ID)
}

// AccountRecordID identifies a row in the account-manager's record
// table. Unlike PeerID/MessageID/ItemCollectionID, its layout is an
// account-manager concern rather than part of the peer/message schema
// above, so it is opaque outside this package.
type AccountRecordID int64

// newAccountRecordID mints a fresh record id from a random UUIDv4,
// folded into 63 bits. Record ids are opaque handles, not a sequence,
// so a random source avoids coordinating a counter across the
// account-manager core's record and shared-data tables.
func newAccountRecordID() AccountRecordID {
	id := uuid.New()
	v := binary.BigEndian.Uint64(id[:8])
	return AccountRecordID(v &^ (1 << 63))
}

// newTemporarySessionID mints the process-lifetime 64-bit value
// records created by AllocatedTemporaryAccountID are tagged with.
// Upper layers treat a record tagged with any value other than the
// current process's as stale and eligible for reclamation on open.
func newTemporarySessionID() int64 {
	id := uuid.New()
	return int64(binary.BigEndian.Uint64(id[:8]))
}

// PeerSummaryCounterTags classifies an unread-counter bucket (e.g. "all
// chats", "private chats", a specific folder). The concrete tag space
// is a domain schema concern out of scope for this package; it is
// carried here only as the map key of ChatListTotalUnreadState.
type PeerSummaryCounterTags int32
