package postbox

import "encoding/binary"

// Metadata table prefixes, bit-exact per the reference schema.
const (
	prefixChatListInitialized      byte = 0
	prefixPeerHistoryInitialized   byte = 1
	prefixPeerNextMessageID        byte = 2
	prefixNextStableMessageID      byte = 3
	prefixChatListTotalUnreadState byte = 4
	prefixNextPeerOperationLogIdx  byte = 5
	prefixChatListGroupInitialized byte = 6
	prefixGroupFeedIndexInit       byte = 7
)

func putUint64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }
func putUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

func chatListInitializedKey() []byte {
	return []byte{prefixChatListInitialized}
}

func peerHistoryInitializedKey(peerID PeerID) []byte {
	key := make([]byte, 9)
	putUint64(key[:8], uint64(peerID))
	key[8] = prefixPeerHistoryInitialized
	return key
}

func peerNextMessageIDKey(peerID PeerID, namespace MessageNamespace) []byte {
	key := make([]byte, 13)
	putUint64(key[:8], uint64(peerID))
	key[8] = prefixPeerNextMessageID
	putUint32(key[9:13], uint32(namespace))
	return key
}

func nextStableMessageIDKey() []byte {
	return []byte{prefixNextStableMessageID}
}

func chatListTotalUnreadStateKey() []byte {
	return []byte{prefixChatListTotalUnreadState}
}

func nextPeerOperationLogIndexKey() []byte {
	return []byte{prefixNextPeerOperationLogIdx}
}

func chatListGroupInitializedKey(groupID int32) []byte {
	key := make([]byte, 5)
	putUint32(key[:4], uint32(groupID))
	key[4] = prefixChatListGroupInitialized
	return key
}

func groupFeedIndexInitializedKey(groupID int32) []byte {
	key := make([]byte, 5)
	putUint32(key[:4], uint32(groupID))
	key[4] = prefixGroupFeedIndexInit
	return key
}

// encodeUint32 / decodeUint32 implement the byte order this package
// uses for counter values: big-endian, matching every other
// multi-byte field in the key layout.
func encodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func decodeUint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// --- item collection keys ---

func itemCollectionInfoKey(namespace int32, id int64) []byte {
	key := make([]byte, 12)
	putUint32(key[:4], uint32(namespace))
	binary.BigEndian.PutUint64(key[4:12], uint64(id))
	return key
}

func itemCollectionInfoNamespacePrefix(namespace int32) []byte {
	key := make([]byte, 4)
	putUint32(key, uint32(namespace))
	return key
}

func itemCollectionItemKey(collectionID ItemCollectionID, itemID int64) []byte {
	key := make([]byte, 20)
	putUint32(key[:4], uint32(collectionID.Namespace))
	binary.BigEndian.PutUint64(key[4:12], uint64(collectionID.ID))
	binary.BigEndian.PutUint64(key[12:20], uint64(itemID))
	return key
}

func itemCollectionItemsPrefix(collectionID ItemCollectionID) []byte {
	key := make([]byte, 12)
	putUint32(key[:4], uint32(collectionID.Namespace))
	binary.BigEndian.PutUint64(key[4:12], uint64(collectionID.ID))
	return key
}

// --- record / shared data keys ---

func recordKey(id AccountRecordID) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}
