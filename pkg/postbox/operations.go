package postbox

// ItemCollectionInfoOperation is logged once per ReplaceInfos(namespace)
// call during a transaction.
type ItemCollectionInfoOperation struct {
	Namespace int32
}

// ItemCollectionItemOperation is logged once per ReplaceItems call,
// naming the collection whose items changed.
type ItemCollectionItemOperation struct {
	CollectionID ItemCollectionID
}

// RecordOperation describes one account record's transition during a
// transaction. After is nil for a delete.
type RecordOperation struct {
	ID     AccountRecordID
	Before *AccountRecord
	After  *AccountRecord
}

// MetadataOperationKind enumerates the account-manager metadata
// transitions views care about.
type MetadataOperationKind int

const (
	// MetadataOperationCurrentIDChanged fires when the current account
	// id singleton is written to a different value.
	MetadataOperationCurrentIDChanged MetadataOperationKind = iota
)

// MetadataOperation is logged once per account-manager metadata change.
type MetadataOperation struct {
	Kind MetadataOperationKind
}

// updatedKeySet is the per-transaction set of shared-data keys whose
// value changed, keyed by the raw key bytes converted to string so it
// can live in a Go map.
type updatedKeySet map[string]struct{}

func (s updatedKeySet) add(key []byte) {
	s[string(key)] = struct{}{}
}
