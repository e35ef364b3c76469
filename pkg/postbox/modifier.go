package postbox

import "github.com/nodye/postbox/pkg/valuebox"

// Modifier is the handle a transaction job operates through: the
// in-flight valuebox transaction paired with every table, scoped to
// exactly one transaction. Its table fields are the same
// long-lived table instances across every transaction -- what resets
// per transaction is each table's own operation log, not the table
// itself.
type Modifier struct {
	tx *valuebox.Transaction

	Metadata        *MetadataTable
	AccountMetadata *accountMetadataTable
	Records         *RecordTable
	SharedData      *SharedDataTable
	ItemCollections *ItemCollectionTable
}

func (m *Modifier) tables() []Table {
	return []Table{m.Metadata, m.AccountMetadata, m.Records, m.SharedData, m.ItemCollections}
}

// resetOperationLogs clears every table's per-transaction operation
// log. MetadataTable carries none: its counters and flags are not
// watched by any view.
func (m *Modifier) resetOperationLogs() {
	m.AccountMetadata.resetOperations()
	m.Records.resetOperations()
	m.SharedData.resetOperations()
	m.ItemCollections.resetOperations()
}

func (m *Modifier) collectOperationLog() *operationLog {
	return &operationLog{
		records:       append([]RecordOperation(nil), m.Records.Operations()...),
		sharedDataKey: copyUpdatedKeySet(m.SharedData.updated),
		infoOps:       append([]ItemCollectionInfoOperation(nil), m.ItemCollections.InfoOperations()...),
		itemOps:       append([]ItemCollectionItemOperation(nil), m.ItemCollections.ItemOperations()...),
	}
}

func copyUpdatedKeySet(s updatedKeySet) updatedKeySet {
	out := make(updatedKeySet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}
