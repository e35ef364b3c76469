package postbox

import "encoding/json"

// AccountRecord is one row of the account-manager core's record table.
// Its Fields payload is domain-opaque to this package: callers decide
// what Fields means, this package only moves bytes around and emits
// operation log entries on change. TemporarySessionID, when non-nil,
// marks the record ephemeral: it was minted by
// AllocatedTemporaryAccountID and is tagged with the process's
// temporary session id so a later open can reclaim it if the tag no
// longer matches the current process's.
type AccountRecord struct {
	ID                 AccountRecordID
	Fields             map[string]json.RawMessage
	TemporarySessionID *int64
}

type accountRecordWire struct {
	Fields             map[string]json.RawMessage `json:"fields"`
	TemporarySessionID *int64                      `json:"temporarySessionId,omitempty"`
}

func encodeAccountRecord(r AccountRecord) ([]byte, error) {
	return json.Marshal(accountRecordWire{Fields: r.Fields, TemporarySessionID: r.TemporarySessionID})
}

func decodeAccountRecord(id AccountRecordID, raw []byte) (AccountRecord, error) {
	var wire accountRecordWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return AccountRecord{}, err
	}
	if wire.Fields == nil {
		wire.Fields = make(map[string]json.RawMessage)
	}
	return AccountRecord{ID: id, Fields: wire.Fields, TemporarySessionID: wire.TemporarySessionID}, nil
}
