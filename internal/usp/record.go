package usp

import (
	"strings"
)

// RecordVersion is the USP protocol version stamped on every record.
const RecordVersion = "1.2"

// Record field numbers from usp-record-1-2.proto.
const (
	fieldRecordVersion          = 1
	fieldRecordToID             = 2
	fieldRecordFromID           = 3
	fieldRecordNoSessionContext = 7

	fieldNoSessionPayload = 2
)

// Record is a plaintext, no-session-context USP Record.
type Record struct {
	ToID    string
	FromID  string
	Payload []byte
}

// MarshalRecord encodes r. payload_security is PLAINTEXT, the enum default,
// so it is never written.
func MarshalRecord(r Record) ([]byte, error) {
	if strings.TrimSpace(r.ToID) == "" {
		return nil, ErrMissingToID
	}
	var nsc []byte
	nsc = appendBytes(nsc, fieldNoSessionPayload, r.Payload)

	var b []byte
	b = appendString(b, fieldRecordVersion, RecordVersion)
	b = appendString(b, fieldRecordToID, r.ToID)
	b = appendString(b, fieldRecordFromID, r.FromID)
	b = appendMessage(b, fieldRecordNoSessionContext, nsc)
	return b, nil
}

// Wrap encodes msg and places it in a record addressed from fromID to toID.
func Wrap(msg *Msg, toID, fromID string) ([]byte, error) {
	payload, err := Marshal(msg)
	if err != nil {
		return nil, err
	}
	return MarshalRecord(Record{ToID: toID, FromID: fromID, Payload: payload})
}
