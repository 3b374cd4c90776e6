package ingest

import "time"

// Source kinds. New messages, pinned-message edits and periodic
// re-checks all produce the same event shape; the kind is metadata.
const (
	SourceMessage = "message"
	SourcePinned  = "pinned"
	SourceRecheck = "recheck"
)

// Event is one raw inbound message to scan for contract addresses.
type Event struct {
	Text       string `json:"text"`
	SourceID   string `json:"source_id"`
	SourceKind string `json:"source_kind"`
	Timestamp  int64  `json:"timestamp"`
}

// Normalize fills defaults for optional fields.
func (e *Event) Normalize() {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}
	if e.SourceKind == "" {
		e.SourceKind = SourceMessage
	}
}
