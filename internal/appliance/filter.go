package appliance

import (
	"bytes"
	"encoding/json"
)

// FilterResult classifies a message against the filter's history.
type FilterResult int

// Filter results.
const (
	// FilterNovel means the message carries new content and should be
	// dispatched.
	FilterNovel FilterResult = iota

	// FilterDuplicate means the content matches the most recently
	// accepted message of the same kind and should be suppressed.
	FilterDuplicate
)

// String returns the result name for logging.
func (r FilterResult) String() string {
	if r == FilterDuplicate {
		return "duplicate"
	}
	return "novel"
}

// Filter suppresses redundant messages so downstream consumers are not
// re-notified for information they already have.
//
// Duplicate detection is structural equality of the decoded payload with
// the envelope timestamp excluded: appliances re-stamp and resend
// identical state after every reconnect, and a timestamp-only change is
// not news. State is monotonic for the coordinator's lifetime and never
// reset.
//
// Not safe for concurrent use; the coordinator calls it from its single
// event loop.
type Filter struct {
	// lastSeen maps message kind to the fingerprint of the most
	// recently accepted message of that kind.
	lastSeen map[Kind][]byte
}

// NewFilter creates an empty filter.
func NewFilter() *Filter {
	return &Filter{
		lastSeen: make(map[Kind][]byte),
	}
}

// Check classifies a message and, when novel, records it as the new
// last-seen message for its kind. Safe to call for every inbound
// message, whatever its topic classification.
func (f *Filter) Check(msg *Message) FilterResult {
	fp := fingerprint(msg)

	if prev, ok := f.lastSeen[msg.Kind]; ok && bytes.Equal(prev, fp) {
		return FilterDuplicate
	}

	f.lastSeen[msg.Kind] = fp
	return FilterNovel
}

// fingerprint canonicalises a message's kind-specific fields. Go
// marshals maps with sorted keys, so two structurally equal payloads
// always produce identical bytes. Message.Fields already excludes the
// envelope timestamp.
func fingerprint(msg *Message) []byte {
	fp, err := json.Marshal(msg.Fields)
	if err != nil {
		// Fields came from json.Unmarshal, so this cannot fail; fall
		// back to treating the message as novel.
		return nil
	}
	return fp
}
