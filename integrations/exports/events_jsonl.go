package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"creditchain/core/types"
)

// EventsJSONL builds a JSON Lines export for the supplied events and returns
// the serialised payload alongside a SHA-256 checksum. Events keep their
// emission order; a sequence number is included so downstream consumers can
// detect gaps after filtering.
func EventsJSONL(events []*types.Event) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for i, event := range events {
		if event == nil {
			continue
		}
		payload := map[string]interface{}{
			"sequence":   i,
			"type":       event.Type,
			"attributes": event.Attributes,
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

// attributeKeys returns the sorted attribute names present across the events.
// CSV exports need a stable column set even when event types carry different
// attributes.
func attributeKeys(events []*types.Event) []string {
	seen := map[string]bool{}
	for _, event := range events {
		if event == nil {
			continue
		}
		for key := range event.Attributes {
			seen[key] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
