package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"strconv"

	"creditchain/core/types"
)

// EventsCSV builds a CSV export for the supplied events and returns the
// serialised data alongside a SHA-256 checksum of the payload. The column set
// is the union of every attribute name, sorted, so all rows share a header.
func EventsCSV(events []*types.Event) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)

	keys := attributeKeys(events)
	header := append([]string{"sequence", "type"}, keys...)
	if err := writer.Write(header); err != nil {
		return nil, "", err
	}
	for i, event := range events {
		if event == nil {
			continue
		}
		record := make([]string, 0, len(header))
		record = append(record, strconv.Itoa(i), event.Type)
		for _, key := range keys {
			record = append(record, event.Attributes[key])
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
