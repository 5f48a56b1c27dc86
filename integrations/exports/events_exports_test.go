package exports

import (
	"strings"
	"testing"

	"creditchain/core/types"
)

func sampleEvents() []*types.Event {
	return []*types.Event{
		{
			Type: "vault.loan.opened",
			Attributes: map[string]string{
				"loanId":       "1",
				"principalUsd": "5000",
			},
		},
		{
			Type: "vault.loan.repaid",
			Attributes: map[string]string{
				"loanId": "1",
				"amount": "5000",
			},
		},
	}
}

func TestEventsCSV(t *testing.T) {
	data, checksum, err := EventsCSV(sampleEvents())
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if len(data) == 0 || checksum == "" {
		t.Fatalf("expected data and checksum")
	}
	output := string(data)
	if !strings.Contains(output, "sequence,type,amount,loanId,principalUsd") {
		t.Fatalf("missing header: %s", output)
	}
	if !strings.Contains(output, "vault.loan.repaid") {
		t.Fatalf("missing event type: %s", output)
	}
}

func TestEventsJSONL(t *testing.T) {
	data, checksum, err := EventsJSONL(sampleEvents())
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if len(data) == 0 || checksum == "" {
		t.Fatalf("expected data and checksum")
	}
	output := string(data)
	if !strings.Contains(output, "\"type\":\"vault.loan.opened\"") {
		t.Fatalf("unexpected payload: %s", output)
	}
	if !strings.Contains(output, "\"sequence\":1") {
		t.Fatalf("missing sequence: %s", output)
	}
}

func TestExportsSkipNilEvents(t *testing.T) {
	data, _, err := EventsJSONL([]*types.Event{nil})
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty payload, got %s", data)
	}
}
