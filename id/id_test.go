package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/evolution/id"
)

func TestNewPrefixes(t *testing.T) {
	tests := []struct {
		fn     func() id.ID
		prefix id.Prefix
	}{
		{id.NewEventID, id.PrefixEvent},
		{id.NewTaskID, id.PrefixTask},
		{id.NewCallID, id.PrefixCall},
	}
	for _, tt := range tests {
		got := tt.fn()
		if got.Prefix() != tt.prefix {
			t.Errorf("expected prefix %q, got %q", tt.prefix, got.Prefix())
		}
		if !strings.HasPrefix(got.String(), string(tt.prefix)+"_") {
			t.Errorf("unexpected string form %q", got.String())
		}
	}
}

func TestParseWithPrefix(t *testing.T) {
	task := id.NewTaskID()

	parsed, err := id.ParseTaskID(task.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != task {
		t.Fatalf("round trip mismatch: %v != %v", parsed, task)
	}

	if _, err := id.ParseEventID(task.String()); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
	if _, err := id.Parse(""); err == nil {
		t.Fatal("expected error for empty string")
	}
}

func TestJSONAndScan(t *testing.T) {
	evt := id.NewEventID()

	data, err := json.Marshal(struct {
		ID id.ID `json:"id"`
	}{evt})
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		ID id.ID `json:"id"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.ID != evt {
		t.Fatalf("JSON round trip mismatch: %s", data)
	}

	var scanned id.ID
	if err := scanned.Scan(evt.String()); err != nil || scanned != evt {
		t.Fatalf("Scan(string) = %v, %v", scanned, err)
	}
	if err := scanned.Scan(nil); err != nil || !scanned.IsNil() {
		t.Fatalf("Scan(nil) should yield Nil, got %v, %v", scanned, err)
	}
	if v, _ := id.Nil.Value(); v != nil {
		t.Fatalf("Nil.Value() = %v, want nil", v)
	}
	if err := scanned.Scan(42); err == nil {
		t.Fatal("expected error scanning int")
	}
}
