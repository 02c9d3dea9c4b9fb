package id_test

import (
	"testing"

	"github.com/xraph/renderq/id"
)

func TestNew_CarriesPrefix(t *testing.T) {
	tests := []struct {
		prefix id.Prefix
	}{
		{id.PrefixJob},
		{id.PrefixWorker},
		{id.PrefixProbe},
	}
	for _, tt := range tests {
		generated := id.New(tt.prefix)
		if generated.IsNil() {
			t.Fatalf("New(%q) returned nil ID", tt.prefix)
		}
		if got := generated.Prefix(); got != tt.prefix {
			t.Errorf("Prefix() = %q, want %q", got, tt.prefix)
		}
	}
}

func TestParse_RoundTrip(t *testing.T) {
	original := id.NewJobID()

	parsed, err := id.Parse(original.String())
	if err != nil {
		t.Fatalf("Parse(%q): %v", original.String(), err)
	}
	if parsed.String() != original.String() {
		t.Errorf("round trip = %q, want %q", parsed.String(), original.String())
	}
}

func TestParse_RejectsEmptyAndGarbage(t *testing.T) {
	for _, s := range []string{"", "not a typeid", "job_"} {
		if _, err := id.Parse(s); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", s)
		}
	}
}

func TestParseWithPrefix_RejectsWrongPrefix(t *testing.T) {
	workerID := id.NewWorkerID()

	if _, err := id.ParseJobID(workerID.String()); err == nil {
		t.Errorf("ParseJobID(%q) succeeded, want prefix mismatch error", workerID.String())
	}
}

func TestNil_StringAndMarshal(t *testing.T) {
	if got := id.Nil.String(); got != "" {
		t.Errorf("Nil.String() = %q, want empty", got)
	}
	data, err := id.Nil.MarshalText()
	if err != nil {
		t.Fatalf("Nil.MarshalText: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Nil.MarshalText() = %q, want empty", data)
	}
}

func TestScan_StringAndBytes(t *testing.T) {
	original := id.NewJobID()

	var fromString id.ID
	if err := fromString.Scan(original.String()); err != nil {
		t.Fatalf("Scan(string): %v", err)
	}
	if fromString.String() != original.String() {
		t.Errorf("Scan(string) = %q, want %q", fromString.String(), original.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("Scan(nil) should produce the Nil ID")
	}
}
