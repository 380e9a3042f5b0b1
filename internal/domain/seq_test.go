package domain

import (
	"encoding/json"
	"testing"
)

func TestSeqAppendLeavesReceiverUntouched(t *testing.T) {
	base := SeqOf(Line{ID: "a"})
	next := base.Append(Line{ID: "b"}, Line{ID: "c"})
	if base.Len() != 1 {
		t.Fatalf("base mutated: %d", base.Len())
	}
	if next.Len() != 3 || next.At(2).ID != "c" {
		t.Fatalf("unexpected append result: %+v", next.Items())
	}
	last, ok := next.Last()
	if !ok || last.ID != "c" {
		t.Fatalf("last = %+v", last)
	}
}

func TestSeqJSONEmptyIsArray(t *testing.T) {
	var s Seq[Comment]
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "[]" {
		t.Fatalf("got %s", b)
	}
	var back Seq[Line]
	if err := json.Unmarshal([]byte(`[{"id":"x","text":"hi","timestamp":5}]`), &back); err != nil {
		t.Fatal(err)
	}
	if back.Len() != 1 || back.At(0).Timestamp != 5 {
		t.Fatalf("decoded %+v", back.Items())
	}
}
