package idgen

import "testing"

func TestEncodeBase36PadsAndTruncates(t *testing.T) {
	if got := EncodeBase36([]byte{0x01}, 4); got != "0001" {
		t.Fatalf("pad: got %q", got)
	}
	if got := EncodeBase36([]byte{0xff, 0xff, 0xff}, 2); len(got) != 2 {
		t.Fatalf("truncate: got %q", got)
	}
	if got := EncodeBase36([]byte{36}, 2); got != "10" {
		t.Fatalf("value: got %q", got)
	}
}

func TestRandomTokenShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		tok := Random{}.Token()
		if len(tok) != 5 {
			t.Fatalf("token %q has length %d", tok, len(tok))
		}
		seen[tok] = true
	}
	if len(seen) < 45 {
		t.Fatalf("tokens are not varied enough: %d distinct", len(seen))
	}
}

func TestSequenceIsDeterministic(t *testing.T) {
	s := &Sequence{Prefix: "x"}
	if a, b := s.Token(), s.Token(); a != "x1" || b != "x2" {
		t.Fatalf("got %s %s", a, b)
	}
}
