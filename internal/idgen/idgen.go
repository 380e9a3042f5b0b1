package idgen

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Source hands out short tokens used to disambiguate generated ids.
type Source interface {
	Token() string
}

// EncodeBase36 renders data as a base36 string of exactly length characters,
// keeping the least significant digits.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)
	base := big.NewInt(36)
	mod := new(big.Int)
	var chars []byte
	for num.Sign() > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}
	var sb strings.Builder
	for i := len(chars) - 1; i >= 0; i-- {
		sb.WriteByte(chars[i])
	}
	str := sb.String()
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// Random draws tokens from uuid v4 entropy.
type Random struct {
	Length int
}

func (r Random) Token() string {
	n := r.Length
	if n <= 0 {
		n = 5
	}
	id := uuid.New()
	return EncodeBase36(id[:], n)
}

// Sequence is a deterministic source for tests and replays.
type Sequence struct {
	Prefix string
	mu     sync.Mutex
	n      int
}

func (s *Sequence) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	prefix := s.Prefix
	if prefix == "" {
		prefix = "t"
	}
	return fmt.Sprintf("%s%d", prefix, s.n)
}
