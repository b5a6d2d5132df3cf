package voucher

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxCollisionRetries bounds regeneration of a single code.
const maxCollisionRetries = 32

var errCodeSpaceExhausted = errors.New("voucher: could not generate a unique code")

// newCode draws PS-XXXX-XXXX-XX from src. The alphabet has 32 symbols, so
// reducing a random byte modulo its length keeps every symbol equally likely.
func newCode(src io.Reader) (string, error) {
	symbols := make([]byte, 10)
	if _, err := io.ReadFull(src, symbols); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range symbols {
		symbols[i] = Alphabet[int(b)%len(Alphabet)]
	}

	var sb strings.Builder
	sb.WriteString(codePrefix)
	sb.WriteByte('-')
	sb.Write(symbols[0:4])
	sb.WriteByte('-')
	sb.Write(symbols[4:8])
	sb.WriteByte('-')
	sb.Write(symbols[8:10])
	return sb.String(), nil
}

// uniqueCode draws codes until one is absent from taken, then records it.
func uniqueCode(src io.Reader, taken map[string]struct{}) (string, error) {
	for i := 0; i < maxCollisionRetries; i++ {
		code, err := newCode(src)
		if err != nil {
			return "", err
		}
		if _, dup := taken[code]; dup {
			continue
		}
		taken[code] = struct{}{}
		return code, nil
	}
	return "", errCodeSpaceExhausted
}

// Normalize trims and upper-cases user input before lookup.
func Normalize(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}

var defaultRandom io.Reader = rand.Reader
