package room

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/mcdev12/turingroom/go/internal/models"
)

// codeAlphabet leaves out characters that are easy to misread (0/O, 1/I).
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
	codeAttempts = 16
)

// uniqueCode draws room codes until one is free. Must hold r.mu.
func (r *Registry) uniqueCode() (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := newCode()
		if err != nil {
			return "", err
		}
		if _, taken := r.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: no free room code after %d attempts", models.ErrInvalidState, codeAttempts)
}

func newCode() (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
