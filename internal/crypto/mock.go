package crypto

import (
	"context"
	"strings"
)

const plainPrefix = "plain:"

// PlainSealer implements Sealer without encryption, for DEV_MODE and tests.
// Values are tagged so they are recognisable in a local table.
type PlainSealer struct{}

func NewPlainSealer() *PlainSealer {
	return &PlainSealer{}
}

func (PlainSealer) Seal(_ context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return plainPrefix + plaintext, nil
}

func (PlainSealer) Open(_ context.Context, sealed string) (string, error) {
	return strings.TrimPrefix(sealed, plainPrefix), nil
}
