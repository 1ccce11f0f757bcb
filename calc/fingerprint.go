package calc

import (
	"encoding/hex"
	"fmt"
)

// FingerprintSize is the width of a fingerprint in bytes.
const FingerprintSize = 32

// Fingerprint is the identity of a canonicalized request. It is the cache key.
type Fingerprint [FingerprintSize]byte

// String returns the lower-case hex form.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short returns the first 12 hex characters, for logs.
func (f Fingerprint) Short() string {
	return f.String()[:12]
}

// IsZero reports whether f is the zero fingerprint.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := ParseFingerprint(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFingerprint parses the hex form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	if len(s) != FingerprintSize*2 {
		return f, fmt.Errorf("%w: want %d hex characters, got %d", ErrInvalidFingerprint, FingerprintSize*2, len(s))
	}
	if _, err := hex.Decode(f[:], []byte(s)); err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %v", ErrInvalidFingerprint, err)
	}
	return f, nil
}
