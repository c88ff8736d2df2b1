package event

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"
)

// ErrInvalidFingerprint is returned when a persisted key cannot be decoded.
var ErrInvalidFingerprint = errors.New("invalid fingerprint")

// Event is a single diagnostic emitted by the host. It is never persisted.
type Event struct {
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Source    string    `json:"file"`
	Line      int       `json:"line"`
	Timestamp time.Time `json:"time"`
}

// Fingerprint returns the dedup identity of the event.
func (e Event) Fingerprint() Fingerprint {
	return NewFingerprint(e.Message, e.Source, e.Line)
}

// Fingerprint is the stable identity of a diagnostic, derived from its
// message, source location and line.
type Fingerprint [sha256.Size]byte

// NewFingerprint hashes the three identity fields. Each string is prefixed
// with its length so field boundaries cannot collide.
func NewFingerprint(message, source string, line int) Fingerprint {
	h := sha256.New()

	var n [8]byte

	binary.BigEndian.PutUint64(n[:], uint64(len(message)))
	h.Write(n[:])
	h.Write([]byte(message))

	binary.BigEndian.PutUint64(n[:], uint64(len(source)))
	h.Write(n[:])
	h.Write([]byte(source))

	binary.BigEndian.PutUint64(n[:], uint64(int64(line)))
	h.Write(n[:])

	var fp Fingerprint

	copy(fp[:], h.Sum(nil))

	return fp
}

// String returns the lowercase hex form used as the snapshot key.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ParseFingerprint decodes the hex form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint

	b, err := hex.DecodeString(s)
	if err != nil {
		return fp, errors.Join(ErrInvalidFingerprint, err)
	}

	if len(b) != len(fp) {
		return fp, ErrInvalidFingerprint
	}

	copy(fp[:], b)

	return fp, nil
}
