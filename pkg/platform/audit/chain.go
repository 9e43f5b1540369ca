package audit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one link of the audit chain.
type Entry struct {
	Seq           uint64    `json:"seq"`
	EventID       string    `json:"event_id"`
	PrevDigest    string    `json:"prev_digest"`
	PayloadDigest string    `json:"payload_digest"`
	Digest        string    `json:"digest"`
	Payload       []byte    `json:"payload"`
	Timestamp     time.Time `json:"timestamp"`
}

// GenesisDigest anchors the chain before the first entry.
var GenesisDigest = hex.EncodeToString(make([]byte, sha256.Size))

// EncodePayload renders the event as canonical JSON for hashing and
// storage. Timestamps are normalized to UTC so digests are stable across
// store round trips.
func EncodePayload(event Event) ([]byte, error) {
	event.Timestamp = event.Timestamp.UTC()
	b, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode audit payload: %w", err)
	}
	return b, nil
}

// PayloadDigest hashes the canonical payload bytes.
func PayloadDigest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// ChainDigest computes an entry's digest from its predecessor's digest, its
// payload digest, and its sequence number.
func ChainDigest(prevDigest, payloadDigest string, seq uint64) string {
	h := sha256.New()
	h.Write([]byte(prevDigest))
	h.Write([]byte(payloadDigest))
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	h.Write(seqBytes[:])
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyEntries recomputes the chain over a contiguous slice of entries.
// prevDigest is the digest preceding the first entry (GenesisDigest when
// verifying from the start).
func VerifyEntries(prevDigest string, entries []Entry) bool {
	for _, e := range entries {
		if PayloadDigest(e.Payload) != e.PayloadDigest {
			return false
		}
		if ChainDigest(prevDigest, e.PayloadDigest, e.Seq) != e.Digest {
			return false
		}
		prevDigest = e.Digest
	}
	return true
}
