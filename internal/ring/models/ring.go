package models

import (
	"encoding/hex"
	"time"

	"proofpals/internal/crypto/ringsig"
	id "proofpals/pkg/domain"
	dErrors "proofpals/pkg/domain-errors"
)

// Ring is an ordered, immutable set of reviewer public keys. A vote's
// signature is indistinguishable among the members. Membership never
// changes after creation; reviewer group changes mean a new ring.
type Ring struct {
	ID        id.RingID
	Members   []ringsig.PublicKey
	CreatedAt time.Time
}

// NewRing validates membership and builds a ring. Order of members is
// significant and preserved: signatures commit to it.
func NewRing(ringID id.RingID, members []ringsig.PublicKey, now time.Time) (*Ring, error) {
	if len(members) < ringsig.MinRingSize {
		return nil, dErrors.New(dErrors.CodeInvalidRing, "ring requires at least 2 members")
	}
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if len(m) != ringsig.KeySize {
			return nil, dErrors.New(dErrors.CodeInvalidRing, "member key has wrong size")
		}
		k := string(m)
		if _, dup := seen[k]; dup {
			return nil, dErrors.New(dErrors.CodeInvalidRing, "duplicate member key")
		}
		seen[k] = struct{}{}
	}
	copied := make([]ringsig.PublicKey, len(members))
	for i, m := range members {
		copied[i] = append(ringsig.PublicKey(nil), m...)
	}
	return &Ring{ID: ringID, Members: copied, CreatedAt: now}, nil
}

// MemberIndex returns the position of pub in the ring, or -1.
func (r *Ring) MemberIndex(pub ringsig.PublicKey) int {
	for i, m := range r.Members {
		if string(m) == string(pub) {
			return i
		}
	}
	return -1
}

// MemberHex renders member keys as hex strings for API responses.
func (r *Ring) MemberHex() []string {
	out := make([]string, len(r.Members))
	for i, m := range r.Members {
		out[i] = hex.EncodeToString(m)
	}
	return out
}
