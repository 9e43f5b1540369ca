// Package ringsig implements linkable ring signatures over BabyJubJub.
//
// A signature proves the payload was signed by some member of a ring of
// public keys without revealing which one. Each signer additionally emits a
// key image I = x*Hp(P): deterministic per key, payload-independent, and
// unlinkable to the member index. Two signatures from the same key share
// carry the same key image, which is what makes double-vote detection
// possible without identifying the voter.
//
// Signing is fully deterministic: nonces are derived from the key share and
// payload, so re-signing the same vote yields byte-identical output.
package ringsig

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	babyjubjub "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
)

// MinRingSize is the smallest ring a signature can range over.
const MinRingSize = 2

// ErrInvalidProof is returned by Verify for any malformed or non-verifying
// signature. Verification fails closed: there is no partial success.
var ErrInvalidProof = errors.New("ringsig: invalid proof")

// Signature is an LSAG-style ring signature.
type Signature struct {
	KeyImage  []byte
	C0        *big.Int
	Responses []*big.Int
}

// Bytes serializes the scalar part of the signature: c0 followed by one
// response per ring member, each KeySize bytes big-endian. The key image
// travels separately on the wire.
func (s *Signature) Bytes() []byte {
	out := make([]byte, 0, (1+len(s.Responses))*KeySize)
	var buf [KeySize]byte
	s.C0.FillBytes(buf[:])
	out = append(out, buf[:]...)
	for _, r := range s.Responses {
		r.FillBytes(buf[:])
		out = append(out, buf[:]...)
	}
	return out
}

// ParseSignature reconstructs a Signature from its wire form plus the key
// image. The ring size determines the expected length.
func ParseSignature(b, keyImage []byte, ringSize int) (*Signature, error) {
	if ringSize < MinRingSize {
		return nil, fmt.Errorf("%w: ring size %d", ErrInvalidProof, ringSize)
	}
	if len(b) != (1+ringSize)*KeySize {
		return nil, fmt.Errorf("%w: signature length %d", ErrInvalidProof, len(b))
	}
	if len(keyImage) != KeySize {
		return nil, fmt.Errorf("%w: key image length %d", ErrInvalidProof, len(keyImage))
	}
	sig := &Signature{
		KeyImage:  bytes.Clone(keyImage),
		C0:        new(big.Int).SetBytes(b[:KeySize]),
		Responses: make([]*big.Int, ringSize),
	}
	for i := range ringSize {
		off := (1 + i) * KeySize
		sig.Responses[i] = new(big.Int).SetBytes(b[off : off+KeySize])
	}
	return sig, nil
}

// ringDigest commits to the ordered member set so a signature cannot be
// replayed against a different ring.
func ringDigest(ring []PublicKey) []byte {
	h := sha256.New()
	for _, pk := range ring {
		h.Write(pk)
	}
	return h.Sum(nil)
}

func challenge(ringDig, payload, keyImage []byte, l, r *babyjubjub.PointAffine) *big.Int {
	return hashToScalar("proofpals/clsag/c/v1", ringDig, payload, keyImage, l.Marshal(), r.Marshal())
}

// nonce derives the i-th signing scalar from the key share, the ring, and
// the payload, so the signer never needs entropy at vote time and scalars
// never repeat across rings.
func nonce(priv *PrivateKey, ringDig, payload []byte, i int) *big.Int {
	idx := []byte{byte(i >> 8), byte(i)}
	s := hashToScalar("proofpals/clsag/n/v1", priv.Bytes(), ringDig, payload, idx)
	if s.Sign() == 0 {
		s.SetInt64(1)
	}
	return s
}

// KeyImage computes I = x*Hp(P) for the key share. Issuers use this to
// pre-register the image a credential will spend.
func (k *PrivateKey) KeyImage() []byte {
	hp := hashToPoint(k.Public())
	var img babyjubjub.PointAffine
	img.ScalarMultiplication(hp, k.scalar)
	return img.Marshal()
}

// Sign produces a ring signature over payload. The signer's public key must
// be a member of ring; its position is located automatically.
func Sign(priv *PrivateKey, ring []PublicKey, payload []byte) (*Signature, error) {
	n := len(ring)
	if n < MinRingSize {
		return nil, fmt.Errorf("ring must have at least %d members, got %d", MinRingSize, n)
	}
	own := priv.Public()
	signer := -1
	for i, pk := range ring {
		if bytes.Equal(pk, own) {
			signer = i
			break
		}
	}
	if signer < 0 {
		return nil, errors.New("signing key is not a ring member")
	}

	members := make([]*babyjubjub.PointAffine, n)
	for i, pk := range ring {
		p, err := unmarshalPoint(pk)
		if err != nil {
			return nil, fmt.Errorf("ring member %d: %w", i, err)
		}
		members[i] = p
	}

	hpOwn := hashToPoint(own)
	var image babyjubjub.PointAffine
	image.ScalarMultiplication(hpOwn, priv.scalar)
	keyImage := image.Marshal()

	dig := ringDigest(ring)
	cs := make([]*big.Int, n)
	rs := make([]*big.Int, n)

	// Seed the challenge chain at the signer's slot.
	alpha := nonce(priv, dig, payload, 0)
	var l, r babyjubjub.PointAffine
	l.ScalarMultiplication(&curve.Base, alpha)
	r.ScalarMultiplication(hpOwn, alpha)
	cs[(signer+1)%n] = challenge(dig, payload, keyImage, &l, &r)

	// Walk the ring with derived responses for every other member.
	for step := 1; step < n; step++ {
		i := (signer + step) % n
		rs[i] = nonce(priv, dig, payload, step)
		li := chainPoint(&curve.Base, rs[i], members[i], cs[i])
		ri := chainPoint(hashToPoint(ring[i]), rs[i], &image, cs[i])
		cs[(i+1)%n] = challenge(dig, payload, keyImage, li, ri)
	}

	// Close the ring: r_s = alpha - c_s*x mod order.
	rs[signer] = new(big.Int).Mul(cs[signer], priv.scalar)
	rs[signer].Sub(alpha, rs[signer])
	rs[signer].Mod(rs[signer], &curve.Order)

	return &Signature{KeyImage: keyImage, C0: cs[0], Responses: rs}, nil
}

// chainPoint computes base*r + pub*c.
func chainPoint(base *babyjubjub.PointAffine, r *big.Int, pub *babyjubjub.PointAffine, c *big.Int) *babyjubjub.PointAffine {
	var a, b babyjubjub.PointAffine
	a.ScalarMultiplication(base, r)
	b.ScalarMultiplication(pub, c)
	a.Add(&a, &b)
	return &a
}

// Verify checks sig against the ring and payload. It returns nil only when
// the challenge chain closes; every other outcome is ErrInvalidProof.
// Verification needs no knowledge of which member signed.
func Verify(ring []PublicKey, payload []byte, sig *Signature) error {
	n := len(ring)
	if sig == nil || n < MinRingSize || len(sig.Responses) != n || sig.C0 == nil {
		return ErrInvalidProof
	}
	image, err := unmarshalPoint(sig.KeyImage)
	if err != nil {
		return ErrInvalidProof
	}
	var identity babyjubjub.PointAffine
	identity.X.SetZero()
	identity.Y.SetOne()
	if image.Equal(&identity) {
		return ErrInvalidProof
	}
	// The image must lie in the prime subgroup. An on-curve image shifted
	// by a cofactor torsion point can still close the challenge chain, yet
	// its bytes differ from the honest image, so one credential could
	// reserve several ledger slots.
	var subgroupCheck babyjubjub.PointAffine
	subgroupCheck.ScalarMultiplication(image, &curve.Order)
	if !subgroupCheck.Equal(&identity) {
		return ErrInvalidProof
	}

	members := make([]*babyjubjub.PointAffine, n)
	for i, pk := range ring {
		p, err := unmarshalPoint(pk)
		if err != nil {
			return ErrInvalidProof
		}
		members[i] = p
	}

	dig := ringDigest(ring)
	c := new(big.Int).Set(sig.C0)
	for i := range n {
		ri := sig.Responses[i]
		if ri == nil || ri.Sign() < 0 || ri.Cmp(&curve.Order) >= 0 {
			return ErrInvalidProof
		}
		li := chainPoint(&curve.Base, ri, members[i], c)
		rpt := chainPoint(hashToPoint(ring[i]), ri, image, c)
		c = challenge(dig, payload, sig.KeyImage, li, rpt)
	}
	if c.Cmp(sig.C0) != 0 {
		return ErrInvalidProof
	}
	return nil
}
