package ringsig

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	babyjubjub "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
)

// KeySize is the marshaled size of a public key, a key image, and every
// scalar component of a signature.
const KeySize = 32

var curve babyjubjub.CurveParams

func init() {
	curve = babyjubjub.GetEdwardsCurve()
}

// PublicKey is a marshaled BabyJubJub point.
type PublicKey []byte

// PrivateKey is a scalar in the BabyJubJub subgroup. It doubles as the
// "key share" handed out inside a voting credential.
type PrivateKey struct {
	scalar *big.Int
}

// GenerateKey produces a fresh keypair. rand may be nil to use crypto/rand.
func GenerateKey(random io.Reader) (*PrivateKey, PublicKey, error) {
	if random == nil {
		random = rand.Reader
	}
	s, err := rand.Int(random, &curve.Order)
	if err != nil {
		return nil, nil, fmt.Errorf("sample scalar: %w", err)
	}
	if s.Sign() == 0 {
		s.SetInt64(1)
	}
	priv := &PrivateKey{scalar: s}
	return priv, priv.Public(), nil
}

// NewPrivateKey reconstructs a private key from its big-endian byte form.
func NewPrivateKey(b []byte) (*PrivateKey, error) {
	if len(b) == 0 || len(b) > KeySize {
		return nil, fmt.Errorf("private key must be 1..%d bytes, got %d", KeySize, len(b))
	}
	s := new(big.Int).SetBytes(b)
	if s.Sign() == 0 || s.Cmp(&curve.Order) >= 0 {
		return nil, fmt.Errorf("private key scalar out of range")
	}
	return &PrivateKey{scalar: s}, nil
}

// Bytes returns the big-endian scalar, left-padded to KeySize.
func (k *PrivateKey) Bytes() []byte {
	out := make([]byte, KeySize)
	k.scalar.FillBytes(out)
	return out
}

// Public derives the marshaled public key G*x.
func (k *PrivateKey) Public() PublicKey {
	var p babyjubjub.PointAffine
	p.ScalarMultiplication(&curve.Base, k.scalar)
	return p.Marshal()
}

func unmarshalPoint(b []byte) (*babyjubjub.PointAffine, error) {
	var p babyjubjub.PointAffine
	if err := p.Unmarshal(b); err != nil {
		return nil, err
	}
	if !p.IsOnCurve() {
		return nil, fmt.Errorf("point not on curve")
	}
	return &p, nil
}

// hashToScalar hashes tag plus chunks into a scalar mod the subgroup order.
func hashToScalar(tag string, chunks ...[]byte) *big.Int {
	h := sha256.New()
	h.Write([]byte(tag))
	for _, c := range chunks {
		var l [2]byte
		l[0] = byte(len(c) >> 8)
		l[1] = byte(len(c))
		h.Write(l[:])
		h.Write(c)
	}
	s := new(big.Int).SetBytes(h.Sum(nil))
	return s.Mod(s, &curve.Order)
}

var cofactor = big.NewInt(8)

// hashToPoint maps a public key to a second generator used for key images.
// Try-and-increment decompression keeps the discrete log of the result
// unknown; a generator multiple here would let anyone derive a member's key
// image from the public ring. The cofactor is cleared so the point sits in
// the prime subgroup.
func hashToPoint(pub []byte) *babyjubjub.PointAffine {
	var identity babyjubjub.PointAffine
	identity.X.SetZero()
	identity.Y.SetOne()

	var ctr [4]byte
	for i := uint32(0); ; i++ {
		binary.BigEndian.PutUint32(ctr[:], i)
		h := sha256.New()
		h.Write([]byte("proofpals/hp/v1"))
		h.Write(pub)
		h.Write(ctr[:])

		var p babyjubjub.PointAffine
		if err := p.Unmarshal(h.Sum(nil)); err != nil || !p.IsOnCurve() {
			continue
		}
		p.ScalarMultiplication(&p, cofactor)
		if p.Equal(&identity) {
			continue
		}
		return &p
	}
}
