package ringsig

import (
	"math/big"
	"testing"

	babyjubjub "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRing(t *testing.T, size int) ([]*PrivateKey, []PublicKey) {
	t.Helper()
	privs := make([]*PrivateKey, size)
	ring := make([]PublicKey, size)
	for i := range size {
		priv, pub, err := GenerateKey(nil)
		require.NoError(t, err)
		privs[i] = priv
		ring[i] = pub
	}
	return privs, ring
}

func TestSignVerifyRoundTrip(t *testing.T) {
	privs, ring := newRing(t, 5)
	payload := []byte("submission-1|approve|ring-1")

	for i, priv := range privs {
		sig, err := Sign(priv, ring, payload)
		require.NoError(t, err, "member %d", i)
		require.NoError(t, Verify(ring, payload, sig), "member %d", i)
	}
}

func TestVerifyFailsClosed(t *testing.T) {
	privs, ring := newRing(t, 3)
	payload := []byte("payload")
	sig, err := Sign(privs[0], ring, payload)
	require.NoError(t, err)

	t.Run("wrong payload", func(t *testing.T) {
		assert.ErrorIs(t, Verify(ring, []byte("other payload"), sig), ErrInvalidProof)
	})

	t.Run("wrong ring", func(t *testing.T) {
		_, other := newRing(t, 3)
		assert.ErrorIs(t, Verify(other, payload, sig), ErrInvalidProof)
	})

	t.Run("reordered ring", func(t *testing.T) {
		swapped := []PublicKey{ring[1], ring[0], ring[2]}
		assert.ErrorIs(t, Verify(swapped, payload, sig), ErrInvalidProof)
	})

	t.Run("tampered response", func(t *testing.T) {
		parsed, err := ParseSignature(sig.Bytes(), sig.KeyImage, len(ring))
		require.NoError(t, err)
		parsed.Responses[1].Add(parsed.Responses[1], parsed.Responses[0])
		parsed.Responses[1].Mod(parsed.Responses[1], &curve.Order)
		assert.ErrorIs(t, Verify(ring, payload, parsed), ErrInvalidProof)
	})

	t.Run("garbage key image", func(t *testing.T) {
		bad := *sig
		bad.KeyImage = make([]byte, KeySize)
		assert.ErrorIs(t, Verify(ring, payload, &bad), ErrInvalidProof)
	})

	t.Run("nil signature", func(t *testing.T) {
		assert.ErrorIs(t, Verify(ring, payload, nil), ErrInvalidProof)
	})
}

// forgeShiftedImage runs the signing walk with the signer's key image
// shifted by the order-2 point (0, -1), grinding the seed until the
// closing challenge is even so the torsion term cancels out of the chain.
// The result carries key image bytes that differ from the honest ones.
func forgeShiftedImage(t *testing.T, priv *PrivateKey, ring []PublicKey, payload []byte) *Signature {
	t.Helper()

	own := priv.Public()
	signer := -1
	for i, pk := range ring {
		if string(pk) == string(own) {
			signer = i
		}
	}
	require.GreaterOrEqual(t, signer, 0)

	members := make([]*babyjubjub.PointAffine, len(ring))
	for i, pk := range ring {
		p, err := unmarshalPoint(pk)
		require.NoError(t, err)
		members[i] = p
	}

	hpOwn := hashToPoint(own)
	var honest babyjubjub.PointAffine
	honest.ScalarMultiplication(hpOwn, priv.scalar)

	var torsion babyjubjub.PointAffine
	torsion.X.SetZero()
	torsion.Y.SetOne()
	torsion.Y.Neg(&torsion.Y)

	var shifted babyjubjub.PointAffine
	shifted.Add(&honest, &torsion)
	imgBytes := shifted.Marshal()

	n := len(ring)
	dig := ringDigest(ring)
	for seed := range 64 {
		seedByte := []byte{byte(seed)}
		alpha := hashToScalar("forge/alpha", seedByte)
		cs := make([]*big.Int, n)
		rs := make([]*big.Int, n)

		var l, r babyjubjub.PointAffine
		l.ScalarMultiplication(&curve.Base, alpha)
		r.ScalarMultiplication(hpOwn, alpha)
		cs[(signer+1)%n] = challenge(dig, payload, imgBytes, &l, &r)

		for step := 1; step < n; step++ {
			i := (signer + step) % n
			rs[i] = hashToScalar("forge/r", seedByte, []byte{byte(step)})
			li := chainPoint(&curve.Base, rs[i], members[i], cs[i])
			ri := chainPoint(hashToPoint(ring[i]), rs[i], &shifted, cs[i])
			cs[(i+1)%n] = challenge(dig, payload, imgBytes, li, ri)
		}
		if cs[signer].Bit(0) != 0 {
			continue
		}
		rs[signer] = new(big.Int).Mul(cs[signer], priv.scalar)
		rs[signer].Sub(alpha, rs[signer])
		rs[signer].Mod(rs[signer], &curve.Order)
		return &Signature{KeyImage: imgBytes, C0: cs[0], Responses: rs}
	}
	t.Fatal("no even closing challenge in 64 seeds")
	return nil
}

// A member who shifts their key image into the cofactor torsion can make
// the challenge chain close with image bytes the ledger has never seen,
// spending a second slot for the same credential. The prime-subgroup check
// must reject such images outright.
func TestVerifyRejectsTorsionShiftedKeyImage(t *testing.T) {
	privs, ring := newRing(t, 4)
	payload := []byte("submission-9|approve|ring-3")

	forged := forgeShiftedImage(t, privs[1], ring, payload)
	require.NotEqual(t, privs[1].KeyImage(), forged.KeyImage)

	assert.ErrorIs(t, Verify(ring, payload, forged), ErrInvalidProof)
}

func TestKeyImageDeterminism(t *testing.T) {
	privs, ring := newRing(t, 4)
	priv := privs[2]

	sig1, err := Sign(priv, ring, []byte("payload-a"))
	require.NoError(t, err)
	sig2, err := Sign(priv, ring, []byte("payload-a"))
	require.NoError(t, err)
	sig3, err := Sign(priv, ring, []byte("payload-b"))
	require.NoError(t, err)

	// Same (key, payload) signs identically; the key image is
	// payload-independent per key.
	assert.Equal(t, sig1.Bytes(), sig2.Bytes())
	assert.Equal(t, sig1.KeyImage, sig2.KeyImage)
	assert.Equal(t, sig1.KeyImage, sig3.KeyImage)
	assert.Equal(t, priv.KeyImage(), sig1.KeyImage)
}

func TestKeyImagesDistinctPerMember(t *testing.T) {
	privs, ring := newRing(t, 5)
	payload := []byte("payload")
	seen := map[string]int{}
	for i, priv := range privs {
		sig, err := Sign(priv, ring, payload)
		require.NoError(t, err)
		if prev, dup := seen[string(sig.KeyImage)]; dup {
			t.Fatalf("members %d and %d share a key image", prev, i)
		}
		seen[string(sig.KeyImage)] = i
	}
}

func TestSignRejectsNonMember(t *testing.T) {
	_, ring := newRing(t, 3)
	outsider, _, err := GenerateKey(nil)
	require.NoError(t, err)

	_, err = Sign(outsider, ring, []byte("payload"))
	require.Error(t, err)
}

func TestSignatureWireRoundTrip(t *testing.T) {
	privs, ring := newRing(t, 4)
	sig, err := Sign(privs[1], ring, []byte("payload"))
	require.NoError(t, err)

	parsed, err := ParseSignature(sig.Bytes(), sig.KeyImage, len(ring))
	require.NoError(t, err)
	require.NoError(t, Verify(ring, []byte("payload"), parsed))

	_, err = ParseSignature(sig.Bytes()[:10], sig.KeyImage, len(ring))
	assert.ErrorIs(t, err, ErrInvalidProof)
	_, err = ParseSignature(sig.Bytes(), sig.KeyImage[:4], len(ring))
	assert.ErrorIs(t, err, ErrInvalidProof)
}

func TestPrivateKeyRoundTrip(t *testing.T) {
	priv, pub, err := GenerateKey(nil)
	require.NoError(t, err)

	restored, err := NewPrivateKey(priv.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []byte(pub), []byte(restored.Public()))

	_, err = NewPrivateKey(nil)
	assert.Error(t, err)
}
