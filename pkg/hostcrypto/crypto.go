// Package hostcrypto provides the default, stdlib-and-x/crypto-backed
// implementations of the pkg/hostctx capability interfaces: CryptoContext,
// X509Context, and JoseContext. A host application may swap in its own
// (e.g. HSM-backed) implementation instead; the core only depends on the
// interfaces.
package hostcrypto

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"math/big"

	"golang.org/x/crypto/hkdf"

	"mdljarm/pkg/coreerr"
	"mdljarm/pkg/hostctx"
)

// COSE algorithm labels this implementation understands, mirroring RFC 9053.
const (
	AlgES256    int64 = -7
	AlgES384    int64 = -35
	AlgES512    int64 = -36
	AlgEdDSA    int64 = -8
	AlgHMAC256  int64 = 5
	AlgHMAC384  int64 = 6
	AlgHMAC512  int64 = 7
)

// Crypto is the default CryptoContext, backed entirely by the standard
// library and golang.org/x/crypto/hkdf.
type Crypto struct{}

var _ hostctx.CryptoContext = Crypto{}

// Digest hashes data per the named digest algorithm.
func (Crypto) Digest(_ context.Context, alg string, data []byte) ([]byte, error) {
	h, err := newDigest(alg)
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Sum(nil), nil
}

func newDigest(alg string) (hash.Hash, error) {
	switch alg {
	case "SHA-256":
		return sha256.New(), nil
	case "SHA-384":
		return sha512.New384(), nil
	case "SHA-512":
		return sha512.New(), nil
	default:
		return nil, coreerr.New(coreerr.KindUnsupportedAlg, "unsupported digest algorithm "+alg)
	}
}

// Sign produces a raw signature (ECDSA: fixed-width r||s, not ASN.1; EdDSA:
// native; HMAC: the MAC tag) for the given COSE algorithm label.
func (Crypto) Sign(_ context.Context, alg int64, key crypto.PrivateKey, data []byte) ([]byte, error) {
	switch alg {
	case AlgES256, AlgES384, AlgES512:
		priv, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, coreerr.New(coreerr.KindKeyTypeMismatch, "ECDSA sign requires *ecdsa.PrivateKey")
		}
		digest, byteLen, err := ecdsaDigest(alg, data)
		if err != nil {
			return nil, err
		}
		r, s, err := ecdsa.Sign(rand.Reader, priv, digest)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.KindCapabilityFailure, "ecdsa sign", err)
		}
		return rawFromRS(r, s, byteLen), nil

	case AlgEdDSA:
		priv, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, coreerr.New(coreerr.KindKeyTypeMismatch, "EdDSA sign requires ed25519.PrivateKey")
		}
		return ed25519.Sign(priv, data), nil

	case AlgHMAC256, AlgHMAC384, AlgHMAC512:
		macKey, ok := key.([]byte)
		if !ok {
			return nil, coreerr.New(coreerr.KindKeyTypeMismatch, "HMAC sign requires raw []byte key")
		}
		return computeHMAC(alg, macKey, data)

	default:
		return nil, coreerr.New(coreerr.KindUnsupportedAlg, "unsupported signing/MAC algorithm")
	}
}

// Verify checks a raw signature or MAC tag.
func (c Crypto) Verify(ctx context.Context, alg int64, key crypto.PublicKey, data, sig []byte) (bool, error) {
	switch alg {
	case AlgES256, AlgES384, AlgES512:
		pub, ok := key.(*ecdsa.PublicKey)
		if !ok {
			return false, coreerr.New(coreerr.KindKeyTypeMismatch, "ECDSA verify requires *ecdsa.PublicKey")
		}
		digest, byteLen, err := ecdsaDigest(alg, data)
		if err != nil {
			return false, err
		}
		if len(sig) != byteLen*2 {
			return false, coreerr.New(coreerr.KindSignatureInvalid, "unexpected signature length")
		}
		r := new(big.Int).SetBytes(sig[:byteLen])
		s := new(big.Int).SetBytes(sig[byteLen:])
		return ecdsa.Verify(pub, digest, r, s), nil

	case AlgEdDSA:
		pub, ok := key.(ed25519.PublicKey)
		if !ok {
			return false, coreerr.New(coreerr.KindKeyTypeMismatch, "EdDSA verify requires ed25519.PublicKey")
		}
		return ed25519.Verify(pub, data, sig), nil

	case AlgHMAC256, AlgHMAC384, AlgHMAC512:
		macKey, ok := key.([]byte)
		if !ok {
			return false, coreerr.New(coreerr.KindKeyTypeMismatch, "HMAC verify requires raw []byte key")
		}
		expected, err := computeHMAC(alg, macKey, data)
		if err != nil {
			return false, err
		}
		return hmac.Equal(expected, sig), nil

	default:
		return false, coreerr.New(coreerr.KindUnsupportedAlg, "unsupported signing/MAC algorithm")
	}
}

func ecdsaDigest(alg int64, data []byte) ([]byte, int, error) {
	var h hash.Hash
	var byteLen int
	switch alg {
	case AlgES256:
		h, byteLen = sha256.New(), 32
	case AlgES384:
		h, byteLen = sha512.New384(), 48
	case AlgES512:
		h, byteLen = sha512.New(), 66
	default:
		return nil, 0, coreerr.New(coreerr.KindUnsupportedAlg, "unsupported ECDSA algorithm")
	}
	h.Write(data)
	return h.Sum(nil), byteLen, nil
}

func rawFromRS(r, s *big.Int, byteLen int) []byte {
	out := make([]byte, byteLen*2)
	rBytes, sBytes := r.Bytes(), s.Bytes()
	copy(out[byteLen-len(rBytes):byteLen], rBytes)
	copy(out[byteLen*2-len(sBytes):], sBytes)
	return out
}

func computeHMAC(alg int64, key, data []byte) ([]byte, error) {
	var h func() hash.Hash
	var truncate int
	switch alg {
	case AlgHMAC256:
		h, truncate = sha256.New, 32
	case AlgHMAC384:
		h, truncate = sha512.New384, 48
	case AlgHMAC512:
		h, truncate = sha512.New, 64
	default:
		return nil, coreerr.New(coreerr.KindUnsupportedAlg, "unsupported MAC algorithm")
	}
	mac := hmac.New(h, key)
	mac.Write(data)
	out := mac.Sum(nil)
	if len(out) > truncate {
		out = out[:truncate]
	}
	return out, nil
}

// CalculateEphemeralMacKey derives the device-auth MAC key: ECDH(device
// private, reader ephemeral public) then HKDF-SHA-256 with salt =
// SHA-256(sessionTranscriptBytes) and info = "EMacKey", 32-byte output.
func (Crypto) CalculateEphemeralMacKey(_ context.Context, params hostctx.EphemeralMacKeyParams) ([]byte, error) {
	devicePriv, ok := params.DevicePrivateKey.(*ecdsa.PrivateKey)
	if !ok {
		return nil, coreerr.New(coreerr.KindKeyTypeMismatch, "device private key must be *ecdsa.PrivateKey")
	}
	readerPub, ok := params.ReaderEphemeralPublic.(*ecdsa.PublicKey)
	if !ok {
		return nil, coreerr.New(coreerr.KindKeyTypeMismatch, "reader ephemeral public key must be *ecdsa.PublicKey")
	}

	devEcdh, err := devicePriv.ECDH()
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindCapabilityFailure, "device key not ECDH-capable", err)
	}
	readerEcdh, err := readerPub.ECDH()
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindCapabilityFailure, "reader key not ECDH-capable", err)
	}

	shared, err := devEcdh.ECDH(readerEcdh)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindCapabilityFailure, "ECDH key agreement failed", err)
	}

	salt := sha256.Sum256(params.SessionTranscriptBytes)

	kdf := hkdf.New(sha256.New, shared, salt[:], []byte("EMacKey"))
	out := make([]byte, 32)
	if _, err := kdf.Read(out); err != nil {
		return nil, coreerr.Wrap(coreerr.KindCapabilityFailure, "hkdf expand failed", err)
	}
	return out, nil
}

// GetRandomValues returns n cryptographically secure random bytes, padded up
// to the mdoc minimum of 16 bytes when a smaller length is requested for a
// random salt.
func (Crypto) GetRandomValues(_ context.Context, n int) ([]byte, error) {
	if n < 16 {
		n = 16
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, coreerr.Wrap(coreerr.KindCapabilityFailure, "read random bytes", err)
	}
	return b, nil
}
