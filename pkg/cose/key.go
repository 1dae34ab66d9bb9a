package cose

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/x509"
	"math/big"

	"mdljarm/pkg/cbordet"
	"mdljarm/pkg/coreerr"
)

// COSE_Key type/curve labels per RFC 9053.
const (
	KeyTypeEC2 int64 = 2
	KeyTypeOKP int64 = 1

	CurveP256    int64 = 1
	CurveP384    int64 = 2
	CurveP521    int64 = 3
	CurveX25519  int64 = 4
	CurveX448    int64 = 5
	CurveEd25519 int64 = 6
	CurveEd448   int64 = 7
)

// Key is a COSE_Key structure per RFC 9053 §7. It only carries public key
// material: private keys are never serialized in this shape.
type Key struct {
	Kty int64  `cbor:"1,keyasint"`
	Alg int64  `cbor:"3,keyasint,omitempty"`
	Crv int64  `cbor:"-1,keyasint"`
	X   []byte `cbor:"-2,keyasint"`
	Y   []byte `cbor:"-3,keyasint,omitempty"`
}

// KeyFromECDSA builds a COSE_Key EC2 entry from an ECDSA public key.
func KeyFromECDSA(pub *ecdsa.PublicKey) (*Key, error) {
	var crv int64
	switch pub.Curve {
	case elliptic.P256():
		crv = CurveP256
	case elliptic.P384():
		crv = CurveP384
	case elliptic.P521():
		crv = CurveP521
	default:
		return nil, coreerr.New(coreerr.KindUnsupportedCurveOID, "unsupported EC curve")
	}

	byteLen := (pub.Curve.Params().BitSize + 7) / 8
	x := leftPad(pub.X.Bytes(), byteLen)
	y := leftPad(pub.Y.Bytes(), byteLen)

	return &Key{Kty: KeyTypeEC2, Crv: crv, X: x, Y: y}, nil
}

// KeyFromEd25519 builds a COSE_Key OKP entry from an Ed25519 public key.
func KeyFromEd25519(pub ed25519.PublicKey) *Key {
	return &Key{Kty: KeyTypeOKP, Crv: CurveEd25519, X: []byte(pub)}
}

func leftPad(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}

// ToPublicKey converts a COSE_Key into a Go crypto public key.
func (k *Key) ToPublicKey() (any, error) {
	switch k.Kty {
	case KeyTypeEC2:
		return k.toECDSA()
	case KeyTypeOKP:
		return k.toEd25519()
	default:
		return nil, coreerr.New(coreerr.KindUnsupportedAlg, "unsupported COSE_Key key type")
	}
}

func (k *Key) toECDSA() (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch k.Crv {
	case CurveP256:
		curve = elliptic.P256()
	case CurveP384:
		curve = elliptic.P384()
	case CurveP521:
		curve = elliptic.P521()
	default:
		return nil, coreerr.New(coreerr.KindUnsupportedCurveOID, "unsupported EC2 curve")
	}
	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(k.X),
		Y:     new(big.Int).SetBytes(k.Y),
	}, nil
}

func (k *Key) toEd25519() (ed25519.PublicKey, error) {
	if k.Crv != CurveEd25519 {
		return nil, coreerr.New(coreerr.KindUnsupportedCurveOID, "unsupported OKP curve")
	}
	if len(k.X) != ed25519.PublicKeySize {
		return nil, coreerr.New(coreerr.KindInvalidASN1, "invalid Ed25519 public key size")
	}
	return ed25519.PublicKey(k.X), nil
}

// ToRaw returns the raw key bytes used as ECDH input: the uncompressed EC
// point 0x04||X||Y for EC2 keys, or the raw 32/57-byte value for OKP keys.
func (k *Key) ToRaw() ([]byte, error) {
	switch k.Kty {
	case KeyTypeEC2:
		out := make([]byte, 0, 1+len(k.X)+len(k.Y))
		out = append(out, 0x04)
		out = append(out, k.X...)
		out = append(out, k.Y...)
		return out, nil
	case KeyTypeOKP:
		return k.X, nil
	default:
		return nil, coreerr.New(coreerr.KindUnsupportedAlg, "unsupported COSE_Key key type")
	}
}

// Bytes deterministically encodes the COSE_Key.
func (k *Key) Bytes() ([]byte, error) {
	return cbordet.Marshal(k)
}

// X5ChainFromSign1 extracts and parses the x5chain protected header, if
// present, into a certificate chain.
func X5ChainFromSign1(s *Sign1) ([]*x509.Certificate, error) {
	var headers map[int64]any
	if err := cbordet.Unmarshal(s.Protected, &headers); err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidMajorType, "decode protected headers", err)
	}
	raw, ok := headers[HeaderX5Chain]
	if !ok {
		return nil, coreerr.New(coreerr.KindMissingField, "no x5chain in protected headers")
	}

	var certBytes [][]byte
	switch v := raw.(type) {
	case []byte:
		certBytes = [][]byte{v}
	case []any:
		for _, c := range v {
			b, ok := c.([]byte)
			if !ok {
				return nil, coreerr.New(coreerr.KindInvalidASN1, "non-bytes entry in x5chain")
			}
			certBytes = append(certBytes, b)
		}
	default:
		return nil, coreerr.New(coreerr.KindInvalidASN1, "unexpected x5chain shape")
	}

	certs := make([]*x509.Certificate, 0, len(certBytes))
	for _, b := range certBytes {
		cert, err := x509.ParseCertificate(b)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.KindInvalidASN1, "parse x5chain certificate", err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// AlgorithmForPublicKey returns the COSE algorithm label matching a public
// key's type/curve, used to pick the issuerAuth/deviceAuth alg when none is
// pinned explicitly.
func AlgorithmForPublicKey(pub any) (int64, error) {
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			return AlgorithmES256, nil
		case elliptic.P384():
			return AlgorithmES384, nil
		case elliptic.P521():
			return AlgorithmES512, nil
		default:
			return 0, coreerr.New(coreerr.KindUnsupportedCurveOID, "unsupported ECDSA curve")
		}
	case ed25519.PublicKey:
		return AlgorithmEdDSA, nil
	default:
		return 0, coreerr.New(coreerr.KindKeyTypeMismatch, "unsupported public key type")
	}
}
