package josekey

import (
	"crypto"
	"encoding/base64"
	"encoding/json"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"mdljarm/pkg/coreerr"
	"mdljarm/pkg/cose"
)

// rawJWK is the subset of JWK fields this package round-trips through.
// jwx's own jwk.Key already knows how to (un)marshal these to/from base64url
// JSON; this struct is the bridge between that representation and
// cose.Key's integer-labeled fields.
type rawJWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
	D   string `json:"d,omitempty"`
}

// PEMToJWK converts a PEM-encoded key (or certificate) to a JWK, via
// lestrrat-go/jwx/v3, the same library the teacher's pki.PEM2jwk uses.
func PEMToJWK(pemKey []byte) (jwk.Key, error) {
	key, err := jwk.ParseKey(pemKey, jwk.WithPEM(true))
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidPEM, "parse PEM as JWK", err)
	}
	return key, nil
}

// PublicKeyToJWK builds a jwk.Key from a Go public/private key.
func PublicKeyToJWK(key crypto.PublicKey) (jwk.Key, error) {
	jwkKey, err := jwk.Import(key)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindKeyTypeMismatch, "import key into jwk.Key", err)
	}
	return jwkKey, nil
}

// COSEKeyToJWK converts a COSE_Key to a JWK, a total mapping for the
// supported EC2/OKP curves (spec.md §4.3/§8 property 2).
func COSEKeyToJWK(k *cose.Key) (*rawJWKPublic, error) {
	switch k.Kty {
	case cose.KeyTypeEC2:
		crv, err := coseKeyCurveName(k.Crv)
		if err != nil {
			return nil, err
		}
		return &rawJWKPublic{
			Kty: "EC",
			Crv: crv,
			X:   base64.RawURLEncoding.EncodeToString(k.X),
			Y:   base64.RawURLEncoding.EncodeToString(k.Y),
		}, nil
	case cose.KeyTypeOKP:
		crv, err := coseKeyCurveName(k.Crv)
		if err != nil {
			return nil, err
		}
		return &rawJWKPublic{
			Kty: "OKP",
			Crv: crv,
			X:   base64.RawURLEncoding.EncodeToString(k.X),
		}, nil
	default:
		return nil, coreerr.New(coreerr.KindUnsupportedAlg, "unsupported COSE_Key key type")
	}
}

// rawJWKPublic is the ordered view of a public JWK's EC/OKP fields returned
// by COSEKeyToJWK.
type rawJWKPublic struct {
	Kty string
	Crv string
	X   string
	Y   string // empty for OKP
}

// MarshalJSON renders standard JWK JSON field names.
func (r *rawJWKPublic) MarshalJSON() ([]byte, error) {
	return json.Marshal(rawJWK{Kty: r.Kty, Crv: r.Crv, X: r.X, Y: r.Y})
}

// JWKToCOSEKey converts a JWK (as parsed JSON fields) to a COSE_Key. This is
// the other half of the total bidirectional mapping required by spec.md §8
// property 2: JWK->COSE->JWK and COSE->JWK->COSE must be the identity.
func JWKToCOSEKey(kty, crv, xB64, yB64 string) (*cose.Key, error) {
	x, err := base64.RawURLEncoding.DecodeString(xB64)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidASN1, "decode JWK x", err)
	}

	switch kty {
	case "EC":
		y, err := base64.RawURLEncoding.DecodeString(yB64)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.KindInvalidASN1, "decode JWK y", err)
		}
		crvLabel, err := jwkCurveLabel(crv)
		if err != nil {
			return nil, err
		}
		return &cose.Key{Kty: cose.KeyTypeEC2, Crv: crvLabel, X: x, Y: y}, nil
	case "OKP":
		crvLabel, err := jwkCurveLabel(crv)
		if err != nil {
			return nil, err
		}
		return &cose.Key{Kty: cose.KeyTypeOKP, Crv: crvLabel, X: x}, nil
	default:
		return nil, coreerr.New(coreerr.KindUnsupportedAlg, "unsupported JWK kty "+kty)
	}
}

func coseKeyCurveName(crv int64) (string, error) {
	switch crv {
	case cose.CurveP256:
		return "P-256", nil
	case cose.CurveP384:
		return "P-384", nil
	case cose.CurveP521:
		return "P-521", nil
	case cose.CurveX25519:
		return "X25519", nil
	case cose.CurveX448:
		return "X448", nil
	case cose.CurveEd25519:
		return "Ed25519", nil
	case cose.CurveEd448:
		return "Ed448", nil
	default:
		return "", coreerr.New(coreerr.KindUnsupportedCurveOID, "unsupported COSE curve label")
	}
}

func jwkCurveLabel(crv string) (int64, error) {
	switch crv {
	case "P-256":
		return cose.CurveP256, nil
	case "P-384":
		return cose.CurveP384, nil
	case "P-521":
		return cose.CurveP521, nil
	case "X25519":
		return cose.CurveX25519, nil
	case "X448":
		return cose.CurveX448, nil
	case "Ed25519":
		return cose.CurveEd25519, nil
	case "Ed448":
		return cose.CurveEd448, nil
	default:
		return 0, coreerr.New(coreerr.KindUnsupportedCurveOID, "unsupported JWK crv "+crv)
	}
}
