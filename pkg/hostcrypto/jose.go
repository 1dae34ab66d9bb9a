package hostcrypto

import (
	"context"
	"crypto"

	josepkg "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"mdljarm/pkg/coreerr"
	"mdljarm/pkg/hostctx"
)

// Jose is the default JoseContext, backed by go-jose for JWE compact
// encrypt/decrypt, golang-jwt for JWS compact sign/verify, and
// lestrrat-go/jwx/v3 for JWK import — the same three libraries the teacher
// uses for these concerns individually.
type Jose struct{}

var _ hostctx.JoseContext = Jose{}

// EncryptCompact produces a 5-segment compact JWE.
func (Jose) EncryptCompact(_ context.Context, alg, enc string, key crypto.PublicKey, payload []byte) (string, error) {
	encrypter, err := josepkg.NewEncrypter(
		josepkg.ContentEncryption(enc),
		josepkg.Recipient{Algorithm: josepkg.KeyAlgorithm(alg), Key: key},
		nil,
	)
	if err != nil {
		return "", coreerr.Wrap(coreerr.KindCapabilityFailure, "build jwe encrypter", err)
	}
	obj, err := encrypter.Encrypt(payload)
	if err != nil {
		return "", coreerr.Wrap(coreerr.KindCapabilityFailure, "jwe encrypt", err)
	}
	compact, err := obj.CompactSerialize()
	if err != nil {
		return "", coreerr.Wrap(coreerr.KindCapabilityFailure, "jwe compact serialize", err)
	}
	return compact, nil
}

// DecryptCompact decrypts a compact JWE with the given private key,
// following the teacher's own DecryptJWE shape (ParseEncrypted then
// Decrypt), generalized to accept any key algorithm/content encryption
// rather than one hardcoded pair.
func (Jose) DecryptCompact(_ context.Context, token string, key crypto.PrivateKey) ([]byte, error) {
	obj, err := josepkg.ParseEncrypted(token, allKeyAlgorithms, allContentEncryptions)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidPEM, "parse compact jwe", err)
	}
	plaintext, err := obj.Decrypt(key)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindCapabilityFailure, "jwe decrypt", err)
	}
	return plaintext, nil
}

var allKeyAlgorithms = []josepkg.KeyAlgorithm{
	josepkg.ECDH_ES, josepkg.ECDH_ES_A128KW, josepkg.ECDH_ES_A192KW, josepkg.ECDH_ES_A256KW,
	josepkg.RSA_OAEP, josepkg.RSA_OAEP_256, josepkg.RSA1_5,
	josepkg.A128KW, josepkg.A192KW, josepkg.A256KW,
	josepkg.DIRECT,
}

var allContentEncryptions = []josepkg.ContentEncryption{
	josepkg.A128GCM, josepkg.A192GCM, josepkg.A256GCM,
	josepkg.A128CBC_HS256, josepkg.A192CBC_HS384, josepkg.A256CBC_HS512,
}

// SignJWT produces a 3-segment compact JWS from claims.
func (Jose) SignJWT(_ context.Context, alg string, key crypto.PrivateKey, claims map[string]any) (string, error) {
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return "", coreerr.New(coreerr.KindUnsupportedAlg, "unsupported JWS alg "+alg)
	}
	token := jwt.NewWithClaims(method, jwt.MapClaims(claims))
	signed, err := token.SignedString(key)
	if err != nil {
		return "", coreerr.Wrap(coreerr.KindCapabilityFailure, "sign jwt", err)
	}
	return signed, nil
}

// VerifyJWT verifies a compact JWS and returns its claims.
func (Jose) VerifyJWT(_ context.Context, token string, key crypto.PublicKey) (map[string]any, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindSignatureInvalid, "verify jwt", err)
	}
	return claims, nil
}

// ImportJWK parses a JSON-encoded JWK.
func (Jose) ImportJWK(_ context.Context, rawJWK []byte) (any, error) {
	key, err := jwk.ParseKey(rawJWK)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidPEM, "parse jwk", err)
	}
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidPEM, "export jwk raw key", err)
	}
	return raw, nil
}
