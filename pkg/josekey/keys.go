// Package josekey implements the JOSE key-material layer (C3's JWK half,
// and C6): PEM/SPKI/PKCS#8/X.509 parsing, JWK<->COSE_Key conversion, and
// algorithm-to-parameter dispatch for ECDSA, EdDSA, RSA-PSS, RSASSA-PKCS1,
// RSA-OAEP, ECDH-ES, HMAC, AES-KW, AES-GCM.
package josekey

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"

	"mdljarm/pkg/coreerr"
)

// MinRSAModulusBits is the minimum RSA key size this package will generate
// or accept for generation; smaller requests are rejected per spec.md §4.5.
const MinRSAModulusBits = 2048

// ParseKeyPEM parses a private key PEM block in PKCS#8, SEC1 (EC), or
// PKCS#1 (RSA) form, dispatching on the PEM block type exactly as the
// teacher's ParseKeyFromFile does.
func ParseKeyPEM(data []byte) (crypto.PrivateKey, error) {
	block, rest, err := decodePEM(data)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, coreerr.New(coreerr.KindInvalidPEM, "trailing data after PEM block")
	}

	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.KindInvalidASN1, "parse PKCS#8 private key", err)
		}
		return key, nil
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.KindInvalidASN1, "parse SEC1 EC private key", err)
		}
		return key, nil
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.KindInvalidASN1, "parse PKCS#1 RSA private key", err)
		}
		return key, nil
	default:
		return nil, coreerr.New(coreerr.KindInvalidPEM, "unsupported private key PEM type "+block.Type)
	}
}

// ParseCertificatePEM parses a single "CERTIFICATE" PEM block, returning
// both the parsed certificate and the raw SubjectPublicKeyInfo DER bytes
// located via the hand-rolled ASN.1 walker (spec.md §4.5), independent of
// crypto/x509's own (equivalent) parse.
func ParseCertificatePEM(data []byte) (*x509.Certificate, []byte, error) {
	block, rest, err := decodePEM(data)
	if err != nil {
		return nil, nil, err
	}
	if block.Type != "CERTIFICATE" {
		return nil, nil, coreerr.New(coreerr.KindInvalidPEM, "expected CERTIFICATE PEM block")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, nil, coreerr.Wrap(coreerr.KindInvalidASN1, "parse certificate", err)
	}

	spki, err := spkiFromCertificate(block.Bytes)
	if err != nil {
		return nil, nil, err
	}

	_ = rest
	return cert, spki, nil
}

// ParseCertificateChainPEM parses a PEM file containing one or more
// concatenated CERTIFICATE blocks, leaf first.
func ParseCertificateChainPEM(data []byte) ([]*x509.Certificate, error) {
	var chain []*x509.Certificate
	rest := data
	for len(rest) > 0 {
		block, remainder, err := decodePEM(rest)
		if err != nil {
			if len(chain) > 0 {
				break
			}
			return nil, err
		}
		if block.Type != "CERTIFICATE" {
			return nil, coreerr.New(coreerr.KindInvalidPEM, "expected CERTIFICATE PEM block in chain")
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.KindInvalidASN1, "parse certificate in chain", err)
		}
		chain = append(chain, cert)
		rest = remainder
	}
	if len(chain) == 0 {
		return nil, coreerr.New(coreerr.KindInvalidPEM, "no certificates found")
	}
	return chain, nil
}

// PublicKeyFromSPKI parses the DER SubjectPublicKeyInfo bytes located by
// ParseCertificatePEM/spkiFromCertificate into a Go public key.
func PublicKeyFromSPKI(spkiDER []byte) (crypto.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(spkiDER)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidASN1, "parse SubjectPublicKeyInfo", err)
	}
	return pub, nil
}

// GeneratedKeyPair is a freshly generated private/public key pair.
type GeneratedKeyPair struct {
	Private crypto.PrivateKey
	Public  crypto.PublicKey
}

// GenerateKeyPair creates a new key pair for the given JOSE/COSE algorithm
// name ("ES256", "ES384", "ES512", "EdDSA"); any other name, RSA algorithms
// included, is rejected with UnsupportedAlg. RSA key pairs come from
// GenerateRSAKeyPair, which takes the modulus explicitly. Key extractability defaults to false: callers must explicitly marshal a
// key to PEM/JWK to export it; nothing here persists key material.
func GenerateKeyPair(alg string) (*GeneratedKeyPair, error) {
	switch alg {
	case "ES256":
		return generateECDSA(elliptic.P256())
	case "ES384":
		return generateECDSA(elliptic.P384())
	case "ES512":
		return generateECDSA(elliptic.P521())
	case "EdDSA":
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.KindCapabilityFailure, "generate ed25519 key", err)
		}
		return &GeneratedKeyPair{Private: priv, Public: pub}, nil
	default:
		return nil, coreerr.New(coreerr.KindUnsupportedAlg, "unsupported key generation alg "+alg)
	}
}

func generateECDSA(curve elliptic.Curve) (*GeneratedKeyPair, error) {
	priv, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindCapabilityFailure, "generate ecdsa key", err)
	}
	return &GeneratedKeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// GenerateRSAKeyPair generates an RSA key pair for RS*/PS*/RSA-OAEP*,
// rejecting any modulus below MinRSAModulusBits.
func GenerateRSAKeyPair(modulusBits int) (*GeneratedKeyPair, error) {
	if modulusBits < MinRSAModulusBits {
		return nil, coreerr.New(coreerr.KindInvalidModulusLength, "RSA modulus below minimum of 2048 bits")
	}
	priv, err := rsa.GenerateKey(rand.Reader, modulusBits)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindCapabilityFailure, "generate rsa key", err)
	}
	return &GeneratedKeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// ToPKCS8 marshals a private key to PKCS#8 DER.
//
// Open Question (spec.md §9) resolved: the original source's `toPKCS8`
// passed `keyType: 'public'` to its own export call despite the function's
// name and purpose, which is very likely a source bug (exporting a private
// key should request 'private'). That bug class does not translate to Go:
// this function's signature only accepts a crypto.PrivateKey, so there is
// no string keyType parameter to mis-set.
func ToPKCS8(key crypto.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidASN1, "marshal PKCS#8 private key", err)
	}
	return der, nil
}
