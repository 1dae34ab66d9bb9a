// Package hostctx declares the capability interfaces the core calls through
// instead of hardcoding concrete crypto/x509/JOSE libraries: CryptoContext,
// X509Context, JoseContext, and OpenID4VPContext. The core never captures
// global state; callers construct and pass these by reference. Default
// stdlib-backed implementations live in pkg/hostcrypto.
package hostctx

import (
	"context"
	"crypto"
	"crypto/x509"
)

// EphemeralMacKeyParams are the inputs to CalculateEphemeralMacKey: an ECDH
// key agreement between the device private key and the reader's ephemeral
// public key, combined with the session transcript via HKDF-SHA-256.
type EphemeralMacKeyParams struct {
	DevicePrivateKey       crypto.PrivateKey
	ReaderEphemeralPublic  crypto.PublicKey
	SessionTranscriptBytes []byte
}

// CryptoContext is the host-provided cryptographic primitive set. Algorithm
// identifiers are COSE algorithm labels (RFC 9053), e.g. -7 for ES256, 5 for
// HMAC 256/256.
type CryptoContext interface {
	// Digest hashes bytes under one of "SHA-256", "SHA-384", "SHA-512".
	Digest(ctx context.Context, alg string, data []byte) ([]byte, error)

	// Sign produces a raw (non-ASN.1) signature or MAC tag for the given
	// COSE algorithm label and key.
	Sign(ctx context.Context, alg int64, key crypto.PrivateKey, data []byte) ([]byte, error)

	// Verify checks a raw signature or MAC tag.
	Verify(ctx context.Context, alg int64, key crypto.PublicKey, data, sig []byte) (bool, error)

	// CalculateEphemeralMacKey derives the 32-byte device-auth MAC key.
	CalculateEphemeralMacKey(ctx context.Context, params EphemeralMacKeyParams) ([]byte, error)

	// GetRandomValues returns n cryptographically secure random bytes.
	GetRandomValues(ctx context.Context, n int) ([]byte, error)
}

// CertificateData is the subject/issuer attribute bag extracted from an
// X.509 certificate, used by the verifier's certificate-subject coupling
// checks (country/jurisdiction).
type CertificateData struct {
	CountryName        string
	StateOrProvinceName string
	CommonName         string
}

// CertificateValidityData is the notBefore/notAfter window of a certificate.
type CertificateValidityData struct {
	NotBeforeUnix int64
	NotAfterUnix  int64
}

// X509Context is the host-provided certificate capability set.
type X509Context interface {
	ValidateCertificateChain(ctx context.Context, certificates []*x509.Certificate, trustAnchors []*x509.Certificate) error
	GetPublicKey(ctx context.Context, cert *x509.Certificate, alg int64) (crypto.PublicKey, error)
	GetIssuerName(ctx context.Context, cert *x509.Certificate) (string, error)
	GetCertificateData(ctx context.Context, cert *x509.Certificate) (CertificateData, error)
	GetCertificateValidityData(ctx context.Context, cert *x509.Certificate) (CertificateValidityData, error)
}

// JoseContext is the host-provided JOSE capability set used by the JARM
// envelope and by issuer/reader key import.
type JoseContext interface {
	EncryptCompact(ctx context.Context, alg, enc string, key crypto.PublicKey, payload []byte) (string, error)
	DecryptCompact(ctx context.Context, token string, key crypto.PrivateKey) ([]byte, error)
	SignJWT(ctx context.Context, alg string, key crypto.PrivateKey, claims map[string]any) (string, error)
	VerifyJWT(ctx context.Context, token string, key crypto.PublicKey) (map[string]any, error)
	ImportJWK(ctx context.Context, jwk []byte) (any, error)
}

// OpenID4VPContext looks up the original authorization-request parameters a
// JARM response is answering, keyed by its state value. The core consumes a
// parsed request; it does not construct one.
type OpenID4VPContext interface {
	GetAuthRequestParams(ctx context.Context, state string) (map[string]any, error)
}
