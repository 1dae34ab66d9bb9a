package josekey

import "mdljarm/pkg/coreerr"

// AlgorithmFamily classifies a JOSE/COSE algorithm name by the primitive it
// dispatches to, per spec.md §4.5's table.
type AlgorithmFamily int

const (
	FamilyUnknown AlgorithmFamily = iota
	FamilyECDSA
	FamilyEdDSA
	FamilyRSAPSS
	FamilyRSASSAPKCS1
	FamilyRSAOAEP
	FamilyECDH
	FamilyHMAC
	FamilyAESKW
	FamilyAESGCM
)

// HashAlg names the digest used by an algorithm, where applicable.
type HashAlg int

const (
	HashNone HashAlg = iota
	HashSHA1
	HashSHA256
	HashSHA384
	HashSHA512
)

// AlgorithmParams is the resolved (family, hash, curve-or-keysize) tuple for
// a JOSE/COSE algorithm name, the output of the dispatch table in spec.md
// §4.5.
type AlgorithmParams struct {
	Name   string
	Family AlgorithmFamily
	Hash   HashAlg
	// Curve names the EC/OKP curve for ECDSA/EdDSA/ECDH families ("P-256",
	// "Ed25519", ...); empty when not applicable.
	Curve string
	// KeyWrap names the companion AES key-wrap width for ECDH-ES+A*KW
	// variants ("A128KW", "A192KW", "A256KW"); empty for plain ECDH-ES.
	KeyWrap string
}

// algorithmTable is the literal dispatch table from spec.md §4.5.
var algorithmTable = map[string]AlgorithmParams{
	"PS256": {Family: FamilyRSAPSS, Hash: HashSHA256},
	"PS384": {Family: FamilyRSAPSS, Hash: HashSHA384},
	"PS512": {Family: FamilyRSAPSS, Hash: HashSHA512},

	"RS256": {Family: FamilyRSASSAPKCS1, Hash: HashSHA256},
	"RS384": {Family: FamilyRSASSAPKCS1, Hash: HashSHA384},
	"RS512": {Family: FamilyRSASSAPKCS1, Hash: HashSHA512},

	"RSA-OAEP":     {Family: FamilyRSAOAEP, Hash: HashSHA1},
	"RSA-OAEP-256": {Family: FamilyRSAOAEP, Hash: HashSHA256},
	"RSA-OAEP-384": {Family: FamilyRSAOAEP, Hash: HashSHA384},
	"RSA-OAEP-512": {Family: FamilyRSAOAEP, Hash: HashSHA512},

	"ES256": {Family: FamilyECDSA, Hash: HashSHA256, Curve: "P-256"},
	"ES384": {Family: FamilyECDSA, Hash: HashSHA384, Curve: "P-384"},
	"ES512": {Family: FamilyECDSA, Hash: HashSHA512, Curve: "P-521"},

	"EdDSA": {Family: FamilyEdDSA},

	"ECDH-ES":        {Family: FamilyECDH},
	"ECDH-ES+A128KW": {Family: FamilyECDH, KeyWrap: "A128KW"},
	"ECDH-ES+A192KW": {Family: FamilyECDH, KeyWrap: "A192KW"},
	"ECDH-ES+A256KW": {Family: FamilyECDH, KeyWrap: "A256KW"},

	"HS256": {Family: FamilyHMAC, Hash: HashSHA256},
	"HS384": {Family: FamilyHMAC, Hash: HashSHA384},
	"HS512": {Family: FamilyHMAC, Hash: HashSHA512},

	"A128GCM": {Family: FamilyAESGCM},
	"A192GCM": {Family: FamilyAESGCM},
	"A256GCM": {Family: FamilyAESGCM},

	"A128KW": {Family: FamilyAESKW},
	"A192KW": {Family: FamilyAESKW},
	"A256KW": {Family: FamilyAESKW},
}

// ResolveAlgorithm looks up the parameters for a JOSE algorithm name. For
// EdDSA and ECDH-ES, the curve is not fixed by the algorithm name alone — it
// is carried by the key itself (spec.md §4.5: "curve from key bytes") and
// must be filled in by the caller from the actual key material.
func ResolveAlgorithm(name string) (AlgorithmParams, error) {
	p, ok := algorithmTable[name]
	if !ok {
		return AlgorithmParams{}, coreerr.New(coreerr.KindUnsupportedAlg, "unsupported algorithm "+name)
	}
	p.Name = name
	return p, nil
}

// IsSignatureAlgorithm reports whether alg produces/verifies a digital
// signature or MAC (as opposed to encryption/key-wrap).
func IsSignatureAlgorithm(family AlgorithmFamily) bool {
	switch family {
	case FamilyECDSA, FamilyEdDSA, FamilyRSAPSS, FamilyRSASSAPKCS1, FamilyHMAC:
		return true
	default:
		return false
	}
}

// IsEncryptionAlgorithm reports whether alg is used for confidentiality
// (content or key encryption), as opposed to signing.
func IsEncryptionAlgorithm(family AlgorithmFamily) bool {
	switch family {
	case FamilyRSAOAEP, FamilyECDH, FamilyAESKW, FamilyAESGCM:
		return true
	default:
		return false
	}
}
