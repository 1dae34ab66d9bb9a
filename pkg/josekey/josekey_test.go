package josekey

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"

	"mdljarm/pkg/cose"
)

func TestGenerateKeyPairECDSA(t *testing.T) {
	tests := []struct {
		alg   string
		curve string
	}{
		{"ES256", "P-256"},
		{"ES384", "P-384"},
		{"ES512", "P-521"},
	}

	for _, tt := range tests {
		t.Run(tt.alg, func(t *testing.T) {
			kp, err := GenerateKeyPair(tt.alg)
			if err != nil {
				t.Fatalf("GenerateKeyPair(%q) error = %v", tt.alg, err)
			}
			if _, ok := kp.Private.(*ecdsa.PrivateKey); !ok {
				t.Fatalf("Private = %T, want *ecdsa.PrivateKey", kp.Private)
			}
		})
	}
}

func TestGenerateKeyPairEdDSA(t *testing.T) {
	kp, err := GenerateKeyPair("EdDSA")
	if err != nil {
		t.Fatalf("GenerateKeyPair(EdDSA) error = %v", err)
	}
	if _, ok := kp.Public.(ed25519.PublicKey); !ok {
		t.Fatalf("Public = %T, want ed25519.PublicKey", kp.Public)
	}
}

func TestGenerateKeyPairUnsupportedAlg(t *testing.T) {
	if _, err := GenerateKeyPair("HS256"); err == nil {
		t.Fatal("expected error for unsupported key-generation algorithm")
	}
}

func TestGenerateRSAKeyPairRejectsSmallModulus(t *testing.T) {
	if _, err := GenerateRSAKeyPair(1024); err == nil {
		t.Fatal("expected error for RSA modulus below 2048 bits")
	}
}

func TestGenerateRSAKeyPairMinimum(t *testing.T) {
	kp, err := GenerateRSAKeyPair(MinRSAModulusBits)
	if err != nil {
		t.Fatalf("GenerateRSAKeyPair(2048) error = %v", err)
	}
	if kp.Private == nil || kp.Public == nil {
		t.Fatal("expected non-nil key pair")
	}
}

func TestParseKeyPEMRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair("ES256")
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	der, err := ToPKCS8(kp.Private)
	if err != nil {
		t.Fatalf("ToPKCS8() error = %v", err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	parsed, err := ParseKeyPEM(block)
	if err != nil {
		t.Fatalf("ParseKeyPEM() error = %v", err)
	}
	priv, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		t.Fatalf("parsed = %T, want *ecdsa.PrivateKey", parsed)
	}
	original := kp.Private.(*ecdsa.PrivateKey)
	if priv.D.Cmp(original.D) != 0 {
		t.Error("round-tripped private scalar changed")
	}
}

func TestParseCertificatePEMExtractsSPKI(t *testing.T) {
	kp, err := GenerateKeyPair("ES256")
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	priv := kp.Private.(*ecdsa.PrivateKey)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
	}
	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("CreateCertificate() error = %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	cert, spki, err := ParseCertificatePEM(certPEM)
	if err != nil {
		t.Fatalf("ParseCertificatePEM() error = %v", err)
	}
	if cert == nil {
		t.Fatal("expected non-nil certificate")
	}

	pub, err := PublicKeyFromSPKI(spki)
	if err != nil {
		t.Fatalf("PublicKeyFromSPKI() error = %v", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		t.Fatalf("pub = %T, want *ecdsa.PublicKey", pub)
	}
	if ecPub.X.Cmp(priv.X) != 0 || ecPub.Y.Cmp(priv.Y) != 0 {
		t.Error("SPKI-extracted public key does not match signer")
	}
}

func TestCOSEKeyJWKRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair("ES256")
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	priv := kp.Private.(*ecdsa.PrivateKey)

	coseKey, err := cose.KeyFromECDSA(&priv.PublicKey)
	if err != nil {
		t.Fatalf("KeyFromECDSA() error = %v", err)
	}

	jwk, err := COSEKeyToJWK(coseKey)
	if err != nil {
		t.Fatalf("COSEKeyToJWK() error = %v", err)
	}

	back, err := JWKToCOSEKey(jwk.Kty, jwk.Crv, jwk.X, jwk.Y)
	if err != nil {
		t.Fatalf("JWKToCOSEKey() error = %v", err)
	}
	if back.Kty != coseKey.Kty || back.Crv != coseKey.Crv {
		t.Error("round-tripped COSE_Key type/curve changed")
	}
	if string(back.X) != string(coseKey.X) || string(back.Y) != string(coseKey.Y) {
		t.Error("round-tripped COSE_Key coordinates changed")
	}
}

func TestResolveAlgorithmTable(t *testing.T) {
	tests := []struct {
		name   string
		family AlgorithmFamily
	}{
		{"ES256", FamilyECDSA},
		{"PS384", FamilyRSAPSS},
		{"RS512", FamilyRSASSAPKCS1},
		{"RSA-OAEP-256", FamilyRSAOAEP},
		{"EdDSA", FamilyEdDSA},
		{"ECDH-ES+A128KW", FamilyECDH},
		{"HS256", FamilyHMAC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ResolveAlgorithm(tt.name)
			if err != nil {
				t.Fatalf("ResolveAlgorithm(%q) error = %v", tt.name, err)
			}
			if p.Family != tt.family {
				t.Errorf("Family = %v, want %v", p.Family, tt.family)
			}
		})
	}
}

func TestResolveAlgorithmUnsupported(t *testing.T) {
	if _, err := ResolveAlgorithm("not-an-alg"); err == nil {
		t.Fatal("expected error for unsupported algorithm name")
	}
}
