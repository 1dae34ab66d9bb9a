package verify

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"time"

	"mdljarm/pkg/coreerr"
)

// LoadTrustAnchorsPEM parses one or more concatenated PEM-encoded IACA root
// certificates into the trust-anchor set a Verifier's Options.TrustAnchors
// expects. The core never issues or signs IACA/DS certificates itself (that
// is root-CA territory, out of scope); this only loads certificates a host
// already obtained through its own PKI process.
func LoadTrustAnchorsPEM(data []byte) ([]*x509.Certificate, error) {
	var anchors []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.KindInvalidPEM, "parse trust anchor certificate", err)
		}
		anchors = append(anchors, cert)
	}
	if len(anchors) == 0 {
		return nil, coreerr.New(coreerr.KindInvalidPEM, "no CERTIFICATE blocks found in trust anchor input")
	}
	return anchors, nil
}

// TrustAnchorInfo summarizes a configured trust anchor for diagnostics
// (admin UI listings, health checks) without exposing the raw certificate.
type TrustAnchorInfo struct {
	Country        string
	Organization   string
	CommonName     string
	NotBefore      time.Time
	NotAfter       time.Time
	KeyAlgorithm   string
	CurrentlyValid bool
}

// DescribeTrustAnchors summarizes a trust-anchor set at the given instant.
func DescribeTrustAnchors(anchors []*x509.Certificate, now time.Time) []TrustAnchorInfo {
	infos := make([]TrustAnchorInfo, 0, len(anchors))
	for _, cert := range anchors {
		infos = append(infos, TrustAnchorInfo{
			Country:        firstOrEmpty(cert.Subject.Country),
			Organization:   firstOrEmpty(cert.Subject.Organization),
			CommonName:     cert.Subject.CommonName,
			NotBefore:      cert.NotBefore,
			NotAfter:       cert.NotAfter,
			KeyAlgorithm:   keyAlgorithmName(cert),
			CurrentlyValid: now.After(cert.NotBefore) && now.Before(cert.NotAfter),
		})
	}
	return infos
}

func keyAlgorithmName(cert *x509.Certificate) string {
	switch cert.PublicKey.(type) {
	case *ecdsa.PublicKey:
		return "ECDSA"
	case ed25519.PublicKey:
		return "Ed25519"
	default:
		return "unknown"
	}
}

func firstOrEmpty(s []string) string {
	if len(s) > 0 {
		return s[0]
	}
	return ""
}
