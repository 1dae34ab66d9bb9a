package hostcrypto

import (
	"context"
	"crypto"
	"crypto/x509"

	"mdljarm/pkg/coreerr"
	"mdljarm/pkg/hostctx"
)

// X509 is the default X509Context, backed by crypto/x509's chain-building
// verifier against a caller-supplied trust anchor pool.
type X509 struct{}

var _ hostctx.X509Context = X509{}

// ValidateCertificateChain builds an x509.CertPool from trustAnchors and
// verifies that certificates[0] chains to one of them, following the same
// intermediate-pool shape the teacher's certificate loader produces.
func (X509) ValidateCertificateChain(_ context.Context, certificates []*x509.Certificate, trustAnchors []*x509.Certificate) error {
	if len(certificates) == 0 {
		return coreerr.New(coreerr.KindMissingField, "empty certificate chain")
	}

	roots := x509.NewCertPool()
	for _, anchor := range trustAnchors {
		roots.AddCert(anchor)
	}

	intermediates := x509.NewCertPool()
	for _, c := range certificates[1:] {
		intermediates.AddCert(c)
	}

	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}

	if _, err := certificates[0].Verify(opts); err != nil {
		return coreerr.Wrap(coreerr.KindCapabilityFailure, "certificate chain validation failed", err)
	}
	return nil
}

// GetPublicKey returns the certificate's public key. alg is accepted for
// interface symmetry with other capabilities but unused: the certificate
// itself carries its key type.
func (X509) GetPublicKey(_ context.Context, cert *x509.Certificate, _ int64) (crypto.PublicKey, error) {
	if cert == nil {
		return nil, coreerr.New(coreerr.KindMissingField, "nil certificate")
	}
	return cert.PublicKey, nil
}

// GetIssuerName returns the certificate's issuer common name.
func (X509) GetIssuerName(_ context.Context, cert *x509.Certificate) (string, error) {
	if cert == nil {
		return "", coreerr.New(coreerr.KindMissingField, "nil certificate")
	}
	return cert.Issuer.CommonName, nil
}

// GetCertificateData extracts the subject attributes the verifier's
// certificate-subject coupling checks need.
func (X509) GetCertificateData(_ context.Context, cert *x509.Certificate) (hostctx.CertificateData, error) {
	if cert == nil {
		return hostctx.CertificateData{}, coreerr.New(coreerr.KindMissingField, "nil certificate")
	}
	country := ""
	if len(cert.Subject.Country) > 0 {
		country = cert.Subject.Country[0]
	}
	province := ""
	if len(cert.Subject.Province) > 0 {
		province = cert.Subject.Province[0]
	}
	return hostctx.CertificateData{
		CountryName:         country,
		StateOrProvinceName: province,
		CommonName:          cert.Subject.CommonName,
	}, nil
}

// GetCertificateValidityData extracts the notBefore/notAfter window.
func (X509) GetCertificateValidityData(_ context.Context, cert *x509.Certificate) (hostctx.CertificateValidityData, error) {
	if cert == nil {
		return hostctx.CertificateValidityData{}, coreerr.New(coreerr.KindMissingField, "nil certificate")
	}
	return hostctx.CertificateValidityData{
		NotBeforeUnix: cert.NotBefore.Unix(),
		NotAfterUnix:  cert.NotAfter.Unix(),
	}, nil
}
