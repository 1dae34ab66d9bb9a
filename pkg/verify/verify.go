// Package verify implements the category-tagged mdoc verification pipeline
// (C8): document-format, issuer-auth, device-auth, and data-integrity
// checks, each reported through a caller-supplied callback rather than
// accumulated into a single pass/fail result.
package verify

import (
	"context"
	"crypto/x509"
	"time"

	"mdljarm/pkg/cbordet"
	"mdljarm/pkg/cose"
	"mdljarm/pkg/coreerr"
	"mdljarm/pkg/hostctx"
	"mdljarm/pkg/mdoc"
)

// Category classifies a VerificationAssessment.
type Category string

const (
	CategoryDocumentFormat Category = "DOCUMENT_FORMAT"
	CategoryIssuerAuth     Category = "ISSUER_AUTH"
	CategoryDeviceAuth     Category = "DEVICE_AUTH"
	CategoryDataIntegrity  Category = "DATA_INTEGRITY"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// Assessment is emitted once per check. Reason is set only on failure.
type Assessment struct {
	Category Category
	Check    string
	Status   Status
	Reason   string
}

// Callback receives each Assessment as it is produced. Order within a
// category is preserved.
type Callback func(Assessment)

// Options configures a verification pass. Trust-anchor and reader-key
// inputs are supplied by the caller per spec.md's capability-injection
// model; the core never sources them itself.
type Options struct {
	// TrustAnchors are the IACA certificates chains are validated against.
	// Required unless SkipTrustChainCheck is set.
	TrustAnchors []*x509.Certificate

	// SkipTrustChainCheck disables issuer-auth check 2 entirely.
	SkipTrustChainCheck bool

	// SessionTranscriptBytes is the deterministic CBOR encoding of the
	// SessionTranscript the presentation was built against.
	SessionTranscriptBytes []byte

	// ReaderEphemeralPrivate is required only for the MAC device-auth
	// variant: the reader's half of the ECDH key agreement.
	ReaderEphemeralPrivate any

	// Now overrides the current time for validity checks; defaults to
	// time.Now() when zero.
	Now time.Time
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// Verifier runs the check pipeline against host-injected crypto and X.509
// capabilities. It carries no mutable state of its own.
type Verifier struct {
	cc hostctx.CryptoContext
	xc hostctx.X509Context
}

// NewVerifier constructs a Verifier over the given capabilities.
func NewVerifier(cc hostctx.CryptoContext, xc hostctx.X509Context) *Verifier {
	return &Verifier{cc: cc, xc: xc}
}

// VerifyResponse runs the document-format checks once and then VerifyDocument
// for each document in response, in order. It stops and returns an error only
// on a parse-level failure, missing trust anchors, or an error returned by a
// host capability (X509Context/CryptoContext); individual check results
// are reported through emit regardless of how the overall verification ends.
func (v *Verifier) VerifyResponse(ctx context.Context, response *mdoc.DeviceResponse, opts Options, emit Callback) (bool, error) {
	valid := v.checkDocumentFormat(response, emit)

	for i := range response.Documents {
		docValid, err := v.VerifyDocument(ctx, &response.Documents[i], opts, emit)
		if err != nil {
			return false, err
		}
		if !docValid {
			valid = false
		}
	}

	return valid, nil
}

func (v *Verifier) checkDocumentFormat(response *mdoc.DeviceResponse, emit Callback) bool {
	valid := true

	if response.Version == "" {
		emit(Assessment{CategoryDocumentFormat, "version_present", StatusFail, "version is empty"})
		valid = false
	} else {
		emit(Assessment{CategoryDocumentFormat, "version_present", StatusPass, ""})
	}

	if response.Version != "" && compareDottedVersions(response.Version, "1.0") < 0 {
		emit(Assessment{CategoryDocumentFormat, "version_at_least_1_0", StatusFail, "version " + response.Version + " is below 1.0"})
		valid = false
	} else if response.Version != "" {
		emit(Assessment{CategoryDocumentFormat, "version_at_least_1_0", StatusPass, ""})
	}

	if len(response.Documents) == 0 {
		emit(Assessment{CategoryDocumentFormat, "documents_non_empty", StatusFail, "no documents present"})
		valid = false
	} else {
		emit(Assessment{CategoryDocumentFormat, "documents_non_empty", StatusPass, ""})
	}

	return valid
}

// VerifyDocument runs the issuer-auth, device-auth, and data-integrity
// checks for a single document. The returned bool reports whether every
// check passed; the error is non-nil only for parse-level failures, missing
// trust anchors, or an error returned by a host capability call.
func (v *Verifier) VerifyDocument(ctx context.Context, doc *mdoc.Document, opts Options, emit Callback) (bool, error) {
	dsCert, alg, mso, certData, ok, err := v.checkIssuerAuth(ctx, doc, opts, emit)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	deviceAuthOK, err := v.checkDeviceAuth(ctx, doc, mso, opts, emit)
	if err != nil {
		return false, err
	}

	dataOK, err := v.checkDataIntegrity(ctx, doc, mso, certData, emit)
	if err != nil {
		return false, err
	}

	return deviceAuthOK && dataOK, nil
}

func (v *Verifier) checkIssuerAuth(ctx context.Context, doc *mdoc.Document, opts Options, emit Callback) (*x509.Certificate, int64, *mdoc.MobileSecurityObject, hostctx.CertificateData, bool, error) {
	issuerAuth := doc.IssuerSigned.IssuerAuth

	chain, err := cose.X5ChainFromSign1(issuerAuth)
	alg, algErr := cose.HeaderAlgorithmOf(issuerAuth.Protected)
	if err != nil || len(chain) == 0 || algErr != nil || !supportedSignatureAlgorithm(alg) {
		reason := "x5chain missing or algorithm unsupported"
		if err != nil {
			reason = err.Error()
		} else if algErr != nil {
			reason = algErr.Error()
		}
		emit(Assessment{CategoryIssuerAuth, "x5chain_present_alg_supported", StatusFail, reason})
		return nil, 0, nil, hostctx.CertificateData{}, false, nil
	}
	emit(Assessment{CategoryIssuerAuth, "x5chain_present_alg_supported", StatusPass, ""})
	dsCert := chain[0]

	if !opts.SkipTrustChainCheck {
		if len(opts.TrustAnchors) == 0 {
			return nil, 0, nil, hostctx.CertificateData{}, false, coreerr.New(coreerr.KindMissingField, "no trust anchors configured")
		}
		if err := v.xc.ValidateCertificateChain(ctx, chain, opts.TrustAnchors); err != nil {
			emit(Assessment{CategoryIssuerAuth, "trust_chain_valid", StatusFail, err.Error()})
			return dsCert, alg, nil, hostctx.CertificateData{}, false, nil
		}
		emit(Assessment{CategoryIssuerAuth, "trust_chain_valid", StatusPass, ""})
	}

	dsPub, err := v.xc.GetPublicKey(ctx, dsCert, alg)
	if err != nil {
		emit(Assessment{CategoryIssuerAuth, "signature_valid", StatusFail, err.Error()})
		return dsCert, alg, nil, hostctx.CertificateData{}, false, nil
	}
	if err := cose.Verify(ctx, v.cc, issuerAuth, dsPub, nil, nil); err != nil {
		emit(Assessment{CategoryIssuerAuth, "signature_valid", StatusFail, err.Error()})
		return dsCert, alg, nil, hostctx.CertificateData{}, false, nil
	}
	emit(Assessment{CategoryIssuerAuth, "signature_valid", StatusPass, ""})

	var mso mdoc.MobileSecurityObject
	if err := cbordet.Unmarshal(issuerAuth.Payload, &mso); err != nil {
		return dsCert, alg, nil, hostctx.CertificateData{}, false, coreerr.Wrap(coreerr.KindInvalidMajorType, "decode MSO payload", err)
	}

	certValidity, err := v.xc.GetCertificateValidityData(ctx, dsCert)
	if err != nil {
		return dsCert, alg, nil, hostctx.CertificateData{}, false, coreerr.Capability(err)
	}
	signed, err := time.Parse(time.RFC3339, string(mso.ValidityInfo.Signed))
	if err != nil {
		return dsCert, alg, nil, hostctx.CertificateData{}, false, coreerr.Wrap(coreerr.KindInvalidMajorType, "parse validityInfo.signed", err)
	}
	if signed.Unix() < certValidity.NotBeforeUnix || signed.Unix() > certValidity.NotAfterUnix {
		emit(Assessment{CategoryIssuerAuth, "signed_within_cert_validity", StatusFail, "validityInfo.signed outside DS certificate validity window"})
		return dsCert, alg, &mso, hostctx.CertificateData{}, false, nil
	}
	emit(Assessment{CategoryIssuerAuth, "signed_within_cert_validity", StatusPass, ""})

	valid := true
	if err := mdoc.ValidateMSOValidity(&mso, opts.now()); err != nil {
		emit(Assessment{CategoryIssuerAuth, "current_time_within_validity", StatusFail, err.Error()})
		valid = false
	} else {
		emit(Assessment{CategoryIssuerAuth, "current_time_within_validity", StatusPass, ""})
	}

	certData, err := v.xc.GetCertificateData(ctx, dsCert)
	if err != nil {
		return dsCert, alg, &mso, hostctx.CertificateData{}, false, coreerr.Capability(err)
	}
	if certData.CountryName == "" {
		emit(Assessment{CategoryIssuerAuth, "subject_contains_country", StatusFail, "DS certificate subject has no countryName"})
		valid = false
	} else {
		emit(Assessment{CategoryIssuerAuth, "subject_contains_country", StatusPass, ""})
	}

	return dsCert, alg, &mso, certData, valid, nil
}

func (v *Verifier) checkDeviceAuth(ctx context.Context, doc *mdoc.Document, mso *mdoc.MobileSecurityObject, opts Options, emit Callback) (bool, error) {
	if doc.DeviceSigned == nil {
		emit(Assessment{CategoryDeviceAuth, "exactly_one_present", StatusFail, "document carries no deviceSigned"})
		return false, nil
	}

	sig := doc.DeviceSigned.DeviceAuth.DeviceSignature
	mac := doc.DeviceSigned.DeviceAuth.DeviceMac

	if (sig == nil) == (mac == nil) {
		emit(Assessment{CategoryDeviceAuth, "exactly_one_present", StatusFail, "deviceSignature and deviceMac must be mutually exclusive"})
		return false, nil
	}
	emit(Assessment{CategoryDeviceAuth, "exactly_one_present", StatusPass, ""})

	var transcript any
	if len(opts.SessionTranscriptBytes) > 0 {
		if err := cbordet.Unmarshal(opts.SessionTranscriptBytes, &transcript); err != nil {
			return false, coreerr.Wrap(coreerr.KindInvalidMajorType, "decode session transcript", err)
		}
	}
	payload, err := cbordet.Marshal([]any{"DeviceAuthentication", transcript, doc.DocType, doc.DeviceSigned.NameSpaces})
	if err != nil {
		return false, coreerr.Wrap(coreerr.KindInvalidMajorType, "encode DeviceAuthentication", err)
	}

	var deviceKey cose.Key
	if err := cbordet.Unmarshal(mso.DeviceKeyInfo.DeviceKey, &deviceKey); err != nil {
		return false, coreerr.Wrap(coreerr.KindInvalidMajorType, "decode MSO device key", err)
	}
	devicePub, err := deviceKey.ToPublicKey()
	if err != nil {
		return false, err
	}

	if sig != nil {
		if err := cose.Verify(ctx, v.cc, sig, devicePub, payload, nil); err != nil {
			emit(Assessment{CategoryDeviceAuth, "device_signature_valid", StatusFail, err.Error()})
			return false, nil
		}
		emit(Assessment{CategoryDeviceAuth, "device_signature_valid", StatusPass, ""})
		return true, nil
	}

	macAlg, err := cose.HeaderAlgorithmOf(mac.Protected)
	if err != nil || macAlg != cose.AlgorithmHMAC256 {
		emit(Assessment{CategoryDeviceAuth, "device_mac_algorithm_supported", StatusFail, "Device MAC must use alg 5 (HMAC 256/256)"})
		return false, nil
	}
	emit(Assessment{CategoryDeviceAuth, "device_mac_algorithm_supported", StatusPass, ""})

	if opts.ReaderEphemeralPrivate == nil {
		emit(Assessment{CategoryDeviceAuth, "device_mac_valid", StatusFail, "reader ephemeral private key required for MAC device auth"})
		return false, nil
	}

	// ECDH is symmetric: deriving with (reader private, device public) yields
	// the same shared secret as the holder's (device private, reader public).
	macKey, err := v.cc.CalculateEphemeralMacKey(ctx, hostctx.EphemeralMacKeyParams{
		DevicePrivateKey:       opts.ReaderEphemeralPrivate,
		ReaderEphemeralPublic:  devicePub,
		SessionTranscriptBytes: opts.SessionTranscriptBytes,
	})
	if err != nil {
		return false, coreerr.Capability(err)
	}

	macWithPayload := *mac
	macWithPayload.Payload = payload
	if err := cose.VerifyMac0(ctx, v.cc, &macWithPayload, macKey, nil); err != nil {
		emit(Assessment{CategoryDeviceAuth, "device_mac_valid", StatusFail, err.Error()})
		return false, nil
	}
	emit(Assessment{CategoryDeviceAuth, "device_mac_valid", StatusPass, ""})
	return true, nil
}

func (v *Verifier) checkDataIntegrity(ctx context.Context, doc *mdoc.Document, mso *mdoc.MobileSecurityObject, certData hostctx.CertificateData, emit Callback) (bool, error) {
	valid := true

	if !supportedDigestAlgorithm(mso.DigestAlgorithm) {
		emit(Assessment{CategoryDataIntegrity, "digest_algorithm_supported", StatusFail, "unsupported digestAlgorithm: " + mso.DigestAlgorithm})
		return false, nil
	}
	emit(Assessment{CategoryDataIntegrity, "digest_algorithm_supported", StatusPass, ""})

	var issuingCountry, issuingJurisdiction string

	for namespace, items := range doc.IssuerSigned.NameSpaces {
		if _, ok := mso.ValueDigests[namespace]; !ok {
			emit(Assessment{CategoryDataIntegrity, "value_digests_exists:" + namespace, StatusFail, "valueDigests missing namespace " + namespace})
			valid = false
			continue
		}
		emit(Assessment{CategoryDataIntegrity, "value_digests_exists:" + namespace, StatusPass, ""})

		for _, di := range items {
			if err := mdoc.VerifyDigest(ctx, v.cc, mso, namespace, di); err != nil {
				emit(Assessment{CategoryDataIntegrity, "item_digest_match:" + namespace, StatusFail, err.Error()})
				valid = false
				continue
			}
			emit(Assessment{CategoryDataIntegrity, "item_digest_match:" + namespace, StatusPass, ""})

			if namespace != mdoc.Namespace {
				continue
			}
			item, err := di.Value()
			if err != nil {
				return false, coreerr.Wrap(coreerr.KindInvalidMajorType, "decode IssuerSignedItem", err)
			}
			switch item.ElementIdentifier {
			case "issuing_country":
				if s, ok := item.ElementValue.(string); ok {
					issuingCountry = s
				}
			case "issuing_jurisdiction":
				if s, ok := item.ElementValue.(string); ok {
					issuingJurisdiction = s
				}
			}
		}
	}

	if _, hasMDL := doc.IssuerSigned.NameSpaces[mdoc.Namespace]; hasMDL {
		if issuingCountry != "" {
			if issuingCountry != certData.CountryName {
				emit(Assessment{CategoryDataIntegrity, "issuing_country_matches_certificate", StatusFail, "issuing_country does not match DS certificate countryName"})
				valid = false
			} else {
				emit(Assessment{CategoryDataIntegrity, "issuing_country_matches_certificate", StatusPass, ""})
			}
		}
		if issuingJurisdiction != "" {
			if issuingJurisdiction != certData.StateOrProvinceName {
				emit(Assessment{CategoryDataIntegrity, "issuing_jurisdiction_matches_certificate", StatusFail, "issuing_jurisdiction does not match DS certificate stateOrProvinceName"})
				valid = false
			} else {
				emit(Assessment{CategoryDataIntegrity, "issuing_jurisdiction_matches_certificate", StatusPass, ""})
			}
		}
	}

	return valid, nil
}

func supportedSignatureAlgorithm(alg int64) bool {
	switch alg {
	case cose.AlgorithmES256, cose.AlgorithmES384, cose.AlgorithmES512, cose.AlgorithmEdDSA:
		return true
	default:
		return false
	}
}

func supportedDigestAlgorithm(alg string) bool {
	switch alg {
	case mdoc.DigestAlgorithmSHA256, mdoc.DigestAlgorithmSHA384, mdoc.DigestAlgorithmSHA512:
		return true
	default:
		return false
	}
}

// compareDottedVersions lexicographically compares two dotted-numeric
// version strings segment by segment, returning -1, 0, or 1.
func compareDottedVersions(a, b string) int {
	as, bs := splitDotted(a), splitDotted(b)
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func splitDotted(s string) []int {
	var out []int
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '.' {
			n := 0
			for _, c := range s[start:i] {
				if c < '0' || c > '9' {
					n = 0
					break
				}
				n = n*10 + int(c-'0')
			}
			out = append(out, n)
			start = i + 1
		}
	}
	return out
}
