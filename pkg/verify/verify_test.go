package verify

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"mdljarm/pkg/cbordet"
	"mdljarm/pkg/cose"
	"mdljarm/pkg/hostcrypto"
	"mdljarm/pkg/mdoc"
)

func generateTestChain(t *testing.T) (iaca *x509.Certificate, dsCert *x509.Certificate, dsKey *ecdsa.PrivateKey) {
	t.Helper()

	iacaKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey(iaca) error = %v", err)
	}
	iacaTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Country: []string{"SE"}, CommonName: "Test IACA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(20 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	iacaDER, err := x509.CreateCertificate(rand.Reader, iacaTemplate, iacaTemplate, &iacaKey.PublicKey, iacaKey)
	if err != nil {
		t.Fatalf("CreateCertificate(iaca) error = %v", err)
	}
	iaca, err = x509.ParseCertificate(iacaDER)
	if err != nil {
		t.Fatalf("ParseCertificate(iaca) error = %v", err)
	}

	dsKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey(ds) error = %v", err)
	}
	dsTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{Country: []string{"SE"}, Province: []string{"Stockholm"}, CommonName: "Test DS"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(3 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		BasicConstraintsValid: true,
	}
	dsDER, err := x509.CreateCertificate(rand.Reader, dsTemplate, iaca, &dsKey.PublicKey, iacaKey)
	if err != nil {
		t.Fatalf("CreateCertificate(ds) error = %v", err)
	}
	dsCert, err = x509.ParseCertificate(dsDER)
	if err != nil {
		t.Fatalf("ParseCertificate(ds) error = %v", err)
	}
	return iaca, dsCert, dsKey
}

func buildTestDocument(t *testing.T, opts testDocOpts) (mdoc.Document, *x509.Certificate, hostcrypto.Crypto) {
	t.Helper()
	cc := hostcrypto.Crypto{}
	ctx := context.Background()

	iaca, dsCert, dsKey := generateTestChain(t)
	if opts.trustAnchors != nil {
		*opts.trustAnchors = []*x509.Certificate{iaca}
	}

	deviceKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey(device) error = %v", err)
	}
	deviceCOSEKey, err := cose.KeyFromECDSA(&deviceKey.PublicKey)
	if err != nil {
		t.Fatalf("KeyFromECDSA() error = %v", err)
	}
	deviceKeyBytes, err := deviceCOSEKey.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	b := mdoc.NewMSOBuilder(cc, mdoc.DocType).
		WithDigestAlgorithm(mdoc.DigestAlgorithmSHA256).
		WithValidity(time.Now().UTC().Add(-time.Minute), time.Now().UTC().Add(time.Hour)).
		WithDeviceKey(deviceCOSEKey).
		WithSigner(dsKey, cose.AlgorithmES256, [][]byte{dsCert.Raw})

	if err := b.AddDataElement(ctx, mdoc.Namespace, "given_name", "Jane"); err != nil {
		t.Fatalf("AddDataElement() error = %v", err)
	}
	if err := b.AddDataElement(ctx, mdoc.Namespace, "issuing_country", "SE"); err != nil {
		t.Fatalf("AddDataElement() error = %v", err)
	}

	signed, nameSpaces, err := b.Build(ctx)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if opts.tamperIssuerAuth {
		tampered := *signed
		tampered.Payload = append([]byte{}, signed.Payload...)
		tampered.Payload[0] ^= 0xFF
		signed = &tampered
	}

	deviceNameSpaces, err := cbordet.NewDataItem[mdoc.DeviceNameSpaces](mdoc.DeviceNameSpaces{})
	if err != nil {
		t.Fatalf("NewDataItem() error = %v", err)
	}

	payload, err := cbordet.Marshal([]any{"DeviceAuthentication", opts.transcriptValue(), mdoc.DocType, deviceNameSpaces})
	if err != nil {
		t.Fatalf("Marshal(DeviceAuthentication) error = %v", err)
	}

	deviceSign1, err := cose.SignDetached(ctx, cc, payload, deviceKey, cose.AlgorithmES256, nil, nil)
	if err != nil {
		t.Fatalf("SignDetached() error = %v", err)
	}

	doc := mdoc.Document{
		DocType: mdoc.DocType,
		IssuerSigned: mdoc.IssuerSigned{
			NameSpaces: nameSpaces,
			IssuerAuth: signed,
		},
		DeviceSigned: &mdoc.DeviceSigned{
			NameSpaces: deviceNameSpaces,
			DeviceAuth: mdoc.DeviceAuth{DeviceSignature: deviceSign1},
		},
	}
	if opts.documentErrors != nil {
		doc.Errors = opts.documentErrors
	}
	return doc, dsCert, cc
}

type testDocOpts struct {
	trustAnchors     *[]*x509.Certificate
	tamperIssuerAuth bool
	documentErrors   map[string]map[string]int
}

func (testDocOpts) transcriptValue() []any {
	return []any{nil, nil, "web"}
}

func transcriptBytes(t *testing.T) []byte {
	t.Helper()
	b, err := cbordet.Marshal([]any{nil, nil, "web"})
	if err != nil {
		t.Fatalf("Marshal(transcript) error = %v", err)
	}
	return b
}

func collectingCallback() (Callback, *[]Assessment) {
	var out []Assessment
	return func(a Assessment) { out = append(out, a) }, &out
}

func findStatus(assessments []Assessment, check string) (Status, bool) {
	for _, a := range assessments {
		if a.Check == check {
			return a.Status, true
		}
	}
	return "", false
}

func TestVerifyResponseAcceptsValidDocument(t *testing.T) {
	var anchors []*x509.Certificate
	doc, _, cc := buildTestDocument(t, testDocOpts{trustAnchors: &anchors})

	v := NewVerifier(cc, hostcrypto.X509{})
	emit, got := collectingCallback()
	valid, err := v.VerifyResponse(context.Background(), &mdoc.DeviceResponse{
		Version:   "1.0",
		Documents: []mdoc.Document{doc},
	}, Options{
		TrustAnchors:           anchors,
		SessionTranscriptBytes: transcriptBytes(t),
	}, emit)
	if err != nil {
		t.Fatalf("VerifyResponse() error = %v", err)
	}
	if !valid {
		for _, a := range *got {
			if a.Status == StatusFail {
				t.Logf("FAIL %s/%s: %s", a.Category, a.Check, a.Reason)
			}
		}
		t.Fatal("VerifyResponse() valid = false, want true")
	}
	if status, ok := findStatus(*got, "signature_valid"); !ok || status != StatusPass {
		t.Errorf("signature_valid = %v, %v, want PASS", status, ok)
	}
	if status, ok := findStatus(*got, "device_signature_valid"); !ok || status != StatusPass {
		t.Errorf("device_signature_valid = %v, %v, want PASS", status, ok)
	}
	if status, ok := findStatus(*got, "issuing_country_matches_certificate"); !ok || status != StatusPass {
		t.Errorf("issuing_country_matches_certificate = %v, %v, want PASS", status, ok)
	}
}

func TestVerifyResponseRejectsTamperedIssuerAuth(t *testing.T) {
	var anchors []*x509.Certificate
	doc, _, cc := buildTestDocument(t, testDocOpts{trustAnchors: &anchors, tamperIssuerAuth: true})

	v := NewVerifier(cc, hostcrypto.X509{})
	emit, got := collectingCallback()
	valid, err := v.VerifyResponse(context.Background(), &mdoc.DeviceResponse{
		Version:   "1.0",
		Documents: []mdoc.Document{doc},
	}, Options{
		TrustAnchors:           anchors,
		SessionTranscriptBytes: transcriptBytes(t),
	}, emit)
	if err != nil {
		t.Fatalf("VerifyResponse() error = %v", err)
	}
	if valid {
		t.Fatal("VerifyResponse() valid = true, want false for tampered issuer auth")
	}
	if status, ok := findStatus(*got, "signature_valid"); !ok || status != StatusFail {
		t.Errorf("signature_valid = %v, %v, want FAIL", status, ok)
	}
}

func TestVerifyResponseRequiresTrustAnchorsUnlessSkipped(t *testing.T) {
	var anchors []*x509.Certificate
	doc, _, cc := buildTestDocument(t, testDocOpts{trustAnchors: &anchors})

	v := NewVerifier(cc, hostcrypto.X509{})
	emit, _ := collectingCallback()
	_, err := v.VerifyResponse(context.Background(), &mdoc.DeviceResponse{
		Version:   "1.0",
		Documents: []mdoc.Document{doc},
	}, Options{SessionTranscriptBytes: transcriptBytes(t)}, emit)
	if err == nil {
		t.Fatal("expected error when no trust anchors are configured")
	}
}

func TestVerifyResponseSkipTrustChainCheck(t *testing.T) {
	doc, _, cc := buildTestDocument(t, testDocOpts{})

	v := NewVerifier(cc, hostcrypto.X509{})
	emit, got := collectingCallback()
	valid, err := v.VerifyResponse(context.Background(), &mdoc.DeviceResponse{
		Version:   "1.0",
		Documents: []mdoc.Document{doc},
	}, Options{SkipTrustChainCheck: true, SessionTranscriptBytes: transcriptBytes(t)}, emit)
	if err != nil {
		t.Fatalf("VerifyResponse() error = %v", err)
	}
	if !valid {
		t.Fatal("VerifyResponse() valid = false, want true with trust chain check skipped")
	}
	if _, ok := findStatus(*got, "trust_chain_valid"); ok {
		t.Error("trust_chain_valid assessment emitted despite SkipTrustChainCheck")
	}
}

func TestCheckDocumentFormatRejectsEmptyDocuments(t *testing.T) {
	v := NewVerifier(hostcrypto.Crypto{}, hostcrypto.X509{})
	emit, got := collectingCallback()
	valid, err := v.VerifyResponse(context.Background(), &mdoc.DeviceResponse{Version: "1.0"}, Options{}, emit)
	if err != nil {
		t.Fatalf("VerifyResponse() error = %v", err)
	}
	if valid {
		t.Fatal("VerifyResponse() valid = true, want false for empty documents")
	}
	if status, ok := findStatus(*got, "documents_non_empty"); !ok || status != StatusFail {
		t.Errorf("documents_non_empty = %v, %v, want FAIL", status, ok)
	}
}

func TestCheckDocumentFormatRejectsOldVersion(t *testing.T) {
	v := NewVerifier(hostcrypto.Crypto{}, hostcrypto.X509{})
	emit, got := collectingCallback()
	v.VerifyResponse(context.Background(), &mdoc.DeviceResponse{Version: "0.9"}, Options{}, emit)
	if status, ok := findStatus(*got, "version_at_least_1_0"); !ok || status != StatusFail {
		t.Errorf("version_at_least_1_0 = %v, %v, want FAIL", status, ok)
	}
}

func TestCompareDottedVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.1", "1.0", 1},
		{"0.9", "1.0", -1},
		{"1.10", "1.9", 1},
	}
	for _, c := range cases {
		if got := compareDottedVersions(c.a, c.b); got != c.want {
			t.Errorf("compareDottedVersions(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
