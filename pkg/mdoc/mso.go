package mdoc

import (
	"context"
	"crypto"
	"sort"
	"time"

	"mdljarm/pkg/cbordet"
	"mdljarm/pkg/cose"
	"mdljarm/pkg/coreerr"
	"mdljarm/pkg/hostctx"
)

// Digest algorithm names, matching the string hostctx.CryptoContext.Digest
// expects directly — no separate translation table.
const (
	DigestAlgorithmSHA256 = "SHA-256"
	DigestAlgorithmSHA384 = "SHA-384"
	DigestAlgorithmSHA512 = "SHA-512"
)

const mdocVersion = "1.0"
const randomSaltBytes = 32

// MSOBuilder builds a Mobile Security Object and the matching IssuerSigned
// namespace map, digesting through an injected hostctx.CryptoContext rather
// than a hardcoded hash package.
type MSOBuilder struct {
	cc hostctx.CryptoContext

	docType         string
	digestAlgorithm string
	signed          time.Time
	validFrom       time.Time
	validUntil      time.Time
	expectedUpdate  *time.Time
	deviceKey       *cose.Key

	signerKey    crypto.PrivateKey
	signerAlg    int64
	signerChain  [][]byte

	namespaces      map[string][]IssuerSignedItem
	digestIDCounter map[string]uint64
}

// NewMSOBuilder creates a builder for docType, digesting via cc.
func NewMSOBuilder(cc hostctx.CryptoContext, docType string) *MSOBuilder {
	return &MSOBuilder{
		cc:              cc,
		docType:         docType,
		digestAlgorithm: DigestAlgorithmSHA256,
		namespaces:      make(map[string][]IssuerSignedItem),
		digestIDCounter: make(map[string]uint64),
	}
}

// WithDigestAlgorithm sets the digest algorithm ("SHA-256", "SHA-384", or
// "SHA-512").
func (b *MSOBuilder) WithDigestAlgorithm(alg string) *MSOBuilder {
	b.digestAlgorithm = alg
	return b
}

// WithValidity sets the signed document's validity window.
func (b *MSOBuilder) WithValidity(from, until time.Time) *MSOBuilder {
	b.validFrom = from
	b.validUntil = until
	return b
}

// WithExpectedUpdate sets the optional expected-update timestamp.
func (b *MSOBuilder) WithExpectedUpdate(t time.Time) *MSOBuilder {
	b.expectedUpdate = &t
	return b
}

// WithSigned sets the timestamp recorded as ValidityInfo.Signed, defaulting
// to time.Now() when unset.
func (b *MSOBuilder) WithSigned(t time.Time) *MSOBuilder {
	b.signed = t
	return b
}

// WithDeviceKey sets the holder's device public key.
func (b *MSOBuilder) WithDeviceKey(key *cose.Key) *MSOBuilder {
	b.deviceKey = key
	return b
}

// WithSigner sets the issuer signing key, its COSE algorithm label, and its
// certificate chain (leaf first), carried as the issuerAuth x5chain header.
func (b *MSOBuilder) WithSigner(key crypto.PrivateKey, alg int64, chain [][]byte) *MSOBuilder {
	b.signerKey = key
	b.signerAlg = alg
	b.signerChain = chain
	return b
}

// AddDataElement adds a namespace/elementID/value triple, assigning it the
// next digest ID in that namespace and a fresh random salt.
func (b *MSOBuilder) AddDataElement(ctx context.Context, namespace, elementID string, value any) error {
	salt, err := b.cc.GetRandomValues(ctx, randomSaltBytes)
	if err != nil {
		return coreerr.Capability(err)
	}

	digestID := b.digestIDCounter[namespace]
	b.digestIDCounter[namespace]++

	b.namespaces[namespace] = append(b.namespaces[namespace], IssuerSignedItem{
		DigestID:          digestID,
		Random:            salt,
		ElementIdentifier: elementID,
		ElementValue:      value,
	})
	return nil
}

// Build computes digests over every added element, assembles and signs the
// MSO, and returns the issuerAuth COSE_Sign1 together with the namespace map
// ready to embed in an IssuerSigned.
func (b *MSOBuilder) Build(ctx context.Context) (*cose.Sign1, map[string][]cbordet.DataItem[IssuerSignedItem], error) {
	if b.signerKey == nil {
		return nil, nil, coreerr.New(coreerr.KindKeyNotSet, "MSO signer key is required")
	}
	if b.deviceKey == nil {
		return nil, nil, coreerr.New(coreerr.KindMissingField, "MSO device key is required")
	}
	if b.validFrom.IsZero() || b.validUntil.IsZero() {
		return nil, nil, coreerr.New(coreerr.KindMissingField, "MSO validity period is required")
	}

	nameSpaces := make(map[string][]cbordet.DataItem[IssuerSignedItem])
	valueDigests := make(map[string]map[uint64][]byte)

	for namespace, items := range b.namespaces {
		wrapped := make([]cbordet.DataItem[IssuerSignedItem], 0, len(items))
		digests := make(map[uint64][]byte, len(items))

		for _, item := range items {
			di, err := cbordet.NewDataItem(item)
			if err != nil {
				return nil, nil, coreerr.Wrap(coreerr.KindInvalidMajorType, "encode IssuerSignedItem", err)
			}
			digest, err := b.cc.Digest(ctx, b.digestAlgorithm, di.Bytes())
			if err != nil {
				return nil, nil, coreerr.Capability(err)
			}
			wrapped = append(wrapped, di)
			digests[item.DigestID] = digest
		}

		nameSpaces[namespace] = wrapped
		valueDigests[namespace] = digests
	}

	deviceKeyBytes, err := b.deviceKey.Bytes()
	if err != nil {
		return nil, nil, coreerr.Wrap(coreerr.KindInvalidMajorType, "encode device key", err)
	}

	signedAt := b.signed
	if signedAt.IsZero() {
		signedAt = time.Now()
	}

	mso := MobileSecurityObject{
		Version:         mdocVersion,
		DigestAlgorithm: b.digestAlgorithm,
		ValueDigests:    valueDigests,
		DeviceKeyInfo:   DeviceKeyInfo{DeviceKey: deviceKeyBytes},
		DocType:         b.docType,
		ValidityInfo: ValidityInfo{
			Signed:     cbordet.TDate(signedAt.UTC().Format(time.RFC3339)),
			ValidFrom:  cbordet.TDate(b.validFrom.UTC().Format(time.RFC3339)),
			ValidUntil: cbordet.TDate(b.validUntil.UTC().Format(time.RFC3339)),
		},
	}
	if b.expectedUpdate != nil {
		t := cbordet.TDate(b.expectedUpdate.UTC().Format(time.RFC3339))
		mso.ValidityInfo.ExpectedUpdate = &t
	}

	msoBytes, err := cbordet.Marshal(mso)
	if err != nil {
		return nil, nil, coreerr.Wrap(coreerr.KindInvalidMajorType, "encode MSO", err)
	}

	signed, err := cose.Sign(ctx, b.cc, msoBytes, b.signerKey, b.signerAlg, b.signerChain, nil)
	if err != nil {
		return nil, nil, err
	}

	return signed, nameSpaces, nil
}

// VerifyMSO checks the issuerAuth signature and decodes the MSO payload.
func VerifyMSO(ctx context.Context, cc hostctx.CryptoContext, signed *cose.Sign1, issuerPublicKey crypto.PublicKey) (*MobileSecurityObject, error) {
	if err := cose.Verify(ctx, cc, signed, issuerPublicKey, nil, nil); err != nil {
		return nil, err
	}
	var mso MobileSecurityObject
	if err := cbordet.Unmarshal(signed.Payload, &mso); err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidMajorType, "decode MSO", err)
	}
	return &mso, nil
}

// VerifyDigest checks that di's digest, as recomputed through cc, matches
// the value the MSO recorded for namespace/item.DigestID.
func VerifyDigest(ctx context.Context, cc hostctx.CryptoContext, mso *MobileSecurityObject, namespace string, di cbordet.DataItem[IssuerSignedItem]) error {
	nsDigests, ok := mso.ValueDigests[namespace]
	if !ok {
		return coreerr.New(coreerr.KindDocTypeNotFound, "namespace not found in MSO: "+namespace)
	}

	item, err := di.Value()
	if err != nil {
		return coreerr.Wrap(coreerr.KindInvalidMajorType, "decode IssuerSignedItem", err)
	}

	expected, ok := nsDigests[item.DigestID]
	if !ok {
		return coreerr.New(coreerr.KindMissingField, "digest ID not found in namespace")
	}

	actual, err := cc.Digest(ctx, mso.DigestAlgorithm, di.Bytes())
	if err != nil {
		return coreerr.Capability(err)
	}
	if !bytesEqual(actual, expected) {
		return coreerr.New(coreerr.KindSignatureInvalid, "digest mismatch for "+namespace+"/"+item.ElementIdentifier)
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ValidateMSOValidity checks that now falls within the MSO's validity window.
func ValidateMSOValidity(mso *MobileSecurityObject, now time.Time) error {
	from, err := time.Parse(time.RFC3339, string(mso.ValidityInfo.ValidFrom))
	if err != nil {
		return coreerr.Wrap(coreerr.KindInvalidMajorType, "parse validFrom", err)
	}
	until, err := time.Parse(time.RFC3339, string(mso.ValidityInfo.ValidUntil))
	if err != nil {
		return coreerr.Wrap(coreerr.KindInvalidMajorType, "parse validUntil", err)
	}

	if now.Before(from) {
		return coreerr.New(coreerr.KindSignatureInvalid, "MSO not yet valid")
	}
	if now.After(until) {
		return coreerr.New(coreerr.KindSignatureInvalid, "MSO expired")
	}
	return nil
}

// GetDigestIDs returns all digest IDs for a namespace in sorted order.
func GetDigestIDs(mso *MobileSecurityObject, namespace string) []uint64 {
	nsDigests, ok := mso.ValueDigests[namespace]
	if !ok {
		return nil
	}
	ids := make([]uint64, 0, len(nsDigests))
	for id := range nsDigests {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MSOInfo is display-oriented information extracted from an MSO.
type MSOInfo struct {
	Version         string
	DigestAlgorithm string
	DocType         string
	Signed          string
	ValidFrom       string
	ValidUntil      string
	Namespaces      []string
	DigestCount     int
}

// GetMSOInfo extracts MSOInfo from mso.
func GetMSOInfo(mso *MobileSecurityObject) MSOInfo {
	namespaces := make([]string, 0, len(mso.ValueDigests))
	digestCount := 0
	for ns, digests := range mso.ValueDigests {
		namespaces = append(namespaces, ns)
		digestCount += len(digests)
	}
	sort.Strings(namespaces)

	return MSOInfo{
		Version:         mso.Version,
		DigestAlgorithm: mso.DigestAlgorithm,
		DocType:         mso.DocType,
		Signed:          string(mso.ValidityInfo.Signed),
		ValidFrom:       string(mso.ValidityInfo.ValidFrom),
		ValidUntil:      string(mso.ValidityInfo.ValidUntil),
		Namespaces:      namespaces,
		DigestCount:     digestCount,
	}
}
