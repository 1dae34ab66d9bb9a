// Package present implements the device-response builder (C7): selective
// disclosure of mdoc namespaces against a Presentation Definition, and
// signature- or MAC-based device authentication over the result.
package present

import (
	"context"
	"crypto"
	"regexp"
	"strconv"

	"mdljarm/pkg/cbordet"
	"mdljarm/pkg/cose"
	"mdljarm/pkg/coreerr"
	"mdljarm/pkg/hostctx"
	"mdljarm/pkg/mdoc"
)

// FieldConstraint is one `constraints.fields[]` entry of an input descriptor.
// Path holds alternative JSONPath-bracket-form candidates (`$['ns']['id']`);
// the first one that parses as a bracket-form path is used, whether or not
// the document's namespaces contain it.
type FieldConstraint struct {
	Path []string `json:"path"`
}

// Constraints is an input descriptor's field-selection clause.
type Constraints struct {
	Fields []FieldConstraint `json:"fields"`
}

// InputDescriptor requests one document by docType (ID) and a set of fields.
type InputDescriptor struct {
	ID          string      `json:"id"`
	Constraints Constraints `json:"constraints"`
}

// PresentationDefinition is the subset of a DIF Presentation Definition this
// builder consumes.
type PresentationDefinition struct {
	ID               string            `json:"id"`
	InputDescriptors []InputDescriptor `json:"input_descriptors"`
}

// SessionTranscript is `[deviceEngagementBytes|null, eReaderKeyBytes|null, handover]`.
// DeviceEngagementBytes and EReaderKeyBytes, when present, are the raw
// deterministic CBOR encodings embedded as tag-24 DataItems; Handover is any
// CBOR-marshalable value (commonly a 3-element array for QR/NFC handover, or
// an OpenID4VP handover structure).
type SessionTranscript struct {
	DeviceEngagementBytes []byte
	EReaderKeyBytes       []byte
	Handover              any
}

// value returns the session transcript as the array value embedded both in
// DeviceAuthentication and (via its deterministic bytes) in the ephemeral MAC
// key derivation.
func (st SessionTranscript) value() []any {
	var de, ek any
	if st.DeviceEngagementBytes != nil {
		de = cbordet.Tag{Number: cbordet.TagEncodedCBOR, Content: st.DeviceEngagementBytes}
	}
	if st.EReaderKeyBytes != nil {
		ek = cbordet.Tag{Number: cbordet.TagEncodedCBOR, Content: st.EReaderKeyBytes}
	}
	return []any{de, ek, st.Handover}
}

func (st SessionTranscript) bytes() ([]byte, error) {
	return cbordet.Marshal(st.value())
}

// isSet reports whether a handover has been configured; an unset transcript
// is the HandoverNotSet validation failure.
func (st SessionTranscript) isSet() bool {
	return st.Handover != nil
}

var bracketPathPattern = regexp.MustCompile(`^\$\['([^']+)'\]\['([^']+)'\]$`)

// parseBracketPath splits a `$['ns']['id']` JSONPath-bracket field path into
// its namespace and element identifier.
func parseBracketPath(path string) (namespace, elementID string, ok bool) {
	m := bracketPathPattern.FindStringSubmatch(path)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

var ageOverIdentifierPattern = regexp.MustCompile(`^age_over_(\d+)$`)

func parseAgeOverQuery(elementID string) (threshold uint, ok bool) {
	m := ageOverIdentifierPattern.FindStringSubmatch(elementID)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseUint(m[1], 10, 0)
	if err != nil {
		return 0, false
	}
	return uint(n), true
}

// DeviceResponseBuilder assembles a DeviceResponse by selectively disclosing
// one or more issuer-signed documents per a PresentationDefinition, then
// device-authenticating the result by signature or by MAC.
type DeviceResponseBuilder struct {
	cc hostctx.CryptoContext

	docs map[string]mdoc.IssuerSigned
	pd   PresentationDefinition
	st   SessionTranscript

	signingKey crypto.PrivateKey
	signingAlg int64
	signingKID string

	macDevicePrivate      crypto.PrivateKey
	macReaderEphemeralPub crypto.PublicKey
	useMAC                bool

	errors map[string]map[string]int
}

// NewDeviceResponseBuilder creates a builder that digests/signs/MACs through cc.
func NewDeviceResponseBuilder(cc hostctx.CryptoContext) *DeviceResponseBuilder {
	return &DeviceResponseBuilder{
		cc:     cc,
		docs:   make(map[string]mdoc.IssuerSigned),
		errors: make(map[string]map[string]int),
	}
}

// WithDocument registers the full issuer-signed data for docType, the source
// selective disclosure draws from.
func (b *DeviceResponseBuilder) WithDocument(docType string, issuerSigned mdoc.IssuerSigned) *DeviceResponseBuilder {
	b.docs[docType] = issuerSigned
	return b
}

// WithPresentationDefinition sets the request driving disclosure.
func (b *DeviceResponseBuilder) WithPresentationDefinition(pd PresentationDefinition) *DeviceResponseBuilder {
	b.pd = pd
	return b
}

// WithSessionTranscript sets the session transcript device authentication is
// computed over.
func (b *DeviceResponseBuilder) WithSessionTranscript(st SessionTranscript) *DeviceResponseBuilder {
	b.st = st
	return b
}

// WithDeviceSigningKey configures the signature variant of device auth.
func (b *DeviceResponseBuilder) WithDeviceSigningKey(key crypto.PrivateKey, alg int64, kid string) *DeviceResponseBuilder {
	b.signingKey = key
	b.signingAlg = alg
	b.signingKID = kid
	b.useMAC = false
	return b
}

// WithDeviceMACKeys configures the MAC variant: the device's own private key
// and the reader's ephemeral public key, from which cc derives the shared
// MAC key per spec.md §4.6.
func (b *DeviceResponseBuilder) WithDeviceMACKeys(devicePrivate crypto.PrivateKey, readerEphemeralPublic crypto.PublicKey) *DeviceResponseBuilder {
	b.macDevicePrivate = devicePrivate
	b.macReaderEphemeralPub = readerEphemeralPublic
	b.useMAC = true
	return b
}

// AddError records a per-element disclosure error (spec.md Table 8 codes:
// 0 = not returned, 10 = not available, 11 = not releasable by holder).
func (b *DeviceResponseBuilder) AddError(namespace, element string, code int) *DeviceResponseBuilder {
	if b.errors[namespace] == nil {
		b.errors[namespace] = make(map[string]int)
	}
	b.errors[namespace][element] = code
	return b
}

// Error codes per ISO 18013-5:2021 Table 8.
const (
	ErrorDataNotReturned   = 0
	ErrorDataNotAvailable  = 10
	ErrorDataNotReleasable = 11
)

// Build runs selective disclosure against every requested document and signs
// or MACs the result.
func (b *DeviceResponseBuilder) Build(ctx context.Context) (*mdoc.DeviceResponse, error) {
	if len(b.pd.InputDescriptors) == 0 {
		return nil, coreerr.New(coreerr.KindEmptyPresentationDefinition, "presentation definition has no input descriptors")
	}
	seen := make(map[string]bool, len(b.pd.InputDescriptors))
	for _, d := range b.pd.InputDescriptors {
		if seen[d.ID] {
			return nil, coreerr.New(coreerr.KindDuplicateInputDescriptorId, "duplicate input_descriptor id: "+d.ID)
		}
		seen[d.ID] = true
	}
	if !b.st.isSet() {
		return nil, coreerr.New(coreerr.KindHandoverNotSet, "session transcript handover is required")
	}
	if !b.useMAC && b.signingKey == nil {
		return nil, coreerr.New(coreerr.KindKeyNotSet, "device signing key is required")
	}
	if b.useMAC && (b.macDevicePrivate == nil || b.macReaderEphemeralPub == nil) {
		return nil, coreerr.New(coreerr.KindKeyNotSet, "device and reader ephemeral keys are required for MAC device auth")
	}

	documents := make([]mdoc.Document, 0, len(b.pd.InputDescriptors))
	for _, descriptor := range b.pd.InputDescriptors {
		doc, err := b.buildDocument(ctx, descriptor)
		if err != nil {
			return nil, err
		}
		documents = append(documents, doc)
	}

	return &mdoc.DeviceResponse{
		Version:   "1.0",
		Documents: documents,
		Status:    0,
	}, nil
}

func (b *DeviceResponseBuilder) buildDocument(ctx context.Context, descriptor InputDescriptor) (mdoc.Document, error) {
	issuerSigned, ok := b.docs[descriptor.ID]
	if !ok {
		return mdoc.Document{}, coreerr.New(coreerr.KindDocTypeNotFound, "no issuer-signed data registered for docType "+descriptor.ID)
	}

	disclosed := make(map[string][]cbordet.DataItem[mdoc.IssuerSignedItem])
	docErrors := make(map[string]map[string]int)
	recordError := func(namespace, elementID string, code int) {
		if docErrors[namespace] == nil {
			docErrors[namespace] = make(map[string]int)
		}
		docErrors[namespace][elementID] = code
	}

	for _, field := range descriptor.Constraints.Fields {
		namespace, elementID, ok := b.resolveFirstPath(field.Path)
		if !ok {
			continue
		}
		items, ok := issuerSigned.NameSpaces[namespace]
		if !ok {
			recordError(namespace, elementID, ErrorDataNotAvailable)
			continue
		}

		di, found, err := resolveField(items, elementID)
		if err != nil {
			return mdoc.Document{}, err
		}
		if !found {
			recordError(namespace, elementID, ErrorDataNotAvailable)
			continue
		}
		disclosed[namespace] = append(disclosed[namespace], di)
	}

	deviceNameSpaces := mdoc.DeviceNameSpaces{}
	deviceNameSpacesItem, err := cbordet.NewDataItem(deviceNameSpaces)
	if err != nil {
		return mdoc.Document{}, coreerr.Wrap(coreerr.KindInvalidMajorType, "encode device namespaces", err)
	}

	deviceAuth, err := b.buildDeviceAuth(ctx, descriptor.ID, deviceNameSpacesItem)
	if err != nil {
		return mdoc.Document{}, err
	}

	doc := mdoc.Document{
		DocType: descriptor.ID,
		IssuerSigned: mdoc.IssuerSigned{
			NameSpaces: disclosed,
			IssuerAuth: issuerSigned.IssuerAuth,
		},
		DeviceSigned: &mdoc.DeviceSigned{
			NameSpaces: deviceNameSpacesItem,
			DeviceAuth: deviceAuth,
		},
	}
	for namespace, elems := range b.errors {
		for element, code := range elems {
			recordError(namespace, element, code)
		}
	}
	if len(docErrors) > 0 {
		doc.Errors = docErrors
	}
	return doc, nil
}

// resolveFirstPath tries each alternative path in order and returns the first
// that parses as a bracket-form field path.
func (b *DeviceResponseBuilder) resolveFirstPath(paths []string) (namespace, elementID string, ok bool) {
	for _, p := range paths {
		if ns, id, ok := parseBracketPath(p); ok {
			return ns, id, true
		}
	}
	return "", "", false
}

func resolveField(items []cbordet.DataItem[mdoc.IssuerSignedItem], elementID string) (cbordet.DataItem[mdoc.IssuerSignedItem], bool, error) {
	if threshold, ok := parseAgeOverQuery(elementID); ok {
		return resolveAgeOver(items, threshold)
	}

	for _, di := range items {
		item, err := di.Value()
		if err != nil {
			return cbordet.DataItem[mdoc.IssuerSignedItem]{}, false, coreerr.Wrap(coreerr.KindInvalidMajorType, "decode IssuerSignedItem", err)
		}
		if item.ElementIdentifier == elementID {
			return di, true, nil
		}
	}
	return cbordet.DataItem[mdoc.IssuerSignedItem]{}, false, nil
}

// resolveAgeOver implements spec.md §4.6's age_over_NN disclosure algorithm:
// among items identified age_over_<k>, prefer the smallest k ≥ NN with value
// true; else the largest k ≤ NN with value false; else omit.
func resolveAgeOver(items []cbordet.DataItem[mdoc.IssuerSignedItem], threshold uint) (cbordet.DataItem[mdoc.IssuerSignedItem], bool, error) {
	var bestTrue, bestFalse cbordet.DataItem[mdoc.IssuerSignedItem]
	var bestTrueK, bestFalseK uint
	haveTrue, haveFalse := false, false

	for _, di := range items {
		item, err := di.Value()
		if err != nil {
			return cbordet.DataItem[mdoc.IssuerSignedItem]{}, false, coreerr.Wrap(coreerr.KindInvalidMajorType, "decode IssuerSignedItem", err)
		}
		k, ok := parseAgeOverQuery(item.ElementIdentifier)
		if !ok {
			continue
		}
		val, ok := item.ElementValue.(bool)
		if !ok {
			continue
		}

		if val && k >= threshold && (!haveTrue || k < bestTrueK) {
			bestTrue, bestTrueK, haveTrue = di, k, true
		}
		if !val && k <= threshold && (!haveFalse || k > bestFalseK) {
			bestFalse, bestFalseK, haveFalse = di, k, true
		}
	}

	if haveTrue {
		return bestTrue, true, nil
	}
	if haveFalse {
		return bestFalse, true, nil
	}
	return cbordet.DataItem[mdoc.IssuerSignedItem]{}, false, nil
}

// buildDeviceAuth computes DeviceAuthentication bytes and signs or MACs them.
func (b *DeviceResponseBuilder) buildDeviceAuth(ctx context.Context, docType string, deviceNameSpaces cbordet.DataItem[mdoc.DeviceNameSpaces]) (mdoc.DeviceAuth, error) {
	payload, err := cbordet.Marshal([]any{"DeviceAuthentication", b.st.value(), docType, deviceNameSpaces})
	if err != nil {
		return mdoc.DeviceAuth{}, coreerr.Wrap(coreerr.KindInvalidMajorType, "encode DeviceAuthentication", err)
	}

	if b.useMAC {
		transcriptBytes, err := b.st.bytes()
		if err != nil {
			return mdoc.DeviceAuth{}, coreerr.Wrap(coreerr.KindInvalidMajorType, "encode session transcript", err)
		}
		macKey, err := b.cc.CalculateEphemeralMacKey(ctx, hostctx.EphemeralMacKeyParams{
			DevicePrivateKey:       b.macDevicePrivate,
			ReaderEphemeralPublic:  b.macReaderEphemeralPub,
			SessionTranscriptBytes: transcriptBytes,
		})
		if err != nil {
			return mdoc.DeviceAuth{}, coreerr.Capability(err)
		}
		mac0, err := cose.MakeMac0(ctx, b.cc, payload, macKey, cose.AlgorithmHMAC256, nil)
		if err != nil {
			return mdoc.DeviceAuth{}, err
		}
		mac0.Payload = nil
		return mdoc.DeviceAuth{DeviceMac: mac0}, nil
	}

	sign1, err := cose.SignDetached(ctx, b.cc, payload, b.signingKey, b.signingAlg, nil, nil)
	if err != nil {
		return mdoc.DeviceAuth{}, err
	}
	if b.signingKID != "" {
		sign1.Unprotected[cose.HeaderKeyID] = []byte(b.signingKID)
	}
	return mdoc.DeviceAuth{DeviceSignature: sign1}, nil
}
