package mdoc

import (
	"mdljarm/pkg/cbordet"
	"mdljarm/pkg/cose"
)

// IssuerSignedItem is a single signed data element (spec.md §3). Its digest
// is SHA-x over the deterministic CBOR encoding of the DataItem wrapping it,
// never over the struct's Go representation directly.
type IssuerSignedItem struct {
	DigestID          uint64 `cbor:"digestID"`
	Random            []byte `cbor:"random"`
	ElementIdentifier string `cbor:"elementIdentifier"`
	ElementValue      any    `cbor:"elementValue"`
}

// IssuerSigned holds the namespace → disclosed-item map and the issuer's
// COSE_Sign1 over the MSO. Each item is carried as its original DataItem
// bytes so a digest recomputed from it is bit-exact with issuance time.
type IssuerSigned struct {
	NameSpaces map[string][]cbordet.DataItem[IssuerSignedItem] `cbor:"nameSpaces"`
	IssuerAuth *cose.Sign1                                      `cbor:"issuerAuth"`
}

// DeviceNameSpaces is the decoded form of the device-signed namespace map:
// namespace → element identifier → value.
type DeviceNameSpaces map[string]map[string]any

// DeviceAuth carries exactly one of a device signature or device MAC.
type DeviceAuth struct {
	DeviceSignature *cose.Sign1 `cbor:"deviceSignature,omitempty"`
	DeviceMac       *cose.Mac0  `cbor:"deviceMac,omitempty"`
}

// DeviceSigned holds the device-signed namespaces (held as a DataItem so its
// bytes are exactly what device authentication was computed over) and the
// device authentication value.
type DeviceSigned struct {
	NameSpaces cbordet.DataItem[DeviceNameSpaces] `cbor:"nameSpaces"`
	DeviceAuth DeviceAuth                         `cbor:"deviceAuth"`
}

// Document is a single mdoc in a DeviceResponse: composition of issuer-signed
// and device-signed halves, replacing the inheritance the original source
// modeled (spec.md §9).
type Document struct {
	DocType      string                    `cbor:"docType"`
	IssuerSigned IssuerSigned              `cbor:"issuerSigned"`
	DeviceSigned *DeviceSigned             `cbor:"deviceSigned,omitempty"`
	Errors       map[string]map[string]int `cbor:"errors,omitempty"`
}

// DeviceResponse is the top-level response handed to a verifier.
type DeviceResponse struct {
	Version        string                `cbor:"version"`
	Documents      []Document            `cbor:"documents,omitempty"`
	DocumentErrors []map[string]int      `cbor:"documentErrors,omitempty"`
	Status         uint                  `cbor:"status"`
}

// DeviceKeyInfo carries the holder's device public key (COSE_Key bytes) and
// its authorized scope.
type DeviceKeyInfo struct {
	DeviceKey         []byte             `cbor:"deviceKey"`
	KeyAuthorizations *KeyAuthorizations `cbor:"keyAuthorizations,omitempty"`
	KeyInfo           map[int64]any      `cbor:"keyInfo,omitempty"`
}

// KeyAuthorizations scopes which namespaces/elements the device key may sign
// for in device-retained presentations.
type KeyAuthorizations struct {
	NameSpaces   []string            `cbor:"nameSpaces,omitempty"`
	DataElements map[string][]string `cbor:"dataElements,omitempty"`
}

// ValidityInfo is the signed/validFrom/validUntil/expectedUpdate window.
type ValidityInfo struct {
	Signed         cbordet.TDate  `cbor:"signed"`
	ValidFrom      cbordet.TDate  `cbor:"validFrom"`
	ValidUntil     cbordet.TDate  `cbor:"validUntil"`
	ExpectedUpdate *cbordet.TDate `cbor:"expectedUpdate,omitempty"`
}

// MobileSecurityObject is the CBOR payload of the issuer's COSE_Sign1
// (spec.md §3). Its encoded bytes are the Sign1 payload itself (not wrapped
// in a tag-24 DataItem), so they are exactly what was signed.
type MobileSecurityObject struct {
	Version         string                     `cbor:"version"`
	DigestAlgorithm string                     `cbor:"digestAlgorithm"`
	ValueDigests    map[string]map[uint64][]byte `cbor:"valueDigests"`
	DeviceKeyInfo   DeviceKeyInfo              `cbor:"deviceKeyInfo"`
	DocType         string                     `cbor:"docType"`
	ValidityInfo    ValidityInfo               `cbor:"validityInfo"`
}

// DeviceRequest is the reader's request for one or more documents.
type DeviceRequest struct {
	Version     string       `cbor:"version"`
	DocRequests []DocRequest `cbor:"docRequests"`
}

// DocRequest requests a single document type.
type DocRequest struct {
	ItemsRequest cbordet.DataItem[ItemsRequest] `cbor:"itemsRequest"`
	ReaderAuth   *cose.Sign1                    `cbor:"readerAuth,omitempty"`
}

// ItemsRequest names the requested namespaces/elements and whether the
// reader intends to retain each.
type ItemsRequest struct {
	DocType     string                    `cbor:"docType"`
	NameSpaces  map[string]map[string]bool `cbor:"nameSpaces"`
	RequestInfo map[string]any             `cbor:"requestInfo,omitempty"`
}
