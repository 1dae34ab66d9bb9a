package josekey

import (
	"encoding/pem"

	"mdljarm/pkg/coreerr"
)

// This file implements the minimal hand-rolled ASN.1 DER walker spec.md
// §4.5 calls for: a tag/length/value walk supporting multi-byte tags and
// long-form lengths, sufficient to locate curve OIDs and a certificate's
// SubjectPublicKeyInfo without pulling in a general-purpose ASN.1 decoder.
// Grounded on the one place the teacher hand-rolls ASN.1 itself:
// dc4eu-vc/pkg/mdoc/cose.go's parseASN1Signature, generalized from a single
// SEQUENCE of two INTEGERs to arbitrary nested DER structures.

// derTag classifies the leading identifier octet.
type derTag byte

const (
	tagInteger      derTag = 0x02
	tagBitString    derTag = 0x03
	tagOctetString  derTag = 0x04
	tagObjectID     derTag = 0x06
	tagSequence     derTag = 0x30
	tagContext0     derTag = 0xA0 // constructed, context-specific, tag 0
)

// derNode is one parsed DER TLV element.
type derNode struct {
	Tag     derTag
	Content []byte // the V in TLV; for constructed types, the raw children bytes
}

// parseDER parses a single top-level TLV from data and returns it along
// with the number of bytes consumed.
func parseDER(data []byte) (derNode, int, error) {
	if len(data) < 2 {
		return derNode{}, 0, coreerr.New(coreerr.KindInvalidASN1, "truncated DER element")
	}

	tag := derTag(data[0])

	// High-tag-number form: the tag number continues in further octets while
	// bit 8 is set; Tag keeps only the first octet.
	tagLen := 1
	if data[0]&0x1f == 0x1f {
		for tagLen < len(data) && data[tagLen]&0x80 != 0 {
			tagLen++
		}
		if tagLen++; tagLen >= len(data) {
			return derNode{}, 0, coreerr.New(coreerr.KindInvalidASN1, "truncated DER tag")
		}
	}

	lengthByte := data[tagLen]
	var length, lenFieldSize int
	switch {
	case lengthByte&0x80 == 0:
		// short form
		length = int(lengthByte)
		lenFieldSize = 1
	default:
		// long form: low 7 bits of lengthByte count the following length octets
		numOctets := int(lengthByte & 0x7f)
		if numOctets == 0 || numOctets > 4 || len(data) < tagLen+1+numOctets {
			return derNode{}, 0, coreerr.New(coreerr.KindInvalidASN1, "unsupported or truncated long-form length")
		}
		length = 0
		for i := 0; i < numOctets; i++ {
			length = (length << 8) | int(data[tagLen+1+i])
		}
		lenFieldSize = 1 + numOctets
	}

	start := tagLen + lenFieldSize
	end := start + length
	if end > len(data) {
		return derNode{}, 0, coreerr.New(coreerr.KindInvalidASN1, "DER element length exceeds input")
	}

	return derNode{Tag: tag, Content: data[start:end]}, end, nil
}

// parseDERSequence parses a top-level SEQUENCE and returns its immediate
// children as a flat list of DER nodes.
func parseDERSequence(data []byte) ([]derNode, error) {
	node, consumed, err := parseDER(data)
	if err != nil {
		return nil, err
	}
	if node.Tag != tagSequence {
		return nil, coreerr.New(coreerr.KindInvalidASN1, "expected SEQUENCE")
	}
	_ = consumed

	var children []derNode
	rest := node.Content
	for len(rest) > 0 {
		child, n, err := parseDER(rest)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
		rest = rest[n:]
	}
	return children, nil
}

// spkiFromCertificate locates the SubjectPublicKeyInfo inside a DER-encoded
// X.509 certificate by walking tbsCertificate's top-level elements.
//
// tbsCertificate ::= SEQUENCE {
//   version    [0] EXPLICIT INTEGER DEFAULT v1,  -- present only for v2/v3
//   serialNumber    INTEGER,
//   signature       AlgorithmIdentifier,
//   issuer          Name,
//   validity        Validity,
//   subject         Name,
//   subjectPublicKeyInfo SubjectPublicKeyInfo,
//   ... }
//
// Open Question (spec.md §9) resolved: accept the heuristic of checking
// whether element 0 carries context tag [0] (0xA0) to decide whether
// `version` is present, choosing index 6 when it is and index 5 (an
// implicit v1 certificate) otherwise.
func spkiFromCertificate(certDER []byte) ([]byte, error) {
	cert, consumed, err := parseDER(certDER)
	if err != nil {
		return nil, err
	}
	_ = consumed
	if cert.Tag != tagSequence {
		return nil, coreerr.New(coreerr.KindInvalidASN1, "certificate is not a SEQUENCE")
	}

	certFields, err := parseDERSequence(certDER)
	if err != nil {
		return nil, err
	}
	if len(certFields) == 0 {
		return nil, coreerr.New(coreerr.KindInvalidASN1, "empty certificate")
	}

	tbs, err := parseDERSequence(appendTLV(tagSequence, certFields[0].Content))
	if err != nil {
		return nil, err
	}

	spkiIndex := 5
	if len(tbs) > 0 && tbs[0].Tag == tagContext0 {
		spkiIndex = 6
	}
	if len(tbs) <= spkiIndex {
		return nil, coreerr.New(coreerr.KindInvalidASN1, "tbsCertificate missing SubjectPublicKeyInfo")
	}

	return appendTLV(tagSequence, tbs[spkiIndex].Content), nil
}

// appendTLV wraps content in a TLV with the given tag, used when a child node's
// Content needs to be re-parsed as its own top-level element.
func appendTLV(tag derTag, content []byte) []byte {
	out := []byte{byte(tag)}
	out = append(out, encodeLength(len(content))...)
	out = append(out, content...)
	return out
}

func encodeLength(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{byte(n & 0xff)}, buf...)
		n >>= 8
	}
	return append([]byte{byte(0x80 | len(buf))}, buf...)
}

// decodePEM strips the PEM header/footer and base64-decodes the body,
// returning the block and any trailing PEM blocks found after it.
func decodePEM(data []byte) (*pem.Block, []byte, error) {
	block, rest := pem.Decode(data)
	if block == nil {
		return nil, nil, coreerr.New(coreerr.KindInvalidPEM, "no PEM block found")
	}
	return block, rest, nil
}

// ecOIDFromAlgorithmIdentifier extracts the named-curve OID bytes from an EC
// AlgorithmIdentifier SEQUENCE (algorithm OID followed by the curve OID).
func ecOIDFromAlgorithmIdentifier(algID []byte) ([]byte, error) {
	fields, err := parseDERSequence(algID)
	if err != nil {
		return nil, err
	}
	if len(fields) < 2 {
		return nil, coreerr.New(coreerr.KindInvalidASN1, "malformed AlgorithmIdentifier")
	}
	if fields[1].Tag != tagObjectID {
		return nil, coreerr.New(coreerr.KindInvalidASN1, "expected curve OID")
	}
	return fields[1].Content, nil
}
