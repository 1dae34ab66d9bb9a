// Package cose implements the COSE layer (C2): COSE_Sign1 and COSE_Mac0
// over the deterministic CBOR codec, delegating the actual sign/verify/MAC
// primitives to an injected hostctx.CryptoContext rather than calling
// crypto.Signer directly.
package cose

import (
	"context"

	"mdljarm/pkg/cbordet"
	"mdljarm/pkg/coreerr"
	"mdljarm/pkg/hostctx"
)

// Algorithm labels per RFC 9053, reused by the MSO, device-auth, and JARM
// layers above this package.
const (
	AlgorithmES256   int64 = -7
	AlgorithmES384   int64 = -35
	AlgorithmES512   int64 = -36
	AlgorithmEdDSA   int64 = -8
	AlgorithmHMAC256 int64 = 5 // HMAC 256/256
	AlgorithmHMAC384 int64 = 6
	AlgorithmHMAC512 int64 = 7
)

// Header labels.
const (
	HeaderAlgorithm int64 = 1
	HeaderCritical  int64 = 2
	HeaderKeyID     int64 = 4
	HeaderX5Chain   int64 = 33
)

// Sign1 is a COSE_Sign1 structure: (protected headers bytes, unprotected
// headers, payload, signature). Payload may be nil when detached.
type Sign1 struct {
	Protected   []byte
	Unprotected map[int64]any
	Payload     []byte
	Signature   []byte
}

// MarshalCBOR implements cbor.Marshaler, tagging the structure 18.
func (s *Sign1) MarshalCBOR() ([]byte, error) {
	wrapped, err := marshalTaggedArray(18, s.Protected, s.Unprotected, s.Payload, s.Signature)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidMajorType, "encode COSE_Sign1", err)
	}
	return wrapped, nil
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (s *Sign1) UnmarshalCBOR(data []byte) error {
	arr, err := decodeTaggedArray(data, 18)
	if err != nil {
		return err
	}
	s.Protected, s.Unprotected, s.Payload, s.Signature = arr.Protected, arr.Unprotected, arr.Payload, arr.Trailer
	return nil
}

// Mac0 is a COSE_Mac0 structure with the same shape as Sign1 but a MAC tag
// in place of the signature.
type Mac0 struct {
	Protected   []byte
	Unprotected map[int64]any
	Payload     []byte
	Tag         []byte
}

func (m *Mac0) MarshalCBOR() ([]byte, error) {
	wrapped, err := marshalTaggedArray(17, m.Protected, m.Unprotected, m.Payload, m.Tag)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidMajorType, "encode COSE_Mac0", err)
	}
	return wrapped, nil
}

func (m *Mac0) UnmarshalCBOR(data []byte) error {
	arr, err := decodeTaggedArray(data, 17)
	if err != nil {
		return err
	}
	m.Protected, m.Unprotected, m.Payload, m.Tag = arr.Protected, arr.Unprotected, arr.Payload, arr.Trailer
	return nil
}

// taggedArrayResult is the decoded shape shared by COSE_Sign1/COSE_Mac0.
type taggedArrayResult struct {
	Protected   []byte
	Unprotected map[int64]any
	Payload     []byte
	Trailer     []byte
}

func marshalTaggedArray(tagNumber uint64, protected []byte, unprotected map[int64]any, payload, trailer []byte) ([]byte, error) {
	return cbordet.Marshal(cbordet.Tag{Number: tagNumber, Content: []any{protected, unprotected, payload, trailer}})
}

func decodeTaggedArray(data []byte, wantTag uint64) (taggedArrayResult, error) {
	var tag cbordet.Tag
	if err := cbordet.Unmarshal(data, &tag); err != nil {
		return taggedArrayResult{}, coreerr.Wrap(coreerr.KindInvalidMajorType, "decode tagged COSE structure", err)
	}
	if tag.Number != wantTag {
		return taggedArrayResult{}, coreerr.New(coreerr.KindInvalidMajorType, "unexpected COSE tag")
	}
	arr, ok := tag.Content.([]any)
	if !ok || len(arr) != 4 {
		return taggedArrayResult{}, coreerr.New(coreerr.KindInvalidMajorType, "malformed COSE structure")
	}
	protected, _ := arr[0].([]byte)
	unprotectedRaw, _ := arr[1].(map[any]any)
	unprotected := map[int64]any{}
	for k, v := range unprotectedRaw {
		if ik, ok := toInt64(k); ok {
			unprotected[ik] = v
		}
	}
	payload, _ := arr[2].([]byte)
	trailer, _ := arr[3].([]byte)
	return taggedArrayResult{Protected: protected, Unprotected: unprotected, Payload: payload, Trailer: trailer}, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

// Sign builds and signs a COSE_Sign1 over payload (attached). alg is a COSE
// algorithm label; x5chain, if non-empty, is placed in the protected header.
func Sign(ctx context.Context, cc hostctx.CryptoContext, payload []byte, key any, alg int64, x5chain [][]byte, externalAAD []byte) (*Sign1, error) {
	protected := map[int64]any{HeaderAlgorithm: alg}
	if len(x5chain) > 0 {
		protected[HeaderX5Chain] = x5chain
	}
	protectedBytes, err := cbordet.Marshal(protected)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidMajorType, "encode protected headers", err)
	}

	toBeSigned, err := cbordet.Marshal([]any{"Signature1", protectedBytes, externalAAD, payload})
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidMajorType, "encode Sig_structure", err)
	}

	sig, err := cc.Sign(ctx, alg, key, toBeSigned)
	if err != nil {
		return nil, coreerr.Capability(err)
	}

	return &Sign1{
		Protected:   protectedBytes,
		Unprotected: map[int64]any{},
		Payload:     payload,
		Signature:   sig,
	}, nil
}

// SignDetached is Sign with the payload stripped from the returned Sign1
// after signing, for use when the payload is transported separately.
func SignDetached(ctx context.Context, cc hostctx.CryptoContext, payload []byte, key any, alg int64, x5chain [][]byte, externalAAD []byte) (*Sign1, error) {
	s, err := Sign(ctx, cc, payload, key, alg, x5chain, externalAAD)
	if err != nil {
		return nil, err
	}
	s.Payload = nil
	return s, nil
}

// Verify checks s's signature. detachedPayload, if non-nil, is used in place
// of s.Payload (for detached-payload Sign1s).
func Verify(ctx context.Context, cc hostctx.CryptoContext, s *Sign1, key any, detachedPayload []byte, externalAAD []byte) error {
	alg, err := headerAlgorithm(s.Protected)
	if err != nil {
		return err
	}

	payload := s.Payload
	if detachedPayload != nil {
		payload = detachedPayload
	}

	toBeSigned, err := cbordet.Marshal([]any{"Signature1", s.Protected, externalAAD, payload})
	if err != nil {
		return coreerr.Wrap(coreerr.KindInvalidMajorType, "encode Sig_structure", err)
	}

	ok, err := cc.Verify(ctx, alg, key, toBeSigned, s.Signature)
	if err != nil {
		return coreerr.Capability(err)
	}
	if !ok {
		return coreerr.New(coreerr.KindSignatureInvalid, "COSE_Sign1 signature verification failed")
	}
	return nil
}

// MakeMac0 builds and computes a COSE_Mac0 tag over payload.
func MakeMac0(ctx context.Context, cc hostctx.CryptoContext, payload []byte, key []byte, alg int64, externalAAD []byte) (*Mac0, error) {
	protectedBytes, err := cbordet.Marshal(map[int64]any{HeaderAlgorithm: alg})
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidMajorType, "encode protected headers", err)
	}

	toMAC, err := cbordet.Marshal([]any{"MAC0", protectedBytes, externalAAD, payload})
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidMajorType, "encode MAC_structure", err)
	}

	tag, err := cc.Sign(ctx, alg, key, toMAC)
	if err != nil {
		return nil, coreerr.Capability(err)
	}

	return &Mac0{
		Protected:   protectedBytes,
		Unprotected: map[int64]any{},
		Payload:     payload,
		Tag:         tag,
	}, nil
}

// VerifyMac0 checks m's MAC tag. Per spec, device MAC must use algorithm
// label 5 (HMAC 256/256); callers needing that enforcement check
// HeaderAlgorithmOf(m.Protected) themselves before calling this, since this
// function is also used for the general-purpose case.
func VerifyMac0(ctx context.Context, cc hostctx.CryptoContext, m *Mac0, key []byte, externalAAD []byte) error {
	alg, err := headerAlgorithm(m.Protected)
	if err != nil {
		return err
	}

	toMAC, err := cbordet.Marshal([]any{"MAC0", m.Protected, externalAAD, m.Payload})
	if err != nil {
		return coreerr.Wrap(coreerr.KindInvalidMajorType, "encode MAC_structure", err)
	}

	ok, err := cc.Verify(ctx, alg, key, toMAC, m.Tag)
	if err != nil {
		return coreerr.Capability(err)
	}
	if !ok {
		return coreerr.New(coreerr.KindMacInvalid, "COSE_Mac0 tag verification failed")
	}
	return nil
}

// HeaderAlgorithmOf decodes and returns the alg label from a protected
// header byte string; exported for callers (the verifier) that must inspect
// the algorithm before deciding how to verify.
func HeaderAlgorithmOf(protected []byte) (int64, error) {
	return headerAlgorithm(protected)
}

func headerAlgorithm(protected []byte) (int64, error) {
	var headers map[int64]any
	if err := cbordet.Unmarshal(protected, &headers); err != nil {
		return 0, coreerr.Wrap(coreerr.KindInvalidMajorType, "decode protected headers", err)
	}
	raw, ok := headers[HeaderAlgorithm]
	if !ok {
		return 0, coreerr.New(coreerr.KindMissingField, "missing alg in protected headers")
	}
	alg, ok := toInt64(raw)
	if !ok {
		return 0, coreerr.New(coreerr.KindUnsupportedAlg, "non-integer alg in protected headers")
	}
	return alg, nil
}
