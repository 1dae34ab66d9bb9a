// Package cbordet implements the deterministic CBOR codec (C1) the mdoc
// engine is built on: canonical encoding per RFC 8949 §4.2.1, the tag
// registry for embedded-CBOR DataItems (tag 24), full-date (tag 1004), and
// tdate (tag 0).
package cbordet

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"mdljarm/pkg/coreerr"
)

// Tag is a re-export of the underlying CBOR tag representation, for
// packages (cose) that need to build ad-hoc tagged structures without
// importing fxamacker/cbor directly.
type Tag = cbor.Tag

// Tag numbers used throughout the mdoc wire format.
const (
	TagEncodedCBOR = 24
	TagFullDate    = 1004
	TagDateTime    = 0
)

// Codec wraps an fxamacker/cbor EncMode/DecMode pair configured for
// deterministic mdoc encoding: canonical map-key sort, definite-length only,
// tagged time values.
type Codec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// New builds the default deterministic codec.
func New() (*Codec, error) {
	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		TimeTag:     cbor.EncTagRequired,
	}
	encMode, err := encOpts.EncMode()
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidMajorType, "build cbor encoder", err)
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	decMode, err := decOpts.DecMode()
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidMajorType, "build cbor decoder", err)
	}

	return &Codec{enc: encMode, dec: decMode}, nil
}

// Encode deterministically marshals v.
func (c *Codec) Encode(v any) ([]byte, error) {
	b, err := c.enc.Marshal(v)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidMajorType, "encode", err)
	}
	return b, nil
}

// Decode unmarshals data into v, rejecting indefinite-length items and
// duplicate map keys.
func (c *Codec) Decode(data []byte, v any) error {
	if len(data) == 0 {
		return coreerr.New(coreerr.KindTruncatedInput, "empty input")
	}
	if err := c.dec.Unmarshal(data, v); err != nil {
		return coreerr.Wrap(coreerr.KindInvalidMajorType, "decode", err)
	}
	return nil
}

// shared default codec used by the package-level helpers and by DataItem.
var shared = func() *Codec {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}()

// Marshal deterministically encodes v using the shared default codec.
func Marshal(v any) ([]byte, error) { return shared.Encode(v) }

// Unmarshal decodes data into v using the shared default codec.
func Unmarshal(data []byte, v any) error { return shared.Decode(data, v) }

// DataItem is a value of logical type T whose on-wire form is CBOR tag 24
// wrapping the byte string of T's deterministic encoding. The original bytes
// are always retained verbatim: encoding emits them back unchanged, and
// decoding re-parses them lazily on first access. This is the "lazy parse
// holding bytes + cached value" shape the mdoc spec requires for bit-exact
// digest computation.
type DataItem[T any] struct {
	bytes  []byte
	cached *T
}

// NewDataItem wraps an already-decoded value, computing its canonical bytes
// immediately.
func NewDataItem[T any](v T) (DataItem[T], error) {
	b, err := Marshal(v)
	if err != nil {
		return DataItem[T]{}, err
	}
	return DataItem[T]{bytes: b, cached: &v}, nil
}

// DataItemFromBytes wraps the deterministic encoding of T directly, without
// parsing it. The value is parsed lazily on first Value() call.
func DataItemFromBytes[T any](b []byte) DataItem[T] {
	cp := make([]byte, len(b))
	copy(cp, b)
	return DataItem[T]{bytes: cp}
}

// Bytes returns the original deterministic encoding, verbatim.
func (d DataItem[T]) Bytes() []byte { return d.bytes }

// Value returns the parsed value, decoding lazily and caching the result.
func (d *DataItem[T]) Value() (T, error) {
	if d.cached != nil {
		return *d.cached, nil
	}
	var v T
	if err := Unmarshal(d.bytes, &v); err != nil {
		var zero T
		return zero, err
	}
	d.cached = &v
	return v, nil
}

// MarshalCBOR implements cbor.Marshaler: the DataItem is tag 24 wrapping the
// verbatim bytes, never the re-encoding of the cached value.
func (d DataItem[T]) MarshalCBOR() ([]byte, error) {
	if d.bytes == nil {
		return nil, coreerr.New(coreerr.KindMissingField, "empty DataItem")
	}
	return Marshal(cbor.Tag{Number: TagEncodedCBOR, Content: []byte(d.bytes)})
}

// UnmarshalCBOR implements cbor.Unmarshaler: unwraps tag 24 and stores the
// inner bytes verbatim without parsing T.
func (d *DataItem[T]) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := Unmarshal(data, &tag); err != nil {
		return coreerr.Wrap(coreerr.KindInvalidMajorType, "decode tagged DataItem", err)
	}
	if tag.Number != TagEncodedCBOR {
		return coreerr.New(coreerr.KindInvalidMajorType, fmt.Sprintf("expected tag %d, got %d", TagEncodedCBOR, tag.Number))
	}
	content, ok := tag.Content.([]byte)
	if !ok {
		return coreerr.New(coreerr.KindInvalidMajorType, "expected byte string content under tag 24")
	}
	d.bytes = content
	d.cached = nil
	return nil
}

// FullDate is a date-without-time value (tag 1004, RFC 8943), e.g. birth
// dates and validity bounds that carry no time-of-day component.
type FullDate string

func (f FullDate) MarshalCBOR() ([]byte, error) {
	return Marshal(cbor.Tag{Number: TagFullDate, Content: string(f)})
}

func (f *FullDate) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := Unmarshal(data, &tag); err != nil {
		var s string
		if err2 := Unmarshal(data, &s); err2 != nil {
			return coreerr.Wrap(coreerr.KindInvalidMajorType, "decode full-date", err)
		}
		*f = FullDate(s)
		return nil
	}
	if tag.Number != TagFullDate {
		return coreerr.New(coreerr.KindInvalidMajorType, fmt.Sprintf("expected tag %d, got %d", TagFullDate, tag.Number))
	}
	s, ok := tag.Content.(string)
	if !ok {
		return coreerr.New(coreerr.KindInvalidMajorType, "expected string content for full-date")
	}
	*f = FullDate(s)
	return nil
}

// TDate is an RFC 3339 date-time value tagged 0.
type TDate string

func (t TDate) MarshalCBOR() ([]byte, error) {
	return Marshal(cbor.Tag{Number: TagDateTime, Content: string(t)})
}

func (t *TDate) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := Unmarshal(data, &tag); err != nil {
		var s string
		if err2 := Unmarshal(data, &s); err2 != nil {
			return coreerr.Wrap(coreerr.KindInvalidMajorType, "decode tdate", err)
		}
		*t = TDate(s)
		return nil
	}
	if tag.Number != TagDateTime {
		return coreerr.New(coreerr.KindInvalidMajorType, fmt.Sprintf("expected tag %d, got %d", TagDateTime, tag.Number))
	}
	s, ok := tag.Content.(string)
	if !ok {
		return coreerr.New(coreerr.KindInvalidMajorType, "expected string content for tdate")
	}
	*t = TDate(s)
	return nil
}
