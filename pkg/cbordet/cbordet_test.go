package cbordet

import (
	"bytes"
	"testing"
)

func TestNew(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c == nil {
		t.Fatal("New() returned nil")
	}
}

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"string", "hello world"},
		{"int", 42},
		{"bool", true},
		{"bytes", []byte{1, 2, 3, 4}},
		{"array", []int{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.value)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if len(data) == 0 {
				t.Fatal("Marshal() returned empty data")
			}
			var decoded any
			if err := Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
		})
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	var v any
	if err := Unmarshal(nil, &v); err == nil {
		t.Fatal("expected error decoding empty input")
	}
}

func TestDataItemPreservesBytes(t *testing.T) {
	type inner struct {
		A string `cbor:"a"`
		B int    `cbor:"b"`
	}

	di, err := NewDataItem(inner{A: "x", B: 1})
	if err != nil {
		t.Fatalf("NewDataItem() error = %v", err)
	}

	wrapped, err := Marshal(di)
	if err != nil {
		t.Fatalf("Marshal(DataItem) error = %v", err)
	}

	var roundtrip DataItem[inner]
	if err := Unmarshal(wrapped, &roundtrip); err != nil {
		t.Fatalf("Unmarshal(DataItem) error = %v", err)
	}
	if !bytes.Equal(roundtrip.Bytes(), di.Bytes()) {
		t.Fatal("round-tripped DataItem bytes changed")
	}

	v, err := roundtrip.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if v.A != "x" || v.B != 1 {
		t.Fatalf("Value() = %+v, want {x 1}", v)
	}
}

func TestDataItemFromBytesIsLazy(t *testing.T) {
	inner := []byte{0x01, 0x02}
	raw, err := Marshal(inner)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	di := DataItemFromBytes[[]byte](raw)
	if !bytes.Equal(di.Bytes(), raw) {
		t.Fatal("DataItemFromBytes did not preserve bytes verbatim")
	}

	v, err := di.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if !bytes.Equal(v, inner) {
		t.Fatalf("Value() = %v, want %v", v, inner)
	}
}

func TestFullDateRoundTrip(t *testing.T) {
	fd := FullDate("2023-10-24")
	b, err := Marshal(fd)
	if err != nil {
		t.Fatalf("Marshal(FullDate) error = %v", err)
	}
	var out FullDate
	if err := Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal(FullDate) error = %v", err)
	}
	if out != fd {
		t.Fatalf("FullDate round-trip = %q, want %q", out, fd)
	}
}

func TestTDateRoundTrip(t *testing.T) {
	td := TDate("2023-10-24T12:00:00Z")
	b, err := Marshal(td)
	if err != nil {
		t.Fatalf("Marshal(TDate) error = %v", err)
	}
	var out TDate
	if err := Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal(TDate) error = %v", err)
	}
	if out != td {
		t.Fatalf("TDate round-trip = %q, want %q", out, td)
	}
}
