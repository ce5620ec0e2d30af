package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	for _, p := range [][]byte{[]byte("one"), {}, []byte("three")} {
		if err := writeFrame(&buf, p); err != nil {
			t.Fatalf("writeFrame: %v", err)
		}
	}

	for _, want := range []string{"one", "", "three"} {
		got, err := readFrame(&buf)
		if err != nil {
			t.Fatalf("readFrame: %v", err)
		}
		if string(got) != want {
			t.Errorf("payload = %q, want %q", got, want)
		}
	}
	if _, err := readFrame(&buf); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF at end, got %v", err)
	}
}

func TestFrame_PartialPrefix(t *testing.T) {
	_, err := readFrame(bytes.NewReader([]byte{0, 0}))
	if !IsTruncated(err) {
		t.Fatalf("expected partial frame error, got %v", err)
	}
}

func TestFrame_PartialPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, []byte("payload")); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()[:buf.Len()-3]

	_, err := readFrame(bytes.NewReader(data))
	if !IsTruncated(err) {
		t.Fatalf("expected partial frame error, got %v", err)
	}
}

func TestFrame_TooLarge(t *testing.T) {
	prefix := make([]byte, LengthPrefixSize)
	binary.BigEndian.PutUint32(prefix, MaxPayloadSize+1)

	_, err := readFrame(bytes.NewReader(prefix))
	var fe *FrameError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if fe.Kind != FrameErrorTooLarge {
		t.Errorf("Kind = %v, want %v", fe.Kind, FrameErrorTooLarge)
	}
	if IsTruncated(err) {
		t.Error("oversized frame should not be reported as truncated")
	}
}

func TestFrame_WriteTooLarge(t *testing.T) {
	err := writeFrame(io.Discard, make([]byte, MaxPayloadSize+1))
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorTooLarge {
		t.Fatalf("expected too_large error, got %v", err)
	}
}

func TestFrameErrorKind_String(t *testing.T) {
	tests := []struct {
		kind FrameErrorKind
		want string
	}{
		{FrameErrorPartial, "partial"},
		{FrameErrorTooLarge, "too_large"},
		{FrameErrorDecode, "decode"},
		{FrameErrorKind(9), "FrameErrorKind(9)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
