package device

import (
	"errors"
	"io"
	"testing"
)

func TestWrap(t *testing.T) {
	if Wrap("status", nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}

	err := Wrap("status", io.ErrUnexpectedEOF)

	if !errors.Is(err, ErrComm) {
		t.Error("errors.Is(err, ErrComm) = false")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("underlying error lost")
	}
	var ce *CommError
	if !errors.As(err, &ce) || ce.Op != "status" {
		t.Errorf("CommError = %+v", ce)
	}
	if err.Error() != "device status: unexpected EOF" {
		t.Errorf("Error() = %q", err.Error())
	}

	again := Wrap("list_buffer", err)
	if !errors.As(again, &ce) || ce.Op != "status" {
		t.Error("Wrap should keep the original CommError")
	}
}

func TestValidateVoltage(t *testing.T) {
	tests := []struct {
		v       float64
		wantErr bool
	}{
		{0, false},
		{500, false},
		{1000, false},
		{-1, true},
		{1000.5, true},
	}
	for _, tt := range tests {
		if err := ValidateVoltage(tt.v); (err != nil) != tt.wantErr {
			t.Errorf("ValidateVoltage(%v) error = %v, wantErr %v", tt.v, err, tt.wantErr)
		}
	}
}
