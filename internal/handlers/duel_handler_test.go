package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"duel-arena/internal/services"

	"github.com/mr-tron/base58"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrValidation, http.StatusBadRequest},
		{services.ErrMissingWallet, http.StatusBadRequest},
		{services.ErrDeposit, http.StatusBadRequest},
		{services.ErrUnauthorized, http.StatusForbidden},
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrStateConflict, http.StatusConflict},
		{services.ErrChainCall, http.StatusBadGateway},
		{services.ErrOracleUnavailable, http.StatusBadGateway},
		{services.ErrPayout, http.StatusBadGateway},
		{fmt.Errorf("something else"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", services.ErrStateConflict), http.StatusConflict},
	}

	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestValidSignature(t *testing.T) {
	good := base58.Encode(make([]byte, 64))
	if !validSignature(good) {
		t.Error("expected a 64-byte base58 string to validate")
	}

	short := base58.Encode(make([]byte, 32))
	if validSignature(short) {
		t.Error("expected a 32-byte reference to be rejected")
	}

	if validSignature("not!base58!!") {
		t.Error("expected non-base58 input to be rejected")
	}
	if validSignature("") {
		t.Error("expected empty input to be rejected")
	}
}
