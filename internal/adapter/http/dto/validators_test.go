package dto

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

// --- TrimStrings tests ---

func TestTrimStrings_TrimsWithoutEscaping(t *testing.T) {
	req := HoldRequest{
		IdempotencyKey: "  k-1  ",
		ProviderRef:    ptr(" a&b <openai> "),
	}
	TrimStrings(&req)

	assert.Equal(t, "k-1", req.IdempotencyKey)
	assert.Equal(t, "a&b <openai>", *req.ProviderRef)
}

func TestTrimStrings_NilPointerIsNoOp(t *testing.T) {
	req := HoldRequest{IdempotencyKey: "k"}
	TrimStrings(&req)
	assert.Nil(t, req.ProviderRef)
	assert.Nil(t, req.AccountRef)
}

func TestTrimStrings_NonPointerIsNoOp(t *testing.T) {
	req := HoldRequest{IdempotencyKey: "  k  "}
	TrimStrings(req)
	assert.Equal(t, "  k  ", req.IdempotencyKey)
}

// --- Custom validator tests ---

func TestHoldRequest_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     HoldRequest
		wantErr map[string]string
	}{
		{
			name: "valid",
			req:  HoldRequest{AmountMicro: 500, IdempotencyKey: "order-42:v1"},
		},
		{
			name:    "zero amount",
			req:     HoldRequest{AmountMicro: 0, IdempotencyKey: "k"},
			wantErr: map[string]string{"amount_micro": "required"},
		},
		{
			name:    "negative amount",
			req:     HoldRequest{AmountMicro: -1, IdempotencyKey: "k"},
			wantErr: map[string]string{"amount_micro": "gt=0"},
		},
		{
			name:    "unsafe idempotency key",
			req:     HoldRequest{AmountMicro: 1, IdempotencyKey: "k 1<script>"},
			wantErr: map[string]string{"idempotencyKey": "safe_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(&tt.req)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, ValidationFields(err))
		})
	}
}

func TestCaptureRequest_ZeroCostAllowed(t *testing.T) {
	req := CaptureRequest{HoldID: 1, ActualCostMicro: ptr(int64(0)), CaptureKey: "c1"}
	assert.NoError(t, binding.Validator.ValidateStruct(&req))

	req.ActualCostMicro = nil
	err := binding.Validator.ValidateStruct(&req)
	require.Error(t, err)
	assert.Equal(t, "required", ValidationFields(err)["actualCostMicro"])
}

func TestIssueTokenRequest_Validation(t *testing.T) {
	valid := func() IssueTokenRequest {
		return IssueTokenRequest{Sub: "user:7", Method: "post", Path: "/api/v1/credits/hold"}
	}

	tests := []struct {
		name   string
		mutate func(r *IssueTokenRequest)
		field  string
	}{
		{"valid", func(*IssueTokenRequest) {}, ""},
		{"method with digits", func(r *IssueTokenRequest) { r.Method = "G3T" }, "method"},
		{"relative path", func(r *IssueTokenRequest) { r.Path = "api/v1" }, "path"},
		{"path with query", func(r *IssueTokenRequest) { r.Path = "/x?a=1" }, "path"},
		{"dot segment", func(r *IssueTokenRequest) { r.Path = "/api/../admin" }, "path"},
		{"ttl below minimum", func(r *IssueTokenRequest) { r.TTLSeconds = ptr(5) }, "ttlSeconds"},
		{"ttl above maximum", func(r *IssueTokenRequest) { r.TTLSeconds = ptr(301) }, "ttlSeconds"},
		{"short body hash", func(r *IssueTokenRequest) { r.BodyHash = ptr("abc") }, "bodyHash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			err := binding.Validator.ValidateStruct(&req)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, ValidationFields(err), tt.field)
		})
	}
}

func TestValidationFields_NonValidatorError(t *testing.T) {
	assert.Nil(t, ValidationFields(assert.AnError))
}
