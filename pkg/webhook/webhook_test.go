package webhook

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerify_AcceptsValidSignature(t *testing.T) {
	v := NewVerifier("shared-secret")
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	body := []byte(`{"type":"invocation_start"}`)
	sig := v.Sign(ts, "nonce-1", body)

	err := v.Verify(sig, ts, "nonce-1", body)
	assert.NoError(t, err)
}

func TestVerify_RejectsTamperedBody(t *testing.T) {
	v := NewVerifier("shared-secret")
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := v.Sign(ts, "nonce-1", []byte(`{"type":"invocation_start"}`))

	err := v.Verify(sig, ts, "nonce-1", []byte(`{"type":"tampered"}`))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	signer := NewVerifier("shared-secret")
	verifier := NewVerifier("different-secret")
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	body := []byte(`{}`)
	sig := signer.Sign(ts, "nonce-1", body)

	err := verifier.Verify(sig, ts, "nonce-1", body)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_RejectsStaleTimestamp(t *testing.T) {
	v := NewVerifier("shared-secret")
	ts := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)
	body := []byte(`{}`)
	sig := v.Sign(ts, "nonce-1", body)

	err := v.Verify(sig, ts, "nonce-1", body)
	assert.ErrorIs(t, err, ErrStaleTimestamp)
}

func TestVerify_RejectsMissingFields(t *testing.T) {
	v := NewVerifier("shared-secret")
	err := v.Verify("", "123", "nonce", []byte("{}"))
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestVerify_RejectsMalformedTimestamp(t *testing.T) {
	v := NewVerifier("shared-secret")
	err := v.Verify("deadbeef", "not-a-number", "nonce", []byte("{}"))
	assert.Error(t, err)
}
