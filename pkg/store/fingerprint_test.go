package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFingerprint_IgnoresLineNumbersAndPaths(t *testing.T) {
	a := ErrorFingerprint("NullPointerException", "at /app/src/handlers/payment.go:42 in process")
	b := ErrorFingerprint("NullPointerException", "at /var/task/src/handlers/payment.go:108 in process")
	assert.Equal(t, a, b)
}

func TestErrorFingerprint_IgnoresHexIDs(t *testing.T) {
	a := ErrorFingerprint("TimeoutError", "request 7f3a9c21ab request failed")
	b := ErrorFingerprint("TimeoutError", "request b812faeeff request failed")
	assert.Equal(t, a, b)
}

func TestErrorFingerprint_DifferentTypesDiffer(t *testing.T) {
	a := ErrorFingerprint("TimeoutError", "same stack")
	b := ErrorFingerprint("ValueError", "same stack")
	assert.NotEqual(t, a, b)
}
