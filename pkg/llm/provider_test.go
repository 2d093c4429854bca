package llm_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/argus/pkg/llm"
)

func TestIsRetryable_WrappedProviderError(t *testing.T) {
	err := fmt.Errorf("round failed: %w", &llm.ProviderError{Err: errors.New("rate limited"), Retryable: true})
	require.True(t, llm.IsRetryable(err))
}

func TestIsRetryable_TerminalProviderError(t *testing.T) {
	err := &llm.ProviderError{Err: errors.New("bad request"), Retryable: false}
	require.False(t, llm.IsRetryable(err))
}

func TestIsRetryable_PlainError(t *testing.T) {
	require.False(t, llm.IsRetryable(errors.New("boom")))
}

func TestIsRetryable_NilError(t *testing.T) {
	require.False(t, llm.IsRetryable(nil))
}
