package faults

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTransient, KindOf(Transient(errors.New("io"))))
	assert.Equal(t, KindSemantic, KindOf(Semanticf(CodeScriptInvalid, "bad")))
	assert.Equal(t, KindIntegrity, KindOf(Integrityf("illegal")))
	assert.Equal(t, KindValidation, KindOf(Validation(errors.New("empty"))))

	// Untagged errors default to transient so unexpected I/O gets retried.
	assert.Equal(t, KindTransient, KindOf(errors.New("plain")))
}

func TestKindOfUnwrapsChain(t *testing.T) {
	wrapped := fmt.Errorf("stage failed: %w", Semanticf(CodeRAGTimeout, "budget exceeded"))
	assert.Equal(t, KindSemantic, KindOf(wrapped))
	assert.Equal(t, CodeRAGTimeout, CodeOf(wrapped))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeRateLimited, CodeOf(Transientf(CodeRateLimited, "429")))
	assert.Equal(t, "", CodeOf(Transient(errors.New("io"))))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(KindTransient))
	assert.True(t, Retryable(KindSemantic))
	assert.False(t, Retryable(KindIntegrity))
	assert.False(t, Retryable(KindValidation))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "SCRIPT_INVALID: too short", Semanticf(CodeScriptInvalid, "too short").Error())
	assert.Equal(t, "io", Transient(errors.New("io")).Error())
}
