package perr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(IOFailure, "context", nil))
}

func TestWrapPreservesCauseAndKind(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KernelReject, "create cgroup", cause)

	var pe *Error
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, KernelReject, pe.Kind)
	assert.Equal(t, cause, pe.Cause)
	assert.Contains(t, err.Error(), "KernelReject")
	assert.Contains(t, err.Error(), "boom")
}

func TestIsMatchesThroughChain(t *testing.T) {
	root := New(NotFound, "container missing")
	wrapped := Wrap(IOFailure, "read init_pid", root)

	assert.True(t, Is(wrapped, NotFound))
	assert.True(t, Is(wrapped, IOFailure))
	assert.False(t, Is(wrapped, Malformed))
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{InvalidInput, "InvalidInput"},
		{IOFailure, "IOFailure"},
		{NotFound, "NotFound"},
		{Malformed, "Malformed"},
		{KernelReject, "KernelReject"},
		{SpawnFailure, "SpawnFailure"},
		{WaitFailure, "WaitFailure"},
		{Kind(99), "Unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}

func TestChainRendersEachContext(t *testing.T) {
	root := errors.New("device busy")
	mid := Wrap(KernelReject, "write cgroup.procs", root)
	top := Wrap(SpawnFailure, "jail child process", mid)

	chain := Chain(top)
	assert.Contains(t, chain, "jail child process")
	assert.Contains(t, chain, "write cgroup.procs")
	assert.Contains(t, chain, "device busy")
}
