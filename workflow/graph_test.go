package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopStep(context.Context, *State) error { return nil }

func fullRegistry(fn StepFunc) *Registry {
	return NewRegistry().
		Register(StepRecallMemory, fn).
		Register(StepRecallDocuments, fn).
		Register(StepReason, fn).
		Register(StepCommitMemory, fn)
}

func TestCompile_LinearOrder(t *testing.T) {
	g, err := Compile(fullRegistry(noopStep))
	require.NoError(t, err)

	assert.Equal(t, StepRecallMemory, g.Entry())
	assert.Equal(t, []StepName{
		StepRecallMemory,
		StepRecallDocuments,
		StepReason,
		StepCommitMemory,
	}, g.Order())
}

func TestCompile_MissingStep(t *testing.T) {
	reg := NewRegistry().
		Register(StepRecallMemory, noopStep).
		Register(StepRecallDocuments, noopStep).
		Register(StepCommitMemory, noopStep)

	_, err := Compile(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"reason" is not registered`)
}

func TestCompile_UnreachableStep(t *testing.T) {
	reg := fullRegistry(noopStep).Register(StepName("summarize"), noopStep)

	_, err := Compile(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestCompile_NilRegistry(t *testing.T) {
	_, err := Compile(nil)
	assert.Error(t, err)
}

func TestNext(t *testing.T) {
	next, ok := Next(StepReason)
	assert.True(t, ok)
	assert.Equal(t, StepCommitMemory, next)

	next, ok = Next(StepCommitMemory)
	assert.True(t, ok)
	assert.Equal(t, StepDone, next)

	_, ok = Next(StepDone)
	assert.False(t, ok)
}
