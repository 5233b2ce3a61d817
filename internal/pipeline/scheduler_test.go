package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesetl/internal/logger"
)

func recorder(order *[]string, name string) TaskFunc {
	return func(context.Context) error {
		*order = append(*order, name)
		return nil
	}
}

func TestScheduler_RunsDependenciesOnce(t *testing.T) {
	var order []string

	s := NewScheduler(logger.Discard())
	require.NoError(t, s.Add("extract", recorder(&order, "extract")))
	require.NoError(t, s.Add("products", recorder(&order, "products"), "extract"))
	require.NoError(t, s.Add("customers", recorder(&order, "customers"), "extract"))
	require.NoError(t, s.Add("metrics", recorder(&order, "metrics"), "products", "customers"))

	require.NoError(t, s.Run(context.Background(), "metrics"))
	require.NoError(t, s.Run(context.Background(), "metrics"))

	assert.Equal(t, []string{"extract", "products", "customers", "metrics"}, order)
	assert.True(t, s.Completed("customers"))
	assert.False(t, s.Completed("unknown"))
}

func TestScheduler_Errors(t *testing.T) {
	noop := func(context.Context) error { return nil }

	s := NewScheduler(logger.Discard())
	require.NoError(t, s.Add("a", noop, "b"))
	require.NoError(t, s.Add("b", noop, "a"))
	require.NoError(t, s.Add("c", noop, "missing"))

	assert.ErrorIs(t, s.Add("a", noop), ErrDuplicateTask)
	assert.ErrorIs(t, s.Run(context.Background(), "nope"), ErrUnknownTask)
	assert.ErrorIs(t, s.Run(context.Background(), "a"), ErrDependencyCycle)
	assert.ErrorIs(t, s.Run(context.Background(), "c"), ErrUnknownTask)
}

func TestScheduler_FailureStopsDependents(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	ran := false

	s := NewScheduler(logger.Discard())
	require.NoError(t, s.Add("extract", func(context.Context) error {
		calls++
		return boom
	}))
	require.NoError(t, s.Add("transform", func(context.Context) error {
		ran = true
		return nil
	}, "extract"))

	err := s.Run(context.Background(), "transform")
	assert.ErrorIs(t, err, boom)
	assert.False(t, ran)

	// The failed task is not retried.
	assert.ErrorIs(t, s.Run(context.Background(), "extract"), boom)
	assert.Equal(t, 1, calls)
}

func TestScheduler_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScheduler(logger.Discard())
	require.NoError(t, s.Add("a", func(context.Context) error { return nil }))

	assert.ErrorIs(t, s.Run(ctx, "a"), context.Canceled)
	assert.False(t, s.Completed("a"))
}
