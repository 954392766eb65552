package utils_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wyfcoding/optionpricing/pkg/utils"
)

func TestNewPagination(t *testing.T) {
	p := utils.NewPagination(0, 0, 50)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 50, p.Limit())
	assert.Equal(t, 0, p.Offset())

	p = utils.NewPagination(3, 10, 50)
	assert.Equal(t, 20, p.Offset())

	p = utils.NewPagination(1, 10_000, 50)
	assert.Equal(t, utils.MaxPageSize, p.PageSize)
}

func TestRetryWithBackoff(t *testing.T) {
	calls := 0
	err := utils.RetryWithBackoff(context.Background(), 3, time.Millisecond, 2*time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	sentinel := errors.New("permanent")
	err = utils.RetryWithBackoff(context.Background(), 2, time.Millisecond, time.Millisecond, func() error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 2, calls)
}

func TestRetryWithBackoffCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := utils.RetryWithBackoff(ctx, 5, time.Second, time.Second, func() error { return errors.New("x") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPtrDeref(t *testing.T) {
	p := utils.Ptr(3)
	assert.Equal(t, 3, utils.Deref(p, 0))
	var nilPtr *int
	assert.Equal(t, 7, utils.Deref(nilPtr, 7))
}
