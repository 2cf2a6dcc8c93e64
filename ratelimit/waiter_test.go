package ratelimit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWaiter_GrantThenFailDoesNotDoubleResolve(t *testing.T) {
	w := newWaiter()
	assert.True(t, w.grant())
	assert.False(t, w.fail(errors.New("too late")))
	assert.Nil(t, w.err)
}

func TestWaiter_FailThenGrantDoesNotDoubleResolve(t *testing.T) {
	w := newWaiter()
	sentinel := errors.New("deadline")
	assert.True(t, w.fail(sentinel))
	assert.False(t, w.grant())
	assert.ErrorIs(t, w.err, sentinel)
}

func TestWaiter_PendingReflectsResolution(t *testing.T) {
	w := newWaiter()
	assert.True(t, w.pending())
	w.grant()
	assert.False(t, w.pending())
}

func TestWaiterQueue_PopPendingSkipsResolvedHead(t *testing.T) {
	q := &waiterQueue{}
	resolved := newWaiter()
	resolved.grant()
	pending := newWaiter()

	q.push(resolved)
	q.push(pending)

	assert.Same(t, pending, q.popPending())
	assert.Nil(t, q.popPending())
}

func TestWaiterQueue_RemoveAndLen(t *testing.T) {
	q := &waiterQueue{}
	a, b := newWaiter(), newWaiter()
	q.push(a)
	q.push(b)
	assert.Equal(t, 2, q.len())

	q.remove(a)
	assert.Equal(t, 1, q.len())
}

func TestWaiterQueue_FailAll(t *testing.T) {
	q := &waiterQueue{}
	a, b := newWaiter(), newWaiter()
	q.push(a)
	q.push(b)

	sentinel := errors.New("disposed")
	q.failAll(sentinel)

	assert.ErrorIs(t, a.err, sentinel)
	assert.ErrorIs(t, b.err, sentinel)
	assert.Equal(t, 0, q.len())
}
