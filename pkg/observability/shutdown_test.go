package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestShutdownManager_Order(t *testing.T) {
	sm := NewShutdownManager(logrus.New(), nil, time.Second)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		sm.RegisterShutdownFunc(func(context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	assert.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []int{2, 1, 0}, order)

	// Functions run once
	assert.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []int{2, 1, 0}, order)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(nil, nil, 0)
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	ran := 0
	sm.RegisterShutdownFunc(func(context.Context) error { ran++; return errA })
	sm.RegisterShutdownFunc(func(context.Context) error { ran++; return errB })

	err := sm.Shutdown(context.Background())
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, 2, ran)
}

func TestShutdownManager_WaitForShutdown(t *testing.T) {
	sm := NewShutdownManager(nil, nil, time.Second)
	called := make(chan struct{})
	sm.RegisterShutdownFunc(func(context.Context) error {
		close(called)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sm.WaitForShutdown(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForShutdown did not return")
	}
	<-called
}

func TestRecoverPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		defer RecoverPanic(logrus.New(), "test")
		panic("boom")
	})

	var got any
	assert.NotPanics(t, func() {
		defer RecoverPanicWithCallback(nil, "test", func(r any) { got = r })
		panic("boom")
	})
	assert.Equal(t, "boom", got)
}
