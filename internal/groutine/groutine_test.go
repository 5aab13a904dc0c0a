package groutine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoSetsName(t *testing.T) {
	got := make(chan string, 1)
	Go(context.Background(), "worker-42", func(ctx context.Context) {
		got <- GetName(ctx)
	})

	select {
	case name := <-got:
		assert.Equal(t, "worker-42", name)
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestGetNameWithoutGoroutine(t *testing.T) {
	assert.Empty(t, GetName(context.Background()))
	assert.Empty(t, GetName(nil)) //nolint:staticcheck
}

func TestGroupCollectsFirstError(t *testing.T) {
	g := NewGroup(context.Background(), logrus.New())
	boom := errors.New("boom")

	g.Go("ok", func(ctx context.Context) error { return nil })
	g.Go("fails", func(ctx context.Context) error { return boom })

	assert.ErrorIs(t, g.Wait(), boom)
}

func TestGroupRecoversPanic(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	g := NewGroup(context.Background(), logger)
	g.Go("panics", func(ctx context.Context) error {
		panic("bad tick")
	})

	err := g.Wait()
	var perr *PanicError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "panics", perr.Name)
	assert.Equal(t, "bad tick", perr.Value)
	assert.NotEmpty(t, perr.Stack)
}
