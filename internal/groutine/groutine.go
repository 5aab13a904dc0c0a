// Package groutine starts named goroutines that show up in pprof goroutine profiles by label.
package groutine

import (
	"context"
	"fmt"
	"runtime/debug"
	"runtime/pprof"
	"sync"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn in a goroutine labelled with name.
//
//	groutine.Go(ctx, "transmitter", func(ctx context.Context) {
//	    // work
//	})
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// PanicError carries a recovered panic value and the stack it was raised on.
type PanicError struct {
	Name  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("goroutine %q panicked: %v", e.Name, e.Value)
}

// Recover converts a panic into a *PanicError stored in errp and logs it.
// It must be called directly via defer.
func Recover(ctx context.Context, logger *logrus.Logger, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	perr := &PanicError{Name: GetName(ctx), Value: r, Stack: debug.Stack()}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"goroutine": perr.Name,
			"panic":     r,
		}).Error("Panic recovered")
		logger.Debugf("%s", perr.Stack)
	}
	if errp != nil {
		*errp = perr
	}
}

// Group tracks named goroutines and collects the first error any of them returns.
// The zero value is not usable; create one with NewGroup.
type Group struct {
	ctx    context.Context
	logger *logrus.Logger

	wg      sync.WaitGroup
	errOnce sync.Once
	err     error
}

// NewGroup returns a group whose goroutines inherit ctx.
func NewGroup(ctx context.Context, logger *logrus.Logger) *Group {
	return &Group{ctx: ctx, logger: logger}
}

// Go starts fn as a named goroutine of the group. A panic in fn is recovered and reported as its error.
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.wg.Add(1)
	Go(g.ctx, name, func(ctx context.Context) {
		defer g.wg.Done()

		var err error
		func() {
			defer Recover(ctx, g.logger, &err)
			err = fn(ctx)
		}()

		if g.logger != nil {
			g.logger.WithField("goroutine", name).Debug("Goroutine exited")
		}
		if err != nil {
			g.errOnce.Do(func() { g.err = err })
		}
	})
}

// Wait blocks until every goroutine of the group has returned and reports the first error.
func (g *Group) Wait() error {
	g.wg.Wait()
	return g.err
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
