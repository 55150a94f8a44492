// Package filewatch cancels contexts when files are modified.
package filewatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/labstack/gommon/log"
)

// ErrModified is the cause of contexts canceled by modification of watched files.
var ErrModified = errors.New("watched file is modified")

// AnyChange is the default set of operations cancelling contexts.
const AnyChange = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

type options struct {
	ops    fsnotify.Op
	logger *log.Logger
}

type Option func(*options) *options

// On restricts the operations which cancel contexts. Others are ignored.
func On(ops fsnotify.Op) Option {
	return func(o *options) *options {
		o.ops = ops
		return o
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(o *options) *options {
		o.logger = logger
		return o
	}
}

// UntilModified returns a context canceled when one of paths (files or directories) is modified.
//
// The cause of the cancellation (context.Cause) wraps ErrModified, or the error of the watcher.
// The returned cancel function stops watching.
//
// If it fails to watch, it returns an error and the context and the cancel function are nil.
func UntilModified(ctx context.Context, paths []string, opts ...Option) (context.Context, func(), error) {
	o := &options{ops: AnyChange, logger: log.New("knitdao/filewatch")}
	for _, opt := range opts {
		o = opt(o)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	for _, p := range paths {
		if err := w.Add(p); err != nil {
			w.Close()
			return nil, nil, err
		}
	}

	cctx, cancel := context.WithCancelCause(ctx)
	go func() {
		defer w.Close()
		for {
			select {
			case <-cctx.Done():
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cancel(err)
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&o.ops == 0 {
					o.logger.Debugf("ignored: %s", event)
					continue
				}
				o.logger.Debugf("modified: %s", event)
				cancel(fmt.Errorf("%w: %s (%s)", ErrModified, event.Name, event.Op))
			}
		}
	}()

	return cctx, func() { cancel(nil) }, nil
}
