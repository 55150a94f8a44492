package filewatch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/opst/knitdao/pkg/utils/filewatch"
)

func waitDone(t *testing.T, ctx context.Context, timeout time.Duration) bool {
	t.Helper()
	select {
	case <-ctx.Done():
		return true
	case <-time.After(timeout):
		return false
	}
}

func TestUntilModified(t *testing.T) {
	t.Run("creating a file in a watched directory cancels the context", func(t *testing.T) {
		dir := t.TempDir()
		ctx, cancel, err := filewatch.UntilModified(context.Background(), []string{dir})
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("logLevel: debug"), 0644); err != nil {
			t.Fatal(err)
		}

		if !waitDone(t, ctx, 5*time.Second) {
			t.Fatal("context is not canceled")
		}
		if cause := context.Cause(ctx); !errors.Is(cause, filewatch.ErrModified) {
			t.Errorf("unexpected cause: %v", cause)
		}
	})

	t.Run("writing a watched file cancels the context", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(file, []byte("logLevel: info"), 0644); err != nil {
			t.Fatal(err)
		}

		ctx, cancel, err := filewatch.UntilModified(context.Background(), []string{file})
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		if err := os.WriteFile(file, []byte("logLevel: debug"), 0644); err != nil {
			t.Fatal(err)
		}
		if !waitDone(t, ctx, 5*time.Second) {
			t.Fatal("context is not canceled")
		}
	})

	t.Run("ignored operations do not cancel the context", func(t *testing.T) {
		dir := t.TempDir()
		ctx, cancel, err := filewatch.UntilModified(
			context.Background(), []string{dir}, filewatch.On(fsnotify.Remove),
		)
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		file := filepath.Join(dir, "config.yaml")
		if err := os.WriteFile(file, []byte("logLevel: info"), 0644); err != nil {
			t.Fatal(err)
		}
		if waitDone(t, ctx, 500*time.Millisecond) {
			t.Fatalf("context is canceled: %v", context.Cause(ctx))
		}

		if err := os.Remove(file); err != nil {
			t.Fatal(err)
		}
		if !waitDone(t, ctx, 5*time.Second) {
			t.Fatal("context is not canceled")
		}
	})

	t.Run("cancel function stops watching", func(t *testing.T) {
		dir := t.TempDir()
		ctx, cancel, err := filewatch.UntilModified(context.Background(), []string{dir})
		if err != nil {
			t.Fatal(err)
		}
		cancel()

		if !waitDone(t, ctx, time.Second) {
			t.Fatal("context is not canceled")
		}
		if cause := context.Cause(ctx); !errors.Is(cause, context.Canceled) {
			t.Errorf("unexpected cause: %v", cause)
		}
	})

	t.Run("watching missing path fails", func(t *testing.T) {
		_, _, err := filewatch.UntilModified(
			context.Background(), []string{filepath.Join(t.TempDir(), "missing")},
		)
		if err == nil {
			t.Error("expected error")
		}
	})
}
