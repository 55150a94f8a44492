package common_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/opst/knitdao/cmd/knitdao/subcommands/common"
	"github.com/opst/knitdao/cmd/knitdao/subcommands/internal/commandline"
	"github.com/opst/knitdao/pkg/configs"
	"github.com/opst/knitdao/pkg/utils/filewatch"
	"github.com/youta-t/flarc"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), configs.DefaultFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewTask(t *testing.T) {
	t.Setenv(configs.EnvDatabase, "")
	os.Unsetenv(configs.EnvDatabase)
	t.Setenv(configs.EnvLogLevel, "")
	os.Unsetenv(configs.EnvLogLevel)

	cl := commandline.MockCommandline[struct{}]{
		Fullname_: "knitdao invoice list",
		Stdout_:   new(bytes.Buffer),
		Stderr_:   new(bytes.Buffer),
	}

	t.Run("it passes the loaded config and the rest of params", func(t *testing.T) {
		path := writeConfig(t, "database: postgres://example.invalid/db\nlogLevel: error\n")

		called := false
		testee := common.NewTask(func(
			ctx context.Context, logger *log.Logger, conf *configs.Config,
			_ flarc.Commandline[struct{}], params []any,
		) error {
			called = true
			if conf.Database != "postgres://example.invalid/db" {
				t.Errorf("unexpected database: %s", conf.Database)
			}
			if logger.Level() != log.ERROR {
				t.Errorf("unexpected log level: %v", logger.Level())
			}
			if len(params) != 1 || params[0] != "rest" {
				t.Errorf("unexpected params: %v", params)
			}
			return nil
		})

		err := testee(context.Background(), cl, []any{common.CommonFlags{Config: path}, "rest"})
		if err != nil {
			t.Fatal(err)
		}
		if !called {
			t.Error("task is not called")
		}
	})

	t.Run("it fails without common flags", func(t *testing.T) {
		testee := common.NewTask(func(context.Context, *log.Logger, *configs.Config, flarc.Commandline[struct{}], []any) error {
			t.Error("task should not be called")
			return nil
		})
		if err := testee(context.Background(), cl, []any{}); err == nil {
			t.Error("no errors")
		}
	})

	t.Run("it fails without config file", func(t *testing.T) {
		testee := common.NewTask(func(context.Context, *log.Logger, *configs.Config, flarc.Commandline[struct{}], []any) error {
			t.Error("task should not be called")
			return nil
		})
		err := testee(context.Background(), cl, []any{common.CommonFlags{}})
		if !errors.Is(err, configs.ErrInvalidConfig) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it aborts when the config file is modified", func(t *testing.T) {
		path := writeConfig(t, "logLevel: error\n")

		testee := common.NewTask(func(
			ctx context.Context, _ *log.Logger, _ *configs.Config,
			_ flarc.Commandline[struct{}], _ []any,
		) error {
			if err := os.WriteFile(path, []byte("logLevel: debug\n"), 0o644); err != nil {
				t.Fatal(err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(10 * time.Second):
				return errors.New("timeout")
			}
		})

		err := testee(context.Background(), cl, []any{common.CommonFlags{Config: path}})
		if !errors.Is(err, filewatch.ErrModified) || !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestDefaultCommonFlags(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "nested")
	if err := os.Mkdir(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	cf, err := common.DefaultCommonFlags(nested)
	if err != nil {
		t.Fatal(err)
	}
	if cf.Config != "" && filepath.Dir(cf.Config) == root {
		t.Errorf("unexpected config: %s", cf.Config)
	}

	path := filepath.Join(root, configs.DefaultFileName)
	if err := os.WriteFile(path, []byte("logLevel: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cf, err = common.DefaultCommonFlags(nested)
	if err != nil {
		t.Fatal(err)
	}
	if cf.Config != path {
		t.Errorf("unexpected config: %s", cf.Config)
	}
}
