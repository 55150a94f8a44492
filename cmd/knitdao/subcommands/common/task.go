package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/opst/knitdao/pkg/configs"
	"github.com/opst/knitdao/pkg/utils/filewatch"
	"github.com/youta-t/flarc"
)

// Task is a subcommand task with the loaded config.
//
// The context is canceled when the config file is modified while the task is running.
type Task[T any] func(
	ctx context.Context,
	logger *log.Logger,
	conf *configs.Config,
	cl flarc.Commandline[T],
	params []any,
) error

func NewTask[T any](task Task[T]) flarc.Task[T] {
	return func(ctx context.Context, cl flarc.Commandline[T], pos []any) error {
		var commonFlag CommonFlags
		found := false
		newpos := make([]any, 0, len(pos))
		for _, p := range pos {
			switch v := p.(type) {
			case CommonFlags:
				found = true
				commonFlag = v
			default:
				newpos = append(newpos, p)
			}
		}
		if !found {
			return errors.New("programming error: common flags not found")
		}
		if commonFlag.Config == "" {
			return fmt.Errorf(
				"%w: config file is not found. Put %s or pass --config",
				configs.ErrInvalidConfig, configs.DefaultFileName,
			)
		}

		dotenv := []string{}
		if commonFlag.DotEnv != "" {
			dotenv = append(dotenv, commonFlag.DotEnv)
		}
		conf, err := configs.Load(commonFlag.Config, configs.WithDotEnv(dotenv...))
		if err != nil {
			return err
		}

		logger := conf.Logger("knitdao/" + strings.ReplaceAll(cl.Fullname(), " ", "/"))
		logger.SetOutput(cl.Stderr())

		wctx, stop, err := filewatch.UntilModified(
			ctx, []string{commonFlag.Config}, filewatch.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		defer stop()

		if err := task(wctx, logger, conf, cl, newpos); err != nil {
			if cause := context.Cause(wctx); errors.Is(cause, filewatch.ErrModified) {
				return fmt.Errorf("%w (aborted: %w)", err, cause)
			}
			return err
		}
		return nil
	}
}
