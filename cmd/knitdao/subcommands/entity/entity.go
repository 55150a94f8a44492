// Package entity provides subcommands working on any entity type through its service and mapper.
package entity

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/labstack/gommon/log"
	"github.com/opst/knitdao/cmd/knitdao/subcommands/common"
	"github.com/opst/knitdao/pkg/configs"
	"github.com/opst/knitdao/pkg/domain/mapper"
	"github.com/opst/knitdao/pkg/domain/model"
	"github.com/opst/knitdao/pkg/domain/service"
	"github.com/youta-t/flarc"
	"gopkg.in/yaml.v3"
)

// Backend is a pair of service and mapper of one entity type.
type Backend[K comparable, E any, D model.Model[K]] struct {
	Service *service.Service[K, E]
	Mapper  *mapper.Mapper[K, E, D]

	// Close releases connections. It can be nil.
	Close func()
}

// Open connects to the store following conf.
type Open[K comparable, E any, D model.Model[K]] func(
	ctx context.Context, logger *log.Logger, conf *configs.Config,
) (Backend[K, E, D], error)

// task runs f with the opened backend, and closes it after.
func task[T any, K comparable, E any, D model.Model[K]](
	open Open[K, E, D],
	f func(ctx context.Context, logger *log.Logger, be Backend[K, E, D], cl flarc.Commandline[T]) error,
) common.Task[T] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		conf *configs.Config,
		cl flarc.Commandline[T],
		params []any,
	) error {
		be, err := open(ctx, logger, conf)
		if err != nil {
			return err
		}
		if be.Close != nil {
			defer be.Close()
		}
		return f(ctx, logger, be, cl)
	}
}

const (
	FormatYaml = "yaml"
	FormatJson = "json"
)

func encode(w io.Writer, format string, v any) error {
	switch format {
	case FormatYaml, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case FormatJson:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "    ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("%w: unknown format: %s", flarc.ErrUsage, format)
	}
}
