package entity

import (
	"context"
	"fmt"

	"github.com/labstack/gommon/log"
	"github.com/opst/knitdao/cmd/knitdao/subcommands/common"
	"github.com/opst/knitdao/pkg/domain/model"
	"github.com/youta-t/flarc"
)

type ListFlags struct {
	Format string `flag:"format" alias:"f" metavar:"yaml|json" help:"output format"`
}

// NewList returns a command printing all entities as DTOs.
func NewList[K comparable, E any, D model.Model[K]](name string, open Open[K, E, D]) (flarc.Command, error) {
	return flarc.NewCommand(
		fmt.Sprintf("Print all %ss.", name),
		ListFlags{Format: FormatYaml},
		flarc.Args{},
		common.NewTask(ListTask(open)),
	)
}

func ListTask[K comparable, E any, D model.Model[K]](open Open[K, E, D]) common.Task[ListFlags] {
	return task(open, func(
		ctx context.Context,
		logger *log.Logger,
		be Backend[K, E, D],
		cl flarc.Commandline[ListFlags],
	) error {
		es, err := be.Service.GetAll(ctx)
		if err != nil {
			return err
		}
		ds, err := be.Mapper.ToDtoList(es)
		if err != nil {
			return err
		}
		logger.Debugf("%d found", len(ds))
		return encode(cl.Stdout(), cl.Flags().Format, ds)
	})
}
