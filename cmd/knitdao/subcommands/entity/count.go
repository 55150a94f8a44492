package entity

import (
	"context"
	"fmt"

	"github.com/labstack/gommon/log"
	"github.com/opst/knitdao/cmd/knitdao/subcommands/common"
	"github.com/opst/knitdao/pkg/domain/model"
	"github.com/youta-t/flarc"
)

func NewCount[K comparable, E any, D model.Model[K]](name string, open Open[K, E, D]) (flarc.Command, error) {
	return flarc.NewCommand(
		fmt.Sprintf("Print the number of %ss.", name),
		struct{}{},
		flarc.Args{},
		common.NewTask(CountTask(open)),
	)
}

func CountTask[K comparable, E any, D model.Model[K]](open Open[K, E, D]) common.Task[struct{}] {
	return task(open, func(
		ctx context.Context,
		_ *log.Logger,
		be Backend[K, E, D],
		cl flarc.Commandline[struct{}],
	) error {
		n, err := be.Service.Count(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cl.Stdout(), n)
		return err
	})
}
