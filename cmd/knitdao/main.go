package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"

	"github.com/labstack/gommon/log"
	"github.com/opst/knitdao/cmd/knitdao/subcommands/common"
	subinvoice "github.com/opst/knitdao/cmd/knitdao/subcommands/invoice"
	subnote "github.com/opst/knitdao/cmd/knitdao/subcommands/note"
	"github.com/opst/knitdao/pkg/utils/try"
	"github.com/youta-t/flarc"
)

func main() {
	name := path.Base(os.Args[0])
	logger := log.New(name)

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, os.Kill,
	)
	defer cancel()

	cf := try.To(common.DefaultCommonFlags(".")).OrFatal(logger)
	invoice := try.To(subinvoice.New()).OrFatal(logger)
	note := try.To(subnote.New()).OrFatal(logger)

	knitdao := try.To(
		flarc.NewCommandGroup(
			fmt.Sprintf("%s: import and inspect entities through the mapping layer", name),
			cf,
			flarc.WithSubcommand("invoice", invoice),
			flarc.WithSubcommand("note", note),
		),
	).OrFatal(logger)

	os.Exit(flarc.Run(ctx, knitdao, flarc.WithHelp(true)))
}
