package entity

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/labstack/gommon/log"
	"github.com/opst/knitdao/cmd/knitdao/subcommands/common"
	"github.com/opst/knitdao/pkg/domain/model"
	"github.com/youta-t/flarc"
	"gopkg.in/yaml.v3"
)

type ImportFlags struct {
	DryRun bool   `flag:"dry-run" help:"convert DTOs and print them without saving"`
	Format string `flag:"format" alias:"f" metavar:"yaml|json" help:"output format"`
}

const ARG_FILE = "FILE"

type importOption[E any] struct {
	beforeSave func(E)
}

type ImportOption[E any] func(*importOption[E]) *importOption[E]

// BeforeSave makes import call f for each entity, just before saving them.
func BeforeSave[E any](f func(E)) ImportOption[E] {
	return func(o *importOption[E]) *importOption[E] {
		o.beforeSave = f
		return o
	}
}

// NewImport returns a command saving DTOs written in YAML files.
//
// Each file has a sequence of DTOs. DTOs with identity update the stored entities,
// and others are inserted as new entities.
func NewImport[K comparable, E any, D model.Model[K]](
	name string, open Open[K, E, D], opts ...ImportOption[E],
) (flarc.Command, error) {
	return flarc.NewCommand(
		fmt.Sprintf("Insert or update %ss from YAML files.", name),
		ImportFlags{Format: FormatYaml},
		flarc.Args{
			{
				Name: ARG_FILE, Required: true, Repeatable: true,
				Help: "YAML file with a sequence of DTOs. \"-\" reads stdin.",
			},
		},
		common.NewTask(ImportTask(open, opts...)),
	)
}

func ImportTask[K comparable, E any, D model.Model[K]](
	open Open[K, E, D], opts ...ImportOption[E],
) common.Task[ImportFlags] {
	o := &importOption[E]{beforeSave: func(E) {}}
	for _, opt := range opts {
		o = opt(o)
	}

	return task(open, func(
		ctx context.Context,
		logger *log.Logger,
		be Backend[K, E, D],
		cl flarc.Commandline[ImportFlags],
	) error {
		ds := []D{}
		for _, file := range cl.Args()[ARG_FILE] {
			read, err := readDtos[D](cl.Stdin(), file)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			ds = append(ds, read...)
		}
		logger.Infof("%d dtos are read", len(ds))

		es, err := be.Mapper.ToEntityList(ctx, ds)
		if err != nil {
			return err
		}
		for _, e := range es {
			o.beforeSave(e)
		}

		if cl.Flags().DryRun {
			logger.Info("dry run. nothing is saved")
		} else {
			if es, err = be.Service.SaveAll(ctx, es); err != nil {
				return err
			}
			logger.Infof("%d entities are saved", len(es))
		}

		saved, err := be.Mapper.ToDtoList(es)
		if err != nil {
			return err
		}
		return encode(cl.Stdout(), cl.Flags().Format, saved)
	})
}

func readDtos[D any](stdin io.Reader, file string) ([]D, error) {
	r := stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	ds := []D{}
	if err := yaml.NewDecoder(r).Decode(&ds); err != nil && err != io.EOF {
		return nil, err
	}
	return ds, nil
}
