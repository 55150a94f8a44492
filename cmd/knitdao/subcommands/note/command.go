package note

import (
	"context"
	"fmt"

	"github.com/labstack/gommon/log"
	"github.com/opst/knitdao/cmd/knitdao/subcommands/entity"
	"github.com/opst/knitdao/pkg/configs"
	kdynamo "github.com/opst/knitdao/pkg/conn/db/dynamo"
	"github.com/opst/knitdao/pkg/domain/mapper"
	"github.com/opst/knitdao/pkg/domain/mapper/fields"
	"github.com/opst/knitdao/pkg/domain/note"
	"github.com/opst/knitdao/pkg/domain/service"
	"github.com/opst/knitdao/pkg/domain/store/db/dynamo"
	"github.com/youta-t/flarc"
)

type Backend = entity.Backend[string, *note.Note, *note.NoteDto]

// Open connects to DynamoDB following the config.
func Open(ctx context.Context, logger *log.Logger, conf *configs.Config) (Backend, error) {
	if conf.Dynamo.Table == "" {
		return Backend{}, fmt.Errorf("%w: dynamo.table is not configured", configs.ErrInvalidConfig)
	}
	client, err := kdynamo.Connect(
		ctx,
		kdynamo.WithProfile(conf.Dynamo.Profile),
		kdynamo.WithRegion(conf.Dynamo.Region),
		kdynamo.WithEndpoint(conf.Dynamo.Endpoint),
	)
	if err != nil {
		return Backend{}, err
	}
	return Build(client, logger, conf)
}

// Build makes the service and the mapper of notes on api.
func Build(api kdynamo.API, logger *log.Logger, conf *configs.Config) (Backend, error) {
	store, err := note.NewStore(api, conf.Dynamo.Table, dynamo.WithLogger(logger))
	if err != nil {
		return Backend{}, err
	}
	svc, err := note.NewService(store, service.WithLogger(logger))
	if err != nil {
		return Backend{}, err
	}
	m, err := note.NewMapper(
		store, fields.Reflect(),
		append(conf.MapperOptions(), mapper.WithLogger(logger))...,
	)
	if err != nil {
		return Backend{}, err
	}
	return Backend{Service: svc, Mapper: m}, nil
}

func New(opts ...func(*Option) *Option) (flarc.Command, error) {
	o := &Option{open: Open}
	for _, opt := range opts {
		o = opt(o)
	}

	list, err := entity.NewList("note", o.open)
	if err != nil {
		return nil, err
	}
	count, err := entity.NewCount("note", o.open)
	if err != nil {
		return nil, err
	}
	imp, err := entity.NewImport("note", o.open)
	if err != nil {
		return nil, err
	}

	return flarc.NewCommandGroup(
		"Manage notes in DynamoDB.",
		struct{}{},
		flarc.WithSubcommand("list", list),
		flarc.WithSubcommand("count", count),
		flarc.WithSubcommand("import", imp),
	)
}

type Option struct {
	open entity.Open[string, *note.Note, *note.NoteDto]
}

func WithOpen(open entity.Open[string, *note.Note, *note.NoteDto]) func(*Option) *Option {
	return func(o *Option) *Option {
		o.open = open
		return o
	}
}
