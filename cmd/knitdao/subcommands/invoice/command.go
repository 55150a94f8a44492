package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/opst/knitdao/cmd/knitdao/subcommands/entity"
	"github.com/opst/knitdao/pkg/configs"
	"github.com/opst/knitdao/pkg/conn/db/postgres/pool"
	"github.com/opst/knitdao/pkg/domain/invoice"
	"github.com/opst/knitdao/pkg/domain/mapper"
	"github.com/opst/knitdao/pkg/domain/mapper/fields"
	"github.com/opst/knitdao/pkg/domain/service"
	"github.com/opst/knitdao/pkg/domain/store/db/postgres"
	"github.com/opst/knitdao/pkg/domain/tx"
	"github.com/youta-t/flarc"
)

type Backend = entity.Backend[int64, *invoice.Invoice, *invoice.InvoiceDto]

// Open connects to the database of the config.
func Open(ctx context.Context, logger *log.Logger, conf *configs.Config) (Backend, error) {
	if conf.Database == "" {
		return Backend{}, fmt.Errorf("%w: database is not configured", configs.ErrInvalidConfig)
	}
	p, closePool, err := pool.Connect(ctx, conf.Database)
	if err != nil {
		return Backend{}, err
	}

	be, err := Build(p, logger, conf)
	if err != nil {
		closePool()
		return Backend{}, err
	}
	be.Close = closePool
	return be, nil
}

// Build makes the service and the mapper of invoices on p.
func Build(p pool.Pool, logger *log.Logger, conf *configs.Config) (Backend, error) {
	store, err := invoice.NewStore(p, postgres.WithLogger(logger))
	if err != nil {
		return Backend{}, err
	}
	svc, err := service.New[int64, *invoice.Invoice](
		store, tx.Postgres(p, tx.WithLogger(logger)), service.WithLogger(logger),
	)
	if err != nil {
		return Backend{}, err
	}
	m, err := invoice.NewMapper(
		store, fields.Reflect(),
		append(
			conf.MapperOptions(),
			mapper.WithScope(tx.Postgres(p, tx.WithLogger(logger))),
			mapper.WithLogger(logger),
		)...,
	)
	if err != nil {
		return Backend{}, err
	}
	return Backend{Service: svc, Mapper: m}, nil
}

type options struct {
	open  entity.Open[int64, *invoice.Invoice, *invoice.InvoiceDto]
	clock func() time.Time
}

type Option func(*options) *options

func WithOpen(open entity.Open[int64, *invoice.Invoice, *invoice.InvoiceDto]) Option {
	return func(o *options) *options {
		o.open = open
		return o
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *options) *options {
		o.clock = clock
		return o
	}
}

func New(opts ...Option) (flarc.Command, error) {
	o := &options{open: Open, clock: time.Now}
	for _, opt := range opts {
		o = opt(o)
	}

	list, err := entity.NewList("invoice", o.open)
	if err != nil {
		return nil, err
	}
	count, err := entity.NewCount("invoice", o.open)
	if err != nil {
		return nil, err
	}
	imp, err := entity.NewImport(
		"invoice", o.open,
		entity.BeforeSave(func(i *invoice.Invoice) { i.Issue(o.clock()) }),
	)
	if err != nil {
		return nil, err
	}

	return flarc.NewCommandGroup(
		"Manage invoices in PostgreSQL.",
		struct{}{},
		flarc.WithSubcommand("list", list),
		flarc.WithSubcommand("count", count),
		flarc.WithSubcommand("import", imp),
	)
}
