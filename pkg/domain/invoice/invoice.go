// Package invoice is an example domain built on the generic store, service and mapper.
package invoice

import (
	"time"

	"github.com/opst/knitdao/pkg/conn/db/postgres/pool"
	"github.com/opst/knitdao/pkg/domain/binding"
	"github.com/opst/knitdao/pkg/domain/mapper"
	"github.com/opst/knitdao/pkg/domain/mapper/fields"
	"github.com/opst/knitdao/pkg/domain/service"
	"github.com/opst/knitdao/pkg/domain/store/db"
	"github.com/opst/knitdao/pkg/domain/store/db/postgres"
	"github.com/opst/knitdao/pkg/domain/tx"
	"github.com/shopspring/decimal"
)

// Invoice is a record of the table "invoice".
type Invoice struct {
	ID       *int64 `sql:"id"`
	Customer string
	Amount   decimal.Decimal
	Note     *string
	IssuedAt time.Time
}

// Issue sets IssuedAt to now, unless it is set already.
func (i *Invoice) Issue(now time.Time) {
	if i.IssuedAt.IsZero() {
		i.IssuedAt = now
	}
}

// InvoiceDto is the external shape of Invoice.
//
// IssuedAt is optional. When it is omitted, updating an invoice keeps its date.
// Note is not: updating an invoice with the note omitted clears the stored note.
type InvoiceDto struct {
	ID       *int64          `json:"id,omitempty" yaml:"id,omitempty"`
	Customer string          `json:"customer" yaml:"customer"`
	Amount   decimal.Decimal `json:"amount" yaml:"amount"`
	Note     *string         `json:"note,omitempty" yaml:"note,omitempty"`
	IssuedAt *time.Time      `json:"issuedAt,omitempty" yaml:"issuedAt,omitempty"`
}

func (d *InvoiceDto) Identity() *int64 {
	return d.ID
}

type Store = db.Interface[int64, *Invoice]

type Service = service.Service[int64, *Invoice]

type Mapper = mapper.Mapper[int64, *Invoice, *InvoiceDto]

// NewStore returns the store of invoices on PostgreSQL.
func NewStore(p pool.Queryer, opts ...postgres.Option) (*postgres.Store[int64, *Invoice], error) {
	b, err := binding.Of[*Invoice]()
	if err != nil {
		return nil, err
	}
	return postgres.New[int64, *Invoice](p, b, opts...)
}

// NewService returns the service of invoices, running in transactions of p.
func NewService(p pool.Pool, opts ...service.Option) (*Service, error) {
	s, err := NewStore(p)
	if err != nil {
		return nil, err
	}
	return service.New[int64, *Invoice](s, tx.Postgres(p), opts...)
}

// NewMapper returns the mapper of invoices.
func NewMapper(s Store, copier fields.Copier, opts ...mapper.Option) (*Mapper, error) {
	return mapper.New[int64, *Invoice, *InvoiceDto](s, copier, opts...)
}
