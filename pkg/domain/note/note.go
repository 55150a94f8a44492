// Package note is an example domain stored in DynamoDB.
package note

import (
	kdynamo "github.com/opst/knitdao/pkg/conn/db/dynamo"
	"github.com/opst/knitdao/pkg/domain/binding"
	"github.com/opst/knitdao/pkg/domain/mapper"
	"github.com/opst/knitdao/pkg/domain/mapper/fields"
	"github.com/opst/knitdao/pkg/domain/service"
	"github.com/opst/knitdao/pkg/domain/store/db"
	"github.com/opst/knitdao/pkg/domain/store/db/dynamo"
	"github.com/opst/knitdao/pkg/domain/tx"
)

// Note is an item of the table "note", keyed by "id".
type Note struct {
	ID    *string  `dynamodbav:"id"`
	Title string   `dynamodbav:"title"`
	Body  string   `dynamodbav:"body,omitempty"`
	Tags  []string `dynamodbav:"tags,stringset,omitempty"`
}

type NoteDto struct {
	ID    *string  `json:"id,omitempty" yaml:"id,omitempty"`
	Title string   `json:"title" yaml:"title"`
	Body  string   `json:"body,omitempty" yaml:"body,omitempty"`
	Tags  []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

func (d *NoteDto) Identity() *string {
	return d.ID
}

type Store = db.Interface[string, *Note]

type Service = service.Service[string, *Note]

type Mapper = mapper.Mapper[string, *Note, *NoteDto]

// NewStore returns the store of notes in table. Empty table means "note".
func NewStore(api kdynamo.API, table string, opts ...dynamo.Option) (*dynamo.Store[*Note], error) {
	bopts := []binding.Option{}
	if table != "" {
		bopts = append(bopts, binding.WithTable(table))
	}
	b, err := binding.Of[*Note](bopts...)
	if err != nil {
		return nil, err
	}
	return dynamo.New[*Note](api, b, opts...)
}

// NewService returns the service of notes. DynamoDB has no transactions to join.
func NewService(s Store, opts ...service.Option) (*Service, error) {
	return service.New[string, *Note](s, tx.None(), opts...)
}

func NewMapper(s Store, copier fields.Copier, opts ...mapper.Option) (*Mapper, error) {
	return mapper.New[string, *Note, *NoteDto](s, copier, opts...)
}
