package note_test

import (
	"context"
	"errors"
	"testing"

	"github.com/labstack/gommon/log"
	subnote "github.com/opst/knitdao/cmd/knitdao/subcommands/note"
	"github.com/opst/knitdao/pkg/configs"
	"github.com/opst/knitdao/pkg/conn/db/dynamo/fake"
	domerr "github.com/opst/knitdao/pkg/domain/errors"
	"github.com/opst/knitdao/pkg/domain/mapper"
	"github.com/opst/knitdao/pkg/domain/note"
	"github.com/opst/knitdao/pkg/utils/pointer"
)

func TestNew(t *testing.T) {
	if _, err := subnote.New(); err != nil {
		t.Fatal(err)
	}
}

func TestOpen_WithoutTable(t *testing.T) {
	_, err := subnote.Open(context.Background(), log.New("test"), &configs.Config{})
	if !errors.Is(err, configs.ErrInvalidConfig) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuild_FollowsMapperConfig(t *testing.T) {
	conf := &configs.Config{Dynamo: configs.DynamoConfig{Table: "memo"}}
	conf.Mapper.NotFound.NotFoundPolicy = mapper.Strict

	table := fake.New("memo")
	be, err := subnote.Build(table, log.New("test"), conf)
	if err != nil {
		t.Fatal(err)
	}

	_, err = be.Mapper.ToEntity(context.Background(), &note.NoteDto{ID: pointer.Ref("ghost")})
	if !errors.Is(err, domerr.ErrMissing) {
		t.Errorf("unexpected error: %v", err)
	}
}
