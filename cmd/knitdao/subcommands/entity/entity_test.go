package entity_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/gommon/log"
	"github.com/opst/knitdao/cmd/knitdao/subcommands/entity"
	"github.com/opst/knitdao/cmd/knitdao/subcommands/internal/commandline"
	subnote "github.com/opst/knitdao/cmd/knitdao/subcommands/note"
	"github.com/opst/knitdao/pkg/configs"
	"github.com/opst/knitdao/pkg/conn/db/dynamo/fake"
	domerr "github.com/opst/knitdao/pkg/domain/errors"
	"github.com/opst/knitdao/pkg/domain/note"
	"github.com/opst/knitdao/pkg/utils/pointer"
	"github.com/opst/knitdao/pkg/utils/try"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youta-t/flarc"
	"gopkg.in/yaml.v3"
)

type backend = entity.Backend[string, *note.Note, *note.NoteDto]

func openOn(table *fake.Table, closed *int) entity.Open[string, *note.Note, *note.NoteDto] {
	return func(_ context.Context, logger *log.Logger, conf *configs.Config) (backend, error) {
		be, err := subnote.Build(table, logger, conf)
		if err != nil {
			return backend{}, err
		}
		be.Close = func() { *closed++ }
		return be, nil
	}
}

func nullLogger() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}

func conf() *configs.Config {
	return &configs.Config{LogLevel: "info", Dynamo: configs.DynamoConfig{Table: "note"}}
}

func TestImportTask(t *testing.T) {
	ctx := context.Background()
	table := fake.New("note")
	closed := 0
	open := openOn(table, &closed)

	stamped := 0
	testee := entity.ImportTask(open, entity.BeforeSave(func(n *note.Note) {
		stamped++
		n.Tags = append(n.Tags, "imported")
	}))

	file := filepath.Join(t.TempDir(), "notes.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
- title: shopping
  body: milk
- title: reading
`), 0o644))

	stdout := new(bytes.Buffer)
	err := testee(ctx, nullLogger(), conf(), commandline.MockCommandline[entity.ImportFlags]{
		Fullname_: "knitdao note import",
		Stdin_:    strings.NewReader("- title: cooking\n"),
		Stdout_:   stdout,
		Stderr_:   io.Discard,
		Flags_:    entity.ImportFlags{Format: entity.FormatYaml},
		Args_:     map[string][]string{entity.ARG_FILE: {file, "-"}},
	}, nil)
	require.NoError(t, err)

	assert.Len(t, table.Items, 3)
	assert.Equal(t, 3, stamped)
	assert.Equal(t, 1, closed)

	printed := []*note.NoteDto{}
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &printed))
	require.Len(t, printed, 3)
	for i, title := range []string{"shopping", "reading", "cooking"} {
		assert.Equal(t, title, printed[i].Title)
		assert.NotNil(t, printed[i].ID, "saved notes have identity")
		assert.Equal(t, []string{"imported"}, printed[i].Tags)
	}

	t.Run("update by identity", func(t *testing.T) {
		stdout := new(bytes.Buffer)
		in := []*note.NoteDto{{ID: printed[1].ID, Title: "reading", Body: "chapter 2"}}
		err := testee(ctx, nullLogger(), conf(), commandline.MockCommandline[entity.ImportFlags]{
			Fullname_: "knitdao note import",
			Stdin_:    bytes.NewReader(try.To(yaml.Marshal(in)).OrFatal(t)),
			Stdout_:   stdout,
			Stderr_:   io.Discard,
			Flags_:    entity.ImportFlags{Format: entity.FormatJson},
			Args_:     map[string][]string{entity.ARG_FILE: {"-"}},
		}, nil)
		require.NoError(t, err)

		assert.Len(t, table.Items, 3)
		updated := []*note.NoteDto{}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &updated))
		require.Len(t, updated, 1)
		assert.Equal(t, *printed[1].ID, *updated[0].ID)
		assert.Equal(t, "chapter 2", updated[0].Body)
	})

	t.Run("dry run", func(t *testing.T) {
		err := testee(ctx, nullLogger(), conf(), commandline.MockCommandline[entity.ImportFlags]{
			Fullname_: "knitdao note import",
			Stdin_:    strings.NewReader("- title: draft\n"),
			Stdout_:   io.Discard,
			Stderr_:   io.Discard,
			Flags_:    entity.ImportFlags{DryRun: true},
			Args_:     map[string][]string{entity.ARG_FILE: {"-"}},
		}, nil)
		require.NoError(t, err)
		assert.Len(t, table.Items, 3)
	})

	t.Run("missing file", func(t *testing.T) {
		err := testee(ctx, nullLogger(), conf(), commandline.MockCommandline[entity.ImportFlags]{
			Fullname_: "knitdao note import",
			Stdout_:   io.Discard,
			Stderr_:   io.Discard,
			Args_:     map[string][]string{entity.ARG_FILE: {filepath.Join(t.TempDir(), "missing.yaml")}},
		}, nil)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestListAndCountTask(t *testing.T) {
	ctx := context.Background()
	table := fake.New("note")
	closed := 0
	open := openOn(table, &closed)

	be := try.To(open(ctx, nullLogger(), conf())).OrFatal(t)
	_, err := be.Service.SaveAll(ctx, []*note.Note{{ID: pointer.Ref("n-1"), Title: "ghost"}})
	assert.ErrorIs(t, err, domerr.ErrMissing, "notes with identity are updated, not inserted")
	assert.Empty(t, table.Items)

	for _, title := range []string{"first", "second", "third"} {
		try.To(be.Service.Save(ctx, &note.Note{Title: title})).OrFatal(t)
	}

	stdout := new(bytes.Buffer)
	err = entity.ListTask(open)(ctx, nullLogger(), conf(), commandline.MockCommandline[entity.ListFlags]{
		Fullname_: "knitdao note list",
		Stdout_:   stdout,
		Stderr_:   io.Discard,
		Flags_:    entity.ListFlags{Format: entity.FormatJson},
	}, nil)
	require.NoError(t, err)

	listed := []*note.NoteDto{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &listed))
	titles := []string{}
	for _, d := range listed {
		titles = append(titles, d.Title)
	}
	assert.ElementsMatch(t, []string{"first", "second", "third"}, titles)

	stdout.Reset()
	err = entity.CountTask(open)(ctx, nullLogger(), conf(), commandline.MockCommandline[struct{}]{
		Fullname_: "knitdao note count",
		Stdout_:   stdout,
		Stderr_:   io.Discard,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "3\n", stdout.String())

	err = entity.ListTask(open)(ctx, nullLogger(), conf(), commandline.MockCommandline[entity.ListFlags]{
		Fullname_: "knitdao note list",
		Stdout_:   io.Discard,
		Stderr_:   io.Discard,
		Flags_:    entity.ListFlags{Format: "xml"},
	}, nil)
	assert.ErrorIs(t, err, flarc.ErrUsage)
	assert.Equal(t, 3, closed)
}
