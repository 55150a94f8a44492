package note_test

import (
	"context"
	"testing"

	"github.com/opst/knitdao/pkg/conn/db/dynamo/fake"
	domerr "github.com/opst/knitdao/pkg/domain/errors"
	"github.com/opst/knitdao/pkg/domain/mapper"
	"github.com/opst/knitdao/pkg/domain/mapper/fields"
	"github.com/opst/knitdao/pkg/domain/note"
	"github.com/opst/knitdao/pkg/utils/pointer"
	"github.com/opst/knitdao/pkg/utils/try"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_TableName(t *testing.T) {
	ctx := context.Background()

	table := fake.New("memo")
	store := try.To(note.NewStore(table, "memo")).OrFatal(t)
	require.NoError(t, store.Persist(ctx, &note.Note{Title: "hello"}))
	assert.Len(t, table.Items, 1)

	byDefault := try.To(note.NewStore(fake.New("note"), "")).OrFatal(t)
	_, err := byDefault.FindAll(ctx)
	assert.NoError(t, err)
}

func TestImportAndUpdate(t *testing.T) {
	ctx := context.Background()
	table := fake.New("note")
	store := try.To(note.NewStore(table, "")).OrFatal(t)
	svc := try.To(note.NewService(store)).OrFatal(t)
	testee := try.To(note.NewMapper(store, fields.Reflect())).OrFatal(t)

	imported := try.To(testee.ToEntityList(ctx, []*note.NoteDto{
		{Title: "shopping", Tags: []string{"home"}},
		{Title: "reading", Body: "chapter 3"},
	})).OrFatal(t)
	assert.Empty(t, table.BatchRequests, "new notes are not looked up")

	saved := try.To(svc.SaveAll(ctx, imported)).OrFatal(t)
	require.Len(t, saved, 2)
	shopping, reading := *saved[0].ID, *saved[1].ID

	updated := try.To(testee.ToEntityList(ctx, []*note.NoteDto{
		{ID: pointer.Ref(reading), Title: "reading", Body: "chapter 4"},
		{ID: pointer.Ref(shopping), Title: "shopping", Tags: []string{"home", "weekly"}},
		{Title: "cooking"},
	})).OrFatal(t)
	assert.Equal(t, [][]string{{reading, shopping}}, table.BatchRequests)
	try.To(svc.SaveAll(ctx, updated)).OrFatal(t)

	assert.Equal(t, int64(3), try.To(svc.Count(ctx)).OrFatal(t))

	got := try.To(svc.Get(ctx, reading)).OrFatal(t)
	assert.Equal(t, "chapter 4", got.Body)
	got = try.To(svc.Get(ctx, shopping)).OrFatal(t)
	assert.ElementsMatch(t, []string{"home", "weekly"}, got.Tags)

	dto := try.To(testee.ToDto(got)).OrFatal(t)
	assert.Equal(t, shopping, *dto.ID)
	assert.Equal(t, "shopping", dto.Title)
}

func TestStrictMapper(t *testing.T) {
	ctx := context.Background()
	store := try.To(note.NewStore(fake.New("note"), "")).OrFatal(t)
	testee := try.To(note.NewMapper(
		store, fields.Reflect(), mapper.WithNotFoundPolicy(mapper.Strict),
	)).OrFatal(t)

	_, err := testee.ToEntity(ctx, &note.NoteDto{ID: pointer.Ref("removed"), Title: "gone"})
	assert.ErrorIs(t, err, domerr.ErrMissing)
}
