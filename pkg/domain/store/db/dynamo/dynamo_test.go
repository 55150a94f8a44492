package dynamo_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/opst/knitdao/pkg/conn/db/dynamo/fake"
	"github.com/opst/knitdao/pkg/domain/binding"
	domerr "github.com/opst/knitdao/pkg/domain/errors"
	"github.com/opst/knitdao/pkg/domain/store/db/dynamo"
	"github.com/opst/knitdao/pkg/utils/pointer"
	"github.com/opst/knitdao/pkg/utils/retry"
	"github.com/opst/knitdao/pkg/utils/try"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Note struct {
	ID    *string `dynamodbav:"id"`
	Title string  `dynamodbav:"title"`
	Tags  []string
}

func newStore(t *testing.T, api *fake.Table) *dynamo.Store[*Note] {
	t.Helper()
	return try.To(dynamo.New[*Note](api, binding.Must(binding.Of[*Note]()))).OrFatal(t)
}

func TestNew_Failures(t *testing.T) {
	type Numbered struct {
		ID *int64
	}
	api := fake.New("note")

	_, err := dynamo.New[*Numbered](api, binding.Must(binding.Of[*Numbered]()))
	assert.ErrorIs(t, err, domerr.ErrTypeResolution)

	_, err = dynamo.New[Note](api, binding.Must(binding.Of[Note]()))
	assert.ErrorIs(t, err, domerr.ErrTypeResolution)

	_, err = dynamo.New[*Note](api, binding.Must(binding.Of[*Numbered]()))
	assert.ErrorIs(t, err, domerr.ErrTypeResolution)
}

func TestStore_PersistAndFind(t *testing.T) {
	ctx := context.Background()
	api := fake.New("note")
	testee := newStore(t, api)

	n := &Note{Title: "groceries", Tags: []string{"home"}}
	require.NoError(t, testee.Persist(ctx, n))
	require.NotNil(t, n.ID, "identity should be assigned")
	assert.Contains(t, api.Items, *n.ID)

	found, err := testee.Find(ctx, *n.ID)
	require.NoError(t, err)
	assert.Equal(t, n, found)

	n.Title = "errands"
	require.NoError(t, testee.Persist(ctx, n))
	found, err = testee.Find(ctx, *n.ID)
	require.NoError(t, err)
	assert.Equal(t, "errands", found.Title)

	count, err := testee.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	absent, err := testee.Find(ctx, "no-such-note")
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestStore_Persist_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("update missing entity", func(t *testing.T) {
		testee := newStore(t, fake.New("note"))
		err := testee.Persist(ctx, &Note{ID: pointer.Ref("ghost")})
		assert.ErrorIs(t, err, domerr.ErrMissing)
	})

	t.Run("insert failure leaves entity transient", func(t *testing.T) {
		api := fake.New("note")
		api.FailWith = errors.New("fake")
		testee := newStore(t, api)

		n := &Note{Title: "lost"}
		err := testee.Persist(ctx, n)
		assert.ErrorIs(t, err, api.FailWith)
		assert.Nil(t, n.ID)
	})

	t.Run("unencodable entity is left transient", func(t *testing.T) {
		api := fake.New("draft")
		testee := try.To(
			dynamo.New[*Draft](api, binding.Must(binding.Of[*Draft]())),
		).OrFatal(t)

		d := &Draft{Body: sealed{reason: "redacted"}}
		err := testee.Persist(ctx, d)
		assert.ErrorIs(t, err, errSealed)
		assert.Nil(t, d.ID)
		assert.Empty(t, api.Items)
	})
}

var errSealed = errors.New("sealed")

type sealed struct {
	reason string
}

func (s sealed) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return nil, fmt.Errorf("%s: %w", s.reason, errSealed)
}

type Draft struct {
	ID   *string `dynamodbav:"id"`
	Body sealed
}

func TestStore_FindAllAndCount(t *testing.T) {
	ctx := context.Background()
	api := fake.New("note")
	testee := newStore(t, api)

	stored := []*Note{}
	for i := 0; i < 5; i++ {
		n := &Note{Title: fmt.Sprintf("note-%d", i)}
		require.NoError(t, testee.Persist(ctx, n))
		stored = append(stored, n)
	}

	all, err := testee.FindAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, stored, all, "all pages should be read")

	count, err := testee.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestStore_FindByIds(t *testing.T) {
	ctx := context.Background()
	api := fake.New("note")
	api.PageSize = 3
	testee := newStore(t, api)

	stored := []*Note{}
	for i := 0; i < 4; i++ {
		n := &Note{Title: fmt.Sprintf("note-%d", i)}
		require.NoError(t, testee.Persist(ctx, n))
		stored = append(stored, n)
	}

	ids := []string{*stored[0].ID, *stored[1].ID, *stored[0].ID, "ghost", *stored[2].ID, *stored[3].ID}
	found, err := testee.FindByIds(ctx, ids)
	require.NoError(t, err)

	assert.Equal(t, map[string]*Note{
		*stored[0].ID: stored[0],
		*stored[1].ID: stored[1],
		*stored[2].ID: stored[2],
		*stored[3].ID: stored[3],
	}, found)
	assert.Equal(t, [][]string{
		{*stored[0].ID, *stored[1].ID, "ghost", *stored[2].ID, *stored[3].ID},
		{*stored[2].ID, *stored[3].ID},
	}, api.BatchRequests, "duplicates are requested once and unprocessed keys are requested again")

	t.Run("no ids", func(t *testing.T) {
		api.BatchRequests = nil
		found, err := testee.FindByIds(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, found)
		assert.NotNil(t, found)
		assert.Empty(t, api.BatchRequests)
	})

	t.Run("chunked", func(t *testing.T) {
		api.BatchRequests = nil
		api.PageSize = dynamo.BatchGetLimit
		ids := make([]string, dynamo.BatchGetLimit+1)
		for i := range ids {
			ids[i] = fmt.Sprintf("ghost-%d", i)
		}
		found, err := testee.FindByIds(ctx, ids)
		require.NoError(t, err)
		assert.Empty(t, found)
		require.Len(t, api.BatchRequests, 2)
		assert.Len(t, api.BatchRequests[0], dynamo.BatchGetLimit)
		assert.Len(t, api.BatchRequests[1], 1)
	})
}

func TestStore_FindByIds_Unprocessed(t *testing.T) {
	ctx := context.Background()
	api := fake.New("note")
	api.PageSize = 0
	testee := try.To(dynamo.New[*Note](
		api, binding.Must(binding.Of[*Note]()),
		dynamo.WithBackoff(func() retry.Backoff { return retry.StaticBackoff(time.Millisecond) }),
	)).OrFatal(t)

	_, err := testee.FindByIds(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Len(t, api.BatchRequests, 8)
}

func TestStore_Remove(t *testing.T) {
	ctx := context.Background()
	api := fake.New("note")
	testee := newStore(t, api)

	n := &Note{Title: "temporary"}
	require.NoError(t, testee.Persist(ctx, n))

	require.NoError(t, testee.Remove(ctx, n))
	assert.Empty(t, api.Items)

	assert.ErrorIs(t, testee.Remove(ctx, n), domerr.ErrMissing)
	assert.ErrorIs(t, testee.Remove(ctx, &Note{}), domerr.ErrMissing)
}
