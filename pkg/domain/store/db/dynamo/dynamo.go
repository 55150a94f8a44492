// Package dynamo implements the entity store on DynamoDB.
//
// Entities are items keyed by a string partition key, which is the identity of entity.
// New entities get a random UUID as their identity.
//
// DynamoDB has no transactions which the store can join, so use it with tx.None().
package dynamo

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	kdynamo "github.com/opst/knitdao/pkg/conn/db/dynamo"
	"github.com/opst/knitdao/pkg/domain/binding"
	domerr "github.com/opst/knitdao/pkg/domain/errors"
	"github.com/opst/knitdao/pkg/domain/store/db"
	xe "github.com/opst/knitdao/pkg/errors"
	"github.com/opst/knitdao/pkg/utils/retry"
	"github.com/opst/knitdao/pkg/utils/slices"
)

// max number of keys in one BatchGetItem request
const BatchGetLimit = 100

// max number of BatchGetItem requests for one chunk, including retries of unprocessed keys.
const maxBatchAttempts = 8

type Store[E any] struct {
	api     kdynamo.API
	binding binding.Binding
	logger  *log.Logger
	table   string
	key     string
	backoff func() retry.Backoff
}

var _ db.Interface[string, *struct{ ID *string }] = &Store[*struct{ ID *string }]{}

type Option func(*options) *options

type options struct {
	logger  *log.Logger
	backoff func() retry.Backoff
}

func WithLogger(logger *log.Logger) Option {
	return func(o *options) *options {
		o.logger = logger
		return o
	}
}

// WithBackoff sets the waiting before requesting unprocessed keys again.
//
// backoff is called for each chunk of keys. By default, exponential from 50ms.
func WithBackoff(backoff func() retry.Backoff) Option {
	return func(o *options) *options {
		o.backoff = backoff
		return o
	}
}

// New returns a store of E on the table b.Table().
//
// E should be a pointer to struct whose identity is *string.
// The key attribute is named by the `dynamodbav` tag of the identity field, or its field name.
func New[E any](api kdynamo.API, b binding.Binding, opts ...Option) (*Store[E], error) {
	o := &options{
		logger: log.New("knitdao/dynamo"),
		backoff: func() retry.Backoff {
			return retry.ExponentialBackoff(50*time.Millisecond, 2)
		},
	}
	for _, opt := range opts {
		o = opt(o)
	}

	resolved, err := binding.Of[E]()
	if err != nil {
		o.logger.Errorf("store is not resolved: %v", err)
		return nil, err
	}
	if resolved.Entity() != b.Entity() {
		err := &binding.TypeResolutionError{
			Role: "entity", Type: resolved.Entity(),
			Reason: "binding is made for " + b.Entity().String(),
		}
		o.logger.Errorf("store is not resolved: %v", err)
		return nil, err
	}
	if err := b.RequirePointer(); err != nil {
		o.logger.Errorf("store is not resolved: %v", err)
		return nil, err
	}
	if err := binding.RequireIdentity[string](b); err != nil {
		o.logger.Errorf("store is not resolved: %v", err)
		return nil, err
	}

	return &Store[E]{
		api:     api,
		binding: b,
		logger:  o.logger,
		table:   b.Table(),
		key:     keyAttribute(b.IdentityField()),
		backoff: o.backoff,
	}, nil
}

func keyAttribute(sf reflect.StructField) string {
	if name, _, _ := strings.Cut(sf.Tag.Get("dynamodbav"), ","); name != "" {
		return name
	}
	return sf.Name
}

func (s *Store[E]) keyOf(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		s.key: &types.AttributeValueMemberS{Value: id},
	}
}

func (s *Store[E]) missing(id string) error {
	return xe.Errorf("%s in %s: %w", id, s.table, domerr.ErrMissing)
}

func (s *Store[E]) unmarshal(item map[string]types.AttributeValue) (E, error) {
	e := s.binding.NewEntity()
	if err := attributevalue.UnmarshalMap(item, e); err != nil {
		return *new(E), xe.Wrap(err)
	}
	return e.(E), nil
}

func (s *Store[E]) Find(ctx context.Context, id string) (E, error) {
	s.logger.Debugf("%s: find %s", s.table, id)
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       s.keyOf(id),
	})
	if err != nil {
		return *new(E), xe.Wrap(err)
	}
	if out.Item == nil {
		return *new(E), nil
	}
	return s.unmarshal(out.Item)
}

func (s *Store[E]) FindAll(ctx context.Context) ([]E, error) {
	s.logger.Debugf("%s: find all", s.table)
	ret := []E{}
	paginator := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{
		TableName: aws.String(s.table),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, xe.Wrap(err)
		}
		for _, item := range page.Items {
			e, err := s.unmarshal(item)
			if err != nil {
				return nil, err
			}
			ret = append(ret, e)
		}
	}
	return ret, nil
}

func (s *Store[E]) Count(ctx context.Context) (int64, error) {
	var n int64
	paginator := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{
		TableName: aws.String(s.table),
		Select:    types.SelectCount,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, xe.Wrap(err)
		}
		n += int64(page.Count)
	}
	return n, nil
}

// FindByIds gets entities with BatchGetItem, BatchGetLimit keys per request.
//
// Duplicated ids are requested once. Unprocessed keys are requested again.
func (s *Store[E]) FindByIds(ctx context.Context, ids []string) (map[string]E, error) {
	ret := map[string]E{}
	if len(ids) == 0 {
		return ret, nil
	}

	unique := make([]string, 0, len(ids))
	seen := map[string]struct{}{}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	s.logger.Debugf("%s: find by %d ids", s.table, len(unique))

	for _, chunk := range slices.Chunk(unique, BatchGetLimit) {
		keys := slices.Map(chunk, s.keyOf)
		_, err := retry.Blocking(ctx, retry.Limited(maxBatchAttempts-1, s.backoff()), func() (struct{}, error) {
			out, err := s.api.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: map[string]types.KeysAndAttributes{
					s.table: {Keys: keys},
				},
			})
			if err != nil {
				return struct{}{}, err
			}
			for _, item := range out.Responses[s.table] {
				e, err := s.unmarshal(item)
				if err != nil {
					return struct{}{}, err
				}
				id, ok := s.binding.IdentityOf(e)
				if !ok {
					return struct{}{}, xe.Errorf("%s: found item without key", s.table)
				}
				ret[id.(string)] = e
			}

			keys = out.UnprocessedKeys[s.table].Keys
			if len(keys) != 0 {
				s.logger.Debugf("%s: %d keys are unprocessed. retry", s.table, len(keys))
				return struct{}{}, retry.ErrRetry
			}
			return struct{}{}, nil
		})
		if errors.Is(err, retry.ErrExhausted) {
			return nil, xe.Errorf("%s: %d keys are left unprocessed: %w", s.table, len(keys), err)
		}
		if err != nil {
			return nil, xe.Wrap(err)
		}
	}
	return ret, nil
}

// Persist puts the entity.
//
// An entity without identity gets a new one and is put only when the key is not used.
// An entity with identity replaces the stored item, or ErrMissing when none are stored.
func (s *Store[E]) Persist(ctx context.Context, e E) error {
	condition := "attribute_exists(#key)"
	id, stored := s.binding.IdentityOf(e)
	if !stored {
		id = uuid.NewString()
		condition = "attribute_not_exists(#key)"
		if err := s.binding.SetIdentity(e, id); err != nil {
			return xe.Wrap(err)
		}
	}

	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		if !stored {
			return s.forget(e, xe.Wrap(err))
		}
		return xe.Wrap(err)
	}

	s.logger.Debugf("%s: put %s", s.table, id)
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.table),
		Item:                     item,
		ConditionExpression:      aws.String(condition),
		ExpressionAttributeNames: map[string]string{"#key": s.key},
	})
	if err == nil {
		return nil
	}

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		if stored {
			return s.missing(id.(string))
		}
		return s.forget(e, xe.Errorf("%s in %s: %w", id, s.table, domerr.ErrConflict))
	}
	if !stored {
		return s.forget(e, xe.Wrap(err))
	}
	return xe.Wrap(err)
}

// forget clears the identity assigned by a failed insert, and returns cause.
func (s *Store[E]) forget(e E, cause error) error {
	if err := s.binding.SetIdentity(e, nil); err != nil {
		return errors.Join(cause, xe.Errorf("%s: identity is left assigned: %w", s.table, err))
	}
	return cause
}

func (s *Store[E]) Remove(ctx context.Context, e E) error {
	id, stored := s.binding.IdentityOf(e)
	if !stored {
		return s.missing("(no identity)")
	}

	s.logger.Debugf("%s: delete %s", s.table, id)
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.table),
		Key:                      s.keyOf(id.(string)),
		ConditionExpression:      aws.String("attribute_exists(#key)"),
		ExpressionAttributeNames: map[string]string{"#key": s.key},
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return s.missing(id.(string))
	}
	return xe.Wrap(err)
}
