// Package fake provides an in-memory DynamoDB for tests.
package fake

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	kdynamo "github.com/opst/knitdao/pkg/conn/db/dynamo"
)

// Table is an in-memory DynamoDB table keyed by the string attribute "id".
//
// It understands condition expressions "attribute_exists(#key)" and "attribute_not_exists(#key)" only.
type Table struct {
	Name string

	// keys in insertion order. Scan follows this order.
	Order []string
	Items map[string]map[string]types.AttributeValue

	// max number of items in a Scan page and a BatchGetItem response
	PageSize int

	// keys requested by each BatchGetItem
	BatchRequests [][]string

	// if set, PutItem fails with it.
	FailWith error
}

var _ kdynamo.API = &Table{}

func New(name string) *Table {
	return &Table{Name: name, Items: map[string]map[string]types.AttributeValue{}, PageSize: 2}
}

func keyOf(item map[string]types.AttributeValue) string {
	return item["id"].(*types.AttributeValueMemberS).Value
}

func (f *Table) check(table *string, condition *string, exists bool) error {
	if aws.ToString(table) != f.Name {
		return &types.ResourceNotFoundException{Message: table}
	}
	switch aws.ToString(condition) {
	case "attribute_exists(#key)":
		if !exists {
			return &types.ConditionalCheckFailedException{}
		}
	case "attribute_not_exists(#key)":
		if exists {
			return &types.ConditionalCheckFailedException{}
		}
	}
	return nil
}

func (f *Table) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if err := f.check(in.TableName, nil, false); err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: f.Items[keyOf(in.Key)]}, nil
}

func (f *Table) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	k := keyOf(in.Item)
	_, exists := f.Items[k]
	if err := f.check(in.TableName, in.ConditionExpression, exists); err != nil {
		return nil, err
	}
	if !exists {
		f.Order = append(f.Order, k)
	}
	f.Items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *Table) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	k := keyOf(in.Key)
	_, exists := f.Items[k]
	if err := f.check(in.TableName, in.ConditionExpression, exists); err != nil {
		return nil, err
	}
	delete(f.Items, k)
	for i := range f.Order {
		if f.Order[i] == k {
			f.Order = append(f.Order[:i], f.Order[i+1:]...)
			break
		}
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *Table) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	req := in.RequestItems[f.Name]
	keys := []string{}
	for _, k := range req.Keys {
		keys = append(keys, keyOf(k))
	}
	f.BatchRequests = append(f.BatchRequests, keys)

	out := &dynamodb.BatchGetItemOutput{
		Responses:       map[string][]map[string]types.AttributeValue{},
		UnprocessedKeys: map[string]types.KeysAndAttributes{},
	}
	for i, k := range req.Keys {
		if f.PageSize <= i {
			out.UnprocessedKeys[f.Name] = types.KeysAndAttributes{Keys: req.Keys[i:]}
			break
		}
		if item, ok := f.Items[keyOf(k)]; ok {
			out.Responses[f.Name] = append(out.Responses[f.Name], item)
		}
	}
	return out, nil
}

func (f *Table) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if err := f.check(in.TableName, nil, false); err != nil {
		return nil, err
	}
	start := 0
	if in.ExclusiveStartKey != nil {
		last := keyOf(in.ExclusiveStartKey)
		for i, k := range f.Order {
			if k == last {
				start = i + 1
			}
		}
	}
	end := min(start+f.PageSize, len(f.Order))

	out := &dynamodb.ScanOutput{}
	for _, k := range f.Order[start:end] {
		if in.Select != types.SelectCount {
			out.Items = append(out.Items, f.Items[k])
		}
		out.Count++
	}
	if end < len(f.Order) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: f.Order[end-1]},
		}
	}
	return out, nil
}
