// Package dynamo connects to DynamoDB.
package dynamo

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// subset of *dynamodb.Client used by stores.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

var _ API = &dynamodb.Client{}

type options struct {
	profile  string
	region   string
	endpoint string
}

type Option func(*options) *options

// WithProfile selects the shared config profile.
func WithProfile(name string) Option {
	return func(o *options) *options {
		o.profile = name
		return o
	}
}

func WithRegion(region string) Option {
	return func(o *options) *options {
		o.region = region
		return o
	}
}

// WithEndpoint sends requests to the endpoint, for example DynamoDB Local.
func WithEndpoint(url string) Option {
	return func(o *options) *options {
		o.endpoint = url
		return o
	}
}

// Connect loads the default AWS config and creates a client.
func Connect(ctx context.Context, opts ...Option) (*dynamodb.Client, error) {
	o := &options{}
	for _, opt := range opts {
		o = opt(o)
	}

	loaders := []func(*config.LoadOptions) error{}
	if o.profile != "" {
		loaders = append(loaders, config.WithSharedConfigProfile(o.profile))
	}
	if o.region != "" {
		loaders = append(loaders, config.WithRegion(o.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(cfg, func(do *dynamodb.Options) {
		if o.endpoint != "" {
			do.BaseEndpoint = aws.String(o.endpoint)
		}
	}), nil
}
