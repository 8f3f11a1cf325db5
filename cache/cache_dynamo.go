package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(ctx context.Context, u *setting.URL) (Cache, error) {
		table, _ := u.SplitPath()
		if table == "" {
			table = u.Host()
		}
		return NewDynamo(ctx, DynamoConfig{
			Table:      table,
			Region:     u.String("region", setting.FirstEnv("AWS_REGION", "AWS_DEFAULT_REGION")),
			Endpoint:   u.String("endpoint", ""),
			DefaultTTL: u.Duration("ttl", DefaultTTL),
			MaxTries:   u.Int("max-tries", DefaultModifyMaxTries),
		})
	}, "dynamodb", "aws-dynamodb")
}

// DynamoClient is the subset of the DynamoDB API the driver uses.
type DynamoClient interface {
	GetItem(ctx context.Context, input *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, input *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, input *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoConfig controls the DynamoDB cache driver.
type DynamoConfig struct {
	// Table names the backing table. Its key schema is a single string
	// partition key "k"; entry TTL relies on a table TTL policy over the
	// numeric "exp" attribute (see the terraform package for the matching
	// resource fragment).
	Table    string
	Region   string
	Endpoint string
	// Client overrides the SDK client, used by tests.
	Client     DynamoClient
	DefaultTTL time.Duration
	MaxTries   int
}

// Dynamo implements Cache on a DynamoDB table using conditional writes for
// compare-and-swap. DynamoDB TTL reaping is eventual, so reads filter
// expired items themselves.
type Dynamo struct {
	client     DynamoClient
	table      string
	defaultTTL time.Duration
	maxTries   int
	now        func() time.Time
}

const (
	dynamoAttrKey     = "k"
	dynamoAttrValue   = "v"
	dynamoAttrVersion = "ver"
	dynamoAttrExpires = "exp"
)

// NewDynamo resolves AWS configuration and returns a table-backed cache.
func NewDynamo(ctx context.Context, cfg DynamoConfig) (*Dynamo, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("cache: dynamodb table required (dynamodb://table?region=eu-north-1)")
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.MaxTries <= 0 {
		cfg.MaxTries = DefaultModifyMaxTries
	}
	client := cfg.Client
	if client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("cache: load aws config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
		})
	}
	return &Dynamo{
		client:     client,
		table:      cfg.Table,
		defaultTTL: cfg.DefaultTTL,
		maxTries:   cfg.MaxTries,
		now:        time.Now,
	}, nil
}

type dynamoItem struct {
	value   []byte
	version int64
	expires int64
}

func (d *Dynamo) load(ctx context.Context, key string) (*dynamoItem, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			dynamoAttrKey: &ddbtypes.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("cache: dynamodb get: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	item := &dynamoItem{}
	if v, ok := out.Item[dynamoAttrValue].(*ddbtypes.AttributeValueMemberB); ok {
		item.value = v.Value
	}
	if v, ok := out.Item[dynamoAttrVersion].(*ddbtypes.AttributeValueMemberN); ok {
		item.version, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	if v, ok := out.Item[dynamoAttrExpires].(*ddbtypes.AttributeValueMemberN); ok {
		item.expires, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	if item.expires > 0 && item.expires <= d.now().Unix() {
		return nil, nil
	}
	return item, nil
}

// Get returns the live value for key; items past their TTL attribute count
// as misses even before DynamoDB reaps them.
func (d *Dynamo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	item, err := d.load(ctx, key)
	if err != nil || item == nil {
		return nil, false, err
	}
	return item.value, true, nil
}

// Set writes value unconditionally, bumping the item version.
func (d *Dynamo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = d.defaultTTL
	}
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.table),
		Key: map[string]ddbtypes.AttributeValue{
			dynamoAttrKey: &ddbtypes.AttributeValueMemberS{Value: key},
		},
		UpdateExpression: aws.String("SET #v = :v, #exp = :exp ADD #ver :one"),
		ExpressionAttributeNames: map[string]string{
			"#v":   dynamoAttrValue,
			"#exp": dynamoAttrExpires,
			"#ver": dynamoAttrVersion,
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":v":   &ddbtypes.AttributeValueMemberB{Value: value},
			":exp": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(d.now().Add(ttl).Unix(), 10)},
			":one": &ddbtypes.AttributeValueMemberN{Value: "1"},
		},
	})
	if err != nil {
		return fmt.Errorf("cache: dynamodb set: %w", err)
	}
	return nil
}

// Delete removes key.
func (d *Dynamo) Delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key: map[string]ddbtypes.AttributeValue{
			dynamoAttrKey: &ddbtypes.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return fmt.Errorf("cache: dynamodb delete: %w", err)
	}
	return nil
}

// Modify applies fn under a conditional write on the item version.
func (d *Dynamo) Modify(ctx context.Context, key string, ttl time.Duration, fn ModifyFunc) ([]byte, error) {
	if ttl <= 0 {
		ttl = d.defaultTTL
	}
	for try := 0; try < d.maxTries; try++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, err := d.load(ctx, key)
		if err != nil {
			return nil, err
		}
		var current []byte
		var version int64
		exists := item != nil
		if exists {
			current, version = item.value, item.version
		}
		next, err := fn(current, exists)
		if err != nil {
			return nil, err
		}
		if next == nil {
			if !exists {
				return nil, nil
			}
			if ok, err := d.conditionalDelete(ctx, key, version); err != nil {
				return nil, err
			} else if ok {
				return nil, nil
			}
			continue
		}
		if ok, err := d.conditionalPut(ctx, key, next, version, exists, ttl); err != nil {
			return nil, err
		} else if ok {
			return next, nil
		}
	}
	return nil, ErrTooMuchContention
}

func (d *Dynamo) conditionalPut(ctx context.Context, key string, value []byte, version int64, exists bool, ttl time.Duration) (bool, error) {
	input := &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item: map[string]ddbtypes.AttributeValue{
			dynamoAttrKey:     &ddbtypes.AttributeValueMemberS{Value: key},
			dynamoAttrValue:   &ddbtypes.AttributeValueMemberB{Value: value},
			dynamoAttrVersion: &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(version+1, 10)},
			dynamoAttrExpires: &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(d.now().Add(ttl).Unix(), 10)},
		},
	}
	if exists {
		input.ConditionExpression = aws.String("#ver = :ver")
		input.ExpressionAttributeNames = map[string]string{"#ver": dynamoAttrVersion}
		input.ExpressionAttributeValues = map[string]ddbtypes.AttributeValue{
			":ver": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)},
		}
	} else {
		input.ConditionExpression = aws.String("attribute_not_exists(#k)")
		input.ExpressionAttributeNames = map[string]string{"#k": dynamoAttrKey}
	}
	_, err := d.client.PutItem(ctx, input)
	if err != nil {
		var conditionFailed *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return false, nil
		}
		return false, fmt.Errorf("cache: dynamodb modify put: %w", err)
	}
	return true, nil
}

func (d *Dynamo) conditionalDelete(ctx context.Context, key string, version int64) (bool, error) {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key: map[string]ddbtypes.AttributeValue{
			dynamoAttrKey: &ddbtypes.AttributeValueMemberS{Value: key},
		},
		ConditionExpression:      aws.String("#ver = :ver"),
		ExpressionAttributeNames: map[string]string{"#ver": dynamoAttrVersion},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":ver": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)},
		},
	})
	if err != nil {
		var conditionFailed *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return false, nil
		}
		return false, fmt.Errorf("cache: dynamodb modify delete: %w", err)
	}
	return true, nil
}

// Ping issues a DescribeTable to verify connectivity and table presence.
func (d *Dynamo) Ping(ctx context.Context) error {
	_, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.table),
	})
	if err != nil {
		return fmt.Errorf("cache: dynamodb describe table: %w", err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources requiring teardown.
func (d *Dynamo) Close() error { return nil }
