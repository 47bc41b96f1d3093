package ddb

import (
	"clusterdir/internal/ports"
	"clusterdir/internal/types"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// API is the subset of the DynamoDB client the store uses.
type API interface {
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store keeps one item per record in a single table keyed by (PK=directory, SK=leaf name).
// Listing a directory is a Query on its partition; multi-record updates use TransactWriteItems.
type Store struct {
	table string
	cli   API
}

type recordItem struct {
	PK     string            `dynamodbav:"PK"`
	SK     string            `dynamodbav:"SK"`
	Fields map[string]string `dynamodbav:"fields"`
}

// NewStore creates the table when it does not exist yet.
func NewStore(ctx context.Context, table string, cli API) (*Store, error) {
	if err := createTableIfNotExists(ctx, cli, table); err != nil {
		return nil, err
	}
	return &Store{table: table, cli: cli}, nil
}

func (s *Store) Read(ctx context.Context, path string) (types.Record, error) {
	out, err := s.cli.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.table,
		Key:            itemKey(path),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, types.Upstream(err, "ddb read %s", path)
	}
	if out.Item == nil {
		return nil, types.NotFound("%s", path)
	}
	var item recordItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, types.Upstream(err, "ddb decode %s", path)
	}
	if item.Fields == nil {
		return types.Record{}, nil
	}
	return types.Record(item.Fields), nil
}

func (s *Store) Write(ctx context.Context, path string, rec types.Record) error {
	item, err := marshalRecord(path, rec)
	if err != nil {
		return err
	}
	_, err = s.cli.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.table,
		Item:      item,
	})
	return types.Upstream(err, "ddb write %s", path)
}

func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.cli.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.table,
		Key:       itemKey(path),
	})
	return types.Upstream(err, "ddb delete %s", path)
}

// List queries the partition of prefix. Only records stored directly in that directory are
// returned; nested directories live in their own partitions.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	p := dynamodb.NewQueryPaginator(s.cli, &dynamodb.QueryInput{
		TableName:              &s.table,
		KeyConditionExpression: awsString("PK = :pk"),
		ExpressionAttributeValues: map[string]ddbTypes.AttributeValue{
			":pk": &ddbTypes.AttributeValueMemberS{Value: dirPK(prefix)},
		},
		ProjectionExpression: awsString("SK"),
		ConsistentRead:       awsBool(true),
	})
	names := make([]string, 0)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, types.Upstream(err, "ddb list %s", prefix)
		}
		for _, item := range page.Items {
			var sk struct {
				SK string `dynamodbav:"SK"`
			}
			if err := attributevalue.UnmarshalMap(item, &sk); err != nil {
				return nil, types.Upstream(err, "ddb decode list %s", prefix)
			}
			names = append(names, sk.SK)
		}
	}
	// Query returns items ordered by sort key already.
	return names, nil
}

// MaxTransactOps is the TransactWriteItems item limit.
func (s *Store) MaxTransactOps() int { return maxTransactItems }

// Transact applies all ops in one TransactWriteItems call.
func (s *Store) Transact(ctx context.Context, ops ...ports.Op) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > maxTransactItems {
		return types.InvalidArgument("transaction has %d ops, limit is %d", len(ops), maxTransactItems)
	}
	items := make([]ddbTypes.TransactWriteItem, 0, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case ports.OpWrite:
			item, err := marshalRecord(op.Path, op.Record)
			if err != nil {
				return err
			}
			items = append(items, ddbTypes.TransactWriteItem{
				Put: &ddbTypes.Put{TableName: &s.table, Item: item},
			})
		case ports.OpDelete:
			items = append(items, ddbTypes.TransactWriteItem{
				Delete: &ddbTypes.Delete{TableName: &s.table, Key: itemKey(op.Path)},
			})
		default:
			return fmt.Errorf("unknown op kind %d", op.Kind)
		}
	}
	_, err := s.cli.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	return types.Upstream(err, "ddb transaction")
}

func itemKey(path string) map[string]ddbTypes.AttributeValue {
	pk, sk := splitPath(path)
	return map[string]ddbTypes.AttributeValue{
		attrPK: &ddbTypes.AttributeValueMemberS{Value: pk},
		attrSK: &ddbTypes.AttributeValueMemberS{Value: sk},
	}
}

func marshalRecord(path string, rec types.Record) (map[string]ddbTypes.AttributeValue, error) {
	pk, sk := splitPath(path)
	fields := map[string]string(rec)
	if fields == nil {
		fields = map[string]string{}
	}
	item, err := attributevalue.MarshalMap(recordItem{PK: pk, SK: sk, Fields: fields})
	if err != nil {
		return nil, types.Err(types.ErrInvalidArgument, err, "ddb encode %s", path)
	}
	return item, nil
}
