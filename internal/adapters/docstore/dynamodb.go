package docstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/metrics"
)

// DynamoAPI описывает методы клиента DynamoDB, которые нужны бэкенду.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type dynamoItem struct {
	Name      string `dynamodbav:"name"`
	Body      string `dynamodbav:"body"`
	Version   int64  `dynamodbav:"version"`
	Message   string `dynamodbav:"message"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// Dynamo хранит документ одной записью таблицы; запись условная по атрибуту version.
type Dynamo struct {
	client DynamoAPI
	table  string
	name   string
}

var _ domain.DocumentBackend = (*Dynamo)(nil)

// NewDynamo создаёт бэкенд. Ключом раздела таблицы служит строковый атрибут name.
func NewDynamo(client DynamoAPI, table, name string) *Dynamo {
	return &Dynamo{client: client, table: table, name: name}
}

// Get реализует domain.DocumentBackend.
func (d *Dynamo) Get(ctx context.Context) ([]byte, domain.Token, error) {
	start := time.Now()
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]dynamodbtypes.AttributeValue{
			"name": &dynamodbtypes.AttributeValueMemberS{Value: d.name},
		},
	})
	metrics.ObserveNetworkRequest("dynamodb", "get_item", d.table, start, err)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if out.Item == nil {
		return nil, "", domain.ErrDocumentNotFound
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, "", fmt.Errorf("%w: unmarshal item: %v", domain.ErrStoreUnavailable, err)
	}
	return []byte(item.Body), versionToken(item.Version), nil
}

// PutIfMatch реализует domain.DocumentBackend.
func (d *Dynamo) PutIfMatch(ctx context.Context, body []byte, expected domain.Token, message string) (domain.Token, error) {
	var current int64
	if expected != "" {
		v, err := strconv.ParseInt(string(expected), 10, 64)
		if err != nil {
			return "", fmt.Errorf("%w: unexpected token %q", domain.ErrConflict, expected)
		}
		current = v
	}
	item, err := attributevalue.MarshalMap(dynamoItem{
		Name:      d.name,
		Body:      string(body),
		Version:   current + 1,
		Message:   message,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("marshal item: %w", err)
	}

	in := &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	}
	if expected == "" {
		in.ConditionExpression = aws.String("attribute_not_exists(#n)")
		in.ExpressionAttributeNames = map[string]string{"#n": "name"}
	} else {
		in.ConditionExpression = aws.String("#v = :expected")
		in.ExpressionAttributeNames = map[string]string{"#v": "version"}
		in.ExpressionAttributeValues = map[string]dynamodbtypes.AttributeValue{
			":expected": &dynamodbtypes.AttributeValueMemberN{Value: strconv.FormatInt(current, 10)},
		}
	}

	start := time.Now()
	_, err = d.client.PutItem(ctx, in)
	var ccf *dynamodbtypes.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		metrics.ObserveNetworkRequest("dynamodb", "put_item", d.table, start, nil)
		return "", domain.ErrConflict
	}
	metrics.ObserveNetworkRequest("dynamodb", "put_item", d.table, start, err)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return versionToken(current + 1), nil
}
