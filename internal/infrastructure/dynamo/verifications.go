package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rail-account-api/internal/domain"
)

// VerificationRepo manages one-time verification codes.
// PK: identifier, SK: code_id (ULID, so rows sort by creation time).
// Rows are never deleted synchronously; the expires_at TTL attribute is
// lazy garbage collection only.
type VerificationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewVerificationRepo(client *dynamodb.Client, tableName string) *VerificationRepo {
	return &VerificationRepo{client: client, tableName: tableName}
}

func (r *VerificationRepo) Put(ctx context.Context, v *domain.VerificationCode) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal verification code: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// Latest returns the most-recently-created UNUSED code row for the
// identifier and purpose. An older unused row shadowed by a newer one is
// never returned — issuing a new code silently orphans its predecessor.
func (r *VerificationRepo) Latest(ctx context.Context, identifier, purpose string) (*domain.VerificationCode, error) {
	rows, err := r.queryDesc(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return latestUnused(rows, purpose)
}

// latestUnused picks the row Latest returns from a creation-descending scan.
// The newest row for the purpose decides the outcome: if it is already used,
// every older unused row for that purpose stays shadowed.
func latestUnused(rows []domain.VerificationCode, purpose string) (*domain.VerificationCode, error) {
	for i := range rows {
		if rows[i].Purpose != purpose {
			continue
		}
		if rows[i].Used {
			break
		}
		return &rows[i], nil
	}
	return nil, fmt.Errorf("verification code not found: %w", domain.ErrNotFound)
}

// LatestSentAt returns the sent_at of the most recent code row for the
// identifier across ALL purposes — they share one delivery channel, so the
// rate limiter keys off the identifier alone. Returns ErrNotFound when the
// identifier has never been sent a code.
func (r *VerificationRepo) LatestSentAt(ctx context.Context, identifier string) (int64, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("identifier = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: identifier},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, err
	}
	if len(out.Items) == 0 {
		return 0, fmt.Errorf("no codes sent: %w", domain.ErrNotFound)
	}
	var v domain.VerificationCode
	if err := attributevalue.UnmarshalMap(out.Items[0], &v); err != nil {
		return 0, err
	}
	return v.SentAt, nil
}

// MarkUsed flips used=false to used=true on the given row. The transition
// is a conditional update, so a code can never be accepted twice even when
// two callers race: the loser's ConditionalCheckFailedException surfaces as
// ErrUnauthorized.
func (r *VerificationRepo) MarkUsed(ctx context.Context, identifier, codeID string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 compositeKey("identifier", identifier, "code_id", codeID),
		UpdateExpression:    aws.String("SET used = :t"),
		ConditionExpression: aws.String("used = :f"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
			":f": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("code already used: %w", domain.ErrUnauthorized)
		}
		return err
	}
	return nil
}

func (r *VerificationRepo) queryDesc(ctx context.Context, identifier string) ([]domain.VerificationCode, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("identifier = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: identifier},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, err
	}
	var rows []domain.VerificationCode
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
