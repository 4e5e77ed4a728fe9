package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/konekte/seminar-registration/promocode"
	"github.com/shopspring/decimal"
)

var _ promocode.Repository = &DB{}

const (
	promoCodeEntityName = "PROMOCODE"
)

type promoCodeDynamo struct {
	PK string
	SK string

	Code       string
	Kind       promocode.DiscountKind
	Value      string
	ExpiresAt  *time.Time `dynamodbav:",omitempty"`
	MaxUses    *int       `dynamodbav:",omitempty"`
	UsageCount int
	Active     bool
	CreatedAt  time.Time
}

func promoCodePK(code string) string {
	return fmt.Sprintf("%s#%s", promoCodeEntityName, code)
}

func promoCodeKey(code string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: promoCodePK(code)},
		"SK": &types.AttributeValueMemberS{Value: promoCodePK(code)},
	}
}

func promoCodeToDynamo(p promocode.PromoCode) promoCodeDynamo {
	// A zero max is stored as absent so the increment guard only has one unlimited case.
	maxUses := p.MaxUses
	if !p.HasUsageLimit() {
		maxUses = nil
	}

	return promoCodeDynamo{
		PK:         promoCodePK(p.Code),
		SK:         promoCodePK(p.Code),
		Code:       p.Code,
		Kind:       p.Kind,
		Value:      p.Value.String(),
		ExpiresAt:  p.ExpiresAt,
		MaxUses:    maxUses,
		UsageCount: p.UsageCount,
		Active:     p.Active,
		CreatedAt:  p.CreatedAt,
	}
}

func dynamoToPromoCode(d promoCodeDynamo) (promocode.PromoCode, error) {
	value, err := decimal.NewFromString(d.Value)
	if err != nil {
		return promocode.PromoCode{}, promocode.NewFailedToTranslateToDBModelError(fmt.Sprintf("Promo code %q has a malformed value %q", d.Code, d.Value), err)
	}

	return promocode.PromoCode{
		Code:       d.Code,
		Kind:       d.Kind,
		Value:      value,
		ExpiresAt:  d.ExpiresAt,
		MaxUses:    d.MaxUses,
		UsageCount: d.UsageCount,
		Active:     d.Active,
		CreatedAt:  d.CreatedAt,
	}, nil
}

func (d *DB) GetPromoCode(ctx context.Context, code string) (promocode.PromoCode, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	resp, err := d.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            promoCodeKey(code),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return promocode.PromoCode{}, promocode.NewTimeoutError("GetPromoCode timed out")
		}
		return promocode.PromoCode{}, promocode.NewFailedToFetchError(fmt.Sprintf("Failed to fetch promo code %q", code), err)
	}

	if len(resp.Item) == 0 {
		return promocode.PromoCode{}, promocode.NewPromoCodeDoesNotExistError(fmt.Sprintf("Promo code %q not found", code), nil)
	}

	var dynPromo promoCodeDynamo
	err = attributevalue.UnmarshalMap(resp.Item, &dynPromo)
	if err != nil {
		return promocode.PromoCode{}, promocode.NewFailedToTranslateToDBModelError("Failed to decode promo code from dynamo", err)
	}

	return dynamoToPromoCode(dynPromo)
}

func (d *DB) CreatePromoCode(ctx context.Context, p promocode.PromoCode) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	item, err := attributevalue.MarshalMap(promoCodeToDynamo(p))
	if err != nil {
		return promocode.NewFailedToTranslateToDBModelError("Failed to translate promo code to dynamo model", err)
	}

	expr := exprMustBuild(expression.NewBuilder().WithCondition(newEntityConditional()))

	_, err = d.dynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(d.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var condCheckErr *types.ConditionalCheckFailedException
		switch {
		case errors.As(err, &condCheckErr):
			return promocode.NewPromoCodeAlreadyExistsError(fmt.Sprintf("Promo code %q already exists", p.Code), err)
		case errors.Is(err, context.DeadlineExceeded):
			return promocode.NewTimeoutError("CreatePromoCode timed out")
		default:
			return promocode.NewFailedToWriteError("Failed PutItem call", err)
		}
	}

	return nil
}

// IncrementPromoCodeUsage bumps UsageCount in a single conditional update, so concurrent
// redemptions can never push it past MaxUses.
func (d *DB) IncrementPromoCodeUsage(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cond := existingEntityConditional().
		And(expression.Or(
			expression.Name("MaxUses").AttributeNotExists(),
			expression.Name("UsageCount").LessThan(expression.Name("MaxUses")),
		))
	update := expression.Add(expression.Name("UsageCount"), expression.Value(1))

	expr := exprMustBuild(expression.NewBuilder().WithCondition(cond).WithUpdate(update))

	_, err := d.dynamoClient.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(d.tableName),
		Key:                                 promoCodeKey(code),
		ConditionExpression:                 expr.Condition(),
		UpdateExpression:                    expr.Update(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return nil
	}

	var condCheckErr *types.ConditionalCheckFailedException
	if errors.As(err, &condCheckErr) {
		if len(condCheckErr.Item) == 0 {
			// Either the code is unknown or the store did not return the old item.
			if _, getErr := d.GetPromoCode(ctx, code); getErr != nil {
				return getErr
			}
		}
		return promocode.NewPromoCodeExhaustedError(code, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return promocode.NewTimeoutError("IncrementPromoCodeUsage timed out")
	}
	return promocode.NewFailedToWriteError(fmt.Sprintf("Failed to increment usage of promo code %q", code), err)
}
