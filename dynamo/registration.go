package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/konekte/seminar-registration/registration"
)

var _ registration.Repository = &DB{}

const (
	registrationEntityName = "REGISTRATION"

	// Fixed width so GSI1SK sorts chronologically as a string.
	sortableTimeFormat = "2006-01-02T15:04:05.000000000Z"
)

type registrationDynamo struct {
	PK     string
	SK     string
	GSI1PK string
	GSI1SK string

	TransactionID string
	FullName      string
	Email         string
	Phone         string
	Motivation    string
	Experience    registration.ExperienceLevel
	PaymentTier   int
	AmountMinor   int64
	Currency      string
	PromoCode     *string `dynamodbav:",omitempty"`
	Status        registration.Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func registrationPK(transactionID string) string {
	return fmt.Sprintf("%s#%s", registrationEntityName, transactionID)
}

func registrationSK(transactionID string) string {
	return registrationPK(transactionID)
}

func registrationKey(transactionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: registrationPK(transactionID)},
		"SK": &types.AttributeValueMemberS{Value: registrationSK(transactionID)},
	}
}

func registrationToDynamo(reg registration.Registration) registrationDynamo {
	return registrationDynamo{
		PK:            registrationPK(reg.TransactionID),
		SK:            registrationSK(reg.TransactionID),
		GSI1PK:        registrationEntityName,
		GSI1SK:        fmt.Sprintf("%s#%s#%s", registrationEntityName, reg.CreatedAt.UTC().Format(sortableTimeFormat), reg.TransactionID),
		TransactionID: reg.TransactionID,
		FullName:      reg.Contact.FullName,
		Email:         reg.Contact.Email,
		Phone:         reg.Contact.Phone,
		Motivation:    reg.Contact.Motivation,
		Experience:    reg.Experience,
		PaymentTier:   int(reg.PaymentTier),
		AmountMinor:   reg.Amount.Amount(),
		Currency:      reg.Amount.Currency().Code,
		PromoCode:     reg.PromoCode,
		Status:        reg.Status,
		CreatedAt:     reg.CreatedAt,
		UpdatedAt:     reg.UpdatedAt,
	}
}

func dynamoToRegistration(dynReg registrationDynamo) registration.Registration {
	return registration.Registration{
		TransactionID: dynReg.TransactionID,
		Contact: registration.Contact{
			FullName:   dynReg.FullName,
			Email:      dynReg.Email,
			Phone:      dynReg.Phone,
			Motivation: dynReg.Motivation,
		},
		Experience:  dynReg.Experience,
		PaymentTier: registration.PaymentTier(dynReg.PaymentTier),
		Amount:      money.New(dynReg.AmountMinor, dynReg.Currency),
		PromoCode:   dynReg.PromoCode,
		Status:      dynReg.Status,
		CreatedAt:   dynReg.CreatedAt,
		UpdatedAt:   dynReg.UpdatedAt,
	}
}

func (d *DB) CreateRegistration(ctx context.Context, reg registration.Registration) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	item, err := attributevalue.MarshalMap(registrationToDynamo(reg))
	if err != nil {
		return registration.NewFailedToTranslateToDBModelError("Failed to translate registration to dynamo model", err)
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
			return registration.NewRegistrationAlreadyExistsError(fmt.Sprintf("Registration with transaction ID %q already exists", reg.TransactionID), err)
		case errors.Is(err, context.DeadlineExceeded):
			return registration.NewTimeoutError(reg.TransactionID, "CreateRegistration timed out", err)
		default:
			return registration.NewFailedToWriteError("Failed PutItem call", err)
		}
	}

	return nil
}

func (d *DB) GetRegistration(ctx context.Context, transactionID string) (registration.Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	resp, err := d.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            registrationKey(transactionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return registration.Registration{}, registration.NewTimeoutError(transactionID, "GetRegistration timed out", err)
		}
		return registration.Registration{}, registration.NewFailedToFetchError(fmt.Sprintf("Failed to fetch registration with transaction ID %q", transactionID), err)
	}

	if len(resp.Item) == 0 {
		return registration.Registration{}, registration.NewRegistrationDoesNotExistsError(fmt.Sprintf("Registration with transaction ID %q not found", transactionID), nil)
	}

	var dynReg registrationDynamo
	err = attributevalue.UnmarshalMap(resp.Item, &dynReg)
	if err != nil {
		panic(fmt.Sprintf("failed to unmarshal registration from dynamo: %s", err))
	}

	return dynamoToRegistration(dynReg), nil
}

func (d *DB) UpdateRegistrationStatus(ctx context.Context, transactionID string, newStatus registration.Status, updatedAt time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cond := existingEntityConditional().
		And(expression.Name("Status").Equal(expression.Value(registration.STATUS_PENDING)))
	update := expression.Set(expression.Name("Status"), expression.Value(newStatus)).
		Set(expression.Name("UpdatedAt"), expression.Value(updatedAt.UTC()))

	expr := exprMustBuild(expression.NewBuilder().WithCondition(cond).WithUpdate(update))

	_, err := d.dynamoClient.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(d.tableName),
		Key:                                 registrationKey(transactionID),
		ConditionExpression:                 expr.Condition(),
		UpdateExpression:                    expr.Update(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return true, nil
	}

	var condCheckErr *types.ConditionalCheckFailedException
	if errors.As(err, &condCheckErr) {
		current, err := d.currentRegistration(ctx, transactionID, condCheckErr.Item)
		if err != nil {
			return false, err
		}
		if current.Status == newStatus {
			return false, nil
		}
		return false, registration.NewInvalidStatusTransitionError(current.Status, newStatus)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return false, registration.NewTimeoutError(transactionID, "UpdateRegistrationStatus timed out", err)
	}
	return false, registration.NewFailedToWriteError(fmt.Sprintf("Failed to update status of registration %q", transactionID), err)
}

// currentRegistration decodes the item returned with a failed condition check, falling back to a
// read when the item was not returned.
func (d *DB) currentRegistration(ctx context.Context, transactionID string, item map[string]types.AttributeValue) (registration.Registration, error) {
	if len(item) == 0 {
		return d.GetRegistration(ctx, transactionID)
	}

	var dynReg registrationDynamo
	err := attributevalue.UnmarshalMap(item, &dynReg)
	if err != nil {
		return registration.Registration{}, registration.NewFailedToTranslateToDBModelError("Failed to decode registration from dynamo", err)
	}
	return dynamoToRegistration(dynReg), nil
}

func (d *DB) CountActiveRegistrations(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	keyCond := expression.Key("GSI1PK").Equal(expression.Value(registrationEntityName))
	filter := expression.Name("Status").NotEqual(expression.Value(registration.STATUS_CANCELLED))

	expr := exprMustBuild(expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter))

	count := 0
	var startKey map[string]types.AttributeValue
	for {
		result, err := d.dynamoClient.Query(ctx, &dynamodb.QueryInput{
			IndexName:                 aws.String(gsi1),
			TableName:                 aws.String(d.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			Select:                    types.SelectCount,
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return 0, registration.NewTimeoutError("", "CountActiveRegistrations timed out", err)
			}
			return 0, registration.NewFailedToFetchError("Failed to count registrations", err)
		}

		count += int(result.Count)

		if len(result.LastEvaluatedKey) == 0 {
			return count, nil
		}
		startKey = result.LastEvaluatedKey
	}
}

func (d *DB) GetAllRegistrations(ctx context.Context, limit int32, cursor *string) (registration.GetAllRegistrationsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	keyCond := expression.Key("GSI1PK").Equal(expression.Value(registrationEntityName)).
		And(expression.Key("GSI1SK").BeginsWith(registrationEntityName))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build dynamo key expression: %s", err))
	}

	var startKey map[string]types.AttributeValue
	if cursor != nil {
		startKey, err = decodeCursor(*cursor, gsi1KeyAttributes)
		if err != nil {
			return registration.GetAllRegistrationsResponse{}, err
		}
	}

	result, err := d.dynamoClient.Query(ctx, &dynamodb.QueryInput{
		IndexName:                 aws.String(gsi1),
		TableName:                 aws.String(d.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		// Newest registration first
		ScanIndexForward: aws.Bool(false),
		// Fetch 1 more than limit to check if there is another page or not
		Limit:             aws.Int32(limit + 1),
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return registration.GetAllRegistrationsResponse{}, registration.NewTimeoutError("", "GetAllRegistrations timed out", err)
		}
		return registration.GetAllRegistrationsResponse{}, registration.NewFailedToFetchError("Failed to fetch registrations from dynamo", err)
	}

	var dynamoItems []registrationDynamo
	err = attributevalue.UnmarshalListOfMaps(result.Items, &dynamoItems)
	if err != nil {
		panic(fmt.Sprintf("failed to unmarshal dynamo registrations: %s", err))
	}

	hasNextPage := len(dynamoItems) > int(limit)

	var newCursor *string
	if hasNextPage && len(result.LastEvaluatedKey) > 0 {
		// Can't use LastEvalKey directly because we grabbed an extra item to check for next page
		lastItemGivenToUser := result.Items[len(result.Items)-2]
		lastItemKey := keyOfItem(result.LastEvaluatedKey, lastItemGivenToUser)
		c, err := encodeCursor(lastItemKey)
		if err != nil {
			panic(fmt.Sprintf("failed to make cursor from lastEvalKey: %s", err))
		}
		newCursor = &c
	}

	data := make([]registration.Registration, 0, min(int(limit), len(dynamoItems)))
	for _, item := range dynamoItems[:min(int(limit), len(dynamoItems))] {
		data = append(data, dynamoToRegistration(item))
	}

	return registration.GetAllRegistrationsResponse{
		Data:        data,
		Cursor:      newCursor,
		HasNextPage: hasNextPage,
	}, nil
}
