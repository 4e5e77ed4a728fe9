package dynamo

import (
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/konekte/seminar-registration/registration"
)

// gsi1KeyAttributes is the full key of an item read through GSI1.
var gsi1KeyAttributes = []string{"PK", "SK", "GSI1PK", "GSI1SK"}

// encodeCursor turns the key of the last item handed out into a URL safe page token.
func encodeCursor(key map[string]types.AttributeValue) (string, error) {
	bytesJSON, err := attributevalue.MarshalMapJSON(key)
	if err != nil {
		return "", fmt.Errorf("failed to encode to JSON: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(bytesJSON), nil
}

// decodeCursor reverses encodeCursor. A token that does not carry every attribute in required
// could not have come from encodeCursor for this query.
func decodeCursor(cursor string, required []string) (map[string]types.AttributeValue, error) {
	bytesJSON, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, registration.NewInvalidCursorError("Cursor is not valid base64", err)
	}

	key, err := attributevalue.UnmarshalMapJSON(bytesJSON)
	if err != nil {
		return nil, registration.NewInvalidCursorError("Cursor is not a valid key", err)
	}

	for _, attr := range required {
		if _, ok := key[attr].(*types.AttributeValueMemberS); !ok {
			return nil, registration.NewInvalidCursorError(fmt.Sprintf("Cursor is missing %s", attr), nil)
		}
	}

	return key, nil
}

// keyOfItem projects item onto the attribute names of key.
func keyOfItem(key map[string]types.AttributeValue, item map[string]types.AttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(key))
	for k := range key {
		result[k] = item[k]
	}
	return result
}
