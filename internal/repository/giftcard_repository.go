package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/scootsmagoo/filtersfast-next-sub004/internal/domain"
)

// ErrRedeemConflict means the conditional decrement failed: the balance
// dropped below the allocation, or the card status changed, since planning.
var ErrRedeemConflict = errors.New("gift card redemption condition failed")

// GiftCardRepository persists gift cards. Balances are DynamoDB numbers so
// the decrement can run server-side under a condition expression.
type GiftCardRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

func NewGiftCardRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *GiftCardRepository {
	return &GiftCardRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func cardKey(code string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("GIFTCARD#%s", code)},
		"SK": &types.AttributeValueMemberS{Value: "METADATA"},
	}
}

// GetCard looks up a card by its normalized code. The read is consistent;
// planning works against the freshest balance available.
func (r *GiftCardRepository) GetCard(ctx context.Context, code string) (*domain.GiftCard, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            cardKey(code),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get gift card: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, domain.ErrGiftCardNotFound.WithDetail("code %s", code)
	}

	return cardFromItem(code, out.Item)
}

// RedeemCard decrements the card balance by amount if and only if the card
// is still active and holds at least that much. The decrement is a single
// conditional update; there is no read-then-write window. The resulting
// balance is returned.
func (r *GiftCardRepository) RedeemCard(ctx context.Context, code string, amount decimal.Decimal, orderID, orderNumber string) (decimal.Decimal, error) {
	now := time.Now().UTC()

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 cardKey(code),
		UpdateExpression:    aws.String("SET balance = balance - :amt, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(PK) AND #status = :active AND balance >= :amt"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":amt":    &types.AttributeValueMemberN{Value: amount.String()},
			":active": &types.AttributeValueMemberS{Value: string(domain.GiftCardActive)},
			":now":    &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return decimal.Zero, ErrRedeemConflict
		}
		return decimal.Zero, fmt.Errorf("failed to redeem gift card: %w", err)
	}

	newBalance, err := numberAttr(out.Attributes, "balance")
	if err != nil {
		return decimal.Zero, err
	}

	// Audit record for the redemption. The decrement above is already
	// durable; a failed audit write is logged, not propagated.
	redemption := map[string]types.AttributeValue{
		"PK":            &types.AttributeValueMemberS{Value: fmt.Sprintf("GIFTCARD#%s", code)},
		"SK":            &types.AttributeValueMemberS{Value: fmt.Sprintf("REDEMPTION#%s", orderID)},
		"code":          &types.AttributeValueMemberS{Value: code},
		"order_id":      &types.AttributeValueMemberS{Value: orderID},
		"order_number":  &types.AttributeValueMemberS{Value: orderNumber},
		"amount":        &types.AttributeValueMemberN{Value: amount.String()},
		"balance_after": &types.AttributeValueMemberN{Value: newBalance.String()},
		"redeemed_at":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      redemption,
	}); err != nil {
		r.logger.Error("failed to write redemption audit record",
			zap.String("gift_card_code", code),
			zap.String("order_id", orderID),
			zap.Error(err))
	}

	return newBalance, nil
}

func cardFromItem(code string, item map[string]types.AttributeValue) (*domain.GiftCard, error) {
	balance, err := numberAttr(item, "balance")
	if err != nil {
		return nil, err
	}

	card := &domain.GiftCard{
		Code:    code,
		Balance: balance,
	}
	if v, ok := item["currency"].(*types.AttributeValueMemberS); ok {
		card.Currency = v.Value
	}
	if v, ok := item["status"].(*types.AttributeValueMemberS); ok {
		card.Status = domain.GiftCardStatus(v.Value)
	}
	if v, ok := item["created_at"].(*types.AttributeValueMemberS); ok {
		card.CreatedAt, _ = time.Parse(time.RFC3339, v.Value)
	}
	if v, ok := item["updated_at"].(*types.AttributeValueMemberS); ok {
		card.UpdatedAt, _ = time.Parse(time.RFC3339, v.Value)
	}
	return card, nil
}

func numberAttr(item map[string]types.AttributeValue, name string) (decimal.Decimal, error) {
	attr, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return decimal.Zero, fmt.Errorf("gift card item missing number attribute %q", name)
	}
	v, err := decimal.NewFromString(attr.Value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s %q: %w", name, attr.Value, err)
	}
	return v, nil
}
