package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/scootsmagoo/filtersfast-next-sub004/internal/domain"
	pkgconfig "github.com/scootsmagoo/filtersfast-next-sub004/pkg/config"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderRepository struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoDBClient(cfg *pkgconfig.Config) (*dynamodb.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	}), nil
}

func NewOrderRepository(client *dynamodb.Client, tableName string) *OrderRepository {
	return &OrderRepository{
		client:    client,
		tableName: tableName,
	}
}

// Money attributes are stored as decimal strings; DynamoDB never does
// arithmetic on the order snapshot, so exactness matters more than the
// native number type here.
type orderLineItem struct {
	SKU       string `dynamodbav:"sku"`
	Name      string `dynamodbav:"name"`
	UnitPrice string `dynamodbav:"unit_price"`
	Quantity  int    `dynamodbav:"quantity"`
}

type orderAppliedCard struct {
	Code         string `dynamodbav:"code"`
	Amount       string `dynamodbav:"amount"`
	BalanceAfter string `dynamodbav:"balance_after"`
}

type orderItem struct {
	OrderID          string             `dynamodbav:"order_id"`
	OrderNumber      string             `dynamodbav:"order_number"`
	Email            string             `dynamodbav:"email"`
	CustomerID       string             `dynamodbav:"customer_id,omitempty"`
	Currency         string             `dynamodbav:"currency"`
	Items            []orderLineItem    `dynamodbav:"items"`
	BillingAddress   domain.Address     `dynamodbav:"billing_address"`
	ShippingAddress  domain.Address     `dynamodbav:"shipping_address"`
	Subtotal         string             `dynamodbav:"subtotal"`
	ShippingCost     string             `dynamodbav:"shipping_cost"`
	TaxAmount        string             `dynamodbav:"tax_amount"`
	DiscountAmount   string             `dynamodbav:"discount_amount"`
	DonationAmount   string             `dynamodbav:"donation_amount"`
	InsuranceAmount  string             `dynamodbav:"insurance_amount"`
	Total            string             `dynamodbav:"total"`
	GiftCardTotal    string             `dynamodbav:"gift_card_total"`
	AmountCharged    string             `dynamodbav:"amount_charged"`
	Gateway          string             `dynamodbav:"gateway"`
	TransactionID    string             `dynamodbav:"transaction_id"`
	AppliedGiftCards []orderAppliedCard `dynamodbav:"applied_gift_cards"`
	Status           string             `dynamodbav:"status"`
	RequestID        string             `dynamodbav:"request_id"`
	CreatedAt        time.Time          `dynamodbav:"created_at"`
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	av, err := attributevalue.MarshalMap(toOrderItem(order))
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	av["PK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("ORDER#%s", order.OrderID)}
	av["SK"] = &types.AttributeValueMemberS{Value: "METADATA"}
	av["GSI1PK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("CUSTOMER#%s", order.Email)}
	av["GSI1SK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("ORDER#%s", order.CreatedAt.Format(time.RFC3339))}

	// An order is written exactly once per settled charge; a key collision
	// means a duplicate write, not an overwrite.
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put order: %w", err)
	}

	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("ORDER#%s", orderID)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, ErrOrderNotFound
	}

	var item orderItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return fromOrderItem(&item)
}

func toOrderItem(order *domain.Order) *orderItem {
	items := make([]orderLineItem, 0, len(order.Items))
	for _, li := range order.Items {
		items = append(items, orderLineItem{
			SKU:       li.SKU,
			Name:      li.Name,
			UnitPrice: li.UnitPrice.String(),
			Quantity:  li.Quantity,
		})
	}
	cards := make([]orderAppliedCard, 0, len(order.AppliedGiftCards))
	for _, c := range order.AppliedGiftCards {
		cards = append(cards, orderAppliedCard{
			Code:         c.Code,
			Amount:       c.Amount.String(),
			BalanceAfter: c.BalanceAfter.String(),
		})
	}

	return &orderItem{
		OrderID:          order.OrderID,
		OrderNumber:      order.OrderNumber,
		Email:            order.Email,
		CustomerID:       order.CustomerID,
		Currency:         order.Currency,
		Items:            items,
		BillingAddress:   order.BillingAddress,
		ShippingAddress:  order.ShippingAddress,
		Subtotal:         order.Subtotal.String(),
		ShippingCost:     order.ShippingCost.String(),
		TaxAmount:        order.TaxAmount.String(),
		DiscountAmount:   order.DiscountAmount.String(),
		DonationAmount:   order.DonationAmount.String(),
		InsuranceAmount:  order.InsuranceAmount.String(),
		Total:            order.Total.String(),
		GiftCardTotal:    order.GiftCardTotal.String(),
		AmountCharged:    order.AmountCharged.String(),
		Gateway:          order.Gateway,
		TransactionID:    order.TransactionID,
		AppliedGiftCards: cards,
		Status:           string(order.Status),
		RequestID:        order.RequestID,
		CreatedAt:        order.CreatedAt,
	}
}

func fromOrderItem(item *orderItem) (*domain.Order, error) {
	order := &domain.Order{
		OrderID:         item.OrderID,
		OrderNumber:     item.OrderNumber,
		Email:           item.Email,
		CustomerID:      item.CustomerID,
		Currency:        item.Currency,
		BillingAddress:  item.BillingAddress,
		ShippingAddress: item.ShippingAddress,
		Gateway:         item.Gateway,
		TransactionID:   item.TransactionID,
		Status:          domain.OrderStatus(item.Status),
		RequestID:       item.RequestID,
		CreatedAt:       item.CreatedAt,
	}

	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&order.Subtotal, item.Subtotal},
		{&order.ShippingCost, item.ShippingCost},
		{&order.TaxAmount, item.TaxAmount},
		{&order.DiscountAmount, item.DiscountAmount},
		{&order.DonationAmount, item.DonationAmount},
		{&order.InsuranceAmount, item.InsuranceAmount},
		{&order.Total, item.Total},
		{&order.GiftCardTotal, item.GiftCardTotal},
		{&order.AmountCharged, item.AmountCharged},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse order amount %q: %w", f.src, err)
		}
		*f.dst = v
	}

	for _, li := range item.Items {
		price, err := decimal.NewFromString(li.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("failed to parse unit price %q: %w", li.UnitPrice, err)
		}
		order.Items = append(order.Items, domain.LineItem{
			SKU:       li.SKU,
			Name:      li.Name,
			UnitPrice: price,
			Quantity:  li.Quantity,
		})
	}
	for _, c := range item.AppliedGiftCards {
		amount, err := decimal.NewFromString(c.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redemption amount %q: %w", c.Amount, err)
		}
		after, err := decimal.NewFromString(c.BalanceAfter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse balance %q: %w", c.BalanceAfter, err)
		}
		order.AppliedGiftCards = append(order.AppliedGiftCards, domain.AppliedGiftCard{
			Code:         c.Code,
			Amount:       amount,
			BalanceAfter: after,
		})
	}

	return order, nil
}
