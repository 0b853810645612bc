package events

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/scootsmagoo/filtersfast-next-sub004/internal/domain"
)

const settlementTopic = "settlement-events"

// OrderSettledEvent is published after an order is durably recorded.
// Downstream consumers (fulfillment, email, analytics) subscribe to it;
// settlement itself never depends on the publish succeeding.
type OrderSettledEvent struct {
	EventID          string                   `json:"event_id"`
	OrderID          string                   `json:"order_id"`
	OrderNumber      string                   `json:"order_number"`
	Email            string                   `json:"email"`
	Currency         string                   `json:"currency"`
	AmountCharged    decimal.Decimal          `json:"amount_charged"`
	GiftCardTotal    decimal.Decimal          `json:"gift_card_total"`
	AppliedGiftCards []domain.AppliedGiftCard `json:"applied_gift_cards"`
	Gateway          string                   `json:"gateway"`
	TransactionID    string                   `json:"transaction_id"`
	Timestamp        time.Time                `json:"timestamp"`
	RequestID        string                   `json:"request_id"`
}

type SettlementProducer struct {
	writer  *kafka.Writer
	brokers string
	logger  *zap.Logger
}

func NewSettlementProducer(brokers string, logger *zap.Logger) *SettlementProducer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(brokers, ",")...),
		Topic:    settlementTopic,
		Balancer: &kafka.LeastBytes{},
	}

	return &SettlementProducer{
		writer:  writer,
		brokers: brokers,
		logger:  logger,
	}
}

func (p *SettlementProducer) PublishOrderSettled(event OrderSettledEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal settlement event", zap.Error(err))
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: eventBytes,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish settlement event",
			zap.String("event_id", event.EventID),
			zap.String("order_id", event.OrderID),
			zap.Error(err))
		return err
	}

	p.logger.Info("Settlement event published",
		zap.String("event_id", event.EventID),
		zap.String("order_id", event.OrderID),
		zap.String("order_number", event.OrderNumber))

	return nil
}

func (p *SettlementProducer) HealthCheck() error {
	broker := p.brokers
	if i := strings.IndexByte(broker, ','); i >= 0 {
		broker = broker[:i]
	}
	conn, err := net.DialTimeout("tcp", broker, 2*time.Second)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (p *SettlementProducer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
