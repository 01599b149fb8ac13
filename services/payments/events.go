package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/linkedin/goavro"
	"github.com/segmentio/kafka-go"

	kafkautils "github.com/etruckzm/etruck-go/libs/kafka"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

const paymentSucceededCodec = "payment_succeeded"

const paymentSucceededSchema = `{
	"type": "record",
	"name": "PaymentSucceeded",
	"namespace": "zm.etruck.payments",
	"fields": [
		{"name": "reference", "type": "string"},
		{"name": "category", "type": "string"},
		{"name": "subject", "type": "string"},
		{"name": "amount", "type": "string"},
		{"name": "currency", "type": "string"},
		{"name": "method", "type": "string"},
		{"name": "succeeded_at", "type": "string"}
	]
}`

// Publisher announces succeeded payments to collaborators outside the core.
type Publisher interface {
	PaymentSucceeded(ctx context.Context, rec *model.Record) error
}

type noopPublisher struct{}

func (noopPublisher) PaymentSucceeded(context.Context, *model.Record) error { return nil }

// KafkaPublisher writes Avro encoded PaymentSucceeded events keyed by reference.
type KafkaPublisher struct {
	w     kafkautils.Writer
	codec *goavro.Codec
}

// NewKafkaPublisher returns a publisher writing through w.
func NewKafkaPublisher(w kafkautils.Writer) (*KafkaPublisher, error) {
	codecs, err := kafkautils.GenerateCodecs(map[string]string{paymentSucceededCodec: paymentSucceededSchema})
	if err != nil {
		return nil, err
	}

	return &KafkaPublisher{w: w, codec: codecs[paymentSucceededCodec]}, nil
}

func (p *KafkaPublisher) PaymentSucceeded(ctx context.Context, rec *model.Record) error {
	value, err := p.codec.BinaryFromNative(nil, map[string]interface{}{
		"reference":    rec.Reference,
		"category":     rec.Category.String(),
		"subject":      rec.Subject,
		"amount":       rec.Amount.String(),
		"currency":     rec.Currency,
		"method":       rec.Method.String(),
		"succeeded_at": rec.UpdatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to encode payment succeeded event: %w", err)
	}

	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.Reference),
		Value: value,
	})
}

// Close releases the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
