package mq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestHeadersToAttributes(t *testing.T) {
	if attrs := headersToAttributes(nil); attrs != nil {
		t.Fatalf("expected nil attrs, got %v", attrs)
	}

	attrs := headersToAttributes(amqp.Table{
		"source":  "login",
		"raw":     []byte("bytes"),
		"attempt": int32(3),
	})
	want := map[string]string{"source": "login", "raw": "bytes", "attempt": "3"}
	for k, v := range want {
		if attrs[k] != v {
			t.Fatalf("attr %s: expected %q, got %q", k, v, attrs[k])
		}
	}
}

func TestDeliveryMode(t *testing.T) {
	if mode := (&RabbitMQClient{queueDurable: true}).deliveryMode(); mode != amqp.Persistent {
		t.Fatalf("durable queues should publish persistent messages, got %d", mode)
	}
	if mode := (&RabbitMQClient{}).deliveryMode(); mode != amqp.Transient {
		t.Fatalf("expected transient, got %d", mode)
	}
}
