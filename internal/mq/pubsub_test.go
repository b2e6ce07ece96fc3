package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const testProject = "schoolhub-test"

func newTestPubSub(t *testing.T) (*PubSubClient, *pstest.Server) {
	t.Helper()

	srv := pstest.NewServer()
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial fake pubsub: %v", err)
	}
	client, err := pubsub.NewClient(context.Background(), testProject, option.WithGRPCConn(conn))
	if err != nil {
		t.Fatalf("pubsub client: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		_ = srv.Close()
	})
	return newPubSubClient(client, ""), srv
}

func TestPubSubReusesTopicPerChannel(t *testing.T) {
	p, srv := newTestPubSub(t)
	defer p.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := p.Publish(ctx, "auth.login", []byte(`{"user_id":"u1"}`), map[string]string{AttrContentType: "application/json"}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if _, err := p.Publish(ctx, "auth.user_deactivated", []byte(`{}`), nil); err != nil {
		t.Fatalf("publish deactivation: %v", err)
	}

	first := p.topics["auth.login"]
	if _, err := p.Publish(ctx, "auth.login", []byte(`{}`), nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if p.topics["auth.login"] != first {
		t.Fatalf("expected the cached topic handle to be reused")
	}
	if len(p.topics) != 2 {
		t.Fatalf("expected one topic per channel, got %d", len(p.topics))
	}

	msgs := srv.Messages()
	if len(msgs) != 5 {
		t.Fatalf("expected 5 published messages, got %d", len(msgs))
	}
	if msgs[0].Attributes[AttrContentType] != "application/json" {
		t.Fatalf("attributes not carried: %v", msgs[0].Attributes)
	}
}

func TestPubSubUsesExistingTopic(t *testing.T) {
	p, srv := newTestPubSub(t)
	defer p.Close()
	ctx := context.Background()

	if _, err := p.client.CreateTopic(ctx, "auth.login"); err != nil {
		t.Fatalf("create topic: %v", err)
	}
	if _, err := p.Publish(ctx, "auth.login", []byte("hello"), nil); err != nil {
		t.Fatalf("publish to existing topic: %v", err)
	}
	if got := len(srv.Messages()); got != 1 {
		t.Fatalf("expected 1 message, got %d", got)
	}
}

func TestPubSubCloseStopsTopics(t *testing.T) {
	p, _ := newTestPubSub(t)
	ctx := context.Background()

	if _, err := p.Publish(ctx, "auth.login", []byte("hello"), nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(p.topics) != 0 {
		t.Fatalf("expected topics to be released, got %d", len(p.topics))
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := p.Publish(ctx, "auth.login", []byte("late"), nil); !errors.Is(err, errPubSubClosed) {
		t.Fatalf("expected errPubSubClosed, got %v", err)
	}
}

func TestPubSubSubscribeReceives(t *testing.T) {
	p, _ := newTestPubSub(t)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	topic, err := p.topic(ctx, "auth.login")
	if err != nil {
		t.Fatalf("topic: %v", err)
	}
	if _, err := p.subscription(ctx, p.subscriptionName("auth.login"), topic); err != nil {
		t.Fatalf("subscription: %v", err)
	}
	if _, err := p.Publish(ctx, "auth.login", []byte("welcome"), map[string]string{"source": "test"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var got Message
	err = p.Subscribe(ctx, "auth.login", func(_ context.Context, msg Message) error {
		got = msg
		cancel()
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if string(got.Data) != "welcome" || got.Attributes["source"] != "test" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestPubSubRequiresChannel(t *testing.T) {
	p, _ := newTestPubSub(t)
	defer p.Close()

	if _, err := p.Publish(context.Background(), " ", nil, nil); err == nil {
		t.Fatalf("expected an error for an empty channel")
	}
	if err := p.Subscribe(context.Background(), "", nil); err == nil {
		t.Fatalf("expected an error for an empty channel")
	}
}
