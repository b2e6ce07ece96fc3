package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/schoolhub/apiserver/internal/mq"
	"github.com/schoolhub/apiserver/types"
)

// Channels auth events are published to.
const (
	ChannelLogin           = "auth.login"
	ChannelUserDeactivated = "auth.user_deactivated"
)

// EventPublisher is satisfied by *mq.MQ.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// LoginEvent is emitted after a successful login.
type LoginEvent struct {
	UserID   string     `json:"user_id"`
	SchoolID string     `json:"school_id"`
	BranchID *string    `json:"branch_id,omitempty"`
	Role     types.Role `json:"role"`
	At       time.Time  `json:"at"`
}

// DeactivationEvent is emitted when an account is deactivated.
type DeactivationEvent struct {
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

func publishEvent(ctx context.Context, publisher EventPublisher, channel string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = publisher.Publish(ctx, channel, data, map[string]string{mq.AttrContentType: "application/json"})
	return err
}
