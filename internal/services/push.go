package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// PushConfig holds APNs token authentication settings
type PushConfig struct {
	KeyPath    string
	KeyID      string
	TeamID     string
	Topic      string
	Production bool
}

type pushFunc func(ctx context.Context, n *apns2.Notification) (*apns2.Response, error)

// PushNotifier sends reward notifications to users' registered devices
type PushNotifier struct {
	push  pushFunc
	topic string
	users *UserDirectory
}

// NewPushNotifier creates an APNs backed notifier
func NewPushNotifier(cfg PushConfig, users *UserDirectory) (*PushNotifier, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs auth key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &PushNotifier{
		push: func(ctx context.Context, n *apns2.Notification) (*apns2.Response, error) {
			return client.PushWithContext(ctx, n)
		},
		topic: cfg.Topic,
		users: users,
	}, nil
}

// NotifyReward implements RewardNotifier
func (p *PushNotifier) NotifyReward(ctx context.Context, userID string, c Confirmation) {
	user, err := p.users.Get(userID)
	if err != nil || user.DeviceToken == nil {
		return
	}

	n := &apns2.Notification{
		DeviceToken: *user.DeviceToken,
		Topic:       p.topic,
		Payload: payload.NewPayload().
			AlertTitle("Reward received").
			AlertBody(fmt.Sprintf("Your observation #%d earned %d tokens", c.SubmissionID, c.Amount)).
			Sound("default").
			Custom("data_id", c.SubmissionID),
	}

	res, err := p.push(context.WithoutCancel(ctx), n)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to send push notification")
		return
	}
	if !res.Sent() {
		log.Warn().
			Str("user_id", userID).
			Int("status", res.StatusCode).
			Str("reason", res.Reason).
			Msg("Push notification rejected")
	}
}
