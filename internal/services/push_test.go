package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"ecoproof-backend/internal/models"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushNotifier(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	_, err := w.users.Upsert(ctx, models.Profile{ID: "alice"})
	require.NoError(t, err)
	_, err = w.users.Upsert(ctx, models.Profile{ID: "bob"})
	require.NoError(t, err)
	require.NoError(t, w.users.SetDeviceToken(ctx, "alice", "device-1"))

	var sent []*apns2.Notification
	p := &PushNotifier{
		push: func(_ context.Context, n *apns2.Notification) (*apns2.Response, error) {
			sent = append(sent, n)
			return &apns2.Response{StatusCode: 200}, nil
		},
		topic: "app.ecoproof",
		users: w.users,
	}

	p.NotifyReward(ctx, "alice", Confirmation{SubmissionID: 4, Amount: 10})
	p.NotifyReward(ctx, "bob", Confirmation{SubmissionID: 5, Amount: 10})
	p.NotifyReward(ctx, "nobody", Confirmation{SubmissionID: 6, Amount: 10})

	require.Len(t, sent, 1)
	assert.Equal(t, "device-1", sent[0].DeviceToken)
	assert.Equal(t, "app.ecoproof", sent[0].Topic)

	body, err := json.Marshal(sent[0].Payload)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Reward received")
	assert.Contains(t, string(body), `"data_id":4`)
}

func TestPushNotifier_FailureIsLogged(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	_, err := w.users.Upsert(ctx, models.Profile{ID: "alice"})
	require.NoError(t, err)
	require.NoError(t, w.users.SetDeviceToken(ctx, "alice", "device-1"))

	calls := 0
	p := &PushNotifier{
		push: func(context.Context, *apns2.Notification) (*apns2.Response, error) {
			calls++
			return nil, errors.New("apns down")
		},
		users: w.users,
	}
	p.NotifyReward(ctx, "alice", Confirmation{SubmissionID: 1})
	assert.Equal(t, 1, calls)
}

func TestNewPushNotifier_MissingKey(t *testing.T) {
	_, err := NewPushNotifier(PushConfig{KeyPath: "/nonexistent/AuthKey.p8"}, NewUserDirectory(newMemRepo()))
	assert.Error(t, err)
}
