package chathub

import (
	"context"
	"encoding/json"

	"github.com/hbkhrishi0412-afk/reride-sub005/internal/models"
	"go.uber.org/zap"
)

// StartPubSubListener forwards events published on any thread channel,
// by this or another instance, into the hub.
func (m *ManagerService) StartPubSubListener(ctx context.Context) {
	pubsub := m.Storage.SubscribeToThreads(ctx)
	if pubsub == nil {
		m.log.Warn("thread pub/sub unavailable, only local deliveries will be made")
		return
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event models.ThreadEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					m.log.Error("failed to decode thread event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case m.PubSubCh <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}
