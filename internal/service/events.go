package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/yonagi/curio"
)

const eventChannel = "curio:events"

// EventService fans registry and exchange events out through redis, so
// every node of a deployment serves the same /realtime stream.
type EventService struct {
	rdb *redis.Client
}

func NewEventService(redisClient *redis.Client) *EventService {
	return &EventService{
		rdb: redisClient,
	}
}

func (s *EventService) Publish(ctx context.Context, event curio.Event) error {
	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return s.rdb.Publish(ctx, eventChannel, jsonstr).Err()
}

// Realtime pumps published events into output until ctx is done or input
// closes. input carries event-type filter updates; an empty filter passes
// everything.
func (s *EventService) Realtime(ctx context.Context, input chan []string, output chan curio.Event) {
	pubsub := s.rdb.Subscribe(ctx, eventChannel)
	defer pubsub.Close()

	messages := pubsub.Channel()
	filter := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			return
		case types, ok := <-input:
			if !ok {
				return
			}
			filter = map[string]bool{}
			for _, typ := range types {
				filter[typ] = true
			}
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event curio.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.ErrorContext(ctx, "failed to decode event",
					slog.String("error", err.Error()),
					slog.String("module", "events"),
				)
				continue
			}
			if len(filter) > 0 && !filter[event.Type] {
				continue
			}
			select {
			case output <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}
