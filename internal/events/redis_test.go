package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/marketsage/journey-engine/internal/events"
)

func TestRedisPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sub := client.Subscribe(context.Background(), "journey:custom")
	defer sub.Close()
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	pub := events.NewRedisPublisher(client, "journey:custom")
	want := events.StageChanged{
		ContactJourneyID: "cj-1",
		JourneyID:        "j-1",
		ContactID:        "c-1",
		FromStageID:      "s-1",
		ToStageID:        "s-2",
		Completed:        true,
		Timestamp:        time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := pub.NotifyStageChanged(context.Background(), want); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var got events.StageChanged
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if got != want {
			t.Fatalf("payload mismatch:\n got %+v\nwant %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestRedisPublisherDefaultChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sub := client.Subscribe(context.Background(), events.DefaultChannel)
	defer sub.Close()
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	pub := events.NewRedisPublisher(client, "")
	if err := pub.NotifyStageChanged(context.Background(), events.StageChanged{ContactJourneyID: "cj-1"}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		if msg.Channel != events.DefaultChannel {
			t.Fatalf("expected default channel, got %s", msg.Channel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}
