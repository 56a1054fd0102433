package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulti_FansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, nil, b, LogNotifier{}}

	at := time.Unix(1_700_000_000, 0).UTC()
	m.Notify(context.Background(),
		NewEvent(EventTransfer, "alice", "rent", at, map[string]string{"quantity": "1.0000 TOK"}),
		NewEvent(EventTransfer, "bob", "rent", at, nil),
	)

	assert.Len(t, a.Events(), 2)
	assert.Len(t, b.Events(), 2)
	assert.Equal(t, "alice", a.Events()[0].Account.String())
	assert.NotEqual(t, a.Events()[0].ID, a.Events()[1].ID)
}

func TestMulti_NoEvents(t *testing.T) {
	r := &Recorder{}
	Multi{r}.Notify(context.Background())
	assert.Empty(t, r.Events())
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "ledger:notify:alice", Channel("alice"))
}

func TestRedisPublisher_PublishesOnAccountChannel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sub := client.Subscribe(ctx, Channel("bob"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	at := time.Unix(1_700_000_000, 0).UTC()
	NewRedisPublisher(client).Notify(ctx, NewEvent(EventTransfer, "bob", "rent", at, map[string]string{"from": "alice"}))

	select {
	case msg := <-sub.Channel():
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, EventTransfer, got.Type)
		assert.Equal(t, "alice", got.Fields["from"])
		assert.Equal(t, "rent", got.Memo)
	case <-ctx.Done():
		t.Fatal("no notification published")
	}
}
