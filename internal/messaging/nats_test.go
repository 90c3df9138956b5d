package messaging

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient connects to NATS_URL, skipping the test when no server is
// reachable.
func newTestClient(t *testing.T) *NATSClient {
	t.Helper()
	cfg := DefaultNATSConfig()
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.URL = url
	}
	cfg.MaxReconnects = 0
	c, err := NewNATSClient(cfg)
	if err != nil {
		t.Skipf("NATS not available: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestDefaultNATSConfig(t *testing.T) {
	cfg := DefaultNATSConfig()
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.URL)
	assert.Equal(t, -1, cfg.MaxReconnects)
}

func TestMessageCreatedRoundTrip(t *testing.T) {
	c := newTestClient(t)

	got := make(chan []byte, 1)
	require.NoError(t, c.SubscribeMessageCreated("test-moderators", func(data []byte) { got <- data }))
	require.NoError(t, c.Flush())

	require.NoError(t, c.PublishJSON(SubjectMessageCreated, map[string]string{"id": "m-1"}))

	select {
	case data := <-got:
		assert.JSONEq(t, `{"id":"m-1"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestModerationResultCarriesAuthor(t *testing.T) {
	c := newTestClient(t)

	type verdict struct {
		author string
		data   string
	}
	got := make(chan verdict, 1)
	require.NoError(t, c.SubscribeModerationResults(func(author string, data []byte) {
		got <- verdict{author, string(data)}
	}))
	require.NoError(t, c.Flush())

	require.NoError(t, c.PublishModerationResult("u-42", []byte(`{}`)))

	select {
	case v := <-got:
		assert.Equal(t, "u-42", v.author)
	case <-time.After(2 * time.Second):
		t.Fatal("no verdict received")
	}
}

func TestUnsubscribeUnknown(t *testing.T) {
	c := newTestClient(t)
	assert.Error(t, c.Unsubscribe("nope"))
}
