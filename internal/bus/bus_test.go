package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/user/inkpilot/internal/types"
)

func TestPublishFanOut(t *testing.T) {
	b := New(time.Second)
	a, stopA := b.Subscribe(4)
	c, stopC := b.Subscribe(4)
	defer stopA()
	defer stopC()

	b.Publish(ApplyModification{TargetBlockIDs: []types.BlockID{"x"}, NewMarkdown: "new"})

	for _, ch := range []<-chan Command{a, c} {
		cmd := <-ch
		mod, ok := cmd.(ApplyModification)
		require.True(t, ok)
		require.Equal(t, []types.BlockID{"x"}, mod.TargetBlockIDs)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(time.Second)
	ch, stop := b.Subscribe(1)
	stop()
	stop()
	_, ok := <-ch
	require.False(t, ok)
	require.Equal(t, 0, b.Subscribers())
}

func TestRequestDocumentContentRoundTrip(t *testing.T) {
	b := New(time.Second)
	ch, stop := b.Subscribe(4)
	defer stop()

	go func() {
		for cmd := range ch {
			if req, ok := cmd.(DocumentContentRequest); ok {
				b.Respond(req.RequestID, DocumentContent{
					Markdown:         "# Doc",
					SelectedBlockIDs: []types.BlockID{"b1"},
				})
			}
		}
	}()

	got := b.RequestDocumentContent(context.Background())
	require.Equal(t, "# Doc", got.Markdown)
	require.Equal(t, []types.BlockID{"b1"}, got.SelectedBlockIDs)
}

func TestRequestDocumentContentTimesOutEmpty(t *testing.T) {
	b := New(20 * time.Millisecond)
	_, stop := b.Subscribe(4)
	defer stop()

	start := time.Now()
	got := b.RequestDocumentContent(context.Background())
	require.True(t, got.Empty())
	require.Less(t, time.Since(start), time.Second)
}

func TestRequestDocumentContentWithoutSubscribers(t *testing.T) {
	b := New(time.Hour)
	got := b.RequestDocumentContent(context.Background())
	require.True(t, got.Empty())
}

func TestRespondUnknownRequest(t *testing.T) {
	b := New(time.Second)
	require.ErrorIs(t, b.Respond("nope", DocumentContent{}), ErrUnknownRequest)
}

func TestEnvelopeJSON(t *testing.T) {
	data, err := json.Marshal(Envelope{Kind: KindNotify, Payload: Notify{Message: "saved", Level: LevelSuccess, DurationMs: 1500}})
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"notify","payload":{"message":"saved","level":"success","durationMs":1500}}`, string(data))
}
