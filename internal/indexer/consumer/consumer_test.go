package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTrigger struct {
	calls int
	err   error
}

func (c *countingTrigger) Trigger(context.Context) (int, error) {
	c.calls++
	return 1, c.err
}

func TestHandleMessageTriggersIndexing(t *testing.T) {
	trigger := &countingTrigger{}
	value, err := json.Marshal(ingestion.IngestEvent{DocID: 7, URL: "http://x/a"})
	require.NoError(t, err)

	require.NoError(t, HandleMessage(trigger)(context.Background(), []byte("7"), value))
	assert.Equal(t, 1, trigger.calls)
}

func TestHandleMessageSkipsMalformedEvents(t *testing.T) {
	trigger := &countingTrigger{}
	require.NoError(t, HandleMessage(trigger)(context.Background(), nil, []byte("{not json")))
	assert.Zero(t, trigger.calls)
}

func TestHandleMessageReportsFailedPass(t *testing.T) {
	boom := errors.New("index failed")
	trigger := &countingTrigger{err: boom}
	value, _ := json.Marshal(ingestion.IngestEvent{DocID: 1})

	err := HandleMessage(trigger)(context.Background(), nil, value)
	assert.ErrorIs(t, err, boom)
}
