package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilProducerIsNoop(t *testing.T) {
	p := NewProducer(nil, "patientpy-runs")
	assert.Nil(t, p)
	require.NoError(t, p.PublishEvent(context.Background(), "pipeline.run", "patientpy", nil))
	require.NoError(t, p.Close())
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent("pipeline.run", "patientpy", map[string]interface{}{"stage": "cache"})
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "pipeline.run", ev.Type)
	assert.Equal(t, "cache", ev.Data["stage"])
	assert.False(t, ev.Timestamp.IsZero())
}

func TestMessageKeyPrefersRunID(t *testing.T) {
	ev := NewEvent("pipeline.run", "patientpy", map[string]interface{}{"run_id": "r-1"})
	assert.Equal(t, []byte("r-1"), MessageKey(ev))

	anon := NewEvent("pipeline.run", "patientpy", nil)
	assert.Equal(t, []byte(anon.ID), MessageKey(anon))
}
