package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/moneyguard/internal/platform/alert"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestAlerter_PublishesKeyedBySource(t *testing.T) {
	w := &recordingWriter{}
	a := newAlerterWithWriter(w)

	al := alert.Alert{
		Source:   "reconciliation",
		Severity: alert.SeverityCritical,
		Title:    "ledger integrity broken",
		RaisedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, a.Notify(context.Background(), al))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "reconciliation", string(msg.Key))
	assert.Equal(t, al.RaisedAt, msg.Time)

	var got alert.Alert
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, al.Title, got.Title)
	assert.Equal(t, alert.SeverityCritical, got.Severity)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "critical", headers["severity"])
	assert.Len(t, headers["alert_id"], 26)
}

func TestAlerter_WriteErrorIsReturned(t *testing.T) {
	a := newAlerterWithWriter(&recordingWriter{err: errors.New("broker down")})
	err := a.Notify(context.Background(), alert.Alert{Source: "x", Severity: alert.SeverityWarning})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
