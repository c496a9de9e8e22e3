package mqttpub

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/triage/telemetry"
)

type fakeToken struct {
	err      error
	complete bool
}

func (t *fakeToken) Wait() bool                     { return t.complete }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.complete }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.complete {
		close(ch)
	}
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type message struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	token    *fakeToken
	messages []message
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.messages = append(c.messages, message{topic: topic, payload: payload.([]byte)})
	return c.token
}

func TestListener_OnEvent(t *testing.T) {
	testCases := []struct {
		name      string
		token     *fakeToken
		kinds     []telemetry.Kind
		event     *telemetry.Event
		published int
		topic     string
		wantErr   bool
	}{
		{
			name:      "published",
			token:     &fakeToken{complete: true},
			event:     telemetry.NewEvent(telemetry.KindSurgeBegin, 10, nil),
			published: 1,
			topic:     "triage/events/surge/begin",
		},
		{
			name:      "filtered out",
			token:     &fakeToken{complete: true},
			kinds:     []telemetry.Kind{telemetry.KindResolved},
			event:     telemetry.NewEvent(telemetry.KindDispatch, 1, nil),
			published: 0,
		},
		{
			name:      "broker error",
			token:     &fakeToken{complete: true, err: errors.New("not connected")},
			event:     telemetry.NewEvent(telemetry.KindResolved, 2, &telemetry.Context{CaseID: "c1"}),
			published: 1,
			topic:     "triage/events/resolved",
			wantErr:   true,
		},
		{
			name:      "timeout",
			token:     &fakeToken{},
			event:     telemetry.NewEvent(telemetry.KindResolved, 2, nil),
			published: 1,
			topic:     "triage/events/resolved",
			wantErr:   true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeClient{token: tc.token}
			var errs []error
			listener := New(client, Config{Kinds: tc.kinds}, WithErrorHandler(func(err error) { errs = append(errs, err) }))
			listener.OnEvent(tc.event)
			require.Len(t, client.messages, tc.published)
			assert.Equal(t, tc.wantErr, len(errs) > 0)
			if tc.published == 0 {
				return
			}
			assert.Equal(t, tc.topic, client.messages[0].topic)
			decoded := telemetry.Event{}
			require.NoError(t, json.Unmarshal(client.messages[0].payload, &decoded))
			assert.Equal(t, tc.event.Kind, decoded.Kind)
		})
	}
}
