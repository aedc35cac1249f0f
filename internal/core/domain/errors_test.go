package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorLabel(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		label string
	}{
		{"nil", nil, ""},
		{"timeout", &ProxyTimeoutError{Op: "recv", Proxy: "p:1"}, LabelTimeout},
		{"conn", &ProxyConnError{Proxy: "p:1", Err: errors.New("refused")}, LabelConnFailed},
		{"send", &ProxySendError{Proxy: "p:1", Err: errors.New("reset")}, LabelSendFailed},
		{"recv", &ProxyRecvError{Proxy: "p:1", Err: errors.New("reset")}, LabelRecvFailed},
		{"empty", &ProxyEmptyRecvError{Proxy: "p:1"}, LabelEmptyRecv},
		{"bad response", &BadResponseError{Line: "garbage"}, LabelBadResponse},
		{"bad status line", &BadStatusLineError{Line: "garbage"}, LabelBadResponse},
		{"no proxy", &NoProxyError{Host: "x", Port: 1}, LabelNoProxy},
		{"no proto", &NoProtoError{Scheme: SchemeHTTP}, LabelNoProto},
		{"cancelled", context.Canceled, LabelCancelled},
		{"wrapped cancelled", fmt.Errorf("relay: %w", context.Canceled), LabelCancelled},
		{"unknown", errors.New("mystery"), LabelStream},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.label, ErrorLabel(tc.err))
		})
	}
}

func TestErrorLabel_UnwrapsStreamError(t *testing.T) {
	err := &StreamError{
		Direction: "proxy->client",
		Err:       &BadResponseError{Line: "garbage"},
	}
	assert.Equal(t, LabelBadResponse, ErrorLabel(err))

	timeout := &StreamError{Direction: "client->proxy", Err: &ProxyTimeoutError{Op: "read", Proxy: "p:1"}}
	assert.Equal(t, LabelTimeout, ErrorLabel(timeout))
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(&ProxyTimeoutError{}))
	assert.True(t, IsTimeout(&StreamError{Err: &ProxyTimeoutError{}}))
	assert.False(t, IsTimeout(&ProxyConnError{Err: errors.New("refused")}))
	assert.False(t, IsTimeout(nil))
}
