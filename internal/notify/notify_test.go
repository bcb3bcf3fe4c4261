package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramSendText(t *testing.T) {
	var calls atomic.Int32
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", "42")
	tg.baseURL = srv.URL
	tg.policy.BaseDelay = 0

	require.NoError(t, tg.SendText(context.Background(), "cycle started"))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "cycle started", got["text"])
}

func TestTelegramNotConfigured(t *testing.T) {
	assert.Error(t, NewTelegram("", "").SendText(context.Background(), "x"))
}

func TestNewFallsBackToLog(t *testing.T) {
	_, ok := New("", "").(*Log)
	assert.True(t, ok)
	_, ok = New("t", "c").(*Telegram)
	assert.True(t, ok)
}

type failing struct{ calls int }

func (f *failing) SendText(context.Context, string) error {
	f.calls++
	return errors.New("down")
}

func TestSendSwallowsErrors(t *testing.T) {
	f := &failing{}
	Send(context.Background(), f, "hello")
	assert.Equal(t, 1, f.calls)
	Send(context.Background(), nil, "hello")
}
