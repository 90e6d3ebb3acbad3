package mail

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/clinic-scheduling/internal/config"
	"github.com/iliyamo/clinic-scheduling/internal/logging"
)

type failingSender struct{ calls atomic.Int32 }

func (f *failingSender) Send(context.Context, Message) error {
	f.calls.Add(1)
	return errors.New("provider down")
}

func TestNewSelectsProvider(t *testing.T) {
	s, err := New(config.MailConfig{Provider: "log"})
	require.NoError(t, err)
	assert.IsType(t, LogSender{}, s)

	s, err = New(config.MailConfig{})
	require.NoError(t, err)
	assert.IsType(t, LogSender{}, s)

	_, err = New(config.MailConfig{Provider: "pigeon"})
	assert.Error(t, err)

	_, err = New(config.MailConfig{Provider: "sendgrid", From: "no-reply@clinic.test"})
	assert.Error(t, err, "missing api key")

	s, err = New(config.MailConfig{Provider: "mailgun", MailgunDomain: "mg.clinic.test", MailgunKey: "k", From: "no-reply@clinic.test"})
	require.NoError(t, err)
	assert.IsType(t, &breakerSender{}, s)
}

func TestLogSenderWritesMessage(t *testing.T) {
	var buf bytes.Buffer
	prev := logging.Logger()
	logging.SetLogger(zerolog.New(&buf))
	t.Cleanup(func() { logging.SetLogger(prev) })

	require.NoError(t, LogSender{}.Send(context.Background(), Message{To: "ana@clinic.test", Subject: "hola", Text: "cuerpo"}))
	assert.Contains(t, buf.String(), `"to":"ana@clinic.test"`)
	assert.Contains(t, buf.String(), `"subject":"hola"`)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	f := &failingSender{}
	s := WithBreaker(f, "test")
	for i := 0; i < 3; i++ {
		err := s.Send(context.Background(), Message{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
	err := s.Send(context.Background(), Message{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 3, f.calls.Load(), "open breaker short-circuits the provider")
}

func TestPasswordResetMessage(t *testing.T) {
	m := PasswordReset("ana@clinic.test", "Ana", "https://clinic.test/reset.html?token=abc", 15*time.Minute)
	assert.Equal(t, "ana@clinic.test", m.To)
	assert.Contains(t, m.Text, "https://clinic.test/reset.html?token=abc")
	assert.Contains(t, m.Text, "15 minutos")
	assert.Contains(t, m.Text, "Hola Ana")
	assert.Contains(t, m.HTML, `href="https://clinic.test/reset.html?token=abc"`)

	m = PasswordReset("x@clinic.test", "<b>", "https://clinic.test/r?a=1&b=2", time.Minute)
	assert.Contains(t, m.HTML, "&lt;b&gt;")
	assert.Contains(t, m.HTML, "a=1&amp;b=2")
}

func TestMailgunSenderPostsMessage(t *testing.T) {
	var (
		gotPath string
		gotTo   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTo = r.FormValue("to")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"<1@mg.clinic.test>","message":"Queued. Thank you."}`))
	}))
	defer srv.Close()

	s, err := NewMailgun("mg.clinic.test", "key-123", "no-reply@clinic.test")
	require.NoError(t, err)
	s.SetAPIBase(srv.URL + "/v3")

	require.NoError(t, s.Send(context.Background(), PasswordReset("ana@clinic.test", "", "https://x", time.Minute)))
	assert.True(t, strings.HasSuffix(gotPath, "/mg.clinic.test/messages"), gotPath)
	assert.Equal(t, "ana@clinic.test", gotTo)
}

func TestAsyncLogsFailure(t *testing.T) {
	var buf safeBuffer
	prev := logging.Logger()
	logging.SetLogger(zerolog.New(&buf))
	t.Cleanup(func() { logging.SetLogger(prev) })

	Async(&failingSender{}, Message{To: "a@b.c"})
	assert.Eventually(t, func() bool { return strings.Contains(buf.String(), "mail send failed") }, time.Second, 10*time.Millisecond)
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
