package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/clinic-scheduling/internal/config"
)

func siteverify(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "s3cret", r.PostForm.Get("secret"))
		assert.Equal(t, "tok", r.PostForm.Get("response"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewWithoutSecretIsDisabled(t *testing.T) {
	v := New(config.CaptchaConfig{}, nil)
	assert.IsType(t, Disabled{}, v)
	assert.NoError(t, v.Verify(context.Background(), "", ""))
}

func TestReCaptchaVerify(t *testing.T) {
	cases := []struct {
		name string
		body string
		ok   bool
	}{
		{"v2 success", `{"success":true}`, true},
		{"v3 good score", `{"success":true,"score":0.9,"action":"reset"}`, true},
		{"v3 low score", `{"success":true,"score":0.1}`, false},
		{"rejected", `{"success":false,"error-codes":["invalid-input-response"]}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := siteverify(t, tc.body)
			v := NewReCaptcha("s3cret", srv.URL, 0.5, srv.Client())
			err := v.Verify(context.Background(), "tok", "10.0.0.1")
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrRejected)
			}
		})
	}
}

func TestReCaptchaMissingResponse(t *testing.T) {
	v := NewReCaptcha("s3cret", "http://127.0.0.1:0", 0.5, nil)
	assert.ErrorIs(t, v.Verify(context.Background(), " ", ""), ErrMissing)
}

func TestReCaptchaProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewReCaptcha("s3cret", srv.URL, 0.5, srv.Client()).Verify(context.Background(), "tok", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}
