package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/clinic-scheduling/internal/model"
)

const testSecret = "test-secret"

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestReadToken(t *testing.T) {
	cases := []struct {
		name   string
		header http.Header
		query  string
		want   string
	}{
		{"bearer header", http.Header{"Authorization": {"Bearer abc"}}, "", "abc"},
		{"lower-case key", http.Header{"authorization": {"Bearer low"}}, "", "low"},
		{"header wins over query", http.Header{"Authorization": {"Bearer h"}}, "?jwt=q", "h"},
		{"non-bearer falls back to query", http.Header{"Authorization": {"Basic xyz"}}, "?jwt=q", "q"},
		{"query only", http.Header{}, "?jwt=q", "q"},
		{"empty query", http.Header{}, "?jwt=", ""},
		{"nothing", http.Header{}, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/x"+tc.query, nil)
			r.Header = tc.header
			assert.Equal(t, tc.want, ReadToken(r))
		})
	}
}

func TestHMACVerifierRoundTrip(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	tok := sign(t, testSecret, jwt.MapClaims{"id": 5, "correo": "a@b.co", "rol_id": 1, "exp": exp})

	claims, err := NewHMACVerifier(testSecret).Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, Claims{"id": float64(5), "correo": "a@b.co", "rol_id": float64(1), "exp": float64(exp)}, claims)
}

func TestHMACVerifierRejects(t *testing.T) {
	v := NewHMACVerifier(testSecret)
	future := time.Now().Add(time.Hour).Unix()

	cases := map[string]string{
		"wrong secret": sign(t, "other", jwt.MapClaims{"id": 1, "exp": future}),
		"expired":      sign(t, testSecret, jwt.MapClaims{"id": 1, "exp": time.Now().Add(-time.Hour).Unix()}),
		"no expiry":    sign(t, testSecret, jwt.MapClaims{"id": 1}),
		"garbage":      "not.a.token",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	t.Run("none algorithm", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": 1, "exp": future}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = v.Verify(context.Background(), tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestNormalizePrecedence(t *testing.T) {
	cases := []struct {
		claims Claims
		want   Identity
	}{
		{Claims{"id": 5.0, "sub": 9.0}, Identity{UserID: 5}},
		{Claims{"user_id": "7", "rol_id": 1.0}, Identity{UserID: 7, RoleID: 1}},
		{Claims{"usuario_id": 3.0, "uid": 8.0, "role_id": "2"}, Identity{UserID: 3, RoleID: 2}},
		{Claims{"sub": "11", "role": 1.0, "rol": 2.0}, Identity{UserID: 11, RoleID: 1}},
		{Claims{"uid": json.Number("12"), "rol": true}, Identity{UserID: 12, RoleID: 1}},
		{Claims{"id": "", "user_id": 4.0}, Identity{UserID: 4}},
		{Claims{"id": nil, "sub": 6.0, "rol_id": "admin"}, Identity{UserID: 6}},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			got, err := Normalize(tc.claims)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeFails(t *testing.T) {
	for _, c := range []Claims{
		{},
		{"id": 0.0},
		{"id": -3.0},
		{"id": 2.5},
		{"sub": "abc"},
		{"id": "abc", "user_id": 5.0},
		{"email": "x@y.z"},
		{"id": 9.223372036854775807e18},
		{"id": "9223372036854775808"},
	} {
		_, err := Normalize(c)
		assert.ErrorIs(t, err, ErrNoIdentity, "%v", c)
	}
}

func TestEmailFrom(t *testing.T) {
	assert.Equal(t, "a@b.co", EmailFrom(Claims{"correo": " A@B.co "}))
	assert.Equal(t, "n@b.co", EmailFrom(Claims{"user": map[string]any{"email": "n@b.co"}}))
	assert.Equal(t, "u@b.co", EmailFrom(Claims{"usuario": map[string]any{"correo": "u@b.co"}}))
	assert.Equal(t, "", EmailFrom(Claims{"sub": "x"}))
}

func TestAuthorizeAdminBypass(t *testing.T) {
	admin := Identity{UserID: 1, RoleID: 1}
	for _, owner := range []int64{0, 1, 2, 999} {
		for op := OpRead; op <= OpViewStats; op++ {
			assert.True(t, Authorize(admin, owner, op).Allowed)
		}
	}
}

func TestAuthorizeClient(t *testing.T) {
	client := Identity{UserID: 7, RoleID: 2}

	assert.True(t, Authorize(client, 7, OpRead).Allowed)
	assert.True(t, Authorize(client, 7, OpDelete).Allowed)

	d := Authorize(client, 8, OpRead)
	assert.False(t, d.Allowed)
	assert.ErrorIs(t, d.Err(), ErrForbidden)

	for op := OpChangeRole; op <= OpViewStats; op++ {
		assert.False(t, Authorize(client, 7, op).Allowed, "admin-only op %d allowed for owner", op)
	}
	assert.False(t, Authorize(Identity{}, 0, OpRead).Allowed)
}

func TestAuthorizeStatusChange(t *testing.T) {
	client := Identity{UserID: 7, RoleID: 2}
	admin := Identity{UserID: 1, RoleID: 1}

	assert.True(t, AuthorizeStatusChange(client, 7, model.AppointmentCancelled).Allowed)
	assert.True(t, AuthorizeStatusChange(client, 7, model.AppointmentPostponed).Allowed)
	assert.False(t, AuthorizeStatusChange(client, 7, model.AppointmentAccepted).Allowed)
	assert.False(t, AuthorizeStatusChange(client, 7, model.AppointmentFinished).Allowed)
	assert.False(t, AuthorizeStatusChange(client, 7, model.AppointmentPending).Allowed)
	assert.False(t, AuthorizeStatusChange(client, 8, model.AppointmentCancelled).Allowed)
	for s := model.AppointmentAccepted; s <= model.AppointmentFinished; s++ {
		assert.True(t, AuthorizeStatusChange(admin, 8, s).Allowed)
	}
}

type fakeEmails map[string]int64

func (f fakeEmails) UserIDByEmail(_ context.Context, email string) (int64, error) {
	if email == "broken@db" {
		return 0, errors.New("connection reset")
	}
	id, ok := f[email]
	if !ok {
		return 0, ErrUserNotFound
	}
	return id, nil
}

func TestAuthenticator(t *testing.T) {
	a := NewAuthenticator(NewHMACVerifier(testSecret))
	exp := time.Now().Add(time.Hour).Unix()

	_, _, err := a.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoToken)

	id, _, err := a.Authenticate(context.Background(), sign(t, testSecret, jwt.MapClaims{"id": 3, "rol_id": 2, "exp": exp}))
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 3, RoleID: 2}, id)

	emailOnly := sign(t, testSecret, jwt.MapClaims{"email": "c@d.co", "exp": exp})
	_, _, err = a.Authenticate(context.Background(), emailOnly)
	assert.ErrorIs(t, err, ErrNoIdentity)

	withFallback := a.WithEmailFallback(fakeEmails{"c@d.co": 42})
	id, _, err = withFallback.Authenticate(context.Background(), emailOnly)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.UserID)

	unknown := sign(t, testSecret, jwt.MapClaims{"correo": "nobody@d.co", "exp": exp})
	_, _, err = withFallback.Authenticate(context.Background(), unknown)
	assert.ErrorIs(t, err, ErrNoIdentity)

	broken := sign(t, testSecret, jwt.MapClaims{"mail": "broken@db", "exp": exp})
	_, _, err = withFallback.Authenticate(context.Background(), broken)
	require.Error(t, err)
	assert.False(t, IsUnauthenticated(err))
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func jwksServer(t *testing.T, key *ecdsa.PrivateKey, kid string, hits *int32) *httptest.Server {
	t.Helper()
	x := key.X.FillBytes(make([]byte, 32))
	y := key.Y.FillBytes(make([]byte, 32))
	body, err := json.Marshal(map[string]any{"keys": []map[string]string{
		{"kty": "RSA", "kid": "ignored", "n": "AQAB", "e": "AQAB"},
		{"kty": "EC", "crv": "P-256", "kid": kid, "alg": "ES256", "x": b64(x), "y": b64(y)},
	}})
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJWKSVerifier(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	var hits int32
	srv := jwksServer(t, key, "k1", &hits)
	v := NewJWKSVerifier(NewJWKSCache(srv.URL, srv.Client(), time.Minute))

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{"sub": "upstream-1", "email": "x@y.co", "exp": time.Now().Add(time.Hour).Unix()})
	tok.Header["kid"] = "k1"
	raw, err := tok.SignedString(key)
	require.NoError(t, err)

	claims, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "upstream-1", claims["sub"])

	_, err = v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "keys are cached between verifications")

	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	forged, err := tok.SignedString(other)
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	hs := sign(t, testSecret, jwt.MapClaims{"sub": "x", "exp": time.Now().Add(time.Hour).Unix()})
	_, err = v.Verify(context.Background(), hs)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWKSVerifierRequiresExpiry(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	var hits int32
	srv := jwksServer(t, key, "k1", &hits)
	v := NewJWKSVerifier(NewJWKSCache(srv.URL, srv.Client(), time.Minute))

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{"sub": "u"})
	tok.Header["kid"] = "k1"
	raw, err := tok.SignedString(key)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWKSRefreshDoesNotBlockReaders(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	var hits int32
	upstream := jwksServer(t, key, "k1", &hits)

	started, release := make(chan struct{}), make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		upstream.Config.Handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	c := NewJWKSCache(srv.URL, srv.Client(), time.Minute)
	done := make(chan error, 1)
	go func() {
		_, err := c.refreshKeys(context.Background())
		done <- err
	}()

	<-started
	if assert.True(t, c.mu.TryLock(), "cache lock held during fetch") {
		c.mu.Unlock()
	}
	close(release)
	require.NoError(t, <-done)

	got, err := c.GetKey(context.Background(), "k1")
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(got))
}

func TestJWKSCacheUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewJWKSCache(srv.URL, srv.Client(), time.Minute).GetKey(context.Background(), "k1")
	assert.Error(t, err)
}
