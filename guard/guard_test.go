package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/unkn0wn-root/opscache"
	"github.com/unkn0wn-root/opscache/persist"
	pr "github.com/unkn0wn-root/opscache/provider"
	"github.com/unkn0wn-root/opscache/session"
)

type memProvider struct {
	mu sync.Mutex
	m  map[string][]byte
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string][]byte)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[key] = append([]byte(nil), value...)
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
	return nil
}

func (p *memProvider) Close(context.Context) error { return nil }

func (p *memProvider) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type fixture struct {
	clock *clock
	store *session.Store
	prov  *memProvider
	calls atomic.Int32
}

func newFixture(t *testing.T, confirm func(ctx context.Context, token string) (bool, error)) (*fixture, *Guard) {
	t.Helper()
	f := &fixture{clock: &clock{t: t0}, prov: newMemProvider()}
	a, err := persist.New(persist.Options{Namespace: "opsdash", Token: f.prov, General: f.prov})
	if err != nil {
		t.Fatal(err)
	}
	s, err := session.Open(context.Background(), session.Options{Persist: a, Clock: f.clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	f.store = s
	var c Confirmer
	if confirm != nil {
		c = ConfirmFunc(func(ctx context.Context, token string) (bool, error) {
			f.calls.Add(1)
			return confirm(ctx, token)
		})
	}
	g, err := New(Options{Session: s, Confirmer: c})
	if err != nil {
		t.Fatal(err)
	}
	return f, g
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	u := &session.Identity{ID: "u-7", Name: "Linus"}
	if err := f.store.Login(context.Background(), "tok-7", u, []session.Role{{ID: "ops"}}); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) assertAnonymous(t *testing.T) {
	t.Helper()
	snap := f.store.Snapshot()
	if snap.Token != "" || snap.User != nil || len(snap.Roles) != 0 || snap.ExpiryMs != 0 {
		t.Fatalf("expected anonymous session, got %+v", snap)
	}
	if n := f.prov.len(); n != 0 {
		t.Fatalf("expected durable stores empty, %d keys left", n)
	}
}

// TestExpiryScenarioA: SetUser at t0 with the default 3h TTL.
func TestExpiryScenarioA(t *testing.T) {
	f, g := newFixture(t, nil)
	f.store.SetUser(context.Background(), &session.Identity{ID: "u-1"})

	f.clock.Set(t0.Add(2*time.Hour + 59*time.Minute))
	if g.IsExpired() {
		t.Fatalf("expected not expired at t0+2h59m")
	}
	f.clock.Set(t0.Add(3 * time.Hour))
	if !g.IsExpired() {
		t.Fatalf("expected expired exactly at t0+3h")
	}
	f.clock.Set(t0.Add(3*time.Hour + time.Second))
	if !g.IsExpired() {
		t.Fatalf("expected expired at t0+3h0m1s")
	}
}

func TestExpiredWithoutInformationFailsClosed(t *testing.T) {
	_, g := newFixture(t, nil)
	if !g.IsExpired() {
		t.Fatalf("absent expiry must count as expired")
	}
}

func TestExpiredFallsBackToIdentityClaim(t *testing.T) {
	snap := session.Snapshot{
		User: &session.Identity{ID: "u", Claims: map[string]any{session.ClaimExpiry: float64(t0.Add(time.Hour).Unix())}},
	}
	if Expired(snap, t0) {
		t.Fatalf("claim in the future: expected not expired")
	}
	if !Expired(snap, t0.Add(time.Hour)) {
		t.Fatalf("claim reached: expected expired")
	}
}

func TestExpiredFallsBackToTokenClaim(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u",
		ExpiresAt: jwt.NewNumericDate(t0.Add(30 * time.Minute)),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	snap := session.Snapshot{Token: tok, User: &session.Identity{ID: "u"}}
	if Expired(snap, t0) {
		t.Fatalf("token exp in the future: expected not expired")
	}
	if !Expired(snap, t0.Add(31*time.Minute)) {
		t.Fatalf("token exp passed: expected expired")
	}
	// opaque tokens carry no claim
	if !Expired(session.Snapshot{Token: "opaque", User: &session.Identity{ID: "u"}}, t0) {
		t.Fatalf("opaque token without other info must count as expired")
	}
}

func TestLocalExpiryTakesPrecedenceOverClaims(t *testing.T) {
	snap := session.Snapshot{
		User:     &session.Identity{ID: "u", Claims: map[string]any{session.ClaimExpiry: t0.Add(-time.Hour).Unix()}},
		ExpiryMs: t0.Add(time.Hour).UnixMilli(),
	}
	if Expired(snap, t0) {
		t.Fatalf("local expiry in the future must win over a past claim")
	}
}

func TestValidateRemotelyAccepts(t *testing.T) {
	var gotToken string
	f, g := newFixture(t, func(_ context.Context, token string) (bool, error) {
		gotToken = token
		return true, nil
	})
	f.login(t)

	ok, err := g.ValidateRemotely(context.Background())
	if !ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if gotToken != "tok-7" {
		t.Fatalf("confirmer got token %q", gotToken)
	}
	if n := f.calls.Load(); n != 1 {
		t.Fatalf("expected exactly one round trip, got %d", n)
	}
	if !f.store.Authenticated() {
		t.Fatalf("session should be kept")
	}
}

// TestValidateRemotelyScenarioD: the server reports the session invalid.
func TestValidateRemotelyScenarioD(t *testing.T) {
	f, g := newFixture(t, func(context.Context, string) (bool, error) { return false, nil })
	f.login(t)

	ok, err := g.ValidateRemotely(context.Background())
	if ok {
		t.Fatalf("expected false")
	}
	if !errors.Is(err, opscache.ErrValidation) || !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected validation error, got %v", err)
	}
	f.assertAnonymous(t)
}

func TestValidateRemotelyKeepsLoginMadeDuringRoundTrip(t *testing.T) {
	entered := make(chan string, 1)
	release := make(chan struct{})
	f, g := newFixture(t, func(_ context.Context, token string) (bool, error) {
		entered <- token
		<-release
		return false, nil
	})
	f.login(t)

	done := make(chan error, 1)
	go func() {
		_, err := g.ValidateRemotely(context.Background())
		done <- err
	}()
	if tok := <-entered; tok != "tok-7" {
		t.Fatalf("confirmer got %q", tok)
	}
	if err := f.store.Login(context.Background(), "tok-8", &session.Identity{ID: "u-8"}, nil); err != nil {
		t.Fatal(err)
	}
	close(release)

	if err := <-done; !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected the old token to be reported invalid, got %v", err)
	}
	snap := f.store.Snapshot()
	if snap.Token != "tok-8" || snap.User == nil || snap.User.ID != "u-8" {
		t.Fatalf("newer login must survive a verdict on the previous token: %+v", snap)
	}
}

func TestValidateRemotelyTransportFailureKeepsNewerLogin(t *testing.T) {
	var f *fixture
	f, g := newFixture(t, func(context.Context, string) (bool, error) {
		// the session changes while the request is out
		if err := f.store.Login(context.Background(), "tok-9", &session.Identity{ID: "u-9"}, nil); err != nil {
			t.Error(err)
		}
		return false, errors.New("connection reset")
	})
	f.login(t)

	if _, err := g.ValidateRemotely(context.Background()); !errors.Is(err, opscache.ErrTransport) {
		t.Fatalf("err: %v", err)
	}
	if f.store.Token() != "tok-9" {
		t.Fatalf("newer login wiped, token %q", f.store.Token())
	}
}

func TestValidateRemotelyTransportFailureResets(t *testing.T) {
	f, g := newFixture(t, func(context.Context, string) (bool, error) {
		return false, errors.New("connection refused")
	})
	f.login(t)

	ok, err := g.ValidateRemotely(context.Background())
	if ok || !errors.Is(err, opscache.ErrTransport) {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	f.assertAnonymous(t)
}

func TestValidateRemotelyCancelledContextStillResetsDurably(t *testing.T) {
	f, g := newFixture(t, func(ctx context.Context, _ string) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})
	f.login(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if ok, err := g.ValidateRemotely(ctx); ok || !errors.Is(err, context.Canceled) {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	f.assertAnonymous(t)
}

func TestValidateRemotelyLocallyExpired(t *testing.T) {
	f, g := newFixture(t, func(context.Context, string) (bool, error) { return true, nil })
	f.login(t)
	f.clock.Set(t0.Add(4 * time.Hour))

	ok, err := g.ValidateRemotely(context.Background())
	if ok || !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if n := f.calls.Load(); n != 1 {
		t.Fatalf("expected exactly one round trip, got %d", n)
	}
	f.assertAnonymous(t)
}

func TestValidateRemotelyWithoutConfirmer(t *testing.T) {
	_, g := newFixture(t, nil)
	if ok, err := g.ValidateRemotely(context.Background()); ok || err == nil {
		t.Fatalf("expected configuration error")
	}
}

func TestEnterAllowsLiveSession(t *testing.T) {
	f, g := newFixture(t, nil)
	f.login(t)
	d := g.Enter(context.Background(), "/orders?page=2")
	if !d.Allowed || d.Redirect != "" {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestEnterRedirectsWithLocation(t *testing.T) {
	f, g := newFixture(t, nil)
	f.login(t)
	f.clock.Set(t0.Add(3 * time.Hour))

	d := g.Enter(context.Background(), "/orders?page=2")
	if d.Allowed {
		t.Fatalf("expired session must not enter")
	}
	if want := "/login?redirect=%2Forders%3Fpage%3D2"; d.Redirect != want {
		t.Fatalf("redirect: got %q want %q", d.Redirect, want)
	}
	f.assertAnonymous(t)
}

func TestEnterRequiresUserID(t *testing.T) {
	f, g := newFixture(t, nil)
	f.store.SetAccessToken(context.Background(), "tok-only")
	if d := g.Enter(context.Background(), "/inventory"); d.Allowed {
		t.Fatalf("token without identity must not enter")
	}
	f.assertAnonymous(t)
}

func TestMiddlewareRedirects(t *testing.T) {
	f, g := newFixture(t, nil)
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logistics/routes", nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login?redirect=%2Flogistics%2Froutes" {
		t.Fatalf("anonymous: code=%d location=%q", rec.Code, rec.Header().Get("Location"))
	}

	f.login(t)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logistics/routes", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("signed in: code=%d", rec.Code)
	}
}

func TestLoginURLWithoutLocation(t *testing.T) {
	_, g := newFixture(t, nil)
	if got := g.LoginURL(""); got != "/login" {
		t.Fatalf("got %q", got)
	}
	if got := g.LoginURL("/login"); got != "/login" {
		t.Fatalf("got %q", got)
	}
}
