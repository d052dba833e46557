// Package guard decides whether the current session may still be used:
// local expiry checks, a one-shot remote confirmation, and the policy applied
// when a protected route is entered.
package guard

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/unkn0wn-root/opscache"
	"github.com/unkn0wn-root/opscache/session"
)

var (
	// ErrSessionInvalid: the confirmation endpoint rejected the session.
	ErrSessionInvalid = &opscache.Error{Kind: opscache.KindValidation, Op: "confirm", Msg: "session rejected by server"}
	// ErrSessionExpired: the server accepted the token but the local expiry has passed.
	ErrSessionExpired = &opscache.Error{Kind: opscache.KindValidation, Op: "confirm", Msg: "session expired"}
)

// Confirmer asks the server whether token still represents a valid login.
type Confirmer interface {
	Confirm(ctx context.Context, token string) (valid bool, err error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, token string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, token string) (bool, error) { return f(ctx, token) }

type Options struct {
	Session   *session.Store // required
	Confirmer Confirmer      // required by ValidateRemotely

	LoginPath     string // anonymous entry point; default "/login"
	RedirectParam string // query parameter carrying the original location; default "redirect"

	Logger opscache.Logger
}

type Guard struct {
	s         *session.Store
	confirm   Confirmer
	loginPath string
	param     string
	log       opscache.Logger
}

func New(opts Options) (*Guard, error) {
	if opts.Session == nil {
		return nil, errors.New("guard: session store is required")
	}
	return &Guard{
		s:         opts.Session,
		confirm:   opts.Confirmer,
		loginPath: opscache.Coalesce(opts.LoginPath, "/login"),
		param:     opscache.Coalesce(opts.RedirectParam, "redirect"),
		log:       opscache.Coalesce[opscache.Logger](opts.Logger, opscache.NopLogger{}),
	}, nil
}

// IsExpired reports whether the session must be treated as expired. Missing
// expiry information counts as expired.
func (g *Guard) IsExpired() bool {
	return Expired(g.s.Snapshot(), g.s.Now())
}

// Expired applies the expiry precedence to snap:
//  1. the locally computed expiry (SetUser + TTL),
//  2. the identity's "exp" claim,
//  3. the access token's JWT "exp" claim (read, not verified),
//
// and otherwise reports true.
func Expired(snap session.Snapshot, now time.Time) bool {
	if snap.ExpiryMs != 0 {
		return now.UnixMilli() >= snap.ExpiryMs
	}
	if t, ok := snap.User.ExpiryClaim(); ok {
		return !now.Before(t)
	}
	if t, ok := tokenExpiry(snap.Token); ok {
		return !now.Before(t)
	}
	return true
}

// tokenExpiry reads the exp claim of a JWT access token. The signature is not
// checked; the server does that on every call, this only avoids sending a
// token that is known to be dead.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// ValidateRemotely performs exactly one confirmation round trip. It returns
// true only if the server accepts the session and it has not expired
// locally. Every other outcome resets the session and returns a
// KindTransport or KindValidation error, unless the session changed while
// the round trip was in flight: the verdict is about the previous token, so
// the newer session is kept and the error is still returned.
//
// Call it sparingly (start-up, shortly before expiry), not per request.
func (g *Guard) ValidateRemotely(ctx context.Context) (bool, error) {
	if g.confirm == nil {
		return false, errors.New("guard: no confirmer configured")
	}
	snap := g.s.Snapshot()
	valid, err := g.confirm.Confirm(ctx, snap.Token)

	// the reset must reach durable storage even if ctx is what failed
	rctx := context.WithoutCancel(ctx)
	switch {
	case err != nil:
		reason := session.ReasonRemoteError
		switch opscache.KindOf(err) {
		case opscache.KindValidation:
			reason = session.ReasonRemoteInvalid
		case opscache.KindTransport:
		default:
			err = opscache.Transport("confirm", "", err)
		}
		g.s.ResetIfRevision(rctx, snap.Revision, reason)
		g.log.Warn("remote session confirmation failed", opscache.Fields{"err": err})
		return false, err
	case !valid:
		g.s.ResetIfRevision(rctx, snap.Revision, session.ReasonRemoteInvalid)
		return false, ErrSessionInvalid
	case Expired(snap, g.s.Now()):
		g.s.ResetIfRevision(rctx, snap.Revision, session.ReasonExpired)
		return false, ErrSessionExpired
	}
	return true, nil
}

// Decision is the outcome of Enter.
type Decision struct {
	Allowed  bool
	Redirect string // login URL carrying the requested location; empty when allowed
}

// Enter applies the protected-route policy: token and user id present and not
// expired. Otherwise the session is reset and the caller is sent to the login
// page with location attached so it can be retried after signing in.
func (g *Guard) Enter(ctx context.Context, location string) Decision {
	snap := g.s.Snapshot()
	if snap.Authenticated() && !Expired(snap, g.s.Now()) {
		return Decision{Allowed: true}
	}
	reason := session.ReasonRouteGuard
	if snap.Authenticated() {
		reason = session.ReasonExpired
	}
	if !g.s.ResetIfRevision(context.WithoutCancel(ctx), snap.Revision, reason) {
		// a login landed since the snapshot; judge the new session
		if snap = g.s.Snapshot(); snap.Authenticated() && !Expired(snap, g.s.Now()) {
			return Decision{Allowed: true}
		}
	}
	return Decision{Redirect: g.LoginURL(location)}
}

// LoginURL returns the anonymous entry point carrying location.
func (g *Guard) LoginURL(location string) string {
	if location == "" || location == g.loginPath {
		return g.loginPath
	}
	return g.loginPath + "?" + url.Values{g.param: {location}}.Encode()
}

// Middleware guards every request passing through it.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Enter(r.Context(), r.URL.RequestURI())
		if !d.Allowed {
			http.Redirect(w, r, d.Redirect, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
