// Package session holds the process-wide authentication state: access token,
// identity, roles and the locally computed expiry. Every mutator updates the
// in-memory copy and the durable copy (through persist) as one step; readers
// get snapshots and never wait on storage.
package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/unkn0wn-root/opscache"
	"github.com/unkn0wn-root/opscache/genstore"
	"github.com/unkn0wn-root/opscache/persist"
)

// DefaultTTL is how long a session lives after SetUser.
const DefaultTTL = 3 * time.Hour

const defaultMaxValueBytes = 64 << 10

// Durable keys.
const (
	KeyToken  = "token"  // token store
	KeyUser   = "user"   // general store
	KeyRoles  = "roles"  // general store
	KeyExpiry = "expiry" // general store
)

const revisionKey = "session"

// Reset reasons reported to Hooks.SessionReset.
const (
	ReasonExplicit      = "explicit"
	ReasonExpired       = "expired"
	ReasonRemoteInvalid = "remote_invalid"
	ReasonRemoteError   = "remote_error"
	ReasonRouteGuard    = "route_guard"
)

type Options struct {
	Persist *persist.Adapter // required

	Codecs        Codecs            // zero => JSON
	TTL           time.Duration     // 0 => DefaultTTL
	MaxValueBytes int               // largest durable value accepted at hydration; 0 => 64 KiB
	Revisions     genstore.GenStore // nil => in-process counter
	Clock         func() time.Time  // nil => time.Now
	Logger        opscache.Logger
	Hooks         opscache.Hooks
}

type Store struct {
	p      *persist.Adapter
	codecs Codecs
	ttl    time.Duration
	revs   genstore.GenStore
	now    func() time.Time
	log    opscache.Logger
	hooks  opscache.Hooks

	mu       sync.RWMutex
	token    string
	user     *Identity
	roles    []Role
	expiryMs int64
	rev      uint64
}

// Open builds a Store and hydrates it from durable storage. A field that is
// missing or does not decode starts out absent; Open only fails on bad Options.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Persist == nil {
		return nil, errors.New("session: persist adapter is required")
	}
	codecs := opts.Codecs
	if codecs.Identity == nil || codecs.Roles == nil || codecs.Expiry == nil {
		def, _ := CodecsFor("")
		if codecs.Identity == nil {
			codecs.Identity = def.Identity
		}
		if codecs.Roles == nil {
			codecs.Roles = def.Roles
		}
		if codecs.Expiry == nil {
			codecs.Expiry = def.Expiry
		}
	}
	s := &Store{
		p:      opts.Persist,
		codecs: codecs.limited(opscache.Coalesce(opts.MaxValueBytes, defaultMaxValueBytes)),
		ttl:    opscache.Coalesce(opts.TTL, DefaultTTL),
		revs:   opts.Revisions,
		now:    time.Now,
		log:    opscache.Coalesce[opscache.Logger](opts.Logger, opscache.NopLogger{}),
		hooks:  opscache.Coalesce[opscache.Hooks](opts.Hooks, opscache.NopHooks{}),
	}
	if s.revs == nil {
		s.revs = genstore.NewLocalGenStore()
	}
	if opts.Clock != nil {
		s.now = opts.Clock
	}
	s.hydrate(ctx)
	return s, nil
}

func (s *Store) hydrate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tok, ok := s.p.Read(ctx, persist.TokenStore, KeyToken); ok {
		s.token = tok
	}
	if u, ok := persist.Load(ctx, s.p, persist.GeneralStore, KeyUser, s.codecs.Identity); ok && u.ID != "" {
		s.user = &u
	}
	if r, ok := persist.Load(ctx, s.p, persist.GeneralStore, KeyRoles, s.codecs.Roles); ok {
		s.roles = r
	}
	if ms, ok := persist.Load(ctx, s.p, persist.GeneralStore, KeyExpiry, s.codecs.Expiry); ok && ms > 0 {
		s.expiryMs = ms
	}
	if rev, err := s.revs.Snapshot(ctx, revisionKey); err == nil {
		s.rev = rev
	} else {
		s.log.Warn("session revision snapshot failed", opscache.Fields{"err": err})
	}

	s.log.Debug("session hydrated", opscache.Fields{
		"has_token":  s.token != "",
		"has_user":   s.user != nil,
		"roles":      len(s.roles),
		"has_expiry": s.expiryMs != 0,
	})
}

// Snapshot returns a copy of the current session. It never blocks on I/O.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Token:    s.token,
		User:     s.user.clone(),
		Roles:    slices.Clone(s.roles),
		ExpiryMs: s.expiryMs,
		Revision: s.rev,
	}
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) User() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.clone()
}

func (s *Store) Authenticated() bool { return s.Snapshot().Authenticated() }

// TTL is the fixed lifetime applied by SetUser.
func (s *Store) TTL() time.Duration { return s.ttl }

// Now is the store's clock; the guard shares it so expiry checks and expiry
// computation agree.
func (s *Store) Now() time.Time { return s.now() }

// ErrNoIdentityID rejects an identity without an id; it could not be restored
// from durable storage.
var ErrNoIdentityID = errors.New("session: identity has no id")

// SetUser stores the identity and starts a new TTL window. nil clears the
// identity and the expiry.
func (s *Store) SetUser(ctx context.Context, u *Identity) error {
	if u != nil && u.ID == "" {
		return ErrNoIdentityID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setUserLocked(ctx, u)
	s.bumpLocked(ctx)
	return nil
}

func (s *Store) setUserLocked(ctx context.Context, u *Identity) {
	if u == nil {
		s.user = nil
		s.expiryMs = 0
		s.p.Remove(ctx, persist.GeneralStore, KeyUser)
		s.p.Remove(ctx, persist.GeneralStore, KeyExpiry)
		return
	}
	s.user = u.clone()
	s.expiryMs = s.now().Add(s.ttl).UnixMilli()
	persist.Save(ctx, s.p, persist.GeneralStore, KeyUser, *s.user, s.codecs.Identity)
	persist.Save(ctx, s.p, persist.GeneralStore, KeyExpiry, s.expiryMs, s.codecs.Expiry)
}

func (s *Store) SetAccessToken(ctx context.Context, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setTokenLocked(ctx, token)
	s.bumpLocked(ctx)
}

func (s *Store) setTokenLocked(ctx context.Context, token string) {
	s.token = token
	if token == "" {
		s.p.Remove(ctx, persist.TokenStore, KeyToken)
		return
	}
	s.p.Write(ctx, persist.TokenStore, KeyToken, token)
}

// ResetAccessToken drops only the credential; identity and roles stay.
func (s *Store) ResetAccessToken(ctx context.Context) {
	s.SetAccessToken(ctx, "")
}

func (s *Store) SetRoles(ctx context.Context, roles []Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setRolesLocked(ctx, roles)
	s.bumpLocked(ctx)
}

func (s *Store) setRolesLocked(ctx context.Context, roles []Role) {
	s.roles = slices.Clone(roles)
	persist.Save(ctx, s.p, persist.GeneralStore, KeyRoles, s.roles, s.codecs.Roles)
}

// Login installs token, identity and roles as a single step.
func (s *Store) Login(ctx context.Context, token string, u *Identity, roles []Role) error {
	if token == "" || u == nil {
		return errors.New("session: login requires a token and an identity")
	}
	if u.ID == "" {
		return ErrNoIdentityID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setTokenLocked(ctx, token)
	s.setUserLocked(ctx, u)
	s.setRolesLocked(ctx, roles)
	s.bumpLocked(ctx)
	s.log.Info("session started", opscache.Fields{"user": u.ID, "roles": len(roles)})
	return nil
}

// Reset clears everything, in memory and in both durable stores. It is the
// only way to get a fully anonymous session.
func (s *Store) Reset(ctx context.Context) { s.ResetFor(ctx, ReasonExplicit) }

// ResetFor is Reset with the reason reported to hooks and logs.
func (s *Store) ResetFor(ctx context.Context, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(ctx, reason)
}

// ResetIfRevision resets only if the session is still at revision rev, that
// is, nothing changed it since the snapshot the decision was based on.
func (s *Store) ResetIfRevision(ctx context.Context, rev uint64, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rev != rev {
		s.log.Info("session reset skipped, session changed", opscache.Fields{"reason": reason, "rev": rev, "current": s.rev})
		return false
	}
	s.resetLocked(ctx, reason)
	return true
}

func (s *Store) resetLocked(ctx context.Context, reason string) {
	s.token = ""
	s.user = nil
	s.roles = nil
	s.expiryMs = 0
	s.p.Remove(ctx, persist.TokenStore, KeyToken)
	s.p.Remove(ctx, persist.GeneralStore, KeyUser)
	s.p.Remove(ctx, persist.GeneralStore, KeyRoles)
	s.p.Remove(ctx, persist.GeneralStore, KeyExpiry)
	s.bumpLocked(ctx)
	s.hooks.SessionReset(reason)
	s.log.Info("session reset", opscache.Fields{"reason": reason})
}

// bumpLocked advances the revision. The counter never goes backwards even if
// the revision store is unavailable.
func (s *Store) bumpLocked(ctx context.Context) {
	rev, err := s.revs.Bump(ctx, revisionKey)
	if err != nil {
		s.log.Warn("session revision bump failed", opscache.Fields{"err": err})
		s.rev++
		return
	}
	s.rev = max(s.rev+1, rev)
}
