// Package persist is the storage boundary of the session layer: read, write
// and remove over a durable token store and a durable general store.
//
// Nothing here ever fails a caller. Provider errors, corrupt or foreign bytes
// and even provider panics are logged, reported to Hooks.StorageError and
// turned into "absent" (reads) or a dropped write. In-memory state stays
// authoritative.
package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/opscache"
	"github.com/unkn0wn-root/opscache/internal/util"
	"github.com/unkn0wn-root/opscache/internal/wire"
	pr "github.com/unkn0wn-root/opscache/provider"
)

// Store selects one of the two durable stores.
type Store uint8

const (
	TokenStore Store = iota + 1
	GeneralStore
)

func (s Store) String() string {
	switch s {
	case TokenStore:
		return "token"
	case GeneralStore:
		return "general"
	default:
		return "unknown"
	}
}

func (s Store) kind() byte {
	if s == TokenStore {
		return wire.KindToken
	}
	return wire.KindGeneral
}

// Options configure an Adapter. Token and General are required; they may be
// the same provider since keys are namespaced per store.
type Options struct {
	Namespace string // default "opscache"
	Token     pr.Provider
	General   pr.Provider

	Logger opscache.Logger  // nil => NopLogger
	Hooks  opscache.Hooks   // nil => NopHooks
	Clock  func() time.Time // nil => time.Now
}

type Adapter struct {
	ns      string
	token   pr.Provider
	general pr.Provider
	log     opscache.Logger
	hooks   opscache.Hooks
	now     func() time.Time
}

func New(opts Options) (*Adapter, error) {
	if opts.Token == nil || opts.General == nil {
		return nil, errors.New("persist: token and general providers are required")
	}
	a := &Adapter{
		ns:      opscache.Coalesce(opts.Namespace, "opscache"),
		token:   opts.Token,
		general: opts.General,
		log:     opscache.Coalesce[opscache.Logger](opts.Logger, opscache.NopLogger{}),
		hooks:   opscache.Coalesce[opscache.Hooks](opts.Hooks, opscache.NopHooks{}),
		now:     time.Now,
	}
	if opts.Clock != nil {
		a.now = opts.Clock
	}
	return a, nil
}

func (a *Adapter) provider(s Store) pr.Provider {
	if s == TokenStore {
		return a.token
	}
	return a.general
}

func (a *Adapter) storageKey(s Store, key string) string {
	return util.StorageKey(a.ns, s.String(), key)
}

// Read returns the string stored under key, or ("", false) when it is absent
// or unreadable.
func (a *Adapter) Read(ctx context.Context, s Store, key string) (string, bool) {
	b, ok := a.ReadBytes(ctx, s, key)
	if !ok {
		return "", false
	}
	return string(b), true
}

func (a *Adapter) Write(ctx context.Context, s Store, key, value string) {
	a.WriteBytes(ctx, s, key, []byte(value))
}

// ReadBytes is Read for binary payloads (codec output).
func (a *Adapter) ReadBytes(ctx context.Context, s Store, key string) (payload []byte, ok bool) {
	sk := a.storageKey(s, key)
	var raw []byte
	err := a.scoped("read", func() error {
		var (
			hit bool
			err error
		)
		raw, hit, err = a.provider(s).Get(ctx, sk)
		if err == nil && !hit {
			raw = nil
		}
		return err
	})
	if err != nil || raw == nil {
		if err != nil {
			a.fail("read", s, key, err)
		}
		return nil, false
	}
	env, err := wire.Decode(s.kind(), raw)
	if err != nil {
		a.fail("decode", s, key, err)
		// self-heal; the next write replaces it anyway
		_ = a.scoped("remove", func() error { return a.provider(s).Del(ctx, sk) })
		return nil, false
	}
	return env.Payload, true
}

func (a *Adapter) WriteBytes(ctx context.Context, s Store, key string, payload []byte) {
	sk := a.storageKey(s, key)
	framed := wire.Encode(s.kind(), a.now().UnixMilli(), payload)
	var accepted bool
	err := a.scoped("write", func() error {
		var err error
		accepted, err = a.provider(s).Set(ctx, sk, framed, int64(len(framed)), 0)
		return err
	})
	if err == nil && !accepted {
		err = errors.New("write rejected by provider")
	}
	if err != nil {
		a.fail("write", s, key, err)
	}
}

func (a *Adapter) Remove(ctx context.Context, s Store, key string) {
	sk := a.storageKey(s, key)
	if err := a.scoped("remove", func() error { return a.provider(s).Del(ctx, sk) }); err != nil {
		a.fail("remove", s, key, err)
	}
}

// Close closes both providers (once when they are the same).
func (a *Adapter) Close(ctx context.Context) error {
	err := a.token.Close(ctx)
	if a.general != a.token {
		err = errors.Join(err, a.general.Close(ctx))
	}
	return err
}

// scoped runs f and converts a provider panic into an error.
func (a *Adapter) scoped(op string, f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panicked during %s: %v", op, r)
		}
	}()
	return f()
}

func (a *Adapter) fail(op string, s Store, key string, cause error) {
	perr := opscache.Persistence(op, key, cause)
	a.hooks.StorageError(op, s.String(), key, perr)
	a.log.Warn("storage failure swallowed", opscache.Fields{
		"op":    op,
		"store": s.String(),
		"key":   key,
		"err":   perr,
	})
}
