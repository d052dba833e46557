// Command opsdash serves the operations dashboard API: session login and
// logout, guarded resource endpoints, and the shared shop-info cache.
//
// It is a single-user agent. It holds exactly one session and listens on
// loopback by default (OPSDASH_ADDR=127.0.0.1:8080). Every request other
// than POST /login must present that session's token as
// "Authorization: Bearer <token>".
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unkn0wn-root/opscache"
	"github.com/unkn0wn-root/opscache/config"
	"github.com/unkn0wn-root/opscache/guard"
	asynchook "github.com/unkn0wn-root/opscache/hooks/async"
	"github.com/unkn0wn-root/opscache/persist"
	"github.com/unkn0wn-root/opscache/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "opsdash: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, slogger, flush, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer flush()

	shutdownTracing, err := setupTracing(ctx, cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.WithoutCancel(ctx)) }()

	hooks := asynchook.New(newHooks(slogger), 1, 1024)
	defer hooks.Close()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	adapter, err := persist.New(persist.Options{
		Namespace: cfg.Namespace,
		Token:     st.token,
		General:   st.general,
		Logger:    log,
		Hooks:     hooks,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := adapter.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("closing stores failed", opscache.Fields{"err": err})
		}
	}()

	codecs, err := session.CodecsFor(cfg.SessionCodec)
	if err != nil {
		return err
	}
	sess, err := session.Open(ctx, session.Options{
		Persist:   adapter,
		Codecs:    codecs,
		TTL:       cfg.SessionTTL,
		Revisions: st.revisions(cfg),
		Logger:    log,
		Hooks:     hooks,
	})
	if err != nil {
		return err
	}

	gopts := guard.Options{Session: sess, LoginPath: cfg.LoginPath, Logger: log}
	if cfg.ConfirmURL != "" {
		gopts.Confirmer = guard.NewHTTPConfirmer(cfg.ConfirmURL, cfg.ConfirmTimeout)
	}
	g, err := guard.New(gopts)
	if err != nil {
		return err
	}

	shops, err := opscache.New[ShopInfo](opscache.Options{Namespace: "shop-info", Logger: log, Hooks: hooks})
	if err != nil {
		return err
	}

	srv := &server{
		sess:  sess,
		guard: g,
		shops: shops,
		fetchShop: func(token string) opscache.FetchFunc[ShopInfo] {
			return opscache.WithTimeout(cfg.FetchTimeout, fetchShopInfo(http.DefaultClient, cfg.ShopInfoURL, token))
		},
		log: log,
	}

	// a restored session is confirmed once at start-up
	if sess.Authenticated() && gopts.Confirmer != nil {
		if ok, err := g.ValidateRemotely(ctx); !ok {
			log.Info("restored session discarded", opscache.Fields{"err": err})
		}
	}

	hs := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	log.Info("opsdash listening", opscache.Fields{"addr": cfg.Addr})

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}
