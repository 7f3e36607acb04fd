package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vendara.org/internal/authz"
	"vendara.org/internal/directory"
	"vendara.org/internal/httpapi"
	"vendara.org/internal/membership"
	"vendara.org/internal/obs"
	"vendara.org/internal/rbac"
	"vendara.org/internal/session"
	"vendara.org/internal/store/memory"
	"vendara.org/internal/store/pg"
)

var version = "0.3.1"

type stores struct {
	roles       rbac.RoleStore
	memberships membership.Store
	sessions    session.Store
	orgs        directory.Store
	probe       httpapi.ReadyProbe
	close       func() error
}

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("VENDARA_COMMIT"))

	st, err := openStores()
	if err != nil {
		log.Fatalf("open stores: %v", err)
	}
	defer func() { _ = st.close() }()

	registry, err := rbac.NewRegistry(st.roles)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}
	ledger, err := membership.NewLedger(st.memberships)
	if err != nil {
		log.Fatalf("ledger: %v", err)
	}
	policy := authz.ParseBootstrapPolicy(os.Getenv("ADMIN_USERS"), os.Getenv("AUTO_REGISTER_DOMAIN"))
	resolver, err := authz.NewResolver(registry, ledger, st.sessions, st.orgs, policy)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := registry.EnsureBuiltins(ctx); err != nil {
		cancel()
		log.Fatalf("ensure builtin roles: %v", err)
	}
	cancel()

	var bridge *httpapi.IdentityBridge
	if secret := os.Getenv("VENDARA_SSO_SECRET"); secret != "" {
		bridge, err = httpapi.NewIdentityBridge(secret, os.Getenv("VENDARA_SSO_ISSUER"))
		if err != nil {
			log.Fatalf("identity bridge: %v", err)
		}
	} else {
		log.Fatal("missing VENDARA_SSO_SECRET")
	}

	api := httpapi.New(st.probe, version, resolver, registry, ledger, st.orgs, bridge)

	addr := os.Getenv("VENDARA_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting vendara-authz %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}

// openStores picks postgres when a DSN is configured and the in-memory
// implementation otherwise. The in-memory mode exists for local development
// and loses its state on restart.
func openStores() (*stores, error) {
	dsn := os.Getenv("VENDARA_PG_DSN")
	if dsn == "" {
		log.Println("VENDARA_PG_DSN not set, using in-memory stores")
		mem := memory.NewStore()
		return &stores{
			roles:       mem,
			memberships: mem,
			sessions:    mem,
			orgs:        mem,
			probe:       httpapi.ReadyProbe{},
			close:       func() error { return nil },
		}, nil
	}
	st, err := pg.Open(dsn)
	if err != nil {
		return nil, err
	}
	return &stores{
		roles:       st,
		memberships: st,
		sessions:    st,
		orgs:        st,
		probe:       httpapi.ReadyProbe{DB: st.DB()},
		close:       st.Close,
	}, nil
}
