package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"covena.org/internal/auth"
	"covena.org/internal/diag"
	"covena.org/internal/directory"
	"covena.org/internal/httpapi"
	"covena.org/internal/obs"
	"covena.org/internal/session"
	"covena.org/internal/store/memory"
	"covena.org/internal/store/pg"
	redisstore "covena.org/internal/store/redis"
	"covena.org/internal/violation"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

// stores is the set of backends the services are wired against. Without
// COVENA_PG_DSN everything runs on the in-memory store for local dev.
type stores struct {
	identities auth.IdentityStore
	refresh    auth.RefreshTokenStore
	directory  directory.Store
	violations violation.Store
	sessionDir session.Directory
}

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		st    stores
		probe httpapi.ReadyProbe
	)
	if dsn := os.Getenv("COVENA_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		st = stores{
			identities: pgStore,
			refresh:    pgStore,
			directory:  pgStore,
			violations: pgStore,
			sessionDir: pgStore,
		}
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Println("COVENA_PG_DSN not set, using in-memory store")
		mem := memory.New()
		st = stores{
			identities: mem,
			refresh:    mem,
			directory:  mem,
			violations: mem,
			sessionDir: mem,
		}
	}

	var pointers session.PointerStore
	if addr := os.Getenv("COVENA_REDIS_ADDR"); addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rps, err := redisstore.NewPointerStore(ctx, addr)
		cancel()
		if err != nil {
			log.Fatalf("connect redis: %v", err)
		}
		defer rps.Close()
		pointers = rps
	} else {
		log.Println("COVENA_REDIS_ADDR not set, association pointers are in-memory")
		pointers = session.NewMemoryPointerStore()
	}

	sink := diag.NewRing(256)

	authSvc, err := auth.NewService(st.identities, st.refresh)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	dirSvc, err := directory.NewService(st.directory)
	if err != nil {
		log.Fatalf("directory service: %v", err)
	}
	prov, err := directory.NewProvisioner(st.identities, st.refresh, st.directory)
	if err != nil {
		log.Fatalf("provisioner: %v", err)
	}
	vioSvc, err := violation.NewService(st.violations)
	if err != nil {
		log.Fatalf("violation service: %v", err)
	}
	resolver, err := session.NewResolver(st.sessionDir, pointers, session.WithSink(sink))
	if err != nil {
		log.Fatalf("session resolver: %v", err)
	}
	switcher, err := session.NewSwitcher(pointers, sink)
	if err != nil {
		log.Fatalf("session switcher: %v", err)
	}

	api := httpapi.New(httpapi.Deps{
		Auth:        authSvc,
		Directory:   dirSvc,
		Provisioner: prov,
		Violations:  vioSvc,
		Resolver:    resolver,
		Switcher:    switcher,
		Sink:        sink,
		ReadyProbe:  probe,
		Version:     version,
	})

	addr := os.Getenv("COVENA_HTTP_ADDR")
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

	log.Printf("Starting covena-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
