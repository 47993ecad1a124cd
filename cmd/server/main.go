package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"platefull.com/project-platefull/broadcast"
	"platefull.com/project-platefull/cache"
	"platefull.com/project-platefull/database"
	"platefull.com/project-platefull/handlers"
	"platefull.com/project-platefull/optimistic"
	"platefull.com/project-platefull/remote"
	"platefull.com/project-platefull/routes"
	"platefull.com/project-platefull/services"
	"platefull.com/project-platefull/store"
)

func main() {
	db, err := database.ConnectDB()
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}
	defer db.Close()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET not set")
	}

	client := remote.New(db, database.DSN())
	bc := broadcast.New()

	registry := cache.NewRegistry()
	for _, kind := range []cache.Kind{
		cache.KindHomeFeed,
		cache.KindProfileItems,
		cache.KindRecipeBook,
		cache.KindItemDetail,
	} {
		if err := registry.Register(cache.NewPartition(kind)); err != nil {
			log.Fatal("cache setup failed:", err)
		}
	}

	manager := cache.NewManager(registry, cache.WithBroadcaster(bc))

	var ledgerOpts []optimistic.Option
	if raw := os.Getenv("AUTO_REVERT_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil {
			ledgerOpts = append(ledgerOpts, optimistic.WithAutoRevertAfter(time.Duration(secs)*time.Second))
		}
	}
	ledger := optimistic.NewLedger(ledgerOpts...)

	sessions := store.NewSessionStore([]byte(secret), client, manager, ledger)
	engagement := store.NewEngagementStore(client, manager, ledger)

	env := &handlers.Env{
		Remote:     client,
		Cache:      manager,
		Ledger:     ledger,
		Sessions:   sessions,
		Engagement: engagement,
		Broadcast:  bc,
	}

	if path := os.Getenv("FIREBASE_CREDENTIALS_PATH"); path != "" {
		push, err := services.NewPush(context.Background(), path, db)
		if err != nil {
			log.Printf("Firebase init failed, push notifications disabled: %v", err)
		} else {
			env.Push = push
		}
	} else {
		log.Println("FIREBASE_CREDENTIALS_PATH not set, push notifications disabled")
	}

	// Other instances signal item changes through Postgres NOTIFY; relay
	// them onto the local broadcaster so connected clients see them.
	unsubscribe, err := client.Subscribe("item_events", func(payload string) {
		bc.Notify("item_events", payload)
	})
	if err != nil {
		log.Printf("item_events subscription failed: %v", err)
	} else {
		defer unsubscribe()
	}

	router := mux.NewRouter()
	routes.CreateItemRoutes(env, router)
	routes.CreateUserRoutes(env, router)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("Server listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed:", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	if n := ledger.Close(); n > 0 {
		log.Printf("Reverted %d pending update(s) on shutdown", n)
	}
	sessions.Close()
}
