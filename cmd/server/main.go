package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tasks "chatrelay/internal/Tasks"
	"chatrelay/internal/api"
	"chatrelay/internal/chat"
	"chatrelay/internal/config"
	"chatrelay/internal/db"
	"chatrelay/internal/mailer"
	"chatrelay/internal/middleware"
	"chatrelay/internal/notify"
	"chatrelay/internal/repository"
	"chatrelay/internal/storage"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func serveWS(h *chat.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Upgrade error: %v", err)
			return
		}

		limiter := middleware.NewRatelimiter(5, 500*time.Millisecond)
		client := chat.NewClient(h, conn, limiter)

		h.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}

func main() {

	cfg := config.Load()

	pool, err := db.Connect(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
		return
	}
	defer pool.Close()

	msgRepo := repository.NewMessagesRepo(pool)
	userRepo := repository.NewPoolConnection(pool)
	subsRepo := repository.NewSubscriptionRepo(pool)

	objects, err := storage.NewDiskStore(cfg.MediaDir, cfg.PublicBaseURL)
	if err != nil {
		log.Fatal("Failed to initialize media store:", err)
		return
	}

	pusher := notify.NewWebPushNotifier(subsRepo, cfg.VapidPublicKey, cfg.VapidPrivateKey, cfg.VapidSubject)
	summaries := mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SummaryFrom, cfg.SummaryTo)

	h := chat.NewHub(chat.Options{
		JoinLeaveNotices: cfg.JoinLeaveNotices,
		RetentionDays:    cfg.RetentionDays,
		ProbeInterval:    cfg.ProbeInterval,
		AdminNicks:       cfg.AdminNicks,
	}, chat.Deps{
		Store:    msgRepo,
		Flags:    userRepo,
		Objects:  objects,
		Notifier: pusher,
		Mailer:   summaries,
	})
	go h.Run()

	sweeper := tasks.NewRetentionSweeper(msgRepo, cfg.RetentionDays)
	sweeper.Start()

	jwtKey := []byte(cfg.AuthKey)
	authed := middleware.Authenticate(jwtKey)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", serveWS(h))
	mux.HandleFunc("/api/auth/login", api.LoginHandler(jwtKey, userRepo))
	mux.HandleFunc("/api/auth/signup", api.SignupHandler(jwtKey, userRepo))
	mux.Handle("/api/push/subscribe", authed(api.SubscribeHandler(subsRepo)))
	mux.Handle("/api/push/unsubscribe", authed(api.UnsubscribeHandler(subsRepo)))
	mux.Handle("/media/", http.StripPrefix("/media/", http.FileServer(http.Dir(objects.Dir()))))

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Printf("🚀 Chat relay starting on :%s...\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop

	fmt.Println("\nShutdown signal received. Cleaning up...")
	close(h.Quit)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	fmt.Println("Graceful shutdown complete. Goodnight!")
}
