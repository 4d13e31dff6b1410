package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Kakashki-pro/Shitgram/internal/apperr"
	"github.com/Kakashki-pro/Shitgram/internal/auth"
	"github.com/Kakashki-pro/Shitgram/internal/channel"
	"github.com/Kakashki-pro/Shitgram/internal/command"
	"github.com/Kakashki-pro/Shitgram/internal/config"
	"github.com/Kakashki-pro/Shitgram/internal/directory"
	"github.com/Kakashki-pro/Shitgram/internal/email"
	"github.com/Kakashki-pro/Shitgram/internal/handlers"
	"github.com/Kakashki-pro/Shitgram/internal/metrics"
	"github.com/Kakashki-pro/Shitgram/internal/middleware"
	"github.com/Kakashki-pro/Shitgram/internal/relay"
	"github.com/Kakashki-pro/Shitgram/internal/store/sqlstore"
	"github.com/Kakashki-pro/Shitgram/internal/ws"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var rootCmd = &cobra.Command{
	Use:   "shitgram",
	Short: "Real-time chat server",
	Long: `shitgram serves the chat web client, its HTTP API and the websocket
gateway used for messaging, slash commands and call signaling.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	f := rootCmd.Flags()
	f.StringP("config", "c", "config.yaml", "config file path")
	f.String("addr", "", "http service address")
	f.String("db-driver", "", "database driver (sqlite3 or postgres)")
	f.String("db-dsn", "", "database connection string")
	f.String("admin", "", "administrator username")
	f.String("static", "", "directory holding the web client")
	f.StringSlice("allowed-origin", nil, "browser origin allowed to open a websocket (repeatable, * for any)")
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applyFlags overrides cfg with every flag given on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	str("addr", &cfg.Addr)
	str("db-driver", &cfg.DBDriver)
	str("db-dsn", &cfg.DBDSN)
	str("admin", &cfg.Admin)
	str("static", &cfg.StaticDir)
	if f.Changed("allowed-origin") {
		cfg.AllowedOrigins, _ = f.GetStringSlice("allowed-origin")
	}
}

func run(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	cfg.Sanitize()

	store, err := sqlstore.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.DBDriver, err)
	}
	defer store.Close()

	registry := channel.NewRegistry(store, cfg.Admin)
	messages := relay.New(store, registry)
	mailer := email.NewSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, cfg.AdminEmail)
	commands := command.NewInterpreter(store, directory.New(store), registry, messages, mailer)

	hub := ws.NewHub(ws.Config{
		MaxMessageSize: int64(cfg.MaxMessageSize),
		RateLimit:      rate.Limit(cfg.RateLimit),
		RateBurst:      cfg.RateBurst,
		RingTimeout:    cfg.RingTimeout.Duration(),
		TypingTimeout:  cfg.TypingTimeout.Duration(),
		AllowedOrigins: cfg.AllowedOrigins,
	}, messages, commands)
	go hub.Run()

	accounts := auth.NewService(store).WithAdmin(cfg.Admin)
	created, err := accounts.EnsureAdmin(cmd.Context(), cfg.AdminPassword)
	switch {
	case created:
		log.Printf("Created administrator account %s", cfg.Admin)
	case apperr.Is(err, apperr.Validation):
		log.Printf("WARNING: administrator account %s does not exist and no admin_password is set; tickets are unreadable", cfg.Admin)
	case err != nil:
		return fmt.Errorf("provision administrator: %w", err)
	}

	sessions := auth.NewSessions([]byte(cfg.SessionSecret), cfg.SecureCookies)
	authHandler := &handlers.AuthHandler{Auth: accounts, Sessions: sessions}
	chatHandler := &handlers.ChatHandler{Store: store, Relay: messages, Admin: cfg.Admin}

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware)

	// API Endpoints
	r.HandleFunc("/api/register", authHandler.Register).Methods("POST")
	r.HandleFunc("/api/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/api/logout", authHandler.Logout).Methods("POST")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware(sessions))
	api.HandleFunc("/messages/{chat}", chatHandler.GetChatMessages).Methods("GET")
	api.HandleFunc("/groups", chatHandler.GetGroups).Methods("GET")
	api.HandleFunc("/tickets", chatHandler.GetTickets).Methods("GET")

	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	r.HandleFunc("/healthz", chatHandler.Healthz).Methods("GET")

	// WebSocket Endpoint
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := sessions.UserID(r)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		user, err := store.GetUserByID(r.Context(), userID)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ws.ServeWs(hub, w, r, user.ID, user.Username)
	})

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(cfg.StaticDir, "index.html"))
	})
	r.PathPrefix("/").Handler(staticHandler(cfg.StaticDir))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s (store=%s, admin=%s, max message %s)",
			cfg.Addr, cfg.DBDriver, cfg.Admin, cfg.MaxMessageSize)
		errc <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		hub.Shutdown()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-stop:
		log.Printf("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	hub.Shutdown()
	return nil
}

// staticHandler serves the web client, asking browsers to revalidate
// scripts and stylesheets on every load.
func staticHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".css") || strings.HasSuffix(r.URL.Path, ".js") {
			w.Header().Set("Cache-Control", "no-cache, must-revalidate")
		}
		files.ServeHTTP(w, r)
	})
}
