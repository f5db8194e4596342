package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/redeemy/internal/auth"
	"github.com/wellywell/redeemy/internal/codegen"
	"github.com/wellywell/redeemy/internal/compress"
	"github.com/wellywell/redeemy/internal/config"
	"github.com/wellywell/redeemy/internal/db"
	"github.com/wellywell/redeemy/internal/handlers"
	"github.com/wellywell/redeemy/internal/memstore"
	"github.com/wellywell/redeemy/internal/notify"
	"github.com/wellywell/redeemy/internal/order"
	"github.com/wellywell/redeemy/internal/postgrest"
	"github.com/wellywell/redeemy/internal/router"
	"github.com/wellywell/redeemy/internal/store"
)

const shutdownTimeout = 10 * time.Second

// openStores picks the record store backend. Backends without a user table
// keep admin accounts in memory.
func openStores(conf *config.ServerConfig) (store.RecordStore, store.UserStore, func(), error) {
	switch conf.StoreBackend {
	case config.BackendPostgres:
		database, err := db.NewDatabase(conf.DatabaseDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return database, database, database.Close, nil
	case config.BackendREST:
		return postgrest.NewClient(conf.StoreURL, conf.StoreAPIKey, conf.StoreTable), memstore.New(), func() {}, nil
	default:
		s := memstore.New()
		return s, s, func() {}, nil
	}
}

func bootstrapAdmin(ctx context.Context, users store.UserStore, login string, password string) error {
	if login == "" || password == "" {
		return nil
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	err = users.CreateUser(ctx, login, hashed)
	var exists *store.UserExistsError
	if errors.As(err, &exists) {
		return nil
	}
	return err
}

func main() {
	conf, err := config.NewConfig()
	if err != nil {
		panic(err)
	}

	level, err := logger.ParseLevel(conf.LogLevel)
	if err != nil {
		panic(err)
	}
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, users, closeStore, err := openStores(conf)
	if err != nil {
		panic(err)
	}
	defer closeStore()

	if err := bootstrapAdmin(ctx, users, conf.AdminLogin, conf.AdminPassword); err != nil {
		panic(err)
	}

	// a poller outliving the session cookie has nobody left to read it
	hub := notify.NewHub(ctx, records, conf.PollInterval, conf.PollLimit,
		notify.WithIdleTimeout(time.Duration(conf.CookieTTLSeconds)*time.Second))
	defer hub.Close()

	handlerSet := handlers.NewHandlerSet(handlers.Dependencies{
		Secret:               conf.Secret,
		CookieExpiresSeconds: conf.CookieTTLSeconds,
		AllowSignup:          conf.AllowAdminSignup,
		RequestTimeout:       conf.RequestTimeout,
		Orders: order.NewService(records,
			order.WithTimeout(conf.RequestTimeout),
			order.WithRequiredOrderID(conf.RequireOrderID)),
		Codes: codegen.NewGenerator(records,
			codegen.WithLength(conf.CodeLength),
			codegen.WithMaxAttempts(conf.CodeMaxAttempts),
			codegen.WithTimeout(conf.RequestTimeout)),
		Notifications: hub,
		Records:       records,
		Users:         users,
	})

	r := router.NewRouter(conf, handlerSet, compress.RequestUngzipper{})

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := r.Shutdown(shutdownCtx); err != nil {
			logger.Error(err)
		}
	}()

	logger.Infof("Listening on %s with %s store", conf.RunAddress, conf.StoreBackend)
	err = r.ListenAndServe()
	if err != nil {
		panic(err)
	}
}
