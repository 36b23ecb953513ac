package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-console/internal/config"
	"github.com/jrsteele09/go-auth-console/server"
	"github.com/jrsteele09/go-auth-console/tokenstore"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	storage, closeStorage, err := newStorage(c)
	if err != nil {
		return err
	}
	defer closeStorage()

	handler, err := server.New(c, storage)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(srv) }()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// newStorage picks Redis when REDIS_URL is set and memory otherwise. STORAGE_KEY seals every
// stored value.
func newStorage(c config.Config) (tokenstore.Provider, func(), error) {
	var provider tokenstore.Provider = tokenstore.NewMemoryProvider()
	closeFn := func() {}

	if url := c.GetRedisURL(); url != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		redisProvider, err := tokenstore.NewRedisProviderFromURL(ctx, url, c.GetStorageTTL())
		if err != nil {
			return nil, nil, fmt.Errorf("redis storage: %w", err)
		}
		provider = redisProvider
		closeFn = func() {
			if err := redisProvider.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close redis")
			}
		}
		log.Info().Msg("Using redis token storage")
	} else {
		log.Warn().Msg("Using in-memory token storage, sessions are lost on restart")
	}

	if k := c.GetStorageKey(); k != "" {
		key, err := tokenstore.ParseKey(k)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("STORAGE_KEY: %w", err)
		}
		provider = tokenstore.NewSealedProvider(provider, key)
	}
	return provider, closeFn, nil
}

func listenAndServe(srv *http.Server) error {
	log.Info().Str("addr", srv.Addr).Msg("Server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
