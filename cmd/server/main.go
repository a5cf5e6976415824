package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/clinicore/appointment_service/internal/booking"
	"github.com/clinicore/appointment_service/internal/config"
	"github.com/clinicore/appointment_service/internal/events"
	"github.com/clinicore/appointment_service/internal/handlers"
	"github.com/clinicore/appointment_service/internal/ledger"
	"github.com/clinicore/appointment_service/internal/logging"
	"github.com/clinicore/appointment_service/internal/lookup"
	"github.com/clinicore/appointment_service/internal/session"
	httpserver "github.com/clinicore/appointment_service/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	slog.SetDefault(logging.New(configuration.LOG_LEVEL))

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}

	var producer *events.Producer
	if configuration.KAFKA_ADDRESS != "" {
		producer = events.NewProducer([]string{configuration.KAFKA_ADDRESS})
	}

	sessions := &session.Registry{DB: db, Secret: []byte(configuration.TOKEN_SECRET)}
	slots := &ledger.Ledger{DB: db}
	engine := &booking.Engine{DB: db, Producer: producer}
	check := &lookup.Checker{DB: db}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), logging.Middleware())

	deps := httpserver.Deps{
		DB:             db,
		PatientHandler: &handlers.PatientHandler{DB: db, Sessions: sessions, Engine: engine, Ledger: slots, Check: check},
		DoctorHandler:  &handlers.DoctorHandler{DB: db, Sessions: sessions, Engine: engine, Ledger: slots, Check: check},
		AdminHandler:   &handlers.AdminHandler{DB: db, Sessions: sessions, Engine: engine, Check: check},
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         configuration.HTTP_ADDR,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Printf("kafka close error: %v", err)
		}
	}

	log.Println("shutdown complete")
}
