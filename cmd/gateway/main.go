package main

import (
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/brisca-live/social-client/internal/config"
	"github.com/brisca-live/social-client/internal/gateway"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	gw := gateway.New(cfg.JWTSecret, logger)

	addr := ":8080"
	logger.Info("gateway listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, gw.Routes()); err != nil {
		logger.Fatal("serve", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
