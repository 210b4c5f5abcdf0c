package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/brisca-live/social-client/internal/channel"
	"github.com/brisca-live/social-client/internal/config"
	"github.com/brisca-live/social-client/internal/engine"
	"github.com/brisca-live/social-client/internal/gateway"
)

func main() {
	cfg := config.Load()
	if cfg.Username == "" {
		log.Fatal("SOCIAL_USERNAME is required")
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	token := cfg.Token
	if token == "" {
		// dev convenience: self-sign a token the loopback gateway accepts
		token, err = gateway.MintToken(cfg.JWTSecret, cfg.Username)
		if err != nil {
			logger.Fatal("mint token", zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sock, err := channel.Dial(ctx, channel.Options{
		URL:    cfg.ServerURL,
		Token:  token,
		Logger: logger.Named("channel"),
	})
	if err != nil {
		logger.Fatal("dial", zap.Error(err))
	}
	defer sock.Close()

	eng := engine.New(ctx, sock, cfg.Username, logger.Named("engine"), engine.Options{
		EchoTimeout:        cfg.EchoTimeout,
		CorrelationTimeout: cfg.CorrelationTimeout,
		PageSize:           cfg.PageSize,
	})
	defer eng.Close()

	unread, cancelUnread := eng.Subscribe(engine.TopicUnread)
	defer cancelUnread()
	friends, cancelFriends := eng.Subscribe(engine.TopicFriends)
	defer cancelFriends()
	conn, cancelConn := eng.Subscribe(engine.TopicConnection)
	defer cancelConn()

	logger.Info("connected", zap.String("user", cfg.Username), zap.String("server", cfg.ServerURL))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-unread:
			fmt.Printf("unread: %d\n", eng.GlobalUnread())
		case <-friends:
			fmt.Printf("friends: %d online of %d\n", onlineCount(eng), len(eng.Friends()))
		case <-conn:
			fmt.Printf("online: %v\n", eng.Online())
		case <-sigs:
			logger.Info("shutting down")
			return
		}
	}
}

func onlineCount(eng *engine.Engine) int {
	n := 0
	for _, f := range eng.Friends() {
		if f.Status != "" {
			n++
		}
	}
	return n
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
