package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classchat/internal/broker"
	"classchat/internal/config"
	"classchat/internal/db"
	clog "classchat/internal/log"
	"classchat/internal/registry"
	"classchat/internal/rtc"
	"classchat/internal/server"
	"classchat/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	// 加载配置、初始化日志，broker 或数据库连不上直接中止启动。
	cfg := config.Load()
	clog.Init(cfg.Env, "gateway")
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bk, err := broker.Connect(ctx, cfg.BrokerURL)
	if err != nil {
		log.Fatal().Err(err).Msg("broker connect")
	}
	defer bk.Close()

	hub := ws.NewHub(bk, cfg.RoomSoftCap)
	relay := rtc.NewRelay()
	reg := registry.New(gdb, bk)
	h := server.NewHandler(hub, reg, bk, server.NewStore(gdb))
	r := server.SetupRouter(cfg, h, hub, relay)

	if err := reg.Announce(cfg.AdvertiseAddr); err != nil {
		log.Fatal().Err(err).Msg("registry announce")
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()
	log.Info().Str("port", cfg.Port).Str("advertise", cfg.AdvertiseAddr).Msg("gateway started")

	<-ctx.Done()

	// 先下线再停服，让前置路由尽早不再把新连接指过来。
	// 崩溃路径不会走到这里，注册表里会留下陈旧条目。
	if err := reg.Withdraw(cfg.AdvertiseAddr); err != nil {
		log.Error().Err(err).Msg("registry withdraw")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("gateway stopped")
}
