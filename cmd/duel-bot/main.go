package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appcfg "github.com/park285/Buckshot-KakaoTalk-bot/internal/config"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/adapter/duelpresenter"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duel"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duelbot"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duelbuilder"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/msgcat"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/obslog"
)

const replyTimeout = 8 * time.Second

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := obslog.Init(cfg.LogOptions())
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("bot_exit", zap.Error(err))
		_ = logger.Sync()
		log.Fatalf("duel-bot: %v", err)
	}
	logger.Info("bot_stopped")
}

func run(ctx context.Context, cfg *appcfg.AppConfig, logger *zap.Logger) error {
	headers := func() map[string]string {
		h := map[string]string{}
		if cfg.XUserID != "" {
			h["X-User-Id"] = cfg.XUserID
		}
		if cfg.XUserEmail != "" {
			h["X-User-Email"] = cfg.XUserEmail
		}
		if cfg.XSessionID != "" {
			h["X-Session-Id"] = cfg.XSessionID
		}
		return h
	}

	client := irisfast.NewClient(cfg.IrisBaseURL, irisfast.WithHeaderProvider(headers))
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if bridge, err := client.GetConfig(probeCtx); err != nil {
		logger.Warn("iris_config_unavailable", zap.Error(err))
	} else {
		logger.Info("iris_config", zap.Int("port", bridge.Port), zap.Int("message_rate", bridge.MessageRate))
	}
	cancel()

	ws := irisfast.NewWebSocket(cfg.IrisWSURL, 5, time.Second)
	ws.SetHeaderProvider(headers)
	ws.OnStateChange(func(state irisfast.WebSocketState) {
		logger.Info("ws_state", zap.String("state", string(state)))
	})
	egress := irisfast.NewEgress(cfg.IrisEgress, false, client, ws, logger)
	send := func(room, message string) error {
		sctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()
		return egress.SendText(sctx, room, message)
	}

	cat, err := msgcat.New(cfg.MsgCatalogDir)
	if err != nil {
		return err
	}

	// The presenter needs the engine the builder creates, so the expiry hook resolves it late.
	var presenter *duelpresenter.Presenter
	deps, err := duelbuilder.New(ctx, cfg, logger, func(_ context.Context, d *duel.Duel, out *duel.Outcome) {
		if presenter == nil {
			return
		}
		if err := presenter.Expired(d, out); err != nil {
			logger.Warn("expire_notice_error", zap.String("duel_id", d.ID), zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("deps_close_error", zap.Error(err))
		}
	}()

	formatter := duelpresenter.NewFormatter(cat, duelpresenter.StaticPrefix(cfg.BotPrefix))
	presenter = duelpresenter.NewPresenter(deps.Engine, formatter, send)
	router := duelbot.NewRouter(deps.Manager, presenter, duelbot.Options{
		Prefix:       cfg.BotPrefix,
		HistoryLimit: cfg.HistoryLimit,
		RoomAllowed:  cfg.RoomAllowed,
		IsAdmin:      cfg.IsAdmin,
	}, logger)

	ws.OnMessage(func(msg *irisfast.Message) {
		if !router.Accepts(msg) {
			return
		}
		// Keep the read loop free.
		go router.Handle(ctx, msg)
	})

	cctx, ccancel := context.WithTimeout(ctx, 10*time.Second)
	err = ws.Connect(cctx)
	ccancel()
	if err != nil {
		return err
	}
	logger.Info("bot_started", zap.String("prefix", cfg.BotPrefix), zap.String("egress", cfg.IrisEgress))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Manager.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ws.Close(closeCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
