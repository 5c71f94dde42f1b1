package main

import (
	"context"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/park285/Buckshot-KakaoTalk-bot/internal/config"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/obslog"
)

// irischeck probes the Iris bridge with the bot's configuration: /config over HTTP, then the
// WebSocket for a short window. IRISCHECK_ROOM, when set, receives one test reply through the
// configured egress.
func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	opts := cfg.LogOptions()
	opts.ToFile = false
	opts.ToConsole = true
	logger, err := obslog.Init(opts)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	headers := func() map[string]string {
		return map[string]string{
			"X-User-Id":    cfg.XUserID,
			"X-User-Email": cfg.XUserEmail,
			"X-Session-Id": cfg.XSessionID,
		}
	}

	client := irisfast.NewClient(cfg.IrisBaseURL,
		irisfast.WithHeaderProvider(headers),
		irisfast.WithTimeout(8*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	bridge, err := client.GetConfig(ctx)
	cancel()
	if err != nil {
		logger.Error("config_probe_failed", zap.Error(err))
	} else {
		logger.Info("config_probe_ok",
			zap.Int("port", bridge.Port),
			zap.Int("polling_speed", bridge.PollingSpeed),
			zap.Int("message_rate", bridge.MessageRate),
			zap.String("endpoint", bridge.WebserverEndpoint),
		)
	}

	ws := irisfast.NewWebSocket(cfg.IrisWSURL, 0, time.Second)
	ws.SetHeaderProvider(headers)
	ws.OnStateChange(func(state irisfast.WebSocketState) {
		logger.Info("ws_state", zap.String("state", string(state)))
	})
	ws.OnMessage(func(msg *irisfast.Message) {
		logger.Info("ws_message",
			zap.String("room", msg.Room),
			zap.String("user_id", msg.UserID()),
			zap.String("sender", msg.SenderName()),
			zap.String("text", msg.Msg),
		)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = ws.Connect(cctx)
	ccancel()
	if err != nil {
		logger.Error("ws_connect_failed", zap.Error(err))
		return
	}

	if room := os.Getenv("IRISCHECK_ROOM"); room != "" {
		egress := irisfast.NewEgress(cfg.IrisEgress, false, client, ws, logger)
		sctx, scancel := context.WithTimeout(context.Background(), 8*time.Second)
		if err := egress.SendText(sctx, room, "irischeck ok"); err != nil {
			logger.Error("reply_probe_failed", zap.String("room", room), zap.Error(err))
		} else {
			logger.Info("reply_probe_ok", zap.String("room", room), zap.String("egress", cfg.IrisEgress))
		}
		scancel()
	}

	time.Sleep(10 * time.Second)
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	_ = ws.Close(closeCtx)
}
