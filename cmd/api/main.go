package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/askislamically/backend/internal/config"
	"github.com/askislamically/backend/internal/handler"
	"github.com/askislamically/backend/internal/logging"
	speechModel "github.com/askislamically/backend/internal/model/speech"
	"github.com/askislamically/backend/internal/service/ai"
	"github.com/askislamically/backend/internal/service/chat"
	"github.com/askislamically/backend/internal/service/gateway"
	"github.com/askislamically/backend/internal/service/speech"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env 可选
	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.L().Fatal("failed to load configuration", "err", err)
	}

	logger := logging.Init(logging.Config{Level: cfg.Log.Level})
	if envErr != nil {
		logger.Debug("no .env file loaded, using process environment", "err", envErr)
	}

	// The in-process gateway is built whenever a provider is configured so that
	// POST /api/message keeps working even when sessions talk to a remote gateway.
	var aiService *ai.Service
	if cfg.AI.Enabled() {
		aiService, err = ai.NewService(ctx, cfg.AI)
		if err != nil {
			logger.Warn("AI service unavailable", "provider", cfg.AI.Provider, "err", err)
		} else {
			logger.Info("AI service initialized", "provider", aiService.Provider())
		}
	} else {
		logger.Warn("AI credentials not configured, /api/message disabled", "provider", cfg.AI.Provider)
	}

	var completer gateway.Completer
	switch {
	case cfg.Gateway.URL != "":
		completer = gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Timeout)
		logger.Info("sessions use remote gateway", "url", cfg.Gateway.URL)
	case aiService != nil:
		completer = aiService
	default:
		logger.Fatal("no completion backend: set GATEWAY_URL or configure an AI provider")
	}

	speechService, err := speech.NewService(toSpeechModel(cfg.Speech), speech.Options{
		DisableRecognition: cfg.Speech.DisableCapture,
		DisableSynthesis:   cfg.Speech.DisablePlay,
	})
	if err != nil {
		logger.Fatal("failed to initialize speech service", "err", err)
	}
	health := speechService.Health()
	logger.Info("speech engines", "recognition", health.Recognition, "synthesis", health.Synthesis)

	chatService := chat.NewService(completer, chat.Options{
		SettleDelay:         cfg.Chat.SettleDelay,
		IdleTimeout:         cfg.Chat.IdleTimeout,
		Recognizer:          speechService.Recognizer(),
		RecognitionLanguage: cfg.Speech.ASRLanguage,
		Synthesizer:         speechService.Synthesizer(),
	})
	defer chatService.Shutdown()
	if cfg.Chat.IdleTimeout > 0 {
		go chatService.RunJanitor(ctx, time.Minute)
	}

	services := handler.Services{Chat: chatService, Speech: speechService}
	if aiService != nil {
		services.Gateway = aiService
	}
	router := handler.NewRouter(services)

	startServer(ctx, cfg.Server, router, logger)
}

func toSpeechModel(c config.SpeechConfig) *speechModel.SpeechConfig {
	return &speechModel.SpeechConfig{
		AppID:         c.AppID,
		AccessToken:   c.AccessToken,
		ASRResourceID: c.ASRResourceID,
		ASRLanguage:   c.ASRLanguage,
		TTSResourceID: c.TTSResourceID,
		VoiceEnglish:  c.VoiceEnglish,
		VoiceArabic:   c.VoiceArabic,
		TTSFormat:     c.TTSFormat,
		TTSSpeed:      c.TTSSpeed,
		TTSVolume:     c.TTSVolume,
		Timeout:       c.Timeout,
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *log.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          logging.Std(),
	}

	logger.Info("Ask Islamically backend listening", "addr", addr)
	if err := runServer(ctx, srv, serverCfg.ShutdownTimeout); err != nil {
		logger.Fatal("server error", "err", err)
	}
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
