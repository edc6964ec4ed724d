package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/NAME-ASHWANIYADAV/agriloop/internal/advisor"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/channel"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/channel/twilio"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/chat"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/compose"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/config"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/dialogue"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/httpapi"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/language"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/memory"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/observability"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/session"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/translate"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/weather"
)

// interaction records kept per identity by the in-memory log
const memoryTurnsPerIdentity = 200

// Options adjust Build for callers other than the server.
type Options struct {
	Logger *slog.Logger
	// CLISender receives replies for messages on the cli channel.
	CLISender channel.Sender
}

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Controller *dialogue.Controller
	Sessions   session.Store
	Memory     memory.Store
	Metrics    *observability.Metrics
	Registry   *prometheus.Registry
	Status     httpapi.Status

	// Cleanup should be called on shutdown to release external resources (DB handles).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, opts Options) (*BuildResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(cfg.MetricsNamespace, registry)

	catalog, err := language.LoadCatalog(cfg.LanguageCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("language catalog init failed: %w", err)
	}

	driver := session.ResolveDriver(cfg.SessionStore, cfg.DatabaseURL, cfg.SQLitePath)
	sessions, err := session.NewStore(ctx, driver, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("session store init failed: %w", err)
	}
	memoryStore, err := memory.NewStore(ctx, driver, cfg.DatabaseURL, cfg.SQLitePath, memoryTurnsPerIdentity)
	if err != nil {
		_ = sessions.Close()
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}
	cleanup := func() error {
		return errors.Join(memoryStore.Close(), sessions.Close())
	}

	gateway, err := translate.NewGateway(translate.Config{
		Provider:      cfg.TranslateProvider,
		PivotLanguage: cfg.PivotLanguage,
		Timeout:       cfg.TranslateTimeout,
		GoogleAPIKey:  cfg.GoogleTranslateAPIKey,
		GoogleURL:     cfg.GoogleTranslateURL,
		LibreURL:      cfg.LibreTranslateURL,
		LibreAPIKey:   cfg.LibreTranslateAPIKey,
		RetryAttempts: 3,
	})
	if err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("translation gateway init failed: %w", err)
	}

	var weatherProvider weather.Provider
	if cfg.OpenWeatherAPIKey != "" {
		weatherProvider = weather.NewOpenWeather(cfg.OpenWeatherBaseURL, cfg.OpenWeatherAPIKey)
	}
	pivotName := cfg.PivotLanguage
	if l, ok := catalog.Lookup(cfg.PivotLanguage); ok {
		pivotName = l.Label()
	}
	processor, err := advisor.NewProcessor(advisor.Config{
		Mode:              cfg.AdvisorMode,
		OpenAIAPIKey:      cfg.OpenAIAPIKey,
		OpenAIBaseURL:     cfg.OpenAIBaseURL,
		OpenAIModel:       cfg.OpenAIModel,
		OpenAIVisionModel: cfg.OpenAIVisionModel,
		HTTPURL:           cfg.AdvisorHTTPURL,
		PivotLanguageName: pivotName,
		Weather:           weatherProvider,
		// Twilio media URLs need the account credentials.
		Media: advisor.NewMediaFetcher(advisor.MediaAuth{
			Username: cfg.TwilioAccountSID,
			Password: cfg.TwilioAuthToken,
			BaseURL:  cfg.TwilioAPIBaseURL,
		}),
	})
	if err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("advisor init failed: %w", err)
	}

	hub := httpapi.NewHub()
	router := channel.NewRouter(channel.NewLogSender(logger))
	router.Handle(chat.ChannelWS, hub)
	outbound := "log"
	if cfg.TwilioConfigured() {
		sender, err := twilio.NewSender(twilio.Config{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioPhoneNumber,
			BaseURL:    cfg.TwilioAPIBaseURL,
		}, nil)
		if err != nil {
			_ = cleanup()
			return nil, fmt.Errorf("twilio sender init failed: %w", err)
		}
		router.Handle(chat.ChannelWhatsApp, sender)
		outbound = "twilio"
	}
	if opts.CLISender != nil {
		router.Handle(chat.ChannelCLI, opts.CLISender)
	}

	controller, err := dialogue.New(dialogue.Config{
		Catalog:      catalog,
		Store:        sessions,
		Locker:       session.NewLocker(),
		Gateway:      gateway,
		Processor:    processor,
		Composer:     compose.New(gateway, cfg.OutboundChunkRunes, logger),
		Sender:       router,
		Memory:       memoryStore,
		Metrics:      metrics,
		Logger:       logger,
		QueryTimeout: cfg.QueryTimeout,
		HistoryTurns: cfg.HistoryTurns,
	})
	if err != nil {
		_ = cleanup()
		return nil, err
	}

	status := httpapi.Status{
		SessionStore: driver,
		MemoryStore:  driver,
		Translator:   gateway.Provider(),
		Pivot:        gateway.Pivot(),
		Advisor:      advisor.Backend(processor),
		Weather:      weatherProvider != nil,
		Outbound:     outbound,
		Languages:    len(catalog.Languages()),
		DefaultLang:  catalog.Default().Code,
	}
	logger.Info("service wired",
		"session_store", status.SessionStore,
		"translator", status.Translator,
		"pivot_language", status.Pivot,
		"advisor", status.Advisor,
		"weather", status.Weather,
		"outbound", status.Outbound,
		"languages", strings.Join(catalog.Labels(), ","),
	)

	api := httpapi.New(httpapi.Deps{
		Config:   cfg,
		Handler:  controller,
		Sessions: sessions,
		Hub:      hub,
		Metrics:  metrics,
		Gatherer: registry,
		Logger:   logger,
		Status:   status,
	})

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Controller: controller,
		Sessions:   sessions,
		Memory:     memoryStore,
		Metrics:    metrics,
		Registry:   registry,
		Status:     status,
		Cleanup:    cleanup,
	}, nil
}
