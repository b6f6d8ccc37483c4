package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kpanalytix/kpa-assistant/internal/chat"
	"github.com/kpanalytix/kpa-assistant/internal/config"
	"github.com/kpanalytix/kpa-assistant/internal/faq"
	"github.com/kpanalytix/kpa-assistant/internal/i18n"
	"github.com/kpanalytix/kpa-assistant/internal/provider"
)

func loadTable(path string) (*faq.Table, error) {
	if path == "" {
		return faq.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read faq %s: %w", path, err)
	}
	return faq.Parse(data)
}

func newProvider(ctx context.Context, cfg *config.Config) (provider.ChatProvider, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return provider.NewGeminiProvider(ctx, provider.GeminiOptions{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.Endpoint,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	case config.ProviderOpenAI:
		return provider.NewOpenAIProvider(provider.OpenAIOptions{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Endpoint:    cfg.Endpoint,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

// newManager resolves the mode once and builds the session registry for it.
func newManager(ctx context.Context, cfg *config.Config, faqFile string, logger *zap.Logger) (*chat.Manager, error) {
	table, err := loadTable(faqFile)
	if err != nil {
		return nil, err
	}

	opts := chat.Options{
		Mode:               cfg.ResolveMode(),
		Local:              faq.NewResolver(table),
		Translator:         i18n.Default,
		MaxContextMessages: cfg.MaxContextMessages,
		LocalDelay:         cfg.LocalDelay,
		RateLimit:          rate.Limit(cfg.RateLimit),
		RateBurst:          cfg.RateBurst,
		Logger:             logger,
	}
	if opts.Mode == config.ModeRemote {
		p, err := newProvider(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts.Remote = chat.NewRemoteResolver(p, chat.SystemPrompt, cfg.RemoteTimeout)
	}

	logger.Info("assistant configured",
		zap.String("mode", string(opts.Mode)),
		zap.String("provider", cfg.Provider),
		zap.Int("faq_entries", table.Len()))
	return chat.NewManager(opts, cfg.SessionTTL)
}
