package main

import (
	"context"
	"fmt"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/hupe1980/stepflow/config"
	"github.com/hupe1980/stepflow/core"
	"github.com/hupe1980/stepflow/logging"
	"github.com/hupe1980/stepflow/model"
	"github.com/hupe1980/stepflow/model/anthropic"
	"github.com/hupe1980/stepflow/model/openai"
	"github.com/hupe1980/stepflow/order"
	"github.com/hupe1980/stepflow/order/natskv"
)

// buildModels instantiates the configured models keyed by name.
func buildModels(cfgs []config.ModelConfig) (map[string]model.Model, error) {
	models := make(map[string]model.Model, len(cfgs))

	for _, mc := range cfgs {
		switch mc.Provider {
		case config.ProviderMock:
			models[mc.Name] = model.NewMockModel(mc.Name)
		case config.ProviderOpenAI:
			models[mc.Name] = openai.NewModel(func(o *openai.Options) {
				if mc.Model != "" {
					o.Model = mc.Model
				}
				if mc.Temperature != 0 {
					o.Temperature = mc.Temperature
				}
				if mc.MaxTokens > 0 {
					o.MaxCompletionTokens = mc.MaxTokens
				}
				o.APIKey = mc.APIKey
			})
		case config.ProviderAnthropic:
			models[mc.Name] = anthropic.NewModel(func(o *anthropic.Options) {
				if mc.Model != "" {
					o.Model = sdkanthropic.Model(mc.Model)
				}
				if mc.Temperature != 0 {
					o.Temperature = mc.Temperature
				}
				if mc.MaxTokens > 0 {
					o.MaxTokens = mc.MaxTokens
				}
				o.APIKey = mc.APIKey
			})
		default:
			return nil, fmt.Errorf("model %s: unknown provider %q", mc.Name, mc.Provider)
		}
	}

	return models, nil
}

// openStore returns the configured order store and a function releasing it.
func openStore(ctx context.Context, cfg config.StoreConfig, logger logging.Logger) (core.OrderStore, func(), error) {
	switch cfg.Driver {
	case config.StoreMemory:
		return order.NewInMemoryStore(), func() {}, nil
	case config.StoreNATS:
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("stepflowd"), nats.MaxReconnects(-1))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to NATS: %w", err)
		}

		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("jetstream: %w", err)
		}

		store, err := natskv.New(ctx, js, func(o *natskv.Options) {
			o.Bucket = cfg.NATS.Bucket
			o.History = cfg.NATS.History
			o.TTL = cfg.NATS.TTL
			o.Timeout = cfg.NATS.Timeout
			o.Logger = logger
		})
		if err != nil {
			nc.Close()
			return nil, nil, err
		}

		logger.Info("stepflowd.store.opened", "driver", cfg.Driver, "bucket", cfg.NATS.Bucket)

		return store, func() { _ = nc.Drain() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
