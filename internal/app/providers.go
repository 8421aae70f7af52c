package app

import (
	"fmt"

	"github.com/storefront/server/internal/module/payment"
	"github.com/storefront/server/internal/module/payment/provider"
	"github.com/storefront/server/internal/shared/config"
	"github.com/storefront/server/internal/shared/functions"
	"github.com/storefront/server/internal/shared/httpclient"
	"github.com/storefront/server/internal/shared/metrics"
	"go.uber.org/zap"
)

// buildProviderRegistry registers every configured provider. In sandbox
// mode each one is replaced by an in-process stand-in under the same name,
// and the generic "test" provider is added.
func buildProviderRegistry(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*payment.ProviderRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := httpclient.New(cfg.HTTPClient)
	sandbox := cfg.Payment.Sandbox

	var invoker functions.Invoker
	if cfg.Functions.BaseURL != "" {
		invoker = functions.NewClient(&cfg.Functions, httpClient, logger, m)
	}

	var providers []provider.Provider

	// Stripe
	if cfg.Stripe.SecretKey != "" || sandbox {
		providers = append(providers, provider.NewStripeProvider(&provider.StripeConfig{
			SecretKey:         cfg.Stripe.SecretKey,
			APIURL:            cfg.Stripe.APIURL,
			HTTPClient:        httpClient,
			MaxNetworkRetries: 2,
		}, logger))
	}

	// Hosted function providers
	if (cfg.Mpesa.Enabled && invoker != nil) || sandbox {
		providers = append(providers, provider.NewMpesaProvider(&provider.MpesaConfig{
			FunctionName: cfg.Mpesa.FunctionName,
			CallbackURL:  cfg.Mpesa.CallbackURL,
		}, invoker, logger))
	}
	if (cfg.Pesapal.Enabled && invoker != nil) || sandbox {
		providers = append(providers, provider.NewPesapalProvider(&provider.PesapalConfig{
			FunctionName: cfg.Pesapal.FunctionName,
			CallbackURL:  cfg.Pesapal.CallbackURL,
		}, invoker, logger))
	}
	if (cfg.Mpesa.Enabled || cfg.Pesapal.Enabled) && invoker == nil && !sandbox {
		logger.Warn("functions base url not configured, hosted payment providers disabled")
	}

	// Alipay
	if cfg.Alipay.AppID != "" && cfg.Alipay.PrivateKey != "" {
		alipayProvider, err := provider.NewAlipayProvider(&provider.AlipayConfig{
			AppID:           cfg.Alipay.AppID,
			PrivateKey:      cfg.Alipay.PrivateKey,
			AlipayPublicKey: cfg.Alipay.AlipayPublicKey,
			IsProd:          cfg.Alipay.IsProd,
			NotifyURL:       cfg.Alipay.NotifyURL,
			ReturnURL:       cfg.Alipay.ReturnURL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create alipay provider: %w", err)
		}
		providers = append(providers, alipayProvider)
	}

	registry := payment.NewProviderRegistry()
	if !sandbox {
		for _, p := range providers {
			registry.Register(p)
		}
		return registry, nil
	}

	testCfg := &provider.TestConfig{Delay: cfg.Payment.SandboxDelay}
	for _, p := range providers {
		registry.Register(provider.NewTestProvider(p.Config(), testCfg))
	}
	registry.Register(provider.NewTestProvider(provider.Config{}, testCfg))
	return registry, nil
}
