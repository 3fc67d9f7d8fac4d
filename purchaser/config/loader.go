package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "PURCHASER_"

// LoadServiceConfig reads the TOML config at configPath, fills defaults,
// applies environment overrides and verifies the result
func LoadServiceConfig(configPath string) (*ServiceConfig, error) {
	if !strings.HasSuffix(configPath, ".toml") {
		return nil, fmt.Errorf("config file must be a toml file")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultServiceConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	if len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = []string{"*"}
	}
	if err := applyEnv(config); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	if err := verifyConfig(config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}
	return config, nil
}

// DefaultServiceConfig returns the values used for every key the file leaves out
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Server: ServerConfig{
			Port:                  8080,
			Host:                  "0.0.0.0",
			RatePerMinute:         120,
			MaxConcurrentRequests: 64,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "curve-purchaser",
			ServiceVersion: "dev",
			Environment:    "LOCAL",
			UsePrometheus:  true,
			EnableMetrics:  true,
		},
		Chain: ChainConfig{
			ReceiptPollInterval: Duration{time.Second},
		},
		Pipeline: PipelineConfig{
			SlippageBps:           500,
			DetectorWarmup:        Duration{5 * time.Second},
			DetectorInterval:      Duration{time.Second},
			DetectorMaxPolls:      60,
			ApprovalFallbackDelay: Duration{3 * time.Second},
			SwapDeadline:          Duration{20 * time.Minute},
			RecorderTimeout:       Duration{10 * time.Second},
			Retention:             1024,
		},
		Datastore: DatastoreConfig{
			Kind:    DatastoreMemory,
			Timeout: Duration{10 * time.Second},
			Retries: 2,
		},
	}
}

// applyEnv overrides selected keys from the environment.
// Secrets should come from here rather than the file.
func applyEnv(config *ServiceConfig) error {
	strs := map[string]*string{
		"HOST":              &config.Server.Host,
		"RPC_URL":           &config.Chain.RPCURL,
		"SIGNER_URL":        &config.Chain.SignerURL,
		"SIGNER_ADDRESS":    &config.Chain.SignerAddress,
		"OTLP_TRACES_URL":   &config.Telemetry.OTLPTracesURL,
		"OTLP_METRICS_URL":  &config.Telemetry.OTLPMetricsURL,
		"ENVIRONMENT":       &config.Telemetry.Environment,
		"DATASTORE_KIND":    &config.Datastore.Kind,
		"DATASTORE_URL":     &config.Datastore.URL,
		"DATASTORE_TOKEN":   &config.Datastore.Token,
		"DATASTORE_DSN":     &config.Datastore.DSN,
		"ANALYTICS_DSN":     &config.Datastore.AnalyticsDSN,
		"AGGREGATOR_ROUTER": &config.Chain.AggregatorRouter,
		"WRAPPED_NATIVE":    &config.Chain.WrappedNative,
	}
	for key, target := range strs {
		if value, ok := os.LookupEnv(EnvPrefix + key); ok {
			*target = value
		}
	}

	if value, ok := os.LookupEnv(EnvPrefix + "PORT"); ok {
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", EnvPrefix, err)
		}
		config.Server.Port = port
	}
	if value, ok := os.LookupEnv(EnvPrefix + "ALLOWED_ORIGINS"); ok {
		config.Server.AllowedOrigins = splitList(value)
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func verifyConfig(config *ServiceConfig) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	if config.Server.Host == "" {
		return fmt.Errorf("host is required")
	}

	if len(config.Server.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed_origins is required")
	}

	if config.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if config.Chain.SignerURL == "" {
		return fmt.Errorf("chain.signer_url is required")
	}

	addresses := map[string]string{
		"chain.signer_address":   config.Chain.SignerAddress,
		"chain.curve_contract":   config.Chain.CurveContract,
		"chain.factory_contract": config.Chain.FactoryContract,
	}
	for key, value := range addresses {
		if !common.IsHexAddress(value) {
			return fmt.Errorf("%s must be a hex address, got %q", key, value)
		}
	}
	if config.Chain.AggregatorHub != "" && !common.IsHexAddress(config.Chain.AggregatorHub) {
		return fmt.Errorf("chain.aggregator_hub must be a hex address")
	}

	if config.Pipeline.SlippageBps >= 10_000 {
		return fmt.Errorf("pipeline.slippage_bps must be below 10000")
	}
	if config.Pipeline.DetectorMaxPolls <= 0 {
		return fmt.Errorf("pipeline.detector_max_polls must be positive")
	}
	if config.Pipeline.DetectorInterval.Duration <= 0 {
		return fmt.Errorf("pipeline.detector_interval must be positive")
	}

	switch config.Datastore.Kind {
	case DatastoreHTTP:
		if config.Datastore.URL == "" {
			return fmt.Errorf("datastore.url is required for the http datastore")
		}
	case DatastorePostgres:
		if config.Datastore.DSN == "" {
			return fmt.Errorf("datastore.dsn is required for the postgres datastore")
		}
	case DatastoreMemory:
	default:
		return fmt.Errorf("unknown datastore kind %q", config.Datastore.Kind)
	}

	assets, err := config.BuildAssets()
	if err != nil {
		return err
	}
	swaps, native := false, false
	for _, asset := range assets {
		if asset.NeedsSwap() {
			swaps = true
		}
		if asset.IsNative() {
			native = true
		}
	}
	if (swaps || native) && !common.IsHexAddress(config.Chain.AggregatorRouter) {
		return fmt.Errorf("chain.aggregator_router is required when swap or native assets are configured")
	}
	if native && !common.IsHexAddress(config.Chain.WrappedNative) {
		return fmt.Errorf("chain.wrapped_native is required to bound native purchases")
	}

	return nil
}

// BuildAssets converts the [[assets]] entries to the payment asset catalog
func (c *ServiceConfig) BuildAssets() ([]models.Asset, error) {
	if len(c.Assets) == 0 {
		return nil, fmt.Errorf("no assets in config")
	}

	assets := make([]models.Asset, 0, len(c.Assets))
	for i, entry := range c.Assets {
		kind := models.AssetKind(entry.Kind)
		switch kind {
		case models.AssetNative:
			if entry.Address != "" && common.HexToAddress(entry.Address) != (common.Address{}) {
				return nil, fmt.Errorf("assets[%d]: native asset must not have an address", i)
			}
		case models.AssetCurve, models.AssetIntermediateA, models.AssetIntermediateB, models.AssetStable:
			if !common.IsHexAddress(entry.Address) {
				return nil, fmt.Errorf("assets[%d]: %s needs a hex address", i, entry.Symbol)
			}
		default:
			return nil, fmt.Errorf("assets[%d]: unknown kind %q", i, entry.Kind)
		}
		if entry.Decimals < 0 || entry.Decimals > 36 {
			return nil, fmt.Errorf("assets[%d]: decimals out of range", i)
		}

		assets = append(assets, models.Asset{
			Symbol:   entry.Symbol,
			Kind:     kind,
			Address:  common.HexToAddress(entry.Address),
			Decimals: entry.Decimals,
		})
	}
	return assets, nil
}
