package config

import (
	"fmt"
	"time"
)

// ServiceConfig is the purchaser service configuration, loaded from a single TOML file
type ServiceConfig struct {
	Server    ServerConfig    `toml:"server"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Chain     ChainConfig     `toml:"chain"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Datastore DatastoreConfig `toml:"datastore"`
	Assets    []AssetConfig   `toml:"assets"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`

	// CORS configs
	AllowedOrigins []string `toml:"allowed_origins"`

	// rate limiting configs
	RatePerMinute         int `toml:"rate_per_minute"`
	MaxConcurrentRequests int `toml:"max_concurrent_requests"`
}

type TelemetryConfig struct {
	ServiceName    string `toml:"service_name"`
	ServiceVersion string `toml:"service_version"`
	Environment    string `toml:"environment"` // PROD, DEV, TEST, LOCAL
	EnableTracing  bool   `toml:"enable_tracing"`
	UseOTLPTraces  bool   `toml:"use_otlp_traces"`
	OTLPTracesURL  string `toml:"otlp_traces_url"`
	EnableMetrics  bool   `toml:"enable_metrics"`
	UsePrometheus  bool   `toml:"use_prometheus"`
	UseOTLPMetrics bool   `toml:"use_otlp_metrics"`
	OTLPMetricsURL string `toml:"otlp_metrics_url"`
	InsecureOTLP   bool   `toml:"insecure_otlp"`

	// Development mode uses stdout exporters
	DevelopmentMode bool `toml:"development_mode"`
}

type ChainConfig struct {
	RPCURL    string `toml:"rpc_url"`
	SignerURL string `toml:"signer_url"` // external wallet endpoint, keys never reach the service
	// wallet the service submits for, e.g. "0xabc..."
	SignerAddress string `toml:"signer_address"`

	CurveContract   string `toml:"curve_contract"`
	FactoryContract string `toml:"factory_contract"`

	// UniswapV2-style router used for intermediate asset swaps
	AggregatorRouter string `toml:"aggregator_router"`
	AggregatorHub    string `toml:"aggregator_hub"` // optional hop token
	// wrapped native token, used to price native payments through the router
	WrappedNative string `toml:"wrapped_native"`

	ReceiptPollInterval Duration `toml:"receipt_poll_interval"`
}

type PipelineConfig struct {
	SlippageBps           uint32   `toml:"slippage_bps"`
	DetectorWarmup        Duration `toml:"detector_warmup"`
	DetectorInterval      Duration `toml:"detector_interval"`
	DetectorMaxPolls      int      `toml:"detector_max_polls"`
	ApprovalFallbackDelay Duration `toml:"approval_fallback_delay"`
	SwapDeadline          Duration `toml:"swap_deadline"`
	RecorderTimeout       Duration `toml:"recorder_timeout"`
	Retention             int      `toml:"retention"` // finished pipelines kept for lookups
}

// Datastore kinds
const (
	DatastoreHTTP     = "http"
	DatastorePostgres = "postgres"
	DatastoreMemory   = "memory"
)

type DatastoreConfig struct {
	Kind    string   `toml:"kind"` // http | postgres | memory
	URL     string   `toml:"url"`
	Token   string   `toml:"token"`
	Timeout Duration `toml:"timeout"`
	Retries int      `toml:"retries"` // http only
	DSN     string   `toml:"dsn"`

	// optional ClickHouse sink for holder analytics
	AnalyticsDSN string `toml:"analytics_dsn"`
}

type AssetConfig struct {
	Symbol   string `toml:"symbol"`
	Kind     string `toml:"kind"`
	Address  string `toml:"address"`
	Decimals int32  `toml:"decimals"`
}

// Duration is a time.Duration read from strings like "5s" or "1m30s"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
