package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
)

const baseConfig = `
[server]
port = 9090
host = "127.0.0.1"
allowed_origins = ["https://example.com"]

[chain]
rpc_url = "http://localhost:8545"
signer_url = "http://localhost:1248"
signer_address = "0x00000000000000000000000000000000000000a1"
curve_contract = "0x00000000000000000000000000000000000000c1"
factory_contract = "0x00000000000000000000000000000000000000f1"
aggregator_router = "0x00000000000000000000000000000000000000d1"
wrapped_native = "0x00000000000000000000000000000000000000e1"

[pipeline]
detector_warmup = "2s"

[[assets]]
symbol = "ETH"
kind = "native"
decimals = 18

[[assets]]
symbol = "XRGE"
kind = "curve"
address = "0x0000000000000000000000000000000000000b01"
decimals = 18

[[assets]]
symbol = "USDC"
kind = "stable"
address = "0x0000000000000000000000000000000000000b02"
decimals = 6
`

var envKeys = []string{
	"PORT", "HOST", "ALLOWED_ORIGINS", "RPC_URL", "SIGNER_URL", "SIGNER_ADDRESS",
	"OTLP_TRACES_URL", "OTLP_METRICS_URL", "ENVIRONMENT", "DATASTORE_KIND", "DATASTORE_URL",
	"DATASTORE_TOKEN", "DATASTORE_DSN", "ANALYTICS_DSN", "AGGREGATOR_ROUTER", "WRAPPED_NATIVE",
}

// unsetPurchaserEnv clears every override for the duration of the test
func unsetPurchaserEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		name := EnvPrefix + key
		if old, ok := os.LookupEnv(name); ok {
			t.Cleanup(func() { _ = os.Setenv(name, old) })
		}
		_ = os.Unsetenv(name)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "purchaser.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing temp config: %v", err)
	}
	return path
}

func TestLoadServiceConfig_FromFile(t *testing.T) {
	unsetPurchaserEnv(t)

	cfg, err := LoadServiceConfig(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.Host != "127.0.0.1" {
		t.Errorf("unexpected values: %+v", cfg.Server)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://example.com" {
		t.Errorf("unexpected allowed origins: %+v", cfg.Server.AllowedOrigins)
	}
	if cfg.Pipeline.DetectorWarmup.Duration != 2*time.Second {
		t.Errorf("expected warmup from file, got %s", cfg.Pipeline.DetectorWarmup)
	}
}

func TestLoadServiceConfig_Defaults(t *testing.T) {
	unsetPurchaserEnv(t)

	cfg, err := LoadServiceConfig(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Pipeline.SlippageBps != 500 {
		t.Errorf("expected default slippage 500, got %d", cfg.Pipeline.SlippageBps)
	}
	if cfg.Pipeline.DetectorInterval.Duration != time.Second || cfg.Pipeline.DetectorMaxPolls != 60 {
		t.Errorf("unexpected detector defaults: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.ApprovalFallbackDelay.Duration != 3*time.Second {
		t.Errorf("expected 3s approval fallback, got %s", cfg.Pipeline.ApprovalFallbackDelay)
	}
	if cfg.Datastore.Kind != DatastoreMemory {
		t.Errorf("expected memory datastore by default, got %q", cfg.Datastore.Kind)
	}
}

func TestLoadServiceConfig_WrongExtension(t *testing.T) {
	unsetPurchaserEnv(t)
	if _, err := LoadServiceConfig("config.yaml"); err == nil {
		t.Fatalf("expected error for non-toml file")
	}
}

func TestLoadServiceConfig_EnvOverridesSecrets(t *testing.T) {
	unsetPurchaserEnv(t)
	t.Setenv(EnvPrefix+"DATASTORE_KIND", "http")
	t.Setenv(EnvPrefix+"DATASTORE_URL", "https://store.example.com")
	t.Setenv(EnvPrefix+"DATASTORE_TOKEN", "secret")
	t.Setenv(EnvPrefix+"PORT", "7000")
	t.Setenv(EnvPrefix+"ALLOWED_ORIGINS", "https://a.com, https://b.com")

	cfg, err := LoadServiceConfig(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Datastore.Token != "secret" || cfg.Datastore.URL != "https://store.example.com" {
		t.Errorf("expected datastore from env, got %+v", cfg.Datastore)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("expected env port, got %d", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.com" {
		t.Errorf("unexpected allowed origins: %+v", cfg.Server.AllowedOrigins)
	}
}

func TestLoadServiceConfig_InvalidEnvPort(t *testing.T) {
	unsetPurchaserEnv(t)
	t.Setenv(EnvPrefix+"PORT", "not-a-port")

	if _, err := LoadServiceConfig(writeConfig(t, baseConfig)); err == nil {
		t.Fatalf("expected error for invalid port")
	}
}

func TestVerifyConfig(t *testing.T) {
	unsetPurchaserEnv(t)

	tests := []struct {
		name    string
		edit    func(string) string
		wantErr string
	}{
		{
			name:    "missing rpc url",
			edit:    func(s string) string { return strings.Replace(s, `rpc_url = "http://localhost:8545"`, "", 1) },
			wantErr: "rpc_url",
		},
		{
			name: "bad curve address",
			edit: func(s string) string {
				return strings.Replace(s, "0x00000000000000000000000000000000000000c1", "curve", 1)
			},
			wantErr: "chain.curve_contract",
		},
		{
			name: "swap asset without router",
			edit: func(s string) string {
				return strings.Replace(s, `aggregator_router = "0x00000000000000000000000000000000000000d1"`, "", 1)
			},
			wantErr: "aggregator_router",
		},
		{
			name: "native asset without wrapped native",
			edit: func(s string) string {
				return strings.Replace(s, `wrapped_native = "0x00000000000000000000000000000000000000e1"`, "", 1)
			},
			wantErr: "wrapped_native",
		},
		{
			name:    "http datastore without url",
			edit:    func(s string) string { return s + "\n[datastore]\nkind = \"http\"\n" },
			wantErr: "datastore.url",
		},
		{
			name:    "unknown asset kind",
			edit:    func(s string) string { return strings.Replace(s, `kind = "stable"`, `kind = "meme"`, 1) },
			wantErr: "unknown kind",
		},
		{
			name:    "slippage out of range",
			edit:    func(s string) string { return strings.Replace(s, "[pipeline]", "[pipeline]\nslippage_bps = 10000", 1) },
			wantErr: "slippage_bps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadServiceConfig(writeConfig(t, tt.edit(baseConfig)))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBuildAssets(t *testing.T) {
	unsetPurchaserEnv(t)

	cfg, err := LoadServiceConfig(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assets, err := cfg.BuildAssets()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assets) != 3 {
		t.Fatalf("expected 3 assets, got %d", len(assets))
	}
	if !assets[0].IsNative() {
		t.Errorf("expected ETH to be native, got %s", assets[0].Kind)
	}
	if assets[1].Kind != models.AssetCurve {
		t.Errorf("expected XRGE to be the curve asset, got %s", assets[1].Kind)
	}
	if assets[2].Decimals != 6 || !assets[2].NeedsSwap() {
		t.Errorf("unexpected USDC asset: %+v", assets[2])
	}
}
