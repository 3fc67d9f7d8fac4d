package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/chain"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/config"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/confirm"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/datastore"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/datastore/clickhouse"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/datastore/httpstore"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/datastore/memory"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/datastore/postgres"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/deploy"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/observability"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/quote"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/recorder"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/router"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/router/brokers"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/router/brokers/v2router"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/rpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()

	// Share the logger with the rpc package
	rpc.SetLogger(log)
}

func main() {
	configPath := flag.String("config", "./purchaser.toml", "config file for the purchaser service")
	flag.Parse()

	log.Info().Str("config", *configPath).Msg("Starting curve purchaser")

	cfg, err := config.LoadServiceConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics("", prometheus.DefaultRegisterer)

	// Chain access: reads go to the node, signatures to the external wallet
	client, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to chain RPC")
	}
	defer client.Close()
	client.SetReceiptPollInterval(cfg.Chain.ReceiptPollInterval.Duration)

	signer, err := chain.DialSigner(ctx, cfg.Chain.SignerURL, common.HexToAddress(cfg.Chain.SignerAddress))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to wallet")
	}
	defer signer.Close()
	walletConnected := chain.WalletConnected(signer)

	curve := chain.NewCurve(common.HexToAddress(cfg.Chain.CurveContract), client)
	factory := chain.NewFactory(common.HexToAddress(cfg.Chain.FactoryContract))
	engine := quote.NewEngine(curve)

	var aggregator brokers.Aggregator
	if cfg.Chain.AggregatorRouter != "" {
		var hub *common.Address
		if cfg.Chain.AggregatorHub != "" {
			addr := common.HexToAddress(cfg.Chain.AggregatorHub)
			hub = &addr
		}
		v2 := v2router.New(common.HexToAddress(cfg.Chain.AggregatorRouter), client, hub)
		if cfg.Chain.WrappedNative != "" {
			v2 = v2.WithWrappedNative(common.HexToAddress(cfg.Chain.WrappedNative))
		}
		aggregator = v2
		log.Info().
			Str("router", cfg.Chain.AggregatorRouter).
			Str("broker", aggregator.GetBrokerType()).
			Msg("Swap aggregator initialized")
	}

	assets, err := cfg.BuildAssets()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build asset catalog")
	}
	catalog, err := router.NewCatalog(assets)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build asset catalog")
	}
	log.Info().Int("count", len(assets)).Str("curve_asset", catalog.CurveAsset().Symbol).Msg("Loaded payment assets")

	store, holderStore, closeStore, err := openDatastore(ctx, cfg.Datastore)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open datastore")
	}
	defer closeStore()

	detector := confirm.NewBalanceDiff(client, confirm.PollConfig{
		WarmUp:      cfg.Pipeline.DetectorWarmup.Duration,
		Interval:    cfg.Pipeline.DetectorInterval.Duration,
		MaxAttempts: cfg.Pipeline.DetectorMaxPolls,
	}, metrics.DetectorPoll)

	orchestrator, err := router.NewOrchestrator(router.Options{
		Resolver:              router.NewResolver(catalog, curve.Address(), aggregator, engine),
		Intake:                router.NewIntake(cfg.Pipeline.Retention),
		Signer:                signer,
		Receipts:              client,
		Detector:              detector,
		Curve:                 curve,
		Aggregator:            aggregator,
		Quotes:                engine,
		Recorder:              recorder.New(store, cfg.Pipeline.RecorderTimeout.Duration, metrics),
		Precondition:          walletConnected,
		Metrics:               metrics,
		SlippageBps:           cfg.Pipeline.SlippageBps,
		ApprovalFallbackDelay: cfg.Pipeline.ApprovalFallbackDelay.Duration,
		SwapDeadline:          cfg.Pipeline.SwapDeadline.Duration,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create orchestrator")
	}

	initiator, err := deploy.New(deploy.Options{
		Signer:       signer,
		Receipts:     client,
		Factory:      factory,
		Store:        store,
		Precondition: walletConnected,
		Metrics:      metrics,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create deployment initiator")
	}

	apiOptions := rpc.APIOptions{
		Trader:   orchestrator,
		Routes:   orchestrator.Resolver(),
		Quotes:   engine,
		Deployer: initiator,
		Wallet:   signer.Address(),
		Ready:    walletConnected,
		Metrics:  metrics,
	}
	if holderStore != nil {
		apiOptions.Holders = holderStore
	}
	api, err := rpc.NewAPI(apiOptions)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create API")
	}

	server, err := rpc.NewServer(ctx, buildServerConfig(cfg), api)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}

// openDatastore builds the primary store for cfg.Kind and, when configured,
// adds the ClickHouse holder analytics sink behind a fanout
func openDatastore(ctx context.Context, cfg config.DatastoreConfig) (datastore.Store, *clickhouse.HolderStore, func(), error) {
	var primary datastore.Store
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Kind {
	case config.DatastoreHTTP:
		retry := httpstore.DefaultRetryConfig()
		retry.MaxRetries = cfg.Retries
		retry.Timeout = cfg.Timeout.Duration
		primary = httpstore.NewClientWithRetry(cfg.URL, httpstore.StaticToken(cfg.Token), retry)
	case config.DatastorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, closeAll, err
		}
		closers = append(closers, pool.Close)
		if err := pool.Migrate(ctx); err != nil {
			closeAll()
			return nil, nil, func() {}, err
		}
		primary = postgres.NewStore(pool)
	case config.DatastoreMemory:
		log.Warn().Msg("Using the in-memory datastore; records are lost on restart")
		primary = memory.NewStore()
	default:
		return nil, nil, closeAll, fmt.Errorf("unknown datastore kind %q", cfg.Kind)
	}
	log.Info().Str("kind", cfg.Kind).Msg("Datastore initialized")

	if cfg.AnalyticsDSN == "" {
		return primary, nil, closeAll, nil
	}

	conn, err := clickhouse.NewConn(ctx, cfg.AnalyticsDSN)
	if err != nil {
		closeAll()
		return nil, nil, func() {}, fmt.Errorf("analytics: %w", err)
	}
	closers = append(closers, func() { _ = conn.Close() })
	if err := conn.Migrate(ctx); err != nil {
		closeAll()
		return nil, nil, func() {}, fmt.Errorf("analytics: %w", err)
	}
	log.Info().Msg("Holder analytics sink initialized")
	holders := clickhouse.NewHolderStore(conn)
	return datastore.NewFanout(primary, holders), holders, closeAll, nil
}

// buildServerConfig converts the loaded ServiceConfig to rpc.ServerConfig
func buildServerConfig(cfg *config.ServiceConfig) *rpc.ServerConfig {
	serverConfig := &rpc.ServerConfig{
		Address:        net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		EnableMetrics:  cfg.Telemetry.UsePrometheus,
	}

	if cfg.Server.RatePerMinute > 0 {
		serverConfig.RatePerMinute = &cfg.Server.RatePerMinute
	}
	if cfg.Server.MaxConcurrentRequests > 0 {
		serverConfig.MaxConcurrentRequests = &cfg.Server.MaxConcurrentRequests
	}

	t := cfg.Telemetry
	if t.EnableTracing || t.EnableMetrics {
		serverConfig.OTelConfig = &rpc.OTelConfig{
			ServiceName:     t.ServiceName,
			ServiceVersion:  t.ServiceVersion,
			Environment:     t.Environment,
			EnableTracing:   t.EnableTracing,
			UseOTLPTraces:   t.UseOTLPTraces,
			OTLPTracesURL:   t.OTLPTracesURL,
			EnableMetrics:   t.EnableMetrics,
			UsePrometheus:   t.UsePrometheus,
			UseOTLPMetrics:  t.UseOTLPMetrics,
			OTLPMetricsURL:  t.OTLPMetricsURL,
			InsecureOTLP:    t.InsecureOTLP,
			DevelopmentMode: t.DevelopmentMode,
		}
	}

	return serverConfig
}
