package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mtconnect/mtc-ingest/internal/agent"
	"github.com/mtconnect/mtc-ingest/internal/agentclient"
	"github.com/mtconnect/mtc-ingest/internal/config"
	"github.com/mtconnect/mtc-ingest/internal/metrics"
	"github.com/mtconnect/mtc-ingest/internal/mqttclient"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
	"github.com/mtconnect/mtc-ingest/internal/sink"
	"github.com/mtconnect/mtc-ingest/internal/topic"
)

// version, commit, and buildTime are injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var overrides config.Overrides
	var showVersion bool
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.DevicesFile, "devices", "", "Device model file (overrides DEVICES_FILE)")
	flag.StringVar(&overrides.MQTTBrokerURL, "mqtt-url", "", "MQTT broker URL (overrides MQTT_BROKER_URL)")
	flag.StringVar(&overrides.UpstreamURL, "upstream-url", "", "Upstream agent URL (overrides UPSTREAM_URL)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s (commit=%s, built=%s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", buildTime).
		Str("log_level", level.String()).
		Msg("mtc-ingest starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Device dictionary.
	registry, err := agent.LoadRegistry(cfg.DevicesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load device model")
	}
	if !cfg.ConversionRequired {
		registry.DisableConversion()
	}
	schemaVersion, _ := config.ParseSchemaVersion(cfg.SchemaVersion)

	ag := agent.NewAgent(agent.AgentOptions{
		Registry:      registry,
		BufferSize:    cfg.BufferSize,
		MaxAssets:     cfg.MaxAssets,
		SchemaVersion: schemaVersion,
		Validating:    cfg.Validation,
		Log:           log,
	})
	ag.OnSourceFailed(func(identity string) {
		log.Error().Str("source", identity).Msg("source permanently failed")
	})

	defaultDevice := cfg.DefaultDevice
	if defaultDevice == "" {
		if dev := registry.FirstDevice(); dev != nil {
			defaultDevice = dev.Name
		}
	}

	pctx := pipeline.NewContext(ag)
	strand := pipeline.NewStrand()
	defer strand.Stop()

	pipeOpts := agent.PipelineOptions{
		DefaultDevice:       defaultDevice,
		ShdrVersion:         cfg.ShdrVersion,
		IgnoreTimestamps:    cfg.IgnoreTimestamps,
		RelativeTime:        cfg.RelativeTime,
		UpcaseDataItemValue: cfg.UpcaseDataItemValue,
		FilterDuplicates:    cfg.FilterDuplicates,
	}
	pipe := agent.BuildIngestPipeline(pctx, strand, pipeOpts, log)
	pipe.Start()
	defer pipe.Stop()

	// MQTT source + entity sink.
	var mqtt *mqttclient.Client
	if cfg.MQTTBrokerURL != "" {
		mqtt, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topics:    cfg.MQTTTopics,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mqtt.Close()

		ag.AddSink(sink.NewMQTTSink(mqtt, sink.Options{
			ObservationTopic: cfg.ObservationTopic,
			AssetTopic:       cfg.AssetTopic,
			DeviceTopic:      cfg.DeviceTopic,
		}, log))

		mqtt.SetMessageHandler(func(msgTopic string, payload []byte) {
			metrics.MQTTMessagesTotal.Inc()
			pipe.Post(topic.NewMessage(msgTopic, string(payload), "mqtt"), func(_ any, err error) {
				if err != nil {
					log.Warn().Err(err).Str("topic", msgTopic).Msg("message processing failed")
				}
			})
		})
	}

	// Upstream agent adapter.
	var upstream *agentclient.Adapter
	if cfg.UpstreamURL != "" {
		// Each pipeline gets its own strand; they only share the executor
		// model, not ordering.
		upstreamStrand := pipeline.NewStrand()
		defer upstreamStrand.Stop()
		upstream, err = agentclient.NewAdapter(pctx, upstreamStrand, agentclient.Config{
			URL:               cfg.UpstreamURL,
			Device:            cfg.UpstreamDevice,
			SourceDevice:      cfg.UpstreamSourceDevice,
			Count:             cfg.UpstreamCount,
			Heartbeat:         cfg.UpstreamHeartbeat,
			PollingInterval:   cfg.UpstreamPollingInterval,
			ReconnectInterval: cfg.UpstreamReconnectInterval,
			Timeout:           cfg.UpstreamTimeout,
			UsePolling:        cfg.UpstreamUsePolling,
			ProbeAgent:        cfg.UpstreamProbeAgent,
			AutoAvailable:     cfg.UpstreamAutoAvailable,
			TLSCertFile:       cfg.UpstreamTLSCert,
			TLSKeyFile:        cfg.UpstreamTLSKey,
			TLSCAFile:         cfg.UpstreamTLSCA,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create upstream agent adapter")
		}
		upstream.Start()
		defer upstream.Stop()
	}

	// Device model reload: rebuild the ingest pipeline so recorded
	// splices are reapplied against the new model.
	var watcher *agent.DeviceWatcher
	if cfg.WatchDevices {
		loadModel := func(path string) (*agent.Registry, error) {
			r, err := agent.LoadRegistry(path)
			if err == nil && !cfg.ConversionRequired {
				r.DisableConversion()
			}
			return r, err
		}
		watcher, err = agent.NewDeviceWatcher(cfg.DevicesFile, ag, loadModel, func(*agent.Registry) {
			agent.RebuildIngestPipeline(pipe, pipeOpts, log)
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("device watch disabled")
		} else {
			defer watcher.Stop()
		}
	}

	// Health + metrics endpoint.
	prometheus.MustRegister(metrics.NewCollector(ag.Buffer(), ag.Assets()))
	router := chi.NewRouter()
	router.Use(metrics.InstrumentHandler)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
