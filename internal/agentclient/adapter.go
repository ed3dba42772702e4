package agentclient

import (
	"context"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/mtconnect/mtc-ingest/internal/deliver"
	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/metrics"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

// Config selects the upstream agent and the replay behavior.
type Config struct {
	URL          string // base URL, e.g. http://host:5000/
	Device       string // local device the stream maps onto
	SourceDevice string // device path on the upstream agent; defaults to Device

	Count             int
	Heartbeat         time.Duration
	PollingInterval   time.Duration
	ReconnectInterval time.Duration
	Timeout           time.Duration
	UsePolling        bool
	ProbeAgent        bool
	AutoAvailable     bool

	TLSCertFile string
	TLSKeyFile  string
	TLSCAFile   string
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Count == 0 {
		out.Count = 1000
	}
	if out.Heartbeat == 0 {
		out.Heartbeat = 10 * time.Second
	}
	if out.PollingInterval == 0 {
		out.PollingInterval = 500 * time.Millisecond
	}
	if out.ReconnectInterval == 0 {
		out.ReconnectInterval = 10 * time.Second
	}
	if out.Timeout == 0 {
		out.Timeout = 30 * time.Second
	}
	if out.SourceDevice == "" {
		out.SourceDevice = out.Device
	}
	if !strings.HasSuffix(out.URL, "/") {
		out.URL += "/"
	}
	return out
}

// Adapter replays an upstream agent's probe/current/sample feed into the
// head of this agent's pipeline. All entity processing runs on the
// pipeline strand; network I/O runs on the adapter goroutine.
type Adapter struct {
	cfg      Config
	context  *pipeline.Context
	strand   *pipeline.Strand
	pipe     *pipeline.Pipeline
	feedback *Feedback
	identity string

	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger

	usePollingMu sync.Mutex
	usePolling   bool

	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// NewAdapter builds the adapter and its pipeline. The identity is a stable
// key derived from the URL and source device.
func NewAdapter(pctx *pipeline.Context, strand *pipeline.Strand, cfg Config, log zerolog.Logger) (*Adapter, error) {
	cfg = cfg.withDefaults()
	if cfg.Device == "" {
		return nil, fmt.Errorf("agent adapter must target a device")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}

	name := cfg.URL + cfg.SourceDevice
	digest := sha1.Sum([]byte(name))
	identity := "_" + hex.EncodeToString(digest[:])[:10]

	a := &Adapter{
		cfg:        cfg,
		context:    pctx,
		strand:     strand,
		feedback:   &Feedback{},
		identity:   identity,
		usePolling: cfg.UsePolling,
		log: log.With().Str("component", "agent-adapter").
			Str("identity", identity).Logger(),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	transport, err := a.newTransport()
	if err != nil {
		return nil, err
	}
	a.client = &http.Client{Transport: transport}

	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    identity,
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 10
		},
	})

	a.buildPipeline()
	return a, nil
}

func (a *Adapter) newTransport() (*http.Transport, error) {
	transport := &http.Transport{
		ResponseHeaderTimeout: a.cfg.Timeout,
	}
	if strings.HasPrefix(a.cfg.URL, "https") {
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
		if a.cfg.TLSCertFile != "" && a.cfg.TLSKeyFile != "" {
			cert, err := tls.LoadX509KeyPair(a.cfg.TLSCertFile, a.cfg.TLSKeyFile)
			if err != nil {
				return nil, fmt.Errorf("load client certificate: %w", err)
			}
			tlsCfg.Certificates = []tls.Certificate{cert}
		}
		if a.cfg.TLSCAFile != "" {
			pem, err := os.ReadFile(a.cfg.TLSCAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca chain: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates in ca chain")
			}
			tlsCfg.RootCAs = pool
		} else {
			tlsCfg.InsecureSkipVerify = true
		}
		transport.TLSClientConfig = tlsCfg
	}
	return transport, nil
}

// buildPipeline assembles the adapter pipeline: the XML transform at the
// head, delivery transforms behind it.
func (a *Adapter) buildPipeline() {
	a.pipe = pipeline.New(a.context, a.strand)

	xform := NewXMLTransform(a.context, a.feedback, a.cfg.Device, a.log)
	a.pipe.Bind(xform)

	obsMetrics := a.identity + "_observation_update_rate"
	xform.Bind(deliver.NewDeliverObservation(a.context, obsMetrics))
	xform.Bind(deliver.NewDeliverAsset(a.context, a.identity+"_asset_update_rate"))
	xform.Bind(deliver.NewDeliverDevices(a.context))
	xform.Bind(deliver.NewDeliverDevice(a.context))

	a.pipe.Bind(deliver.NewDeliverConnectionStatus(a.context,
		[]string{a.cfg.Device}, a.cfg.AutoAvailable))

	a.pipe.ApplySplices()
}

func (a *Adapter) Identity() string { return a.identity }

// Pipeline exposes the adapter's pipeline for splicing.
func (a *Adapter) Pipeline() *pipeline.Pipeline { return a.pipe }

func (a *Adapter) Start() {
	a.pipe.Start()
	a.wg.Add(1)
	go a.run()
}

// Stop is idempotent: further callbacks become no-ops and the pipeline is
// cleared.
func (a *Adapter) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
	a.pipe.Stop()
}

func (a *Adapter) isStopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

func (a *Adapter) pollingMode() bool {
	a.usePollingMu.Lock()
	defer a.usePollingMu.Unlock()
	return a.usePolling
}

func (a *Adapter) setPollingMode(v bool) {
	a.usePollingMu.Lock()
	a.usePolling = v
	a.usePollingMu.Unlock()
}

// run is the reconnect loop: one session per iteration, recovery selected
// by the failure code.
func (a *Adapter) run() {
	defer a.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.cfg.ReconnectInterval
	bo.MaxInterval = 4 * a.cfg.ReconnectInterval
	bo.MaxElapsedTime = 0

	for !a.isStopped() {
		err := a.session()
		if a.isStopped() || a.ctx.Err() != nil {
			return
		}

		code := classify(err)
		a.log.Warn().Err(err).Str("code", code.String()).Msg("session ended")
		a.status("disconnected")

		switch code {
		case AdapterFailed:
			a.context.Contract.SourceFailed(a.identity)
			return
		case InstanceIDChanged, RestartStream:
			a.feedback.Clear()
			bo.Reset()
		case MultipartStreamFailed:
			a.log.Warn().Msg("switching to polling")
			a.setPollingMode(true)
		case StreamClosed:
			bo.Reset()
		}

		metrics.AdapterReconnectsTotal.WithLabelValues(a.identity).Inc()
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(bo.NextBackOff()):
		}
	}
}

// classify maps transport errors onto the adapter error taxonomy.
func classify(err error) ErrorCode {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Code
	}
	if errors.Is(err, gobreaker.ErrOpenState) {
		return AdapterFailed
	}
	var dns *net.DNSError
	if errors.As(err, &dns) {
		return AdapterFailed
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return StreamClosed
	}
	return RetryRequest
}

// session walks the state machine once: probe (optional), assets, current,
// then the sample stream until it fails.
func (a *Adapter) session() error {
	a.status("connecting")

	if a.cfg.ProbeAgent {
		body, err := a.fetch("probe", nil)
		if err != nil {
			return err
		}
		if err := a.process(body); err != nil {
			return err
		}
	}

	query := url.Values{"count": []string{strconv.Itoa(a.cfg.Count)}}
	if body, err := a.fetch("assets", query); err == nil {
		if perr := a.process(body); perr != nil {
			a.log.Warn().Err(perr).Msg("asset document processing failed")
		}
	} else {
		a.log.Warn().Err(err).Msg("asset request failed")
	}

	body, err := a.fetch("current", nil)
	if err != nil {
		return err
	}
	if err := a.process(body); err != nil {
		return err
	}

	a.status("connected")

	for {
		if a.isStopped() {
			return nil
		}
		if a.pollingMode() {
			err = a.poll()
		} else {
			err = a.stream()
		}
		if err != nil {
			return err
		}
	}
}

// poll issues one short-poll sample request and waits the polling interval.
func (a *Adapter) poll() error {
	query := url.Values{
		"from":  []string{strconv.FormatUint(a.feedback.Next(), 10)},
		"count": []string{strconv.Itoa(a.cfg.Count)},
	}
	body, err := a.fetch("sample", query)
	if err != nil {
		return err
	}
	if err := a.process(body); err != nil {
		return err
	}
	select {
	case <-a.ctx.Done():
		return nil
	case <-time.After(a.cfg.PollingInterval):
		return nil
	}
}

// stream opens a long-poll sample request with chunked x-mixed-replace
// framing and processes frames until the stream breaks.
func (a *Adapter) stream() error {
	query := url.Values{
		"from":      []string{strconv.FormatUint(a.feedback.Next(), 10)},
		"count":     []string{strconv.Itoa(a.cfg.Count)},
		"interval":  []string{strconv.FormatInt(a.cfg.PollingInterval.Milliseconds(), 10)},
		"heartbeat": []string{strconv.FormatInt(a.cfg.Heartbeat.Milliseconds(), 10)},
	}

	streamCtx, cancel := context.WithCancel(a.ctx)
	defer cancel()

	resp, err := a.request(streamCtx, "sample", query)
	if err != nil {
		if isHeaderTimeout(err) {
			return adapterErr(MultipartStreamFailed, err)
		}
		return err
	}
	defer resp.Body.Close()

	boundary, err := boundaryFrom(resp.Header.Get("Content-Type"))
	if err != nil {
		return adapterErr(MultipartStreamFailed, err)
	}

	frames := newFrameReader(resp.Body, boundary)

	// Watchdog: a silent stream past two heartbeats is a multipart
	// failure.
	timedOut := false
	watchdog := time.AfterFunc(2*a.cfg.Heartbeat, func() {
		timedOut = true
		cancel()
	})
	defer watchdog.Stop()

	for {
		payload, err := frames.Next()
		if err != nil {
			if timedOut {
				return adapterErr(MultipartStreamFailed, err)
			}
			if a.ctx.Err() != nil {
				return nil
			}
			var ae *AdapterError
			if errors.As(err, &ae) {
				return err
			}
			return adapterErr(StreamClosed, err)
		}
		watchdog.Reset(2 * a.cfg.Heartbeat)
		if err := a.process(payload); err != nil {
			return err
		}
	}
}

// fetch issues one bounded request and returns the body.
func (a *Adapter) fetch(verb string, query url.Values) (string, error) {
	ctx, cancel := context.WithTimeout(a.ctx, a.cfg.Timeout)
	defer cancel()

	resp, err := a.request(ctx, verb, query)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", adapterErr(RetryRequest, err)
	}
	return string(body), nil
}

// request issues a GET through the circuit breaker.
func (a *Adapter) request(ctx context.Context, verb string, query url.Values) (*http.Response, error) {
	target := a.cfg.URL
	if a.cfg.SourceDevice != "" {
		target += url.PathEscape(a.cfg.SourceDevice) + "/"
	}
	target += verb
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	out, err := a.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "MTConnect Agent/2.0")
		resp, err := a.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %s for %s", resp.Status, verb)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*http.Response), nil
}

// process runs one payload through the adapter pipeline on the strand and
// returns any transform error.
func (a *Adapter) process(body string) error {
	data := entity.New("Data")
	data.SetValue(body)
	data.Set("source", a.identity)

	var err error
	a.strand.Dispatch(func() {
		_, err = a.pipe.Run(data)
	})
	return err
}

// status reports a connection state change through the pipeline.
func (a *Adapter) status(state string) {
	e := entity.New("ConnectionStatus")
	e.SetValue(state)
	e.Set("source", a.identity)
	a.strand.Dispatch(func() {
		if _, err := a.pipe.Run(e); err != nil {
			a.log.Debug().Err(err).Msg("connection status delivery failed")
		}
	})
}

func isHeaderTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "timeout awaiting response headers")
}
