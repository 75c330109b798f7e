// Command sentineld is the single binary every sentinel worker runs as; the
// first argument selects a role (monitor, transformer, alerter, channel,
// manager, configwatcher), replicating the original one-process-per-worker
// layout with goroutines instead of OS processes (spec §5: independent
// failure, individually restartable, aggregate heartbeat — only the
// scheduling primitive changes). Role-specific identity (which entity,
// which chain, which channel) is read directly from the environment by the
// component that needs it, not parsed here.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/go-github/v58/github"
	"github.com/rs/zerolog"

	"github.com/nodewatch/sentinel/internal/alert"
	alertcl "github.com/nodewatch/sentinel/internal/alert/chainlink"
	"github.com/nodewatch/sentinel/internal/bootlog"
	"github.com/nodewatch/sentinel/internal/bus"
	"github.com/nodewatch/sentinel/internal/channels"
	"github.com/nodewatch/sentinel/internal/config"
	"github.com/nodewatch/sentinel/internal/configwatcher"
	"github.com/nodewatch/sentinel/internal/domain"
	"github.com/nodewatch/sentinel/internal/monitors"
	clmon "github.com/nodewatch/sentinel/internal/monitors/chainlink"
	"github.com/nodewatch/sentinel/internal/monitors/node"
	"github.com/nodewatch/sentinel/internal/monitors/repository"
	"github.com/nodewatch/sentinel/internal/monitors/system"
	"github.com/nodewatch/sentinel/internal/store"
	"github.com/nodewatch/sentinel/internal/supervise"
	"github.com/nodewatch/sentinel/internal/transform"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: sentineld <monitor|transformer|alerter|channel|manager|configwatcher> [kind]")
		os.Exit(1)
	}
	role := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		bootlog.New("info", true).Fatal().Err(err).Msg("could not load configuration")
	}
	log := bootlog.New(cfg.LogLevel, cfg.LogPretty)
	log.Info().Str("role", role).Msg("starting sentineld")

	ctx, cancel := supervise.RootContext()
	defer cancel()

	switch role {
	case "monitor":
		runMonitorRole(ctx, cfg, log)
	case "transformer":
		runTransformerRole(ctx, cfg, log)
	case "alerter":
		runAlerterRole(ctx, cfg, log)
	case "channel":
		runChannelRole(ctx, cfg, log)
	case "manager":
		runManager(ctx, cfg, log)
	case "configwatcher":
		runConfigWatcher(ctx, cfg, log)
	default:
		log.Fatal().Str("role", role).Msg("unknown role")
	}
}

func runMonitorRole(ctx context.Context, cfg *config.Config, log zerolog.Logger) {
	kind := argOrFatal(log, "monitor")
	w, err := buildMonitor(kind, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not build monitor")
	}
	supervise.RunSupervised(ctx, w, cfg.RestartPeriod, log)
}

func runTransformerRole(ctx context.Context, cfg *config.Config, log zerolog.Logger) {
	kind := argOrFatal(log, "transformer")
	w, err := buildTransformer(kind, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not build transformer")
	}
	supervise.RunSupervised(ctx, w, cfg.RestartPeriod, log)
}

func runAlerterRole(ctx context.Context, cfg *config.Config, log zerolog.Logger) {
	kind := argOrFatal(log, "alerter")
	w, err := buildAlerter(kind, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not build alerter")
	}
	supervise.RunSupervised(ctx, w, cfg.RestartPeriod, log)
}

func runChannelRole(ctx context.Context, cfg *config.Config, log zerolog.Logger) {
	kind := argOrFatal(log, "channel")
	w, err := buildChannel(kind, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not build channel")
	}
	supervise.RunSupervised(ctx, w, cfg.RestartPeriod, log)
}

func runConfigWatcher(ctx context.Context, cfg *config.Config, log zerolog.Logger) {
	b := newBus(cfg, log)
	w := configwatcher.NewWatcher(configwatcher.Config{
		Root:          cfg.ConfigDir,
		RoutingPrefix: "config",
		PollInterval:  getenvDurationDefault("CONFIG_POLL_INTERVAL", 5*time.Second),
	}, b, log)
	supervise.RunSupervised(ctx, w, cfg.RestartPeriod, log)
}

// runManager supervises an in-process table of children described by the
// MANAGED_CHILDREN env var (comma-separated role:kind pairs), answering
// broker pings with an aggregate heartbeat and running an independent dead-
// child sweep (spec §4.2).
func runManager(ctx context.Context, cfg *config.Config, log zerolog.Logger) {
	b := newBus(cfg, log)
	st := newStore(cfg, log)
	name := getenvDefault("MANAGER_NAME", "sentinel-manager")

	var specs []supervise.ChildSpec
	for _, item := range splitCSV(getenvDefault("MANAGED_CHILDREN", "monitor:system,transformer:system,alerter:system,channel:log")) {
		role, kind, ok := strings.Cut(item, ":")
		if !ok {
			log.Fatal().Str("entry", item).Msg("malformed MANAGED_CHILDREN entry, want role:kind")
		}
		specs = append(specs, newChildSpec(role, kind, cfg, log))
	}

	mgr := supervise.NewManager(name, specs, b, st, cfg.RestartPeriod, log)

	if err := b.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("could not connect to broker")
	}
	mgr.StartChildren(ctx, "alert")

	if _, err := mgr.RunSweep(ctx, getenvDefault("SWEEP_CRON", "@every 1m"), "alert"); err != nil {
		log.Fatal().Err(err).Msg("could not start dead-child sweep")
	}

	pingQueue := name + ".ping"
	if _, err := b.DeclareQueue(pingQueue, true, false); err != nil {
		log.Fatal().Err(err).Msg("could not declare ping queue")
	}
	if err := b.Bind(pingQueue, "ping."+name); err != nil {
		log.Fatal().Err(err).Msg("could not bind ping queue")
	}
	deliveries, err := b.Consume(pingQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("could not consume ping queue")
	}

	for {
		select {
		case <-ctx.Done():
			mgr.StopAll()
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			hb := mgr.HandlePing(ctx, "alert")
			if payload, err := json.Marshal(hb); err == nil {
				_ = b.PublishConfirm(ctx, "health_check."+name, payload)
			}
			_ = d.Ack(false)
		}
	}
}

func newChildSpec(role, kind string, cfg *config.Config, log zerolog.Logger) supervise.ChildSpec {
	spec := supervise.ChildSpec{Name: role + ":" + kind}

	switch role {
	case "monitor":
		spec.Factory = func() supervise.Worker { return orFailing(buildMonitor(kind, cfg, log)) }
	case "transformer":
		spec.Namespace = cfg.Namespace
		spec.EntityKind = kind
		spec.EntityID = firstNonEmpty(os.Getenv("NODE_ID"), os.Getenv("NODE_NAME"), "default")
		spec.Factory = func() supervise.Worker { return orFailing(buildTransformer(kind, cfg, log)) }
	case "alerter":
		spec.Factory = func() supervise.Worker { return orFailing(buildAlerter(kind, cfg, log)) }
	case "channel":
		spec.Factory = func() supervise.Worker { return orFailing(buildChannel(kind, cfg, log)) }
	default:
		spec.Factory = func() supervise.Worker { return failingWorker{fmt.Errorf("manager: unknown managed child role %q", role)} }
	}
	return spec
}

// failingWorker lets a child whose build failed still participate in the
// manager's restart loop instead of crashing the whole process.
type failingWorker struct{ err error }

func (f failingWorker) Run(ctx context.Context) error { return f.err }

func orFailing(w supervise.Worker, err error) supervise.Worker {
	if err != nil {
		return failingWorker{err}
	}
	return w
}

func buildMonitor(kind string, cfg *config.Config, log zerolog.Logger) (supervise.Worker, error) {
	b := newBus(cfg, log)
	name := getenvDefault("NODE_NAME", kind)
	nodeID := os.Getenv("NODE_ID")
	parentID := os.Getenv("PARENT_ID")
	heartbeatKey := "health_check.monitor." + name

	switch kind {
	case "system":
		src := system.New(name, nodeID, parentID, os.Getenv("MOUNT_POINT"))
		return monitors.NewPoller(src, b, "raw.system", heartbeatKey, pollPeriod(), log), nil
	case "repository":
		owner, repo := os.Getenv("GITHUB_OWNER"), os.Getenv("GITHUB_REPO")
		if owner == "" || repo == "" {
			return nil, fmt.Errorf("monitor repository: GITHUB_OWNER and GITHUB_REPO are required")
		}
		src := repository.New(name, nodeID, parentID, owner, repo, buildGithubClient())
		return monitors.NewPoller(src, b, "raw.repository", heartbeatKey, pollPeriod(), log), nil
	case "node":
		metricsURL := os.Getenv("METRICS_URL")
		if metricsURL == "" {
			return nil, fmt.Errorf("monitor node: METRICS_URL is required")
		}
		src := node.New(name, nodeID, parentID, metricsURL)
		return monitors.NewPoller(src, b, "raw.node", heartbeatKey, pollPeriod(), log), nil
	case "chainlink":
		return buildChainlinkObserver(name, nodeID, parentID, b, log)
	default:
		return nil, fmt.Errorf("monitor: unknown kind %q", kind)
	}
}

func buildChainlinkObserver(name, nodeID, parentID string, b *bus.Adapter, log zerolog.Logger) (supervise.Worker, error) {
	prometheusURLs := splitCSV(os.Getenv("PROMETHEUS_URLS"))
	catalogURL := os.Getenv("CATALOG_URL")
	evmURLs := splitCSV(os.Getenv("EVM_RPC_URLS"))
	if len(prometheusURLs) == 0 || catalogURL == "" || len(evmURLs) == 0 {
		return nil, fmt.Errorf("monitor chainlink: PROMETHEUS_URLS, CATALOG_URL and EVM_RPC_URLS are required")
	}

	observerCfg := clmon.ObserverConfig{
		MonitorName:   name,
		ParentID:      parentID,
		CatalogURL:    catalogURL,
		EVMRPCURLs:    evmURLs,
		Nodes:         []clmon.NodeSource{{NodeID: nodeID, NodeName: name, ParentID: parentID, PrometheusURLs: prometheusURLs}},
		PollPeriod:    pollPeriod(),
		RawRoutingKey: "raw.chainlink",
		HeartbeatKey:  "health_check.monitor." + name,
	}
	return clmon.NewObserver(observerCfg, b, log), nil
}

func buildTransformer(kind string, cfg *config.Config, log zerolog.Logger) (supervise.Worker, error) {
	b := newBus(cfg, log)
	st := newStore(cfg, log)

	switch kind {
	case "system":
		eng := transform.NewEngine(st, b, cfg.Namespace, "system", "alert.system", transform.System(), transform.SystemError(), log)
		return eng.Bind(transform.RunConfig{QueueName: "transform.system", BindRoutingKeys: []string{"raw.system"}}), nil
	case "repository":
		eng := transform.NewEngine(st, b, cfg.Namespace, "repository", "alert.repository", transform.Repository(), transform.RepositoryError(), log)
		return eng.Bind(transform.RunConfig{QueueName: "transform.repository", BindRoutingKeys: []string{"raw.repository"}}), nil
	case "node":
		eng := transform.NewEngine(st, b, cfg.Namespace, "node", "alert.node", transform.Node(), transform.NodeError(), log)
		return eng.Bind(transform.RunConfig{QueueName: "transform.node", BindRoutingKeys: []string{"raw.node"}}), nil
	default:
		// chainlink contract data bypasses the generic transformer: the
		// observer's per-proxy payload shape is consumed directly by the
		// chainlink alerter (internal/alert/chainlink.Worker).
		return nil, fmt.Errorf("transformer: unknown kind %q", kind)
	}
}

func buildAlerter(kind string, cfg *config.Config, log zerolog.Logger) (supervise.Worker, error) {
	b := newBus(cfg, log)
	parentID := os.Getenv("PARENT_ID")

	switch kind {
	case "system":
		resolve := func(meta domain.MetaData) (alert.Config, string, string, bool) {
			return alert.DefaultSystemConfig(parentID), entityIDFor(meta), parentID, true
		}
		w := alert.NewWorker(alert.WorkerConfig{
			Name: "system-alerter", QueueName: "alert.system.q", BindRoutingKeys: []string{"alert.system"},
			AlertRoutingKey: "alert", HeartbeatKey: "health_check.alerter.system",
			Resolve: resolve, Transitions: alert.SystemTransitions(),
		}, b, alert.NewAlerter(), log)
		return w, nil
	case "repository":
		resolve := func(meta domain.MetaData) (alert.Config, string, string, bool) {
			return alert.Config{ParentID: parentID}, entityIDFor(meta), parentID, true
		}
		w := alert.NewWorker(alert.WorkerConfig{
			Name: "repository-alerter", QueueName: "alert.repository.q", BindRoutingKeys: []string{"alert.repository"},
			AlertRoutingKey: "alert", HeartbeatKey: "health_check.alerter.repository",
			Resolve: resolve, Transitions: alert.RepositoryTransitions(),
		}, b, alert.NewAlerter(), log)
		return w, nil
	case "node":
		resolve := func(meta domain.MetaData) (alert.Config, string, string, bool) {
			return alert.DefaultNodeConfig(parentID), entityIDFor(meta), parentID, true
		}
		w := alert.NewWorker(alert.WorkerConfig{
			Name: "node-alerter", QueueName: "alert.node.q", BindRoutingKeys: []string{"alert.node"},
			AlertRoutingKey: "alert", HeartbeatKey: "health_check.alerter.node",
			Resolve: resolve, Transitions: alert.NodeTransitions(),
		}, b, alert.NewAlerter(), log)
		return w, nil
	case "chainlink":
		w := alertcl.NewWorker(alertcl.WorkerConfig{
			Name: "chainlink-contract-alerter", QueueName: "alert.chainlink.q", BindRoutingKeys: []string{"raw.chainlink"},
			AlertRoutingKey: "alert", HeartbeatKey: "health_check.alerter.chainlink",
		}, b, alertcl.NewContractAlerts(), log)
		return w, nil
	default:
		return nil, fmt.Errorf("alerter: unknown kind %q", kind)
	}
}

func buildChannel(kind string, cfg *config.Config, log zerolog.Logger) (supervise.Worker, error) {
	b := newBus(cfg, log)

	var sender channels.Sender
	switch kind {
	case "log":
		sender = channels.NewLogSender(log)
	case "webhook":
		url := os.Getenv("WEBHOOK_URL")
		if url == "" {
			return nil, fmt.Errorf("channel webhook: WEBHOOK_URL is required")
		}
		sender = channels.NewWebhookSender(url)
	default:
		return nil, fmt.Errorf("channel: unknown kind %q", kind)
	}

	return channels.NewWorker(channels.WorkerConfig{
		Name: kind + "-channel", QueueName: "channel." + kind, RoutingKey: "alert", HeartbeatKey: "health_check.channel." + kind,
	}, b, sender, log), nil
}

func newBus(cfg *config.Config, log zerolog.Logger) *bus.Adapter {
	return bus.New(bus.Config{
		URL: cfg.BrokerURL, ExchangeName: cfg.ExchangeName, ExchangeType: "topic", HeartbeatPeriod: cfg.HeartbeatEvery,
	}, log)
}

func newStore(cfg *config.Config, log zerolog.Logger) *store.Adapter {
	return store.New(store.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}, log)
}

// githubAuthTransport adds a personal-access-token header without pulling in
// a dedicated OAuth2 client dependency for a single header.
type githubAuthTransport struct{ token string }

func (t githubAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "token "+t.token)
	return http.DefaultTransport.RoundTrip(req)
}

func buildGithubClient() *github.Client {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return nil
	}
	return github.NewClient(&http.Client{Transport: githubAuthTransport{token: token}})
}

func entityIDFor(meta domain.MetaData) string {
	if meta.NodeID != "" {
		return meta.NodeID
	}
	return meta.NodeName
}

func argOrFatal(log zerolog.Logger, role string) string {
	if len(os.Args) < 3 {
		log.Fatal().Str("role", role).Msg("missing kind argument")
	}
	return os.Args[2]
}

func pollPeriod() time.Duration {
	return getenvDurationDefault("POLL_PERIOD", time.Minute)
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
