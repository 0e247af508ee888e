package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/affiliate-scout/internal/discovery"
	"github.com/sells-group/affiliate-scout/internal/evaluate"
	"github.com/sells-group/affiliate-scout/internal/importer"
	"github.com/sells-group/affiliate-scout/internal/keywords"
	"github.com/sells-group/affiliate-scout/internal/model"
	"github.com/sells-group/affiliate-scout/internal/notify"
	"github.com/sells-group/affiliate-scout/internal/resilience"
	"github.com/sells-group/affiliate-scout/internal/search"
	"github.com/sells-group/affiliate-scout/internal/store"
	"github.com/sells-group/affiliate-scout/internal/workflow"
	anthropicpkg "github.com/sells-group/affiliate-scout/pkg/anthropic"
	"github.com/sells-group/affiliate-scout/pkg/google"
	"github.com/sells-group/affiliate-scout/pkg/stripe"
	"github.com/sells-group/affiliate-scout/pkg/twitter"
	"github.com/sells-group/affiliate-scout/pkg/youtube"
)

// appEnv holds the initialized store, clients and services a command needs.
type appEnv struct {
	Store     store.Store
	Discovery *discovery.Service // nil for import without an Anthropic key
	Importer  *importer.Processor
	Notifier  notify.Notifier
	Temporal  client.Client     // nil when temporal.host_port is empty
	Starter   *workflow.Starter // nil when Temporal is disabled
}

// Close releases everything the environment opened.
func (e *appEnv) Close() {
	if e.Temporal != nil {
		e.Temporal.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for mode, opens and migrates the store and wires
// the services. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	env := &appEnv{Store: st}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	n, err := notify.New(cfg.Notify)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Notifier = n

	if cfg.Temporal.Enabled() {
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			Logger:    workflow.NewZapLogger(zap.L()),
		})
		if err != nil {
			env.Close()
			return nil, eris.Wrap(err, "dial temporal")
		}
		env.Temporal = tc
		env.Starter = workflow.NewStarter(tc, cfg.Temporal.TaskQueue, cfg.Import.BatchesPerRun)
	}

	if mode != "import" || cfg.Anthropic.Key != "" {
		svc, err := buildDiscovery(st)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Discovery = svc
	}

	env.Importer = importer.New(st, env.trigger(), env.Notifier, importer.Config{
		BatchSize:      cfg.Import.BatchSize,
		RowConcurrency: cfg.Import.RowConcurrency,
		DefaultQuota:   cfg.Import.DefaultQuota,
		DefaultCharset: cfg.Import.DefaultCharset,
	})
	return env, nil
}

// trigger picks how imported campaigns start discovery: a workflow when
// Temporal is configured, otherwise an inline run.
func (e *appEnv) trigger() importer.DiscoveryTrigger {
	if e.Starter != nil {
		return e.Starter
	}
	if e.Discovery == nil {
		return nil
	}
	svc := e.Discovery
	return importer.TriggerFunc(func(ctx context.Context, c model.Campaign, p model.Product) error {
		_, err := svc.RunCampaign(ctx, c, p, c.Difficulty)
		return err
	})
}

// buildDiscovery wires the Anthropic-backed keyword deriver and evaluator
// with one search adapter per configured platform.
func buildDiscovery(st store.Store) (*discovery.Service, error) {
	d := cfg.Discovery
	breakers := resilience.NewBreakers(resilience.FromBreakerConfig(d.BreakerThreshold, d.BreakerCooldownSecs))
	retry := resilience.FromRetryConfig(d.RetryAttempts, d.RetryBackoffMs, 0)
	searchTimeout := time.Duration(d.SearchTimeoutSecs) * time.Second

	opts := func(service string, rps float64) search.Options {
		o := search.Options{
			Guard:             resilience.NewGuard(breakers, service, retry, searchTimeout),
			DetailConcurrency: d.SearchConcurrency,
		}
		if rps > 0 {
			o.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
		return o
	}

	var adapters []search.Adapter
	if cfg.YouTube.Key != "" {
		var geo google.Client
		if cfg.Google.Key != "" {
			geo = google.NewClient(cfg.Google.Key, google.WithBaseURL(cfg.Google.BaseURL))
		}
		yt := youtube.NewClient(cfg.YouTube.Key, youtube.WithBaseURL(cfg.YouTube.BaseURL))
		adapters = append(adapters, search.NewYouTube(yt, geo, opts("youtube", cfg.YouTube.RateLimit)))
	}
	if cfg.Twitter.BearerToken != "" {
		tw := twitter.NewClient(cfg.Twitter.BearerToken, twitter.WithBaseURL(cfg.Twitter.BaseURL))
		adapters = append(adapters, search.NewTwitter(tw, opts("twitter", cfg.Twitter.RateLimit)))
	}
	if cfg.Stripe.SecretKey != "" {
		sc := stripe.NewClient(cfg.Stripe.SecretKey, stripe.WithBaseURL(cfg.Stripe.BaseURL))
		adapters = append(adapters, search.NewStripe(sc, opts("stripe", cfg.Stripe.RateLimit)))
	}

	var aiOpts []anthropicpkg.Option
	if cfg.Anthropic.BaseURL != "" {
		aiOpts = append(aiOpts, anthropicpkg.WithBaseURL(cfg.Anthropic.BaseURL))
	}
	ai := anthropicpkg.NewClient(cfg.Anthropic.Key, aiOpts...)

	evalOpts := []evaluate.Option{
		evaluate.WithTimeout(time.Duration(d.EvaluateTimeoutSecs) * time.Second),
		evaluate.WithMaxTokens(cfg.Evaluate.MaxTokens),
	}
	if cfg.Evaluate.RubricsPath != "" {
		rubrics, err := evaluate.LoadRubrics(cfg.Evaluate.RubricsPath)
		if err != nil {
			return nil, err
		}
		evalOpts = append(evalOpts, evaluate.WithRubrics(rubrics))
	}

	kw := keywords.New(ai, cfg.Anthropic.HaikuModel,
		keywords.WithMax(d.MaxKeywords),
		keywords.WithTimeout(searchTimeout),
	)
	eval := evaluate.New(ai, cfg.Anthropic.SonnetModel, evalOpts...)

	zap.L().Info("discovery configured", zap.Int("platforms", len(adapters)))
	return discovery.New(st, search.NewRegistry(adapters...), kw, eval, discovery.Config{
		ResultsPerKeyword:   d.ResultsPerKeyword,
		EvaluateConcurrency: d.EvaluateConcurrency,
	}), nil
}
