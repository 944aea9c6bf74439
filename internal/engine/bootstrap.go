package engine

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"tributary/internal/config"
	"tributary/internal/logging"
	"tributary/internal/telemetry"
	"tributary/offsets"
	"tributary/sink"
	sinkkafka "tributary/sink/kafka"
	"tributary/sink/stdout"
	"tributary/source"
	srckafka "tributary/source/kafka"
)

type Options struct {
	ConfigPath     string // engine YAML (koanf, env-overridable)
	DeploymentPath string // deployment YAML (drivers and sink wiring)
}

func Bootstrap(ctx context.Context, opts Options) (*Engine, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	dep, srcConf, err := config.LoadDeployment(opts.DeploymentPath)
	if err != nil {
		return nil, fmt.Errorf("deployment: %w", err)
	}

	// 1. upstream source
	src, err := source.New(dep.Source.Driver)
	if err != nil {
		return nil, err
	}
	switch dep.Source.Driver {
	case "kafka":
		kc, err := srckafka.LoadConfig(srcConf)
		if err != nil {
			return nil, err
		}
		if err := src.Configure(kc); err != nil {
			return nil, err
		}
	default:
		if err := src.Configure(nil); err != nil {
			return nil, err
		}
	}

	// 2. offset store
	var store offsets.Store
	if dep.Offsets.Store == "" || dep.Offsets.Store == dep.Source.Driver {
		// drivers that manage offsets themselves expose their store
		if os, ok := src.(interface{ OffsetStore() offsets.Store }); ok {
			store = os.OffsetStore()
		}
	}
	if store == nil {
		name := dep.Offsets.Store
		if name == "" {
			name = "memory"
		}
		if store, err = offsets.New(name); err != nil {
			return nil, err
		}
	}

	// 3. sinks
	snk, err := buildSinks(dep.Sinks, dep.SinkConfigs)
	if err != nil {
		return nil, err
	}

	// 4. core wiring
	buffers := NewBufferRegistry()
	flow := NewFlowControlRegistry()
	resets := NewResetTable()
	pool := NewPool(cfg.Workers)
	log := logging.L()

	limits := Limits{
		AccumulationThreshold: cfg.FlowControl.AccumulationThreshold,
		ResumeThreshold:       cfg.FlowControl.ResumeThreshold,
		SpanThreshold:         cfg.FlowControl.SpanThreshold,
		PullAliveWindow:       cfg.PullAliveWindow,
	}

	exec := NewExecutor(ctx, src, store, buffers, flow, resets, pool, log, ExecutorOptions{
		Filter:          cfg.Tag,
		PullBatchSize:   cfg.PullBatchSize,
		RedeliveryDelay: cfg.Retry.PullRedeliveryDelay,
		CorrectAttempts: cfg.Retry.CorrectOffsetAttempts,
	})

	meta := EventMeta{Topic: cfg.Topic, Tag: cfg.Tag, Extra: cfg.Extra}
	sched := NewScheduler(buffers, flow, exec, store, snk, cfg.DeliverBatchSize, meta, log)

	// 5. metrics
	telemetry.Expose(cfg.MetricsPort)

	return &Engine{
		cfg:       cfg,
		src:       src,
		store:     store,
		snk:       snk,
		buffers:   buffers,
		flow:      flow,
		resets:    resets,
		pool:      pool,
		sched:     sched,
		watchdog:  NewWatchdog(buffers, flow, exec, log),
		persister: NewPersister(buffers, store, log),
		rebalance: NewRebalanceHandler(buffers, store, exec, limits, cfg.Retry.FetchOffsetAttempts, log),
		reset:     NewResetHandler(buffers, resets, store, log),
	}, nil
}

func buildSinks(names []string, raw any) (sink.Adapter, error) {
	if len(names) == 0 {
		names = []string{"stdout"}
	}
	adapters := make([]sink.Adapter, 0, len(names))
	for _, name := range names {
		drv, err := sink.NewAdapter(name)
		if err != nil {
			return nil, err
		}
		switch name {
		case "stdout":
			var c stdout.Config
			if err := decodeSinkCfg(raw, "stdout", &c); err != nil {
				return nil, err
			}
			err = drv.Configure(c)
		case "kafka":
			var c sinkkafka.Config
			if err := decodeSinkCfg(raw, "kafka", &c); err != nil {
				return nil, err
			}
			err = drv.Configure(c)
		default:
			err = fmt.Errorf("no config block for sink %q", name)
		}
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, drv)
	}
	if len(adapters) == 1 {
		return adapters[0], nil
	}
	return fanout(adapters), nil
}

// decodeSinkCfg re-marshals the named block of the loosely typed
// sink_configs section into the driver's config struct.
func decodeSinkCfg(raw any, name string, out any) error {
	m, ok := raw.(map[string]any)
	if !ok {
		b, err := yaml.Marshal(raw)
		if err != nil {
			return err
		}
		m = map[string]any{}
		if err := yaml.Unmarshal(b, &m); err != nil {
			return err
		}
	}
	block, ok := m[name]
	if !ok || block == nil {
		return nil
	}
	b, err := yaml.Marshal(block)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, out)
}

/*──────── fanout ───────*/

type fanout []sink.Adapter

func (f fanout) Configure(any) error { return nil }

func (f fanout) Deliver(batch []sink.Event) error {
	for _, s := range f {
		if err := s.Deliver(batch); err != nil {
			return err
		}
	}
	return nil
}

func (f fanout) Close() error {
	var first error
	for _, s := range f {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
