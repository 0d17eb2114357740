// behaved - behavior actor service daemon
//
// Loads behave.toml, opens the model and state stores, registers actor
// templates, serves the control surface, and subscribes to world event
// feeds.
//
// Build: go build ./cmd/behaved
// Usage:
//   behaved                     # behave.toml found by walking up from cwd
//   behaved --manifest ./deploy # explicit manifest directory
//   behaved --addr :9000        # override the listen address
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	_ "github.com/tliron/commonlog/simple"

	"github.com/beyond-immersion/bannou-service-sub001/ingest"
	"github.com/beyond-immersion/bannou-service-sub001/manifest"
	"github.com/beyond-immersion/bannou-service-sub001/pkg/planner"
	"github.com/beyond-immersion/bannou-service-sub001/runtime"
	"github.com/beyond-immersion/bannou-service-sub001/server"
	"github.com/beyond-immersion/bannou-service-sub001/store"
)

var log = commonlog.GetLogger("bannou.behaved")

var (
	manifestDir = flag.String("manifest", "", "directory containing behave.toml (default: walk up from cwd)")
	addr        = flag.String("addr", "", "listen address (overrides manifest)")
	verbosity   = flag.Int("verbosity", -1, "log verbosity (overrides manifest)")
	version     = flag.Bool("version", false, "print version and exit")
)

const versionStr = "0.3.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "behaved - behavior actor service daemon\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  behaved [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *version {
		fmt.Printf("behaved version %s\n", versionStr)
		os.Exit(0)
	}

	m, err := loadManifest()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	v := m.Logging.Verbosity
	if *verbosity >= 0 {
		v = *verbosity
	}
	commonlog.Configure(v, nil)

	if *addr != "" {
		m.Server.Addr = *addr
	}

	if err := run(m); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadManifest() (*manifest.Manifest, error) {
	if *manifestDir != "" {
		return manifest.Load(*manifestDir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m, err := manifest.FindAndLoad(cwd)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("no behave.toml found from %s upward", cwd)
	}
	return m, nil
}

func run(m *manifest.Manifest) error {
	models, err := store.NewFSModelStore(m.ModelRoot())
	if err != nil {
		return err
	}
	states, err := store.OpenStateStore(m.Store.Backend, m.StatePath())
	if err != nil {
		return err
	}
	defer states.Close()

	opts, err := runtimeOptions(m)
	if err != nil {
		return err
	}
	rt := runtime.New(models, states, opts...)

	for _, t := range m.Templates {
		err := rt.RegisterTemplate(runtime.Template{
			Name:          t.Name,
			Mode:          t.Mode,
			Model:         t.Model,
			TickInterval:  t.Tick.Std(),
			QueueCapacity: t.Queue,
			SaveEvery:     t.SaveEvery,
			Seed:          t.Seed,
		})
		if err != nil {
			return err
		}
	}

	srvOpts := []server.Option{server.WithStopTimeout(m.Server.StopTimeout.Std())}
	if m.Server.MetricsPath != "" {
		srvOpts = append(srvOpts, server.WithMetricsPath(m.Server.MetricsPath))
	}
	srv := server.New(rt, srvOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Noticef("behaved %s listening on %s", versionStr, m.Server.Addr)
		err := srv.ListenAndServe(m.Server.Addr)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	if m.Models.Watch {
		g.Go(func() error {
			return rt.WatchModels(ctx)
		})
	}

	for _, f := range m.Feeds {
		feed, err := ingest.NewFeed(rt, ingest.Config{
			Target:       f.Target,
			Method:       f.Method,
			ActorField:   f.ActorField,
			TypeField:    f.TypeField,
			SourceField:  f.SourceField,
			UrgencyField: f.UrgencyField,
			Reconnect:    f.Reconnect.Std(),
			MaxReconnect: f.MaxReconnect.Std(),
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			err := feed.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), m.Server.StopTimeout.Std())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warningf("server shutdown: %v", err)
		}
		if err := rt.Shutdown(shutdownCtx); err != nil {
			log.Warningf("runtime shutdown: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func runtimeOptions(m *manifest.Manifest) ([]runtime.Option, error) {
	var opts []runtime.Option
	for tier, b := range m.Planner.Budgets {
		opts = append(opts, runtime.WithPlannerBudget(planner.ParseUrgency(tier), planner.Budget{
			MaxDepth: b.MaxDepth,
			MaxNodes: b.MaxNodes,
			Timeout:  b.Timeout.Std(),
		}))
	}
	if len(m.Actions) > 0 {
		actions := planner.NewRegistry()
		for _, a := range m.Actions {
			err := actions.Register(planner.Action{
				Name:          a.Name,
				Cost:          a.Cost,
				Preconditions: planner.WorldState(a.Preconditions),
				Effects:       planner.WorldState(a.Effects),
			})
			if err != nil {
				return nil, err
			}
		}
		opts = append(opts, runtime.WithPlannerActions(actions))
	}
	return opts, nil
}
