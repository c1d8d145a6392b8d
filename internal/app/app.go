// Package app wires configuration into a ready-to-serve pipeline.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/xiaot623/conclave/internal/adapter/llm"
	"github.com/xiaot623/conclave/internal/aggregate"
	"github.com/xiaot623/conclave/internal/config"
	"github.com/xiaot623/conclave/internal/dispatch"
	"github.com/xiaot623/conclave/internal/domain"
	"github.com/xiaot623/conclave/internal/pipeline"
	"github.com/xiaot623/conclave/internal/policy"
	"github.com/xiaot623/conclave/internal/repository"
	"github.com/xiaot623/conclave/internal/router"
	"github.com/xiaot623/conclave/internal/stream"
)

// App holds the long-lived components built from a Config.
type App struct {
	Config   *config.Config
	Registry *llm.Registry
	Router   *router.Router
	Pipeline *pipeline.Pipeline
	Store    repository.Store // nil when tracing is disabled
}

// Build creates every component. Call Close when done.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	registry, err := llm.NewRegistryFromModels(cfg.Backend, cfg.BaseURL, cfg.APIKey, cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("build responders: %w", err)
	}
	return BuildWithRegistry(ctx, cfg, registry)
}

// BuildWithRegistry creates every component around an existing registry.
func BuildWithRegistry(ctx context.Context, cfg *config.Config, registry *llm.Registry) (*App, error) {
	rules, err := routingRules(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var routerOpts []router.Option
	if experts := expertRoles(registry); len(experts) > 0 {
		routerOpts = append(routerOpts, router.WithExperts(experts...))
	}
	if cfg.ClassifierEnabled {
		if classifier, ok := registry.Get(domain.RoleClassifier); ok {
			routerOpts = append(routerOpts, router.WithClassifier(classifier, cfg.CallTimeout))
		} else {
			log.Printf("WARN: classifier enabled but no %s responder configured, using keyword routing", domain.RoleClassifier)
		}
	}
	rt := router.New(rules, routerOpts...)

	aggregator, _ := registry.Get(domain.RoleAggregator)
	fallback, _ := registry.Get(domain.RoleFallback)

	a := &App{
		Config:   cfg,
		Registry: registry,
		Router:   rt,
	}

	pipelineOpts := []pipeline.Option{
		pipeline.WithMultiExpert(cfg.MultiExpert),
		pipeline.WithFallbackTimeout(cfg.CallTimeout),
	}
	if cfg.TraceDatabaseURL != "" {
		store, err := repository.NewSQLiteStore(cfg.TraceDatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open trace store: %w", err)
		}
		a.Store = store
		pipelineOpts = append(pipelineOpts, pipeline.WithTraceStore(store))
	}

	a.Pipeline = pipeline.New(
		rt,
		dispatch.New(registry, cfg.CallTimeout, cfg.MaxParallel),
		aggregate.New(aggregator, cfg.CallTimeout),
		fallback,
		stream.NewEmitter(cfg.ChunkDelay),
		pipelineOpts...,
	)
	return a, nil
}

// expertRoles lists the routable roles that have a responder configured.
func expertRoles(registry *llm.Registry) []domain.RoleName {
	var roles []domain.RoleName
	for _, role := range registry.Roles() {
		if role.IsExpert() {
			roles = append(roles, role)
		}
	}
	return roles
}

func routingRules(ctx context.Context, cfg *config.Config) ([]router.Rule, error) {
	if cfg.RoutingPolicyFile == "" {
		return router.KeywordRules(cfg.Keywords), nil
	}
	engine, err := policy.LoadEngine(ctx, cfg.RoutingPolicyFile)
	if err != nil {
		return nil, fmt.Errorf("load routing policy: %w", err)
	}
	log.Printf("Routing policy loaded from %s", cfg.RoutingPolicyFile)
	return router.PolicyRules(engine), nil
}

// Models returns role → model for the readiness probe.
func (a *App) Models() map[string]string {
	return a.Registry.Models()
}

// Mode reports how answers are produced.
func (a *App) Mode() domain.Mode {
	return a.Pipeline.Mode()
}

// Close releases the trace store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
