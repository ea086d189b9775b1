package stacks

import (
	"context"
	"fmt"
	"slices"

	"github.com/flab-reels/authcdk/pkg/config"
	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/infra/cloudformation"
	"github.com/flab-reels/authcdk/pkg/logging"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type (
	// Stack is a resource graph deployed as one unit from its own template.
	Stack struct {
		Name        string
		Description string
		Graph       *construct.Graph
		// Dependencies are the stacks that must be synthesized (and deployed) before this one.
		Dependencies []string
	}

	// App is the ordered set of stacks built from one configuration.
	App struct {
		Config config.Application
		stacks []*Stack
	}
)

func NewApp(cfg config.Application) *App {
	return &App{Config: cfg}
}

// Build declares every stack of the application. The service stack depends on the pipeline stack for its image
// tag parameter; the database stack stands alone and is only built when enabled. Each stack is built with a
// logger tagged with its name.
func Build(ctx context.Context, cfg config.Application) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := NewApp(cfg)

	pipeline, image, err := PipelineStack(logging.WithStack(ctx, cfg.Pipeline.StackName), app)
	if err != nil {
		return nil, fmt.Errorf("could not build %s: %w", cfg.Pipeline.StackName, err)
	}
	if err := app.AddStack(pipeline); err != nil {
		return nil, err
	}

	service, err := ServiceStack(logging.WithStack(ctx, cfg.Service.StackName), app, image)
	if err != nil {
		return nil, fmt.Errorf("could not build %s: %w", cfg.Service.StackName, err)
	}
	service.Dependencies = append(service.Dependencies, pipeline.Name)
	if err := app.AddStack(service); err != nil {
		return nil, err
	}

	dbCtx := logging.WithStack(ctx, cfg.Database.StackName)
	if !cfg.Database.Enabled {
		logging.GetLogger(dbCtx).Debug("disabled")
		return app, nil
	}
	database, err := DatabaseStack(dbCtx, app)
	if err != nil {
		return nil, fmt.Errorf("could not build %s: %w", cfg.Database.StackName, err)
	}
	if err := app.AddStack(database); err != nil {
		return nil, err
	}
	return app, nil
}

// AddStack appends s. Stack names are unique and every dependency must already be part of the app.
func (app *App) AddStack(s *Stack) error {
	if _, ok := app.Stack(s.Name); ok {
		return fmt.Errorf("duplicate stack %s", s.Name)
	}
	for _, dep := range s.Dependencies {
		if _, ok := app.Stack(dep); !ok {
			return fmt.Errorf("stack %s depends on unknown stack %s", s.Name, dep)
		}
	}
	app.stacks = append(app.stacks, s)
	return nil
}

// Stacks returns the stacks in the order they were added, which is also a valid deployment order.
func (app *App) Stacks() []*Stack {
	return slices.Clone(app.stacks)
}

func (app *App) Stack(name string) (*Stack, bool) {
	for _, s := range app.stacks {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Select returns the named stacks in app order, or every stack when names is empty.
func (app *App) Select(names []string) ([]*Stack, error) {
	if len(names) == 0 {
		return app.Stacks(), nil
	}
	var errs error
	for _, name := range names {
		if _, ok := app.Stack(name); !ok {
			errs = multierr.Append(errs, fmt.Errorf("no stack named %s", name))
		}
	}
	if errs != nil {
		return nil, errs
	}
	var selected []*Stack
	for _, s := range app.stacks {
		if slices.Contains(names, s.Name) {
			selected = append(selected, s)
		}
	}
	return selected, nil
}

// Template compiles the stack's graph.
func (s *Stack) Template() (*cloudformation.Template, error) {
	c := &cloudformation.Compiler{Description: s.Description}
	t, err := c.Compile(s.Graph)
	if err != nil {
		return nil, fmt.Errorf("could not synthesize %s: %w", s.Name, err)
	}
	return t, nil
}

func newStack(name, description string) *Stack {
	return &Stack{
		Name:        name,
		Description: description,
		Graph:       construct.NewGraph(),
	}
}

// linkResources adds the dependencies of every declared resource. It runs once the stack is fully declared, so
// grants and rules added after a resource was created are picked up too.
func (s *Stack) linkResources(ctx context.Context) error {
	log := logging.GetLogger(ctx)
	var errs error
	for _, r := range s.Graph.ListResources() {
		if err := s.Graph.AddDependenciesReflect(r); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		deps := s.Graph.DirectDownstreamDependencies(r)
		log.Debug("declared", logging.ResourceField(r.Id()), zap.Int("dependencies", len(deps)))
	}
	if errs != nil {
		return errs
	}
	log.Sugar().Debugf("%d resources", s.Graph.Len())
	return nil
}
