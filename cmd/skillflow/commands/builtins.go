package commands

import (
	"context"
	"strings"
	"time"

	"github.com/skillflow/skillflow/pkg/engine"
	"github.com/skillflow/skillflow/pkg/telemetry"
)

// registerBuiltins installs the built-in example chains. Real deployments
// embed the engine as a library and register their own skills; these exist
// so the CLI is exercisable end to end.
func registerBuiltins(reg *engine.Registry, logger *telemetry.Logger) {
	log := logger.Component("builtins")

	reg.RegisterSkill("echo.stamp", func(_ context.Context, c engine.Context) (engine.Context, error) {
		return c.With("stamped_at", time.Now().UTC().Format(time.RFC3339)), nil
	})
	reg.RegisterChain("demo.echo", []string{"echo.stamp"})

	reg.RegisterSkill("lead.normalize", func(_ context.Context, c engine.Context) (engine.Context, error) {
		email := strings.TrimSpace(strings.ToLower(c.String("email")))
		if email == "" {
			return nil, engine.NewValidationError("lead is missing an email address", nil)
		}
		return c.With("email", email).With("name", strings.TrimSpace(c.String("name"))), nil
	})

	reg.RegisterSkill("lead.score", func(_ context.Context, c engine.Context) (engine.Context, error) {
		score := 0
		if c.String("name") != "" {
			score += 40
		}
		if strings.HasSuffix(c.String("email"), ".example.com") {
			score += 10
		} else {
			score += 60
		}
		return c.With("score", score), nil
	})

	reg.RegisterSkill("lead.route", func(_ context.Context, c engine.Context) (engine.Context, error) {
		route := "nurture"
		if score, ok := c.Get("score"); ok {
			if n, ok := score.(float64); ok && n >= 80 {
				route = "sales"
			}
			if n, ok := score.(int); ok && n >= 80 {
				route = "sales"
			}
		}
		return c.With("route", route), nil
	})
	reg.RegisterCompensation("lead.route", func(_ context.Context, c engine.Context) error {
		log.WithField("email", c.String("email")).Info("lead routing withdrawn")
		return nil
	})

	reg.RegisterChain("lead.intake", []string{"lead.normalize", "lead.score", "lead.route"})
}
