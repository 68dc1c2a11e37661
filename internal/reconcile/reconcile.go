// Package reconcile orchestrates one end-to-end run: load metadata and
// blueprint, resolve a feasible assignment, plan the concrete actions,
// and hand them to an Effector.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/AOSC-Dev/omakase/internal/blueprint"
	"github.com/AOSC-Dev/omakase/internal/config"
	"github.com/AOSC-Dev/omakase/internal/effector"
	"github.com/AOSC-Dev/omakase/internal/encode"
	"github.com/AOSC-Dev/omakase/internal/errs"
	"github.com/AOSC-Dev/omakase/internal/installedstate"
	"github.com/AOSC-Dev/omakase/internal/metadatastore"
	"github.com/AOSC-Dev/omakase/internal/pkgdb"
	"github.com/AOSC-Dev/omakase/internal/plan"
	"github.com/AOSC-Dev/omakase/internal/solve"
)

// Report summarizes one reconciliation for the CLI to print.
type Report struct {
	Actions []plan.Action
	Broken  []plan.BrokenEdge
}

// Run executes the full pipeline for cfg. If apply is false, the plan
// is computed and returned but no Effector call is made (a dry run).
func Run(ctx context.Context, log *slog.Logger, cfg *config.Config, store *metadatastore.Store, eff effector.Effector, apply bool) (*Report, error) {
	db, err := loadDatabase(cfg, store)
	if err != nil {
		return nil, err
	}

	bp, err := blueprint.Load(cfg.UserBlueprintPath(), cfg.OverlayDir())
	if err != nil {
		return nil, errs.New(errs.KindMetadataParse, "loading blueprint", err)
	}

	installed, err := installedstate.ReadFile(cfg.DpkgStatusPath)
	if err != nil {
		return nil, err
	}

	enc, err := encode.Build(db, bp)
	if err != nil {
		return nil, errs.New(errs.KindMetadataParse, "encoding package universe", err)
	}

	driver := solve.NewDriver()
	outcome, err := driver.Solve(enc)
	if err != nil {
		return nil, err
	}
	if !outcome.SAT {
		log.Error("blueprint is unsatisfiable", "conflicting_entries", outcome.Conflict)
		return nil, errs.New(errs.KindUnsatisfiable, "no feasible assignment satisfies the blueprint", nil)
	}

	actions, broken := plan.Build(db, outcome.Selected, installed)
	for _, b := range broken {
		log.Warn("dependency cycle broken during action ordering", "from", b.From, "to", b.To)
	}
	log.Info("plan computed", "actions", len(actions))

	report := &Report{Actions: actions, Broken: broken}
	if !apply {
		return report, nil
	}

	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			return report, errs.New(errs.KindCancelled, "reconciliation interrupted", err)
		}
		log.Info("applying action", "action", a.String())
		if err := eff.Apply(ctx, a); err != nil {
			return report, err
		}
	}
	return report, nil
}

func loadDatabase(cfg *config.Config, store *metadatastore.Store) (*pkgdb.Database, error) {
	var sources []pkgdb.IndexSource
	for name := range cfg.Repos {
		repoSources, err := store.Indices(name)
		if err != nil {
			return nil, err
		}
		sources = append(sources, repoSources...)
	}
	db, err := pkgdb.Load(sources, cfg.Arch)
	if err != nil {
		return nil, err
	}
	return db, nil
}
