package schema

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/platform"
)

// Reconciler converges the live platform schema towards the descriptor.
// Every step re-checks existence before creating, so running it on every
// restart is safe; creation failures are logged and skipped, never fatal.
type Reconciler struct {
	store platform.Store
	desc  *Descriptor
	seed  []SeedCountry
}

// Summary reports what one reconciliation run created.
type Summary struct {
	CollectionsCreated int
	FieldsCreated      int
	RelationsCreated   int
	CountriesSeeded    int
	StatesSeeded       int
	SkippedCollections []string
}

// NewReconciler builds a reconciler over the given store.
func NewReconciler(store platform.Store, desc *Descriptor, seed []SeedCountry) *Reconciler {
	return &Reconciler{store: store, desc: desc, seed: seed}
}

// Run performs one full reconciliation pass: collections in dependency
// order, then missing fields, then missing relations, then seed data.
// The only propagated error is a failure reading the live schema.
func (r *Reconciler) Run(ctx context.Context) (*Summary, error) {
	log := zap.L().Named("reconciler")
	summary := &Summary{}

	live, err := r.store.ReadCollections(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: read live collections")
	}
	existing := make(map[string]bool, len(live))
	for _, c := range live {
		existing[c.Collection] = true
	}

	ordered, skipped := planOrder(r.desc.Collections, existing)
	summary.SkippedCollections = skipped
	for _, name := range skipped {
		log.Warn("skipping collection: parent group missing", zap.String("collection", name))
	}

	for _, col := range ordered {
		if existing[col.Collection] {
			log.Debug("collection already exists", zap.String("collection", col.Collection))
			continue
		}
		// Create with all declared fields in one call so the platform does
		// not auto-generate a conflicting identifier field.
		col.Fields = r.desc.FieldsOf(col.Collection)
		if err := r.store.CreateCollection(ctx, col); err != nil {
			log.Error("create collection failed",
				zap.String("collection", col.Collection), zap.Error(err))
			continue
		}
		existing[col.Collection] = true
		summary.CollectionsCreated++
		summary.FieldsCreated += len(col.Fields)
		log.Info("collection created",
			zap.String("collection", col.Collection), zap.Int("fields", len(col.Fields)))
	}

	summary.FieldsCreated += r.reconcileFields(ctx, log, existing)
	summary.RelationsCreated = r.reconcileRelations(ctx, log)

	// New collections and relations must be visible to item queries.
	if err := r.store.Refresh(ctx); err != nil {
		log.Warn("schema snapshot refresh failed", zap.Error(err))
	}

	seeder := NewSeeder(r.store, r.seed)
	summary.CountriesSeeded, summary.StatesSeeded = seeder.Run(ctx)

	log.Info("reconciliation complete",
		zap.Int("collections_created", summary.CollectionsCreated),
		zap.Int("fields_created", summary.FieldsCreated),
		zap.Int("relations_created", summary.RelationsCreated),
		zap.Int("countries_seeded", summary.CountriesSeeded),
		zap.Int("states_seeded", summary.StatesSeeded),
		zap.Strings("skipped", summary.SkippedCollections),
	)
	return summary, nil
}

// reconcileFields creates declared fields missing from pre-existing
// collections (collection-by-collection diff by field name).
func (r *Reconciler) reconcileFields(ctx context.Context, log *zap.Logger, existing map[string]bool) int {
	created := 0
	for _, name := range r.desc.CollectionNames() {
		if !existing[name] {
			continue
		}
		liveFields, err := r.store.ReadFields(ctx, name)
		if err != nil {
			log.Error("read live fields failed", zap.String("collection", name), zap.Error(err))
			continue
		}
		present := make(map[string]bool, len(liveFields))
		for _, f := range liveFields {
			present[f.Field] = true
		}
		for _, f := range r.desc.FieldsOf(name) {
			if present[f.Field] {
				continue
			}
			if err := r.store.CreateField(ctx, name, f); err != nil {
				log.Error("create field failed",
					zap.String("collection", name), zap.String("field", f.Field), zap.Error(err))
				continue
			}
			created++
			log.Info("field created", zap.String("collection", name), zap.String("field", f.Field))
		}
	}
	return created
}

// reconcileRelations creates declared relations missing live (diff by
// owning collection + field).
func (r *Reconciler) reconcileRelations(ctx context.Context, log *zap.Logger) int {
	live, err := r.store.ReadRelations(ctx)
	if err != nil {
		log.Error("read live relations failed", zap.Error(err))
		return 0
	}
	present := make(map[string]bool, len(live))
	for _, rel := range live {
		present[rel.Collection+"."+rel.Field] = true
	}

	created := 0
	for _, rel := range r.desc.Relations {
		if present[rel.Collection+"."+rel.Field] {
			continue
		}
		if err := r.store.CreateRelation(ctx, rel); err != nil {
			log.Error("create relation failed",
				zap.String("collection", rel.Collection), zap.String("field", rel.Field), zap.Error(err))
			continue
		}
		created++
		log.Info("relation created",
			zap.String("collection", rel.Collection),
			zap.String("field", rel.Field),
			zap.String("related", rel.RelatedCollection))
	}
	return created
}

// Check reports how many declared collections exist live without mutating
// anything. Used by the status command and the reload lifecycle hook.
func (r *Reconciler) Check(ctx context.Context) (present, total int, err error) {
	live, err := r.store.ReadCollections(ctx)
	if err != nil {
		return 0, 0, eris.Wrap(err, "check: read live collections")
	}
	existing := make(map[string]bool, len(live))
	for _, c := range live {
		existing[c.Collection] = true
	}
	names := r.desc.CollectionNames()
	for _, name := range names {
		if existing[name] {
			present++
		}
	}
	return present, len(names), nil
}

// planOrder topologically sorts declared collections over parent-group
// edges. A collection whose group exists neither live nor in the descriptor,
// or that sits in a group cycle, lands on the skip list instead of blocking
// the run. Ready collections keep declaration order.
func planOrder(collections []platform.Collection, existing map[string]bool) (ordered []platform.Collection, skipped []string) {
	declared := make(map[string]bool, len(collections))
	for _, c := range collections {
		declared[c.Collection] = true
	}

	placed := make(map[string]bool, len(collections))
	dropped := make(map[string]bool, len(collections))
	pending := collections
	for len(pending) > 0 {
		var next []platform.Collection
		progressed := false
		for _, c := range pending {
			group := c.Meta.Group
			switch {
			case group == "" || existing[group] || placed[group]:
				ordered = append(ordered, c)
				placed[c.Collection] = true
				progressed = true
			case !declared[group] || dropped[group]:
				// Parent exists nowhere (or was itself skipped):
				// deterministic skip, never created.
				skipped = append(skipped, c.Collection)
				dropped[c.Collection] = true
				progressed = true
			default:
				next = append(next, c)
			}
		}
		if !progressed {
			// Remaining collections form a group cycle.
			for _, c := range next {
				skipped = append(skipped, c.Collection)
			}
			break
		}
		pending = next
	}
	return ordered, skipped
}
