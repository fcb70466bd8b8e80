package catalog

import (
	"context"
	"fmt"

	"crawler/internal/model"

	"github.com/rs/zerolog"
)

// Walker enumerates the departments of one term by walking the
// four-level taxonomy: type → category → college → department.
//
// One configured category is a flat leaf: it has no colleges or
// departments underneath and is queried directly as a
// department-equivalent key, so the walker emits it as a DepartmentRef
// without descending further.
type Walker struct {
	src      *Source
	flatLeaf string
	log      zerolog.Logger
}

func NewWalker(src *Source, flatLeafCategory string, log zerolog.Logger) *Walker {
	return &Walker{
		src:      src,
		flatLeaf: flatLeafCategory,
		log:      log.With().Str("component", "discovery").Logger(),
	}
}

// DiscoverDepartments returns the department refs of one term,
// deduplicated by identifier. Only a failure of the root type
// enumeration is returned as an error; deeper failures skip the
// branch and continue with its siblings. No ordering is guaranteed.
func (w *Walker) DiscoverDepartments(ctx context.Context, term model.Term) ([]model.DepartmentRef, error) {
	types, err := w.src.Types(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("type enumeration for %s: %w", term, err)
	}

	var refs []model.DepartmentRef
	for _, typ := range types {
		cats, err := w.src.Categories(ctx, term, typ.ID)
		if err != nil {
			w.log.Warn().Str("type", typ.ID).Err(err).Msg("category enumeration failed, skipping branch")
			continue
		}
		for _, cat := range cats {
			if cat.ID == w.flatLeaf {
				refs = append(refs, model.DepartmentRef{ID: cat.ID, Name: cat.Name})
				continue
			}
			refs = append(refs, w.walkCategory(ctx, term, typ.ID, cat.ID)...)
		}
	}
	return dedupeRefs(refs), nil
}

func (w *Walker) walkCategory(ctx context.Context, term model.Term, typeID, catID string) []model.DepartmentRef {
	colleges, err := w.src.Colleges(ctx, term, typeID, catID)
	if err != nil {
		w.log.Warn().Str("category", catID).Err(err).Msg("college enumeration failed, skipping branch")
		return nil
	}
	if len(colleges) == 0 {
		// Some categories carry departments without a college level;
		// the source answers those with an empty college key.
		colleges = []TaxonomyItem{{ID: ""}}
	}

	var refs []model.DepartmentRef
	for _, college := range colleges {
		deps, err := w.src.Departments(ctx, term, typeID, catID, college.ID)
		if err != nil {
			w.log.Warn().
				Str("category", catID).
				Str("college", college.ID).
				Err(err).
				Msg("department enumeration failed, skipping branch")
			continue
		}
		for _, dep := range deps {
			refs = append(refs, model.DepartmentRef{ID: dep.ID, Name: dep.Name})
		}
	}
	return refs
}

// dedupeRefs drops repeated department identifiers, keeping the first
// occurrence. The same department shows up under several branches of
// the taxonomy.
func dedupeRefs(refs []model.DepartmentRef) []model.DepartmentRef {
	seen := make(map[string]struct{}, len(refs))
	out := refs[:0]
	for _, ref := range refs {
		if _, ok := seen[ref.ID]; ok {
			continue
		}
		seen[ref.ID] = struct{}{}
		out = append(out, ref)
	}
	return out
}
