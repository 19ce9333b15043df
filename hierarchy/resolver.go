package hierarchy

import (
	"context"
	"sort"

	"github.com/arcadia-ops/backoffice/model"
	"gorm.io/gorm"
)

// Resolver computes descendant sets over the created_by forest. The
// hierarchy is recomputed per query; there is no cached tree to invalidate.
type Resolver struct {
	db *gorm.DB
}

// NewResolver creates a Resolver.
func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// Stats summarizes an account's subtree.
type Stats struct {
	CountsByRole map[model.Role]int64 `json:"counts_by_role"`
	TotalBalance int64                `json:"total_balance"`
}

// Descendants returns every account reachable from rootID by following
// created_by edges downward, filtered to the given role. Creators may skip
// tiers (a super_distributor can create a user directly), so the walk is a
// full breadth-first traversal rather than a fixed-depth one. The result is
// de-duplicated by id and sorted by created_at descending, id descending on
// ties. An unknown rootID yields an empty set.
func (r *Resolver) Descendants(ctx context.Context, rootID int64, role model.Role) ([]model.Account, error) {
	all, err := r.collect(ctx, rootID)
	if err != nil {
		return nil, err
	}

	out := make([]model.Account, 0, len(all))
	for _, acc := range all {
		if acc.Role == role {
			out = append(out, acc)
		}
	}
	sortAccounts(out)
	return out, nil
}

// Stats returns per-role counts and the total balance across the whole
// subtree of rootID, every role included.
func (r *Resolver) Stats(ctx context.Context, rootID int64) (*Stats, error) {
	all, err := r.collect(ctx, rootID)
	if err != nil {
		return nil, err
	}

	st := &Stats{CountsByRole: make(map[model.Role]int64)}
	for _, acc := range all {
		st.CountsByRole[acc.Role]++
		st.TotalBalance += acc.Balance
	}
	return st, nil
}

// collect walks the created_by edges breadth-first with one batched query per
// frontier level. The seen map both de-duplicates and terminates the walk if
// the data ever contains a cycle.
func (r *Resolver) collect(ctx context.Context, rootID int64) ([]model.Account, error) {
	seen := map[int64]struct{}{rootID: {}}
	var result []model.Account

	frontier := []int64{rootID}
	for len(frontier) > 0 {
		var children []model.Account
		err := r.db.WithContext(ctx).
			Where("created_by IN ?", frontier).
			Find(&children).Error
		if err != nil {
			return nil, err
		}

		frontier = frontier[:0]
		for _, child := range children {
			if _, ok := seen[child.ID]; ok {
				continue
			}
			seen[child.ID] = struct{}{}
			result = append(result, child)
			frontier = append(frontier, child.ID)
		}
	}
	return result, nil
}

func sortAccounts(accs []model.Account) {
	sort.Slice(accs, func(i, j int) bool {
		if accs[i].CreatedAt.Equal(accs[j].CreatedAt) {
			return accs[i].ID > accs[j].ID
		}
		return accs[i].CreatedAt.After(accs[j].CreatedAt)
	})
}
