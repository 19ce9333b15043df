package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/arcadia-ops/backoffice/apperr"
	"github.com/arcadia-ops/backoffice/model"
	"gorm.io/gorm"
)

// Operation is an administrative action an actor may attempt on a target.
type Operation int

const (
	OpRead Operation = iota
	OpUpdate
	OpDelete
	OpBan
	OpUnban
	OpCredit
)

func (op Operation) String() string {
	switch op {
	case OpRead:
		return "read"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpBan:
		return "ban"
	case OpUnban:
		return "unban"
	case OpCredit:
		return "credit"
	default:
		return "unknown"
	}
}

// allowedTargets is the data-driven permission table: which target roles each
// actor role may administer. This is a role-set check, not a rank comparison:
// a super_distributor cannot act on another super_distributor even though the
// ranks are equal. Roles absent from the table (and unknown roles) are
// denied everything.
var allowedTargets = map[model.Role]map[model.Role]bool{
	model.RoleAdmin: {
		model.RoleAdmin:            true,
		model.RoleSuperDistributor: true,
		model.RoleDistributor:      true,
		model.RoleRetailer:         true,
		model.RoleUser:             true,
	},
	model.RoleSuperDistributor: {
		model.RoleDistributor: true,
		model.RoleRetailer:    true,
		model.RoleUser:        true,
	},
	model.RoleDistributor: {
		model.RoleRetailer: true,
		model.RoleUser:     true,
	},
	model.RoleRetailer: {
		model.RoleUser: true,
	},
	model.RoleUser: {},
}

// CanTarget reports whether the actor role may administer the target role.
func CanTarget(actor, target model.Role) bool {
	return allowedTargets[actor][target]
}

// Engine decides ALLOW/DENY for administrative operations. It always
// re-fetches the actor's current record, so a demoted or banned account loses
// access on its very next request regardless of token claims.
type Engine struct {
	db *gorm.DB
}

// NewEngine creates an Engine.
func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// Actor loads the live account record for an authenticated actor. A missing,
// banned or inactive actor is rejected.
func (e *Engine) Actor(ctx context.Context, actorID int64) (*model.Account, error) {
	var actor model.Account
	err := e.db.WithContext(ctx).First(&actor, actorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("actor %d: %w", actorID, apperr.ErrUnauthenticated)
	}
	if err != nil {
		return nil, err
	}
	if !actor.Usable() {
		return nil, fmt.Errorf("account disabled: %w", apperr.ErrForbidden)
	}
	return &actor, nil
}

// Authorize decides whether the actor may perform op on the target account.
// It returns the freshly loaded actor on ALLOW. The caller must have already
// established that the target exists; existence checks precede permission
// checks everywhere.
func (e *Engine) Authorize(ctx context.Context, actorID int64, target *model.Account, op Operation) (*model.Account, error) {
	actor, err := e.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	// Self-access: an actor may always read its own profile.
	if op == OpRead && actor.ID == target.ID {
		return actor, nil
	}

	if !CanTarget(actor.Role, target.Role) {
		return nil, fmt.Errorf("%s may not %s %s: %w",
			actor.Role, op, target.Role, apperr.ErrForbidden)
	}
	return actor, nil
}

// AuthorizeRole is the role-level variant used by tier listing and creation:
// may the actor administer accounts of the given role class at all.
func (e *Engine) AuthorizeRole(ctx context.Context, actorID int64, target model.Role) (*model.Account, error) {
	actor, err := e.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !CanTarget(actor.Role, target) {
		return nil, fmt.Errorf("%s may not administer %s accounts: %w",
			actor.Role, target, apperr.ErrForbidden)
	}
	return actor, nil
}
