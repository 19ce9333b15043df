package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/arcadia-ops/backoffice/apperr"
	"github.com/arcadia-ops/backoffice/authz"
	"github.com/arcadia-ops/backoffice/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service moves and adjusts credit. Every mutation runs inside a single DB
// transaction with a guarded update, so a balance can never go negative even
// under concurrent requests, and a transfer is never applied partially.
type Service struct {
	db     *gorm.DB
	engine *authz.Engine
	logger *zap.Logger
}

// NewService creates a ledger Service.
func NewService(db *gorm.DB, engine *authz.Engine, logger *zap.Logger) *Service {
	return &Service{db: db, engine: engine, logger: logger}
}

// Adjust adds delta (possibly negative) to the target's balance. The actor
// must be allowed to perform credit operations on the target's role class.
// The resulting balance must remain non-negative.
func (s *Service) Adjust(ctx context.Context, actorID, targetID, delta int64) (*model.Account, error) {
	if delta == 0 {
		return nil, apperr.Validationf("amount must be non-zero")
	}

	target, err := s.fetch(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if _, err := s.engine.Authorize(ctx, actorID, target, authz.OpCredit); err != nil {
		return nil, err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Account{}).
			Where("id = ? AND balance + ? >= 0", targetID, delta).
			Update("balance", gorm.Expr("balance + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// The account existed a moment ago; the guard rejected the delta.
			return fmt.Errorf("balance would go negative: %w", apperr.ErrInsufficientBalance)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.logger.Info("credit adjusted",
		zap.Int64("actor_id", actorID),
		zap.Int64("target_id", targetID),
		zap.Int64("delta", delta))
	return s.fetch(ctx, targetID)
}

// Transfer moves amount credits from the actor's own balance to the target.
// The debit and credit are one transaction: either both apply or neither.
func (s *Service) Transfer(ctx context.Context, actorID, targetID, amount int64) (*model.Account, *model.Account, error) {
	if amount <= 0 {
		return nil, nil, apperr.Validationf("transfer amount must be positive")
	}
	if actorID == targetID {
		return nil, nil, apperr.Validationf("cannot transfer to yourself")
	}

	target, err := s.fetch(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.engine.Authorize(ctx, actorID, target, authz.OpCredit); err != nil {
		return nil, nil, err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Guarded debit: succeeds only while the source balance covers the
		// amount, so concurrent transfers cannot overdraw.
		res := tx.Model(&model.Account{}).
			Where("id = ? AND balance >= ?", actorID, amount).
			Update("balance", gorm.Expr("balance - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("balance below %d: %w", amount, apperr.ErrInsufficientBalance)
		}

		res = tx.Model(&model.Account{}).
			Where("id = ?", targetID).
			Update("balance", gorm.Expr("balance + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Target vanished mid-flight; roll the debit back.
			return fmt.Errorf("account %d: %w", targetID, apperr.ErrNotFound)
		}
		return nil
	})
	if txErr != nil {
		return nil, nil, txErr
	}

	s.logger.Info("credit transferred",
		zap.Int64("from_id", actorID),
		zap.Int64("to_id", targetID),
		zap.Int64("amount", amount))

	source, err := s.fetch(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}
	dest, err := s.fetch(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}
	return source, dest, nil
}

func (s *Service) fetch(ctx context.Context, id int64) (*model.Account, error) {
	var acc model.Account
	err := s.db.WithContext(ctx).First(&acc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("account %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}
