package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/aldoetobex/falacomigo-backend/pkg/models"
	"github.com/aldoetobex/falacomigo-backend/pkg/utils"
)

// Transition moves o along ev inside tx and records a history row. The update
// only matches the status o was read with, so a concurrent change loses with
// ErrStaleState instead of overwriting.
func Transition(
	ctx context.Context,
	tx *gorm.DB,
	o *models.Order,
	ev models.OrderEvent,
	actor uuid.UUID,
	reason string,
	now time.Time,
) error {
	to, ok := models.NextStatus(o.Status, ev)
	if !ok {
		return ErrIllegalTransition.WithMessage(fmt.Sprintf("cannot apply %s to an order in status %s", ev, o.Status))
	}

	if ev == models.EventLawyerBound {
		if o.PaymentStatus != models.PaymentConfirmed {
			return ErrPaymentNotConfirmed
		}
		var n int64
		if err := tx.WithContext(ctx).Model(&models.Assignment{}).Where("order_id = ?", o.ID).Count(&n).Error; err != nil {
			return errors.Wrap(err, "count assignments")
		}
		if n == 0 {
			return ErrNoAssignment
		}
	}

	res := tx.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", o.ID, o.Status).
		Updates(map[string]any{"status": to, "updated_at": now})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "apply %s", ev)
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}

	if err := utils.LogOrderHistory(ctx, tx, o.ID, actor, string(ev), o.Status, to, reason); err != nil {
		return err
	}

	o.Status = to
	o.UpdatedAt = now
	return nil
}
