package utils

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

// LogOrderHistory inserts an audit record into order_histories.
// It must run on the same transaction as the change it describes, so the
// error is returned and rolls the change back with it.
func LogOrderHistory(
	ctx context.Context,
	tx *gorm.DB,
	orderID, actorID uuid.UUID,
	action string,
	oldS, newS models.OrderStatus,
	reason string,
) error {
	err := tx.WithContext(ctx).Create(&models.OrderHistory{
		OrderID:   orderID,
		ActorID:   actorID,
		Action:    action,
		OldStatus: oldS,
		NewStatus: newS,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}).Error
	return errors.Wrap(err, "log order history")
}

// ParsePage reads page/pageSize query values (1..50, default 10).
func ParsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return
}
