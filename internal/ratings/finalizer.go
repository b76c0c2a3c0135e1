package ratings

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/falacomigo-backend/internal/events"
	"github.com/aldoetobex/falacomigo-backend/internal/orders"
	"github.com/aldoetobex/falacomigo-backend/pkg/apperr"
	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

var (
	ErrNotRaterOwned  = apperr.Forbidden("NOT_RATER_OWNED", "only the client who ordered can rate it")
	ErrAlreadyRated   = apperr.Conflict("ALREADY_RATED", "order already rated")
	ErrNotRateable    = apperr.Conflict("ORDER_NOT_RATEABLE", "order is not waiting for a rating")
	ErrInvalidStars   = apperr.InvalidInput("INVALID_STARS", "stars must be between 1 and 5")
	ErrCommentTooLong = apperr.InvalidInput("COMMENT_TOO_LONG", "comment must be at most 1000 characters")
)

const maxCommentLen = 1000

// Finalizer turns a client rating into a completed order and an updated
// lawyer reputation, all in one transaction.
type Finalizer struct {
	db     *gorm.DB
	events events.Publisher
	log    *zap.Logger
	now    func() time.Time
}

func NewFinalizer(db *gorm.DB, pub events.Publisher, log *zap.Logger) *Finalizer {
	return &Finalizer{
		db:     db,
		events: pub,
		log:    log,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Result is what Submit reports back.
type Result struct {
	Rating       models.Rating
	Order        models.Order
	LawyerRating float64
	TotalReviews int
}

// Submit records the rating for orderID. Checks run in a fixed order:
// existence, ownership, duplicate, assignment, status, stars.
func (f *Finalizer) Submit(ctx context.Context, caller models.Caller, orderID uuid.UUID, stars int, comment string) (*Result, error) {
	comment = strings.TrimSpace(comment)
	now := f.now()
	out := &Result{}

	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o := &out.Order
		if err := orders.LockOrder(tx, orderID, o); err != nil {
			return err
		}
		if o.ClientID != caller.ID {
			return ErrNotRaterOwned
		}

		var n int64
		if err := tx.Model(&models.Rating{}).Where("order_id = ?", o.ID).Count(&n).Error; err != nil {
			return errors.Wrap(err, "count ratings")
		}
		if n > 0 {
			return ErrAlreadyRated
		}

		var asg models.Assignment
		if err := tx.Where("order_id = ?", o.ID).First(&asg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return orders.ErrNoAssignment
			}
			return errors.Wrap(err, "load assignment")
		}

		if o.Status != models.OrderRatingPending {
			return ErrNotRateable
		}
		if stars < 1 || stars > 5 {
			return ErrInvalidStars
		}
		if len([]rune(comment)) > maxCommentLen {
			return ErrCommentTooLong
		}

		out.Rating = models.Rating{
			OrderID:   o.ID,
			LawyerID:  asg.LawyerID,
			ClientID:  caller.ID,
			Stars:     stars,
			Comment:   comment,
			CreatedAt: now,
		}
		if err := tx.Create(&out.Rating).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyRated
			}
			return errors.Wrap(err, "insert rating")
		}

		if err := orders.Transition(ctx, tx, o, models.EventRated, caller.ID, "", now); err != nil {
			return err
		}

		var avg sql.NullFloat64
		if err := tx.Model(&models.Rating{}).Where("lawyer_id = ?", asg.LawyerID).
			Select("AVG(stars)").Row().Scan(&avg); err != nil {
			return errors.Wrap(err, "average stars")
		}
		out.LawyerRating = roundRating(avg.Float64)

		if err := tx.Model(&models.Lawyer{}).Where("id = ?", asg.LawyerID).
			UpdateColumns(map[string]any{
				"rating":          out.LawyerRating,
				"total_reviews":   gorm.Expr("total_reviews + ?", 1),
				"cases_completed": gorm.Expr("cases_completed + ?", 1),
				"updated_at":      now,
			}).Error; err != nil {
			return errors.Wrap(err, "update lawyer reputation")
		}

		var l models.Lawyer
		if err := tx.Select("id", "total_reviews").First(&l, "id = ?", asg.LawyerID).Error; err != nil {
			return errors.Wrap(err, "reload lawyer")
		}
		out.TotalReviews = l.TotalReviews
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := events.ForOrder(events.OrderRated, &out.Order, now)
	ev.LawyerID = &out.Rating.LawyerID
	events.Emit(ctx, f.events, f.log, ev)

	f.log.Info("order rated",
		zap.String("order_id", out.Order.ID.String()),
		zap.Int("stars", stars),
		zap.Float64("lawyer_rating", out.LawyerRating),
	)
	return out, nil
}

// roundRating keeps one decimal place, half away from zero.
func roundRating(avg float64) float64 {
	return decimal.NewFromFloat(avg).Round(1).InexactFloat64()
}
