package lawyers

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/aldoetobex/falacomigo-backend/pkg/apperr"
	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

var (
	ErrNoLawyerAvailable = apperr.NotFound("NO_LAWYER_AVAILABLE", "no lawyer available for topic")
	ErrLawyerNotFound    = apperr.NotFound("LAWYER_NOT_FOUND", "lawyer not found")
	ErrLawyerUnavailable = apperr.Conflict("LAWYER_UNAVAILABLE", "lawyer is not active or not verified")
	ErrNotSelf           = apperr.Forbidden("NOT_SELF", "lawyers can only change their own presence")
	ErrInvalidLawyerID   = apperr.InvalidInput("INVALID_LAWYER_ID", "selectedLawyerId must be a UUID or \"auto\"")
)

// SelectAuto is the selection value that asks the resolver to pick.
const SelectAuto = "auto"

// Resolver picks the lawyer an order will be bound to.
type Resolver struct{ db *gorm.DB }

func NewResolver(db *gorm.DB) *Resolver { return &Resolver{db: db} }

// Resolve handles both selection modes: empty/"auto" picks from the directory,
// anything else must be the ID of an existing lawyer.
func (r *Resolver) Resolve(ctx context.Context, selection string, topic models.Topic) (*models.Lawyer, error) {
	sel := strings.TrimSpace(selection)
	if sel == "" || strings.EqualFold(sel, SelectAuto) {
		return r.Auto(ctx, topic)
	}
	id, err := uuid.Parse(sel)
	if err != nil {
		return nil, ErrInvalidLawyerID
	}
	return r.Manual(ctx, id)
}

// Auto returns the best active, verified lawyer whose specialty matches the
// topic name. Online lawyers are preferred; when none is online the presence
// filter is dropped. Higher rating wins, then the lighter caseload.
func (r *Resolver) Auto(ctx context.Context, topic models.Topic) (*models.Lawyer, error) {
	l, err := r.pick(ctx, topic, true)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		l, err = r.pick(ctx, topic, false)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoLawyerAvailable
	}
	if err != nil {
		return nil, errors.Wrap(err, "resolve lawyer")
	}
	return l, nil
}

func (r *Resolver) pick(ctx context.Context, topic models.Topic, onlineOnly bool) (*models.Lawyer, error) {
	q := r.db.WithContext(ctx).
		Where("LOWER(specialty) = LOWER(?)", strings.TrimSpace(topic.Name)).
		Where("is_active = ? AND verification_status = ?", true, models.VerificationVerified)
	if onlineOnly {
		q = q.Where("is_online = ?", true)
	}

	var l models.Lawyer
	err := q.Order("rating DESC").
		Order("cases_completed ASC").
		Order("created_at ASC").
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Manual loads the lawyer the client chose. Specialty and presence are not
// checked; eligibility is enforced when the lawyer is bound.
func (r *Resolver) Manual(ctx context.Context, id uuid.UUID) (*models.Lawyer, error) {
	var l models.Lawyer
	err := r.db.WithContext(ctx).First(&l, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLawyerNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load lawyer")
	}
	return &l, nil
}
