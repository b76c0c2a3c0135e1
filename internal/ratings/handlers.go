package ratings

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/aldoetobex/falacomigo-backend/internal/auth"
	"github.com/aldoetobex/falacomigo-backend/internal/lawyers"
	"github.com/aldoetobex/falacomigo-backend/internal/orders"
	"github.com/aldoetobex/falacomigo-backend/pkg/models"
	"github.com/aldoetobex/falacomigo-backend/pkg/sanitize"
	"github.com/aldoetobex/falacomigo-backend/pkg/utils"
	"github.com/aldoetobex/falacomigo-backend/pkg/validation"
)

// ===== DTOs =====

type SubmitRequest struct {
	Stars   int    `json:"stars"`
	Comment string `json:"comment" validate:"max=1000"`
}

type SubmitResponse struct {
	ID           uuid.UUID          `json:"id"`
	OrderID      uuid.UUID          `json:"orderId"`
	LawyerID     uuid.UUID          `json:"lawyerId"`
	Stars        int                `json:"stars"`
	Comment      string             `json:"comment,omitempty"`
	OrderStatus  models.OrderStatus `json:"orderStatus"`
	LawyerRating float64            `json:"lawyerRating"`
	TotalReviews int                `json:"totalReviews"`
	CreatedAt    time.Time          `json:"createdAt"`
}

type RatingItem struct {
	Stars      int       `json:"stars"`
	Comment    string    `json:"comment,omitempty"`
	ClientName string    `json:"clientName"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Summary struct {
	Average      float64        `json:"average"`
	TotalReviews int            `json:"totalReviews"`
	Distribution map[string]int `json:"distribution"`
}

type ListResponse struct {
	models.Page[RatingItem]
	Summary Summary `json:"summary"`
}

type Handler struct {
	db        *gorm.DB
	finalizer *Finalizer
}

func NewHandler(db *gorm.DB, f *Finalizer) *Handler { return &Handler{db: db, finalizer: f} }

// Submit Rating godoc
// @Summary      Rate consultation
// @Description  The ordering client rates a finished consultation once
// @Tags         ratings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true  "Order ID"
// @Param        payload  body  SubmitRequest  true  "rating"
// @Success      201  {object}  SubmitResponse
// @Failure      400  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "already rated"
// @Router       /consultations/{id}/rating [post]
func (h *Handler) Submit(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return orders.ErrOrderNotFound
	}
	var in SubmitRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	res, err := h.finalizer.Submit(c.UserContext(), auth.MustCaller(c), id, in.Stars, in.Comment)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(SubmitResponse{
		ID:           res.Rating.ID,
		OrderID:      res.Rating.OrderID,
		LawyerID:     res.Rating.LawyerID,
		Stars:        res.Rating.Stars,
		Comment:      res.Rating.Comment,
		OrderStatus:  res.Order.Status,
		LawyerRating: res.LawyerRating,
		TotalReviews: res.TotalReviews,
		CreatedAt:    res.Rating.CreatedAt,
	})
}

// List Lawyer Ratings godoc
// @Summary      Lawyer reviews
// @Description  Public reviews with summary; contact details in comments are redacted
// @Tags         ratings
// @Produce      json
// @Param        id        path  string  true   "Lawyer ID"
// @Param        page      query int     false  "page"
// @Param        pageSize  query int     false  "pageSize"
// @Success      200  {object}  ListResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /lawyers/{id}/ratings [get]
func (h *Handler) ListForLawyer(c *fiber.Ctx) error {
	lawyerID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return lawyers.ErrLawyerNotFound
	}
	page, size := utils.ParsePage(c)
	db := h.db.WithContext(c.UserContext())

	var l models.Lawyer
	if err := db.Select("id", "rating", "total_reviews").First(&l, "id = ?", lawyerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return lawyers.ErrLawyerNotFound
		}
		return errors.Wrap(err, "load lawyer")
	}

	// Distribution 1..5
	type bucket struct {
		Stars int
		N     int
	}
	var buckets []bucket
	if err := db.Model(&models.Rating{}).
		Select("stars, COUNT(*) AS n").
		Where("lawyer_id = ?", lawyerID).
		Group("stars").
		Scan(&buckets).Error; err != nil {
		return errors.Wrap(err, "rating distribution")
	}
	dist := map[string]int{"1": 0, "2": 0, "3": 0, "4": 0, "5": 0}
	total := 0
	for _, b := range buckets {
		dist[strconv.Itoa(b.Stars)] = b.N
		total += b.N
	}

	// Page of reviews with the client's name
	type row struct {
		Stars     int
		Comment   string
		FullName  string
		CreatedAt time.Time
	}
	rows := make([]row, 0, size)
	if err := db.Table("ratings").
		Select("ratings.stars, ratings.comment, users.full_name, ratings.created_at").
		Joins("LEFT JOIN users ON users.id = ratings.client_id").
		Where("ratings.lawyer_id = ?", lawyerID).
		Order("ratings.created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Scan(&rows).Error; err != nil {
		return errors.Wrap(err, "list ratings")
	}

	items := make([]RatingItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, RatingItem{
			Stars:      r.Stars,
			Comment:    sanitize.RedactPII(r.Comment),
			ClientName: firstName(r.FullName),
			CreatedAt:  r.CreatedAt,
		})
	}

	return c.JSON(ListResponse{
		Page: models.NewPage(items, page, size, int64(total)),
		Summary: Summary{
			Average:      l.Rating,
			TotalReviews: l.TotalReviews,
			Distribution: dist,
		},
	})
}

// firstName keeps reviews attributable without exposing the full name.
func firstName(full string) string {
	for i, r := range full {
		if r == ' ' {
			return full[:i]
		}
	}
	if full == "" {
		return "Cliente"
	}
	return full
}
