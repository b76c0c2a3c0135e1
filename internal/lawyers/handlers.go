package lawyers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aldoetobex/falacomigo-backend/internal/auth"
	"github.com/aldoetobex/falacomigo-backend/pkg/models"
	"github.com/aldoetobex/falacomigo-backend/pkg/sanitize"
	"github.com/aldoetobex/falacomigo-backend/pkg/utils"
	"github.com/aldoetobex/falacomigo-backend/pkg/validation"
)

// ===== DTOs =====

type LawyerResponse struct {
	ID                 uuid.UUID                 `json:"id"`
	FullName           string                    `json:"fullName"`
	Specialty          string                    `json:"specialty"`
	Specializations    []string                  `json:"specializations"`
	OAMNumber          string                    `json:"oamNumber"`
	Bio                string                    `json:"bio,omitempty"`
	IsOnline           bool                      `json:"isOnline"`
	VerificationStatus models.VerificationStatus `json:"verificationStatus"`
	Rating             float64                   `json:"rating"`
	TotalReviews       int                       `json:"totalReviews"`
	CasesCompleted     int                       `json:"casesCompleted"`
}

type CreateLawyerRequest struct {
	FullName          string   `json:"fullName" validate:"required,min=2,max=80"`
	Specialty         string   `json:"specialty" validate:"required,max=80"`
	Specializations   []string `json:"specializations" validate:"max=10,dive,max=80"`
	OAMNumber         string   `json:"oamNumber" validate:"required,oam"`
	ProfessionalEmail string   `json:"professionalEmail" validate:"required,email,max=120"`
	ProfessionalPhone string   `json:"professionalPhone" validate:"omitempty,mzphone"`
	Password          string   `json:"password" validate:"required,min=6,max=72"`
	Bio               string   `json:"bio" validate:"max=2000"`
}

type OnlineStatusRequest struct {
	IsOnline *bool `json:"isOnline" validate:"required"`
}

type VerificationRequest struct {
	Status string `json:"status" validate:"required,oneof=pending_verification verified rejected"`
}

func toResponse(l *models.Lawyer, bioMax int) LawyerResponse {
	specs := []string(l.Specializations)
	if specs == nil {
		specs = []string{}
	}
	bio := l.Bio
	if bioMax > 0 {
		bio = sanitize.Summary(bio, bioMax)
	}
	return LawyerResponse{
		ID:                 l.ID,
		FullName:           l.FullName,
		Specialty:          l.Specialty,
		Specializations:    specs,
		OAMNumber:          l.OAMNumber,
		Bio:                bio,
		IsOnline:           l.IsOnline,
		VerificationStatus: l.VerificationStatus,
		Rating:             l.Rating,
		TotalReviews:       l.TotalReviews,
		CasesCompleted:     l.CasesCompleted,
	}
}

type Handler struct{ db *gorm.DB }

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

// List Lawyers godoc
// @Summary      List lawyers
// @Description  Public directory of active, verified lawyers (paginated)
// @Tags         lawyers
// @Produce      json
// @Param        specialty query string false "exact specialty"
// @Param        available  query bool    false "only online lawyers"
// @Param        min_rating query number  false "minimum rating"
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Success      200  {object}  models.Page[LawyerResponse]
// @Router       /lawyers [get]
func (h *Handler) List(c *fiber.Ctx) error {
	page, size := utils.ParsePage(c)

	q := h.db.WithContext(c.UserContext()).Model(&models.Lawyer{}).
		Where("is_active = ? AND verification_status = ?", true, models.VerificationVerified)
	if sp := strings.TrimSpace(c.Query("specialty")); sp != "" {
		q = q.Where("specialty = ?", sp)
	}
	if c.QueryBool("available") {
		q = q.Where("is_online = ?", true)
	}
	if mr := c.QueryFloat("min_rating"); mr > 0 {
		q = q.Where("rating >= ?", mr)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return errors.Wrap(err, "count lawyers")
	}

	var rows []models.Lawyer
	if err := q.Order("rating DESC").Order("full_name ASC").
		Offset((page - 1) * size).Limit(size).
		Find(&rows).Error; err != nil {
		return errors.Wrap(err, "list lawyers")
	}

	items := make([]LawyerResponse, 0, len(rows))
	for i := range rows {
		items = append(items, toResponse(&rows[i], 160))
	}
	return c.JSON(models.NewPage(items, page, size, total))
}

// Get Lawyer godoc
// @Summary      Get lawyer
// @Tags         lawyers
// @Produce      json
// @Param        id  path  string  true  "Lawyer ID"
// @Success      200  {object}  LawyerResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /lawyers/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrLawyerNotFound
	}
	var l models.Lawyer
	if err := h.db.WithContext(c.UserContext()).First(&l, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLawyerNotFound
		}
		return errors.Wrap(err, "load lawyer")
	}
	return c.JSON(toResponse(&l, 0))
}

// Update Online Status godoc
// @Summary      Set my presence
// @Description  Lawyer toggles whether auto-assignment may pick them
// @Tags         lawyers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string               true  "Lawyer ID"
// @Param        payload  body  OnlineStatusRequest  true  "presence"
// @Success      200  {object}  LawyerResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Router       /lawyers/{id}/online-status [patch]
func (h *Handler) UpdateOnlineStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrLawyerNotFound
	}
	caller := auth.MustCaller(c)
	if caller.ID != id {
		return ErrNotSelf
	}

	var in OnlineStatusRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	db := h.db.WithContext(c.UserContext())

	res := db.Model(&models.Lawyer{}).Where("id = ?", id).
		Updates(map[string]any{"is_online": *in.IsOnline, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return errors.Wrap(res.Error, "update presence")
	}
	if res.RowsAffected == 0 {
		return ErrLawyerNotFound
	}

	var l models.Lawyer
	if err := db.First(&l, "id = ?", id).Error; err != nil {
		return errors.Wrap(err, "reload lawyer")
	}
	return c.JSON(toResponse(&l, 0))
}

// Create Lawyer godoc
// @Summary      Onboard lawyer
// @Description  Admin registers a lawyer; verification starts as pending
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateLawyerRequest  true  "lawyer"
// @Success      201  {object}  LawyerResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /admin/lawyers [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateLawyerRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	in.ProfessionalEmail = strings.ToLower(strings.TrimSpace(in.ProfessionalEmail))
	in.OAMNumber = strings.ToUpper(strings.TrimSpace(in.OAMNumber))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}

	l := models.Lawyer{
		FullName:           strings.TrimSpace(in.FullName),
		Specialty:          strings.TrimSpace(in.Specialty),
		Specializations:    datatypes.JSONSlice[string](in.Specializations),
		OAMNumber:          in.OAMNumber,
		ProfessionalEmail:  in.ProfessionalEmail,
		ProfessionalPhone:  in.ProfessionalPhone,
		PasswordHash:       string(hash),
		Bio:                strings.TrimSpace(in.Bio),
		IsActive:           true,
		VerificationStatus: models.VerificationPending,
	}
	if err := h.db.WithContext(c.UserContext()).Create(&l).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fiber.NewError(fiber.StatusConflict, "OAM number or professional email already registered")
		}
		return errors.Wrap(err, "create lawyer")
	}
	return c.Status(fiber.StatusCreated).JSON(toResponse(&l, 0))
}

// Update Verification godoc
// @Summary      Review lawyer credentials
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string               true  "Lawyer ID"
// @Param        payload  body  VerificationRequest  true  "decision"
// @Success      200  {object}  LawyerResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /admin/lawyers/{id}/verification [patch]
func (h *Handler) UpdateVerification(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrLawyerNotFound
	}
	var in VerificationRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	db := h.db.WithContext(c.UserContext())
	res := db.Model(&models.Lawyer{}).Where("id = ?", id).
		Updates(map[string]any{"verification_status": in.Status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return errors.Wrap(res.Error, "update verification")
	}
	if res.RowsAffected == 0 {
		return ErrLawyerNotFound
	}

	var l models.Lawyer
	if err := db.First(&l, "id = ?", id).Error; err != nil {
		return errors.Wrap(err, "reload lawyer")
	}
	return c.JSON(toResponse(&l, 0))
}
