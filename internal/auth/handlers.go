package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/falacomigo-backend/pkg/models"
	"github.com/aldoetobex/falacomigo-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for /auth/register (clients only; lawyers are onboarded by admins)
type RegisterRequest struct {
	FullName string `json:"fullName" validate:"required,min=2,max=80"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Phone    string `json:"phone" validate:"omitempty,mzphone"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Request body for /auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required"`
	// AsLawyer selects the lawyer directory (professional e-mail) instead of users
	AsLawyer bool `json:"asLawyer"`
}

// Standard auth response
type AuthResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// Profile response for /auth/me
type ProfileResponse struct {
	ID        uuid.UUID   `json:"id"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	FullName  string      `json:"fullName"`
	Phone     string      `json:"phone,omitempty"`
	Specialty string      `json:"specialty,omitempty"`
	OAMNumber string      `json:"oamNumber,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

/* ============================== Handler ================================= */

type Handler struct {
	db     *gorm.DB
	tokens *Tokens
}

func NewHandler(db *gorm.DB, tokens *Tokens) *Handler { return &Handler{db: db, tokens: tokens} }

/* ============================== Register ================================ */

// @Summary      Register
// @Description  Register a new client account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  RegisterRequest  true  "Register payload"
// @Success      201      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      409      {object}  models.ErrorResponse  "email already exists"
// @Router       /auth/register [post]
func (h *Handler) Register(c *fiber.Ctx) error {
	var in RegisterRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	// Normalize email
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)

	// Validate request (Laravel-like error shape)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}

	u := models.User{
		Email:        in.Email,
		PasswordHash: string(hash),
		FullName:     in.FullName,
		Phone:        in.Phone,
		IsActive:     true,
	}
	if err := h.db.WithContext(c.UserContext()).Create(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fiber.NewError(fiber.StatusConflict, "email already exists")
		}
		return errors.Wrap(err, "create user")
	}

	token, err := h.tokens.Issue(u.ID, u.Role())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(AuthResponse{Token: token, Role: string(u.Role())})
}

/* ================================ Login ================================= */

// @Summary      Login
// @Description  Authenticate a client, admin or lawyer and receive a JWT
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  LoginRequest  true  "Login payload"
// @Success      200      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      401      {object}  models.ErrorResponse
// @Router       /auth/login [post]
func (h *Handler) Login(c *fiber.Ctx) error {
	var in LoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	db := h.db.WithContext(c.UserContext())

	var (
		id   uuid.UUID
		role models.Role
		hash string
	)
	if in.AsLawyer {
		var l models.Lawyer
		if err := db.Where("professional_email = ?", in.Email).First(&l).Error; err != nil {
			return fiber.ErrUnauthorized
		}
		if !l.IsActive || l.PasswordHash == "" {
			return fiber.ErrUnauthorized
		}
		id, role, hash = l.ID, models.RoleLawyer, l.PasswordHash
	} else {
		var u models.User
		if err := db.Where("email = ?", in.Email).First(&u).Error; err != nil {
			return fiber.ErrUnauthorized
		}
		if !u.IsActive {
			return fiber.ErrUnauthorized
		}
		id, role, hash = u.ID, u.Role(), u.PasswordHash
	}

	// Verify password
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(in.Password)) != nil {
		return fiber.ErrUnauthorized
	}

	token, err := h.tokens.Issue(id, role)
	if err != nil {
		return err
	}
	return c.JSON(AuthResponse{Token: token, Role: string(role)})
}

/* ================================= Me =================================== */

// @Summary      Get current profile
// @Description  Return the profile of the authenticated client, admin or lawyer
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  ProfileResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /auth/me [get]
func (h *Handler) Me(c *fiber.Ctx) error {
	caller := MustCaller(c)
	db := h.db.WithContext(c.UserContext())

	if caller.IsLawyer() {
		var l models.Lawyer
		if err := db.First(&l, "id = ?", caller.ID).Error; err != nil {
			return fiber.ErrUnauthorized
		}
		return c.JSON(ProfileResponse{
			ID:        l.ID,
			Email:     l.ProfessionalEmail,
			Role:      models.RoleLawyer,
			FullName:  l.FullName,
			Phone:     l.ProfessionalPhone,
			Specialty: l.Specialty,
			OAMNumber: l.OAMNumber,
			CreatedAt: l.CreatedAt,
		})
	}

	var u models.User
	if err := db.First(&u, "id = ?", caller.ID).Error; err != nil {
		return fiber.ErrUnauthorized
	}
	return c.JSON(ProfileResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role(),
		FullName:  u.FullName,
		Phone:     u.Phone,
		CreatedAt: u.CreatedAt,
	})
}
