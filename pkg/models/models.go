package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

/* =============================== Enums ================================== */

// Role defines the type of principal in the system.
type Role string

const (
	RoleClient Role = "client"
	RoleLawyer Role = "lawyer"
	RoleAdmin  Role = "admin"
)

// OrderStatus defines lifecycle states for a consultation order.
type OrderStatus string

const (
	OrderPendingPayment    OrderStatus = "pending_payment"
	OrderPendingAssignment OrderStatus = "pending_assignment"
	OrderAssigned          OrderStatus = "assigned"
	OrderInProgress        OrderStatus = "in_progress"
	OrderRatingPending     OrderStatus = "rating_pending"
	OrderCompleted         OrderStatus = "completed"
	OrderCancelled         OrderStatus = "cancelled"
)

// PaymentStatus is the payment state mirrored on an order, and the state the
// gateway reports for a transaction.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

// PayStatus defines lifecycle states for a ledger payment row.
type PayStatus string

const (
	PayPending   PayStatus = "pending"
	PayCompleted PayStatus = "completed"
	PayFailed    PayStatus = "failed"
)

// ConsultationType is how the consultation is delivered.
type ConsultationType string

const (
	ConsultationDigital ConsultationType = "digital"
	ConsultationPhone   ConsultationType = "phone"
)

// VerificationStatus tracks the OAM credential review of a lawyer.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending_verification"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// Payment methods stamped on orders and ledger rows.
const (
	MethodMpesa = "mpesa"
	MethodAuto  = "auto"
)

// PackageType distinguishes a first consultation from a follow-up.
const (
	PackageStandard = "STANDARD"
	PackageFollowUp = "FOLLOW_UP"
)

/* ============================ Value objects ============================= */

// Topic is the legal area a client picked.
type Topic struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Package is the priced consultation bundle a client picked.
type Package struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     string          `json:"type,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Duration int             `json:"duration,omitempty"`
	Unit     string          `json:"unit,omitempty"`
}

/* =============================== Entities =============================== */

// User represents a client or an administrator.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	FullName     string    `gorm:"not null"`
	Phone        string
	IsAdmin      bool `gorm:"not null;default:false"`
	IsActive     bool `gorm:"not null"`
	CreatedAt    time.Time
}

// Role reports the token role this user signs in with.
func (u *User) Role() Role {
	if u.IsAdmin {
		return RoleAdmin
	}
	return RoleClient
}

// Lawyer is a professional who can be bound to orders.
type Lawyer struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	FullName           string    `gorm:"not null"`
	Specialty          string    `gorm:"not null;index"`
	Specializations    datatypes.JSONSlice[string]
	OAMNumber          string `gorm:"column:oam_number;uniqueIndex;not null"`
	ProfessionalEmail  string `gorm:"uniqueIndex;not null"`
	ProfessionalPhone  string
	PasswordHash       string
	Bio                string             `gorm:"type:text"`
	IsOnline           bool               `gorm:"not null;default:false"`
	IsActive           bool               `gorm:"not null"`
	VerificationStatus VerificationStatus `gorm:"type:varchar(30);not null;default:'pending_verification'"`
	Rating             float64            `gorm:"not null;default:0"`
	TotalReviews       int                `gorm:"not null;default:0"`
	CasesCompleted     int                `gorm:"not null;default:0"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Eligible reports whether the lawyer may be bound to an order at all.
func (l *Lawyer) Eligible() bool {
	return l.IsActive && l.VerificationStatus == VerificationVerified
}

// Order is a client's request for a consultation.
type Order struct {
	ID                   uuid.UUID                 `gorm:"type:uuid;primaryKey"`
	HumanID              string                    `gorm:"type:varchar(16);uniqueIndex;not null"`
	ClientID             uuid.UUID                 `gorm:"type:uuid;not null;index"`
	Topic                datatypes.JSONType[Topic] `gorm:"not null"`
	Package              datatypes.JSONType[Package]
	ConsultationType     ConsultationType `gorm:"type:varchar(20);not null"`
	ClientPhone          string           `gorm:"not null"`
	Status               OrderStatus      `gorm:"type:varchar(30);not null;index"`
	PaymentStatus        PaymentStatus    `gorm:"type:varchar(20);not null"`
	PaymentMethod        string           `gorm:"type:varchar(20)"`
	TransactionReference string           `gorm:"type:varchar(40)"` // latest payment attempt
	ParentOrderID        *uuid.UUID       `gorm:"type:uuid;index"`
	TermsAccepted        bool             `gorm:"not null;default:false"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Assignment binds one lawyer to one order. Reassignment replaces the lawyer.
type Assignment struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	LawyerID   uuid.UUID `gorm:"type:uuid;not null;index"`
	AssignedAt time.Time `gorm:"not null"`
}

// Session records when the consultation itself ran.
type Session struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	AssignmentID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	StartTime    time.Time `gorm:"not null"`
	EndTime      *time.Time
}

// Payment is one M-Pesa payment attempt for an order.
type Payment struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderID               uuid.UUID       `gorm:"type:uuid;not null;index"`
	TransactionID         string          `gorm:"type:varchar(40);uniqueIndex;not null"`
	ProviderTransactionID string          `gorm:"type:varchar(64)"`
	ClientName            string          `gorm:"type:varchar(255)"`
	PhoneNumber           string          `gorm:"not null"`
	Amount                decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Method                string          `gorm:"type:varchar(20);not null"`
	Status                PayStatus       `gorm:"type:varchar(20);not null;index"`
	Description           string
	CreatedAt             time.Time `gorm:"autoCreateTime"`
	ConfirmedAt           *time.Time
}

// Rating is the single review a client leaves on a finished order.
type Rating struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderID   uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	LawyerID  uuid.UUID `gorm:"type:uuid;not null;index"`
	ClientID  uuid.UUID `gorm:"type:uuid;not null"`
	Stars     int       `gorm:"not null"`
	Comment   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// OrderHistory is an audit log entry for every order transition.
type OrderHistory struct {
	ID        uuid.UUID   `gorm:"type:uuid;primaryKey"`
	OrderID   uuid.UUID   `gorm:"type:uuid;not null;index"`
	ActorID   uuid.UUID   `gorm:"type:uuid;not null;index"` // uuid.Nil for system actions (webhooks, polling)
	Action    string      `gorm:"type:varchar(50);not null"`
	OldStatus OrderStatus `gorm:"type:varchar(30)"`
	NewStatus OrderStatus `gorm:"type:varchar(30)"`
	Reason    string      `gorm:"type:text"`
	CreatedAt time.Time   `gorm:"autoCreateTime"`
}

/* ================================ Hooks ================================= */

// Primary keys are generated client-side so the schema works on both
// Postgres and SQLite.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (u *User) BeforeCreate(*gorm.DB) error         { ensureID(&u.ID); return nil }
func (l *Lawyer) BeforeCreate(*gorm.DB) error       { ensureID(&l.ID); return nil }
func (o *Order) BeforeCreate(*gorm.DB) error        { ensureID(&o.ID); return nil }
func (a *Assignment) BeforeCreate(*gorm.DB) error   { ensureID(&a.ID); return nil }
func (s *Session) BeforeCreate(*gorm.DB) error      { ensureID(&s.ID); return nil }
func (p *Payment) BeforeCreate(*gorm.DB) error      { ensureID(&p.ID); return nil }
func (r *Rating) BeforeCreate(*gorm.DB) error       { ensureID(&r.ID); return nil }
func (h *OrderHistory) BeforeCreate(*gorm.DB) error { ensureID(&h.ID); return nil }

// All lists every entity for AutoMigrate.
func All() []any {
	return []any{
		&User{}, &Lawyer{}, &Order{}, &Assignment{}, &Session{},
		&Payment{}, &Rating{}, &OrderHistory{},
	}
}
