package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle status of a booking
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "PENDING"
	BookingStatusConfirmed  BookingStatus = "CONFIRMED"
	BookingStatusInProgress BookingStatus = "IN_PROGRESS"
	BookingStatusCompleted  BookingStatus = "COMPLETED"
	BookingStatusCancelled  BookingStatus = "CANCELLED"
	BookingStatusRefunded   BookingStatus = "REFUNDED"
)

// bookingTransitions lists the allowed next states for each booking status
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:    {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed:  {BookingStatusInProgress, BookingStatusCancelled},
	BookingStatusInProgress: {BookingStatusCompleted},
	BookingStatusCancelled:  {BookingStatusRefunded},
}

// CanTransitionTo reports whether a booking may move from s to next
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known booking status
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusInProgress,
		BookingStatusCompleted, BookingStatusCancelled, BookingStatusRefunded:
		return true
	}
	return false
}

// PaymentStatus represents the payment status of a booking or a payment attempt
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusProcessing        PaymentStatus = "PROCESSING"
	PaymentStatusCompleted         PaymentStatus = "COMPLETED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// IsTerminal reports whether no further gateway updates apply
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed ||
		s == PaymentStatusRefunded || s == PaymentStatusPartiallyRefunded
}

// PaymentType is the payment plan chosen at booking time
type PaymentType string

const (
	PaymentTypeFull    PaymentType = "FULL"
	PaymentTypeDeposit PaymentType = "DEPOSIT"
)

// Booking is the central transactional record for a tour reservation
type Booking struct {
	ID               uuid.UUID `json:"id" db:"id"`
	BookingReference string    `json:"bookingReference" db:"booking_reference"`
	UserID           uuid.UUID `json:"userId" db:"user_id"`
	TourID           uuid.UUID `json:"tourId" db:"tour_id"`
	AgentID          uuid.UUID `json:"agentId" db:"agent_id"`

	StartDate time.Time `json:"startDate" db:"start_date"`
	EndDate   time.Time `json:"endDate" db:"end_date"`
	Adults    int       `json:"adults" db:"adults"`
	Children  int       `json:"children" db:"children"`
	Infants   int       `json:"infants" db:"infants"`

	// Money breakdown; TotalAmount = Base + Accommodation + Activities + Tax - Discount
	BaseAmount          float64 `json:"baseAmount" db:"base_amount"`
	AccommodationAmount float64 `json:"accommodationAmount" db:"accommodation_amount"`
	ActivitiesAmount    float64 `json:"activitiesAmount" db:"activities_amount"`
	TaxAmount           float64 `json:"taxAmount" db:"tax_amount"`
	DiscountAmount      float64 `json:"discountAmount" db:"discount_amount"`
	TotalAmount         float64 `json:"totalAmount" db:"total_amount"`
	PlatformCommission  float64 `json:"platformCommission" db:"platform_commission"`
	AgentEarnings       float64 `json:"agentEarnings" db:"agent_earnings"`
	Currency            string  `json:"currency" db:"currency"`

	Status        BookingStatus `json:"status" db:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus" db:"payment_status"`

	// Payment plan
	PaymentType    PaymentType `json:"paymentType" db:"payment_type"`
	DepositAmount  *float64    `json:"depositAmount" db:"deposit_amount"`
	BalanceAmount  *float64    `json:"balanceAmount" db:"balance_amount"`
	BalanceDueDate *time.Time  `json:"balanceDueDate" db:"balance_due_date"`

	// Contact
	ContactName     string  `json:"contactName" db:"contact_name"`
	ContactEmail    string  `json:"contactEmail" db:"contact_email"`
	ContactPhone    string  `json:"contactPhone" db:"contact_phone"`
	SpecialRequests *string `json:"specialRequests,omitempty" db:"special_requests"`

	CancelledAt *time.Time `json:"cancelledAt,omitempty" db:"cancelled_at"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`

	Accommodations []BookingAccommodation `json:"accommodations,omitempty" db:"-"`
	Activities     []BookingActivity      `json:"activities,omitempty" db:"-"`
}

// BookingAccommodation ties a booking day to an accommodation option
type BookingAccommodation struct {
	ID                      uuid.UUID `json:"id" db:"id"`
	BookingID               uuid.UUID `json:"bookingId" db:"booking_id"`
	AccommodationOptionID   uuid.UUID `json:"accommodationOptionId" db:"accommodation_option_id"`
	DayNumber               int       `json:"dayNumber" db:"day_number"`
	Rooms                   int       `json:"rooms" db:"rooms"`
	PricePerNight           float64   `json:"pricePerNight" db:"price_per_night"`
	AccommodationOptionName string    `json:"name,omitempty" db:"accommodation_option_name"`
}

// BookingActivity ties a booking to an activity add-on with a quantity
type BookingActivity struct {
	ID              uuid.UUID `json:"id" db:"id"`
	BookingID       uuid.UUID `json:"bookingId" db:"booking_id"`
	ActivityAddonID uuid.UUID `json:"activityAddonId" db:"activity_addon_id"`
	Quantity        int       `json:"quantity" db:"quantity"`
	UnitPrice       float64   `json:"unitPrice" db:"unit_price"`
	ActivityName    string    `json:"name,omitempty" db:"activity_name"`
}

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// ContactInfo is the traveler contact block of a booking request
type ContactInfo struct {
	Name            string `json:"name" binding:"required,max=200"`
	Email           string `json:"email" binding:"required,email"`
	Phone           string `json:"phone" binding:"required,max=32"`
	SpecialRequests string `json:"specialRequests" binding:"max=2000"`
}

// PricingInput is the client-computed price breakdown. It is only a display
// hint; the server recomputes every component from the catalog.
type PricingInput struct {
	BaseTotal          float64  `json:"baseTotal" binding:"gte=0"`
	ChildTotal         float64  `json:"childTotal" binding:"gte=0"`
	AccommodationTotal float64  `json:"accommodationTotal" binding:"gte=0"`
	AddonsTotal        float64  `json:"addonsTotal" binding:"gte=0"`
	ServiceFee         float64  `json:"serviceFee" binding:"gte=0"`
	Total              float64  `json:"total" binding:"gte=0"`
	Discount           *float64 `json:"discount,omitempty" binding:"omitempty,gte=0"`
}

// AddonSelection is one activity add-on requested with a quantity
type AddonSelection struct {
	ID       string `json:"id" binding:"required,uuid"`
	Quantity int    `json:"quantity" binding:"gte=0"`
}

// CreateBookingRequest is the body of POST /api/bookings
type CreateBookingRequest struct {
	TourID         string            `json:"tourId" binding:"required,uuid"`
	StartDate      string            `json:"startDate" binding:"required,booking_date"`
	EndDate        string            `json:"endDate" binding:"required,booking_date"`
	Adults         int               `json:"adults" binding:"required,min=1,max=100"`
	Children       int               `json:"children" binding:"gte=0,max=100"`
	Infants        int               `json:"infants" binding:"gte=0,max=100"`
	Accommodations map[string]string `json:"accommodations"` // dayNumber -> accommodationOptionId
	Addons         []AddonSelection  `json:"addons" binding:"dive"`
	Contact        ContactInfo       `json:"contact"`
	Pricing        PricingInput      `json:"pricing"`
	PaymentType    PaymentType       `json:"paymentType" binding:"omitempty,oneof=FULL DEPOSIT"`
	DepositAmount  *float64          `json:"depositAmount,omitempty" binding:"omitempty,gt=0"`
	BalanceAmount  *float64          `json:"balanceAmount,omitempty" binding:"omitempty,gte=0"`
}

// BookingResponse is returned after a booking is created
type BookingResponse struct {
	ID               uuid.UUID     `json:"id"`
	BookingReference string        `json:"bookingReference"`
	TourTitle        string        `json:"tourTitle"`
	AgentName        string        `json:"agentName"`
	StartDate        string        `json:"startDate"`
	EndDate          string        `json:"endDate"`
	TotalAmount      float64       `json:"totalAmount"`
	Currency         string        `json:"currency"`
	Status           BookingStatus `json:"status"`
	PaymentStatus    PaymentStatus `json:"paymentStatus"`
	PaymentType      PaymentType   `json:"paymentType"`
	DepositAmount    *float64      `json:"depositAmount"`
	BalanceAmount    *float64      `json:"balanceAmount"`
	BalanceDueDate   *string       `json:"balanceDueDate"`
}

// BookingListItem is a booking with a short tour summary, used by GET /api/bookings
type BookingListItem struct {
	Booking
	TourTitle       string  `json:"tourTitle" db:"tour_title"`
	TourDestination string  `json:"tourDestination" db:"tour_destination"`
	TourCountry     string  `json:"tourCountry" db:"tour_country"`
	TourImageURL    *string `json:"tourImageUrl,omitempty" db:"tour_image_url"`
}

// UpdateBookingStatusRequest is the body of PATCH /api/bookings/:id/status
type UpdateBookingStatusRequest struct {
	Status BookingStatus `json:"status" binding:"required,oneof=CONFIRMED IN_PROGRESS COMPLETED CANCELLED REFUNDED"`
}
