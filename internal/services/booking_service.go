package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safaritrails/booking-backend/internal/config"
	"github.com/safaritrails/booking-backend/internal/database"
	"github.com/safaritrails/booking-backend/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Actor is the authenticated caller of a service operation
type Actor struct {
	UserID uuid.UUID
	Email  string
	Roles  []string
}

// HasRole checks if the actor has a specific role
func (a *Actor) HasRole(role string) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// BookingStore is the booking persistence used by BookingService
type BookingStore interface {
	CreateWithCapacityCheck(ctx context.Context, booking *models.Booking, guest *models.User, check database.CapacityCheck) error
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status models.BookingStatus, limit, offset int) ([]models.BookingListItem, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus) (bool, error)
}

// CatalogStore is the tour catalog used by BookingService
type CatalogStore interface {
	GetTourByID(ctx context.Context, id uuid.UUID) (*models.Tour, error)
	GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	GetAgentByUserID(ctx context.Context, userID uuid.UUID) (*models.Agent, error)
	GetAccommodationOptions(ctx context.Context, tourID uuid.UUID, ids []uuid.UUID) ([]models.AccommodationOption, error)
	GetActivityAddons(ctx context.Context, tourID uuid.UUID, ids []uuid.UUID) ([]models.ActivityAddon, error)
	DeleteTour(ctx context.Context, tourID uuid.UUID) (int, error)
}

// UserStore finds the existing user that owns a guest booking
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// BookingService creates and manages tour bookings
type BookingService struct {
	bookings   BookingStore
	catalog    CatalogStore
	users      UserStore
	references *ReferenceService
	cfg        config.BookingConfig
	logger     *logrus.Logger
	now        func() time.Time
}

// NewBookingService creates a new booking service
func NewBookingService(
	bookings BookingStore,
	catalog CatalogStore,
	users UserStore,
	cfg config.BookingConfig,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		bookings:   bookings,
		catalog:    catalog,
		users:      users,
		references: NewReferenceService(bookings),
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// ============================================================================
// CREATE
// ============================================================================

// CreateBooking validates a booking request against the catalog, prices it,
// and persists it with its line items. actor is nil for guest checkouts.
func (s *BookingService) CreateBooking(ctx context.Context, req *models.CreateBookingRequest, actor *Actor) (*models.BookingResponse, error) {
	tourID, err := uuid.Parse(req.TourID)
	if err != nil {
		return nil, ValidationError("Invalid tour ID").WithDetail("field", "tourId")
	}

	start, err := ParseBookingDate(req.StartDate)
	if err != nil {
		return nil, ValidationError("%s", err.Error()).WithDetail("field", "startDate")
	}
	end, err := ParseBookingDate(req.EndDate)
	if err != nil {
		return nil, ValidationError("%s", err.Error()).WithDetail("field", "endDate")
	}
	if err := ValidateDateRange(start, end, s.now()); err != nil {
		return nil, err
	}

	guests := req.Adults + req.Children
	if req.Adults < 1 {
		return nil, ValidationError("At least one adult is required").WithDetail("field", "adults")
	}

	tour, err := s.catalog.GetTourByID(ctx, tourID)
	if err != nil {
		return nil, err
	}
	if tour == nil {
		return nil, NotFoundError("Tour not found")
	}
	if tour.Status != models.TourStatusActive {
		return nil, BusinessError("This tour is not currently available for booking")
	}
	if guests > tour.MaxGroupSize {
		return nil, BusinessError("This tour accepts at most %d guests per booking", tour.MaxGroupSize)
	}

	agent, err := s.catalog.GetAgentByID(ctx, tour.AgentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, fmt.Errorf("tour %s has no agent %s", tour.ID, tour.AgentID)
	}

	tripDays := int(end.Sub(start).Hours()/24) + 1
	accommodationLines, err := s.resolveAccommodations(ctx, tour.ID, req.Accommodations, tripDays)
	if err != nil {
		return nil, err
	}
	activityLines, err := s.resolveActivities(ctx, tour.ID, req.Addons, guests)
	if err != nil {
		return nil, err
	}

	price := CalculatePrice(tour, req.Adults, req.Children, accommodationLines, activityLines, s.cfg.ServiceFeePercent)
	if !PricesMatch(req.Pricing.Total, price.TotalAmount) {
		s.logger.WithFields(logrus.Fields{
			"tour_id":      tour.ID,
			"client_total": req.Pricing.Total,
			"server_total": price.TotalAmount,
		}).Warn("Client price differs from server price, using server price")
	}

	commissionRate := s.cfg.DefaultCommissionRate
	if agent.CommissionRate != nil {
		commissionRate = *agent.CommissionRate
	}
	commission, agentEarnings := CommissionSplit(price.TotalAmount, commissionRate)

	owner, guest, err := s.resolveOwner(ctx, req.Contact, actor)
	if err != nil {
		return nil, err
	}

	reference, err := s.references.GenerateBookingReference(ctx)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ID:                  uuid.New(),
		BookingReference:    reference,
		UserID:              owner,
		TourID:              tour.ID,
		AgentID:             agent.ID,
		StartDate:           start,
		EndDate:             end,
		Adults:              req.Adults,
		Children:            req.Children,
		Infants:             req.Infants,
		BaseAmount:          price.BaseAmount,
		AccommodationAmount: price.AccommodationAmount,
		ActivitiesAmount:    price.ActivitiesAmount,
		TaxAmount:           price.TaxAmount,
		DiscountAmount:      price.DiscountAmount,
		TotalAmount:         price.TotalAmount,
		PlatformCommission:  commission,
		AgentEarnings:       agentEarnings,
		Currency:            tour.Currency,
		Status:              models.BookingStatusPending,
		PaymentStatus:       models.PaymentStatusPending,
		PaymentType:         models.PaymentTypeFull,
		ContactName:         strings.TrimSpace(req.Contact.Name),
		ContactEmail:        strings.ToLower(strings.TrimSpace(req.Contact.Email)),
		ContactPhone:        strings.TrimSpace(req.Contact.Phone),
	}
	if sr := strings.TrimSpace(req.Contact.SpecialRequests); sr != "" {
		booking.SpecialRequests = &sr
	}

	if req.PaymentType == models.PaymentTypeDeposit {
		plan, err := ResolveDepositPlan(tour, price.TotalAmount, req.DepositAmount, req.BalanceAmount)
		if err != nil {
			return nil, err
		}
		booking.PaymentType = models.PaymentTypeDeposit
		booking.DepositAmount = &plan.DepositAmount
		booking.BalanceAmount = &plan.BalanceAmount
		booking.BalanceDueDate = BalanceDueDate(tour, start)
	}

	for _, line := range accommodationLines {
		booking.Accommodations = append(booking.Accommodations, models.BookingAccommodation{
			ID:                      uuid.New(),
			AccommodationOptionID:   line.Option.ID,
			DayNumber:               line.DayNumber,
			Rooms:                   RoomsNeeded(guests, line.Option.Capacity),
			PricePerNight:           line.Option.PricePerNight,
			AccommodationOptionName: line.Option.Name,
		})
	}
	for _, line := range activityLines {
		booking.Activities = append(booking.Activities, models.BookingActivity{
			ID:              uuid.New(),
			ActivityAddonID: line.Addon.ID,
			Quantity:        line.Quantity,
			UnitPrice:       line.Addon.Price,
			ActivityName:    line.Addon.Name,
		})
	}

	err = s.bookings.CreateWithCapacityCheck(ctx, booking, guest, func(snapshot *database.CapacitySnapshot) error {
		if snapshot.Tour.Status != models.TourStatusActive {
			return BusinessError("This tour is not currently available for booking")
		}
		return CheckCapacity(snapshot, start, end, guests)
	})
	if err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			return nil, NotFoundError("Tour not found")
		case errors.Is(err, database.ErrConcurrentUpdate):
			return nil, ConflictError("The tour is being booked by someone else right now, please try again")
		}
		return nil, err
	}

	if guest != nil {
		s.logger.WithField("user_id", guest.ID).Info("Guest user created for booking")
	}
	s.logger.WithFields(logrus.Fields{
		"booking_id":        booking.ID,
		"booking_reference": booking.BookingReference,
		"tour_id":           tour.ID,
		"user_id":           owner,
		"guests":            guests,
		"total_amount":      booking.TotalAmount,
		"payment_type":      booking.PaymentType,
	}).Info("Booking created")

	return buildBookingResponse(booking, tour, agent), nil
}

// BalanceDueDate is the tour start minus its free cancellation window, or nil
func BalanceDueDate(tour *models.Tour, start time.Time) *time.Time {
	if tour.FreeCancellationDays == nil {
		return nil
	}
	due := DateOnly(start).AddDate(0, 0, -*tour.FreeCancellationDays)
	return &due
}

func (s *BookingService) resolveAccommodations(ctx context.Context, tourID uuid.UUID, selection map[string]string, tripDays int) ([]AccommodationLine, error) {
	if len(selection) == 0 {
		return nil, nil
	}

	type pick struct {
		day      int
		optionID uuid.UUID
	}
	picks := make([]pick, 0, len(selection))
	ids := make([]uuid.UUID, 0, len(selection))
	seen := map[uuid.UUID]bool{}

	for dayStr, optionStr := range selection {
		dayNumber, err := strconv.Atoi(strings.TrimSpace(dayStr))
		if err != nil || dayNumber < 1 || dayNumber > tripDays {
			return nil, ValidationError("Accommodation day %q is outside the trip (1-%d)", dayStr, tripDays).
				WithDetail("field", "accommodations")
		}
		optionID, err := uuid.Parse(optionStr)
		if err != nil {
			return nil, ValidationError("Invalid accommodation option ID for day %d", dayNumber).
				WithDetail("field", "accommodations")
		}
		picks = append(picks, pick{day: dayNumber, optionID: optionID})
		if !seen[optionID] {
			seen[optionID] = true
			ids = append(ids, optionID)
		}
	}

	options, err := s.catalog.GetAccommodationOptions(ctx, tourID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.AccommodationOption, len(options))
	for _, o := range options {
		byID[o.ID] = o
	}

	lines := make([]AccommodationLine, 0, len(picks))
	for _, p := range picks {
		option, ok := byID[p.optionID]
		if !ok {
			return nil, BusinessError("Accommodation option %s is not offered on this tour", p.optionID)
		}
		lines = append(lines, AccommodationLine{DayNumber: p.day, Option: option})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].DayNumber < lines[j].DayNumber })
	return lines, nil
}

func (s *BookingService) resolveActivities(ctx context.Context, tourID uuid.UUID, selection []models.AddonSelection, guests int) ([]ActivityLine, error) {
	if len(selection) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(selection))
	for _, a := range selection {
		id, err := uuid.Parse(a.ID)
		if err != nil {
			return nil, ValidationError("Invalid add-on ID %q", a.ID).WithDetail("field", "addons")
		}
		ids = append(ids, id)
	}

	addons, err := s.catalog.GetActivityAddons(ctx, tourID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.ActivityAddon, len(addons))
	for _, a := range addons {
		byID[a.ID] = a
	}

	lines := make([]ActivityLine, 0, len(selection))
	for i, a := range selection {
		addon, ok := byID[ids[i]]
		if !ok {
			return nil, BusinessError("Add-on %s is not offered on this tour", a.ID)
		}
		lines = append(lines, ActivityLine{
			Addon:    addon,
			Quantity: ResolveAddonQuantity(a.Quantity, guests, addon.MaxCapacity),
		})
	}
	return lines, nil
}

// resolveOwner returns the authenticated user or the existing user for the
// contact email. Otherwise it prepares a guest user that the booking
// transaction inserts.
func (s *BookingService) resolveOwner(ctx context.Context, contact models.ContactInfo, actor *Actor) (uuid.UUID, *models.User, error) {
	if actor != nil && actor.UserID != uuid.Nil {
		return actor.UserID, nil, nil
	}

	existing, err := s.users.GetUserByEmail(ctx, contact.Email)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if existing != nil {
		return existing.ID, nil, nil
	}

	secret, err := randomHex(24)
	if err != nil {
		return uuid.Nil, nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to hash guest password: %w", err)
	}

	guest := models.NewGuestUser(contact.Email, strings.TrimSpace(contact.Name), strings.TrimSpace(contact.Phone), string(hash))
	return guest.ID, guest, nil
}

func buildBookingResponse(b *models.Booking, tour *models.Tour, agent *models.Agent) *models.BookingResponse {
	resp := &models.BookingResponse{
		ID:               b.ID,
		BookingReference: b.BookingReference,
		TourTitle:        tour.Title,
		AgentName:        agent.BusinessName,
		StartDate:        b.StartDate.Format(dateLayout),
		EndDate:          b.EndDate.Format(dateLayout),
		TotalAmount:      b.TotalAmount,
		Currency:         b.Currency,
		Status:           b.Status,
		PaymentStatus:    b.PaymentStatus,
		PaymentType:      b.PaymentType,
		DepositAmount:    b.DepositAmount,
		BalanceAmount:    b.BalanceAmount,
	}
	if b.BalanceDueDate != nil {
		due := b.BalanceDueDate.Format(dateLayout)
		resp.BalanceDueDate = &due
	}
	return resp
}

// ============================================================================
// READ / UPDATE
// ============================================================================

// GetBooking returns a booking visible to actor: its owner, the tour's agent, or an admin
func (s *BookingService) GetBooking(ctx context.Context, id uuid.UUID, actor *Actor) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, NotFoundError("Booking not found")
	}

	if booking.UserID == actor.UserID || actor.HasRole(models.RoleAdmin) {
		return booking, nil
	}
	isAgent, err := s.isBookingAgent(ctx, booking, actor)
	if err != nil {
		return nil, err
	}
	if !isAgent {
		return nil, ForbiddenError("You do not have access to this booking")
	}
	return booking, nil
}

// ListBookings returns the actor's own bookings, optionally filtered by status
func (s *BookingService) ListBookings(ctx context.Context, actor *Actor, status models.BookingStatus, limit, offset int) ([]models.BookingListItem, error) {
	if status != "" && !status.IsValid() {
		return nil, ValidationError("Unknown booking status %q", status).WithDetail("field", "status")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookings.ListByUser(ctx, actor.UserID, status, limit, offset)
}

// UpdateBookingStatus applies a state machine transition. Agents and admins
// may make any valid transition; travelers may only cancel their own booking.
func (s *BookingService) UpdateBookingStatus(ctx context.Context, id uuid.UUID, to models.BookingStatus, actor *Actor) (*models.Booking, error) {
	if !to.IsValid() {
		return nil, ValidationError("Unknown booking status %q", to)
	}

	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, NotFoundError("Booking not found")
	}

	allowed := actor.HasRole(models.RoleAdmin)
	if !allowed {
		isAgent, err := s.isBookingAgent(ctx, booking, actor)
		if err != nil {
			return nil, err
		}
		allowed = isAgent || (booking.UserID == actor.UserID && to == models.BookingStatusCancelled)
	}
	if !allowed {
		return nil, ForbiddenError("You are not allowed to change this booking")
	}

	from := booking.Status
	if !from.CanTransitionTo(to) {
		return nil, BusinessError("Cannot change booking status from %s to %s", from, to).
			WithDetail("currentStatus", from)
	}

	updated, err := s.bookings.UpdateStatus(ctx, booking.ID, from, to)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ConflictError("Booking status changed concurrently, reload and try again")
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"from":       from,
		"to":         to,
		"actor_id":   actor.UserID,
	}).Info("Booking status updated")

	booking.Status = to
	return booking, nil
}

func (s *BookingService) isBookingAgent(ctx context.Context, booking *models.Booking, actor *Actor) (bool, error) {
	if !actor.HasRole(models.RoleAgent) {
		return false, nil
	}
	agent, err := s.catalog.GetAgentByUserID(ctx, actor.UserID)
	if err != nil {
		return false, err
	}
	return agent != nil && agent.ID == booking.AgentID, nil
}

// ============================================================================
// TOURS
// ============================================================================

// DeleteTour removes a tour owned by the actor's agent profile (or any tour
// for admins). Tours with PENDING or CONFIRMED bookings cannot be deleted.
func (s *BookingService) DeleteTour(ctx context.Context, tourID uuid.UUID, actor *Actor) error {
	tour, err := s.catalog.GetTourByID(ctx, tourID)
	if err != nil {
		return err
	}
	if tour == nil {
		return NotFoundError("Tour not found")
	}

	if !actor.HasRole(models.RoleAdmin) {
		agent, err := s.catalog.GetAgentByUserID(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if agent == nil || agent.ID != tour.AgentID {
			return ForbiddenError("You can only delete your own tours")
		}
	}

	active, err := s.catalog.DeleteTour(ctx, tourID)
	if errors.Is(err, database.ErrNotFound) {
		return NotFoundError("Tour not found")
	}
	if err != nil {
		return err
	}
	if active > 0 {
		return BusinessError("Cannot delete a tour with %d active bookings", active).
			WithDetail("activeBookings", active)
	}

	s.logger.WithFields(logrus.Fields{
		"tour_id":  tourID,
		"actor_id": actor.UserID,
	}).Info("Tour deleted")
	return nil
}
