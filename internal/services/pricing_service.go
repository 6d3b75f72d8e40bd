package services

import (
	"math"

	"github.com/safaritrails/booking-backend/internal/models"
	"github.com/shopspring/decimal"
)

// priceTolerance is the largest accepted gap between client and server totals
const priceTolerance = 0.01

// AccommodationLine is one night at a chosen accommodation option
type AccommodationLine struct {
	DayNumber int
	Option    models.AccommodationOption
}

// ActivityLine is an add-on with a resolved quantity
type ActivityLine struct {
	Addon    models.ActivityAddon
	Quantity int
}

// PriceBreakdown holds the server-computed money fields of a booking
type PriceBreakdown struct {
	BaseAmount          float64
	AccommodationAmount float64
	ActivitiesAmount    float64
	TaxAmount           float64
	DiscountAmount      float64
	TotalAmount         float64
}

// Subtotal is the amount before service fee and discount
func (p PriceBreakdown) Subtotal() float64 {
	return round2(decimal.NewFromFloat(p.BaseAmount).
		Add(decimal.NewFromFloat(p.AccommodationAmount)).
		Add(decimal.NewFromFloat(p.ActivitiesAmount)))
}

// RoomsNeeded is the number of rooms of the given capacity for guests
func RoomsNeeded(guests, capacity int) int {
	if capacity <= 0 || guests <= 0 {
		return 1
	}
	return int(math.Ceil(float64(guests) / float64(capacity)))
}

// ResolveAddonQuantity applies the default and the add-on's capacity cap
func ResolveAddonQuantity(requested, guests int, maxCapacity *int) int {
	qty := requested
	if qty <= 0 {
		qty = guests
	}
	if maxCapacity != nil && *maxCapacity > 0 && qty > *maxCapacity {
		qty = *maxCapacity
	}
	return qty
}

// CalculatePrice computes the full price of a booking from catalog data.
// serviceFeePercent is the platform fee applied to the subtotal.
func CalculatePrice(tour *models.Tour, adults, children int, accommodations []AccommodationLine, activities []ActivityLine, serviceFeePercent float64) PriceBreakdown {
	guests := adults + children

	base := decimal.NewFromFloat(tour.PricePerAdult).Mul(decimal.NewFromInt(int64(adults))).
		Add(decimal.NewFromFloat(tour.ChildPrice()).Mul(decimal.NewFromInt(int64(children))))

	accommodation := decimal.Zero
	for _, line := range accommodations {
		rooms := RoomsNeeded(guests, line.Option.Capacity)
		accommodation = accommodation.Add(decimal.NewFromFloat(line.Option.PricePerNight).Mul(decimal.NewFromInt(int64(rooms))))
	}

	activitiesTotal := decimal.Zero
	for _, line := range activities {
		activitiesTotal = activitiesTotal.Add(decimal.NewFromFloat(line.Addon.Price).Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	subtotal := base.Add(accommodation).Add(activitiesTotal).Round(2)
	tax := subtotal.Mul(decimal.NewFromFloat(serviceFeePercent)).Div(decimal.NewFromInt(100)).Round(2)

	discount := decimal.Zero
	if tour.DiscountPercentage != nil && *tour.DiscountPercentage > 0 {
		discount = subtotal.Mul(decimal.NewFromFloat(*tour.DiscountPercentage)).Div(decimal.NewFromInt(100)).Round(2)
	}

	total := subtotal.Add(tax).Sub(discount)

	return PriceBreakdown{
		BaseAmount:          round2(base),
		AccommodationAmount: round2(accommodation),
		ActivitiesAmount:    round2(activitiesTotal),
		TaxAmount:           round2(tax),
		DiscountAmount:      round2(discount),
		TotalAmount:         round2(total),
	}
}

// PricesMatch reports whether a client total agrees with the server total
func PricesMatch(clientTotal, serverTotal float64) bool {
	return decimal.NewFromFloat(clientTotal).Sub(decimal.NewFromFloat(serverTotal)).Abs().
		LessThanOrEqual(decimal.NewFromFloat(priceTolerance))
}

// CommissionSplit divides a total between the platform and the agent.
// The platform's share is rounded half-up to a whole currency unit and the
// agent receives the exact remainder, so the two always sum to total.
func CommissionSplit(total, ratePercent float64) (commission, agentEarnings float64) {
	totalDec := decimal.NewFromFloat(total)
	commissionDec := totalDec.Mul(decimal.NewFromFloat(ratePercent)).Div(decimal.NewFromInt(100)).Round(0)
	if commissionDec.GreaterThan(totalDec) {
		commissionDec = totalDec
	}
	earningsDec := totalDec.Sub(commissionDec)

	commission, _ = commissionDec.Float64()
	agentEarnings, _ = earningsDec.Float64()
	return commission, agentEarnings
}

// DepositPlan is the resolved deposit/balance split of a booking
type DepositPlan struct {
	DepositAmount float64
	BalanceAmount float64
}

// ResolveDepositPlan validates or derives the deposit and balance for total.
// Missing amounts are derived from the tour's deposit percentage.
func ResolveDepositPlan(tour *models.Tour, total float64, deposit, balance *float64) (*DepositPlan, error) {
	if !tour.DepositEnabled {
		return nil, BusinessError("This tour does not accept deposit payments")
	}

	totalDec := decimal.NewFromFloat(total)
	var depositDec, balanceDec decimal.Decimal

	switch {
	case deposit != nil && balance != nil:
		depositDec, balanceDec = decimal.NewFromFloat(*deposit), decimal.NewFromFloat(*balance)
	case deposit != nil:
		depositDec = decimal.NewFromFloat(*deposit)
		balanceDec = totalDec.Sub(depositDec)
	case balance != nil:
		balanceDec = decimal.NewFromFloat(*balance)
		depositDec = totalDec.Sub(balanceDec)
	default:
		if tour.DepositPercentage == nil || *tour.DepositPercentage <= 0 {
			return nil, ValidationError("depositAmount is required for deposit payments")
		}
		depositDec = totalDec.Mul(decimal.NewFromFloat(*tour.DepositPercentage)).Div(decimal.NewFromInt(100)).Round(2)
		balanceDec = totalDec.Sub(depositDec)
	}

	if !depositDec.IsPositive() || depositDec.GreaterThanOrEqual(totalDec) {
		return nil, BusinessError("Deposit must be greater than zero and less than the total amount").
			WithDetail("totalAmount", total)
	}
	if depositDec.Add(balanceDec).Sub(totalDec).Abs().GreaterThan(decimal.NewFromFloat(priceTolerance)) {
		return nil, BusinessError("Deposit and balance must add up to the total amount").
			WithDetail("totalAmount", total)
	}

	return &DepositPlan{
		DepositAmount: round2(depositDec),
		BalanceAmount: round2(balanceDec),
	}, nil
}

func round2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
