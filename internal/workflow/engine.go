// Package workflow holds the pure application lifecycle rules: fee lookup,
// status transitions, the access policy, the notes ledger and statistics.
// Nothing here touches storage; callers persist the returned records.
package workflow

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spec-kit/transport-portal/internal/domain"
)

var (
	// ErrForbidden is returned when the actor may not perform the change.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition is returned when the requested status is not
	// reachable from the current one.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownStatus is returned for a status outside the enumeration.
	ErrUnknownStatus = errors.New("unknown status")
	// ErrInvalidFees is returned for negative amounts or an unknown payment status.
	ErrInvalidFees = errors.New("invalid fee adjustment")
)

// feeTable holds the base fee charged at submission per kind and request type.
var feeTable = map[domain.ApplicationKind]map[domain.ApplicationType]int64{
	domain.KindVehicle: {
		domain.TypeNewRegistration: 500,
		domain.TypeTransfer:        200,
		domain.TypeRenewal:         300,
		domain.TypeReplacement:     150,
	},
	domain.KindLicense: {
		domain.TypeNewLicense:  250,
		domain.TypeRenewal:     150,
		domain.TypeReplacement: 100,
		domain.TypeUpgrade:     200,
	},
	domain.KindRoute: {
		domain.TypeNewRoute:     1000,
		domain.TypeRenewal:      400,
		domain.TypeModification: 300,
	},
}

// defaultFees applies when the request type is missing from feeTable.
var defaultFees = map[domain.ApplicationKind]int64{
	domain.KindVehicle: 500,
	domain.KindLicense: 250,
	domain.KindRoute:   1000,
}

// requiredPrior lists statuses that may only be entered from specific states.
// Statuses absent from the map are reachable from anywhere.
var requiredPrior = map[domain.ApplicationStatus][]domain.ApplicationStatus{
	domain.StatusCompleted: {domain.StatusApproved},
}

// reviewStamping lists the previous statuses whose exit stamps the review date.
var reviewStamping = map[domain.ApplicationStatus]bool{
	domain.StatusPending:     true,
	domain.StatusUnderReview: true,
}

// RegistrationNumberFunc issues a candidate registration number.
type RegistrationNumberFunc func(now time.Time) string

// GenerateRegistrationNumber returns REG-<year>-<4 digits>. Uniqueness is not
// guaranteed; the store rejects collisions and callers retry.
func GenerateRegistrationNumber(now time.Time) string {
	return fmt.Sprintf("REG-%d-%04d", now.Year(), rand.IntN(10000))
}

// BaseFee looks up the submission fee for a kind and request type.
func BaseFee(kind domain.ApplicationKind, appType domain.ApplicationType) int64 {
	if fee, ok := feeTable[kind][appType]; ok {
		return fee
	}
	return defaultFees[kind]
}

// NewApplication builds a freshly submitted application. Penalties are never
// assessed automatically.
func NewApplication(ownerID string, appType domain.ApplicationType, details domain.Details, now time.Time) domain.Application {
	kind := details.Kind()
	app := domain.Application{
		Kind:            kind,
		OwnerID:         ownerID,
		ApplicationType: appType,
		Status:          domain.StatusPending,
		Details:         details,
		Fees: domain.Fees{
			Base:          BaseFee(kind, appType),
			Penalty:       0,
			PaymentStatus: domain.PaymentPending,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	app.Fees.Recompute()
	return app
}

// Transition moves app to the requested status on behalf of actor. Requesting
// the current status is a no-op and needs no role.
func Transition(app domain.Application, requested domain.ApplicationStatus, actor domain.Actor, now time.Time, nextRegNumber RegistrationNumberFunc) (domain.Application, error) {
	if !requested.Valid() {
		return app, fmt.Errorf("%w: %q", ErrUnknownStatus, requested)
	}
	if requested == app.Status {
		return app, nil
	}
	if !actor.IsAdmin() {
		return app, ErrForbidden
	}
	if !canEnter(app.Status, requested) {
		return app, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, app.Status, requested)
	}

	out := app.Clone()
	if reviewStamping[app.Status] {
		out.ReviewDate = &now
	}
	if requested == domain.StatusApproved && out.RegistrationNumber == nil {
		if nextRegNumber == nil {
			nextRegNumber = GenerateRegistrationNumber
		}
		reg := nextRegNumber(now)
		out.RegistrationNumber = &reg
	}
	if requested == domain.StatusCompleted {
		out.CompletionDate = &now
	}
	out.Status = requested
	out.Fees.Recompute()
	out.UpdatedAt = now
	return out, nil
}

func canEnter(current, next domain.ApplicationStatus) bool {
	allowed, restricted := requiredPrior[next]
	if !restricted {
		return true
	}
	for _, candidate := range allowed {
		if candidate == current {
			return true
		}
	}
	return false
}

// FeeAdjustment carries admin edits to an application's fees. Nil fields are
// left untouched.
type FeeAdjustment struct {
	Base          *int64
	Penalty       *int64
	PaymentStatus *domain.PaymentStatus
}

// Empty reports whether the adjustment changes nothing.
func (f FeeAdjustment) Empty() bool {
	return f.Base == nil && f.Penalty == nil && f.PaymentStatus == nil
}

// ApplyFeeAdjustment applies an admin fee edit and restores the total.
// Marking the fees Paid stamps the payment date once.
func ApplyFeeAdjustment(app domain.Application, adj FeeAdjustment, now time.Time) (domain.Application, error) {
	if adj.Base != nil && *adj.Base < 0 {
		return app, fmt.Errorf("%w: base must not be negative", ErrInvalidFees)
	}
	if adj.Penalty != nil && *adj.Penalty < 0 {
		return app, fmt.Errorf("%w: penalty must not be negative", ErrInvalidFees)
	}
	if adj.PaymentStatus != nil && !adj.PaymentStatus.Valid() {
		return app, fmt.Errorf("%w: unknown payment status %q", ErrInvalidFees, *adj.PaymentStatus)
	}

	out := app.Clone()
	if adj.Base != nil {
		out.Fees.Base = *adj.Base
	}
	if adj.Penalty != nil {
		out.Fees.Penalty = *adj.Penalty
	}
	if adj.PaymentStatus != nil {
		if *adj.PaymentStatus == domain.PaymentPaid && out.Fees.PaymentStatus != domain.PaymentPaid {
			out.Fees.PaymentDate = &now
		}
		out.Fees.PaymentStatus = *adj.PaymentStatus
	}
	out.Fees.Recompute()
	out.UpdatedAt = now
	return out, nil
}

// ReplaceDetails swaps the kind-specific payload. Access must already have
// been granted by Authorize.
func ReplaceDetails(app domain.Application, details domain.Details, now time.Time) (domain.Application, error) {
	if details == nil || details.Kind() != app.Kind {
		return app, fmt.Errorf("details kind does not match application kind %s", app.Kind)
	}
	out := app.Clone()
	out.Details = details
	out.Fees.Recompute()
	out.UpdatedAt = now
	return out, nil
}
