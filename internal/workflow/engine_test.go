package workflow

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/transport-portal/internal/domain"
)

var (
	admin  = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
	owner  = domain.Actor{ID: "owner-1", Role: domain.RolePublic}
	other  = domain.Actor{ID: "other-1", Role: domain.RolePublic}
	t0     = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	regFmt = regexp.MustCompile(`^REG-\d{4}-\d{4}$`)
)

func vehicleDetails() domain.VehicleDetails {
	return domain.VehicleDetails{
		Make:          "Toyota",
		Model:         "Camry",
		Year:          2022,
		Color:         "White",
		EngineNumber:  "ENG-1",
		ChassisNumber: "CHS-1",
		VehicleType:   "Car",
		FuelType:      "Gasoline",
	}
}

func newVehicle(appType domain.ApplicationType) domain.Application {
	app := NewApplication(owner.ID, appType, vehicleDetails(), t0)
	app.ID = "app-1"
	return app
}

func TestNewApplication_FeesByType(t *testing.T) {
	cases := map[domain.ApplicationType]int64{
		domain.TypeNewRegistration: 500,
		domain.TypeTransfer:        200,
		domain.TypeRenewal:         300,
		domain.TypeReplacement:     150,
		"Something Else":           500,
	}
	for appType, base := range cases {
		t.Run(string(appType), func(t *testing.T) {
			app := newVehicle(appType)
			assert.Equal(t, base, app.Fees.Base)
			assert.Zero(t, app.Fees.Penalty)
			assert.Equal(t, app.Fees.Base+app.Fees.Penalty, app.Fees.Total)
			assert.Equal(t, domain.PaymentPending, app.Fees.PaymentStatus)
		})
	}
}

func TestNewApplication_Defaults(t *testing.T) {
	app := newVehicle(domain.TypeNewRegistration)

	assert.Equal(t, domain.StatusPending, app.Status)
	assert.Equal(t, domain.KindVehicle, app.Kind)
	assert.Equal(t, owner.ID, app.OwnerID)
	assert.Nil(t, app.RegistrationNumber)
	assert.Nil(t, app.ReviewDate)
	assert.Nil(t, app.CompletionDate)
	assert.Equal(t, domain.Fees{Base: 500, Penalty: 0, Total: 500, PaymentStatus: domain.PaymentPending}, app.Fees)
}

func TestBaseFee_OtherKinds(t *testing.T) {
	assert.Equal(t, int64(250), BaseFee(domain.KindLicense, domain.TypeNewLicense))
	assert.Equal(t, int64(250), BaseFee(domain.KindLicense, domain.TypeTransfer))
	assert.Equal(t, int64(1000), BaseFee(domain.KindRoute, domain.TypeNewRoute))
	assert.Equal(t, int64(300), BaseFee(domain.KindRoute, domain.TypeModification))
}

func TestTransition_ApproveIssuesRegistration(t *testing.T) {
	app := newVehicle(domain.TypeNewRegistration)
	now := t0.Add(time.Hour)

	out, err := Transition(app, domain.StatusApproved, admin, now, GenerateRegistrationNumber)
	require.NoError(t, err)

	require.NotNil(t, out.RegistrationNumber)
	assert.Regexp(t, regFmt, *out.RegistrationNumber)
	assert.Contains(t, *out.RegistrationNumber, "REG-2025-")
	require.NotNil(t, out.ReviewDate)
	assert.Equal(t, now, *out.ReviewDate)
	assert.Equal(t, domain.StatusApproved, out.Status)
	assert.Equal(t, int64(500), out.Fees.Total)
	assert.Nil(t, app.RegistrationNumber, "input record must not be modified")
}

func TestTransition_KeepsExistingRegistration(t *testing.T) {
	app := newVehicle(domain.TypeNewRegistration)
	approved, err := Transition(app, domain.StatusApproved, admin, t0, fixedReg("REG-2025-0001"))
	require.NoError(t, err)
	rejected, err := Transition(approved, domain.StatusRejected, admin, t0, fixedReg("REG-2025-0002"))
	require.NoError(t, err)
	again, err := Transition(rejected, domain.StatusApproved, admin, t0, fixedReg("REG-2025-0003"))
	require.NoError(t, err)

	require.NotNil(t, again.RegistrationNumber)
	assert.Equal(t, "REG-2025-0001", *again.RegistrationNumber)
}

func TestTransition_Idempotent(t *testing.T) {
	app := newVehicle(domain.TypeRenewal)

	out, err := Transition(app, domain.StatusPending, owner, t0.Add(time.Hour), GenerateRegistrationNumber)
	require.NoError(t, err)
	assert.Equal(t, app, out)
}

func TestTransition_RequiresAdmin(t *testing.T) {
	app := newVehicle(domain.TypeNewRegistration)

	_, err := Transition(app, domain.StatusApproved, owner, t0, GenerateRegistrationNumber)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestTransition_UnknownStatus(t *testing.T) {
	app := newVehicle(domain.TypeNewRegistration)

	_, err := Transition(app, "Archived", admin, t0, GenerateRegistrationNumber)
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestTransition_CompletedRequiresApproved(t *testing.T) {
	app := newVehicle(domain.TypeNewRegistration)

	_, err := Transition(app, domain.StatusCompleted, admin, t0, GenerateRegistrationNumber)
	require.ErrorIs(t, err, ErrInvalidTransition)

	approved, err := Transition(app, domain.StatusApproved, admin, t0, GenerateRegistrationNumber)
	require.NoError(t, err)
	done := t0.Add(24 * time.Hour)
	completed, err := Transition(approved, domain.StatusCompleted, admin, done, GenerateRegistrationNumber)
	require.NoError(t, err)

	require.NotNil(t, completed.CompletionDate)
	assert.Equal(t, done, *completed.CompletionDate)
	assert.Equal(t, t0, *completed.ReviewDate, "leaving Approved does not restamp the review date")
	assert.NotNil(t, completed.RegistrationNumber)
}

func TestTransition_OtherMovesUnrestricted(t *testing.T) {
	app := newVehicle(domain.TypeNewRegistration)

	review, err := Transition(app, domain.StatusUnderReview, admin, t0, GenerateRegistrationNumber)
	require.NoError(t, err)
	assert.Nil(t, review.RegistrationNumber)
	assert.NotNil(t, review.ReviewDate)

	rejected, err := Transition(review, domain.StatusRejected, admin, t0.Add(time.Minute), GenerateRegistrationNumber)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Minute), *rejected.ReviewDate)

	back, err := Transition(rejected, domain.StatusPending, admin, t0.Add(time.Hour), GenerateRegistrationNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, back.Status)
}

func TestRegistrationNumberImpliesApproval(t *testing.T) {
	app := newVehicle(domain.TypeNewRegistration)
	path := []domain.ApplicationStatus{
		domain.StatusUnderReview, domain.StatusRejected, domain.StatusUnderReview,
		domain.StatusApproved, domain.StatusCompleted,
	}
	everApproved := false
	for _, next := range path {
		var err error
		app, err = Transition(app, next, admin, t0, GenerateRegistrationNumber)
		require.NoError(t, err)
		if app.Status == domain.StatusApproved {
			everApproved = true
		}
		if app.RegistrationNumber != nil {
			assert.True(t, everApproved, "registration issued before approval at %s", next)
		}
		assert.Equal(t, app.Fees.Base+app.Fees.Penalty, app.Fees.Total)
	}
}

func TestRegistrationNumberKeptAfterRevert(t *testing.T) {
	approved, err := Transition(newVehicle(domain.TypeNewRegistration), domain.StatusApproved, admin, t0, GenerateRegistrationNumber)
	require.NoError(t, err)
	require.NotNil(t, approved.RegistrationNumber)
	issued := *approved.RegistrationNumber

	for _, next := range []domain.ApplicationStatus{domain.StatusRejected, domain.StatusPending} {
		reverted, err := Transition(approved, next, admin, t0.Add(time.Hour), GenerateRegistrationNumber)
		require.NoError(t, err)
		require.NotNil(t, reverted.RegistrationNumber, "after moving to %s", next)
		assert.Equal(t, issued, *reverted.RegistrationNumber)
	}
}

func TestApplyFeeAdjustment(t *testing.T) {
	app := newVehicle(domain.TypeNewRegistration)
	penalty := int64(75)
	paid := domain.PaymentPaid
	now := t0.Add(time.Hour)

	out, err := ApplyFeeAdjustment(app, FeeAdjustment{Penalty: &penalty, PaymentStatus: &paid}, now)
	require.NoError(t, err)

	assert.Equal(t, int64(575), out.Fees.Total)
	assert.Equal(t, domain.PaymentPaid, out.Fees.PaymentStatus)
	require.NotNil(t, out.Fees.PaymentDate)
	assert.Equal(t, now, *out.Fees.PaymentDate)

	again, err := ApplyFeeAdjustment(out, FeeAdjustment{PaymentStatus: &paid}, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, now, *again.Fees.PaymentDate, "payment date is stamped once")
}

func TestApplyFeeAdjustment_Rejects(t *testing.T) {
	app := newVehicle(domain.TypeNewRegistration)
	negative := int64(-1)
	bogus := domain.PaymentStatus("Refunded")

	_, err := ApplyFeeAdjustment(app, FeeAdjustment{Base: &negative}, t0)
	assert.ErrorIs(t, err, ErrInvalidFees)
	_, err = ApplyFeeAdjustment(app, FeeAdjustment{PaymentStatus: &bogus}, t0)
	assert.ErrorIs(t, err, ErrInvalidFees)
}

func TestReplaceDetails_KindMismatch(t *testing.T) {
	app := newVehicle(domain.TypeNewRegistration)

	_, err := ReplaceDetails(app, domain.RouteDetails{RouteName: "x"}, t0)
	assert.Error(t, err)

	d := vehicleDetails()
	d.Color = "Black"
	out, err := ReplaceDetails(app, d, t0)
	require.NoError(t, err)
	assert.Equal(t, "Black", out.Details.(domain.VehicleDetails).Color)
}

func fixedReg(v string) RegistrationNumberFunc {
	return func(time.Time) string { return v }
}
