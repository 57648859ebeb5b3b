package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Details is the kind-specific payload of an application. Implementations are
// value types; an update replaces the whole value.
type Details interface {
	Kind() ApplicationKind
	// Category is the grouping field reported by statistics
	// (vehicleType, licenseClass or routeType).
	Category() string
	// SearchText returns the values matched by free-text search.
	SearchText() []string
	// UniqueKeys returns the fields that must be unique across applications
	// of the same kind, keyed by JSON field name.
	UniqueKeys() map[string]string
}

// PreviousRegistration describes an earlier registration of the vehicle.
type PreviousRegistration struct {
	Number           string `json:"number,omitempty"`
	ExpiryDate       string `json:"expiryDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	IssuingAuthority string `json:"issuingAuthority,omitempty"`
}

// Insurance holds the policy covering a vehicle.
type Insurance struct {
	Company      string `json:"company,omitempty"`
	PolicyNumber string `json:"policyNumber,omitempty"`
	ExpiryDate   string `json:"expiryDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// Technical holds optional vehicle specifications.
type Technical struct {
	Weight          float64 `json:"weight,omitempty" validate:"gte=0"`
	SeatingCapacity int     `json:"seatingCapacity,omitempty" validate:"gte=0"`
	EngineCapacity  float64 `json:"engineCapacity,omitempty" validate:"gte=0"`
	HorsePower      float64 `json:"horsePower,omitempty" validate:"gte=0"`
}

// VehicleDetails is the payload of a vehicle registration application.
type VehicleDetails struct {
	Make                 string                `json:"make" validate:"required"`
	Model                string                `json:"model" validate:"required"`
	Year                 int                   `json:"year" validate:"required,min=1950,notfutureyear"`
	Color                string                `json:"color" validate:"required"`
	EngineNumber         string                `json:"engineNumber" validate:"required"`
	ChassisNumber        string                `json:"chassisNumber" validate:"required"`
	VehicleType          string                `json:"vehicleType" validate:"required,oneof=Car Motorcycle Truck Bus Van SUV Trailer"`
	FuelType             string                `json:"fuelType" validate:"required,oneof=Gasoline Diesel Electric Hybrid CNG LPG"`
	PreviousRegistration *PreviousRegistration `json:"previousRegistration,omitempty"`
	Insurance            *Insurance            `json:"insurance,omitempty"`
	Technical            *Technical            `json:"technical,omitempty"`
}

func (VehicleDetails) Kind() ApplicationKind { return KindVehicle }
func (d VehicleDetails) Category() string { return d.VehicleType }

func (d VehicleDetails) SearchText() []string {
	return []string{d.Make, d.Model, d.EngineNumber, d.ChassisNumber}
}

func (d VehicleDetails) UniqueKeys() map[string]string {
	return map[string]string{"engineNumber": d.EngineNumber, "chassisNumber": d.ChassisNumber}
}

// LicenseDetails is the payload of a driver license application.
type LicenseDetails struct {
	FullName              string `json:"fullName" validate:"required"`
	NationalID            string `json:"nationalId" validate:"required"`
	DateOfBirth           string `json:"dateOfBirth" validate:"required,datetime=2006-01-02"`
	LicenseClass          string `json:"licenseClass" validate:"required,oneof=Motorcycle Private 'Light Commercial' 'Heavy Commercial' 'Public Transport'"`
	PreviousLicenseNumber string `json:"previousLicenseNumber,omitempty"`
	MedicalCertificate    string `json:"medicalCertificate,omitempty"`
}

func (LicenseDetails) Kind() ApplicationKind { return KindLicense }
func (d LicenseDetails) Category() string { return d.LicenseClass }

func (d LicenseDetails) SearchText() []string {
	return []string{d.FullName, d.NationalID, d.PreviousLicenseNumber}
}

func (LicenseDetails) UniqueKeys() map[string]string { return nil }

// RouteVehicle is the vehicle operating a transport route.
type RouteVehicle struct {
	VehicleNumber string `json:"vehicleNumber,omitempty"`
	Capacity      int    `json:"capacity,omitempty" validate:"gte=0"`
	Type          string `json:"type,omitempty"`
}

// RouteDriver is the assigned driver of a transport route.
type RouteDriver struct {
	Name          string `json:"name,omitempty"`
	LicenseNumber string `json:"licenseNumber,omitempty"`
	ContactNumber string `json:"contactNumber,omitempty"`
}

// RouteDetails is the payload of a transport route application.
type RouteDetails struct {
	RouteName       string        `json:"routeName" validate:"required"`
	RouteNumber     string        `json:"routeNumber" validate:"required"`
	RouteType       string        `json:"routeType" validate:"required,oneof='City Bus' Intercity 'School Bus' Shuttle Taxi"`
	Origin          string        `json:"origin" validate:"required"`
	Destination     string        `json:"destination" validate:"required,nefield=Origin"`
	DistanceKm      float64       `json:"distanceKm,omitempty" validate:"gte=0"`
	DurationMinutes int           `json:"durationMinutes,omitempty" validate:"gte=0"`
	Fare            float64       `json:"fare,omitempty" validate:"gte=0"`
	OperatingDays   []string      `json:"operatingDays,omitempty" validate:"omitempty,dive,oneof=Monday Tuesday Wednesday Thursday Friday Saturday Sunday"`
	Vehicle         *RouteVehicle `json:"vehicle,omitempty"`
	Driver          *RouteDriver  `json:"driver,omitempty"`
}

func (RouteDetails) Kind() ApplicationKind { return KindRoute }
func (d RouteDetails) Category() string { return d.RouteType }

func (d RouteDetails) SearchText() []string {
	out := []string{d.RouteName, d.RouteNumber, d.Origin, d.Destination}
	if d.Driver != nil {
		out = append(out, d.Driver.Name)
	}
	return out
}

func (d RouteDetails) UniqueKeys() map[string]string {
	return map[string]string{"routeNumber": d.RouteNumber}
}

// DecodeDetails parses a JSON payload into the details type for kind and
// trims surrounding whitespace from its required text fields.
func DecodeDetails(kind ApplicationKind, data []byte) (Details, error) {
	switch kind {
	case KindVehicle:
		var d VehicleDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		trim(&d.Make, &d.Model, &d.Color, &d.EngineNumber, &d.ChassisNumber)
		return d, nil
	case KindLicense:
		var d LicenseDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		trim(&d.FullName, &d.NationalID, &d.PreviousLicenseNumber)
		return d, nil
	case KindRoute:
		var d RouteDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		trim(&d.RouteName, &d.RouteNumber, &d.Origin, &d.Destination)
		return d, nil
	default:
		return nil, fmt.Errorf("unknown application kind %q", kind)
	}
}

func trim(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}
