package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/spec-kit/transport-portal/internal/api/http/handlers"
	"github.com/spec-kit/transport-portal/internal/auth"
	"github.com/spec-kit/transport-portal/internal/config"
	"github.com/spec-kit/transport-portal/internal/domain"
	"github.com/spec-kit/transport-portal/internal/observability"
	"github.com/spec-kit/transport-portal/internal/repository"
	"github.com/spec-kit/transport-portal/internal/service"
)

type RouterSuite struct {
	suite.Suite

	app        *fiber.App
	adminToken string
	userToken  string
	otherToken string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	ctx := context.Background()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	users := repository.NewInMemoryUsers()

	authService := service.NewAuthService(config.AuthConfig{JWTSecret: "test", AccessTokenTTLMinutes: 5, BcryptCost: 4}, users)
	appService := service.NewApplicationService(service.ApplicationDependencies{
		ApplicationRepo: repository.NewInMemoryApplications(),
		Metrics:         metrics,
		Logger:          logger,
		Config:          config.WorkflowConfig{RegistrationRetryAttempts: 5, DefaultPageSize: 10, MaxPageSize: 100},
	})

	_, err := authService.CreateAdmin(ctx, service.AccountInput{FirstName: "A", LastName: "D", Email: "admin@transport.gov", Password: "adminpw"})
	s.Require().NoError(err)
	login, err := authService.Login(ctx, "admin@transport.gov", "adminpw")
	s.Require().NoError(err)
	s.adminToken = login.Token

	s.app = fiber.New()
	RegisterMiddlewares(s.app, logger, metrics, 0, false)
	RegisterRoutes(s.app, RouteConfig{
		Health:         handlers.NewHealthHandler("transport-portal", "test", nil, nil),
		Auth:           handlers.NewAuthHandler(authService),
		Dashboard:      handlers.NewDashboardHandler(appService),
		Vehicles:       handlers.NewApplicationsHandler(appService, domain.KindVehicle),
		Licenses:       handlers.NewApplicationsHandler(appService, domain.KindLicense),
		Routes:         handlers.NewApplicationsHandler(appService, domain.KindRoute),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), users),
		Metrics:        metrics,
	})

	s.userToken = s.signup("citizen@example.com")
	s.otherToken = s.signup("neighbour@example.com")
}

func (s *RouterSuite) signup(email string) string {
	status, body := s.do(stdhttp.MethodPost, "/api/auth/signup", "", map[string]any{
		"firstName": "Sam",
		"lastName":  "Citizen",
		"email":     email,
		"password":  "secret123",
	})
	s.Require().Equal(stdhttp.StatusCreated, status, "%v", body)
	return body["auth"].(map[string]any)["token"].(string)
}

func (s *RouterSuite) do(method, path, token string, payload any) (int, map[string]any) {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		s.Require().NoError(json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func vehiclePayload(engine string) map[string]any {
	return map[string]any{
		"applicationType": "New Registration",
		"make":            "Toyota",
		"model":           "Corolla",
		"year":            2021,
		"color":           "Silver",
		"engineNumber":    engine,
		"chassisNumber":   "CH-" + engine,
		"vehicleType":     "Car",
		"fuelType":        "Hybrid",
	}
}

func errorCode(body map[string]any) string {
	errBody, _ := body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func (s *RouterSuite) createVehicle(engine string) map[string]any {
	status, body := s.do(stdhttp.MethodPost, "/api/vehicles", s.userToken, vehiclePayload(engine))
	s.Require().Equal(stdhttp.StatusCreated, status, "%v", body)
	return body["vehicle"].(map[string]any)
}

func (s *RouterSuite) TestHealth() {
	status, body := s.do(stdhttp.MethodGet, "/health/live", "", nil)
	s.Equal(stdhttp.StatusOK, status)
	s.Equal("alive", body["status"])

	status, body = s.do(stdhttp.MethodGet, "/health/ready", "", nil)
	s.Equal(stdhttp.StatusOK, status)
	s.Equal("disabled", body["dependencies"].(map[string]any)["postgres"])
}

func (s *RouterSuite) TestRequiresToken() {
	status, body := s.do(stdhttp.MethodGet, "/api/vehicles", "", nil)
	s.Equal(stdhttp.StatusUnauthorized, status)
	s.Equal("UNAUTHORIZED", errorCode(body))

	status, _ = s.do(stdhttp.MethodGet, "/api/vehicles", "garbage", nil)
	s.Equal(stdhttp.StatusUnauthorized, status)
}

func (s *RouterSuite) TestCreateVehicle() {
	vehicle := s.createVehicle("EN-100")

	s.Equal("Pending", vehicle["status"])
	s.Nil(vehicle["registrationNumber"])
	s.Equal("Toyota", vehicle["make"])
	fees := vehicle["fees"].(map[string]any)
	s.Equal(float64(500), fees["base"])
	s.Equal(float64(0), fees["penalty"])
	s.Equal(float64(500), fees["total"])
	s.Equal("Pending", fees["paymentStatus"])
}

func (s *RouterSuite) TestCreateValidationAndDuplicates() {
	payload := vehiclePayload("EN-1")
	delete(payload, "make")
	payload["vehicleType"] = "Hovercraft"
	status, body := s.do(stdhttp.MethodPost, "/api/vehicles", s.userToken, payload)
	s.Equal(stdhttp.StatusBadRequest, status)
	s.Equal("VALIDATION_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	s.Contains(details, "make")
	s.Contains(details, "vehicleType")

	s.createVehicle("EN-1")
	status, body = s.do(stdhttp.MethodPost, "/api/vehicles", s.otherToken, vehiclePayload("EN-1"))
	s.Equal(stdhttp.StatusBadRequest, status)
	s.Equal("DUPLICATE_FIELD", errorCode(body))
	s.Equal("engineNumber", body["error"].(map[string]any)["details"].(map[string]any)["field"])
}

func (s *RouterSuite) TestLifecycle() {
	id := s.createVehicle("EN-7")["id"].(string)
	path := "/api/vehicles/" + id

	status, body := s.do(stdhttp.MethodPut, path, s.userToken, map[string]any{"status": "Approved"})
	s.Equal(stdhttp.StatusForbidden, status)
	s.Equal("FORBIDDEN", errorCode(body))

	status, body = s.do(stdhttp.MethodPut, path, s.adminToken, map[string]any{"status": "Completed"})
	s.Equal(stdhttp.StatusBadRequest, status)
	s.Equal("INVALID_TRANSITION", errorCode(body))

	status, body = s.do(stdhttp.MethodPut, path, s.adminToken, map[string]any{"status": "Approved"})
	s.Require().Equal(stdhttp.StatusOK, status, "%v", body)
	vehicle := body["vehicle"].(map[string]any)
	s.Regexp(regexp.MustCompile(`^REG-\d{4}-\d{4}$`), vehicle["registrationNumber"])
	s.NotNil(vehicle["reviewDate"])
	s.Equal(float64(500), vehicle["fees"].(map[string]any)["total"])

	status, body = s.do(stdhttp.MethodPut, path, s.userToken, map[string]any{"color": "Black"})
	s.Equal(stdhttp.StatusForbidden, status)

	status, _ = s.do(stdhttp.MethodDelete, path, s.userToken, nil)
	s.Equal(stdhttp.StatusForbidden, status)

	status, body = s.do(stdhttp.MethodPut, path, s.adminToken, map[string]any{"status": "Completed"})
	s.Require().Equal(stdhttp.StatusOK, status)
	s.NotNil(body["vehicle"].(map[string]any)["completionDate"])

	status, _ = s.do(stdhttp.MethodDelete, path, s.adminToken, nil)
	s.Equal(stdhttp.StatusOK, status)
	status, body = s.do(stdhttp.MethodGet, path, s.adminToken, nil)
	s.Equal(stdhttp.StatusNotFound, status)
	s.Equal("NOT_FOUND", errorCode(body))
}

func (s *RouterSuite) TestServerManagedFieldsIgnored() {
	id := s.createVehicle("EN-8")["id"].(string)

	status, body := s.do(stdhttp.MethodPut, "/api/vehicles/"+id, s.userToken, map[string]any{
		"registrationNumber": "REG-1999-0001",
		"userId":             "someone-else",
		"color":              "Green",
	})
	s.Require().Equal(stdhttp.StatusOK, status, "%v", body)
	vehicle := body["vehicle"].(map[string]any)
	s.Nil(vehicle["registrationNumber"])
	s.Equal("Green", vehicle["color"])
	s.NotEqual("someone-else", vehicle["userId"])
}

func (s *RouterSuite) TestReadScoping() {
	id := s.createVehicle("EN-9")["id"].(string)

	status, _ := s.do(stdhttp.MethodGet, "/api/vehicles/"+id, s.otherToken, nil)
	s.Equal(stdhttp.StatusForbidden, status)

	status, body := s.do(stdhttp.MethodGet, "/api/vehicles", s.otherToken, nil)
	s.Equal(stdhttp.StatusOK, status)
	s.Equal(float64(0), body["total"])

	status, body = s.do(stdhttp.MethodGet, "/api/vehicles?limit=5&page=1", s.adminToken, nil)
	s.Equal(stdhttp.StatusOK, status)
	s.Equal(float64(1), body["total"])
	s.Equal(float64(1), body["count"])
	s.Len(body["vehicles"], 1)
	pagination := body["pagination"].(map[string]any)
	s.Equal(float64(1), pagination["currentPage"])
	s.Equal(false, pagination["hasNext"])
	s.Equal(false, pagination["hasPrev"])
}

func (s *RouterSuite) TestNotesAndStats() {
	id := s.createVehicle("EN-10")["id"].(string)
	notesPath := "/api/vehicles/" + id + "/notes"

	status, _ := s.do(stdhttp.MethodPost, notesPath, s.userToken, map[string]any{"note": "hi"})
	s.Equal(stdhttp.StatusForbidden, status)

	status, body := s.do(stdhttp.MethodPost, notesPath, s.adminToken, map[string]any{"note": "documents verified"})
	s.Require().Equal(stdhttp.StatusCreated, status, "%v", body)
	notes := body["vehicle"].(map[string]any)["adminNotes"].([]any)
	s.Len(notes, 1)
	s.Equal("documents verified", notes[0].(map[string]any)["note"])

	status, _ = s.do(stdhttp.MethodGet, "/api/vehicles/stats", s.userToken, nil)
	s.Equal(stdhttp.StatusForbidden, status)

	status, _ = s.do(stdhttp.MethodPut, "/api/vehicles/"+id, s.adminToken, map[string]any{
		"fees": map[string]any{"paymentStatus": "Paid", "penalty": 50},
	})
	s.Require().Equal(stdhttp.StatusOK, status)

	status, body = s.do(stdhttp.MethodGet, "/api/vehicles/stats", s.adminToken, nil)
	s.Require().Equal(stdhttp.StatusOK, status, "%v", body)
	stats := body["stats"].(map[string]any)
	s.Equal(float64(1), stats["totalCount"])
	s.Equal(float64(550), stats["totalRevenue"])
	s.Equal(float64(1), stats["byType"].(map[string]any)["Car"])

	status, body = s.do(stdhttp.MethodGet, "/api/dashboard/stats", s.adminToken, nil)
	s.Require().Equal(stdhttp.StatusOK, status)
	s.Contains(body["stats"], "route")
}

func (s *RouterSuite) TestLicenseRoundTrip() {
	status, body := s.do(stdhttp.MethodPost, "/api/licenses", s.userToken, map[string]any{
		"applicationType": "New License",
		"fullName":        "Jane Doe",
		"nationalId":      "NID-77",
		"dateOfBirth":     "1992-08-17",
		"licenseClass":    "Light Commercial",
	})
	s.Require().Equal(stdhttp.StatusCreated, status, "%v", body)
	created := body["license"].(map[string]any)
	s.Equal("Light Commercial", created["licenseClass"])
	s.Equal(float64(250), created["fees"].(map[string]any)["total"])
	id := created["id"].(string)

	status, body = s.do(stdhttp.MethodPut, "/api/licenses/"+id, s.adminToken, map[string]any{"status": "Approved"})
	s.Require().Equal(stdhttp.StatusOK, status, "%v", body)
	s.Regexp(regexp.MustCompile(`^REG-\d{4}-\d{4}$`), body["license"].(map[string]any)["registrationNumber"])

	status, body = s.do(stdhttp.MethodGet, "/api/licenses?type=Light%20Commercial", s.userToken, nil)
	s.Require().Equal(stdhttp.StatusOK, status)
	s.Equal(float64(1), body["total"])

	status, _ = s.do(stdhttp.MethodGet, "/api/vehicles/"+id, s.adminToken, nil)
	s.Equal(stdhttp.StatusNotFound, status)
}

func (s *RouterSuite) TestTransportRouteRoundTrip() {
	payload := map[string]any{
		"applicationType": "New Route",
		"routeName":       "Coastal Express",
		"routeNumber":     "R-1",
		"routeType":       "Intercity",
		"origin":          "Port",
		"destination":     "Capital",
		"distanceKm":      180,
	}
	status, body := s.do(stdhttp.MethodPost, "/api/transport/routes", s.userToken, payload)
	s.Require().Equal(stdhttp.StatusCreated, status, "%v", body)
	created := body["route"].(map[string]any)
	s.Equal("R-1", created["routeNumber"])
	s.Equal(float64(1000), created["fees"].(map[string]any)["total"])

	status, body = s.do(stdhttp.MethodPost, "/api/transport/routes", s.otherToken, payload)
	s.Equal(stdhttp.StatusBadRequest, status)
	s.Equal("DUPLICATE_FIELD", errorCode(body))

	payload["routeNumber"] = "R-2"
	payload["destination"] = "Port"
	status, body = s.do(stdhttp.MethodPost, "/api/transport/routes", s.otherToken, payload)
	s.Equal(stdhttp.StatusBadRequest, status)
	s.Equal("VALIDATION_FAILED", errorCode(body))

	status, body = s.do(stdhttp.MethodGet, "/api/transport/routes", s.userToken, nil)
	s.Require().Equal(stdhttp.StatusOK, status)
	s.Len(body["routes"], 1)
}

func (s *RouterSuite) TestMyListScopedToCaller() {
	s.createVehicle("EN-20")
	status, body := s.do(stdhttp.MethodPost, "/api/vehicles", s.adminToken, vehiclePayload("EN-21"))
	s.Require().Equal(stdhttp.StatusCreated, status, "%v", body)

	status, body = s.do(stdhttp.MethodGet, "/api/vehicles/my", s.adminToken, nil)
	s.Require().Equal(stdhttp.StatusOK, status, "%v", body)
	s.Equal(float64(1), body["total"])
	s.Equal("EN-21", body["vehicles"].([]any)[0].(map[string]any)["engineNumber"])

	status, body = s.do(stdhttp.MethodGet, "/api/vehicles/my", s.userToken, nil)
	s.Require().Equal(stdhttp.StatusOK, status)
	s.Equal(float64(1), body["total"])

	status, body = s.do(stdhttp.MethodGet, "/api/vehicles", s.adminToken, nil)
	s.Require().Equal(stdhttp.StatusOK, status)
	s.Equal(float64(2), body["total"])
}

func (s *RouterSuite) TestMeAndUnknownRoute() {
	status, body := s.do(stdhttp.MethodGet, "/api/auth/me", s.adminToken, nil)
	s.Require().Equal(stdhttp.StatusOK, status)
	s.Equal("Admin", body["user"].(map[string]any)["role"])

	status, body = s.do(stdhttp.MethodGet, "/nowhere", "", nil)
	s.Equal(stdhttp.StatusNotFound, status)
	s.Equal("NOT_FOUND", errorCode(body))
}

func (s *RouterSuite) TestMetricsEndpoint() {
	s.do(stdhttp.MethodGet, "/health/live", "", nil)

	req := httptest.NewRequest(stdhttp.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Equal(stdhttp.StatusOK, resp.StatusCode)
	s.Contains(string(raw), "portal_http_requests_total")
}
