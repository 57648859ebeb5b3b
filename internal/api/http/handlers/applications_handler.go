package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/transport-portal/internal/api/dto"
	"github.com/spec-kit/transport-portal/internal/auth"
	"github.com/spec-kit/transport-portal/internal/domain"
	"github.com/spec-kit/transport-portal/internal/service"
	"github.com/spec-kit/transport-portal/internal/validation"
	apperrors "github.com/spec-kit/transport-portal/pkg/util/errorutil"
)

// resourceNames holds the JSON keys used for one and many records of a kind.
var resourceNames = map[domain.ApplicationKind]struct {
	singular string
	plural   string
	label    string
}{
	domain.KindVehicle: {"vehicle", "vehicles", "Vehicle application"},
	domain.KindLicense: {"license", "licenses", "License application"},
	domain.KindRoute:   {"route", "routes", "Transport route application"},
}

// serverManaged lists body keys an update may never write directly.
var serverManaged = map[string]struct{}{
	"id":                 {},
	"_id":                {},
	"kind":               {},
	"user":               {},
	"userId":             {},
	"applicationType":    {},
	"registrationNumber": {},
	"reviewDate":         {},
	"completionDate":     {},
	"adminNotes":         {},
	"notes":              {},
	"createdAt":          {},
	"updatedAt":          {},
}

// ApplicationsHandler exposes the CRUD, notes and stats endpoints of one
// application kind.
type ApplicationsHandler struct {
	apps     *service.ApplicationService
	kind     domain.ApplicationKind
	singular string
	plural   string
	label    string
}

// NewApplicationsHandler constructs a handler for kind.
func NewApplicationsHandler(apps *service.ApplicationService, kind domain.ApplicationKind) *ApplicationsHandler {
	names := resourceNames[kind]
	return &ApplicationsHandler{apps: apps, kind: kind, singular: names.singular, plural: names.plural, label: names.label}
}

// Create handles POST /.
func (h *ApplicationsHandler) Create(c *fiber.Ctx) error {
	body := c.Body()
	var req dto.CreateApplicationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validation.Struct(req); err != nil {
		return err
	}
	details, err := domain.DecodeDetails(h.kind, body)
	if err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"details": err.Error()})
	}

	app, err := h.apps.Create(c.UserContext(), auth.ActorFromContext(c), service.CreateApplicationInput{
		Kind:            h.kind,
		ApplicationType: req.ApplicationType,
		Details:         details,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success":  true,
		"message":  h.label + " submitted successfully",
		h.singular: dto.NewApplicationResponse(app),
	})
}

// List handles GET /.
func (h *ApplicationsHandler) List(c *fiber.Ctx) error {
	return h.list(c, false)
}

// ListMine handles GET /my: the list endpoint restricted to the caller's own
// applications, admins included.
func (h *ApplicationsHandler) ListMine(c *fiber.Ctx) error {
	return h.list(c, true)
}

func (h *ApplicationsHandler) list(c *fiber.Ctx, mine bool) error {
	var query dto.ApplicationListQuery
	if err := c.QueryParser(&query); err != nil {
		return apperrors.NewValidationError("invalid query parameters", nil)
	}
	if err := validation.Struct(query); err != nil {
		return err
	}

	input := service.ListApplicationsInput{
		Kind:  h.kind,
		Page:  query.Page,
		Limit: query.Limit,
	}
	for _, status := range splitCSV(query.Status) {
		input.Statuses = append(input.Statuses, domain.ApplicationStatus(status))
	}
	if query.Type != "" {
		input.Category = &query.Type
	}
	if query.ApplicationType != "" {
		appType := domain.ApplicationType(query.ApplicationType)
		input.ApplicationType = &appType
	}
	if query.Search != "" {
		input.Search = &query.Search
	}
	if query.UserID != "" {
		input.OwnerID = &query.UserID
	}

	actor := auth.ActorFromContext(c)
	if mine {
		input.OwnerID = &actor.ID
	}
	page, err := h.apps.List(c.UserContext(), actor, input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":    true,
		h.plural:     dto.NewApplicationResponses(page.Items),
		"count":      len(page.Items),
		"total":      page.Total,
		"pagination": dto.NewPagination(page),
	})
}

// Get handles GET /:id.
func (h *ApplicationsHandler) Get(c *fiber.Ctx) error {
	app, err := h.apps.Get(c.UserContext(), auth.ActorFromContext(c), h.kind, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":  true,
		h.singular: dto.NewApplicationResponse(app),
	})
}

// Update handles PUT /:id. The body may carry detail fields, a status and a
// fees object; server-managed fields are ignored.
func (h *ApplicationsHandler) Update(c *fiber.Ctx) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(c.Body(), &fields); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	var input service.UpdateApplicationInput
	if raw, ok := fields["status"]; ok {
		var status domain.ApplicationStatus
		if err := json.Unmarshal(raw, &status); err != nil {
			return apperrors.NewValidationError("Validation failed", map[string]any{"status": "must be a string"})
		}
		input.Status = &status
		delete(fields, "status")
	}
	if raw, ok := fields["fees"]; ok {
		var fees dto.FeesRequest
		if err := json.Unmarshal(raw, &fees); err != nil {
			return apperrors.NewValidationError("Validation failed", map[string]any{"fees": "must be an object"})
		}
		if err := validation.Struct(fees); err != nil {
			return err
		}
		adj := fees.Adjustment()
		input.Fees = &adj
		delete(fields, "fees")
	}
	for key := range fields {
		if _, managed := serverManaged[key]; managed {
			delete(fields, key)
		}
	}
	if len(fields) > 0 {
		input.DetailsPatch = fields
	}

	app, err := h.apps.Update(c.UserContext(), auth.ActorFromContext(c), h.kind, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"message":  h.label + " updated successfully",
		h.singular: dto.NewApplicationResponse(app),
	})
}

// Delete handles DELETE /:id.
func (h *ApplicationsHandler) Delete(c *fiber.Ctx) error {
	if err := h.apps.Delete(c.UserContext(), auth.ActorFromContext(c), h.kind, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": h.label + " deleted successfully",
	})
}

// AddNote handles POST /:id/notes.
func (h *ApplicationsHandler) AddNote(c *fiber.Ctx) error {
	var req dto.NoteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validation.Struct(req); err != nil {
		return err
	}

	app, note, err := h.apps.AddNote(c.UserContext(), auth.ActorFromContext(c), h.kind, c.Params("id"), req.Note)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success":  true,
		"message":  "Admin note added successfully",
		"note":     dto.NewNoteResponse(*note),
		h.singular: dto.NewApplicationResponse(app),
	})
}

// Stats handles GET /stats.
func (h *ApplicationsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.apps.Stats(c.UserContext(), auth.ActorFromContext(c), h.kind)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"stats":   stats,
	})
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
