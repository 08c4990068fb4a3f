// Copyright (c) 2026 Veridian Labs. All rights reserved.

package tenant

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/veridianlabs/veridian/internal/identity"
	"github.com/veridianlabs/veridian/internal/platform/constants"
	requestutil "github.com/veridianlabs/veridian/internal/platform/request"
	"github.com/veridianlabs/veridian/internal/platform/respond"
	"github.com/veridianlabs/veridian/internal/platform/validate"
)

// Handler implements the tenant administration HTTP endpoints.
type Handler struct {
	tenantService *Service
}

// NewHandler constructs a tenant administration [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{tenantService: service}
}

// Routes returns the administration routes. Authentication is enforced by
// middleware; administrator scope is re-checked per operation in the service.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", handler.createApplication)
	router.Get("/", handler.listApplications)

	router.Route("/{applicationID}", func(router chi.Router) {
		router.Get("/", handler.getApplication)
		router.Patch("/status", handler.setApplicationStatus)
		router.Post("/api-key/rotate", handler.rotateAPIKey)

		router.Route("/roles", func(router chi.Router) {
			router.Post("/", handler.createRole)
			router.Route("/{roleID}", func(router chi.Router) {
				router.Patch("/", handler.renameRole)
				router.Delete("/", handler.deleteRole)
				router.Post("/default", handler.setDefaultRole)
				router.Patch("/status", handler.setRoleStatus)
				router.Post("/permissions", handler.addPermission)
				router.Delete("/permissions/{permissionID}", handler.removePermission)
			})
		})

		router.Route("/users", func(router chi.Router) {
			router.Post("/", handler.assignUser)
			router.Route("/{userID}", func(router chi.Router) {
				router.Delete("/", handler.removeUser)
				router.Patch("/role", handler.changeUserRole)
				router.Patch("/status", handler.setMembershipStatus)
			})
		})
	})

	return router
}

// ValidationRoutes returns the unauthenticated service-to-service route for
// API key validation. The key travels in the X-Api-Key header, never in the
// body or the URL.
func (handler *Handler) ValidationRoutes() chi.Router {
	router := chi.NewRouter()
	router.Post("/validate-key", handler.validateAPIKey)
	return router
}

// # Response Shapes

type permissionResponse struct {
	ID       string `json:"id"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Name     string `json:"name"`
	Key      string `json:"key"`
}

type roleResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	IsActive    bool                 `json:"is_active"`
	IsDefault   bool                 `json:"is_default"`
	Permissions []permissionResponse `json:"permissions"`
}

type membershipResponse struct {
	UserID         string     `json:"user_id"`
	RoleID         string     `json:"role_id"`
	IsActive       bool       `json:"is_active"`
	AssignedAt     time.Time  `json:"assigned_at"`
	AssignedBy     string     `json:"assigned_by"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// applicationResponse is the client-facing projection of an application.
// The API key hash never appears here.
type applicationResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Code        string               `json:"code"`
	Description string               `json:"description,omitempty"`
	IsActive    bool                 `json:"is_active"`
	CreatedAt   time.Time            `json:"created_at"`
	Roles       []roleResponse       `json:"roles,omitempty"`
	Memberships []membershipResponse `json:"memberships,omitempty"`
}

func toPermissionResponse(permission identity.Permission) permissionResponse {
	return permissionResponse{
		ID:       permission.ID,
		Resource: permission.Resource,
		Action:   permission.Action,
		Name:     permission.Name,
		Key:      permission.Key(),
	}
}

func toRoleResponse(role *identity.ApplicationRole) roleResponse {
	permissions := make([]permissionResponse, 0, len(role.Permissions))
	for _, permission := range role.Permissions {
		permissions = append(permissions, toPermissionResponse(permission))
	}
	return roleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		IsActive:    role.IsActive,
		IsDefault:   role.IsDefault,
		Permissions: permissions,
	}
}

func toApplicationResponse(application *identity.Application) applicationResponse {
	response := applicationResponse{
		ID:          application.ID,
		Name:        application.Name,
		Code:        application.Code.String(),
		Description: application.Description,
		IsActive:    application.IsActive,
		CreatedAt:   application.CreatedAt,
	}
	for _, role := range application.Roles {
		response.Roles = append(response.Roles, toRoleResponse(role))
	}
	for _, membership := range application.Memberships {
		response.Memberships = append(response.Memberships, membershipResponse{
			UserID:         membership.UserID,
			RoleID:         membership.RoleID,
			IsActive:       membership.IsActive,
			AssignedAt:     membership.AssignedAt,
			AssignedBy:     membership.AssignedBy,
			LastAccessedAt: membership.LastAccessedAt,
		})
	}
	return response
}

// actor resolves the acting principal; administrator scope is verified here
// so unauthenticated requests fail before touching the service.
func actor(request *http.Request) (Actor, error) {
	claims, err := requestutil.RequiredAdmin(request)
	if err != nil {
		return Actor{}, err
	}
	return ActorFromClaims(claims), nil
}

// # Application Endpoints

type createApplicationRequest struct {
	Name        string `json:"name"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}

// createApplication handles POST /api/v1/applications.
//
// The response carries the plaintext API key exactly once.
func (handler *Handler) createApplication(writer http.ResponseWriter, request *http.Request) {
	actingPrincipal, err := actor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input createApplicationRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	if err := validator.Required("name", input.Name).MaxLen("name", input.Name, 120).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	application, plaintextKey, err := handler.tenantService.CreateApplication(request.Context(), actingPrincipal, CreateApplicationInput{
		Name:        input.Name,
		Code:        input.Code,
		Description: input.Description,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, map[string]any{
		"application": toApplicationResponse(application),
		"api_key":     plaintextKey,
	})
}

// listApplications handles GET /api/v1/applications.
func (handler *Handler) listApplications(writer http.ResponseWriter, request *http.Request) {
	actingPrincipal, err := actor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	applications, err := handler.tenantService.ListApplications(request.Context(), actingPrincipal)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	responses := make([]applicationResponse, 0, len(applications))
	for _, application := range applications {
		responses = append(responses, toApplicationResponse(application))
	}
	respond.OK(writer, responses)
}

// getApplication handles GET /api/v1/applications/{applicationID}.
func (handler *Handler) getApplication(writer http.ResponseWriter, request *http.Request) {
	actingPrincipal, err := actor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	application, err := handler.tenantService.GetApplication(request.Context(), actingPrincipal, requestutil.Param(request, "applicationID"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, toApplicationResponse(application))
}

type statusRequest struct {
	Active bool `json:"active"`
}

// setApplicationStatus handles PATCH /api/v1/applications/{applicationID}/status.
func (handler *Handler) setApplicationStatus(writer http.ResponseWriter, request *http.Request) {
	actingPrincipal, err := actor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input statusRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.tenantService.SetApplicationActive(request.Context(), actingPrincipal,
		requestutil.Param(request, "applicationID"), input.Active)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// rotateAPIKey handles POST /api/v1/applications/{applicationID}/api-key/rotate.
func (handler *Handler) rotateAPIKey(writer http.ResponseWriter, request *http.Request) {
	actingPrincipal, err := actor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	plaintextKey, err := handler.tenantService.RotateAPIKey(request.Context(), actingPrincipal,
		requestutil.Param(request, "applicationID"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"api_key": plaintextKey})
}

type validateKeyRequest struct {
	ApplicationCode string `json:"application_code"`
}

// validateAPIKey handles POST /api/v1/tenants/validate-key.
func (handler *Handler) validateAPIKey(writer http.ResponseWriter, request *http.Request) {
	var input validateKeyRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	key := request.Header.Get(constants.APIKeyHeader)
	if input.ApplicationCode == "" || key == "" {
		respond.OK(writer, map[string]any{"valid": false})
		return
	}

	valid, err := handler.tenantService.ValidateAPIKey(request.Context(), input.ApplicationCode, key)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"valid": valid})
}

// # Role Endpoints

type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"is_default,omitempty"`
}

// createRole handles POST /api/v1/applications/{applicationID}/roles.
func (handler *Handler) createRole(writer http.ResponseWriter, request *http.Request) {
	actingPrincipal, err := actor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input roleRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	if err := validator.Required("name", input.Name).MaxLen("name", input.Name, 80).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	role, err := handler.tenantService.CreateRole(request.Context(), actingPrincipal,
		requestutil.Param(request, "applicationID"),
		RoleInput{Name: input.Name, Description: input.Description, IsDefault: input.IsDefault})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, toRoleResponse(role))
}

// renameRole handles PATCH /api/v1/applications/{applicationID}/roles/{roleID}.
func (handler *Handler) renameRole(writer http.ResponseWriter, request *http.Request) {
	actingPrincipal, err := actor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input roleRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.tenantService.RenameRole(request.Context(), actingPrincipal,
		requestutil.Param(request, "applicationID"), requestutil.Param(request, "roleID"),
		RoleInput{Name: input.Name, Description: input.Description})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// setDefaultRole handles POST /api/v1/applications/{applicationID}/roles/{roleID}/default.
func (handler *Handler) setDefaultRole(writer http.ResponseWriter, request *http.Request) {
	actingPrincipal, err := actor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.tenantService.SetDefaultRole(request.Context(), actingPrincipal,
		requestutil.Param(request, "applicationID"), requestutil.Param(request, "roleID"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// setRoleStatus handles PATCH /api/v1/applications/{applicationID}/roles/{roleID}/status.
func (handler *Handler) setRoleStatus(writer http.ResponseWriter, request *http.Request) {
	actingPrincipal, err := actor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input statusRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.tenantService.SetRoleActive(request.Context(), actingPrincipal,
		requestutil.Param(request, "applicationID"), requestutil.Param(request, "roleID"), input.Active)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// deleteRole handles DELETE /api/v1/applications/{applicationID}/roles/{roleID}.
func (handler *Handler) deleteRole(writer http.ResponseWriter, request *http.Request) {
	actingPrincipal, err := actor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.tenantService.DeleteRole(request.Context(), actingPrincipal,
		requestutil.Param(request, "applicationID"), requestutil.Param(request, "roleID"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

type permissionRequest struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Name     string `json:"name,omitempty"`
}

// addPermission handles POST /api/v1/applications/{applicationID}/roles/{roleID}/permissions.
func (handler *Handler) addPermission(writer http.ResponseWriter, request *http.Request) {
	actingPrincipal, err := actor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input permissionRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	err = validator.
		Required("resource", input.Resource).
		Required("action", input.Action).
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	permission, err := handler.tenantService.AddPermission(request.Context(), actingPrincipal,
		requestutil.Param(request, "applicationID"), requestutil.Param(request, "roleID"),
		PermissionInput{Resource: input.Resource, Action: input.Action, Name: input.Name})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, toPermissionResponse(permission))
}

// removePermission handles DELETE .../roles/{roleID}/permissions/{permissionID}.
func (handler *Handler) removePermission(writer http.ResponseWriter, request *http.Request) {
	actingPrincipal, err := actor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.tenantService.RemovePermission(request.Context(), actingPrincipal,
		requestutil.Param(request, "applicationID"), requestutil.Param(request, "roleID"),
		requestutil.Param(request, "permissionID"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Membership Endpoints

type assignUserRequest struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id,omitempty"`
}

// assignUser handles POST /api/v1/applications/{applicationID}/users.
func (handler *Handler) assignUser(writer http.ResponseWriter, request *http.Request) {
	actingPrincipal, err := actor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input assignUserRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	if err := validator.Required("user_id", input.UserID).UUID("user_id", input.UserID).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	membership, err := handler.tenantService.AssignUser(request.Context(), actingPrincipal,
		requestutil.Param(request, "applicationID"),
		AssignUserInput{UserID: input.UserID, RoleID: input.RoleID})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, membershipResponse{
		UserID:         membership.UserID,
		RoleID:         membership.RoleID,
		IsActive:       membership.IsActive,
		AssignedAt:     membership.AssignedAt,
		AssignedBy:     membership.AssignedBy,
		LastAccessedAt: membership.LastAccessedAt,
	})
}

type changeRoleRequest struct {
	RoleID string `json:"role_id"`
}

// changeUserRole handles PATCH /api/v1/applications/{applicationID}/users/{userID}/role.
func (handler *Handler) changeUserRole(writer http.ResponseWriter, request *http.Request) {
	actingPrincipal, err := actor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changeRoleRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	if err := validator.Required("role_id", input.RoleID).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.tenantService.ChangeUserRole(request.Context(), actingPrincipal,
		requestutil.Param(request, "applicationID"), requestutil.Param(request, "userID"), input.RoleID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// setMembershipStatus handles PATCH /api/v1/applications/{applicationID}/users/{userID}/status.
func (handler *Handler) setMembershipStatus(writer http.ResponseWriter, request *http.Request) {
	actingPrincipal, err := actor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input statusRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.tenantService.SetMembershipActive(request.Context(), actingPrincipal,
		requestutil.Param(request, "applicationID"), requestutil.Param(request, "userID"), input.Active)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// removeUser handles DELETE /api/v1/applications/{applicationID}/users/{userID}.
func (handler *Handler) removeUser(writer http.ResponseWriter, request *http.Request) {
	actingPrincipal, err := actor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.tenantService.RemoveUser(request.Context(), actingPrincipal,
		requestutil.Param(request, "applicationID"), requestutil.Param(request, "userID"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
