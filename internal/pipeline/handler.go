package pipeline

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"invoicing-backend/internal/delivery"
	"invoicing-backend/internal/dispatch"
	"invoicing-backend/internal/documents"
	"invoicing-backend/internal/identity"
	"invoicing-backend/internal/render"
	"invoicing-backend/internal/render/clone"
	"invoicing-backend/internal/shared/server/middleware"
	"invoicing-backend/internal/shared/server/respond"
	"invoicing-backend/internal/tenants"
)

// Handler exposes the pipeline over HTTP.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to a tenant-scoped group
// (/tenants/:slug). sendLimits run before the send handler only.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, sendLimits ...gin.HandlerFunc) {
	rg.POST("/documents/render", h.renderDocument)
	rg.GET("/documents/:number/link", h.getLink)
	send := append(append([]gin.HandlerFunc{}, sendLimits...), h.send)
	rg.POST("/documents/:number/send", send...)
}

type renderResponse struct {
	Success           bool   `json:"success"`
	ArtifactLocation  string `json:"artifactLocation,omitempty"`
	InlineBytesBase64 string `json:"inlineBytesBase64,omitempty"`
	SuggestedFilename string `json:"suggestedFilename"`
}

func (h *Handler) renderDocument(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	req.TenantSlug = tenantSlug(c)
	c.Set(middleware.DocumentKey, req.DocumentNumberOrID)

	out, err := h.Svc.Generate(c.Request.Context(), req)
	if out.Renderer != "" {
		c.Set(middleware.RendererKey, out.Renderer)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	resp := renderResponse{Success: true, SuggestedFilename: out.Result.Filename()}
	switch r := out.Result.(type) {
	case render.LinkResult:
		resp.ArtifactLocation = r.URL
	case render.InlineResult:
		resp.InlineBytesBase64 = base64.StdEncoding.EncodeToString(r.Bytes)
	}
	c.Set(middleware.OutcomeKey, "rendered")
	respond.OK(c, resp)
}

type linkResponse struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

func (h *Handler) getLink(c *gin.Context) {
	number := c.Param("number")
	c.Set(middleware.DocumentKey, number)

	out, err := h.Svc.GetLink(c.Request.Context(), tenantSlug(c), number)
	if err != nil {
		writeError(c, err)
		return
	}
	if out.Link.Regenerated {
		c.Set(middleware.OutcomeKey, "regenerated")
	} else {
		c.Set(middleware.OutcomeKey, "cached")
	}
	respond.NoStore(c, linkResponse{URL: out.Link.URL, Key: out.Link.Key})
}

type sendResponse struct {
	Sent              bool   `json:"sent"`
	Recipient         string `json:"recipient"`
	Subject           string `json:"subject"`
	Link              string `json:"link"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
}

type queuedResponse struct {
	Queued         bool   `json:"queued"`
	DocumentNumber string `json:"documentNumber"`
	Recipient      string `json:"recipient"`
	RequestID      string `json:"requestId"`
}

func (h *Handler) send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	req.TenantSlug = tenantSlug(c)
	req.DocumentNumberOrID = c.Param("number")
	c.Set(middleware.DocumentKey, req.DocumentNumberOrID)

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		msg, err := h.Svc.Enqueue(c.Request.Context(), req, middleware.RequestIDFromContext(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.Set(middleware.OutcomeKey, "queued")
		respond.Accepted(c, queuedResponse{
			Queued:         true,
			DocumentNumber: msg.DocumentNumber,
			Recipient:      msg.Recipient,
			RequestID:      msg.RequestID,
		})
		return
	}

	out, err := h.Svc.Send(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set(middleware.OutcomeKey, "sent")
	respond.NoStore(c, sendResponse{
		Sent:              true,
		Recipient:         out.Recipient,
		Subject:           out.Subject,
		Link:              out.Link,
		ProviderMessageID: out.ProviderMessageID,
	})
}

func tenantSlug(c *gin.Context) string {
	if slug := middleware.TenantFromContext(c); slug != "" {
		return slug
	}
	return tenants.NormalizeSlug(c.Param("slug"))
}

// writeError maps pipeline failures to responses. Messages never carry
// credential material.
func writeError(c *gin.Context, err error) {
	var (
		resolution *identity.ResolutionError
		missing    *clone.TemplateNotFoundError
		dispatched *dispatch.DispatchError
		artifact   *delivery.ArtifactUnavailableError
		rendered   *render.Error
	)
	c.Set(middleware.OutcomeKey, "failed")

	switch {
	case errors.Is(err, tenants.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "tenant_not_found", "tenant not found", nil)
	case errors.Is(err, documents.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "document_not_found", "document not found", nil)
	case errors.As(err, &missing):
		respond.Error(c, http.StatusNotFound, "template_not_found", missing.Error(), nil)
	case errors.Is(err, dispatch.ErrInvalidRecipient):
		respond.Error(c, http.StatusBadRequest, "invalid_recipient", "recipient is not a valid email address", nil)
	case errors.Is(err, documents.ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", validationMessage(err), nil)
	case errors.Is(err, ErrQueueNotConfigured):
		respond.Error(c, http.StatusServiceUnavailable, "queue_unavailable", "async send is not configured", nil)
	case errors.As(err, &resolution):
		respond.Error(c, http.StatusBadGateway, "identity_resolution_failed", "could not authenticate as the tenant's document identity", gin.H{"step": resolution.Step})
	case errors.Is(err, identity.ErrBaselineNotConfigured):
		respond.Error(c, http.StatusBadGateway, "identity_resolution_failed", "service identity not configured", nil)
	case errors.As(err, &dispatched):
		respond.Error(c, http.StatusBadGateway, "dispatch_failed", dispatched.Message, nil)
	case errors.As(err, &artifact):
		respond.Error(c, http.StatusBadGateway, "artifact_unavailable", "artifact could not be produced", gin.H{"key": artifact.Key})
	case errors.As(err, &rendered):
		respond.Error(c, http.StatusBadGateway, "render_failed", "document render failed", gin.H{"step": rendered.Step})
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "request failed", nil)
	}
}

// validationMessage strips the sentinel prefix from a validation error.
func validationMessage(err error) string {
	msg := err.Error()
	prefix := documents.ErrInvalidInput.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}
