// Package pipeline runs the document steps for one tenant in strict order:
// tenant, document, identity, render, delivery, dispatch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"invoicing-backend/internal/delivery"
	"invoicing-backend/internal/dispatch"
	"invoicing-backend/internal/docsapi"
	"invoicing-backend/internal/documents"
	"invoicing-backend/internal/identity"
	"invoicing-backend/internal/queue"
	"invoicing-backend/internal/render"
	"invoicing-backend/internal/render/billing"
	"invoicing-backend/internal/render/clone"
	"invoicing-backend/internal/shared/metrics"
	"invoicing-backend/internal/shared/telemetry"
	"invoicing-backend/internal/tenants"
)

// Renderer names reported in metrics and request logs.
const (
	RendererClone  = "clone"
	RendererLayout = "layout"
)

// ErrQueueNotConfigured is returned for async sends without a queue.
var ErrQueueNotConfigured = errors.New("send queue not configured")

// TenantResolver loads tenants by slug.
type TenantResolver interface {
	Resolve(ctx context.Context, slug string) (tenants.Tenant, error)
}

// IdentityResolver builds the API client a tenant's documents are rendered with.
type IdentityResolver interface {
	ResolveClient(ctx context.Context, tenant tenants.Tenant) (*identity.Client, error)
}

// DocsAPI is the document API surface used for template rendering and
// fetching exported links.
type DocsAPI interface {
	clone.DocsAPI
	Download(ctx context.Context, link string) ([]byte, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Tenants    TenantResolver
	Identity   IdentityResolver
	Documents  documents.Repo
	Clone      *clone.Renderer
	Layout     *billing.Renderer
	Delivery   *delivery.Resolver
	Dispatcher *dispatch.Dispatcher
	Queue      queue.Client

	// NewDocsAPI binds the document API to an identity's HTTP client.
	// Defaults to docsapi.New.
	NewDocsAPI func(*http.Client) DocsAPI
}

// Service orchestrates generation, link resolution and dispatch.
type Service struct {
	tenants    TenantResolver
	identity   IdentityResolver
	documents  documents.Repo
	clone      *clone.Renderer
	layout     *billing.Renderer
	delivery   *delivery.Resolver
	dispatcher *dispatch.Dispatcher
	queue      queue.Client
	newDocsAPI func(*http.Client) DocsAPI
	now        func() time.Time
}

// New builds a Service from deps.
func New(deps Deps) *Service {
	s := &Service{
		tenants:    deps.Tenants,
		identity:   deps.Identity,
		documents:  deps.Documents,
		clone:      deps.Clone,
		layout:     deps.Layout,
		delivery:   deps.Delivery,
		dispatcher: deps.Dispatcher,
		queue:      deps.Queue,
		newDocsAPI: deps.NewDocsAPI,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if s.clone == nil {
		s.clone = clone.New()
	}
	if s.layout == nil {
		s.layout = billing.New()
	}
	if s.newDocsAPI == nil {
		s.newDocsAPI = func(c *http.Client) DocsAPI { return docsapi.New(c) }
	}
	return s
}

// job is the resolved context shared by every step after lookup.
type job struct {
	tenant tenants.Tenant
	doc    documents.Document
	client *identity.Client
}

// prepare resolves the tenant, the document and the identity, in that order.
// A nil payload loads the document from the store.
func (s *Service) prepare(ctx context.Context, slug, numberOrID string, docType documents.Type, payload *DocumentPayload) (job, error) {
	tenant, err := s.tenants.Resolve(ctx, slug)
	if err != nil {
		return job{}, err
	}

	var doc documents.Document
	if payload != nil {
		doc, err = payload.document(tenant, docType, numberOrID)
	} else {
		doc, err = documents.Lookup(ctx, s.documents, tenant.ID, strings.TrimSpace(numberOrID))
		if err == nil && docType != "" && doc.Type != docType {
			err = fmt.Errorf("%w: document %s is a %s, not a %s", documents.ErrInvalidInput, doc.Number, doc.Type, docType)
		}
	}
	if err != nil {
		return job{}, err
	}
	if err := doc.Validate(); err != nil {
		return job{}, err
	}

	client, err := s.identity.ResolveClient(ctx, tenant)
	if err != nil {
		return job{}, err
	}
	return job{tenant: tenant, doc: doc, client: client}, nil
}

// Generate renders one document and returns the link or bytes.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (out Generated, err error) {
	ctx, span := startSpan(ctx, "pipeline.generate", req.TenantSlug, req.DocumentNumberOrID)
	defer func() { finish(span, err) }()

	if err := req.Validate(); err != nil {
		return Generated{}, err
	}
	docType, _ := documents.ParseType(req.DocumentType)

	j, err := s.prepare(ctx, req.TenantSlug, req.DocumentNumberOrID, docType, req.Payload)
	if err != nil {
		return Generated{}, err
	}
	res, renderer, err := s.render(ctx, j)
	if err != nil {
		return Generated{}, err
	}
	return Generated{Result: res, Renderer: renderer, Tenant: j.tenant, Document: j.doc}, nil
}

// GetLink returns a signed link to the stored artifact, rendering it first
// when the store has none.
func (s *Service) GetLink(ctx context.Context, slug, numberOrID string) (out Linked, err error) {
	ctx, span := startSpan(ctx, "pipeline.get_link", slug, numberOrID)
	defer func() { finish(span, err) }()

	if tenants.NormalizeSlug(slug) == "" || strings.TrimSpace(numberOrID) == "" {
		return Linked{}, fmt.Errorf("%w: tenant and document number are required", documents.ErrInvalidInput)
	}
	j, err := s.prepare(ctx, slug, numberOrID, "", nil)
	if err != nil {
		return Linked{}, err
	}
	link, err := s.delivery.GetLink(ctx, j.tenant.Slug, j.doc.Number, s.regenerate(j))
	if err != nil {
		return Linked{}, err
	}
	return Linked{Link: link, Tenant: j.tenant, Document: j.doc}, nil
}

// Send resolves the artifact link and emails it. Every dispatch attempt is
// logged; failures before dispatch write no log entry.
func (s *Service) Send(ctx context.Context, req SendRequest) (out Sent, err error) {
	ctx, span := startSpan(ctx, "pipeline.send", req.TenantSlug, req.DocumentNumberOrID)
	defer func() { finish(span, err) }()

	if err := req.Validate(); err != nil {
		return Sent{}, err
	}
	if s.dispatcher == nil {
		return Sent{}, errors.New("dispatcher not configured")
	}

	linked, err := s.GetLink(ctx, req.TenantSlug, req.DocumentNumberOrID)
	if err != nil {
		return Sent{}, err
	}
	entry, err := s.dispatcher.Send(ctx, linked.Tenant, linked.Document, req.Recipient, linked.Link.URL)
	if err != nil {
		return Sent{}, err
	}
	return Sent{
		Recipient:         entry.Recipient,
		Subject:           entry.Subject,
		Link:              entry.Link,
		ProviderMessageID: entry.ProviderMessageID,
	}, nil
}

// Enqueue validates req, checks the tenant exists and queues a send job.
func (s *Service) Enqueue(ctx context.Context, req SendRequest, requestID string) (queue.Message, error) {
	if err := req.Validate(); err != nil {
		return queue.Message{}, err
	}
	if s.queue == nil {
		return queue.Message{}, ErrQueueNotConfigured
	}
	tenant, err := s.tenants.Resolve(ctx, req.TenantSlug)
	if err != nil {
		return queue.Message{}, err
	}

	msg := queue.Message{
		TenantSlug:     tenant.Slug,
		DocumentNumber: strings.TrimSpace(req.DocumentNumberOrID),
		Recipient:      strings.TrimSpace(req.Recipient),
		RequestID:      requestID,
		EnqueuedAt:     s.now().Format(time.RFC3339),
		Version:        queue.MessageVersion,
	}
	if err := s.queue.Send(ctx, msg); err != nil {
		return queue.Message{}, fmt.Errorf("enqueue send: %w", err)
	}
	telemetry.Info("pipeline.send_enqueued", map[string]any{
		"tenant": msg.TenantSlug, "document": msg.DocumentNumber, "request_id": requestID,
	})
	return msg, nil
}

// render picks the template path when the tenant has a template for the
// document type and the direct layout otherwise.
func (s *Service) render(ctx context.Context, j job) (render.Result, string, error) {
	renderer := RendererLayout
	if strings.TrimSpace(j.tenant.TemplateFor(string(j.doc.Type))) != "" {
		renderer = RendererClone
	}
	ctx, span := startSpan(ctx, "pipeline.render."+renderer, j.tenant.Slug, j.doc.Number)

	start := time.Now()
	var (
		res render.Result
		err error
	)
	if renderer == RendererClone {
		res, err = s.clone.Render(ctx, s.newDocsAPI(j.client.HTTP), j.tenant, j.doc)
	} else {
		res, err = s.layout.Render(j.tenant, j.doc)
	}
	finish(span, err)

	if err != nil {
		metrics.IncRenderFailure(failureStep(err))
		telemetry.Warn("pipeline.render_failed", map[string]any{
			"tenant": j.tenant.Slug, "document": j.doc.Number, "renderer": renderer, "error": err,
		})
		return nil, renderer, err
	}
	metrics.IncDocumentRendered(renderer)
	metrics.ObserveRenderDurationMs(metrics.Since(start))
	telemetry.Info("pipeline.rendered", map[string]any{
		"tenant": j.tenant.Slug, "document": j.doc.Number, "renderer": renderer, "identity": string(j.client.Mode),
	})
	return res, renderer, nil
}

// regenerate renders j to bytes for the artifact store, fetching the export
// when the template path returns a link.
func (s *Service) regenerate(j job) delivery.Regenerate {
	return func(ctx context.Context) ([]byte, error) {
		res, _, err := s.render(ctx, j)
		if err != nil {
			return nil, err
		}
		switch r := res.(type) {
		case render.InlineResult:
			return r.Bytes, nil
		case render.LinkResult:
			b, err := s.newDocsAPI(j.client.HTTP).Download(ctx, r.URL)
			if err != nil {
				return nil, &render.Error{Step: render.StepFetch, Document: j.doc.Number, Err: err}
			}
			return b, nil
		}
		return nil, fmt.Errorf("unexpected render result %T", res)
	}
}

func failureStep(err error) string {
	var tnf *clone.TemplateNotFoundError
	if errors.As(err, &tnf) {
		return "template_not_found"
	}
	var re *render.Error
	if errors.As(err, &re) {
		return re.Step
	}
	return "unknown"
}
