package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/production-planner/internal/domain/production"
	"github.com/yungbote/production-planner/internal/http/response"
	"github.com/yungbote/production-planner/internal/platform/logger"
	"github.com/yungbote/production-planner/internal/production/planner"
	"github.com/yungbote/production-planner/internal/production/quality"
)

// ManifestService is the part of the planner the manifest routes use.
type ManifestService interface {
	Submit(ctx context.Context, owner uuid.UUID, m *production.ProductionManifest) (*production.ProductionManifest, error)
	Get(ctx context.Context, owner, id uuid.UUID) (*production.ProductionManifest, error)
	List(ctx context.Context, owner uuid.UUID, filter production.ManifestFilter, page production.Page) ([]*production.ProductionManifest, int64, error)
	Validate(ctx context.Context, owner, id uuid.UUID) (*production.ProductionManifest, error)
	Edit(ctx context.Context, owner, id uuid.UUID, expectedVersion int, e planner.Edit) (*production.ProductionManifest, error)
	Approve(ctx context.Context, owner, id uuid.UUID) (*production.ProductionManifest, error)
	Start(ctx context.Context, owner, id uuid.UUID) (*production.ProductionManifest, error)
	Cancel(ctx context.Context, owner, id uuid.UUID) (*production.ProductionManifest, error)
	CancelJob(ctx context.Context, owner, id, jobID uuid.UUID) error
	Quality(ctx context.Context, owner, id uuid.UUID) (quality.Breakdown, error)
	Delete(ctx context.Context, owner, id uuid.UUID) error
}

var _ ManifestService = (*planner.Service)(nil)

type ManifestHandler struct {
	log       *logger.Logger
	manifests ManifestService
}

func NewManifestHandler(log *logger.Logger, manifests ManifestService) *ManifestHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ManifestHandler{log: log.With("handler", "ManifestHandler"), manifests: manifests}
}

// POST /api/manifests
func (h *ManifestHandler) Create(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}
	var m production.ProductionManifest
	if err := c.ShouldBindJSON(&m); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	created, err := h.manifests.Submit(c.Request.Context(), owner, &m)
	if err != nil {
		response.RespondPlannerError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"manifest": created})
}

// GET /api/manifests
func (h *ManifestHandler) List(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}
	filter := production.ManifestFilter{
		Status:           production.ManifestStatus(strings.TrimSpace(c.Query("status"))),
		ValidationStatus: production.ValidationStatus(strings.TrimSpace(c.Query("validation_status"))),
		Profile:          strings.TrimSpace(c.Query("profile")),
	}
	var page production.Page
	var err error
	if v := c.Query("limit"); v != "" {
		if page.Limit, err = strconv.Atoi(v); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
	}
	if v := c.Query("offset"); v != "" {
		if page.Offset, err = strconv.Atoi(v); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_offset", err)
			return
		}
	}
	page = page.Normalize()
	items, total, err := h.manifests.List(c.Request.Context(), owner, filter, page)
	if err != nil {
		response.RespondPlannerError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"manifests": items, "total": total, "limit": page.Limit, "offset": page.Offset})
}

// GET /api/manifests/:id
func (h *ManifestHandler) Get(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	m, err := h.manifests.Get(c.Request.Context(), owner, id)
	if err != nil {
		response.RespondPlannerError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"manifest": m})
}

type editManifestRequest struct {
	Version         int                    `json:"version"`
	Title           *string                `json:"title"`
	Profile         *string                `json:"profile"`
	DurationSeconds *float64               `json:"duration_seconds"`
	AspectRatio     *string                `json:"aspect_ratio"`
	Platform        *string                `json:"platform"`
	Language        *string                `json:"language"`
	Orientation     *string                `json:"orientation"`
	Priority        *int                   `json:"priority"`
	AudioPlan       *production.AudioPlan  `json:"audio_plan"`
	VisualPlan      *production.VisualPlan `json:"visual_plan"`
	ManifestData    json.RawMessage        `json:"manifest_data"`

	Scenes *[]*production.ProductionScene `json:"scenes"`
	Assets *[]*production.ProductionAsset `json:"assets"`
	Jobs   *[]*production.ProductionJob   `json:"jobs"`
}

func (r editManifestRequest) patch() production.ManifestPatch {
	p := production.ManifestPatch{
		Title:           r.Title,
		Profile:         r.Profile,
		DurationSeconds: r.DurationSeconds,
		AspectRatio:     r.AspectRatio,
		Platform:        r.Platform,
		Language:        r.Language,
		Orientation:     r.Orientation,
		Priority:        r.Priority,
		AudioPlan:       r.AudioPlan,
		VisualPlan:      r.VisualPlan,
	}
	if len(r.ManifestData) > 0 {
		p.ManifestData = datatypes.JSON(r.ManifestData)
	}
	return p
}

func (r editManifestRequest) replacesGraph() bool {
	return r.Scenes != nil || r.Assets != nil || r.Jobs != nil
}

// PATCH /api/manifests/:id
//
// The expected version comes from the body or an If-Match header. Sending
// any of scenes, assets or jobs replaces the graph; the ones left out are
// carried over from the stored manifest.
func (h *ManifestHandler) Edit(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req editManifestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Version == 0 {
		if v := strings.Trim(c.GetHeader("If-Match"), `" `); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				response.RespondError(c, http.StatusBadRequest, "invalid_version", err)
				return
			}
			req.Version = n
		}
	}

	e := planner.Edit{Patch: req.patch()}
	if req.replacesGraph() {
		current, err := h.manifests.Get(c.Request.Context(), owner, id)
		if err != nil {
			response.RespondPlannerError(c, err)
			return
		}
		e.ReplaceGraph = true
		e.Scenes, e.Assets, e.Jobs = current.Scenes, current.Assets, current.Jobs
		if req.Scenes != nil {
			e.Scenes = *req.Scenes
		}
		if req.Assets != nil {
			e.Assets = *req.Assets
		}
		if req.Jobs != nil {
			e.Jobs = *req.Jobs
		}
	}

	updated, err := h.manifests.Edit(c.Request.Context(), owner, id, req.Version, e)
	if updated == nil {
		response.RespondPlannerError(c, err)
		return
	}
	// A draft edit is stored even when it does not validate; the issues are
	// on the manifest.
	response.RespondOK(c, gin.H{"manifest": updated})
}

// DELETE /api/manifests/:id
func (h *ManifestHandler) Delete(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.manifests.Delete(c.Request.Context(), owner, id); err != nil {
		response.RespondPlannerError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/manifests/:id/validate
func (h *ManifestHandler) Validate(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	m, err := h.manifests.Validate(c.Request.Context(), owner, id)
	if err != nil {
		response.RespondPlannerError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"manifest": m})
}

// POST /api/manifests/:id/approve
func (h *ManifestHandler) Approve(c *gin.Context) {
	h.transition(c, h.manifests.Approve, http.StatusOK)
}

// POST /api/manifests/:id/start
func (h *ManifestHandler) Start(c *gin.Context) {
	h.transition(c, h.manifests.Start, http.StatusAccepted)
}

// POST /api/manifests/:id/cancel
func (h *ManifestHandler) Cancel(c *gin.Context) {
	h.transition(c, h.manifests.Cancel, http.StatusOK)
}

func (h *ManifestHandler) transition(c *gin.Context, fn func(ctx context.Context, owner, id uuid.UUID) (*production.ProductionManifest, error), status int) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	m, err := fn(c.Request.Context(), owner, id)
	if err != nil {
		response.RespondPlannerError(c, err)
		return
	}
	c.JSON(status, gin.H{"manifest": m})
}

// POST /api/manifests/:id/jobs/:job_id/cancel
func (h *ManifestHandler) CancelJob(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	jobID, ok := uuidParam(c, "job_id")
	if !ok {
		return
	}
	if err := h.manifests.CancelJob(c.Request.Context(), owner, id, jobID); err != nil {
		response.RespondPlannerError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": "cancelling"})
}

// GET /api/manifests/:id/quality
func (h *ManifestHandler) Quality(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	b, err := h.manifests.Quality(c.Request.Context(), owner, id)
	if err != nil {
		response.RespondPlannerError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"quality": b})
}
