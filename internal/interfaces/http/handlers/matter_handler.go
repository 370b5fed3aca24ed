package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	appmatter "github.com/ipdocket/ipdocket/internal/application/matter"
	domainmatter "github.com/ipdocket/ipdocket/internal/domain/matter"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

// MatterHandler serves matter and event endpoints.
type MatterHandler struct {
	matters *appmatter.Service
}

// NewMatterHandler constructs the matter handler.
func NewMatterHandler(matters *appmatter.Service) *MatterHandler {
	return &MatterHandler{matters: matters}
}

// Register mounts the matter routes on rg.
func (h *MatterHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/matters", h.create)
	rg.GET("/matters", h.list)
	rg.GET("/matters/search", h.search)
	rg.GET("/matters/:id", h.get)
	rg.PUT("/matters/:id", h.update)
	rg.GET("/matters/:id/events", h.listEvents)
	rg.POST("/matters/:id/events", h.recordEvent)
}

type matterRequest struct {
	Caseref              string     `json:"caseref" binding:"required"`
	Country              string     `json:"country" binding:"required"`
	Category             string     `json:"category" binding:"required"`
	Origin               string     `json:"origin"`
	TypeCode             string     `json:"type_code"`
	ParentID             *int64     `json:"parent_id"`
	ContainerID          *int64     `json:"container_id"`
	Responsible          string     `json:"responsible"`
	RenewalAgent         string     `json:"renewal_agent"`
	RenewalClientManaged bool       `json:"renewal_client_managed"`
	ExpireDate           *time.Time `json:"expire_date"`
	TermAdjustDays       int        `json:"term_adjust_days"`
}

func (r *matterRequest) toDomain() *domainmatter.Matter {
	return &domainmatter.Matter{
		Caseref:              r.Caseref,
		Country:              r.Country,
		Category:             domainmatter.Category(r.Category),
		Origin:               r.Origin,
		TypeCode:             r.TypeCode,
		ParentID:             r.ParentID,
		ContainerID:          r.ContainerID,
		Responsible:          r.Responsible,
		RenewalAgent:         r.RenewalAgent,
		RenewalClientManaged: r.RenewalClientManaged,
		ExpireDate:           r.ExpireDate,
		TermAdjustDays:       r.TermAdjustDays,
	}
}

func (h *MatterHandler) create(c *gin.Context) {
	var req matterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	m := req.toDomain()
	if err := h.matters.RecordMatter(c.Request.Context(), m); err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, m)
}

func (h *MatterHandler) update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req matterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	existing, err := h.matters.GetMatter(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	m := req.toDomain()
	m.ID = id
	m.Dead = existing.Dead
	m.CreatedAt = existing.CreatedAt
	if err := h.matters.UpdateMatter(c.Request.Context(), m); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, m)
}

func (h *MatterHandler) get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	m, err := h.matters.GetMatter(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, m)
}

func (h *MatterHandler) list(c *gin.Context) {
	p := pagination(c)
	filter := domainmatter.Filter{
		Country:     c.Query("country"),
		Category:    domainmatter.Category(c.Query("category")),
		Responsible: c.Query("responsible"),
		Caseref:     c.Query("caseref"),
		IncludeDead: c.Query("include_dead") == "true",
	}
	items, total, err := h.matters.ListMatters(c.Request.Context(), filter, p)
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, items, total, p)
}

func (h *MatterHandler) search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		respondError(c, errors.InvalidParam("query parameter q is required"))
		return
	}
	p := pagination(c)
	items, total, err := h.matters.Search(c.Request.Context(), query, p)
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, items, total, p)
}

type eventRequest struct {
	Code        string    `json:"code" binding:"required"`
	EventDate   time.Time `json:"event_date" binding:"required"`
	Detail      string    `json:"detail"`
	AltMatterID *int64    `json:"alt_matter_id"`
}

func (h *MatterHandler) recordEvent(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	ev := &domainmatter.Event{
		MatterID:    id,
		Code:        domainmatter.EventCode(req.Code),
		EventDate:   req.EventDate,
		Detail:      req.Detail,
		AltMatterID: req.AltMatterID,
	}
	res, err := h.matters.RecordEvent(c.Request.Context(), ev)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, gin.H{"event": ev, "result": res})
}

func (h *MatterHandler) listEvents(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	events, err := h.matters.ListEvents(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, events)
}
