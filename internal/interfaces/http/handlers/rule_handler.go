package handlers

import (
	"github.com/gin-gonic/gin"

	appdocket "github.com/ipdocket/ipdocket/internal/application/docket"
	"github.com/ipdocket/ipdocket/internal/domain/docket"
)

// RuleHandler serves the task rule administration and per-country renewal
// configuration endpoints.
type RuleHandler struct {
	rules   *appdocket.RuleAdminService
	configs docket.RenewalConfigRepository
}

// NewRuleHandler constructs the rule handler.
func NewRuleHandler(rules *appdocket.RuleAdminService, configs docket.RenewalConfigRepository) *RuleHandler {
	return &RuleHandler{rules: rules, configs: configs}
}

// Register mounts the rule routes on rg.
func (h *RuleHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/rules", h.list)
	rg.POST("/rules", h.create)
	rg.PUT("/rules/:id", h.update)
	rg.DELETE("/rules/:id", h.remove)
	rg.POST("/rules/validate", h.validate)

	rg.GET("/renewal-configs", h.listConfigs)
	rg.PUT("/renewal-configs/:country", h.upsertConfig)
	rg.GET("/renewal-configs/:country", h.getConfig)
}

func (h *RuleHandler) list(c *gin.Context) {
	rules, err := h.rules.ListRules(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, rules)
}

func (h *RuleHandler) create(c *gin.Context) {
	var rule docket.TaskRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		respondBadRequest(c, err)
		return
	}
	if err := h.rules.CreateRule(c.Request.Context(), &rule); err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, &rule)
}

func (h *RuleHandler) update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var rule docket.TaskRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		respondBadRequest(c, err)
		return
	}
	rule.ID = id
	if err := h.rules.UpdateRule(c.Request.Context(), &rule); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, &rule)
}

func (h *RuleHandler) remove(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.rules.DeleteRule(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(204)
}

func (h *RuleHandler) validate(c *gin.Context) {
	report, err := h.rules.ValidateAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, report)
}

func (h *RuleHandler) listConfigs(c *gin.Context) {
	configs, err := h.configs.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, configs)
}

func (h *RuleHandler) getConfig(c *gin.Context) {
	cfg, err := h.configs.Get(c.Request.Context(), c.Param("country"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, cfg)
}

func (h *RuleHandler) upsertConfig(c *gin.Context) {
	var cfg docket.CountryRenewalConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		respondBadRequest(c, err)
		return
	}
	cfg.Country = c.Param("country")
	if err := cfg.Validate(); err != nil {
		respondError(c, err)
		return
	}
	if err := h.configs.Upsert(c.Request.Context(), &cfg); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, &cfg)
}
