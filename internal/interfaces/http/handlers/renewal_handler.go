package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apprenewal "github.com/ipdocket/ipdocket/internal/application/renewal"
	"github.com/ipdocket/ipdocket/internal/domain/docket"
	domainrenewal "github.com/ipdocket/ipdocket/internal/domain/renewal"
	"github.com/ipdocket/ipdocket/pkg/errors"
	"github.com/ipdocket/ipdocket/pkg/types/common"
)

// batchOp is the shared shape of the single-argument bulk transitions.
type batchOp func(ctx context.Context, ids []int64, actor string) (*common.BatchResult, error)

// defaultReminderWindow bounds the due-for-call queries when the client does
// not pass one.
const defaultReminderWindow = 90 * 24 * time.Hour

// RenewalHandler serves the annuity workflow: bulk step transitions, fee
// quoting, CSV export, and the call/reminder queues.
type RenewalHandler struct {
	workflow  *apprenewal.WorkflowService
	fees      *apprenewal.FeeService
	export    *apprenewal.ExportService
	reminders *apprenewal.ReminderService
}

// NewRenewalHandler constructs the renewal handler.  export and reminders may
// be nil when archiving is disabled.
func NewRenewalHandler(
	workflow *apprenewal.WorkflowService,
	fees *apprenewal.FeeService,
	export *apprenewal.ExportService,
	reminders *apprenewal.ReminderService,
) *RenewalHandler {
	return &RenewalHandler{workflow: workflow, fees: fees, export: export, reminders: reminders}
}

// Register mounts the renewal routes on rg.
func (h *RenewalHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/renewals/step", h.updateStep)
	rg.POST("/renewals/invoice-step", h.updateInvoiceStep)
	rg.POST("/renewals/step-and-invoice", h.updateBoth)
	rg.POST("/renewals/grace-period", h.setGracePeriod)
	rg.POST("/renewals/done", h.markDone)
	rg.POST("/renewals/abandon", h.abandon)
	rg.POST("/renewals/lapse", h.lapse)
	rg.POST("/renewals/payment-order", h.paymentOrder)

	rg.POST("/renewals/quotes", h.quote)
	rg.POST("/renewals/recalculate", h.recalculate)
	rg.POST("/renewals/export", h.exportBatch)

	rg.GET("/renewals/:id/history", h.history)
	rg.GET("/renewals/jobs/:job_id", h.jobHistory)

	rg.GET("/renewals/first-calls", h.dueForFirstCall)
	rg.POST("/renewals/first-calls/sent", h.markFirstCallSent)
	rg.GET("/renewals/reminders", h.dueForReminder)
	rg.POST("/renewals/reminders/sent", h.markReminderSent)
}

// batchRequest is the common bulk-operation shape.  Every mutation carries
// the acting user for the transition log.
type batchRequest struct {
	TaskIDs []int64 `json:"task_ids" binding:"required,min=1"`
	Actor   string  `json:"actor" binding:"required"`
}

type stepRequest struct {
	batchRequest
	Step *int `json:"step" binding:"required"`
}

type invoiceStepRequest struct {
	batchRequest
	InvoiceStep *int `json:"invoice_step" binding:"required"`
}

type stepAndInvoiceRequest struct {
	batchRequest
	Step        *int `json:"step" binding:"required"`
	InvoiceStep *int `json:"invoice_step" binding:"required"`
}

type gracePeriodRequest struct {
	batchRequest
	GracePeriod bool `json:"grace_period"`
}

type doneRequest struct {
	batchRequest
	DoneDate *time.Time `json:"done_date"`
}

func (h *RenewalHandler) updateStep(c *gin.Context) {
	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	res, err := h.workflow.UpdateStep(c.Request.Context(), req.TaskIDs, domainrenewal.Step(*req.Step), req.Actor)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, res)
}

func (h *RenewalHandler) updateInvoiceStep(c *gin.Context) {
	var req invoiceStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	res, err := h.workflow.UpdateInvoiceStep(c.Request.Context(), req.TaskIDs, domainrenewal.InvoiceStep(*req.InvoiceStep), req.Actor)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, res)
}

func (h *RenewalHandler) updateBoth(c *gin.Context) {
	var req stepAndInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	res, err := h.workflow.UpdateStepAndInvoiceStep(c.Request.Context(), req.TaskIDs,
		domainrenewal.Step(*req.Step), domainrenewal.InvoiceStep(*req.InvoiceStep), req.Actor)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, res)
}

func (h *RenewalHandler) setGracePeriod(c *gin.Context) {
	var req gracePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	res, err := h.workflow.SetGracePeriod(c.Request.Context(), req.TaskIDs, req.GracePeriod, req.Actor)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, res)
}

func (h *RenewalHandler) markDone(c *gin.Context) {
	var req doneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	res, err := h.workflow.MarkAsDone(c.Request.Context(), req.TaskIDs, req.DoneDate, req.Actor)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, res)
}

func (h *RenewalHandler) abandon(c *gin.Context) {
	h.simpleBatch(c, h.workflow.Abandon)
}

func (h *RenewalHandler) lapse(c *gin.Context) {
	h.simpleBatch(c, h.workflow.MarkAsLapsing)
}

func (h *RenewalHandler) paymentOrder(c *gin.Context) {
	h.simpleBatch(c, h.workflow.MarkAsPaymentOrderReceived)
}

func (h *RenewalHandler) simpleBatch(c *gin.Context, op batchOp) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	res, err := op(c.Request.Context(), req.TaskIDs, req.Actor)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, res)
}

type quoteRequest struct {
	TaskIDs  []int64  `json:"task_ids" binding:"required,min=1"`
	Discount float64  `json:"discount"`
	VATRate  *float64 `json:"vat_rate"`
}

func (h *RenewalHandler) quote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	quotes, err := h.fees.QuoteTasks(c.Request.Context(), req.TaskIDs,
		apprenewal.QuoteOptions{Discount: req.Discount, VATRate: req.VATRate})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, quotes)
}

func (h *RenewalHandler) recalculate(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	quotes, err := h.fees.RecalculateStoredFees(c.Request.Context(), req.TaskIDs,
		apprenewal.QuoteOptions{Discount: req.Discount, VATRate: req.VATRate})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, quotes)
}

func (h *RenewalHandler) exportBatch(c *gin.Context) {
	if h.export == nil {
		respondError(c, errors.New(errors.CodeNotImplemented, "export archive not configured"))
		return
	}
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	res, err := h.export.Export(c.Request.Context(), req.TaskIDs,
		apprenewal.QuoteOptions{Discount: req.Discount, VATRate: req.VATRate})
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, res)
}

func (h *RenewalHandler) history(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	entries, err := h.workflow.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, entries)
}

func (h *RenewalHandler) jobHistory(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		respondError(c, errors.InvalidParam("job_id is required"))
		return
	}
	entries, err := h.workflow.JobHistory(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, entries)
}

func (h *RenewalHandler) dueForFirstCall(c *gin.Context) {
	h.dueList(c, h.reminders.DueForFirstCall)
}

func (h *RenewalHandler) dueForReminder(c *gin.Context) {
	h.dueList(c, h.reminders.DueForReminder)
}

func (h *RenewalHandler) markFirstCallSent(c *gin.Context) {
	h.simpleBatch(c, h.reminders.MarkFirstCallSent)
}

func (h *RenewalHandler) markReminderSent(c *gin.Context) {
	h.simpleBatch(c, h.reminders.MarkReminderSent)
}

func (h *RenewalHandler) dueList(c *gin.Context, fetch func(ctx context.Context, window time.Duration) ([]*docket.Task, error)) {
	window := defaultReminderWindow
	if v := c.Query("window_days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			respondError(c, invalidQuery("window_days", v))
			return
		}
		window = time.Duration(days) * 24 * time.Hour
	}
	items, err := fetch(c.Request.Context(), window)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, items)
}
