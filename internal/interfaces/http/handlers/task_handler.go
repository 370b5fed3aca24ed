package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ipdocket/ipdocket/internal/domain/docket"
)

// TaskHandler serves read access to the docket.  Task mutation happens
// through events (rule engine) or the renewal workflow, never directly.
type TaskHandler struct {
	tasks docket.TaskRepository
}

// NewTaskHandler constructs the task handler.
func NewTaskHandler(tasks docket.TaskRepository) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// Register mounts the task routes on rg.
func (h *TaskHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/tasks", h.list)
	rg.GET("/tasks/:id", h.get)
}

func (h *TaskHandler) list(c *gin.Context) {
	p := pagination(c)
	filter, err := taskFilterFromQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}
	items, total, err := h.tasks.List(c.Request.Context(), filter, p)
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, items, total, p)
}

func (h *TaskHandler) get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	t, err := h.tasks.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, t)
}

func taskFilterFromQuery(c *gin.Context) (docket.TaskFilter, error) {
	filter := docket.TaskFilter{
		Code:        c.Query("code"),
		AssignedTo:  c.Query("assigned_to"),
		OpenOnly:    c.Query("open") == "true",
		RenewalOnly: c.Query("renewals") == "true",
	}
	if v := c.Query("matter_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, invalidQuery("matter_id", v)
		}
		filter.MatterID = id
	}
	if v := c.Query("due_from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filter, invalidQuery("due_from", v)
		}
		filter.DueFrom = &t
	}
	if v := c.Query("due_to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filter, invalidQuery("due_to", v)
		}
		filter.DueTo = &t
	}
	if v := c.Query("step"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, invalidQuery("step", v)
		}
		filter.Step = &n
	}
	if v := c.Query("invoice_step"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, invalidQuery("invoice_step", v)
		}
		filter.InvoiceStep = &n
	}
	return filter, nil
}
