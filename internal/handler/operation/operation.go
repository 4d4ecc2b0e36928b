package operation

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/dwarvesf/secret-bridge/internal/mirror"
	"github.com/dwarvesf/secret-bridge/internal/model"
	"github.com/dwarvesf/secret-bridge/internal/operationstore"
	"github.com/dwarvesf/secret-bridge/internal/orchestrator"
	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
	"github.com/dwarvesf/secret-bridge/internal/view"
)

// OperationResponse is an operation as the API shows it. Source is "live"
// for operations this process tracks and "mirror" for local history. Issue
// is the latest background error of a live operation.
type OperationResponse struct {
	Operation     model.Operation             `json:"operation"`
	Confirmations *model.ConfirmationProgress `json:"confirmations,omitempty"`
	Issue         *orchestrator.Issue         `json:"issue,omitempty"`
	Polling       bool                        `json:"polling"`
	Source        string                      `json:"source"`
}

type handler struct {
	orchestrator IOrchestrator
	mirror       mirror.IMirror
	store        operationstore.IOperationStore
	logger       *logger.Logger
}

func New(orchestrator IOrchestrator, mirror mirror.IMirror, store operationstore.IOperationStore, logger *logger.Logger) IHandler {
	return &handler{
		orchestrator: orchestrator,
		mirror:       mirror,
		store:        store,
		logger:       logger,
	}
}

// CreateTransfer godoc
// @Summary Start a bridge transfer
// @Description Validates the intent, creates the operation and drives it in the background
// @id createTransfer
// @Tags Operation
// @Accept json
// @Produce json
// @Param request body model.TransferIntent true "Transfer intent"
// @Success 202 {object} view.Response[OperationResponse]
// @Failure 400 {object} view.ErrorResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /transfers [post]
func (h *handler) CreateTransfer(c *gin.Context) {
	var req model.TransferIntent
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("[CreateTransfer][ShouldBindJSON]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, req, "invalid request"))
		return
	}

	op, err := h.orchestrator.Begin(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("[CreateTransfer][Begin]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(statusFor(err), view.CreateResponse[any](nil, err, req, "cannot begin transfer"))
		return
	}

	if err := h.orchestrator.ContinueInBackground(op.ID); err != nil {
		h.logger.Error("[CreateTransfer][ContinueInBackground]", map[string]string{
			"error":        err.Error(),
			"operation_id": op.ID,
		})
		c.JSON(statusFor(err), view.CreateResponse[any](nil, err, nil, "cannot continue transfer"))
		return
	}

	c.JSON(http.StatusAccepted, view.CreateResponse[any](OperationResponse{
		Operation: *op,
		Source:    "live",
	}, nil, nil, "transfer started"))
}

// GetOperation godoc
// @Summary Get an operation
// @Description Live state when the operation is tracked, local history otherwise
// @id getOperation
// @Tags Operation
// @Produce json
// @Param id path string true "Operation id"
// @Success 200 {object} view.Response[OperationResponse]
// @Failure 404 {object} view.ErrorResponse
// @Router /operations/{id} [get]
func (h *handler) GetOperation(c *gin.Context) {
	id := c.Param("id")

	op, err := h.orchestrator.Get(id)
	if err == nil {
		resp := OperationResponse{
			Operation: *op,
			Polling:   h.orchestrator.Polling(id),
			Source:    "live",
		}
		if progress, err := h.orchestrator.Confirmations(id); err == nil && progress.Required > 0 {
			resp.Confirmations = &progress
		}
		if issue, err := h.orchestrator.LastIssue(id); err == nil {
			resp.Issue = issue
		}
		c.JSON(http.StatusOK, view.CreateResponse[any](resp, nil, nil, ""))
		return
	}
	if !errors.Is(err, orchestrator.ErrOperationNotFound) {
		c.JSON(statusFor(err), view.CreateResponse[any](nil, err, nil, "cannot get operation"))
		return
	}

	summary, ok := h.mirror.Get(id)
	if !ok || summary.Operation == nil {
		c.JSON(http.StatusNotFound, view.CreateResponse[any](nil, err, nil, "operation not found"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](OperationResponse{
		Operation: *summary.Operation,
		Source:    "mirror",
	}, nil, nil, ""))
}

// ListOperations godoc
// @Summary List local operation history
// @id listOperations
// @Tags Operation
// @Produce json
// @Param inflight query bool false "Only operations without a terminal status"
// @Success 200 {object} view.Response[[]model.OperationSummary]
// @Router /operations [get]
func (h *handler) ListOperations(c *gin.Context) {
	if c.Query("inflight") == "true" {
		inFlight := h.mirror.ListInFlight()
		out := make([]model.OperationSummary, 0, len(inFlight))
		for i := range inFlight {
			out = append(out, model.NewOperationSummary(&inFlight[i]))
		}
		c.JSON(http.StatusOK, view.CreateResponse[any](out, nil, nil, ""))
		return
	}

	c.JSON(http.StatusOK, view.CreateResponse[any](h.mirror.List(), nil, nil, ""))
}

// DeleteOperation godoc
// @Summary Forget an operation locally
// @Description Removes the local history entry. Nothing on chain or in the record service changes.
// @id deleteOperation
// @Tags Operation
// @Produce json
// @Param id path string true "Operation id"
// @Success 200 {object} view.MessageResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /operations/{id} [delete]
func (h *handler) DeleteOperation(c *gin.Context) {
	id := c.Param("id")
	if err := h.mirror.Remove(id); err != nil {
		h.logger.Error("[DeleteOperation][Remove]", map[string]string{
			"error":        err.Error(),
			"operation_id": id,
		})
		c.JSON(http.StatusInternalServerError, view.CreateResponse[any](nil, err, nil, "cannot remove operation"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any]("operation removed", nil, nil, ""))
}

// PollOperation godoc
// @Summary Restart polling
// @Description Starts a background poller for a submitted operation, if none is running
// @id pollOperation
// @Tags Operation
// @Produce json
// @Param id path string true "Operation id"
// @Success 202 {object} view.MessageResponse
// @Failure 404 {object} view.ErrorResponse
// @Failure 409 {object} view.ErrorResponse
// @Router /operations/{id}/poll [post]
func (h *handler) PollOperation(c *gin.Context) {
	id := c.Param("id")
	if err := h.orchestrator.StartPolling(id); err != nil {
		c.JSON(statusFor(err), view.CreateResponse[any](nil, err, nil, "cannot poll operation"))
		return
	}
	c.JSON(http.StatusAccepted, view.CreateResponse[any]("polling", nil, nil, ""))
}

// AbandonOperation godoc
// @Summary Abandon an operation
// @Description Fails an operation that has not been submitted to a chain yet
// @id abandonOperation
// @Tags Operation
// @Produce json
// @Param id path string true "Operation id"
// @Success 200 {object} view.MessageResponse
// @Failure 404 {object} view.ErrorResponse
// @Failure 409 {object} view.ErrorResponse
// @Router /operations/{id}/abandon [post]
func (h *handler) AbandonOperation(c *gin.Context) {
	id := c.Param("id")
	if err := h.orchestrator.Abandon(id); err != nil {
		c.JSON(statusFor(err), view.CreateResponse[any](nil, err, nil, "cannot abandon operation"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any]("operation abandoned", nil, nil, ""))
}

// GetSwap godoc
// @Summary Get a swap from the record service
// @id getSwap
// @Tags Operation
// @Produce json
// @Param id path string true "Swap id"
// @Success 200 {object} view.Response[model.SwapRecord]
// @Failure 404 {object} view.ErrorResponse
// @Failure 502 {object} view.ErrorResponse
// @Router /swaps/{id} [get]
func (h *handler) GetSwap(c *gin.Context) {
	id := c.Param("id")

	swap, err := h.store.GetSwap(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, operationstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, view.CreateResponse[any](nil, err, nil, "swap not found"))
			return
		}
		h.logger.Error("[GetSwap][GetSwap]", map[string]string{
			"error": err.Error(),
			"id":    id,
		})
		c.JSON(http.StatusBadGateway, view.CreateResponse[any](nil, err, nil, "cannot reach record service"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](swap, nil, nil, ""))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrOperationNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrInvalidState), errors.Is(err, orchestrator.ErrAlreadySubmitted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
