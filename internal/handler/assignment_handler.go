package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-scheduling-api/internal/dto"
	appErrors "github.com/noah-isme/clinic-scheduling-api/pkg/errors"
	"github.com/noah-isme/clinic-scheduling-api/pkg/response"
)

type assignmentService interface {
	Assign(ctx context.Context, req dto.AssignmentRequest) (*dto.AssignmentResult, error)
}

// AssignmentHandler exposes therapist auto-assignment.
type AssignmentHandler struct {
	service assignmentService
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(service assignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: service}
}

// Assign godoc
// @Summary Assign a therapist to a consultation and book it
// @Description Tries the preferred therapist first, then the eligible therapist with the fewest sessions that day. Returns 200 with reason no_capacity when nobody fits.
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body dto.AssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Assign(c *gin.Context) {
	var req dto.AssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}
	result, err := h.service.Assign(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.AssignedTherapistID == nil {
		response.JSON(c, http.StatusOK, result, nil)
		return
	}
	response.Created(c, result)
}
