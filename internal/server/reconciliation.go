package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	calendardomain "github.com/carebridge/billing/internal/calendar/domain"
	recdomain "github.com/carebridge/billing/internal/reconciliation/domain"
	"github.com/carebridge/billing/pkg/db/pagination"
)

type generateVisitsRequest struct {
	FunderID    string `json:"funder_id" binding:"required"`
	PeriodStart string `json:"period_start" binding:"required"`
	PeriodEnd   string `json:"period_end" binding:"required"`
}

func (s *Server) GenerateBillableVisits(c *gin.Context) {
	var req generateVisitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	funderID, err := parseSnowflakeID(req.FunderID)
	if err != nil {
		AbortWithError(c, newValidationError("funder_id", "invalid_id", "invalid id"))
		return
	}
	periodStart, err := parseRequiredTime("period_start", req.PeriodStart, false)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	periodEnd, err := parseRequiredTime("period_end", req.PeriodEnd, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	report, err := s.reconciliationSvc.Generate(c.Request.Context(), recdomain.GenerateRequest{
		FunderID:    funderID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) ApproveVisit(c *gin.Context) {
	id, ok := s.visitID(c)
	if !ok {
		return
	}

	visit, err := s.reconciliationSvc.Approve(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": visit})
}

type bulkApproveRequest struct {
	FunderID    string `json:"funder_id"`
	PeriodStart string `json:"period_start" binding:"required"`
	PeriodEnd   string `json:"period_end" binding:"required"`
}

func (s *Server) BulkApproveVisits(c *gin.Context) {
	var req bulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	funderID, err := parseOptionalSnowflakeID(req.FunderID)
	if err != nil {
		AbortWithError(c, newValidationError("funder_id", "invalid_id", "invalid id"))
		return
	}
	periodStart, err := parseRequiredTime("period_start", req.PeriodStart, false)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	periodEnd, err := parseRequiredTime("period_end", req.PeriodEnd, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	approved, err := s.reconciliationSvc.BulkApprove(c.Request.Context(), recdomain.BulkApproveRequest{
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		FunderID:    funderID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"approved": approved}})
}

type disputeVisitRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) DisputeVisit(c *gin.Context) {
	id, ok := s.visitID(c)
	if !ok {
		return
	}

	var req disputeVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	visit, err := s.reconciliationSvc.Dispute(c.Request.Context(), id, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": visit})
}

type overrideVisitRequest struct {
	Amount *int64 `json:"amount" binding:"required"`
	Reason string `json:"reason"`
}

func (s *Server) OverrideVisit(c *gin.Context) {
	id, ok := s.visitID(c)
	if !ok {
		return
	}

	var req overrideVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	visit, err := s.reconciliationSvc.Override(c.Request.Context(), id, *req.Amount, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": visit})
}

func (s *Server) VoidVisit(c *gin.Context) {
	id, ok := s.visitID(c)
	if !ok {
		return
	}

	visit, err := s.reconciliationSvc.Void(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": visit})
}

func (s *Server) ListBillableVisits(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	periodStart, err := parseRequiredTime("period_start", c.Query("period_start"), false)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	periodEnd, err := parseRequiredTime("period_end", c.Query("period_end"), true)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	funderID, err := parseOptionalSnowflakeID(c.Query("funder_id"))
	if err != nil {
		AbortWithError(c, newValidationError("funder_id", "invalid_id", "invalid id"))
		return
	}

	req := recdomain.ListRequest{
		Pagination:  page,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		FunderID:    funderID,
	}
	if raw := c.Query("status"); raw != "" {
		status := recdomain.BillableVisitStatus(raw)
		req.Status = &status
	}
	if raw := c.Query("day_type"); raw != "" {
		dayType := calendardomain.DayType(raw)
		if !dayType.Valid() {
			AbortWithError(c, newValidationError("day_type", "invalid_day_type", "invalid day type"))
			return
		}
		req.DayType = &dayType
	}

	resp, err := s.reconciliationSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Visits, "page_info": resp.PageInfo})
}

func (s *Server) GetReconciliationSummary(c *gin.Context) {
	periodStart, err := parseRequiredTime("period_start", c.Query("period_start"), false)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	periodEnd, err := parseRequiredTime("period_end", c.Query("period_end"), true)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	funderID, err := parseOptionalSnowflakeID(c.Query("funder_id"))
	if err != nil {
		AbortWithError(c, newValidationError("funder_id", "invalid_id", "invalid id"))
		return
	}

	summary, err := s.reconciliationSvc.GetSummary(c.Request.Context(), recdomain.SummaryRequest{
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		FunderID:    funderID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) visitID(c *gin.Context) (snowflake.ID, bool) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return 0, false
	}
	return id, true
}
