package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medirisk-server/internal/domain"
	"github.com/medirisk-server/internal/service"
)

// FeaturesRequest carries one raw input record
type FeaturesRequest struct {
	Features domain.RawInput `json:"features" binding:"required"`
}

// PredictRequest is the body of the predict endpoint
type PredictRequest struct {
	Features domain.RawInput `json:"features" binding:"required"`
	Enhance  bool            `json:"enhance"`
	Question string          `json:"question"`
}

// BatchPredictRequest is the body of the batch predict endpoint
type BatchPredictRequest struct {
	Records []domain.RawInput `json:"records" binding:"required"`
}

// BatchPredictResponse lists one item per submitted record, in order
type BatchPredictResponse struct {
	Domain    string              `json:"domain"`
	Total     int                 `json:"total"`
	Succeeded int                 `json:"succeeded"`
	Items     []service.BatchItem `json:"items"`
}

// AssessRequest is the body of the assess endpoint
type AssessRequest struct {
	Features   domain.RawInput          `json:"features" binding:"required"`
	Prediction *domain.PredictionResult `json:"prediction" binding:"required"`
}

// EnhanceRequest is the body of the enhance endpoint
type EnhanceRequest struct {
	Features   domain.RawInput        `json:"features"`
	Assessment *domain.RiskAssessment `json:"assessment" binding:"required"`
	Question   string                 `json:"question"`
}

// ReloadRequest is the body of the model reload endpoint
type ReloadRequest struct {
	ArtifactPath string `json:"artifact_path"`
}

func (s *Server) handleListDomains(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"domains": s.service.DomainStatuses()})
}

func (s *Server) handleGetSchema(c *gin.Context) {
	sch, err := s.service.Schemas().Get(c.Param("domain"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sch)
}

// handleValidate reports validation findings; invalid input is a normal
// 200 response here since the validation result is the payload
func (s *Server) handleValidate(c *gin.Context) {
	var req FeaturesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	res, err := s.service.ValidateInput(c.Param("domain"), req.Features)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handlePredict(c *gin.Context) {
	domainID := c.Param("domain")
	if !s.service.Schemas().Has(domainID) {
		s.respondError(c, &domain.UnknownDomainError{Domain: domainID})
		return
	}

	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	outcome, err := s.service.Predict(ctx, domainID, req.Features)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if req.Enhance {
		outcome.Enhancement = s.service.EnhanceReport(ctx, &domain.EnhancementRequest{
			Domain:     domainID,
			RawInput:   req.Features,
			Assessment: outcome.Assessment,
			Question:   req.Question,
		})
	}

	c.JSON(http.StatusOK, outcome)
}

func (s *Server) handlePredictBatch(c *gin.Context) {
	domainID := c.Param("domain")
	if !s.service.Schemas().Has(domainID) {
		s.respondError(c, &domain.UnknownDomainError{Domain: domainID})
		return
	}

	var req BatchPredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	items, err := s.service.PredictBatch(c.Request.Context(), domainID, req.Records)
	if err != nil {
		s.respondError(c, err)
		return
	}

	resp := BatchPredictResponse{Domain: domainID, Total: len(items), Items: items}
	for _, item := range items {
		if item.Error == "" {
			resp.Succeeded++
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAssess(c *gin.Context) {
	domainID := c.Param("domain")
	if !s.service.Schemas().Has(domainID) {
		s.respondError(c, &domain.UnknownDomainError{Domain: domainID})
		return
	}

	var req AssessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	assessment, err := s.service.AssessRisk(domainID, req.Prediction, req.Features)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assessment)
}

// handleEnhance always answers 200 for a well-formed request; provider
// failures surface as a fallback report in the metadata
func (s *Server) handleEnhance(c *gin.Context) {
	domainID := c.Param("domain")
	if !s.service.Schemas().Has(domainID) {
		s.respondError(c, &domain.UnknownDomainError{Domain: domainID})
		return
	}

	var req EnhanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	res := s.service.EnhanceReport(c.Request.Context(), &domain.EnhancementRequest{
		Domain:     domainID,
		RawInput:   req.Features,
		Assessment: req.Assessment,
		Question:   req.Question,
	})
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleReload(c *gin.Context) {
	domainID := c.Param("domain")
	if !s.service.Schemas().Has(domainID) {
		s.respondError(c, &domain.UnknownDomainError{Domain: domainID})
		return
	}

	var req ReloadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, err)
			return
		}
	}

	status, err := s.service.ReloadModel(c.Request.Context(), domainID, req.ArtifactPath)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.respondError(c, err)
			return
		}
		s.logger.WithError(err).WithField("domain", domainID).Warn("Model reload failed")
		s.abort(c, http.StatusUnprocessableEntity, domain.ErrReloadFailed, err.Error(), s.service.Models().Status(domainID))
		return
	}

	s.logger.WithFields(map[string]interface{}{
		"domain":        domainID,
		"artifact_path": status.ArtifactPath,
	}).Info("Model reloaded")
	c.JSON(http.StatusOK, status)
}
