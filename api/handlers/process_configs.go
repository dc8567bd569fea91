package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/models"
	"github.com/techmailbox/shipmail/internal/tracing"
	"github.com/techmailbox/shipmail/internal/utils"
)

// ProcessConfigRequest accepts the recipient list either as an array or as a
// single separator-delimited string.
type ProcessConfigRequest struct {
	Process string   `json:"process" binding:"required"`
	Emails  []string `json:"emails"`
	// EmailsRaw is split on commas, semicolons and whitespace.
	EmailsRaw string `json:"emailsRaw"`
}

func (r *ProcessConfigRequest) recipientList() []string {
	emails := make([]string, 0, len(r.Emails))
	for _, e := range r.Emails {
		if trimmed := strings.TrimSpace(e); trimmed != "" {
			emails = append(emails, trimmed)
		}
	}
	emails = append(emails, utils.SplitEmailList(r.EmailsRaw)...)
	return emails
}

// ListProcessConfigs returns all process-to-recipients mappings.
func ListProcessConfigs(repo interfaces.ProcessConfigRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "handlers.ListProcessConfigs")
		defer span.Finish()
		tracing.TagComponentRest(span)

		configs, err := repo.List(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list process configs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"processConfigs": configs})
	}
}

// CreateProcessConfig registers a recipient list for a process code.
func CreateProcessConfig(repo interfaces.ProcessConfigRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "handlers.CreateProcessConfig")
		defer span.Finish()
		tracing.TagComponentRest(span)

		var req ProcessConfigRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		emails := req.recipientList()
		if len(emails) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at least one email is required"})
			return
		}

		config := &models.ProcessConfig{
			Process: strings.TrimSpace(req.Process),
			Emails:  pq.StringArray(emails),
		}
		if err := repo.Create(ctx, config); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create process config"})
			return
		}
		c.JSON(http.StatusCreated, config)
	}
}

// UpdateProcessConfig replaces the process code and recipient list of one entry.
func UpdateProcessConfig(repo interfaces.ProcessConfigRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "handlers.UpdateProcessConfig")
		defer span.Finish()
		tracing.TagComponentRest(span)

		id := c.Param("id")
		tracing.TagEntity(span, id)

		var req ProcessConfigRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		emails := req.recipientList()
		if len(emails) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at least one email is required"})
			return
		}

		config := &models.ProcessConfig{
			ID:      id,
			Process: strings.TrimSpace(req.Process),
			Emails:  pq.StringArray(emails),
		}
		err := repo.Update(ctx, config)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "process config not found"})
			return
		}
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update process config"})
			return
		}
		c.JSON(http.StatusOK, config)
	}
}

// DeleteProcessConfig removes one entry.
func DeleteProcessConfig(repo interfaces.ProcessConfigRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "handlers.DeleteProcessConfig")
		defer span.Finish()
		tracing.TagComponentRest(span)

		id := c.Param("id")
		tracing.TagEntity(span, id)

		err := repo.Delete(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "process config not found"})
			return
		}
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete process config"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	}
}
