package feedsync

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/brokerlink/customs_backend/config"
	"bitbucket.org/brokerlink/customs_backend/models"
	"bitbucket.org/brokerlink/customs_backend/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// TriggerDeliveryHandler queues a manual delivery. Inline base64 data is
// processed synchronously (the data would be lost on a queue hop); deliveries
// pointing at an origin object go through Pub/Sub like system-triggered ones.
func TriggerDeliveryHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerDeliveryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if strings.TrimSpace(req.SourceSystem) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sourceSystem is required"})
			return
		}
		if _, err := extractorForDialect(req.Dialect); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown dialect"})
			return
		}
		if req.Data == "" && (req.OriginBucket == "" || req.OriginPath == "") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "data or originBucket/originPath is required"})
			return
		}

		extractedAt := time.Now()
		if strings.TrimSpace(req.ExtractedAt) != "" {
			t, err := time.Parse(time.RFC3339, req.ExtractedAt)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "extractedAt must be RFC3339"})
				return
			}
			extractedAt = t
		}

		ctx := utils.SetSourceSystemInContext(c.Request.Context(), req.SourceSystem)
		db := config.GetDB().WithContext(ctx)

		run := models.DeliveryRun{
			SourceSystem: req.SourceSystem,
			Dialect:      req.Dialect,
			Status:       models.DeliveryRunStatusQueued,
			TriggeredBy:  models.DeliveryTriggeredManual,
			OriginBucket: req.OriginBucket,
			OriginPath:   req.OriginPath,
			ExtractedAt:  &extractedAt,
		}
		if err := db.Create(&run).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if req.Data != "" {
			data, err := base64.StdEncoding.DecodeString(req.Data)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "data must be base64"})
				return
			}
			results, err := engine.ProcessDelivery(ctx, DeliveryPayload{
				SourceSystem: req.SourceSystem,
				Dialect:      req.Dialect,
				OriginBucket: req.OriginBucket,
				OriginPath:   req.OriginPath,
				ExtractedAt:  extractedAt,
				Data:         data,
			})
			now := time.Now()
			if err != nil {
				_ = createDeliveryError(ctx, db, run.ID, run.SourceSystem, "", "parse_failed", err.Error(), "", false)
				_ = finishRun(db, &run, now, nil, 1)
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			errorCount := 0
			for _, r := range results {
				if r.Outcome == OutcomeFailed {
					errorCount++
					_ = createDeliveryError(ctx, db, run.ID, run.SourceSystem, r.BrokerReference, r.Reason, r.Error, "", r.Reason != ReasonMergeFailed)
				}
			}
			_ = finishRun(db, &run, now, results, errorCount)
			c.JSON(http.StatusOK, gin.H{"id": run.ID, "results": results})
			return
		}

		_ = PublishDeliveryRun(c.Request.Context(), run.ID, req.SourceSystem)
		c.JSON(http.StatusOK, gin.H{"id": run.ID})
	}
}

func DeliveryHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		db := config.GetDB().WithContext(c.Request.Context())
		q := db.Order("id desc").Limit(limit)
		if source := strings.TrimSpace(c.Query("source_system")); source != "" {
			q = q.Where("source_system = ?", source)
		}

		var runs []models.DeliveryRun
		if err := q.Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]DeliveryRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, DeliveryHistoryResponse{Items: items})
	}
}

func DeliveryRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())

		var run models.DeliveryRun
		if err := db.Take(&run, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var errs []models.DeliveryError
		if err := db.Where("delivery_run_id = ?", run.ID).Order("id desc").Find(&errs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, DeliveryRunDetailResponse{
			DeliveryRunResponse: mapRunToResponse(run),
			Errors:              mapErrors(errs),
		})
	}
}

// RetryDeliveryRunHandler queues a fresh run over the same origin object.
// Inline-data runs have nothing persisted to replay.
func RetryDeliveryRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())

		var run models.DeliveryRun
		if err := db.Take(&run, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if run.OriginBucket == "" || run.OriginPath == "" {
			c.JSON(http.StatusConflict, gin.H{"error": "run has no origin object to replay"})
			return
		}

		newRun := models.DeliveryRun{
			SourceSystem: run.SourceSystem,
			Dialect:      run.Dialect,
			Status:       models.DeliveryRunStatusQueued,
			TriggeredBy:  models.DeliveryTriggeredRetry,
			OriginBucket: run.OriginBucket,
			OriginPath:   run.OriginPath,
			ExtractedAt:  run.ExtractedAt,
			ParentRunId:  &run.ID,
		}
		if err := db.Create(&newRun).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		_ = PublishDeliveryRun(c.Request.Context(), newRun.ID, newRun.SourceSystem)
		c.JSON(http.StatusOK, gin.H{"id": newRun.ID})
	}
}

// PurgeEntryHandler deletes an entry aggregate and records the purge marker so
// stale feed files cannot resurrect it.
func PurgeEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PurgeEntryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if strings.TrimSpace(req.SourceSystem) == "" || strings.TrimSpace(req.BrokerReference) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sourceSystem and brokerReference are required"})
			return
		}

		purgedBy := strings.TrimSpace(req.PurgedBy)
		if purgedBy == "" {
			if username, ok := utils.GetUsernameFromContext(c.Request.Context()); ok {
				purgedBy = username
			}
		}

		ctx := utils.SetSourceSystemInContext(c.Request.Context(), req.SourceSystem)
		db := config.GetDB()

		// Marker first: if the delete fails midway, the marker still blocks
		// stale re-creation after a retry.
		if err := models.SetPurgeMarker(ctx, db, req.SourceSystem, req.BrokerReference, purgedBy, time.Now()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := models.DeleteEntryAggregate(ctx, req.SourceSystem, req.BrokerReference); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// GetEntryHandler returns the full aggregate for one natural key.
func GetEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sourceSystem := strings.TrimSpace(c.Query("source_system"))
		brokerRef := strings.TrimSpace(c.Query("broker_reference"))
		entryNumber := strings.TrimSpace(c.Query("entry_number"))
		if sourceSystem == "" || (brokerRef == "" && entryNumber == "") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "source_system and broker_reference or entry_number are required"})
			return
		}

		entry, err := models.GetEntryByNaturalKey(c.Request.Context(), config.GetDB(), sourceSystem, brokerRef, entryNumber)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if entry == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run models.DeliveryRun) DeliveryRunResponse {
	return DeliveryRunResponse{
		ID:             run.ID,
		SourceSystem:   run.SourceSystem,
		Dialect:        run.Dialect,
		Status:         run.Status,
		TriggeredBy:    run.TriggeredBy,
		OriginBucket:   run.OriginBucket,
		OriginPath:     run.OriginPath,
		ExtractedAt:    formatTime(run.ExtractedAt),
		EntriesApplied: run.EntriesApplied,
		EntriesNoOp:    run.EntriesNoOp,
		EntriesFailed:  run.EntriesFailed,
		ErrorCount:     run.ErrorCount,
		StartedAt:      formatTime(run.StartedAt),
		FinishedAt:     formatTime(run.FinishedAt),
		DurationMs:     run.DurationMs,
	}
}

func mapErrors(errorsList []models.DeliveryError) []DeliveryErrorResponse {
	out := make([]DeliveryErrorResponse, 0, len(errorsList))
	for _, errItem := range errorsList {
		out = append(out, DeliveryErrorResponse{
			ID:        errItem.ID,
			BrokerRef: errItem.BrokerRef,
			ErrorCode: errItem.ErrorCode,
			Message:   errItem.Message,
			Retryable: errItem.Retryable,
		})
	}
	return out
}
