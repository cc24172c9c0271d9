package feedsync

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/brokerlink/customs_backend/coerce"
	"bitbucket.org/brokerlink/customs_backend/config"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	WindowLastWeek   = "last_week"
	WindowLast4Weeks = "last_4_weeks"
	WindowYearToDate = "ytd"
	WindowOpen       = "open"
)

var errUnknownWindow = errors.New("unknown report window")

// HtsRollupRow is duty and value summed by 2-digit HTS chapter.
type HtsRollupRow struct {
	HtsChapter        string          `json:"hts_chapter"`
	TotalDuty         decimal.Decimal `json:"total_duty"`
	TotalEnteredValue decimal.Decimal `json:"total_entered_value"`
	EntryCount        int64           `json:"entry_count"`
}

type TopVendorRow struct {
	VendorName string          `json:"vendor_name"`
	TotalValue decimal.Decimal `json:"total_value"`
	LineCount  int64           `json:"line_count"`
}

type TopPortRow struct {
	EntryPort  string          `json:"entry_port"`
	TotalDuty  decimal.Decimal `json:"total_duty"`
	EntryCount int64           `json:"entry_count"`
}

// windowBounds resolves a named window to a filed-date filter in the business
// timezone. The open window has no lower bound; it filters on liquidation
// instead.
func windowBounds(window string, now time.Time) (since *time.Time, openOnly bool, err error) {
	now = now.In(coerce.Location())
	switch window {
	case WindowLastWeek:
		t := now.AddDate(0, 0, -7)
		return &t, false, nil
	case WindowLast4Weeks:
		t := now.AddDate(0, 0, -28)
		return &t, false, nil
	case WindowYearToDate:
		t := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, coerce.Location())
		return &t, false, nil
	case WindowOpen:
		return nil, true, nil
	default:
		return nil, false, errUnknownWindow
	}
}

func entryWindowScope(db *gorm.DB, sourceSystem, window string, now time.Time) (*gorm.DB, error) {
	since, openOnly, err := windowBounds(window, now)
	if err != nil {
		return nil, err
	}
	q := db
	if sourceSystem != "" {
		q = q.Where("entries.source_system = ?", sourceSystem)
	}
	if openOnly {
		q = q.Where("entries.liquidation_date IS NULL AND entries.filed_date IS NOT NULL")
	} else {
		q = q.Where("entries.filed_date >= ?", *since)
	}
	return q, nil
}

// HtsRollup sums duty and entered value by HTS chapter over a filed-date window.
func HtsRollup(ctx context.Context, db *gorm.DB, sourceSystem, window string) ([]HtsRollupRow, error) {
	q, err := entryWindowScope(db.WithContext(ctx), sourceSystem, window, time.Now())
	if err != nil {
		return nil, err
	}

	var rows []HtsRollupRow
	err = q.Table("commercial_invoice_tariffs").
		Select("SUBSTRING(commercial_invoice_tariffs.hts_code, 1, 2) AS hts_chapter, " +
			"COALESCE(SUM(commercial_invoice_tariffs.duty_amount), 0) AS total_duty, " +
			"COALESCE(SUM(commercial_invoice_tariffs.entered_value), 0) AS total_entered_value, " +
			"COUNT(DISTINCT entries.id) AS entry_count").
		Joins("JOIN commercial_invoice_lines ON commercial_invoice_lines.id = commercial_invoice_tariffs.line_id").
		Joins("JOIN commercial_invoices ON commercial_invoices.id = commercial_invoice_lines.invoice_id").
		Joins("JOIN entries ON entries.id = commercial_invoices.entry_id").
		Group("hts_chapter").
		Order("total_duty DESC").
		Scan(&rows).Error
	return rows, err
}

// TopVendors ranks vendors by invoiced line value over a filed-date window.
func TopVendors(ctx context.Context, db *gorm.DB, sourceSystem, window string, limit int) ([]TopVendorRow, error) {
	q, err := entryWindowScope(db.WithContext(ctx), sourceSystem, window, time.Now())
	if err != nil {
		return nil, err
	}

	var rows []TopVendorRow
	err = q.Table("commercial_invoice_lines").
		Select("commercial_invoice_lines.vendor_name AS vendor_name, "+
			"COALESCE(SUM(commercial_invoice_lines.value), 0) AS total_value, "+
			"COUNT(*) AS line_count").
		Joins("JOIN commercial_invoices ON commercial_invoices.id = commercial_invoice_lines.invoice_id").
		Joins("JOIN entries ON entries.id = commercial_invoices.entry_id").
		Where("commercial_invoice_lines.vendor_name <> ''").
		Group("commercial_invoice_lines.vendor_name").
		Order("total_value DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// TopPorts ranks entry ports by total duty over a filed-date window.
func TopPorts(ctx context.Context, db *gorm.DB, sourceSystem, window string, limit int) ([]TopPortRow, error) {
	q, err := entryWindowScope(db.WithContext(ctx), sourceSystem, window, time.Now())
	if err != nil {
		return nil, err
	}

	var rows []TopPortRow
	err = q.Table("entries").
		Select("entries.entry_port AS entry_port, "+
			"COALESCE(SUM(entries.total_duty), 0) AS total_duty, "+
			"COUNT(*) AS entry_count").
		Where("entries.entry_port <> ''").
		Group("entries.entry_port").
		Order("total_duty DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func reportParams(c *gin.Context) (sourceSystem, window string, limit int) {
	sourceSystem = strings.TrimSpace(c.Query("source_system"))
	window = strings.TrimSpace(c.Query("window"))
	if window == "" {
		window = WindowLast4Weeks
	}
	limit = 10
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	return
}

func HtsRollupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sourceSystem, window, _ := reportParams(c)
		rows, err := HtsRollup(c.Request.Context(), config.GetDB(), sourceSystem, window)
		if err != nil {
			if errors.Is(err, errUnknownWindow) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": rows})
	}
}

func TopVendorsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sourceSystem, window, limit := reportParams(c)
		rows, err := TopVendors(c.Request.Context(), config.GetDB(), sourceSystem, window, limit)
		if err != nil {
			if errors.Is(err, errUnknownWindow) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": rows})
	}
}

func TopPortsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sourceSystem, window, limit := reportParams(c)
		rows, err := TopPorts(c.Request.Context(), config.GetDB(), sourceSystem, window, limit)
		if err != nil {
			if errors.Is(err, errUnknownWindow) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": rows})
	}
}
