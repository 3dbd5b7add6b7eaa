// api/handlers/admin_handlers.go
package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"crewportal/api/models"
	"crewportal/api/progress"
	"crewportal/api/store"
)

type AdminHandlers struct {
	Rollup     *progress.Rollup
	Ledger     *progress.Ledger
	AuditStore *store.AuditStore
	Hidden     map[string]struct{}
}

func NewAdminHandlers(rollup *progress.Rollup, ledger *progress.Ledger, auditStore *store.AuditStore, hidden map[string]struct{}) *AdminHandlers {
	return &AdminHandlers{
		Rollup:     rollup,
		Ledger:     ledger,
		AuditStore: auditStore,
		Hidden:     hidden,
	}
}

// GetFleetSnapshot serves the fleet-wide training statistics. Hidden
// accounts are excluded unless the requesting admin is itself hidden; that
// policy decision happens here, not in the rollup.
func (h *AdminHandlers) GetFleetSnapshot(c *gin.Context) {
	excluded := h.Hidden
	if email, ok := c.Get("user_email"); ok {
		if _, callerHidden := h.Hidden[email.(string)]; callerHidden {
			excluded = nil
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	snapshot, err := h.Rollup.FleetSnapshot(ctx, excluded)
	if err != nil {
		log.Printf("ERROR: Failed to compute fleet snapshot: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve fleet statistics"})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// OverrideVisit force-completes a section for a user. This is the only
// sanctioned correction path; it runs through the ledger, never a raw write.
func (h *AdminHandlers) OverrideVisit(c *gin.Context) {
	var req models.OverrideVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	bd, err := h.Ledger.AdminOverrideVisit(ctx, req.Email, req.SectionID, c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, progress.ErrUnknownSection):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown section", "sectionId": req.SectionID})
		case errors.Is(err, progress.ErrUnknownUser):
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown user"})
		default:
			log.Printf("ERROR: Failed to override visit for %s/%s: %v", req.Email, req.SectionID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to override visit"})
		}
		return
	}

	c.JSON(http.StatusOK, bd)
}

func (h *AdminHandlers) GetVisitCountsOverTime(c *gin.Context) {
	interval := c.Query("interval")
	if interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return
	}

	sectionFilter := c.Query("sectionId") // Will be "" if not provided

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.AuditStore.GetVisitCountsOverTime(ctx, interval, start, end, sectionFilter)
	if err != nil {
		log.Printf("Error getting visit counts over time: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve visit statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}

func (h *AdminHandlers) GetAverageDwell(c *gin.Context) {
	sectionFilter := c.Query("sectionId")

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	avgDwell, err := h.AuditStore.GetAverageDwell(ctx, sectionFilter, start, end)
	if err != nil {
		log.Printf("Error getting average dwell: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve average dwell statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sectionId":           sectionFilter,
		"startDate":           start.Format(time.RFC3339),
		"endDate":             end.Format(time.RFC3339),
		"averageDwellSeconds": avgDwell,
	})
}

func (h *AdminHandlers) GetUniqueVisitorsOverTime(c *gin.Context) {
	interval := c.Query("interval")
	if interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return
	}

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.AuditStore.GetUniqueVisitorsOverTime(ctx, interval, start, end)
	if err != nil {
		log.Printf("Error getting unique visitors over time: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve unique visitor statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}

func (h *AdminHandlers) GetTopSections(c *gin.Context) {
	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	var limit uint64 = 10 // Default limit
	limitParam := c.Query("limit")
	if limitParam != "" {
		parsedLimit, err := strconv.ParseUint(limitParam, 10, 64)
		if err != nil || parsedLimit == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
			return
		}
		limit = parsedLimit
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.AuditStore.GetTopSections(ctx, start, end, limit)
	if err != nil {
		log.Printf("Error getting top sections: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top section statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}

// parseTimeRange reads the optional start/end RFC3339 query parameters,
// defaulting to the last 7 days. On a malformed value it writes the 400
// response itself and returns ok=false.
func parseTimeRange(c *gin.Context) (start, end time.Time, ok bool) {
	var err error

	startParam := c.Query("start")
	if startParam != "" {
		start, err = time.Parse(time.RFC3339, startParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'start' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
	} else {
		start = time.Now().UTC().Add(-7 * 24 * time.Hour)
	}

	endParam := c.Query("end")
	if endParam != "" {
		end, err = time.Parse(time.RFC3339, endParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'end' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
	} else {
		end = time.Now().UTC()
	}

	return start, end, true
}
