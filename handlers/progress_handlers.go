// api/handlers/progress_handlers.go
package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"crewportal/api/catalog"
	"crewportal/api/models"
	"crewportal/api/progress"
)

type ProgressHandlers struct {
	Catalog    *catalog.Catalog
	Ledger     *progress.Ledger
	Aggregator *progress.Aggregator
	Gate       *progress.Gate
	Notifier   *progress.Notifier
}

func NewProgressHandlers(cat *catalog.Catalog, ledger *progress.Ledger, agg *progress.Aggregator, gate *progress.Gate, notifier *progress.Notifier) *ProgressHandlers {
	return &ProgressHandlers{
		Catalog:    cat,
		Ledger:     ledger,
		Aggregator: agg,
		Gate:       gate,
		Notifier:   notifier,
	}
}

// GetSections lists the trackable sections and their completion policies.
func (h *ProgressHandlers) GetSections(c *gin.Context) {
	c.JSON(http.StatusOK, h.Catalog.Sections())
}

// RecordVisit receives one reported dwell interval from the UI and merges it
// into the caller's ledger. The response carries the refreshed breakdown so
// the session sees its own write immediately.
func (h *ProgressHandlers) RecordVisit(c *gin.Context) {
	var req models.VisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	email := c.MustGet("user_email").(string)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	bd, err := h.Ledger.RecordVisit(ctx, email, req.SectionID, req.DwellSeconds, c.ClientIP())
	if errors.Is(err, progress.ErrConflict) {
		// The merge is idempotent at the request level, so one retry of the
		// whole operation is safe.
		bd, err = h.Ledger.RecordVisit(ctx, email, req.SectionID, req.DwellSeconds, c.ClientIP())
	}
	if err != nil {
		switch {
		case errors.Is(err, progress.ErrUnknownSection):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown section", "sectionId": req.SectionID})
		case errors.Is(err, progress.ErrUnknownUser):
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown user"})
		default:
			log.Printf("ERROR: Failed to record visit for %s/%s: %v", email, req.SectionID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record visit"})
		}
		return
	}

	c.JSON(http.StatusOK, bd)
}

// GetProgress reads the caller's breakdown. Reads never block the UI on a
// store failure: a stale zeroed breakdown is served with 200 instead.
func (h *ProgressHandlers) GetProgress(c *gin.Context) {
	email := c.MustGet("user_email").(string)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	bd, err := h.Aggregator.Breakdown(ctx, email)
	if err != nil {
		if errors.Is(err, progress.ErrUnknownUser) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown user"})
			return
		}
		log.Printf("ERROR: Failed to compute breakdown for %s, serving stale: %v", email, err)
	}
	c.JSON(http.StatusOK, bd)
}

// SubmitAcknowledgement records the one-time training acknowledgement.
// Eligibility is recomputed server-side; the two rejection reasons map to
// distinct codes so the UI can phrase the message.
func (h *ProgressHandlers) SubmitAcknowledgement(c *gin.Context) {
	email := c.MustGet("user_email").(string)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	err := h.Gate.SubmitAcknowledgement(ctx, email, c.ClientIP())
	if errors.Is(err, progress.ErrConflict) {
		// Submission is idempotent at the request level: the retry either
		// wins cleanly or reports ErrAlreadyAcknowledged.
		err = h.Gate.SubmitAcknowledgement(ctx, email, c.ClientIP())
	}
	if err != nil {
		switch {
		case errors.Is(err, progress.ErrAlreadyAcknowledged):
			c.JSON(http.StatusConflict, gin.H{"error": "Training already acknowledged", "code": "already_acknowledged"})
		case errors.Is(err, progress.ErrIncompleteProgress):
			c.JSON(http.StatusConflict, gin.H{"error": "Training is not complete", "code": "incomplete_progress"})
		case errors.Is(err, progress.ErrUnknownUser):
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown user"})
		default:
			log.Printf("ERROR: Failed to submit acknowledgement for %s: %v", email, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit acknowledgement"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Training acknowledged"})
}

// StreamProgress serves the caller's progress events over SSE so open
// sessions stay live. The subscription is released when the client
// disconnects.
func (h *ProgressHandlers) StreamProgress(c *gin.Context) {
	email := c.MustGet("user_email").(string)

	events := make(chan progress.Event, 8)
	clientGone := c.Request.Context().Done()
	sub := h.Notifier.Subscribe(email, func(ev progress.Event) {
		select {
		case events <- ev:
		case <-clientGone:
		}
	})
	defer sub.Close()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case ev := <-events:
			c.SSEvent(string(ev.Kind), ev.Breakdown)
			return true
		case <-clientGone:
			return false
		}
	})
}
