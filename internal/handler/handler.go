// Package handler exposes the generation pipeline and its supporting
// surfaces over HTTP.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"

	"ghiblify/internal/caption"
	"ghiblify/internal/export"
	"ghiblify/internal/feed"
	"ghiblify/internal/history"
	"ghiblify/internal/identity"
	"ghiblify/internal/intake"
	"ghiblify/internal/log"
	"ghiblify/internal/payment"
	"ghiblify/internal/pipeline"
	"ghiblify/internal/quota"
	"ghiblify/internal/ratelimit"
	"ghiblify/internal/store"
)

type Handler struct {
	orchestrator *pipeline.Orchestrator
	ledger       *quota.Ledger
	verifier     payment.Verifier
	history      *history.Log
	artifacts    store.Store
	invalidator  store.Invalidator
	captions     *caption.Randomizer
	feed         *feed.Generator
	limiter      *ratelimit.PerVisitor
	client       *http.Client
}

func NewHandler(i *do.Injector) (*Handler, error) {
	return &Handler{
		orchestrator: do.MustInvoke[*pipeline.Orchestrator](i),
		ledger:       do.MustInvoke[*quota.Ledger](i),
		verifier:     do.MustInvoke[payment.Verifier](i),
		history:      do.MustInvoke[*history.Log](i),
		artifacts:    do.MustInvoke[store.Store](i),
		invalidator:  do.MustInvoke[store.Invalidator](i),
		captions:     do.MustInvoke[*caption.Randomizer](i),
		feed:         do.MustInvoke[*feed.Generator](i),
		limiter:      ratelimit.NewPerVisitor(ratelimit.GenerationsPerMinute, ratelimit.GenerationBurst),
		client:       do.MustInvoke[*http.Client](i),
	}, nil
}

type generateRequest struct {
	ImageURL   string `json:"imageUrl" binding:"required"`
	Background string `json:"background"`
}

// Generate runs the full pipeline for the caller. The inference call
// routinely takes tens of seconds; clients show a long-running indication
// and must not resubmit on their own timeout.
func (h *Handler) Generate(c *gin.Context) {
	ctx := c.Request.Context()
	id := identity.FromContext(c)

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, pipeline.KindInvalidInput, "imageUrl is required")
		return
	}

	if !h.limiter.Allow(id.Key()) {
		fail(c, http.StatusTooManyRequests, pipeline.KindInvalidInput, "too many generation requests")
		return
	}

	source, err := intake.Prepare(ctx, req.ImageURL)
	if err != nil {
		fail(c, http.StatusBadRequest, pipeline.KindInvalidInput, err.Error())
		return
	}

	result, err := h.orchestrator.Generate(ctx, pipeline.Request{
		Identity:    id,
		SourceImage: source,
		Background:  req.Background,
	})
	if err != nil {
		kind := pipeline.KindOf(err)
		fail(c, statusFor(kind), kind, publicMessage(kind))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"imageUrl": result.URL,
		"record":   result.Record,
	})
}

// Quota serves the caller's remaining free / credit / total counts.
func (h *Handler) Quota(c *gin.Context) {
	snapshot, err := h.ledger.Remaining(c.Request.Context(), identity.FromContext(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, pipeline.KindInternal, "could not read quota")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "quota": snapshot})
}

type confirmRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// ConfirmPayment turns a completed checkout session into a credit grant.
// Replayed confirmations are deduplicated by session id.
func (h *Handler) ConfirmPayment(c *gin.Context) {
	ctx := c.Request.Context()
	id := identity.FromContext(c)

	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, pipeline.KindInvalidInput, "sessionId is required")
		return
	}

	confirmation, err := h.verifier.Verify(ctx, req.SessionID)
	if err != nil {
		log.FromContextOrDiscard(ctx).Error("payment verification failed", "error", err)
		fail(c, http.StatusBadGateway, pipeline.KindInternal, "could not verify payment")
		return
	}
	if !confirmation.Paid {
		fail(c, http.StatusPaymentRequired, pipeline.KindInvalidInput, "payment was not completed")
		return
	}

	plan, ok := payment.Lookup(confirmation.Plan)
	if !ok {
		fail(c, http.StatusBadRequest, pipeline.KindInvalidInput, "unknown plan")
		return
	}

	total, err := h.ledger.GrantCredits(ctx, id, confirmation.SessionID, plan.Credits)
	if err != nil {
		fail(c, http.StatusInternalServerError, pipeline.KindInternal, "could not grant credits")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "credits": total, "planId": plan.Plan})
}

// Plans serves the closed plan table.
func (h *Handler) Plans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "plans": payment.Plans()})
}

// History lists the caller's generations, newest first.
func (h *Handler) History(c *gin.Context) {
	records, err := h.history.List(c.Request.Context(), identity.FromContext(c).Key())
	if err != nil {
		fail(c, http.StatusInternalServerError, pipeline.KindInternal, "could not read history")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "records": records})
}

// DeleteHistory removes one record and its stored artifacts.
func (h *Handler) DeleteHistory(c *gin.Context) {
	ctx := c.Request.Context()
	record, ok, err := h.history.Remove(ctx, identity.FromContext(c).Key(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, pipeline.KindInternal, "could not remove record")
		return
	}
	if !ok {
		fail(c, http.StatusNotFound, pipeline.KindInvalidInput, "no such record")
		return
	}
	h.removeArtifacts(c, []history.Record{record})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ClearHistory removes every record and artifact the caller owns.
func (h *Handler) ClearHistory(c *gin.Context) {
	records, err := h.history.Clear(c.Request.Context(), identity.FromContext(c).Key())
	if err != nil {
		fail(c, http.StatusInternalServerError, pipeline.KindInternal, "could not clear history")
		return
	}
	h.removeArtifacts(c, records)
	c.JSON(http.StatusOK, gin.H{"success": true, "removed": len(records)})
}

func (h *Handler) removeArtifacts(c *gin.Context, records []history.Record) {
	ctx := c.Request.Context()
	logger := log.FromContextOrDiscard(ctx)

	group, ctx := errgroup.WithContext(ctx)
	var invalidate []string
	for _, r := range records {
		for _, url := range []string{r.GeneratedURL, r.OriginalURL} {
			if url == "" || !h.artifacts.Owns(url) {
				continue
			}
			url := url
			invalidate = append(invalidate, "/"+pathOf(url))
			group.Go(func() error { return h.artifacts.Remove(ctx, url) })
		}
	}
	if err := group.Wait(); err != nil {
		// Orphaned objects are acceptable; the history rows are gone.
		logger.Warn("artifact cleanup incomplete", "error", err)
	}
	if len(invalidate) > 0 {
		if err := h.invalidator.Invalidate(ctx, invalidate); err != nil {
			logger.Warn("cdn invalidation failed", "error", err)
		}
	}
}

type exportRequest struct {
	ID       string `json:"id" binding:"required"`
	Platform string `json:"platform" binding:"required"`
}

// Export renders one of the caller's generations at a platform's canvas
// dimensions and streams it back as a JPEG download.
func (h *Handler) Export(c *gin.Context) {
	ctx := c.Request.Context()
	id := identity.FromContext(c)

	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, pipeline.KindInvalidInput, "id and platform are required")
		return
	}
	if _, ok := export.Lookup(export.Platform(req.Platform)); !ok {
		fail(c, http.StatusBadRequest, pipeline.KindInvalidInput, "unknown platform")
		return
	}

	record, ok, err := h.history.Get(ctx, id.Key(), req.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, pipeline.KindInternal, "could not read history")
		return
	}
	if !ok {
		fail(c, http.StatusNotFound, pipeline.KindInvalidInput, "no such record")
		return
	}

	data, err := h.fetch(c, record.GeneratedURL)
	if err != nil {
		log.FromContextOrDiscard(ctx).Error("fetching artifact for export failed",
			"url", record.GeneratedURL, "error", err)
		fail(c, http.StatusBadGateway, pipeline.KindInternal, "could not fetch image")
		return
	}

	rendered, err := export.Render(data, export.Platform(req.Platform))
	if err != nil {
		fail(c, http.StatusInternalServerError, pipeline.KindInternal, "could not render export")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="ghibli-`+req.Platform+`.jpg"`)
	c.Data(http.StatusOK, "image/jpeg", rendered)
}

// Captions serves the share-caption lines plus a suggested pick.
func (h *Handler) Captions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"captions":  h.captions.All(),
		"suggested": h.captions.Randomize(c.Request.Context()),
	})
}

// Feed serves the public gallery RSS.
func (h *Handler) Feed(c *gin.Context) {
	rss, err := h.feed.Generate(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, pipeline.KindInternal, "could not build feed")
		return
	}
	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", rss)
}

func (h *Handler) fetch(c *gin.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, errors.New("artifact fetch returned status " + resp.Status)
	}
	return readAllLimited(resp.Body, 32<<20)
}

func fail(c *gin.Context, status int, kind pipeline.Kind, message string) {
	c.JSON(status, gin.H{"success": false, "kind": kind, "error": message})
}

func statusFor(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindQuotaExceeded:
		return http.StatusPaymentRequired
	case pipeline.KindInference, pipeline.KindNormalization:
		return http.StatusBadGateway
	case pipeline.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps upstream detail out of responses; full errors are in
// the logs with stage and shape context.
func publicMessage(kind pipeline.Kind) string {
	switch kind {
	case pipeline.KindQuotaExceeded:
		return "generation quota exhausted; purchase credits to continue"
	case pipeline.KindInference:
		return "the image generation service failed; you were not charged"
	case pipeline.KindNormalization:
		return "the generation result could not be processed; you were not charged"
	case pipeline.KindStorage:
		return "the generated image could not be saved; you were not charged"
	default:
		return "something went wrong"
	}
}
