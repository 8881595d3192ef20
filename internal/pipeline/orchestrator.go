// Package pipeline coordinates quota, inference, normalization and
// persistence into one generation request cycle.
package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/do"

	"ghiblify/internal/history"
	"ghiblify/internal/identity"
	"ghiblify/internal/log"
	"ghiblify/internal/normalize"
	"ghiblify/internal/provider"
	"ghiblify/internal/quota"
	"ghiblify/internal/store"
)

// State tracks a request through the pipeline. Failures transition to
// StateFailed from anywhere.
type State string

const (
	StateIdle         State = "idle"
	StateQuotaChecked State = "quota_checked"
	StateSubmitted    State = "submitted"
	StateNormalizing  State = "normalizing"
	StatePersisting   State = "persisting"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

// Request is one generation invocation. SourceImage has already passed
// intake; Background is the optional style hint recorded with the result.
type Request struct {
	Identity    identity.Identity
	SourceImage string
	Background  string
}

// Result carries the final public URL and the history record written for
// a completed generation.
type Result struct {
	URL    string
	Record history.Record
}

// HistoryAppender records completed generations. Satisfied by history.Log.
type HistoryAppender interface {
	Append(ctx context.Context, visitor string, r history.Record) error
}

// Orchestrator owns the per-request state machine. It never retries the
// inference call (slow and costed) and debits quota only after the final
// URL is secured, so a failed generation never consumes allowance.
type Orchestrator struct {
	Ledger    *quota.Ledger
	Generator provider.Generator
	Artifacts store.Store
	History   HistoryAppender
	BaseURL   string
}

func NewOrchestrator(i *do.Injector) (*Orchestrator, error) {
	return &Orchestrator{
		Ledger:    do.MustInvoke[*quota.Ledger](i),
		Generator: do.MustInvoke[provider.Generator](i),
		Artifacts: do.MustInvoke[store.Store](i),
		History:   do.MustInvoke[*history.Log](i),
		BaseURL:   do.MustInvokeNamed[string](i, "base_url"),
	}, nil
}

// Generate runs one request through the pipeline.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (Result, error) {
	logger := log.FromContextOrDiscard(ctx).WithGroup("pipeline").With("visitor", req.Identity.Key())
	state := StateIdle

	decision, err := o.Ledger.CheckAndReserve(ctx, req.Identity)
	if err != nil {
		return Result{}, failure(KindInternal, state, err)
	}
	if !decision.Allowed {
		logger.Info("generation refused by quota gate", "reason", decision.Reason)
		return Result{}, &Error{Kind: KindQuotaExceeded, Stage: state, Reason: decision.Reason}
	}
	state = StateQuotaChecked

	// From here every failure path must return the reservation.
	committed := false
	defer func() {
		if !committed {
			o.Ledger.Release(ctx, req.Identity)
		}
	}()

	raw, err := o.Generator.Generate(ctx, provider.Params{
		SourceImage: req.SourceImage,
		Background:  req.Background,
	})
	if err != nil {
		logger.Error("inference call failed", "stage", state, "error", err)
		return Result{}, failure(KindInference, state, err)
	}
	state = StateSubmitted
	if rc, ok := raw.(io.ReadCloser); ok {
		defer rc.Close()
	}

	state = StateNormalizing
	normalized, err := normalize.Normalize(ctx, raw)
	if err != nil {
		logger.Error("normalization failed", "stage", state,
			"shape", normalize.Fingerprint(raw), "error", err)
		return Result{}, failure(KindNormalization, state, err)
	}

	var finalURL string
	if normalized.ShortCircuit() {
		// Provider already hosts the image; no persistence needed.
		finalURL = normalized.URL
	} else {
		state = StatePersisting
		finalURL, err = o.Artifacts.Persist(ctx, store.Params{
			Data:        normalized.Artifact.Bytes,
			ContentType: contentTypeOf(normalized.Artifact),
			Metadata:    map[string]string{"background": req.Background},
		})
		if err != nil {
			logger.Error("artifact persistence failed", "stage", state, "error", err)
			return Result{}, failure(KindStorage, state, err)
		}
	}

	finalURL = o.absolute(finalURL)

	if err := o.Ledger.Commit(ctx, req.Identity); err != nil {
		// The artifact exists but the debit did not land; surface it rather
		// than hand out a free generation silently.
		logger.Error("quota commit failed after successful generation", "error", err)
		committed = true // reservation already settled by Commit
		return Result{}, failure(KindInternal, state, err)
	}
	committed = true

	record := history.Record{
		ID:           ulid.Make().String(),
		OriginalURL:  o.originalURL(ctx, req),
		GeneratedURL: finalURL,
		Timestamp:    time.Now().UTC(),
		Background:   req.Background,
	}
	if err := o.History.Append(ctx, req.Identity.Key(), record); err != nil {
		// History is a convenience surface; the generation itself succeeded.
		logger.Warn("appending history record failed", "error", err)
	}

	state = StateCompleted
	logger.Info("generation completed", "url", finalURL, "state", string(state))
	return Result{URL: finalURL, Record: record}, nil
}

// originalURL makes the source image fetchable for the gallery's
// before/after view. Hosted sources pass through; uploaded payloads are
// persisted alongside the artifact, best effort.
func (o *Orchestrator) originalURL(ctx context.Context, req Request) string {
	if strings.HasPrefix(req.SourceImage, "http://") || strings.HasPrefix(req.SourceImage, "https://") {
		return req.SourceImage
	}
	res, err := normalize.Normalize(ctx, req.SourceImage)
	if err != nil || res.Artifact == nil {
		return ""
	}
	url, err := o.Artifacts.Persist(ctx, store.Params{
		Data:        res.Artifact.Bytes,
		ContentType: contentTypeOf(res.Artifact),
		Metadata:    map[string]string{"kind": "original"},
	})
	if err != nil {
		log.FromContextOrDiscard(ctx).Warn("persisting original image failed", "error", err)
		return ""
	}
	return o.absolute(url)
}

// absolute resolves a URL to absolute form; relative paths are disallowed
// at the orchestrator boundary.
func (o *Orchestrator) absolute(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return strings.TrimSuffix(o.BaseURL, "/") + "/" + strings.TrimPrefix(url, "/")
}

func contentTypeOf(a *normalize.Artifact) string {
	if a.MIME != "" {
		return a.MIME
	}
	return "image/png"
}

// KindOf classifies any error coming out of Generate.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindInternal
}
