package events

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/responses"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/validators"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/collector"
	internalevents "github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/sessions"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/types"
)

// MaxBatchSize bounds one POST /events/batch request.
const MaxBatchSize = 500

// Collector is the ingestion surface used by these handlers.
type Collector interface {
	CollectEvent(ctx context.Context, in collector.Input) (internalevents.Event, error)
	CollectEventBatch(ctx context.Context, inputs []collector.Input) []collector.BatchResult
	StartSession(ctx context.Context, userID string, evCtx internalevents.Context) (*sessions.Session, error)
	EndSession(ctx context.Context, sessionID string) (*sessions.Session, error)
}

type ProfileWriter interface {
	Put(ctx context.Context, userID string, props map[string]any) error
}

type batchRequest struct {
	Events []collector.Input `json:"events" validate:"required,min=1,max=500"`
}

type batchItem struct {
	Index int                   `json:"index"`
	Event *internalevents.Event `json:"event,omitempty"`
	Error *types.APIError       `json:"error,omitempty"`
}

type batchResponse struct {
	Accepted int         `json:"accepted"`
	Rejected int         `json:"rejected"`
	Results  []batchItem `json:"results"`
}

type startSessionRequest struct {
	UserID  string                 `json:"user_id" validate:"required,max=128"`
	Context internalevents.Context `json:"context"`
}

type userPropertiesRequest struct {
	Properties map[string]any `json:"properties" validate:"required"`
}

// Collect validates, enriches and buffers one event.
func Collect(c Collector, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in collector.Input
		if err := validators.DecodeJSONBody(w, r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		e, err := c.CollectEvent(r.Context(), in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, e)
	}
}

// CollectBatch collects each event independently and answers 207 when any item failed.
func CollectBatch(c Collector, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		results := c.CollectEventBatch(r.Context(), req.Events)
		resp := batchResponse{Results: make([]batchItem, 0, len(results))}
		for _, res := range results {
			item := batchItem{Index: res.Index, Event: res.Event}
			if res.Error != nil {
				item.Event = nil
				item.Error = itemError(res.Error)
				resp.Rejected++
			} else {
				resp.Accepted++
			}
			resp.Results = append(resp.Results, item)
		}

		if resp.Rejected > 0 {
			if logg != nil {
				ctx := logg.WithFields(r.Context(), map[string]any{
					"accepted": resp.Accepted,
					"rejected": resp.Rejected,
				})
				logg.Warn(ctx, "events.batch.partial")
			}
			responses.WriteSuccessStatus(w, http.StatusMultiStatus, resp)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

func StartSession(c Collector, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startSessionRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		s, err := c.StartSession(r.Context(), strings.TrimSpace(req.UserID), req.Context)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, s)
	}
}

func EndSession(c Collector, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id is required"))
			return
		}
		s, err := c.EndSession(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, s)
	}
}

// PutUserProperties replaces the stored profile used for event enrichment.
func PutUserProperties(profiles ProfileWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := validators.SanitizeString(chi.URLParam(r, "userID"), 128)
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user id is required"))
			return
		}
		var req userPropertiesRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := profiles.Put(r.Context(), userID, req.Properties); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store user properties"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"user_id": userID, "properties": req.Properties})
	}
}

func itemError(err error) *types.APIError {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())
	out := &types.APIError{Code: string(typed.Code()), Message: meta.PublicMessage}
	if typed.Code() == pkgerrors.CodeValidation && typed.Message() != "" {
		out.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		out.Details = typed.Details()
	}
	return out
}
