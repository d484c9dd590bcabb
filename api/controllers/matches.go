package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/convtrack-backend/api/responses"
	"github.com/angelmondragon/convtrack-backend/api/validators"
	"github.com/angelmondragon/convtrack-backend/internal/conversions"
	"github.com/angelmondragon/convtrack-backend/internal/ledger"
	"github.com/angelmondragon/convtrack-backend/internal/matching"
	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
	"github.com/angelmondragon/convtrack-backend/pkg/logger"
)

// Matcher ranks click candidates for conversions.
type Matcher interface {
	FindMatchingCandidates(ctx context.Context, q matching.Query) (*matching.Result, error)
	FindBatch(ctx context.Context, queries []matching.Query) *matching.BatchResult
}

type matchBatchRequest struct {
	Conversions []matching.Query `json:"conversions" validate:"required,min=1,max=500,dive"`
}

// AdminMatchConversion scores candidates for an ad hoc conversion.
func AdminMatchConversion(engine Matcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "matching engine unavailable"))
			return
		}
		var q matching.Query
		if err := validators.DecodeJSONBody(r, &q); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := engine.FindMatchingCandidates(r.Context(), q)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminMatchBatch scores a list of conversions. Items that fail are counted,
// not fatal.
func AdminMatchBatch(engine Matcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "matching engine unavailable"))
			return
		}
		var req matchBatchRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, engine.FindBatch(r.Context(), req.Conversions))
	}
}

// AdminMatchRecorded loads a ledger row and scores candidates for it.
func AdminMatchRecorded(svc ledger.Service, engine Matcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "matching unavailable"))
			return
		}
		key := conversions.Key{
			Source:  conversions.NormalizeSource(chi.URLParam(r, "source")),
			OrderID: chi.URLParam(r, "orderId"),
		}
		conv, err := svc.Get(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := engine.FindMatchingCandidates(r.Context(), matching.Query{
			OrderID:      conv.OrderID,
			DealName:     conv.DealName,
			RewardAmount: conv.RewardAmount,
			OccurredAt:   conv.OccurredAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
