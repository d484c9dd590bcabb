package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/convtrack-backend/api/responses"
	"github.com/angelmondragon/convtrack-backend/api/validators"
	"github.com/angelmondragon/convtrack-backend/internal/conversions"
	"github.com/angelmondragon/convtrack-backend/internal/ledger"
	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
	"github.com/angelmondragon/convtrack-backend/pkg/logger"
	"github.com/angelmondragon/convtrack-backend/pkg/pagination"
)

// AdminListConversions pages through the ledger, newest first.
func AdminListConversions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query := r.URL.Query()
		params := ledger.ListParams{
			Source: strings.TrimSpace(query.Get("source")),
			Status: strings.TrimSpace(query.Get("status")),
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(query.Get("cursor")),
			},
		}
		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminGetConversion(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		conv, err := svc.Get(r.Context(), conversions.Key{
			Source:  conversions.NormalizeSource(chi.URLParam(r, "source")),
			OrderID: chi.URLParam(r, "orderId"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, conv)
	}
}
