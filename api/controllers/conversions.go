package controllers

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/convtrack-backend/api/middleware"
	"github.com/angelmondragon/convtrack-backend/api/responses"
	"github.com/angelmondragon/convtrack-backend/api/validators"
	"github.com/angelmondragon/convtrack-backend/internal/conversions"
	"github.com/angelmondragon/convtrack-backend/internal/ingest"
	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
	"github.com/angelmondragon/convtrack-backend/pkg/logger"
)

const (
	signatureHeader         = "X-Signature"
	fallbackSignatureHeader = "X-Hub-Signature-256"
)

// ConversionWebhook accepts signed JSON pushes. The signature is checked
// against the raw body before anything is decoded.
func ConversionWebhook(svc ingest.Service, maxBodyBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ingest service unavailable"))
			return
		}

		source, err := validators.SourceParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithSource(ctx, source)
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sig := strings.TrimSpace(r.Header.Get(signatureHeader))
		if sig == "" {
			sig = strings.TrimSpace(r.Header.Get(fallbackSignatureHeader))
		}
		if err := svc.VerifyWebhook(ctx, source, body, sig); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload conversions.WebhookPayload
		if err := validators.DecodeJSONBytes(body, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payload.Source = source

		out, err := svc.HandleWebhook(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// ConversionPostback accepts GET callbacks whose data rides in the query
// string. Caller filtering happens in middleware.
func ConversionPostback(svc ingest.Service, source string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ingest service unavailable"))
			return
		}
		payload := conversions.PostbackFromQuery(source, r.URL.Query())
		out, err := svc.HandlePostback(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// ConversionPoll triggers one pull run. It is guarded by a shared bearer
// secret rather than a member token.
func ConversionPoll(svc ingest.Service, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ingest service unavailable"))
			return
		}
		if secret == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConfiguration, "poll secret not configured"))
			return
		}
		token, ok := middleware.BearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid poll credentials"))
			return
		}

		summary, err := svc.Poll(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
