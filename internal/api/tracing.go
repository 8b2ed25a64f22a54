package api

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func (s *Server) withTracing(next http.Handler) http.Handler {
	if s.tracer == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		spanName := r.Method + " " + routeLabel(r.URL.Path)
		ctx, span := s.tracer.Start(r.Context(), spanName, trace.WithSpanKind(trace.SpanKindServer))
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", routeLabel(r.URL.Path)),
			attribute.String("http.target", r.URL.Path),
		)
		if receiptID := receiptIDFromPath(r.URL.Path); receiptID != "" {
			span.SetAttributes(attribute.String("receipt.id", receiptID))
		}
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// receiptIDFromPath pulls the receipt ID out of /v1/receipts/{id} and
// /v1/receipts/{id}/normalize paths.
func receiptIDFromPath(path string) string {
	if !strings.HasPrefix(path, "/v1/receipts/") {
		return ""
	}
	if receiptID, err := extractReceiptIDFromPath(path); err == nil {
		return receiptID
	}
	if receiptID, err := extractReceiptIDFromNormalizePath(path); err == nil {
		return receiptID
	}
	return ""
}
