package main

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

const KioskIDKey contextKey = "kioskId"

const devKioskID = "kiosk-dev"

func ExtractKioskMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set by the kiosk shell in front of the browser.
		kioskID := r.Header.Get("X-Kiosk-ID")

		if kioskID == "" {
			kioskID = r.Header.Get("X-Forwarded-User")
		}

		// Development mode
		if kioskID == "" {
			kioskID = devKioskID
			slog.Debug("no kiosk header, using dev kiosk")
		}

		ctx := context.WithValue(r.Context(), KioskIDKey, kioskID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetKioskID(r *http.Request) string {
	kioskID, ok := r.Context().Value(KioskIDKey).(string)
	if !ok {
		return ""
	}
	return kioskID
}
