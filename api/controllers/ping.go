package controllers

import (
	"net/http"

	"github.com/quotaflow/quotaflow-backend/api/middleware"
	"github.com/quotaflow/quotaflow-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "private", "status": "ok"}
		if svc := middleware.ServiceNameFromContext(r.Context()); svc != "" {
			payload["service_name"] = svc
		}
		responses.WriteSuccess(w, payload)
	}
}
