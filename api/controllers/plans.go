package controllers

import (
	"net/http"

	"github.com/quotaflow/quotaflow-backend/api/responses"
	"github.com/quotaflow/quotaflow-backend/internal/metering"
	pkgerrors "github.com/quotaflow/quotaflow-backend/pkg/errors"
	"github.com/quotaflow/quotaflow-backend/pkg/logger"
)

// ListPlans returns the effective plan catalog, including any configured
// limit overrides.
func ListPlans(registry *metering.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if registry == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan registry unavailable"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"plans": registry.Plans()})
	}
}
