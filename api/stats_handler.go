// Package api provides HTTP handlers for the renderq API.
package api

import (
	"net/http"

	"github.com/xraph/forge"
)

func (a *API) stats(ctx forge.Context) error {
	stats, err := a.eng.JobStats(ctx.Context())
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, StatsResponse{
		Total:    stats.Total,
		ByStatus: stats.ByStatus,
	})
}
