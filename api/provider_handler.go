package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/renderq/health"
)

func (a *API) listProviders(ctx forge.Context) error {
	return ctx.JSON(http.StatusOK, a.eng.ProviderHealth())
}

func (a *API) probeProvider(ctx forge.Context, _ *ProbeProviderRequest) (*health.Record, error) {
	rec, err := a.eng.TestProvider(ctx.Context(), ctx.Param("name"))
	if err != nil {
		return nil, mapStoreError(err)
	}

	return &rec, ctx.JSON(http.StatusOK, rec)
}

func (a *API) probeAllProviders(ctx forge.Context) error {
	results, err := a.eng.ProbeAll(ctx.Context())
	if err != nil {
		return mapStoreError(err)
	}

	return ctx.JSON(http.StatusOK, results)
}
