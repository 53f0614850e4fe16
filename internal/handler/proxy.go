package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"impact-gateway/internal/model"
	"impact-gateway/internal/service"
)

// ProxyHandler serves proxied routes by forwarding them to the upstream API.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Route returns the handler that forwards requests matched by route.
func (h *ProxyHandler) Route(route service.Route) echo.HandlerFunc {
	return func(c echo.Context) error {
		relay, err := h.service.Forward(route, proxyRequest(c))
		if err != nil {
			return h.mapError(c, route, err)
		}
		return writeResult(c, relay.Result, relay.Header)
	}
}

// Overview fetches the dashboard sections concurrently and returns them
// together.
func (h *ProxyHandler) Overview(sections map[string]service.Route) echo.HandlerFunc {
	return func(c echo.Context) error {
		pr := proxyRequest(c)
		result, err := h.service.Gather(pr.Ctx, pr, sections)
		if err != nil {
			return h.mapError(c, service.Route{Method: c.Request().Method, Path: c.Path()}, err)
		}
		return writeResult(c, result, nil)
	}
}

func proxyRequest(c echo.Context) *model.ProxyRequest {
	req := c.Request()

	params := make(map[string]string, len(c.ParamNames()))
	values := c.ParamValues()
	for i, name := range c.ParamNames() {
		if i < len(values) {
			params[name] = values[i]
		}
	}

	header := req.Header.Clone()
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" && header.Get(echo.HeaderXRequestID) == "" {
		header.Set(echo.HeaderXRequestID, id)
	}

	return &model.ProxyRequest{
		Ctx:    req.Context(),
		Method: req.Method,
		Path:   req.URL.Path,
		Params: params,
		Query:  req.URL.Query(),
		Header: header,
		Body:   req.Body,
	}
}

// mapError turns a failed forward into a response. Caller mistakes are 400s;
// everything else is the fixed internal error.
func (h *ProxyHandler) mapError(c echo.Context, route service.Route, err error) error {
	if errors.Is(err, service.ErrMissingParam) || errors.Is(err, service.ErrInvalidBody) {
		h.logger.Warn("rejected request",
			"err", err,
			"route", route.String(),
		)
		return writeResult(c, model.Err(model.KindBadRequest, err.Error()), nil)
	}

	h.logger.Error("proxy error",
		"err", err,
		"route", route.String(),
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
	)
	return writeResult(c, model.Internal(), nil)
}

func writeResult(c echo.Context, r model.Result, header http.Header) error {
	// Relayed headers replace gateway defaults such as Cache-Control.
	for key, vals := range header {
		c.Response().Header()[key] = vals
	}
	if r.Status() == http.StatusNoContent {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(r.Status(), r.Envelope())
}
