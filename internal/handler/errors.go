package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"impact-gateway/internal/model"
)

// ErrorHandler returns an echo.HTTPErrorHandler that writes every error,
// including router 404/405 and middleware rejections, as an envelope.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		result := model.Internal()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			result = httpErrorResult(he)
		} else {
			logger.Error("unhandled error",
				"err", err,
				"path", c.Request().URL.Path,
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(result.Status())
		} else {
			werr = c.JSON(result.Status(), result.Envelope())
		}
		if werr != nil {
			logger.Error("write error response", "err", werr)
		}
	}
}

func httpErrorResult(he *echo.HTTPError) model.Result {
	message := http.StatusText(he.Code)
	if s, ok := he.Message.(string); ok && s != "" {
		message = s
	} else if he.Message != nil {
		message = fmt.Sprint(he.Message)
	}

	switch {
	case he.Code == http.StatusUnauthorized:
		return model.Err(model.KindUnauthorized, message)
	case he.Code == http.StatusNotFound:
		return model.Err(model.KindNotFound, message)
	case he.Code >= http.StatusInternalServerError:
		return model.Internal()
	default:
		return model.ErrStatus(he.Code, model.KindBadRequest, message)
	}
}
