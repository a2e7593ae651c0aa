package main

import (
	"errors"
	"net/http"

	deviceErrors "github.com/CodedInternet/sentrygun/onboard/errors"
	"github.com/go-chi/render"
)

// ErrResponse renders an error as {"status": ..., "error": ...} with the matching
// status code.
type ErrResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	StatusText string `json:"status"`
	ErrorText  string `json:"error,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func newErrResponse(err error, code int, status string) render.Renderer {
	resp := &ErrResponse{
		Err:            err,
		HTTPStatusCode: code,
		StatusText:     status,
	}
	if err != nil {
		resp.ErrorText = err.Error()
	}
	return resp
}

var ErrNotFound = &ErrResponse{HTTPStatusCode: http.StatusNotFound, StatusText: "Resource not found."}

func ErrInvalidRequest(err error) render.Renderer {
	return newErrResponse(err, http.StatusBadRequest, "Invalid request.")
}

func ErrUnauthorized(err error) render.Renderer {
	return newErrResponse(err, http.StatusUnauthorized, "Unauthorized.")
}

func ErrPermissionDenied(err error) render.Renderer {
	return newErrResponse(err, http.StatusForbidden, "Permission denied.")
}

func ErrConflict(err error) render.Renderer {
	return newErrResponse(err, http.StatusConflict, "Turret busy.")
}

func ErrUnavailable(err error) render.Renderer {
	return newErrResponse(err, http.StatusServiceUnavailable, "Turret unavailable.")
}

func ErrRender(err error) render.Renderer {
	return newErrResponse(err, http.StatusInternalServerError, "Error rendering response.")
}

// ErrTurret maps the turret error taxonomy onto responses.
func ErrTurret(err error) render.Renderer {
	switch {
	case deviceErrors.IsInvalidRequest(err):
		return ErrInvalidRequest(err)
	case errors.Is(err, deviceErrors.ErrNeedsResync), errors.Is(err, deviceErrors.ErrReloading):
		return ErrConflict(err)
	case deviceErrors.IsChannelError(err):
		return ErrUnavailable(err)
	default:
		return ErrRender(err)
	}
}
