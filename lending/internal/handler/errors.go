package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Astemirdum/lending-service/lending/internal/errs"
)

var statusByErr = []struct {
	err  error
	code int
}{
	{errs.ErrNotFound, http.StatusNotFound},
	{errs.ErrUnknownLoan, http.StatusNotFound},
	{errs.ErrUnknownMember, http.StatusUnprocessableEntity},
	{errs.ErrUnknownBook, http.StatusUnprocessableEntity},
	{errs.ErrAlreadyExists, http.StatusConflict},
	{errs.ErrBookNotAvailable, http.StatusConflict},
	{errs.ErrAlreadyReturned, http.StatusConflict},
	{errs.ErrDuplicateActiveLoan, http.StatusConflict},
	{errs.ErrInvalidTransition, http.StatusConflict},
	{errs.ErrInvariantViolation, http.StatusConflict},
}

// httpError maps a service error to the status the API reports for it.
func httpError(err error) *echo.HTTPError {
	for _, se := range statusByErr {
		if errors.Is(err, se.err) {
			return echo.NewHTTPError(se.code, err.Error())
		}
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
