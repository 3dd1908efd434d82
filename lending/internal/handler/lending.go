package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Astemirdum/lending-service/lending/internal/model"
)

func (h *Handler) CreateLoan(c echo.Context) error {
	var req model.CreateLoanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	loan, err := h.lendingSvc.CreateLoan(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, loan)
}

func (h *Handler) ReturnLoan(c echo.Context) error {
	loanID := c.Param("loanId")
	if loanID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "loanId is empty")
	}
	loan, err := h.lendingSvc.ReturnLoan(c.Request().Context(), loanID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, loan)
}

func (h *Handler) DeleteLoan(c echo.Context) error {
	loanID := c.Param("loanId")
	if loanID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "loanId is empty")
	}
	if err := h.lendingSvc.DeleteLoan(c.Request().Context(), loanID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetLoan(c echo.Context) error {
	details, err := h.lendingSvc.GetLoan(c.Request().Context(), c.Param("loanId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, details)
}

func (h *Handler) ListLoans(c echo.Context) error {
	loans, err := h.lendingSvc.ListLoans(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, loans)
}

func (h *Handler) ListActiveLoans(c echo.Context) error {
	loans, err := h.lendingSvc.ListActiveLoans(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, loans)
}

func (h *Handler) ListLoanHistory(c echo.Context) error {
	loans, err := h.lendingSvc.ListLoanHistory(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, loans)
}

func (h *Handler) ListMemberLoans(c echo.Context) error {
	loans, err := h.lendingSvc.ListMemberLoans(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, loans)
}

func (h *Handler) CheckConsistency(c echo.Context) error {
	report, err := h.lendingSvc.CheckConsistency(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) RepairConsistency(c echo.Context) error {
	books, err := h.lendingSvc.RepairConsistency(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, books)
}
