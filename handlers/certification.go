package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/padraicbc/pageantapi/scoring"
)

func (h *Handler) CertifyJudge(c echo.Context) error {
	var in scoring.CertifyJudgeInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, err.Error())
	}
	cert, err := h.svc.CertifyJudge(c.Request().Context(), actor(c), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, cert)
}

func (h *Handler) CertifyTally(c echo.Context) error {
	var in scoring.CertifyInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, err.Error())
	}
	cert, err := h.svc.CertifyTally(c.Request().Context(), actor(c), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, cert)
}

func (h *Handler) CertifyAudit(c echo.Context) error {
	var in scoring.CertifyInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, err.Error())
	}
	cert, err := h.svc.CertifyAudit(c.Request().Context(), actor(c), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, cert)
}

// CertificationStatus is the board's final view of a subcategory.
func (h *Handler) CertificationStatus(c echo.Context) error {
	sub, err := int64Param(c, "subcategoryID")
	if err != nil {
		return err
	}
	st, err := h.svc.Status(c.Request().Context(), actor(c), sub)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}
