package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/padraicbc/pageantapi/scoring"
)

type removalRef struct {
	RequestID int64 `json:"requestID"`
}

func (h *Handler) InitiateRemoval(c echo.Context) error {
	var in scoring.InitiateRemovalInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, err.Error())
	}
	req, err := h.svc.InitiateRemoval(c.Request().Context(), actor(c), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, req)
}

func (h *Handler) CoSignRemoval(c echo.Context) error {
	var in scoring.CoSignInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, err.Error())
	}
	req, err := h.svc.CoSign(c.Request().Context(), actor(c), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) WithdrawRemoval(c echo.Context) error {
	var in removalRef
	if err := c.Bind(&in); err != nil {
		return badRequest(c, err.Error())
	}
	req, err := h.svc.WithdrawRemoval(c.Request().Context(), actor(c), in.RequestID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// ListRemovals returns a subcategory's removal requests, optionally filtered
// by status.
func (h *Handler) ListRemovals(c echo.Context) error {
	sub, err := int64Param(c, "subcategoryID")
	if err != nil {
		return err
	}
	reqs, err := h.svc.ListRemovals(c.Request().Context(), actor(c), sub, c.QueryParam("status"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, reqs)
}
