package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/padraicbc/pageantapi/scoring"
)

type scoreRef struct {
	ScoreID int64 `json:"scoreID"`
}

// SubmitScore creates or updates the caller's score.
func (h *Handler) SubmitScore(c echo.Context) error {
	var in scoring.SubmitScoreInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, err.Error())
	}
	score, err := h.svc.SubmitScore(c.Request().Context(), actor(c), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, score)
}

// SignScore locks the caller's score.
func (h *Handler) SignScore(c echo.Context) error {
	var in scoreRef
	if err := c.Bind(&in); err != nil {
		return badRequest(c, err.Error())
	}
	score, err := h.svc.SignScore(c.Request().Context(), actor(c), in.ScoreID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, score)
}

// UnsignScore makes the caller's score editable again.
func (h *Handler) UnsignScore(c echo.Context) error {
	var in scoreRef
	if err := c.Bind(&in); err != nil {
		return badRequest(c, err.Error())
	}
	score, err := h.svc.UnsignScore(c.Request().Context(), actor(c), in.ScoreID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, score)
}

// ListScores returns a subcategory's scores grouped by contestant or judge.
func (h *Handler) ListScores(c echo.Context) error {
	sub, err := int64Param(c, "subcategoryID")
	if err != nil {
		return err
	}
	groupBy, err := scoring.ParseGroupBy(c.QueryParam("groupBy"))
	if err != nil {
		return h.fail(c, err)
	}
	groups, err := h.svc.ListScores(c.Request().Context(), actor(c), sub, groupBy)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, groups)
}
