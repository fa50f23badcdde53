package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/padraicbc/pageantapi/models"
)

type createSubcategoryRequest struct {
	CategoryID int64  `json:"categoryID"`
	Name       string `json:"name"`
}

type createCriterionRequest struct {
	SubcategoryID int64   `json:"subcategoryID"`
	Name          string  `json:"name"`
	MaxScore      float64 `json:"maxScore"`
	Position      int     `json:"position"`
}

type assignmentRequest struct {
	SubcategoryID int64 `json:"subcategoryID"`
	JudgeID       int64 `json:"judgeID,omitempty"`
	ContestantID  int64 `json:"contestantID,omitempty"`
}

// Subcategories returns the subcategories of a category.
func (h *Handler) Subcategories(c echo.Context) error {
	category, err := int64Param(c, "categoryID")
	if err != nil {
		return err
	}
	subs, err := h.roster.ListSubcategories(c.Request().Context(), category)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, subs)
}

// Criteria returns a subcategory's criteria in display order.
func (h *Handler) Criteria(c echo.Context) error {
	sub, err := int64Param(c, "subcategoryID")
	if err != nil {
		return err
	}
	criteria, err := h.roster.Criteria(c.Request().Context(), sub)
	if err != nil {
		return h.fail(c, err)
	}
	if criteria == nil {
		criteria = []models.Criterion{}
	}
	return c.JSON(http.StatusOK, criteria)
}

// CreateSubcategory inserts a new subcategory.
func (h *Handler) CreateSubcategory(c echo.Context) error {
	var req createSubcategoryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.CategoryID <= 0 {
		return badRequest(c, "categoryID is required")
	}
	if req.Name == "" {
		return badRequest(c, "name is required")
	}

	sub := &models.Subcategory{CategoryID: req.CategoryID, Name: req.Name}
	if err := h.roster.AddSubcategory(c.Request().Context(), sub); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, sub)
}

// CreateCriterion inserts a new criterion into a subcategory.
func (h *Handler) CreateCriterion(c echo.Context) error {
	var req createCriterionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.SubcategoryID <= 0 {
		return badRequest(c, "subcategoryID is required")
	}
	if req.Name == "" {
		return badRequest(c, "name is required")
	}
	if req.MaxScore <= 0 {
		return badRequest(c, "maxScore must be positive")
	}

	cr := &models.Criterion{
		SubcategoryID: req.SubcategoryID,
		Name:          req.Name,
		MaxScore:      req.MaxScore,
		Position:      req.Position,
	}
	if err := h.roster.AddCriterion(c.Request().Context(), cr); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, cr)
}

// AssignJudge adds a judge to a subcategory. Repeating it is harmless.
func (h *Handler) AssignJudge(c echo.Context) error {
	var req assignmentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.SubcategoryID <= 0 || req.JudgeID <= 0 {
		return badRequest(c, "subcategoryID and judgeID are required")
	}
	if err := h.roster.AssignJudge(c.Request().Context(), req.SubcategoryID, req.JudgeID); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// EnterContestant adds a contestant to a subcategory. Repeating it is harmless.
func (h *Handler) EnterContestant(c echo.Context) error {
	var req assignmentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.SubcategoryID <= 0 || req.ContestantID <= 0 {
		return badRequest(c, "subcategoryID and contestantID are required")
	}
	if err := h.roster.EnterContestant(c.Request().Context(), req.SubcategoryID, req.ContestantID); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
