package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/padraicbc/pageantapi/scoring"
)

// totalsView adds the one-decimal display percentage to full precision totals.
type totalsView struct {
	scoring.Totals
	DisplayPercentage float64 `json:"displayPercentage"`
}

type standingView struct {
	Rank int `json:"rank"`
	totalsView
}

func viewTotals(t scoring.Totals) totalsView {
	return totalsView{Totals: t, DisplayPercentage: t.DisplayPercentage()}
}

func viewStandings(in []scoring.Standing) []standingView {
	out := make([]standingView, 0, len(in))
	for _, s := range in {
		out = append(out, standingView{Rank: s.Rank, totalsView: viewTotals(s.Totals)})
	}
	return out
}

// ContestantTotal returns a contestant's totals in a subcategory.
func (h *Handler) ContestantTotal(c echo.Context) error {
	contestant, err := int64Param(c, "contestantID")
	if err != nil {
		return err
	}
	sub, err := int64Param(c, "subcategoryID")
	if err != nil {
		return err
	}
	t, err := h.svc.CalculateContestantTotal(c.Request().Context(), actor(c), contestant, sub)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, viewTotals(t))
}

// SubcategoryRanking returns the ranked totals of a subcategory.
func (h *Handler) SubcategoryRanking(c echo.Context) error {
	sub, err := int64Param(c, "subcategoryID")
	if err != nil {
		return err
	}
	standings, err := h.svc.SubcategoryRanking(c.Request().Context(), actor(c), sub)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, viewStandings(standings))
}

// CategoryRanking returns the ranked totals of a category.
func (h *Handler) CategoryRanking(c echo.Context) error {
	category, err := int64Param(c, "categoryID")
	if err != nil {
		return err
	}
	standings, err := h.svc.CategoryRanking(c.Request().Context(), actor(c), category)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, viewStandings(standings))
}
