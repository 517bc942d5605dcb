package engine

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"campushustle/internal/domain"
)

// TaskFilter narrows an already loaded task list. Empty fields and "all"
// match everything.
type TaskFilter struct {
	SearchTerm string
	Category   string
	MaxPrice   string
	Status     string
}

// FilterTasks keeps the tasks matching every criterion in f. The search term
// matches title or description ignoring case. MaxPrice only limits cash tasks
// with a numeric amount; an unparseable MaxPrice is ignored.
func FilterTasks(tasks []domain.TaskView, f TaskFilter) []domain.TaskView {
	fold := cases.Fold()
	term := fold.String(strings.TrimSpace(f.SearchTerm))
	maxPrice, priceErr := strconv.ParseFloat(strings.TrimSpace(f.MaxPrice), 64)
	usePrice := f.MaxPrice != "" && priceErr == nil

	res := make([]domain.TaskView, 0, len(tasks))
	for _, t := range tasks {
		if term != "" &&
			!strings.Contains(fold.String(t.Title), term) &&
			!strings.Contains(fold.String(t.Description), term) {
			continue
		}
		if !matchesAll(f.Category, t.Category) || !matchesAll(f.Status, t.Status) {
			continue
		}
		if usePrice && t.OfferType == domain.OfferCash && t.OfferAmount != nil {
			if amount, err := strconv.ParseFloat(*t.OfferAmount, 64); err == nil && amount > maxPrice {
				continue
			}
		}
		res = append(res, t)
	}
	return res
}

func matchesAll(want, got string) bool {
	return want == "" || want == "all" || want == got
}
