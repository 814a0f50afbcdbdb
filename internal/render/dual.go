package render

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/isopleth/isopleth/internal/isochrone"
)

const dualLegendTitle = "Isopleth Comparison"

// DualMap is two maps shown side by side with synchronized views.
type DualMap struct {
	ID     string
	Left   *Map
	Right  *Map
	Legend *Legend
}

// RenderDual renders left and right onto synchronized side-by-side maps.
// Both maps are fit to the bounds of whichever result covers the larger
// geodesic area. The two legends are merged into one, and collapse to a
// single set of entries when both sides are identical.
func (r *Renderer) RenderDual(left, right *isochrone.Result) (*DualMap, error) {
	if left == nil || right == nil {
		return nil, fmt.Errorf("%w: dual map needs two results", isochrone.ErrRender)
	}

	leftMap, leftErr := r.Render(left, nil)
	rightMap, rightErr := r.Render(right, nil)

	leftItems := profileItems(left, leftMap)
	rightItems := profileItems(right, rightMap)

	legend := &Legend{Title: dualLegendTitle}
	for _, item := range leftItems {
		legend.Add(item)
	}
	if !slices.Equal(leftItems, rightItems) {
		for _, item := range rightItems {
			legend.Add(item)
		}
	}
	leftMap.Legend = nil
	rightMap.Legend = nil

	larger := leftMap
	if right.MaxAreaKm2() > left.MaxAreaKm2() {
		larger = rightMap
	}
	bound := larger.Bound()
	leftMap.Fit(bound, FitPadding)
	rightMap.Fit(bound, FitPadding)

	r.logger.Debug().
		Float64("left_area_km2", left.MaxAreaKm2()).
		Float64("right_area_km2", right.MaxAreaKm2()).
		Int("legend_items", len(legend.Items)).
		Msg("rendered dual map")

	var errs []error
	if leftErr != nil {
		errs = append(errs, fmt.Errorf("left: %w", leftErr))
	}
	if rightErr != nil {
		errs = append(errs, fmt.Errorf("right: %w", rightErr))
	}

	return &DualMap{
		ID:     "dual_" + uuid.New().String()[:8],
		Left:   leftMap,
		Right:  rightMap,
		Legend: legend,
	}, errors.Join(errs...)
}

// profileItems relabels a rendered map's legend with the travel profile.
func profileItems(result *isochrone.Result, m *Map) []LegendItem {
	if m.Legend == nil {
		return nil
	}

	items := make([]LegendItem, 0, len(m.Legend.Items))
	for _, c := range sortedByValue(result.Contours) {
		label := result.FormatValue(c.Value)
		for _, item := range m.Legend.Items {
			if item.Label == label {
				items = append(items, LegendItem{Label: profileLabel(result, c.Value), Color: item.Color})
				break
			}
		}
	}
	return items
}

func sortedByValue(contours []isochrone.Contour) []isochrone.Contour {
	order := outerFirst(contours)
	sorted := make([]isochrone.Contour, len(order))
	for i, idx := range order {
		sorted[len(order)-1-i] = contours[idx]
	}
	return sorted
}
