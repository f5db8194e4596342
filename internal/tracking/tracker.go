// Package tracking turns an order record into the customer facing progress view.
package tracking

import (
	"encoding/json"
	"time"

	"github.com/wellywell/redeemy/internal/types"
)

var stepLabels = [3]string{types.PendingStepLabel, types.ProcessingStepLabel, types.CompletedStepLabel}

// Project builds the tracking view of rec. Each step column is decoded on its
// own; a column that is missing or not valid JSON shows as a null step stamped
// with now. Project never fails and depends only on its arguments.
func Project(rec types.OrderRecord, now time.Time) types.Tracking {
	columns := [3]*string{rec.Pending, rec.Processing, rec.Completed}

	view := types.Tracking{
		Code:      rec.Code,
		Status:    rec.Status.Canonical(),
		Cancelled: rec.Status.Terminal(),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	for i, column := range columns {
		view.Steps[i] = parseStep(column, stepLabels[i], now)
	}
	if rec.Status.Fulfilled() {
		view.LoginInfo = rec.LoginInfo
	}
	return view
}

func parseStep(column *string, label string, now time.Time) types.StepView {
	fallback := types.StepView{Label: label, Status: types.StepNull, Timestamp: &now}
	if column == nil {
		return fallback
	}

	// a JSON null column counts as missing
	var step *types.Step
	if err := json.Unmarshal([]byte(*column), &step); err != nil || step == nil {
		return fallback
	}

	view := types.StepView{Label: step.Label, Status: step.Status, Timestamp: step.Timestamp}
	if view.Label == "" {
		view.Label = label
	}
	switch view.Status {
	case types.StepCompleted, types.StepProcessing:
	default:
		view.Status = types.StepNull
	}
	return view
}
