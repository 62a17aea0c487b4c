package types

// ProgressStatus is the phase of a capture step
type ProgressStatus string

const (
	StatusStarting  ProgressStatus = "starting"
	StatusCompleted ProgressStatus = "completed"
)

// ProgressEvent is emitted twice per capture step, before and after execution
type ProgressEvent struct {
	Step        string         `json:"step"`
	TotalSteps  int            `json:"total_steps"`
	CurrentStep int            `json:"current_step"`
	Status      ProgressStatus `json:"status"`
	AssetsCount int            `json:"assets_count"` // Only meaningful on completed
}

// ProgressFunc receives capture progress events in order
type ProgressFunc func(ProgressEvent)
