package types

import "time"

// Layout selects how a clip is fitted to the output frame.
type Layout string

const (
	// LayoutCrop scales the source to cover the target and crops at a
	// planned offset.
	LayoutCrop Layout = "crop"
	// LayoutBlur fits the source inside the target over a blurred fill.
	LayoutBlur Layout = "blur"
	// LayoutPad fits the source inside the target with black bars.
	LayoutPad Layout = "pad"
)

func (l Layout) Valid() bool {
	switch l {
	case LayoutCrop, LayoutBlur, LayoutPad:
		return true
	}
	return false
}

type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobEmpty   JobStatus = "empty"
	JobFailed  JobStatus = "failed"
)

// Progress is the externally visible state of one job.
type Progress struct {
	JobID     string
	Input     string
	Status    JobStatus
	Stage     string
	Done      int
	Total     int
	Message   string
	UpdatedAt time.Time
}
