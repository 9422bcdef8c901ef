package domain

import "time"

// Candidate is a directory entry selected for upload.
type Candidate struct {
	Name string
	Path string
	Size int64
}

// Target addresses the remote object a candidate is written to.
type Target struct {
	Bucket string
	Key    string
}

type ResultStatus string

const (
	ResultStatusUploaded ResultStatus = "uploaded"
	ResultStatusFailed   ResultStatus = "failed"
)

// UploadResult records the outcome of transferring one candidate.
type UploadResult struct {
	Name         string
	Size         int64
	Bucket       string
	Key          string
	Location     string
	Status       ResultStatus
	ErrorMessage string
	UploadedAt   *time.Time
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one pass of the uploader over a directory.
type Run struct {
	ID           string
	Dir          string
	Bucket       string
	KeyPrefix    string
	Status       RunStatus
	Uploaded     int
	Failed       int
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Files        []UploadResult
}
