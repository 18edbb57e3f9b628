package core

// UploadStatus represents the lifecycle state of an upload
type UploadStatus string

const (
	// UploadStatusUploaded indicates raw content is stored but not yet analyzed
	UploadStatusUploaded UploadStatus = "uploaded"
	// UploadStatusProcessing indicates parsing and detection are in progress
	UploadStatusProcessing UploadStatus = "processing"
	// UploadStatusSummarizing indicates detection finished and the narrative summary is being generated
	UploadStatusSummarizing UploadStatus = "summarizing"
	// UploadStatusDone indicates the analysis completed successfully
	UploadStatusDone UploadStatus = "done"
	// UploadStatusFailed indicates the analysis pipeline aborted
	UploadStatusFailed UploadStatus = "failed"
)

// String returns the string representation
func (s UploadStatus) String() string {
	return string(s)
}

// IsValid checks if the status is valid
func (s UploadStatus) IsValid() bool {
	switch s {
	case UploadStatusUploaded, UploadStatusProcessing, UploadStatusSummarizing, UploadStatusDone, UploadStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is an end state of the pipeline.
func (s UploadStatus) Terminal() bool {
	return s == UploadStatusDone || s == UploadStatusFailed
}

// Aggregation caps applied when grouping findings for presentation.
const (
	MaxGroupReasons = 5
	MaxGroupUsers   = 10
	MaxGroupIPs     = 10
	MaxGroupSamples = 25
)
