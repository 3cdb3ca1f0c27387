package vimeo

import "context"

// Processing states exposed to admins.
const (
	StateUploading  = "uploading"
	StateProcessing = "processing"
	StateAvailable  = "available"
	StateError      = "error"
)

// UploadStatus is the coarse processing state of a video.
type UploadStatus struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

// MapStatus folds the upload and transcode states into one UploadStatus.
// Errors win over everything but an in-progress upload; unknown combinations
// read as processing.
func MapStatus(v *Video) UploadStatus {
	switch {
	case v.Upload.Status == "in_progress":
		return UploadStatus{Status: StateUploading, Progress: 0}
	case v.Transcode.Status == "in_progress":
		return UploadStatus{Status: StateProcessing, Progress: 50}
	case v.Transcode.Status == "complete":
		return UploadStatus{Status: StateAvailable, Progress: 100}
	case v.Transcode.Status == "error" || v.Upload.Status == "error":
		return UploadStatus{Status: StateError, Progress: 0}
	default:
		return UploadStatus{Status: StateProcessing, Progress: 25}
	}
}

// Status fetches the video and maps its processing state.
func (c *Client) Status(ctx context.Context, id string) (UploadStatus, error) {
	v, err := c.GetVideo(ctx, id)
	if err != nil {
		return UploadStatus{}, err
	}
	return MapStatus(v), nil
}
