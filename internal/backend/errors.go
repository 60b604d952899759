package backend

import "fmt"

// DuplicateUploadError is returned when the backend already stores the image.
type DuplicateUploadError struct {
	OptimizedURL string
	Key          string
	OriginalURL  string
}

func (e *DuplicateUploadError) Error() string {
	if e == nil {
		return ""
	}
	if e.OptimizedURL != "" {
		return fmt.Sprintf("backend already stores this image at %s", e.OptimizedURL)
	}
	return "backend already stores this image"
}

// Result converts the duplicate into the upload result it stands for.
func (e *DuplicateUploadError) Result() UploadResult {
	return UploadResult{URL: e.OptimizedURL, Key: e.Key, OriginalURL: e.OriginalURL}
}
