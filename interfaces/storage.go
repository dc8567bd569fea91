package interfaces

import "time"

// SavedDocument describes an attachment written to the local store.
type SavedDocument struct {
	Path     string
	Filename string
	Size     int64
	SHA256   string
}

// AttachmentStore persists attachments under date-partitioned directories and
// removes them once consumed.
type AttachmentStore interface {
	Save(when time.Time, filename string, content []byte) (*SavedDocument, error)
	// Remove deletes a stored file. A missing file is not an error.
	Remove(path string) error
	// PurgeOlderThan removes whole date directories older than the retention
	// window and reports how many were removed.
	PurgeOlderThan(retention time.Duration) (int, error)
}
