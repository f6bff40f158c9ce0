package models

import "time"

// UploadStatus represents the state of the active file upload.
type UploadStatus string

const (
	UploadStatusLoading       UploadStatus = "loading"
	UploadStatusAwaitingSheet UploadStatus = "awaiting_sheet"
	UploadStatusSuccess       UploadStatus = "success"
	UploadStatusError         UploadStatus = "error"
)

// FileUpload is the in-memory state of the one active upload. There is at
// most one instance at a time; a new file selection replaces it wholesale.
type FileUpload struct {
	Name            string       `json:"name"`
	DeclaredType    string       `json:"declaredType"`
	ModifiedAt      time.Time    `json:"modifiedAt"`
	Size            int64        `json:"size"`
	Status          UploadStatus `json:"status"`
	ErrorMessage    string       `json:"errorMessage,omitempty"`
	IsSpreadsheet   bool         `json:"isSpreadsheet"`
	Sheets          []string     `json:"sheets,omitempty"`
	SelectedSheet   string       `json:"selectedSheet,omitempty"`
	DatasetUploadID string       `json:"datasetUploadId,omitempty"`
	// Placeholder marks an upload restored from the local record: the
	// metadata is real but no file content is held in memory.
	Placeholder bool `json:"placeholder"`
}

// HasSheet reports whether name is one of the enumerated sheets.
func (f *FileUpload) HasSheet(name string) bool {
	for _, s := range f.Sheets {
		if s == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out while the original keeps mutating.
func (f *FileUpload) Clone() *FileUpload {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Sheets = append([]string(nil), f.Sheets...)
	return &cp
}
