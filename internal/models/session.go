package models

// SessionInfo is the backend's authoritative view of a session's dataset
// state. The agent never mutates it except through upload/commit/reset calls.
type SessionInfo struct {
	IsCustomDataset    bool   `json:"is_custom_dataset"`
	DatasetName        string `json:"dataset_name,omitempty"`
	DatasetDescription string `json:"dataset_description,omitempty"`
}

// UploadStat is one upload diagnostics record as returned by the backend's
// dataset-uploads listing.
type UploadStat struct {
	UploadID         string `json:"upload_id" mapstructure:"upload_id"`
	Status           string `json:"status" mapstructure:"status"`
	FileSize         int64  `json:"file_size" mapstructure:"file_size"`
	RowCount         int    `json:"row_count" mapstructure:"row_count"`
	ColumnCount      int    `json:"column_count" mapstructure:"column_count"`
	ProcessingTimeMs int64  `json:"processing_time_ms" mapstructure:"processing_time_ms"`
	ErrorMessage     string `json:"error_message,omitempty" mapstructure:"error_message"`
	ErrorDetails     string `json:"error_details,omitempty" mapstructure:"error_details"`
}
