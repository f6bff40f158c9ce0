package models

// PlaceholderDescription is sent with the initial upload when the user has
// not written a description yet. The backend echoes it back in previews.
const PlaceholderDescription = "Please describe what this dataset contains and its purpose"

// GeneratingDescription is a reserved sentinel shown while an automatic
// description is being generated. It must never be persisted or committed.
const GeneratingDescription = "Generating description..."

// DatasetDescription is the user-facing name/description pair for the
// active dataset.
type DatasetDescription struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// IsGenerating reports whether the description currently holds the
// generation sentinel.
func (d DatasetDescription) IsGenerating() bool {
	return d.Description == GeneratingDescription
}

// FilePreview holds the sample rows rendered in the preview dialog. It is
// derived state: the name/description pair mirrors DatasetDescription.
type FilePreview struct {
	Headers     []string   `json:"headers"`
	Rows        [][]string `json:"rows"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
}
