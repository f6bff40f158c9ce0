package models

import "time"

// LocalDatasetRecord is the durable fingerprint of the last committed
// upload. It outlives the process and lets a restarted agent show the
// active dataset without re-uploading. Written only on successful commit.
type LocalDatasetRecord struct {
	Name          string    `json:"name" msgpack:"name"`
	DeclaredType  string    `json:"declaredType" msgpack:"declared_type"`
	ModifiedAt    time.Time `json:"modifiedAt" msgpack:"modified_at"`
	IsSpreadsheet bool      `json:"isSpreadsheet" msgpack:"is_spreadsheet"`
	SelectedSheet string    `json:"selectedSheet,omitempty" msgpack:"selected_sheet,omitempty"`
	SavedAt       time.Time `json:"savedAt" msgpack:"saved_at"`
}
