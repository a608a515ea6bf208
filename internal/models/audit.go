package models

import "time"

// RawChange is an audit trail entry describing one semantic change
type RawChange struct {
	ID         int64     `json:"id"`
	EditSource string    `json:"editsource"`
	EditedBy   string    `json:"editedby"`
	Date       time.Time `json:"date"`
	DataSource string    `json:"datasource"`
	Changes    []byte    `json:"changes,omitempty"` // JSON patch, nil when not available
	SourceID   string    `json:"sourceid"`
	Type       string    `json:"type"`
	License    string    `json:"license"` // open, closed or unknown
}

// RawData is an archived source payload that records can point back to
type RawData struct {
	ID              int64     `json:"id"`
	Type            string    `json:"type"`
	DataSource      string    `json:"datasource"`
	SourceInterface string    `json:"sourceinterface"`
	SourceID        string    `json:"sourceid"`
	SourceURL       string    `json:"sourceurl"`
	ImportDate      time.Time `json:"importdate"`
	License         string    `json:"license"`
	RawFormat       string    `json:"rawformat"`
	Raw             string    `json:"raw,omitempty"`     // inline payload
	BlobKey         string    `json:"blobkey,omitempty"` // object key when the payload lives in a bucket
}
