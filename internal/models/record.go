package models

import "time"

// Record is implemented by every storable record kind. The set of kinds is
// closed: only types in this package can satisfy it.
type Record interface {
	Core() *Base
	Kind() Kind
	metaSource() string
}

// ImageGalleryAware is implemented by kinds carrying an image gallery
type ImageGalleryAware interface {
	Record
	Gallery() []ImageGallery
}

// PublishedOnAware is implemented by kinds carrying publication channels
type PublishedOnAware interface {
	Record
	Channels() []string
	SetChannels(channels []string)
}

// LicenseAware is implemented by kinds carrying license information
type LicenseAware interface {
	Record
	License() *LicenseInfo
}

// Base holds the fields shared by all record kinds
type Base struct {
	ID          string     `json:"Id"`
	Active      bool       `json:"Active"`
	Shortname   string     `json:"Shortname,omitempty"`
	Source      string     `json:"Source,omitempty"`
	FirstImport *time.Time `json:"FirstImport,omitempty"`
	LastChange  *time.Time `json:"LastChange,omitempty"`
	AccessRoles []string   `json:"AccessRoles,omitempty"`
	Meta        *Metadata  `json:"_Meta,omitempty"`
}

// Core returns the shared fields
func (b *Base) Core() *Base { return b }

// Detail is the language-specific text of a record
type Detail struct {
	Title     string `json:"Title,omitempty"`
	Header    string `json:"Header,omitempty"`
	BaseText  string `json:"BaseText,omitempty"`
	IntroText string `json:"IntroText,omitempty"`
	Language  string `json:"Language,omitempty"`
}

// GpsInfo is a single located point
type GpsInfo struct {
	Gpstype   string   `json:"Gpstype,omitempty"`
	Latitude  float64  `json:"Latitude"`
	Longitude float64  `json:"Longitude"`
	Altitude  *float64 `json:"Altitude,omitempty"`
}

// GeoInfo is a located point optionally carrying a full geometry as WKT
type GeoInfo struct {
	Latitude  float64  `json:"Latitude"`
	Longitude float64  `json:"Longitude"`
	Altitude  *float64 `json:"Altitude,omitempty"`
	Geometry  string   `json:"Geometry,omitempty"`
	Default   bool     `json:"Default"`
}

// ImageGallery describes a single image
type ImageGallery struct {
	ImageURL     string            `json:"ImageUrl"`
	ImageName    string            `json:"ImageName,omitempty"`
	ImageSource  string            `json:"ImageSource,omitempty"`
	Width        *int              `json:"Width,omitempty"`
	Height       *int              `json:"Height,omitempty"`
	License      string            `json:"License,omitempty"`
	CopyRight    string            `json:"CopyRight,omitempty"`
	ListPosition int               `json:"ListPosition"`
	ImageTitle   map[string]string `json:"ImageTitle,omitempty"`
}

// LicenseInfo describes the license of a record
type LicenseInfo struct {
	License       string `json:"License,omitempty"`
	LicenseHolder string `json:"LicenseHolder,omitempty"`
	Author        string `json:"Author,omitempty"`
	ClosedData    bool   `json:"ClosedData"`
}

// LicenseClass returns "open", "closed" or "unknown" for the license of r
func LicenseClass(r Record) string {
	la, ok := r.(LicenseAware)
	if !ok || la.License() == nil {
		return "unknown"
	}
	if la.License().ClosedData {
		return "closed"
	}
	return "open"
}
