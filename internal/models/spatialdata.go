package models

// SpatialData is a geometry-bearing record such as a trail segment or cycling route
type SpatialData struct {
	Base
	Detail       map[string]Detail            `json:"Detail,omitempty"`
	Geo          map[string]GeoInfo           `json:"Geo,omitempty"`
	Mapping      map[string]map[string]string `json:"Mapping,omitempty"`
	TagIDs       []string                     `json:"TagIds,omitempty"`
	HasLanguage  []string                     `json:"HasLanguage,omitempty"`
	ImageGallery []ImageGallery               `json:"ImageGallery,omitempty"`
	PublishedOn  []string                     `json:"PublishedOn,omitempty"`
	LicenseInfo  *LicenseInfo                 `json:"LicenseInfo,omitempty"`
}

var (
	_ ImageGalleryAware = (*SpatialData)(nil)
	_ PublishedOnAware  = (*SpatialData)(nil)
	_ LicenseAware      = (*SpatialData)(nil)
)

// NewSpatialData returns an empty SpatialData
func NewSpatialData() *SpatialData { return &SpatialData{} }

func (s *SpatialData) Kind() Kind                    { return KindSpatialData }
func (s *SpatialData) Gallery() []ImageGallery       { return s.ImageGallery }
func (s *SpatialData) Channels() []string            { return s.PublishedOn }
func (s *SpatialData) SetChannels(channels []string) { s.PublishedOn = channels }
func (s *SpatialData) License() *LicenseInfo         { return s.LicenseInfo }

func (s *SpatialData) metaSource() string { return s.Source }
