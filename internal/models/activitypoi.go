package models

// ActivityPoi is a point of interest for outdoor activities (trails, cycling routes)
type ActivityPoi struct {
	Base
	Detail             map[string]Detail            `json:"Detail,omitempty"`
	GpsInfo            []GpsInfo                    `json:"GpsInfo,omitempty"`
	Mapping            map[string]map[string]string `json:"Mapping,omitempty"`
	TagIDs             []string                     `json:"TagIds,omitempty"`
	Difficulty         string                       `json:"Difficulty,omitempty"`
	DistanceLength     *float64                     `json:"DistanceLength,omitempty"`
	AltitudeDifference *float64                     `json:"AltitudeDifference,omitempty"`
	HasRoundtrip       bool                         `json:"HasRoundtrip"`
	ImageGallery       []ImageGallery               `json:"ImageGallery,omitempty"`
	PublishedOn        []string                     `json:"PublishedOn,omitempty"`
	LicenseInfo        *LicenseInfo                 `json:"LicenseInfo,omitempty"`
}

var (
	_ ImageGalleryAware = (*ActivityPoi)(nil)
	_ PublishedOnAware  = (*ActivityPoi)(nil)
	_ LicenseAware      = (*ActivityPoi)(nil)
)

// NewActivityPoi returns an empty ActivityPoi
func NewActivityPoi() *ActivityPoi { return &ActivityPoi{} }

func (a *ActivityPoi) Kind() Kind                    { return KindActivityPoi }
func (a *ActivityPoi) Gallery() []ImageGallery       { return a.ImageGallery }
func (a *ActivityPoi) Channels() []string            { return a.PublishedOn }
func (a *ActivityPoi) SetChannels(channels []string) { a.PublishedOn = channels }
func (a *ActivityPoi) License() *LicenseInfo         { return a.LicenseInfo }

// metaSource falls back to the first mapping key, where imported POIs carry
// their origin.
func (a *ActivityPoi) metaSource() string {
	if a.Source != "" {
		return a.Source
	}
	return firstMappingKey(a.Mapping)
}
