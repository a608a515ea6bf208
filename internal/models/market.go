package models

// Market is a recurring market. Markets carry no image gallery.
type Market struct {
	Base
	Detail       map[string]Detail            `json:"Detail,omitempty"`
	GpsInfo      []GpsInfo                    `json:"GpsInfo,omitempty"`
	Mapping      map[string]map[string]string `json:"Mapping,omitempty"`
	Municipality string                       `json:"Municipality,omitempty"`
	OpeningDays  []string                     `json:"OpeningDays,omitempty"`
	PublishedOn  []string                     `json:"PublishedOn,omitempty"`
	LicenseInfo  *LicenseInfo                 `json:"LicenseInfo,omitempty"`
}

var (
	_ PublishedOnAware = (*Market)(nil)
	_ LicenseAware     = (*Market)(nil)
)

// NewMarket returns an empty Market
func NewMarket() *Market { return &Market{} }

func (m *Market) Kind() Kind                    { return KindMarket }
func (m *Market) Channels() []string            { return m.PublishedOn }
func (m *Market) SetChannels(channels []string) { m.PublishedOn = channels }
func (m *Market) License() *LicenseInfo         { return m.LicenseInfo }

func (m *Market) metaSource() string { return m.Source }
