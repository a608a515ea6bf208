// Package feed turns GeoJSON feature collections, as served by GeoServer
// and ArcGIS endpoints, into SpatialData records.
package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

// Property names used when Options leaves them empty
const (
	DefaultTypeCodeProperty = "TYPE_CODE"
	DefaultPathCodeProperty = "PATH_CODE"
)

// Geo keys written on every record
const (
	GeoPosition = "position"
	GeoTrack    = "track"
)

// Options configures how features map to records
type Options struct {
	Identifier       string // e.g. "euregio.routes"
	Source           string
	TypeCodeProperty string
	PathCodeProperty string
	NameProperty     string
	// SRID of the feed coordinates. "3857" is reprojected to WGS84,
	// anything else is taken as WGS84.
	SRID    string
	License *models.LicenseInfo
}

func (o Options) typeCodeProperty() string {
	if o.TypeCodeProperty == "" {
		return DefaultTypeCodeProperty
	}
	return o.TypeCodeProperty
}

func (o Options) pathCodeProperty() string {
	if o.PathCodeProperty == "" {
		return DefaultPathCodeProperty
	}
	return o.PathCodeProperty
}

// ParseGeoJSON parses a feature collection into one record per feature
func ParseGeoJSON(data []byte, opts Options) ([]*models.SpatialData, error) {
	if strings.TrimSpace(opts.Identifier) == "" {
		return nil, fmt.Errorf("feed identifier required")
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feature collection: %w", err)
	}

	records := make([]*models.SpatialData, 0, len(fc.Features))
	for i, f := range fc.Features {
		rec, err := parseFeature(f, opts)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseFeature(f *geojson.Feature, opts Options) (*models.SpatialData, error) {
	id, err := featureID(f, opts)
	if err != nil {
		return nil, err
	}

	rec := models.NewSpatialData()
	rec.ID = id
	rec.Active = true
	rec.Source = opts.Source
	rec.TagIDs = []string{opts.Identifier}
	rec.Mapping = map[string]map[string]string{
		mappingKey(opts): stringProperties(f.Properties),
	}
	if opts.NameProperty != "" {
		rec.Shortname = f.Properties.MustString(opts.NameProperty, "")
	}
	if opts.License != nil {
		lic := *opts.License
		rec.LicenseInfo = &lic
	}

	if f.Geometry != nil {
		geo, err := geoInfo(f.Geometry, opts.SRID)
		if err != nil {
			return nil, err
		}
		rec.Geo = geo
	}
	return rec, nil
}

// featureID builds urn:<identifier>:<typecode>:<pathcode>, falling back to
// the feature id when the code properties are missing
func featureID(f *geojson.Feature, opts Options) (string, error) {
	typeCode := propertyString(f.Properties[opts.typeCodeProperty()])
	pathCode := propertyString(f.Properties[opts.pathCodeProperty()])
	if typeCode != "" && pathCode != "" {
		return strings.ToLower("urn:" + opts.Identifier + ":" + typeCode + ":" + pathCode), nil
	}
	if f.ID != nil {
		if fid := propertyString(f.ID); fid != "" {
			return strings.ToLower("urn:" + opts.Identifier + ":" + fid), nil
		}
	}
	return "", fmt.Errorf("missing %s/%s and no feature id", opts.typeCodeProperty(), opts.pathCodeProperty())
}

func mappingKey(opts Options) string {
	if opts.Source != "" {
		return strings.ToLower(opts.Source)
	}
	return opts.Identifier
}

func geoInfo(g orb.Geometry, srid string) (map[string]models.GeoInfo, error) {
	if srid == "3857" {
		g = project.Geometry(orb.Clone(g), project.Mercator.ToWGS84)
	}
	first, ok := firstPoint(g)
	if !ok {
		return nil, fmt.Errorf("empty geometry")
	}
	return map[string]models.GeoInfo{
		GeoTrack: {
			Latitude:  first.Lat(),
			Longitude: first.Lon(),
			Geometry:  wkt.MarshalString(g),
			Default:   true,
		},
		GeoPosition: {
			Latitude:  first.Lat(),
			Longitude: first.Lon(),
		},
	}, nil
}

func firstPoint(g orb.Geometry) (orb.Point, bool) {
	switch v := g.(type) {
	case orb.Point:
		return v, true
	case orb.MultiPoint:
		if len(v) > 0 {
			return v[0], true
		}
	case orb.LineString:
		if len(v) > 0 {
			return v[0], true
		}
	case orb.Ring:
		if len(v) > 0 {
			return v[0], true
		}
	case orb.Polygon:
		if len(v) > 0 {
			return firstPoint(v[0])
		}
	case orb.MultiLineString:
		for _, ls := range v {
			if p, ok := firstPoint(ls); ok {
				return p, true
			}
		}
	case orb.MultiPolygon:
		for _, poly := range v {
			if p, ok := firstPoint(poly); ok {
				return p, true
			}
		}
	case orb.Collection:
		for _, c := range v {
			if p, ok := firstPoint(c); ok {
				return p, true
			}
		}
	}
	return orb.Point{}, false
}

func stringProperties(props geojson.Properties) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = propertyString(v)
	}
	return out
}

func propertyString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}
