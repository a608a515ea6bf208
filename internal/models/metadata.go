package models

import (
	"sort"
	"strings"
	"time"
)

// ReducedSuffix marks the id of a reduced record variant
const ReducedSuffix = "_REDUCED"

// Metadata is the bookkeeping block stored under "_Meta"
type Metadata struct {
	ID            string       `json:"Id"`
	Type          string       `json:"Type"`
	Source        string       `json:"Source"`
	LastUpdate    *time.Time   `json:"LastUpdate,omitempty"`
	Reduced       bool         `json:"Reduced"`
	UpdateInfo    *UpdateInfo  `json:"UpdateInfo,omitempty"`
	UpdateHistory []UpdateInfo `json:"UpdateHistory,omitempty"`
}

// UpdateInfo records who made a change and through which source
type UpdateInfo struct {
	UpdatedBy    string `json:"UpdatedBy"`
	UpdateSource string `json:"UpdateSource"`
}

// BuildMetadata derives the metadata of r. Each kind decides where its
// source comes from through metaSource.
func BuildMetadata(r Record, reduced bool, rules Rules, now time.Time) (*Metadata, error) {
	d, err := r.Kind().Descriptor()
	if err != nil {
		return nil, err
	}
	b := r.Core()
	ts := now
	meta := &Metadata{
		ID:         b.ID,
		Type:       d.Type,
		LastUpdate: &ts,
		Source:     rules.NormalizeSource(r.metaSource()),
		Reduced:    reduced || strings.HasSuffix(strings.ToUpper(b.ID), ReducedSuffix),
	}
	return meta, nil
}

// AppendHistory carries the history of prev forward and appends its last
// UpdateInfo, keeping at most max entries (0 keeps all).
func (m *Metadata) AppendHistory(prev *Metadata, max int) {
	if prev == nil {
		return
	}
	history := make([]UpdateInfo, 0, len(prev.UpdateHistory)+1)
	history = append(history, prev.UpdateHistory...)
	if prev.UpdateInfo != nil {
		history = append(history, *prev.UpdateInfo)
	}
	if max > 0 && len(history) > max {
		history = history[len(history)-max:]
	}
	if len(history) > 0 {
		m.UpdateHistory = history
	}
}

func firstMappingKey(mapping map[string]map[string]string) string {
	if len(mapping) == 0 {
		return ""
	}
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}
