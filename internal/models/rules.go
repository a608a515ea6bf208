package models

import "strings"

// RulesConfig is the raw form of Rules as read from configuration
type RulesConfig struct {
	SourceAliases     map[string]string `toml:"source_aliases"`
	OpenAccessRoles   []string          `toml:"open_access_roles"`
	ClosedAccessRoles []string          `toml:"closed_access_roles"`
	MaxUpdateHistory  int               `toml:"max_update_history"`
}

// DefaultRulesConfig returns the built-in rule set
func DefaultRulesConfig() RulesConfig {
	return RulesConfig{
		SourceAliases: map[string]string{
			"common":   "idm",
			"magnolia": "idm",
			"content":  "idm",
		},
		OpenAccessRoles:   []string{"ANONYMOUS", "IDM"},
		ClosedAccessRoles: []string{"IDM"},
		MaxUpdateHistory:  10,
	}
}

// Rules holds business rule tables. A Rules value is read-only once built;
// NewRules copies its inputs.
type Rules struct {
	sourceAliases map[string]string
	openRoles     []string
	closedRoles   []string
	maxHistory    int
}

// NewRules builds Rules from a config
func NewRules(cfg RulesConfig) Rules {
	aliases := make(map[string]string, len(cfg.SourceAliases))
	for k, v := range cfg.SourceAliases {
		aliases[strings.ToLower(k)] = strings.ToLower(v)
	}
	return Rules{
		sourceAliases: aliases,
		openRoles:     append([]string(nil), cfg.OpenAccessRoles...),
		closedRoles:   append([]string(nil), cfg.ClosedAccessRoles...),
		maxHistory:    cfg.MaxUpdateHistory,
	}
}

// DefaultRules returns Rules built from DefaultRulesConfig
func DefaultRules() Rules {
	return NewRules(DefaultRulesConfig())
}

// NormalizeSource lower-cases a source and resolves aliases
func (r Rules) NormalizeSource(source string) string {
	s := strings.ToLower(strings.TrimSpace(source))
	if alias, ok := r.sourceAliases[s]; ok {
		return alias
	}
	return s
}

// AccessRoles returns the default access roles for a license
func (r Rules) AccessRoles(license *LicenseInfo) []string {
	if license != nil && license.ClosedData {
		return append([]string(nil), r.closedRoles...)
	}
	return append([]string(nil), r.openRoles...)
}

// MaxUpdateHistory returns the bound of Metadata.UpdateHistory
func (r Rules) MaxUpdateHistory() int {
	return r.maxHistory
}
