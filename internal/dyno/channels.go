package dyno

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Channel is a canonical sensor channel name.
type Channel string

const (
	ChannelRPM          Channel = "rpm"
	ChannelMAF          Channel = "maf"
	ChannelMAPKPa       Channel = "map_kpa"
	ChannelBoost        Channel = "boost"
	ChannelLoad         Channel = "load"
	ChannelAFR          Channel = "afr"
	ChannelIntakeTemp   Channel = "intake_temp"
	ChannelKnock        Channel = "knock"
	ChannelThrottle     Channel = "throttle"
	ChannelDAM          Channel = "dam"
	ChannelAFLearn      Channel = "af_learn"
	ChannelAFCorrection Channel = "af_correction"
)

// resolveOrder is the order channels claim headers in. Specific channels go
// first so that a generic alias cannot steal their column.
var resolveOrder = []Channel{
	ChannelRPM,
	ChannelMAF,
	ChannelMAPKPa,
	ChannelBoost,
	ChannelLoad,
	ChannelAFR,
	ChannelIntakeTemp,
	ChannelKnock,
	ChannelThrottle,
	ChannelDAM,
	ChannelAFLearn,
	ChannelAFCorrection,
}

// Channels returns every canonical channel in resolution order.
func Channels() []Channel {
	return slices.Clone(resolveOrder)
}

// IsChannel reports whether name is a canonical channel.
func IsChannel(name string) bool {
	return slices.Contains(resolveOrder, Channel(name))
}

// AliasTable maps a channel to case-insensitive substrings, highest priority first.
type AliasTable map[Channel][]string

// Clone returns a deep copy.
func (t AliasTable) Clone() AliasTable {
	out := make(AliasTable, len(t))
	for ch, aliases := range t {
		out[ch] = slices.Clone(aliases)
	}
	return out
}

// Prepend returns a table where the aliases in over take priority over t's.
// Duplicates keep their highest-priority position.
func (t AliasTable) Prepend(over AliasTable) AliasTable {
	out := t.Clone()
	for ch, aliases := range over {
		merged := make([]string, 0, len(aliases)+len(out[ch]))
		seen := make(map[string]bool)
		for _, a := range append(slices.Clone(aliases), out[ch]...) {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || seen[a] {
				continue
			}
			seen[a] = true
			merged = append(merged, a)
		}
		out[ch] = merged
	}
	return out
}

// Platform is the vocabulary and knock model of one tuning ecosystem.
type Platform struct {
	Name string `json:"-"`

	// AdvanceMultiplierKnock marks ECUs whose knock feedback is reported as an
	// advance multiplier and fuel trims rather than a single retard channel.
	AdvanceMultiplierKnock bool       `json:"advance_multiplier_knock"`
	Aliases                AliasTable `json:"aliases"`
}

// GenericPlatform is used when a vehicle names no platform or an unknown one.
const GenericPlatform = "generic"

// AliasCatalog holds the base alias table and the per-platform overlays.
type AliasCatalog struct {
	Base      AliasTable           `json:"base"`
	Platforms map[string]*Platform `json:"platforms"`

	// Overrides come from site configuration and outrank every platform.
	Overrides AliasTable `json:"overrides,omitempty"`
}

//go:embed aliases.json
var embeddedAliases []byte

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     *AliasCatalog
	defaultCatalogErr  error
)

// LoadAliasCatalog parses an alias catalog in the aliases.json format.
func LoadAliasCatalog(data []byte) (*AliasCatalog, error) {
	var c AliasCatalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse alias catalog: %w", err)
	}
	if len(c.Base[ChannelRPM]) == 0 || len(c.Base[ChannelLoad]) == 0 {
		return nil, fmt.Errorf("alias catalog must define rpm and load aliases")
	}
	if c.Platforms == nil {
		c.Platforms = make(map[string]*Platform)
	}
	if _, ok := c.Platforms[GenericPlatform]; !ok {
		c.Platforms[GenericPlatform] = &Platform{}
	}
	for name, p := range c.Platforms {
		if p == nil {
			p = &Platform{}
			c.Platforms[name] = p
		}
		p.Name = name
		if p.Aliases == nil {
			p.Aliases = AliasTable{}
		}
	}
	return &c, nil
}

// DefaultAliasCatalog returns a copy of the embedded catalog.
func DefaultAliasCatalog() *AliasCatalog {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = LoadAliasCatalog(embeddedAliases)
	})
	if defaultCatalogErr != nil {
		panic("dyno: embedded aliases.json is invalid: " + defaultCatalogErr.Error())
	}
	return defaultCatalog.Clone()
}

// Clone returns a deep copy so callers can apply overrides safely.
func (c *AliasCatalog) Clone() *AliasCatalog {
	out := &AliasCatalog{
		Base:      c.Base.Clone(),
		Platforms: make(map[string]*Platform, len(c.Platforms)),
		Overrides: c.Overrides.Clone(),
	}
	for name, p := range c.Platforms {
		out.Platforms[name] = &Platform{
			Name:                   p.Name,
			AdvanceMultiplierKnock: p.AdvanceMultiplierKnock,
			Aliases:                p.Aliases.Clone(),
		}
	}
	return out
}

// WithOverrides returns a catalog in which over takes priority over both the
// platform and base aliases.
func (c *AliasCatalog) WithOverrides(over AliasTable) *AliasCatalog {
	out := c.Clone()
	out.Overrides = AliasTable{}.Prepend(out.Overrides).Prepend(over)
	return out
}

// Platform looks a platform up by name, falling back to generic.
func (c *AliasCatalog) Platform(name string) *Platform {
	if p, ok := c.Platforms[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return c.Platforms[GenericPlatform]
}

// PlatformNames returns the known platform names, sorted.
func (c *AliasCatalog) PlatformNames() []string {
	names := slices.Collect(maps.Keys(c.Platforms))
	sort.Strings(names)
	return names
}

// Table returns the effective alias table for a platform: overrides first,
// then the platform's own aliases, then the base table.
func (c *AliasCatalog) Table(platform string) AliasTable {
	return c.Base.Prepend(c.Platform(platform).Aliases).Prepend(c.Overrides)
}

// Resolver maps header strings to channels for one log.
type Resolver struct {
	headers []string
	lower   []string
	table   AliasTable
}

// NewResolver prepares a resolver over a header row.
func NewResolver(headers []string, table AliasTable) *Resolver {
	lower := make([]string, len(headers))
	for i, h := range headers {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return &Resolver{headers: headers, lower: lower, table: table}
}

// Find returns the index of the header matching the channel's highest
// priority alias. Aliases are tried in order; for each alias the first
// header containing it wins.
func (r *Resolver) Find(ch Channel) (int, bool) {
	return r.find(ch, nil)
}

func (r *Resolver) find(ch Channel, claimed map[int]bool) (int, bool) {
	for _, alias := range r.table[ch] {
		alias = strings.ToLower(alias)
		if alias == "" {
			continue
		}
		for i, h := range r.lower {
			if claimed[i] {
				continue
			}
			if strings.Contains(h, alias) {
				return i, true
			}
		}
	}
	return -1, false
}

// Require is Find that fails with a *ConfigError naming the channel, the
// aliases searched and the headers available.
func (r *Resolver) Require(ch Channel) (int, error) {
	if i, ok := r.Find(ch); ok {
		return i, nil
	}
	return -1, r.configError(ch)
}

// Optional is Find returning -1 when the channel is absent.
func (r *Resolver) Optional(ch Channel) int {
	i, _ := r.Find(ch)
	return i
}

func (r *Resolver) configError(ch Channel) *ConfigError {
	return &ConfigError{
		Channel: string(ch),
		Aliases: slices.Clone(r.table[ch]),
		Headers: slices.Clone(r.headers),
	}
}

// ChannelMap is the outcome of resolving a whole header row.
type ChannelMap struct {
	Headers []string
	index   map[Channel]int
}

// Has reports whether the channel resolved.
func (m ChannelMap) Has(ch Channel) bool {
	_, ok := m.index[ch]
	return ok
}

// Index returns the column for the channel, or -1.
func (m ChannelMap) Index(ch Channel) int {
	if i, ok := m.index[ch]; ok {
		return i
	}
	return -1
}

// Header returns the header text the channel resolved to.
func (m ChannelMap) Header(ch Channel) string {
	if i, ok := m.index[ch]; ok {
		return m.Headers[i]
	}
	return ""
}

// Resolved returns channel -> header for diagnostics.
func (m ChannelMap) Resolved() map[string]string {
	out := make(map[string]string, len(m.index))
	for ch, i := range m.index {
		out[string(ch)] = m.Headers[i]
	}
	return out
}

// HasAirflow reports whether a MAF column resolved.
func (m ChannelMap) HasAirflow() bool { return m.Has(ChannelMAF) }

// HasPressure reports whether a boost or MAP column resolved.
func (m ChannelMap) HasPressure() bool { return m.Has(ChannelBoost) || m.Has(ChannelMAPKPa) }

// Resolve maps every channel it can. Each header is claimed by at most one
// channel. rpm and load are mandatory and at least one of maf, boost or
// map_kpa must resolve.
func (r *Resolver) Resolve() (ChannelMap, error) {
	m := ChannelMap{Headers: slices.Clone(r.headers), index: make(map[Channel]int)}
	claimed := make(map[int]bool)
	for _, ch := range resolveOrder {
		if i, ok := r.find(ch, claimed); ok {
			m.index[ch] = i
			claimed[i] = true
		}
	}

	for _, ch := range []Channel{ChannelRPM, ChannelLoad} {
		if !m.Has(ch) {
			return ChannelMap{}, r.configError(ch)
		}
	}
	if !m.HasAirflow() && !m.HasPressure() {
		var aliases []string
		for _, ch := range []Channel{ChannelMAF, ChannelBoost, ChannelMAPKPa} {
			aliases = append(aliases, r.table[ch]...)
		}
		return ChannelMap{}, &ConfigError{
			Channel:  string(ChannelMAF),
			Required: "maf, boost or map_kpa",
			Aliases:  aliases,
			Headers:  slices.Clone(r.headers),
		}
	}
	return m, nil
}
