package cropdb

import (
	"fmt"
	"sort"
	"strings"

	"github.com/couchcryptid/crop-kc-etl/internal/domain"
)

// Catalog is an immutable set of crop profiles keyed by lower-cased name.
// It is safe for concurrent use.
type Catalog struct {
	profiles map[string]domain.CropProfile
	climate  domain.Environment
}

// add registers profile under its table key and, when different, its name.
// Every alias must be new: two entries sharing a name or key would otherwise
// shadow each other depending on map order.
func (c *Catalog) add(key string, profile domain.CropProfile) error {
	keys := aliases(key, profile.Name())
	for _, k := range keys {
		if _, ok := c.profiles[k]; ok {
			return fmt.Errorf("crop %q: %w", k, ErrDuplicateCrop)
		}
	}
	for _, k := range keys {
		c.profiles[k] = profile
	}
	return nil
}

func aliases(key, name string) []string {
	k, n := normalize(key), normalize(name)
	if k == n {
		return []string{k}
	}
	return []string{k, n}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Lookup returns the profile for a crop name or table key, ignoring case.
func (c *Catalog) Lookup(name string) (domain.CropProfile, bool) {
	p, ok := c.profiles[normalize(name)]
	return p, ok
}

// Names returns the distinct crop names in sorted order.
func (c *Catalog) Names() []string {
	seen := make(map[string]struct{}, len(c.profiles))
	names := make([]string, 0, len(c.profiles))
	for _, p := range c.profiles {
		if _, ok := seen[p.Name()]; ok {
			continue
		}
		seen[p.Name()] = struct{}{}
		names = append(names, p.Name())
	}
	sort.Strings(names)
	return names
}

// Len returns the number of distinct crops.
func (c *Catalog) Len() int { return len(c.Names()) }

// Climate returns the table's reference wind speed and humidity at the
// default canopy height.
func (c *Catalog) Climate() domain.Environment { return c.climate }
