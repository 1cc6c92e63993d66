package firmware

import (
	"context"

	"github.com/Masterminds/semver/v3"
)

// StaticCatalog is an in-memory Catalog for tests and fixed deployments.
type StaticCatalog struct {
	descriptors map[string][]Descriptor
}

// NewStaticCatalog returns a catalog over the given descriptors. Descriptors
// with versions that do not parse as semantic versions are ignored.
func NewStaticCatalog(descriptors ...Descriptor) *StaticCatalog {
	c := &StaticCatalog{descriptors: make(map[string][]Descriptor)}
	for _, d := range descriptors {
		if _, err := semver.NewVersion(d.Version); err != nil {
			continue
		}
		c.descriptors[d.DeviceType] = append(c.descriptors[d.DeviceType], d)
	}
	return c
}

// LatestFor implements Catalog.
func (c *StaticCatalog) LatestFor(ctx context.Context, deviceType string) (*Descriptor, error) {
	var latest *Descriptor
	var latestVersion *semver.Version
	for i := range c.descriptors[deviceType] {
		d := c.descriptors[deviceType][i]
		version, err := semver.NewVersion(d.Version)
		if err != nil {
			continue
		}
		if latestVersion == nil || version.GreaterThan(latestVersion) {
			latest = &d
			latestVersion = version
		}
	}
	return latest, nil
}
