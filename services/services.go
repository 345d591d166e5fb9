// Package services provides the built-in content host connectors.
package services

import (
	"fmt"
	"sort"

	polyv "github.com/DevLARLEY/gopolyv"
)

type builder func(client *polyv.Client) polyv.Connector

var buildIns = map[string]builder{
	"wingfox": func(c *polyv.Client) polyv.Connector { return NewWingFox(c) },
	"yiihuu":  func(c *polyv.Client) polyv.Connector { return NewYiihuu(c) },
}

// Names returns the names of the built-in connectors in sorted order.
func Names() []string {
	names := make([]string, 0, len(buildIns))
	for name := range buildIns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns the connector called name using client for its requests.
func New(name string, client *polyv.Client) (polyv.Connector, error) {
	b, ok := buildIns[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown service %q", polyv.ErrConfig, name)
	}
	return b(client), nil
}
