package build

import "github.com/asakaida/placement/internal/version"

// Script is an installed entry point
type Script struct {
	Name string
	Path string // relative to the project root
}

// Metadata describes the distribution
type Metadata struct {
	Name        string
	Version     string
	Description string
	Author      string
	AuthorEmail string
	URL         string
}

var scripts = []Script{
	{Name: "nova-api", Path: "bin/nova-api"},
	{Name: "nova-compute", Path: "bin/nova-compute"},
	{Name: "nova-dhcpbridge", Path: "bin/nova-dhcpbridge"},
	{Name: "nova-import-canonical-imagestore", Path: "bin/nova-import-canonical-imagestore"},
	{Name: "nova-instancemonitor", Path: "bin/nova-instancemonitor"},
	{Name: "nova-logspool", Path: "bin/nova-logspool"},
	{Name: "nova-manage", Path: "bin/nova-manage"},
	{Name: "nova-network", Path: "bin/nova-network"},
	{Name: "nova-objectstore", Path: "bin/nova-objectstore"},
	{Name: "nova-scheduler", Path: "bin/nova-scheduler"},
	{Name: "nova-spoolsentry", Path: "bin/nova-spoolsentry"},
	{Name: "nova-volume", Path: "bin/nova-volume"},
	{Name: "nova-debug", Path: "tools/nova-debug"},
}

// Scripts returns the installed entry points in install order
func Scripts() []Script {
	out := make([]Script, len(scripts))
	copy(out, scripts)
	return out
}

// DistMetadata returns the distribution metadata
func DistMetadata() Metadata {
	return Metadata{
		Name:        "nova",
		Version:     version.String(),
		Description: "cloud computing fabric controller",
		Author:      "OpenStack",
		AuthorEmail: "nova@lists.launchpad.net",
		URL:         "http://www.openstack.org/",
	}
}
