// Package buildinfo holds build-time metadata injected through -ldflags
package buildinfo

import "fmt"

// UnknownValue is reported for metadata missing from the build
const UnknownValue = "unknown"

// Context carries the version and build date of the binary
type Context struct {
	version   string
	buildDate string
}

// NewContext creates a build context. Empty values report as UnknownValue.
func NewContext(version, buildDate string) *Context {
	return &Context{version: version, buildDate: buildDate}
}

// Version returns the release version
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the build timestamp
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// String formats the context for --version output
func (c *Context) String() string {
	return fmt.Sprintf("%s (built %s)", c.Version(), c.BuildDate())
}
