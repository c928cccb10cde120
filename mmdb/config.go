package mmdb

import "github.com/ic-timon/ipgeo/mmdb/store"

// Config holds reader parameters.
type Config struct {
	UseMmap              bool // map the file read-only; false reads it into memory
	MaxDecodeDepth       int  // nesting plus pointer hops allowed in one decode, default 512
	MetadataSearchWindow int  // bytes from end of file searched for the metadata marker, default 128 KiB
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		UseMmap:              true,
		MaxDecodeDepth:       512,
		MetadataSearchWindow: store.MetadataSearchWindow,
	}
}

// OrDefault returns DefaultConfig if c is nil, otherwise normalizes c.
func (c *Config) OrDefault() *Config {
	if c == nil {
		return DefaultConfig()
	}
	if c.MaxDecodeDepth <= 0 {
		c.MaxDecodeDepth = 512
	}
	if c.MetadataSearchWindow <= 0 {
		c.MetadataSearchWindow = store.MetadataSearchWindow
	}
	return c
}
