package app

import "github.com/sirupsen/logrus"

const (
	defaultTitle  = "Vantage"
	defaultWidth  = 1280
	defaultHeight = 720
)

// Config describes one renderer instance. New fills in the default window
// geometry and a standard logger when unset; the SPIR-V blobs are required.
type Config struct {
	Title  string
	Width  int
	Height int

	// EnableValidation turns on the Khronos validation layer and routes
	// driver diagnostics through the logger. Requires the Vulkan SDK.
	EnableValidation bool

	// Precompiled SPIR-V blobs for the single graphics pipeline.
	VertexShader   []byte
	FragmentShader []byte

	Logger *logrus.Logger
}

func (c Config) withDefaults() Config {
	if c.Title == "" {
		c.Title = defaultTitle
	}
	if c.Width == 0 {
		c.Width = defaultWidth
	}
	if c.Height == 0 {
		c.Height = defaultHeight
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}

	return c
}
