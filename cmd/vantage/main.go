// Command vantage opens a window and renders a colored triangle through
// Vulkan. It exists to exercise the renderer end to end; there is no scene
// or input handling beyond window lifecycle events.
package main

import (
	"embed"
	"flag"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/vantage3d/vantage/app"
)

// Recompile with:
//
//	glslc shaders/shader.vert -o shaders/vert.spv
//	glslc shaders/shader.frag -o shaders/frag.spv
//
//go:embed shaders/vert.spv shaders/frag.spv
var shaders embed.FS

func main() {
	// SDL and the Vulkan surface must stay on the main thread.
	runtime.LockOSThread()

	validation := flag.Bool("validation", true, "enable the Khronos validation layer")
	verbose := flag.Bool("verbose", false, "log frame timing and driver diagnostics")
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	vertShader, err := shaders.ReadFile("shaders/vert.spv")
	if err != nil {
		logger.Fatalf("%+v", err)
	}
	fragShader, err := shaders.ReadFile("shaders/frag.spv")
	if err != nil {
		logger.Fatalf("%+v", err)
	}

	renderer := app.New(app.Config{
		EnableValidation: *validation,
		VertexShader:     vertShader,
		FragmentShader:   fragShader,
		Logger:           logger,
	})

	err = renderer.Run()
	if err != nil {
		logger.Fatalf("%+v", err)
	}
}
