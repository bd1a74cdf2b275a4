package renderer

import (
	"io/fs"
	"os"

	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/staged-triangle/internal/mesh"
	"github.com/vkngwrapper/staged-triangle/internal/shader"
)

type Options struct {
	Title  string
	Width  int
	Height int

	Shaders      fs.FS
	VertexPath   string
	FragmentPath string

	// Vertices are uploaded into a staged vertex buffer on every swapchain
	// generation and drawn with a single call.
	Vertices []mesh.Vertex

	Validation bool
	Logger     *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Title:        "Vulkan",
		Width:        800,
		Height:       600,
		Shaders:      os.DirFS("."),
		VertexPath:   shader.DefaultVertexPath,
		FragmentPath: shader.DefaultFragmentPath,
		Vertices:     mesh.Quad,
		Validation:   validationDefault,
		Logger:       slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
}
