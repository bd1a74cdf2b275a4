package main

import (
	"flag"
	"log"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/staged-triangle/internal/mesh"
	"github.com/vkngwrapper/staged-triangle/internal/renderer"
	"github.com/vkngwrapper/staged-triangle/internal/window"
)

func init() {
	// SDL must be driven from the main thread.
	runtime.LockOSThread()
}

func loadMesh(objPath, mtlPath string) ([]mesh.Vertex, error) {
	objFile, err := os.Open(objPath)
	if err != nil {
		return nil, errors.Wrap(err, "open mesh")
	}
	defer objFile.Close()

	if mtlPath == "" {
		return mesh.LoadOBJ(objFile, nil)
	}

	mtlFile, err := os.Open(mtlPath)
	if err != nil {
		return nil, errors.Wrap(err, "open material library")
	}
	defer mtlFile.Close()

	return mesh.LoadOBJ(objFile, mtlFile)
}

func run() error {
	opts := renderer.DefaultOptions()

	shaderDir := flag.String("shaders", ".", "directory the build/shaders/*.spv paths are resolved against")
	meshPath := flag.String("mesh", "", "optional OBJ file to draw instead of the built-in quad")
	mtlPath := flag.String("mtl", "", "optional MTL file supplying face colors for -mesh")
	debug := flag.Bool("debug", false, "log frame statistics")
	flag.StringVar(&opts.Title, "title", opts.Title, "window title")
	flag.IntVar(&opts.Width, "width", opts.Width, "initial window width")
	flag.IntVar(&opts.Height, "height", opts.Height, "initial window height")
	flag.BoolVar(&opts.Validation, "validation", opts.Validation, "enable Vulkan validation layers")
	flag.Parse()

	opts.Shaders = os.DirFS(*shaderDir)

	if *debug {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	if *meshPath != "" {
		vertices, err := loadMesh(*meshPath, *mtlPath)
		if err != nil {
			return err
		}
		opts.Vertices = vertices
	}

	win, err := window.New(opts.Title, opts.Width, opts.Height)
	if err != nil {
		return err
	}
	defer win.Destroy()

	r, err := renderer.New(win, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	return r.Run()
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}
