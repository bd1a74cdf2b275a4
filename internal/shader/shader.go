// Package shader loads the precompiled SPIR-V stages the pipeline is built from.
package shader

//go:generate mkdir -p ../../build/shaders
//go:generate glslc ../../shaders/shader.vert -o ../../build/shaders/vert.spv
//go:generate glslc ../../shaders/shader.frag -o ../../build/shaders/frag.spv

import (
	"encoding/binary"
	"io/fs"

	"github.com/cockroachdb/errors"
)

// Default locations of the compiled stages, relative to the working directory.
const (
	DefaultVertexPath   = "build/shaders/vert.spv"
	DefaultFragmentPath = "build/shaders/frag.spv"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// ErrShaderLoad is marked on every failure to read or decode a shader stage.
var ErrShaderLoad = errors.New("shader load failed")

// Stages holds the decoded bytecode of both stages.
type Stages struct {
	Vertex   []uint32
	Fragment []uint32
}

// Load reads and decodes the vertex and fragment stages from fsys.
func Load(fsys fs.FS, vertexPath, fragmentPath string) (Stages, error) {
	vert, err := loadStage(fsys, vertexPath)
	if err != nil {
		return Stages{}, err
	}

	frag, err := loadStage(fsys, fragmentPath)
	if err != nil {
		return Stages{}, err
	}

	return Stages{Vertex: vert, Fragment: frag}, nil
}

func loadStage(fsys fs.FS, path string) ([]uint32, error) {
	b, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read shader %s", path), ErrShaderLoad)
	}

	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Mark(errors.Newf("shader %s: %d bytes is not a whole number of words", path, len(b)), ErrShaderLoad)
	}

	code := BytesToBytecode(b)
	if code[0] != spirvMagic {
		return nil, errors.Mark(errors.Newf("shader %s: bad SPIR-V magic %#08x", path, code[0]), ErrShaderLoad)
	}

	return code, nil
}

// BytesToBytecode reinterprets little-endian bytes as SPIR-V words.
// Trailing bytes that do not fill a word are dropped.
func BytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}

	return byteCode
}
