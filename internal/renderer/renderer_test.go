package renderer

import (
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/extensions/ext_debug_utils"
	"github.com/vkngwrapper/extensions/khr_swapchain"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/staged-triangle/internal/frame"
	"github.com/vkngwrapper/staged-triangle/internal/mesh"
	"github.com/vkngwrapper/staged-triangle/internal/shader"
)

func TestSurfaceStatus(t *testing.T) {
	suboptimal, err := surfaceStatus(khr_swapchain.VKErrorOutOfDate, errors.New("out of date"))
	require.False(t, suboptimal)
	require.True(t, errors.Is(err, frame.ErrStaleSurface))

	suboptimal, err = surfaceStatus(khr_swapchain.VKSuboptimal, nil)
	require.True(t, suboptimal)
	require.NoError(t, err)

	suboptimal, err = surfaceStatus(common.VKSuccess, nil)
	require.False(t, suboptimal)
	require.NoError(t, err)

	lost := errors.New("device lost")
	_, err = surfaceStatus(common.VKErrorDeviceLost, lost)
	require.ErrorIs(t, err, lost)
	require.False(t, errors.Is(err, frame.ErrStaleSurface))
}

func TestDebugLevel(t *testing.T) {
	require.Equal(t, slog.LevelError, debugLevel(ext_debug_utils.SeverityError|ext_debug_utils.SeverityWarning))
	require.Equal(t, slog.LevelWarn, debugLevel(ext_debug_utils.SeverityWarning))
	require.Equal(t, slog.LevelInfo, debugLevel(ext_debug_utils.SeverityInfo))
	require.Equal(t, slog.LevelDebug, debugLevel(ext_debug_utils.SeverityVerbose))
}

func TestDebugSeverities(t *testing.T) {
	logger := func(level slog.Level) *slog.Logger {
		return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: level}))
	}

	base := ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning
	require.Equal(t, base, debugSeverities(logger(slog.LevelWarn)))
	require.Equal(t, base|ext_debug_utils.SeverityInfo, debugSeverities(logger(slog.LevelInfo)))
	require.Equal(t, base|ext_debug_utils.SeverityInfo|ext_debug_utils.SeverityVerbose, debugSeverities(logger(slog.LevelDebug)))

	opts := debugMessengerOptions(logger(slog.LevelDebug))
	require.Equal(t, debugSeverities(logger(slog.LevelDebug)), opts.MessageSeverity)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	require.Equal(t, shader.DefaultVertexPath, opts.VertexPath)
	require.Equal(t, shader.DefaultFragmentPath, opts.FragmentPath)
	require.Equal(t, mesh.Quad, opts.Vertices)
	require.Equal(t, validationDefault, opts.Validation)
	require.NotNil(t, opts.Shaders)
	require.NotNil(t, opts.Logger)
	require.Positive(t, opts.Width)
	require.Positive(t, opts.Height)
}

func TestNewRejectsEmptyMesh(t *testing.T) {
	opts := DefaultOptions()
	opts.Vertices = nil

	r, err := New(nil, opts)
	require.Error(t, err)
	require.Nil(t, r)
}
