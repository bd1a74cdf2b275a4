package renderer

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/ext_debug_utils"
	"github.com/vkngwrapper/extensions/khr_portability_enumeration"
	"golang.org/x/exp/slog"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}

func createInstance(loader core.Loader, windowExtensions []string, validation bool, logger *slog.Logger) (core1_0.Instance, error) {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    "Staged Triangle",
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := loader.AvailableExtensions()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate instance extensions")
	}

	for _, ext := range windowExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return nil, errors.Newf("missing window system extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if validation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)

		layers, _, err := loader.AvailableLayers()
		if err != nil {
			return nil, errors.Wrap(err, "enumerate instance layers")
		}

		for _, layer := range validationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return nil, errors.Newf("validation layer %s not available, install the Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		// Covers messages emitted during instance creation and destruction.
		instanceOptions.Next = debugMessengerOptions(logger)
	}

	instance, _, err := loader.CreateInstance(nil, instanceOptions)
	if err != nil {
		return nil, errors.Wrap(err, "create instance")
	}

	return instance, nil
}

func debugMessengerOptions(logger *slog.Logger) ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: debugSeverities(logger),
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback: func(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
			logger.Log(context.Background(), debugLevel(severity), data.Message,
				slog.String("type", msgType.String()),
				slog.String("severity", severity.String()))
			return false
		},
	}
}

func createDebugMessenger(instance core1_0.Instance, logger *slog.Logger) (ext_debug_utils.DebugUtilsMessenger, error) {
	debugLoader := ext_debug_utils.CreateExtensionFromInstance(instance)
	messenger, _, err := debugLoader.CreateDebugUtilsMessenger(instance, nil, debugMessengerOptions(logger))
	if err != nil {
		return nil, errors.Wrap(err, "create debug messenger")
	}
	return messenger, nil
}

// debugSeverities subscribes to info and verbose messages only when the
// logger would print them.
func debugSeverities(logger *slog.Logger) ext_debug_utils.DebugUtilsMessageSeverityFlags {
	severities := ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		severities |= ext_debug_utils.SeverityInfo
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		severities |= ext_debug_utils.SeverityVerbose
	}
	return severities
}

func debugLevel(severity ext_debug_utils.DebugUtilsMessageSeverityFlags) slog.Level {
	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		return slog.LevelError
	case severity&ext_debug_utils.SeverityWarning != 0:
		return slog.LevelWarn
	case severity&ext_debug_utils.SeverityInfo != 0:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
