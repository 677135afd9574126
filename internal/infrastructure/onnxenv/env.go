// Package onnxenv owns process-wide ONNX runtime initialization. The runtime
// environment is created once and kept resident for the process lifetime;
// both inference stages go through Ensure before building sessions.
package onnxenv

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	once    sync.Once
	initErr error
)

// Ensure initializes the shared runtime exactly once. sharedLibraryPath may
// be empty, in which case the runtime's default library resolution applies.
func Ensure(sharedLibraryPath string) error {
	once.Do(func() {
		if sharedLibraryPath != "" {
			ort.SetSharedLibraryPath(sharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			initErr = fmt.Errorf("initialize onnx runtime: %w", err)
		}
	})
	return initErr
}
