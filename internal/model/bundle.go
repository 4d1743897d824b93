// Package model holds the process-wide set of loaded model handles.
package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/core"
)

// ErrIncompleteHandles is returned when a loader yields a bundle with a nil handle.
var ErrIncompleteHandles = errors.New("loader returned incomplete model handles")

// Handles are the three loaded model handles.
type Handles struct {
	Tokenizer core.Tokenizer
	Model     core.LanguageModel
	Codec     core.Codec
}

// Loader loads the model handles onto a device.
type Loader interface {
	// Devices lists the devices the backend can place models on.
	Devices(ctx context.Context) ([]string, error)
	Load(ctx context.Context, device string) (*Handles, error)
}

// Bundle owns the model handles for the life of the process. Load is idempotent
// and single-flight: concurrent callers wait for one load, and a failed load
// leaves the bundle empty so a later call can retry. loadMu serializes loads
// while mu only guards the published state, so readers never wait on a load.
type Bundle struct {
	loader           Loader
	log              *logger.Logger
	handles          *Handles
	devicePreference string
	device           string
	loadMu           sync.Mutex
	mu               sync.Mutex
	loads            int
}

// NewBundle creates an unloaded bundle.
func NewBundle(loader Loader, devicePreference string, log *logger.Logger) *Bundle {
	return &Bundle{loader: loader, devicePreference: devicePreference, log: log}
}

// NewLoadedBundle wraps handles that are already loaded.
func NewLoadedBundle(handles *Handles, device string) *Bundle {
	return &Bundle{handles: handles, device: device, loads: 1}
}

// Load selects a device and loads the handles unless they are already loaded.
func (b *Bundle) Load(ctx context.Context) error {
	b.loadMu.Lock()
	defer b.loadMu.Unlock()

	if b.Loaded() {
		return nil
	}

	if b.loader == nil {
		return fmt.Errorf("%w: no loader configured", core.ErrModelNotInitialized)
	}

	available, err := b.loader.Devices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	device, err := SelectDevice(b.devicePreference, available)
	if err != nil {
		return err
	}

	b.log.Info("Loading models on device %s", device)

	handles, err := b.loader.Load(ctx, device)
	if err != nil {
		return fmt.Errorf("failed to load models on %s: %w", device, err)
	}

	if handles == nil || handles.Tokenizer == nil || handles.Model == nil || handles.Codec == nil {
		return ErrIncompleteHandles
	}

	b.mu.Lock()
	b.handles = handles
	b.device = device
	b.loads++
	b.mu.Unlock()

	b.log.Info("Models loaded on device %s", device)

	return nil
}

// Handles returns the loaded handles or core.ErrModelNotInitialized.
func (b *Bundle) Handles() (*Handles, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handles == nil {
		return nil, core.ErrModelNotInitialized
	}

	return b.handles, nil
}

// Loaded reports whether Load has succeeded.
func (b *Bundle) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.handles != nil
}

// Device returns the device the handles were loaded on, or "" before loading.
func (b *Bundle) Device() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.device
}

// LoadCount returns how many successful loads happened. It is always 0 or 1.
func (b *Bundle) LoadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.loads
}
