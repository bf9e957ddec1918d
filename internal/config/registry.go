package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/recallcheck/internal/delivery"
	"github.com/MrWong99/recallcheck/pkg/audio"
	"github.com/MrWong99/recallcheck/pkg/provider/stt"
	"github.com/MrWong99/recallcheck/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	tts      map[string]func(ProviderEntry) (tts.Provider, error)
	stt      map[string]func(ProviderEntry) (stt.Provider, error)
	fallback map[string]func(ProviderEntry) (delivery.Fallback, error)
	audio    map[string]func(ProviderEntry) (*audio.Platform, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		tts:      make(map[string]func(ProviderEntry) (tts.Provider, error)),
		stt:      make(map[string]func(ProviderEntry) (stt.Provider, error)),
		fallback: make(map[string]func(ProviderEntry) (delivery.Fallback, error)),
		audio:    make(map[string]func(ProviderEntry) (*audio.Platform, error)),
	}
}

// RegisterTTS registers a TTS provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterFallback registers a local synthesis factory under name.
func (r *Registry) RegisterFallback(name string, factory func(ProviderEntry) (delivery.Fallback, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback[name] = factory
}

// RegisterAudio registers an audio platform factory under name.
func (r *Registry) RegisterAudio(name string, factory func(ProviderEntry) (*audio.Platform, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateFallback instantiates a local synthesiser using the factory registered under entry.Name.
func (r *Registry) CreateFallback(entry ProviderEntry) (delivery.Fallback, error) {
	r.mu.RLock()
	factory, ok := r.fallback[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: fallback/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateAudio instantiates an audio platform using the factory registered under entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (*audio.Platform, error) {
	r.mu.RLock()
	factory, ok := r.audio[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
