package messaging

import (
	"fmt"
	"sort"
	"sync"

	"github.com/raystack/scale/internal/errors"
)

// Factory returns an empty message ready to be decoded into.
type Factory func() Message

// Registry resolves message types to factories. It is filled once while the
// process starts and only read afterwards.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func (r *Registry) Register(msgType string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[msgType]; ok {
		return errors.NewError(errors.ErrAlreadyExists, EntityMessage,
			fmt.Sprintf("message type '%s' is already registered", msgType))
	}
	r.factories[msgType] = factory
	return nil
}

func (r *Registry) New(msgType string) (Message, error) {
	r.mu.RLock()
	factory, ok := r.factories[msgType]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.InvalidArgument(EntityMessage, fmt.Sprintf("'%s' is an invalid message type", msgType))
	}
	return factory(), nil
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
