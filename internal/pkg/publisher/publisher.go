package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/anicoll/relay-controller/internal/pkg/model"
	"go.uber.org/zap"
)

var errAlreadyRegistered = errors.New("publisher already registered")

var (
	mu                  sync.Mutex
	registerdPublishers = make(map[string]publisher)
	lastSeen            sync.Map
)

type publisher interface {
	// Write delivers relay state changes to the registered adapter.
	Write(ctx context.Context, changes []model.StateChange) error
}

func RegisterPublisher(name string, publisher publisher) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registerdPublishers[name]; ok {
		return errAlreadyRegistered
	}
	registerdPublishers[name] = publisher
	return nil
}

// Reset drops all registered publishers and suppression state. Test hook.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	registerdPublishers = make(map[string]publisher)
	lastSeen.Range(func(key, _ any) bool {
		lastSeen.Delete(key)
		return true
	})
}

// PublishChanges fans relay transitions out to every registered publisher.
// A relay/value pair is suppressed until the value actually changes, so
// adapters never see repeat writes of the same state.
func PublishChanges(ctx context.Context, changes ...model.StateChange) {
	filtered := make([]model.StateChange, 0, len(changes))
	for _, change := range changes {
		if !shouldUpdate(change.Relay, change.On) {
			continue
		}
		filtered = append(filtered, change)
	}
	if len(filtered) == 0 {
		return
	}

	mu.Lock()
	defer mu.Unlock()
	for name, publisher := range registerdPublishers {
		if err := publisher.Write(ctx, filtered); err != nil {
			zap.L().Error("failed to publish changes", zap.Error(err), zap.String("publisher", name))
			continue
		}
		zap.L().Debug("published changes", zap.Int("count", len(filtered)), zap.String("publisher", name))
	}
}

func shouldUpdate(relay int, on bool) bool {
	key := fmt.Sprintf("relay_%d", relay)
	oldValue, exists := lastSeen.Load(key)
	if exists && oldValue.(bool) == on {
		return false
	}
	lastSeen.Store(key, on)
	return true
}
