// signal/registry.go
package signal

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// registryFile is the flat persisted record of monitored channels.
type registryFile struct {
	MonitoredChannels []string `json:"monitored_channels"`
}

// ChannelRegistry is the allow-list of channel IDs whose messages are fed to
// the parser. It persists to a flat JSON file with an atomic tmp+rename
// save; it is the only durable state the system keeps.
type ChannelRegistry struct {
	mu       sync.RWMutex
	filePath string
	channels map[string]bool
}

// NewChannelRegistry loads the registry from filePath, starting empty when
// the file does not exist yet.
func NewChannelRegistry(filePath string) (*ChannelRegistry, error) {
	r := &ChannelRegistry{
		filePath: filePath,
		channels: make(map[string]bool),
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("failed to load channel registry: %w", err)
	}
	if len(data) == 0 {
		return r, nil
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse channel registry: %w", err)
	}
	for _, id := range file.MonitoredChannels {
		r.channels[id] = true
	}
	return r, nil
}

// save writes the registry atomically while holding the lock.
func (r *ChannelRegistry) save() error {
	file := registryFile{MonitoredChannels: make([]string, 0, len(r.channels))}
	for id := range r.channels {
		file.MonitoredChannels = append(file.MonitoredChannels, id)
	}
	sort.Strings(file.MonitoredChannels)

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal channel registry: %w", err)
	}

	tmpPath := r.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary registry file: %w", err)
	}
	return os.Rename(tmpPath, r.filePath)
}

// Add puts a channel on the allow-list and persists. Adding a present
// channel is a no-op.
func (r *ChannelRegistry) Add(channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channels[channelID] {
		return nil
	}
	r.channels[channelID] = true
	return r.save()
}

// Remove drops a channel from the allow-list and persists. Removing an
// absent channel is a no-op.
func (r *ChannelRegistry) Remove(channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.channels[channelID] {
		return nil
	}
	delete(r.channels, channelID)
	return r.save()
}

// Contains reports whether the channel is monitored.
func (r *ChannelRegistry) Contains(channelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channels[channelID]
}

// List returns the monitored channel IDs, sorted.
func (r *ChannelRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.channels))
	for id := range r.channels {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
