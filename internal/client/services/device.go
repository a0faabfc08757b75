package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/kappi/internal/client/models"
	"github.com/google/uuid"
)

const keyDeviceInfo = "device-info"

// DeviceRegistry hands out this install's identity, creating it on first
// use.
type DeviceRegistry struct {
	store      Store
	platform   string
	appVersion string

	mu     sync.Mutex
	cached *models.DeviceInfo
}

func NewDeviceRegistry(store Store, platform, appVersion string) *DeviceRegistry {
	return &DeviceRegistry{store: store, platform: platform, appVersion: appVersion}
}

// DeviceInfo returns the stored identity. A missing or tampered record is
// replaced with a fresh id; the platform and version always reflect the
// running binary.
func (d *DeviceRegistry) DeviceInfo(ctx context.Context) (models.DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cached != nil {
		return *d.cached, nil
	}

	var info models.DeviceInfo
	found, err := d.store.Get(ctx, keyDeviceInfo, &info)
	if err != nil {
		return models.DeviceInfo{}, fmt.Errorf("load device info: %w", err)
	}

	changed := !found || info.Platform != d.platform || info.AppVersion != d.appVersion
	if !found || info.DeviceID == "" {
		info.DeviceID = uuid.NewString()
		changed = true
	}
	info.Platform = d.platform
	info.AppVersion = d.appVersion

	if changed {
		if err := d.store.Put(ctx, keyDeviceInfo, info); err != nil {
			return models.DeviceInfo{}, fmt.Errorf("save device info: %w", err)
		}
	}

	d.cached = &info
	return info, nil
}
