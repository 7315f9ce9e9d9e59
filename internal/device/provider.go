// Package device snapshots the platform, app version and persistent device id of
// this install.
package device

import (
	"context"
	"sync"

	"github.com/jcarweb/repuestospro-sub005/internal/device/domain"
	"github.com/jcarweb/repuestospro-sub005/internal/device/repository"
)

// Provider returns the device snapshot, resolving the id once.
type Provider struct {
	repo       repository.Repository
	platform   string
	appVersion string

	mu sync.Mutex
	id string
}

// NewProvider returns a Provider for the given platform and version strings.
func NewProvider(repo repository.Repository, platform, appVersion string) *Provider {
	return &Provider{repo: repo, platform: platform, appVersion: appVersion}
}

// Snapshot returns the current device info. A storage failure is returned and retried
// on the next call.
func (p *Provider) Snapshot(ctx context.Context) (domain.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.id == "" {
		id, err := p.repo.EnsureID(ctx)
		if err != nil {
			return domain.Info{}, err
		}
		p.id = id
	}
	return domain.Info{Platform: p.platform, AppVersion: p.appVersion, DeviceID: p.id}, nil
}
