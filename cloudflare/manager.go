package cloudflare

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"apphost/types"
)

// Manager assigns public domains to container HTTP endpoints
type Manager struct {
	client  *Client
	enabled bool
	autoGen bool
	domains map[string]types.IngressDomain // resource -> domain
	mu      sync.RWMutex
	logger  *slog.Logger
}

// NewManager creates a new ingress manager. A nil client disables it.
func NewManager(client *Client, autoGenerate bool, logger *slog.Logger) *Manager {
	return &Manager{
		client:  client,
		enabled: client != nil,
		autoGen: autoGenerate,
		domains: make(map[string]types.IngressDomain),
		logger:  logger.With("component", "ingress"),
	}
}

// RegisterIngress creates a domain for a resource. It returns nil, nil when
// the manager is disabled or does not generate domains.
func (m *Manager) RegisterIngress(ctx context.Context, resource string) (*types.IngressDomain, error) {
	if !m.enabled || !m.autoGen {
		m.logger.Debug("ingress registration skipped", "resource", resource, "enabled", m.enabled, "auto_generate", m.autoGen)
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if domain, exists := m.domains[resource]; exists {
		return &domain, nil
	}

	domain, err := m.client.CreateDomain(ctx, resource)
	if err != nil {
		return nil, err
	}
	m.domains[resource] = *domain
	m.logger.Info("registered ingress", "resource", resource, "domain", domain.Domain)

	return domain, nil
}

// GetIngress retrieves the domain of a resource
func (m *Manager) GetIngress(resource string) (types.IngressDomain, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	domain, exists := m.domains[resource]
	return domain, exists
}

// DeleteIngress removes the domain of a resource
func (m *Manager) DeleteIngress(ctx context.Context, resource string) error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.domains[resource]; !exists {
		return nil
	}
	if err := m.client.DeleteDomain(ctx, resource); err != nil {
		return err
	}
	delete(m.domains, resource)
	m.logger.Info("deleted ingress", "resource", resource)

	return nil
}

// DeleteAll removes every registered domain.
func (m *Manager) DeleteAll(ctx context.Context) error {
	var errs []error
	for _, d := range m.GetAllIngress() {
		if err := m.DeleteIngress(ctx, d.Resource); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetAllIngress returns all registered domains sorted by resource
func (m *Manager) GetAllIngress() []types.IngressDomain {
	m.mu.RLock()
	defer m.mu.RUnlock()

	domains := make([]types.IngressDomain, 0, len(m.domains))
	for _, domain := range m.domains {
		domains = append(domains, domain)
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i].Resource < domains[j].Resource })
	return domains
}

// IsEnabled returns whether ingress management is enabled
func (m *Manager) IsEnabled() bool {
	return m.enabled && m.client != nil
}
