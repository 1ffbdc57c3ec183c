package cloudflare

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	cf "github.com/cloudflare/cloudflare-go"

	"apphost/types"
)

const recordTTL = 120

// Client handles interactions with the Cloudflare API
type Client struct {
	api        *cf.API
	config     types.CloudflareConfig
	domainMap  map[string]types.IngressDomain // Maps resource name to domain info
	mu         sync.RWMutex
	serverAddr string // The host's public IP or hostname
	logger     *slog.Logger
}

// NewClient creates a new Cloudflare API client. A disabled config yields a
// client that records domains without calling the API.
func NewClient(config types.CloudflareConfig, serverAddr string, logger *slog.Logger) (*Client, error) {
	c := &Client{
		config:     config,
		domainMap:  make(map[string]types.IngressDomain),
		serverAddr: serverAddr,
		logger:     logger.With("component", "cloudflare"),
	}
	if !config.Enabled {
		return c, nil
	}

	api, err := cf.NewWithAPIToken(config.APIToken)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudflare API client: %w", err)
	}
	c.api = api
	return c, nil
}

// CreateDomain creates a subdomain of the base domain pointing at the host.
func (c *Client) CreateDomain(ctx context.Context, resource string) (*types.IngressDomain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subdomain := sanitizeForDNS(resource)
	fullDomain := fmt.Sprintf("%s.%s", subdomain, c.config.BaseDomain)

	if !c.config.Enabled {
		c.logger.Info("integration disabled, recording domain only", "resource", resource, "domain", fullDomain)
		domain := types.IngressDomain{Resource: resource, Domain: fullDomain}
		c.domainMap[resource] = domain
		return &domain, nil
	}

	proxied := true
	recordParams := cf.CreateDNSRecordParams{
		Type:    "A",
		Name:    subdomain,
		Content: c.serverAddr,
		TTL:     recordTTL,
		Proxied: &proxied,
	}

	c.logger.Info("creating DNS record", "domain", fullDomain, "content", c.serverAddr)
	record, err := c.api.CreateDNSRecord(ctx, cf.ZoneIdentifier(c.config.ZoneID), recordParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create DNS record: %w", err)
	}

	domain := types.IngressDomain{
		Resource: resource,
		Domain:   fullDomain,
		DNSRecord: types.CloudflareDNSRecord{
			RecordID: record.ID,
			Name:     fullDomain,
			Content:  c.serverAddr,
			Type:     "A",
			Proxied:  true,
		},
	}
	c.domainMap[resource] = domain
	c.logger.Info("created DNS record", "domain", fullDomain, "record_id", record.ID)

	return &domain, nil
}

// DeleteDomain removes a resource's domain and its DNS record
func (c *Client) DeleteDomain(ctx context.Context, resource string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	domain, exists := c.domainMap[resource]
	if !exists {
		return fmt.Errorf("no domain found for resource: %s", resource)
	}

	if !c.config.Enabled {
		delete(c.domainMap, resource)
		return nil
	}

	if domain.DNSRecord.RecordID == "" {
		return fmt.Errorf("no DNS record ID found for domain: %s", domain.Domain)
	}

	c.logger.Info("deleting DNS record", "domain", domain.Domain, "record_id", domain.DNSRecord.RecordID)
	if err := c.api.DeleteDNSRecord(ctx, cf.ZoneIdentifier(c.config.ZoneID), domain.DNSRecord.RecordID); err != nil {
		return fmt.Errorf("failed to delete DNS record: %w", err)
	}

	delete(c.domainMap, resource)
	return nil
}

// GetDomain retrieves domain information for a resource
func (c *Client) GetDomain(resource string) (types.IngressDomain, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	domain, exists := c.domainMap[resource]
	return domain, exists
}

// GetAllDomains returns all recorded domains sorted by resource
func (c *Client) GetAllDomains() []types.IngressDomain {
	c.mu.RLock()
	defer c.mu.RUnlock()

	domains := make([]types.IngressDomain, 0, len(c.domainMap))
	for _, domain := range c.domainMap {
		domains = append(domains, domain)
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i].Resource < domains[j].Resource })
	return domains
}

// sanitizeForDNS maps a resource name onto a valid DNS label
func sanitizeForDNS(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		if r >= 'A' && r <= 'Z' {
			return r + 32
		}
		return '-'
	}, name)

	for strings.Contains(sanitized, "--") {
		sanitized = strings.ReplaceAll(sanitized, "--", "-")
	}
	sanitized = strings.Trim(sanitized, "-")

	if sanitized == "" {
		sanitized = "app"
	}
	return sanitized
}
