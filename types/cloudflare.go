package types

// CloudflareConfig holds configuration for Cloudflare integration
type CloudflareConfig struct {
	Enabled      bool   `json:"enabled"`       // Whether Cloudflare integration is enabled
	APIToken     string `json:"api_token"`     // Cloudflare API token for authentication
	ZoneID       string `json:"zone_id"`       // Cloudflare Zone ID
	BaseDomain   string `json:"base_domain"`   // Base domain for ingress names, e.g. "example.com"
	AutoGenerate bool   `json:"auto_generate"` // Whether to create a DNS record for every public HTTP endpoint
}

// CloudflareDNSRecord represents a DNS record created for an ingress
type CloudflareDNSRecord struct {
	RecordID string `json:"record_id"`
	Name     string `json:"name"`    // The full domain name, e.g. "mealie-app.example.com"
	Content  string `json:"content"` // IP address or CNAME value
	Type     string `json:"type"`    // "A" or "CNAME"
	Proxied  bool   `json:"proxied"`
}

// IngressDomain is the public domain assigned to a container's HTTP endpoint
type IngressDomain struct {
	Resource  string              `json:"resource"` // Container resource name
	Domain    string              `json:"domain"`
	DNSRecord CloudflareDNSRecord `json:"dns_record,omitempty"`
}
