package config

import (
	"fmt"
	"sort"
)

// ProviderRegistry is an immutable name -> provider lookup built at load time.
type ProviderRegistry struct {
	providers map[string]*ProviderConfig
}

// NewProviderRegistry creates a registry from the given provider map.
func NewProviderRegistry(providers map[string]*ProviderConfig) *ProviderRegistry {
	if providers == nil {
		providers = make(map[string]*ProviderConfig)
	}
	return &ProviderRegistry{providers: providers}
}

// Get retrieves a provider configuration by name.
func (r *ProviderRegistry) Get(name string) (*ProviderConfig, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// Names returns all provider names, sorted.
func (r *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered providers.
func (r *ProviderRegistry) Len() int {
	return len(r.providers)
}

// MCPServerRegistry is an immutable id -> server lookup built at load time.
type MCPServerRegistry struct {
	servers map[string]*MCPServerConfig
}

// NewMCPServerRegistry creates a registry from the given server list.
func NewMCPServerRegistry(servers []MCPServerConfig) *MCPServerRegistry {
	m := make(map[string]*MCPServerConfig, len(servers))
	for i := range servers {
		s := servers[i]
		m[s.ID] = &s
	}
	return &MCPServerRegistry{servers: m}
}

// Get retrieves an MCP server configuration by ID.
func (r *MCPServerRegistry) Get(id string) (*MCPServerConfig, error) {
	s, ok := r.servers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMCPServerNotFound, id)
	}
	return s, nil
}

// ServerIDs returns all server IDs, sorted.
func (r *MCPServerRegistry) ServerIDs() []string {
	ids := make([]string, 0, len(r.servers))
	for id := range r.servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered servers.
func (r *MCPServerRegistry) Len() int {
	return len(r.servers)
}
