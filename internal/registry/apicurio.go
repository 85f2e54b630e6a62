package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"schema-relay/internal/domain"
)

const defaultRegistryTimeout = 10 * time.Second

// ApicurioClient fetches schema artifacts from an Apicurio-compatible
// registry. Successful fetches are cached for the process lifetime keyed by
// (name, resolved version); a new version is a new cache entry.
type ApicurioClient struct {
	client  *resty.Client
	baseURL string

	mu          sync.RWMutex
	descriptors map[string]*domain.SchemaDescriptor
	latest      map[string]int

	fill singleflight.Group
}

type artifactMeta struct {
	Version string `json:"version"`
}

func NewApicurioClient(baseURL string) (*ApicurioClient, error) {
	client := resty.New()
	client.SetTimeout(defaultRegistryTimeout)
	client.SetRetryCount(0)

	return NewApicurioClientWithClient(baseURL, client)
}

func NewApicurioClientWithClient(baseURL string, client *resty.Client) (*ApicurioClient, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("registry base url is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultRegistryTimeout)
	}
	client.SetRetryCount(0)

	return &ApicurioClient{
		client:      client,
		baseURL:     trimmed,
		descriptors: make(map[string]*domain.SchemaDescriptor),
		latest:      make(map[string]int),
	}, nil
}

func (c *ApicurioClient) Fetch(ctx context.Context, name string, version int) (*domain.SchemaDescriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: schema name is required", domain.ErrValidation)
	}
	if version < 0 {
		return nil, fmt.Errorf("%w: schema version must be >= 0", domain.ErrValidation)
	}

	if version == 0 {
		resolved, ok := c.cachedLatest(name)
		if !ok {
			var err error
			resolved, err = c.resolveLatest(ctx, name)
			if err != nil {
				return nil, err
			}
		}
		version = resolved
	}

	return c.fetchVersion(ctx, name, version)
}

func (c *ApicurioClient) Refresh(ctx context.Context, name string) (*domain.SchemaDescriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: schema name is required", domain.ErrValidation)
	}

	version, err := c.resolveLatest(ctx, name)
	if err != nil {
		return nil, err
	}
	return c.fetchVersion(ctx, name, version)
}

func (c *ApicurioClient) Register(ctx context.Context, name string, definition domain.Definition) (*domain.SchemaDescriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: schema name is required", domain.ErrValidation)
	}
	if err := definition.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(definition)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal definition: %w", err)
	}

	var meta artifactMeta
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Registry-ArtifactId", name).
		SetQueryParam("ifExists", "UPDATE").
		SetBody(body).
		SetResult(&meta).
		Post(c.baseURL + "/groups/default/artifacts")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
	}
	if response.IsError() {
		return nil, registryStatusError(name, response.StatusCode())
	}

	version, err := strconv.Atoi(strings.TrimSpace(meta.Version))
	if err != nil || version < 1 {
		return nil, fmt.Errorf("%w: registry returned invalid version %q", domain.ErrRegistryUnavailable, meta.Version)
	}

	descriptor := &domain.SchemaDescriptor{
		Name:           name,
		Version:        version,
		Definition:     definition,
		DestinationURL: definition.DestinationURL,
	}

	c.mu.Lock()
	c.descriptors[cacheKey(name, version)] = descriptor
	c.latest[name] = version
	c.mu.Unlock()

	return descriptor, nil
}

func (c *ApicurioClient) cachedLatest(name string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	version, ok := c.latest[name]
	return version, ok
}

func (c *ApicurioClient) resolveLatest(ctx context.Context, name string) (int, error) {
	var meta artifactMeta
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetResult(&meta).
		Get(fmt.Sprintf("%s/groups/default/artifacts/%s/meta", c.baseURL, name))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
	}
	if response.IsError() {
		return 0, registryStatusError(name, response.StatusCode())
	}

	version, err := strconv.Atoi(strings.TrimSpace(meta.Version))
	if err != nil || version < 1 {
		return 0, fmt.Errorf("%w: registry returned invalid version %q", domain.ErrRegistryUnavailable, meta.Version)
	}

	c.mu.Lock()
	c.latest[name] = version
	c.mu.Unlock()

	return version, nil
}

func (c *ApicurioClient) fetchVersion(ctx context.Context, name string, version int) (*domain.SchemaDescriptor, error) {
	key := cacheKey(name, version)

	c.mu.RLock()
	descriptor, ok := c.descriptors[key]
	c.mu.RUnlock()
	if ok {
		return descriptor, nil
	}

	// Single-writer-per-key fill; concurrent callers share one round trip.
	result, err, _ := c.fill.Do(key, func() (any, error) {
		c.mu.RLock()
		cached, hit := c.descriptors[key]
		c.mu.RUnlock()
		if hit {
			return cached, nil
		}

		fetched, fetchErr := c.fetchContent(ctx, name, version)
		if fetchErr != nil {
			return nil, fetchErr
		}

		c.mu.Lock()
		c.descriptors[key] = fetched
		c.mu.Unlock()

		return fetched, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*domain.SchemaDescriptor), nil
}

func (c *ApicurioClient) fetchContent(ctx context.Context, name string, version int) (*domain.SchemaDescriptor, error) {
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(fmt.Sprintf("%s/groups/default/artifacts/%s/versions/%d", c.baseURL, name, version))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
	}
	if response.IsError() {
		return nil, registryStatusError(name, response.StatusCode())
	}

	var definition domain.Definition
	if err := json.Unmarshal(response.Body(), &definition); err != nil {
		return nil, fmt.Errorf("%w: artifact %q is not a valid definition: %v", domain.ErrRegistryUnavailable, name, err)
	}
	if err := definition.Validate(); err != nil {
		return nil, fmt.Errorf("artifact %q: %w", name, err)
	}

	return &domain.SchemaDescriptor{
		Name:           name,
		Version:        version,
		Definition:     definition,
		DestinationURL: definition.DestinationURL,
	}, nil
}

func registryStatusError(name string, statusCode int) error {
	if statusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrSchemaNotFound, name)
	}
	return fmt.Errorf("%w: registry returned status %d for %s", domain.ErrRegistryUnavailable, statusCode, name)
}

func cacheKey(name string, version int) string {
	return fmt.Sprintf("%s@%d", name, version)
}
