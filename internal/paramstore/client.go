package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the part of *ssm.Client used here.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter reads one decrypted parameter value.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type Client struct {
	api    ssmAPI
	prefix string
}

// New creates a Client. Relative parameter names are resolved under prefix.
func New(api ssmAPI, prefix string) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api, prefix: strings.TrimRight(prefix, "/")}, nil
}

func (c *Client) path(name string) string {
	if strings.HasPrefix(name, "/") || c.prefix == "" {
		return name
	}
	return c.prefix + "/" + name
}

func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}
	name = c.path(name)

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// Resolve fills every non-nil target whose value is empty from the parameter
// of the same key. Parameters that do not resolve leave the target unchanged.
func Resolve(ctx context.Context, g Getter, targets map[string]*string) error {
	var errs []error
	for name, target := range targets {
		if target == nil || *target != "" {
			continue
		}
		v, err := g.GetParameter(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*target = v
	}
	return errors.Join(errs...)
}

// CachedValue returns a function that reads name once and reuses the value
// for ttl. A zero ttl caches forever.
func CachedValue(g Getter, name string, ttl time.Duration) func(ctx context.Context) (string, error) {
	var (
		mu      sync.Mutex
		value   string
		fetched time.Time
	)
	return func(ctx context.Context) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if value != "" && (ttl == 0 || time.Since(fetched) < ttl) {
			return value, nil
		}
		v, err := g.GetParameter(ctx, name)
		if err != nil {
			return "", err
		}
		value, fetched = v, time.Now()
		return value, nil
	}
}
