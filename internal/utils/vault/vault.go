package vault

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const defaultTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// Config locates the KV secret holding the daemon's signing keys.
type Config struct {
	Addr   string
	KVPath string
	Role   string
	// service account token, defaults to the in-cluster path
	TokenPath string
}

// Client reads secrets from Vault after a Kubernetes login.
type Client struct {
	cfg    Config
	client *resty.Client
	token  string
}

// New logs in to Vault with the pod's service account token.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.TokenPath == "" {
		cfg.TokenPath = defaultTokenPath
	}

	vc := &Client{
		cfg: cfg,
		client: resty.New().
			SetBaseURL(strings.TrimRight(cfg.Addr, "/")).
			SetTimeout(10*time.Second).
			SetHeader("Content-Type", "application/json"),
	}

	token, err := vc.login(ctx)
	if err != nil {
		return nil, err
	}
	vc.token = token
	return vc, nil
}

func (vc *Client) login(ctx context.Context) (string, error) {
	jwt, err := os.ReadFile(vc.cfg.TokenPath)
	if err != nil {
		return "", errors.Wrap(err, "read service account token")
	}

	var result struct {
		Errors []string `json:"errors"`
		Auth   *struct {
			ClientToken string `json:"client_token"`
		} `json:"auth"`
	}
	resp, err := vc.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"jwt":  strings.TrimSpace(string(jwt)),
			"role": vc.cfg.Role,
		}).
		SetResult(&result).
		SetError(&result).
		Post("/v1/auth/kubernetes/login")
	if err != nil {
		return "", errors.Wrap(err, "vault login")
	}
	if resp.IsError() {
		return "", fmt.Errorf("vault authentication failed with status %d: %v", resp.StatusCode(), result.Errors)
	}
	if result.Auth == nil || result.Auth.ClientToken == "" {
		return "", errors.New("vault returned empty client_token")
	}
	return result.Auth.ClientToken, nil
}

// GetKV returns one key of the configured KV v2 secret.
func (vc *Client) GetKV(ctx context.Context, secretKey string) (string, error) {
	var result struct {
		Errors []string `json:"errors"`
		Data   *struct {
			Data map[string]interface{} `json:"data"`
		} `json:"data"`
	}
	resp, err := vc.client.R().
		SetContext(ctx).
		SetHeader("X-Vault-Token", vc.token).
		SetResult(&result).
		SetError(&result).
		Get("/v1/" + strings.TrimLeft(vc.cfg.KVPath, "/"))
	if err != nil {
		return "", errors.Wrap(err, "vault kv get")
	}
	if resp.IsError() {
		return "", fmt.Errorf("vault KV get failed with status %d: %v", resp.StatusCode(), result.Errors)
	}
	if result.Data == nil || result.Data.Data == nil {
		return "", errors.New("vault response missing nested 'data' field")
	}

	value, ok := result.Data.Data[secretKey]
	if !ok {
		return "", fmt.Errorf("secret key '%s' not found", secretKey)
	}
	secret, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("secret value for key '%s' is not a string", secretKey)
	}
	return secret, nil
}
