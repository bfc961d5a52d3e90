// Package secrets resolves the Google service account credentials, either
// straight from the environment or from AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"db_sheets_sync/internal/config"
	"db_sheets_sync/internal/retry"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
)

const (
	resourceNotFoundException = "ResourceNotFoundException"
	accessDeniedException     = "AccessDeniedException"
)

var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrSecretEmpty    = errors.New("secret value is empty")
	ErrAccessDenied   = errors.New("access denied to secret")
	ErrNoCredentials  = errors.New("no credentials configured")
	ErrNotJSON        = errors.New("credentials are not valid JSON")
)

// Provider fetches a secret by id. The scope narrows where the secret lives;
// for AWS it is the region.
type Provider interface {
	Get(ctx context.Context, id, scope string) (string, error)
}

// ManagerAPI is the subset of the Secrets Manager client used here.
type ManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

type AWSProvider struct {
	api ManagerAPI
}

// NewAWSProvider builds a provider from the default AWS credential chain.
func NewAWSProvider(ctx context.Context) (*AWSProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &AWSProvider{api: secretsmanager.NewFromConfig(cfg)}, nil
}

func NewAWSProviderWithAPI(api ManagerAPI) *AWSProvider {
	return &AWSProvider{api: api}
}

func (p *AWSProvider) Get(ctx context.Context, id, scope string) (string, error) {
	if id == "" {
		return "", errors.New("secret id cannot be empty")
	}

	log.Debug().Str("secret_id", id).Str("scope", scope).Msg("Fetching secret")

	out, err := p.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	}, func(o *secretsmanager.Options) {
		if scope != "" {
			o.Region = scope
		}
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case resourceNotFoundException:
				return "", ErrSecretNotFound
			case accessDeniedException:
				return "", ErrAccessDenied
			}
		}
		return "", fmt.Errorf("failed to fetch secret: %w", err)
	}

	switch {
	case out.SecretString != nil && *out.SecretString != "":
		return *out.SecretString, nil
	case len(out.SecretBinary) > 0:
		return string(out.SecretBinary), nil
	default:
		return "", ErrSecretEmpty
	}
}

// ResolveCredentials returns the credentials JSON. The environment value is
// used when present; the provider is only consulted otherwise.
func ResolveCredentials(ctx context.Context, creds config.CredentialsConfig, provider Provider, policy retry.Config) ([]byte, error) {
	if creds.JSON != "" {
		log.Debug().Msg("Using credentials from environment")
		return validJSON([]byte(creds.JSON))
	}
	if creds.SecretID == "" {
		return nil, ErrNoCredentials
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: no secret provider", ErrNoCredentials)
	}

	policy.Retryable = isRetryable
	value, err := retry.WithRetry(ctx, policy, func(ctx context.Context) (string, error) {
		return provider.Get(ctx, creds.SecretID, creds.SecretScope)
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("secret_id", creds.SecretID).Msg("Using credentials from secret manager")
	return validJSON([]byte(value))
}

func isRetryable(err error) bool {
	return !errors.Is(err, ErrSecretNotFound) &&
		!errors.Is(err, ErrAccessDenied) &&
		!errors.Is(err, ErrSecretEmpty)
}

func validJSON(b []byte) ([]byte, error) {
	if !json.Valid(b) {
		return nil, ErrNotJSON
	}
	return b, nil
}
