// Package secret resolves the service's secrets at startup from SSM Parameter
// Store, or from the environment in development.
package secret

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMClient is the subset of *ssm.Client methods used by SSMResolver.
type SSMClient interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// Resolver looks up secrets by parameter name. Every requested name must be
// present in the result, or Resolve fails.
type Resolver interface {
	Resolve(ctx context.Context, names ...string) (map[string]string, error)
}

// ssmBatchLimit is the most names one GetParameters call accepts.
const ssmBatchLimit = 10

// SSMResolver fetches SecureString parameters from Parameter Store.
type SSMResolver struct {
	client SSMClient
}

// NewSSMResolver returns a Resolver backed by SSM Parameter Store.
func NewSSMResolver(client SSMClient) *SSMResolver {
	return &SSMResolver{client: client}
}

func (r *SSMResolver) Resolve(ctx context.Context, names ...string) (map[string]string, error) {
	values := make(map[string]string, len(names))
	for batch := range slices.Chunk(names, ssmBatchLimit) {
		out, err := r.client.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          batch,
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("ssm get parameters %v: %w", batch, err)
		}
		if len(out.InvalidParameters) > 0 {
			return nil, fmt.Errorf("ssm parameters not found: %s", strings.Join(out.InvalidParameters, ", "))
		}
		for _, p := range out.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			values[*p.Name] = *p.Value
		}
	}
	return values, checkComplete(values, names)
}

// EnvResolver reads secrets from environment variables. A parameter path such
// as "/vidshare/jwt-secret" maps to JWT_SECRET.
type EnvResolver struct {
	lookup func(string) (string, bool)
}

// NewEnvResolver returns a Resolver over the process environment.
func NewEnvResolver() *EnvResolver {
	return &EnvResolver{lookup: os.LookupEnv}
}

func (r *EnvResolver) Resolve(_ context.Context, names ...string) (map[string]string, error) {
	values := make(map[string]string, len(names))
	for _, name := range names {
		if v, ok := r.lookup(EnvName(name)); ok && v != "" {
			values[name] = v
		}
	}
	return values, checkComplete(values, names)
}

// EnvName converts an SSM parameter name to an environment variable name.
// "/vidshare/admin-password-hash" -> "ADMIN_PASSWORD_HASH"
func EnvName(name string) string {
	last := name[strings.LastIndex(name, "/")+1:]
	return strings.ToUpper(strings.ReplaceAll(last, "-", "_"))
}

func checkComplete(values map[string]string, names []string) error {
	var missing []string
	for _, name := range names {
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("secrets not set: %s", strings.Join(missing, ", "))
	}
	return nil
}
