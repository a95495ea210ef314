package crypto

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// Sealer protects small values (requester addresses) written to the usage ledger.
type Sealer interface {
	Seal(ctx context.Context, plaintext string) (string, error)
	Open(ctx context.Context, sealed string) (string, error)
}

// KMSAPI is the subset of *kms.Client methods used by KMSSealer.
type KMSAPI interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// purpose binds ciphertexts to this use through the KMS encryption context,
// so a sealed origin cannot be decrypted as anything else.
const purpose = "usage-origin"

// KMSSealer implements Sealer with AWS KMS.
type KMSSealer struct {
	client KMSAPI
	keyID  string
}

// NewKMSSealer creates a KMSSealer. keyID can be a key ID, ARN, or alias
// (e.g. "alias/vidshare-ledger").
func NewKMSSealer(client KMSAPI, keyID string) *KMSSealer {
	return &KMSSealer{client: client, keyID: keyID}
}

// Seal encrypts plaintext and returns base64 ciphertext. Empty input stays empty.
func (s *KMSSealer) Seal(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	out, err := s.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(s.keyID),
		Plaintext:         []byte(plaintext),
		EncryptionContext: map[string]string{"purpose": purpose},
	})
	if err != nil {
		return "", fmt.Errorf("failed to seal value: %w", err)
	}
	return base64.StdEncoding.EncodeToString(out.CiphertextBlob), nil
}

// Open decrypts a value produced by Seal.
func (s *KMSSealer) Open(ctx context.Context, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	blob, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}
	out, err := s.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob:    blob,
		KeyId:             aws.String(s.keyID),
		EncryptionContext: map[string]string{"purpose": purpose},
	})
	if err != nil {
		return "", fmt.Errorf("failed to open sealed value: %w", err)
	}
	return string(out.Plaintext), nil
}
