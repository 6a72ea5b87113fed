package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Credentials holds static AWS credentials for the S3 storage backend.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// LoadFromPasswdFile loads credentials from a passwd file in format ACCESS_KEY:SECRET_KEY
func (c *Credentials) LoadFromPasswdFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read passwd file: %w", err)
	}

	access, secret, ok := strings.Cut(strings.TrimSpace(string(data)), ":")
	if !ok || strings.Contains(secret, ":") {
		return errors.New("invalid passwd file format, expected ACCESS_KEY:SECRET_KEY")
	}

	c.AccessKeyID = strings.TrimSpace(access)
	c.SecretAccessKey = strings.TrimSpace(secret)
	return nil
}

// LoadFromEnvironment loads credentials from the standard AWS variables
func (c *Credentials) LoadFromEnvironment() error {
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if accessKey == "" || secretKey == "" {
		return errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
	}

	c.AccessKeyID = accessKey
	c.SecretAccessKey = secretKey
	c.SessionToken = os.Getenv("AWS_SESSION_TOKEN")
	return nil
}

// IsValid reports whether both the access key and the secret are set
func (c *Credentials) IsValid() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// ResolveCredentials reads the passwd file when one is given, otherwise the
// environment. Empty credentials are not an error: the S3 backend then falls
// back to the default AWS chain.
func ResolveCredentials(passwdFile string) (*Credentials, error) {
	creds := &Credentials{}
	if passwdFile != "" {
		if err := creds.LoadFromPasswdFile(passwdFile); err != nil {
			return nil, err
		}
		return creds, nil
	}
	if err := creds.LoadFromEnvironment(); err != nil {
		return &Credentials{}, nil
	}
	return creds, nil
}
