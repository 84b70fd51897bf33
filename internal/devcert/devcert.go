// Package devcert keeps the ASP.NET Core localhost development certificate
// usable: present, trusted, and protected by the password the AppHost reads
// from its user secrets.
package devcert

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/process"
)

// SecretKey is the user-secrets key holding the certificate password.
const SecretKey = "certificate-password"

// PasswordLength is the length of generated passwords.
const PasswordLength = 24

const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// DefaultPath returns ~/.aspnet/https/localhost.pfx.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to find home directory: %w", err)
	}
	return filepath.Join(home, ".aspnet", "https", "localhost.pfx"), nil
}

// Status is the result of Check.
type Status struct {
	Path           string `json:"path"`
	Exists         bool   `json:"exists"`
	PasswordStored bool   `json:"password_stored"`
	PasswordValid  bool   `json:"password_valid"`
	Trusted        bool   `json:"trusted"`
}

// OK is true when nothing needs fixing.
func (s Status) OK() bool {
	return s.Exists && s.PasswordStored && s.PasswordValid && s.Trusted
}

// Problem describes the first failed check.
func (s Status) Problem() string {
	switch {
	case !s.Exists:
		return "certificate file is missing"
	case !s.PasswordStored:
		return "certificate password is not stored in user secrets"
	case !s.PasswordValid:
		return "stored password does not open the certificate"
	case !s.Trusted:
		return "certificate is not trusted"
	}
	return ""
}

// Manager checks and recreates the certificate.
type Manager struct {
	Runner     process.Runner
	CertPath   string
	AppHostDir string
}

// Password reads the stored password from `dotnet user-secrets list`.
func (m *Manager) Password(ctx context.Context) (string, error) {
	res, err := m.Runner.Run(ctx, process.Command{
		Name: "dotnet",
		Args: []string{"user-secrets", "list", "--project", m.AppHostDir},
	})
	if err != nil {
		return "", fmt.Errorf("failed to read user secrets: %w", err)
	}
	return ParseSecret(res.Stdout, SecretKey), nil
}

// ParseSecret finds `key = value` in user-secrets list output.
func ParseSecret(output, key string) string {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		k, v, ok := strings.Cut(scanner.Text(), " = ")
		if ok && strings.TrimSpace(k) == key {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Check runs every check; later checks are skipped when an earlier one fails.
func (m *Manager) Check(ctx context.Context) (Status, error) {
	st := Status{Path: m.CertPath}
	if _, err := os.Stat(m.CertPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return st, fmt.Errorf("failed to stat %s: %w", m.CertPath, err)
	}
	st.Exists = true

	password, err := m.Password(ctx)
	if err != nil {
		return st, err
	}
	if password == "" {
		return st, nil
	}
	st.PasswordStored = true

	_, err = m.Runner.Run(ctx, process.Command{
		Name: "openssl",
		Args: []string{"pkcs12", "-in", m.CertPath, "-passin", "pass:" + password, "-noout"},
	})
	if err != nil {
		debug.Logf("openssl could not open %s: %v\n", m.CertPath, err)
		return st, nil
	}
	st.PasswordValid = true

	_, err = m.Runner.Run(ctx, process.Command{
		Name: "dotnet",
		Args: []string{"dev-certs", "https", "--check", "--trust"},
	})
	st.Trusted = err == nil
	return st, nil
}

// Create replaces the certificate with a new trusted one and stores its
// password.
func (m *Manager) Create(ctx context.Context) error {
	password, err := GeneratePassword(PasswordLength)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.CertPath), 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(m.CertPath), err)
	}
	if err := os.Remove(m.CertPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", m.CertPath, err)
	}

	steps := []process.Command{
		{Name: "dotnet", Args: []string{"dev-certs", "https", "--clean"}},
		{Name: "dotnet", Args: []string{"dev-certs", "https", "--trust", "-ep", m.CertPath, "-p", password}},
		{Name: "dotnet", Args: []string{"user-secrets", "set", SecretKey, password, "--project", m.AppHostDir}},
	}
	for _, step := range steps {
		if _, err := m.Runner.Run(ctx, step); err != nil {
			// keep the password out of the error
			return fmt.Errorf("%s %s failed: %w", step.Name, strings.Join(step.Args[:2], " "), redact(err, password))
		}
	}
	debug.LogEvent("DEVCERT_CREATED", "dev-cert", m.CertPath)
	return nil
}

// Ensure checks the certificate and recreates it when broken or force is
// set. The returned Status is from after any fix.
func (m *Manager) Ensure(ctx context.Context, force bool) (created bool, st Status, err error) {
	st, err = m.Check(ctx)
	if err != nil {
		return false, st, err
	}
	if st.OK() && !force {
		return false, st, nil
	}
	if err := m.Create(ctx); err != nil {
		return false, st, err
	}
	st, err = m.Check(ctx)
	return true, st, err
}

// GeneratePassword returns n characters from an unambiguous alphabet.
func GeneratePassword(n int) (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(passwordAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		b.WriteByte(passwordAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, secret string) error {
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, "***"), err: err}
}
