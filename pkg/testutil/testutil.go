// Package testutil provides testing utilities for storepulse
package testutil

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The cancel function is registered with t.Cleanup.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// GzipTSV renders a tab-separated report file and gzips it.
func GzipTSV(t *testing.T, header []string, rows ...[]string) []byte {
	t.Helper()

	var plain strings.Builder
	plain.WriteString(strings.Join(header, "\t"))
	plain.WriteString("\n")
	for _, row := range rows {
		plain.WriteString(strings.Join(row, "\t"))
		plain.WriteString("\n")
	}
	return Gzip(t, []byte(plain.String()))
}

// Gzip compresses data.
func Gzip(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// ECPrivateKeyPEM generates a P-256 key encoded as PKCS#8 PEM, the format
// of App Store Connect API keys.
func ECPrivateKeyPEM(t *testing.T) []byte {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}
