//go:build integration

// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"crypto/rand"
	"os"
	"testing"

	"github.com/LeeDigitalWorks/zapdav/pkg/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// GetEnv returns the environment variable or a default value
func GetEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// S3BackendConfig returns the object store used by integration tests. The
// default targets a local MinIO; point ZAPDAV_S3_* at an R2 bucket to run
// against Cloudflare.
func S3BackendConfig() types.BackendConfig {
	return types.BackendConfig{
		Type:      types.StorageTypeS3,
		Endpoint:  GetEnv("ZAPDAV_S3_ENDPOINT", "http://localhost:9000"),
		Bucket:    GetEnv("ZAPDAV_S3_BUCKET", "zapdav-test"),
		Region:    GetEnv("ZAPDAV_S3_REGION", "us-east-1"),
		AccessKey: GetEnv("ZAPDAV_S3_ACCESS_KEY", "minioadmin"),
		SecretKey: GetEnv("ZAPDAV_S3_SECRET_KEY", "minioadmin"),
		PathStyle: GetEnv("ZAPDAV_S3_PATH_STYLE", "true") == "true",
	}
}

// GenerateTestData creates random test data of the specified size
func GenerateTestData(t *testing.T, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err, "failed to generate random data")
	return data
}

// UniqueKey returns a key under prefix that no other test run uses
func UniqueKey(prefix string) string {
	return prefix + "/" + uuid.NewString()
}

// SkipIfShort skips the test if running in short mode
func SkipIfShort(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
}
