package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_CONFIG_KEY", "value")
	assert.Equal(t, "value", envOrDefault("TEST_CONFIG_KEY", "fallback"))
	assert.Equal(t, "fallback", envOrDefault("TEST_CONFIG_MISSING", "fallback"))
}

func TestLoadReadsUploadCapsFromEnv(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("UPLOAD_MAX_FILE_SIZE", "1048576")
	t.Setenv("UPLOAD_MAX_CERTIFICATES", "10")

	cfg := Load()
	assert.EqualValues(t, 1048576, cfg.MaxFileSize)
	assert.Equal(t, 10, cfg.MaxCertificates)
}

func TestLoadUploadCapDefaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("UPLOAD_MAX_FILE_SIZE", "")
	t.Setenv("UPLOAD_MAX_CERTIFICATES", "")

	cfg := Load()
	assert.EqualValues(t, 5<<20, cfg.MaxFileSize)
	assert.Equal(t, 50, cfg.MaxCertificates)

	// 不正な値は既定値のまま
	t.Setenv("UPLOAD_MAX_FILE_SIZE", "huge")
	t.Setenv("UPLOAD_MAX_CERTIFICATES", "-3")
	cfg = Load()
	assert.EqualValues(t, 5<<20, cfg.MaxFileSize)
	assert.Equal(t, 50, cfg.MaxCertificates)
}

func TestParseList(t *testing.T) {
	t.Setenv("TEST_CONFIG_LIST", " admin , admissions ,, ")
	assert.Equal(t, []string{"admin", "admissions"}, parseList("TEST_CONFIG_LIST", nil))

	assert.Equal(t, []string{"*"}, parseList("TEST_CONFIG_LIST_MISSING", []string{"*"}))

	t.Setenv("TEST_CONFIG_LIST_BLANK", " , ")
	assert.Equal(t, []string{"*"}, parseList("TEST_CONFIG_LIST_BLANK", []string{"*"}))
}
