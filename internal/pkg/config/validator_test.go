package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateIntRange(t *testing.T) {
	assert.NoError(t, ValidateIntRange(5, 1, 10))
	assert.NoError(t, ValidateIntRange(1, 1, 10))
	assert.NoError(t, ValidateIntRange(10, 1, 10))
	assert.Error(t, ValidateIntRange(0, 1, 10))
	assert.Error(t, ValidateIntRange(11, 1, 10))
	assert.Error(t, ValidateIntRange(5, 10, 1))
}

func TestValidatePositiveDuration(t *testing.T) {
	assert.NoError(t, ValidatePositiveDuration(time.Second))
	assert.Error(t, ValidatePositiveDuration(0))
	assert.Error(t, ValidatePositiveDuration(-time.Second))
}

func TestValidateDurationRange(t *testing.T) {
	assert.NoError(t, ValidateDurationRange(time.Minute, time.Second, time.Hour))
	assert.Error(t, ValidateDurationRange(time.Millisecond, time.Second, time.Hour))
	assert.Error(t, ValidateDurationRange(2*time.Hour, time.Second, time.Hour))
}

func TestValidateHTTPURL(t *testing.T) {
	assert.NoError(t, ValidateHTTPURL("https://example.com/feed.xml"))
	assert.NoError(t, ValidateHTTPURL("http://localhost:8080/rss"))
	assert.Error(t, ValidateHTTPURL(""))
	assert.Error(t, ValidateHTTPURL("ftp://example.com"))
	assert.Error(t, ValidateHTTPURL("https://"))
	assert.Error(t, ValidateHTTPURL("://bad"))
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "value")
	assert.Equal(t, "value", GetEnvString("TEST_STR", "default"))
	assert.Equal(t, "default", GetEnvString("TEST_STR_MISSING", "default"))

	t.Setenv("TEST_INT", "42")
	assert.Equal(t, 42, GetEnvInt("TEST_INT", 7))
	t.Setenv("TEST_INT_BAD", "abc")
	assert.Equal(t, 7, GetEnvInt("TEST_INT_BAD", 7))

	t.Setenv("TEST_BOOL", "true")
	assert.True(t, GetEnvBool("TEST_BOOL", false))
	t.Setenv("TEST_BOOL_BAD", "maybe")
	assert.True(t, GetEnvBool("TEST_BOOL_BAD", true))

	t.Setenv("TEST_DUR", "90s")
	assert.Equal(t, 90*time.Second, GetEnvDuration("TEST_DUR", time.Minute))
	t.Setenv("TEST_DUR_BAD", "soon")
	assert.Equal(t, time.Minute, GetEnvDuration("TEST_DUR_BAD", time.Minute))
}
