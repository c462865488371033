package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *AppConfig {
	cfg := new(AppConfig)
	cfg.AppID = "course-progress"
	cfg.Env = EnvDevelopment
	cfg.Database.Driver = "postgres"
	cfg.Database.Host = "127.0.0.1"
	cfg.Database.MaxConn = 10
	cfg.Database.Password = "secret"
	cfg.Database.Schema = "lms"
	cfg.Database.User = "lms"
	cfg.Logging.Level = "info"
	cfg.Security.IDLength = 24
	cfg.Security.JWTMethod = "HS256"
	cfg.Security.JWTSecret = "jwt-secret"
	cfg.Security.TokenName = "token"
	cfg.KVStore.Password = "redis"
	cfg.Progress.NearEndRatio = 0.98
	cfg.Progress.SampleInterval = 10
	cfg.Progress.EndWindow = time.Second
	cfg.Certificate.CodeLength = 20
	cfg.Certificate.IssuerURL = "http://renderer.internal"
	cfg.Certificate.SweepSchedule = "@every 5m"
	cfg.Certificate.SweepBatch = 100
	return cfg
}

func TestValidateConfig_Valid(t *testing.T) {
	require.NoError(t, validateConfig(validConfig()))
}

func TestValidateConfig_ReportsEveryViolation(t *testing.T) {
	cfg := validConfig()
	cfg.AppID = ""
	cfg.Database.Driver = "sqlite"
	cfg.Progress.NearEndRatio = 1.5

	err := validateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app_id is required")
	assert.Contains(t, err.Error(), "database.driver must be one of (postgres mysql)")
	assert.Contains(t, err.Error(), "progress.near_end_ratio failed on 'lte=1'")
}

func TestValidateConfig_ShortVerificationCodeRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Certificate.CodeLength = 8

	err := validateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "certificate.code_length")
}

func TestValidateConfig_AsymmetricJWTMethodRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Security.JWTMethod = "ES256"

	err := validateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "security.jwt_method must be one of (HS256 HS512)")
}
