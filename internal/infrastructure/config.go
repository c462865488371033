package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix env prefix for viper
const EnvPrefix = "GOAPP"

// runtime environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// AppConfig App option object
type AppConfig struct {
	AppID          string        `mapstructure:"app_id" json:"app_id" yaml:"app_id" validate:"required"`            // Application ID
	Host           string        `mapstructure:"host" json:"host" yaml:"host"`                                      // bind host address
	Port           int           `mapstructure:"port" json:"port" yaml:"port"`                                      // bind listen port
	Env            string        `mapstructure:"env" json:"env" yaml:"env" validate:"oneof=development production"` // runtime environment
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout" yaml:"request_timeout"`
	Database       struct {
		Driver   string `mapstructure:"driver" json:"driver" yaml:"driver" validate:"oneof=postgres mysql"`          // driver name
		Host     string `mapstructure:"host" json:"host" yaml:"host" validate:"required"`                            // server host
		MaxConn  int32  `mapstructure:"maxconn" json:"maxconn" yaml:"maxconn" validate:"min=1"`                      // maximum opening connections number
		Password string `mapstructure:"password" json:"-" yaml:"password" validate:"required"`                       // db password
		Port     int    `mapstructure:"port" json:"port" yaml:"port"`                                                // server port
		Protocol string `mapstructure:"protocol" json:"protocol" yaml:"protocol" validate:"omitempty,oneof=tcp udp"` // connection protocol, eg.tcp
		Query    string `mapstructure:"query" json:"query" yaml:"query"`                                             // DSN query parameter
		Schema   string `mapstructure:"schema" json:"schema" yaml:"schema" validate:"required"`                      // use schema
		User     string `mapstructure:"username" json:"username" yaml:"username" validate:"required"`                // db username
	} `mapstructure:"database" json:"database" yaml:"database"`
	Logging struct {
		FilePath string `mapstructure:"file_path" json:"file_path" yaml:"file_path"`                            // log file path
		Level    string `mapstructure:"level" json:"level" yaml:"level" validate:"oneof=debug info warn error"` // global logging level
	} `mapstructure:"logging" json:"logging" yaml:"logging"`
	Security struct {
		IDLength  int    `mapstructure:"id_length" json:"id_length" yaml:"id_length" validate:"min=12"` // length of generated ID for entities
		JWTMethod string `mapstructure:"jwt_method" json:"jwt_method" yaml:"jwt_method" validate:"oneof=HS256 HS512"` // HMAC algorithms
		JWTSecret string `mapstructure:"jwt_secret" json:"-" yaml:"jwt_secret" validate:"required"`
		TokenName string `mapstructure:"token_name" json:"token_name" yaml:"token_name" validate:"required"` // jwt token name set in cookie
	} `mapstructure:"security" json:"security" yaml:"security"`
	KVStore struct {
		Host     string `mapstructure:"host" json:"host" yaml:"host"`                             // bind host address
		Port     int    `mapstructure:"port" json:"port" yaml:"port"`                             // bind listen port
		Password string `mapstructure:"password" json:"-" yaml:"password" validate:"required"` // password for security reasons
	} `mapstructure:"kv" json:"kv" yaml:"kv"`
	Progress struct {
		NearEndRatio   float64       `mapstructure:"near_end_ratio" json:"near_end_ratio" yaml:"near_end_ratio" validate:"gt=0,lte=1"`     // fraction of the video counted as watched
		SampleInterval int           `mapstructure:"sample_interval" json:"sample_interval" yaml:"sample_interval" validate:"min=1"`      // playback sampling period in seconds
		EndWindow      time.Duration `mapstructure:"end_window" json:"end_window" yaml:"end_window"`                                      // always report inside this window before the end
	} `mapstructure:"progress" json:"progress" yaml:"progress"`
	Certificate struct {
		CodeLength    int           `mapstructure:"code_length" json:"code_length" yaml:"code_length" validate:"min=16"` // verification code length
		IssuerURL     string        `mapstructure:"issuer_url" json:"issuer_url" yaml:"issuer_url" validate:"required,url"`
		IssuerTimeout time.Duration `mapstructure:"issuer_timeout" json:"issuer_timeout" yaml:"issuer_timeout"`
		RenderTimeout time.Duration `mapstructure:"render_timeout" json:"render_timeout" yaml:"render_timeout"` // bound of one background rendering incl. retries
		SweepSchedule string        `mapstructure:"sweep_schedule" json:"sweep_schedule" yaml:"sweep_schedule" validate:"required"` // cron schedule of the artifact retry job
		SweepBatch    int           `mapstructure:"sweep_batch" json:"sweep_batch" yaml:"sweep_batch" validate:"min=1"`
	} `mapstructure:"certificate" json:"certificate" yaml:"certificate"`
	Catalog struct {
		CacheTTL time.Duration `mapstructure:"cache_ttl" json:"cache_ttl" yaml:"cache_ttl"`
	} `mapstructure:"catalog" json:"catalog" yaml:"catalog"`
	DevOP struct {
		APM bool `mapstructure:"apm" json:"apm" yaml:"apm"`
	} `mapstructure:"devop" json:"devop" yaml:"devop"`
}

// InitConfig init app config using viper
func InitConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// app
	pflag.String("host", "", "binding address")
	pflag.String("app_id", "", "application identifier (required)")
	pflag.String("env", EnvDevelopment, "runtime environment, can be 'development' or 'production'")
	pflag.Int("port", 8081, "listening port")
	pflag.Duration("request_timeout", 30*time.Second, "request handling timeout")

	// database
	pflag.String("database.driver", "postgres", "database driver to use, 'postgres' or 'mysql'")
	pflag.String("database.host", "127.0.0.1", "database host")
	pflag.Int("database.port", 5432, "database server port")
	pflag.String("database.protocol", "", "connection protocol(if mysql is used, this flag must be set), eg.tcp")
	pflag.String("database.username", "", "database username (required)")
	pflag.String("database.password", "", "database password (required)")
	pflag.String("database.schema", "", "database schema (required)")
	pflag.String("database.query", "", `additional DSN query parameters('?' is auto prefixed), if you work with mysql and wish to
work with time.Time, you may specify "parseTime=true"`)
	pflag.Int32("database.maxconn", 50, `max connection count, if you encounter a "too many connections" error, please consider
increasing the max_connection value of your db server, or lower this value`)

	// logging
	pflag.String("logging.level", "info", "logging level")
	pflag.String("logging.file_path", "", "log to file")

	// security
	pflag.Int("security.id_length", 24, "set length of generated ID for entities")
	pflag.String("security.jwt_method", "HS256", "HMAC algorithm used for JWT auth, 'HS256' or 'HS512'")
	pflag.String("security.jwt_secret", "", "JWT secret shared with the auth service (required)")
	pflag.String("security.token_name", "", "cookie name to read the token from (required)")

	// kv storage
	pflag.String("kv.host", "127.0.0.1", "kv host")
	pflag.Int("kv.port", 6379, "kv server port")
	pflag.String("kv.password", "", "kv server password (required)")

	// progress
	pflag.Float64("progress.near_end_ratio", 0.98, "position/duration ratio at which a video lesson counts as completed")
	pflag.Int("progress.sample_interval", 10, "playback sampling interval in seconds")
	pflag.Duration("progress.end_window", time.Second, "playback positions this close to the end are always reported")

	// certificate
	pflag.Int("certificate.code_length", 20, "length of certificate verification codes")
	pflag.String("certificate.issuer_url", "", "base URL of the certificate rendering service (required)")
	pflag.Duration("certificate.issuer_timeout", 10*time.Second, "certificate rendering request timeout")
	pflag.Duration("certificate.render_timeout", time.Minute, "total time allowed for rendering one certificate in the background")
	pflag.String("certificate.sweep_schedule", "@every 5m", "cron schedule for retrying missing certificates and artifacts")
	pflag.Int("certificate.sweep_batch", 100, "maximum rows handled per sweep")

	// catalog
	pflag.Duration("catalog.cache_ttl", 10*time.Minute, "course structure cache lifetime")

	// DevOp
	pflag.Bool("devop.apm", false, "enable apm metrics")

	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config = new(AppConfig)
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if config.Logging.Level == "debug" {
		if configJSON, err := json.MarshalIndent(config, "", "  "); err == nil {
			log.Printf("App config: %s\n", string(configJSON))
		}
	}
	return config, nil
}

func validateConfig(config *AppConfig) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("mapstructure")
		if name == "-" || name == "" {
			name = fld.Tag.Get("yaml")
			if name == "-" || name == "" {
				return ""
			}
		}
		return name
	})
	err := validate.Struct(config)
	if _, ok := err.(*validator.InvalidValidationError); ok {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	if err == nil {
		return nil
	}

	var msg []string
	for _, field := range err.(validator.ValidationErrors) {
		namespace := field.Namespace()
		fieldName := namespace[strings.IndexByte(namespace, '.')+1:] // trim top level namespace
		switch field.Tag() {
		case "required":
			msg = append(msg, fmt.Sprintf("%s is required", fieldName))
		case "oneof":
			msg = append(msg, fmt.Sprintf("%s must be one of (%s)", fieldName, field.Param()))
		default:
			msg = append(msg, fmt.Sprintf("%s failed on '%s=%s'", fieldName, field.Tag(), field.Param()))
		}
	}
	return fmt.Errorf("failed to validate config: \n%s", strings.Join(msg, "\n"))
}
