package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env             string        `mapstructure:"ENV"`
	Port            string        `mapstructure:"PORT"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	AdminKey        string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed     string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	MaxUploadSizeMB int64         `mapstructure:"MAX_UPLOAD_MB"`

	// Classification oracle. An empty GROQ_API_KEY selects the deterministic
	// mock oracle, which keeps dev and CI off the network.
	GroqAPIKey       string `mapstructure:"GROQ_API_KEY"`
	GroqBaseURL      string `mapstructure:"GROQ_BASE_URL"`
	TextModel        string `mapstructure:"TEXT_MODEL"`
	VisionModel      string `mapstructure:"VISION_MODEL"`
	ClassifyAttempts int    `mapstructure:"CLASSIFY_ATTEMPTS"`

	// Geocoding.
	NominatimURL      string        `mapstructure:"NOMINATIM_URL"`
	NominatimUA       string        `mapstructure:"NOMINATIM_USER_AGENT"`
	NominatimInterval time.Duration `mapstructure:"NOMINATIM_INTERVAL"`
	GeoCachePath      string        `mapstructure:"GEO_CACHE_PATH"`

	// Routing.
	CountryDefault  string `mapstructure:"COUNTRY_DEFAULT"`
	FallbackOffices string `mapstructure:"FALLBACK_OFFICES"`
	// FairnessResetPerRun clears rotation counters and the fallback toggle at
	// the start of every batch instead of carrying them across runs.
	FairnessResetPerRun bool `mapstructure:"FAIRNESS_RESET_PER_RUN"`

	AttachmentDir string `mapstructure:"ATTACHMENT_DIR"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("MAX_UPLOAD_MB", 20)

	v.SetDefault("GROQ_BASE_URL", "https://api.groq.com/openai/v1")
	v.SetDefault("TEXT_MODEL", "llama-3.3-70b-versatile")
	v.SetDefault("VISION_MODEL", "meta-llama/llama-4-scout-17b-16e-instruct")
	v.SetDefault("CLASSIFY_ATTEMPTS", 3)

	v.SetDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org")
	v.SetDefault("NOMINATIM_USER_AGENT", "fire-routing/1.0")
	v.SetDefault("NOMINATIM_INTERVAL", "1s")
	v.SetDefault("GEO_CACHE_PATH", "units_coords_cache.json")

	v.SetDefault("COUNTRY_DEFAULT", "Казахстан")
	v.SetDefault("FALLBACK_OFFICES", "ASTANA,ALMATY")
	v.SetDefault("FAIRNESS_RESET_PER_RUN", false)
	v.SetDefault("ATTACHMENT_DIR", "attachments")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Fallbacks splits FALLBACK_OFFICES into the two-office rotation pair.
func (c Config) Fallbacks() [2]string {
	pair := [2]string{"ASTANA", "ALMATY"}
	parts := strings.Split(c.FallbackOffices, ",")
	for i := 0; i < len(parts) && i < 2; i++ {
		if p := strings.ToUpper(strings.TrimSpace(parts[i])); p != "" {
			pair[i] = p
		}
	}
	return pair
}
