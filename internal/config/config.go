package conf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the on-disk app configuration. Integration sections are kept
// raw; each integration unmarshals its own.
type Config struct {
	AutoStart bool   `json:"auto_start"`
	DBDriver  string `json:"db_driver,omitempty"` // sqlite (default), mysql, postgres
	DBDSN     string `json:"db_dsn,omitempty"`

	// VK application credentials for the one-shot OAuth code exchange.
	VkClientID     string `json:"vk_client_id,omitempty"`
	VkClientSecret string `json:"vk_client_secret,omitempty"`
	VkRedirectURI  string `json:"vk_redirect_uri,omitempty"`

	Integrations map[string]json.RawMessage `json:"integrations"`
}

// VkCmlDefaults mirrors the vkcml integration config for the default file.
type VkCmlDefaults struct {
	CmlURL             string `json:"cml_url"`
	CmlLogin           string `json:"cml_login"`
	CmlPassword        string `json:"cml_password"`
	VkToken            string `json:"vk_token"`
	VkGroupID          int64  `json:"vk_group_id"`
	WithDisabled       bool   `json:"with_disabled"`
	WithPhotos         bool   `json:"with_photos"`
	SkipMultipleGroup  bool   `json:"skip_multiple_group"`
	MakeCategoryReport bool   `json:"make_category_report"`
	ReportDir          string `json:"report_dir,omitempty"`
	DebugDir           string `json:"debug_dir,omitempty"`
	PollMin            int    `json:"poll_min"`
}

func LoadOrCreate(path string) (*Config, bool, error) {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			vkcml := VkCmlDefaults{
				CmlURL:             "https://example.com/bitrix/admin/1c_exchange.php",
				CmlLogin:           "login",
				CmlPassword:        "password",
				VkGroupID:          0,
				WithPhotos:         true,
				MakeCategoryReport: true,
				PollMin:            60,
			}
			rawVkCml, _ := json.Marshal(vkcml)

			cfg := &Config{
				AutoStart: false,
				Integrations: map[string]json.RawMessage{
					"vkcml": rawVkCml,
				},
			}
			if err := Save(path, cfg); err != nil {
				return nil, false, fmt.Errorf("writing default config: %w", err)
			}
			return cfg, true, nil
		}
		return nil, false, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, false, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Integrations == nil {
		cfg.Integrations = map[string]json.RawMessage{}
	}
	return &cfg, false, nil
}

func Save(path string, cfg *Config) error {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

// UnmarshalIntegration reads one integration section into v.
func (c *Config) UnmarshalIntegration(name string, v any) error {
	raw, ok := c.Integrations[name]
	if !ok {
		return fmt.Errorf("no integration %q in config", name)
	}
	return json.Unmarshal(raw, v)
}
