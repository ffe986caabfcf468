package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// AppName names the per-user data directory.
const AppName = "groupsync"

// Credential store kinds.
const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
)

// GoogleCredentials represents the structure of Google OAuth credentials JSON file.
type GoogleCredentials struct {
	Installed struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"installed"`
	Web struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"web"`
}

// LoadGoogleCredentials loads Google OAuth credentials from a JSON file.
func LoadGoogleCredentials(path string) (clientID, clientSecret string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds GoogleCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", "", fmt.Errorf("failed to parse credentials file: %w", err)
	}

	// Desktop apps use "installed", server apps "web".
	if creds.Installed.ClientID != "" {
		return creds.Installed.ClientID, creds.Installed.ClientSecret, nil
	}
	if creds.Web.ClientID != "" {
		return creds.Web.ClientID, creds.Web.ClientSecret, nil
	}

	return "", "", fmt.Errorf("no client_id found in credentials file (expected 'installed' or 'web' section)")
}

// Config holds the configuration for the study group sync tool.
type Config struct {
	GoogleCredentialsPath string `json:"google_credentials_path,omitempty" yaml:"google_credentials_path,omitempty"`
	DatabasePath          string `json:"database_path,omitempty" yaml:"database_path,omitempty"`
	CredentialStore       string `json:"credential_store,omitempty" yaml:"credential_store,omitempty"` // "sqlite" or "file"
	CredentialFile        string `json:"credential_file,omitempty" yaml:"credential_file,omitempty"`
	CalendarID            string `json:"calendar_id,omitempty" yaml:"calendar_id,omitempty"`
	TimeZone              string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	SendUpdates           string `json:"send_updates,omitempty" yaml:"send_updates,omitempty"` // "all", "externalOnly" or "none"

	// Reminder sweep
	ReminderSchedule    string `json:"reminder_schedule,omitempty" yaml:"reminder_schedule,omitempty"` // cron expression
	ReminderLeadMinutes int    `json:"reminder_lead_minutes,omitempty" yaml:"reminder_lead_minutes,omitempty"`

	MaxOccurrences int `json:"max_occurrences,omitempty" yaml:"max_occurrences,omitempty"`
}

// Location returns the configured time zone. LoadConfig has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ReminderLead returns the reminder lead time.
func (c *Config) ReminderLead() time.Duration {
	return time.Duration(c.ReminderLeadMinutes) * time.Minute
}

// LoadConfigFromFile loads configuration from a JSON file, or YAML when the
// extension is .yaml or .yml.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
// Returns an error if any value is missing or invalid.
func LoadConfig(configFile, googleCredentialsPathFlag, databasePathFlag, timeZoneFlag string) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if configFile != "" {
		fileConfig, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	stringEnv := map[string]*string{
		"GOOGLE_CREDENTIALS_PATH":     &config.GoogleCredentialsPath,
		"GROUPSYNC_DB_PATH":           &config.DatabasePath,
		"GROUPSYNC_CREDENTIAL_STORE":  &config.CredentialStore,
		"GROUPSYNC_CREDENTIAL_FILE":   &config.CredentialFile,
		"GROUPSYNC_CALENDAR_ID":       &config.CalendarID,
		"GROUPSYNC_TIMEZONE":          &config.TimeZone,
		"GROUPSYNC_SEND_UPDATES":      &config.SendUpdates,
		"GROUPSYNC_REMINDER_SCHEDULE": &config.ReminderSchedule,
	}
	for name, field := range stringEnv {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}

	intEnv := map[string]*int{
		"GROUPSYNC_REMINDER_LEAD_MINUTES": &config.ReminderLeadMinutes,
		"GROUPSYNC_MAX_OCCURRENCES":       &config.MaxOccurrences,
	}
	for name, field := range intEnv {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value: %w", name, err)
			}
			*field = n
		}
	}

	// Step 3: Override with command-line flags (highest priority)
	if googleCredentialsPathFlag != "" {
		config.GoogleCredentialsPath = googleCredentialsPathFlag
	}
	if databasePathFlag != "" {
		config.DatabasePath = databasePathFlag
	}
	if timeZoneFlag != "" {
		config.TimeZone = timeZoneFlag
	}

	// Step 4: Apply defaults and validate
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(xdg.DataHome, AppName, AppName+".db")
	}
	if c.CredentialFile == "" {
		c.CredentialFile = filepath.Join(xdg.DataHome, AppName, "credentials.json")
	}
	if c.CredentialStore == "" {
		c.CredentialStore = StoreSQLite
	}
	if c.CalendarID == "" {
		c.CalendarID = "primary"
	}
	if c.TimeZone == "" {
		c.TimeZone = "UTC"
	}
	if c.SendUpdates == "" {
		c.SendUpdates = "all"
	}
	if c.ReminderSchedule == "" {
		c.ReminderSchedule = "*/15 * * * *"
	}
	if c.ReminderLeadMinutes == 0 {
		c.ReminderLeadMinutes = 60
	}
	if c.MaxOccurrences == 0 {
		c.MaxOccurrences = 52
	}
}

func (c *Config) validate() error {
	if c.GoogleCredentialsPath == "" {
		return fmt.Errorf("google_credentials_path must be provided via --google-credentials-path flag, GOOGLE_CREDENTIALS_PATH environment variable, or config file")
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.TimeZone, err)
	}
	if c.CredentialStore != StoreSQLite && c.CredentialStore != StoreFile {
		return fmt.Errorf("credential_store must be '%s' or '%s', got '%s'", StoreSQLite, StoreFile, c.CredentialStore)
	}
	switch c.SendUpdates {
	case "all", "externalOnly", "none":
	default:
		return fmt.Errorf("send_updates must be 'all', 'externalOnly' or 'none', got '%s'", c.SendUpdates)
	}
	if c.ReminderLeadMinutes < 0 {
		return fmt.Errorf("reminder_lead_minutes must be positive, got %d", c.ReminderLeadMinutes)
	}
	if c.MaxOccurrences < 0 {
		return fmt.Errorf("max_occurrences must be positive, got %d", c.MaxOccurrences)
	}
	return nil
}
