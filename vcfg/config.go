// Package vcfg provides the JSON configuration struct for vcore's
// drivers, following the teacher's cmd/config.go idiom: a single struct
// deserialized with encoding/json, no defaults applied, with a
// ConfigDuration helper type so humans write "1h" instead of nanoseconds.
package vcfg

import (
	"encoding/json"
	"errors"
	"os"
	"time"
)

// Config stores every configuration parameter the vcore drivers need. As
// in the teacher's config, no defaults are applied here; callers that need
// one supply it after Load returns.
type Config struct {
	TrustAnchorFile string
	RootCAFile      string

	DBConnect ConfigSecret

	OCSP struct {
		Enabled                 bool
		DefaultResponderURI     string
		DefaultResponderEnabled bool
	}

	CRL struct {
		Enabled bool
	}

	ComplianceMode bool

	CacheMinValid     ConfigDuration
	CacheMaxValid     ConfigDuration
	CacheRefreshShift ConfigDuration

	Syslog SyslogConfig
	Stats  StatsConfig
}

// SyslogConfig defines the config for syslogging, mirroring the teacher's
// SyslogConfig shape.
type SyslogConfig struct {
	Network string
	Server  string
}

// StatsConfig defines the config for the Prometheus metrics listener.
type StatsConfig struct {
	ListenAddress string
}

// ConfigDuration is an alias for time.Duration that deserializes from a
// human string ("1h", "90s") instead of a raw integer.
type ConfigDuration struct {
	time.Duration
}

// ErrDurationMustBeString is returned when a non-string value is presented
// to be deserialized as a ConfigDuration.
var ErrDurationMustBeString = errors.New("cannot JSON unmarshal something other than a string into a ConfigDuration")

// UnmarshalJSON parses a string into a ConfigDuration using
// time.ParseDuration.
func (d *ConfigDuration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return ErrDurationMustBeString
		}
		return err
	}
	dur, err := time.ParseDuration(s)
	d.Duration = dur
	return err
}

// MarshalJSON returns the string form of the duration.
func (d ConfigDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// ConfigSecret is a string field whose value may be given directly or
// loaded from a file path (for secrets kept out of the config file
// itself), matching the teacher's ConfigSecret convention.
type ConfigSecret struct {
	value string
}

// UnmarshalJSON accepts either a literal string or an object
// {"file": "path"} whose contents become the value.
func (s *ConfigSecret) UnmarshalJSON(b []byte) error {
	var literal string
	if err := json.Unmarshal(b, &literal); err == nil {
		s.value = literal
		return nil
	}

	var indirect struct {
		File string `json:"file"`
	}
	if err := json.Unmarshal(b, &indirect); err != nil {
		return err
	}
	contents, err := os.ReadFile(indirect.File)
	if err != nil {
		return err
	}
	s.value = string(contents)
	return nil
}

// String returns the resolved secret value.
func (s ConfigSecret) String() string {
	return s.value
}

// Load reads and parses a JSON config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// OCSPDefaultResponderURI resolves the configured default responder,
// honoring the legacy OCSP_DEFAULT_RESPONDER_URI environment variable as a
// compatibility bridge when the config field is unset.
func (c *Config) OCSPDefaultResponderURI() (string, bool) {
	if c.OCSP.DefaultResponderEnabled && c.OCSP.DefaultResponderURI != "" {
		return c.OCSP.DefaultResponderURI, true
	}
	if uri := os.Getenv("OCSP_DEFAULT_RESPONDER_URI"); uri != "" {
		return uri, true
	}
	return "", false
}
