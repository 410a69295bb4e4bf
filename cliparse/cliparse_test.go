// cliparse/cliparse_test.go
package cliparse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(prev) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 3318 {
		t.Errorf("expected port 3318, got %d", cfg.Server.Port)
	}
	if cfg.Entries.RowsPerPage != 10 {
		t.Errorf("expected 10 rows per page, got %d", cfg.Entries.RowsPerPage)
	}
	if cfg.Votes.MaxActivePerUser != 1000 {
		t.Errorf("expected vote cap 1000, got %d", cfg.Votes.MaxActivePerUser)
	}
	if cfg.Notify.Throttle != 5*time.Second {
		t.Errorf("expected 5s throttle, got %s", cfg.Notify.Throttle)
	}
	if got := strings.Join(cfg.Entries.DescriptionFields, ","); got != "pretty_formula,spacegroup.symbol" {
		t.Errorf("unexpected description fields %q", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if err := cfg.ValidateServe(); err == nil {
		t.Error("serve requires an auth secret")
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "custom.yaml")
	err := os.WriteFile(path, []byte(`
store:
  driver: sqlite
  url: file:propjockey.db
entries:
  property: bandstructure
  rows_per_page: 25
notify:
  throttle: 250ms
  staff_to: [staff@example.org, ops@example.org]
`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.URL != "file:propjockey.db" {
		t.Errorf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Entries.Property != "bandstructure" || cfg.Entries.RowsPerPage != 25 {
		t.Errorf("unexpected entries config %+v", cfg.Entries)
	}
	if cfg.Notify.Throttle != 250*time.Millisecond {
		t.Errorf("expected 250ms throttle, got %s", cfg.Notify.Throttle)
	}
	if len(cfg.Notify.StaffTo) != 2 {
		t.Errorf("expected two staff addresses, got %v", cfg.Notify.StaffTo)
	}
}

func TestLoad_DefaultFileIsOptionalButExplicitIsNot(t *testing.T) {
	chdir(t, t.TempDir())
	if _, err := Load(viper.New(), "missing.yaml"); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "propjockey.yaml"), []byte("server:\n  port: 9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PROPJOCKEY_SERVER_PORT", "9100")
	t.Setenv("PROPJOCKEY_AUTH_SECRET", "s3cret")

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("env should override file: expected 9100, got %d", cfg.Server.Port)
	}
	if cfg.Auth.Secret != "s3cret" {
		t.Errorf("expected secret from env, got %q", cfg.Auth.Secret)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PROPJOCKEY_LOG_LEVEL=debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("PROPJOCKEY_LOG_LEVEL") })

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected level from .env, got %q", cfg.Log.Level)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PROPJOCKEY_SERVER_PORT", "9000")

	v := viper.New()
	fs := pflag.NewFlagSet("propjockey", pflag.ContinueOnError)
	if err := BindFlags(v, fs); err != nil {
		t.Fatal(err)
	}
	if err := fs.Parse([]string{"-p", "8080", "-t", "postgres", "-d", "postgres://localhost/pj"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatal(err)
	}

	// CLI should override env
	if cfg.Server.Port != 8080 {
		t.Errorf("CLI should override env: expected 8080, got %d", cfg.Server.Port)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.URL != "postgres://localhost/pj" {
		t.Errorf("unexpected store config %+v", cfg.Store)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		v := viper.New()
		SetDefaults(v)
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			t.Fatal(err)
		}
		cfg.Auth.Secret = "s"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"postgres without url", func(c *Config) { c.Store.Driver = "postgres" }, true},
		{"sqlite with url", func(c *Config) { c.Store.Driver = "sqlite"; c.Store.URL = ":memory:" }, false},
		{"mongo without database", func(c *Config) {
			c.Store.Driver = "mongo"
			c.Store.URL = "mongodb://localhost"
			c.Store.Database = ""
		}, true},
		{"unknown driver", func(c *Config) { c.Store.Driver = "redis" }, true},
		{"zero page size", func(c *Config) { c.Entries.RowsPerPage = 0 }, true},
		{"page size above cap", func(c *Config) { c.Entries.RowsPerPage = 101 }, true},
		{"mailgun without key", func(c *Config) { c.Notify.Mailer = "mailgun" }, true},
		{"unknown mailer", func(c *Config) { c.Notify.Mailer = "fax" }, true},
		{"unknown linker", func(c *Config) { c.Workflows.Linker = "ldap" }, true},
		{"empty property", func(c *Config) { c.Entries.Property = "" }, true},
		{"no secret", func(c *Config) { c.Auth.Secret = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.ValidateServe()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateServe() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestYAMLMasksSecrets(t *testing.T) {
	cfg := Config{Auth: AuthConfig{Secret: "hunter2"}, Mailgun: MailgunConfig{APIKey: "key-1"}}
	out, err := cfg.YAML()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), "hunter2") || strings.Contains(string(out), "key-1") {
		t.Errorf("secrets leaked into YAML:\n%s", out)
	}
	if !strings.Contains(string(out), "cookie_name") {
		t.Errorf("expected full config, got:\n%s", out)
	}
}
