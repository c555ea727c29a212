package cmd

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestApplyIntDefault(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("rate-limit", 10, "")

	applyIntDefault(flags, "rate-limit", 3)
	if got, _ := flags.GetInt("rate-limit"); got != 3 {
		t.Fatalf("expected config default 3, got %d", got)
	}

	if err := flags.Set("rate-limit", "7"); err != nil {
		t.Fatalf("setting flag: %v", err)
	}
	applyIntDefault(flags, "rate-limit", 3)
	if got, _ := flags.GetInt("rate-limit"); got != 7 {
		t.Fatalf("explicit flag must win, got %d", got)
	}

	// unknown flag is a no-op
	applyIntDefault(flags, "missing", 1)
}

func TestSetStringFlagIfUnset(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", "127.0.0.1:8080", "")

	setStringFlagIfUnset(flags, "addr", "0.0.0.0:9000")
	if got, _ := flags.GetString("addr"); got != "0.0.0.0:9000" {
		t.Fatalf("expected config default, got %s", got)
	}

	if err := flags.Set("addr", "127.0.0.1:5555"); err != nil {
		t.Fatalf("setting flag: %v", err)
	}
	setStringFlagIfUnset(flags, "addr", "0.0.0.0:9000")
	if got, _ := flags.GetString("addr"); got != "127.0.0.1:5555" {
		t.Fatalf("explicit flag must win, got %s", got)
	}
}

func TestLoadServeOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("serve.addr", "0.0.0.0:9000")
	viper.Set("serve.rate_limit", 5)
	viper.Set("serve.cors_origins", []string{"https://a.example.com", "https://b.example.com"})

	overrides := loadServeOverrides()
	if overrides.Addr != "0.0.0.0:9000" {
		t.Fatalf("unexpected addr override: %q", overrides.Addr)
	}
	if overrides.RateLimit == nil || *overrides.RateLimit != 5 {
		t.Fatalf("unexpected rate limit override: %v", overrides.RateLimit)
	}
	if overrides.RateBurst != nil {
		t.Fatalf("rate burst should be unset, got %v", *overrides.RateBurst)
	}
	if len(overrides.CORSOrigins) != 2 {
		t.Fatalf("unexpected CORS origins: %v", overrides.CORSOrigins)
	}
}
