package cmd

import (
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type serveOverrides struct {
	Addr        string
	AuthToken   string
	RateLimit   *int
	RateBurst   *int
	CORSOrigins []string
}

func loadServeOverrides() serveOverrides {
	overrides := serveOverrides{}

	if viper.IsSet("serve.addr") {
		overrides.Addr = viper.GetString("serve.addr")
	}
	if viper.IsSet("serve.auth_token") {
		overrides.AuthToken = viper.GetString("serve.auth_token")
	}
	if viper.IsSet("serve.rate_limit") {
		val := viper.GetInt("serve.rate_limit")
		overrides.RateLimit = &val
	}
	if viper.IsSet("serve.rate_burst") {
		val := viper.GetInt("serve.rate_burst")
		overrides.RateBurst = &val
	}
	if viper.IsSet("serve.cors_origins") {
		overrides.CORSOrigins = viper.GetStringSlice("serve.cors_origins")
	}

	return overrides
}

// applyConfigDefaults merges config file defaults into serve flags when the
// user did not explicitly override the corresponding flag.
func applyConfigDefaults() {
	overrides := loadServeOverrides()
	flags := serveCmd.Flags()

	if overrides.Addr != "" {
		setStringFlagIfUnset(flags, "addr", overrides.Addr)
	}
	if overrides.AuthToken != "" {
		setStringFlagIfUnset(flags, "auth-token", overrides.AuthToken)
	}
	if overrides.RateLimit != nil {
		applyIntDefault(flags, "rate-limit", *overrides.RateLimit)
	}
	if overrides.RateBurst != nil {
		applyIntDefault(flags, "rate-burst", *overrides.RateBurst)
	}
	if len(overrides.CORSOrigins) > 0 {
		if flag := flags.Lookup("cors-origins"); flag != nil && !flag.Changed {
			_ = flags.Set("cors-origins", strings.Join(overrides.CORSOrigins, ","))
		}
	}
}

func applyIntDefault(flags *pflag.FlagSet, name string, value int) {
	flag := flags.Lookup(name)
	if flag == nil || flag.Changed {
		return
	}
	_ = flags.Set(name, strconv.Itoa(value))
}

func setStringFlagIfUnset(flags *pflag.FlagSet, name, value string) {
	flag := flags.Lookup(name)
	if flag == nil || flag.Changed {
		return
	}
	_ = flag.Value.Set(value)
}
