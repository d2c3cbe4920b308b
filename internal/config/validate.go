package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Validate checks the configuration for invalid or missing values.
// A credential missing for an explicitly selected channel is an error here,
// before any listener starts; channels picked up implicitly report the same
// problem through their dependency check instead.
func (c *Config) Validate() error {
	if errs := c.validate(); len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validate() []string {
	var errs []string

	selected := make(map[string]bool, len(c.Channels.Enabled))
	for _, name := range c.Channels.Enabled {
		selected[name] = true
	}

	if selected["email"] {
		if c.Channels.Email.Address == "" {
			errs = append(errs, "channels.email.address is required when email is selected (or set CLCL_EMAIL)")
		}
		if c.Channels.Email.AppPassword == "" {
			errs = append(errs, "channels.email.appPassword is required when email is selected (or set CLCL_APP_PASSWORD)")
		}
	}
	if selected["webchat"] && c.Channels.Webchat.Token == "" {
		errs = append(errs, "channels.webchat.token is required when webchat is selected")
	}

	if c.Channels.NativeMessage.PollIntervalS < 0 {
		errs = append(errs, "channels.nativeMessage.pollIntervalSeconds must be non-negative")
	}
	if c.Launch.TimeoutS < 0 {
		errs = append(errs, "launch.timeoutSeconds must be non-negative")
	}

	return errs
}

// CheckUnknownFields walks the raw config map and returns paths of any keys
// that do not correspond to known Config struct fields.
func CheckUnknownFields(raw map[string]any) []string {
	result := checkUnknownFields(raw, reflect.TypeOf(Config{}), "")
	sort.Strings(result)
	return result
}

func checkUnknownFields(data map[string]any, t reflect.Type, prefix string) []string {
	t = derefType(t)
	if t.Kind() != reflect.Struct {
		return nil
	}

	known := jsonFieldMap(t)
	var unknown []string
	for key, val := range data {
		ft, ok := known[key]
		if !ok {
			unknown = append(unknown, joinPath(prefix, key))
			continue
		}
		if nested, ok := val.(map[string]any); ok {
			unknown = append(unknown, checkUnknownFields(nested, ft, joinPath(prefix, key))...)
		}
	}
	return unknown
}

func jsonFieldMap(t reflect.Type) map[string]reflect.Type {
	m := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if name != "" {
			m[name] = f.Type
		}
	}
	return m
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
