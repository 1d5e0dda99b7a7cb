package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Plugin setting keys.
const (
	KeyOutfitCreationFrequency = "OUTFIT_CREATION_FREQUENCY"
	KeyBnvURL                  = "BNV_URL"
	KeySchedulerEnabled        = "BNV_SCHEDULER_ENABLED"
	KeyLiveGeneration          = "BNV_LIVE_GENERATION"
	KeyRegisterUser            = "BNV_REGISTER_USER"
	KeySyncWearables           = "BNV_SYNC_WEARABLES"
	KeyRetryStrategy           = "BNV_RETRY_STRATEGY"
)

const (
	DefaultOutfitCreationFrequency = 8
	DefaultBnvURL                  = "https://bnv-me-id-api.bnv.me"
	DefaultRetryStrategy           = "constant"

	// MaxOutfitCreationFrequency is one year in minutes.
	MaxOutfitCreationFrequency = 525600
)

// Settings is the validated plugin configuration. It is built once at
// startup and passed to every component.
type Settings struct {
	// OutfitCreationFrequency is the scheduler interval in minutes.
	OutfitCreationFrequency int    `setting:"OUTFIT_CREATION_FREQUENCY" validate:"gt=0,lte=525600"`
	BnvURL                  string `setting:"BNV_URL" validate:"required,url"`
	SchedulerEnabled        bool   `setting:"BNV_SCHEDULER_ENABLED"`
	LiveGeneration          bool   `setting:"BNV_LIVE_GENERATION"`
	RegisterUser            bool   `setting:"BNV_REGISTER_USER"`
	SyncWearables           bool   `setting:"BNV_SYNC_WEARABLES"`
	RetryStrategy           string `setting:"BNV_RETRY_STRATEGY" validate:"oneof=constant exponential"`
}

// Interval returns the scheduler period.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.OutfitCreationFrequency) * time.Minute
}

// SettingFunc reads one raw setting, returning "" when unset.
type SettingFunc func(key string) string

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("setting")
	})
	return v
}

// LoadSettings reads plugin settings from get, falling back to the process
// environment, applies defaults and validates the result. Every invalid
// field is reported in the returned error.
func LoadSettings(get SettingFunc) (*Settings, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	lookup := func(key string) string {
		if get != nil {
			if v := strings.TrimSpace(get(key)); v != "" {
				return v
			}
		}
		return strings.TrimSpace(k.String(envKey(key)))
	}

	s := &Settings{
		OutfitCreationFrequency: DefaultOutfitCreationFrequency,
		BnvURL:                  DefaultBnvURL,
		RetryStrategy:           DefaultRetryStrategy,
	}

	var errs []string
	invalid := make(map[string]bool)

	if v := lookup(KeyOutfitCreationFrequency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: must be a positive integer, got %q", KeyOutfitCreationFrequency, v))
			invalid[KeyOutfitCreationFrequency] = true
		} else {
			s.OutfitCreationFrequency = n
		}
	}
	if v := lookup(KeyBnvURL); v != "" {
		s.BnvURL = v
	}
	if v := lookup(KeyRetryStrategy); v != "" {
		s.RetryStrategy = strings.ToLower(v)
	}

	flags := []struct {
		key string
		dst *bool
	}{
		{KeySchedulerEnabled, &s.SchedulerEnabled},
		{KeyLiveGeneration, &s.LiveGeneration},
		{KeyRegisterUser, &s.RegisterUser},
		{KeySyncWearables, &s.SyncWearables},
	}
	for _, f := range flags {
		v := lookup(f.key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: must be a boolean, got %q", f.key, v))
			continue
		}
		*f.dst = b
	}

	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("validating settings: %w", err)
		}
		for _, fe := range verrs {
			if invalid[fe.Field()] {
				continue
			}
			errs = append(errs, fmt.Sprintf("%s: %s", fe.Field(), describe(fe)))
		}
	}

	if len(errs) > 0 {
		return nil, errors.New("bnv configuration validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return s, nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return fmt.Sprintf("must be greater than %s, got %v", fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("must be at most %s, got %v", fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("must be a valid URL, got %q", fe.Value())
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
