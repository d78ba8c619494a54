// Package config provides the pipeline's run-time tunables. The settings
// store is read once per run into an immutable Pipeline snapshot that is
// passed by value; changes made while a run is in flight take effect on the
// next run.
package config

import (
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Pipeline holds all run-time tunables for one pipeline run.
type Pipeline struct {
	Enabled             bool    `json:"enabled"`
	DailyArticleTarget  int     `json:"dailyArticleTarget" validate:"min=0,max=20"`
	MaxRewriteAttempts  int     `json:"maxRewriteAttempts" validate:"min=0,max=10"`
	MinQAScore          float64 `json:"minQAScore" validate:"min=1,max=10"`
	ResearchSourceLimit int     `json:"researchSourceLimit" validate:"min=1,max=100"`
	EvidenceExpiryDays  int     `json:"evidenceExpiryDays" validate:"min=1,max=90"`
	ResearchModel       string  `json:"researchModel" validate:"required"`
	PlannerModel        string  `json:"plannerModel" validate:"required"`
	WriterModel         string  `json:"writerModel" validate:"required"`
	QAModel             string  `json:"qaModel" validate:"required"`
	SocialModel         string  `json:"socialModel" validate:"required"`
	WriterTemperature   float64 `json:"writerTemperature" validate:"min=0,max=2"`
	MaxTokensPerArticle int     `json:"maxTokensPerArticle" validate:"min=256"`
	BudgetLimitUSD      float64 `json:"budgetLimitUsd" validate:"min=0"`
}

var validate = validator.New()

// Defaults returns the baseline configuration used when a setting is absent.
func Defaults() Pipeline {
	return Pipeline{
		Enabled:             true,
		DailyArticleTarget:  3,
		MaxRewriteAttempts:  2,
		MinQAScore:          7.0,
		ResearchSourceLimit: 10,
		EvidenceExpiryDays:  7,
		ResearchModel:       "gemini-2.5-flash-lite",
		PlannerModel:        "gemini-2.5-pro",
		WriterModel:         "gemini-2.5-pro",
		QAModel:             "gemini-2.5-flash",
		SocialModel:         "gemini-2.5-flash-lite",
		WriterTemperature:   0.7,
		MaxTokensPerArticle: 8192,
		BudgetLimitUSD:      5.00,
	}
}

// KnownKeys lists every settings key the API accepts, in a stable order.
var KnownKeys = []string{
	"enabled",
	"dailyArticleTarget",
	"maxRewriteAttempts",
	"minQAScore",
	"researchSourceLimit",
	"evidenceExpiryDays",
	"researchModel",
	"plannerModel",
	"writerModel",
	"qaModel",
	"socialModel",
	"writerTemperature",
	"maxTokensPerArticle",
	"budgetLimitUsd",
}

// KnownKey reports whether key is a recognized setting.
func KnownKey(key string) bool {
	for _, k := range KnownKeys {
		if k == key {
			return true
		}
	}
	return false
}

// FromSettings builds a snapshot by applying stored settings over the
// defaults and validating the result.
func FromSettings(settings map[string]string) (Pipeline, error) {
	cfg := Defaults()
	for key, value := range settings {
		if !KnownKey(key) {
			// Stale rows from older versions are ignored rather than fatal.
			continue
		}
		if err := applyValue(&cfg, key, value); err != nil {
			return Pipeline{}, fmt.Errorf("setting %s: %w", key, err)
		}
	}
	if err := validate.Struct(cfg); err != nil {
		return Pipeline{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ValidateValue checks a single key/value pair as it would be applied, for
// use by the settings API before persisting.
func ValidateValue(key, value string) error {
	if !KnownKey(key) {
		return fmt.Errorf("unknown setting key: %s", key)
	}
	cfg := Defaults()
	if err := applyValue(&cfg, key, value); err != nil {
		return err
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

// Value returns the current value of a key as a string.
func (c Pipeline) Value(key string) (string, error) {
	switch key {
	case "enabled":
		return strconv.FormatBool(c.Enabled), nil
	case "dailyArticleTarget":
		return strconv.Itoa(c.DailyArticleTarget), nil
	case "maxRewriteAttempts":
		return strconv.Itoa(c.MaxRewriteAttempts), nil
	case "minQAScore":
		return strconv.FormatFloat(c.MinQAScore, 'f', -1, 64), nil
	case "researchSourceLimit":
		return strconv.Itoa(c.ResearchSourceLimit), nil
	case "evidenceExpiryDays":
		return strconv.Itoa(c.EvidenceExpiryDays), nil
	case "researchModel":
		return c.ResearchModel, nil
	case "plannerModel":
		return c.PlannerModel, nil
	case "writerModel":
		return c.WriterModel, nil
	case "qaModel":
		return c.QAModel, nil
	case "socialModel":
		return c.SocialModel, nil
	case "writerTemperature":
		return strconv.FormatFloat(c.WriterTemperature, 'f', -1, 64), nil
	case "maxTokensPerArticle":
		return strconv.Itoa(c.MaxTokensPerArticle), nil
	case "budgetLimitUsd":
		return strconv.FormatFloat(c.BudgetLimitUSD, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("unknown setting key: %s", key)
}

func applyValue(cfg *Pipeline, key, value string) error {
	switch key {
	case "enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("expected boolean: %w", err)
		}
		cfg.Enabled = b
	case "dailyArticleTarget":
		return applyInt(&cfg.DailyArticleTarget, value)
	case "maxRewriteAttempts":
		return applyInt(&cfg.MaxRewriteAttempts, value)
	case "minQAScore":
		return applyFloat(&cfg.MinQAScore, value)
	case "researchSourceLimit":
		return applyInt(&cfg.ResearchSourceLimit, value)
	case "evidenceExpiryDays":
		return applyInt(&cfg.EvidenceExpiryDays, value)
	case "researchModel":
		cfg.ResearchModel = value
	case "plannerModel":
		cfg.PlannerModel = value
	case "writerModel":
		cfg.WriterModel = value
	case "qaModel":
		cfg.QAModel = value
	case "socialModel":
		cfg.SocialModel = value
	case "writerTemperature":
		return applyFloat(&cfg.WriterTemperature, value)
	case "maxTokensPerArticle":
		return applyInt(&cfg.MaxTokensPerArticle, value)
	case "budgetLimitUsd":
		return applyFloat(&cfg.BudgetLimitUSD, value)
	default:
		return fmt.Errorf("unknown setting key: %s", key)
	}
	return nil
}

func applyInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("expected integer: %w", err)
	}
	*dst = n
	return nil
}

func applyFloat(dst *float64, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("expected number: %w", err)
	}
	*dst = f
	return nil
}
