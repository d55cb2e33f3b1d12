package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"

	emptyModelsErrorMessage                  = "config.models is empty"
	missingDefaultModelErrorMessage          = "no default model found (set models[].default: true)"
	rootConfigurationEmptyContentErrorFormat = "root configuration %s is empty"
	rootConfigurationUnmarshalErrorFormat    = "unmarshal root configuration %s: %w"
	rootConfigurationInvalidErrorFormat      = "invalid root configuration %s: %w"
	fieldValidationErrorFormat               = "%s fails %q"
	unknownPipelineModelErrorFormat          = "pipeline %s refers to unknown model %s"
	duplicatePipelineErrorFormat             = "pipeline %s is declared twice"
)

var (
	rootValidate       *validator.Validate
	environmentPattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)
)

func init() {
	rootValidate = validator.New()
	_ = rootValidate.RegisterValidation("envname", func(fl validator.FieldLevel) bool {
		return environmentPattern.MatchString(fl.Field().String())
	})
}

type Root struct {
	Common    Common     `yaml:"common"`
	Models    []Model    `yaml:"models" validate:"dive"`
	Pipelines []Pipeline `yaml:"pipelines" validate:"dive"`
}

type Common struct {
	API struct {
		Endpoint  string `yaml:"endpoint" validate:"required,url"`
		APIKeyEnv string `yaml:"api_key_env" validate:"required,envname"`
		Provider  string `yaml:"provider" validate:"omitempty,oneof=http openai"`
	} `yaml:"api"`
	Logging struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
		Format string `yaml:"format" validate:"omitempty,oneof=console json"`
	} `yaml:"logging"`
	Defaults Defaults `yaml:"defaults"`
}

// Defaults bound every run unless a pipeline or a flag overrides them.
type Defaults struct {
	Attempts          int `yaml:"attempts" validate:"gte=0,lte=50"`
	TimeoutSeconds    int `yaml:"timeout_seconds" validate:"gte=0"`
	InitialWaitMillis int `yaml:"initial_wait_ms" validate:"gte=0"`
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"gte=0"`
}

func (d Defaults) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

func (d Defaults) InitialWait() time.Duration {
	return time.Duration(d.InitialWaitMillis) * time.Millisecond
}

type Model struct {
	Name                string  `yaml:"name" validate:"required"`
	ModelID             string  `yaml:"model_id" validate:"required"`
	Default             bool    `yaml:"default"`
	SupportsTemperature bool    `yaml:"supports_temperature"`
	DefaultTemperature  float64 `yaml:"default_temperature" validate:"gte=0,lte=2"`
	MaxCompletionTokens int     `yaml:"max_completion_tokens" validate:"gte=0"`
}

// Pipeline binds a configured name to one of the registered pipeline types.
type Pipeline struct {
	Name         string         `yaml:"name" validate:"required"`
	Enabled      bool           `yaml:"enabled"`
	Model        string         `yaml:"model"`
	Type         string         `yaml:"type" validate:"required,oneof=pk/summary pk/individual"`
	Attempts     int            `yaml:"attempts" validate:"gte=0,lte=50"`
	StepAttempts map[string]int `yaml:"step_attempts" validate:"dive,gte=1,lte=50"`
}

// LoadRoot parses the provided configuration source and validates required fields.
func LoadRoot(source RootConfigurationSource) (Root, error) {
	if len(source.Content) == 0 {
		return Root{}, fmt.Errorf(rootConfigurationEmptyContentErrorFormat, source.Reference)
	}

	var rootConfiguration Root
	if err := yaml.Unmarshal(source.Content, &rootConfiguration); err != nil {
		return Root{}, fmt.Errorf(rootConfigurationUnmarshalErrorFormat, source.Reference, err)
	}

	if len(rootConfiguration.Models) == 0 {
		return Root{}, errors.New(emptyModelsErrorMessage)
	}
	if _, ok := rootConfiguration.DefaultModel(); !ok {
		return Root{}, errors.New(missingDefaultModelErrorMessage)
	}
	if err := rootConfiguration.Validate(); err != nil {
		return Root{}, fmt.Errorf(rootConfigurationInvalidErrorFormat, source.Reference, err)
	}
	return rootConfiguration, nil
}

// Validate checks field constraints and cross references between sections.
func (root Root) Validate() error {
	if err := rootValidate.Struct(root); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			messages := make([]string, 0, len(fieldErrors))
			for _, fieldError := range fieldErrors {
				messages = append(messages, fmt.Sprintf(fieldValidationErrorFormat, fieldError.Namespace(), fieldError.Tag()))
			}
			return errors.New(strings.Join(messages, "; "))
		}
		return err
	}
	seen := make(map[string]bool, len(root.Pipelines))
	for _, pipelineConfiguration := range root.Pipelines {
		if seen[pipelineConfiguration.Name] {
			return fmt.Errorf(duplicatePipelineErrorFormat, pipelineConfiguration.Name)
		}
		seen[pipelineConfiguration.Name] = true
		if pipelineConfiguration.Model == "" {
			continue
		}
		if _, ok := root.FindModel(pipelineConfiguration.Model); !ok {
			return fmt.Errorf(unknownPipelineModelErrorFormat, pipelineConfiguration.Name, pipelineConfiguration.Model)
		}
	}
	return nil
}

func (root Root) DefaultModel() (Model, bool) {
	for _, modelConfiguration := range root.Models {
		if modelConfiguration.Default {
			return modelConfiguration, true
		}
	}
	return Model{}, false
}

func (root Root) FindModel(name string) (Model, bool) {
	for _, modelConfiguration := range root.Models {
		if modelConfiguration.Name == name {
			return modelConfiguration, true
		}
	}
	return Model{}, false
}

// FindPipeline looks a pipeline up by its configured name first and by its
// type second, so "pk/summary" works without a pipelines section.
func (root Root) FindPipeline(name string) (Pipeline, bool) {
	for _, pipelineConfiguration := range root.Pipelines {
		if pipelineConfiguration.Name == name {
			return pipelineConfiguration, true
		}
	}
	for _, pipelineConfiguration := range root.Pipelines {
		if pipelineConfiguration.Type == name {
			return pipelineConfiguration, true
		}
	}
	return Pipeline{}, false
}

// ModelFor resolves the model a pipeline runs with.
func (root Root) ModelFor(pipelineConfiguration Pipeline) Model {
	if modelConfiguration, ok := root.FindModel(pipelineConfiguration.Model); ok {
		return modelConfiguration
	}
	modelConfiguration, _ := root.DefaultModel()
	return modelConfiguration
}
