package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
)

// Test data file names inside TestdataDir.
const (
	ConversionsFile = "test_conversion_data.yml"
	ExtractionsFile = "test_extraction_data.yml"
)

// ConversionCase is one entry of the conversion test data.
type ConversionCase struct {
	Description string `yaml:"description" validate:"required"`
	FileURL     string `yaml:"file_url" validate:"required,url"`
	OutputType  string `yaml:"output_type" validate:"required"`
	Skip        string `yaml:"skip"`
}

// ExtractionCase is one entry of the extraction test data.
type ExtractionCase struct {
	Description string `yaml:"description" validate:"required"`
	FileURL     string `yaml:"file_url" validate:"required,url"`
	Output      string `yaml:"output" validate:"required"`
	Extractor   string `yaml:"extractor"`
	Skip        string `yaml:"skip"`
}

// ExtractorOrAll returns the extractor name, "all" when none is set.
func (c ExtractionCase) ExtractorOrAll() string {
	if strings.TrimSpace(c.Extractor) == "" {
		return "all"
	}
	return c.Extractor
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// LoadConversions reads the conversion cases from dir.
func LoadConversions(dir string) ([]ConversionCase, error) {
	return loadCases[ConversionCase](filepath.Join(dir, ConversionsFile))
}

// LoadExtractions reads the extraction cases from dir.
func LoadExtractions(dir string) ([]ExtractionCase, error) {
	return loadCases[ExtractionCase](filepath.Join(dir, ExtractionsFile))
}

// LoadWatchers reads the report recipients file.
func LoadWatchers(path string) ([]domain.Watcher, error) {
	return loadCases[domain.Watcher](path)
}

func loadCases[T any](path string) ([]T, error) {
	// #nosec G304 -- test data paths come from configuration
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=config.load %s: %w", filepath.Base(path), err)
	}
	var items []T
	if err := yaml.Unmarshal(content, &items); err != nil {
		return nil, fmt.Errorf("op=config.load %s: %w: %v", filepath.Base(path), domain.ErrInvalidArgument, err)
	}
	var errs []error
	for i := range items {
		if err := getValidator().Struct(items[i]); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("op=config.load %s: %w: %w", filepath.Base(path), domain.ErrInvalidArgument, errors.Join(errs...))
	}
	return items, nil
}
