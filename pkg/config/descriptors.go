package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/noah-isme/privacy-api/internal/models"
)

// LoadDescriptors reads the reference descriptor list from the configured
// YAML file. The list is site-level configuration: it declares which record
// types reference deletion subjects and which fields to redact.
func LoadDescriptors(path string) ([]models.ReferenceDescriptor, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read descriptors file %s: %w", path, err)
	}

	var descriptors []models.ReferenceDescriptor
	if err := v.UnmarshalKey("descriptors", &descriptors); err != nil {
		return nil, fmt.Errorf("decode descriptors file %s: %w", path, err)
	}

	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("descriptors file %s: %w", path, err)
		}
	}

	return descriptors, nil
}
