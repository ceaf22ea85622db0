package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/delivergo/storefront/internal/app/domain/cart"
)

// Settings is the storefront's merchandising configuration, loaded from
// config/settings.yaml.
type Settings struct {
	Currency        string
	ShippingMethods []cart.ShippingMethod
}

type settingsFile struct {
	Currency        string `yaml:"currency"`
	ShippingMethods []struct {
		ID            string  `yaml:"id"`
		Name          string  `yaml:"name"`
		Price         float64 `yaml:"price"`
		EstimatedDays string  `yaml:"estimated_days"`
	} `yaml:"shipping_methods"`
}

// LoadSettings reads the settings file at path.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	var raw settingsFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}

	s := Settings{Currency: raw.Currency}
	if s.Currency == "" {
		s.Currency = "USD"
	}
	for _, m := range raw.ShippingMethods {
		if m.ID == "" {
			return Settings{}, fmt.Errorf("shipping method without id")
		}
		if m.Price < 0 {
			return Settings{}, fmt.Errorf("shipping method %s has negative price", m.ID)
		}
		s.ShippingMethods = append(s.ShippingMethods, cart.ShippingMethod{
			ID:            m.ID,
			Name:          m.Name,
			Price:         m.Price,
			EstimatedDays: m.EstimatedDays,
		})
	}
	return s, nil
}

// LoadSettingsOrDefault reads the settings file, falling back to defaults
// when it is missing.
func LoadSettingsOrDefault(path string) Settings {
	s, err := LoadSettings(path)
	if err != nil {
		return DefaultSettings()
	}
	return s
}

// DefaultSettings returns the built-in merchandising defaults.
func DefaultSettings() Settings {
	return Settings{
		Currency: "USD",
		ShippingMethods: []cart.ShippingMethod{
			{ID: "pickup", Name: "Pickup", Price: 0},
			{ID: "standard", Name: "Standard Delivery", Price: 2.50, EstimatedDays: "1-2"},
			{ID: "express", Name: "Express Delivery", Price: 5.99, EstimatedDays: "0-1"},
		},
	}
}
