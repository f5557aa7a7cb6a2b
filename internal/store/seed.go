package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidSeed = errors.New("store: invalid seed")

// Seed lists touchpoints to provision at startup.
type Seed struct {
	Touchpoints []SeedTouchpoint `yaml:"touchpoints"`
}

// SeedTouchpoint provisions one business and optionally patches its touchpoint.
type SeedTouchpoint struct {
	BusinessName    string         `yaml:"business_name"`
	OwnerName       string         `yaml:"owner_name"`
	Email           string         `yaml:"email"`
	Phone           string         `yaml:"phone"`
	GoogleReviewURL string         `yaml:"google_review_url"`
	Notes           string         `yaml:"notes"`
	Patch           map[string]any `yaml:"patch"`
}

// LoadSeedFile reads and parses a YAML seed file.
func LoadSeedFile(path string) (Seed, error) {
	contents, readErr := os.ReadFile(path)
	if readErr != nil {
		return Seed{}, fmt.Errorf("read seed file %s: %w", path, readErr)
	}
	return ParseSeed(contents)
}

// ParseSeed parses YAML seed contents and checks every entry names a business and an email.
func ParseSeed(contents []byte) (Seed, error) {
	var seed Seed
	if decodeErr := yaml.Unmarshal(contents, &seed); decodeErr != nil {
		return Seed{}, fmt.Errorf("%w: %v", ErrInvalidSeed, decodeErr)
	}
	for index, entry := range seed.Touchpoints {
		if strings.TrimSpace(entry.BusinessName) == "" || strings.TrimSpace(entry.Email) == "" {
			return Seed{}, fmt.Errorf("%w: touchpoint %d requires business_name and email", ErrInvalidSeed, index)
		}
	}
	return seed, nil
}

// ApplySeed provisions each seed entry and applies its patch. Provisioning is idempotent per email,
// so applying the same seed twice leaves one business per entry.
func ApplySeed(ctx context.Context, procedures Procedures, seed Seed) ([]ProvisionResult, error) {
	results := make([]ProvisionResult, 0, len(seed.Touchpoints))
	for _, entry := range seed.Touchpoints {
		provisioned, provisionErr := procedures.Provision(ctx, ProvisionInput{
			BusinessName:    entry.BusinessName,
			OwnerName:       entry.OwnerName,
			Email:           entry.Email,
			Phone:           entry.Phone,
			GoogleReviewURL: entry.GoogleReviewURL,
			Notes:           entry.Notes,
			Source:          ProvisionSourceSeed,
		})
		if provisionErr != nil {
			return results, fmt.Errorf("provision %s: %w", entry.BusinessName, provisionErr)
		}
		if !provisioned.OK {
			return results, fmt.Errorf("provision %s: %s", entry.BusinessName, provisioned.Error)
		}
		if len(entry.Patch) > 0 {
			updated, updateErr := procedures.UpdateTouchpoint(ctx, provisioned.Slug, entry.Email, Patch(entry.Patch))
			if updateErr != nil {
				return results, fmt.Errorf("patch %s: %w", provisioned.Slug, updateErr)
			}
			if !updated.OK {
				return results, fmt.Errorf("patch %s: %s", provisioned.Slug, updated.Error)
			}
		}
		results = append(results, provisioned)
	}
	return results, nil
}
