// Package bootstrap seeds the default organization and its plant profiles.
// It is an explicit administrative action, not a side effect of ingestion.
package bootstrap

import (
	"context"
	"time"

	"aquasense/internal/logger"
	"aquasense/internal/models"
	"aquasense/internal/store"
)

const defaultOrgName = "Default Organization"

// defaultProfiles are the organization-supplied target sets shipped with a
// fresh deployment.
var defaultProfiles = []models.PlantProfile{
	{
		Name: "Lettuce",
		Parameters: models.ProfileParameters{
			AirTemp:        22,
			WaterTemp:      18,
			Humidity:       70,
			LightIntensity: 400,
			LightDuration:  16,
			CO2Level:       400,
			FlowRate:       1,
		},
	},
	{
		Name: "Basil",
		Parameters: models.ProfileParameters{
			AirTemp:        25,
			WaterTemp:      22,
			Humidity:       65,
			LightIntensity: 500,
			LightDuration:  14,
			CO2Level:       400,
			FlowRate:       1,
		},
	},
	{
		Name: "Strawberry",
		Parameters: models.ProfileParameters{
			AirTemp:        20,
			WaterTemp:      19,
			Humidity:       75,
			LightIntensity: 350,
			LightDuration:  12,
			CO2Level:       400,
			FlowRate:       1,
		},
	},
}

// EnsureDefaultOrganization returns the default organization, creating it if
// absent. Safe to call repeatedly.
func EnsureDefaultOrganization(ctx context.Context, st store.Store) (*models.Organization, error) {
	if org, err := st.FindOrganizationByName(ctx, defaultOrgName); err == nil {
		return org, nil
	} else if !models.IsNotFound(err, models.EntityOrganization) {
		return nil, err
	}
	org, err := st.CreateOrganization(ctx, &models.Organization{
		Name: defaultOrgName,
		Branding: models.BrandingConfig{
			PrimaryColor: "#54ca2c",
			SystemName:   "AquaSense",
		},
		Tier: models.TierDIY,
	})
	if err != nil {
		return nil, err
	}
	logger.WithComponent("bootstrap").Info().
		Str("organization_id", org.ID).
		Msg("created default organization")
	return org, nil
}

// EnsureDefaultProfiles creates the default plant profiles under the default
// organization, skipping any that already exist by name.
func EnsureDefaultProfiles(ctx context.Context, st store.Store) error {
	org, err := EnsureDefaultOrganization(ctx, st)
	if err != nil {
		return err
	}
	log := logger.WithComponent("bootstrap")
	for _, p := range defaultProfiles {
		if _, err := st.FindProfileByName(ctx, org.ID, p.Name); err == nil {
			continue
		} else if !models.IsNotFound(err, models.EntityProfile) {
			return err
		}
		profile := p
		profile.OrganizationID = org.ID
		profile.IsDefault = true
		profile.CreatedAt = time.Now().UTC()
		created, err := st.CreateProfile(ctx, &profile)
		if err != nil {
			return err
		}
		log.Info().
			Str("profile_id", created.ID).
			Str("name", created.Name).
			Msg("created default plant profile")
	}
	return nil
}
