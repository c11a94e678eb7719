package models

import (
	"time"
)

// SubscriptionTier is the billing tier of an organization
type SubscriptionTier string

const (
	TierDIY        SubscriptionTier = "diy"
	TierCommercial SubscriptionTier = "commercial"
	TierEnterprise SubscriptionTier = "enterprise"
)

// IsValid checks if the subscription tier is a known value
func (t SubscriptionTier) IsValid() bool {
	switch t {
	case TierDIY, TierCommercial, TierEnterprise:
		return true
	default:
		return false
	}
}

// BrandingConfig holds per-tenant display configuration
type BrandingConfig struct {
	PrimaryColor string `json:"primary_color"`
	Logo         string `json:"logo,omitempty"`
	SystemName   string `json:"system_name"`
}

// Organization is the tenant root. It owns systems and plant profiles and is
// immutable after creation.
type Organization struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Branding BrandingConfig   `json:"branding"`
	Tier     SubscriptionTier `json:"tier"`
}

// System is a physical greenhouse installation owned by one organization.
// Its routing key (MQTT topic prefix) is unique across the deployment.
type System struct {
	ID                  string    `json:"id"`
	OrganizationID      string    `json:"organization_id"`
	Name                string    `json:"name"`
	Location            string    `json:"location"`
	MasterControllerMAC string    `json:"master_controller_mac"`
	RoutingKey          string    `json:"routing_key"`
	IsActive            bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
}

// Row is a cultivation lane within a system. RowNumber is unique within the
// owning system. LastSeen is bumped on every successfully resolved reading.
type Row struct {
	ID                  string    `json:"id"`
	SystemID            string    `json:"system_id"`
	RowNumber           int       `json:"row_number"`
	ControllerMAC       string    `json:"controller_mac"`
	CurrentPlantProfile string    `json:"current_plant_profile"`
	IsActive            bool      `json:"is_active"`
	LastSeen            time.Time `json:"last_seen"`
}

// Nutrients is the optional N-P-K triple of a plant profile.
type Nutrients struct {
	N float64 `json:"n"`
	P float64 `json:"p"`
	K float64 `json:"k"`
}

// ProfileParameters is the target environmental set of a plant profile.
// Pointer fields are optional targets.
type ProfileParameters struct {
	AirTemp         float64    `json:"air_temp"`
	WaterTemp       float64    `json:"water_temp"`
	Humidity        float64    `json:"humidity"`
	LightIntensity  float64    `json:"light_intensity"`
	LightDuration   float64    `json:"light_duration"`
	CO2Level        float64    `json:"co2_level"`
	FlowRate        float64    `json:"flow_rate"`
	PH              *float64   `json:"ph,omitempty"`
	DissolvedOxygen *float64   `json:"dissolved_oxygen,omitempty"`
	WaterLevel      *float64   `json:"water_level,omitempty"`
	Nutrients       *Nutrients `json:"nutrients,omitempty"`
}

// PlantProfile is a named target-parameter set scoped to an organization.
// IsDefault marks organization-supplied defaults. Immutable once created.
type PlantProfile struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organization_id"`
	Name           string            `json:"name"`
	IsDefault      bool              `json:"is_default"`
	Parameters     ProfileParameters `json:"parameters"`
	CreatedAt      time.Time         `json:"created_at"`
}
