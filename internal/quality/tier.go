// Package quality holds the ordered ladder of rendering quality tiers that the
// adaptive governor moves along.
package quality

import "math"

// Default tier names, lowest quality first.
const (
	TierMinimal = "minimal"
	TierLow     = "low"
	TierMedium  = "medium"
	TierHigh    = "high"
	TierUltra   = "ultra"
)

// Tier is a named bundle of quality knobs. The ladder only reads Name and the
// quality proxy; every other field is passed through to the tier consumer.
type Tier struct {
	Name             string  `toml:"name" json:"name"`
	RenderScale      float64 `toml:"render_scale" json:"render_scale"`
	ShadowResolution int     `toml:"shadow_resolution" json:"shadow_resolution"`
	DrawDistance     float64 `toml:"draw_distance" json:"draw_distance"`
	ParticleDensity  float64 `toml:"particle_density" json:"particle_density"`
	TextureQuality   int     `toml:"texture_quality" json:"texture_quality"`
	AntiAliasing     bool    `toml:"anti_aliasing" json:"anti_aliasing"`
	MaxDynamicLights int     `toml:"max_dynamic_lights" json:"max_dynamic_lights"`
}

// Proxy is the scalar the ladder sorts by: render scale times draw distance.
func (t Tier) Proxy() float64 {
	return t.RenderScale * t.DrawDistance
}

// comparable reports whether the proxy can be ordered against others.
func (t Tier) comparable() bool {
	p := t.Proxy()
	return !math.IsNaN(p)
}

// DefaultTiers returns the built-in five-tier ladder.
func DefaultTiers() []Tier {
	return []Tier{
		{
			Name:             TierMinimal,
			RenderScale:      0.5,
			ShadowResolution: 0,
			DrawDistance:     100,
			ParticleDensity:  0.25,
			TextureQuality:   0,
			MaxDynamicLights: 2,
		},
		{
			Name:             TierLow,
			RenderScale:      0.75,
			ShadowResolution: 512,
			DrawDistance:     200,
			ParticleDensity:  0.5,
			TextureQuality:   1,
			MaxDynamicLights: 4,
		},
		{
			Name:             TierMedium,
			RenderScale:      1.0,
			ShadowResolution: 1024,
			DrawDistance:     400,
			ParticleDensity:  0.75,
			TextureQuality:   2,
			AntiAliasing:     true,
			MaxDynamicLights: 8,
		},
		{
			Name:             TierHigh,
			RenderScale:      1.0,
			ShadowResolution: 2048,
			DrawDistance:     800,
			ParticleDensity:  1.0,
			TextureQuality:   3,
			AntiAliasing:     true,
			MaxDynamicLights: 16,
		},
		{
			Name:             TierUltra,
			RenderScale:      1.0,
			ShadowResolution: 4096,
			DrawDistance:     1500,
			ParticleDensity:  1.0,
			TextureQuality:   3,
			AntiAliasing:     true,
			MaxDynamicLights: 32,
		},
	}
}
