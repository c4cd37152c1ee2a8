package enhance

import "drisya/internal/providers/image"

// Per-image list prices in USD. Estimates only; billing stays with the caller.
var costTable = map[string]map[Method]map[image.Quality]float64{
	"openai": {
		MethodEdit: {
			image.QualityStandard: 0.02,
			image.QualityHigh:     0.02,
			image.QualityUltra:    0.02,
		},
		MethodGenerate: {
			image.QualityStandard: 0.04,
			image.QualityHigh:     0.04,
			image.QualityUltra:    0.08,
		},
	},
	"stability": {
		MethodEdit: {
			image.QualityStandard: 0.01,
			image.QualityHigh:     0.013,
			image.QualityUltra:    0.017,
		},
		MethodGenerate: {
			image.QualityStandard: 0.01,
			image.QualityHigh:     0.013,
			image.QualityUltra:    0.017,
		},
	},
	"replicate": {
		MethodEdit: {
			image.QualityStandard: 0.0055,
			image.QualityHigh:     0.008,
			image.QualityUltra:    0.011,
		},
		MethodGenerate: {
			image.QualityStandard: 0.0055,
			image.QualityHigh:     0.008,
			image.QualityUltra:    0.011,
		},
	},
}

// CostEstimate returns the list price for one image, zero when unknown.
func CostEstimate(provider string, method Method, quality image.Quality) float64 {
	byMethod, ok := costTable[provider]
	if !ok {
		return 0
	}
	byQuality, ok := byMethod[method]
	if !ok {
		return 0
	}
	if c, ok := byQuality[quality]; ok {
		return c
	}
	return byQuality[image.QualityStandard]
}
