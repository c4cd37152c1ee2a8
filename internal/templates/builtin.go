package templates

var builtin = []Template{
	{
		Name:             "Ivory Silk Luxury Scene",
		BackgroundStyle:  "silk",
		LightingPreset:   "soft-glow",
		Description:      "A soft ivory silk fabric background with smooth folds and diffused natural light. Gentle highlights emphasize jewelry shine without glare.",
		DiffusionPrompt:  "Use the uploaded jewelry image. Place it on a soft ivory silk fabric background with gentle folds, warm lighting, and cinematic contrast. Maintain exact jewelry color and design with no alterations. Premium luxury scene with natural shadows.",
		ShadowIntensity:  0.3,
		VignetteStrength: 0.2,
		ColorGrading:     "luxury",
	},
	{
		Name:             "Charcoal Velvet Noir",
		BackgroundStyle:  "velvet",
		LightingPreset:   "moody",
		Description:      "Deep charcoal gray velvet surface with subtle shadows and directional spotlight, cinematic contrast and depth.",
		DiffusionPrompt:  "Use the uploaded jewelry image. Place it on a deep charcoal gray velvet surface with subtle shadows and directional spotlight. Cinematic contrast and depth. Preserve exact jewelry details and metallic shine.",
		ShadowIntensity:  0.5,
		VignetteStrength: 0.4,
		ColorGrading:     "dramatic",
	},
	{
		Name:             "Champagne Satin Glow",
		BackgroundStyle:  "satin",
		LightingPreset:   "soft-glow",
		Description:      "Warm champagne satin background with golden lighting, luxurious and refined.",
		DiffusionPrompt:  "Use the uploaded jewelry image. Place it on a warm champagne satin background with golden lighting, luxurious and refined. Maintain jewelry authenticity with enhanced reflections.",
		ShadowIntensity:  0.25,
		VignetteStrength: 0.15,
		ColorGrading:     "warm",
	},
	{
		Name:             "White Marble Luxe",
		BackgroundStyle:  "marble",
		LightingPreset:   "studio",
		Description:      "Premium white marble with fine gray veins, daylight tone, minimal and elegant.",
		DiffusionPrompt:  "Use the uploaded jewelry image. Place it on premium white marble with fine gray veins, daylight tone, minimal and elegant. Keep jewelry colors and details unchanged.",
		ShadowIntensity:  0.2,
		VignetteStrength: 0.1,
		ColorGrading:     "neutral",
	},
	{
		Name:             "Black Onyx Surface",
		BackgroundStyle:  "onyx",
		LightingPreset:   "spotlight",
		Description:      "Matte black onyx background with focused light, dramatic and rich.",
		DiffusionPrompt:  "Use the uploaded jewelry image. Place it on a matte black onyx background with focused light, dramatic and rich. Preserve jewelry shine and metallic properties.",
		ShadowIntensity:  0.6,
		VignetteStrength: 0.5,
		ColorGrading:     "dramatic",
	},
	{
		Name:             "Dusty Rose Velvet",
		BackgroundStyle:  "velvet",
		LightingPreset:   "moody",
		Description:      "Muted pink velvet backdrop with soft, moody lighting and gentle shadows.",
		DiffusionPrompt:  "Use the uploaded jewelry image. Place it on a muted pink velvet backdrop with soft, moody lighting and gentle shadows. Maintain exact jewelry appearance.",
		ShadowIntensity:  0.3,
		VignetteStrength: 0.25,
		ColorGrading:     "warm",
	},
	{
		Name:             "Emerald Stone Studio",
		BackgroundStyle:  "stone",
		LightingPreset:   "studio",
		Description:      "Polished emerald-green surface with soft reflections and premium tone.",
		DiffusionPrompt:  "Use the uploaded jewelry image. Place it on a polished emerald-green surface with soft reflections and premium tone. Keep jewelry design and colors authentic.",
		ShadowIntensity:  0.35,
		VignetteStrength: 0.2,
		ColorGrading:     "cool",
	},
	{
		Name:             "Pearl White Texture",
		BackgroundStyle:  "pearl",
		LightingPreset:   "soft-glow",
		Description:      "Smooth pearl-white backdrop with iridescent glow and clean lighting.",
		DiffusionPrompt:  "Use the uploaded jewelry image. Place it on a smooth pearl-white backdrop with iridescent glow and clean lighting. Preserve jewelry details exactly.",
		ShadowIntensity:  0.15,
		VignetteStrength: 0.1,
		ColorGrading:     "neutral",
	},
	{
		ID:               "dark-blue-velvet",
		Name:             "Dark Blue Velvet Luxury",
		BackgroundStyle:  "velvet",
		LightingPreset:   "moody",
		Description:      "Elegant matte blue velvet background with cinematic lighting.",
		DiffusionPrompt:  "A dark, elegant matte blue velvet or suede background with soft texture, under moody, directional lighting. Strong light beams cast realistic shadows in a criss-cross windowpane pattern, creating a dramatic and luxurious ambiance with a focused spotlight on the product area.",
		ShadowIntensity:  0.5,
		VignetteStrength: 0.4,
		ColorGrading:     "dramatic",
	},
}
