package enhance

import (
	"strings"

	"drisya/internal/providers/image"
)

// DefaultGenerationPrefix anchors text-only generation, which has no source
// image to keep the composition on the product.
const DefaultGenerationPrefix = "Create a luxury jewelry photography image: "

// maxPromptRunes is the longest prompt any configured provider accepts.
const maxPromptRunes = 4000

const blurSuffix = "Remove any blur and enhance image clarity. Sharpen all details and improve focus."

var qualitySuffixes = map[image.Quality]string{
	image.QualityStandard: "Create standard quality output with good detail preservation.",
	image.QualityHigh:     "Create high quality output with enhanced details, vibrant colors, and professional finish.",
	image.QualityUltra:    "Create ultra high quality output with maximum detail enhancement, perfect lighting, professional studio quality.",
}

// PreparePrompt appends the sharpening and quality instructions to base.
func PreparePrompt(base string, quality image.Quality, blurred bool) string {
	parts := []string{strings.TrimSpace(base)}
	if blurred {
		parts = append(parts, blurSuffix)
	}
	suffix, ok := qualitySuffixes[quality]
	if !ok {
		suffix = qualitySuffixes[image.QualityStandard]
	}
	parts = append(parts, suffix)
	return truncateRunes(strings.Join(nonEmpty(parts), " "), maxPromptRunes)
}

// GenerationPrompt prefixes prompt with the domain qualifier unless it
// already starts with it.
func GenerationPrompt(prefix, prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prefix == "" {
		return prompt
	}
	if strings.HasPrefix(strings.ToLower(prompt), strings.ToLower(strings.TrimSpace(prefix))) {
		return prompt
	}
	return truncateRunes(prefix+prompt, maxPromptRunes)
}

func nonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
