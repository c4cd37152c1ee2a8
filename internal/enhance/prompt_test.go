package enhance

import (
	"strings"
	"testing"

	"drisya/internal/providers/image"
)

func TestPreparePrompt(t *testing.T) {
	got := PreparePrompt("  gold ring on silk ", image.QualityHigh, false)
	want := "gold ring on silk " + qualitySuffixes[image.QualityHigh]
	if got != want {
		t.Fatalf("PreparePrompt = %q, want %q", got, want)
	}
	got = PreparePrompt("ring", "", true)
	if !strings.Contains(got, blurSuffix) || !strings.HasSuffix(got, qualitySuffixes[image.QualityStandard]) {
		t.Fatalf("PreparePrompt blurred = %q", got)
	}
}

func TestPreparePromptTruncates(t *testing.T) {
	got := PreparePrompt(strings.Repeat("é", maxPromptRunes+10), image.QualityStandard, false)
	if n := len([]rune(got)); n != maxPromptRunes {
		t.Fatalf("rune length = %d, want %d", n, maxPromptRunes)
	}
}

func TestGenerationPrompt(t *testing.T) {
	if got := GenerationPrompt("Create product photography: ", "ring"); got != "Create product photography: ring" {
		t.Fatalf("GenerationPrompt = %q", got)
	}
	if got := GenerationPrompt("Create product photography: ", "create product photography: ring"); got != "create product photography: ring" {
		t.Fatalf("prefix should not be doubled, got %q", got)
	}
	if got := GenerationPrompt("", " ring "); got != "ring" {
		t.Fatalf("GenerationPrompt without prefix = %q", got)
	}
}

func TestCostEstimate(t *testing.T) {
	cases := []struct {
		provider string
		method   Method
		quality  image.Quality
		want     float64
	}{
		{"openai", MethodEdit, image.QualityStandard, 0.02},
		{"openai", MethodGenerate, image.QualityStandard, 0.04},
		{"openai", MethodGenerate, image.QualityUltra, 0.08},
		{"stability", MethodEdit, "", 0.01},
		{"replicate", MethodEdit, image.QualityStandard, 0.0055},
		{"replicate", MethodGenerate, image.QualityUltra, 0.011},
		{"huggingface", MethodEdit, image.QualityStandard, 0},
	}
	for _, c := range cases {
		if got := CostEstimate(c.provider, c.method, c.quality); got != c.want {
			t.Fatalf("CostEstimate(%s, %s, %s) = %v, want %v", c.provider, c.method, c.quality, got, c.want)
		}
	}
}
