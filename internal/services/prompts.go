package services

import (
	"fmt"
	"strings"

	"github.com/storyforge/image-api/internal/styles"
)

// Excerpt limits keep model input inside token budgets. Korean text makes
// byte slicing unsafe, so truncation counts runes.
const (
	analysisExcerptLimit  = 5000
	thumbnailExcerptLimit = 300
	contextExcerptLimit   = 500
)

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func titleOrUntitled(title string) string {
	if strings.TrimSpace(title) == "" {
		return "Untitled"
	}
	return title
}

// AnalysisPrompt asks the model for a structured style profile of the novel.
func AnalysisPrompt(title, novelText string) string {
	return fmt.Sprintf(`Analyze the style and atmosphere of the following novel for image generation purposes.

NOVEL TITLE: %s

NOVEL CONTENT (excerpt):
%s

Provide a JSON response with the following structure. All values should be optimized for AI image generation:

{
    "style_summary": "2-3 sentences describing the overall style and tone of the novel",
    "atmosphere": "Atmosphere description in English (e.g., 'dark and mysterious', 'bright and cheerful', 'melancholic and poetic')",
    "visual_style": "Visual art style for image generation (e.g., 'dark fantasy art', 'realistic illustration', 'anime style', 'oil painting style')",
    "key_themes": ["theme1", "theme2", "theme3"],
    "color_palette": "Color palette description (e.g., 'cool blue tones with purple accents', 'warm golden hues', 'high contrast dark and light')",
    "lighting_style": "Lighting style for images (e.g., 'dramatic chiaroscuro', 'soft diffused light', 'moonlit ambiance', 'golden hour warmth')",
    "visual_keywords": ["keyword1", "keyword2", "keyword3", "keyword4", "keyword5"]
}

IMPORTANT for visual_keywords:
- Provide 5-8 English keywords that can be directly used in image generation prompts
- Include: art style, mood, setting type, time of day, weather/atmosphere
- Examples: "fantasy", "medieval", "misty forest", "twilight", "ethereal glow", "gothic architecture"
- These keywords should be safe for image generation (avoid violent or sensitive terms)

Respond ONLY with valid JSON, no additional text or markdown.`,
		titleOrUntitled(title),
		truncateRunes(novelText, analysisExcerptLimit))
}

func styleContext(profile styles.Profile, includeThemes bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n- Atmosphere: %s\n", valueOr(profile.Atmosphere, "general"))
	fmt.Fprintf(&b, "- Visual Style: %s\n", valueOr(profile.VisualStyle, "realistic style"))
	fmt.Fprintf(&b, "- Color Palette: %s\n", valueOr(profile.ColorPalette, "natural colors"))
	if includeThemes {
		themes := profile.KeyThemes
		if len(themes) > 3 {
			themes = themes[:3]
		}
		fmt.Fprintf(&b, "- Key Themes: %s\n", strings.Join(themes, ", "))
	}
	fmt.Fprintf(&b, "- Lighting: %s\n", valueOr(profile.LightingStyle, "natural lighting"))
	fmt.Fprintf(&b, "- Visual Keywords: %s\n", strings.Join(profile.VisualKeywords, ", "))
	return b.String()
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ThumbnailPrompt asks the model to design a book-cover prompt from the
// learned profile and a short excerpt.
func ThumbnailPrompt(title string, profile styles.Profile, novelTextSample string) string {
	sample := ""
	if novelTextSample != "" {
		sample = "\nNovel excerpt: " + truncateRunes(novelTextSample, thumbnailExcerptLimit)
	}

	return fmt.Sprintf(`You are an expert book cover designer and image prompt engineer.

NOVEL TITLE: %s

NOVEL STYLE INFORMATION:
%s%s

CREATE a book cover/thumbnail image prompt that:

1. COMPOSITION:
   - Strong focal point that captures the novel's essence
   - Suitable for vertical format (book cover style)
   - Clear visual hierarchy with a central element
   - Leave space for potential title overlay (but don't include text)

2. VISUAL ELEMENTS:
   - Incorporate symbolic elements from the novel's themes
   - Use the specified color palette and atmosphere
   - Add atmospheric effects (mist, light rays, particles) if appropriate

3. STYLE REQUIREMENTS:
   - Art style matching the novel's genre
   - Professional book cover quality
   - Must include: "book cover art", "professional illustration"
   - Add: "highly detailed", "cinematic composition", "dramatic lighting"

4. SAFETY COMPLIANCE:
   - Use artistic/symbolic representation for any dramatic themes
   - Focus on atmosphere and mood rather than explicit content
   - Transform any potentially sensitive elements into abstract visuals

5. FORMAT:
   - Write in English only
   - Keep between 80-120 words
   - Do NOT include any text/typography in the image description

OUTPUT: Write ONLY the prompt. No explanations, no quotes.

THUMBNAIL PROMPT:`,
		titleOrUntitled(title),
		styleContext(profile, true),
		sample)
}

// FallbackThumbnailPrompt is used when the model fails to produce a cover
// prompt; it composes one directly from the profile.
func FallbackThumbnailPrompt(title string, profile styles.Profile) string {
	name := title
	if strings.TrimSpace(name) == "" {
		name = "a novel"
	}
	return fmt.Sprintf("Book cover illustration for '%s', %s, %s mood, %s, professional artwork, highly detailed, cinematic lighting, dramatic composition",
		name,
		valueOr(profile.VisualStyle, "realistic style"),
		valueOr(profile.Atmosphere, "atmospheric"),
		valueOr(profile.ColorPalette, "natural colors"))
}

// EnhancedPrompt asks the model to fold the novel's style into the user's
// image request.
func EnhancedPrompt(userPrompt string, profile styles.Profile, contextText string) string {
	extra := ""
	if contextText != "" {
		extra = "\nAdditional Context: " + truncateRunes(contextText, contextExcerptLimit)
	}

	return fmt.Sprintf(`You are an expert image generation prompt engineer. Create a high-quality image generation prompt.

USER'S REQUEST: %s

NOVEL STYLE INFORMATION:
%s%s

REQUIREMENTS:
1. Maintain the user's original intent and subject matter
2. Naturally incorporate the novel's atmosphere and visual style
3. Structure the prompt as follows:
   - Main subject with specific details
   - Environment/background description
   - Lighting and mood (use novel's atmosphere)
   - Art style and quality keywords

4. MUST include these quality enhancers:
   - Art style: "digital painting", "concept art", or "illustration"
   - Quality: "highly detailed", "professional artwork", "masterpiece"
   - Technical: "8k resolution", "sharp focus", "intricate details"

5. Use cinematic/artistic language:
   - Instead of "dark" -> "dramatic shadows", "low-key lighting"
   - Instead of "scary" -> "mysterious atmosphere", "enigmatic mood"
   - Instead of "fighting" -> "dynamic pose", "intense moment"

6. Keep the prompt between 80-150 words
7. Write in English only
8. Do NOT include any negative words or things to avoid

OUTPUT: Write ONLY the enhanced prompt. No explanations, no quotes, no prefixes.

ENHANCED PROMPT:`,
		userPrompt,
		styleContext(profile, false),
		extra)
}

// FallbackProfile stands in when style analysis fails; it keeps image
// generation usable with neutral, safe values.
func FallbackProfile(storyID string) styles.Profile {
	return styles.Profile{
		StoryID:        storyID,
		StyleSummary:   "Unable to analyze novel style.",
		Atmosphere:     "general",
		VisualStyle:    "realistic illustration",
		KeyThemes:      []string{},
		ColorPalette:   "natural colors",
		LightingStyle:  "natural lighting",
		VisualKeywords: []string{"illustration", "detailed", "atmospheric"},
	}
}
