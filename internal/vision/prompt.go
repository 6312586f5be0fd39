package vision

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/captionforge/pkg/models"
)

// PromptOptions are the user-controlled inputs to a caption prompt.
type PromptOptions struct {
	Style         string
	MaxLength     *int
	CustomPrompt  *string
	TriggerPhrase *string
}

var stylePrompts = map[string]string{
	models.StyleNatural: "Describe this image in one clear, concise sentence suitable for AI image generation training.\n" +
		"Focus on: main subject, action/pose, setting/background.\n" +
		"Be objective and descriptive. Avoid subjective interpretations.",
	models.StyleDetailed: "Provide a detailed 2-3 sentence description of this image suitable for AI training.\n" +
		"Include: subjects, actions, environment, mood, lighting, notable details, composition.\n" +
		"Be specific and objective.",
	models.StyleTags: "Generate 15-25 comma-separated lowercase tags describing this image. NOT a sentence - just tags separated by commas.\n" +
		"Include: subject, gender, pose/action, clothing details, hair color/style, eye color, background/setting, lighting, colors, mood.",
}

// outputDirective is appended to every prompt. It defines the JSON contract ParseResponse
// relies on and is never taken from user input.
const outputDirective = `

Also assess the image quality for training suitability.

Output format (JSON only, no other text):
{
  "caption": "Your caption here",
  "quality": {
    "sharpness": 0.0-1.0,
    "clarity": 0.0-1.0,
    "composition": 0.0-1.0,
    "exposure": 0.0-1.0,
    "overall": 0.0-1.0
  },
  "flags": ["list", "of", "any", "quality", "issues"]
}`

// OutputDirective returns the fixed output-format instruction.
func OutputDirective() string { return outputDirective }

// BuildPrompt assembles the full instruction for one image.
//
// The returned error is non-nil only for configuration anomalies that were recovered
// from (currently ErrCustomStyleWithoutPrompt); the prompt is always usable.
func BuildPrompt(opts PromptOptions) (string, error) {
	var anomaly error

	custom := ""
	if opts.CustomPrompt != nil {
		custom = strings.TrimSpace(*opts.CustomPrompt)
	}

	style := opts.Style
	var creative string
	if custom != "" {
		creative = custom
	} else {
		if style == models.StyleCustom {
			anomaly = ErrCustomStyleWithoutPrompt
			style = models.StyleNatural
		}
		tmpl, ok := stylePrompts[style]
		if !ok {
			tmpl = stylePrompts[models.StyleNatural]
		}
		creative = tmpl
	}

	var b strings.Builder
	b.WriteString(creative)

	if opts.TriggerPhrase != nil && strings.TrimSpace(*opts.TriggerPhrase) != "" {
		trigger := strings.TrimSpace(*opts.TriggerPhrase)
		if style == models.StyleTags || strings.Contains(strings.ToLower(custom), "tag") {
			fmt.Fprintf(&b, "\n\nIMPORTANT: The caption MUST start with %q as the first tag.\n", trigger)
			fmt.Fprintf(&b, "Example: \"%s, woman, brown hair, white dress, studio, soft lighting\"", trigger)
		} else {
			fmt.Fprintf(&b, "\n\nIMPORTANT: The caption MUST begin with %q followed by a description of the image.", trigger)
		}
	}

	if opts.MaxLength != nil && *opts.MaxLength > 0 {
		fmt.Fprintf(&b, "\n\nMaximum length: %d characters.", *opts.MaxLength)
	}

	b.WriteString(outputDirective)
	return b.String(), anomaly
}

// EnforceTriggerPhrase prefixes caption with trigger when the model left it out.
func EnforceTriggerPhrase(caption string, trigger *string) string {
	if trigger == nil || caption == "" {
		return caption
	}
	t := strings.TrimSpace(*trigger)
	if t == "" || strings.HasPrefix(strings.ToLower(caption), strings.ToLower(t)) {
		return caption
	}
	if strings.HasPrefix(caption, ",") {
		return t + caption
	}
	return t + ", " + caption
}
