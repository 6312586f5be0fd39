package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/captionforge/pkg/models"
)

// boilerplatePrefixes are lead-ins models put in front of a plain-text caption.
var boilerplatePrefixes = []string{
	"Caption:",
	"Description:",
	"Here is",
	"The image shows",
	"This image shows",
	"In this image,",
	"Here's",
}

// maxLeadInLen bounds how far a "Here is ...:" lead-in may run before its colon.
const maxLeadInLen = 60

type structuredReply struct {
	Caption *string         `json:"caption"`
	Quality json.RawMessage `json:"quality"`
	Flags   json.RawMessage `json:"flags"`
}

// ParseResponse interprets a raw backend reply. It never fails: when the reply is not
// the expected JSON object the whole text becomes the caption and quality data is nil.
func ParseResponse(raw string) models.CaptionResult {
	text := strings.TrimSpace(raw)

	if result, ok := parseStructured(extractFenced(text)); ok {
		return result
	}
	return models.CaptionResult{Caption: cleanPlainCaption(text)}
}

// extractFenced returns the interior of the first markdown code fence, or text unchanged.
func extractFenced(text string) string {
	for _, fence := range []string{"```json", "```"} {
		start := strings.Index(text, fence)
		if start < 0 {
			continue
		}
		start += len(fence)
		end := strings.Index(text[start:], "```")
		if end > 0 {
			return strings.TrimSpace(text[start : start+end])
		}
		return text
	}
	return text
}

func parseStructured(text string) (models.CaptionResult, bool) {
	var reply structuredReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil || reply.Caption == nil {
		return models.CaptionResult{}, false
	}

	result := models.CaptionResult{Caption: strings.TrimSpace(*reply.Caption)}

	overall, details := parseQuality(reply.Quality)
	result.QualityScore = overall

	if flags := parseFlags(reply.Flags); len(flags) > 0 {
		result.QualityFlags = flags
	} else if len(details) > 0 {
		result.QualityFlags = details
	}
	return result, true
}

// parseQuality extracts quality.overall and renders every other entry as "name:value",
// in document order.
func parseQuality(raw json.RawMessage) (*float64, []string) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil
	}

	var overall *float64
	var details []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return overall, details
		}
		key, _ := keyTok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return overall, details
		}

		if key == "overall" {
			if n, ok := value.(json.Number); ok {
				if f, err := n.Float64(); err == nil {
					overall = &f
				}
			}
			continue
		}
		details = append(details, fmt.Sprintf("%s:%v", key, value))
	}
	return overall, details
}

func parseFlags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	flags := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			flags = append(flags, v)
		case nil:
		default:
			flags = append(flags, fmt.Sprint(v))
		}
	}
	return flags
}

func cleanPlainCaption(text string) string {
	caption := text
	for stripped := true; stripped; {
		stripped = false
		for _, prefix := range boilerplatePrefixes {
			if len(caption) < len(prefix) || !strings.EqualFold(caption[:len(prefix)], prefix) {
				continue
			}
			caption = strings.TrimSpace(caption[len(prefix):])
			if prefix == "Here is" || prefix == "Here's" {
				caption = stripLeadIn(caption)
			}
			stripped = true
		}
	}

	if len(caption) >= 2 && strings.HasPrefix(caption, `"`) && strings.HasSuffix(caption, `"`) {
		caption = strings.TrimSpace(caption[1 : len(caption)-1])
	}
	return caption
}

// stripLeadIn drops the rest of a "Here is a description:" style lead-in.
func stripLeadIn(s string) string {
	idx := strings.Index(s, ":")
	if idx < 0 || idx > maxLeadInLen || strings.ContainsAny(s[:idx], ".\n") {
		return s
	}
	return strings.TrimSpace(s[idx+1:])
}
