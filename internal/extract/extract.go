// Package extract pulls a single JSON object out of free-form language model
// output. Models wrap their answer in markdown fences, prepend prose, or get
// cut off mid-field by token limits; this package tolerates all three.
package extract

import (
	"encoding/json"
	"strings"
)

// maxTrimAttempts bounds the trim-back loop for truncated JSON. Each attempt
// drops the region after the previous '}' candidate and reparses.
const maxTrimAttempts = 50

// Object attempts to extract and parse one JSON object from text. The second
// return value is false when no parseable object could be recovered.
func Object(text string) (json.RawMessage, bool) {
	text = stripFence(text)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}
	end := strings.LastIndexByte(text, '}')
	if end < start {
		return nil, false
	}

	candidate := text[start : end+1]
	for attempt := 0; attempt < maxTrimAttempts; attempt++ {
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), true
		}

		// Truncated output: trim back to the previous '}' and retry. This
		// recovers objects whose trailing field was cut off by a token limit.
		prev := strings.LastIndexByte(candidate[:len(candidate)-1], '}')
		if prev < 0 {
			return nil, false
		}
		candidate = candidate[:prev+1]
	}

	return nil, false
}

// Into extracts a JSON object from text and unmarshals it into v.
func Into(text string, v any) bool {
	raw, ok := Object(text)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// stripFence removes a markdown code fence around the payload, with or
// without a language tag.
func stripFence(text string) string {
	trimmed := strings.TrimSpace(text)

	open := strings.Index(trimmed, "```")
	if open < 0 {
		return trimmed
	}

	rest := trimmed[open+3:]
	// Drop the language tag line, e.g. ```json
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}

	if closing := strings.LastIndex(rest, "```"); closing >= 0 {
		rest = rest[:closing]
	}
	return strings.TrimSpace(rest)
}
