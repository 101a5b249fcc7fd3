package rag

import (
	"math"
	"strings"
)

// MinimumTemperature is sent to request temperature 0; go-openai omits a zero temperature.
const MinimumTemperature = math.SmallestNonzeroFloat32

// noTemperatureFamilies are model name prefixes whose chat endpoint rejects the temperature parameter.
var noTemperatureFamilies = []string{"o1", "o3", "o4", "gpt-5"}

// ModelCapabilities describes request parameters a chat model accepts.
type ModelCapabilities struct {
	SupportsTemperature bool
}

// Capabilities resolves model capabilities by family prefix. extra lists additional
// families (prefixes) that reject temperature.
func Capabilities(model string, extra ...string) ModelCapabilities {
	name := strings.ToLower(strings.TrimSpace(model))
	// provider-qualified names such as "openai/o3-mini"
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	for _, family := range append(noTemperatureFamilies, extra...) {
		family = strings.ToLower(strings.TrimSpace(family))
		if family != "" && strings.HasPrefix(name, family) {
			return ModelCapabilities{SupportsTemperature: false}
		}
	}
	return ModelCapabilities{SupportsTemperature: true}
}
