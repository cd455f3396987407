package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

// DefaultChatModels are tried for chat turns when nothing else is configured.
func DefaultChatModels() []domain.ModelCandidate {
	return []domain.ModelCandidate{
		{Name: "gemini-2.5-flash", Priority: 1},
		{Name: "gemini-flash-latest", Priority: 1},
		{Name: "gemini-2.0-flash", Priority: 2},
		{Name: "gemini-2.0-flash-001", Priority: 2},
		{Name: "gemini-2.5-pro", Priority: 3},
		{Name: "gemini-pro-latest", Priority: 3},
		{Name: "gemini-2.0-flash-lite", Priority: 4},
		{Name: "gemini-exp-1206", Priority: 5},
	}
}

// DefaultAnalysisModels are tried for bulk review analysis.
func DefaultAnalysisModels() []domain.ModelCandidate {
	return []domain.ModelCandidate{
		{Name: "gemini-2.5-flash", Priority: 1},
		{Name: "gemini-flash-latest", Priority: 2},
		{Name: "gemini-2.0-flash", Priority: 3},
		{Name: "gemini-2.5-pro", Priority: 4},
		{Name: "gemini-pro-latest", Priority: 5},
	}
}

// ModelsYAML represents the structure of the MODELS_FILE document.
type ModelsYAML struct {
	Chat     []domain.ModelCandidate `yaml:"chat"`
	Analysis []domain.ModelCandidate `yaml:"analysis"`
}

// GatewayModels resolves the chat and analysis candidate lists. MODELS_FILE
// wins over CHAT_MODELS/ANALYSIS_MODELS, which win over the defaults.
// A list left empty by a source keeps the next source's value.
func (c Config) GatewayModels() (chat, analysis []domain.ModelCandidate, err error) {
	chat, analysis = DefaultChatModels(), DefaultAnalysisModels()
	if len(c.ChatModels) > 0 {
		if chat, err = ParseModelList(c.ChatModels); err != nil {
			return nil, nil, fmt.Errorf("op=config.GatewayModels: CHAT_MODELS: %w", err)
		}
	}
	if len(c.AnalysisModels) > 0 {
		if analysis, err = ParseModelList(c.AnalysisModels); err != nil {
			return nil, nil, fmt.Errorf("op=config.GatewayModels: ANALYSIS_MODELS: %w", err)
		}
	}
	if c.ModelsFile != "" {
		doc, ferr := LoadModelsFile(c.ModelsFile)
		if ferr != nil {
			return nil, nil, fmt.Errorf("op=config.GatewayModels: %w", ferr)
		}
		if len(doc.Chat) > 0 {
			chat = doc.Chat
		}
		if len(doc.Analysis) > 0 {
			analysis = doc.Analysis
		}
	}
	return chat, analysis, nil
}

// ParseModelList parses entries of the form name or name:priority. An entry
// without a priority takes its 1-based position in the list.
func ParseModelList(entries []string) ([]domain.ModelCandidate, error) {
	out := make([]domain.ModelCandidate, 0, len(entries))
	for i, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		name, prio := raw, i+1
		if idx := strings.LastIndex(raw, ":"); idx >= 0 {
			name = strings.TrimSpace(raw[:idx])
			p, err := strconv.Atoi(strings.TrimSpace(raw[idx+1:]))
			if err != nil {
				return nil, fmt.Errorf("invalid priority in %q: %w", raw, err)
			}
			prio = p
		}
		if name == "" {
			return nil, fmt.Errorf("empty model name in %q", raw)
		}
		out = append(out, domain.ModelCandidate{Name: name, Priority: prio})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no models listed")
	}
	return out, nil
}

// LoadModelsFile reads candidate lists from a YAML file.
func LoadModelsFile(filePath string) (ModelsYAML, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return ModelsYAML{}, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return ModelsYAML{}, fmt.Errorf("config file not found: %s", absPath)
	}
	// #nosec G304 -- Configuration files are expected to be safe
	content, err := os.ReadFile(absPath)
	if err != nil {
		return ModelsYAML{}, fmt.Errorf("failed to read config file: %w", err)
	}
	var doc ModelsYAML
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return ModelsYAML{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	for _, m := range append(append([]domain.ModelCandidate{}, doc.Chat...), doc.Analysis...) {
		if strings.TrimSpace(m.Name) == "" {
			return ModelsYAML{}, fmt.Errorf("model entry without name in %s", filePath)
		}
	}
	return doc, nil
}
