package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ValidateBytes(data), nil
}

// ValidateBytes validates config JSON structure without resolving env vars
func ValidateBytes(data []byte) *ValidationResult {
	result := &ValidationResult{}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", Version)
	} else if version != Version {
		result.addError("version", "unsupported version '%s' - use '%s'", version, Version)
	}

	validateSiteStructure(rawConfig, result)
	validateSSOStructure(rawConfig, result)
	validateContentStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)

	return result
}

func validateSiteStructure(rawConfig map[string]any, result *ValidationResult) {
	site, ok := rawConfig["site"].(map[string]any)
	if !ok {
		result.addError("site", "site section is required")
		return
	}
	for _, field := range []string{"url", "addr"} {
		if s, _ := site[field].(string); s == "" {
			result.addError("site."+field, "%s is required", field)
		}
	}
	if paths, ok := site["publicPaths"].([]any); ok {
		for i, p := range paths {
			if s, _ := p.(string); !strings.HasPrefix(s, "/") {
				result.addError(fmt.Sprintf("site.publicPaths[%d]", i), "public path must start with /")
			}
		}
	}
}

func validateSSOStructure(rawConfig map[string]any, result *ValidationResult) {
	sso, ok := rawConfig["sso"].(map[string]any)
	if !ok {
		result.addError("sso", "sso section is required")
		return
	}

	for _, field := range []string{"googleClientId", "proxyURL"} {
		value, exists := sso[field]
		if !exists {
			result.addError("sso."+field, "%s is required", field)
			continue
		}
		if err := validateValueOrEnvRef(value, "sso."+field); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	}

	for _, field := range []string{"sessionTtl", "verifyTimeout", "verifiedCacheTtl"} {
		validateDurationField(sso, field, "sso."+field, result)
	}
	if retry, ok := sso["retry"].(map[string]any); ok {
		validateDurationField(retry, "initialInterval", "sso.retry.initialInterval", result)
		if n, ok := retry["maxAttempts"].(float64); ok && n < 1 {
			result.addError("sso.retry.maxAttempts", "maxAttempts must be at least 1")
		}
	}

	if enforce, ok := sso["enforceSameOrigin"].(bool); ok && !enforce {
		result.addWarning("sso.enforceSameOrigin", "same-origin enforcement of return_to is disabled. Any site can be used as the post-login destination")
	}
}

func validateContentStructure(rawConfig map[string]any, result *ValidationResult) {
	content, ok := rawConfig["content"].(map[string]any)
	if !ok {
		result.addError("content", "content section is required")
		return
	}

	source, _ := content["source"].(string)
	switch ContentSourceKind(source) {
	case "", ContentSourceDir:
		if dir, _ := content["dir"].(string); dir == "" {
			result.addError("content.dir", "dir is required for dir source")
		}
	case ContentSourceS3:
		s3, ok := content["s3"].(map[string]any)
		if !ok {
			result.addError("content.s3", "s3 section is required for s3 source")
			return
		}
		for _, field := range []string{"bucket", "region"} {
			if s, _ := s3[field].(string); s == "" {
				result.addError("content.s3."+field, "%s is required", field)
			}
		}
		if secret, exists := s3["secretAccessKey"]; exists {
			if err := validateEnvVarReference(secret, "content.s3.secretAccessKey"); err != nil {
				result.Errors = append(result.Errors, *err)
			}
		}
	default:
		result.addError("content.source", "unknown source '%s' - supported sources: dir, s3", source)
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		return
	}
	validateDurationField(storage, "memberRetention", "storage.memberRetention", result)
	validateDurationField(storage, "cleanupInterval", "storage.cleanupInterval", result)

	kind, _ := storage["kind"].(string)
	switch StorageKind(kind) {
	case "", StorageMemory:
		result.addWarning("storage.kind", "memory storage loses member history on restart")
	case StorageFirestore:
		if _, exists := storage["gcpProject"]; !exists {
			result.addError("storage.gcpProject", "gcpProject is required when using firestore storage")
		}
	default:
		result.addError("storage.kind", "unknown storage kind '%s' - supported kinds: memory, firestore", kind)
	}
}

func validateDurationField(section map[string]any, field, path string, result *ValidationResult) {
	value, exists := section[field]
	if !exists {
		return
	}
	s, ok := value.(string)
	if !ok {
		result.addError(path, "%s must be a duration string such as \"10s\"", field)
		return
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		result.addError(path, "invalid duration %q: %v", s, err)
		return
	}
	if d < 0 {
		result.addError(path, "%s cannot be negative", field)
	}
}

// validateValueOrEnvRef accepts a plain string or an env reference
func validateValueOrEnvRef(value any, path string) *ValidationError {
	if s, ok := value.(string); ok {
		if s == "" {
			return &ValidationError{Path: path, Message: "value cannot be empty"}
		}
		return nil
	}
	return validateEnvVarReference(value, path)
}

// validateEnvVarReference checks that value is {"$env": "VAR_NAME"}
func validateEnvVarReference(value any, path string) *ValidationError {
	ref, ok := value.(map[string]any)
	if !ok {
		return &ValidationError{
			Path:    path,
			Message: "must use environment variable reference for security. Hint: {\"$env\": \"VAR_NAME\"}",
		}
	}
	name, ok := ref["$env"].(string)
	if !ok || name == "" {
		return &ValidationError{
			Path:    path,
			Message: "must use {\"$env\": \"VAR_NAME\"} format",
		}
	}
	return nil
}

var bashStyleRegex = regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
