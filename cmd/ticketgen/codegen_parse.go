package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// The language tag and the newline after it are optional, so a fence on a
// single line is stripped too. JSON never starts with a tag character.
var codeFencePattern = regexp.MustCompile("(?s)^```[A-Za-z0-9_+-]*[ \t]*\r?\n?(.*?)\r?\n?[ \t]*```\\s*$")

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if m := codeFencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ParseGenerationResponse decodes a model reply of the form
// {"project_name": string, "files": [{"path": string, "content": string}]},
// optionally wrapped in a fenced code block. Syntax errors and schema errors
// are reported as distinct GenerationError kinds.
func ParseGenerationResponse(raw string) (GeneratedProject, error) {
	body := stripCodeFence(raw)
	if body == "" || !json.Valid([]byte(body)) {
		return GeneratedProject{}, invalidJSON(body)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &top); err != nil || top == nil {
		return GeneratedProject{}, invalidShape("top-level value must be a JSON object")
	}

	name, err := requiredString(top, "project_name")
	if err != nil {
		return GeneratedProject{}, err
	}
	if strings.TrimSpace(name) == "" {
		return GeneratedProject{}, invalidShape("project_name must not be empty")
	}

	filesRaw, ok := top["files"]
	if !ok || isJSONNull(filesRaw) {
		return GeneratedProject{}, invalidShape("missing files")
	}
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(filesRaw, &entries); err != nil {
		return GeneratedProject{}, invalidShape("files must be an array of objects")
	}
	if len(entries) == 0 {
		return GeneratedProject{}, invalidShape("files must not be empty")
	}

	project := GeneratedProject{
		Name:      strings.TrimSpace(name),
		ModelName: strings.TrimSpace(name),
		Files:     make([]ProjectFile, 0, len(entries)),
	}
	for i, entry := range entries {
		if entry == nil {
			return GeneratedProject{}, invalidShape(fmt.Sprintf("files[%d] must be an object", i))
		}
		path, err := requiredString(entry, "path")
		if err != nil {
			return GeneratedProject{}, invalidShape(fmt.Sprintf("files[%d]: %v", i, errors.Unwrap(err)))
		}
		if strings.TrimSpace(path) == "" {
			return GeneratedProject{}, invalidShape(fmt.Sprintf("files[%d].path must not be empty", i))
		}
		content, err := requiredString(entry, "content")
		if err != nil {
			return GeneratedProject{}, invalidShape(fmt.Sprintf("files[%d]: %v", i, errors.Unwrap(err)))
		}
		project.Files = append(project.Files, ProjectFile{Path: strings.TrimSpace(path), Content: content})
	}
	return project, nil
}

func requiredString(obj map[string]json.RawMessage, key string) (string, error) {
	raw, ok := obj[key]
	if !ok {
		return "", invalidShape("missing " + key)
	}
	if isJSONNull(raw) {
		return "", invalidShape(key + " must be a string, got null")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalidShape(key + " must be a string")
	}
	return s, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

func invalidJSON(body string) error {
	var syntaxErr error = errors.New("response is empty")
	if body != "" {
		var v any
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			syntaxErr = err
		}
	}
	return &GenerationError{Kind: GenerationInvalidJSON, Err: syntaxErr}
}

func invalidShape(msg string) error {
	return &GenerationError{Kind: GenerationInvalidShape, Err: errors.New(msg)}
}
