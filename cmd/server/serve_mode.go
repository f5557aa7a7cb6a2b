package main

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidServeMode = errors.New("invalid serve mode")

// ServeMode selects which surfaces a process exposes.
type ServeMode string

const (
	ServeModeMonolith ServeMode = "monolith"
	ServeModeWeb      ServeMode = "web"
	ServeModeAPI      ServeMode = "api"
)

func ParseServeMode(rawInput string) (ServeMode, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawInput))
	if normalized == "" {
		return ServeModeMonolith, nil
	}

	mode := ServeMode(normalized)
	switch mode {
	case ServeModeMonolith, ServeModeWeb, ServeModeAPI:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidServeMode, rawInput)
	}
}

// ServesPages reports whether the public touchpoint pages are mounted.
func (mode ServeMode) ServesPages() bool {
	return mode == ServeModeMonolith || mode == ServeModeWeb
}

// ServesAPI reports whether the JSON API is mounted.
func (mode ServeMode) ServesAPI() bool {
	return mode == ServeModeMonolith || mode == ServeModeAPI
}
