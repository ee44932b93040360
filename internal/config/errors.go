package config

import (
	"fmt"
	"os"
)

// Error reports a missing or invalid required setting.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// NewError creates a configuration error.
func NewError(field, message string) *Error {
	return &Error{Field: field, Message: message}
}

// RequireRepositories checks that the automation root and base repository
// are configured. It does not touch the filesystem.
func (c *Config) RequireRepositories() error {
	if c.AutomationRoot == "" {
		return NewError("automation_root", "automation root path is not configured")
	}
	if c.BaseRepositoryPath == "" {
		return NewError("base_repository_path", "base repository path is not configured")
	}
	return nil
}

// RequirePaths checks that the configured automation root and base
// repository exist as directories.
func (c *Config) RequirePaths() error {
	if err := c.RequireRepositories(); err != nil {
		return err
	}
	for _, p := range []struct{ field, path string }{
		{"automation_root", c.AutomationRoot},
		{"base_repository_path", c.BaseRepositoryPath},
	} {
		info, err := os.Stat(p.path)
		if err != nil {
			return NewError(p.field, fmt.Sprintf("%s does not exist", p.path))
		}
		if !info.IsDir() {
			return NewError(p.field, fmt.Sprintf("%s is not a directory", p.path))
		}
	}
	return nil
}
