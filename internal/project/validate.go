package project

import (
	"fmt"

	"github.com/papapumpkin/disperse/internal/version"
	"github.com/papapumpkin/disperse/internal/vcs"
)

// ValidationError records one configuration problem.
type ValidationError struct {
	Field string
	Path  string
	Err   error
}

// Error returns the field, the path when known, and the problem.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Field, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying problem.
func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks that a release of the project could proceed: the tag
// template carries its placeholder, referenced files exist, and every
// target is already in an updateable shape. Nothing is modified.
func Validate(tree vcs.Tree, cfg *Config) []ValidationError {
	var errs []ValidationError

	if err := version.ValidateTagTemplate(cfg.TagName); err != nil {
		errs = append(errs, ValidationError{Field: "tag-name", Err: fmt.Errorf("%w: %w", ErrConfig, err)})
	}

	if cfg.NewsFile != "" && !tree.HasFile(cfg.NewsFile) {
		errs = append(errs, ValidationError{
			Field: "news-file",
			Path:  cfg.NewsFile,
			Err:   fmt.Errorf("%w: news file does not exist", ErrConfig),
		})
	}

	for _, t := range cfg.Targets() {
		if !tree.HasFile(t.Path) {
			errs = append(errs, ValidationError{
				Field: t.Field,
				Path:  t.Path,
				Err:   fmt.Errorf("%w: file does not exist", ErrConfig),
			})
			continue
		}
		data, err := tree.ReadFile(t.Path)
		if err != nil {
			errs = append(errs, ValidationError{Field: t.Field, Path: t.Path, Err: err})
			continue
		}
		if err := t.Updater.Validate(data); err != nil {
			errs = append(errs, ValidationError{Field: t.Field, Path: t.Path, Err: err})
		}
	}
	return errs
}
