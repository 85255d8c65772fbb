package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTool indicates Resolve found no tool with the given name.
	ErrUnknownTool = errors.New("catalog: unknown tool")

	// ErrDuplicateTool indicates a second registration under the same name.
	ErrDuplicateTool = errors.New("catalog: duplicate tool name")

	// ErrInvalidDefinition indicates a malformed tool or parameter definition.
	ErrInvalidDefinition = errors.New("catalog: invalid tool definition")

	// ErrSealed indicates registration after Seal.
	ErrSealed = errors.New("catalog: catalog is sealed")

	// ErrInvalidArguments matches every *ArgumentError.
	ErrInvalidArguments = errors.New("catalog: invalid arguments")
)

// ArgumentError names the parameter that failed binding.
type ArgumentError struct {
	Param  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Param, e.Reason)
}

// Is reports ErrInvalidArguments as a match.
func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArguments
}

func argErr(param, format string, args ...any) *ArgumentError {
	return &ArgumentError{Param: param, Reason: fmt.Sprintf(format, args...)}
}

func defErr(tool, format string, args ...any) error {
	return fmt.Errorf("%w: tool %q: %s", ErrInvalidDefinition, tool, fmt.Sprintf(format, args...))
}
