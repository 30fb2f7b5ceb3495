package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/txsched/internal/compiler"
	"github.com/roach88/txsched/internal/graph"
	"github.com/roach88/txsched/internal/ir"
)

// LoadResult contains a design loaded from a directory of CUE files.
type LoadResult struct {
	Design    *ir.Design
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred while loading a design.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDesign loads the CUE package in dir and compiles it to a design.
// Every returned error is a *LoadError.
func LoadDesign(dir string) (*LoadResult, error) {
	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("design directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing design directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	// Find CUE files
	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	// Load CUE instances
	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}

	// Check for load errors
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	// Build value from instance
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	d, err := compiler.CompileDesign(value)
	if err != nil {
		return nil, convertCompileError(err)
	}

	return &LoadResult{
		Design:    d,
		CUEValue:  value,
		FileCount: len(cueFiles),
	}, nil
}

// loadGraph loads a design and builds its conflict graph. Load errors come
// back as *LoadError, graph errors unchanged.
func loadGraph(dir string) (*ir.Design, *graph.ConflictGraph, error) {
	res, err := LoadDesign(dir)
	if err != nil {
		return nil, nil, err
	}
	g, err := graph.FromDesign(*res.Design)
	if err != nil {
		return res.Design, nil, err
	}
	return res.Design, g, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
// The cue.mod directory is skipped.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && info.Name() == "cue.mod" {
			return filepath.SkipDir
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: err.Error(),
	}
}

// designErrorCode returns the code reported for a load, graph or body error.
func designErrorCode(err error) string {
	var loadErr *LoadError
	var ce *graph.ConflictGraphError
	var de *graph.DeclarationError
	switch {
	case errors.As(err, &loadErr):
		return loadErr.Code
	case errors.As(err, &ce):
		return string(ce.Code)
	case errors.As(err, &de):
		return string(de.Code)
	default:
		return ErrCodeGeneric
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeStore       = "E008" // Database error
	ErrCodeStimulus    = "E009" // Stimulus file error

	// Design errors share the compiler's validation codes
	ErrCodeDesignName   = compiler.ErrInvalidName
	ErrCodeNoTx         = compiler.ErrDesignNoTransactions
	ErrCodeInvalidType  = compiler.ErrInvalidFieldType
	ErrCodeInvalidCalls = compiler.ErrUnknownCall
	ErrCodeRelation     = compiler.ErrInvalidRelationKind
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "design":
		return ErrCodeDesignName
	case field == "transaction":
		return ErrCodeNoTx
	case field == "type":
		return ErrCodeInvalidType
	case field == "cue":
		return ErrCodeBuildFailed
	case strings.HasPrefix(field, "relation"):
		return ErrCodeRelation
	case strings.HasSuffix(field, ".calls"):
		return ErrCodeInvalidCalls
	case strings.HasSuffix(field, ".input"), strings.HasSuffix(field, ".output"):
		return ErrCodeInvalidType
	default:
		return ErrCodeGeneric
	}
}
