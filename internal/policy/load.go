package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/bifrost/internal/constraint"
)

// LoadMode controls how errors are handled during policy loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the policies loaded from a directory.
type LoadResult struct {
	Policies  []Definition
	FileCount int
}

// LoadError is a loading failure with a stable code.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for policy loading.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeNoPolicies    = "E101" // No policy declared
	ErrCodeInvalidTables = "E102" // Missing or malformed tables
	ErrCodeInvalidColumn = "E103" // Malformed column entry
	ErrCodeInvalidJoin   = "E104" // Malformed join pair
	ErrCodeInvalidLimit  = "E105" // Malformed max_rows
	ErrCodeInvalidRule   = "E106" // Unknown or malformed rule
	ErrCodeInvalidReq    = "E107" // Malformed required constraint
)

// Load loads and compiles the CUE policies of a directory.
func Load(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("policy directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing policy directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result, errs := compileAll(value, mode)
	if result != nil {
		result.FileCount = len(files)
	}
	return result, errs
}

// CompileString compiles policies from CUE source text.
func CompileString(src string) (*LoadResult, []error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}
	return compileAll(value, LoadModeCollectAll)
}

func compileAll(value cue.Value, mode LoadMode) (*LoadResult, []error) {
	var errs []error
	result := &LoadResult{}

	policies := value.LookupPath(cue.ParsePath("policy"))
	if !policies.Exists() {
		return result, []error{&LoadError{Code: ErrCodeNoPolicies, Message: "no policy declared"}}
	}
	iter, err := policies.Fields()
	if err != nil {
		return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating policies: %v", err)}}
	}
	for iter.Next() {
		def, err := CompilePolicy(iter.Value())
		if err != nil {
			errs = append(errs, convertCompileError(err, "policy."+iter.Label()))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Policies = append(result.Policies, *def)
	}
	if len(result.Policies) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoPolicies, Message: "no policy declared"})
	}
	return result, errs
}

// Validators builds the validators of the named policies, in the order
// given. With no names, every policy is used in declaration order.
func (r *LoadResult) Validators(names ...string) ([]constraint.Validator, error) {
	defs := r.Policies
	if len(names) > 0 {
		byName := make(map[string]Definition, len(r.Policies))
		for _, d := range r.Policies {
			byName[d.Name] = d
		}
		defs = make([]Definition, 0, len(names))
		for _, n := range names {
			d, ok := byName[n]
			if !ok {
				return nil, fmt.Errorf("unknown policy %q", n)
			}
			defs = append(defs, d)
		}
	}

	validators := make([]constraint.Validator, 0, len(defs))
	for i := range defs {
		v, err := defs[i].Validator()
		if err != nil {
			return nil, err
		}
		validators = append(validators, v)
	}
	return validators, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", context, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%s: %v", context, err)}
}

// MapFieldToErrorCode maps a compile error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "tables":
		return ErrCodeInvalidTables
	case "select", "conditions", "star", "policy":
		return ErrCodeInvalidColumn
	case "joins":
		return ErrCodeInvalidJoin
	case "max_rows":
		return ErrCodeInvalidLimit
	case "rules":
		return ErrCodeInvalidRule
	case "require":
		return ErrCodeInvalidReq
	default:
		return ErrCodeGeneric
	}
}
