// Command validate_handle_usage enforces the handle-reference rule on the
// schema package: entity structs must reference other entities through
// *cache.Handle fields, never by embedding another entity type directly.
// Direct entity fields would bypass the object cache and break graph-sharing
// detection.
package main

import (
	"flag"
	"fmt"
	"go/types"
	"io"
	"os"
	"sort"

	"golang.org/x/tools/go/packages"
)

const defaultTarget = "chadograph/pkg/chado"

var (
	exitFunc = os.Exit
	loadFunc = loadPackages
)

func main() {
	exitFunc(run(os.Args, os.Stderr, loadFunc))
}

func run(args []string, stderr io.Writer, load func(pattern string) ([]*packages.Package, error)) int {
	if len(args) == 0 {
		return 1
	}
	flags := flag.NewFlagSet(args[0], flag.ContinueOnError)
	flags.SetOutput(stderr)
	target := flags.String("target", defaultTarget, "package pattern to scan for direct entity references")
	if err := flags.Parse(args[1:]); err != nil {
		return 1
	}

	pkgs, err := load(*target)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load %s: %v\n", *target, err)
		return 1
	}
	var violations []Violation
	for _, pkg := range pkgs {
		if pkg.Types == nil {
			_, _ = fmt.Fprintf(stderr, "no type information for %s\n", pkg.PkgPath)
			return 1
		}
		violations = append(violations, EntityViolations(pkg.Types)...)
	}
	if len(violations) > 0 {
		_, _ = fmt.Fprintf(stderr, "Found %d direct entity references:\n\n", len(violations))
		for _, v := range violations {
			_, _ = fmt.Fprintf(stderr, "%s.%s references entity type %s directly; use *cache.Handle\n",
				v.Struct, v.Field, v.Referenced)
		}
		return 1
	}
	return 0
}

func loadPackages(pattern string) ([]*packages.Package, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, err
	}
	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			return nil, fmt.Errorf("package %s has errors: %v", pkg.PkgPath, pkg.Errors[0])
		}
	}
	return pkgs, nil
}

// Violation is one struct field holding an entity type directly.
type Violation struct {
	Struct     string
	Field      string
	Referenced string
}

// EntityViolations scans every struct in pkg and reports fields whose type
// mentions another entity type from the same package. An entity type is any
// named type carrying a SchemaType method.
func EntityViolations(pkg *types.Package) []Violation {
	scope := pkg.Scope()
	var violations []Violation
	for _, name := range scope.Names() {
		obj, ok := scope.Lookup(name).(*types.TypeName)
		if !ok {
			continue
		}
		named, ok := obj.Type().(*types.Named)
		if !ok {
			continue
		}
		st, ok := named.Underlying().(*types.Struct)
		if !ok {
			continue
		}
		for i := 0; i < st.NumFields(); i++ {
			field := st.Field(i)
			if ref := referencedEntity(pkg, field.Type()); ref != "" {
				violations = append(violations, Violation{Struct: name, Field: field.Name(), Referenced: ref})
			}
		}
	}
	sort.Slice(violations, func(i, j int) bool {
		if violations[i].Struct != violations[j].Struct {
			return violations[i].Struct < violations[j].Struct
		}
		return violations[i].Field < violations[j].Field
	})
	return violations
}

// referencedEntity unwraps pointers, slices, arrays and maps and returns the
// name of the first entity type from pkg the field type mentions.
func referencedEntity(pkg *types.Package, t types.Type) string {
	switch tt := t.(type) {
	case *types.Pointer:
		return referencedEntity(pkg, tt.Elem())
	case *types.Slice:
		return referencedEntity(pkg, tt.Elem())
	case *types.Array:
		return referencedEntity(pkg, tt.Elem())
	case *types.Map:
		if ref := referencedEntity(pkg, tt.Key()); ref != "" {
			return ref
		}
		return referencedEntity(pkg, tt.Elem())
	case *types.Named:
		if tt.Obj().Pkg() == pkg && isEntity(tt) {
			return tt.Obj().Name()
		}
		return ""
	default:
		return ""
	}
}

func isEntity(named *types.Named) bool {
	for i := 0; i < named.NumMethods(); i++ {
		if named.Method(i).Name() == "SchemaType" {
			return true
		}
	}
	return false
}
