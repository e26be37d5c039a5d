// Package header runs the whole pipeline over C source units: preprocess,
// parse, build the model. Units can be parsed in parallel and merged, and
// finalized units are cached by content.
package header

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/raymyers/ralph-cdecl/pkg/config"
	"github.com/raymyers/ralph-cdecl/pkg/cpp"
	"github.com/raymyers/ralph-cdecl/pkg/diag"
	"github.com/raymyers/ralph-cdecl/pkg/model"
	"github.com/raymyers/ralph-cdecl/pkg/parser"
	"github.com/raymyers/ralph-cdecl/pkg/preproc"
)

// ErrFailFast is returned, wrapping the syntax error, when FailFast is set
// and a declaration does not parse.
var ErrFailFast = errors.New("stopped at first syntax error")

// Unit is one parsed source unit. It is read-only once returned.
type Unit struct {
	Name     string
	Model    *model.Model
	Diags    *diag.List
	Included []string // files entered by #include
}

// Project is the result of parsing several units together
type Project struct {
	Model *model.Model
	Units []*Unit
	Diags *diag.List // conflicts found while merging
}

// Parse runs the pipeline over src, named name in diagnostics. A nil cfg
// means the defaults. The returned error is a *lexer.LexError, an
// ErrFailFast, a context error or a preprocessor failure; every other
// problem is a diagnostic of the unit.
func Parse(ctx context.Context, name, src string, cfg *config.Config) (*Unit, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u := &Unit{Name: name, Diags: &diag.List{}}

	src, opts, err := Prepare(ctx, name, src, cfg)
	if err != nil {
		return nil, err
	}
	pp := cpp.New(name, src, opts, u.Diags)
	p := parser.New(pp, u.Diags)
	b := model.NewBuilder(u.Diags)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := p.Next()
		var se *parser.SyntaxError
		switch {
		case errors.Is(err, io.EOF):
			_ = b.AddMacros(pp.Macros())
			u.Model = b.Finalize()
			u.Included = pp.Included()
			return u, nil
		case errors.As(err, &se):
			u.Diags.Add(syntaxDiag(se))
			if cfg.FailFast {
				return nil, fmt.Errorf("%w: %w", ErrFailFast, se)
			}
			continue
		case err != nil:
			return nil, err
		}
		// conflicts are already diagnostics
		_ = b.Register(d)
	}
}

// Prepare returns the text the built-in preprocessor reads for src and
// the options to read it with. With External enabled the system
// preprocessor has already run, so no macros are left to record.
func Prepare(ctx context.Context, name, src string, cfg *config.Config) (string, cpp.Options, error) {
	if !cfg.External.Enabled {
		opts := cpp.Options{
			Symbols:      cfg.DefinedSymbols,
			Overrides:    cfg.MacroOverrides,
			IncludePaths: cfg.IncludePaths,
			SystemPaths:  cfg.SystemPaths,
		}
		if cfg.SearchSystem {
			opts.SystemPaths = append(slices.Clip(opts.SystemPaths), cpp.SystemIncludePaths(ctx)...)
		}
		return src, opts, nil
	}
	out, err := preproc.Source(ctx, src, name, externalOptions(cfg))
	if err != nil {
		return "", cpp.Options{}, fmt.Errorf("%s: %w", name, err)
	}
	// the output may still carry #pragma lines
	return out, cpp.Options{}, nil
}

// ParseFile reads and parses one file
func ParseFile(ctx context.Context, path string, cfg *config.Config) (*Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(ctx, path, string(data), cfg)
}

// ParseFiles parses each file with its own pipeline, in parallel, and
// merges the finalized models in argument order. cache may be nil. The
// first fatal error cancels the other units.
func ParseFiles(ctx context.Context, paths []string, cfg *config.Config, cache *Cache) (*Project, error) {
	units := make([]*Unit, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			var u *Unit
			var err error
			if cache != nil {
				u, err = cache.ParseFile(gctx, path, cfg)
			} else {
				u, err = ParseFile(gctx, path, cfg)
			}
			if err != nil {
				return err
			}
			units[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	models := make([]*model.Model, len(units))
	for i, u := range units {
		models[i] = u.Model
	}
	merged, err := model.Merge(models...)
	proj := &Project{Model: merged, Units: units, Diags: &diag.List{}}
	for _, e := range unwrapAll(err) {
		var ce *model.ConflictError
		if errors.As(e, &ce) {
			proj.Diags.Add(diag.Diagnostic{
				Severity: diag.Error,
				Kind:     diag.KindConflict,
				Message:  ce.Error(),
				File:     ce.Loc.File,
				Line:     ce.Loc.Line,
				Column:   ce.Loc.Column,
				Err:      ce,
			})
		}
	}
	return proj, nil
}

// HasErrors reports whether any unit or the merge produced an error
// diagnostic.
func (p *Project) HasErrors() bool {
	if p.Diags.HasErrors() {
		return true
	}
	for _, u := range p.Units {
		if u.Diags.HasErrors() {
			return true
		}
	}
	return false
}

func syntaxDiag(se *parser.SyntaxError) diag.Diagnostic {
	return diag.Diagnostic{
		Severity: diag.Error,
		Kind:     diag.KindSyntax,
		Message:  strings.TrimPrefix(se.Error(), se.Tok.Pos()+": "),
		File:     se.Tok.File,
		Line:     se.Tok.Line,
		Column:   se.Tok.Column,
		Err:      se,
	}
}

func externalOptions(cfg *config.Config) preproc.Options {
	defines := make(map[string]string, len(cfg.DefinedSymbols)+len(cfg.MacroOverrides))
	for _, name := range cfg.DefinedSymbols {
		defines[name] = ""
	}
	for name, value := range cfg.MacroOverrides {
		defines[name] = value
	}
	return preproc.Options{
		Command:      cfg.External.Command,
		Args:         cfg.External.Args,
		IncludePaths: cfg.IncludePaths,
		SystemPaths:  cfg.SystemPaths,
		Defines:      defines,
	}
}

func unwrapAll(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
