package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/matzehuels/typecensus/pkg/archive"
	"github.com/matzehuels/typecensus/pkg/corpus"
	"github.com/matzehuels/typecensus/pkg/errors"
	"github.com/matzehuels/typecensus/pkg/report"
	"github.com/matzehuels/typecensus/pkg/toolchain"
)

// packageState carries what earlier stages learned to later ones.
type packageState struct {
	archive corpus.Archive
	root    string
	deps    []toolchain.Dependency
}

func (s *packageState) fail(cat report.Category, msg string) ([]report.Record, bool) {
	return []report.Record{report.Failure(s.archive.Name, cat, msg)}, true
}

// stage is one step of the per-package sequence. A stage returns the
// records it produced and whether it halts the package; a halting stage
// returns exactly one severity-2 record.
type stage struct {
	category report.Category
	run      func(ctx context.Context, pkg *packageState) ([]report.Record, bool)
}

func (p *Processor) stages() []stage {
	return []stage{
		{report.CategoryExtract, p.extract},
		{report.CategoryInstallDeps, p.installDependencies},
		{report.CategoryListDeps, p.listDependencies},
		{report.CategoryInstallTypes, p.installTypes},
		{report.CategoryGenerateTypes, p.generateTypes},
	}
}

// toolFailure converts the outcome of a tool invocation into a halting
// record: a runner error or any stderr output fails the stage.
func toolFailure(pkg *packageState, cat report.Category, res *toolchain.Result, err error) ([]report.Record, bool) {
	if err != nil {
		return pkg.fail(cat, errors.UserMessage(err))
	}
	if res.Failed() {
		return pkg.fail(cat, string(res.Stderr))
	}
	return nil, false
}

func (p *Processor) extract(_ context.Context, pkg *packageState) ([]report.Record, bool) {
	dest := filepath.Join(p.workspace, pkg.archive.Name)
	if !p.keepStale {
		if err := os.RemoveAll(dest); err != nil {
			return pkg.fail(report.CategoryExtract, "remove stale workspace: "+err.Error())
		}
	}
	root, err := archive.Extract(pkg.archive.Path, dest)
	if err != nil {
		return pkg.fail(report.CategoryExtract, errors.UserMessage(err))
	}
	pkg.root = root
	return nil, false
}

func (p *Processor) installDependencies(ctx context.Context, pkg *packageState) ([]report.Record, bool) {
	res, err := p.npm.Install(ctx, pkg.root)
	return toolFailure(pkg, report.CategoryInstallDeps, res, err)
}

func (p *Processor) listDependencies(ctx context.Context, pkg *packageState) ([]report.Record, bool) {
	res, err := p.npm.List(ctx, pkg.root)
	if records, failed := toolFailure(pkg, report.CategoryListDeps, res, err); failed {
		return records, true
	}
	pkg.deps = toolchain.ParseListing(string(res.Stdout))
	return nil, false
}

// installTypes installs the declaration package of every listed dependency
// that has one, then the base types. Dependencies mapping to the same
// declaration package are probed once. Any failure halts the package.
func (p *Processor) installTypes(ctx context.Context, pkg *packageState) ([]report.Record, bool) {
	seen := make(map[string]bool, len(pkg.deps))
	for _, dep := range pkg.deps {
		typesPkg := p.locator.TypesPackage(dep.Name)
		if seen[typesPkg] {
			continue
		}
		seen[typesPkg] = true

		exists, err := p.locator.Exists(ctx, dep.Name)
		if err != nil {
			return pkg.fail(report.CategoryInstallTypes, errors.UserMessage(err))
		}
		if !exists {
			continue
		}
		res, err := p.npm.InstallPackage(ctx, pkg.root, typesPkg)
		if records, failed := toolFailure(pkg, report.CategoryInstallTypes, res, err); failed {
			return records, true
		}
	}

	for _, typesPkg := range p.baseTypes {
		res, err := p.npm.InstallPackage(ctx, pkg.root, typesPkg)
		if records, failed := toolFailure(pkg, report.CategoryInstallTypes, res, err); failed {
			return records, true
		}
	}
	return nil, false
}

// generateTypes runs the type-checker. Its stderr lines become severity-2
// records followed by its stdout lines as severity-1 records; neither
// halts anything since they are the result of the census.
func (p *Processor) generateTypes(ctx context.Context, pkg *packageState) ([]report.Record, bool) {
	if p.tsconfig != "-" {
		if err := copyFile(p.tsconfig, filepath.Join(pkg.root, "tsconfig.json")); err != nil {
			return pkg.fail(report.CategoryGenerateTypes, "copy tsconfig: "+err.Error())
		}
	}

	res, err := p.typescript.Compile(ctx, pkg.root)
	if err != nil {
		return pkg.fail(report.CategoryGenerateTypes, errors.UserMessage(err))
	}

	var records []report.Record
	emit := func(sev report.Severity, out []byte) {
		for _, line := range toolchain.SplitLines(string(out)) {
			records = append(records, report.Record{
				Package:  pkg.archive.Name,
				Category: report.CategoryGenerateTypes,
				Severity: sev,
				Message:  line,
			})
		}
	}
	emit(report.SeverityError, res.Stderr)
	emit(report.SeverityInfo, res.Stdout)
	return records, false
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
