// Package report collects diagnostic records and writes them out.
//
// Every stage of the package pipeline reports through [Record] values. A
// [Collector] keeps them in commit order, forwards each committed batch to
// streaming [Sink] implementations (CSV file, SQLite, MongoDB) and can
// render the complete report as CSV at any time.
//
// The CSV layout is fixed:
//
//	package,category,file,message
//
// The third column is named "file" for compatibility with existing
// consumers of the report; it holds the record severity.
package report

import "strconv"

// Category names the pipeline stage a record came from.
type Category string

const (
	CategoryExtract       Category = "EXTRACT_ARCHIVE"
	CategoryInstallDeps   Category = "INSTALL_DEPENDENCIES"
	CategoryListDeps      Category = "LIST_DEPENDENCIES"
	CategoryInstallTypes  Category = "INSTALL_TYPES"
	CategoryGenerateTypes Category = "GENERATE_TYPES"
)

// Categories lists every category in pipeline order.
var Categories = []Category{
	CategoryExtract,
	CategoryInstallDeps,
	CategoryListDeps,
	CategoryInstallTypes,
	CategoryGenerateTypes,
}

// Severity grades a record.
type Severity int

const (
	SeverityInfo  Severity = 1
	SeverityError Severity = 2
)

// Header is the first row of every CSV report.
var Header = []string{"package", "category", "file", "message"}

// Record is one diagnostic line attributed to a package.
type Record struct {
	Package  string
	Category Category
	Severity Severity
	Message  string
}

// Row renders the record in Header column order.
func (r Record) Row() []string {
	return []string{r.Package, string(r.Category), strconv.Itoa(int(r.Severity)), r.Message}
}

// Failure builds the severity-2 record that halts a package.
func Failure(pkg string, cat Category, msg string) Record {
	return Record{Package: pkg, Category: cat, Severity: SeverityError, Message: msg}
}

// CountByCategory tallies records per category.
func CountByCategory(records []Record) map[Category]int {
	out := make(map[Category]int, len(Categories))
	for _, r := range records {
		out[r.Category]++
	}
	return out
}
