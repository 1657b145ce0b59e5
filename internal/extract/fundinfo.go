package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/akbarharyadi/coding-test-3rd/internal/tables"
	"github.com/akbarharyadi/coding-test-3rd/internal/text"
)

// FundInfo is the header data a fund report usually states up front.
type FundInfo struct {
	Name        string `json:"fund_name,omitempty"`
	GPName      string `json:"gp_name,omitempty"`
	VintageYear int    `json:"vintage_year,omitempty"`
	FundSize    string `json:"fund_size,omitempty"`
	ReportDate  string `json:"report_date,omitempty"`
}

func (f FundInfo) IsZero() bool { return f == FundInfo{} }

const maxNameLength = 200

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

var (
	fundNamePatterns = compileAll(
		`Fund\s+Name\s*[:\-\s]+([^\n\r]+)`,
		`Name\s+of\s+Fund\s*[:\-\s]+([^\n\r]+)`,
		`Fund[:\-\s]+([^\n\r]+)`,
		`([^\n\r]+)\s+FUND`,
	)
	gpNamePatterns = compileAll(
		`GP[:\-\s]+([^\n\r]+)`,
		`General\s+Partner[:\-\s]+([^\n\r]+)`,
		`GP\s+Name[:\-\s]+([^\n\r]+)`,
		`Managed\s+by[:\-\s]+([^\n\r]+)`,
		`Investment\s+Manager[:\-\s]+([^\n\r]+)`,
	)
	vintagePatterns = compileAll(
		`Vintage[:\-\s]+(\d{4})`,
		`Vintage\s+Year[:\-\s]+(\d{4})`,
		`Inception[:\-\s]+(\d{4})`,
		`(\d{4})\s+Fund`,
	)
	fundSizePatterns = compileAll(
		`Fund\s+Size[:\-\s]+([$€£¥\w \t,.]+)`,
		`Total\s+Fund\s+Size[:\-\s]+([$€£¥\w \t,.]+)`,
		`Commitment[:\-\s]+([$€£¥\w \t,.]+)`,
		`Capital[:\-\s]+([$€£¥\w \t,.]+)`,
	)
	reportDatePatterns = compileAll(
		`Report\s+Date[:\-\s]+([^\n\r]+)`,
		`As\s+of[:\-\s]+([^\n\r]+)`,
		`Date[:\-\s]+([^\n\r]+)`,
	)

	dateInValue = []*regexp.Regexp{
		regexp.MustCompile(`(\d{1,2}[/\-]\d{1,2}[/\-]\d{4})`),
		regexp.MustCompile(`(\d{4}[/\-]\d{1,2}[/\-]\d{1,2})`),
		regexp.MustCompile(`([A-Za-z]+\s+\d{1,2},?\s+\d{4})`),
		regexp.MustCompile(`(\d{1,2}\s+[A-Za-z]+\s+\d{4})`),
	}
	yearInValue = regexp.MustCompile(`(\d{4})`)
	spaceRuns   = regexp.MustCompile(` +`)
)

// ExtractFundInfo pulls fund header fields out of free text. Each field takes
// the first pattern that yields a usable value.
func ExtractFundInfo(s string) FundInfo {
	s = spaceRuns.ReplaceAllString(s, " ")

	var info FundInfo
	info.Name = firstMatch(s, fundNamePatterns, cleanName)
	info.GPName = firstMatch(s, gpNamePatterns, cleanName)
	info.FundSize = firstMatch(s, fundSizePatterns, trimValue)
	info.ReportDate = firstMatch(s, reportDatePatterns, cleanReportDate)
	if y := firstMatch(s, vintagePatterns, cleanYear); y != "" {
		info.VintageYear, _ = strconv.Atoi(y)
	}
	return info
}

// FundInfoFromSegments joins page text line-wise so patterns do not run
// across sections.
func FundInfoFromSegments(segments []text.Segment) FundInfo {
	parts := make([]string, len(segments))
	for i, seg := range segments {
		parts[i] = seg.Text
	}
	return ExtractFundInfo(strings.Join(parts, "\n"))
}

// FundInfoFromTables looks at the first three rows of each table.
func FundInfoFromTables(candidates []tables.TableCandidate) FundInfo {
	var b strings.Builder
	for _, c := range candidates {
		for _, row := range c.Rows[:min(3, len(c.Rows))] {
			for _, cell := range row {
				if cell != "" {
					b.WriteString(cell)
					b.WriteByte(' ')
				}
			}
		}
	}
	return ExtractFundInfo(b.String())
}

// Merge fills empty fields of f from other.
func (f FundInfo) Merge(other FundInfo) FundInfo {
	if f.Name == "" {
		f.Name = other.Name
	}
	if f.GPName == "" {
		f.GPName = other.GPName
	}
	if f.VintageYear == 0 {
		f.VintageYear = other.VintageYear
	}
	if f.FundSize == "" {
		f.FundSize = other.FundSize
	}
	if f.ReportDate == "" {
		f.ReportDate = other.ReportDate
	}
	return f
}

func firstMatch(s string, patterns []*regexp.Regexp, clean func(string) string) string {
	for _, re := range patterns {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		if v := clean(strings.TrimSpace(m[1])); v != "" {
			return v
		}
	}
	return ""
}

func trimValue(v string) string {
	return strings.Trim(v, " :-\t\n\r")
}

func cleanName(v string) string {
	if i := strings.IndexAny(v, "\r\n"); i >= 0 {
		v = v[:i]
	}
	if r := []rune(v); len(r) > maxNameLength {
		v = string(r[:maxNameLength])
	}
	return trimValue(v)
}

func cleanYear(v string) string {
	m := yearInValue.FindString(v)
	if m == "" {
		return ""
	}
	y, _ := strconv.Atoi(m)
	if y < 1900 || y > time.Now().Year()+1 {
		return ""
	}
	return m
}

func cleanReportDate(v string) string {
	v = trimValue(v)
	for _, re := range dateInValue {
		if m := re.FindString(v); m != "" {
			return m
		}
	}
	return v
}
