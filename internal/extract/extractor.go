// Package extract turns raw carrier export bytes into an ordered table of
// header/value rows. Carrier files arrive as delimited text (comma, semicolon,
// tab, pipe), fixed-width tabular text, or CSV with a preamble of
// system-generated banner lines before the real header. The extractor sniffs
// encoding and delimiter from a content sample, hunts for the header row, and
// never interprets values — typing is the field mapper's job.
package extract

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrEmptyFile is returned when the input contains no rows at all.
	ErrEmptyFile = errors.New("file is empty")

	// ErrNoHeader is returned when no plausible header row is found and
	// headerless mode cannot be applied either.
	ErrNoHeader = errors.New("no header row detected")
)

// sampleSize bounds how much of the file the sniffers look at.
const sampleSize = 64 * 1024

// Delimiters tried during detection, in preference order on ties.
var candidateDelimiters = []rune{',', '\t', ';', '|'}

// RawRow is one data row, values in header order. Together with the table
// header it forms an ordered column-name → string mapping.
type RawRow struct {
	Line   int // 1-based physical line in the source file
	Values []string
}

// Table is the ordered output of extraction.
type Table struct {
	Header     []string
	Rows       []RawRow
	Delimiter  rune
	Headerless bool
	FixedWidth bool
	Skipped    int // banner/preamble lines skipped before the header
}

// Get returns the value of the named column for a row, or "" if absent.
func (t *Table) Get(row RawRow, column string) string {
	for i, h := range t.Header {
		if h == column && i < len(row.Values) {
			return row.Values[i]
		}
	}
	return ""
}

// RowMap materializes one row as a column-name → value map. Column order is
// preserved by Header; the map is a convenience for callers that index by name.
func (t *Table) RowMap(row RawRow) map[string]string {
	m := make(map[string]string, len(t.Header))
	for i, h := range t.Header {
		if i < len(row.Values) {
			m[h] = row.Values[i]
		}
	}
	return m
}

// Options controls extraction. Zero value means full auto-detection.
type Options struct {
	Delimiter rune // 0 = detect from sample
	// MaxRows bounds how many data rows are read; 0 = unlimited.
	MaxRows int
}

// Extract reads the full input and returns the ordered table.
func Extract(r io.Reader, opts Options) (*Table, error) {
	decoded, err := decode(bufio.NewReaderSize(r, sampleSize))
	if err != nil {
		return nil, err
	}

	sample := decoded
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}

	delim := opts.Delimiter
	fixedWidth := false
	if delim == 0 {
		delim, fixedWidth = detectDelimiter(sample)
	}

	lines := splitLines(decoded)
	blank := true
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			blank = false
			break
		}
	}
	if blank {
		return nil, ErrEmptyFile
	}

	var parse func(string) []string
	if fixedWidth {
		parse = splitFixedWidth
	} else {
		d := delim
		parse = func(line string) []string { return parseDelimited(line, d) }
	}

	headerIdx, header := findHeader(lines, parse)
	headerless := false
	if headerIdx < 0 {
		// No header-shaped line. Treat the first non-empty line as data and
		// synthesize column names.
		for i, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			first := parse(line)
			if len(first) == 0 {
				continue
			}
			header = syntheticHeader(len(first))
			headerIdx = i - 1 // first data row is lines[i]
			headerless = true
			break
		}
		if header == nil {
			return nil, ErrNoHeader
		}
	}

	t := &Table{
		Header:     header,
		Delimiter:  delim,
		Headerless: headerless,
		FixedWidth: fixedWidth,
		Skipped:    max(headerIdx, 0),
	}

	for i := headerIdx + 1; i < len(lines); i++ {
		if opts.MaxRows > 0 && len(t.Rows) >= opts.MaxRows {
			break
		}
		line := lines[i]
		if strings.TrimSpace(line) == "" || isBannerLine(line) {
			continue
		}
		values := parse(line)
		if len(values) == 0 {
			continue
		}
		for j := range values {
			values[j] = strings.TrimSpace(values[j])
		}
		t.Rows = append(t.Rows, RawRow{Line: i + 1, Values: values})
	}

	if len(t.Rows) == 0 && headerless {
		return nil, ErrEmptyFile
	}
	return t, nil
}

// ExtractBytes is Extract over an in-memory payload.
func ExtractBytes(data []byte, opts Options) (*Table, error) {
	return Extract(bytes.NewReader(data), opts)
}

// decode strips a UTF-8 BOM or transcodes UTF-16 input based on its BOM.
// Everything else passes through as-is.
func decode(br *bufio.Reader) (string, error) {
	head, err := br.Peek(3)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read sample: %w", err)
	}

	var rd io.Reader = br
	switch {
	case len(head) >= 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF:
		br.Discard(3)
	case len(head) >= 2 && head[0] == 0xFF && head[1] == 0xFE:
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		rd = transform.NewReader(br, dec)
	case len(head) >= 2 && head[0] == 0xFE && head[1] == 0xFF:
		dec := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		rd = transform.NewReader(br, dec)
	}

	data, err := io.ReadAll(rd)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

// detectDelimiter votes across the sample's lines. A delimiter wins when it
// appears a consistent nonzero number of times on most sampled lines. If no
// candidate wins, the content is treated as fixed-width tabular text.
func detectDelimiter(sample string) (rune, bool) {
	lines := splitLines(sample)
	if len(lines) > 20 {
		lines = lines[:20]
	}

	bestDelim := rune(0)
	bestScore := 0
	for _, d := range candidateDelimiters {
		score := 0
		prev := -1
		for _, line := range lines {
			if strings.TrimSpace(line) == "" || isBannerLine(line) {
				continue
			}
			n := strings.Count(line, string(d))
			if n == 0 {
				continue
			}
			if prev == -1 || n == prev {
				score += n
			}
			prev = n
		}
		if score > bestScore {
			bestScore = score
			bestDelim = d
		}
	}

	if bestDelim != 0 {
		return bestDelim, false
	}

	// No delimiter ever appeared; check for runs of aligned spaces.
	for _, line := range lines {
		if fixedWidthRE.MatchString(line) {
			return 0, true
		}
	}
	return ',', false
}

var (
	fixedWidthRE = regexp.MustCompile(`\S {2,}\S`)
	multiSpaceRE = regexp.MustCompile(` {2,}`)
)

// splitFixedWidth splits aligned tabular text on runs of two or more spaces.
func splitFixedWidth(line string) []string {
	parts := multiSpaceRE.Split(strings.TrimSpace(line), -1)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDelimited parses one line with the csv reader so quoted fields survive
// embedded delimiters. Falls back to a plain split on malformed quoting.
func parseDelimited(line string, delim rune) []string {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	fields, err := r.Read()
	if err != nil {
		return strings.Split(line, string(delim))
	}
	return fields
}

// findHeader hunts for the first line that looks like column names rather
// than banner text or data. Returns (-1, nil) when nothing qualifies.
func findHeader(lines []string, parse func(string) []string) (int, []string) {
	limit := len(lines)
	if limit > 50 {
		limit = 50
	}
	for i := 0; i < limit; i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" || isBannerLine(line) {
			continue
		}
		fields := parse(line)
		if looksLikeHeader(fields) {
			header := make([]string, len(fields))
			for j, f := range fields {
				header[j] = strings.Trim(strings.TrimSpace(f), "\"'")
			}
			return i, header
		}
	}
	return -1, nil
}

// looksLikeHeader requires at least two columns, all non-empty, with a
// majority carrying at least one letter and none parsing as a bare number.
func looksLikeHeader(fields []string) bool {
	if len(fields) < 2 {
		return false
	}
	alpha := 0
	for _, f := range fields {
		f = strings.Trim(strings.TrimSpace(f), "\"'")
		if f == "" {
			return false
		}
		if numericRE.MatchString(f) {
			return false
		}
		if letterRE.MatchString(f) {
			alpha++
		}
	}
	return alpha*2 > len(fields)
}

var (
	numericRE = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)
	letterRE  = regexp.MustCompile(`[a-zA-Z]`)
)

// isBannerLine recognizes carrier preamble noise: "system generated" notices,
// report titles, and account banners like "Input Value : 9990011223".
func isBannerLine(line string) bool {
	l := strings.ToLower(strings.TrimSpace(line))
	if l == "" {
		return false
	}
	for _, marker := range []string{
		"this is system", "system generated", "report generated",
		"input value", "mobile no '", "msisdn :", "confidential",
	} {
		if strings.Contains(l, marker) {
			return true
		}
	}
	return false
}

func syntheticHeader(n int) []string {
	h := make([]string, n)
	for i := range h {
		h[i] = fmt.Sprintf("column_%d", i+1)
	}
	return h
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}
