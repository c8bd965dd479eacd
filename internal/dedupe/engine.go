// Package dedupe finds near-duplicate events with a weighted multi-signal
// comparison. Core identity fields gate the comparison; phone, timestamp,
// duration, content and contact signals then accumulate into a normalized
// similarity score, and each reported pair carries a conflict classification
// and a confidence derived from how many fields actually matched.
package dedupe

import (
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ignite/carrier-ingest/internal/domain"
)

// Signal weights. Line, direction and type form the core gate; a pair whose
// satisfied core weight stays under coreGate is rejected without evaluating
// the remaining signals.
const (
	weightLine      = 0.2
	weightDirection = 0.1
	weightType      = 0.1
	weightPhone     = 0.25
	weightTimestamp = 0.25
	weightDuration  = 0.1
	weightContent   = 0.1
	weightContact   = 0.1

	coreGate = 0.3

	// matchedFieldBase divides the matched-field count when deriving
	// confidence from similarity.
	matchedFieldBase = 6

	// processedConfidence marks a matched record as consumed so it stops
	// acting as a primary comparison subject in the batch scan.
	processedConfidence = 0.9

	// blockSuffixDigits is the phone-suffix length used to partition
	// candidates before the pairwise scan.
	blockSuffixDigits = 7
)

// Options tunes the engine. Zero values take defaults.
type Options struct {
	TimestampTolerance time.Duration // default 60s
	DurationTolerance  int           // seconds, default 5
	Threshold          float64       // report pairs above this, default 0.7
	Workers            int           // parallel partitions, default NumCPU
}

// Engine performs pairwise and batch duplicate detection. Instances are
// immutable after construction and safe for concurrent use.
type Engine struct {
	tsTolerance  time.Duration
	durTolerance int
	threshold    float64
	workers      int
}

// New builds an engine from options.
func New(opts Options) *Engine {
	e := &Engine{
		tsTolerance:  opts.TimestampTolerance,
		durTolerance: opts.DurationTolerance,
		threshold:    opts.Threshold,
		workers:      opts.Workers,
	}
	if e.tsTolerance <= 0 {
		e.tsTolerance = 60 * time.Second
	}
	if e.durTolerance <= 0 {
		e.durTolerance = 5
	}
	if e.threshold <= 0 {
		e.threshold = 0.7
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	return e
}

// Compare scores one candidate pair. The returned similarity is the weighted
// sum over evaluated signals normalized by their total weight; signals that
// do not apply to the pair are excluded from the denominator.
func (e *Engine) Compare(a, b *domain.Event) domain.MatchResult {
	var (
		sum     float64
		total   float64
		matched []string
	)

	core := 0.0
	if a.LineID == b.LineID {
		core += weightLine
		matched = append(matched, "line_id")
	}
	if a.Direction == b.Direction {
		core += weightDirection
		matched = append(matched, "direction")
	}
	if a.Type == b.Type {
		core += weightType
		matched = append(matched, "event_type")
	}
	if core < coreGate {
		return domain.MatchResult{Conflict: domain.ConflictFuzzy}
	}
	sum += core
	total += weightLine + weightDirection + weightType

	if phone := comparePhoneNumbers(a.Number, b.Number); phone >= 0 {
		sum += phone * weightPhone
		total += weightPhone
		if phone == 1.0 {
			matched = append(matched, "number")
		}
	}

	tsScore, withinTol := e.compareTimestamps(a.Timestamp, b.Timestamp)
	sum += tsScore * weightTimestamp
	total += weightTimestamp
	if withinTol {
		matched = append(matched, "timestamp")
	}

	if a.IsCall() && b.IsCall() && a.DurationSeconds != nil && b.DurationSeconds != nil {
		dur := e.compareDurations(*a.DurationSeconds, *b.DurationSeconds)
		sum += dur * weightDuration
		total += weightDuration
		if dur == 1.0 {
			matched = append(matched, "duration")
		}
	}

	if a.IsSMS() && b.IsSMS() && a.Content != nil && b.Content != nil {
		content := compareContent(*a.Content, *b.Content)
		sum += content * weightContent
		total += weightContent
		if content == 1.0 {
			matched = append(matched, "content")
		}
	}

	if a.ContactID != nil && b.ContactID != nil {
		total += weightContact
		if *a.ContactID == *b.ContactID {
			sum += weightContact
			matched = append(matched, "contact_id")
		}
	}

	similarity := sum / total
	tsDiff := absDuration(a.Timestamp.Sub(b.Timestamp))

	var conflict domain.ConflictType
	switch {
	case similarity >= 0.95 && tsDiff <= time.Second:
		conflict = domain.ConflictExact
	case withinTol && similarity >= 0.85:
		conflict = domain.ConflictTimeVariance
	default:
		conflict = domain.ConflictFuzzy
	}

	confidence := similarity * float64(len(matched)) / matchedFieldBase
	if confidence > 1 {
		confidence = 1
	}

	return domain.MatchResult{
		Similarity:    similarity,
		MatchedFields: matched,
		Conflict:      conflict,
		Confidence:    confidence,
	}
}

// DetectDuplicates runs the batch scan over a candidate list and returns
// pairs above the similarity threshold, sorted descending by similarity.
// Candidates are partitioned by phone suffix first so the quadratic scan
// stays bounded to records that could plausibly match, and partitions are
// compared in parallel.
func (e *Engine) DetectDuplicates(events []domain.Event) []domain.DuplicatePair {
	if len(events) < 2 {
		return nil
	}

	blocks := make(map[string][]int)
	for i := range events {
		key := blockKey(events[i].Number)
		blocks[key] = append(blocks[key], i)
	}

	var (
		mu    sync.Mutex
		pairs []domain.DuplicatePair
		wg    sync.WaitGroup
	)
	sem := make(chan struct{}, e.workers)

	for _, idx := range blocks {
		if len(idx) < 2 {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx []int) {
			defer wg.Done()
			defer func() { <-sem }()
			found := e.scanBlock(events, idx)
			if len(found) == 0 {
				return
			}
			mu.Lock()
			pairs = append(pairs, found...)
			mu.Unlock()
		}(idx)
	}
	wg.Wait()

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].Result.Similarity != pairs[j].Result.Similarity {
			return pairs[i].Result.Similarity > pairs[j].Result.Similarity
		}
		if pairs[i].PrimaryIndex != pairs[j].PrimaryIndex {
			return pairs[i].PrimaryIndex < pairs[j].PrimaryIndex
		}
		return pairs[i].DuplicateIndex < pairs[j].DuplicateIndex
	})
	return pairs
}

// scanBlock compares every unprocessed record against all records after it.
// High-confidence matches are marked processed and skipped later as primary
// subjects, but stay in the pool for comparisons against earlier records.
func (e *Engine) scanBlock(events []domain.Event, idx []int) []domain.DuplicatePair {
	var found []domain.DuplicatePair
	processed := make(map[int]bool, len(idx))

	for i := 0; i < len(idx); i++ {
		if processed[idx[i]] {
			continue
		}
		for j := i + 1; j < len(idx); j++ {
			r := e.Compare(&events[idx[i]], &events[idx[j]])
			if r.Similarity <= e.threshold {
				continue
			}
			found = append(found, domain.DuplicatePair{
				PrimaryIndex:   idx[i],
				DuplicateIndex: idx[j],
				Result:         r,
			})
			if r.Confidence > processedConfidence {
				processed[idx[j]] = true
			}
		}
	}
	return found
}

// comparePhoneNumbers scores two normalized numbers on their digit strings.
// Exact match is 1.0. When one digit string contains the other, the score is
// the overlap share of the longer string. Otherwise digits are compared from
// the least-significant end, counting the matching run. Returns -1 when
// either side has no digits, so the caller can skip the signal.
func comparePhoneNumbers(a, b string) float64 {
	da, db := digitsOf(a), digitsOf(b)
	if da == "" || db == "" {
		return -1
	}
	if da == db {
		return 1.0
	}

	shorter, longer := da, db
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if strings.Contains(longer, shorter) {
		return float64(len(shorter)) / float64(len(longer))
	}

	match := 0
	for i := 1; i <= len(shorter); i++ {
		if shorter[len(shorter)-i] != longer[len(longer)-i] {
			break
		}
		match++
	}
	return float64(match) / float64(len(longer))
}

// compareTimestamps scores two timestamps and reports whether the pair falls
// within the configured tolerance. Inside tolerance the score decays
// linearly; beyond it the decay slope flattens by a factor of ten.
func (e *Engine) compareTimestamps(a, b time.Time) (float64, bool) {
	diff := absDuration(a.Sub(b))
	if diff <= e.tsTolerance {
		return math.Max(0, 1-float64(diff)/float64(e.tsTolerance)), true
	}
	return math.Max(0, 1-float64(diff)/float64(10*e.tsTolerance)), false
}

func (e *Engine) compareDurations(a, b int) float64 {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	if diff <= e.durTolerance {
		return 1.0
	}
	avg := float64(a+b) / 2
	if avg <= 0 {
		return 0
	}
	return math.Max(0, 1-float64(diff)/avg)
}

// compareContent scores message bodies, exact match after fold first, then
// normalized Levenshtein distance.
func compareContent(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}
	maxLen := max(len([]rune(a)), len([]rune(b)))
	return math.Max(0, float64(maxLen-levenshtein(a, b))/float64(maxLen))
}

func digitsOf(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// blockKey partitions candidates by the tail of the digit string, so numbers
// differing only in prefix (country or area code) still land together.
func blockKey(number string) string {
	d := digitsOf(number)
	if len(d) > blockSuffixDigits {
		return d[len(d)-blockSuffixDigits:]
	}
	return d
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
