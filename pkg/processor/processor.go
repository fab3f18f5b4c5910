// Package processor turns raw lore records into documents and feeds them to
// a repository in batches.
package processor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xhad/lore/internal/models"
)

var (
	// ErrMalformedRecord marks a record that cannot become a document.
	// Such records are counted and skipped; they never stop a run.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrTooShort marks a record whose extractable text is below the minimum.
	ErrTooShort = errors.New("record text too short")
)

// RawRecord is one entry of a bulk lore dump. Body text may arrive in any
// of Text, Content or HTML, in that order of preference.
type RawRecord struct {
	ID       string   `json:"id,omitempty"`
	Title    string   `json:"title"`
	Text     string   `json:"text,omitempty"`
	Content  string   `json:"content,omitempty"`
	HTML     string   `json:"html,omitempty"`
	Category string   `json:"category,omitempty"`
	Type     string   `json:"type,omitempty"`
	Aliases  []string `json:"aliases,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	URL      string   `json:"url,omitempty"`
}

type ProcessorConfig struct {
	MinLength int
	MaxLength int
	BatchSize int
}

// Stats counts what happened to the records of one run.
type Stats struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

func (s Stats) Total() int {
	return s.Processed + s.Skipped + s.Errors
}

// Sink receives document batches. lore.Repository satisfies it.
type Sink interface {
	AddDocuments(ctx context.Context, docs []models.Document) error
}

type Processor struct {
	config ProcessorConfig
	logger *zap.Logger
}

func NewWithConfig(config ProcessorConfig, logger *zap.Logger) Processor {
	if config.MinLength == 0 {
		config.MinLength = 50
	}
	if config.MaxLength == 0 {
		config.MaxLength = 3000
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return Processor{
		config: config,
		logger: logger,
	}
}

// ToDocument validates and cleans raw. The error wraps ErrMalformedRecord or
// ErrTooShort when the record has to be skipped.
func (p *Processor) ToDocument(raw RawRecord) (models.Document, error) {
	title := cleanText(raw.Title)
	if title == "" {
		return models.Document{}, fmt.Errorf("%w: missing title", ErrMalformedRecord)
	}

	var text string
	switch {
	case strings.TrimSpace(raw.Text) != "":
		text = cleanText(raw.Text)
	case strings.TrimSpace(raw.Content) != "":
		text = cleanText(raw.Content)
	case strings.TrimSpace(raw.HTML) != "":
		var err error
		if text, err = htmlToText(raw.HTML); err != nil {
			return models.Document{}, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, title, err)
		}
	}

	if utf8.RuneCountInString(text) < p.config.MinLength {
		return models.Document{}, fmt.Errorf("%w: %s", ErrTooShort, title)
	}
	text = truncate(text, p.config.MaxLength)

	category := raw.Category
	if category == "" {
		category = raw.Type
	}

	id := strings.TrimSpace(raw.ID)
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(title+"\x00"+raw.URL)).String()
	}

	return models.Document{
		ID:        id,
		Text:      text,
		Title:     title,
		Category:  models.NormalizeCategory(category),
		Aliases:   cleanList(raw.Aliases),
		Tags:      cleanList(raw.Tags),
		SourceURL: strings.TrimSpace(raw.URL),
	}, nil
}

// Ingest reads records from r, either JSON Lines or a single JSON array, and
// writes them to sink batch by batch. progress, when set, is called after
// every committed batch. A sink error stops the run; batches committed
// before it stay committed.
func (p *Processor) Ingest(ctx context.Context, r io.Reader, sink Sink, progress func(Stats)) (Stats, error) {
	run := p.newRun(sink, progress)

	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return run.stats, nil
		}
		return run.stats, fmt.Errorf("failed to read records: %w", err)
	}

	if first == '[' {
		err = p.readArray(ctx, br, run)
	} else {
		err = p.readLines(ctx, br, run)
	}
	if err != nil {
		return run.stats, err
	}
	return run.stats, run.flush(ctx)
}

// IngestRecords writes already decoded records to sink.
func (p *Processor) IngestRecords(ctx context.Context, records []RawRecord, sink Sink, progress func(Stats)) (Stats, error) {
	run := p.newRun(sink, progress)
	for _, raw := range records {
		if err := run.add(ctx, raw); err != nil {
			return run.stats, err
		}
	}
	return run.stats, run.flush(ctx)
}

func (p *Processor) readLines(ctx context.Context, r io.Reader, run *run) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		var raw RawRecord
		if err := json.Unmarshal(data, &raw); err != nil {
			run.malformed(fmt.Errorf("%w: line %d: %v", ErrMalformedRecord, line, err))
			continue
		}
		if err := run.add(ctx, raw); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read records: %w", err)
	}
	return nil
}

func (p *Processor) readArray(ctx context.Context, r io.Reader, run *run) error {
	dec := json.NewDecoder(r)
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to read records: %w", err)
	}

	for i := 0; dec.More(); i++ {
		var msg json.RawMessage
		if err := dec.Decode(&msg); err != nil {
			return fmt.Errorf("failed to read record %d: %w", i, err)
		}
		var raw RawRecord
		if err := json.Unmarshal(msg, &raw); err != nil {
			run.malformed(fmt.Errorf("%w: record %d: %v", ErrMalformedRecord, i, err))
			continue
		}
		if err := run.add(ctx, raw); err != nil {
			return err
		}
	}
	return nil
}

type run struct {
	p        *Processor
	sink     Sink
	progress func(Stats)
	batch    []models.Document
	stats    Stats
}

func (p *Processor) newRun(sink Sink, progress func(Stats)) *run {
	return &run{
		p:        p,
		sink:     sink,
		progress: progress,
		batch:    make([]models.Document, 0, p.config.BatchSize),
	}
}

func (r *run) malformed(err error) {
	r.stats.Errors++
	r.p.logger.Warn("skipping malformed record", zap.Error(err))
}

func (r *run) add(ctx context.Context, raw RawRecord) error {
	doc, err := r.p.ToDocument(raw)
	switch {
	case errors.Is(err, ErrTooShort):
		r.stats.Skipped++
		r.p.logger.Debug("skipping short record", zap.String("title", raw.Title))
		return nil
	case err != nil:
		r.malformed(err)
		return nil
	}

	r.batch = append(r.batch, doc)
	if len(r.batch) >= r.p.config.BatchSize {
		return r.flush(ctx)
	}
	return nil
}

func (r *run) flush(ctx context.Context) error {
	if len(r.batch) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.sink.AddDocuments(ctx, r.batch); err != nil {
		return fmt.Errorf("failed to store batch of %d documents: %w", len(r.batch), err)
	}
	r.stats.Processed += len(r.batch)
	r.batch = r.batch[:0]
	if r.progress != nil {
		r.progress(r.stats)
	}
	return nil
}

// htmlToText flattens an HTML fragment or page to plain text, dropping
// scripts, navigation and wiki chrome.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, nav, aside, header, footer, sup.reference, .navbox, .toc, .mw-editsection").Remove()

	var parts []string
	doc.Find("h1, h2, h3, h4, p, li, td, blockquote, pre").Each(func(_ int, s *goquery.Selection) {
		if s.Find("p, li").Length() > 0 {
			return
		}
		if t := cleanText(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return cleanText(doc.Text()), nil
	}
	return strings.Join(parts, "\n"), nil
}

func cleanText(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// truncate cuts text to at most max runes, backing up to the last word
// boundary when one is reasonably close.
func truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)[:max]
	cut := len(runes)
	for i := len(runes) - 1; i > max*9/10; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace)
}

func cleanList(items []string) []string {
	var out []string
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !unicode.IsSpace(rune(b)) {
			return b, br.UnreadByte()
		}
	}
}
