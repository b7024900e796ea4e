// Package rules loads named cleaning, validation, and aggregation rule
// sets from a YAML rulebook file. Rule content is user-authored, so
// unknown operation names survive parsing and degrade to soft failures in
// the pipeline.
package rules

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/scrapeforge/scrapeforge/internal/errs"
	"github.com/scrapeforge/scrapeforge/pkg/models"
)

// Rulebook is the on-disk shape of a rule file: named rule sets per
// concern.
type Rulebook struct {
	Cleaning    map[string][]models.CleaningRule    `yaml:"cleaning"`
	Validation  map[string][]models.ValidationRule  `yaml:"validation"`
	Aggregation map[string][]models.AggregationRule `yaml:"aggregation"`
}

// Loader reads and caches a rulebook. Reload swaps the cached book
// atomically, so lookups during a reload see either the old or the new
// book, never a mix.
type Loader struct {
	path string
	log  *zap.SugaredLogger

	mu   sync.RWMutex
	book Rulebook
}

// NewLoader creates a loader for the given rulebook path and performs the
// initial load. A missing file yields an empty rulebook, not an error.
func NewLoader(path string, log *zap.SugaredLogger) (*Loader, error) {
	l := &Loader{
		path: path,
		log:  log.With("component", "rules"),
	}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload re-reads the rulebook from disk.
func (l *Loader) Reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.mu.Lock()
			l.book = Rulebook{}
			l.mu.Unlock()
			return nil
		}
		return errs.Wrapf(err, "read rulebook %s", l.path)
	}

	var book Rulebook
	if err := yaml.Unmarshal(data, &book); err != nil {
		return errs.Wrapf(err, "parse rulebook %s", l.path)
	}

	l.mu.Lock()
	l.book = book
	l.mu.Unlock()
	l.log.Infow("rulebook loaded", "path", l.path,
		"cleaningSets", len(book.Cleaning), "validationSets", len(book.Validation), "aggregationSets", len(book.Aggregation))
	return nil
}

// CleaningSet returns a named cleaning rule set; unknown names yield nil.
func (l *Loader) CleaningSet(name string) []models.CleaningRule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.book.Cleaning[name]
}

// ValidationSet returns a named validation rule set; unknown names yield
// nil.
func (l *Loader) ValidationSet(name string) []models.ValidationRule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.book.Validation[name]
}

// AggregationSet returns a named aggregation rule set; unknown names yield
// nil.
func (l *Loader) AggregationSet(name string) []models.AggregationRule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.book.Aggregation[name]
}
