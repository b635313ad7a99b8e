package models

import "slices"

// Names of the syncable application tables.
const (
	TableVocabularies  = "vocabularies"
	TableCards         = "cards"
	TableStudySessions = "study_sessions"
	TableUserProgress  = "user_progress"
	TableAudioFiles    = "audio_files"
)

// TableSpec describes how a table takes part in synchronization.
type TableSpec struct {
	Name           string
	ParentField    string // поле со ссылкой на родительскую запись
	ParentTable    string
	Strategy       ConflictStrategy
	RequiredFields []string
	Priority       int
	HighPriority   bool // выгружается в hybrid режиме
	Critical       bool // скачивается в hybrid режиме
	Media          bool // только метаданные больших бинарных файлов
}

// DefaultTables returns the built-in table registry in sync order.
// Parents come before their children.
func DefaultTables() []TableSpec {
	return []TableSpec{
		{
			Name:           TableVocabularies,
			Strategy:       StrategyMerge,
			RequiredFields: []string{"lemma", "definition"},
			Priority:       2,
		},
		{
			Name:        TableCards,
			Strategy:    StrategyMerge,
			ParentField: "vocab_id",
			ParentTable: TableVocabularies,
			Priority:    2,
		},
		{
			Name:         TableStudySessions,
			Strategy:     StrategyClientWins,
			Priority:     3,
			HighPriority: true,
		},
		{
			Name:         TableUserProgress,
			Strategy:     StrategyMerge,
			Priority:     4,
			HighPriority: true,
			Critical:     true,
		},
		{
			Name:     TableAudioFiles,
			Strategy: StrategyServerWins,
			Priority: 1,
			Media:    true,
		},
	}
}

// TableRegistry is an ordered, read-only set of table specs.
type TableRegistry struct {
	byName map[string]TableSpec
	specs  []TableSpec
}

// NewTableRegistry builds a registry preserving the given order.
func NewTableRegistry(specs []TableSpec) *TableRegistry {
	r := &TableRegistry{
		specs:  slices.Clone(specs),
		byName: make(map[string]TableSpec, len(specs)),
	}
	for _, s := range specs {
		r.byName[s.Name] = s
	}
	return r
}

// Get returns the spec for a table.
func (r *TableRegistry) Get(name string) (TableSpec, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Has reports whether the table is registered.
func (r *TableRegistry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Specs returns all specs in registry order.
func (r *TableRegistry) Specs() []TableSpec {
	return slices.Clone(r.specs)
}

// Names returns table names in registry order.
func (r *TableRegistry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for _, s := range r.specs {
		names = append(names, s.Name)
	}
	return names
}

// Ordered returns specs with the given priority tables first (in the given
// order), followed by the rest in registry order. Unknown names are ignored.
func (r *TableRegistry) Ordered(priority []string) []TableSpec {
	out := make([]TableSpec, 0, len(r.specs))
	seen := make(map[string]bool, len(r.specs))
	for _, name := range priority {
		s, ok := r.byName[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, s)
	}
	for _, s := range r.specs {
		if !seen[s.Name] {
			out = append(out, s)
		}
	}
	return out
}
