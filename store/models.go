package store

import "time"

type CodebaseRecord struct {
	ID           string `gorm:"primaryKey;size:64"`
	BundleName   string `gorm:"size:1024"`
	BundleSHA256 string `gorm:"column:bundle_sha256;index;size:64"`
	Files        int
	Symbols      int
	IndexedAt    time.Time `gorm:"index"`
}

// SymbolRecord is one num->name entry.
type SymbolRecord struct {
	ID       uint   `gorm:"primaryKey"`
	Codebase string `gorm:"uniqueIndex:uniq_symbol_code;size:64"`
	Code     string `gorm:"uniqueIndex:uniq_symbol_code;size:32"`
	Name     string `gorm:"index;size:256"`
}

// NameRecord is one name->num entry. It differs from the SymbolRecord
// inverse when a name was redefined with another code.
type NameRecord struct {
	ID       uint   `gorm:"primaryKey"`
	Codebase string `gorm:"uniqueIndex:uniq_name;size:64"`
	Name     string `gorm:"uniqueIndex:uniq_name;size:256"`
	Code     string `gorm:"index;size:32"`
}

type ProvenanceRecord struct {
	ID          uint   `gorm:"primaryKey"`
	Codebase    string `gorm:"index:idx_prov_code;size:64"`
	Code        string `gorm:"index:idx_prov_code;size:32"`
	Seq         int    // position within the code's provenance list
	Name        string `gorm:"size:256"`
	File        string `gorm:"size:1024"`
	Kind        string `gorm:"size:32"`
	Line        int
	ContextFrom int
	ContextJSON string `gorm:"column:context_json;type:text"`
}

// IndexMeta is a single-row table.
type IndexMeta struct {
	ID       uint   `gorm:"primaryKey"`
	Required string `gorm:"type:text"` // JSON array of codebase ids
	CycleMs  int
	SavedAt  time.Time
}

type FeedbackRecord struct {
	ID            uint      `gorm:"primaryKey"`
	CreatedAt     time.Time `gorm:"index"`
	Case          string    `gorm:"column:case_id;index;size:256"`
	Comments      string    `gorm:"type:text"`
	PrecursorJSON string    `gorm:"column:new_precursors;type:text"`
	ConfusionJSON string    `gorm:"column:new_confusions;type:text"`
	// Applied is true when the feedback changed the rules document.
	Applied bool `gorm:"index"`
}
