// Package store persists the symbol index and the feedback document in
// sqlite.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"oht-analyzer/rules"
	"oht-analyzer/symbols"
)

var (
	ErrNoIndex      = errors.New("no saved symbol index")
	ErrEmptySection = errors.New("symbol index has an empty section")
)

const metaID = 1

type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates the
// schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&CodebaseRecord{},
		&SymbolRecord{},
		&NameRecord{},
		&ProvenanceRecord{},
		&IndexMeta{},
		&FeedbackRecord{},
	); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenQuery opens an existing database for reading without touching the
// schema. A missing file is ErrNoIndex.
func OpenQuery(path string) (*Store, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoIndex, path)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveIndex replaces every codebase present in ix, in one transaction.
// Codebases saved earlier but absent from ix are kept. An index where a
// codebase (or a required one) has no symbols is rejected before anything
// is written.
func (s *Store) SaveIndex(ctx context.Context, ix *symbols.Index) error {
	if ix == nil {
		return fmt.Errorf("%w: nil index", ErrEmptySection)
	}
	ids := ix.Codebases()
	if len(ids) == 0 {
		return fmt.Errorf("%w: no codebases", ErrEmptySection)
	}
	for _, id := range ids {
		if m, _ := ix.Map(id); m.Len() == 0 {
			return fmt.Errorf("%w: %s", ErrEmptySection, id)
		}
	}
	if err := ix.CheckRequired(ix.Required); err != nil {
		return fmt.Errorf("%w: %v", ErrEmptySection, err)
	}

	required, err := json.Marshal(ix.Required)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			m, _ := ix.Map(id)
			for _, model := range []any{&SymbolRecord{}, &NameRecord{}, &ProvenanceRecord{}} {
				if err := tx.Where("codebase = ?", id).Delete(model).Error; err != nil {
					return err
				}
			}
			if err := tx.Save(&CodebaseRecord{
				ID:           id,
				BundleName:   m.BundleName,
				BundleSHA256: m.BundleSHA256,
				Files:        m.Files,
				Symbols:      m.Len(),
				IndexedAt:    now,
			}).Error; err != nil {
				return err
			}

			syms := make([]SymbolRecord, 0, len(m.NumToName))
			for code, name := range m.NumToName {
				syms = append(syms, SymbolRecord{Codebase: id, Code: code, Name: name})
			}
			if err := createAll(tx, syms); err != nil {
				return err
			}

			names := make([]NameRecord, 0, len(m.NameToNum))
			for name, code := range m.NameToNum {
				names = append(names, NameRecord{Codebase: id, Name: name, Code: code})
			}
			if err := createAll(tx, names); err != nil {
				return err
			}

			var provs []ProvenanceRecord
			for code, list := range m.Provenance {
				for seq, p := range list {
					ctxJSON := ""
					if len(p.Context) > 0 {
						b, err := json.Marshal(p.Context)
						if err != nil {
							return err
						}
						ctxJSON = string(b)
					}
					provs = append(provs, ProvenanceRecord{
						Codebase:    id,
						Code:        code,
						Seq:         seq,
						Name:        p.Name,
						File:        p.File,
						Kind:        string(p.Kind),
						Line:        p.Line,
						ContextFrom: p.ContextFrom,
						ContextJSON: ctxJSON,
					})
				}
			}
			if err := createAll(tx, provs); err != nil {
				return err
			}
		}
		return tx.Save(&IndexMeta{
			ID:       metaID,
			Required: string(required),
			CycleMs:  ix.CycleMs,
			SavedAt:  now,
		}).Error
	})
}

func createAll[T any](tx *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.CreateInBatches(rows, 500).Error
}

// LoadIndex rebuilds the saved index.
func (s *Store) LoadIndex(ctx context.Context) (*symbols.Index, error) {
	db := s.db.WithContext(ctx)

	var cbs []CodebaseRecord
	if err := db.Order("id").Find(&cbs).Error; err != nil {
		return nil, err
	}
	if len(cbs) == 0 {
		return nil, ErrNoIndex
	}

	ix := symbols.NewIndex()
	for _, cb := range cbs {
		m := symbols.NewSymbolMap(cb.ID)
		m.BundleName = cb.BundleName
		m.BundleSHA256 = cb.BundleSHA256
		m.Files = cb.Files

		var syms []SymbolRecord
		if err := db.Where("codebase = ?", cb.ID).Find(&syms).Error; err != nil {
			return nil, err
		}
		for _, r := range syms {
			m.NumToName[r.Code] = r.Name
		}

		var names []NameRecord
		if err := db.Where("codebase = ?", cb.ID).Find(&names).Error; err != nil {
			return nil, err
		}
		for _, r := range names {
			m.NameToNum[r.Name] = r.Code
		}

		var provs []ProvenanceRecord
		if err := db.Where("codebase = ?", cb.ID).Order("code").Order("seq").Find(&provs).Error; err != nil {
			return nil, err
		}
		for _, r := range provs {
			p := symbols.Provenance{
				File:        r.File,
				Name:        r.Name,
				Kind:        symbols.DeclKind(r.Kind),
				Line:        r.Line,
				ContextFrom: r.ContextFrom,
			}
			if r.ContextJSON != "" {
				if err := json.Unmarshal([]byte(r.ContextJSON), &p.Context); err != nil {
					return nil, fmt.Errorf("provenance %d context: %w", r.ID, err)
				}
			}
			m.Provenance[r.Code] = append(m.Provenance[r.Code], p)
		}
		ix.Put(m)
	}

	var meta IndexMeta
	err := db.First(&meta, metaID).Error
	switch {
	case err == nil:
		var required []string
		if err := json.Unmarshal([]byte(meta.Required), &required); err != nil {
			return nil, fmt.Errorf("index meta: %w", err)
		}
		ix.Required = required
		ix.CycleMs = meta.CycleMs
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, err
	}
	return ix, nil
}

// AppendFeedback stores fb. Feedback is never updated or removed.
func (s *Store) AppendFeedback(ctx context.Context, fb rules.Feedback, applied bool) (*FeedbackRecord, error) {
	return s.RecordFeedback(ctx, fb, applied, nil)
}

// RecordFeedback inserts fb and then runs commit, if set, before the
// insert is committed. An error from commit rolls the record back, so a
// stored record always matches what commit did.
func (s *Store) RecordFeedback(ctx context.Context, fb rules.Feedback, applied bool, commit func(*FeedbackRecord) error) (*FeedbackRecord, error) {
	precs, err := json.Marshal(nonNil(fb.NewPrecursors))
	if err != nil {
		return nil, err
	}
	confs, err := json.Marshal(nonNil(fb.NewConfusions))
	if err != nil {
		return nil, err
	}
	rec := &FeedbackRecord{
		Case:          fb.Case,
		Comments:      fb.Comments,
		PrecursorJSON: string(precs),
		ConfusionJSON: string(confs),
		Applied:       applied,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		if commit != nil {
			return commit(rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListFeedback returns every record in insertion order.
func (s *Store) ListFeedback(ctx context.Context) ([]FeedbackRecord, error) {
	var out []FeedbackRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Feedback decodes the record back into its rules form.
func (r FeedbackRecord) Feedback() (rules.Feedback, error) {
	fb := rules.Feedback{Case: r.Case, Comments: r.Comments}
	if r.PrecursorJSON != "" {
		if err := json.Unmarshal([]byte(r.PrecursorJSON), &fb.NewPrecursors); err != nil {
			return fb, err
		}
	}
	if r.ConfusionJSON != "" {
		if err := json.Unmarshal([]byte(r.ConfusionJSON), &fb.NewConfusions); err != nil {
			return fb, err
		}
	}
	return fb, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
