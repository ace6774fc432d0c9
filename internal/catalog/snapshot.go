package catalog

import (
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
)

// Snapshot is an immutable, in-memory copy of the catalog. The fingerprint is
// a content hash, so two snapshots with the same record count but different
// content never share derived artifacts.
type Snapshot struct {
	records     []domain.CatalogRecord
	byID        map[domain.RecordID]int
	fingerprint string
}

func NewSnapshot(records []domain.CatalogRecord) *Snapshot {
	copied := make([]domain.CatalogRecord, len(records))
	copy(copied, records)

	byID := make(map[domain.RecordID]int, len(copied))
	digest := xxhash.New()
	for i, record := range copied {
		if _, exists := byID[record.ID]; !exists {
			byID[record.ID] = i
		}
		hashRecord(digest, record)
	}

	return &Snapshot{
		records:     copied,
		byID:        byID,
		fingerprint: strconv.FormatUint(digest.Sum64(), 16),
	}
}

// hashRecord feeds every record field into digest. Each value is followed by
// a separator byte so that adjacent fields cannot run together.
func hashRecord(digest *xxhash.Digest, record domain.CatalogRecord) {
	field := func(value string) {
		_, _ = digest.WriteString(value)
		_, _ = digest.Write([]byte{0})
	}
	list := func(values []string) {
		field(strconv.Itoa(len(values)))
		for _, value := range values {
			field(value)
		}
	}

	field(string(record.ID))
	field(record.Title)
	field(record.NativeTitle)
	field(record.RomanizedTitle)
	field(strconv.Itoa(len(record.SecondaryTitles)))
	for _, lang := range record.SecondaryTitles {
		field(lang.Language)
		list(lang.Titles)
	}
	field(string(record.State))
	field(string(record.MergedWith))
	field(record.Type)
	field(record.Description)
	field(record.ContentRating)
	field(record.Year)
	field(record.Lang)
	list(record.Authors)
	list(record.Artists)
	list(record.Genres)
	list(record.Tags)
	list(record.Links)
	field(strconv.Itoa(len(record.Publishers)))
	for _, publisher := range record.Publishers {
		field(publisher.Name)
		field(publisher.Type)
	}
	field(record.FinalVolume)
	field(record.FinalChapter)
	_, _ = digest.Write([]byte{'\n'})
}

// Records returns the snapshot records in load order. Callers must not
// modify the returned slice.
func (s *Snapshot) Records() []domain.CatalogRecord {
	if s == nil {
		return nil
	}
	return s.records
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Get returns the first record loaded under id.
func (s *Snapshot) Get(id domain.RecordID) (domain.CatalogRecord, bool) {
	if s == nil {
		return domain.CatalogRecord{}, false
	}
	idx, ok := s.byID[id]
	if !ok {
		return domain.CatalogRecord{}, false
	}
	return s.records[idx], true
}

func (s *Snapshot) Fingerprint() string {
	if s == nil {
		return ""
	}
	return s.fingerprint
}
