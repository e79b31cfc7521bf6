package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/pkg/types"
)

// mockStore is an in-memory storage.Store for engine tests. It tracks call
// counts per method so tests can assert which tiers were consulted, and
// supports error injection on updates.
type mockStore struct {
	mu        sync.Mutex
	records   map[string]*types.Record
	links     []types.EntityLink
	facts     []types.Fact
	summaries map[string]types.CategorySummary
	audits    []types.AuditEntry
	calls     map[string]int

	failUpdate   error
	failUpdateID string // when set, failUpdate applies to this record only
	failCreate   error
}

var _ storage.Store = (*mockStore)(nil)

func newMockStore() *mockStore {
	return &mockStore{
		records:   make(map[string]*types.Record),
		summaries: make(map[string]types.CategorySummary),
		calls:     make(map[string]int),
	}
}

func (m *mockStore) called(method string) {
	m.calls[method]++
}

func (m *mockStore) callCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *mockStore) CreateRecord(_ context.Context, record *types.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("CreateRecord")
	if m.failCreate != nil {
		return m.failCreate
	}
	if _, exists := m.records[record.ID]; exists {
		return fmt.Errorf("%w: duplicate id", storage.ErrInvalidInput)
	}
	m.records[record.ID] = record.Clone()
	return nil
}

func (m *mockStore) GetRecord(_ context.Context, ownerID, id string) (*types.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("GetRecord")
	rec, ok := m.records[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *mockStore) GetRecords(_ context.Context, ownerID string, ids []string) ([]*types.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("GetRecords")
	var out []*types.Record
	for _, id := range ids {
		if rec, ok := m.records[id]; ok && rec.OwnerID == ownerID {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (m *mockStore) UpdateRecord(_ context.Context, record *types.Record, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("UpdateRecord")
	if m.failUpdate != nil && (m.failUpdateID == "" || m.failUpdateID == record.ID) {
		return m.failUpdate
	}
	existing, ok := m.records[record.ID]
	if !ok || existing.OwnerID != record.OwnerID {
		return storage.ErrNotFound
	}
	if existing.Version != expectedVersion {
		return storage.ErrVersionConflict
	}
	m.records[record.ID] = record.Clone()
	return nil
}

func (m *mockStore) DeleteRecord(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("DeleteRecord")
	rec, ok := m.records[id]
	if !ok || rec.OwnerID != ownerID {
		return storage.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *mockStore) ListActive(_ context.Context, ownerID string, opts storage.ListOptions) ([]*types.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("ListActive")
	opts.Normalize()

	var out []*types.Record
	for _, rec := range m.records {
		if rec.OwnerID != ownerID || rec.Status != types.StatusActive {
			continue
		}
		if opts.Category != "" && rec.Category != opts.Category {
			continue
		}
		if opts.MemoryType != "" && rec.MemoryType != opts.MemoryType {
			continue
		}
		if opts.RequireEmbedding && len(rec.Embedding) == 0 {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *mockStore) TopRecords(_ context.Context, ownerID string, limit int) ([]*types.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("TopRecords")

	var out []*types.Record
	for _, rec := range m.records {
		if rec.OwnerID == ownerID && rec.Status == types.StatusActive {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ImportanceScore != out[j].ImportanceScore {
			return out[i].ImportanceScore > out[j].ImportanceScore
		}
		if out[i].MentionCount != out[j].MentionCount {
			return out[i].MentionCount > out[j].MentionCount
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) FindByName(_ context.Context, ownerID, name string, limit int) ([]*types.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("FindByName")

	needle := strings.ToLower(name)
	var out []*types.Record
	for _, rec := range m.records {
		if rec.OwnerID != ownerID || rec.Status != types.StatusActive {
			continue
		}
		if strings.Contains(strings.ToLower(rec.Name), needle) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) EvolutionChain(_ context.Context, ownerID, id string) ([]*types.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("EvolutionChain")

	rec, ok := m.records[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}

	oldest := rec
	for oldest.SupersedesID != "" {
		prev, ok := m.records[oldest.SupersedesID]
		if !ok {
			break
		}
		oldest = prev
	}

	var chain []*types.Record
	cur := oldest
	for cur != nil {
		chain = append(chain, cur.Clone())
		if cur.SupersededBy == "" {
			break
		}
		cur = m.records[cur.SupersededBy]
	}
	return chain, nil
}

func (m *mockStore) Close() error { return nil }

func (m *mockStore) SimilaritySearch(_ context.Context, ownerID string, query []float32, opts storage.SimilarityOptions) ([]storage.ScoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("SimilaritySearch")
	opts.Normalize()

	if storage.IsZeroVector(query) {
		return nil, nil
	}

	var out []storage.ScoredRecord
	for _, rec := range m.records {
		if rec.OwnerID != ownerID || rec.Status != types.StatusActive || len(rec.Embedding) == 0 {
			continue
		}
		sim := storage.CosineSimilarity(query, rec.Embedding)
		if sim >= opts.Threshold {
			out = append(out, storage.ScoredRecord{Record: rec.Clone(), Similarity: sim})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Record.ID < out[j].Record.ID
	})
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *mockStore) StoreLink(_ context.Context, link *types.EntityLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("StoreLink")
	m.links = append(m.links, *link)
	return nil
}

func (m *mockStore) LinksFrom(_ context.Context, ownerID, recordID string) ([]types.EntityLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("LinksFrom")
	var out []types.EntityLink
	for _, l := range m.links {
		if l.OwnerID == ownerID && l.FromID == recordID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockStore) Traverse(_ context.Context, ownerID, seedID string, bounds storage.TraversalBounds) ([]storage.GraphPath, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("Traverse")
	bounds.Normalize()

	type frontierItem struct {
		id       string
		hops     []storage.GraphHop
		strength float64
	}

	visited := map[string]bool{seedID: true}
	frontier := []frontierItem{{id: seedID, strength: 1.0}}
	var paths []storage.GraphPath

	for depth := 1; depth <= bounds.MaxDepth && len(frontier) > 0; depth++ {
		var next []frontierItem
		for _, item := range frontier {
			for _, l := range m.links {
				if l.OwnerID != ownerID || l.Strength < bounds.MinStrength {
					continue
				}
				var target string
				switch item.id {
				case l.FromID:
					target = l.ToID
				case l.ToID:
					target = l.FromID
				default:
					continue
				}
				if visited[target] {
					continue
				}
				visited[target] = true

				hops := append(append([]storage.GraphHop{}, item.hops...), storage.GraphHop{
					FromID:       item.id,
					ToID:         target,
					Relationship: l.Relationship,
					Strength:     l.Strength,
				})
				strength := item.strength * l.Strength
				paths = append(paths, storage.GraphPath{
					TargetID: target,
					Hops:     hops,
					Strength: strength,
					Depth:    len(hops),
				})
				next = append(next, frontierItem{id: target, hops: hops, strength: strength})
			}
		}
		frontier = next
	}

	sort.Slice(paths, func(i, j int) bool {
		if paths[i].Strength != paths[j].Strength {
			return paths[i].Strength > paths[j].Strength
		}
		return paths[i].TargetID < paths[j].TargetID
	})
	return paths, nil
}

func (m *mockStore) StoreFact(_ context.Context, fact *types.Fact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("StoreFact")
	m.facts = append(m.facts, *fact)
	return nil
}

func (m *mockStore) FactsBySubject(_ context.Context, ownerID, subjectID string) ([]types.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("FactsBySubject")
	var out []types.Fact
	for _, f := range m.facts {
		if f.OwnerID == ownerID && f.SubjectID == subjectID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *mockStore) UpsertSummary(_ context.Context, summary *types.CategorySummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("UpsertSummary")
	m.summaries[summary.OwnerID+"|"+summary.Category] = *summary
	return nil
}

func (m *mockStore) GetSummaries(_ context.Context, ownerID string, categories []string) ([]types.CategorySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("GetSummaries")

	wanted := make(map[string]bool, len(categories))
	for _, c := range categories {
		wanted[c] = true
	}

	var out []types.CategorySummary
	for _, s := range m.summaries {
		if s.OwnerID != ownerID {
			continue
		}
		if len(categories) > 0 && !wanted[s.Category] {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (m *mockStore) AppendAudit(_ context.Context, entry *types.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("AppendAudit")
	m.audits = append(m.audits, *entry)
	return nil
}

func (m *mockStore) AuditForRecord(_ context.Context, ownerID, recordID string, limit int) ([]types.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("AuditForRecord")

	var out []types.AuditEntry
	for _, e := range m.audits {
		if e.OwnerID == ownerID && (e.RecordID == recordID || e.RelatedID == recordID) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mustRecord reads a record straight out of the map, bypassing owner checks.
func (m *mockStore) mustRecord(id string) *types.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		return rec.Clone()
	}
	return nil
}

func (m *mockStore) auditEntries() []types.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.AuditEntry{}, m.audits...)
}
