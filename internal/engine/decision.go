// Package engine implements the memory lifecycle and retrieval engines:
// the decision engine that resolves candidate facts into record mutations,
// the consolidation engine that merges near-duplicates, the tiered
// retrieval orchestrator, hybrid fusion, and the context assembler.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/evermem/evermem/internal/llm"
	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/pkg/types"
)

// Retrieval/decision modes. Accurate mode consults the language model;
// fast mode uses heuristics only.
const (
	ModeAccurate = "accurate"
	ModeFast     = "fast"
)

// Heuristic thresholds for the fast decision path.
const (
	duplicateSimilarity = 0.92
	updateSimilarity    = 0.75
	confidenceFloor     = 0.3
	similarLimit        = 5
	similarThreshold    = 0.5
)

// DecisionConfig configures a DecisionEngine.
type DecisionConfig struct {
	// Mode selects accurate (LLM-backed) or fast (heuristic) decisions.
	Mode string
}

// DecisionEngine resolves one candidate fact against similar existing
// records into exactly one mutation: ADD, UPDATE, DELETE, or NOOP.
type DecisionEngine struct {
	store     storage.Store
	generator llm.TextGenerator
	embedder  llm.EmbeddingGenerator
	mode      string
}

// NewDecisionEngine creates a decision engine. generator may be nil in fast
// mode; embedder may be nil, in which case candidates are stored without
// embeddings and similar-record lookup falls back to name matching.
func NewDecisionEngine(store storage.Store, generator llm.TextGenerator, embedder llm.EmbeddingGenerator, cfg DecisionConfig) *DecisionEngine {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeAccurate
	}
	return &DecisionEngine{
		store:     store,
		generator: generator,
		embedder:  embedder,
		mode:      mode,
	}
}

// DecisionResult reports what a single decision did.
type DecisionResult struct {
	Op        types.AuditOp
	Record    *types.Record // the record created or mutated, nil for pure NOOP
	Previous  *types.Record // the prior state of the mutated record, if any
	Reasoning string
}

// Process resolves one candidate fact into exactly one mutation and appends
// an audit entry for it. A persistence failure aborts this one operation
// only; upstream provider failures degrade to safe defaults instead of
// failing the caller.
func (e *DecisionEngine) Process(ctx context.Context, ownerID string, candidate *types.CandidateFact) (*DecisionResult, error) {
	if candidate == nil || candidate.Name == "" || candidate.Content == "" {
		return nil, fmt.Errorf("%w: candidate requires name and content", storage.ErrInvalidInput)
	}
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if !types.IsValidMemoryType(candidate.MemoryType) {
		return nil, fmt.Errorf("%w: unknown memory type %q", storage.ErrInvalidInput, candidate.MemoryType)
	}

	// Credential-like content is never persisted.
	if looksLikeSecret(candidate.Content) || looksLikeSecret(candidate.Name) {
		reasoning := "content matches a credential pattern and is never stored"
		if err := e.audit(ctx, ownerID, types.AuditOpNoop, "", "", nil, nil, reasoning); err != nil {
			return nil, err
		}
		return &DecisionResult{Op: types.AuditOpNoop, Reasoning: reasoning}, nil
	}

	embedding := e.embedCandidate(ctx, candidate)
	similar, err := e.findSimilar(ctx, ownerID, candidate, embedding)
	if err != nil {
		return nil, err
	}

	// Nothing similar exists: always an ADD.
	if len(similar) == 0 {
		return e.applyAdd(ctx, ownerID, candidate, embedding, "no similar record exists")
	}

	decision := e.decide(ctx, candidate, similar)

	switch decision.Action {
	case "ADD":
		return e.applyAdd(ctx, ownerID, candidate, embedding, decision.Reasoning)
	case "UPDATE":
		target, ok := findTarget(similar, decision.TargetID)
		if !ok {
			return nil, fmt.Errorf("%w: decision targets unknown record %s", storage.ErrNotFound, decision.TargetID)
		}
		return e.applyUpdate(ctx, ownerID, candidate, embedding, target, decision.UpdateMode, decision.Reasoning)
	case "DELETE":
		target, ok := findTarget(similar, decision.TargetID)
		if !ok {
			return nil, fmt.Errorf("%w: decision targets unknown record %s", storage.ErrNotFound, decision.TargetID)
		}
		return e.applyDelete(ctx, ownerID, target, decision.DeleteMode == "hard", decision.Reasoning)
	default: // NOOP
		if decision.Duplicate {
			matched := similar[0].Record
			if decision.TargetID != "" {
				if t, ok := findTarget(similar, decision.TargetID); ok {
					matched = t
				}
			}
			return e.applyDuplicateNoop(ctx, ownerID, candidate, matched, decision.Reasoning)
		}
		if err := e.audit(ctx, ownerID, types.AuditOpNoop, "", "", nil, nil, decision.Reasoning); err != nil {
			return nil, err
		}
		return &DecisionResult{Op: types.AuditOpNoop, Reasoning: decision.Reasoning}, nil
	}
}

// embedCandidate embeds the candidate content, degrading to a zero vector
// when the provider fails or no embedder is configured.
func (e *DecisionEngine) embedCandidate(ctx context.Context, candidate *types.CandidateFact) []float32 {
	if e.embedder == nil {
		return nil
	}
	vec, err := e.embedder.Embed(ctx, candidate.Content)
	if err != nil {
		log.Printf("WARNING: embedding failed, storing without vector: %v", err)
		return nil
	}
	return vec
}

// findSimilar gathers candidate-relevant existing records: vector neighbours
// when an embedding is available, merged with fuzzy name matches.
func (e *DecisionEngine) findSimilar(ctx context.Context, ownerID string, candidate *types.CandidateFact, embedding []float32) ([]storage.ScoredRecord, error) {
	var similar []storage.ScoredRecord

	if !storage.IsZeroVector(embedding) {
		hits, err := e.store.SimilaritySearch(ctx, ownerID, embedding, storage.SimilarityOptions{
			Threshold: similarThreshold,
			Limit:     similarLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("engine: similarity search: %w", err)
		}
		similar = hits
	}

	byName, err := e.store.FindByName(ctx, ownerID, candidate.Name, similarLimit)
	if err != nil {
		return nil, fmt.Errorf("engine: name lookup: %w", err)
	}

	seen := make(map[string]bool, len(similar))
	for _, s := range similar {
		seen[s.Record.ID] = true
	}
	for _, rec := range byName {
		if !seen[rec.ID] {
			similar = append(similar, storage.ScoredRecord{Record: rec, Similarity: 0})
		}
	}

	return similar, nil
}

// decide selects the operation. Accurate mode asks the structured-decision
// model and degrades to NOOP on provider failure; fast mode applies fixed
// similarity and confidence heuristics. Both share one code path above.
func (e *DecisionEngine) decide(ctx context.Context, candidate *types.CandidateFact, similar []storage.ScoredRecord) *llm.DecisionResponse {
	if e.mode == ModeAccurate && e.generator != nil {
		records := make([]*types.Record, len(similar))
		for i, s := range similar {
			records[i] = s.Record
		}

		raw, err := e.generator.Complete(ctx, llm.DecisionPrompt(candidate, records))
		if err == nil {
			if resp, perr := llm.ParseDecision(raw); perr == nil {
				return resp
			} else {
				log.Printf("WARNING: unparseable decision response, falling back to heuristics: %v", perr)
			}
		} else {
			log.Printf("WARNING: decision model unavailable, falling back to heuristics: %v", err)
		}
	}

	return heuristicDecision(candidate, similar)
}

// heuristicDecision is the fast path: confidence floor, near-exact duplicate
// detection, then similarity-driven append.
func heuristicDecision(candidate *types.CandidateFact, similar []storage.ScoredRecord) *llm.DecisionResponse {
	if candidate.Confidence > 0 && candidate.Confidence < confidenceFloor {
		return &llm.DecisionResponse{
			Action:    "NOOP",
			Reasoning: fmt.Sprintf("confidence %.2f below floor %.2f", candidate.Confidence, confidenceFloor),
		}
	}

	top := similar[0]
	if top.Similarity >= duplicateSimilarity {
		return &llm.DecisionResponse{
			Action:    "NOOP",
			TargetID:  top.Record.ID,
			Duplicate: true,
			Reasoning: fmt.Sprintf("near-exact duplicate of %s (similarity %.2f)", top.Record.ID, top.Similarity),
		}
	}
	if top.Similarity >= updateSimilarity {
		return &llm.DecisionResponse{
			Action:     "UPDATE",
			TargetID:   top.Record.ID,
			UpdateMode: "append",
			Reasoning:  fmt.Sprintf("adds detail to %s (similarity %.2f)", top.Record.ID, top.Similarity),
		}
	}

	// Name matches carry similarity 0 when no embedding is available; an
	// exact name match still consolidates instead of adding a twin record.
	for _, s := range similar {
		if !strings.EqualFold(s.Record.Name, candidate.Name) {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(s.Record.Summary), strings.TrimSpace(candidate.Content)) {
			return &llm.DecisionResponse{
				Action:    "NOOP",
				TargetID:  s.Record.ID,
				Duplicate: true,
				Reasoning: fmt.Sprintf("exact name and content match with %s", s.Record.ID),
			}
		}
		return &llm.DecisionResponse{
			Action:     "UPDATE",
			TargetID:   s.Record.ID,
			UpdateMode: "append",
			Reasoning:  fmt.Sprintf("same name as %s, appending detail", s.Record.ID),
		}
	}

	return &llm.DecisionResponse{Action: "ADD", Reasoning: "no sufficiently similar record"}
}

func (e *DecisionEngine) applyAdd(ctx context.Context, ownerID string, candidate *types.CandidateFact, embedding []float32, reasoning string) (*DecisionResult, error) {
	record := recordFromCandidate(ownerID, candidate, embedding)

	if err := e.store.CreateRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("engine: create record: %w", err)
	}

	if err := e.audit(ctx, ownerID, types.AuditOpAdd, record.ID, "", nil, record, reasoning); err != nil {
		return nil, err
	}

	return &DecisionResult{Op: types.AuditOpAdd, Record: record, Reasoning: reasoning}, nil
}

func (e *DecisionEngine) applyUpdate(ctx context.Context, ownerID string, candidate *types.CandidateFact, embedding []float32, target *types.Record, mode, reasoning string) (*DecisionResult, error) {
	if mode == "supersede" {
		return e.applySupersede(ctx, ownerID, candidate, embedding, target, reasoning)
	}

	before := target.Clone()
	expected := target.Version

	switch mode {
	case "append":
		target.Summary = target.Summary + "; " + candidate.Content
	default: // replace
		target.Summary = candidate.Content
	}
	target.Version = expected + 1
	target.MentionCount++
	if candidate.Sentiment != nil {
		target.RecordSentiment(*candidate.Sentiment)
	}
	if candidate.Importance != "" && candidate.Importance.Score() > target.ImportanceScore {
		target.Importance = candidate.Importance
		target.ImportanceScore = candidate.Importance.Score()
	}
	if len(embedding) > 0 {
		target.Embedding = embedding
	}
	target.UpdatedAt = time.Now().UTC()

	if err := e.store.UpdateRecord(ctx, target, expected); err != nil {
		return nil, fmt.Errorf("engine: update record: %w", err)
	}

	if err := e.audit(ctx, ownerID, types.AuditOpUpdate, target.ID, "", before, target, reasoning); err != nil {
		return nil, err
	}

	return &DecisionResult{Op: types.AuditOpUpdate, Record: target, Previous: before, Reasoning: reasoning}, nil
}

// applySupersede keeps the old record as history and creates a successor.
// The new record is written first; if marking the old record fails, the
// successor is removed so the chain is never left with two active heads.
func (e *DecisionEngine) applySupersede(ctx context.Context, ownerID string, candidate *types.CandidateFact, embedding []float32, target *types.Record, reasoning string) (*DecisionResult, error) {
	before := target.Clone()
	expected := target.Version

	successor := recordFromCandidate(ownerID, candidate, embedding)
	successor.SupersedesID = target.ID
	successor.Version = target.Version + 1
	successor.MentionCount = target.MentionCount + 1
	successor.SentimentHistory = append([]float64{}, target.SentimentHistory...)
	successor.SentimentAverage = target.SentimentAverage
	if candidate.Sentiment != nil {
		successor.RecordSentiment(*candidate.Sentiment)
	}

	if err := e.store.CreateRecord(ctx, successor); err != nil {
		return nil, fmt.Errorf("engine: create successor: %w", err)
	}

	target.Status = types.StatusSuperseded
	target.IsHistorical = true
	target.SupersededBy = successor.ID
	target.UpdatedAt = time.Now().UTC()

	if err := e.store.UpdateRecord(ctx, target, expected); err != nil {
		if delErr := e.store.DeleteRecord(ctx, ownerID, successor.ID); delErr != nil {
			log.Printf("ERROR: could not roll back successor %s: %v", successor.ID, delErr)
		}
		return nil, fmt.Errorf("engine: supersede record: %w", err)
	}

	if err := e.audit(ctx, ownerID, types.AuditOpUpdate, successor.ID, target.ID, before, successor, reasoning); err != nil {
		return nil, err
	}

	return &DecisionResult{Op: types.AuditOpUpdate, Record: successor, Previous: before, Reasoning: reasoning}, nil
}

func (e *DecisionEngine) applyDelete(ctx context.Context, ownerID string, target *types.Record, hard bool, reasoning string) (*DecisionResult, error) {
	before := target.Clone()

	if hard {
		if err := e.store.DeleteRecord(ctx, ownerID, target.ID); err != nil {
			return nil, fmt.Errorf("engine: delete record: %w", err)
		}
		if err := e.audit(ctx, ownerID, types.AuditOpDelete, target.ID, "", before, nil, reasoning); err != nil {
			return nil, err
		}
		return &DecisionResult{Op: types.AuditOpDelete, Previous: before, Reasoning: reasoning}, nil
	}

	expected := target.Version
	target.Status = types.StatusArchived
	target.UpdatedAt = time.Now().UTC()

	if err := e.store.UpdateRecord(ctx, target, expected); err != nil {
		return nil, fmt.Errorf("engine: archive record: %w", err)
	}

	if err := e.audit(ctx, ownerID, types.AuditOpDelete, target.ID, "", before, target, reasoning); err != nil {
		return nil, err
	}

	return &DecisionResult{Op: types.AuditOpDelete, Record: target, Previous: before, Reasoning: reasoning}, nil
}

// applyDuplicateNoop strengthens the matched record: redundant mentions bump
// mention_count and feed the sentiment window instead of vanishing.
func (e *DecisionEngine) applyDuplicateNoop(ctx context.Context, ownerID string, candidate *types.CandidateFact, matched *types.Record, reasoning string) (*DecisionResult, error) {
	before := matched.Clone()
	expected := matched.Version

	matched.MentionCount++
	if candidate.Sentiment != nil {
		matched.RecordSentiment(*candidate.Sentiment)
	}
	matched.UpdatedAt = time.Now().UTC()

	if err := e.store.UpdateRecord(ctx, matched, expected); err != nil {
		return nil, fmt.Errorf("engine: bump mention count: %w", err)
	}

	if err := e.audit(ctx, ownerID, types.AuditOpNoop, matched.ID, "", before, matched, reasoning); err != nil {
		return nil, err
	}

	return &DecisionResult{Op: types.AuditOpNoop, Record: matched, Previous: before, Reasoning: reasoning}, nil
}

func (e *DecisionEngine) audit(ctx context.Context, ownerID string, op types.AuditOp, recordID, relatedID string, before, after *types.Record, reasoning string) error {
	entry := &types.AuditEntry{
		ID:        ulid.MustNew(ulid.Now(), rand.Reader).String(),
		OwnerID:   ownerID,
		Op:        op,
		RecordID:  recordID,
		RelatedID: relatedID,
		Reasoning: reasoning,
		CreatedAt: time.Now().UTC(),
	}
	if before != nil {
		entry.Before = marshalRecord(before)
	}
	if after != nil {
		entry.After = marshalRecord(after)
	}

	if err := e.store.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("engine: append audit: %w", err)
	}
	return nil
}

// recordFromCandidate builds a fresh active record from a candidate fact.
func recordFromCandidate(ownerID string, candidate *types.CandidateFact, embedding []float32) *types.Record {
	now := time.Now().UTC()

	importance := candidate.Importance
	if importance == "" {
		importance = types.ImportanceMedium
	}

	category := candidate.Category
	if category == "" {
		category = categoryFor(candidate.Name + " " + candidate.Content)
	}

	sensitivity := candidate.Sensitivity
	if sensitivity == "" {
		sensitivity = types.SensitivityNormal
	}

	record := &types.Record{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Name:            candidate.Name,
		MemoryType:      candidate.MemoryType,
		Summary:         candidate.Content,
		Category:        category,
		Importance:      importance,
		ImportanceScore: importance.Score(),
		MentionCount:    1,
		Status:          types.StatusActive,
		Version:         1,
		IsHistorical:    candidate.IsHistorical,
		EffectiveFrom:   candidate.EffectiveFrom,
		ExpiresAt:       candidate.ExpiresAt,
		Sensitivity:     sensitivity,
		Confidence:      candidate.Confidence,
		Embedding:       embedding,
		CreatedAt:       now,
		UpdatedAt:       now,
		Payload:         payloadFromCandidate(candidate),
	}

	if candidate.Sentiment != nil {
		record.RecordSentiment(*candidate.Sentiment)
	}

	return record
}

func payloadFromCandidate(candidate *types.CandidateFact) types.Payload {
	switch candidate.MemoryType {
	case types.MemoryTypeEntity:
		if candidate.EntityKind != "" {
			return types.EntityPayload{EntityKind: candidate.EntityKind}
		}
	case types.MemoryTypeEvent:
		if candidate.Recurrence != nil {
			return types.EventPayload{Recurrence: candidate.Recurrence}
		}
	}
	return nil
}

func findTarget(similar []storage.ScoredRecord, id string) (*types.Record, bool) {
	for _, s := range similar {
		if s.Record.ID == id {
			return s.Record, true
		}
	}
	return nil, false
}

func marshalRecord(record *types.Record) string {
	data, err := json.Marshal(record)
	if err != nil {
		return ""
	}
	return string(data)
}

// IsConflict reports whether err is the optimistic concurrency failure from
// a racing mutation. Callers typically re-read and retry the one operation.
func IsConflict(err error) bool {
	return errors.Is(err, storage.ErrVersionConflict)
}
