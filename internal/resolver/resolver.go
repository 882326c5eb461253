package resolver

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/xrash/smetrics"

	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/pkg/logger"
)

// Config carries the tunable matching knobs. The defaults come from the
// source material without a documented evaluation set, so they are exposed
// as configuration rather than baked in.
type Config struct {
	// SimilarityThreshold is the minimum normalized string similarity for
	// two mentions of the same type to merge.
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
	// MergedConfidence is assigned to canonical entities built from more
	// than one mention, identical texts included.
	MergedConfidence float64 `yaml:"mergedConfidence"`
}

// DefaultConfig returns the starting defaults for resolution.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.8,
		MergedConfidence:    0.8,
	}
}

// Resolver deduplicates entity mentions into canonical entities. The
// algorithm is deterministic: the same mention set always produces the same
// partition and the same canonical names, which reprocessing relies on.
type Resolver struct {
	cfg    Config
	logger logger.Logger
}

func New(cfg Config, log logger.Logger) *Resolver {
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = DefaultConfig().SimilarityThreshold
	}
	if cfg.MergedConfidence <= 0 || cfg.MergedConfidence > 1 {
		cfg.MergedConfidence = DefaultConfig().MergedConfidence
	}
	return &Resolver{cfg: cfg, logger: log}
}

// Resolve partitions the document's mentions into canonical entities and
// returns the entities plus the mention-to-canonical assignment.
func (r *Resolver) Resolve(docID uuid.UUID, mentions []models.EntityMention) ([]models.CanonicalEntity, map[uuid.UUID]uuid.UUID) {
	// First-seen order is the deterministic baseline for everything below.
	ordered := make([]models.EntityMention, len(mentions))
	copy(ordered, mentions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Ordinal < ordered[j].Ordinal
	})

	// Union-find over mention positions; transitive matches collapse into
	// one group without re-comparison.
	parent := make([]int, len(ordered))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if ra > rb {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[i].Type != ordered[j].Type {
				continue
			}
			if r.sameEntity(ordered[i].Type, ordered[i].Text, ordered[j].Text) {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]models.EntityMention)
	var roots []int
	for i := range ordered {
		root := find(i)
		if _, seen := groups[root]; !seen {
			roots = append(roots, root)
		}
		groups[root] = append(groups[root], ordered[i])
	}
	sort.Ints(roots)

	entities := make([]models.CanonicalEntity, 0, len(roots))
	assignment := make(map[uuid.UUID]uuid.UUID, len(ordered))
	for _, root := range roots {
		group := groups[root]
		entity := r.buildEntity(docID, group)
		entities = append(entities, entity)
		for _, m := range group {
			assignment[m.ID] = entity.ID
		}
	}
	return entities, assignment
}

// buildEntity derives the canonical record for one group: the longest
// member text wins the name (earliest seen on ties), aliases are every
// distinct member text, and any group holding more than one mention
// carries reduced confidence.
func (r *Resolver) buildEntity(docID uuid.UUID, group []models.EntityMention) models.CanonicalEntity {
	name := group[0].Text
	seen := make(map[string]struct{}, len(group))
	var aliases []string
	for _, m := range group {
		if len(m.Text) > len(name) {
			name = m.Text
		}
		if _, dup := seen[m.Text]; !dup {
			seen[m.Text] = struct{}{}
			aliases = append(aliases, m.Text)
		}
	}
	sort.Strings(aliases)

	confidence := 1.0
	if len(group) > 1 {
		confidence = r.cfg.MergedConfidence
	}

	return models.CanonicalEntity{
		ID:           uuid.New(),
		DocumentID:   docID,
		Name:         name,
		Type:         group[0].Type,
		Aliases:      aliases,
		MentionCount: len(group),
		Confidence:   confidence,
	}
}

// sameEntity decides whether two mention texts of the same type refer to
// the same real-world entity.
func (r *Resolver) sameEntity(entityType models.EntityType, a, b string) bool {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if similarity(na, nb) >= r.cfg.SimilarityThreshold {
		return true
	}
	switch entityType {
	case models.EntityPerson:
		return initialsMatch(na, nb)
	case models.EntityOrg:
		return orgMatch(na, nb)
	}
	return false
}

// similarity is 1 minus the Levenshtein distance normalized by the longer
// string's length.
func similarity(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	dist := smetrics.WagnerFischer(a, b, 1, 1, 1)
	return 1 - float64(dist)/float64(longest)
}

// normalize lowercases, collapses whitespace and strips trailing
// punctuation from each token so "Corp." and "corp" compare equal.
func normalize(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	for i, f := range fields {
		fields[i] = strings.TrimRight(f, ".,;:")
	}
	return strings.Join(fields, " ")
}

// initialsMatch handles the PERSON rule: "J. Smith" matches "John Smith"
// when the surnames are equal and the given-name initials agree, with at
// least one side in initial form.
func initialsMatch(a, b string) bool {
	ta, tb := strings.Fields(a), strings.Fields(b)
	if len(ta) < 2 || len(tb) < 2 {
		return false
	}
	if ta[len(ta)-1] != tb[len(tb)-1] {
		return false
	}
	ga, gb := ta[0], tb[0]
	if ga[0] != gb[0] {
		return false
	}
	return len(ga) == 1 || len(gb) == 1 || ga == gb
}

// orgAbbreviations maps common organization suffix abbreviations to their
// expansions, compared after normalization.
var orgAbbreviations = map[string]string{
	"corp":  "corporation",
	"inc":   "incorporated",
	"ltd":   "limited",
	"co":    "company",
	"intl":  "international",
	"assn":  "association",
	"dept":  "department",
	"univ":  "university",
	"bros":  "brothers",
	"mfg":   "manufacturing",
}

// orgMatch handles the ORG rule: equality after abbreviation expansion, or
// one name being a prefix of the other.
func orgMatch(a, b string) bool {
	ea, eb := expandOrg(a), expandOrg(b)
	if ea == eb {
		return true
	}
	// Prefix matching with a floor so "A" does not swallow every org.
	shorter := ea
	if len(eb) < len(ea) {
		shorter = eb
	}
	if len(shorter) < 4 {
		return false
	}
	return strings.HasPrefix(ea, eb) || strings.HasPrefix(eb, ea)
}

func expandOrg(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if full, ok := orgAbbreviations[f]; ok {
			fields[i] = full
		}
	}
	return strings.Join(fields, " ")
}
