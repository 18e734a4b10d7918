package federation

import (
	"strings"
)

// Planner compiles a query and an alias table into a Plan.
type Planner struct {
	dialects        *DialectRegistry
	defaultRowLimit int
}

// NewPlanner creates a planner. A nil registry means the built-in dialects;
// a non-positive row limit means DefaultRowLimit.
func NewPlanner(dialects *DialectRegistry, defaultRowLimit int) *Planner {
	if dialects == nil {
		dialects = NewDialectRegistry()
	}
	if defaultRowLimit <= 0 {
		defaultRowLimit = DefaultRowLimit
	}
	return &Planner{dialects: dialects, defaultRowLimit: defaultRowLimit}
}

// Dialects returns the registry the planner synthesizes source queries with.
func (p *Planner) Dialects() *DialectRegistry {
	return p.dialects
}

// BuildPlan resolves every federated reference in query against aliases and
// returns the sources to fetch together with the locally executable query.
// rowLimit <= 0 selects the planner default. No backend is contacted.
func (p *Planner) BuildPlan(query string, aliases AliasTable, rowLimit int, stream bool) (*Plan, error) {
	available := aliases.Names()
	if strings.TrimSpace(query) == "" {
		return nil, &ValidationError{Message: "query is empty"}
	}
	if rowLimit <= 0 {
		rowLimit = p.defaultRowLimit
	}

	res, err := Resolve(query, available)
	if err != nil {
		if verr, ok := err.(*ValidationError); ok {
			verr.AvailableAliases = available
		}
		return nil, err
	}
	if len(res.Unknown) > 0 {
		lead := res.Unknown[0]
		if segs := splitChain(lead); len(segs) > 0 {
			lead = segs[0].Name
		}
		return nil, &ValidationError{
			Message:          "unknown connection alias '" + lead + "' in table reference",
			Fragment:         res.Unknown[0],
			AvailableAliases: available,
		}
	}
	if len(res.Refs) == 0 {
		return nil, &ValidationError{
			Message:          "query does not reference any connection alias",
			AvailableAliases: available,
		}
	}

	plan := &Plan{
		Sources:       make([]SourceFetchPlan, 0, len(res.Refs)),
		OriginalQuery: query,
		Stream:        stream,
	}
	mapping := make(map[string]string)
	seen := make(map[string]bool)
	for _, ref := range res.Refs {
		entry, ok := aliases[ref.Alias]
		if !ok {
			return nil, &ValidationError{
				Message:          "unknown connection alias '" + ref.Alias + "'",
				Fragment:         ref.Original,
				AvailableAliases: available,
			}
		}
		dialect, ok := p.dialects.Lookup(entry.DriverID)
		if !ok {
			return nil, &ValidationError{
				Message:  "connection alias '" + ref.Alias + "' uses unsupported driver '" + entry.DriverID + "'",
				Fragment: ref.Original,
			}
		}

		src := SourceFetchPlan{
			Ref:         ref,
			SessionID:   entry.SessionID,
			DriverID:    entry.DriverID,
			DisplayName: entry.DisplayName,
			RowLimit:    rowLimit,
		}
		if src.SourceQuery, err = dialect.BuildSourceQuery(src); err != nil {
			return nil, &ValidationError{Message: err.Error(), Fragment: ref.Original}
		}
		plan.Sources = append(plan.Sources, src)

		key := ref.Alias + "\x00" + ref.Database + "\x00" + ref.Schema + "\x00" + ref.Table
		if !seen[key] {
			seen[key] = true
			mapping[ref.Original] = ref.LocalAlias
		}
	}

	rewritten, err := Substitute(query, res.Refs)
	if err != nil {
		return nil, &InternalError{Message: "substitute table references", Cause: err}
	}
	if plan.RewrittenQuery, err = Rewrite(rewritten, mapping); err != nil {
		return nil, err
	}
	return plan, nil
}
