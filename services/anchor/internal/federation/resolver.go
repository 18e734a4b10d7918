package federation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Keywords that end a FROM list. ON and USING are not among them: a comma
// after a join condition still introduces another table.
var clauseKeywords = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true, "LIMIT": true,
	"OFFSET": true, "UNION": true, "EXCEPT": true, "INTERSECT": true, "WINDOW": true,
	"QUALIFY": true, "SELECT": true, "SET": true, "VALUES": true, "RETURNING": true,
	"FETCH": true, "FOR": true,
}

// Functions whose argument syntax uses FROM, e.g. EXTRACT(YEAR FROM ts).
var fromArgFunctions = map[string]bool{
	"EXTRACT": true, "SUBSTRING": true, "TRIM": true, "OVERLAY": true, "POSITION": true,
}

type scope struct {
	fromList bool
	funcArgs bool
}

// Resolution is the outcome of scanning a query for federated references.
type Resolution struct {
	// Refs holds every alias-qualified table reference in scan order.
	Refs []TableRef
	// Unknown holds table-position chains of three or more segments whose
	// leading segment is not a known alias.
	Unknown []string
}

// Resolve scans query for table references of the form
// alias.database[.schema].table that follow FROM, JOIN or a comma in a FROM
// list. Text inside literals and comments is never considered.
func Resolve(query string, aliases []string) (*Resolution, error) {
	known := make(map[string]bool, len(aliases))
	for _, a := range aliases {
		known[a] = true
	}

	res := &Resolution{}
	var (
		expectTable bool
		fromList    bool
		scopes      []scope
		prev        lexeme
	)
	for _, lx := range tokenize(query) {
		switch lx.code {
		case whitespaceToken, lineCommentToken, blockCommentToken:
			continue
		}
		before := prev
		prev = lx
		inFuncArgs := len(scopes) > 0 && scopes[len(scopes)-1].funcArgs

		switch lx.code {
		case chainToken:
			switch kw := lx.keyword(); {
			case kw == "FROM" && inFuncArgs:
				expectTable = false
				continue
			case kw == "FROM":
				expectTable, fromList = true, true
				continue
			case kw == "JOIN":
				expectTable = true
				continue
			case expectTable && (kw == "LATERAL" || kw == "ONLY"):
				continue
			case clauseKeywords[kw]:
				fromList = false
			}
			if expectTable {
				expectTable = false
				if err := res.add(lx, known); err != nil {
					return nil, err
				}
			}
		default:
			switch {
			case lx.isByte('('):
				scopes = append(scopes, scope{fromList: fromList, funcArgs: fromArgFunctions[before.keyword()]})
				fromList = false
			case lx.isByte(')'):
				if n := len(scopes); n > 0 {
					fromList = scopes[n-1].fromList
					scopes = scopes[:n-1]
				}
			case lx.isByte(',') && fromList:
				expectTable = true
				continue
			}
			expectTable = false
		}
	}
	return res, nil
}

func (r *Resolution) add(lx lexeme, known map[string]bool) error {
	segs := splitChain(lx.text)
	if len(segs) < 2 {
		return nil
	}
	if !known[segs[0].Name] {
		if len(segs) >= 3 {
			r.Unknown = append(r.Unknown, lx.text)
		}
		return nil
	}

	ref := TableRef{
		Alias:    segs[0].Name,
		Original: lx.text,
		Start:    lx.start,
		End:      lx.end,
	}
	switch trailing := segs[1:]; len(trailing) {
	case 1:
		return &ValidationError{
			Message:  "incomplete federated reference, expected alias.database[.schema].table",
			Fragment: lx.text,
		}
	case 2:
		ref.Database, ref.Table = trailing[0].Name, trailing[1].Name
	case 3:
		ref.Database, ref.Schema, ref.Table = trailing[0].Name, trailing[1].Name, trailing[2].Name
	default:
		return &ValidationError{
			Message:  "ambiguous federated reference, too many segments after alias",
			Fragment: lx.text,
		}
	}
	ref.LocalAlias = localAlias(ref.Table, len(r.Refs))
	r.Refs = append(r.Refs, ref)
	return nil
}

func localAlias(table string, index int) string {
	var b strings.Builder
	b.WriteString("__fed_")
	for _, c := range table {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		} else {
			b.WriteByte('_')
		}
	}
	b.WriteByte('_')
	b.WriteString(strconv.Itoa(index))
	return b.String()
}

// Substitute replaces each reference's byte span with its local alias. refs
// must be in scan order, as returned by Resolve for the same query.
func Substitute(query string, refs []TableRef) (string, error) {
	var b strings.Builder
	last := 0
	for _, ref := range refs {
		if ref.Start < last || ref.End > len(query) || ref.Start > ref.End {
			return "", fmt.Errorf("reference %q at %d:%d does not fit the query", ref.Original, ref.Start, ref.End)
		}
		b.WriteString(query[last:ref.Start])
		b.WriteString(ref.LocalAlias)
		last = ref.End
	}
	b.WriteString(query[last:])
	return b.String(), nil
}

type rewriteRule struct {
	names []string
	local string
}

// Rewrite replaces every identifier chain that starts with one of mapping's
// dotted keys with the key's local name, keeping any trailing segments
// (prod_pg.public.users.email becomes __fed_users_0.email). Matching is per
// segment, so prod_pg.public.users does not match prod_pg.public.users_archive,
// and literals and comments are left untouched.
func Rewrite(query string, mapping map[string]string) (string, error) {
	rules := make([]rewriteRule, 0, len(mapping))
	for key, local := range mapping {
		segs := splitChain(key)
		if segs == nil {
			return "", &ValidationError{Message: "malformed reference in rewrite mapping", Fragment: key}
		}
		names := make([]string, len(segs))
		for i, s := range segs {
			names[i] = s.Name
		}
		rules = append(rules, rewriteRule{names: names, local: local})
	}
	sort.Slice(rules, func(i, j int) bool {
		if len(rules[i].names) != len(rules[j].names) {
			return len(rules[i].names) > len(rules[j].names)
		}
		return strings.Join(rules[i].names, ".") < strings.Join(rules[j].names, ".")
	})

	var b strings.Builder
	for _, lx := range tokenize(query) {
		if lx.code != chainToken {
			b.WriteString(lx.text)
			continue
		}
		b.WriteString(applyRules(lx.text, rules))
	}
	return b.String(), nil
}

func applyRules(chain string, rules []rewriteRule) string {
	segs := splitChain(chain)
	for _, rule := range rules {
		if len(segs) < len(rule.names) {
			continue
		}
		matched := true
		for i, name := range rule.names {
			if segs[i].Name != name {
				matched = false
				break
			}
		}
		if matched {
			return rule.local + chain[segs[len(rule.names)-1].End:]
		}
	}
	return chain
}
