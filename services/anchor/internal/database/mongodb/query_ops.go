package mongodb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/redbco/redb-federation/pkg/anchor/adapter"
	"github.com/redbco/redb-federation/pkg/dbcapabilities"
	"github.com/redbco/redb-federation/services/anchor/internal/database/common"
)

// FindCommand is the native query text accepted by ExecuteInNamespace:
//
//	{"find":"events","filter":{},"limit":100000}
//
// Filter and projection are MongoDB extended JSON documents.
type FindCommand struct {
	Find       string          `json:"find"`
	Filter     json.RawMessage `json:"filter,omitempty"`
	Projection json.RawMessage `json:"projection,omitempty"`
	Limit      int64           `json:"limit,omitempty"`
}

// ParseFindCommand decodes and validates a find command.
func ParseFindCommand(query string) (*FindCommand, error) {
	var cmd FindCommand
	if err := json.Unmarshal([]byte(query), &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", adapter.ErrInvalidQuery, err)
	}
	if strings.TrimSpace(cmd.Find) == "" {
		return nil, fmt.Errorf("%w: find command needs a collection name", adapter.ErrInvalidQuery)
	}
	if cmd.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", adapter.ErrInvalidQuery, cmd.Limit)
	}
	return &cmd, nil
}

func (c *FindCommand) filterDoc() (bson.D, error) {
	return extJSONDoc(c.Filter)
}

func (c *FindCommand) projectionDoc() (bson.D, error) {
	return extJSONDoc(c.Projection)
}

func extJSONDoc(raw json.RawMessage) (bson.D, error) {
	doc := bson.D{}
	if len(raw) == 0 || string(raw) == "null" {
		return doc, nil
	}
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", adapter.ErrInvalidQuery, err)
	}
	return doc, nil
}

// QueryOps implements adapter.QueryOperator for MongoDB.
type QueryOps struct {
	conn *Connection
}

// ExecuteInNamespace runs a find command in the namespace's database
// (the connection's database when empty). Columns are the union of document
// keys in first-seen order; missing keys are nil.
func (q *QueryOps) ExecuteInNamespace(ctx context.Context, ns adapter.Namespace, query string) (*adapter.QueryResult, error) {
	cmd, err := ParseFindCommand(query)
	if err != nil {
		return nil, adapter.WrapError(dbcapabilities.MongoDB, "parse_query", err)
	}
	filter, err := cmd.filterDoc()
	if err != nil {
		return nil, adapter.WrapError(dbcapabilities.MongoDB, "parse_query", err)
	}
	projection, err := cmd.projectionDoc()
	if err != nil {
		return nil, adapter.WrapError(dbcapabilities.MongoDB, "parse_query", err)
	}

	dbName := ns.Database
	if dbName == "" {
		dbName = q.conn.config.DatabaseName
	}

	findOptions := options.Find()
	if cmd.Limit > 0 {
		findOptions.SetLimit(cmd.Limit)
	}
	if len(projection) > 0 {
		findOptions.SetProjection(projection)
	}

	collection := q.conn.client.Database(dbName).Collection(cmd.Find)
	cursor, err := collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, adapter.NewDatabaseError(dbcapabilities.MongoDB, "find", err).With("collection", cmd.Find)
	}
	defer cursor.Close(context.Background())

	var docs []bson.D
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, adapter.WrapError(dbcapabilities.MongoDB, "decode", err)
		}
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, adapter.WrapError(dbcapabilities.MongoDB, "find", err)
	}

	return documentsToResult(docs), nil
}

func documentsToResult(docs []bson.D) *adapter.QueryResult {
	res := &adapter.QueryResult{Rows: make([][]interface{}, 0, len(docs))}
	index := make(map[string]int)

	for _, doc := range docs {
		for _, elem := range doc {
			if _, seen := index[elem.Key]; !seen {
				index[elem.Key] = len(res.Columns)
				res.Columns = append(res.Columns, adapter.Column{Name: elem.Key})
			}
		}
	}

	for _, doc := range docs {
		row := make([]interface{}, len(res.Columns))
		for _, elem := range doc {
			i := index[elem.Key]
			row[i] = convertValue(elem.Value)
			if res.Columns[i].Type == "" {
				res.Columns[i].Type = common.InferTypeName(row[i])
			}
		}
		res.Rows = append(res.Rows, row)
	}

	return res
}
