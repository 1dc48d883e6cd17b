package surreal

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

type Client struct {
	db *surrealdb.DB
}

// identifierRegex ensures that table names and fields only contain alphanumeric characters and underscores
var identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

func validateIdentifier(s string) error {
	if !identifierRegex.MatchString(s) {
		return fmt.Errorf("invalid identifier: %s", s)
	}
	return nil
}

// NormalizeHost adds the websocket scheme and rpc path to a bare host name.
func NormalizeHost(host string) string {
	if host == "" || strings.HasPrefix(host, "ws://") || strings.HasPrefix(host, "wss://") {
		return host
	}
	return "wss://" + host + "/rpc"
}

func NewClient(ctx context.Context, host, user, pass, namespace, database string) (*Client, error) {
	db, err := surrealdb.New(NormalizeHost(host))
	if err != nil {
		return nil, fmt.Errorf("failed to create surrealdb client: %w", err)
	}

	if _, err = db.SignIn(ctx, map[string]interface{}{
		"user": user,
		"pass": pass,
	}); err != nil {
		return nil, fmt.Errorf("failed to signin to surrealdb: %w", err)
	}

	if err = db.Use(ctx, namespace, database); err != nil {
		return nil, fmt.Errorf("failed to use surrealdb namespace/database: %w", err)
	}

	return &Client{db: db}, nil
}

func (c *Client) Close() {
	c.db.Close(context.Background())
}

// Query runs sql and returns the result of the last statement.
func (c *Client) Query(ctx context.Context, sql string, vars map[string]interface{}) (interface{}, error) {
	if vars == nil {
		vars = map[string]interface{}{}
	}
	result, err := surrealdb.Query[interface{}](ctx, c.db, sql, vars)
	if err != nil {
		return nil, err
	}

	// Unwrap the result: *[]QueryResult -> Result field of the last element
	rv := reflect.ValueOf(result)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}

	if rv.Kind() == reflect.Struct {
		resField := rv.FieldByName("Result")
		if resField.IsValid() {
			return resField.Interface(), nil
		}
	} else if rv.Kind() == reflect.Slice {
		if rv.Len() > 0 {
			lastElem := rv.Index(rv.Len() - 1)
			if lastElem.Kind() == reflect.Struct {
				resField := lastElem.FieldByName("Result")
				if resField.IsValid() {
					return resField.Interface(), nil
				}
			}
		}
	}

	return result, nil
}

// Count returns the number of rows in table matching filter (equality on each key).
func (c *Client) Count(ctx context.Context, table string, filter map[string]interface{}) (int64, error) {
	if err := validateIdentifier(table); err != nil {
		return 0, err
	}
	whereClause, err := buildWhereClause(filter)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT count() AS total FROM %s WHERE %s GROUP ALL;`, table, whereClause)
	result, err := c.Query(ctx, query, filter)
	if err != nil {
		return 0, err
	}

	rows := Rows(result)
	if len(rows) == 0 {
		return 0, nil
	}
	return ToInt64(rows[0]["total"]), nil
}

func buildWhereClause(filter map[string]interface{}) (string, error) {
	if len(filter) == 0 {
		return "true", nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		if err := validateIdentifier(k); err != nil {
			return "", err
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, len(keys))
	for i, k := range keys {
		clauses[i] = fmt.Sprintf("%s = $%s", k, k)
	}
	return strings.Join(clauses, " AND "), nil
}

// Rows flattens a query result into row maps. It accepts both a bare row
// slice and the older [{result: rows}] envelope.
func Rows(result interface{}) []map[string]interface{} {
	items, ok := result.([]interface{})
	if !ok {
		if row, ok := result.(map[string]interface{}); ok {
			return []map[string]interface{}{row}
		}
		return nil
	}

	var rows []map[string]interface{}
	for _, item := range items {
		row, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if inner, ok := row["result"]; ok && len(row) <= 3 {
			rows = append(rows, Rows(inner)...)
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// Values returns the scalar values of a SELECT VALUE query.
func Values(result interface{}) []interface{} {
	items, ok := result.([]interface{})
	if !ok {
		return nil
	}
	return items
}

// ToInt64 converts the numeric types the CBOR decoder may produce.
func ToInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case uint32:
		return int64(n)
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	default:
		return 0
	}
}
