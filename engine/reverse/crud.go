package reverse

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// ============================================================================
// READS
// ============================================================================

func (c *converter) find(cmd bson.D) (string, error) {
	table, err := collectionName(cmd)
	if err != nil {
		return "", err
	}
	c.table = table
	q := &selectQuery{from: table}
	c.say("find() on %s becomes a SELECT from %s.", table, ident(table))

	if err := c.where(cmd, q); err != nil {
		return "", err
	}
	if v, ok := field(cmd, "projection", "fields"); ok {
		d, err := document(v, "projection")
		if err != nil {
			return "", err
		}
		cols, err := c.projection(d)
		if err != nil {
			return "", err
		}
		q.columns = cols
		if len(cols) > 0 {
			c.say("The projection becomes the select list.")
		}
	}
	if v, ok := field(cmd, "sort"); ok {
		d, err := document(v, "sort")
		if err != nil {
			return "", err
		}
		order, err := c.orderBy(d, c.column)
		if err != nil {
			return "", err
		}
		q.orderBy = order
		if len(order) > 0 {
			c.say("The sort document becomes ORDER BY, with -1 read as DESC.")
		}
	}
	if v, ok := field(cmd, "skip"); ok {
		n, err := integer(v, "skip")
		if err != nil {
			return "", err
		}
		q.applySkip(n)
	}
	if v, ok := field(cmd, "limit"); ok {
		n, err := integer(v, "limit")
		if err != nil {
			return "", err
		}
		if n < 0 {
			n = -n
			c.note(fmt.Sprintf("A negative limit asks for a single batch of %d documents; it becomes LIMIT %d.", n, n))
		}
		if n > 0 {
			q.applyLimit(n)
		}
	}
	if q.limit != nil || q.offset != nil {
		c.say("skip and limit become LIMIT and OFFSET.")
	}
	return q.String(), nil
}

func (c *converter) where(cmd bson.D, q *selectQuery) error {
	v, ok := field(cmd, "filter", "query", "q")
	if !ok {
		return nil
	}
	d, err := document(v, "filter")
	if err != nil {
		return err
	}
	w, err := c.filter(d, c.column)
	if err != nil {
		return err
	}
	q.where = w
	if !w.empty() {
		c.say("The filter becomes the WHERE clause; its top-level conditions are joined with AND.")
	}
	return nil
}

// projection reads a find() projection. _id is selected only when asked for.
func (c *converter) projection(d bson.D) ([]string, error) {
	var cols []string
	idDefault := true
	for _, e := range d {
		if on, ok := truthy(e.Value); ok {
			if !on {
				if e.Key == "_id" {
					idDefault = false
					continue
				}
				return nil, fmt.Errorf("%w: exclusion projection (%s: 0); list the columns to keep instead", ErrNotSupported, e.Key)
			}
			if e.Key == "_id" {
				idDefault = false
			}
			col, err := c.column(e.Key)
			if err != nil {
				return nil, err
			}
			cols = append(cols, col)
			continue
		}
		expr, err := c.expr(e.Value, c.column)
		if err != nil {
			return nil, err
		}
		cols = append(cols, alias(expr, e.Key))
	}
	if len(cols) > 0 && idDefault {
		c.note("find() returns _id unless the projection sets _id: 0; add _id to the select list if you need it.")
	}
	return cols, nil
}

func (c *converter) orderBy(d bson.D, ref resolver) ([]string, error) {
	var out []string
	for _, e := range d {
		dir, err := integer(e.Value, "sort direction of "+e.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: sort on %s by %v", ErrNotSupported, e.Key, e.Value)
		}
		col, err := ref(e.Key)
		if err != nil {
			return nil, err
		}
		if dir < 0 {
			col += " DESC"
		}
		out = append(out, col)
	}
	return out, nil
}

func (c *converter) count(cmd bson.D) (string, error) {
	table, err := collectionName(cmd)
	if err != nil {
		return "", err
	}
	c.table = table
	q := &selectQuery{from: table, columns: []string{"COUNT(*)"}}
	c.say("count on %s becomes SELECT COUNT(*).", table)
	if err := c.where(cmd, q); err != nil {
		return "", err
	}
	return q.String(), nil
}

func (c *converter) distinct(cmd bson.D) (string, error) {
	table, err := collectionName(cmd)
	if err != nil {
		return "", err
	}
	c.table = table
	v, ok := field(cmd, "key")
	key, isString := v.(string)
	if !ok || !isString || key == "" {
		return "", fmt.Errorf("%w: distinct expects a key", ErrParse)
	}
	col, err := c.column(key)
	if err != nil {
		return "", err
	}
	q := &selectQuery{from: table, distinct: true, columns: []string{col}}
	c.say("distinct on %s becomes SELECT DISTINCT %s.", key, col)
	if err := c.where(cmd, q); err != nil {
		return "", err
	}
	c.note("distinct() returns one flat array and unwinds array fields into their elements; SELECT DISTINCT returns rows and compares arrays whole.")
	return q.String(), nil
}

// ============================================================================
// WRITES
// ============================================================================

func (c *converter) insert(cmd bson.D) (string, error) {
	table, err := collectionName(cmd)
	if err != nil {
		return "", err
	}
	c.table = table

	var docs []bson.D
	if v, ok := field(cmd, "documents"); ok {
		list, err := array(v, "documents")
		if err != nil {
			return "", err
		}
		for _, item := range list {
			d, err := document(item, "document")
			if err != nil {
				return "", err
			}
			docs = append(docs, d)
		}
	} else if v, ok := field(cmd, "document"); ok {
		d, err := document(v, "document")
		if err != nil {
			return "", err
		}
		docs = append(docs, d)
	}
	if len(docs) == 0 || len(docs[0]) == 0 {
		return "", fmt.Errorf("%w: insert expects at least one document", ErrParse)
	}

	// columns in first-seen order across all documents
	var columns []string
	seen := map[string]bool{}
	for _, d := range docs {
		for _, e := range d {
			if !seen[e.Key] {
				seen[e.Key] = true
				columns = append(columns, e.Key)
			}
		}
	}

	rows := make([]string, len(docs))
	for i, d := range docs {
		values := make([]string, len(columns))
		for k, col := range columns {
			v, ok := field(d, col)
			if !ok {
				c.note("The documents have different fields; missing columns are inserted as NULL.")
				values[k] = "NULL"
				continue
			}
			switch v.(type) {
			case bson.D, bson.A:
				return "", fmt.Errorf("%w: nested value in column %s", ErrNotSupported, col)
			}
			lit, err := c.literal(v)
			if err != nil {
				return "", err
			}
			values[k] = lit
		}
		rows[i] = "(" + strings.Join(values, ", ") + ")"
	}

	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = c.ident(col)
	}
	if len(docs) > 1 {
		c.say("The %d documents become the rows of one multi-row INSERT into %s.", len(docs), table)
	} else {
		c.say("The document becomes one row inserted into %s; its fields name the columns.", table)
	}
	if _, ok := field(docs[0], "_id"); !ok {
		c.note("MongoDB adds an ObjectId _id to every inserted document; give the table its own primary key.")
	}
	return "INSERT INTO " + ident(table) + " (" + strings.Join(names, ", ") + ") VALUES " + strings.Join(rows, ", "), nil
}

// write is one update or delete: a filter plus, for updates, the change
type write struct {
	filter bson.D
	change interface{}
	multi  bool
	upsert bool
}

// writes reads either the wire form (updates/deletes arrays) or the single
// filter/update form. The wire form is single-document unless multi is set
// or limit is 0; the single form follows the command name.
func writes(cmd bson.D, list, changeKey string) ([]write, error) {
	name := cmd[0].Key
	if v, ok := field(cmd, list); ok {
		items, err := array(v, list)
		if err != nil {
			return nil, err
		}
		var out []write
		for _, item := range items {
			d, err := document(item, list+" element")
			if err != nil {
				return nil, err
			}
			w := write{}
			if q, ok := field(d, "q"); ok {
				if w.filter, err = document(q, "q"); err != nil {
					return nil, err
				}
			}
			w.change, _ = field(d, "u")
			if m, ok := field(d, "multi"); ok {
				w.multi, _ = truthy(m)
			}
			if l, ok := field(d, "limit"); ok {
				one, _ := truthy(l)
				w.multi = !one
			}
			if u, ok := field(d, "upsert"); ok {
				w.upsert, _ = truthy(u)
			}
			out = append(out, w)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: %s is empty", ErrParse, list)
		}
		return out, nil
	}

	w := write{multi: !strings.HasSuffix(name, "One")}
	if v, ok := field(cmd, "filter", "q", "query"); ok {
		d, err := document(v, "filter")
		if err != nil {
			return nil, err
		}
		w.filter = d
	}
	if changeKey != "" {
		// the change document may share the command's own key
		for _, e := range cmd[1:] {
			if e.Key == changeKey || e.Key == "u" || e.Key == "replacement" {
				w.change = e.Value
			}
		}
	}
	if m, ok := field(cmd, "multi"); ok {
		w.multi, _ = truthy(m)
	}
	if u, ok := field(cmd, "upsert"); ok {
		w.upsert, _ = truthy(u)
	}
	return []write{w}, nil
}

func (c *converter) update(cmd bson.D) (string, error) {
	table, err := collectionName(cmd)
	if err != nil {
		return "", err
	}
	c.table = table
	list, err := writes(cmd, "updates", "update")
	if err != nil {
		return "", err
	}

	var stmts []string
	for _, w := range list {
		sets, err := c.assignments(w.change)
		if err != nil {
			return "", err
		}
		where, err := c.filter(w.filter, c.column)
		if err != nil {
			return "", err
		}
		sql := "UPDATE " + ident(table) + " SET " + strings.Join(sets, ", ")
		if !where.empty() {
			sql += " WHERE " + where.String()
		}
		if !w.multi {
			sql += " LIMIT 1"
			c.note("The update changes only the first matching document; LIMIT 1 without ORDER BY picks an arbitrary row.")
		}
		if w.upsert {
			c.note("upsert has no UPDATE equivalent; use INSERT ... ON DUPLICATE KEY UPDATE with a unique key on the filter columns.")
		}
		stmts = append(stmts, sql)
	}
	c.say("The update operators become SET assignments and the filter becomes the WHERE clause of UPDATE %s.", table)
	return strings.Join(stmts, ";\n"), nil
}

// assignments converts an update document, replacement or pipeline to SET items
func (c *converter) assignments(change interface{}) ([]string, error) {
	ref := func(path string) (string, error) { return c.ident(path), nil }
	var sets []string
	switch u := change.(type) {
	case bson.A:
		for _, s := range u {
			st, err := document(s, "update stage")
			if err != nil {
				return nil, err
			}
			if len(st) != 1 {
				return nil, fmt.Errorf("%w: update stage must have one operator", ErrParse)
			}
			switch st[0].Key {
			case "$set", "$addFields":
				body, err := document(st[0].Value, st[0].Key)
				if err != nil {
					return nil, err
				}
				for _, e := range body {
					expr, err := c.expr(e.Value, ref)
					if err != nil {
						return nil, err
					}
					sets = append(sets, c.ident(e.Key)+" = "+expr)
				}
			case "$unset":
				names, err := unsetNames(st[0].Value)
				if err != nil {
					return nil, err
				}
				for _, n := range names {
					sets = append(sets, c.ident(n)+" = NULL")
				}
			default:
				return nil, fmt.Errorf("%w: update pipeline stage %s", ErrNotSupported, st[0].Key)
			}
		}
		c.say("The update pipeline's $set expressions become SET assignments evaluated per row.")
	case bson.D:
		if !operatorDoc(u) {
			c.note("A replacement document overwrites the whole document; the UPDATE only sets the listed columns.")
			for _, e := range u {
				if e.Key == "_id" {
					continue
				}
				lit, err := c.literal(e.Value)
				if err != nil {
					return nil, err
				}
				sets = append(sets, c.ident(e.Key)+" = "+lit)
			}
			break
		}
		for _, op := range u {
			body, err := document(op.Value, op.Key)
			if err != nil {
				return nil, err
			}
			for _, e := range body {
				col := c.ident(e.Key)
				if op.Key == "$unset" {
					sets = append(sets, col+" = NULL")
					continue
				}
				if op.Key == "$currentDate" {
					sets = append(sets, col+" = NOW()")
					continue
				}
				lit, err := c.literal(e.Value)
				if err != nil {
					return nil, err
				}
				switch op.Key {
				case "$set":
					sets = append(sets, col+" = "+lit)
				case "$inc":
					if strings.HasPrefix(lit, "-") {
						sets = append(sets, col+" = "+col+" - "+lit[1:])
					} else {
						sets = append(sets, col+" = "+col+" + "+lit)
					}
				case "$mul":
					sets = append(sets, col+" = "+col+" * "+lit)
				case "$min":
					sets = append(sets, col+" = LEAST("+col+", "+lit+")")
				case "$max":
					sets = append(sets, col+" = GREATEST("+col+", "+lit+")")
				default:
					return nil, fmt.Errorf("%w: update operator %s", ErrNotSupported, op.Key)
				}
			}
		}
	case nil:
		return nil, fmt.Errorf("%w: update expects an update document", ErrParse)
	default:
		return nil, fmt.Errorf("%w: update must be a document or a pipeline", ErrParse)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("%w: the update changes no fields", ErrParse)
	}
	return sets, nil
}

func unsetNames(v interface{}) ([]string, error) {
	switch x := v.(type) {
	case string:
		return []string{x}, nil
	case bson.A:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: $unset expects field names", ErrParse)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: $unset expects field names", ErrParse)
}

func (c *converter) delete(cmd bson.D) (string, error) {
	table, err := collectionName(cmd)
	if err != nil {
		return "", err
	}
	c.table = table
	list, err := writes(cmd, "deletes", "")
	if err != nil {
		return "", err
	}

	var stmts []string
	for _, w := range list {
		where, err := c.filter(w.filter, c.column)
		if err != nil {
			return "", err
		}
		sql := "DELETE FROM " + ident(table)
		if where.empty() {
			c.note("There is no filter, so every row is deleted; TRUNCATE TABLE is faster when that is the intent.")
		} else {
			sql += " WHERE " + where.String()
		}
		if !w.multi {
			sql += " LIMIT 1"
			c.note("The delete removes only the first matching document; LIMIT 1 without ORDER BY picks an arbitrary row.")
		}
		stmts = append(stmts, sql)
	}
	c.say("The filter becomes the WHERE clause of DELETE FROM %s.", table)
	return strings.Join(stmts, ";\n"), nil
}
