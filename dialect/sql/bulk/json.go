package bulk

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/syssam/rowset/dialect/sql"
	"github.com/syssam/rowset/schema"
)

// JSON is the MySQL format: an array of rows, each an array of values by
// ordinal.
//
//	[[1,null,"Bikes"],[2,1,"Road"]]
//
// NULL is null. Decimals, guids, times and base64 binaries are strings, so
// JSON_TABLE converts them without loss.
var JSON Format = jsonFormat{}

type jsonFormat struct{}

// jsonDateTime is the textual form MySQL reads into DATETIME(6).
const jsonDateTime = "2006-01-02 15:04:05.999999"

func (jsonFormat) Kind() sql.ParamKind { return sql.ParamJSON }

func (jsonFormat) Encode(l *Layout, rows [][]any) (string, error) {
	out := make([][]any, len(rows))
	for i, row := range rows {
		if err := checkWidth(l, i, row); err != nil {
			return "", err
		}
		vs := make([]any, len(row))
		for j, v := range row {
			if null(v) {
				continue
			}
			jv, err := jsonValue(l.columns[j], v)
			if err != nil {
				return "", fmt.Errorf("bulk: row %d: %w", i, err)
			}
			vs[j] = jv
		}
		out[i] = vs
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return "", fmt.Errorf("bulk: encode json: %w", err)
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

func jsonValue(c *schema.Column, v any) (any, error) {
	v, err := schema.Convert(c.Type(), v)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", c.Name(), err)
	}
	switch v := v.(type) {
	case float32:
		if err := checkFloat(c, float64(v)); err != nil {
			return nil, err
		}
		return json.Number(strconv.FormatFloat(float64(v), 'g', -1, 32)), nil
	case float64:
		if err := checkFloat(c, v); err != nil {
			return nil, err
		}
		return json.Number(strconv.FormatFloat(v, 'g', -1, 64)), nil
	case decimal.Decimal:
		return v.String(), nil
	case uuid.UUID:
		return v.String(), nil
	case time.Time:
		if c.Type() == schema.TypeDateTimeOffset {
			return v.Format(time.RFC3339Nano), nil
		}
		return v.Format(jsonDateTime), nil
	case []byte:
		return base64.StdEncoding.EncodeToString(v), nil
	}
	return v, nil
}

func (jsonFormat) Decode(l *Layout, doc string) ([][]any, error) {
	var raw [][]any
	d := json.NewDecoder(bytes.NewReader([]byte(doc)))
	d.UseNumber()
	if err := d.Decode(&raw); err != nil {
		return nil, fmt.Errorf("bulk: decode json: %w", err)
	}
	rows := make([][]any, len(raw))
	for i, vs := range raw {
		if err := checkWidth(l, i, vs); err != nil {
			return nil, err
		}
		row := make([]any, len(vs))
		for j, v := range vs {
			var err error
			switch v := v.(type) {
			case nil:
			case json.Number:
				row[j], err = parse(l.columns[j], v.String())
			case string:
				row[j], err = parse(l.columns[j], v)
			default:
				row[j], err = schema.Convert(l.columns[j].Type(), v)
			}
			if err != nil {
				return nil, fmt.Errorf("bulk: row %d: %w", i, err)
			}
		}
		rows[i] = row
	}
	return rows, nil
}
