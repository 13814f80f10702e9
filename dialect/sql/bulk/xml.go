package bulk

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/syssam/rowset/dialect/sql"
	"github.com/syssam/rowset/schema"
)

// XML is the SQL Server format:
//
//	<root><row><col_0>1</col_0><col_2>Bikes</col_2></row></root>
//
// NULL values are omitted elements. Whitespace-only strings carry
// xml:space="preserve", which keeps the server from dropping them.
var XML Format = xmlFormat{}

type xmlFormat struct{}

// Textual forms of temporal values.
const (
	xmlDateTime       = "2006-01-02T15:04:05.999999"
	xmlDateTimeOffset = "2006-01-02T15:04:05.999999Z07:00"
)

func (xmlFormat) Kind() sql.ParamKind { return sql.ParamXML }

func (xmlFormat) Encode(l *Layout, rows [][]any) (string, error) {
	var b strings.Builder
	b.WriteString("<root>")
	for i, row := range rows {
		if err := checkWidth(l, i, row); err != nil {
			return "", err
		}
		b.WriteString("<row>")
		for j, v := range row {
			if null(v) {
				continue
			}
			c := l.columns[j]
			s, err := text(c, v)
			if err != nil {
				return "", fmt.Errorf("bulk: row %d: %w", i, err)
			}
			name := Name(j)
			b.WriteString("<" + name)
			if s != "" && strings.TrimSpace(s) == "" {
				b.WriteString(` xml:space="preserve"`)
			}
			b.WriteString(">")
			if err := xml.EscapeText(&b, []byte(s)); err != nil {
				return "", err
			}
			b.WriteString("</" + name + ">")
		}
		b.WriteString("</row>")
	}
	b.WriteString("</root>")
	return b.String(), nil
}

// text returns the textual form of v, a value of column c.
func text(c *schema.Column, v any) (string, error) {
	v, err := schema.Convert(c.Type(), v)
	if err != nil {
		return "", fmt.Errorf("column %s: %w", c.Name(), err)
	}
	switch v := v.(type) {
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case float32:
		if err := checkFloat(c, float64(v)); err != nil {
			return "", err
		}
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		if err := checkFloat(c, v); err != nil {
			return "", err
		}
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case decimal.Decimal:
		return v.String(), nil
	case uuid.UUID:
		return v.String(), nil
	case time.Time:
		if c.Type() == schema.TypeDateTimeOffset {
			return v.Format(xmlDateTimeOffset), nil
		}
		return v.Format(xmlDateTime), nil
	case []byte:
		return base64.StdEncoding.EncodeToString(v), nil
	case string:
		if err := checkXMLText(v); err != nil {
			return "", fmt.Errorf("column %s: %w", c.Name(), err)
		}
		return v, nil
	}
	return fmt.Sprint(v), nil
}

// checkXMLText rejects strings that XML 1.0 cannot carry, even escaped.
func checkXMLText(s string) error {
	for i, r := range s {
		switch {
		case r == utf8.RuneError:
			if _, n := utf8.DecodeRuneInString(s[i:]); n <= 1 {
				return fmt.Errorf("invalid UTF-8 at byte %d", i)
			}
		case r == '\t' || r == '\n' || r == '\r':
		case r < 0x20, r >= 0xD800 && r <= 0xDFFF, r == 0xFFFE || r == 0xFFFF:
			return fmt.Errorf("character %U at byte %d is not allowed in XML", r, i)
		}
	}
	return nil
}

func (xmlFormat) Decode(l *Layout, doc string) ([][]any, error) {
	var (
		rows  [][]any
		row   []any
		col   = -1
		chars bytes.Buffer
		d     = xml.NewDecoder(strings.NewReader(doc))
	)
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bulk: decode xml: %w", err)
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			switch name := tok.Name.Local; {
			case name == "root":
			case name == "row":
				row = make([]any, l.Len())
			case strings.HasPrefix(name, "col_"):
				i, err := strconv.Atoi(strings.TrimPrefix(name, "col_"))
				if err != nil || i < 0 || i >= l.Len() || row == nil {
					return nil, fmt.Errorf("bulk: unexpected element %q", name)
				}
				col = i
				chars.Reset()
			default:
				return nil, fmt.Errorf("bulk: unexpected element %q", name)
			}
		case xml.CharData:
			if col >= 0 {
				chars.Write(tok)
			}
		case xml.EndElement:
			switch {
			case col >= 0:
				v, err := parse(l.columns[col], chars.String())
				if err != nil {
					return nil, fmt.Errorf("bulk: row %d: %w", len(rows), err)
				}
				row[col] = v
				col = -1
			case tok.Name.Local == "row":
				rows = append(rows, row)
				row = nil
			}
		}
	}
	return rows, nil
}

// parse converts the textual form s back into a value of column c.
func parse(c *schema.Column, s string) (any, error) {
	var (
		v   any
		err error
	)
	switch c.Type() {
	case schema.TypeBinary:
		v, err = base64.StdEncoding.DecodeString(s)
	case schema.TypeString:
		v = s
	default:
		v, err = schema.Convert(c.Type(), s)
	}
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", c.Name(), err)
	}
	return v, nil
}
