// Package parser decodes uploaded dataset payloads into ordered row records.
//
// Two formats are supported: CSV with a header line and JSON arrays of
// objects. Decoding is single-pass and bounded by configurable row and byte
// caps; every decode failure is a non-retryable invalid-payload error.
package parser

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cuongbtq/dataset-processor/internal/domain"
)

// Content types accepted for dataset payloads
const (
	ContentTypeCSV  = "text/csv"
	ContentTypeJSON = "application/json"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Limits bounds how much of a payload the parser will materialize.
// Zero values disable the corresponding cap.
type Limits struct {
	MaxRows  int64
	MaxBytes int64
}

// Parse decodes a payload into rows according to its declared content type.
func Parse(contentType string, payload []byte, limits Limits) ([]Row, error) {
	if limits.MaxBytes > 0 && int64(len(payload)) > limits.MaxBytes {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", domain.ErrInvalidPayload, limits.MaxBytes)
	}

	payload = bytes.TrimPrefix(payload, utf8BOM)
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("%w: dataset is not valid UTF-8", domain.ErrInvalidPayload)
	}

	switch contentType {
	case ContentTypeCSV:
		return parseCSV(payload, limits.MaxRows)
	case ContentTypeJSON:
		return parseJSON(payload, limits.MaxRows)
	default:
		return nil, fmt.Errorf("%w: unsupported content type %q", domain.ErrInvalidPayload, contentType)
	}
}

// parseCSV reads the first non-empty line as the header and keys every
// subsequent record by it. Short records yield empty trailing fields; extra
// columns are preserved under positional names.
func parseCSV(payload []byte, maxRows int64) ([]Row, error) {
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: CSV file must include a header row", domain.ErrInvalidPayload)
		}
		return nil, fmt.Errorf("%w: malformed CSV header: %v", domain.ErrInvalidPayload, err)
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: malformed CSV record: %v", domain.ErrInvalidPayload, err)
		}

		fields := make([]Field, 0, len(header))
		for i, name := range header {
			value := ""
			if i < len(record) {
				value = record[i]
			}
			fields = append(fields, Field{Name: name, Value: Value{Kind: KindString, Str: value}})
		}
		for i := len(header); i < len(record); i++ {
			fields = append(fields, Field{
				Name:  "column_" + strconv.Itoa(i),
				Value: Value{Kind: KindString, Str: record[i]},
			})
		}

		rows = append(rows, Row{Fields: fields})
		if maxRows > 0 && int64(len(rows)) > maxRows {
			return nil, fmt.Errorf("%w: dataset exceeds %d rows", domain.ErrInvalidPayload, maxRows)
		}
	}

	return rows, nil
}

// parseJSON requires a top-level array whose elements are all objects.
func parseJSON(payload []byte, maxRows int64) ([]Row, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSON payload: %v", domain.ErrInvalidPayload, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("%w: JSON dataset must be an array of objects", domain.ErrInvalidPayload)
	}

	var rows []Row
	for dec.More() {
		row, err := parseJSONObject(dec, len(rows))
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
		if maxRows > 0 && int64(len(rows)) > maxRows {
			return nil, fmt.Errorf("%w: dataset exceeds %d rows", domain.ErrInvalidPayload, maxRows)
		}
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON payload: %v", domain.ErrInvalidPayload, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON array", domain.ErrInvalidPayload)
	}

	return rows, nil
}

// parseJSONObject decodes one array element, preserving key order and
// collapsing nested containers to raw text.
func parseJSONObject(dec *json.Decoder, index int) (Row, error) {
	tok, err := dec.Token()
	if err != nil {
		return Row{}, fmt.Errorf("%w: invalid JSON payload: %v", domain.ErrInvalidPayload, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return Row{}, fmt.Errorf("%w: JSON item at index %d is not an object", domain.ErrInvalidPayload, index)
	}

	var fields []Field
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return Row{}, fmt.Errorf("%w: invalid JSON payload: %v", domain.ErrInvalidPayload, err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return Row{}, fmt.Errorf("%w: invalid JSON object key at index %d", domain.ErrInvalidPayload, index)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return Row{}, fmt.Errorf("%w: invalid JSON payload: %v", domain.ErrInvalidPayload, err)
		}

		value, err := jsonValue(raw)
		if err != nil {
			return Row{}, fmt.Errorf("%w: invalid JSON value for field %q: %v", domain.ErrInvalidPayload, key, err)
		}
		fields = append(fields, Field{Name: key, Value: value})
	}

	// consume the closing brace
	if _, err := dec.Token(); err != nil {
		return Row{}, fmt.Errorf("%w: invalid JSON payload: %v", domain.ErrInvalidPayload, err)
	}

	return Row{Fields: fields}, nil
}

func jsonValue(raw json.RawMessage) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Value{}, errors.New("empty value")
	}

	switch trimmed[0] {
	case '{', '[':
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindOther, Str: compact.String()}, nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindString, Str: s}, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindBool, Bool: b}, nil
	case 'n':
		if string(trimmed) != "null" {
			return Value{}, errors.New("invalid literal")
		}
		return Value{Kind: KindNull}, nil
	default:
		f, err := strconv.ParseFloat(string(trimmed), 64)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindNumber, Num: f, Str: strings.TrimSpace(string(trimmed))}, nil
	}
}
