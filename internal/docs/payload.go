package docs

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// Payload is the wire envelope of a search index.
type Payload struct {
	Docs []Record `json:"docs"`
}

// rawRecord keeps pointer fields so that absent and null keys can be told
// apart from empty strings.
type rawRecord struct {
	Location *string `json:"location"`
	Page     *string `json:"page"`
	Title    *string `json:"title"`
	Text     *string `json:"text"`
	Category *string `json:"category"`
}

type rawPayload struct {
	Docs *[]rawRecord `json:"docs"`
}

// Decode reads a search-index payload from r. The payload may be plain JSON
// or the JavaScript assignment documentation generators ship
// (`var documenterSearchIndex = {...}`), optionally gzip, zstd or lz4
// compressed. Structural problems are reported as
// *errors.MalformedRecordError.
func Decode(r io.Reader) ([]Record, error) {
	rc, err := decompress(r)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes an uncompressed payload.
func DecodeBytes(data []byte) ([]Record, error) {
	body, err := unwrapScript(data)
	if err != nil {
		return nil, err
	}

	var raw rawPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &apperrors.MalformedRecordError{
				Position: -1,
				Field:    typeErr.Field,
				Reason:   fmt.Sprintf("expected %s for", typeErr.Type),
			}
		}
		return nil, &apperrors.MalformedRecordError{
			Position: -1,
			Reason:   fmt.Sprintf("payload is not valid JSON: %v", err),
		}
	}
	if raw.Docs == nil {
		return nil, &apperrors.MalformedRecordError{Position: -1, Field: "docs", Reason: "payload has no"}
	}

	records := make([]Record, 0, len(*raw.Docs))
	for i, rr := range *raw.Docs {
		rec, err := rr.toRecord(i)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Encode writes records as a canonical JSON payload.
func Encode(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(Payload{Docs: records}); err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	return nil
}

func (rr rawRecord) toRecord(position int) (Record, error) {
	required := []struct {
		name  string
		value *string
	}{
		{"location", rr.Location},
		{"page", rr.Page},
		{"title", rr.Title},
		{"category", rr.Category},
	}
	for _, f := range required {
		if f.value == nil {
			return Record{}, &apperrors.MalformedRecordError{Position: position, Field: f.name}
		}
	}
	rec := Record{
		Location: *rr.Location,
		Page:     *rr.Page,
		Title:    *rr.Title,
		Category: *rr.Category,
	}
	if rr.Text != nil {
		rec.Text = *rr.Text
	}
	return rec, nil
}

// unwrapScript strips a leading `var name =` (or `name =`) assignment and a
// trailing semicolon, leaving the JSON object.
func unwrapScript(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(data) == 0 {
		return nil, &apperrors.MalformedRecordError{Position: -1, Reason: "payload is empty"}
	}
	if data[0] == '{' {
		return data, nil
	}
	eq := bytes.IndexByte(data, '=')
	brace := bytes.IndexByte(data, '{')
	if eq < 0 || brace < 0 || brace < eq {
		return nil, &apperrors.MalformedRecordError{
			Position: -1,
			Reason:   "payload is neither a JSON object nor a script assignment",
		}
	}
	body := bytes.TrimSpace(data[eq+1:])
	body = bytes.TrimSuffix(body, []byte(";"))
	return bytes.TrimSpace(body), nil
}

func decompress(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("peeking payload header: %w", err)
	}
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening gzip payload: %w", err)
		}
		return zr, nil
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening zstd payload: %w", err)
		}
		return zr.IOReadCloser(), nil
	case bytes.HasPrefix(head, lz4Magic):
		return io.NopCloser(lz4.NewReader(br)), nil
	default:
		return io.NopCloser(br), nil
	}
}
