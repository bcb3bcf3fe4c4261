package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// FileStore reads and writes bundles as serialized protobuf Structs, one
// file per ticker: <dir>/<TICKER>.bundle.pb.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(ticker string) string {
	return filepath.Join(s.dir, strings.ToUpper(ticker)+".bundle.pb")
}

// Load reads the bundle for ticker.
func (s *FileStore) Load(ticker string) (*Bundle, error) {
	raw, err := os.ReadFile(s.path(ticker))
	if err != nil {
		return nil, fmt.Errorf("reading model for %s: %w", ticker, err)
	}
	var st structpb.Struct
	if err := proto.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decoding model for %s: %w", ticker, err)
	}
	b, err := fromStruct(st.AsMap())
	if err != nil {
		return nil, fmt.Errorf("model for %s: %w", ticker, err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("model for %s: %w", ticker, err)
	}
	return b, nil
}

// Save writes b for ticker, replacing any existing file.
func (s *FileStore) Save(ticker string, b *Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	st, err := structpb.NewStruct(toStruct(b))
	if err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}
	raw, err := proto.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating model dir: %w", err)
	}
	tmp := s.path(ticker) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing model: %w", err)
	}
	return os.Rename(tmp, s.path(ticker))
}

func toStruct(b *Bundle) map[string]any {
	coef := make([]any, len(b.Coef))
	for i, row := range b.Coef {
		coef[i] = floats(row)
	}
	return map[string]any{
		"features": strs(b.Features),
		"poly": map[string]any{
			"degree":       float64(b.Degree),
			"include_bias": b.IncludeBias,
		},
		"scaler": map[string]any{
			"mean":  floats(b.Mean),
			"scale": floats(b.Scale),
		},
		"classifier": map[string]any{
			"classes":   strs(b.Classes),
			"coef":      coef,
			"intercept": floats(b.Intercept),
		},
	}
}

func fromStruct(m map[string]any) (*Bundle, error) {
	var errs []error
	poly := object(m["poly"])
	scaler := object(m["scaler"])
	clf := object(m["classifier"])

	b := &Bundle{
		Features:    toStrings(m["features"], &errs),
		IncludeBias: poly["include_bias"] == true,
		Mean:        toFloats(scaler["mean"], &errs),
		Scale:       toFloats(scaler["scale"], &errs),
		Classes:     toStrings(clf["classes"], &errs),
		Intercept:   toFloats(clf["intercept"], &errs),
	}
	if d, ok := poly["degree"].(float64); ok {
		b.Degree = int(d)
	} else {
		errs = append(errs, errors.New("poly.degree missing"))
	}
	rows, _ := clf["coef"].([]any)
	for _, r := range rows {
		b.Coef = append(b.Coef, toFloats(r, &errs))
	}
	return b, errors.Join(errs...)
}

func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func floats(v []float64) []any {
	out := make([]any, len(v))
	for i, f := range v {
		out[i] = f
	}
	return out
}

func strs(v []string) []any {
	out := make([]any, len(v))
	for i, s := range v {
		out[i] = s
	}
	return out
}

func toFloats(v any, errs *[]error) []float64 {
	list, ok := v.([]any)
	if !ok {
		*errs = append(*errs, fmt.Errorf("expected number list, got %T", v))
		return nil
	}
	out := make([]float64, len(list))
	for i, x := range list {
		f, ok := x.(float64)
		if !ok {
			*errs = append(*errs, fmt.Errorf("expected number, got %T", x))
		}
		out[i] = f
	}
	return out
}

func toStrings(v any, errs *[]error) []string {
	list, ok := v.([]any)
	if !ok {
		*errs = append(*errs, fmt.Errorf("expected string list, got %T", v))
		return nil
	}
	out := make([]string, len(list))
	for i, x := range list {
		s, ok := x.(string)
		if !ok {
			*errs = append(*errs, fmt.Errorf("expected string, got %T", x))
		}
		out[i] = s
	}
	return out
}
