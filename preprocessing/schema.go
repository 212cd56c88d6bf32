package preprocessing

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/fraudkit/core/frame"
	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

// SchemaFileName はモデルディレクトリ内のSchemaファイル名
const SchemaFileName = "feature_schema.yaml"

// ColumnSpec は特徴量列一つの名前と型
type ColumnSpec struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // "numeric" または "categorical"
}

// Schema は学習時に観測した特徴量フレームの列構成
//
// FitTransformが返し、推論時にTransformWithSchemaへ渡すことで
// 学習時と推論時の列の型を揃える。一度作成したら変更しない。
type Schema struct {
	RunID     string       `yaml:"run_id"`
	CreatedAt time.Time    `yaml:"created_at"`
	Columns   []ColumnSpec `yaml:"columns"`
}

// IsZero はSchemaが空かどうかを返す
func (s Schema) IsZero() bool {
	return len(s.Columns) == 0
}

// Names は列名を順に返す
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnsOfKind は指定した型の列名を返す
func (s Schema) ColumnsOfKind(kind frame.Kind) []string {
	var names []string
	for _, c := range s.Columns {
		if c.Kind == kind.String() {
			names = append(names, c.Name)
		}
	}
	return names
}

// Validate は列名の重複と未知の型を検出する
func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return errors.NewValidationError("columns.name", "must not be empty", c.Name)
		}
		if seen[c.Name] {
			return errors.NewValidationError("columns.name", "duplicate column", c.Name)
		}
		seen[c.Name] = true
		if _, err := frame.ParseKind(c.Kind); err != nil {
			return errors.Wrapf(err, "column %q", c.Name)
		}
	}
	return nil
}

// SaveSchema はSchemaをYAMLで保存する
func SaveSchema(path string, s Schema) error {
	data, err := yaml.Marshal(&s)
	if err != nil {
		return errors.Wrap(err, "encode schema")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write schema %s", path)
	}
	return nil
}

// LoadSchema はYAMLからSchemaを読み込み、検証する
func LoadSchema(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, errors.Wrapf(err, "read schema %s", path)
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, errors.Wrapf(err, "decode schema %s", path)
	}
	if err := s.Validate(); err != nil {
		return Schema{}, errors.Wrapf(err, "invalid schema %s", path)
	}
	return s, nil
}
