package model

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

// Versioned は永続化可能なモデルが実装するインターフェース
// フォーマット名とバージョンはファイル先頭のエンベロープに記録され、読み込み時に検証される
type Versioned interface {
	ModelFormat() (name string, version int)
}

// envelope はモデルファイルの外側の構造
type envelope struct {
	Format  string             `msgpack:"format"`
	Version int                `msgpack:"version"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// SaveModel はモデルをmsgpack形式でファイルに保存する
//
// 一時ファイルに書き込んでからリネームするため、途中で失敗しても
// 既存のファイルが壊れることはない
//
// 使用例:
//
//	clf := gbdt.NewClassifier(params)
//	// ... モデルの学習 ...
//	err := model.SaveModel(clf, "gbdt_fold1.msgpack")
func SaveModel(m Versioned, filename string) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".tmp*")
	if err != nil {
		return errors.NewModelError("SaveModel", "create file", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := SaveModelToWriter(m, w); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return errors.NewModelError("SaveModel", "write file", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewModelError("SaveModel", "close file", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return errors.NewModelError("SaveModel", "rename file", err)
	}
	return nil
}

// LoadModel はファイルからモデルを読み込む
//
// 使用例:
//
//	var clf gbdt.Classifier
//	err := model.LoadModel(&clf, "gbdt_fold1.msgpack")
func LoadModel(m Versioned, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.NewModelError("LoadModel", "open file", err)
	}
	defer file.Close()

	if err := LoadModelFromReader(m, bufio.NewReader(file)); err != nil {
		return errors.Wrapf(err, "load %s", filename)
	}
	return nil
}

// SaveModelToWriter はモデルをio.Writerに保存する
func SaveModelToWriter(m Versioned, w io.Writer) error {
	payload, err := msgpack.Marshal(m)
	if err != nil {
		return errors.NewModelError("SaveModel", "encode model", err)
	}
	name, version := m.ModelFormat()
	env := envelope{Format: name, Version: version, Payload: payload}
	if err := msgpack.NewEncoder(w).Encode(&env); err != nil {
		return errors.NewModelError("SaveModel", "encode envelope", err)
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込む
// フォーマット名が異なる場合、またはバージョンが新しすぎる場合はエラーを返す
func LoadModelFromReader(m Versioned, r io.Reader) error {
	var env envelope
	if err := msgpack.NewDecoder(r).Decode(&env); err != nil {
		return errors.NewModelError("LoadModel", "decode envelope", err)
	}

	name, version := m.ModelFormat()
	if env.Format != name {
		return errors.NewModelError("LoadModel", "format mismatch",
			errors.Newf("file holds %q, expected %q", env.Format, name))
	}
	if env.Version > version {
		return errors.NewModelError("LoadModel", "unsupported version",
			errors.Newf("file version %d is newer than supported version %d", env.Version, version))
	}
	if err := msgpack.Unmarshal(env.Payload, m); err != nil {
		return errors.NewModelError("LoadModel", "decode model", err)
	}
	return nil
}
