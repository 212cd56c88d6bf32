package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/YuminosukeSato/fraudkit/core/frame"
	"github.com/YuminosukeSato/fraudkit/core/model"
	"github.com/YuminosukeSato/fraudkit/metrics"
	"github.com/YuminosukeSato/fraudkit/pkg/errors"
	"github.com/YuminosukeSato/fraudkit/sklearn/gbdt"
)

const (
	modelPrefix = "gbdt_fold"
	modelExt    = ".msgpack"

	// LabelColumn is the preferred label column; without it the last column is the label.
	LabelColumn = "fraud"
)

// ErrNoModels is returned by Infer when model_dir holds no fold models.
var ErrNoModels = errors.New("no models found in model_dir; run training first")

// ModelFileName returns the file name of the 1-based fold model.
func ModelFileName(fold int) string {
	return fmt.Sprintf("%s%d%s", modelPrefix, fold, modelExt)
}

// modelFold parses the fold number out of a model file name.
func modelFold(name string) (int, bool) {
	if !strings.HasPrefix(name, modelPrefix) || !strings.HasSuffix(name, modelExt) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, modelPrefix), modelExt))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// ListModels returns the fold model files in dir ordered by fold number.
// A missing directory yields no models.
func ListModels(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", dir)
	}

	type entry struct {
		fold int
		path string
	}
	var found []entry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if fold, ok := modelFold(e.Name()); ok {
			found = append(found, entry{fold, filepath.Join(dir, e.Name())})
		}
	}
	sort.Slice(found, func(a, b int) bool { return found[a].fold < found[b].fold })

	paths := make([]string, len(found))
	for i, e := range found {
		paths[i] = e.path
	}
	return paths, nil
}

// saveModels writes one file per fold model and removes models of folds
// beyond len(models) left by an earlier run with more folds.
func saveModels(dir string, models []*gbdt.Classifier) (saved, removed []string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, errors.Wrapf(err, "create model dir %s", dir)
	}
	for i, m := range models {
		path := filepath.Join(dir, ModelFileName(i+1))
		if err := model.SaveModel(m, path); err != nil {
			return nil, nil, errors.Wrapf(err, "save fold %d", i+1)
		}
		saved = append(saved, path)
	}

	existing, err := ListModels(dir)
	if err != nil {
		return nil, nil, err
	}
	for _, path := range existing {
		fold, _ := modelFold(filepath.Base(path))
		if fold <= len(models) {
			continue
		}
		if err := os.Remove(path); err != nil {
			return nil, nil, errors.Wrapf(err, "remove stale model %s", path)
		}
		removed = append(removed, path)
	}
	return saved, removed, nil
}

func loadModels(paths []string) ([]*gbdt.Classifier, error) {
	models := make([]*gbdt.Classifier, len(paths))
	for i, path := range paths {
		var clf gbdt.Classifier
		if err := model.LoadModel(&clf, path); err != nil {
			return nil, err
		}
		models[i] = &clf
	}
	return models, nil
}

func ensureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	return nil
}

// writeOOF writes the out-of-fold probabilities next to the labels.
func writeOOF(path string, oof, y []float64) error {
	if err := ensureParent(path); err != nil {
		return err
	}
	f, err := frame.New(frame.NewNumeric("oof_proba", oof), frame.NewNumeric("y", y))
	if err != nil {
		return err
	}
	return frame.WriteCSVFile(path, f)
}

// formatFloat renders floats the shortest way that round-trips.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// thresholdTag renders thr as in the submission file name: the decimal
// representation with its dot removed, so 0.5 becomes "05".
func thresholdTag(thr float64) string {
	s := strconv.FormatFloat(thr, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return strings.ReplaceAll(s, ".", "")
}

// submissionBase returns the submission file name without extension.
func submissionBase(thr float64, now time.Time) string {
	return fmt.Sprintf("submission_gbdt_thr%s_%s", thresholdTag(thr), now.Format("20060102_150405"))
}

// createExclusive creates dir/base.csv, or dir/base_<n>.csv for the first
// free n, without ever truncating an existing file.
func createExclusive(dir, base string) (*os.File, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", errors.Wrapf(err, "create submissions dir %s", dir)
	}
	for n := 0; n < 1000; n++ {
		name := base + ".csv"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.csv", base, n)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", errors.Wrapf(err, "create %s", path)
		}
	}
	return nil, "", errors.Newf("create submission: too many files named %s_*", base)
}

// writeSubmission writes the 0/1 predictions to w. When sample holds the raw
// records of a sample submission with a fraud column, its rows and columns
// are copied verbatim with the fraud cells replaced; otherwise a single
// fraud column is written.
func writeSubmission(w io.Writer, pred []int, sample [][]string) error {
	cw := csv.NewWriter(w)

	col := -1
	if len(sample) > 0 {
		for j, name := range sample[0] {
			if name == LabelColumn {
				col = j
				break
			}
		}
	}

	if col < 0 {
		if err := cw.Write([]string{LabelColumn}); err != nil {
			return errors.Wrap(err, "write submission header")
		}
		for _, p := range pred {
			if err := cw.Write([]string{strconv.Itoa(p)}); err != nil {
				return errors.Wrap(err, "write submission")
			}
		}
	} else {
		if got := len(sample) - 1; got != len(pred) {
			return errors.NewDimensionError("writeSubmission", len(pred), got, 0)
		}
		if err := cw.Write(sample[0]); err != nil {
			return errors.Wrap(err, "write submission header")
		}
		for i, rec := range sample[1:] {
			out := append([]string(nil), rec...)
			out[col] = strconv.Itoa(pred[i])
			if err := cw.Write(out); err != nil {
				return errors.Wrap(err, "write submission")
			}
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush submission")
}

// readSample reads the raw records of the sample submission. A missing or
// unconfigured file yields nil.
func readSample(path string) ([][]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open sample %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "read sample %s", path)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return records, nil
}

// writeThresholdResults writes the threshold grid. The target_pos cell is
// empty for strategies without a quota.
func writeThresholdResults(path string, points []metrics.GridPoint) error {
	if err := ensureParent(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"target_pos", "thr", "macro_f1", "n_pos"}); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	for _, p := range points {
		target := ""
		if p.TargetPos > 0 {
			target = strconv.Itoa(p.TargetPos)
		}
		if err := cw.Write([]string{target, formatFloat(p.Threshold), formatFloat(p.MacroF1), strconv.Itoa(p.NPos)}); err != nil {
			f.Close()
			return errors.Wrapf(err, "write %s", path)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}
