package gbdt

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

// Params contains all training hyperparameters.
type Params struct {
	// Basic parameters
	Iterations    int     `msgpack:"iterations"`
	LearningRate  float64 `msgpack:"learning_rate"`
	MaxDepth      int     `msgpack:"max_depth"`
	MinDataInLeaf int     `msgpack:"min_data_in_leaf"`

	// Regularization
	Lambda              float64 `msgpack:"lambda_l2"`
	Alpha               float64 `msgpack:"lambda_l1"`
	MinGainToSplit      float64 `msgpack:"min_gain_to_split"`
	MinSumHessianInLeaf float64 `msgpack:"min_sum_hessian_in_leaf"`

	// Sampling
	Subsample       float64 `msgpack:"subsample"`
	ColsampleByTree float64 `msgpack:"colsample_bytree"`

	// Histogram
	MaxBin int `msgpack:"max_bin"`

	// Categorical features
	MaxCatToOnehot int     `msgpack:"max_cat_to_onehot"`
	CatSmooth      float64 `msgpack:"cat_smooth"`

	// Objective
	ScalePosWeight float64 `msgpack:"scale_pos_weight"`

	// Validation set handling
	EarlyStoppingRounds int  `msgpack:"early_stopping_rounds"`
	UseBestModel        bool `msgpack:"use_best_model"`

	// Other
	Seed      uint64 `msgpack:"seed"`
	NumJobs   int    `msgpack:"n_jobs"`
	Verbosity int    `msgpack:"verbosity"`
}

// DefaultParams returns the defaults used for keys absent from a parameter map.
func DefaultParams() Params {
	return Params{
		Iterations:          300,
		LearningRate:        0.05,
		MaxDepth:            6,
		MinDataInLeaf:       1,
		Lambda:              3.0,
		MinSumHessianInLeaf: 1e-3,
		Subsample:           1.0,
		ColsampleByTree:     1.0,
		MaxBin:              254,
		MaxCatToOnehot:      4,
		CatSmooth:           10.0,
		ScalePosWeight:      1.0,
		UseBestModel:        true,
		NumJobs:             1,
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	checks := []struct {
		name string
		ok   bool
		why  string
		val  interface{}
	}{
		{"iterations", p.Iterations >= 1, "must be >= 1", p.Iterations},
		{"learning_rate", p.LearningRate > 0 && p.LearningRate <= 1, "must be in (0, 1]", p.LearningRate},
		{"max_depth", p.MaxDepth >= 1 && p.MaxDepth <= 16, "must be in [1, 16]", p.MaxDepth},
		{"min_data_in_leaf", p.MinDataInLeaf >= 1, "must be >= 1", p.MinDataInLeaf},
		{"l2_leaf_reg", p.Lambda >= 0, "must be >= 0", p.Lambda},
		{"reg_alpha", p.Alpha >= 0, "must be >= 0", p.Alpha},
		{"min_gain_to_split", p.MinGainToSplit >= 0, "must be >= 0", p.MinGainToSplit},
		{"min_sum_hessian_in_leaf", p.MinSumHessianInLeaf >= 0, "must be >= 0", p.MinSumHessianInLeaf},
		{"subsample", p.Subsample > 0 && p.Subsample <= 1, "must be in (0, 1]", p.Subsample},
		{"colsample_bytree", p.ColsampleByTree > 0 && p.ColsampleByTree <= 1, "must be in (0, 1]", p.ColsampleByTree},
		{"max_bin", p.MaxBin >= 2 && p.MaxBin <= 65535, "must be in [2, 65535]", p.MaxBin},
		{"max_cat_to_onehot", p.MaxCatToOnehot >= 1, "must be >= 1", p.MaxCatToOnehot},
		{"cat_smooth", p.CatSmooth >= 0, "must be >= 0", p.CatSmooth},
		{"scale_pos_weight", p.ScalePosWeight > 0, "must be > 0", p.ScalePosWeight},
		{"early_stopping_rounds", p.EarlyStoppingRounds >= 0, "must be >= 0", p.EarlyStoppingRounds},
	}
	for _, c := range checks {
		if !c.ok {
			return errors.NewValidationError(c.name, c.why, c.val)
		}
	}
	return nil
}

// paramKind is the expected value type of a parameter.
type paramKind int

const (
	kindInt paramKind = iota
	kindFloat
	kindBool
	kindString
)

type paramSpec struct {
	kind  paramKind
	apply func(p *Params, v interface{}) error
}

// canonical name -> spec
var paramSpecs = map[string]paramSpec{
	"iterations":              {kindInt, func(p *Params, v interface{}) error { p.Iterations = v.(int); return nil }},
	"learning_rate":           {kindFloat, func(p *Params, v interface{}) error { p.LearningRate = v.(float64); return nil }},
	"depth":                   {kindInt, func(p *Params, v interface{}) error { p.MaxDepth = v.(int); return nil }},
	"min_data_in_leaf":        {kindInt, func(p *Params, v interface{}) error { p.MinDataInLeaf = v.(int); return nil }},
	"l2_leaf_reg":             {kindFloat, func(p *Params, v interface{}) error { p.Lambda = v.(float64); return nil }},
	"reg_alpha":               {kindFloat, func(p *Params, v interface{}) error { p.Alpha = v.(float64); return nil }},
	"min_gain_to_split":       {kindFloat, func(p *Params, v interface{}) error { p.MinGainToSplit = v.(float64); return nil }},
	"min_sum_hessian_in_leaf": {kindFloat, func(p *Params, v interface{}) error { p.MinSumHessianInLeaf = v.(float64); return nil }},
	"subsample":               {kindFloat, func(p *Params, v interface{}) error { p.Subsample = v.(float64); return nil }},
	"colsample_bytree":        {kindFloat, func(p *Params, v interface{}) error { p.ColsampleByTree = v.(float64); return nil }},
	"max_bin":                 {kindInt, func(p *Params, v interface{}) error { p.MaxBin = v.(int); return nil }},
	"max_cat_to_onehot":       {kindInt, func(p *Params, v interface{}) error { p.MaxCatToOnehot = v.(int); return nil }},
	"cat_smooth":              {kindFloat, func(p *Params, v interface{}) error { p.CatSmooth = v.(float64); return nil }},
	"scale_pos_weight":        {kindFloat, func(p *Params, v interface{}) error { p.ScalePosWeight = v.(float64); return nil }},
	"early_stopping_rounds":   {kindInt, func(p *Params, v interface{}) error { p.EarlyStoppingRounds = v.(int); return nil }},
	"use_best_model":          {kindBool, func(p *Params, v interface{}) error { p.UseBestModel = v.(bool); return nil }},
	"random_seed": {kindInt, func(p *Params, v interface{}) error {
		if v.(int) < 0 {
			return errors.NewValidationError("random_seed", "must be >= 0", v)
		}
		p.Seed = uint64(v.(int))
		return nil
	}},
	"thread_count": {kindInt, func(p *Params, v interface{}) error { p.NumJobs = v.(int); return nil }},
	"verbose": {kindInt, func(p *Params, v interface{}) error { p.Verbosity = v.(int); return nil }},
	"loss_function": {kindString, func(p *Params, v interface{}) error {
		switch strings.ToLower(v.(string)) {
		case "logloss", "binary", "binary_logloss", "binary:logistic", "cross_entropy", "crossentropy":
			return nil
		default:
			return errors.NewValidationError("loss_function", "only binary log-loss is supported", v)
		}
	}},
}

// paramAliases maps the CatBoost, LightGBM and XGBoost spellings of a
// parameter to its canonical name.
var paramAliases = map[string]string{
	"n_estimators": "iterations", "num_iterations": "iterations", "num_boost_round": "iterations",
	"num_trees": "iterations", "num_rounds": "iterations",
	"eta": "learning_rate", "shrinkage_rate": "learning_rate",
	"max_depth": "depth",
	"min_child_samples": "min_data_in_leaf", "min_data": "min_data_in_leaf",
	"reg_lambda": "l2_leaf_reg", "lambda_l2": "l2_leaf_reg", "lambda": "l2_leaf_reg",
	"lambda_l1": "reg_alpha", "alpha": "reg_alpha",
	"min_split_gain": "min_gain_to_split", "gamma": "min_gain_to_split",
	"min_child_weight": "min_sum_hessian_in_leaf",
	"bagging_fraction": "subsample", "rsm": "colsample_bytree", "feature_fraction": "colsample_bytree",
	"border_count": "max_bin",
	"one_hot_max_size": "max_cat_to_onehot",
	"od_wait": "early_stopping_rounds", "early_stopping_round": "early_stopping_rounds",
	"seed": "random_seed", "random_state": "random_seed",
	"n_jobs": "thread_count", "num_threads": "thread_count",
	"verbosity": "verbose", "logging_level": "verbose",
	"objective": "loss_function", "loss": "loss_function",
}

// HasParam reports whether m sets the canonical parameter name under any
// of its accepted spellings.
func HasParam(m map[string]interface{}, name string) bool {
	for key := range m {
		k := strings.ToLower(key)
		if canonical, ok := paramAliases[k]; ok {
			k = canonical
		}
		if k == name {
			return true
		}
	}
	return false
}

// ParamsFromMap builds Params from a loosely-typed map as read from a
// configuration file. Keys may use the canonical names or any alias in
// paramAliases. Unknown keys are ignored with an IgnoredParameterWarning;
// values of the wrong type are rejected with a ValidationError.
func ParamsFromMap(m map[string]interface{}) (Params, error) {
	p := DefaultParams()

	// Process keys in sorted order so errors and warnings are deterministic.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]string, len(keys))
	for _, key := range keys {
		name := strings.ToLower(key)
		if canonical, ok := paramAliases[name]; ok {
			name = canonical
		}
		spec, ok := paramSpecs[name]
		if !ok {
			errors.Warn(errors.NewIgnoredParameterWarning("gbdt", key))
			continue
		}
		if prev, dup := seen[name]; dup {
			return Params{}, errors.NewValidationError(key, "duplicates parameter "+prev, m[key])
		}
		seen[name] = key

		v, err := coerce(key, m[key], spec.kind)
		if err != nil {
			return Params{}, err
		}
		if err := spec.apply(&p, v); err != nil {
			return Params{}, err
		}
	}

	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// coerce converts YAML/env decoded values to the expected kind. Strings
// are accepted for numbers and booleans since environment overrides arrive
// as text.
func coerce(key string, v interface{}, kind paramKind) (interface{}, error) {
	bad := func() error {
		return errors.NewValidationError(key, fmt.Sprintf("expected %s", kindName(kind)), v)
	}

	switch kind {
	case kindInt:
		switch x := v.(type) {
		case int:
			return x, nil
		case int64:
			return int(x), nil
		case uint64:
			return int(x), nil
		case float64:
			if x != math.Trunc(x) || math.IsInf(x, 0) {
				return nil, bad()
			}
			return int(x), nil
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(x))
			if err != nil {
				return nil, bad()
			}
			return n, nil
		}
	case kindFloat:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil, bad()
			}
			return f, nil
		}
	case kindBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return nil, bad()
			}
			return b, nil
		}
	case kindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, bad()
}

func kindName(k paramKind) string {
	switch k {
	case kindInt:
		return "integer"
	case kindFloat:
		return "number"
	case kindBool:
		return "boolean"
	default:
		return "string"
	}
}
