package binder_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scriptrun/internal/binder"
	"github.com/slok/scriptrun/internal/model"
)

func TestBind(t *testing.T) {
	tests := map[string]struct {
		spec     []model.ParameterSpec
		values   map[string]any
		expBound []binder.BoundParameter
		expKinds []binder.ErrorKind
	}{
		"Without parameters nothing should be bound.": {
			values:   map[string]any{"x": "y"},
			expBound: nil,
		},

		"A required string should be bound as is.": {
			spec:     []model.ParameterSpec{{Name: "Name", Type: model.ParameterTypeString, Required: true}},
			values:   map[string]any{"Name": "World"},
			expBound: []binder.BoundParameter{{Name: "Name", Type: model.ParameterTypeString, Value: "World"}},
		},

		"Strings with shell and PowerShell metacharacters should be passed untouched.": {
			spec:     []model.ParameterSpec{{Name: "Name", Type: model.ParameterTypeString}},
			values:   map[string]any{"Name": `'; Remove-Item C:\ -Recurse; $(rm -rf /)`},
			expBound: []binder.BoundParameter{{Name: "Name", Type: model.ParameterTypeString, Value: `'; Remove-Item C:\ -Recurse; $(rm -rf /)`}},
		},

		"A missing required parameter should fail.": {
			spec:     []model.ParameterSpec{{Name: "Name", Type: model.ParameterTypeString, Required: true}},
			values:   map[string]any{},
			expKinds: []binder.ErrorKind{binder.KindMissingParameter},
		},

		"A nil value on a required parameter should be a missing parameter.": {
			spec:     []model.ParameterSpec{{Name: "Name", Type: model.ParameterTypeString, Required: true}},
			values:   map[string]any{"Name": nil},
			expKinds: []binder.ErrorKind{binder.KindMissingParameter},
		},

		"A missing required parameter with default should use the default.": {
			spec:     []model.ParameterSpec{{Name: "Count", Type: model.ParameterTypeInteger, Required: true, Default: 3}},
			expBound: []binder.BoundParameter{{Name: "Count", Type: model.ParameterTypeInteger, Value: "3"}},
		},

		"A missing optional parameter should not be bound.": {
			spec: []model.ParameterSpec{
				{Name: "A", Type: model.ParameterTypeString},
				{Name: "B", Type: model.ParameterTypeString},
			},
			values:   map[string]any{"B": "b"},
			expBound: []binder.BoundParameter{{Name: "B", Type: model.ParameterTypeString, Value: "b"}},
		},

		"Integers should be coerced from numbers and strings.": {
			spec: []model.ParameterSpec{
				{Name: "A", Type: model.ParameterTypeInteger},
				{Name: "B", Type: model.ParameterTypeInteger},
				{Name: "C", Type: model.ParameterTypeInteger},
				{Name: "D", Type: model.ParameterTypeInteger},
			},
			values: map[string]any{"A": 42, "B": "-7", "C": float64(10), "D": int64(9)},
			expBound: []binder.BoundParameter{
				{Name: "A", Type: model.ParameterTypeInteger, Value: "42"},
				{Name: "B", Type: model.ParameterTypeInteger, Value: "-7"},
				{Name: "C", Type: model.ParameterTypeInteger, Value: "10"},
				{Name: "D", Type: model.ParameterTypeInteger, Value: "9"},
			},
		},

		"Non whole numbers on integers should fail.": {
			spec: []model.ParameterSpec{
				{Name: "A", Type: model.ParameterTypeInteger},
				{Name: "B", Type: model.ParameterTypeInteger},
				{Name: "C", Type: model.ParameterTypeInteger},
			},
			values:   map[string]any{"A": "1.5", "B": 2.5, "C": "ten"},
			expKinds: []binder.ErrorKind{binder.KindTypeMismatch, binder.KindTypeMismatch, binder.KindTypeMismatch},
		},

		"Numbers out of the int64 range should be a type mismatch.": {
			spec: []model.ParameterSpec{
				{Name: "A", Type: model.ParameterTypeInteger},
				{Name: "B", Type: model.ParameterTypeInteger},
				{Name: "C", Type: model.ParameterTypeInteger},
			},
			values:   map[string]any{"A": math.Pow(2, 63), "B": -math.Pow(2, 64), "C": uint64(math.MaxUint64)},
			expKinds: []binder.ErrorKind{binder.KindTypeMismatch, binder.KindTypeMismatch, binder.KindTypeMismatch},
		},

		"The int64 bounds should be bound.": {
			spec: []model.ParameterSpec{
				{Name: "A", Type: model.ParameterTypeInteger},
				{Name: "B", Type: model.ParameterTypeInteger},
			},
			values: map[string]any{"A": -math.Pow(2, 63), "B": int64(math.MaxInt64)},
			expBound: []binder.BoundParameter{
				{Name: "A", Type: model.ParameterTypeInteger, Value: "-9223372036854775808"},
				{Name: "B", Type: model.ParameterTypeInteger, Value: "9223372036854775807"},
			},
		},

		"Booleans should accept the canonical tokens.": {
			spec: []model.ParameterSpec{
				{Name: "A", Type: model.ParameterTypeBoolean},
				{Name: "B", Type: model.ParameterTypeBoolean},
				{Name: "C", Type: model.ParameterTypeBoolean},
				{Name: "D", Type: model.ParameterTypeBoolean},
			},
			values: map[string]any{"A": true, "B": "No", "C": "1", "D": "off"},
			expBound: []binder.BoundParameter{
				{Name: "A", Type: model.ParameterTypeBoolean, Value: "true"},
				{Name: "B", Type: model.ParameterTypeBoolean, Value: "false"},
				{Name: "C", Type: model.ParameterTypeBoolean, Value: "true"},
				{Name: "D", Type: model.ParameterTypeBoolean, Value: "false"},
			},
		},

		"Unknown boolean tokens should fail.": {
			spec:     []model.ParameterSpec{{Name: "A", Type: model.ParameterTypeBoolean}},
			values:   map[string]any{"A": "maybe"},
			expKinds: []binder.ErrorKind{binder.KindTypeMismatch},
		},

		"Non string values on string parameters should fail.": {
			spec:     []model.ParameterSpec{{Name: "A", Type: model.ParameterTypeString}},
			values:   map[string]any{"A": 1},
			expKinds: []binder.ErrorKind{binder.KindTypeMismatch},
		},

		"Values matching the pattern should be bound.": {
			spec:     []model.ParameterSpec{{Name: "Host", Type: model.ParameterTypeString, Pattern: `[a-z0-9.-]+`}},
			values:   map[string]any{"Host": "srv-01.local"},
			expBound: []binder.BoundParameter{{Name: "Host", Type: model.ParameterTypeString, Value: "srv-01.local"}},
		},

		"The pattern should match the full value.": {
			spec:     []model.ParameterSpec{{Name: "Host", Type: model.ParameterTypeString, Pattern: `[a-z0-9.-]+`}},
			values:   map[string]any{"Host": "srv-01; Remove-Item x"},
			expKinds: []binder.ErrorKind{binder.KindPatternMismatch},
		},

		"Unknown values should be ignored.": {
			spec:     []model.ParameterSpec{{Name: "A", Type: model.ParameterTypeString}},
			values:   map[string]any{"A": "a", "PATH": "/tmp/evil", "Other": "x"},
			expBound: []binder.BoundParameter{{Name: "A", Type: model.ParameterTypeString, Value: "a"}},
		},

		"Invalid parameter names in the spec should fail.": {
			spec:     []model.ParameterSpec{{Name: "A=B", Type: model.ParameterTypeString}},
			values:   map[string]any{"A=B": "x"},
			expKinds: []binder.ErrorKind{binder.KindInvalidSpec},
		},

		"All the problems should be reported.": {
			spec: []model.ParameterSpec{
				{Name: "A", Type: model.ParameterTypeString, Required: true},
				{Name: "B", Type: model.ParameterTypeInteger},
				{Name: "C", Type: model.ParameterTypeString, Pattern: `\d+`},
			},
			values:   map[string]any{"B": "x", "C": "y"},
			expKinds: []binder.ErrorKind{binder.KindMissingParameter, binder.KindTypeMismatch, binder.KindPatternMismatch},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			got, err := binder.Bind(test.spec, test.values)

			if len(test.expKinds) > 0 {
				require.Error(t, err)
				assert.ErrorIs(err, model.ErrBinding)

				joined, ok := err.(interface{ Unwrap() []error })
				require.True(t, ok)

				var kinds []binder.ErrorKind
				for _, e := range joined.Unwrap() {
					var perr *binder.ParameterError
					require.True(t, errors.As(e, &perr))
					kinds = append(kinds, perr.Kind)
				}
				assert.Equal(test.expKinds, kinds)
				return
			}

			require.NoError(t, err)
			assert.Equal(test.expBound, got.Parameters)
		})
	}
}

func TestBindMissingParameterNamesTheParameter(t *testing.T) {
	assert := assert.New(t)

	_, err := binder.Bind([]model.ParameterSpec{{Name: "Name", Type: model.ParameterTypeString, Required: true}}, nil)

	var perr *binder.ParameterError
	if assert.True(errors.As(err, &perr)) {
		assert.Equal("Name", perr.Parameter)
		assert.Equal(binder.KindMissingParameter, perr.Kind)
	}
	assert.Contains(err.Error(), `"Name"`)
}

func TestBoundArgsEnv(t *testing.T) {
	assert := assert.New(t)

	b := binder.BoundArgs{Parameters: []binder.BoundParameter{
		{Name: "Name", Value: "World"},
		{Name: "Count", Value: "3"},
	}}

	assert.Equal([]string{"SCRIPTRUN_PARAM_Name=World", "SCRIPTRUN_PARAM_Count=3"}, b.Env(""))
	assert.Equal([]string{"X_Name=World", "X_Count=3"}, b.Env("X_"))
	assert.Equal(map[string]string{"Name": "World", "Count": "3"}, b.Map())
}
