package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/scriptrun/internal/model"
)

func TestScriptSourceValidate(t *testing.T) {
	tests := map[string]struct {
		script model.ScriptSource
		expErr bool
	}{
		"A script without parameters should be valid.": {
			script: model.ScriptSource{Content: "Write-Output 'hi'"},
		},

		"A script with valid parameters should be valid.": {
			script: model.ScriptSource{
				Content: "Write-Output $env:SCRIPTRUN_PARAM_Name",
				Parameters: []model.ParameterSpec{
					{Name: "Name", Type: model.ParameterTypeString, Required: true, Pattern: `[A-Za-z]+`},
					{Name: "Count", Type: model.ParameterTypeInteger, Default: 3},
					{Name: "Force", Type: model.ParameterTypeBoolean},
				},
			},
		},

		"An empty script should fail.": {
			script: model.ScriptSource{},
			expErr: true,
		},

		"A parameter name that is not an identifier should fail.": {
			script: model.ScriptSource{
				Content:    "x",
				Parameters: []model.ParameterSpec{{Name: "na-me", Type: model.ParameterTypeString}},
			},
			expErr: true,
		},

		"Duplicated parameters should fail.": {
			script: model.ScriptSource{
				Content: "x",
				Parameters: []model.ParameterSpec{
					{Name: "a", Type: model.ParameterTypeString},
					{Name: "a", Type: model.ParameterTypeInteger},
				},
			},
			expErr: true,
		},

		"Unknown parameter types should fail.": {
			script: model.ScriptSource{
				Content:    "x",
				Parameters: []model.ParameterSpec{{Name: "a", Type: "float"}},
			},
			expErr: true,
		},

		"Patterns on non string parameters should fail.": {
			script: model.ScriptSource{
				Content:    "x",
				Parameters: []model.ParameterSpec{{Name: "a", Type: model.ParameterTypeInteger, Pattern: `\d+`}},
			},
			expErr: true,
		},

		"Invalid patterns should fail.": {
			script: model.ScriptSource{
				Content:    "x",
				Parameters: []model.ParameterSpec{{Name: "a", Type: model.ParameterTypeString, Pattern: `([`}},
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			err := test.script.Validate()
			if test.expErr {
				assert.ErrorIs(err, model.ErrNotValid)
			} else {
				assert.NoError(err)
			}
		})
	}
}
