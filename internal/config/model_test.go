package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_SelectRun(t *testing.T) {
	m := &Model{Runs: map[string]*Run{"hn": {Name: "hn", Root: "top"}}}

	r, err := m.SelectRun("")
	require.NoError(t, err)
	assert.Equal(t, "hn", r.Name)

	_, err = m.SelectRun("missing")
	assert.Error(t, err)

	m.Runs["other"] = &Run{Name: "other", Root: "x"}
	_, err = m.SelectRun("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hn, other")
}

func TestModel_ValidateAppliesDefaults(t *testing.T) {
	m := &Model{
		Runs:   map[string]*Run{"a": {Name: "a", Root: "r"}},
		Static: &StaticSource{File: "tree.yaml"},
	}
	require.NoError(t, m.Validate())

	r := m.Runs["a"]
	assert.Equal(t, DefaultMaxConcurrency, r.MaxConcurrency)
	assert.Equal(t, DefaultGracePeriod, r.GracePeriod)
	assert.Equal(t, DefaultCallTimeout, r.CallTimeout)
}

func TestModel_ValidateErrors(t *testing.T) {
	testCases := []struct {
		name  string
		model *Model
		want  string
	}{
		{name: "no runs", model: &Model{}, want: "no run block"},
		{name: "no source", model: &Model{Runs: map[string]*Run{"a": {Root: "r"}}}, want: "no source"},
		{
			name: "two sources",
			model: &Model{
				Runs:   map[string]*Run{"a": {Root: "r"}},
				HTTP:   &HTTPSource{ItemURL: "x"},
				Static: &StaticSource{File: "y"},
			},
			want: "only one source",
		},
		{
			name:  "missing root",
			model: &Model{Runs: map[string]*Run{"a": {Name: "a"}}, Static: &StaticSource{File: "y"}},
			want:  "root is required",
		},
		{
			name:  "missing item url",
			model: &Model{Runs: map[string]*Run{"a": {Root: "r"}}, HTTP: &HTTPSource{}},
			want:  "item_url",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.model.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
