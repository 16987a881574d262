package models

import "testing"

var renderEnvTests = []struct {
	env         map[string]string
	options     map[string]string
	expectation map[string]string
}{
	{
		env:         map[string]string{"DB_HOST": "{{.DatabaseHost}}", "DB_PORT": "{{.DatabasePort}}"},
		options:     map[string]string{"DatabaseHost": "shipyard-database", "DatabasePort": "3306"},
		expectation: map[string]string{"DB_HOST": "shipyard-database", "DB_PORT": "3306"},
	},
	{
		env:         map[string]string{"RELEASE": "{{.ShortSha}}", "STATIC": "value"},
		options:     map[string]string{"ShortSha": "f133742ab3de"},
		expectation: map[string]string{"RELEASE": "f133742ab3de", "STATIC": "value"},
	},
	{
		env:         map[string]string{},
		options:     map[string]string{"ShortSha": "f133742ab3de"},
		expectation: map[string]string{},
	},
}

func TestRenderEnv(t *testing.T) {
	for _, tt := range renderEnvTests {
		result, err := RenderEnv(tt.env, tt.options)
		if err != nil {
			t.Errorf("RenderEnv returned error. err=%s", err)
		}

		if len(result) != len(tt.expectation) {
			t.Errorf("rendered env has wrong size. want=%d, got=%d", len(tt.expectation), len(result))
		}

		for name, expected := range tt.expectation {
			if result[name] != expected {
				t.Errorf("rendered env wrong. expected=%q, got=%q", expected, result[name])
			}
		}
	}
}

func TestRenderEnvInvalidTemplate(t *testing.T) {
	_, err := RenderEnv(map[string]string{"BROKEN": "{{.Unclosed"}, map[string]string{})
	if err == nil {
		t.Errorf("expected RenderEnv to return error for invalid template")
	}
}

func TestNormalizeDatabaseDataDir(t *testing.T) {
	stack := &Stack{Database: &DatabaseTier{Image: "postgres:16", DataDir: "/var/lib/postgresql/data"}}
	stack.normalize("shipyard")

	if stack.Database.DataDir != "/var/lib/postgresql/data" {
		t.Errorf("data dir overwritten. got=%s", stack.Database.DataDir)
	}

	defaulted := &Stack{}
	defaulted.normalize("shipyard")
	if defaulted.Database.DataDir != "/var/lib/mysql" {
		t.Errorf("data dir not defaulted. got=%s", defaulted.Database.DataDir)
	}
}
