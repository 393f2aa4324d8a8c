package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/abkit/pkg/config"
	"github.com/dmitrymomot/abkit/pkg/experiment"
	"github.com/dmitrymomot/abkit/pkg/logger"
)

const definitions = `
experiments:
  - id: checkout-button
    flag: checkout-button-color
    variants:
      - id: control
        weight: 50
      - id: green
        weight: 50
    metrics:
      - name: conversion
        type: proportion
        goal: maximize
`

func writeDefinitions(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "experiments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestBuildRootCmd(t *testing.T) {
	t.Parallel()

	root := buildRootCmd()
	assert.Equal(t, "abkit", root.Use)
	assert.True(t, root.SilenceUsage)
	assert.Contains(t, root.Version, version)

	names := make(map[string]bool)
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "validate", "assign"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("env-file"))
}

func TestValidateCommand(t *testing.T) {
	t.Parallel()

	t.Run("valid file", func(t *testing.T) {
		t.Parallel()
		var out bytes.Buffer
		root := buildRootCmd()
		root.SetOut(&out)
		root.SetArgs([]string{"validate", writeDefinitions(t, definitions)})

		require.NoError(t, root.Execute())
		assert.Contains(t, out.String(), "checkout-button")
		assert.Contains(t, out.String(), "control=50*")
		assert.Contains(t, out.String(), "conversion(proportion,maximize)")
		assert.Contains(t, out.String(), "1 experiment(s) valid")
	})

	t.Run("invalid weights", func(t *testing.T) {
		t.Parallel()
		bad := strings.Replace(definitions, "weight: 50\n      - id: green", "weight: 40\n      - id: green", 1)
		err := runValidate(&bytes.Buffer{}, writeDefinitions(t, bad))

		var ve experiment.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		err := runValidate(&bytes.Buffer{}, filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("requires one argument", func(t *testing.T) {
		t.Parallel()
		root := buildRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{"validate"})
		assert.Error(t, root.Execute())
	})
}

func TestAssignCommand(t *testing.T) {
	t.Parallel()

	path := writeDefinitions(t, definitions)
	participants := []string{"user-1", "user-2", "user-3"}

	var first, second bytes.Buffer
	require.NoError(t, runAssign(&first, path, "checkout-button", participants))
	require.NoError(t, runAssign(&second, path, "checkout-button", participants))
	assert.Equal(t, first.String(), second.String(), "assignment must be deterministic")

	lines := strings.Split(strings.TrimSpace(first.String()), "\n")
	require.Len(t, lines, len(participants)+1)
	for i, p := range participants {
		fields := strings.Fields(lines[i+1])
		require.Len(t, fields, 2)
		assert.Equal(t, p, fields[0])
		assert.Contains(t, []string{"control", "green"}, fields[1])
	}

	err := runAssign(&bytes.Buffer{}, path, "unknown", participants)
	assert.ErrorIs(t, err, experiment.ErrNotFound)
}

func TestBuildAppInMemory(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFrom(map[string]string{
		"DEFINITIONS_PATH": writeDefinitions(t, definitions),
		"AUTO_START":       "true",
	})
	require.NoError(t, err)

	a, err := buildApp(context.Background(), cfg, logger.Discard())
	t.Cleanup(a.close)
	require.NoError(t, err)

	exp, err := a.registry.Get(context.Background(), "checkout-button")
	require.NoError(t, err)
	assert.Equal(t, experiment.StateRunning, exp.State)

	t.Run("seeding twice skips existing experiments", func(t *testing.T) {
		err := seedDefinitions(context.Background(), a.registry, cfg.DefinitionsPath, true, logger.Discard())
		assert.NoError(t, err)
	})

	t.Run("serves the api", func(t *testing.T) {
		srv := httptest.NewServer(a.handler)
		t.Cleanup(srv.Close)

		resp, err := http.Get(srv.URL + "/health/ready")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, err = http.Get(srv.URL + "/resolve?flag=checkout-button-color&participant_id=user-1")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Data struct {
				VariantID string `json:"variant_id"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Contains(t, []string{"control", "green"}, body.Data.VariantID)
	})
}
