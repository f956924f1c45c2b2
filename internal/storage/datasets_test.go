package storage

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestNewDatasets(t *testing.T) {
	tests := []struct {
		name    string
		cfg     map[string][]string
		wantErr string
	}{
		{
			name: "valid pair",
			cfg: map[string][]string{
				"civilian": {"aircraft", "positions"},
			},
		},
		{
			name: "valid multiple datasets",
			cfg: map[string][]string{
				"civilian": {"aircraft", "positions"},
				"military": {"aircraft_military", "positions_military"},
			},
		},
		{
			name:    "empty config",
			cfg:     map[string][]string{},
			wantErr: "no datasets configured",
		},
		{
			name: "empty dataset name",
			cfg: map[string][]string{
				"": {"aircraft", "positions"},
			},
			wantErr: "empty dataset name",
		},
		{
			name: "one table only",
			cfg: map[string][]string{
				"civilian": {"aircraft"},
			},
			wantErr: "expected 2 table names",
		},
		{
			name: "three tables",
			cfg: map[string][]string{
				"civilian": {"aircraft", "positions", "extra"},
			},
			wantErr: "expected 2 table names",
		},
		{
			name: "state equals history",
			cfg: map[string][]string{
				"civilian": {"aircraft", "aircraft"},
			},
			wantErr: "must differ",
		},
		{
			name: "invalid identifier",
			cfg: map[string][]string{
				"civilian": {"aircraft; DROP TABLE x", "positions"},
			},
			wantErr: "invalid table name",
		},
		{
			name: "leading digit",
			cfg: map[string][]string{
				"civilian": {"1aircraft", "positions"},
			},
			wantErr: "invalid table name",
		},
		{
			name: "table shared across datasets",
			cfg: map[string][]string{
				"civilian": {"aircraft", "positions"},
				"military": {"aircraft_military", "positions"},
			},
			wantErr: "already used",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDatasets(tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("NewDatasets: %v", err)
				}
				if len(d.Names()) != len(tt.cfg) {
					t.Errorf("Names() = %v, want %d datasets", d.Names(), len(tt.cfg))
				}
				return
			}
			if err == nil {
				t.Fatal("NewDatasets succeeded, want error")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error = %T, want *ConfigError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDatasetsResolve(t *testing.T) {
	d := DefaultDatasets()

	tables, err := d.Resolve("civilian")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := Tables{State: "aircraft", History: "positions"}
	if tables != want {
		t.Errorf("Resolve(civilian) = %+v, want %+v", tables, want)
	}

	if _, err := d.Resolve("experimental"); err == nil {
		t.Error("Resolve(experimental) succeeded, want error")
	} else {
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("error = %T, want *ConfigError", err)
		}
	}
}

func TestDatasetsNames(t *testing.T) {
	got := DefaultDatasets().Names()
	want := []string{"civilian", "military"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}
