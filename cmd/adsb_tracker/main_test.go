package main

import (
	"reflect"
	"testing"
)

func TestParseDatasetSpec(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    map[string][]string
		wantErr bool
	}{
		{
			name: "default spec",
			spec: defaultDatasetSpec,
			want: map[string][]string{
				"civilian": {"aircraft", "positions"},
				"military": {"aircraft_military", "positions_military"},
			},
		},
		{
			name: "single dataset",
			spec: "civilian=aircraft,positions",
			want: map[string][]string{
				"civilian": {"aircraft", "positions"},
			},
		},
		{
			name: "whitespace tolerated",
			spec: " civilian = aircraft , positions ; ",
			want: map[string][]string{
				"civilian": {"aircraft", "positions"},
			},
		},
		{
			name:    "missing equals",
			spec:    "civilian-aircraft,positions",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDatasetSpec(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatal("parseDatasetSpec succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDatasetSpec: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseDatasetSpec = %v, want %v", got, tt.want)
			}
		})
	}
}
