package models

import (
	"reflect"
	"testing"
)

func TestWebDocumentValidate(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"Valid https", "https://example.com/page", false},
		{"Valid http", "http://example.com", false},
		{"Empty", "", true},
		{"Relative path", "/just/a/path", true},
		{"Scheme only", "https://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &WebDocument{URL: tt.url}
			if err := doc.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyPermutationMovesArraysInLockstep(t *testing.T) {
	r := &RetrievalResult{
		IDs:       []string{"a", "b", "c"},
		Documents: []string{"doc-a", "doc-b", "doc-c"},
		Metadatas: []ChunkMetadata{{URL: "https://a"}, {URL: "https://b"}, {URL: "https://c"}},
		Distances: []float64{0.1, 0.2, 0.3},
	}

	if err := r.ApplyPermutation([]int{2, 0, 1}); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(r.IDs, []string{"c", "a", "b"}) {
		t.Errorf("IDs = %v", r.IDs)
	}
	if !reflect.DeepEqual(r.Documents, []string{"doc-c", "doc-a", "doc-b"}) {
		t.Errorf("Documents = %v", r.Documents)
	}
	if r.Metadatas[0].URL != "https://c" || r.Metadatas[1].URL != "https://a" {
		t.Errorf("Metadatas = %v", r.Metadatas)
	}
	if !reflect.DeepEqual(r.Distances, []float64{0.3, 0.1, 0.2}) {
		t.Errorf("Distances = %v", r.Distances)
	}
}

func TestApplyPermutationLeavesOtherLengthsUntouched(t *testing.T) {
	// Distances is shorter than the candidate count, e.g. an optional
	// field a store did not populate. It must not be reordered.
	r := &RetrievalResult{
		IDs:       []string{"a", "b", "c"},
		Documents: []string{"x", "y", "z"},
		Distances: []float64{0.5},
	}

	if err := r.ApplyPermutation([]int{2, 1, 0}); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(r.Documents, []string{"z", "y", "x"}) {
		t.Errorf("Documents = %v", r.Documents)
	}
	if !reflect.DeepEqual(r.Distances, []float64{0.5}) {
		t.Errorf("Distances = %v, want untouched", r.Distances)
	}
}

func TestApplyPermutationRejectsInvalidPermutations(t *testing.T) {
	tests := []struct {
		name string
		perm []int
	}{
		{"Out of range", []int{0, 3, 1}},
		{"Duplicate", []int{0, 0, 1}},
		{"Negative", []int{-1, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &RetrievalResult{Documents: []string{"x", "y", "z"}}
			if err := r.ApplyPermutation(tt.perm); err == nil {
				t.Errorf("ApplyPermutation(%v) expected error", tt.perm)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	r := &RetrievalResult{
		IDs:       []string{"a", "b"},
		Documents: []string{"x", "y"},
		Distances: []float64{0.1, 0.2},
	}
	clone := r.Clone()
	clone.Documents[0] = "changed"
	clone.Distances[1] = 9

	if r.Documents[0] != "x" || r.Distances[1] != 0.2 {
		t.Errorf("mutating the clone leaked into the original: %v %v", r.Documents, r.Distances)
	}
}
