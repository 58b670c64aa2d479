package metadata

import (
	"fmt"
	"testing"

	"gorm.io/datatypes"
)

// The arch filter in AdditionalRepositories matches SQL NULL, '[]'::jsonb,
// or a containing array. A nil JSONSlice serialises to the jsonb literal
// 'null', which none of those arms match, so seeded rows must always store
// empty slices as [].
func TestSampleRepositoriesStoreSlicesAsArrays(t *testing.T) {
	repos := sampleRepositories()
	if len(repos) != 3 {
		t.Fatalf("sample repositories = %d, want 3", len(repos))
	}

	for _, repo := range repos {
		t.Run(repo.Name, func(t *testing.T) {
			columns := map[string]datatypes.JSONSlice[string]{
				"arches":           repo.Arches,
				"components":       repo.Components,
				"distributions":    repo.Distributions,
				"disabled_pockets": repo.DisabledPockets,
			}
			for name, column := range columns {
				value, err := column.Value()
				if err != nil {
					t.Fatalf("%s value: %v", name, err)
				}
				if raw := fmt.Sprintf("%s", value); raw == "null" {
					t.Fatalf("%s stores jsonb null, want an array literal", name)
				}
			}
		})
	}
}

func TestSamplePPAMatchesArchFilter(t *testing.T) {
	var ppa *packageRepositoryModel
	repos := sampleRepositories()
	for i := range repos {
		if !repos[i].Default {
			ppa = &repos[i]
		}
	}
	if ppa == nil {
		t.Fatal("no non-default sample repository")
	}

	value, err := ppa.Arches.Value()
	if err != nil {
		t.Fatalf("arches value: %v", err)
	}
	if raw := fmt.Sprintf("%s", value); raw != "[]" {
		t.Fatalf("arches = %q, want %q so the empty-array filter arm matches", raw, "[]")
	}
}
