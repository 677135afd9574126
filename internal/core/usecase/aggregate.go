package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/anshultibby/pocket-fashion/internal/core/domain"
	"github.com/anshultibby/pocket-fashion/internal/core/ports"
)

// AggregateUseCase computes read-side rollups over a loaded store. Nothing is
// cached; every call reloads and recounts.
type AggregateUseCase struct {
	store ports.ClosetStore

	// classNames maps segmentation class keys to garment class names, sourced
	// from the vocabulary table at bootstrap.
	classNames map[string]string
}

func NewAggregateUseCase(store ports.ClosetStore, classNames map[string]string) *AggregateUseCase {
	return &AggregateUseCase{store: store, classNames: classNames}
}

func (uc *AggregateUseCase) Distinct(ctx context.Context, userID string) (*domain.WardrobeValues, error) {
	records, err := uc.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}

	classes := make(map[string]struct{})
	attributes := make(map[domain.LabelCategory]map[string]struct{})
	for _, record := range records {
		for key := range record.Cutouts {
			classes[uc.className(key)] = struct{}{}
		}
		for _, labels := range record.ClassificationResults {
			for category, value := range labels {
				if attributes[category] == nil {
					attributes[category] = make(map[string]struct{})
				}
				attributes[category][value] = struct{}{}
			}
		}
	}

	values := &domain.WardrobeValues{
		GarmentClasses: sortedSet(classes),
		Attributes:     make(map[domain.LabelCategory][]string, len(attributes)),
	}
	for category, set := range attributes {
		values.Attributes[category] = sortedSet(set)
	}
	return values, nil
}

func (uc *AggregateUseCase) Distribution(ctx context.Context, userID string) (*domain.WardrobeDistribution, error) {
	records, err := uc.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}

	classCounts := make(map[string]int)
	attributeCounts := make(map[string]int)
	for _, record := range records {
		for key := range record.Cutouts {
			classCounts[uc.className(key)]++
		}
		for _, labels := range record.ClassificationResults {
			for category, value := range labels {
				attributeCounts[fmt.Sprintf("%s:%s", category, value)]++
			}
		}
	}

	return &domain.WardrobeDistribution{
		GarmentClasses: rankedEntries(classCounts),
		Attributes:     rankedEntries(attributeCounts),
	}, nil
}

func (uc *AggregateUseCase) className(key string) string {
	if name, ok := uc.classNames[key]; ok {
		return name
	}
	return "class_" + key
}

// rankedEntries orders buckets by count descending, then name ascending.
func rankedEntries(counts map[string]int) []domain.CountEntry {
	entries := make([]domain.CountEntry, 0, len(counts))
	for name, count := range counts {
		entries = append(entries, domain.CountEntry{Name: name, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

func sortedSet(set map[string]struct{}) []string {
	values := make([]string, 0, len(set))
	for value := range set {
		values = append(values, value)
	}
	sort.Strings(values)
	return values
}
