package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// taggedKeys are the payload fields that produce field-presence tags.
var taggedKeys = []string{"amount", "currency", "steps", "heart_rate", "sleep", "title", "attendees", "merchant"}

// buildTags assembles the deterministic tag set for a record: domain and
// category tags, suggested tags from categorization, one transformed:<name>
// tag per applied transform, field-presence tags, magnitude/sign tags, and
// temporal tags derived from the processing time. The result is unique and
// sorted; tag order carries no meaning in queries.
func buildTags(
	domain model.ConnectionCategory,
	payload map[string]any,
	cat model.Categorization,
	suggested []string,
	applied []string,
	processedAt time.Time,
) []string {
	set := make(map[string]struct{})
	add := func(tag string) {
		if tag != "" {
			set[tag] = struct{}{}
		}
	}

	add(string(domain))
	add(cat.Primary)
	add(cat.Secondary)
	for _, t := range suggested {
		add(t)
	}
	for _, name := range applied {
		add("transformed:" + name)
	}
	for _, key := range taggedKeys {
		if _, ok := payload[key]; ok {
			add("has:" + key)
		}
	}

	if amount, ok := numericField(payload, "amount"); ok {
		if amount < 0 {
			add("negative")
		}
		if isHighValue(payload) {
			add("high-value")
		}
	}

	ts := processedAt.UTC()
	add(fmt.Sprintf("year:%d", ts.Year()))
	add(fmt.Sprintf("month:%d", int(ts.Month())))
	add(fmt.Sprintf("day:%d", ts.Day()))

	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
