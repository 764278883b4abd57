package ranking

import (
	"fmt"
	"strings"

	"govstats/internal/model"
)

// Topic is a ranking dimension.
type Topic string

const (
	TopicPopulation    Topic = "population"
	TopicGDPNominal    Topic = "gdp-nominal"
	TopicWorldGDPShare Topic = "world-gdp-share"
	TopicSpending      Topic = "spending"
	TopicRevenue       Topic = "revenue"
	TopicDebtToGDP     Topic = "debt-to-gdp"
)

// TopicInfo describes a topic for listings.
type TopicInfo struct {
	Topic       Topic    `json:"topic"`
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description"`
	Unit        string   `json:"unit"`
}

var topics = []TopicInfo{
	{Topic: TopicPopulation, Description: "Total population", Unit: "people"},
	{Topic: TopicGDPNominal, Description: "Nominal GDP", Unit: "current USD"},
	{Topic: TopicWorldGDPShare, Description: "Share of world GDP", Unit: "percent"},
	{Topic: TopicSpending, Aliases: []string{"spending-total"}, Description: "Total government spending", Unit: "USD"},
	{Topic: TopicRevenue, Aliases: []string{"revenue-total"}, Description: "Total government revenue", Unit: "USD"},
	{Topic: TopicDebtToGDP, Description: "Central government debt", Unit: "percent of GDP"},
}

var topicIndex = func() map[string]Topic {
	index := make(map[string]Topic)
	for _, info := range topics {
		index[string(info.Topic)] = info.Topic
		for _, alias := range info.Aliases {
			index[alias] = info.Topic
		}
	}
	return index
}()

// Topics lists the supported topics in display order.
func Topics() []TopicInfo {
	out := make([]TopicInfo, len(topics))
	copy(out, topics)
	return out
}

// ParseTopic resolves a topic name or alias, ignoring case.
func ParseTopic(raw string) (Topic, error) {
	topic, ok := topicIndex[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTopic, raw)
	}
	return topic, nil
}

// Value projects a merged country onto the topic.
func (t Topic) Value(c model.MergedCountry) float64 {
	return t.projection()(c)
}

func (t Topic) projection() func(model.MergedCountry) float64 {
	switch t {
	case TopicPopulation:
		return func(c model.MergedCountry) float64 { return float64(c.Population) }
	case TopicGDPNominal:
		return func(c model.MergedCountry) float64 { return c.GDPNominal }
	case TopicWorldGDPShare:
		return func(c model.MergedCountry) float64 { return c.WorldGDPShare }
	case TopicSpending:
		return func(c model.MergedCountry) float64 { return model.BreakdownTotal(c.Spending) }
	case TopicRevenue:
		return func(c model.MergedCountry) float64 { return model.BreakdownTotal(c.Revenue) }
	case TopicDebtToGDP:
		return func(c model.MergedCountry) float64 { return c.DebtToGDP }
	default:
		return func(model.MergedCountry) float64 { return 0 }
	}
}
