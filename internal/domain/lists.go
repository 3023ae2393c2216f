package domain

import (
	"encoding/json"
	"fmt"
)

// EncodeList renders a record's mentions, hashtags or links as a JSON array,
// the form used by the CSV table and the SQLite store. A nil list is "[]".
func EncodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(data), nil
}

// DecodeList parses a list written by EncodeList. An empty string is an
// empty list.
func DecodeList(s string) ([]string, error) {
	items := []string{}
	if s == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if items == nil {
		items = []string{}
	}
	return items, nil
}
