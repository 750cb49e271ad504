package main

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/calculator"
)

// parseShares parses "Anna:60,Ben:40". Participants may be names or IDs.
func parseShares(s string) ([]calculator.ShareInput, error) {
	var shares []calculator.ShareInput
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i := strings.LastIndex(part, ":")
		if i <= 0 || i == len(part)-1 {
			return nil, fmt.Errorf("share %q is not participant:percentage", part)
		}
		pct, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(part[i+1:]), "%"))
		if err != nil {
			return nil, fmt.Errorf("share %q: invalid percentage: %w", part, err)
		}
		shares = append(shares, calculator.ShareInput{ParticipantID: strings.TrimSpace(part[:i]), Percentage: pct})
	}
	if len(shares) == 0 {
		return nil, fmt.Errorf("no shares in %q", s)
	}
	return shares, nil
}

// parseItemShares parses "ITEM_ID=Anna:60,Ben:40".
func parseItemShares(s string) (string, []calculator.ShareInput, error) {
	itemID, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(itemID) == "" {
		return "", nil, fmt.Errorf("%q is not item_id=participant:percentage,...", s)
	}
	shares, err := parseShares(value)
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSpace(itemID), shares, nil
}
