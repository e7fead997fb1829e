package polymarket

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lod61/poly-model-auto-trading/internal/domain"
)

// mapGammaMarket convierte un gammaMarket DTO a domain.Market. Falla si el
// mercado no tiene exactamente dos tokens o los outcomes no son Up/Down.
func mapGammaMarket(gm gammaMarket) (domain.Market, error) {
	tokenIDs, err := unpackStringArray(gm.ClobTokenIDs)
	if err != nil {
		return domain.Market{}, fmt.Errorf("clobTokenIds: %w", err)
	}
	outcomes, err := unpackStringArray(gm.Outcomes)
	if err != nil {
		return domain.Market{}, fmt.Errorf("outcomes: %w", err)
	}
	if len(tokenIDs) != 2 || len(outcomes) != 2 {
		return domain.Market{}, fmt.Errorf("se esperaban 2 tokens/outcomes, hay %d/%d",
			len(tokenIDs), len(outcomes))
	}

	prices := []float64{0, 0}
	if raw, err := unpackStringArray(gm.OutcomePrices); err == nil && len(raw) == 2 {
		for i, p := range raw {
			prices[i], _ = strconv.ParseFloat(p, 64)
		}
	}

	m := domain.Market{
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		Slug:        gm.Slug,
		NegRisk:     gm.NegRisk,
		Active:      gm.Active,
		Closed:      gm.Closed,
	}

	for i := 0; i < 2; i++ {
		outcome := normalizeOutcome(outcomes[i])
		if outcome == "" {
			return domain.Market{}, fmt.Errorf("outcome no reconocido: %q", outcomes[i])
		}
		m.Tokens[i] = domain.Token{
			TokenID: tokenIDs[i],
			Outcome: outcome,
			Price:   prices[i],
		}
	}
	if m.Tokens[0].Outcome == m.Tokens[1].Outcome {
		return domain.Market{}, fmt.Errorf("outcomes duplicados: %q", m.Tokens[0].Outcome)
	}

	if gm.EndDateISO != "" {
		// Polymarket usa varios formatos; intentamos los más comunes
		for _, layout := range []string{
			time.RFC3339,
			"2006-01-02T15:04:05.000Z",
			"2006-01-02T15:04:05Z",
			"2006-01-02",
		} {
			if t, err := time.Parse(layout, gm.EndDateISO); err == nil {
				m.EndDate = t.UTC()
				m.WindowID = domain.WindowIDAt(m.EndDate.Add(-time.Second))
				break
			}
		}
	}

	return m, nil
}

// normalizeOutcome traduce el outcome de Gamma a los lados del dominio.
func normalizeOutcome(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "yes":
		return "Up"
	case "down", "no":
		return "Down"
	}
	return ""
}

// unpackStringArray decodifica un array JSON serializado dentro de un string,
// p.ej. `"[\"123\", \"456\"]"`.
func unpackStringArray(raw string) ([]string, error) {
	if raw == "" {
		return nil, fmt.Errorf("campo vacío")
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// mapOrderBooks convierte la respuesta batch de /books a un map tokenID→OrderBook.
func mapOrderBooks(raw []orderBookResponse) map[string]domain.OrderBook {
	result := make(map[string]domain.OrderBook, len(raw))
	for _, r := range raw {
		ob := domain.OrderBook{
			TokenID: r.AssetID,
			Bids:    mapBookEntries(r.Bids, false),
			Asks:    mapBookEntries(r.Asks, true),
		}
		result[r.AssetID] = ob
	}
	return result
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}
